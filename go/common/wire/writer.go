// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import (
	"encoding/binary"
	"math"

	"github.com/shopspring/decimal"
)

// Writer builds a message body out of list items.
type Writer struct {
	buf []byte
}

// NewWriter creates a new body writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// Bytes returns the accumulated body.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current body length.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset resets the writer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// writeItem frames data with its length prefix and type byte. Items up to
// 253 data bytes use a one-byte prefix; longer ones use a zero byte followed
// by a four-byte data length.
func (w *Writer) writeItem(typ byte, data []byte) {
	if n := len(data) + 2; n < 256 {
		w.buf = append(w.buf, byte(n), typ)
	} else {
		w.buf = append(w.buf, 0)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(data)))
		w.buf = append(w.buf, typ)
	}
	w.buf = append(w.buf, data...)
}

// WriteNull writes a NULL item.
func (w *Writer) WriteNull() {
	w.buf = append(w.buf, 1)
}

// WriteUndefined writes an undefined item.
func (w *Writer) WriteUndefined() {
	w.writeItem(itemUndefined, nil)
}

// WriteInt writes an integer item.
func (w *Writer) WriteInt(v int64) {
	if v >= 0 {
		w.writeItem(itemPosInt, appendInt(nil, v))
		return
	}
	w.writeItem(itemNegInt, appendInt(nil, v))
}

// WriteDouble writes an IEEE-754 double item.
func (w *Writer) WriteDouble(f float64) {
	w.writeItem(itemDouble, binary.LittleEndian.AppendUint64(nil, math.Float64bits(f)))
}

// WriteDecimal writes a decimal item as an int8 exponent and an integer
// coefficient. d must satisfy DecimalFits.
func (w *Writer) WriteDecimal(d decimal.Decimal) {
	coef := d.CoefficientInt64()
	data := append([]byte{byte(int8(d.Exponent()))}, appendInt(nil, coef)...)
	if coef >= 0 {
		w.writeItem(itemPosDecimal, data)
		return
	}
	w.writeItem(itemNegDecimal, data)
}

// WriteBytes writes a byte string item.
func (w *Writer) WriteBytes(b []byte) {
	w.writeItem(itemBinary, b)
}

// WriteString writes s as ISO 8859-1 when possible and as UTF-16 otherwise.
func (w *Writer) WriteString(s string) {
	if b, ok := EncodeLatin1(s); ok {
		w.writeItem(itemBinary, b)
		return
	}
	w.WriteUnicode(s)
}

// WriteUnicode writes a UTF-16LE string item.
func (w *Writer) WriteUnicode(s string) {
	w.writeItem(itemUnicode, encodeUTF16(s))
}

// WriteValue writes any item.
func (w *Writer) WriteValue(v Value) {
	switch v.Kind {
	case KindNull:
		w.WriteNull()
	case KindUndefined:
		w.WriteUndefined()
	case KindInt:
		w.WriteInt(v.Int)
	case KindDouble:
		w.WriteDouble(v.Float)
	case KindDecimal:
		w.WriteDecimal(v.Dec)
	case KindBinary:
		w.WriteBytes(v.Bytes)
	case KindUnicode:
		w.WriteUnicode(v.Str)
	default:
		w.WriteNull()
	}
}

// WriteRaw appends bytes outside the item framing.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteRawUint32 appends a little-endian uint32 outside the item framing.
func (w *Writer) WriteRawUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// appendInt appends the minimal little-endian form of v. Non-negative values
// drop high zero bytes (zero has no bytes at all); negative values drop high
// 0xFF bytes while keeping the sign bit of the last byte set.
func appendInt(b []byte, v int64) []byte {
	if v >= 0 {
		for v > 0 {
			b = append(b, byte(v))
			v >>= 8
		}
		return b
	}
	for {
		last := byte(v)
		b = append(b, last)
		v >>= 8
		if v == -1 && last&0x80 != 0 {
			return b
		}
	}
}
