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
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Reader decodes list items from a message body. Every read that would pass
// the end of the body fails with a *FramingError wrapping ErrTruncated.
type Reader struct {
	buf []byte
	pos int
}

// NewReader creates a reader over a message body.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// AtEnd reports whether the whole body has been consumed.
func (r *Reader) AtEnd() bool {
	return r.pos >= len(r.buf)
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.pos
}

// ReadValue decodes the next item.
func (r *Reader) ReadValue() (Value, error) {
	start := r.pos
	if start >= len(r.buf) {
		return Value{}, truncated(start)
	}

	var typ byte
	var dataStart, dataLen int
	switch l := int(r.buf[start]); l {
	case 1:
		r.pos++
		return Null(), nil
	case 0:
		if start+6 > len(r.buf) {
			return Value{}, truncated(start)
		}
		n := binary.LittleEndian.Uint32(r.buf[start+1:])
		if n > MaxBodySize {
			return Value{}, malformed(start, "item length %d", n)
		}
		dataLen = int(n)
		typ = r.buf[start+5]
		dataStart = start + 6
	default:
		if start+2 > len(r.buf) {
			return Value{}, truncated(start)
		}
		typ = r.buf[start+1]
		dataStart = start + 2
		dataLen = l - 2
	}
	if dataStart+dataLen > len(r.buf) {
		return Value{}, truncated(start)
	}
	data := r.buf[dataStart : dataStart+dataLen]
	r.pos = dataStart + dataLen

	v, err := decodeItem(typ, data)
	if err != nil {
		return Value{}, malformed(start, "%v", err)
	}
	return v, nil
}

func decodeItem(typ byte, data []byte) (Value, error) {
	switch typ {
	case itemUndefined:
		return Undefined(), nil
	case itemBinary:
		return Binary(data), nil
	case itemUnicode:
		if len(data)%2 != 0 {
			return Value{}, errors.New("odd unicode length")
		}
		s, err := decodeUTF16(data)
		if err != nil {
			return Value{}, err
		}
		return Unicode(s), nil
	case itemPosInt, itemNegInt:
		v, err := parseInt(data, typ == itemNegInt)
		if err != nil {
			return Value{}, err
		}
		return Int64(v), nil
	case itemPosDecimal, itemNegDecimal:
		if len(data) == 0 {
			return Value{}, errors.New("empty decimal")
		}
		coef, err := parseInt(data[1:], typ == itemNegDecimal)
		if err != nil {
			return Value{}, err
		}
		return Dec(decimal.New(coef, int32(int8(data[0])))), nil
	case itemDouble:
		if len(data) != 8 {
			return Value{}, errors.New("double must be 8 bytes")
		}
		return Float64(math.Float64frombits(binary.LittleEndian.Uint64(data))), nil
	default:
		return Value{}, fmt.Errorf("unknown item type 0x%02x", typ)
	}
}

func parseInt(data []byte, negative bool) (int64, error) {
	if len(data) > 8 {
		return 0, errors.New("integer wider than 8 bytes")
	}
	if len(data) == 0 {
		if negative {
			return 0, errors.New("empty negative integer")
		}
		return 0, nil
	}
	var u uint64
	for i := len(data) - 1; i >= 0; i-- {
		u = u<<8 | uint64(data[i])
	}
	if negative {
		shift := uint(64 - 8*len(data))
		return int64(u<<shift) >> shift, nil
	}
	if u > math.MaxInt64 {
		return 0, errors.New("integer overflows int64")
	}
	return int64(u), nil
}

// ReadInt decodes an integer item.
func (r *Reader) ReadInt() (int64, error) {
	start := r.pos
	v, err := r.ReadValue()
	if err != nil {
		return 0, err
	}
	if v.Kind != KindInt {
		return 0, malformed(start, "expected int, got %s", v.Kind)
	}
	return v.Int, nil
}

// ReadString decodes a string item. Integers are rendered in decimal and
// NULL reads as the empty string.
func (r *Reader) ReadString() (string, error) {
	start := r.pos
	v, err := r.ReadValue()
	if err != nil {
		return "", err
	}
	if v.IsNull() {
		return "", nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", malformed(start, "expected string, got %s", v.Kind)
	}
	return s, nil
}

// Skip discards the next item.
func (r *Reader) Skip() error {
	_, err := r.ReadValue()
	return err
}

// ReadRaw reads n bytes outside the item framing.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, truncated(r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadRawUint32 reads a little-endian uint32 outside the item framing.
func (r *Reader) ReadRawUint32() (uint32, error) {
	b, err := r.ReadRaw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadRest returns all unread bytes.
func (r *Reader) ReadRest() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}
