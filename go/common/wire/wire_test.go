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
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/listsql/go/common/protocol"
)

func TestWriterWriteInt(t *testing.T) {
	tests := []struct {
		name     string
		value    int64
		expected []byte
	}{
		{"zero", 0, []byte{2, itemPosInt}},
		{"one", 1, []byte{3, itemPosInt, 0x01}},
		{"255", 255, []byte{3, itemPosInt, 0xFF}},
		{"256", 256, []byte{4, itemPosInt, 0x00, 0x01}},
		{"minus one", -1, []byte{3, itemNegInt, 0xFF}},
		{"minus 128", -128, []byte{3, itemNegInt, 0x80}},
		{"minus 129", -129, []byte{4, itemNegInt, 0x7F, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			w.WriteInt(tt.value)
			assert.Equal(t, tt.expected, w.Bytes())
		})
	}
}

func TestWriterWriteNullAndUndefined(t *testing.T) {
	w := NewWriter()
	w.WriteNull()
	w.WriteUndefined()
	assert.Equal(t, []byte{1, 2, itemUndefined}, w.Bytes())
}

func TestWriterWriteString(t *testing.T) {
	w := NewWriter()
	w.WriteString("hi")
	assert.Equal(t, []byte{4, itemBinary, 'h', 'i'}, w.Bytes())

	w.Reset()
	w.WriteString("é")
	assert.Equal(t, []byte{3, itemBinary, 0xE9}, w.Bytes(), "latin-1 characters stay 8-bit")

	w.Reset()
	w.WriteString("€")
	assert.Equal(t, []byte{4, itemUnicode, 0xAC, 0x20}, w.Bytes(), "wider characters switch to UTF-16LE")
}

func TestWriterWriteLongItem(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, 300)
	w := NewWriter()
	w.WriteBytes(data)

	buf := w.Bytes()
	require.Len(t, buf, 6+300)
	assert.Equal(t, []byte{0, 0x2C, 0x01, 0x00, 0x00, itemBinary}, buf[:6])
	assert.Equal(t, data, buf[6:])
}

func TestWriterWriteDecimal(t *testing.T) {
	w := NewWriter()
	w.WriteDecimal(decimal.New(12345, -2))
	assert.Equal(t, []byte{5, itemPosDecimal, 0xFE, 0x39, 0x30}, w.Bytes())
}

func TestWriterWriteRaw(t *testing.T) {
	w := NewWriter()
	w.WriteRawUint32(3)
	w.WriteRaw([]byte("abc"))
	assert.Equal(t, []byte{3, 0, 0, 0, 'a', 'b', 'c'}, w.Bytes())
	assert.Equal(t, 7, w.Len())
}

func TestValueRoundTrip(t *testing.T) {
	values := []Value{
		Null(),
		Undefined(),
		Int64(0),
		Int64(42),
		Int64(-42),
		Int64(math.MaxInt64),
		Int64(math.MinInt64),
		Float64(3.25),
		Float64(-0.5),
		Dec(decimal.New(-987654321, -4)),
		Dec(decimal.New(5, 3)),
		Binary([]byte{0x00, 0xFF, 0x10}),
		Binary(bytes.Repeat([]byte{0xAB}, 1000)),
		Unicode("héllo wörld €"),
	}

	w := NewWriter()
	for _, v := range values {
		w.WriteValue(v)
	}

	r := NewReader(w.Bytes())
	for i, want := range values {
		got, err := r.ReadValue()
		require.NoError(t, err, "item %d", i)
		assert.True(t, want.Equal(got), "item %d: want %v, got %v", i, want, got)
	}
	assert.True(t, r.AtEnd())
}

func TestReaderTruncated(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"short item", []byte{4, itemPosInt, 0x01}},
		{"short extended length", []byte{0, 0x10, 0x00}},
		{"short extended data", []byte{0, 0x10, 0x00, 0x00, 0x00, itemBinary, 'a'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(tt.buf).ReadValue()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTruncated)

			var fe *FramingError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestReaderMalformed(t *testing.T) {
	_, err := NewReader([]byte{3, 0x09, 0x00}).ReadValue()
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = NewReader([]byte{5, itemDouble, 1, 2, 3}).ReadValue()
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = NewReader([]byte{11, itemPosInt, 1, 2, 3, 4, 5, 6, 7, 8, 9}).ReadValue()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReaderReadIntRejectsStrings(t *testing.T) {
	w := NewWriter()
	w.WriteString("12")
	_, err := NewReader(w.Bytes()).ReadInt()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReaderReadString(t *testing.T) {
	w := NewWriter()
	w.WriteString("name")
	w.WriteNull()
	w.WriteInt(7)
	w.WriteString("café")

	r := NewReader(w.Bytes())
	for _, want := range []string{"name", "", "7", "café"} {
		s, err := r.ReadString()
		require.NoError(t, err)
		assert.Equal(t, want, s)
	}
}

func TestReaderReadRaw(t *testing.T) {
	w := NewWriter()
	w.WriteString("h1")
	w.WriteRawUint32(2)
	w.WriteRaw([]byte{0xCA, 0xFE})

	r := NewReader(w.Bytes())
	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "h1", s)

	n, err := r.ReadRawUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	assert.Equal(t, []byte{0xCA, 0xFE}, r.ReadRest())
	assert.Equal(t, 0, r.Remaining())

	_, err = r.ReadRaw(1)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestHeaderRoundTrip(t *testing.T) {
	h := NewRequestHeader(protocol.OpPrepare, 7, 42)
	h.Length = 100
	buf := h.AppendTo(nil)
	require.Len(t, buf, protocol.HeaderSize)

	parsed, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
	assert.Equal(t, protocol.OpPrepare, parsed.Op())
}

func TestHeaderStatus(t *testing.T) {
	h := NewResponseHeader(protocol.Status(-108), 1, 2)
	assert.Equal(t, protocol.Status(-108), h.Status())

	h.SetStatus(protocol.StatusEndOfData)
	assert.Equal(t, protocol.StatusEndOfData, h.Status())
}

func TestParseHeaderTruncated(t *testing.T) {
	_, err := ParseHeader(make([]byte, protocol.HeaderSize-1))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestWriteAndReadMessage(t *testing.T) {
	var buf bytes.Buffer

	body := NewWriter()
	body.WriteString("SELECT 1")
	require.NoError(t, WriteMessage(&buf, NewRequestHeader(protocol.OpDirectQuery, 3, 9), body.Bytes()))

	h, got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(body.Bytes())), h.Length)
	assert.Equal(t, uint32(3), h.Sequence)
	assert.Equal(t, uint32(9), h.StatementID)
	assert.Equal(t, protocol.OpDirectQuery, h.Op())
	assert.Equal(t, body.Bytes(), got)
}

func TestLatin1(t *testing.T) {
	b, ok := EncodeLatin1("Größe")
	require.True(t, ok)
	assert.Equal(t, []byte{'G', 'r', 0xF6, 0xDF, 'e'}, b)
	assert.Equal(t, "Größe", DecodeLatin1(b))

	_, ok = EncodeLatin1("日本")
	assert.False(t, ok)
}

func TestDecimalFits(t *testing.T) {
	assert.True(t, DecimalFits(decimal.New(1, -128)))
	assert.False(t, DecimalFits(decimal.New(1, 200)))
	assert.False(t, DecimalFits(decimal.RequireFromString("123456789012345678901234567890")))
}

func TestCompactDecimal(t *testing.T) {
	tests := []struct {
		in       decimal.Decimal
		coef     int64
		exponent int32
	}{
		{decimal.RequireFromString("1.50000000000000000000"), 15, -1},
		{decimal.RequireFromString("-1200"), -12, 2},
		{decimal.RequireFromString("0.000"), 0, 0},
		{decimal.New(7, 130), 7000, 127},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			got := CompactDecimal(tt.in)
			assert.True(t, got.Equal(tt.in))
			assert.Equal(t, tt.coef, got.Coefficient().Int64())
			assert.Equal(t, tt.exponent, got.Exponent())
			assert.True(t, DecimalFits(got))
		})
	}

	huge := decimal.RequireFromString("123456789012345678901234567890")
	assert.False(t, DecimalFits(CompactDecimal(huge)))
	assert.False(t, DecimalFits(CompactDecimal(decimal.New(1, 200))))
}
