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

// Package wire implements the typed-list codec of the SQL wire protocol:
// message headers, list items and the cursor-style Reader and Writer used to
// build and decode message bodies.
package wire

import (
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind is the shape of a list item.
type Kind uint8

const (
	KindNull Kind = iota
	KindUndefined
	KindBinary
	KindUnicode
	KindInt
	KindDecimal
	KindDouble
)

var kindNames = [...]string{
	KindNull:      "null",
	KindUndefined: "undefined",
	KindBinary:    "binary",
	KindUnicode:   "unicode",
	KindInt:       "int",
	KindDecimal:   "decimal",
	KindDouble:    "double",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// item type bytes
const (
	itemUndefined  = 0x00
	itemBinary     = 0x01
	itemUnicode    = 0x02
	itemPosInt     = 0x04
	itemNegInt     = 0x05
	itemPosDecimal = 0x06
	itemNegDecimal = 0x07
	itemDouble     = 0x08
)

// Value is one decoded list item. Only the field matching Kind is set.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Dec   decimal.Decimal
	Bytes []byte
	Str   string
}

// Null returns the NULL item.
func Null() Value { return Value{Kind: KindNull} }

// Undefined returns the undefined item, used for output and defaulted parameters.
func Undefined() Value { return Value{Kind: KindUndefined} }

// Int64 returns an integer item.
func Int64(v int64) Value { return Value{Kind: KindInt, Int: v} }

// Float64 returns a double item.
func Float64(f float64) Value { return Value{Kind: KindDouble, Float: f} }

// Dec returns a decimal item. Use DecimalFits to check the range first.
func Dec(d decimal.Decimal) Value { return Value{Kind: KindDecimal, Dec: d} }

// Binary returns a byte string item.
func Binary(b []byte) Value { return Value{Kind: KindBinary, Bytes: b} }

// Unicode returns a UTF-16 string item.
func Unicode(s string) Value { return Value{Kind: KindUnicode, Str: s} }

// Text returns s as an 8-bit byte string when it fits ISO 8859-1 and as a
// unicode item otherwise.
func Text(s string) Value {
	if b, ok := EncodeLatin1(s); ok {
		return Binary(b)
	}
	return Unicode(s)
}

// IsNull reports whether v is NULL or undefined.
func (v Value) IsNull() bool {
	return v.Kind == KindNull || v.Kind == KindUndefined
}

// AsString renders string-like and numeric items as text. Byte strings are
// decoded as ISO 8859-1.
func (v Value) AsString() (string, bool) {
	switch v.Kind {
	case KindBinary:
		return DecodeLatin1(v.Bytes), true
	case KindUnicode:
		return v.Str, true
	case KindInt:
		return strconv.FormatInt(v.Int, 10), true
	case KindDecimal:
		return v.Dec.String(), true
	case KindDouble:
		return strconv.FormatFloat(v.Float, 'g', -1, 64), true
	default:
		return "", false
	}
}

// Equal compares two items by kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindDouble:
		return v.Float == o.Float || (math.IsNaN(v.Float) && math.IsNaN(o.Float))
	case KindDecimal:
		return v.Dec.Equal(o.Dec)
	case KindBinary:
		return string(v.Bytes) == string(o.Bytes)
	case KindUnicode:
		return v.Str == o.Str
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull, KindUndefined:
		return v.Kind.String()
	case KindBinary:
		return fmt.Sprintf("binary(%q)", v.Bytes)
	default:
		s, _ := v.AsString()
		return s
	}
}

// DecimalFits reports whether d can be encoded as a decimal item: an int64
// coefficient and an exponent in the int8 range.
func DecimalFits(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp < math.MinInt8 || exp > math.MaxInt8 {
		return false
	}
	return d.Coefficient().IsInt64()
}

// CompactDecimal returns d with trailing zeros of its coefficient moved into
// the exponent, or with an exponent above the int8 range moved into the
// coefficient. The value is unchanged; only its representation is.
func CompactDecimal(d decimal.Decimal) decimal.Decimal {
	coef, exp := d.Coefficient(), d.Exponent()
	if coef.Sign() == 0 {
		return decimal.Zero
	}
	ten := big.NewInt(10)
	if exp > math.MaxInt8 {
		// An int64 holds at most 19 digits.
		if exp-math.MaxInt8 > 19 {
			return d
		}
		for ; exp > math.MaxInt8; exp-- {
			coef.Mul(coef, ten)
		}
		return decimal.NewFromBigInt(coef, exp)
	}
	q, r := new(big.Int), new(big.Int)
	for exp < math.MaxInt8 {
		q.QuoRem(coef, ten, r)
		if r.Sign() != 0 {
			break
		}
		coef.Set(q)
		exp++
	}
	return decimal.NewFromBigInt(coef, exp)
}
