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

package sqltypes

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/multigres/listsql/go/common/wire"
)

var (
	// ErrUnsupportedType is returned when a host value has no wire form.
	ErrUnsupportedType = errors.New("unsupported parameter type")

	// ErrConversion is returned when a value cannot take the requested type.
	ErrConversion = errors.New("cannot convert value")
)

// Handle is implemented by values that stand for an uploaded stream. They
// are sent as their handle string.
type Handle interface {
	StreamHandle() string
}

// StreamRef is returned by FromWire for long columns. The cursor replaces it
// with the stream content.
type StreamRef struct {
	Handle string
	Binary bool
}

// Validate reports whether v can be bound as a parameter.
func Validate(v any) error {
	_, err := ToWire(v, TypeUnknown)
	return err
}

// ToWire converts a host value to a wire item. The declared type, when the
// server supplied one, picks among equivalent encodings; TypeUnknown infers
// the encoding from the Go type.
func ToWire(v any, declared SQLType) (wire.Value, error) {
	switch x := v.(type) {
	case nil:
		return wire.Null(), nil
	case wire.Value:
		return x, nil
	case Handle:
		return wire.Text(x.StreamHandle()), nil
	case bool:
		if x {
			return wire.Int64(1), nil
		}
		return wire.Int64(0), nil
	case int:
		return intToWire(int64(x), declared), nil
	case int8:
		return intToWire(int64(x), declared), nil
	case int16:
		return intToWire(int64(x), declared), nil
	case int32:
		return intToWire(int64(x), declared), nil
	case int64:
		return intToWire(x, declared), nil
	case uint:
		return uintToWire(uint64(x), declared)
	case uint8:
		return intToWire(int64(x), declared), nil
	case uint16:
		return intToWire(int64(x), declared), nil
	case uint32:
		return intToWire(int64(x), declared), nil
	case uint64:
		return uintToWire(x, declared)
	case float32:
		return floatToWire(float64(x), declared)
	case float64:
		return floatToWire(x, declared)
	case decimal.Decimal:
		return decimalToWire(x, declared)
	case string:
		return stringToWire(x, declared)
	case []byte:
		if x == nil {
			return wire.Null(), nil
		}
		return wire.Binary(x), nil
	case time.Time:
		return timeToWire(x, declared), nil
	case TimeOfDay:
		return timeOfDayToWire(x, declared), nil
	case uuid.UUID:
		return wire.Text(x.String()), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return wire.Value{}, fmt.Errorf("%w: %T: %v", ErrConversion, v, err)
		}
		return ToWire(dv, declared)
	default:
		return wire.Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func intToWire(v int64, declared SQLType) wire.Value {
	switch declared {
	case TypeDecimal, TypeNumeric:
		return wire.Dec(decimal.NewFromInt(v))
	case TypeDouble, TypeFloat, TypeReal:
		return wire.Float64(float64(v))
	}
	return wire.Int64(v)
}

func uintToWire(v uint64, declared SQLType) (wire.Value, error) {
	if v > math.MaxInt64 {
		return wire.Value{}, fmt.Errorf("%w: %d overflows a signed 64-bit integer", ErrConversion, v)
	}
	return intToWire(int64(v), declared), nil
}

func floatToWire(f float64, declared SQLType) (wire.Value, error) {
	switch declared {
	case TypeDecimal, TypeNumeric:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return wire.Value{}, fmt.Errorf("%w: %v is not a decimal", ErrConversion, f)
		}
		return decimalToWire(decimal.NewFromFloat(f), declared)
	case TypeBigInt, TypeInteger, TypeSmallInt, TypeTinyInt:
		if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return wire.Int64(int64(f)), nil
		}
	}
	return wire.Float64(f), nil
}

func decimalToWire(d decimal.Decimal, declared SQLType) (wire.Value, error) {
	switch declared {
	case TypeDouble, TypeFloat, TypeReal:
		return wire.Float64(d.InexactFloat64()), nil
	}
	if !wire.DecimalFits(d) {
		d = wire.CompactDecimal(d)
		if !wire.DecimalFits(d) {
			return wire.Value{}, fmt.Errorf("%w: decimal %s is out of range", ErrConversion, d)
		}
	}
	return wire.Dec(d), nil
}

func stringToWire(s string, declared SQLType) (wire.Value, error) {
	if declared == TypeGUID {
		if _, err := uuid.Parse(s); err != nil {
			return wire.Value{}, fmt.Errorf("%w: %q is not a GUID", ErrConversion, s)
		}
	}
	return wire.Text(s), nil
}

func timeToWire(t time.Time, declared SQLType) wire.Value {
	switch declared {
	case TypeDateHorolog:
		return wire.Int64(DateToHorolog(t))
	case TypeTimestampPosix:
		return wire.Int64(TimeToPosix(t))
	case TypeTimeHorolog:
		return wire.Int64(TimeOfDayOf(t).Seconds())
	case TypeDate, TypeTypeDate:
		return wire.Text(t.Format(DateLayout))
	case TypeTime, TypeTypeTime:
		return wire.Text(TimeOfDayOf(t).String())
	}
	return wire.Text(t.Format(TimestampLayout))
}

func timeOfDayToWire(t TimeOfDay, declared SQLType) wire.Value {
	if declared == TypeTimeHorolog {
		if t.Nanosecond == 0 {
			return wire.Int64(t.Seconds())
		}
		return wire.Dec(decimal.New(t.Seconds()*1e9+int64(t.Nanosecond), -9))
	}
	return wire.Text(t.String())
}

// FromWire converts a wire item to the host value for a column or parameter
// of type t. NULL and undefined items convert to nil.
func FromWire(v wire.Value, t SQLType) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch t {
	case TypeUnknown:
		return natural(v), nil
	case TypeBigInt, TypeInteger, TypeSmallInt, TypeTinyInt:
		return toInt64(v)
	case TypeBit:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return i != 0, nil
	case TypeDecimal, TypeNumeric:
		return toDecimal(v)
	case TypeDouble, TypeFloat, TypeReal:
		return toFloat64(v)
	case TypeChar, TypeVarChar, TypeWChar, TypeWVarChar:
		return toString(v)
	case TypeBinary, TypeVarBinary:
		return toBytes(v)
	case TypeLongVarBinary:
		return toStreamRef(v, true)
	case TypeLongVarChar, TypeWLongVarChar:
		return toStreamRef(v, false)
	case TypeGUID:
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a GUID", ErrConversion, s)
		}
		return id, nil
	case TypeDate, TypeTypeDate:
		if v.Kind == wire.KindInt {
			return HorologToDate(v.Int), nil
		}
		return parseLayout(v, DateLayout)
	case TypeTime, TypeTypeTime:
		if v.Kind == wire.KindInt {
			return TimeOfDayFromSeconds(v.Int), nil
		}
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		return ParseTimeOfDay(s)
	case TypeTimestamp, TypeTypeTimestamp:
		return parseLayout(v, TimestampLayout)
	case TypeDateHorolog:
		days, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return HorologToDate(days), nil
	case TypeTimeHorolog:
		return horologTime(v)
	case TypeTimestampPosix:
		if v.Kind != wire.KindInt {
			return parseLayout(v, TimestampLayout)
		}
		return PosixToTime(v.Int), nil
	case TypeResultSet:
		return toString(v)
	default:
		return nil, fmt.Errorf("%w: unknown SQL type %d", ErrConversion, int(t))
	}
}

// natural decodes an item without type information.
func natural(v wire.Value) any {
	switch v.Kind {
	case wire.KindInt:
		return v.Int
	case wire.KindDouble:
		return v.Float
	case wire.KindDecimal:
		return v.Dec
	default:
		s, _ := v.AsString()
		return s
	}
}

func conversionError(v wire.Value, target string) error {
	return fmt.Errorf("%w: %s item to %s", ErrConversion, v.Kind, target)
}

func toInt64(v wire.Value) (int64, error) {
	switch v.Kind {
	case wire.KindInt:
		return v.Int, nil
	case wire.KindDecimal:
		if v.Dec.Equal(v.Dec.Truncate(0)) && v.Dec.Coefficient().IsInt64() {
			return v.Dec.IntPart(), nil
		}
	case wire.KindDouble:
		if v.Float == math.Trunc(v.Float) && math.Abs(v.Float) < 1<<63 {
			return int64(v.Float), nil
		}
	case wire.KindBinary, wire.KindUnicode:
		s, _ := v.AsString()
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i, nil
		}
	}
	return 0, conversionError(v, "integer")
}

func toDecimal(v wire.Value) (decimal.Decimal, error) {
	switch v.Kind {
	case wire.KindDecimal:
		return v.Dec, nil
	case wire.KindInt:
		return decimal.NewFromInt(v.Int), nil
	case wire.KindDouble:
		return decimal.NewFromFloat(v.Float), nil
	case wire.KindBinary, wire.KindUnicode:
		s, _ := v.AsString()
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return d, nil
		}
	}
	return decimal.Decimal{}, conversionError(v, "decimal")
}

func toFloat64(v wire.Value) (float64, error) {
	switch v.Kind {
	case wire.KindDouble:
		return v.Float, nil
	case wire.KindInt:
		return float64(v.Int), nil
	case wire.KindDecimal:
		return v.Dec.InexactFloat64(), nil
	case wire.KindBinary, wire.KindUnicode:
		s, _ := v.AsString()
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, nil
		}
	}
	return 0, conversionError(v, "float")
}

func toString(v wire.Value) (string, error) {
	s, ok := v.AsString()
	if !ok {
		return "", conversionError(v, "string")
	}
	return s, nil
}

func toBytes(v wire.Value) ([]byte, error) {
	switch v.Kind {
	case wire.KindBinary:
		return append([]byte{}, v.Bytes...), nil
	case wire.KindUnicode:
		return []byte(v.Str), nil
	}
	return nil, conversionError(v, "bytes")
}

func toStreamRef(v wire.Value, binary bool) (any, error) {
	s, err := toString(v)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	return StreamRef{Handle: s, Binary: binary}, nil
}

func parseLayout(v wire.Value, layout string) (time.Time, error) {
	s, err := toString(v)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(layout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q does not match %q", ErrConversion, s, layout)
	}
	return t, nil
}

func horologTime(v wire.Value) (TimeOfDay, error) {
	switch v.Kind {
	case wire.KindInt:
		return TimeOfDayFromSeconds(v.Int), nil
	case wire.KindDecimal:
		whole := v.Dec.IntPart()
		nanos := v.Dec.Sub(decimal.NewFromInt(whole)).Shift(9).IntPart()
		tod := TimeOfDayFromSeconds(whole)
		tod.Nanosecond = int(nanos)
		return tod, nil
	case wire.KindDouble:
		whole := math.Floor(v.Float)
		tod := TimeOfDayFromSeconds(int64(whole))
		tod.Nanosecond = int(math.Round((v.Float - whole) * 1e9))
		return tod, nil
	}
	s, err := toString(v)
	if err != nil {
		return TimeOfDay{}, err
	}
	return ParseTimeOfDay(s)
}
