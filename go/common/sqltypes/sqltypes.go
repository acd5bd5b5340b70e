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

// Package sqltypes is the type and parameter model of the driver: the closed
// set of SQL types a server can declare, column and parameter descriptors,
// and the exact conversions between Go host values and wire items.
package sqltypes

import "strconv"

// SQLType is a server type code. The set is closed: every code is listed in
// AllTypes and handled by FromWire.
type SQLType int

const (
	TypeUnknown        SQLType = 0
	TypeBigInt         SQLType = -5
	TypeBinary         SQLType = -2
	TypeBit            SQLType = -7
	TypeChar           SQLType = 1
	TypeDecimal        SQLType = 3
	TypeDouble         SQLType = 8
	TypeFloat          SQLType = 6
	TypeGUID           SQLType = -11
	TypeInteger        SQLType = 4
	TypeLongVarBinary  SQLType = -4
	TypeLongVarChar    SQLType = -1
	TypeNumeric        SQLType = 2
	TypeReal           SQLType = 7
	TypeSmallInt       SQLType = 5
	TypeDate           SQLType = 9
	TypeTime           SQLType = 10
	TypeTimestamp      SQLType = 11
	TypeTinyInt        SQLType = -6
	TypeTypeDate       SQLType = 91
	TypeTypeTime       SQLType = 92
	TypeTypeTimestamp  SQLType = 93
	TypeVarBinary      SQLType = -3
	TypeVarChar        SQLType = 12
	TypeWChar          SQLType = -8
	TypeWLongVarChar   SQLType = -10
	TypeWVarChar       SQLType = -9
	TypeDateHorolog    SQLType = 1091
	TypeTimeHorolog    SQLType = 1092
	TypeTimestampPosix SQLType = 1093
	TypeResultSet      SQLType = -51
)

var typeNames = map[SQLType]string{
	TypeUnknown:        "UNKNOWN",
	TypeBigInt:         "BIGINT",
	TypeBinary:         "BINARY",
	TypeBit:            "BIT",
	TypeChar:           "CHAR",
	TypeDecimal:        "DECIMAL",
	TypeDouble:         "DOUBLE",
	TypeFloat:          "FLOAT",
	TypeGUID:           "GUID",
	TypeInteger:        "INTEGER",
	TypeLongVarBinary:  "LONGVARBINARY",
	TypeLongVarChar:    "LONGVARCHAR",
	TypeNumeric:        "NUMERIC",
	TypeReal:           "REAL",
	TypeSmallInt:       "SMALLINT",
	TypeDate:           "DATE",
	TypeTime:           "TIME",
	TypeTimestamp:      "TIMESTAMP",
	TypeTinyInt:        "TINYINT",
	TypeTypeDate:       "TYPE_DATE",
	TypeTypeTime:       "TYPE_TIME",
	TypeTypeTimestamp:  "TYPE_TIMESTAMP",
	TypeVarBinary:      "VARBINARY",
	TypeVarChar:        "VARCHAR",
	TypeWChar:          "WCHAR",
	TypeWLongVarChar:   "WLONGVARCHAR",
	TypeWVarChar:       "WVARCHAR",
	TypeDateHorolog:    "DATE_HOROLOG",
	TypeTimeHorolog:    "TIME_HOROLOG",
	TypeTimestampPosix: "TIMESTAMP_POSIX",
	TypeResultSet:      "RESULT_SET",
}

// AllTypes returns every known type code.
func AllTypes() []SQLType {
	types := make([]SQLType, 0, len(typeNames))
	for t := range typeNames {
		types = append(types, t)
	}
	return types
}

// Known reports whether t is one of the declared type codes.
func (t SQLType) Known() bool {
	_, ok := typeNames[t]
	return ok
}

func (t SQLType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "SQLTYPE(" + strconv.Itoa(int(t)) + ")"
}

// IsStream reports whether values of t are exchanged through stream handles.
func (t SQLType) IsStream() bool {
	return t == TypeLongVarBinary || t == TypeLongVarChar || t == TypeWLongVarChar
}

// IsBinary reports whether values of t are raw bytes.
func (t SQLType) IsBinary() bool {
	return t == TypeBinary || t == TypeVarBinary || t == TypeLongVarBinary
}

// IsCharacter reports whether values of t are text.
func (t SQLType) IsCharacter() bool {
	switch t {
	case TypeChar, TypeVarChar, TypeLongVarChar, TypeWChar, TypeWVarChar, TypeWLongVarChar:
		return true
	}
	return false
}

// Nullability is the NULL-ability reported for a column or parameter.
type Nullability int

const (
	NoNulls         Nullability = 0
	Nullable        Nullability = 1
	NullableUnknown Nullability = 2
)

// Column describes one result column. Columns are shared read-only by every
// row of a result set.
type Column struct {
	Name      string
	Type      SQLType
	Precision int
	Scale     int
	Nullable  Nullability
	Label     string
	Table     string
	Schema    string
	Catalog   string
	Extra     string
	// Slot is the 1-based position of the column's item in a row.
	Slot int
}
