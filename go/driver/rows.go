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

package driver

import (
	"context"
	"database/sql/driver"
	"io"
	"reflect"
	"time"

	"github.com/multigres/listsql/go/client"
	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/sqltypes"
)

// rows streams a cursor's result set. Pages are fetched as Next reaches
// them, under the context of the query.
type rows struct {
	ctx context.Context
	cur *client.Cursor
}

// Columns returns the names of the columns.
func (r *rows) Columns() []string {
	cols := r.cur.Columns()
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}

// Close releases the cursor.
func (r *rows) Close() error {
	return r.cur.Close()
}

// Next is called to populate the next row of data into the provided slice.
func (r *rows) Next(dest []driver.Value) error {
	if r.cur.Columns() == nil {
		return io.EOF
	}
	row, err := r.cur.FetchOne(r.ctx)
	if err != nil {
		return err
	}
	if row == nil {
		return io.EOF
	}
	if len(dest) != len(row) {
		return dberrors.Interfacef("destination has %d values, row has %d", len(dest), len(row))
	}
	for i, v := range row {
		dest[i] = driverValue(v)
	}
	return nil
}

// HasNextResultSet is always true: only the server knows whether a
// procedure has more results, and NextResultSet asks it.
func (r *rows) HasNextResultSet() bool {
	return true
}

// NextResultSet advances to the next result set of a procedure, skipping
// update counts.
func (r *rows) NextResultSet() error {
	for {
		more, err := r.cur.NextSet(r.ctx)
		if err != nil {
			return err
		}
		if !more {
			return io.EOF
		}
		if r.cur.Columns() != nil {
			return nil
		}
	}
}

// ColumnTypeDatabaseTypeName returns the SQL type name, e.g. "VARCHAR".
func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	return r.cur.Columns()[index].Type.String()
}

// ColumnTypeNullable reports the column's NULL-ability.
func (r *rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	switch r.cur.Columns()[index].Nullable {
	case sqltypes.NoNulls:
		return false, true
	case sqltypes.Nullable:
		return true, true
	}
	return false, false
}

// ColumnTypePrecisionScale reports precision and scale of numeric columns.
func (r *rows) ColumnTypePrecisionScale(index int) (precision, scale int64, ok bool) {
	col := r.cur.Columns()[index]
	switch col.Type {
	case sqltypes.TypeDecimal, sqltypes.TypeNumeric:
		return int64(col.Precision), int64(col.Scale), true
	}
	return 0, 0, false
}

// ColumnTypeLength reports the declared length of character and binary
// columns.
func (r *rows) ColumnTypeLength(index int) (length int64, ok bool) {
	col := r.cur.Columns()[index]
	if col.Type.IsCharacter() || col.Type.IsBinary() {
		return int64(col.Precision), true
	}
	return 0, false
}

var (
	scanInt64  = reflect.TypeFor[int64]()
	scanBool   = reflect.TypeFor[bool]()
	scanFloat  = reflect.TypeFor[float64]()
	scanString = reflect.TypeFor[string]()
	scanBytes  = reflect.TypeFor[[]byte]()
	scanTime   = reflect.TypeFor[time.Time]()
	scanAny    = reflect.TypeFor[any]()
)

// ColumnTypeScanType returns the Go type Next stores for the column.
func (r *rows) ColumnTypeScanType(index int) reflect.Type {
	switch t := r.cur.Columns()[index].Type; t {
	case sqltypes.TypeBigInt, sqltypes.TypeInteger, sqltypes.TypeSmallInt, sqltypes.TypeTinyInt:
		return scanInt64
	case sqltypes.TypeBit:
		return scanBool
	case sqltypes.TypeDouble, sqltypes.TypeFloat, sqltypes.TypeReal:
		return scanFloat
	case sqltypes.TypeDate, sqltypes.TypeTypeDate, sqltypes.TypeTimestamp, sqltypes.TypeTypeTimestamp,
		sqltypes.TypeDateHorolog, sqltypes.TypeTimestampPosix:
		return scanTime
	case sqltypes.TypeDecimal, sqltypes.TypeNumeric, sqltypes.TypeGUID,
		sqltypes.TypeTime, sqltypes.TypeTypeTime, sqltypes.TypeTimeHorolog, sqltypes.TypeResultSet:
		return scanString
	default:
		switch {
		case t.IsBinary():
			return scanBytes
		case t.IsCharacter():
			return scanString
		}
	}
	return scanAny
}

// result reports the outcome of an Exec. The generated key is requested
// only when LastInsertId is called.
type result struct {
	cur *client.Cursor
}

// LastInsertId returns the key generated by the statement.
func (r *result) LastInsertId() (int64, error) {
	id, err := r.cur.LastRowID(context.Background())
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, dberrors.Interfacef("statement generated no key")
	}
	switch v := driverValue(id).(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	}
	return 0, dberrors.Interfacef("generated key %v is not an integer", id)
}

// RowsAffected returns the number of rows affected by the statement.
func (r *result) RowsAffected() (int64, error) {
	return r.cur.RowCount(), nil
}

var (
	_ driver.Rows                           = (*rows)(nil)
	_ driver.RowsNextResultSet              = (*rows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*rows)(nil)
	_ driver.RowsColumnTypeNullable         = (*rows)(nil)
	_ driver.RowsColumnTypePrecisionScale   = (*rows)(nil)
	_ driver.RowsColumnTypeLength           = (*rows)(nil)
	_ driver.RowsColumnTypeScanType         = (*rows)(nil)
	_ driver.Result                         = (*result)(nil)
)
