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

package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/multigres/listsql/go/common/preparser"
	"github.com/multigres/listsql/go/common/sqltypes"
)

// cursorState tracks where a cursor is in executing a statement.
type cursorState int

const (
	stateIdle cursorState = iota
	stateParsed
	stateDirectExecuting
	statePreparedExecuting
	stateResultOpen
	stateUpdateDone
	stateClosed
)

var stateNames = map[cursorState]string{
	stateIdle:              "idle",
	stateParsed:            "parsed",
	stateDirectExecuting:   "direct-executing",
	statePreparedExecuting: "prepared-executing",
	stateResultOpen:        "result-open",
	stateUpdateDone:        "update-done",
	stateClosed:            "closed",
}

func (s cursorState) String() string {
	return stateNames[s]
}

// ColumnDescription describes one result column.
type ColumnDescription struct {
	Name      string
	Type      sqltypes.SQLType
	Precision int
	Scale     int
	Nullable  sqltypes.Nullability
}

// Cursor executes statements and iterates their results. A cursor is used
// by one goroutine at a time; several cursors may share a connection.
type Cursor struct {
	conn   *Conn
	logger *slog.Logger

	// ArraySize is the number of rows FetchMany returns when asked for zero.
	ArraySize int

	// MaxRows caps the rows of a query result. Zero means no limit.
	MaxRows int

	state cursorState
	kind  preparser.Kind

	// stmt describes the statement whose result is current; stmtID is the
	// server statement id the result lives under.
	stmt   *CachedStatement
	stmtID uint32
	params []*sqltypes.Parameter

	rowCount int64
	// updateStmtID is the statement of the last update, for generated keys.
	updateStmtID uint32

	columns   []*sqltypes.Column
	warehouse *warehouse
	pos       int

	// multi is set while a procedure's results are read through get-more-
	// results requests; mrsDone once the server reported the last one.
	multi   bool
	mrsDone bool
	// procID is the statement id of the last procedure call.
	procID uint32

	outputs     []any
	returnValue bool
	mismatch    bool

	// streams are the handles uploaded for the current statement.
	streams []*StreamHandle

	// timeout is the statement timeout in seconds sent with executes.
	timeout int
}

func newCursor(c *Conn) *Cursor {
	return &Cursor{
		conn:      c,
		logger:    c.logger,
		ArraySize: c.config.FetchSize,
		rowCount:  -1,
	}
}

// checkOpen rejects operations on a closed cursor or connection.
func (cur *Cursor) checkOpen() error {
	if cur.state == stateClosed {
		return ErrCursorClosed
	}
	if cur.conn.IsClosed() {
		return ErrConnClosed
	}
	return nil
}

// reset discards the previous statement's results.
func (cur *Cursor) reset(ctx context.Context) {
	cur.conn.bufmu.Lock()
	cur.releaseResultLocked()
	cur.conn.bufmu.Unlock()

	cur.state = stateIdle
	cur.kind = 0
	cur.stmt = nil
	cur.params = nil
	cur.rowCount = -1
	cur.columns = nil
	cur.warehouse = nil
	cur.pos = 0
	cur.multi = false
	cur.mrsDone = false
	cur.procID = 0
	cur.outputs = nil
	cur.returnValue = false
	cur.mismatch = false
	cur.timeout = 0
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			cur.timeout = int(d / time.Second)
		}
	}
}

// releaseResultLocked frees the server statement id held for paging.
func (cur *Cursor) releaseResultLocked() {
	if cur.stmtID != 0 && cur.conn.busy[cur.stmtID] == cur {
		delete(cur.conn.busy, cur.stmtID)
	}
	cur.stmtID = 0
}

// Close releases buffered rows. It does not interrupt a request in flight
// on the connection. Every later operation fails with ErrCursorClosed.
func (cur *Cursor) Close() error {
	if cur.state == stateClosed {
		return nil
	}
	cur.conn.bufmu.Lock()
	cur.releaseResultLocked()
	cur.conn.bufmu.Unlock()
	cur.retireStreams()
	cur.warehouse = nil
	cur.columns = nil
	cur.outputs = nil
	cur.state = stateClosed
	return nil
}

// Description returns the columns of the current result set, or nil.
func (cur *Cursor) Description() []ColumnDescription {
	if cur.columns == nil {
		return nil
	}
	desc := make([]ColumnDescription, len(cur.columns))
	for i, col := range cur.columns {
		desc[i] = ColumnDescription{
			Name:      col.Name,
			Type:      col.Type,
			Precision: col.Precision,
			Scale:     col.Scale,
			Nullable:  col.Nullable,
		}
	}
	return desc
}

// Columns returns the full column descriptors of the current result set.
// They are shared and must not be modified.
func (cur *Cursor) Columns() []*sqltypes.Column {
	return cur.columns
}

// RowCount returns the rows affected by the last update, the rows read so
// far from the current result set, or -1.
func (cur *Cursor) RowCount() int64 {
	if cur.state == stateResultOpen && cur.warehouse != nil {
		return int64(cur.warehouse.len())
	}
	return cur.rowCount
}

// RowNumber returns the index of the next row to fetch.
func (cur *Cursor) RowNumber() int {
	return cur.pos
}

// OutputParameters returns the output values of the last procedure call.
func (cur *Cursor) OutputParameters() []any {
	return cur.outputs
}

// HasReturnValue reports whether OutputParameters starts with the
// procedure's return value.
func (cur *Cursor) HasReturnValue() bool {
	return cur.returnValue
}

// ParameterMismatch reports whether the last procedure call's parameter
// list disagreed with the server's.
func (cur *Cursor) ParameterMismatch() bool {
	return cur.mismatch
}

// Parameters returns the parameter descriptors bound by the last execute.
func (cur *Cursor) Parameters() []*sqltypes.Parameter {
	return cur.params
}
