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
	"fmt"

	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/preparser"
	"github.com/multigres/listsql/go/common/sqltypes"
)

// ExecuteMany runs an update once per parameter set in a single request.
// Each row holds one value per placeholder. It returns the summed row count.
func (cur *Cursor) ExecuteMany(ctx context.Context, query string, rows [][]any) (int64, error) {
	ctx, span := startSpan(ctx, "EXECUTE_MANY", query)
	n, err := cur.executeMany(ctx, query, rows)
	endSpan(span, err, n)
	return n, err
}

func (cur *Cursor) executeMany(ctx context.Context, query string, rows [][]any) (int64, error) {
	if err := cur.checkOpen(); err != nil {
		return -1, err
	}
	cur.reset(ctx)
	st, err := cur.parseBatch(query)
	if err != nil {
		return -1, err
	}
	if len(rows) == 0 {
		return -1, misuse(ErrBatchMismatch, "no parameter sets")
	}
	want := st.Placeholders()
	for i, row := range rows {
		if len(row) != want {
			return -1, misuse(ErrBatchMismatch, fmt.Sprintf("set %d has %d values, statement has %d placeholders", i+1, len(row), want))
		}
	}
	return cur.executeBatch(ctx, st, rows)
}

// ExecuteColumnar runs an update with one value slice per placeholder. All
// slices share one length m, except that a slice of m-1 values repeats its
// last value once.
func (cur *Cursor) ExecuteColumnar(ctx context.Context, query string, columns [][]any) (int64, error) {
	ctx, span := startSpan(ctx, "EXECUTE_MANY", query)
	n, err := cur.executeColumnar(ctx, query, columns)
	endSpan(span, err, n)
	return n, err
}

func (cur *Cursor) executeColumnar(ctx context.Context, query string, columns [][]any) (int64, error) {
	if err := cur.checkOpen(); err != nil {
		return -1, err
	}
	cur.reset(ctx)
	st, err := cur.parseBatch(query)
	if err != nil {
		return -1, err
	}
	if want := st.Placeholders(); len(columns) != want {
		return -1, dberrors.Interfacef("statement has %d placeholders but %d parameter columns were given", want, len(columns))
	}
	rows, err := transposeColumns(columns)
	if err != nil {
		return -1, err
	}
	return cur.executeBatch(ctx, st, rows)
}

// transposeColumns turns per-parameter value slices into parameter sets.
func transposeColumns(columns [][]any) ([][]any, error) {
	m := 0
	for _, col := range columns {
		m = max(m, len(col))
	}
	if m == 0 {
		return nil, misuse(ErrBatchMismatch, "no parameter sets")
	}
	for i, col := range columns {
		switch len(col) {
		case m:
		case m - 1:
			if len(col) == 0 {
				return nil, misuse(ErrBatchMismatch, fmt.Sprintf("parameter %d has no values", i+1))
			}
		default:
			return nil, misuse(ErrBatchMismatch, fmt.Sprintf("parameter %d has %d values, expected %d", i+1, len(col), m))
		}
	}
	rows := make([][]any, m)
	for r := range rows {
		row := make([]any, len(columns))
		for i, col := range columns {
			if r < len(col) {
				row[i] = col[r]
			} else {
				row[i] = col[len(col)-1]
			}
		}
		rows[r] = row
	}
	return rows, nil
}

// parseBatch parses a statement that may run with several parameter sets.
func (cur *Cursor) parseBatch(query string) (*preparser.Statement, error) {
	st, err := cur.parse(query)
	if err != nil {
		return nil, err
	}
	switch {
	case st.Kind == preparser.KindQuery:
		return nil, dberrors.Interfacef("queries cannot run with several parameter sets")
	case st.Kind.IsCall():
		return nil, dberrors.Interfacef("procedure calls cannot run with several parameter sets")
	}
	return st, nil
}

// executeBatch validates every set and runs them as one update request.
func (cur *Cursor) executeBatch(ctx context.Context, st *preparser.Statement, rows [][]any) (int64, error) {
	sets := make([][]any, len(rows))
	for i, row := range rows {
		for k, v := range row {
			if isCallMarker(v) {
				return -1, dberrors.Interfacef("set %d parameter %d: output parameters are not allowed in batches", i+1, k+1)
			}
			if err := sqltypes.Validate(v); err != nil {
				return -1, dberrors.Interfacef("set %d parameter %d: %v", i+1, k+1, err)
			}
		}
		sets[i] = st.Merge(row)
	}
	cur.kind = st.Kind
	cur.state = stateParsed
	defer cur.retireStreams()
	err := cur.conn.exclusive(ctx, func() error {
		return cur.runUpdateLocked(st, sets)
	})
	if err != nil {
		cur.state = stateIdle
		return -1, err
	}
	return cur.rowCount, nil
}
