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
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
)

// ScrollMode selects how Scroll interprets its offset.
type ScrollMode int

const (
	ScrollRelative ScrollMode = iota
	ScrollAbsolute
)

// FetchOne returns the next row, or nil when the result set is exhausted.
func (cur *Cursor) FetchOne(ctx context.Context) ([]any, error) {
	if err := cur.checkResult(); err != nil {
		return nil, err
	}
	ok, err := cur.ensureRow(ctx, cur.pos)
	if err != nil || !ok {
		return nil, err
	}
	row, err := cur.decodeRow(ctx, cur.pos)
	if err != nil {
		return nil, err
	}
	cur.pos++
	return row, nil
}

// FetchMany returns up to n rows. n <= 0 uses ArraySize. Fewer rows are
// returned only at the end of the result set.
func (cur *Cursor) FetchMany(ctx context.Context, n int) ([][]any, error) {
	if err := cur.checkResult(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = max(cur.ArraySize, 1)
	}
	rows := make([][]any, 0, n)
	for len(rows) < n {
		row, err := cur.FetchOne(ctx)
		if err != nil {
			return rows, err
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchAll returns the remaining rows.
func (cur *Cursor) FetchAll(ctx context.Context) ([][]any, error) {
	if err := cur.checkResult(); err != nil {
		return nil, err
	}
	var rows [][]any
	for {
		row, err := cur.FetchOne(ctx)
		if err != nil {
			return rows, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// Scroll moves the position of the next fetch. Relative offsets count from
// the current position; absolute offsets from the first row. A target past
// the end of the result set fails and leaves the position unchanged.
func (cur *Cursor) Scroll(ctx context.Context, offset int, mode ScrollMode) error {
	if err := cur.checkResult(); err != nil {
		return err
	}
	target := cur.pos + offset
	if mode == ScrollAbsolute {
		if offset < 0 {
			return dberrors.Interfacef("absolute scroll target %d is negative", offset)
		}
		target = offset
	}
	if target < 0 {
		return dberrors.Interfacef("scroll target %d is before the first row", target)
	}
	// The position one past the last row is reachable.
	if target > 0 {
		ok, err := cur.ensureRow(ctx, target-1)
		if err != nil {
			return err
		}
		if !ok {
			return dberrors.Interfacef("scroll target %d is past the end of the result set (%d rows)", target, cur.warehouse.len())
		}
	}
	cur.pos = target
	return nil
}

// checkResult rejects fetches when no result set is open.
func (cur *Cursor) checkResult() error {
	if err := cur.checkOpen(); err != nil {
		return err
	}
	if cur.state != stateResultOpen || cur.warehouse == nil {
		return ErrNoResultSet
	}
	return nil
}

// ensureRow fetches pages until row i is materialized. It reports false when
// the result set ends first.
func (cur *Cursor) ensureRow(ctx context.Context, i int) (bool, error) {
	wh := cur.warehouse
	for i >= wh.len() {
		if wh.done {
			return false, nil
		}
		err := cur.conn.exclusive(ctx, cur.fetchPageLocked)
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

// fetchPageLocked reads the next data page of the current result set.
func (cur *Cursor) fetchPageLocked() error {
	c := cur.conn
	resp, err := c.roundTrip(protocol.OpFetchData, cur.stmtID, nil)
	if err != nil {
		return err
	}
	if err := c.expectSuccess(resp); err != nil {
		return err
	}
	last := resp.status() == protocol.StatusEndOfData
	if err := cur.warehouse.add(resp.body, last); err != nil {
		return err
	}
	if last {
		cur.releaseResultLocked()
	}
	return nil
}

// decodeRow converts the items of row i to host values, downloading the
// content of long columns.
func (cur *Cursor) decodeRow(ctx context.Context, i int) ([]any, error) {
	items, err := cur.warehouse.row(i)
	if err != nil {
		return nil, err
	}
	row := make([]any, len(cur.columns))
	for k, col := range cur.columns {
		item := wire.Null()
		if slot := col.Slot - 1; slot >= 0 && slot < len(items) {
			item = items[slot]
		}
		v, err := sqltypes.FromWire(item, col.Type)
		if err != nil {
			return nil, decodeError(col.Name, err)
		}
		if ref, ok := v.(sqltypes.StreamRef); ok {
			if v, err = cur.ReadStream(ctx, ref); err != nil {
				return nil, err
			}
		}
		row[k] = v
	}
	return row, nil
}

func decodeError(name string, err error) error {
	return &dberrors.Error{
		Kind:    dberrors.KindDatabase,
		Message: fmt.Sprintf("cannot decode %q", name),
		Err:     err,
	}
}

// LastRowID returns the key generated by the last single-row insert. After a
// multi-row insert it asks the server for the last identity; otherwise it
// returns nil.
func (cur *Cursor) LastRowID(ctx context.Context) (any, error) {
	if err := cur.checkOpen(); err != nil {
		return nil, err
	}
	if cur.state != stateUpdateDone || cur.rowCount < 1 {
		return nil, nil
	}
	if cur.rowCount > 1 {
		helper := cur.conn.Cursor()
		defer helper.Close()
		if _, err := helper.Execute(ctx, "SELECT LAST_IDENTITY()"); err != nil {
			return nil, err
		}
		row, err := helper.FetchOne(ctx)
		if err != nil || row == nil {
			return nil, err
		}
		return row[0], nil
	}

	var out any
	err := cur.conn.exclusive(ctx, func() error {
		c := cur.conn
		resp, err := c.roundTrip(protocol.OpGeneratedKeys, cur.updateStmtID, nil)
		if err != nil {
			return err
		}
		if err := c.expectSuccess(resp); err != nil {
			return err
		}
		r := resp.reader()
		m := &metaReader{r: r}
		cols := m.readColumns(false)
		if err := m.done(); err != nil {
			return err
		}
		if r.AtEnd() {
			return nil
		}
		item, err := r.ReadValue()
		if err != nil {
			return dberrors.Framing(err)
		}
		typ := sqltypes.TypeUnknown
		if len(cols) > 0 {
			typ = cols[0].Type
		}
		out, err = sqltypes.FromWire(item, typ)
		return err
	})
	return out, err
}
