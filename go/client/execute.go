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
	"errors"

	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/preparser"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
)

// errStale is returned by prepared executes the server answered with a
// stale statement status. It never leaves the package.
var errStale = errors.New("stale prepared statement")

// Execute runs one statement. Queries open a result set read with the Fetch
// methods and return -1; updates return the affected row count. Texts of the
// form CALL p(?), ? = CALL p(?) or {call p(?)} run a stored procedure.
func (cur *Cursor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	ctx, span := startSpan(ctx, "EXECUTE", query)
	n, err := cur.execute(ctx, query, args)
	endSpan(span, err, n)
	return n, err
}

func (cur *Cursor) execute(ctx context.Context, query string, args []any) (int64, error) {
	if err := cur.checkOpen(); err != nil {
		return -1, err
	}
	cur.reset(ctx)
	st, err := cur.parse(query)
	if err != nil {
		return -1, err
	}

	switch {
	case st.Kind.IsCall():
		return cur.executeCall(ctx, st, args)
	case st.IsMultiValuesInsert():
		if err := checkArgs(st, args); err != nil {
			return -1, err
		}
		mv := st.ExpandMultiValues(args)
		batch, err := preparser.Parse(mv.Query, preparser.Options{})
		if err != nil {
			return -1, dberrors.Interface(err)
		}
		cur.logger.Debug("expanded multi-values insert", "rows", len(mv.Rows))
		return cur.executeBatch(ctx, batch, mv.Rows)
	}

	if err := checkArgs(st, args); err != nil {
		return -1, err
	}
	values := st.Merge(args)
	cur.kind = st.Kind
	cur.state = stateParsed
	defer cur.retireStreams()

	if st.Kind == preparser.KindQuery {
		err = cur.conn.exclusive(ctx, func() error {
			return cur.runQueryLocked(st, values)
		})
	} else {
		err = cur.conn.exclusive(ctx, func() error {
			return cur.runUpdateLocked(st, [][]any{values})
		})
	}
	if err != nil {
		cur.state = stateIdle
		return -1, err
	}
	return cur.rowCount, nil
}

func (cur *Cursor) parse(query string) (*preparser.Statement, error) {
	st, err := preparser.Parse(query, preparser.Options{
		ParameterizeLiterals: cur.conn.config.ParameterizeLiterals,
	})
	if err != nil {
		return nil, dberrors.Interface(err)
	}
	return st, nil
}

// checkArgs validates caller values before anything is sent.
func checkArgs(st *preparser.Statement, args []any) error {
	if want := st.Placeholders(); len(args) != want {
		return dberrors.Interfacef("statement has %d placeholders but %d values were given", want, len(args))
	}
	for i, v := range args {
		if isCallMarker(v) {
			return dberrors.Interfacef("parameter %d: output parameters are only valid in procedure calls", i+1)
		}
		if err := sqltypes.Validate(v); err != nil {
			return dberrors.Interfacef("parameter %d: %v", i+1, err)
		}
	}
	return nil
}

// runQueryLocked executes a query through the cache when it can, falling
// back to a direct query once when the prepared statement went stale.
func (cur *Cursor) runQueryLocked(st *preparser.Statement, values []any) error {
	c := cur.conn
	if cached, ok := c.cache.get(st.Text); ok {
		// Another cursor still pages a result under this id.
		if c.busy[cached.ID] == nil {
			cur.state = statePreparedExecuting
			err := cur.preparedQueryLocked(cached, st.Markers, values)
			if !errors.Is(err, errStale) {
				return err
			}
			cur.logger.Debug("prepared statement is stale, executing directly", "stmt_id", cached.ID)
			c.cache.remove(st.Text)
		}
	}
	cur.state = stateDirectExecuting
	return cur.directQueryLocked(st, values)
}

func (cur *Cursor) preparedQueryLocked(cached *CachedStatement, markers []string, values []any) error {
	c := cur.conn
	params, sets, err := cur.bindLocked(cached.Params, cached.Feature, markers, [][]any{values})
	if err != nil {
		return err
	}
	w := wire.NewWriter()
	writeParameterBlock(w, sets)
	w.WriteInt(int64(cur.timeout))
	w.WriteInt(int64(cur.MaxRows))
	resp, err := c.roundTrip(protocol.OpPreparedQuery, cached.ID, w.Bytes())
	if err != nil {
		return err
	}
	if resp.status() == protocol.StatusStaleStatement {
		return errStale
	}
	if err := c.expectSuccess(resp); err != nil {
		return err
	}
	cur.stmt = cached
	cur.params = params
	return cur.openResultLocked(cached.Columns, cached.rowWidth(), cached.ID, resp.body, resp.status() == protocol.StatusEndOfData)
}

func (cur *Cursor) directQueryLocked(st *preparser.Statement, values []any) error {
	c := cur.conn
	params, sets, err := cur.bindLocked(nil, protocol.FeatureNone, st.Markers, [][]any{values})
	if err != nil {
		return err
	}
	id := c.nextStatementID()
	w := wire.NewWriter()
	w.WriteInt(1)
	w.WriteString(st.Text)
	writeParamInfo(w, st.Markers)
	writeParameterBlock(w, sets)
	w.WriteInt(int64(cur.timeout))
	w.WriteInt(int64(cur.MaxRows))
	seq, err := c.send(protocol.OpDirectQuery, id, w.Bytes())
	if err != nil {
		return err
	}

	resp, err := c.receiveChecked(seq, id)
	if err != nil {
		return err
	}
	if err := c.expectSuccess(resp); err != nil {
		return err
	}
	meta := &CachedStatement{ID: id, Text: st.Text, Kind: st.Kind}
	cacheable, err := readStatementMetadata(resp.reader(), meta)
	if err != nil {
		return err
	}
	cur.admitLocked(meta, cacheable)

	page, err := c.receiveChecked(seq, id)
	if err != nil {
		return err
	}
	if err := c.expectSuccess(page); err != nil {
		return err
	}
	cur.stmt = meta
	cur.params = params
	return cur.openResultLocked(meta.Columns, meta.rowWidth(), id, page.body, page.status() == protocol.StatusEndOfData)
}

// runUpdateLocked executes an update or DDL statement with one or more
// parameter sets and sums the per-set counts into the row count.
func (cur *Cursor) runUpdateLocked(st *preparser.Statement, rows [][]any) error {
	c := cur.conn
	var counts []int64
	var err error
	if st.Kind.IsDDL() {
		cur.state = stateDirectExecuting
		counts, err = cur.directUpdateLocked(st, rows)
	} else {
		cached, ok := c.cache.get(st.Text)
		if !ok {
			if cached, err = cur.prepareLocked(st); err != nil {
				return err
			}
		}
		cur.state = statePreparedExecuting
		counts, err = cur.preparedUpdateLocked(cached, st.Markers, rows)
		if errors.Is(err, errStale) {
			cur.logger.Debug("prepared statement is stale, executing directly", "stmt_id", cached.ID)
			c.cache.remove(st.Text)
			cur.state = stateDirectExecuting
			counts, err = cur.directUpdateLocked(st, rows)
		}
	}
	if err != nil {
		return err
	}
	cur.rowCount = sumCounts(counts)
	cur.state = stateUpdateDone
	return nil
}

// sumCounts adds the non-negative counts. It returns -1 when no set
// reported one.
func sumCounts(counts []int64) int64 {
	total := int64(-1)
	for _, n := range counts {
		if n < 0 {
			continue
		}
		if total < 0 {
			total = 0
		}
		total += n
	}
	return total
}

// prepareLocked prepares a statement and admits it to the cache when the
// server allows it.
func (cur *Cursor) prepareLocked(st *preparser.Statement) (*CachedStatement, error) {
	c := cur.conn
	id := c.nextStatementID()
	w := wire.NewWriter()
	w.WriteInt(1)
	w.WriteString(st.Text)
	writeParamInfo(w, st.Markers)
	resp, err := c.roundTrip(protocol.OpPrepare, id, w.Bytes())
	if err != nil {
		return nil, err
	}
	if err := c.expectSuccess(resp); err != nil {
		return nil, err
	}
	meta := &CachedStatement{ID: id, Text: st.Text, Kind: st.Kind}
	cacheable, err := readStatementMetadata(resp.reader(), meta)
	if err != nil {
		return nil, err
	}
	cur.admitLocked(meta, cacheable)
	return meta, nil
}

func (cur *Cursor) preparedUpdateLocked(cached *CachedStatement, markers []string, rows [][]any) ([]int64, error) {
	c := cur.conn
	params, sets, err := cur.bindLocked(cached.Params, cached.Feature, markers, rows)
	if err != nil {
		return nil, err
	}
	w := wire.NewWriter()
	w.WriteInt(protocol.NoGeneratedKeyColumn)
	w.WriteInt(0)
	writeParameterBlock(w, sets)
	resp, err := c.roundTrip(protocol.OpPreparedUpdate, cached.ID, w.Bytes())
	if err != nil {
		return nil, err
	}
	if resp.status() == protocol.StatusStaleStatement {
		return nil, errStale
	}
	if err := c.expectSuccess(resp); err != nil {
		return nil, err
	}
	counts, err := readCounts(resp.reader(), len(sets))
	if err != nil {
		return nil, err
	}
	cur.stmt = cached
	cur.params = params
	cur.updateStmtID = cached.ID
	return counts, nil
}

func (cur *Cursor) directUpdateLocked(st *preparser.Statement, rows [][]any) ([]int64, error) {
	c := cur.conn
	params, sets, err := cur.bindLocked(nil, protocol.FeatureNone, st.Markers, rows)
	if err != nil {
		return nil, err
	}
	id := c.nextStatementID()
	w := wire.NewWriter()
	w.WriteInt(1)
	w.WriteString(st.Text)
	writeParamInfo(w, st.Markers)
	w.WriteInt(protocol.NoGeneratedKeyColumn)
	w.WriteInt(0)
	writeParameterBlock(w, sets)
	resp, err := c.roundTrip(protocol.OpDirectUpdate, id, w.Bytes())
	if err != nil {
		return nil, err
	}
	if err := c.expectSuccess(resp); err != nil {
		return nil, err
	}

	r := resp.reader()
	meta := &CachedStatement{ID: id, Text: st.Text, Kind: st.Kind}
	m := &metaReader{r: r}
	meta.Params = m.readParams(false)
	cacheable := m.int() != 0
	if err := m.done(); err != nil {
		return nil, err
	}
	counts, err := readCounts(r, len(sets))
	if err != nil {
		return nil, err
	}
	cur.admitLocked(meta, cacheable)
	cur.stmt = meta
	cur.params = params
	cur.updateStmtID = id
	return counts, nil
}

// admitLocked offers a freshly described statement to the cache. DDL is
// never cached.
func (cur *Cursor) admitLocked(meta *CachedStatement, cacheable bool) {
	if !cacheable || meta.Kind.IsDDL() {
		return
	}
	if cur.conn.cache.put(meta) {
		cur.logger.Debug("statement cached", "stmt_id", meta.ID)
	} else {
		cur.logger.Debug("statement cache full", "stmt_id", meta.ID)
	}
}

// bindLocked converts rows of caller values into parameter sets. declared
// holds the server's descriptors, nil on the direct path. Under the
// fast-insert layout values are placed at their descriptor's slot.
func (cur *Cursor) bindLocked(declared []*sqltypes.Parameter, feature protocol.Feature, markers []string, rows [][]any) ([]*sqltypes.Parameter, [][]wire.Value, error) {
	width := len(markers)
	params := sqltypes.CloneParameters(declared)
	for len(params) < width {
		params = append(params, &sqltypes.Parameter{Slot: len(params) + 1})
	}
	for i, p := range params {
		if i < width && markers[i] == protocol.MarkerLiteral {
			p.Mode = sqltypes.ModeReplacedLiteral
		} else if p.Mode == sqltypes.ModeUnknown {
			p.Mode = sqltypes.ModeInput
		}
	}

	sets := make([][]wire.Value, len(rows))
	for i, row := range rows {
		set := make([]wire.Value, len(params))
		for k := range set {
			set[k] = wire.Undefined()
		}
		for k, v := range row {
			if k >= len(params) {
				break
			}
			p := params[k]
			p.Bind(v)
			pos := k
			if feature == protocol.FeatureFastInsert && p.Slot >= 1 && p.Slot <= len(set) {
				pos = p.Slot - 1
			}
			val, err := cur.bindValueLocked(v, p.Type)
			if err != nil {
				return nil, nil, err
			}
			set[pos] = val
		}
		sets[i] = set
	}
	return params, sets, nil
}

// readCounts reads one update count per parameter set.
func readCounts(r *wire.Reader, n int) ([]int64, error) {
	counts := make([]int64, n)
	for i := range counts {
		v, err := r.ReadInt()
		if err != nil {
			return nil, dberrors.Framing(err)
		}
		counts[i] = v
	}
	return counts, nil
}

// openResultLocked installs the first page of a result set.
func (cur *Cursor) openResultLocked(columns []*sqltypes.Column, width int, id uint32, body []byte, last bool) error {
	cur.columns = columns
	cur.warehouse = newWarehouse(width)
	cur.pos = 0
	cur.rowCount = -1
	cur.stmtID = id
	cur.state = stateResultOpen
	if err := cur.warehouse.add(body, last); err != nil {
		return err
	}
	if !last {
		cur.conn.busy[id] = cur
	}
	return nil
}
