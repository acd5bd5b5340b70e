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
	"fmt"
	"strings"

	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/preparser"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
)

// OutParam is passed in place of a value for an output-only procedure
// argument. Type may be left as sqltypes.TypeUnknown.
type OutParam struct {
	Type sqltypes.SQLType
}

// Out returns an output-only argument of the given type.
func Out(t sqltypes.SQLType) OutParam {
	return OutParam{Type: t}
}

// InOutParam is an argument the procedure reads and writes.
type InOutParam struct {
	Value any
	Type  sqltypes.SQLType
}

// InOut returns an input-output argument with an initial value.
func InOut(v any) InOutParam {
	return InOutParam{Value: v}
}

type defaultParam struct{}

// Default stands for an argument the procedure fills with its default.
var Default = defaultParam{}

func isCallMarker(v any) bool {
	switch v.(type) {
	case OutParam, *OutParam, InOutParam, *InOutParam, defaultParam:
		return true
	}
	return false
}

// ResultSet is one fully read result set of a procedure call.
type ResultSet struct {
	Columns []ColumnDescription
	Rows    [][]any
}

// CallResult is everything a procedure call produced. Outputs starts with
// the return value when there is one, followed by one value per argument:
// the server's value for output arguments, the caller's for inputs.
type CallResult struct {
	Outputs      []any
	ResultSets   []ResultSet
	UpdateCounts []int64
}

// Callproc calls a stored procedure with one placeholder per argument and
// reads all of its results.
func (cur *Cursor) Callproc(ctx context.Context, name string, args ...any) (*CallResult, error) {
	ctx, span := startSpan(ctx, "CALL", name)
	res, err := cur.callproc(ctx, name, args)
	endSpan(span, err, -1)
	return res, err
}

func (cur *Cursor) callproc(ctx context.Context, name string, args []any) (*CallResult, error) {
	marks := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	if _, err := cur.execute(ctx, "CALL "+name+"("+marks+")", args); err != nil {
		return nil, err
	}
	res := &CallResult{Outputs: cur.outputs}
	for {
		switch cur.state {
		case stateResultOpen:
			rows, err := cur.FetchAll(ctx)
			if err != nil {
				return nil, err
			}
			res.ResultSets = append(res.ResultSets, ResultSet{Columns: cur.Description(), Rows: rows})
		case stateUpdateDone:
			if cur.rowCount >= 0 {
				res.UpdateCounts = append(res.UpdateCounts, cur.rowCount)
			}
		}
		more, err := cur.NextSet(ctx)
		if err != nil {
			return nil, err
		}
		if !more {
			return res, nil
		}
	}
}

// NextSet advances to the next result of a procedure with several results.
// It returns false when there are no more.
func (cur *Cursor) NextSet(ctx context.Context) (bool, error) {
	if err := cur.checkOpen(); err != nil {
		return false, err
	}
	if !cur.multi || cur.mrsDone {
		cur.conn.bufmu.Lock()
		cur.releaseResultLocked()
		cur.conn.bufmu.Unlock()
		cur.columns = nil
		cur.warehouse = nil
		cur.state = stateIdle
		return false, nil
	}
	err := cur.conn.exclusive(ctx, func() error {
		c := cur.conn
		cur.releaseResultLocked()
		w := wire.NewWriter()
		w.WriteInt(1)
		resp, err := c.roundTrip(protocol.OpMoreResults, cur.procID, w.Bytes())
		if err != nil {
			return err
		}
		if err := c.expectSuccess(resp); err != nil {
			return err
		}
		return cur.readResultMarkerLocked(resp.reader(), resp.status())
	})
	if err != nil {
		return false, err
	}
	return !cur.mrsDone, nil
}

// executeCall runs a CALL statement.
func (cur *Cursor) executeCall(ctx context.Context, st *preparser.Statement, args []any) (int64, error) {
	if want := st.Placeholders(); len(args) != want {
		return -1, dberrors.Interfacef("statement has %d placeholders but %d values were given", want, len(args))
	}
	caller := make([]*sqltypes.Parameter, len(args))
	for i, v := range args {
		p, err := callerParameter(v)
		if err != nil {
			return -1, dberrors.Interfacef("parameter %d: %v", i+1, err)
		}
		caller[i] = p
	}
	callerRet := st.Kind == preparser.KindCallWithResult

	cur.kind = st.Kind
	cur.state = stateParsed
	defer cur.retireStreams()
	err := cur.conn.exclusive(ctx, func() error {
		return cur.runCallLocked(st, caller, callerRet)
	})
	if err != nil {
		cur.state = stateIdle
		return -1, err
	}
	return cur.rowCount, nil
}

// callerParameter describes one caller argument.
func callerParameter(v any) (*sqltypes.Parameter, error) {
	switch x := v.(type) {
	case OutParam:
		return &sqltypes.Parameter{Mode: sqltypes.ModeOutput, Type: x.Type}, nil
	case *OutParam:
		return &sqltypes.Parameter{Mode: sqltypes.ModeOutput, Type: x.Type}, nil
	case InOutParam:
		return inOutParameter(x)
	case *InOutParam:
		return inOutParameter(*x)
	case defaultParam:
		return &sqltypes.Parameter{Mode: sqltypes.ModeDefault}, nil
	}
	if err := sqltypes.Validate(v); err != nil {
		return nil, err
	}
	return &sqltypes.Parameter{Mode: sqltypes.ModeInput, Values: []any{v}}, nil
}

func inOutParameter(x InOutParam) (*sqltypes.Parameter, error) {
	if err := sqltypes.Validate(x.Value); err != nil {
		return nil, err
	}
	return &sqltypes.Parameter{Mode: sqltypes.ModeInputOutput, Type: x.Type, Values: []any{x.Value}}, nil
}

func (cur *Cursor) runCallLocked(st *preparser.Statement, caller []*sqltypes.Parameter, callerRet bool) error {
	c := cur.conn
	meta, ok := c.cache.get(st.Text)
	if !ok || c.busy[meta.ID] != nil {
		var err error
		if meta, err = cur.prepareProcedureLocked(st); err != nil {
			return err
		}
	}
	for retried := false; ; retried = true {
		plan, err := reconcile(caller, callerRet, meta.Params, meta.ServerReturn)
		if err != nil {
			return err
		}
		if plan.mismatch {
			cur.logger.Warn("procedure parameter list does not match the server's",
				"procedure", st.ProcName,
				"declared", len(caller),
				"server", len(meta.Params),
				"server_return", meta.ServerReturn)
		}
		err = cur.callLocked(meta, plan)
		if !errors.Is(err, errStale) {
			return err
		}
		if retried {
			return dberrors.FromStatus(int(protocol.StatusStaleStatement), "procedure statement is stale after re-prepare")
		}
		cur.logger.Debug("procedure statement is stale, preparing again", "stmt_id", meta.ID)
		c.cache.remove(st.Text)
		if meta, err = cur.prepareProcedureLocked(st); err != nil {
			return err
		}
	}
}

func (cur *Cursor) prepareProcedureLocked(st *preparser.Statement) (*CachedStatement, error) {
	c := cur.conn
	id := c.nextStatementID()
	w := wire.NewWriter()
	w.WriteString(st.Text)
	resp, err := c.roundTrip(protocol.OpPrepareProcedure, id, w.Bytes())
	if err != nil {
		return nil, err
	}
	if err := c.expectSuccess(resp); err != nil {
		return nil, err
	}
	meta := &CachedStatement{ID: id, Text: st.Text, Kind: st.Kind}
	cacheable, err := readProcedureMetadata(resp.reader(), meta)
	if err != nil {
		return nil, err
	}
	cur.admitLocked(meta, cacheable)
	return meta, nil
}

// callPlan is a reconciled procedure parameter list.
type callPlan struct {
	// params holds one descriptor per server parameter in wire order.
	params []*sqltypes.Parameter
	ret    sqltypes.ServerReturn
	// exposed is the number of leading params reported as outputs.
	exposed  int
	mismatch bool
}

func returnMode(callerRet, serverRet bool) sqltypes.ServerReturn {
	switch {
	case callerRet && serverRet:
		return sqltypes.ReturnHas
	case serverRet:
		return sqltypes.ReturnIgnore
	case callerRet:
		return sqltypes.ReturnNull
	}
	return sqltypes.ReturnNone
}

func trailingDefault(params []*sqltypes.Parameter) bool {
	return len(params) > 0 && params[len(params)-1].Mode == sqltypes.ModeDefault
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// reconcile matches the caller's arguments against the server's parameter
// list. When the counts disagree in a recognized way the list is adjusted;
// otherwise the call is flagged as a mismatch and proceeds with padding,
// unless there are more arguments than the server can take.
func reconcile(caller []*sqltypes.Parameter, callerRet bool, server []*sqltypes.Parameter, serverRet bool) (*callPlan, error) {
	declared := len(caller) + btoi(callerRet)
	actual := len(server) + btoi(serverRet)
	params := caller
	mismatch := false

	switch diff := declared - actual; {
	case diff == 0 && callerRet == serverRet:
	case diff == 0 && serverRet && !callerRet && trailingDefault(caller):
		// The trailing Default becomes the return slot.
		params = caller[:len(caller)-1]
	case diff == 1 && callerRet && !serverRet:
		// The caller's return slot is filled with NULL.
	case diff == 1 && callerRet == serverRet && trailingDefault(caller):
		params = caller[:len(caller)-1]
	case diff == -1 && serverRet && !callerRet:
		// A synthetic return slot receives the value.
	case diff == -1:
		params = append(params[:len(params):len(params)], &sqltypes.Parameter{Mode: sqltypes.ModeDefault})
	default:
		mismatch = true
	}

	if len(params) > len(server) {
		return nil, misuse(ErrParameterListMismatch,
			fmt.Sprintf("%d arguments for %d procedure parameters", len(params), len(server)))
	}
	if !mismatch && len(params) != len(server) {
		mismatch = true
	}
	exposed := min(len(params), len(caller))

	wireParams := make([]*sqltypes.Parameter, len(server))
	for i, sp := range server {
		p := sp.Clone()
		if i < len(params) {
			cp := params[i]
			p.Mode = mergeMode(cp.Mode, sp.Mode)
			p.Values = cp.Values
			if p.Type == sqltypes.TypeUnknown {
				p.Type = cp.Type
			}
		} else {
			p.Mode = sqltypes.ModeDefault
		}
		wireParams[i] = p
	}
	return &callPlan{
		params:   wireParams,
		ret:      returnMode(callerRet, serverRet),
		exposed:  exposed,
		mismatch: mismatch,
	}, nil
}

// mergeMode picks the mode a parameter is sent with.
func mergeMode(caller, server sqltypes.ParameterMode) sqltypes.ParameterMode {
	if caller == sqltypes.ModeInput && server == sqltypes.ModeOutput {
		return sqltypes.ModeOutput
	}
	return caller
}

// callLocked sends a procedure execute and reads its outputs and first
// result.
func (cur *Cursor) callLocked(meta *CachedStatement, plan *callPlan) error {
	c := cur.conn
	set := make([]wire.Value, len(plan.params))
	for i, p := range plan.params {
		if !p.Mode.SendsValue() {
			set[i] = wire.Undefined()
			continue
		}
		v, err := cur.bindValueLocked(p.Value(0), p.Type)
		if err != nil {
			return err
		}
		set[i] = v
	}

	var op protocol.OpCode
	w := wire.NewWriter()
	switch {
	case meta.MultipleResultSets:
		op = protocol.OpExecuteMultiple
		w.WriteInt(0)
		w.WriteInt(0)
	case meta.isQuery():
		op = protocol.OpProcedureQuery
		w.WriteInt(0)
		w.WriteInt(0)
		w.WriteInt(0)
	default:
		op = protocol.OpProcedureUpdate
		w.WriteInt(0)
		w.WriteInt(0)
		w.WriteInt(0)
	}
	writeParameterBlock(w, [][]wire.Value{set})

	seq, err := c.send(op, meta.ID, w.Bytes())
	if err != nil {
		return err
	}
	resp, err := c.receiveChecked(seq, meta.ID)
	if err != nil {
		return err
	}
	if resp.status() == protocol.StatusStaleStatement {
		return errStale
	}
	if err := c.expectSuccess(resp); err != nil {
		return err
	}

	r := resp.reader()
	outputs, err := cur.readOutputsLocked(r, meta, plan)
	if err != nil {
		return err
	}
	cur.stmt = meta
	cur.params = plan.params
	cur.outputs = outputs
	cur.returnValue = meta.ServerReturn || plan.ret == sqltypes.ReturnNull
	cur.mismatch = plan.mismatch
	cur.procID = meta.ID

	switch op {
	case protocol.OpProcedureUpdate:
		n, err := r.ReadInt()
		if err != nil {
			return dberrors.Framing(err)
		}
		cur.rowCount = n
		cur.updateStmtID = meta.ID
		cur.state = stateUpdateDone
		return nil
	case protocol.OpProcedureQuery:
		page, err := c.receiveChecked(seq, meta.ID)
		if err != nil {
			return err
		}
		if err := c.expectSuccess(page); err != nil {
			return err
		}
		return cur.openResultLocked(meta.Columns, len(meta.Columns), meta.ID, page.body, page.status() == protocol.StatusEndOfData)
	}
	cur.multi = true
	return cur.readResultMarkerLocked(r, resp.status())
}

// readOutputsLocked reads the return value and one item per parameter.
func (cur *Cursor) readOutputsLocked(r *wire.Reader, meta *CachedStatement, plan *callPlan) ([]any, error) {
	read := func(t sqltypes.SQLType, name string) (any, error) {
		item, err := r.ReadValue()
		if err != nil {
			return nil, dberrors.Framing(err)
		}
		v, err := sqltypes.FromWire(item, t)
		if err != nil {
			return nil, decodeError(name, err)
		}
		if ref, ok := v.(sqltypes.StreamRef); ok {
			return cur.downloadLocked(ref)
		}
		return v, nil
	}

	var outputs []any
	if meta.ServerReturn {
		v, err := read(sqltypes.TypeUnknown, "return value")
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, v)
	} else if plan.ret == sqltypes.ReturnNull {
		outputs = append(outputs, nil)
	}
	for i, p := range plan.params {
		v, err := read(p.Type, p.Name)
		if err != nil {
			return nil, err
		}
		if i >= plan.exposed {
			continue
		}
		if !p.Mode.ReturnsValue() {
			v = p.Value(0)
		}
		outputs = append(outputs, v)
	}
	return outputs, nil
}

// readResultMarkerLocked reads the marker that announces the next result of
// a procedure with several results.
func (cur *Cursor) readResultMarkerLocked(r *wire.Reader, status protocol.Status) error {
	marker, err := r.ReadInt()
	if err != nil {
		return dberrors.Framing(err)
	}
	cur.columns = nil
	cur.warehouse = nil
	switch {
	case marker == protocol.ResultSetFollows:
		m := &metaReader{r: r}
		cols := m.readColumns(false)
		if err := m.done(); err != nil {
			return err
		}
		return cur.openResultLocked(cols, len(cols), cur.procID, r.ReadRest(), status == protocol.StatusEndOfData)
	case marker == protocol.ResultsDone:
		cur.mrsDone = true
		cur.rowCount = -1
	case marker >= 0:
		cur.rowCount = marker
	default:
		return dberrors.Framing(fmt.Errorf("%w: result marker %d", wire.ErrMalformed, marker))
	}
	cur.state = stateUpdateDone
	return nil
}
