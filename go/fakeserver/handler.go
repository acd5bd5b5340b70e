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

package fakeserver

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"

	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
)

// codeMalformed answers requests the server cannot decode.
const codeMalformed = -400

var callName = regexp.MustCompile(`(?i)^\s*call\s+([^\s(]+)`)

type stmtKind int

const (
	stmtQuery stmtKind = iota + 1
	stmtUpdate
	stmtProc
)

// stmtState is a statement prepared on one connection.
type stmtState struct {
	key    string
	kind   stmtKind
	result *Result
	count  int64
	proc   *Procedure
	reject *SQLError

	// Paging state of the current result set.
	pos   int
	limit int
	fast  bool

	// pending holds the unread results of a multiple-results call.
	pending []Outcome
}

// serverConn serves one client connection.
type serverConn struct {
	id      uint32
	server  *Server
	netConn net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	logger  *slog.Logger

	stmts      map[uint32]*stmtState
	generation int
	// readPos is the download position per stream handle.
	readPos map[string]int
	// errors maps a failed status to its message for get-server-error.
	errors map[int]string
}

func (c *serverConn) serve() error {
	for {
		h, body, err := wire.ReadMessage(c.reader)
		if err != nil {
			return err
		}
		op := h.Op()
		c.server.countOp(op)
		if op == protocol.OpDisconnect {
			return nil
		}
		c.checkGeneration()
		if err := c.handle(h, body); err != nil {
			return err
		}
		if err := c.writer.Flush(); err != nil {
			return err
		}
	}
}

// handle answers one request. Only I/O errors are returned.
func (c *serverConn) handle(h wire.Header, body []byte) error {
	r := &request{r: wire.NewReader(body)}
	switch h.Op() {
	case protocol.OpConnect:
		return c.handleConnect(h, r)
	case protocol.OpPrepare:
		return c.handlePrepare(h, r)
	case protocol.OpDirectQuery:
		return c.handleDirectQuery(h, r)
	case protocol.OpPreparedQuery:
		return c.handlePreparedQuery(h, r)
	case protocol.OpFetchData:
		return c.handleFetch(h)
	case protocol.OpDirectUpdate:
		return c.handleDirectUpdate(h, r)
	case protocol.OpPreparedUpdate:
		return c.handlePreparedUpdate(h, r)
	case protocol.OpPrepareProcedure:
		return c.handlePrepareProcedure(h, r)
	case protocol.OpProcedureUpdate, protocol.OpProcedureQuery, protocol.OpExecuteMultiple:
		return c.handleCall(h, r)
	case protocol.OpMoreResults:
		return c.handleMoreResults(h, r)
	case protocol.OpStoreBinary:
		return c.handleStore(h, r, true)
	case protocol.OpStoreCharacter:
		return c.handleStore(h, r, false)
	case protocol.OpReadStream:
		return c.handleReadStream(h, r)
	case protocol.OpServerError:
		return c.handleServerError(h, r)
	case protocol.OpGeneratedKeys:
		return c.handleGeneratedKeys(h)
	case protocol.OpCommit, protocol.OpRollback, protocol.OpAutoCommit:
		return c.reply(h, protocol.StatusOK, nil)
	}
	return c.fail(h, &SQLError{Code: codeMalformed, Message: fmt.Sprintf("unknown request %q", h.Op())})
}

// request reads request fields, remembering the first error.
type request struct {
	r   *wire.Reader
	err error
}

func (q *request) int() int {
	if q.err != nil {
		return 0
	}
	v, err := q.r.ReadInt()
	q.err = err
	return int(v)
}

func (q *request) string() string {
	if q.err != nil {
		return ""
	}
	v, err := q.r.ReadString()
	q.err = err
	return v
}

func (q *request) markers() []string {
	n := q.int()
	if q.err != nil || n < 0 || n > q.r.Remaining() {
		return nil
	}
	markers := make([]string, n)
	for i := range markers {
		markers[i] = q.string()
	}
	return markers
}

func (q *request) parameterBlock() [][]wire.Value {
	sets, width := q.int(), q.int()
	if q.err != nil || sets < 0 || width < 0 || sets*width > q.r.Remaining() {
		return nil
	}
	out := make([][]wire.Value, sets)
	for i := range out {
		set := make([]wire.Value, width)
		for k := range set {
			if q.err != nil {
				return nil
			}
			set[k], q.err = q.r.ReadValue()
		}
		out[i] = set
	}
	return out
}

func (c *serverConn) reply(h wire.Header, status protocol.Status, body []byte) error {
	return wire.WriteMessage(c.writer, wire.NewResponseHeader(status, h.Sequence, h.StatementID), body)
}

func (c *serverConn) fail(h wire.Header, e *SQLError) error {
	if c.errors == nil {
		c.errors = make(map[int]string)
	}
	c.errors[e.Code] = e.Message
	return c.reply(h, protocol.Status(e.Code), nil)
}

func (c *serverConn) malformed(h wire.Header, err error) error {
	return c.fail(h, &SQLError{Code: codeMalformed, Message: fmt.Sprintf("malformed request: %v", err)})
}

func (c *serverConn) checkGeneration() {
	if gen := c.server.currentGeneration(); gen != c.generation {
		c.stmts = make(map[uint32]*stmtState)
		c.generation = gen
	}
}

func (c *serverConn) handleConnect(h wire.Header, r *request) error {
	_ = r.int()
	namespace, user := r.string(), r.string()
	_, _ = r.string(), r.string()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	c.logger.Debug("client connected", "namespace", namespace, "user", user)
	w := wire.NewWriter()
	w.WriteString("fakeserver 1.0")
	w.WriteInt(0)
	return c.reply(h, protocol.StatusOK, w.Bytes())
}

func (c *serverConn) handlePrepare(h wire.Header, r *request) error {
	_ = r.int()
	text := r.string()
	markers := r.markers()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	st, e := c.server.lookup(text)
	if e != nil {
		return c.fail(h, e)
	}
	c.stmts[h.StatementID] = st
	w := wire.NewWriter()
	c.server.writeStatementMetadata(w, st, len(markers))
	return c.reply(h, protocol.StatusOK, w.Bytes())
}

func (c *serverConn) handleDirectQuery(h wire.Header, r *request) error {
	_ = r.int()
	text := r.string()
	markers := r.markers()
	sets := r.parameterBlock()
	_, maxRows := r.int(), r.int()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	st, e := c.server.lookup(text)
	if e == nil && st.kind != stmtQuery {
		e = &SQLError{Code: codeMalformed, Message: "statement is not a query"}
	}
	if e == nil {
		e = st.reject
	}
	if e != nil {
		return c.fail(h, e)
	}
	c.server.recordExec(st.key, sets)
	c.stmts[h.StatementID] = st
	st.pos, st.limit = 0, maxRows

	w := wire.NewWriter()
	c.server.writeStatementMetadata(w, st, len(markers))
	if err := c.reply(h, protocol.StatusOK, w.Bytes()); err != nil {
		return err
	}
	return c.replyPage(h, st)
}

func (c *serverConn) handlePreparedQuery(h wire.Header, r *request) error {
	st, ok := c.stmts[h.StatementID]
	if !ok {
		return c.reply(h, protocol.StatusStaleStatement, nil)
	}
	sets := r.parameterBlock()
	_, maxRows := r.int(), r.int()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	if st.kind != stmtQuery {
		return c.fail(h, &SQLError{Code: codeMalformed, Message: "statement is not a query"})
	}
	if st.reject != nil {
		return c.fail(h, st.reject)
	}
	c.server.recordExec(st.key, sets)
	st.pos, st.limit = 0, maxRows
	return c.replyPage(h, st)
}

func (c *serverConn) handleFetch(h wire.Header) error {
	st, ok := c.stmts[h.StatementID]
	if !ok || st.result == nil {
		return c.fail(h, &SQLError{Code: codeMalformed, Message: "no result set to fetch from"})
	}
	return c.replyPage(h, st)
}

// replyPage sends the next page of the statement's result set.
func (c *serverConn) replyPage(h wire.Header, st *stmtState) error {
	w := wire.NewWriter()
	if c.server.writePage(w, st) {
		return c.reply(h, protocol.StatusEndOfData, w.Bytes())
	}
	return c.reply(h, protocol.StatusOK, w.Bytes())
}

func (c *serverConn) handleDirectUpdate(h wire.Header, r *request) error {
	_ = r.int()
	text := r.string()
	markers := r.markers()
	_, _ = r.int(), r.int()
	sets := r.parameterBlock()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	st, e := c.server.lookup(text)
	if e == nil && st.kind != stmtUpdate {
		e = &SQLError{Code: codeMalformed, Message: "statement is not an update"}
	}
	if e == nil {
		e = st.reject
	}
	if e != nil {
		return c.fail(h, e)
	}
	c.server.recordExec(st.key, sets)
	c.stmts[h.StatementID] = st

	w := wire.NewWriter()
	c.server.writeParams(w, st.key, len(markers))
	w.WriteInt(int64(btoi(c.server.isCacheable())))
	for range sets {
		w.WriteInt(st.count)
	}
	return c.reply(h, protocol.StatusOK, w.Bytes())
}

func (c *serverConn) handlePreparedUpdate(h wire.Header, r *request) error {
	st, ok := c.stmts[h.StatementID]
	if !ok {
		return c.reply(h, protocol.StatusStaleStatement, nil)
	}
	_, _ = r.int(), r.int()
	sets := r.parameterBlock()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	if st.kind != stmtUpdate {
		return c.fail(h, &SQLError{Code: codeMalformed, Message: "statement is not an update"})
	}
	if st.reject != nil {
		return c.fail(h, st.reject)
	}
	c.server.recordExec(st.key, sets)
	w := wire.NewWriter()
	for range sets {
		w.WriteInt(st.count)
	}
	return c.reply(h, protocol.StatusOK, w.Bytes())
}

func (c *serverConn) handlePrepareProcedure(h wire.Header, r *request) error {
	text := r.string()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	m := callName.FindStringSubmatch(text)
	if m == nil {
		return c.fail(h, &SQLError{Code: codeMalformed, Message: "not a procedure call"})
	}
	proc, ok := c.server.procedure(m[1])
	if !ok {
		return c.fail(h, &SQLError{Code: CodeNotSupported, Message: fmt.Sprintf("procedure %s does not exist", m[1])})
	}
	c.stmts[h.StatementID] = &stmtState{key: strings.ToLower(text), kind: stmtProc, proc: proc}

	w := wire.NewWriter()
	w.WriteInt(int64(proc.ReturnType))
	if proc.ReturnType == protocol.ProcQuery || proc.ReturnType == protocol.ProcQueryWithReturn {
		writeColumns(w, proc.Columns, false)
	}
	w.WriteInt(int64(len(proc.Params)))
	for _, p := range proc.Params {
		w.WriteInt(int64(p.Mode))
		w.WriteInt(int64(p.Type))
		w.WriteInt(int64(p.Precision))
		w.WriteInt(int64(p.Scale))
		w.WriteInt(int64(p.Nullable))
		w.WriteString(p.Name)
	}
	w.WriteInt(int64(btoi(c.server.isCacheable())))
	return c.reply(h, protocol.StatusOK, w.Bytes())
}

func hasReturn(returnType int) bool {
	switch returnType {
	case protocol.ProcUpdateWithReturn, protocol.ProcQueryWithReturn, protocol.ProcMultipleResultsReturn:
		return true
	}
	return false
}

func (c *serverConn) handleCall(h wire.Header, r *request) error {
	st, ok := c.stmts[h.StatementID]
	if !ok || st.kind != stmtProc {
		return c.reply(h, protocol.StatusStaleStatement, nil)
	}
	op := h.Op()
	_, _ = r.int(), r.int()
	if op != protocol.OpExecuteMultiple {
		_ = r.int()
	}
	sets := r.parameterBlock()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	var args []wire.Value
	if len(sets) > 0 {
		args = sets[0]
	}
	c.server.recordExec(st.key, sets)

	res := &CallResult{}
	if st.proc.Handler != nil {
		var err error
		if res, err = st.proc.Handler(args); err != nil {
			var se *SQLError
			if errors.As(err, &se) {
				return c.fail(h, se)
			}
			return c.fail(h, &SQLError{Code: codeMalformed, Message: err.Error()})
		}
	}

	w := wire.NewWriter()
	if hasReturn(st.proc.ReturnType) {
		w.WriteValue(res.Return)
	}
	for i := range st.proc.Params {
		if v, ok := res.Outputs[i]; ok {
			w.WriteValue(v)
		} else {
			w.WriteUndefined()
		}
	}

	switch op {
	case protocol.OpProcedureUpdate:
		w.WriteInt(res.RowCount)
		return c.reply(h, protocol.StatusOK, w.Bytes())
	case protocol.OpProcedureQuery:
		if err := c.reply(h, protocol.StatusOK, w.Bytes()); err != nil {
			return err
		}
		st.result = &Result{Columns: st.proc.Columns}
		if len(res.Results) > 0 && res.Results[0].Result != nil {
			st.result = res.Results[0].Result
		}
		st.pos, st.limit, st.fast = 0, 0, false
		return c.replyPage(h, st)
	}
	st.pending = res.Results
	return c.reply(h, c.server.writeNextOutcome(w, st), w.Bytes())
}

func (c *serverConn) handleMoreResults(h wire.Header, r *request) error {
	st, ok := c.stmts[h.StatementID]
	if !ok || st.kind != stmtProc {
		return c.reply(h, protocol.StatusStaleStatement, nil)
	}
	_ = r.int()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	w := wire.NewWriter()
	return c.reply(h, c.server.writeNextOutcome(w, st), w.Bytes())
}

func (c *serverConn) handleStore(h wire.Header, r *request, binary bool) error {
	handle := r.string()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	size, err := r.r.ReadRawUint32()
	if err != nil {
		return c.malformed(h, err)
	}
	chunk, err := r.r.ReadRaw(int(size))
	if err != nil {
		return c.malformed(h, err)
	}
	handle, ok := c.server.appendStream(handle, chunk, binary)
	if !ok {
		return c.fail(h, &SQLError{Code: codeMalformed, Message: "unknown stream handle"})
	}
	w := wire.NewWriter()
	w.WriteString(handle)
	return c.reply(h, protocol.StatusOK, w.Bytes())
}

func (c *serverConn) handleReadStream(h wire.Header, r *request) error {
	handle := r.string()
	limit := r.int()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	data, ok := c.server.Stream(handle)
	if !ok {
		return c.reply(h, protocol.StatusNoStream, nil)
	}
	pos := c.readPos[handle]
	end := len(data)
	if limit > 0 {
		end = min(pos+limit, len(data))
	}
	chunk := data[pos:end]
	if end >= len(data) {
		delete(c.readPos, handle)
		return c.reply(h, protocol.StatusEndOfData, chunk)
	}
	c.readPos[handle] = end
	return c.reply(h, protocol.StatusOK, chunk)
}

func (c *serverConn) handleServerError(h wire.Header, r *request) error {
	code := r.int()
	if r.err != nil {
		return c.malformed(h, r.err)
	}
	msg, ok := c.errors[code]
	if !ok {
		msg = fmt.Sprintf("unknown error %d", code)
	}
	w := wire.NewWriter()
	w.WriteString(msg)
	return c.reply(h, protocol.StatusOK, w.Bytes())
}

func (c *serverConn) handleGeneratedKeys(h wire.Header) error {
	w := wire.NewWriter()
	writeColumns(w, []*sqltypes.Column{Col("ID", sqltypes.TypeBigInt)}, false)
	w.WriteValue(c.server.currentGeneratedKey())
	return c.reply(h, protocol.StatusEndOfData, w.Bytes())
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
