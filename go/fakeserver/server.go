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

// Package fakeserver provides a fake typed-list SQL server for testing.
// It speaks the wire protocol over a real TCP listener and answers with
// pre-configured results, update counts, procedures and streams.
package fakeserver

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/multigres/listsql/go/client"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
)

// Default SQL codes returned by the server.
const (
	// CodeNotSupported is returned for statements nobody configured.
	CodeNotSupported = -30
	// CodeUniqueViolation is the integrity code tests usually reject with.
	CodeUniqueViolation = -119
)

// Result is a query result. Rows hold wire items in column order.
type Result struct {
	Columns []*sqltypes.Column
	Rows    [][]wire.Value
}

// Col describes a result column for MakeResult.
func Col(name string, t sqltypes.SQLType) *sqltypes.Column {
	return &sqltypes.Column{Name: name, Type: t, Nullable: sqltypes.Nullable, Label: name}
}

// MakeResult builds a result from host values, converted for each column's
// type. It panics on values that cannot be converted.
func MakeResult(columns []*sqltypes.Column, rows ...[]any) *Result {
	r := &Result{Columns: columns}
	for _, row := range rows {
		items := make([]wire.Value, len(columns))
		for i, col := range columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			item, err := sqltypes.ToWire(v, col.Type)
			if err != nil {
				panic(fmt.Sprintf("fakeserver: column %s: %v", col.Name, err))
			}
			items[i] = item
		}
		r.Rows = append(r.Rows, items)
	}
	return r
}

// Outcome is one result of a procedure with several results: a result set
// or an update count.
type Outcome struct {
	Result *Result
	Count  int64
}

// CallResult is what a procedure handler returns.
type CallResult struct {
	// Return is sent when the procedure has a return value.
	Return wire.Value
	// Outputs maps a 0-based parameter index to its output item. Parameters
	// without an entry echo Undefined.
	Outputs map[int]wire.Value
	// RowCount is returned by update procedures.
	RowCount int64
	// Results are returned by query procedures (the first) and by
	// procedures with several results (all of them, in order).
	Results []Outcome
}

// Procedure is a stored procedure known to the server.
type Procedure struct {
	Name string
	// ReturnType is one of the protocol.Proc* constants.
	ReturnType int
	// Params are described to clients in order. Mode, Type and Name are
	// used.
	Params []*sqltypes.Parameter
	// Columns describe the result of a query procedure.
	Columns []*sqltypes.Column
	// Handler computes the call result from the sent parameter items.
	Handler func(args []wire.Value) (*CallResult, error)
}

// SQLError is returned by handlers to fail a request with a SQL code.
type SQLError struct {
	Code    int
	Message string
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("[SQLCODE: <%d>] %s", e.Code, e.Message)
}

// Server is a fake server for testing. All methods are thread-safe.
type Server struct {
	t testing.TB

	listener *listener
	address  string
	name     string

	// mu protects all the following fields.
	mu sync.Mutex

	// queries and updates map tolower(text) to their outcome.
	queries  map[string]*Result
	updates  map[string]int64
	rejected map[string]*SQLError
	procs    map[string]*Procedure

	// paramTypes maps tolower(text) to the declared parameter types.
	paramTypes map[string][]sqltypes.SQLType

	queryCalled map[string]int
	querylog    []string
	ops         map[protocol.OpCode]int
	// params holds the last parameter sets received for a text.
	params map[string][][]wire.Value

	pageSize   int
	cacheable  bool
	fastSelect bool
	// generation is bumped by ExpireStatements; connections forget their
	// statements when they see a new one.
	generation int

	streams      map[string]*stream
	streamSeq    int
	generatedKey wire.Value
}

type stream struct {
	data   []byte
	binary bool
}

// New creates a fake server listening on a random local port.
func New(t testing.TB) *Server {
	s := &Server{
		t:            t,
		name:         "fakeserver",
		queries:      make(map[string]*Result),
		updates:      make(map[string]int64),
		rejected:     make(map[string]*SQLError),
		procs:        make(map[string]*Procedure),
		paramTypes:   make(map[string][]sqltypes.SQLType),
		queryCalled:  make(map[string]int),
		ops:          make(map[protocol.OpCode]int),
		params:       make(map[string][][]wire.Value),
		streams:      make(map[string]*stream),
		cacheable:    true,
		generatedKey: wire.Null(),
	}

	var err error
	s.listener, err = newListener("127.0.0.1:0", s, slog.Default())
	if err != nil {
		t.Fatalf("fakeserver: failed to create listener: %v", err)
	}
	s.address = s.listener.Addr().String()
	go s.listener.serve()

	t.Logf("fakeserver: listening on %s", s.address)
	return s
}

// Name returns the name of the server.
func (s *Server) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetName sets the name of the server.
func (s *Server) SetName(name string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	return s
}

// Address returns the server's listening address.
func (s *Server) Address() string {
	return s.address
}

// ClientConfig returns a client.Config for connecting to this server.
func (s *Server) ClientConfig() *client.Config {
	host, port, err := net.SplitHostPort(s.address)
	if err != nil {
		s.t.Fatalf("fakeserver: failed to parse address: %v", err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		s.t.Fatalf("fakeserver: failed to parse port: %v", err)
	}
	return &client.Config{
		Host:       host,
		Port:       portNum,
		Namespace:  "USER",
		User:       "test",
		Password:   "test",
		AutoCommit: true,
	}
}

// Close stops the server and closes every client connection.
func (s *Server) Close() {
	if err := s.listener.close(); err != nil {
		s.t.Logf("fakeserver: close error: %v", err)
	}
}

//
// Methods to add expected statements.
//

// AddQuery adds a query and its result.
func (s *Server) AddQuery(q string, result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(q)
	s.queries[key] = result
	s.queryCalled[key] = 0
}

// AddUpdate adds an update or DDL statement that affects count rows per
// parameter set.
func (s *Server) AddUpdate(q string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(q)
	s.updates[key] = count
	s.queryCalled[key] = 0
}

// AddRejectedQuery makes a statement fail with a SQL code at execution.
func (s *Server) AddRejectedQuery(q string, code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[strings.ToLower(q)] = &SQLError{Code: code, Message: message}
}

// SetParamTypes declares the parameter types described for a statement.
func (s *Server) SetParamTypes(q string, types ...sqltypes.SQLType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paramTypes[strings.ToLower(q)] = types
}

// AddProcedure registers a stored procedure.
func (s *Server) AddProcedure(p *Procedure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[strings.ToLower(p.Name)] = p
}

// SetPageSize limits the rows per data page. Zero sends every row at once.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// SetCacheable controls the cacheable flag of prepare responses.
func (s *Server) SetCacheable(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheable = on
}

// SetFastSelect switches query metadata to the fast-select layout: rows
// carry one leading filler item and columns name their slot.
func (s *Server) SetFastSelect(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fastSelect = on
}

// ExpireStatements makes every connection forget its prepared statements,
// so the next prepared execute is answered with a stale statement status.
func (s *Server) ExpireStatements() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// SetGeneratedKey sets the value returned for generated key requests.
func (s *Server) SetGeneratedKey(v wire.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generatedKey = v
}

// AddStream stores a stream under handle.
func (s *Server) AddStream(handle string, data []byte, binary bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[handle] = &stream{data: data, binary: binary}
}

// Stream returns the content stored under handle.
func (s *Server) Stream(handle string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[handle]
	if !ok {
		return nil, false
	}
	return st.data, true
}

//
// Inspection.
//

// GetQueryCalledNum returns how many times a statement was executed.
func (s *Server) GetQueryCalledNum(q string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryCalled[strings.ToLower(q)]
}

// QueryLog returns the executed statements as a semicolon separated string.
func (s *Server) QueryLog() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.querylog, ";")
}

// ResetQueryLog resets the query log and the request counters.
func (s *Server) ResetQueryLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.querylog = nil
	s.ops = make(map[protocol.OpCode]int)
}

// OpCount returns how many requests with op code op were received.
func (s *Server) OpCount(op protocol.OpCode) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops[op]
}

// LastParams returns the parameter sets last sent with a statement.
func (s *Server) LastParams(q string) [][]wire.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params[strings.ToLower(q)]
}
