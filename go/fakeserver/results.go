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
	"fmt"
	"strings"

	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
)

// lookup resolves statement text to a new per-connection statement.
func (s *Server) lookup(text string) (*stmtState, *SQLError) {
	key := strings.ToLower(strings.TrimSpace(text))
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &stmtState{key: key, reject: s.rejected[key]}
	if r, ok := s.queries[key]; ok {
		st.kind = stmtQuery
		st.result = r
		st.fast = s.fastSelect
		return st, nil
	}
	if n, ok := s.updates[key]; ok {
		st.kind = stmtUpdate
		st.count = n
		return st, nil
	}
	return nil, &SQLError{
		Code:    CodeNotSupported,
		Message: fmt.Sprintf("fakeserver: statement '%s' is not supported on %s", text, s.name),
	}
}

func (s *Server) procedure(name string) (*Procedure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[strings.ToLower(name)]
	return p, ok
}

func (s *Server) recordExec(key string, sets [][]wire.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalled[key]++
	s.querylog = append(s.querylog, key)
	s.params[key] = sets
}

func (s *Server) countOp(op protocol.OpCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op]++
}

func (s *Server) currentGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Server) isCacheable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheable
}

func (s *Server) currentGeneratedKey() wire.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generatedKey
}

func (s *Server) pageLimit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageSize
}

// appendStream adds a chunk to a stream. The handle "0" starts a new one.
func (s *Server) appendStream(handle string, chunk []byte, binary bool) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle == protocol.NewStreamHandle {
		s.streamSeq++
		kind := "Character"
		if binary {
			kind = "Binary"
		}
		handle = fmt.Sprintf("%d@%%Stream.Global%s", s.streamSeq, kind)
		s.streams[handle] = &stream{binary: binary}
	}
	st, ok := s.streams[handle]
	if !ok {
		return "", false
	}
	st.data = append(st.data, chunk...)
	return handle, true
}

// writeStatementMetadata writes the metadata block of a prepare or direct
// query response.
func (s *Server) writeStatementMetadata(w *wire.Writer, st *stmtState, markers int) {
	feature := protocol.FeatureNone
	if st.kind == stmtQuery && st.fast {
		feature = protocol.FeatureFastSelect
	}
	w.WriteInt(int64(feature))
	if feature != protocol.FeatureNone {
		w.WriteInt(int64(len(st.result.Columns) + 1))
	}
	if st.kind == stmtQuery {
		writeColumns(w, st.result.Columns, st.fast)
	} else {
		w.WriteInt(0)
	}
	s.writeParams(w, st.key, markers)
	w.WriteInt(int64(btoi(s.isCacheable())))
}

// writeParams describes n parameters with the declared types.
func (s *Server) writeParams(w *wire.Writer, key string, n int) {
	s.mu.Lock()
	types := s.paramTypes[key]
	s.mu.Unlock()
	w.WriteInt(int64(n))
	for i := 0; i < n; i++ {
		t := sqltypes.TypeUnknown
		if i < len(types) {
			t = types[i]
		}
		w.WriteInt(int64(t))
		w.WriteInt(0)
		w.WriteInt(0)
		w.WriteInt(int64(sqltypes.NullableUnknown))
	}
}

// writeColumns writes a column count and descriptors. Under the fast-select
// layout column i lives in slot i+2, after a filler item.
func writeColumns(w *wire.Writer, cols []*sqltypes.Column, slots bool) {
	w.WriteInt(int64(len(cols)))
	for i, col := range cols {
		w.WriteString(col.Name)
		w.WriteInt(int64(col.Type))
		w.WriteInt(int64(col.Precision))
		w.WriteInt(int64(col.Scale))
		w.WriteInt(int64(col.Nullable))
		w.WriteString(col.Label)
		w.WriteString(col.Table)
		w.WriteString(col.Schema)
		w.WriteString(col.Catalog)
		w.WriteString(col.Extra)
		if slots {
			w.WriteInt(int64(i + 2))
		}
	}
}

// writePage writes the next page of rows and reports whether it was the
// last.
func (s *Server) writePage(w *wire.Writer, st *stmtState) bool {
	rows := st.result.Rows
	end := len(rows)
	if st.limit > 0 && st.limit < end {
		end = st.limit
	}
	n := end - st.pos
	if size := s.pageLimit(); size > 0 && n > size {
		n = size
	}
	for _, row := range rows[st.pos : st.pos+n] {
		if st.fast {
			w.WriteInt(0)
		}
		for _, v := range row {
			w.WriteValue(v)
		}
	}
	st.pos += n
	return st.pos >= end
}

// writeNextOutcome writes the marker of the next pending result and, for a
// result set, its columns and first page.
func (s *Server) writeNextOutcome(w *wire.Writer, st *stmtState) protocol.Status {
	if len(st.pending) == 0 {
		st.result = nil
		w.WriteInt(protocol.ResultsDone)
		return protocol.StatusEndOfData
	}
	o := st.pending[0]
	st.pending = st.pending[1:]
	if o.Result == nil {
		st.result = nil
		w.WriteInt(o.Count)
		return protocol.StatusOK
	}
	w.WriteInt(protocol.ResultSetFollows)
	writeColumns(w, o.Result.Columns, false)
	st.result = o.Result
	st.pos, st.limit, st.fast = 0, 0, false
	if s.writePage(w, st) {
		return protocol.StatusEndOfData
	}
	return protocol.StatusOK
}
