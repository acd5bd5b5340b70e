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
	"github.com/multigres/listsql/go/common/preparser"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
)

// CachedStatement is the server's description of a prepared statement. It is
// never mutated after creation; executions clone its descriptors.
type CachedStatement struct {
	ID   uint32
	Text string
	Kind preparser.Kind

	Columns []*sqltypes.Column
	Params  []*sqltypes.Parameter

	Feature         protocol.Feature
	MaxRowItemCount int

	// ProcReturnType is the prepare-procedure return type for calls.
	ProcReturnType int
	// MultipleResultSets is set for procedures that return result sets
	// through the multiple-results requests.
	MultipleResultSets bool
	// ServerReturn is set when the procedure has a return value.
	ServerReturn bool
}

// rowWidth returns the number of items per row.
func (s *CachedStatement) rowWidth() int {
	if s.Feature == protocol.FeatureFastSelect && s.MaxRowItemCount > 0 {
		return s.MaxRowItemCount
	}
	return len(s.Columns)
}

// isQuery reports whether executing the statement opens a result set.
func (s *CachedStatement) isQuery() bool {
	switch s.ProcReturnType {
	case protocol.ProcQuery, protocol.ProcQueryWithReturn:
		return true
	}
	return false
}

// CacheStats contains statement cache counters.
type CacheStats struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
	Hits     int `json:"hits"`
	Misses   int `json:"misses"`
	// Admissions counts statements stored, including replacements.
	Admissions int `json:"admissions"`
	// Refusals counts cacheable statements turned away because the cache
	// was full.
	Refusals int `json:"refusals"`
}

// statementCache maps statement text to its prepared description. It is
// bounded and insert-only: once full, new texts are refused, while an
// existing text may always be replaced. Guarded by Conn.bufmu.
type statementCache struct {
	capacity int
	stmts    map[string]*CachedStatement
	stats    CacheStats
}

func newStatementCache(capacity int) *statementCache {
	if capacity < 0 {
		capacity = 0
	}
	return &statementCache{
		capacity: capacity,
		stmts:    make(map[string]*CachedStatement),
	}
}

func (sc *statementCache) get(text string) (*CachedStatement, bool) {
	st, ok := sc.stmts[text]
	if ok {
		sc.stats.Hits++
	} else {
		sc.stats.Misses++
	}
	return st, ok
}

// put stores st and reports whether it was admitted.
func (sc *statementCache) put(st *CachedStatement) bool {
	if _, exists := sc.stmts[st.Text]; !exists && len(sc.stmts) >= sc.capacity {
		sc.stats.Refusals++
		return false
	}
	sc.stmts[st.Text] = st
	sc.stats.Admissions++
	return true
}

func (sc *statementCache) remove(text string) {
	delete(sc.stmts, text)
}

// Stats returns a snapshot of the counters.
func (sc *statementCache) Stats() CacheStats {
	stats := sc.stats
	stats.Size = len(sc.stmts)
	stats.Capacity = sc.capacity
	return stats
}
