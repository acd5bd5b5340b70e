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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/preparser"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
)

func TestStatementCacheInsertOnly(t *testing.T) {
	sc := newStatementCache(2)
	assert.True(t, sc.put(&CachedStatement{ID: 1, Text: "a"}))
	assert.True(t, sc.put(&CachedStatement{ID: 2, Text: "b"}))
	assert.False(t, sc.put(&CachedStatement{ID: 3, Text: "c"}))

	// Replacing an existing text is always allowed.
	assert.True(t, sc.put(&CachedStatement{ID: 4, Text: "a"}))
	st, ok := sc.get("a")
	require.True(t, ok)
	assert.Equal(t, uint32(4), st.ID)

	_, ok = sc.get("c")
	assert.False(t, ok)

	sc.remove("b")
	assert.True(t, sc.put(&CachedStatement{ID: 5, Text: "c"}))

	stats := sc.Stats()
	assert.Equal(t, CacheStats{
		Size:       2,
		Capacity:   2,
		Hits:       1,
		Misses:     1,
		Admissions: 4,
		Refusals:   1,
	}, stats)
}

func TestStatementCacheDisabled(t *testing.T) {
	sc := newStatementCache(-1)
	assert.False(t, sc.put(&CachedStatement{ID: 1, Text: "a"}))
	assert.Equal(t, 0, sc.Stats().Capacity)
}

func TestCachedStatementRowWidth(t *testing.T) {
	cols := []*sqltypes.Column{{Name: "a"}, {Name: "b"}}
	assert.Equal(t, 2, (&CachedStatement{Columns: cols}).rowWidth())
	assert.Equal(t, 3, (&CachedStatement{Columns: cols, Feature: protocol.FeatureFastSelect, MaxRowItemCount: 3}).rowWidth())
}

func TestReadStatementMetadata(t *testing.T) {
	w := wire.NewWriter()
	w.WriteInt(int64(protocol.FeatureFastSelect))
	w.WriteInt(3) // maxRowItemCount
	w.WriteInt(1)
	w.WriteString("ID")
	w.WriteInt(int64(sqltypes.TypeInteger))
	w.WriteInt(10)
	w.WriteInt(0)
	w.WriteInt(int64(sqltypes.NoNulls))
	for _, s := range []string{"ID", "T", "SQLUser", "", ""} {
		w.WriteString(s)
	}
	w.WriteInt(3) // slot
	w.WriteInt(1) // one parameter
	w.WriteInt(int64(sqltypes.TypeVarChar))
	w.WriteInt(50)
	w.WriteInt(0)
	w.WriteInt(int64(sqltypes.Nullable))
	w.WriteInt(1) // cacheable

	st := &CachedStatement{}
	cacheable, err := readStatementMetadata(wire.NewReader(w.Bytes()), st)
	require.NoError(t, err)
	assert.True(t, cacheable)
	assert.Equal(t, protocol.FeatureFastSelect, st.Feature)
	assert.Equal(t, 3, st.MaxRowItemCount)
	require.Len(t, st.Columns, 1)
	assert.Equal(t, "ID", st.Columns[0].Name)
	assert.Equal(t, "SQLUser", st.Columns[0].Schema)
	assert.Equal(t, 3, st.Columns[0].Slot)
	require.Len(t, st.Params, 1)
	assert.Equal(t, sqltypes.TypeVarChar, st.Params[0].Type)
	assert.Equal(t, 1, st.Params[0].Slot)
}

func TestReadStatementMetadataTruncated(t *testing.T) {
	w := wire.NewWriter()
	w.WriteInt(0)
	w.WriteInt(2) // two columns, none follow
	_, err := readStatementMetadata(wire.NewReader(w.Bytes()), &CachedStatement{})
	require.Error(t, err)
	assert.Equal(t, dberrors.KindFraming, dberrors.KindOf(err))
}

func TestReadProcedureMetadata(t *testing.T) {
	w := wire.NewWriter()
	w.WriteInt(protocol.ProcMultipleResultsReturn)
	w.WriteInt(1)
	w.WriteInt(int64(sqltypes.ModeInputOutput))
	w.WriteInt(int64(sqltypes.TypeInteger))
	w.WriteInt(10)
	w.WriteInt(0)
	w.WriteInt(int64(sqltypes.Nullable))
	w.WriteString("COUNTER")
	w.WriteInt(0)

	st := &CachedStatement{}
	cacheable, err := readProcedureMetadata(wire.NewReader(w.Bytes()), st)
	require.NoError(t, err)
	assert.False(t, cacheable)
	assert.True(t, st.ServerReturn)
	assert.True(t, st.MultipleResultSets)
	assert.False(t, st.isQuery())
	require.Len(t, st.Params, 1)
	assert.Equal(t, sqltypes.ModeInputOutput, st.Params[0].Mode)
	assert.Equal(t, "COUNTER", st.Params[0].Name)
}

// testCursor returns a cursor on an unconnected Conn, enough for binding.
func testCursor(cfg *Config) *Cursor {
	cfg = cfg.withDefaults()
	c := &Conn{
		config: cfg,
		logger: cfg.Logger,
		cache:  newStatementCache(cfg.CacheSize),
		busy:   make(map[uint32]*Cursor),
	}
	return newCursor(c)
}

func TestBindLocked(t *testing.T) {
	cur := testCursor(&Config{})
	markers := []string{protocol.MarkerParameter, protocol.MarkerLiteral, protocol.MarkerParameter}

	params, sets, err := cur.bindLocked(nil, protocol.FeatureNone, markers, [][]any{{1, "lit", nil}, {2, "lit"}})
	require.NoError(t, err)
	require.Len(t, params, 3)
	assert.Equal(t, sqltypes.ModeInput, params[0].Mode)
	assert.Equal(t, sqltypes.ModeReplacedLiteral, params[1].Mode)
	assert.Equal(t, 2, params[0].SetCount())

	require.Len(t, sets, 2)
	assert.Equal(t, []wire.Value{wire.Int64(1), wire.Text("lit"), wire.Null()}, sets[0])
	// A short set leaves its trailing positions undefined.
	assert.Equal(t, wire.Undefined(), sets[1][2])
}

func TestBindLockedFastInsert(t *testing.T) {
	cur := testCursor(&Config{})
	declared := []*sqltypes.Parameter{
		{Type: sqltypes.TypeInteger, Slot: 2},
		{Type: sqltypes.TypeVarChar, Slot: 1},
	}
	markers := []string{protocol.MarkerParameter, protocol.MarkerParameter}
	_, sets, err := cur.bindLocked(declared, protocol.FeatureFastInsert, markers, [][]any{{7, "x"}})
	require.NoError(t, err)
	assert.Equal(t, []wire.Value{wire.Text("x"), wire.Int64(7)}, sets[0])
	// The cached descriptors are not modified.
	assert.Equal(t, sqltypes.ModeUnknown, declared[0].Mode)
}

func TestBindValueRejectsInertHandle(t *testing.T) {
	cur := testCursor(&Config{})
	h := &StreamHandle{id: "1@%Stream.GlobalBinary", binary: true, inert: true}
	_, err := cur.bindValueLocked(h, sqltypes.TypeLongVarBinary)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberrors.ErrInterface)

	h.inert = false
	v, err := cur.bindValueLocked(h, sqltypes.TypeLongVarBinary)
	require.NoError(t, err)
	assert.Equal(t, wire.Text(h.id), v)
}

func TestBindValueLatin1Check(t *testing.T) {
	cur := testCursor(&Config{InlineThreshold: 4})
	_, err := cur.bindValueLocked(strings.Repeat("€", 3), sqltypes.TypeLongVarChar)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberrors.ErrInterface)
}

func TestCheckArgs(t *testing.T) {
	st, err := preparser.Parse("SELECT * FROM t WHERE a = ? AND b = ?", preparser.Options{})
	require.NoError(t, err)

	assert.NoError(t, checkArgs(st, []any{1, "x"}))
	assert.ErrorIs(t, checkArgs(st, []any{1}), dberrors.ErrInterface)
	assert.ErrorIs(t, checkArgs(st, []any{1, Out(sqltypes.TypeInteger)}), dberrors.ErrInterface)
	assert.ErrorIs(t, checkArgs(st, []any{1, make(chan int)}), dberrors.ErrInterface)
}
