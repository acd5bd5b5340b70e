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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
)

// rawConn sends hand-built requests to a server.
type rawConn struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	seq    uint32
}

func dial(t *testing.T, s *Server) *rawConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Address(), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &rawConn{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *rawConn) send(op protocol.OpCode, stmtID uint32, body []byte) {
	c.t.Helper()
	c.seq++
	require.NoError(c.t, wire.WriteMessage(c.conn, wire.NewRequestHeader(op, c.seq, stmtID), body))
}

func (c *rawConn) read() (wire.Header, *wire.Reader) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	h, body, err := wire.ReadMessage(c.reader)
	require.NoError(c.t, err)
	assert.Equal(c.t, c.seq, h.Sequence)
	return h, wire.NewReader(body)
}

func (c *rawConn) roundTrip(op protocol.OpCode, stmtID uint32, body []byte) (wire.Header, *wire.Reader) {
	c.t.Helper()
	c.send(op, stmtID, body)
	return c.read()
}

func prepareBody(text string) []byte {
	w := wire.NewWriter()
	w.WriteInt(1)
	w.WriteString(text)
	w.WriteInt(0)
	return w.Bytes()
}

func TestConnect(t *testing.T) {
	s := New(t)
	defer s.Close()
	c := dial(t, s)

	w := wire.NewWriter()
	w.WriteInt(protocol.Version)
	for _, f := range []string{"USER", "test", "test", "go"} {
		w.WriteString(f)
	}
	h, r := c.roundTrip(protocol.OpConnect, 0, w.Bytes())
	assert.Equal(t, protocol.StatusOK, h.Status())
	version, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "fakeserver 1.0", version)
	assert.Equal(t, 1, s.OpCount(protocol.OpConnect))
}

func TestPrepareAndPage(t *testing.T) {
	s := New(t)
	defer s.Close()
	s.SetPageSize(2)
	s.AddQuery("select id from t", MakeResult(
		[]*sqltypes.Column{Col("id", sqltypes.TypeInteger)},
		[]any{1}, []any{2}, []any{3},
	))
	c := dial(t, s)

	h, r := c.roundTrip(protocol.OpPrepare, 7, prepareBody("SELECT id FROM t"))
	require.Equal(t, protocol.StatusOK, h.Status())
	assert.Equal(t, uint32(7), h.StatementID)
	feature, err := r.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int64(protocol.FeatureNone), feature)

	w := wire.NewWriter()
	w.WriteInt(1)
	w.WriteInt(0)
	w.WriteInt(0)
	w.WriteInt(0)
	h, r = c.roundTrip(protocol.OpPreparedQuery, 7, w.Bytes())
	assert.Equal(t, protocol.StatusOK, h.Status())
	for _, want := range []int64{1, 2} {
		v, err := r.ReadInt()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	assert.True(t, r.AtEnd())

	h, r = c.roundTrip(protocol.OpFetchData, 7, nil)
	assert.Equal(t, protocol.StatusEndOfData, h.Status())
	v, err := r.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	assert.Equal(t, 1, s.GetQueryCalledNum("select id from t"))
}

func TestUnknownStatement(t *testing.T) {
	s := New(t)
	defer s.Close()
	c := dial(t, s)

	h, _ := c.roundTrip(protocol.OpPrepare, 1, prepareBody("SELECT nope"))
	assert.Equal(t, protocol.Status(CodeNotSupported), h.Status())

	w := wire.NewWriter()
	w.WriteInt(CodeNotSupported)
	h, r := c.roundTrip(protocol.OpServerError, 0, w.Bytes())
	assert.Equal(t, protocol.StatusOK, h.Status())
	msg, err := r.ReadString()
	require.NoError(t, err)
	assert.Contains(t, msg, "SELECT nope")
}

func TestExpireStatements(t *testing.T) {
	s := New(t)
	defer s.Close()
	s.AddUpdate("delete from t", 4)
	c := dial(t, s)

	h, _ := c.roundTrip(protocol.OpPrepare, 3, prepareBody("DELETE FROM t"))
	require.Equal(t, protocol.StatusOK, h.Status())

	update := func() wire.Header {
		w := wire.NewWriter()
		w.WriteInt(protocol.NoGeneratedKeyColumn)
		w.WriteInt(0)
		w.WriteInt(1)
		w.WriteInt(0)
		h, _ := c.roundTrip(protocol.OpPreparedUpdate, 3, w.Bytes())
		return h
	}
	assert.Equal(t, protocol.StatusOK, update().Status())
	s.ExpireStatements()
	assert.Equal(t, protocol.StatusStaleStatement, update().Status())
}

func TestStreams(t *testing.T) {
	s := New(t)
	defer s.Close()
	c := dial(t, s)

	store := func(handle string, chunk []byte) string {
		w := wire.NewWriter()
		w.WriteString(handle)
		w.WriteRawUint32(uint32(len(chunk)))
		w.WriteRaw(chunk)
		h, r := c.roundTrip(protocol.OpStoreBinary, 0, w.Bytes())
		require.Equal(t, protocol.StatusOK, h.Status())
		out, err := r.ReadString()
		require.NoError(t, err)
		return out
	}
	handle := store(protocol.NewStreamHandle, []byte("abc"))
	assert.Equal(t, "1@%Stream.GlobalBinary", handle)
	assert.Equal(t, handle, store(handle, []byte("def")))

	data, ok := s.Stream(handle)
	require.True(t, ok)
	assert.Equal(t, []byte("abcdef"), data)

	read := func(h string) (protocol.Status, []byte) {
		w := wire.NewWriter()
		w.WriteString(h)
		w.WriteInt(4)
		hdr, r := c.roundTrip(protocol.OpReadStream, 0, w.Bytes())
		return hdr.Status(), r.ReadRest()
	}
	status, chunk := read(handle)
	assert.Equal(t, protocol.StatusOK, status)
	assert.Equal(t, []byte("abcd"), chunk)
	status, chunk = read(handle)
	assert.Equal(t, protocol.StatusEndOfData, status)
	assert.Equal(t, []byte("ef"), chunk)

	status, _ = read("9@%Stream.GlobalBinary")
	assert.Equal(t, protocol.StatusNoStream, status)
}

func TestMakeResult(t *testing.T) {
	r := MakeResult(
		[]*sqltypes.Column{Col("id", sqltypes.TypeInteger), Col("name", sqltypes.TypeVarChar)},
		[]any{1, "a"},
		[]any{2},
	)
	require.Len(t, r.Rows, 2)
	assert.Equal(t, wire.Int64(1), r.Rows[0][0])
	assert.True(t, r.Rows[1][1].IsNull())

	assert.Panics(t, func() {
		MakeResult([]*sqltypes.Column{Col("id", sqltypes.TypeInteger)}, []any{struct{}{}})
	})
}

func TestCloseDropsConnections(t *testing.T) {
	s := New(t)
	c := dial(t, s)
	s.Close()

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := wire.ReadMessage(c.reader)
	assert.Error(t, err)
}
