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

package client_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/multigres/listsql/go/client"
	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
	"github.com/multigres/listsql/go/fakeserver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newServer starts a fake server that is closed when the test ends.
func newServer(t *testing.T) *fakeserver.Server {
	t.Helper()
	s := fakeserver.New(t)
	t.Cleanup(s.Close)
	return s
}

// connect opens a connection to s, applying opts to the config first.
func connect(t *testing.T, s *fakeserver.Server, opts ...func(*client.Config)) *client.Conn {
	t.Helper()
	cfg := s.ClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	conn, err := client.Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// people is a three row result used by most query tests.
func people() *fakeserver.Result {
	return fakeserver.MakeResult(
		[]*sqltypes.Column{
			fakeserver.Col("ID", sqltypes.TypeInteger),
			fakeserver.Col("Name", sqltypes.TypeVarChar),
		},
		[]any{1, "alice"},
		[]any{2, "bob"},
		[]any{3, "carol"},
	)
}

func TestConnect(t *testing.T) {
	s := newServer(t)
	conn := connect(t, s)

	assert.Equal(t, "fakeserver 1.0", conn.ServerVersion())
	assert.True(t, conn.AutoCommit())
	assert.False(t, conn.IsClosed())
	assert.Equal(t, 1, s.OpCount(protocol.OpConnect))
	assert.Equal(t, 0, s.OpCount(protocol.OpAutoCommit))
}

func TestConnectWithoutAutoCommit(t *testing.T) {
	s := newServer(t)
	conn := connect(t, s, func(c *client.Config) { c.AutoCommit = false })

	assert.False(t, conn.AutoCommit())
	assert.Equal(t, 1, s.OpCount(protocol.OpAutoCommit))
}

func TestConnectRefused(t *testing.T) {
	s := fakeserver.New(t)
	cfg := s.ClientConfig()
	s.Close()

	_, err := client.Connect(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, dberrors.KindOperational, dberrors.KindOf(err))
	assert.ErrorIs(t, err, dberrors.ErrDatabase)
}

func TestTransactions(t *testing.T) {
	s := newServer(t)
	conn := connect(t, s)
	ctx := context.Background()

	require.NoError(t, conn.SetAutoCommit(ctx, false))
	assert.False(t, conn.AutoCommit())
	require.NoError(t, conn.Commit(ctx))
	require.NoError(t, conn.Rollback(ctx))

	assert.Equal(t, 1, s.OpCount(protocol.OpAutoCommit))
	assert.Equal(t, 1, s.OpCount(protocol.OpCommit))
	assert.Equal(t, 1, s.OpCount(protocol.OpRollback))
}

func TestClosedCursorAndConn(t *testing.T) {
	s := newServer(t)
	s.AddQuery("SELECT ID, Name FROM People", people())
	conn := connect(t, s)
	ctx := context.Background()

	cur := conn.Cursor()
	_, err := cur.FetchOne(ctx)
	assert.ErrorIs(t, err, client.ErrNoResultSet)

	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close())
	_, err = cur.Execute(ctx, "SELECT ID, Name FROM People")
	assert.ErrorIs(t, err, client.ErrCursorClosed)
	assert.ErrorIs(t, err, dberrors.ErrInterface)

	other := conn.Cursor()
	require.NoError(t, conn.Close())
	assert.True(t, conn.IsClosed())
	_, err = other.Execute(ctx, "SELECT ID, Name FROM People")
	assert.ErrorIs(t, err, client.ErrConnClosed)
	require.NoError(t, conn.Close())
}

func TestCanceledContext(t *testing.T) {
	s := newServer(t)
	s.AddQuery("SELECT ID, Name FROM People", people())
	conn := connect(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conn.Cursor().Execute(ctx, "SELECT ID, Name FROM People")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, dberrors.ErrOperational)
	assert.False(t, conn.IsClosed())
	assert.Equal(t, 0, s.GetQueryCalledNum("SELECT ID, Name FROM People"))
}

// rawReply is one message a rawServer sends back. A non-zero length
// overrides the header's body length and no body is written.
type rawReply struct {
	status protocol.Status
	body   []byte
	length uint32
}

// rawServer accepts a single connection and answers every request with the
// messages reply returns for it. It returns the config to reach it.
func rawServer(t *testing.T, reply func(h wire.Header) []rawReply) *client.Config {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		for {
			h, _, err := wire.ReadMessage(nc)
			if err != nil {
				return
			}
			for _, r := range reply(h) {
				rh := wire.NewResponseHeader(r.status, h.Sequence, h.StatementID)
				if r.length != 0 {
					rh.Length = r.length
					_, err = nc.Write(rh.AppendTo(nil))
				} else {
					err = wire.WriteMessage(nc, rh, r.body)
				}
				if err != nil {
					return
				}
			}
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
	})

	addr := ln.Addr().(*net.TCPAddr)
	return &client.Config{Host: "127.0.0.1", Port: addr.Port, Namespace: "USER", AutoCommit: true}
}

func connectReply() []rawReply {
	w := wire.NewWriter()
	w.WriteString("raw 1.0")
	w.WriteInt(0)
	return []rawReply{{status: protocol.StatusOK, body: w.Bytes()}}
}

func TestFramingErrorClosesConnection(t *testing.T) {
	var queries atomic.Int32
	cfg := rawServer(t, func(h wire.Header) []rawReply {
		if h.Op() == protocol.OpConnect {
			return connectReply()
		}
		queries.Add(1)
		// The metadata message is empty, so the data page behind it is
		// left unread.
		return []rawReply{{status: protocol.StatusOK}, {status: protocol.StatusEndOfData}}
	})

	conn, err := client.Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Cursor().Execute(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, dberrors.ErrOperational)
	assert.ErrorIs(t, err, dberrors.ErrFraming)
	assert.True(t, conn.IsClosed())

	_, err = conn.Cursor().Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, client.ErrConnClosed)
	assert.Equal(t, int32(1), queries.Load())
}

func TestOversizedResponseClosesConnection(t *testing.T) {
	cfg := rawServer(t, func(h wire.Header) []rawReply {
		if h.Op() == protocol.OpConnect {
			return connectReply()
		}
		return []rawReply{{status: protocol.StatusOK, length: wire.MaxBodySize + 1}}
	})

	conn, err := client.Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Commit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dberrors.ErrFraming)
	assert.Equal(t, dberrors.KindOperational, dberrors.KindOf(err))
	assert.True(t, conn.IsClosed())
}
