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

// Package client implements a driver for the typed-list SQL wire protocol.
// A Conn is one sequential conversation with the server; Cursors created
// from it execute statements, page through results, call stored procedures
// and move large values through server-side streams.
package client

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/wire"
)

const (
	// connBufferSize is the size of read and write buffers.
	connBufferSize = 16 * 1024

	defaultClientName = "listsql-go"
)

// Config holds the configuration for connecting to a server.
type Config struct {
	// Host is the server hostname or IP address.
	Host string `mapstructure:"host"`

	// Port is the server port number. Zero means protocol.DefaultPort.
	Port int `mapstructure:"port"`

	// Namespace is the server-side namespace to attach to.
	Namespace string `mapstructure:"namespace"`

	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// DialTimeout is the timeout for establishing the connection.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// CacheSize bounds the statement cache. Zero means
	// protocol.DefaultCacheSize; negative disables caching.
	CacheSize int `mapstructure:"cache_size"`

	// InlineThreshold is the largest LONG value sent inline. Larger values
	// are uploaded as streams first.
	InlineThreshold int `mapstructure:"inline_threshold"`

	// StreamChunkSize is the size of one stream upload or download frame.
	StreamChunkSize int `mapstructure:"stream_chunk_size"`

	// FetchSize is the default number of rows returned by FetchMany.
	FetchSize int `mapstructure:"fetch_size"`

	// AutoCommit is the transaction mode requested at connect time.
	AutoCommit bool `mapstructure:"autocommit"`

	// ParameterizeLiterals turns comparison literals into parameters so that
	// statements differing only in those literals share a cache entry.
	ParameterizeLiterals bool `mapstructure:"parameterize_literals"`

	// ClientName identifies the driver to the server.
	ClientName string `mapstructure:"client_name"`

	// Logger receives driver logs. Nil means slog.Default().
	Logger *slog.Logger `mapstructure:"-"`
}

// Address returns host:port.
func (c *Config) Address() string {
	port := c.Port
	if port == 0 {
		port = protocol.DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c *Config) withDefaults() *Config {
	cfg := *c
	if cfg.CacheSize == 0 {
		cfg.CacheSize = protocol.DefaultCacheSize
	}
	if cfg.InlineThreshold <= 0 {
		cfg.InlineThreshold = protocol.DefaultInlineThreshold
	}
	if cfg.StreamChunkSize <= 0 {
		cfg.StreamChunkSize = protocol.DefaultStreamChunkSize
	}
	if cfg.FetchSize <= 0 {
		cfg.FetchSize = 1
	}
	if cfg.ClientName == "" {
		cfg.ClientName = defaultClientName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &cfg
}

// Conn represents a client connection. All requests of one logical
// operation run under bufmu, so cursors sharing a connection take turns.
type Conn struct {
	// conn is the underlying network connection.
	conn net.Conn

	bufferedReader *bufio.Reader
	bufferedWriter *bufio.Writer

	// bufmu serializes whole operations on the connection. Every field
	// below that changes after Connect is protected by it.
	bufmu sync.Mutex

	config *Config
	logger *slog.Logger

	// sequence and statementID only increase.
	sequence    uint32
	statementID uint32

	cache *statementCache

	// busy maps a statement id to the cursor whose result set on that id is
	// still being paged.
	busy map[uint32]*Cursor

	autoCommit bool

	serverVersion  string
	serverFeatures int64

	closed atomic.Bool
}

// Connect dials the server and performs the connect handshake. Failures are
// operational errors wrapping the cause.
func Connect(ctx context.Context, config *Config) (*Conn, error) {
	cfg := config.withDefaults()
	address := cfg.Address()

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, dberrors.Operational(err, "failed to connect to %s", address)
	}

	c := &Conn{
		conn:           netConn,
		bufferedReader: bufio.NewReaderSize(netConn, connBufferSize),
		bufferedWriter: bufio.NewWriterSize(netConn, connBufferSize),
		config:         cfg,
		logger:         cfg.Logger.With("conn", "listsql", "addr", address),
		cache:          newStatementCache(cfg.CacheSize),
		busy:           make(map[uint32]*Cursor),
	}

	if err := c.exclusive(ctx, c.handshake); err != nil {
		c.Close()
		return nil, dberrors.Operational(err, "handshake with %s failed", address)
	}
	if !cfg.AutoCommit {
		// The server starts in autocommit mode.
		if err := c.SetAutoCommit(ctx, false); err != nil {
			c.Close()
			return nil, dberrors.Operational(err, "handshake with %s failed", address)
		}
	} else {
		c.autoCommit = true
	}
	c.logger.Debug("connected", "server_version", c.serverVersion)
	return c, nil
}

// handshake sends the connect request.
func (c *Conn) handshake() error {
	w := wire.NewWriter()
	w.WriteInt(protocol.Version)
	w.WriteString(c.config.Namespace)
	w.WriteString(c.config.User)
	w.WriteString(c.config.Password)
	w.WriteString(c.config.ClientName)
	resp, err := c.roundTrip(protocol.OpConnect, 0, w.Bytes())
	if err != nil {
		return err
	}
	r := resp.reader()
	if c.serverVersion, err = r.ReadString(); err != nil {
		return dberrors.Framing(err)
	}
	if c.serverFeatures, err = r.ReadInt(); err != nil {
		return dberrors.Framing(err)
	}
	return nil
}

// Close sends a disconnect notice, when no request is in flight, and closes
// the socket. Cursors of a closed connection fail every operation.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil // Already closed.
	}

	// Best effort: a request in flight owns the socket until it returns.
	if c.bufmu.TryLock() {
		_ = wire.WriteMessage(c.bufferedWriter, wire.NewRequestHeader(protocol.OpDisconnect, c.sequence+1, 0), nil)
		_ = c.bufferedWriter.Flush()
		c.bufmu.Unlock()
	}

	return c.conn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// ServerVersion returns the version string sent by the server at connect.
func (c *Conn) ServerVersion() string {
	return c.serverVersion
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// exclusive runs fn while holding the connection for a whole logical
// operation. The context is checked before the lock is taken and its
// deadline bounds socket I/O.
//
// A framing error leaves an unknown part of the response unread, so the
// connection is closed rather than reused out of sync.
func (c *Conn) exclusive(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return dberrors.Operational(err, "request not sent")
	}
	c.bufmu.Lock()
	defer c.bufmu.Unlock()
	if c.closed.Load() {
		return ErrConnClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}
	err := fn()
	if dberrors.KindOf(err) == dberrors.KindFraming && !c.closed.Load() {
		c.logger.Warn("closing connection after malformed response", "error", err)
		return c.broken(err, "connection out of sync")
	}
	return err
}

// Commit commits the current transaction.
func (c *Conn) Commit(ctx context.Context) error {
	return c.exclusive(ctx, func() error {
		_, err := c.roundTrip(protocol.OpCommit, 0, nil)
		return err
	})
}

// Rollback rolls back the current transaction.
func (c *Conn) Rollback(ctx context.Context) error {
	return c.exclusive(ctx, func() error {
		_, err := c.roundTrip(protocol.OpRollback, 0, nil)
		return err
	})
}

// SetAutoCommit switches the server's transaction mode.
func (c *Conn) SetAutoCommit(ctx context.Context, on bool) error {
	return c.exclusive(ctx, func() error {
		w := wire.NewWriter()
		if on {
			w.WriteInt(1)
		} else {
			w.WriteInt(0)
		}
		if _, err := c.roundTrip(protocol.OpAutoCommit, 0, w.Bytes()); err != nil {
			return err
		}
		c.autoCommit = on
		return nil
	})
}

// AutoCommit reports the current transaction mode.
func (c *Conn) AutoCommit() bool {
	c.bufmu.Lock()
	defer c.bufmu.Unlock()
	return c.autoCommit
}

// CacheStats returns statement cache counters.
func (c *Conn) CacheStats() CacheStats {
	c.bufmu.Lock()
	defer c.bufmu.Unlock()
	return c.cache.Stats()
}

// Cursor returns a new cursor on the connection.
func (c *Conn) Cursor() *Cursor {
	return newCursor(c)
}

func (c *Conn) String() string {
	return fmt.Sprintf("listsql conn to %s", c.config.Address())
}
