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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

const connBufferSize = 16 * 1024

// listener accepts client connections and serves each on its own
// goroutine.
type listener struct {
	listener net.Listener
	server   *Server
	logger   *slog.Logger

	// nextConnectionID is an atomic counter for assigning connection IDs.
	nextConnectionID atomic.Uint32

	// mu guards conns.
	mu    sync.Mutex
	conns map[uint32]net.Conn

	// wg tracks active connection handlers.
	wg sync.WaitGroup

	// ctx is cancelled when close is called.
	ctx    context.Context
	cancel context.CancelFunc
}

func newListener(address string, s *Server, logger *slog.Logger) (*listener, error) {
	netListener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	ctx, cancel := context.WithCancel(context.TODO())
	return &listener{
		listener: netListener,
		server:   s,
		logger:   logger.With("component", "fakeserver"),
		conns:    make(map[uint32]net.Conn),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// serve accepts connections until the listener is closed.
func (l *listener) serve() {
	for {
		netConn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				l.logger.Error("failed to accept connection", "error", err)
				continue
			}
		}

		connID := l.nextConnectionID.Add(1)
		l.mu.Lock()
		l.conns[connID] = netConn
		l.mu.Unlock()

		c := &serverConn{
			id:      connID,
			server:  l.server,
			netConn: netConn,
			reader:  bufio.NewReaderSize(netConn, connBufferSize),
			writer:  bufio.NewWriterSize(netConn, connBufferSize),
			stmts:   make(map[uint32]*stmtState),
			readPos: make(map[string]int),
			logger:  l.logger.With("conn_id", connID),
		}
		l.wg.Go(func() {
			l.handleConnection(c)
		})
	}
}

func (l *listener) handleConnection(c *serverConn) {
	defer func() {
		if x := recover(); x != nil {
			c.logger.Error("panic in connection handler", "panic", x)
		}
		l.mu.Lock()
		delete(l.conns, c.id)
		l.mu.Unlock()
		_ = c.netConn.Close()
	}()

	c.logger.Debug("connection accepted", "remote_addr", c.netConn.RemoteAddr())
	if err := c.serve(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("connection error", "error", err)
	}
	c.logger.Debug("connection closed")
}

// close stops accepting, closes open connections and waits for their
// handlers to return.
func (l *listener) close() error {
	l.cancel()
	err := l.listener.Close()
	l.mu.Lock()
	for _, c := range l.conns {
		_ = c.Close()
	}
	l.mu.Unlock()
	l.wg.Wait()
	return err
}

// Addr returns the listener's network address.
func (l *listener) Addr() net.Addr {
	return l.listener.Addr()
}
