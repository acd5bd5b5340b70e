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

package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/multigres/listsql/go/client"
	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/preparser"
	"github.com/multigres/listsql/go/common/sqltypes"
)

// conn adapts one client.Conn.
type conn struct {
	cn *client.Conn
}

// Prepare returns a statement bound to this connection. The client prepares
// and caches the statement on first execution.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext parses the statement to learn its placeholder count. The
// return slot of ? = CALL p(?) is not a placeholder.
func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if c.cn.IsClosed() {
		return nil, driver.ErrBadConn
	}
	st, err := preparser.Parse(query, preparser.Options{})
	if err != nil {
		return nil, dberrors.Interface(err)
	}
	return &stmt{conn: c, query: query, numInput: st.Placeholders()}, nil
}

// Close closes the connection.
func (c *conn) Close() error {
	return c.cn.Close()
}

// Begin starts a transaction.
func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx turns autocommit off until the transaction ends. A connection
// opened with autocommit off is always in a transaction, so Begin only
// marks its boundary.
func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if sql.IsolationLevel(opts.Isolation) != sql.LevelDefault {
		return nil, dberrors.Interfacef("isolation level %s is not supported", sql.IsolationLevel(opts.Isolation))
	}
	if opts.ReadOnly {
		return nil, dberrors.Interfacef("read-only transactions are not supported")
	}
	restore := c.cn.AutoCommit()
	if restore {
		if err := c.cn.SetAutoCommit(ctx, false); err != nil {
			return nil, err
		}
	}
	return &tx{conn: c, restore: restore}, nil
}

// QueryContext executes a query and streams its rows.
func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	cur, err := c.run(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return &rows{ctx: ctx, cur: cur}, nil
}

// ExecContext executes a statement that does not return rows.
func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	cur, err := c.run(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if cur.Columns() != nil {
		// Discard the rows of a query run through Exec.
		cur.Close()
		return driver.RowsAffected(0), nil
	}
	return &result{cur: cur}, nil
}

// run executes query on a new cursor and fills sql.Out destinations.
func (c *conn) run(ctx context.Context, query string, args []driver.NamedValue) (*client.Cursor, error) {
	values, outs, err := bindArgs(args)
	if err != nil {
		return nil, err
	}
	cur := c.cn.Cursor()
	if _, err := cur.Execute(ctx, query, values...); err != nil {
		cur.Close()
		return nil, err
	}
	if len(outs) > 0 {
		if err := assignOutputs(cur, outs); err != nil {
			cur.Close()
			return nil, err
		}
	}
	return cur, nil
}

// CheckNamedValue accepts every value the client can bind, plus sql.Out
// for procedure output arguments. Anything else goes through the default
// database/sql conversion.
func (c *conn) CheckNamedValue(nv *driver.NamedValue) error {
	switch v := nv.Value.(type) {
	case sql.Out:
		return checkOut(v)
	case client.OutParam, client.InOutParam:
		return nil
	}
	if nv.Value == client.Default {
		return nil
	}
	if sqltypes.Validate(nv.Value) == nil {
		return nil
	}
	return driver.ErrSkip
}

// IsValid reports whether the pool may reuse the connection.
func (c *conn) IsValid() bool {
	return !c.cn.IsClosed()
}

// ResetSession rejects connections the server closed.
func (c *conn) ResetSession(ctx context.Context) error {
	if c.cn.IsClosed() {
		return driver.ErrBadConn
	}
	return nil
}

// tx ends a transaction started by BeginTx.
type tx struct {
	conn *conn
	// restore turns autocommit back on when the transaction ends.
	restore bool
}

// Commit commits the transaction.
func (t *tx) Commit() error {
	return t.end(t.conn.cn.Commit)
}

// Rollback aborts the transaction.
func (t *tx) Rollback() error {
	return t.end(t.conn.cn.Rollback)
}

func (t *tx) end(fn func(context.Context) error) error {
	ctx := context.Background()
	err := fn(ctx)
	if t.restore {
		err = errors.Join(err, t.conn.cn.SetAutoCommit(ctx, true))
	}
	return err
}

var (
	_ driver.Conn               = (*conn)(nil)
	_ driver.ConnPrepareContext = (*conn)(nil)
	_ driver.ConnBeginTx        = (*conn)(nil)
	_ driver.QueryerContext     = (*conn)(nil)
	_ driver.ExecerContext      = (*conn)(nil)
	_ driver.NamedValueChecker  = (*conn)(nil)
	_ driver.Validator          = (*conn)(nil)
	_ driver.SessionResetter    = (*conn)(nil)
	_ driver.Tx                 = (*tx)(nil)
)
