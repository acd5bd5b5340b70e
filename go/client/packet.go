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
	"errors"
	"fmt"

	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/wire"
)

// response is one server message.
type response struct {
	header wire.Header
	body   []byte
}

func (r *response) status() protocol.Status {
	return r.header.Status()
}

func (r *response) reader() *wire.Reader {
	return wire.NewReader(r.body)
}

// All functions below require bufmu to be held.

func (c *Conn) nextSequence() uint32 {
	c.sequence++
	return c.sequence
}

func (c *Conn) nextStatementID() uint32 {
	c.statementID++
	return c.statementID
}

// broken closes the connection after a socket failure.
func (c *Conn) broken(err error, format string, args ...any) error {
	c.closed.Store(true)
	_ = c.conn.Close()
	return dberrors.Operational(err, format, args...)
}

// send writes one request and flushes it. It returns the request's sequence
// number.
func (c *Conn) send(op protocol.OpCode, stmtID uint32, body []byte) (uint32, error) {
	seq := c.nextSequence()
	if err := wire.WriteMessage(c.bufferedWriter, wire.NewRequestHeader(op, seq, stmtID), body); err != nil {
		return 0, c.broken(err, "failed to write %s request", op)
	}
	if err := c.bufferedWriter.Flush(); err != nil {
		return 0, c.broken(err, "failed to write %s request", op)
	}
	return seq, nil
}

// receive reads one message and checks it answers the request with the given
// sequence number and, when stmtID is non-zero, statement id.
func (c *Conn) receive(seq, stmtID uint32) (*response, error) {
	h, body, err := wire.ReadMessage(c.bufferedReader)
	if err != nil {
		var fe *wire.FramingError
		if errors.As(err, &fe) {
			return nil, dberrors.Framing(err)
		}
		return nil, c.broken(err, "failed to read response")
	}
	if h.Sequence != seq {
		return nil, dberrors.Framing(fmt.Errorf("response sequence %d does not answer request %d", h.Sequence, seq))
	}
	if stmtID != 0 && h.StatementID != stmtID {
		return nil, dberrors.Framing(fmt.Errorf("response statement %d does not answer statement %d", h.StatementID, stmtID))
	}
	return &response{header: h, body: body}, nil
}

// receiveChecked reads a response and turns an error status into a typed
// error. Statuses with a protocol meaning (end of data, no stream, stale
// statement) are returned to the caller.
func (c *Conn) receiveChecked(seq, stmtID uint32) (*response, error) {
	resp, err := c.receive(seq, stmtID)
	if err != nil {
		return nil, err
	}
	switch resp.status() {
	case protocol.StatusOK, protocol.StatusEndOfData, protocol.StatusNoStream, protocol.StatusStaleStatement:
		return resp, nil
	}
	return nil, c.serverError(resp.status())
}

// roundTrip sends a request and reads its checked response.
func (c *Conn) roundTrip(op protocol.OpCode, stmtID uint32, body []byte) (*response, error) {
	seq, err := c.send(op, stmtID, body)
	if err != nil {
		return nil, err
	}
	return c.receiveChecked(seq, stmtID)
}

// serverError fetches the message for a failed status.
func (c *Conn) serverError(code protocol.Status) error {
	w := wire.NewWriter()
	w.WriteInt(int64(code))
	seq, err := c.send(protocol.OpServerError, 0, w.Bytes())
	if err != nil {
		return err
	}
	resp, err := c.receive(seq, 0)
	if err != nil {
		return err
	}
	msg, err := resp.reader().ReadString()
	if err != nil {
		msg = ""
	}
	return dberrors.FromStatus(int(code), msg)
}

// expectSuccess turns any status other than ok or end of data into a typed
// error.
func (c *Conn) expectSuccess(resp *response) error {
	if resp.status().IsSuccess() {
		return nil
	}
	return c.serverError(resp.status())
}
