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
	"context"

	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
)

// StreamHandle names a value uploaded to the server ahead of the statement
// that uses it. It stays valid only until that statement completes.
type StreamHandle struct {
	id     string
	binary bool
	size   int
	inert  bool
}

// StreamHandle returns the server handle. It implements sqltypes.Handle.
func (h *StreamHandle) StreamHandle() string {
	return h.id
}

// Binary reports whether the stream holds binary data.
func (h *StreamHandle) Binary() bool {
	return h.binary
}

// Size returns the uploaded length in bytes.
func (h *StreamHandle) Size() int {
	return h.size
}

// Inert reports whether the statement the handle was uploaded for is done.
func (h *StreamHandle) Inert() bool {
	return h.inert
}

// retireStreams marks the current statement's handles inert.
func (cur *Cursor) retireStreams() {
	for _, h := range cur.streams {
		h.inert = true
	}
	cur.streams = nil
}

// uploadLocked stores data in chunks and returns the final handle. Requires
// bufmu.
func (cur *Cursor) uploadLocked(data []byte, binary bool) (*StreamHandle, error) {
	c := cur.conn
	op := protocol.OpStoreCharacter
	if binary {
		op = protocol.OpStoreBinary
	}
	chunk := c.config.StreamChunkSize
	handle := protocol.NewStreamHandle
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		w := wire.NewWriter()
		w.WriteString(handle)
		w.WriteRawUint32(uint32(end - off))
		w.WriteRaw(data[off:end])
		resp, err := c.roundTrip(op, 0, w.Bytes())
		if err != nil {
			return nil, err
		}
		if resp.status() != protocol.StatusOK {
			return nil, c.serverError(resp.status())
		}
		if handle, err = resp.reader().ReadString(); err != nil {
			return nil, dberrors.Framing(err)
		}
	}
	h := &StreamHandle{id: handle, binary: binary, size: len(data)}
	cur.streams = append(cur.streams, h)
	cur.logger.Debug("uploaded stream", "handle", handle, "size", len(data), "binary", binary)
	return h, nil
}

// downloadLocked reads a whole stream. A handle naming no stream yields nil.
// Requires bufmu.
func (cur *Cursor) downloadLocked(ref sqltypes.StreamRef) (any, error) {
	c := cur.conn
	var data []byte
	for {
		w := wire.NewWriter()
		w.WriteString(ref.Handle)
		w.WriteInt(int64(c.config.StreamChunkSize))
		resp, err := c.roundTrip(protocol.OpReadStream, 0, w.Bytes())
		if err != nil {
			return nil, err
		}
		switch resp.status() {
		case protocol.StatusNoStream:
			return nil, nil
		case protocol.StatusStaleStatement:
			return nil, c.serverError(resp.status())
		}
		data = append(data, resp.body...)
		if resp.status() == protocol.StatusEndOfData {
			break
		}
	}
	if ref.Binary {
		if data == nil {
			data = []byte{}
		}
		return data, nil
	}
	return wire.DecodeLatin1(data), nil
}

// ReadStream downloads the content a stream reference names.
func (cur *Cursor) ReadStream(ctx context.Context, ref sqltypes.StreamRef) (any, error) {
	if err := cur.checkOpen(); err != nil {
		return nil, err
	}
	var out any
	err := cur.conn.exclusive(ctx, func() error {
		var err error
		out, err = cur.downloadLocked(ref)
		return err
	})
	return out, err
}

// bindValueLocked converts one parameter value for the declared type,
// uploading values too large to send inline. Requires bufmu.
func (cur *Cursor) bindValueLocked(v any, declared sqltypes.SQLType) (wire.Value, error) {
	if h, ok := v.(*StreamHandle); ok && h.inert {
		return wire.Value{}, dberrors.Interfacef("stream handle %s is no longer valid", h.id)
	}
	if declared.IsStream() || declared == sqltypes.TypeUnknown {
		threshold := cur.conn.config.InlineThreshold
		switch x := v.(type) {
		case []byte:
			if len(x) > threshold {
				h, err := cur.uploadLocked(x, true)
				if err != nil {
					return wire.Value{}, err
				}
				return wire.Text(h.id), nil
			}
		case string:
			if len(x) > threshold {
				data := []byte(x)
				binary := declared.IsBinary()
				if !binary {
					var ok bool
					if data, ok = wire.EncodeLatin1(x); !ok {
						return wire.Value{}, dberrors.Interfacef("character stream value is not representable in latin-1")
					}
				}
				h, err := cur.uploadLocked(data, binary)
				if err != nil {
					return wire.Value{}, err
				}
				return wire.Text(h.id), nil
			}
		}
	}
	out, err := sqltypes.ToWire(v, declared)
	if err != nil {
		return wire.Value{}, dberrors.Interface(err)
	}
	return out, nil
}
