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

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/multigres/listsql/go/common/protocol"
)

// MaxBodySize bounds the body length accepted from a peer.
const MaxBodySize = 1 << 30

// Header is the fixed 14-byte prefix of every message. All integers are
// little-endian. Code holds the op code of a request or the int16 status of
// a response.
type Header struct {
	Length      uint32
	Sequence    uint32
	StatementID uint32
	Code        [2]byte
}

// NewRequestHeader builds the header of a request.
func NewRequestHeader(op protocol.OpCode, sequence, statementID uint32) Header {
	h := Header{Sequence: sequence, StatementID: statementID}
	copy(h.Code[:], op)
	return h
}

// NewResponseHeader builds the header of a response.
func NewResponseHeader(status protocol.Status, sequence, statementID uint32) Header {
	h := Header{Sequence: sequence, StatementID: statementID}
	h.SetStatus(status)
	return h
}

// Op returns the request op code.
func (h Header) Op() protocol.OpCode {
	return protocol.OpCode(h.Code[:])
}

// Status returns the response status.
func (h Header) Status() protocol.Status {
	return protocol.Status(int16(binary.LittleEndian.Uint16(h.Code[:])))
}

// SetStatus stores a response status in the code field.
func (h *Header) SetStatus(s protocol.Status) {
	binary.LittleEndian.PutUint16(h.Code[:], uint16(s))
}

// AppendTo appends the encoded header to b.
func (h Header) AppendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.Length)
	b = binary.LittleEndian.AppendUint32(b, h.Sequence)
	b = binary.LittleEndian.AppendUint32(b, h.StatementID)
	return append(b, h.Code[0], h.Code[1])
}

// ParseHeader decodes a header from the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < protocol.HeaderSize {
		return Header{}, truncated(len(b))
	}
	h := Header{
		Length:      binary.LittleEndian.Uint32(b[0:4]),
		Sequence:    binary.LittleEndian.Uint32(b[4:8]),
		StatementID: binary.LittleEndian.Uint32(b[8:12]),
	}
	copy(h.Code[:], b[12:14])
	return h, nil
}

// ReadMessage reads one header and its body from r.
func ReadMessage(r io.Reader) (Header, []byte, error) {
	var hb [protocol.HeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return Header{}, nil, err
	}
	h, err := ParseHeader(hb[:])
	if err != nil {
		return Header{}, nil, err
	}
	if h.Length > MaxBodySize {
		return Header{}, nil, &FramingError{Err: fmt.Errorf("%w: body length %d exceeds limit", ErrMalformed, h.Length)}
	}
	if h.Length == 0 {
		return h, nil, nil
	}
	body := make([]byte, h.Length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, err
	}
	return h, body, nil
}

// WriteMessage writes the header, with its length set from body, followed by
// the body. It does not flush.
func WriteMessage(w io.Writer, h Header, body []byte) error {
	h.Length = uint32(len(body))
	buf := make([]byte, 0, protocol.HeaderSize+len(body))
	buf = h.AppendTo(buf)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}
