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

// Package dberrors defines the error taxonomy of the driver. Every error a
// caller sees from a database operation is, or wraps, an *Error whose Kind
// tells whether the caller misused the API, the server rejected the
// statement, or the conversation with the server broke.
package dberrors

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/multigres/listsql/go/common/wire"
)

// Kind classifies an Error.
type Kind int

const (
	// KindInterface is a misuse of the driver API: wrong arity, closed
	// cursor, unsupported value, unreachable scroll target.
	KindInterface Kind = iota + 1
	// KindDatabase is a statement the server rejected.
	KindDatabase
	// KindIntegrity is a constraint violation reported by the server.
	KindIntegrity
	// KindOperational is a broken or refused connection.
	KindOperational
	// KindFraming is a malformed or truncated server response.
	KindFraming
)

func (k Kind) String() string {
	switch k {
	case KindInterface:
		return "InterfaceError"
	case KindDatabase:
		return "DatabaseError"
	case KindIntegrity:
		return "IntegrityError"
	case KindOperational:
		return "OperationalError"
	case KindFraming:
		return "FramingError"
	}
	return "Error"
}

// Sentinels for errors.Is. ErrDatabase also matches integrity, operational
// and framing errors.
var (
	ErrInterface   = &Error{Kind: KindInterface}
	ErrDatabase    = &Error{Kind: KindDatabase}
	ErrIntegrity   = &Error{Kind: KindIntegrity}
	ErrOperational = &Error{Kind: KindOperational}
	ErrFraming     = &Error{Kind: KindFraming}
)

// Error is a classified driver error.
type Error struct {
	Kind Kind
	// Code is the server SQL code, zero for client-side errors.
	Code    int
	Message string
	Err     error
}

// Error implements the error interface.
// Format: "Kind: message" with " [SQLCODE: n]" when the server sent a code.
func (e *Error) Error() string {
	s := e.Kind.String()
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg != "" {
		s += ": " + msg
	}
	if e.Code != 0 {
		s += " [SQLCODE: " + strconv.Itoa(e.Code) + "]"
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code != 0 || t.Message != "" || t.Err != nil {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindDatabase && e.Kind.isDatabase()
}

func (k Kind) isDatabase() bool {
	return k == KindDatabase || k == KindIntegrity || k == KindOperational || k == KindFraming
}

// Interfacef returns an interface error.
func Interfacef(format string, args ...any) *Error {
	return &Error{Kind: KindInterface, Message: fmt.Sprintf(format, args...)}
}

// Interface wraps err as an interface error.
func Interface(err error) *Error {
	return &Error{Kind: KindInterface, Err: err}
}

// Classify maps a server SQL code to a kind. Codes 0 and 100 are not errors
// and classify as zero.
func Classify(code int) Kind {
	if code < 0 {
		code = -code
	}
	switch code {
	case 0, 100:
		return 0
	case 108, 119, 121, 122:
		return KindIntegrity
	case 1, 12:
		return KindOperational
	}
	return KindDatabase
}

// FromStatus builds the error for a failed response status and the message
// fetched from the server.
func FromStatus(code int, message string) *Error {
	kind := Classify(code)
	if kind == 0 {
		kind = KindDatabase
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

// Framing wraps a codec error. Truncation gets its own message so that
// callers can tell a cut-off response from a garbled one.
func Framing(err error) *Error {
	msg := "unexpected server response format"
	if errors.Is(err, wire.ErrTruncated) {
		msg = "server response truncated"
	}
	return &Error{Kind: KindFraming, Message: msg, Err: err}
}

// Operational wraps a transport failure.
func Operational(err error, format string, args ...any) *Error {
	return &Error{Kind: KindOperational, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsIntegrity reports whether err is a constraint violation.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}
