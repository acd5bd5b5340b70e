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

// Package protocol defines the constants of the typed-list SQL wire protocol:
// request op codes, response status codes, statement feature flags and the
// fixed sizes shared by the client and the test server.
package protocol

// Version is the protocol version sent in the connect request.
const Version = 1

// HeaderSize is the size of every message header in bytes.
const HeaderSize = 14

// OpCode identifies a request. It occupies the last two bytes of a request
// header as two ASCII characters.
type OpCode string

// Request op codes.
const (
	OpConnect          OpCode = "CN"
	OpDisconnect       OpCode = "DC"
	OpPrepare          OpCode = "PP"
	OpDirectQuery      OpCode = "DQ"
	OpDirectUpdate     OpCode = "DU"
	OpPreparedQuery    OpCode = "PQ"
	OpPreparedUpdate   OpCode = "PU"
	OpFetchData        OpCode = "FD"
	OpMoreResults      OpCode = "MR"
	OpPrepareProcedure OpCode = "PS"
	OpProcedureQuery   OpCode = "SQ"
	OpProcedureUpdate  OpCode = "SU"
	OpExecuteMultiple  OpCode = "MS"
	OpStoreBinary      OpCode = "SB"
	OpStoreCharacter   OpCode = "SC"
	OpReadStream       OpCode = "RS"
	OpServerError      OpCode = "SE"
	OpGeneratedKeys    OpCode = "GK"
	OpCommit           OpCode = "TC"
	OpRollback         OpCode = "TR"
	OpAutoCommit       OpCode = "AC"
)

// Valid reports whether the op code has the two-byte wire form.
func (o OpCode) Valid() bool {
	return len(o) == 2
}

// Status is the int16 carried in the last two bytes of a response header.
// Zero and positive values are protocol statuses, negative values are SQL
// error codes.
type Status int16

const (
	// StatusOK means the request succeeded and, for paged results, that more
	// pages are available.
	StatusOK Status = 0

	// StatusEndOfData marks the last page of a result set or the end of a
	// stream. It is not an error.
	StatusEndOfData Status = 100

	// StatusNoStream means a stream handle does not name a stored stream.
	StatusNoStream Status = 403

	// StatusStaleStatement means the server no longer knows the statement id
	// used by a prepared execute.
	StatusStaleStatement Status = 404
)

// IsSuccess reports whether the status carries a usable response body.
func (s Status) IsSuccess() bool {
	return s == StatusOK || s == StatusEndOfData
}

// Feature describes the optional row layout a server chose for a statement.
type Feature int

const (
	// FeatureNone means rows carry one item per column in column order.
	FeatureNone Feature = 0
	// FeatureFastSelect means columns carry a slot position and rows carry
	// maxRowItemCount items.
	FeatureFastSelect Feature = 1
	// FeatureFastInsert means parameters carry a slot position.
	FeatureFastInsert Feature = 2
)

// Result markers returned by multiple-result-set requests.
const (
	// ResultSetFollows announces column metadata and rows in the same body.
	ResultSetFollows = -1
	// ResultsDone means there are no more results.
	ResultsDone = -2
)

// Stored procedure return types from the prepare procedure response.
const (
	ProcUpdate                = 0
	ProcQuery                 = 1
	ProcUpdateWithReturn      = 2
	ProcQueryWithReturn       = 3
	ProcMultipleResults       = -1
	ProcMultipleResultsReturn = -2
)

// NoGeneratedKeyColumn is sent where an update names no auto-generated key column.
const NoGeneratedKeyColumn = -1

// NewStreamHandle is the handle sent with the first chunk of a new stream.
const NewStreamHandle = "0"

// Parameter info markers.
const (
	MarkerParameter = "?"
	MarkerLiteral   = "c"
)

// Default sizes.
const (
	DefaultInlineThreshold = 3 * 1024 * 1024
	DefaultStreamChunkSize = 4096
	DefaultCacheSize       = 50
	DefaultPort            = 1972
)
