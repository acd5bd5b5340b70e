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
	"github.com/multigres/listsql/go/common/dberrors"
)

// Misuse errors. They are interface errors: errors.Is(err,
// dberrors.ErrInterface) holds for each of them.
var (
	ErrConnClosed            = &dberrors.Error{Kind: dberrors.KindInterface, Message: "connection is closed"}
	ErrCursorClosed          = &dberrors.Error{Kind: dberrors.KindInterface, Message: "cursor is closed"}
	ErrNoResultSet           = &dberrors.Error{Kind: dberrors.KindInterface, Message: "no result set to fetch from"}
	ErrParameterListMismatch = &dberrors.Error{Kind: dberrors.KindInterface, Message: "parameter list does not match the procedure"}
	ErrBatchMismatch         = &dberrors.Error{Kind: dberrors.KindInterface, Message: "batch parameters have different set counts"}
)

// misuse wraps a sentinel with detail while keeping errors.Is working for both
// the sentinel and dberrors.ErrInterface.
func misuse(sentinel *dberrors.Error, detail string) error {
	return &dberrors.Error{Kind: dberrors.KindInterface, Message: sentinel.Message + ": " + detail, Err: sentinel}
}
