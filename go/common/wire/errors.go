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
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a read runs past the end of a message.
	ErrTruncated = errors.New("message truncated")

	// ErrMalformed is returned when an item does not have a known shape.
	ErrMalformed = errors.New("malformed item")
)

// FramingError reports a message that could not be decoded. Offset is the
// position in the body where decoding stopped.
type FramingError struct {
	Offset int
	Err    error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("wire: %v at offset %d", e.Err, e.Offset)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

func truncated(offset int) error {
	return &FramingError{Offset: offset, Err: ErrTruncated}
}

func malformed(offset int, format string, args ...any) error {
	return &FramingError{Offset: offset, Err: fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))}
}
