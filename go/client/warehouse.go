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
	"fmt"
	"sort"

	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/wire"
)

// segment is one data page. offsets holds the start of each row in body.
type segment struct {
	first   int
	body    []byte
	offsets []int
}

// warehouse holds the pages of a result set received so far. Rows are
// decoded on demand.
type warehouse struct {
	width    int
	segments []*segment
	rows     int
	// done is set once the server sent the last page.
	done bool
}

func newWarehouse(width int) *warehouse {
	return &warehouse{width: width}
}

func (wh *warehouse) len() int {
	return wh.rows
}

// add indexes the rows of one page. A page must hold whole rows.
func (wh *warehouse) add(body []byte, last bool) error {
	if last {
		wh.done = true
	}
	if len(body) == 0 {
		return nil
	}
	if wh.width <= 0 {
		return dberrors.Framing(fmt.Errorf("%w: data page for a result without columns", wire.ErrMalformed))
	}
	seg := &segment{first: wh.rows, body: body}
	r := wire.NewReader(body)
	for !r.AtEnd() {
		start := r.Offset()
		for i := 0; i < wh.width; i++ {
			if err := r.Skip(); err != nil {
				return dberrors.Framing(err)
			}
			if i < wh.width-1 && r.AtEnd() {
				return dberrors.Framing(fmt.Errorf("%w: partial row at offset %d", wire.ErrTruncated, start))
			}
		}
		seg.offsets = append(seg.offsets, start)
	}
	wh.segments = append(wh.segments, seg)
	wh.rows += len(seg.offsets)
	return nil
}

// row decodes the items of row i.
func (wh *warehouse) row(i int) ([]wire.Value, error) {
	if i < 0 || i >= wh.rows {
		return nil, fmt.Errorf("row %d out of range", i)
	}
	n := sort.Search(len(wh.segments), func(k int) bool {
		return wh.segments[k].first > i
	}) - 1
	seg := wh.segments[n]
	r := wire.NewReader(seg.body[seg.offsets[i-seg.first]:])
	values := make([]wire.Value, wh.width)
	for k := range values {
		v, err := r.ReadValue()
		if err != nil {
			return nil, dberrors.Framing(err)
		}
		values[k] = v
	}
	return values, nil
}
