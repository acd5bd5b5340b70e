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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransposeColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns [][]any
		want    [][]any
		wantErr bool
	}{
		{
			name:    "equal lengths",
			columns: [][]any{{1, 2, 3}, {"a", "b", "c"}},
			want:    [][]any{{1, "a"}, {2, "b"}, {3, "c"}},
		},
		{
			name:    "one short column repeats its last value",
			columns: [][]any{{1, 2, 3}, {"a", "b"}},
			want:    [][]any{{1, "a"}, {2, "b"}, {3, "b"}},
		},
		{
			name:    "two short is fatal",
			columns: [][]any{{1, 2, 3}, {"a"}},
			wantErr: true,
		},
		{
			name:    "empty column is fatal",
			columns: [][]any{{1}, {}},
			wantErr: true,
		},
		{
			name:    "no values",
			columns: [][]any{{}, {}},
			wantErr: true,
		},
		{
			name:    "single column",
			columns: [][]any{{1, 2}},
			want:    [][]any{{1}, {2}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := transposeColumns(tt.columns)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrBatchMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestSumCounts(t *testing.T) {
	assert.Equal(t, int64(6), sumCounts([]int64{1, 2, 3}))
	assert.Equal(t, int64(2), sumCounts([]int64{-1, 2, -1}))
	assert.Equal(t, int64(-1), sumCounts([]int64{-1, -1}))
	assert.Equal(t, int64(-1), sumCounts(nil))
	assert.Equal(t, int64(0), sumCounts([]int64{0}))
}
