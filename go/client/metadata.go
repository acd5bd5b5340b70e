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
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
)

// metaReader reads metadata fields, remembering the first decode error so
// that callers check once per block.
type metaReader struct {
	r   *wire.Reader
	err error
}

func (m *metaReader) int() int {
	if m.err != nil {
		return 0
	}
	v, err := m.r.ReadInt()
	m.err = err
	return int(v)
}

func (m *metaReader) string() string {
	if m.err != nil {
		return ""
	}
	v, err := m.r.ReadString()
	m.err = err
	return v
}

func (m *metaReader) count() int {
	n := m.int()
	if m.err == nil && (n < 0 || n > m.r.Remaining()) {
		m.err = &wire.FramingError{Offset: m.r.Offset(), Err: wire.ErrMalformed}
	}
	return n
}

func (m *metaReader) done() error {
	if m.err != nil {
		return dberrors.Framing(m.err)
	}
	return nil
}

// readColumns reads a column count and the column descriptors. With slots
// set, each column carries its 1-based item position.
func (m *metaReader) readColumns(slots bool) []*sqltypes.Column {
	n := m.count()
	if m.err != nil || n == 0 {
		return nil
	}
	cols := make([]*sqltypes.Column, n)
	for i := range cols {
		col := &sqltypes.Column{
			Name:      m.string(),
			Type:      sqltypes.SQLType(m.int()),
			Precision: m.int(),
			Scale:     m.int(),
			Nullable:  sqltypes.Nullability(m.int()),
			Label:     m.string(),
			Table:     m.string(),
			Schema:    m.string(),
			Catalog:   m.string(),
			Extra:     m.string(),
			Slot:      i + 1,
		}
		if slots {
			col.Slot = m.int()
		}
		cols[i] = col
	}
	return cols
}

// readParams reads the parameter descriptors of a prepare response.
func (m *metaReader) readParams(slots bool) []*sqltypes.Parameter {
	n := m.count()
	if m.err != nil || n == 0 {
		return nil
	}
	params := make([]*sqltypes.Parameter, n)
	for i := range params {
		p := &sqltypes.Parameter{
			Mode:      sqltypes.ModeUnknown,
			Type:      sqltypes.SQLType(m.int()),
			Precision: m.int(),
			Scale:     m.int(),
			Nullable:  sqltypes.Nullability(m.int()),
			Slot:      i + 1,
		}
		if slots {
			p.Slot = m.int()
		}
		params[i] = p
	}
	return params
}

// readProcParams reads the parameter descriptors of a prepare procedure
// response.
func (m *metaReader) readProcParams() []*sqltypes.Parameter {
	n := m.count()
	if m.err != nil || n == 0 {
		return nil
	}
	params := make([]*sqltypes.Parameter, n)
	for i := range params {
		params[i] = &sqltypes.Parameter{
			Mode:      sqltypes.ParameterMode(m.int()),
			Type:      sqltypes.SQLType(m.int()),
			Precision: m.int(),
			Scale:     m.int(),
			Nullable:  sqltypes.Nullability(m.int()),
			Name:      m.string(),
			Slot:      i + 1,
		}
	}
	return params
}

// readStatementMetadata reads a statement metadata block into st and
// returns the cacheable flag.
func readStatementMetadata(r *wire.Reader, st *CachedStatement) (bool, error) {
	m := &metaReader{r: r}
	st.Feature = protocol.Feature(m.int())
	if st.Feature != protocol.FeatureNone {
		st.MaxRowItemCount = m.int()
	}
	st.Columns = m.readColumns(st.Feature == protocol.FeatureFastSelect)
	st.Params = m.readParams(st.Feature == protocol.FeatureFastInsert)
	cacheable := m.int() != 0
	return cacheable, m.done()
}

// readProcedureMetadata reads a prepare procedure response into st and
// returns the cacheable flag.
func readProcedureMetadata(r *wire.Reader, st *CachedStatement) (bool, error) {
	m := &metaReader{r: r}
	st.ProcReturnType = m.int()
	switch st.ProcReturnType {
	case protocol.ProcUpdateWithReturn, protocol.ProcQueryWithReturn, protocol.ProcMultipleResultsReturn:
		st.ServerReturn = true
	}
	switch st.ProcReturnType {
	case protocol.ProcMultipleResults, protocol.ProcMultipleResultsReturn:
		st.MultipleResultSets = true
	}
	if st.isQuery() {
		st.Columns = m.readColumns(false)
	}
	st.Params = m.readProcParams()
	cacheable := m.int() != 0
	return cacheable, m.done()
}

// writeParamInfo writes the placeholder count and one marker per
// placeholder.
func writeParamInfo(w *wire.Writer, markers []string) {
	w.WriteInt(int64(len(markers)))
	for _, m := range markers {
		w.WriteString(m)
	}
}

// writeParameterBlock writes the set count, the parameter count and the
// values of every set in order.
func writeParameterBlock(w *wire.Writer, sets [][]wire.Value) {
	w.WriteInt(int64(len(sets)))
	width := 0
	if len(sets) > 0 {
		width = len(sets[0])
	}
	w.WriteInt(int64(width))
	for _, set := range sets {
		for _, v := range set {
			w.WriteValue(v)
		}
	}
}
