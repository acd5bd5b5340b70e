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

package sqltypes

// ParameterMode tells how a parameter slot is used by a statement.
type ParameterMode int

const (
	ModeUnknown ParameterMode = iota
	ModeInput
	ModeInputOutput
	ModeUnused
	ModeOutput
	ModeReplacedLiteral
	ModeDefault
	ModeReturnValue
)

var modeNames = [...]string{
	ModeUnknown:         "UNKNOWN",
	ModeInput:           "INPUT",
	ModeInputOutput:     "INPUT_OUTPUT",
	ModeUnused:          "UNUSED",
	ModeOutput:          "OUTPUT",
	ModeReplacedLiteral: "REPLACED_LITERAL",
	ModeDefault:         "DEFAULT_PARAMETER",
	ModeReturnValue:     "RETURN_VALUE",
}

func (m ParameterMode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "UNKNOWN"
}

// SendsValue reports whether a value travels to the server for this mode.
func (m ParameterMode) SendsValue() bool {
	switch m {
	case ModeOutput, ModeDefault, ModeReturnValue, ModeUnused:
		return false
	}
	return true
}

// ReturnsValue reports whether the server sends a value back for this mode.
func (m ParameterMode) ReturnsValue() bool {
	return m == ModeOutput || m == ModeInputOutput || m == ModeReturnValue
}

// ServerReturn records how a procedure's return value was reconciled.
type ServerReturn int

const (
	// ReturnNone: neither side has a return value.
	ReturnNone ServerReturn = iota
	// ReturnIgnore: the server returns a value the caller did not declare; a
	// synthetic slot receives it.
	ReturnIgnore
	// ReturnHas: the server returns a value into the caller's return slot.
	ReturnHas
	// ReturnNull: the caller declared a return slot the server does not fill.
	ReturnNull
)

// Parameter is one statement parameter slot. Values holds one bound value per
// batch set; a non-batched execute has exactly one.
type Parameter struct {
	Mode      ParameterMode
	Type      SQLType
	Precision int
	Scale     int
	Nullable  Nullability
	// Slot is the 1-based wire position under the fast-insert layout.
	Slot   int
	Name   string
	Values []any
}

// Clone copies the descriptor without its bound values.
func (p *Parameter) Clone() *Parameter {
	c := *p
	c.Values = nil
	return &c
}

// Bind appends one value.
func (p *Parameter) Bind(v any) {
	p.Values = append(p.Values, v)
}

// SetCount returns the number of bound values.
func (p *Parameter) SetCount() int {
	return len(p.Values)
}

// Value returns the value bound for set i, or nil.
func (p *Parameter) Value(i int) any {
	if i < 0 || i >= len(p.Values) {
		return nil
	}
	return p.Values[i]
}

// CloneParameters copies a descriptor list without values.
func CloneParameters(params []*Parameter) []*Parameter {
	out := make([]*Parameter, len(params))
	for i, p := range params {
		out[i] = p.Clone()
	}
	return out
}
