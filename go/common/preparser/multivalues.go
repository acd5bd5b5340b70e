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

package preparser

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MultiValuesInsert is a literal multi-row INSERT rewritten as a single-row
// statement plus one parameter set per row. The caller runs it as a batch.
type MultiValuesInsert struct {
	Query string
	Rows  [][]any
	// Params is the number of values per row.
	Params int
}

type valueItem struct {
	param bool
	value any
}

type multiValues struct {
	query string
	rows  [][]valueItem
}

// detectMultiValues returns nil unless the statement is
// INSERT ... VALUES (...), (...)[, ...] with only literals, NULL and
// placeholders inside the tuples.
func detectMultiValues(text string, tokens []Token) *multiValues {
	depth := 0
	values := -1
	for i, tok := range tokens {
		switch {
		case tok.isPunct("("):
			depth++
		case tok.isPunct(")"):
			depth--
		case depth == 0 && tok.isKeyword("VALUES"):
			values = i
		}
		if values >= 0 {
			break
		}
	}
	if values < 0 {
		return nil
	}

	var rows [][]valueItem
	i := values + 1
	for {
		row, next, ok := parseTuple(tokens, i)
		if !ok {
			return nil
		}
		rows = append(rows, row)
		i = next
		if i == len(tokens) {
			break
		}
		if !tokens[i].isPunct(",") {
			return nil
		}
		i++
	}
	if len(rows) < 2 {
		return nil
	}
	for _, r := range rows[1:] {
		if len(r) != len(rows[0]) {
			return nil
		}
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(rows[0])), ", ")
	return &multiValues{
		query: text[:tokens[values].End] + " (" + marks + ")",
		rows:  rows,
	}
}

// parseTuple reads "( item, item, ... )" starting at tokens[i].
func parseTuple(tokens []Token, i int) ([]valueItem, int, bool) {
	if i >= len(tokens) || !tokens[i].isPunct("(") {
		return nil, 0, false
	}
	i++
	var row []valueItem
	for i < len(tokens) {
		tok := tokens[i]
		negative := false
		if tok.isPunct("-") && i+1 < len(tokens) && tokens[i+1].Kind == TokenNumber {
			negative = true
			i++
			tok = tokens[i]
		}
		switch {
		case tok.Kind == TokenParam:
			row = append(row, valueItem{param: true})
		case tok.Kind == TokenString, tok.Kind == TokenNumber, tok.isKeyword("NULL"):
			v := literalValue(tok)
			if negative {
				v = negate(v)
			}
			row = append(row, valueItem{value: v})
		default:
			return nil, 0, false
		}
		i++
		if i >= len(tokens) {
			return nil, 0, false
		}
		switch {
		case tokens[i].isPunct(","):
			i++
		case tokens[i].isPunct(")"):
			return row, i + 1, true
		default:
			return nil, 0, false
		}
	}
	return nil, 0, false
}

func negate(v any) any {
	switch x := v.(type) {
	case int64:
		return -x
	case decimal.Decimal:
		return x.Neg()
	case string:
		return "-" + x
	}
	return v
}

// ExpandMultiValues binds args to the placeholders of a multi-row insert in
// text order. It returns nil when the statement is not a multi-row insert.
func (s *Statement) ExpandMultiValues(args []any) *MultiValuesInsert {
	if s.multi == nil {
		return nil
	}
	out := &MultiValuesInsert{Query: s.multi.query, Params: len(s.multi.rows[0])}
	a := 0
	for _, r := range s.multi.rows {
		row := make([]any, len(r))
		for j, item := range r {
			if !item.param {
				row[j] = item.value
				continue
			}
			if a < len(args) {
				row[j] = args[a]
			}
			a++
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// IsMultiValuesInsert reports whether ExpandMultiValues applies.
func (s *Statement) IsMultiValuesInsert() bool {
	return s.multi != nil
}
