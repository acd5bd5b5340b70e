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

// Package preparser classifies SQL text just far enough to choose a request
// shape. It counts placeholders, recognizes procedure calls in their plain,
// escaped and return-value forms, optionally replaces comparison literals by
// parameters, and detects multi-row literal inserts. It does not parse SQL.
package preparser

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/multigres/listsql/go/common/protocol"
)

// ErrEmpty is returned for text with no statement.
var ErrEmpty = errors.New("empty statement")

// Kind is the statement class.
type Kind int

const (
	KindUpdate Kind = iota + 1
	KindQuery
	KindCall
	KindCallWithResult
	// KindDDLStructural changes the shape of existing objects. Cached
	// statements that touch them may go stale.
	KindDDLStructural
	KindDDLOther
)

var kindNames = map[Kind]string{
	KindUpdate:         "UPDATE",
	KindQuery:          "QUERY",
	KindCall:           "CALL",
	KindCallWithResult: "CALL_WITH_RESULT",
	KindDDLStructural:  "DDL_ALTER_DROP",
	KindDDLOther:       "DDL_OTHER",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsDDL reports whether statements of this kind must never be cached.
func (k Kind) IsDDL() bool {
	return k == KindDDLStructural || k == KindDDLOther
}

// IsCall reports whether the statement invokes a stored procedure.
func (k Kind) IsCall() bool {
	return k == KindCall || k == KindCallWithResult
}

var firstKeyword = map[string]Kind{
	"SELECT":    KindQuery,
	"WITH":      KindQuery,
	"INSERT":    KindUpdate,
	"UPDATE":    KindUpdate,
	"DELETE":    KindUpdate,
	"MERGE":     KindUpdate,
	"ALTER":     KindDDLStructural,
	"DROP":      KindDDLStructural,
	"CREATE":    KindDDLOther,
	"GRANT":     KindDDLOther,
	"REVOKE":    KindDDLOther,
	"SET":       KindDDLOther,
	"USE":       KindDDLOther,
	"TRUNCATE":  KindDDLOther,
	"LOCK":      KindDDLOther,
	"UNLOCK":    KindDDLOther,
	"START":     KindDDLOther,
	"COMMIT":    KindDDLOther,
	"ROLLBACK":  KindDDLOther,
	"SAVEPOINT": KindDDLOther,
}

var comparisonOps = map[string]bool{
	"=": true, "<": true, ">": true, "<=": true, ">=": true, "<>": true, "!=": true,
}

// Options controls optional rewrites.
type Options struct {
	// ParameterizeLiterals replaces string and number literals that follow a
	// comparison operator with parameters so that texts differing only in
	// those literals share one prepared statement.
	ParameterizeLiterals bool
}

// Statement is the result of Parse.
type Statement struct {
	// Text is the text sent to the server: trimmed, without the trailing
	// semicolon, call escapes or return-value marker, with replaced literals.
	Text string
	Kind Kind
	// Markers holds one entry per placeholder in Text, MarkerParameter for
	// a caller value and MarkerLiteral for a replaced literal.
	Markers []string
	// Literals holds the replaced literal values in order.
	Literals []any
	// ProcName is the called procedure for call kinds.
	ProcName string

	multi *multiValues
}

// Placeholders returns the number of values the caller must supply.
func (s *Statement) Placeholders() int {
	n := 0
	for _, m := range s.Markers {
		if m == protocol.MarkerParameter {
			n++
		}
	}
	return n
}

// Merge interleaves caller values with replaced literals in marker order.
// args must hold Placeholders() values.
func (s *Statement) Merge(args []any) []any {
	out := make([]any, 0, len(s.Markers))
	a, l := 0, 0
	for _, m := range s.Markers {
		if m == protocol.MarkerLiteral {
			out = append(out, s.Literals[l])
			l++
			continue
		}
		var v any
		if a < len(args) {
			v = args[a]
		}
		out = append(out, v)
		a++
	}
	return out
}

// Parse classifies text.
func Parse(text string, opts Options) (*Statement, error) {
	text = trim(text)
	if text == "" {
		return nil, ErrEmpty
	}
	tokens, err := Lex(text)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrEmpty
	}

	if st, ok := parseCall(text, tokens); ok {
		return st, nil
	}

	st := &Statement{Text: text, Kind: classify(tokens)}
	if st.Kind == KindUpdate && tokens[0].isKeyword("INSERT") {
		st.multi = detectMultiValues(text, tokens)
	}
	if opts.ParameterizeLiterals && st.multi == nil && (st.Kind == KindQuery || st.Kind == KindUpdate) {
		st.parameterize(tokens)
		return st, nil
	}
	for _, tok := range tokens {
		if tok.Kind == TokenParam {
			st.Markers = append(st.Markers, protocol.MarkerParameter)
		}
	}
	return st, nil
}

func trim(text string) string {
	text = strings.TrimSpace(text)
	for strings.HasSuffix(text, ";") {
		text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
	}
	return text
}

func classify(tokens []Token) Kind {
	i := 0
	for i < len(tokens)-1 && tokens[i].isPunct("(") {
		i++
	}
	if tokens[i].Kind == TokenIdent {
		if k, ok := firstKeyword[strings.ToUpper(tokens[i].Value)]; ok {
			return k
		}
	}
	return KindUpdate
}

// parseCall recognizes "CALL p(...)", "{call p(...)}", "? = CALL p(...)" and
// "{? = call p(...)}". EXEC and EXECUTE are accepted for CALL.
func parseCall(text string, tokens []Token) (*Statement, bool) {
	i, end := 0, len(text)
	braced := tokens[0].isPunct("{")
	if braced {
		last := tokens[len(tokens)-1]
		if !last.isPunct("}") {
			return nil, false
		}
		end = last.Start
		tokens = tokens[1 : len(tokens)-1]
	}
	withResult := false
	if len(tokens) >= 2 && tokens[0].Kind == TokenParam && tokens[1].Kind == TokenOp && tokens[1].Value == "=" {
		withResult = true
		i = 2
	}
	if i >= len(tokens) {
		return nil, false
	}
	kw := tokens[i]
	if !kw.isKeyword("CALL") && !kw.isKeyword("EXEC") && !kw.isKeyword("EXECUTE") {
		return nil, false
	}
	st := &Statement{Kind: KindCall, Text: strings.TrimSpace(text[kw.Start:end])}
	if withResult {
		st.Kind = KindCallWithResult
	}
	if i+1 < len(tokens) {
		name := tokens[i+1]
		if name.Kind == TokenIdent || name.Kind == TokenQuotedIdent {
			st.ProcName = name.Value
		}
	}
	for _, tok := range tokens[i+1:] {
		if tok.Kind == TokenParam {
			st.Markers = append(st.Markers, protocol.MarkerParameter)
		}
	}
	return st, true
}

// parameterize rewrites Text, replacing literals that directly follow a
// comparison operator.
func (s *Statement) parameterize(tokens []Token) {
	var b strings.Builder
	last := 0
	for i, tok := range tokens {
		switch tok.Kind {
		case TokenParam:
			s.Markers = append(s.Markers, protocol.MarkerParameter)
		case TokenString, TokenNumber:
			if i == 0 || tokens[i-1].Kind != TokenOp || !comparisonOps[tokens[i-1].Value] {
				continue
			}
			b.WriteString(s.Text[last:tok.Start])
			b.WriteByte('?')
			last = tok.End
			s.Markers = append(s.Markers, protocol.MarkerLiteral)
			s.Literals = append(s.Literals, literalValue(tok))
		}
	}
	if last == 0 {
		return
	}
	b.WriteString(s.Text[last:])
	s.Text = b.String()
}

func literalValue(tok Token) any {
	switch tok.Kind {
	case TokenString:
		return tok.Value
	case TokenNumber:
		if n, err := strconv.ParseInt(tok.Value, 10, 64); err == nil {
			return n
		}
		if d, err := decimal.NewFromString(tok.Value); err == nil {
			return d
		}
		return tok.Value
	}
	if tok.isKeyword("NULL") {
		return nil
	}
	return tok.Value
}
