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
	"errors"
	"fmt"
	"strings"
)

// ErrUnterminated is returned for a quoted string, quoted identifier or
// block comment that runs to the end of the text.
var ErrUnterminated = errors.New("unterminated token")

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokenIdent TokenKind = iota + 1
	TokenQuotedIdent
	TokenString
	TokenNumber
	TokenParam
	TokenOp
	TokenPunct
)

// Token is one lexical token. Start and End are byte offsets into the text;
// Value holds the unescaped content of strings and quoted identifiers.
type Token struct {
	Kind  TokenKind
	Start int
	End   int
	Value string
}

type charClass uint8

const (
	classIdentStart charClass = 1 << iota
	classIdentCont
	classDigit
	classSpace
	classOp
)

var charClasses [256]charClass

func init() {
	for b := 'a'; b <= 'z'; b++ {
		charClasses[b] |= classIdentStart | classIdentCont
		charClasses[b-'a'+'A'] |= classIdentStart | classIdentCont
	}
	for b := '0'; b <= '9'; b++ {
		charClasses[b] |= classDigit | classIdentCont
	}
	// Identifiers may name packages and system classes: %Library.Foo, s.t.
	for _, b := range []byte("_%") {
		charClasses[b] |= classIdentStart | classIdentCont
	}
	for _, b := range []byte("$#.") {
		charClasses[b] |= classIdentCont
	}
	for b := 0x80; b <= 0xFF; b++ {
		charClasses[b] |= classIdentStart | classIdentCont
	}
	for _, b := range []byte(" \t\n\r\f\v") {
		charClasses[b] |= classSpace
	}
	for _, b := range []byte("<>=!") {
		charClasses[b] |= classOp
	}
}

func is(b byte, c charClass) bool {
	return charClasses[b]&c != 0
}

// Lex splits text into tokens, dropping whitespace and comments.
func Lex(text string) ([]Token, error) {
	var tokens []Token
	i := 0
	for i < len(text) {
		b := text[i]
		switch {
		case is(b, classSpace):
			i++
		case b == '-' && i+1 < len(text) && text[i+1] == '-':
			for i < len(text) && text[i] != '\n' {
				i++
			}
		case b == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("%w: comment at offset %d", ErrUnterminated, i)
			}
			i += end + 4
		case b == '\'' || b == '"':
			tok, err := lexQuoted(text, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = tok.End
		case is(b, classDigit) || (b == '.' && i+1 < len(text) && is(text[i+1], classDigit)):
			tok := lexNumber(text, i)
			tokens = append(tokens, tok)
			i = tok.End
		case is(b, classIdentStart):
			j := i + 1
			for j < len(text) && is(text[j], classIdentCont) {
				j++
			}
			tokens = append(tokens, Token{Kind: TokenIdent, Start: i, End: j, Value: text[i:j]})
			i = j
		case b == '?':
			tokens = append(tokens, Token{Kind: TokenParam, Start: i, End: i + 1, Value: "?"})
			i++
		case is(b, classOp):
			j := i + 1
			for j < len(text) && is(text[j], classOp) {
				j++
			}
			tokens = append(tokens, Token{Kind: TokenOp, Start: i, End: j, Value: text[i:j]})
			i = j
		default:
			tokens = append(tokens, Token{Kind: TokenPunct, Start: i, End: i + 1, Value: text[i : i+1]})
			i++
		}
	}
	return tokens, nil
}

// lexQuoted scans a quoted token starting at text[start]. A doubled quote
// character stands for itself.
func lexQuoted(text string, start int) (Token, error) {
	q := text[start]
	kind := TokenString
	if q == '"' {
		kind = TokenQuotedIdent
	}
	var value []byte
	i := start + 1
	for i < len(text) {
		if text[i] == q {
			if i+1 < len(text) && text[i+1] == q {
				value = append(value, q)
				i += 2
				continue
			}
			return Token{Kind: kind, Start: start, End: i + 1, Value: string(value)}, nil
		}
		value = append(value, text[i])
		i++
	}
	return Token{}, fmt.Errorf("%w: quoted text at offset %d", ErrUnterminated, start)
}

func lexNumber(text string, start int) Token {
	i := start
	for i < len(text) && is(text[i], classDigit) {
		i++
	}
	if i < len(text) && text[i] == '.' {
		i++
		for i < len(text) && is(text[i], classDigit) {
			i++
		}
	}
	if i < len(text) && (text[i] == 'e' || text[i] == 'E') {
		j := i + 1
		if j < len(text) && (text[j] == '+' || text[j] == '-') {
			j++
		}
		if j < len(text) && is(text[j], classDigit) {
			for j < len(text) && is(text[j], classDigit) {
				j++
			}
			i = j
		}
	}
	return Token{Kind: TokenNumber, Start: start, End: i, Value: text[start:i]}
}

func (t Token) isKeyword(kw string) bool {
	return t.Kind == TokenIdent && strings.EqualFold(t.Value, kw)
}

func (t Token) isPunct(p string) bool {
	return t.Kind == TokenPunct && t.Value == p
}
