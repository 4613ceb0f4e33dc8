// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrParse indicates a malformed path expression
	ErrParse = errors.New("invalid path")
	// ErrResolve indicates a path that does not match the shape of the data graph
	ErrResolve = errors.New("path does not match data")
)

// TokenType identifies the kind of a path token
type TokenType int

const (
	// GlobalToken is the leading $ anchoring a path at the data root
	GlobalToken TokenType = iota
	// IdentifierToken is an object member name
	IdentifierToken
	// BracketToken is an array index
	BracketToken
)

func (t TokenType) String() string {
	switch t {
	case GlobalToken:
		return "global"
	case IdentifierToken:
		return "identifier"
	case BracketToken:
		return "bracket"
	default:
		return "unknown"
	}
}

// Token is a single element of a parsed path
type Token struct {
	Type  TokenType
	Value string
	Index int
	Start int
}

// Key is the graph key this token addresses
func (t Token) Key() Key {
	if t.Type == BracketToken {
		return Index(t.Index)
	}

	return Name(t.Value)
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlphaNum(c byte) bool { return isAlpha(c) || isDigit(c) }

type tokenizer struct {
	stream  string
	pos     int
	lastDot bool
	tokens  []Token
}

// Tokenize parses a path such as $.a.b[2] or a."quoted key"[0] into tokens
func Tokenize(path string) ([]Token, error) {
	t := &tokenizer{stream: path}

	err := t.run()
	if err != nil {
		return nil, err
	}

	return t.tokens, nil
}

func (t *tokenizer) errorf(format string, a ...any) error {
	return fmt.Errorf("%w: %s at position %d in %q", ErrParse, fmt.Sprintf(format, a...), t.pos, t.stream)
}

func (t *tokenizer) push(tok Token) {
	t.tokens = append(t.tokens, tok)
	t.lastDot = false
}

func (t *tokenizer) run() error {
	s := t.stream

	for t.pos < len(s) {
		c := s[t.pos]

		switch {
		case c == '$' && len(t.tokens) == 0:
			t.push(Token{Type: GlobalToken, Value: "$", Start: 0})
			t.pos++

		case isAlpha(c) || (c == '$' && t.pos+1 < len(s) && isAlphaNum(s[t.pos+1])):
			start := t.pos
			t.pos++
			for t.pos < len(s) && isAlphaNum(s[t.pos]) {
				t.pos++
			}
			t.push(Token{Type: IdentifierToken, Value: s[start:t.pos], Start: start})

		case c == '.' && len(t.tokens) > 0 && !t.lastDot:
			t.lastDot = true
			t.pos++

		case c == '[':
			tok, err := t.bracket()
			if err != nil {
				return err
			}
			t.push(tok)

		case c == '"':
			tok, err := t.quoted()
			if err != nil {
				return err
			}
			t.push(tok)

		default:
			return t.errorf("unexpected character %q", c)
		}
	}

	return nil
}

func (t *tokenizer) bracket() (Token, error) {
	s := t.stream
	start := t.pos
	t.pos++

	if t.pos >= len(s) || !isDigit(s[t.pos]) {
		return Token{}, t.errorf("array index must be a number")
	}

	ns := t.pos
	for t.pos < len(s) && isDigit(s[t.pos]) {
		t.pos++
	}

	idx, err := strconv.Atoi(s[ns:t.pos])
	if err != nil {
		return Token{}, t.errorf("invalid array index: %v", err)
	}

	if t.pos >= len(s) || s[t.pos] != ']' {
		return Token{}, t.errorf("missing closing bracket")
	}
	t.pos++

	return Token{Type: BracketToken, Value: s[ns : t.pos-1], Index: idx, Start: start}, nil
}

func (t *tokenizer) quoted() (Token, error) {
	s := t.stream
	start := t.pos
	t.pos++

	for t.pos < len(s) && s[t.pos] != '"' {
		if s[t.pos] == '\\' && t.pos+1 < len(s) && (s[t.pos+1] == '\\' || s[t.pos+1] == '"') {
			t.pos += 2
			continue
		}
		t.pos++
	}

	if t.pos >= len(s) {
		t.pos = start
		return Token{}, t.errorf("unterminated quoted identifier")
	}
	t.pos++

	var name string
	err := json.Unmarshal([]byte(s[start:t.pos]), &name)
	if err != nil {
		return Token{}, t.errorf("invalid quoted identifier: %v", err)
	}

	return Token{Type: IdentifierToken, Value: name, Start: start}, nil
}

// ResolvePath tokenizes path and resolves it against root, see Resolve
func ResolvePath(root Node, path string, create Node) (Node, error) {
	tokens, err := Tokenize(path)
	if err != nil {
		return nil, err
	}

	return Resolve(root, tokens, create)
}

func intermediate(tok Token, next *Token, create Node) Node {
	switch {
	case next == nil:
		return create
	case next.Type == BracketToken:
		return NewArray(tok.Key())
	default:
		return NewObject(tok.Key())
	}
}

// Resolve walks tokens starting at root. Missing nodes are created when create is
// not nil, intermediate nodes being arrays or objects depending on the following
// token and the final node being create itself. Without create a missing node
// resolves to nil.
func Resolve(root Node, tokens []Token, create Node) (Node, error) {
	result := root

	for i := 0; i < len(tokens) && result != nil; i++ {
		tok := tokens[i]

		var next *Token
		if i < len(tokens)-1 {
			next = &tokens[i+1]
		}

		switch tok.Type {
		case GlobalToken:
			result = root

		case IdentifierToken:
			g, ok := result.(*Group)
			if !ok || g.IsArray() {
				return nil, fmt.Errorf("%w: looking for %q in a %s", ErrResolve, tok.Value, result.Type())
			}

			switch {
			case g.Contains(tok.Key()):
				result = g.Get(tok.Key())
			case create != nil:
				n := intermediate(tok, next, create)
				g.Add(tok.Key(), n, false)
				result = n
			default:
				result = nil
			}

		case BracketToken:
			g, ok := result.(*Group)
			if !ok || !g.IsArray() {
				return nil, fmt.Errorf("%w: looking for index %d in a %s", ErrResolve, tok.Index, result.Type())
			}

			switch {
			case tok.Index < g.Len():
				result = g.Get(tok.Key())
			case create != nil:
				n := intermediate(tok, next, create)
				g.Add(tok.Key(), n, false)
				result = n
			default:
				result = nil
			}
		}
	}

	if result == nil {
		return nil, nil
	}

	return result, nil
}
