package expr

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// twoCharOps must be checked before single-character operators.
var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||", "??"}

// tokenize splits src into tokens. Identifiers may contain any Unicode
// letter or digit; numbers are ASCII only.
func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case c == utf8.RuneError && size == 1:
			return nil, &Error{Expr: src, Pos: i, Err: fmt.Errorf("invalid UTF-8 byte %#x", src[i])}
		case unicode.IsSpace(c):
			i += size
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '\'' || c == '"':
			s, n, err := scanString(src[i:])
			if err != nil {
				return nil, &Error{Expr: src, Pos: i, Err: err}
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i += n
		case c >= '0' && c <= '9':
			n := scanNumber(src[i:])
			toks = append(toks, token{kind: tokNumber, text: src[i : i+n], pos: i})
			i += n
		case c == '_' || unicode.IsLetter(c):
			n := scanIdent(src[i:])
			toks = append(toks, token{kind: tokIdent, text: src[i : i+n], pos: i})
			i += n
		default:
			op := ""
			for _, candidate := range twoCharOps {
				if strings.HasPrefix(src[i:], candidate) {
					op = candidate
					break
				}
			}
			if op == "" && strings.ContainsRune("<>!-", c) {
				op = string(c)
			}
			if op == "" {
				return nil, &Error{Expr: src, Pos: i, Err: fmt.Errorf("unexpected character %q", c)}
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// scanString reads a quoted string starting at s[0]. It returns the
// unescaped contents and the number of bytes consumed.
func scanString(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("unterminated string")
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		case quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(s[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

func scanNumber(s string) int {
	i := 0
	seenDot := false
	for i < len(s) {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			i++
		case c == '.' && !seenDot && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9':
			seenDot = true
			i++
		case (c == 'e' || c == 'E') && i+1 < len(s):
			j := i + 1
			if s[j] == '+' || s[j] == '-' {
				j++
			}
			if j >= len(s) || s[j] < '0' || s[j] > '9' {
				return i
			}
			i = j
		default:
			return i
		}
	}
	return i
}

// scanIdent reads an identifier path such as "state.review.score" and
// returns its length in bytes.
func scanIdent(s string) int {
	i := 0
	for i < len(s) {
		c, size := utf8.DecodeRuneInString(s[i:])
		if c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c) {
			i += size
			continue
		}
		if c == '.' {
			if next, _ := utf8.DecodeRuneInString(s[i+1:]); next == '_' || unicode.IsLetter(next) {
				i++
				continue
			}
		}
		break
	}
	return i
}
