// internal/expression/lexer.go
package expression

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/solatis/rulekeeper/internal/types"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokPunct
)

type token struct {
	kind tokenKind
	text string // identifier, operator, or decoded string contents
	num  types.Value
	pos  int
}

// Multi-character operators, longest first within each prefix.
var punctuation = []string{
	"&&", "||", "==", "!=", "<>", "<=", ">=", "??",
	"+", "-", "*", "/", "%", "<", ">", "!", "=",
	"(", ")", "[", "]", ",", "?", ":",
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case isDigit(src[i]) || (src[i] == '.' && i+1 < len(src) && isDigit(src[i+1])):
			tok, n, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i += n
		case r == '\'' || r == '"':
			tok, n, err := lexString(src, i, byte(r))
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i += n
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if r != '_' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		default:
			op := matchPunct(src[i:])
			if op == "" {
				return nil, types.Errorf(types.ErrSyntax, "position %d: unexpected character %q", i, r)
			}
			toks = append(toks, token{kind: tokPunct, text: op, pos: i})
			i += len(op)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func matchPunct(s string) string {
	for _, p := range punctuation {
		if strings.HasPrefix(s, p) {
			return p
		}
	}
	return ""
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// lexNumber scans digits, an optional fraction and an optional exponent.
// Integers that fit in int64 become Int; everything else becomes Float.
func lexNumber(src string, start int) (token, int, error) {
	i := start
	isFloat := false
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' && i+1 < len(src) && isDigit(src[i+1]) {
		isFloat = true
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			isFloat = true
			i = j
			for i < len(src) && isDigit(src[i]) {
				i++
			}
		}
	}

	text := src[start:i]
	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return token{kind: tokNumber, text: text, num: types.Int(n), pos: start}, i - start, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, 0, types.Errorf(types.ErrSyntax, "position %d: invalid number %q", start, text)
	}
	return token{kind: tokNumber, text: text, num: types.Float(f), pos: start}, i - start, nil
}

// lexString scans a quoted literal. Supports \n \t \r \\ \' \" and \uXXXX escapes.
func lexString(src string, start int, quote byte) (token, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return token{kind: tokString, text: b.String(), pos: start}, i + 1 - start, nil
		case c == '\\':
			if i+1 >= len(src) {
				return token{}, 0, types.Errorf(types.ErrSyntax, "position %d: unterminated escape", i)
			}
			i++
			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(src[i])
			case 'u':
				if i+4 >= len(src) {
					return token{}, 0, types.Errorf(types.ErrSyntax, "position %d: short unicode escape", i)
				}
				n, err := strconv.ParseUint(src[i+1:i+5], 16, 32)
				if err != nil {
					return token{}, 0, types.Errorf(types.ErrSyntax, "position %d: invalid unicode escape", i)
				}
				b.WriteRune(rune(n))
				i += 4
			default:
				return token{}, 0, types.Errorf(types.ErrSyntax, "position %d: unknown escape \\%c", i, src[i])
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return token{}, 0, types.Errorf(types.ErrSyntax, "position %d: unterminated string", start)
}
