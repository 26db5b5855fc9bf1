// internal/expression/parser.go
package expression

import (
	"strings"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Recursive-descent parser.
 *
 * Precedence, lowest to highest:
 *   ternary      c ? a : b           (right associative)
 *   coalesce     a ?? b
 *   or           a || b, a or b
 *   and          a && b, a and b
 *   equality     == = != <>
 *   relational   < <= > >=
 *   additive     + -
 *   product      * / %
 *   unary        ! not - +
 *   postfix      a[i]
 *   primary      literal, identifier, call, (expr), [a, b]
 *
 * Function names resolve at parse time so unknown functions and bad arity
 * fail before anything is evaluated.
 */

// maxDepth bounds nesting so hostile input cannot exhaust the stack.
const maxDepth = 256

type parser struct {
	toks  []token
	pos   int
	depth int
}

func parse(src string) (node, error) {
	if len(src) > types.MaxExpressionLength {
		return nil, types.Errorf(types.ErrExpressionTooLong, "%d bytes", len(src))
	}
	if strings.TrimSpace(src) == "" {
		return nil, types.Errorf(types.ErrSyntax, "empty expression")
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.expression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// accept consumes the next token if it is one of the given operators or keywords.
// Keywords match case-insensitively.
func (p *parser) accept(ops ...string) (string, bool) {
	tok := p.peek()
	for _, op := range ops {
		switch tok.kind {
		case tokPunct:
			if tok.text == op {
				p.pos++
				return op, true
			}
		case tokIdent:
			if strings.EqualFold(tok.text, op) && isKeyword(op) {
				p.pos++
				return strings.ToLower(op), true
			}
		}
	}
	return "", false
}

func (p *parser) expect(op string) error {
	if _, ok := p.accept(op); !ok {
		return p.unexpected(p.peek())
	}
	return nil
}

func (p *parser) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return types.Errorf(types.ErrSyntax, "unexpected end of expression")
	}
	text := tok.text
	if tok.kind == tokNumber {
		text = tok.num.Text()
	}
	return types.Errorf(types.ErrSyntax, "position %d: unexpected %q", tok.pos, text)
}

func isKeyword(s string) bool {
	switch strings.ToLower(s) {
	case "and", "or", "not", "true", "false", "null":
		return true
	}
	return false
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return types.Errorf(types.ErrSyntax, "expression nested deeper than %d", maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) expression() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	cond, err := p.coalesce()
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept("?"); !ok {
		return cond, nil
	}
	then, err := p.expression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.expression()
	if err != nil {
		return nil, err
	}
	return &ternaryNode{cond: cond, then: then, els: els}, nil
}

func (p *parser) coalesce() (node, error) {
	left, err := p.or()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("??"); !ok {
			return left, nil
		}
		right, err := p.or()
		if err != nil {
			return nil, err
		}
		left = &coalesceNode{left: left, right: right}
	}
}

func (p *parser) or() (node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("||", "or"); !ok {
			return left, nil
		}
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{and: false, left: left, right: right}
	}
}

func (p *parser) and() (node, error) {
	left, err := p.equality()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("&&", "and"); !ok {
			return left, nil
		}
		right, err := p.equality()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{and: true, left: left, right: right}
	}
}

func (p *parser) equality() (node, error) {
	left, err := p.relational()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept("==", "=", "!=", "<>")
		if !ok {
			return left, nil
		}
		right, err := p.relational()
		if err != nil {
			return nil, err
		}
		switch op {
		case "=":
			op = "=="
		case "<>":
			op = "!="
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) relational() (node, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept("<=", ">=", "<", ">")
		if !ok {
			return left, nil
		}
		right, err := p.additive()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) additive() (node, error) {
	left, err := p.product()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.product()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) product() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	op, ok := p.accept("!", "not", "-", "+")
	if !ok {
		return p.postfix()
	}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	operand, err := p.unary()
	if err != nil {
		return nil, err
	}
	if op == "not" {
		op = "!"
	}
	return &unaryNode{op: op, operand: operand}, nil
}

func (p *parser) postfix() (node, error) {
	n, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("["); !ok {
			return n, nil
		}
		idx, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		n = &indexNode{target: n, index: idx}
	}
}

func (p *parser) primary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &literalNode{value: tok.num}, nil
	case tokString:
		return &literalNode{value: types.String(tok.text)}, nil
	case tokIdent:
		switch strings.ToLower(tok.text) {
		case "true":
			return &literalNode{value: types.Bool(true)}, nil
		case "false":
			return &literalNode{value: types.Bool(false)}, nil
		case "null":
			return &literalNode{value: types.Null()}, nil
		}
		if _, ok := p.accept("("); ok {
			return p.call(tok)
		}
		return &identNode{name: tok.text}, nil
	case tokPunct:
		switch tok.text {
		case "(":
			n, err := p.expression()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return n, nil
		case "[":
			items, err := p.list("]")
			if err != nil {
				return nil, err
			}
			return &arrayNode{items: items}, nil
		}
	}
	return nil, p.unexpected(tok)
}

func (p *parser) call(name token) (node, error) {
	fn, ok := lookupFunction(name.text)
	if !ok {
		return nil, types.Errorf(types.ErrUnknownFunction, "position %d: %s", name.pos, name.text)
	}
	args, err := p.list(")")
	if err != nil {
		return nil, err
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, types.Errorf(types.ErrArgumentCount, "%s: got %d, want %s", fn.name, len(args), fn.arity())
	}
	return &callNode{fn: fn, args: args}, nil
}

// list parses comma-separated expressions up to and including the closing token.
func (p *parser) list(closing string) ([]node, error) {
	var items []node
	if _, ok := p.accept(closing); ok {
		return items, nil
	}
	for {
		n, err := p.expression()
		if err != nil {
			return nil, err
		}
		items = append(items, n)
		if _, ok := p.accept(closing); ok {
			return items, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}
