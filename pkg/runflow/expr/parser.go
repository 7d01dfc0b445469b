package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// node is an AST node. eval never mutates vars.
type node interface {
	eval(vars map[string]any) (any, error)
}

type literal struct{ value any }

type pathRef struct {
	segments []string
	pos      int
}

type negate struct {
	operand node
	pos     int
}

type logicalNot struct{ operand node }

type logical struct {
	and         bool
	left, right node
}

type coalesce struct{ left, right node }

type comparison struct {
	op          string
	left, right node
	custom      BinaryOp
	pos         int
}

type parser struct {
	src       string
	toks      []token
	i         int
	customOps map[string]BinaryOp
}

func parse(src string, customOps map[string]BinaryOp) (node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks, customOps: customOps}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %q", tok.text)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) next() token {
	tok := p.toks[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &Error{Expr: p.src, Pos: tok.pos, Err: fmt.Errorf(format, args...)}
}

// isWord reports whether tok is the keyword or symbol w.
func isWord(tok token, words ...string) bool {
	if tok.kind != tokIdent && tok.kind != tokOp {
		return false
	}
	for _, w := range words {
		if tok.text == w {
			return true
		}
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for isWord(p.peek(), "or", "||") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logical{and: false, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for isWord(p.peek(), "and", "&&") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logical{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if isWord(p.peek(), "not", "!") {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &logicalNot{operand: operand}, nil
	}
	return p.parseCompare()
}

var compareOps = map[string]bool{
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
	"contains": true, "in": true,
}

func (p *parser) compareOp(tok token) (string, BinaryOp, bool) {
	if tok.kind == tokOp && compareOps[tok.text] {
		return tok.text, nil, true
	}
	if tok.kind != tokIdent {
		return "", nil, false
	}
	if tok.text == "contains" || tok.text == "in" {
		return tok.text, nil, true
	}
	if fn, ok := p.customOps[tok.text]; ok {
		return tok.text, fn, true
	}
	return "", nil, false
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseCoalesce()
	if err != nil {
		return nil, err
	}
	op, custom, ok := p.compareOp(p.peek())
	if !ok {
		return left, nil
	}
	opTok := p.next()
	right, err := p.parseCoalesce()
	if err != nil {
		return nil, err
	}
	if _, _, chained := p.compareOp(p.peek()); chained {
		return nil, p.errorf(p.peek(), "chained comparison is not supported")
	}
	return &comparison{op: op, left: left, right: right, custom: custom, pos: opTok.pos}, nil
}

func (p *parser) parseCoalesce() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for isWord(p.peek(), "??") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &coalesce{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if tok := p.peek(); tok.kind == tokOp && tok.text == "-" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negate{operand: operand, pos: tok.pos}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		return &literal{value: tok.text}, nil
	case tokNumber:
		return parseNumber(p, tok)
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')'")
		}
		return inner, nil
	case tokIdent:
		switch strings.ToLower(tok.text) {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		case "null", "nil", "none":
			return &literal{value: nil}, nil
		}
		if _, _, isOp := p.compareOp(tok); isOp || isWord(tok, "and", "or", "not") {
			return nil, p.errorf(tok, "unexpected keyword %q", tok.text)
		}
		if next := p.peek(); next.kind == tokLParen {
			return nil, p.errorf(next, "function calls are not allowed")
		}
		return &pathRef{segments: strings.Split(tok.text, "."), pos: tok.pos}, nil
	case tokEOF:
		return nil, p.errorf(tok, "unexpected end of expression")
	default:
		return nil, p.errorf(tok, "unexpected %q", tok.text)
	}
}

func parseNumber(p *parser, tok token) (node, error) {
	if i, err := strconv.ParseInt(tok.text, 10, 64); err == nil {
		return &literal{value: i}, nil
	}
	f, err := strconv.ParseFloat(tok.text, 64)
	if err != nil {
		return nil, p.errorf(tok, "invalid number %q", tok.text)
	}
	return &literal{value: f}, nil
}
