package render

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expression AST. Expressions inside {{ }} and {% %} tags are parsed with a
// small recursive-descent parser; the grammar covers variable references,
// calls with positional and keyword arguments, attribute/subscript access,
// binary and unary operators, the Jinja conditional expression
// (`a if cond else b`) and `is` tests.

type expr interface{}

type eLit struct{ val any }

type eIdent struct{ name string }

type eList struct{ items []expr }

// eDict is a dict display `{'k': v, ...}`. Keys and values are kept as
// parallel slices in source order.
type eDict struct {
	keys []expr
	vals []expr
}

type eAttr struct {
	base expr
	name string
}

type eIndex struct {
	base  expr
	index expr
}

type kwarg struct {
	name string
	val  expr
}

type eCall struct {
	callee expr
	args   []expr
	kwargs []kwarg
}

type eUnary struct {
	op string
	x  expr
}

type eBinary struct {
	op   string
	l, r expr
}

// eCond is `val if cond else alt`.
type eCond struct {
	val, cond, alt expr
}

// eTest is `x is name` / `x is not name`.
type eTest struct {
	x      expr
	name   string
	negate bool
}

// --- lexer ---

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokKind
	text string
}

type exprLexer struct {
	src  string
	pos  int
	toks []token
}

var punctuation = []string{
	"==", "!=", "<=", ">=", "//", "**",
	"(", ")", "[", "]", "{", "}", ",", ":", ".", "=",
	"+", "-", "*", "/", "%", "<", ">", "~", "|",
}

func lexExpr(src string) ([]token, error) {
	lx := &exprLexer{src: src}
	for {
		lx.skipSpace()
		if lx.pos >= len(lx.src) {
			break
		}
		c := lx.src[lx.pos]
		switch {
		case c == '\'' || c == '"':
			s, err := lx.scanString(c)
			if err != nil {
				return nil, err
			}
			lx.toks = append(lx.toks, token{tokString, s})
		case c >= '0' && c <= '9':
			lx.toks = append(lx.toks, token{tokNumber, lx.scanNumber()})
		case isIdentStart(rune(c)):
			lx.toks = append(lx.toks, token{tokIdent, lx.scanIdent()})
		default:
			p := lx.scanPunct()
			if p == "" {
				return nil, fmt.Errorf("unexpected character %q in expression", string(c))
			}
			lx.toks = append(lx.toks, token{tokPunct, p})
		}
	}
	lx.toks = append(lx.toks, token{tokEOF, ""})
	return lx.toks, nil
}

func (lx *exprLexer) skipSpace() {
	for lx.pos < len(lx.src) && unicode.IsSpace(rune(lx.src[lx.pos])) {
		lx.pos++
	}
}

func (lx *exprLexer) scanString(quote byte) (string, error) {
	lx.pos++
	var sb strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == '\\' && lx.pos+1 < len(lx.src) {
			next := lx.src[lx.pos+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(next)
			}
			lx.pos += 2
			continue
		}
		if c == quote {
			lx.pos++
			return sb.String(), nil
		}
		sb.WriteByte(c)
		lx.pos++
	}
	return "", fmt.Errorf("unterminated string literal")
}

func (lx *exprLexer) scanNumber() string {
	start := lx.pos
	for lx.pos < len(lx.src) && (isDigit(lx.src[lx.pos]) || lx.src[lx.pos] == '.') {
		lx.pos++
	}
	return lx.src[start:lx.pos]
}

func (lx *exprLexer) scanIdent() string {
	start := lx.pos
	for lx.pos < len(lx.src) && isIdentPart(rune(lx.src[lx.pos])) {
		lx.pos++
	}
	return lx.src[start:lx.pos]
}

func (lx *exprLexer) scanPunct() string {
	for _, p := range punctuation {
		if strings.HasPrefix(lx.src[lx.pos:], p) {
			lx.pos += len(p)
			return p
		}
	}
	return ""
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// --- parser ---

type exprParser struct {
	toks []token
	pos  int
}

// parseExpression parses a full expression from source text.
func parseExpression(src string) (expr, error) {
	toks, err := lexExpr(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	e, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q after expression", p.peek().text)
	}
	return e, nil
}

func (p *exprParser) peek() token { return p.toks[p.pos] }

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) acceptPunct(s string) bool {
	if p.peek().kind == tokPunct && p.peek().text == s {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) acceptIdent(s string) bool {
	if p.peek().kind == tokIdent && p.peek().text == s {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) expectPunct(s string) error {
	if !p.acceptPunct(s) {
		return fmt.Errorf("expected %q, got %q", s, p.peek().text)
	}
	return nil
}

// parseCond handles `a if cond else b`.
func (p *exprParser) parseCond() (expr, error) {
	val, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.acceptIdent("if") {
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		var alt expr = &eLit{val: nil}
		if p.acceptIdent("else") {
			alt, err = p.parseCond()
			if err != nil {
				return nil, err
			}
		}
		return &eCond{val: val, cond: cond, alt: alt}, nil
	}
	return val, nil
}

func (p *exprParser) parseOr() (expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("or") {
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &eBinary{op: "or", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseAnd() (expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("and") {
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &eBinary{op: "and", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseNot() (expr, error) {
	if p.acceptIdent("not") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &eUnary{op: "not", x: x}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *exprParser) parseComparison() (expr, error) {
	l, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.kind == tokPunct && comparisonOps[t.text]:
			p.next()
			r, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			l = &eBinary{op: t.text, l: l, r: r}
		case t.kind == tokIdent && t.text == "in":
			p.next()
			r, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			l = &eBinary{op: "in", l: l, r: r}
		case t.kind == tokIdent && t.text == "not":
			// `not in`
			p.next()
			if !p.acceptIdent("in") {
				return nil, fmt.Errorf("expected 'in' after 'not'")
			}
			r, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			l = &eUnary{op: "not", x: &eBinary{op: "in", l: l, r: r}}
		case t.kind == tokIdent && t.text == "is":
			p.next()
			negate := p.acceptIdent("not")
			name := p.next()
			if name.kind != tokIdent {
				return nil, fmt.Errorf("expected test name after 'is'")
			}
			l = &eTest{x: l, name: name.text, negate: negate}
		default:
			return l, nil
		}
	}
}

func (p *exprParser) parseConcat() (expr, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.acceptPunct("~") {
		r, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		l = &eBinary{op: "~", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseAdditive() (expr, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptPunct("+"):
			r, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			l = &eBinary{op: "+", l: l, r: r}
		case p.acceptPunct("-"):
			r, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			l = &eBinary{op: "-", l: l, r: r}
		default:
			return l, nil
		}
	}
}

func (p *exprParser) parseMultiplicative() (expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.acceptPunct("*"):
			op = "*"
		case p.acceptPunct("/"):
			op = "/"
		case p.acceptPunct("%"):
			op = "%"
		default:
			return l, nil
		}
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &eBinary{op: op, l: l, r: r}
	}
}

func (p *exprParser) parseUnary() (expr, error) {
	if p.acceptPunct("-") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &eUnary{op: "-", x: x}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles call, attribute and subscript chains, so forms like
// adapter.dispatch('hash')(field) parse naturally.
func (p *exprParser) parsePostfix() (expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptPunct("("):
			args, kwargs, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			e = &eCall{callee: e, args: args, kwargs: kwargs}
		case p.acceptPunct("."):
			name := p.next()
			if name.kind != tokIdent {
				return nil, fmt.Errorf("expected attribute name after '.'")
			}
			e = &eAttr{base: e, name: name.text}
		case p.acceptPunct("["):
			idx, err := p.parseCond()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			e = &eIndex{base: e, index: idx}
		default:
			return e, nil
		}
	}
}

func (p *exprParser) parseArgs() (args []expr, kwargs []kwarg, err error) {
	if p.acceptPunct(")") {
		return nil, nil, nil
	}
	for {
		// Keyword argument: ident '=' value (but not '==').
		if p.peek().kind == tokIdent &&
			p.toks[p.pos+1].kind == tokPunct && p.toks[p.pos+1].text == "=" {
			name := p.next().text
			p.next() // '='
			val, err := p.parseCond()
			if err != nil {
				return nil, nil, err
			}
			kwargs = append(kwargs, kwarg{name: name, val: val})
		} else {
			a, err := p.parseCond()
			if err != nil {
				return nil, nil, err
			}
			args = append(args, a)
		}
		if p.acceptPunct(",") {
			continue
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, nil, err
		}
		return args, kwargs, nil
	}
}

func (p *exprParser) parsePrimary() (expr, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return &eLit{val: t.text}, nil
	case tokNumber:
		p.next()
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", t.text)
			}
			return &eLit{val: f}, nil
		}
		n, err := strconv.Atoi(t.text)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return &eLit{val: n}, nil
	case tokIdent:
		switch t.text {
		case "true", "True":
			p.next()
			return &eLit{val: true}, nil
		case "false", "False":
			p.next()
			return &eLit{val: false}, nil
		case "none", "None", "null":
			p.next()
			return &eLit{val: nil}, nil
		}
		p.next()
		return &eIdent{name: t.text}, nil
	case tokPunct:
		switch t.text {
		case "(":
			p.next()
			e, err := p.parseCond()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			p.next()
			var items []expr
			if !p.acceptPunct("]") {
				for {
					item, err := p.parseCond()
					if err != nil {
						return nil, err
					}
					items = append(items, item)
					if p.acceptPunct(",") {
						continue
					}
					if err := p.expectPunct("]"); err != nil {
						return nil, err
					}
					break
				}
			}
			return &eList{items: items}, nil
		case "{":
			p.next()
			d := &eDict{}
			if !p.acceptPunct("}") {
				for {
					key, err := p.parseCond()
					if err != nil {
						return nil, err
					}
					if err := p.expectPunct(":"); err != nil {
						return nil, err
					}
					val, err := p.parseCond()
					if err != nil {
						return nil, err
					}
					d.keys = append(d.keys, key)
					d.vals = append(d.vals, val)
					if p.acceptPunct(",") {
						continue
					}
					if err := p.expectPunct("}"); err != nil {
						return nil, err
					}
					break
				}
			}
			return d, nil
		}
	}
	return nil, fmt.Errorf("unexpected %q in expression", t.text)
}
