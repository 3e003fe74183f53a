package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matzehuels/forcelayout/pkg/errors"
)

// Operator is a comparison inside a selector clause.
type Operator string

const (
	OpExists   Operator = ""
	OpAbsent   Operator = "!"
	OpEqual    Operator = "="
	OpNotEqual Operator = "!="
	OpGreater  Operator = ">"
	OpGreaterE Operator = ">="
	OpLess     Operator = "<"
	OpLessE    Operator = "<="
)

type literal struct {
	raw    string
	num    float64
	isNum  bool
	isBool bool
	bool   bool
	quoted bool
}

type clause struct {
	key string
	op  Operator
	val literal
}

// Selector is a parsed attribute selector such as
// node[myLabel='Even'][weight>100]. All clauses must hold.
//
// Supported clauses:
//
//	[attr]          attribute present
//	[!attr]         attribute absent
//	[attr=value]    equal (numeric when both sides are numbers)
//	[attr!=value]   not equal, also true when attr is absent
//	[attr>value]    numeric comparison; also >=, <, <=
//
// Values may be bare (number, true, false or a word) or quoted with ' or ".
// The key "id" falls back to the element id when no such attribute exists.
type Selector struct {
	Group   Kind // Empty matches both kinds
	Raw     string
	clauses []clause
}

// ParseSelector parses a selector string. An empty selector or "*"
// matches every element.
func ParseSelector(s string) (Selector, error) {
	p := &selectorParser{src: s}
	return p.parse()
}

// MustParseSelector is like ParseSelector but panics on error.
func MustParseSelector(s string) Selector {
	sel, err := ParseSelector(s)
	if err != nil {
		panic(err)
	}
	return sel
}

// String returns the source text of the selector.
func (s Selector) String() string { return s.Raw }

// Match reports whether an element with the given id and attributes
// satisfies every clause. The group prefix is not checked here.
func (s Selector) Match(id string, attrs Attributes) bool {
	for _, c := range s.clauses {
		if !c.match(id, attrs) {
			return false
		}
	}
	return true
}

func (c clause) match(id string, attrs Attributes) bool {
	v, ok := attrs[c.key]
	if !ok && c.key == "id" {
		v, ok = id, true
	}
	switch c.op {
	case OpExists:
		return ok
	case OpAbsent:
		return !ok
	case OpNotEqual:
		return !ok || !equal(v, c.val)
	}
	if !ok {
		return false
	}
	if c.op == OpEqual {
		return equal(v, c.val)
	}
	f, isNum := toFloat(v)
	if !isNum || !c.val.isNum {
		return false
	}
	switch c.op {
	case OpGreater:
		return f > c.val.num
	case OpGreaterE:
		return f >= c.val.num
	case OpLess:
		return f < c.val.num
	case OpLessE:
		return f <= c.val.num
	}
	return false
}

func equal(v any, lit literal) bool {
	if f, ok := toFloat(v); ok && lit.isNum {
		return f == lit.num
	}
	switch x := v.(type) {
	case string:
		return x == lit.raw
	case bool:
		return lit.isBool && x == lit.bool
	}
	return fmt.Sprint(v) == lit.raw
}

type selectorParser struct {
	src string
	pos int
}

func (p *selectorParser) fail(reason string) error {
	return &errors.SelectorError{Selector: p.src, Offset: p.pos, Reason: reason}
}

func (p *selectorParser) parse() (Selector, error) {
	sel := Selector{Raw: p.src}
	p.skipSpace()
	if p.rest() == "*" {
		return sel, nil
	}

	if group := p.ident(); group != "" {
		switch group {
		case "node", "nodes":
			sel.Group = KindNode
		case "edge", "edges":
			sel.Group = KindEdge
		default:
			p.pos -= len(group)
			return sel, p.fail(fmt.Sprintf("unknown group %q", group))
		}
	}

	for p.skipSpace(); p.pos < len(p.src); p.skipSpace() {
		c, err := p.clause()
		if err != nil {
			return sel, err
		}
		sel.clauses = append(sel.clauses, c)
	}
	return sel, nil
}

func (p *selectorParser) clause() (clause, error) {
	var c clause
	if !p.consume("[") {
		return c, p.fail("expected '['")
	}
	p.skipSpace()
	negated := p.consume("!")
	p.skipSpace()
	c.key = p.ident()
	if c.key == "" {
		return c, p.fail("expected attribute name")
	}
	p.skipSpace()

	if p.consume("]") {
		if negated {
			c.op = OpAbsent
		}
		return c, nil
	}
	if negated {
		return c, p.fail("negated clause takes no comparison")
	}

	for _, op := range []Operator{OpNotEqual, OpGreaterE, OpLessE, OpEqual, OpGreater, OpLess} {
		if p.consume(string(op)) {
			c.op = op
			break
		}
	}
	if c.op == OpExists {
		return c, p.fail("expected operator or ']'")
	}
	p.skipSpace()

	lit, err := p.literal()
	if err != nil {
		return c, err
	}
	if c.op != OpEqual && c.op != OpNotEqual && !lit.isNum {
		return c, p.fail(fmt.Sprintf("operator %s needs a numeric value", c.op))
	}
	c.val = lit
	p.skipSpace()
	if !p.consume("]") {
		return c, p.fail("expected ']'")
	}
	return c, nil
}

func (p *selectorParser) literal() (literal, error) {
	if p.pos >= len(p.src) {
		return literal{}, p.fail("expected value")
	}
	if q := p.src[p.pos]; q == '\'' || q == '"' {
		start := p.pos
		p.pos++
		var b strings.Builder
		for p.pos < len(p.src) && p.src[p.pos] != q {
			if p.src[p.pos] == '\\' && p.pos+1 < len(p.src) {
				p.pos++
			}
			b.WriteByte(p.src[p.pos])
			p.pos++
		}
		if p.pos >= len(p.src) {
			p.pos = start
			return literal{}, p.fail("unterminated string")
		}
		p.pos++
		return literal{raw: b.String(), quoted: true}, nil
	}

	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != ']' && p.src[p.pos] != ' ' {
		p.pos++
	}
	raw := p.src[start:p.pos]
	if raw == "" {
		return literal{}, p.fail("expected value")
	}
	lit := literal{raw: raw}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		lit.num, lit.isNum = f, true
	}
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		lit.bool, lit.isBool = b, true
	}
	return lit, nil
}

func (p *selectorParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		if ch == '_' || ch == '-' || ch == '.' || ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *selectorParser) consume(tok string) bool {
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *selectorParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *selectorParser) rest() string { return strings.TrimSpace(p.src[p.pos:]) }
