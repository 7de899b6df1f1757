// Package cond implements the boolean condition mini-language that gates
// workflow steps. A condition references prior step outcomes
// ("<step_id>.success", "<step_id>.failed") combined with AND, OR, NOT,
// and parentheses. There is no arithmetic, no field access beyond the
// outcome, and no host-language evaluation of any kind: the grammar is
// closed, and parsing and evaluation are pure functions over the
// supplied outcomes.
//
// A reference to a step that has not executed (or was skipped) is not an
// error: its ".success" evaluates false and its ".failed" evaluates true
// by definition. Callers that care can observe these degraded references
// through EvalReport.
package cond

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Outcomes supplies recorded step outcomes to evaluation. Present is
// false for steps that never executed or were skipped.
type Outcomes interface {
	Outcome(stepID string) (succeeded, present bool)
}

// MapOutcomes adapts a map of stepID → succeeded. Every listed step is
// treated as present.
type MapOutcomes map[string]bool

// Outcome implements Outcomes.
func (m MapOutcomes) Outcome(stepID string) (bool, bool) {
	ok, present := m[stepID]
	return ok, present
}

// ParseError describes a condition that does not conform to the grammar.
type ParseError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cond: parse %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
}

// Expr is a parsed, immutable condition expression.
type Expr struct {
	src  string
	root node
	refs []string
}

// Parse compiles an expression string. The empty string is rejected;
// callers treat an absent condition as always-true without calling
// Parse.
func Parse(expr string) (*Expr, error) {
	p := &parser{expr: expr}
	p.next()

	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.tok.text)
	}

	refSet := make(map[string]struct{})
	root.collectRefs(refSet)
	refs := make([]string, 0, len(refSet))
	for r := range refSet {
		refs = append(refs, r)
	}
	sort.Strings(refs)

	return &Expr{src: expr, root: root, refs: refs}, nil
}

// String returns the original expression source.
func (e *Expr) String() string { return e.src }

// References returns the sorted set of step IDs the expression mentions.
// The graph builder uses these as scheduling edges so that evaluation is
// deterministic with respect to concurrent step completion.
func (e *Expr) References() []string {
	out := make([]string, len(e.refs))
	copy(out, e.refs)
	return out
}

// Eval evaluates the expression against the given outcomes.
func (e *Expr) Eval(o Outcomes) bool {
	result, _ := e.EvalReport(o)
	return result
}

// EvalReport evaluates the expression and additionally returns the step
// IDs that were referenced but absent from the outcomes (degraded
// references). Absence is never an error; the list exists so callers
// can log the degraded-input condition.
func (e *Expr) EvalReport(o Outcomes) (bool, []string) {
	var missing []string
	seen := make(map[string]struct{})
	onMissing := func(stepID string) {
		if _, dup := seen[stepID]; dup {
			return
		}
		seen[stepID] = struct{}{}
		missing = append(missing, stepID)
	}
	return e.root.eval(o, onMissing), missing
}

// ── AST ─────────────────────────────────────────────

type field int

const (
	fieldSuccess field = iota
	fieldFailed
)

type node interface {
	eval(o Outcomes, onMissing func(string)) bool
	collectRefs(into map[string]struct{})
}

type refNode struct {
	step  string
	field field
}

func (n *refNode) eval(o Outcomes, onMissing func(string)) bool {
	succeeded, present := o.Outcome(n.step)
	if !present {
		onMissing(n.step)
		// Undefined step: .success is false, .failed is true.
		return n.field == fieldFailed
	}
	if n.field == fieldSuccess {
		return succeeded
	}
	return !succeeded
}

func (n *refNode) collectRefs(into map[string]struct{}) { into[n.step] = struct{}{} }

type notNode struct{ child node }

func (n *notNode) eval(o Outcomes, onMissing func(string)) bool {
	return !n.child.eval(o, onMissing)
}

func (n *notNode) collectRefs(into map[string]struct{}) { n.child.collectRefs(into) }

type binNode struct {
	and         bool
	left, right node
}

func (n *binNode) eval(o Outcomes, onMissing func(string)) bool {
	// Evaluate both sides unconditionally so degraded references are
	// reported regardless of short-circuit order.
	l := n.left.eval(o, onMissing)
	r := n.right.eval(o, onMissing)
	if n.and {
		return l && r
	}
	return l || r
}

func (n *binNode) collectRefs(into map[string]struct{}) {
	n.left.collectRefs(into)
	n.right.collectRefs(into)
}

// ── Lexer / parser ──────────────────────────────────

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokDot
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokInvalid
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type parser struct {
	expr string
	pos  int
	tok  token
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Expr: p.expr, Pos: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}

// next advances to the following token.
func (p *parser) next() {
	for p.pos < len(p.expr) && unicode.IsSpace(rune(p.expr[p.pos])) {
		p.pos++
	}

	start := p.pos
	if p.pos >= len(p.expr) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}

	switch c := p.expr[p.pos]; {
	case c == '.':
		p.pos++
		p.tok = token{kind: tokDot, text: ".", pos: start}
	case c == '(':
		p.pos++
		p.tok = token{kind: tokLParen, text: "(", pos: start}
	case c == ')':
		p.pos++
		p.tok = token{kind: tokRParen, text: ")", pos: start}
	case isIdentRune(rune(c)):
		for p.pos < len(p.expr) && isIdentRune(rune(p.expr[p.pos])) {
			p.pos++
		}
		text := p.expr[start:p.pos]
		switch strings.ToUpper(text) {
		case "AND":
			p.tok = token{kind: tokAnd, text: text, pos: start}
		case "OR":
			p.tok = token{kind: tokOr, text: text, pos: start}
		case "NOT":
			p.tok = token{kind: tokNot, text: text, pos: start}
		default:
			p.tok = token{kind: tokIdent, text: text, pos: start}
		}
	default:
		p.tok = token{kind: tokInvalid, text: string(c), pos: start}
		p.pos++
	}
}

// parseOr := parseAnd (OR parseAnd)*
func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binNode{and: false, left: left, right: right}
	}
	return left, nil
}

// parseAnd := parseUnary (AND parseUnary)*
func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binNode{and: true, left: left, right: right}
	}
	return left, nil
}

// parseUnary := NOT parseUnary | parsePrimary
func (p *parser) parseUnary() (node, error) {
	if p.tok.kind == tokNot {
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{child: child}, nil
	}
	return p.parsePrimary()
}

// parsePrimary := '(' parseOr ')' | IDENT '.' ('success'|'failed')
func (p *parser) parsePrimary() (node, error) {
	switch p.tok.kind {
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("expected ')'")
		}
		p.next()
		return inner, nil

	case tokIdent:
		step := p.tok.text
		p.next()
		if p.tok.kind != tokDot {
			return nil, p.errorf("expected '.' after step id %q", step)
		}
		p.next()
		if p.tok.kind != tokIdent {
			return nil, p.errorf("expected outcome field after %q.", step)
		}
		var f field
		switch p.tok.text {
		case "success":
			f = fieldSuccess
		case "failed":
			f = fieldFailed
		default:
			return nil, p.errorf("unknown outcome field %q (want success or failed)", p.tok.text)
		}
		p.next()
		return &refNode{step: step, field: f}, nil

	case tokEOF:
		return nil, p.errorf("unexpected end of expression")

	case tokInvalid:
		return nil, p.errorf("invalid character %q", p.tok.text)

	default:
		return nil, p.errorf("unexpected %q", p.tok.text)
	}
}
