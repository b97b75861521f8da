package query

import (
	"strconv"
	"strings"

	"github.com/bemafred/sky-omega/pkg/index"
)

// TermResolver supplies the RDF-term byte content behind an atom, so FILTER
// expressions can compare string/numeric literal content rather than raw
// atom ids. Satisfied by *index.MultiIndex (its TermOf method).
type TermResolver interface {
	TermOf(id uint32) ([]byte, error)
}

var _ TermResolver = (*index.MultiIndex)(nil)

// Value is a FILTER expression's evaluation result: either a bound value
// (atom + its decoded numeric/string form) or unbound. Unbound and
// type-error results both drop the row under SPARQL effective boolean
// value semantics rather than aborting evaluation.
type Value struct {
	Bound  bool
	IsNum  bool
	Num    float64
	Str    string
	Atom   uint32
}

// Expr is a FILTER expression, evaluated per candidate solution against a
// TermResolver for literal content.
type Expr func(sol Solution, terms TermResolver) Value

// Unbound is the canonical "no value" result; comparisons and arithmetic
// against it always produce Unbound, propagating the failure rather than
// panicking.
var Unbound = Value{}

func numFrom(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// VarExpr resolves a variable's bound term into a Value, decoding it as a
// number when it parses as one, otherwise treating it as a string.
func VarExpr(v VarID) Expr {
	return func(sol Solution, terms TermResolver) Value {
		a, ok := sol[v]
		if !ok {
			return Unbound
		}
		b, err := terms.TermOf(a)
		if err != nil {
			return Unbound
		}
		s := string(b)
		if f, ok := numFrom(s); ok {
			return Value{Bound: true, IsNum: true, Num: f, Str: s, Atom: a}
		}
		return Value{Bound: true, Str: s, Atom: a}
	}
}

// LitExpr is a constant expression, for comparisons against a literal.
func LitExpr(s string) Expr {
	f, isNum := numFrom(s)
	return func(Solution, TermResolver) Value {
		return Value{Bound: true, IsNum: isNum, Num: f, Str: s}
	}
}

// IsBound implements the `bound(?x)` built-in.
func IsBound(v VarID) Expr {
	return func(sol Solution, _ TermResolver) Value {
		_, ok := sol[v]
		return Value{Bound: true, IsNum: true, Num: boolToFloat(ok)}
	}
}

// IsIRI implements `isIRI(?x)`: true iff the resolved term's bytes look
// like an IRI (`<...>`).
func IsIRI(v VarID) Expr {
	return func(sol Solution, terms TermResolver) Value {
		a, ok := sol[v]
		if !ok {
			return Unbound
		}
		b, err := terms.TermOf(a)
		if err != nil {
			return Unbound
		}
		isIRI := len(b) >= 2 && b[0] == '<' && b[len(b)-1] == '>'
		return Value{Bound: true, IsNum: true, Num: boolToFloat(isIRI)}
	}
}

// Str implements `str(?x)`: the lexical form of the resolved term, always a
// string result (never numeric), for string-only comparisons.
func Str(v VarID) Expr {
	return func(sol Solution, terms TermResolver) Value {
		a, ok := sol[v]
		if !ok {
			return Unbound
		}
		b, err := terms.TermOf(a)
		if err != nil {
			return Unbound
		}
		return Value{Bound: true, Str: string(b)}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// CmpOp is a comparison operator for Compare.
type CmpOp int

const (
	Eq CmpOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// Compare builds a comparison expression. Numeric comparison is used when
// both sides are numeric; otherwise lexicographic string compare.
func Compare(op CmpOp, a, b Expr) Expr {
	return func(sol Solution, terms TermResolver) Value {
		va, vb := a(sol, terms), b(sol, terms)
		if !va.Bound || !vb.Bound {
			return Unbound
		}
		var c int
		if va.IsNum && vb.IsNum {
			switch {
			case va.Num < vb.Num:
				c = -1
			case va.Num > vb.Num:
				c = 1
			}
		} else {
			c = strings.Compare(va.Str, vb.Str)
		}
		var ok bool
		switch op {
		case Eq:
			ok = c == 0
		case Ne:
			ok = c != 0
		case Lt:
			ok = c < 0
		case Le:
			ok = c <= 0
		case Gt:
			ok = c > 0
		case Ge:
			ok = c >= 0
		}
		return Value{Bound: true, IsNum: true, Num: boolToFloat(ok)}
	}
}

// ArithOp is an arithmetic operator for Arith.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
)

// Arith builds an arithmetic expression over numeric literals. Division by
// zero and any non-numeric operand produce Unbound rather than panicking or
// producing Inf.
func Arith(op ArithOp, a, b Expr) Expr {
	return func(sol Solution, terms TermResolver) Value {
		va, vb := a(sol, terms), b(sol, terms)
		if !va.Bound || !vb.Bound || !va.IsNum || !vb.IsNum {
			return Unbound
		}
		var r float64
		switch op {
		case Add:
			r = va.Num + vb.Num
		case Sub:
			r = va.Num - vb.Num
		case Mul:
			r = va.Num * vb.Num
		case Div:
			if vb.Num == 0 {
				return Unbound
			}
			r = va.Num / vb.Num
		}
		return Value{Bound: true, IsNum: true, Num: r}
	}
}

// effectiveBoolean implements SPARQL's effective-boolean-value coercion:
// unbound or non-numeric-non-string is false; a numeric zero is false; an
// empty string is false; everything else is true.
func effectiveBoolean(v Value) bool {
	if !v.Bound {
		return false
	}
	if v.IsNum {
		return v.Num != 0
	}
	return v.Str != ""
}

// Filter drops any solution for which expr, evaluated against it, is not
// effective-true: false, unbound, and type-error results are all dropped.
type Filter struct {
	inner Operator
	expr  Expr
	terms TermResolver
	cur   Solution
	err   error
}

func NewFilter(inner Operator, expr Expr, terms TermResolver) *Filter {
	return &Filter{inner: inner, expr: expr, terms: terms}
}

func (f *Filter) Advance() bool {
	for f.inner.Advance() {
		sol := f.inner.Current()
		if effectiveBoolean(f.expr(sol, f.terms)) {
			f.cur = sol
			return true
		}
	}
	f.err = f.inner.Err()
	return false
}

func (f *Filter) Current() Solution { return f.cur }
func (f *Filter) Err() error         { return f.err }
func (f *Filter) Close()             { f.inner.Close() }
