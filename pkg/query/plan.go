// Package query implements the streaming query operator layer: pattern
// match, BGP join (nested-loop and hash), OPTIONAL, UNION,
// FILTER, property paths, solution modifiers, and aggregates, all built
// as pull-based iterators over the multi-index store.
package query

import "github.com/bemafred/sky-omega/pkg/index"

// VarID is a small per-query integer identifying a variable, assigned once
// at plan time. A query plan never re-tests a "?"-prefixed string inside a
// hot loop: a Term is resolved to either a bound Atom or a Variable
// exactly once, when the pattern is parsed into a plan.
type VarID int

// Term is the tagged-term sum {Atom(a) | Variable(id)}. Exactly one of
// the two fields is meaningful, selected by IsVariable.
type Term struct {
	atom       uint32
	variable   VarID
	isVariable bool
}

// Bound constructs a Term carrying a resolved atom.
func Bound(atom uint32) Term { return Term{atom: atom} }

// Var constructs a Term naming a variable.
func Var(id VarID) Term { return Term{variable: id, isVariable: true} }

// IsVariable reports whether this term is a variable rather than a bound atom.
func (t Term) IsVariable() bool { return t.isVariable }

// Variable returns the variable id; only meaningful when IsVariable is true.
func (t Term) Variable() VarID { return t.variable }

// Atom returns the bound atom; only meaningful when IsVariable is false.
func (t Term) Atom() uint32 { return t.atom }

// Solution is a partial mapping from variable id to atom. A nil map
// entry (key absent) means the variable is unbound in this solution.
type Solution map[VarID]uint32

// Clone returns a shallow copy, used whenever an operator must extend a
// parent solution without mutating the one still held by an outer loop.
func (s Solution) Clone() Solution {
	out := make(Solution, len(s)+2)
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Bind returns a copy of s with the variable in t bound to value, or s
// unchanged if t is not a variable (a bound term trivially "matches itself"
// and contributes no new binding).
func (s Solution) Bind(t Term, value uint32) Solution {
	if !t.IsVariable() {
		return s
	}
	out := s.Clone()
	out[t.Variable()] = value
	return out
}

// Resolve returns the atom t denotes under solution s: t's own atom if
// bound, or s's binding for t's variable. ok is false if t is an unbound
// variable.
func (s Solution) Resolve(t Term) (value uint32, ok bool) {
	if !t.IsVariable() {
		return t.Atom(), true
	}
	v, ok := s[t.Variable()]
	return v, ok
}

// TriplePattern is one BGP pattern: three required terms (subject,
// predicate, object) plus an optional graph term, any of which may be a
// variable. Graph is a pointer so "no graph named" (the engine may union
// across all graphs) is distinguishable from "explicitly bound to the
// default graph".
type TriplePattern struct {
	Subject, Predicate, Object Term
	Graph                      *Term
}

// Operator is the pull-based interface every streaming operator
// implements: a single-threaded cooperative iterator exposing Advance()
// and a borrow-returning Current().
type Operator interface {
	Advance() bool
	Current() Solution
	Err() error
	Close()
}

// patternFields resolves a TriplePattern against a Solution into an
// index.Pattern, substituting any variable already bound in sol and leaving
// unbound variables as wildcards. Used by both plain pattern match and the
// indexed-nested-loop join strategy (substitute left solution, issue a new
// pattern-match iterator).
func patternFields(p TriplePattern, sol Solution) index.Pattern {
	resolve := func(t Term) *uint32 {
		v, ok := sol.Resolve(t)
		if !ok {
			return nil
		}
		return &v
	}
	pat := index.Pattern{
		Subject:   resolve(p.Subject),
		Predicate: resolve(p.Predicate),
		Object:    resolve(p.Object),
	}
	if p.Graph != nil {
		pat.Graph = resolve(*p.Graph)
	}
	return pat
}
