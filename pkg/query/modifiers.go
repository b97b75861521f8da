package query

import (
	"encoding/binary"
	"sort"
)

// Distinct streams with an atom-tuple seen-set, bounded by a working-set
// assumption: the seen-set stays in memory for the lifetime of the query
// and there is no spill-to-disk path.
type Distinct struct {
	inner Operator
	vars  []VarID
	seen  map[string]bool
	cur   Solution
	err   error
}

// NewDistinct projects each solution onto vars (in order) before computing
// the dedup key, matching SPARQL's SELECT DISTINCT ?a ?b semantics: only
// the projected variables determine distinctness.
func NewDistinct(inner Operator, vars []VarID) *Distinct {
	return &Distinct{inner: inner, vars: vars, seen: make(map[string]bool)}
}

func (d *Distinct) key(sol Solution) string {
	buf := make([]byte, 0, 5*len(d.vars))
	for _, v := range d.vars {
		val, ok := sol[v]
		b := make([]byte, 5)
		if ok {
			b[0] = 1
			binary.BigEndian.PutUint32(b[1:], val)
		}
		buf = append(buf, b...)
	}
	return string(buf)
}

func (d *Distinct) Advance() bool {
	for d.inner.Advance() {
		sol := d.inner.Current()
		k := d.key(sol)
		if d.seen[k] {
			continue
		}
		d.seen[k] = true
		d.cur = sol
		return true
	}
	d.err = d.inner.Err()
	return false
}

func (d *Distinct) Current() Solution { return d.cur }
func (d *Distinct) Err() error         { return d.err }
func (d *Distinct) Close()             { d.inner.Close() }

// SortKey is one ORDER BY key: a variable plus direction.
type SortKey struct {
	Var        VarID
	Descending bool
}

// OrderBy requires buffering. Sort is stable; secondary keys apply in
// listed order; each key may be ascending or descending. terms resolves
// atoms to comparable lexical content, the same way FILTER compares
// string literals.
type OrderBy struct {
	inner Operator
	keys  []SortKey
	terms TermResolver

	buffered []Solution
	idx      int
	err      error
}

func NewOrderBy(inner Operator, keys []SortKey, terms TermResolver) (*OrderBy, error) {
	o := &OrderBy{inner: inner, keys: keys, terms: terms}
	for inner.Advance() {
		o.buffered = append(o.buffered, inner.Current())
	}
	if err := inner.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(o.buffered, o.less)
	return o, nil
}

func (o *OrderBy) less(i, j int) bool {
	a, b := o.buffered[i], o.buffered[j]
	for _, k := range o.keys {
		av, aok := a[k.Var]
		bv, bok := b[k.Var]
		if !aok && !bok {
			continue
		}
		if !aok {
			return !k.Descending // unbound sorts first ascending, last descending
		}
		if !bok {
			return k.Descending
		}
		if av == bv {
			continue
		}
		sa, _ := o.terms.TermOf(av)
		sb, _ := o.terms.TermOf(bv)
		less := string(sa) < string(sb)
		if k.Descending {
			return !less
		}
		return less
	}
	return false
}

func (o *OrderBy) Advance() bool {
	if o.idx >= len(o.buffered) {
		return false
	}
	o.idx++
	return true
}
func (o *OrderBy) Current() Solution { return o.buffered[o.idx-1] }
func (o *OrderBy) Err() error         { return o.err }
func (o *OrderBy) Close()             { o.inner.Close() }

// LimitOffset implements LIMIT k / OFFSET n, streamed post-ORDER. It works
// equally well directly over a streaming (non-ORDER BY) operator, since
// offset/limit are pure counting operations.
type LimitOffset struct {
	inner        Operator
	offset, left int
	skipped      bool
	cur          Solution
	err          error
}

func NewLimitOffset(inner Operator, offset, limit int) *LimitOffset {
	left := limit
	if limit < 0 {
		left = -1 // unlimited
	}
	return &LimitOffset{inner: inner, offset: offset, left: left}
}

func (l *LimitOffset) Advance() bool {
	if !l.skipped {
		for i := 0; i < l.offset; i++ {
			if !l.inner.Advance() {
				l.err = l.inner.Err()
				l.skipped = true
				return false
			}
		}
		l.skipped = true
	}
	if l.left == 0 {
		return false
	}
	if !l.inner.Advance() {
		l.err = l.inner.Err()
		return false
	}
	if l.left > 0 {
		l.left--
	}
	l.cur = l.inner.Current()
	return true
}

func (l *LimitOffset) Current() Solution { return l.cur }
func (l *LimitOffset) Err() error         { return l.err }
func (l *LimitOffset) Close()             { l.inner.Close() }
