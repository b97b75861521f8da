package query

import (
	"context"

	"github.com/bemafred/sky-omega/pkg/index"
)

// Path is a property path expression over a predicate: atomic, inverse,
// sequence, alternative, negated-set, and the transitive-closure variants
// each get their own constructor below.
type Path interface {
	// eval streams (end, length) pairs for this path, starting from a
	// fixed start node when startBound is true; when it is false the leaf
	// scans are not restricted to any start node. PathMatch always passes
	// true.
	eval(ctx context.Context, idx *index.MultiIndex, start uint32, startBound bool) (pathIterator, error)
}

// pathIterator yields (end, length) pairs for a fixed start node.
type pathIterator interface {
	Advance() bool
	End() uint32
	Length() int
	Err() error
	Close()
}

// Atomic is `p`: the path consisting of a single predicate.
func Atomic(predicate uint32) Path { return atomicPath{predicate} }

type atomicPath struct{ predicate uint32 }

func (p atomicPath) eval(ctx context.Context, idx *index.MultiIndex, start uint32, startBound bool) (pathIterator, error) {
	var pat index.Pattern
	pred := p.predicate
	pat.Predicate = &pred
	if startBound {
		pat.Subject = &start
	}
	it, err := idx.Query(pat)
	if err != nil {
		return nil, err
	}
	return &atomicIter{it: it, ctx: ctx}, nil
}

type atomicIter struct {
	it  *index.ResultIterator
	ctx context.Context
	cur uint32
}

func (a *atomicIter) Advance() bool {
	if !a.it.Advance(a.ctx) {
		return false
	}
	a.cur = a.it.Current().Object
	return true
}
func (a *atomicIter) End() uint32  { return a.cur }
func (a *atomicIter) Length() int  { return 1 }
func (a *atomicIter) Err() error   { return a.it.Err() }
func (a *atomicIter) Close()       { a.it.Close() }

// Inverse is `^E`: swap start/end. Pushed down to the atomic leaves of e,
// since this package's pathIterator model only natively swaps direction at
// an atomic predicate (a sequence's direction reverses and its two sides
// swap order; an alternative's direction reverses on each branch). Any
// other path, such as a negated set, is returned unchanged, with its
// direction not reversed.
func Inverse(e Path) Path {
	switch v := e.(type) {
	case atomicPath:
		return invertedAtomic{v.predicate}
	case invertedAtomic:
		return atomicPath{v.predicate}
	case sequencePath:
		return sequencePath{Inverse(v.second), Inverse(v.first)}
	case alternativePath:
		return alternativePath{Inverse(v.a), Inverse(v.b)}
	default:
		return e
	}
}

type invertedAtomic struct{ predicate uint32 }

func (p invertedAtomic) eval(ctx context.Context, idx *index.MultiIndex, start uint32, startBound bool) (pathIterator, error) {
	var pat index.Pattern
	pred := p.predicate
	pat.Predicate = &pred
	if startBound {
		pat.Object = &start
	}
	it, err := idx.Query(pat)
	if err != nil {
		return nil, err
	}
	return &invertedIter{it: it, ctx: ctx}, nil
}

type invertedIter struct {
	it  *index.ResultIterator
	ctx context.Context
	cur uint32
}

func (a *invertedIter) Advance() bool {
	if !a.it.Advance(a.ctx) {
		return false
	}
	a.cur = a.it.Current().Subject
	return true
}
func (a *invertedIter) End() uint32 { return a.cur }
func (a *invertedIter) Length() int { return 1 }
func (a *invertedIter) Err() error  { return a.it.Err() }
func (a *invertedIter) Close()      { a.it.Close() }

// Sequence is `E1 / E2`: join through an intermediate node, projected out.
func Sequence(first, second Path) Path { return sequencePath{first, second} }

type sequencePath struct{ first, second Path }

func (p sequencePath) eval(ctx context.Context, idx *index.MultiIndex, start uint32, startBound bool) (pathIterator, error) {
	firstIt, err := p.first.eval(ctx, idx, start, startBound)
	if err != nil {
		return nil, err
	}
	return &sequenceIter{ctx: ctx, idx: idx, second: p.second, first: firstIt}, nil
}

type sequenceIter struct {
	ctx    context.Context
	idx    *index.MultiIndex
	second Path
	first  pathIterator
	cur    pathIterator
	curLen int
	end    uint32
	err    error
}

func (s *sequenceIter) Advance() bool {
	for {
		if s.cur != nil {
			if s.cur.Advance() {
				s.end = s.cur.End()
				return true
			}
			if err := s.cur.Err(); err != nil {
				s.err = err
				return false
			}
			s.cur.Close()
			s.cur = nil
		}
		if !s.first.Advance() {
			s.err = s.first.Err()
			return false
		}
		s.curLen = s.first.Length()
		next, err := s.second.eval(s.ctx, s.idx, s.first.End(), true)
		if err != nil {
			s.err = err
			return false
		}
		s.cur = next
	}
}
func (s *sequenceIter) End() uint32 { return s.end }
func (s *sequenceIter) Length() int { return s.curLen + s.cur.Length() }
func (s *sequenceIter) Err() error  { return s.err }
func (s *sequenceIter) Close() {
	if s.cur != nil {
		s.cur.Close()
	}
	s.first.Close()
}

// Alternative is `E1 | E2`: set union of (s, o) pairs.
func Alternative(a, b Path) Path { return alternativePath{a, b} }

type alternativePath struct{ a, b Path }

func (p alternativePath) eval(ctx context.Context, idx *index.MultiIndex, start uint32, startBound bool) (pathIterator, error) {
	aIt, err := p.a.eval(ctx, idx, start, startBound)
	if err != nil {
		return nil, err
	}
	bIt, err := p.b.eval(ctx, idx, start, startBound)
	if err != nil {
		aIt.Close()
		return nil, err
	}
	return &altIter{a: aIt, b: bIt, onA: true}, nil
}

type altIter struct {
	a, b pathIterator
	onA  bool
	err  error
}

func (it *altIter) Advance() bool {
	if it.onA {
		if it.a.Advance() {
			return true
		}
		if it.err = it.a.Err(); it.err != nil {
			return false
		}
		it.onA = false
	}
	if it.b.Advance() {
		return true
	}
	it.err = it.b.Err()
	return false
}
func (it *altIter) End() uint32 {
	if it.onA {
		return it.a.End()
	}
	return it.b.End()
}
func (it *altIter) Length() int {
	if it.onA {
		return it.a.Length()
	}
	return it.b.Length()
}
func (it *altIter) Err() error { return it.err }
func (it *altIter) Close() {
	it.a.Close()
	it.b.Close()
}

// NegatedSet is `!(p1|p2|...)`: emit (s, o) where predicate is not in the
// set. Implemented as a full adjacency scan with per-predicate exclusion,
// since there is no index rotation keyed by "predicate not in set".
func NegatedSet(excluded ...uint32) Path { return negatedSetPath{excluded} }

type negatedSetPath struct{ excluded []uint32 }

func (p negatedSetPath) eval(ctx context.Context, idx *index.MultiIndex, start uint32, startBound bool) (pathIterator, error) {
	var pat index.Pattern
	if startBound {
		pat.Subject = &start
	}
	it, err := idx.Query(pat)
	if err != nil {
		return nil, err
	}
	return &negatedIter{it: it, ctx: ctx, excluded: p.excluded}, nil
}

type negatedIter struct {
	it       *index.ResultIterator
	ctx      context.Context
	excluded []uint32
	cur      uint32
}

func (n *negatedIter) excludedPredicate(p uint32) bool {
	for _, e := range n.excluded {
		if e == p {
			return true
		}
	}
	return false
}
func (n *negatedIter) Advance() bool {
	for n.it.Advance(n.ctx) {
		r := n.it.Current()
		if n.excludedPredicate(r.Predicate) {
			continue
		}
		n.cur = r.Object
		return true
	}
	return false
}
func (n *negatedIter) End() uint32 { return n.cur }
func (n *negatedIter) Length() int { return 1 }
func (n *negatedIter) Err() error  { return n.it.Err() }
func (n *negatedIter) Close()      { n.it.Close() }

// PathResult is one emitted (start, end) pair with its path length, for the
// transitive-closure and optional path forms, which need a frontier search
// rather than a single pathIterator chain.
type PathResult struct {
	Start, End uint32
	Length     int
}

// PathMatch evaluates e starting from start and returns every reachable
// (start, end) pair with the length of the shortest path that reached it,
// deduplicated so each reachable (start, end) pair is emitted exactly once
// per query even if multiple paths exist.
//
// This single entry point handles all of E, E+, E*, and E? uniformly via
// breadth-first frontier expansion, since E (one step), E? (zero-or-one),
// and E* (zero-or-more) are all special cases of bounding the same BFS by
// depth.
func PathMatch(ctx context.Context, idx *index.MultiIndex, e Path, start uint32, minDepth, maxDepth int) ([]PathResult, error) {
	visited := map[uint32]bool{}
	var results []PathResult

	if minDepth == 0 {
		visited[start] = true
		results = append(results, PathResult{Start: start, End: start, Length: 0})
	}

	frontier := []uint32{start}
	for depth := 1; len(frontier) > 0 && (maxDepth < 0 || depth <= maxDepth); depth++ {
		var next []uint32
		for _, node := range frontier {
			it, err := e.eval(ctx, idx, node, true)
			if err != nil {
				return nil, err
			}
			for it.Advance() {
				end := it.End()
				if visited[end] {
					continue
				}
				visited[end] = true
				if depth >= minDepth {
					results = append(results, PathResult{Start: start, End: end, Length: depth})
				}
				next = append(next, end)
			}
			if err := it.Err(); err != nil {
				it.Close()
				return nil, err
			}
			it.Close()
		}
		frontier = next
	}
	return results, nil
}

// ZeroOrOne is `E?`: E union the reflexive identity pair.
func ZeroOrOne(ctx context.Context, idx *index.MultiIndex, e Path, start uint32) ([]PathResult, error) {
	return PathMatch(ctx, idx, e, start, 0, 1)
}

// OneOrMore is `E+`: transitive closure via BFS frontier expansion, length
// carried for diagnostics.
func OneOrMore(ctx context.Context, idx *index.MultiIndex, e Path, start uint32) ([]PathResult, error) {
	return PathMatch(ctx, idx, e, start, 1, -1)
}

// ZeroOrMore is `E*`: E+ union the reflexive identity pair.
func ZeroOrMore(ctx context.Context, idx *index.MultiIndex, e Path, start uint32) ([]PathResult, error) {
	return PathMatch(ctx, idx, e, start, 0, -1)
}
