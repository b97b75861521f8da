package query

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/google/uuid"

	"github.com/bemafred/sky-omega/pkg/index"
	"github.com/bemafred/sky-omega/pkg/log"
)

// hashJoinThreshold is the estimated-cardinality cutoff past which both
// sides of a join are considered "large" and a hash join is used instead of
// an indexed nested loop. There is no statistics-driven cost model beyond
// the frequency counters, so a fixed threshold stands in for a cost
// estimate.
const hashJoinThreshold = 256

// estimate returns a cheap cardinality estimate for a pattern under idx: the
// frequency-counter value for whichever of predicate/object is bound, or a
// value taken to mean "unknown/full scan" when neither is.
func estimate(idx *index.MultiIndex, p TriplePattern) uint64 {
	const unknown = ^uint64(0)
	boundPredicate := !p.Predicate.IsVariable()
	boundObject := !p.Object.IsVariable()
	switch {
	case boundPredicate && boundObject:
		pc, oc := idx.PredicateCardinality(p.Predicate.Atom()), idx.ObjectCardinality(p.Object.Atom())
		if pc < oc {
			return pc
		}
		return oc
	case boundPredicate:
		return idx.PredicateCardinality(p.Predicate.Atom())
	case boundObject:
		return idx.ObjectCardinality(p.Object.Atom())
	default:
		return unknown
	}
}

// ReorderByCardinality sorts patterns ascending by estimated cardinality.
// Sort is stable so patterns with equal/unknown estimates keep their
// original relative order.
func ReorderByCardinality(idx *index.MultiIndex, patterns []TriplePattern) []TriplePattern {
	order := make([]int, len(patterns))
	est := make([]uint64, len(patterns))
	for i, p := range patterns {
		order[i] = i
		est[i] = estimate(idx, p)
	}
	sort.SliceStable(order, func(i, j int) bool { return est[order[i]] < est[order[j]] })
	out := make([]TriplePattern, len(patterns))
	for i, k := range order {
		out[i] = patterns[k]
	}
	return out
}

// sharedVariables returns the variables that appear in both a and b, used to
// pick the join key for a nested-loop substitution or a hash join.
func sharedVariables(a, b TriplePattern) []VarID {
	seen := map[VarID]bool{}
	for _, t := range []Term{a.Subject, a.Predicate, a.Object} {
		if t.IsVariable() {
			seen[t.Variable()] = true
		}
	}
	var shared []VarID
	add := func(t Term) {
		if t.IsVariable() && seen[t.Variable()] {
			for _, v := range shared {
				if v == t.Variable() {
					return
				}
			}
			shared = append(shared, t.Variable())
		}
	}
	add(b.Subject)
	add(b.Predicate)
	add(b.Object)
	return shared
}

// BGP evaluates a basic graph pattern by reordering its patterns by
// ascending estimated cardinality and folding them into a left-deep join
// tree, choosing per-join-step between an indexed nested loop (right side
// is selective) and a hash join (both sides are large). A third strategy,
// sort-merge, is not built as a separate operator: every pattern scan
// already streams in ascending composite-key order of its chosen index,
// so the indexed-nested-loop path already gets sort-merge's benefit
// whenever the join variable is a prefix of both sides' chosen index — no
// extra machinery earns its keep for the case a distinct sort-merge
// operator would add.
type BGP struct {
	ctx context.Context
	idx *index.MultiIndex

	id   string
	root Operator
	err  error
}

// NewBGP builds and opens the join pipeline for patterns against idx. Each
// call is assigned a fresh query id so its log lines can be correlated
// across the planning and execution of one query.
func NewBGP(ctx context.Context, idx *index.MultiIndex, patterns []TriplePattern) (*BGP, error) {
	id := uuid.NewString()
	logger := log.WithQuery(id)
	logger.Debug().Int("patterns", len(patterns)).Msg("planning basic graph pattern")

	ordered := ReorderByCardinality(idx, patterns)
	if len(ordered) == 0 {
		return &BGP{ctx: ctx, idx: idx, id: id, root: emptyOperator{}}, nil
	}

	first, err := NewPatternScan(ctx, idx, ordered[0], Solution{})
	if err != nil {
		return nil, err
	}
	var root Operator = first
	leftPattern := ordered[0]

	for _, next := range ordered[1:] {
		rightEstimate := estimate(idx, next)
		if rightEstimate < hashJoinThreshold {
			root = newNestedLoopJoin(ctx, idx, root, next)
		} else {
			root = newHashJoin(ctx, idx, root, next, sharedVariables(leftPattern, next))
		}
		leftPattern = next
	}
	return &BGP{ctx: ctx, idx: idx, id: id, root: root}, nil
}

// ID returns the query id assigned at plan time, for a caller that wants
// to correlate its own logging with the planner's.
func (b *BGP) ID() string { return b.id }

func (b *BGP) Advance() bool {
	if !b.root.Advance() {
		b.err = b.root.Err()
		return false
	}
	return true
}
func (b *BGP) Current() Solution { return b.root.Current() }
func (b *BGP) Err() error         { return b.err }
func (b *BGP) Close()             { b.root.Close() }

// emptyOperator is the zero-pattern BGP: yields nothing.
type emptyOperator struct{}

func (emptyOperator) Advance() bool     { return false }
func (emptyOperator) Current() Solution { return nil }
func (emptyOperator) Err() error        { return nil }
func (emptyOperator) Close()            {}

// nestedLoopJoin is an indexed nested loop: for each left solution,
// substitute its bindings into the right pattern and issue a new
// pattern-match iterator.
type nestedLoopJoin struct {
	ctx     context.Context
	idx     *index.MultiIndex
	left    Operator
	pattern TriplePattern

	right *PatternScan
	cur   Solution
	err   error
}

func newNestedLoopJoin(ctx context.Context, idx *index.MultiIndex, left Operator, pattern TriplePattern) *nestedLoopJoin {
	return &nestedLoopJoin{ctx: ctx, idx: idx, left: left, pattern: pattern}
}

func (j *nestedLoopJoin) Advance() bool {
	for {
		if j.right != nil {
			if j.right.Advance() {
				j.cur = j.right.Current()
				return true
			}
			if err := j.right.Err(); err != nil {
				j.err = err
				j.right.Close()
				return false
			}
			j.right.Close()
			j.right = nil
		}
		if !j.left.Advance() {
			j.err = j.left.Err()
			return false
		}
		leftSol := j.left.Current()
		right, err := NewPatternScan(j.ctx, j.idx, j.pattern, leftSol)
		if err != nil {
			j.err = err
			return false
		}
		j.right = right
	}
}

func (j *nestedLoopJoin) Current() Solution { return j.cur }
func (j *nestedLoopJoin) Err() error         { return j.err }
func (j *nestedLoopJoin) Close() {
	if j.right != nil {
		j.right.Close()
	}
	j.left.Close()
}

// hashJoin is a hash join keyed on shared variable atoms. The build side
// is materialized into a hash multimap keyed by atom tuple; the probe side
// streams. The two sides' cardinalities are not compared to pick the
// build side.
//
// The build side is always the accumulated left (it has already been
// narrowed by every prior join step, so it is the smaller input in
// practice); the probe side is a fresh unconstrained scan of the next
// pattern. Go's built-in map already is an open-addressing hash table, so
// it is used directly as the multimap rather than hand-rolling one.
type hashJoin struct {
	ctx     context.Context
	idx     *index.MultiIndex
	pattern TriplePattern
	joinOn  []VarID

	built bool
	table map[string][]Solution

	probe *PatternScan
	queue []Solution
	qi    int
	cur   Solution
	err   error

	left Operator
}

func newHashJoin(ctx context.Context, idx *index.MultiIndex, left Operator, pattern TriplePattern, joinOn []VarID) *hashJoin {
	return &hashJoin{ctx: ctx, idx: idx, pattern: pattern, joinOn: joinOn, left: left}
}

func (j *hashJoin) build() error {
	j.table = make(map[string][]Solution)
	for j.left.Advance() {
		sol := j.left.Current()
		key, ok := hashKey(sol, j.joinOn)
		if !ok {
			continue
		}
		j.table[key] = append(j.table[key], sol)
	}
	j.built = true
	return j.left.Err()
}

func hashKey(sol Solution, vars []VarID) (string, bool) {
	if len(vars) == 0 {
		return "", false
	}
	buf := make([]byte, 4*len(vars))
	for i, v := range vars {
		val, ok := sol[v]
		if !ok {
			return "", false
		}
		binary.BigEndian.PutUint32(buf[i*4:], val)
	}
	return string(buf), true
}

func (j *hashJoin) Advance() bool {
	if !j.built {
		if err := j.build(); err != nil {
			j.err = err
			return false
		}
	}
	for {
		if j.qi < len(j.queue) {
			j.cur = j.queue[j.qi]
			j.qi++
			return true
		}
		if j.probe == nil {
			probe, err := NewPatternScan(j.ctx, j.idx, j.pattern, Solution{})
			if err != nil {
				j.err = err
				return false
			}
			j.probe = probe
		}
		if !j.probe.Advance() {
			j.err = j.probe.Err()
			j.probe.Close()
			return false
		}
		probeSol := j.probe.Current()
		key, ok := hashKey(probeSol, j.joinOn)
		if !ok {
			continue
		}
		matches := j.table[key]
		if len(matches) == 0 {
			continue
		}
		j.queue = j.queue[:0]
		for _, m := range matches {
			merged := m.Clone()
			for k, v := range probeSol {
				merged[k] = v
			}
			j.queue = append(j.queue, merged)
		}
		j.qi = 0
	}
}

func (j *hashJoin) Current() Solution { return j.cur }
func (j *hashJoin) Err() error         { return j.err }
func (j *hashJoin) Close() {
	if j.probe != nil {
		j.probe.Close()
	}
	j.left.Close()
}
