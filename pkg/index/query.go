package index

import (
	"context"
	"math"

	"github.com/bemafred/sky-omega/pkg/btree"
	"github.com/bemafred/sky-omega/pkg/storeerr"
	"github.com/bemafred/sky-omega/pkg/temporal"
)

// Pattern is a triple (or quad) pattern with optional bound positions. A
// nil field is the unbound wildcard.
type Pattern struct {
	Subject, Predicate, Object, Graph *uint32
}

// Result is one matching entry, remapped back to canonical (s, p, o, graph)
// form regardless of which physical rotation produced it, plus the
// temporal fields when the query ran against a temporal rotation.
type Result struct {
	Subject, Predicate, Object, Graph uint32
	ValidFrom, ValidTo, TxTime        uint64
}

// ResultIterator is the remapped, pattern-match streaming operator: it
// wraps a multi-index-store range scan and performs no buffering.
type ResultIterator struct {
	inner     *btree.Iterator
	order     []component
	pat       Pattern
	predicate temporal.Predicate // nil for non-temporal queries
	cur       Result
	err       error
}

// Query selects the best non-temporal index for pat's bound positions,
// constructs the bracketing range, and returns a streaming iterator.
func (m *MultiIndex) Query(pat Pattern) (*ResultIterator, error) {
	order, tree := chooseNonTemporal(pat, m)
	minKey, maxKey := buildBounds(order, pat, nil)
	it, err := tree.RangeScan(minKey, maxKey)
	if err != nil {
		return nil, err
	}
	return &ResultIterator{inner: it, order: order, pat: pat}, nil
}

// QueryTemporal selects the best temporal index for pat and predicate p
// (AsOf/Range/AllTime/Current, from pkg/temporal), constructing the
// bracketing range the same way Query does and applying p at enumeration
// time to each candidate.
func (m *MultiIndex) QueryTemporal(pat Pattern, p temporal.Predicate, timeRange *TimeRange) (*ResultIterator, error) {
	if !m.temporalEnabled {
		return nil, storeerr.New(storeerr.InvalidInput, "temporal indexes not enabled for this store")
	}
	order, tree := chooseTemporal(pat, m, timeRange != nil)
	minKey, maxKey := buildBounds(order, pat, timeRange)
	it, err := tree.RangeScan(minKey, maxKey)
	if err != nil {
		return nil, err
	}
	return &ResultIterator{inner: it, order: order, pat: pat, predicate: p}, nil
}

// TimeRange narrows a TSPO scan to a valid_from window, used when no
// subject/predicate/object is bound but a time range is.
type TimeRange struct {
	Lo, Hi uint64
}

func chooseNonTemporal(pat Pattern, m *MultiIndex) ([]component, *btree.Tree) {
	s, p, o := pat.Subject != nil, pat.Predicate != nil, pat.Object != nil
	switch {
	case s && p:
		return orderSPO, m.spo
	case s && o:
		return orderOSP, m.osp
	case p && o:
		return orderPOS, m.pos
	case s:
		return orderSPO, m.spo
	case p:
		return orderPOS, m.pos
	case o:
		return orderOSP, m.osp
	default:
		return orderSPO, m.spo
	}
}

func chooseTemporal(pat Pattern, m *MultiIndex, hasTimeRange bool) ([]component, *btree.Tree) {
	s, p, o := pat.Subject != nil, pat.Predicate != nil, pat.Object != nil
	switch {
	case s && p:
		return orderSPOT, m.spot
	case s && o:
		return orderOSPT, m.ospt
	case p && o:
		return orderPOST, m.post
	case s:
		return orderSPOT, m.spot
	case p:
		return orderPOST, m.post
	case o:
		return orderOSPT, m.ospt
	case hasTimeRange:
		return orderTSPO, m.tspo
	default:
		return orderSPOT, m.spot
	}
}

// buildBounds constructs the search key: bound positions use the term's
// atom; unbound positions use 0 for min_key and atom-max / time-max for
// max_key. Because pkg/btree's RangeScan treats maxKey as exclusive, the
// computed upper bound is incremented by one (as a
// big-endian integer) so the true maximum matching key is still included —
// this also makes a fully-bound exact-match pattern behave as a point
// lookup instead of an empty range.
func buildBounds(order []component, pat Pattern, tr *TimeRange) (min, max []byte) {
	minF, maxF := quadFields{}, quadFields{}

	setAtom := func(bound *uint32, setMin, setMax func(uint32)) {
		if bound != nil {
			setMin(*bound)
			setMax(*bound)
		} else {
			setMin(0)
			setMax(math.MaxUint32)
		}
	}
	setAtom(pat.Graph, func(v uint32) { minF.Graph = v }, func(v uint32) { maxF.Graph = v })
	setAtom(pat.Subject, func(v uint32) { minF.Subject = v }, func(v uint32) { maxF.Subject = v })
	setAtom(pat.Predicate, func(v uint32) { minF.Predicate = v }, func(v uint32) { maxF.Predicate = v })
	setAtom(pat.Object, func(v uint32) { minF.Object = v }, func(v uint32) { maxF.Object = v })

	if tr != nil {
		minF.ValidFrom, maxF.ValidFrom = tr.Lo, tr.Hi
	} else {
		maxF.ValidFrom = math.MaxUint64
	}
	maxF.ValidTo = math.MaxUint64
	maxF.TxTime = math.MaxUint64

	min = encodeComposite(order, minF)
	max = incrementBytes(encodeComposite(order, maxF))
	return min, max
}

// incrementBytes treats buf as a big-endian unsigned integer and adds one,
// saturating (returning buf unchanged) on overflow — overflow only occurs
// if every field of the key is already at its sentinel maximum, which never
// happens for real content since Min/Max atoms are reserved and never
// interned.
func incrementBytes(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			return out
		}
	}
	return buf // overflow: all bytes wrapped to zero, return the un-incremented original
}

// Advance pulls the next matching entry, applying the temporal predicate
// (if any) and skipping tombstoned entries.
//
// The bracketing range built by buildBounds is only a prefix bracket on the
// leading (unbound) key fields: an unbound field's max sentinel
// (math.MaxUint32) outranks every bound field that follows it in key order,
// so the range can include entries whose unbound-prefix component is high
// but whose later, supposedly-bound components don't match the pattern at
// all. Re-checking every bound field here turns the range scan back into an
// exact pattern match.
func (r *ResultIterator) Advance(ctx context.Context) bool {
	for r.inner.Advance(ctx) {
		k, _, metaBuf := r.inner.Current()
		f := decodeComposite(r.order, k)
		if !matchesBound(r.pat, f) {
			continue
		}
		if len(metaBuf) > 0 {
			meta := temporal.DecodeMeta(metaBuf)
			if meta.Tombstone {
				continue
			}
			if r.predicate != nil && !r.predicate(f.ValidFrom, f.ValidTo) {
				continue
			}
		}
		r.cur = Result{
			Subject: f.Subject, Predicate: f.Predicate, Object: f.Object, Graph: f.Graph,
			ValidFrom: f.ValidFrom, ValidTo: f.ValidTo, TxTime: f.TxTime,
		}
		return true
	}
	r.err = r.inner.Err()
	return false
}

// matchesBound reports whether f satisfies every bound position of pat.
// Unbound (nil) positions match anything.
func matchesBound(pat Pattern, f quadFields) bool {
	if pat.Graph != nil && f.Graph != *pat.Graph {
		return false
	}
	if pat.Subject != nil && f.Subject != *pat.Subject {
		return false
	}
	if pat.Predicate != nil && f.Predicate != *pat.Predicate {
		return false
	}
	if pat.Object != nil && f.Object != *pat.Object {
		return false
	}
	return true
}

func (r *ResultIterator) Current() Result { return r.cur }
func (r *ResultIterator) Err() error       { return r.err }
func (r *ResultIterator) Close()           { r.inner.Close() }
