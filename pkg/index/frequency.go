package index

import "sync"

// frequencyCounters tracks per-predicate and per-object occurrence counts
// in O(1) time on every insert. BGP pattern reordering sorts by ascending
// estimated cardinality derived from these counters, a cheap proxy for
// "how many triples will this bound term match" that deliberately stops
// short of exact selectivity statistics or a real cost-based optimizer.
type frequencyCounters struct {
	mu         sync.Mutex
	predicates map[uint32]uint64
	objects    map[uint32]uint64
}

func newFrequencyCounters() *frequencyCounters {
	return &frequencyCounters{
		predicates: make(map[uint32]uint64),
		objects:    make(map[uint32]uint64),
	}
}

func (f *frequencyCounters) touch(predicate, object uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predicates[predicate]++
	f.objects[object]++
}

// PredicateCardinality estimates how many triples a bound predicate will
// match: the number of insert calls with that predicate since the index was
// opened. Repeated inserts of the same triple are counted again, and
// deletes are not subtracted.
func (m *MultiIndex) PredicateCardinality(predicate uint32) uint64 {
	m.freq.mu.Lock()
	defer m.freq.mu.Unlock()
	return m.freq.predicates[predicate]
}

// ObjectCardinality estimates how many triples a bound object will match.
func (m *MultiIndex) ObjectCardinality(object uint32) uint64 {
	m.freq.mu.Lock()
	defer m.freq.mu.Unlock()
	return m.freq.objects[object]
}
