package index

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/bemafred/sky-omega/pkg/atom"
	"github.com/bemafred/sky-omega/pkg/btree"
	"github.com/bemafred/sky-omega/pkg/log"
	"github.com/bemafred/sky-omega/pkg/storeerr"
	"github.com/bemafred/sky-omega/pkg/temporal"
)

var (
	nonTemporalLayout = btree.Layout{KeySize: nonTemporalKeySize, ValueSize: 8, MetaSize: 0}
	temporalLayout     = btree.Layout{KeySize: temporalKeySize, ValueSize: 8, MetaSize: 16}
)

// MultiIndex is the Multi-Index Store: it owns the SPO/POS/
// OSP trees and, when opened with temporal support, the SPOT/POST/OSPT/TSPO
// rotations, plus the atom store every term is interned through. It also
// carries the named-graph/quad layer: every key is prefixed
// with a graph atom, DefaultGraph unless the caller names one.
type MultiIndex struct {
	atoms *atom.Store

	spo, pos, osp *btree.Tree

	temporalEnabled        bool
	spot, post, ospt, tspo *btree.Tree

	freq *frequencyCounters

	clock func() uint64 // now, in milliseconds; overridable in tests
}

// Options configures Open.
type Options struct {
	// Temporal enables the SPOT/POST/OSPT/TSPO rotations and
	// InsertTemporal/QueryTemporal. Non-temporal-only stores skip the cost
	// of four extra mapped files.
	Temporal bool
	// CacheCapacity bounds each tree's resident page count.
	CacheCapacity int
}

// Open creates or opens the index files rooted at dir, one backing file
// per concern (atoms, and one per index rotation).
func Open(dir string, opts Options) (*MultiIndex, error) {
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = 256
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storeerr.Wrap(storeerr.StorageFull, "create index directory", err)
	}

	atoms, err := atom.Open(filepath.Join(dir, "terms"))
	if err != nil {
		return nil, err
	}

	spo, err := btree.Open(filepath.Join(dir, "spo.tdb"), nonTemporalLayout, btree.Memcmp, opts.CacheCapacity)
	if err != nil {
		return nil, err
	}
	pos, err := btree.Open(filepath.Join(dir, "pos.tdb"), nonTemporalLayout, btree.Memcmp, opts.CacheCapacity)
	if err != nil {
		return nil, err
	}
	osp, err := btree.Open(filepath.Join(dir, "osp.tdb"), nonTemporalLayout, btree.Memcmp, opts.CacheCapacity)
	if err != nil {
		return nil, err
	}

	m := &MultiIndex{
		atoms: atoms,
		spo:   spo, pos: pos, osp: osp,
		temporalEnabled: opts.Temporal,
		freq:            newFrequencyCounters(),
		clock:           func() uint64 { return uint64(time.Now().UnixMilli()) },
	}

	if opts.Temporal {
		if m.spot, err = btree.Open(filepath.Join(dir, "spot.tdb"), temporalLayout, btree.Memcmp, opts.CacheCapacity); err != nil {
			return nil, err
		}
		if m.post, err = btree.Open(filepath.Join(dir, "post.tdb"), temporalLayout, btree.Memcmp, opts.CacheCapacity); err != nil {
			return nil, err
		}
		if m.ospt, err = btree.Open(filepath.Join(dir, "ospt.tdb"), temporalLayout, btree.Memcmp, opts.CacheCapacity); err != nil {
			return nil, err
		}
		if m.tspo, err = btree.Open(filepath.Join(dir, "tspo.tdb"), temporalLayout, btree.Memcmp, opts.CacheCapacity); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Close flushes and closes every tree and the atom store.
func (m *MultiIndex) Close() error {
	trees := []*btree.Tree{m.spo, m.pos, m.osp, m.spot, m.post, m.ospt, m.tspo}
	var firstErr error
	for _, t := range trees {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.atoms.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var reservedValue = make([]byte, 8)

// Intern interns term and returns its atom, for callers (the patch
// executor, tests) that need an atom for content not yet known to exist in
// the store — unlike ResolveTerm, this assigns a new atom if term is novel.
func (m *MultiIndex) Intern(term []byte) (uint32, error) {
	return m.internTerm(term)
}

// ResolveTerm resolves a bound term to its atom without interning it, for
// callers (query plans, the patch executor) that must fail rather than
// fabricate an atom for content never seen before. An empty/nil term
// resolves to DefaultGraph, mirroring internTerm.
func (m *MultiIndex) ResolveTerm(term []byte) (uint32, bool) {
	if len(term) == 0 {
		return DefaultGraph, true
	}
	a, ok := m.atoms.IDOf(term)
	return uint32(a), ok
}

// TermOf returns the interned byte content for id, for materializing query
// solutions back into RDF term syntax.
func (m *MultiIndex) TermOf(id uint32) ([]byte, error) {
	if id == DefaultGraph {
		return nil, nil
	}
	return m.atoms.Lookup(atom.Atom(id))
}

// internTerm interns a term, treating an empty/nil term as the default
// graph sentinel rather than an error, so callers can pass a nil graph.
func (m *MultiIndex) internTerm(term []byte) (uint32, error) {
	if len(term) == 0 {
		return DefaultGraph, nil
	}
	a, err := m.atoms.Intern(term)
	return uint32(a), err
}

// InsertTriple interns subject/predicate/object (and graph, if non-empty),
// builds the composite key for every non-temporal rotation, and inserts
// into each.
func (m *MultiIndex) InsertTriple(subject, predicate, object, graph []byte) error {
	s, err := m.internTerm(subject)
	if err != nil {
		return err
	}
	p, err := m.internTerm(predicate)
	if err != nil {
		return err
	}
	o, err := m.internTerm(object)
	if err != nil {
		return err
	}
	g, err := m.internTerm(graph)
	if err != nil {
		return err
	}

	f := quadFields{Graph: g, Subject: s, Predicate: p, Object: o}
	for _, idx := range []struct {
		tree  *btree.Tree
		order []component
	}{
		{m.spo, orderSPO}, {m.pos, orderPOS}, {m.osp, orderOSP},
	} {
		if err := idx.tree.Insert(encodeComposite(idx.order, f), reservedValue, nil); err != nil {
			return err
		}
	}
	m.freq.touch(p, o)
	return nil
}

// DeleteTriple removes a fully-ground triple (and graph, if non-empty) from
// every non-temporal rotation, used by the patch executor to apply a
// patch's DELETES. Terms are resolved, not interned: deleting a
// triple whose subject/predicate/object was never interned is a no-op, not
// an error, since it cannot be present in any index.
func (m *MultiIndex) DeleteTriple(subject, predicate, object, graph []byte) error {
	s, ok := m.ResolveTerm(subject)
	if !ok {
		return nil
	}
	p, ok := m.ResolveTerm(predicate)
	if !ok {
		return nil
	}
	o, ok := m.ResolveTerm(object)
	if !ok {
		return nil
	}
	g, ok := m.ResolveTerm(graph)
	if !ok {
		return nil
	}

	f := quadFields{Graph: g, Subject: s, Predicate: p, Object: o}
	for _, idx := range []struct {
		tree  *btree.Tree
		order []component
	}{
		{m.spo, orderSPO}, {m.pos, orderPOS}, {m.osp, orderOSP},
	} {
		if err := idx.tree.Delete(encodeComposite(idx.order, f)); err != nil {
			return err
		}
	}
	return nil
}

// InsertTemporal interns terms and inserts a bitemporal version into every
// temporal rotation, applying the valid-to truncation rule
// against the quad's currently open version, if any.
func (m *MultiIndex) InsertTemporal(subject, predicate, object, graph []byte, validFrom, validTo uint64) error {
	if !m.temporalEnabled {
		return storeerr.New(storeerr.InvalidInput, "temporal indexes not enabled for this store")
	}
	if validFrom == validTo {
		return storeerr.New(storeerr.InvalidInput, "zero-width valid interval")
	}

	s, err := m.internTerm(subject)
	if err != nil {
		return err
	}
	p, err := m.internTerm(predicate)
	if err != nil {
		return err
	}
	o, err := m.internTerm(object)
	if err != nil {
		return err
	}
	g, err := m.internTerm(graph)
	if err != nil {
		return err
	}

	prior, found, err := m.findOpenVersion(g, s, p, o)
	if err != nil {
		return err
	}
	now := uint32(m.clock() / 1000)
	if found {
		if newTo, ok := temporal.NeedsTruncation(prior.ValidFrom, prior.ValidTo, validFrom); ok {
			if err := m.truncate(prior, newTo, now); err != nil {
				return err
			}
			log.WithComponent("index").Debug().
				Uint64("valid_to", newTo).Msg("truncated prior temporal version")
		}
	}

	f := quadFields{Graph: g, Subject: s, Predicate: p, Object: o, ValidFrom: validFrom, ValidTo: validTo, TxTime: m.clock()}
	meta := temporal.Meta{CreatedAt: now, ModifiedAt: now}.Encode()
	for _, idx := range []struct {
		tree  *btree.Tree
		order []component
	}{
		{m.spot, orderSPOT}, {m.post, orderPOST}, {m.ospt, orderOSPT}, {m.tspo, orderTSPO},
	} {
		if err := idx.tree.Insert(encodeComposite(idx.order, f), reservedValue, meta); err != nil {
			return err
		}
	}
	m.freq.touch(p, o)
	return nil
}

// findOpenVersion scans every temporal version of (graph, subject,
// predicate, object) in the SPOT tree and returns the one with an open
// (Forever) valid_to, if any — the only version InsertTemporal's
// truncation rule ever needs to act on.
func (m *MultiIndex) findOpenVersion(graph, subject, predicate, object uint32) (quadFields, bool, error) {
	minKey := encodeComposite(orderSPOT, quadFields{Graph: graph, Subject: subject, Predicate: predicate, Object: object})
	maxKey := encodeComposite(orderSPOT, quadFields{Graph: graph, Subject: subject, Predicate: predicate, Object: object + 1})

	it, err := m.spot.RangeScan(minKey, maxKey)
	if err != nil {
		return quadFields{}, false, err
	}
	defer it.Close()

	ctx := context.Background()
	for it.Advance(ctx) {
		k, _, metaBuf := it.Current()
		f := decodeComposite(orderSPOT, k)
		if temporal.DecodeMeta(metaBuf).Tombstone {
			continue
		}
		if f.ValidTo == temporal.Forever {
			return f, true, nil
		}
	}
	return quadFields{}, false, it.Err()
}

// truncate rewrites valid_to (and stamps modified_at/version) for the
// given logical version across all four temporal rotations — every
// rotation physically encodes the same version at a different key, so the
// update must be applied to each independently.
func (m *MultiIndex) truncate(f quadFields, newValidTo uint64, modifiedAtSeconds uint32) error {
	for _, idx := range []struct {
		tree  *btree.Tree
		order []component
	}{
		{m.spot, orderSPOT}, {m.post, orderPOST}, {m.ospt, orderOSPT}, {m.tspo, orderTSPO},
	} {
		key := encodeComposite(idx.order, f)
		vtOff := fieldOffset(idx.order, compValidTo)
		found, err := idx.tree.Update(key, func(k, _, meta []byte) {
			binary.BigEndian.PutUint64(k[vtOff:vtOff+8], newValidTo)
			temporal.TouchModified(meta, modifiedAtSeconds)
		})
		if err != nil {
			return err
		}
		if !found {
			return storeerr.New(storeerr.Corruption, "temporal index rotations diverged: prior version missing")
		}
	}
	return nil
}

func fieldOffset(order []component, target component) int {
	off := 0
	for _, c := range order {
		if c == target {
			return off
		}
		off += c.width()
	}
	return -1
}

// Stats reports sizes feeding pkg/metrics and Store.Statistics.
type Stats struct {
	Atoms          atom.Stats
	Triples        uint64
	TemporalCounts map[string]uint64
}

func (m *MultiIndex) Stats() Stats {
	s := Stats{Atoms: m.atoms.Stats(), Triples: m.spo.Count()}
	if m.temporalEnabled {
		s.TemporalCounts = map[string]uint64{
			"spot": m.spot.Count(), "post": m.post.Count(),
			"ospt": m.ospt.Count(), "tspo": m.tspo.Count(),
		}
	}
	return s
}

// trees returns every open rotation, for callers (the scrub loop) that need
// to act across all of them uniformly regardless of temporal support.
func (m *MultiIndex) trees() []*btree.Tree {
	all := []*btree.Tree{m.spo, m.pos, m.osp}
	if m.temporalEnabled {
		all = append(all, m.spot, m.post, m.ospt, m.tspo)
	}
	return all
}

// OrphanPageCount sums OrphanPageCount across every rotation.
func (m *MultiIndex) OrphanPageCount() uint64 {
	var total uint64
	for _, t := range m.trees() {
		total += t.OrphanPageCount()
	}
	return total
}

// ReclaimOrphanPages truncates every rotation back to its committed extent,
// returning the total number of pages reclaimed.
func (m *MultiIndex) ReclaimOrphanPages() (uint64, error) {
	var total uint64
	for _, t := range m.trees() {
		n, err := t.ReclaimOrphanPages()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
