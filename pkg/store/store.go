// Package store is the top-level façade: it opens a Multi-Index Store,
// holds the process-wide single-writer lock, wires the patch executor and
// the orphan-page scrub loop, and exposes the handful of operations a
// caller (an embedding application, a CLI, an RPC server) actually needs.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bemafred/sky-omega/pkg/events"
	"github.com/bemafred/sky-omega/pkg/index"
	"github.com/bemafred/sky-omega/pkg/log"
	"github.com/bemafred/sky-omega/pkg/metrics"
	"github.com/bemafred/sky-omega/pkg/patch"
	"github.com/bemafred/sky-omega/pkg/query"
	"github.com/bemafred/sky-omega/pkg/scrub"
	"github.com/bemafred/sky-omega/pkg/storeerr"
	"github.com/bemafred/sky-omega/pkg/temporal"
)

// Options configures Open.
type Options struct {
	// Temporal enables the bitemporal rotations and InsertTemporal/
	// QueryTemporal.
	Temporal bool
	// CacheCapacity bounds each tree's resident page count. Defaults to
	// index.Open's own default if <= 0.
	CacheCapacity int
	// ScrubInterval sets the orphan-page reclamation cadence. Defaults to
	// scrub.New's own default if <= 0.
	ScrubInterval time.Duration
	// DisableScrub skips starting the background scrub loop entirely, for
	// short-lived callers (a CLI one-shot, a test) that do not want a
	// goroutine outliving the call.
	DisableScrub bool
}

// Store is the single point of entry into one data directory. Every
// mutating call (InsertTriple, InsertTemporal, Patch) is serialized by
// writeMu; readers (Query, QueryTemporal, Statistics) are not.
type Store struct {
	idx    *index.MultiIndex
	exec   *patch.Executor
	scrub  *scrub.Scrub
	events *events.Broker

	lockFile *os.File
	writeMu  sync.Mutex

	dir string
}

// Events returns the store's mutation event broker. Subscribers receive
// triple.inserted/triple.deleted/patch.applied/patch.failed/scrub.reclaimed
// notifications for every mutation made through this Store; delivery is
// best-effort (see pkg/events).
func (s *Store) Events() *events.Broker {
	return s.events
}

// Open acquires the directory's single-writer lock and opens (or creates)
// the index files beneath it. The lock is a non-blocking advisory flock on
// a ".lock" sidecar file: a second process opening the same directory gets
// storeerr.Busy immediately rather than blocking, since this module never
// queues cross-process writers.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storeerr.Wrap(storeerr.StorageFull, "create data directory", err)
	}

	lockFile, err := acquireLock(filepath.Join(dir, ".lock"))
	if err != nil {
		return nil, err
	}

	idx, err := index.Open(dir, index.Options{Temporal: opts.Temporal, CacheCapacity: opts.CacheCapacity})
	if err != nil {
		lockFile.Close()
		return nil, err
	}

	broker := events.NewBroker()
	broker.Start()

	s := &Store{
		idx:      idx,
		exec:     patch.NewExecutor(idx),
		events:   broker,
		lockFile: lockFile,
		dir:      dir,
	}

	if !opts.DisableScrub {
		s.scrub = scrub.New(idx, opts.ScrubInterval)
		s.scrub.Start()
	}

	log.WithComponent("store").Info().Str("dir", dir).Bool("temporal", opts.Temporal).Msg("store opened")
	return s, nil
}

// acquireLock takes a non-blocking exclusive flock on path, creating it if
// absent. The lock is released implicitly when the fd is closed, including
// on process exit — no explicit unlock path is needed.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.StorageFull, "open lock file", err)
	}
	start := time.Now()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		metrics.WriterLockWaitDuration.Observe(time.Since(start).Seconds())
		return nil, storeerr.Wrap(storeerr.Busy, "another process already holds the writer lock", err)
	}
	metrics.WriterLockWaitDuration.Observe(time.Since(start).Seconds())
	return f, nil
}

// InsertTriple interns and inserts a non-temporal triple (or quad, if graph
// is non-empty) under the writer lock.
func (s *Store) InsertTriple(subject, predicate, object, graph []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.idx.InsertTriple(subject, predicate, object, graph); err != nil {
		return err
	}
	s.refreshGauges()
	s.events.Publish(&events.Event{Type: events.TripleInserted})
	return nil
}

// DeleteTriple removes a fully-ground triple (or quad) under the writer
// lock.
func (s *Store) DeleteTriple(subject, predicate, object, graph []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.idx.DeleteTriple(subject, predicate, object, graph); err != nil {
		return err
	}
	s.refreshGauges()
	s.events.Publish(&events.Event{Type: events.TripleDeleted})
	return nil
}

// InsertTemporal interns and inserts a bitemporal version under the writer
// lock, applying the valid-to truncation rule to any open prior version.
func (s *Store) InsertTemporal(subject, predicate, object, graph []byte, validFrom, validTo uint64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.idx.InsertTemporal(subject, predicate, object, graph, validFrom, validTo); err != nil {
		return err
	}
	s.refreshGauges()
	s.events.Publish(&events.Event{Type: events.TripleInserted})
	return nil
}

// Query selects the best index rotation for pat's bound positions and
// returns a streaming result iterator. Safe to call concurrently with
// other readers and with writers: the single-writer lock only serializes
// mutation, not lookup.
func (s *Store) Query(pat index.Pattern) (*index.ResultIterator, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, "pattern_scan")
	return s.idx.Query(pat)
}

// QueryTemporal selects the best temporal rotation for pat and predicate
// p (see pkg/temporal: AsOf, Range, AllTime, Current), optionally narrowed
// by timeRange.
func (s *Store) QueryTemporal(pat index.Pattern, p temporal.Predicate, timeRange *index.TimeRange) (*index.ResultIterator, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, "temporal_pattern_scan")
	return s.idx.QueryTemporal(pat, p, timeRange)
}

// BGP runs a basic graph pattern (a conjunction of triple patterns,
// reordered by estimated cardinality) as a single streaming join, for
// callers that need more than one pattern joined together.
func (s *Store) BGP(ctx context.Context, patterns []query.TriplePattern) (*query.BGP, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, "bgp")
	return query.NewBGP(ctx, s.idx, patterns)
}

// Patch applies an N3-style WHERE-bound DELETE/INSERT batch atomically
// under the writer lock.
func (s *Store) Patch(ctx context.Context, p patch.N3Patch) (patch.Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PatchBatchDuration)

	result, err := s.exec.Apply(ctx, p)
	if err != nil {
		metrics.PatchesFailedTotal.Inc()
		s.events.Publish(&events.Event{Type: events.PatchFailed, Message: err.Error()})
		return patch.Result{}, err
	}
	metrics.PatchesAppliedTotal.Inc()
	s.refreshGauges()
	s.events.Publish(&events.Event{Type: events.PatchApplied})
	return result, nil
}

// Intern interns a raw term into its atom, for callers building patch
// templates or ground patterns from RDF term syntax.
func (s *Store) Intern(term []byte) (uint32, error) {
	return s.idx.Intern(term)
}

// ResolveTerm resolves a bound term to its atom without interning it.
func (s *Store) ResolveTerm(term []byte) (uint32, bool) {
	return s.idx.ResolveTerm(term)
}

// TermOf returns the interned byte content for an atom, for materializing
// query results back into RDF term syntax.
func (s *Store) TermOf(id uint32) ([]byte, error) {
	return s.idx.TermOf(id)
}

// Statistics reports index sizes and cache/scrub counters for an operator
// dashboard or a health endpoint.
type Statistics struct {
	index.Stats
	OrphanPages uint64
}

// Statistics snapshots the store's current size and housekeeping state.
func (s *Store) Statistics() Statistics {
	return Statistics{
		Stats:       s.idx.Stats(),
		OrphanPages: s.idx.OrphanPageCount(),
	}
}

func (s *Store) refreshGauges() {
	stats := s.idx.Stats()
	metrics.TriplesTotal.Set(float64(stats.Triples))
	metrics.AtomsTotal.Set(float64(stats.Atoms.Count))
	metrics.AtomBytesTotal.Set(float64(stats.Atoms.Bytes))
	for rotation, count := range stats.TemporalCounts {
		metrics.TemporalVersionsTotal.WithLabelValues(rotation).Set(float64(count))
	}
}

// ScrubOnce runs a single orphan-page reclamation pass synchronously,
// independent of the background scrub loop (if any). For a caller (a CLI,
// an admin endpoint) that wants to reclaim on demand rather than wait for
// the next scheduled cycle.
func (s *Store) ScrubOnce() (uint64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	reclaimed, err := s.idx.ReclaimOrphanPages()
	if err == nil && reclaimed > 0 {
		s.events.Publish(&events.Event{Type: events.ScrubReclaimed, Metadata: map[string]string{"pages": fmt.Sprint(reclaimed)}})
	}
	return reclaimed, err
}

// Close stops the scrub loop, flushes and closes every index file, then
// releases the single-writer lock.
func (s *Store) Close() error {
	if s.scrub != nil {
		s.scrub.Stop()
	}
	s.events.Stop()

	var firstErr error
	if err := s.idx.Close(); err != nil {
		firstErr = err
	}
	if err := unix.Flock(int(s.lockFile.Fd()), unix.LOCK_UN); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("release writer lock: %w", err)
	}
	if err := s.lockFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
