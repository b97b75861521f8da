// Package scrub runs the background orphan-page reclamation loop: a page
// split extends a tree's backing file before the new page is linked in and
// before the metadata fence, so a crash in that window leaves trailing
// pages that are mapped but unreachable from the tree. Scrub periodically
// truncates each rotation back to its committed extent.
package scrub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bemafred/sky-omega/pkg/index"
	"github.com/bemafred/sky-omega/pkg/log"
	"github.com/bemafred/sky-omega/pkg/metrics"
)

// Scrub periodically reclaims orphaned pages across every rotation of a
// Multi-Index Store.
type Scrub struct {
	idx      *index.MultiIndex
	interval time.Duration
	logger   zerolog.Logger
	mu       sync.RWMutex
	stopCh   chan struct{}
}

// New creates a Scrub loop over idx. interval defaults to 5 minutes if <= 0;
// orphan pages are harmless until reclaimed, so the cycle does not need to
// run often.
func New(idx *index.MultiIndex, interval time.Duration) *Scrub {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scrub{
		idx:      idx,
		interval: interval,
		logger:   log.WithComponent("scrub"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the scrub loop in the background.
func (s *Scrub) Start() {
	go s.run()
}

// Stop stops the scrub loop.
func (s *Scrub) Stop() {
	close(s.stopCh)
}

func (s *Scrub) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("scrub loop started")

	for {
		select {
		case <-ticker.C:
			if err := s.cycle(); err != nil {
				s.logger.Error().Err(err).Msg("scrub cycle failed")
			}
		case <-s.stopCh:
			s.logger.Info().Msg("scrub loop stopped")
			return
		}
	}
}

// cycle runs one reclamation pass across every rotation.
func (s *Scrub) cycle() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ScrubCycleDuration)

	s.mu.Lock()
	defer s.mu.Unlock()

	orphans := s.idx.OrphanPageCount()
	if orphans == 0 {
		return nil
	}

	reclaimed, err := s.idx.ReclaimOrphanPages()
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		metrics.ScrubOrphansReclaimedTotal.Add(float64(reclaimed))
		s.logger.Info().Uint64("pages_reclaimed", reclaimed).Msg("reclaimed orphan pages")
	}
	return nil
}

// RunOnce runs a single reclamation pass synchronously, for callers (tests,
// a maintenance CLI) that want scrub semantics without the ticker loop.
func (s *Scrub) RunOnce() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.ReclaimOrphanPages()
}
