package scrub

import (
	"testing"
	"time"

	"github.com/bemafred/sky-omega/pkg/index"
)

func openTestIndex(t *testing.T) *index.MultiIndex {
	t.Helper()
	dir := t.TempDir()
	idx, err := index.Open(dir, index.Options{Temporal: true})
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestRunOnceNoOrphansIsNoop(t *testing.T) {
	idx := openTestIndex(t)
	s := New(idx, time.Hour)

	reclaimed, err := s.RunOnce()
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("RunOnce() reclaimed = %d, want 0 on a fresh index", reclaimed)
	}
}

func TestStartStop(t *testing.T) {
	idx := openTestIndex(t)
	s := New(idx, 10*time.Millisecond)

	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
