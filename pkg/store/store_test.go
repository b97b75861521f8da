package store

import (
	"context"
	"testing"

	"github.com/bemafred/sky-omega/pkg/index"
	"github.com/bemafred/sky-omega/pkg/patch"
	"github.com/bemafred/sky-omega/pkg/query"
	"github.com/bemafred/sky-omega/pkg/storeerr"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, Options{Temporal: true, CacheCapacity: 32, DisableScrub: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestInsertAndQueryTriple(t *testing.T) {
	s, _ := openTestStore(t)

	if err := s.InsertTriple([]byte("<a>"), []byte("<p>"), []byte("<b>"), nil); err != nil {
		t.Fatalf("InsertTriple: %v", err)
	}

	a, ok := s.ResolveTerm([]byte("<a>"))
	if !ok {
		t.Fatalf("ResolveTerm(<a>): not found")
	}

	it, err := s.Query(index.Pattern{Subject: &a})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer it.Close()

	n := 0
	for it.Advance(context.Background()) {
		n++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d results, want 1", n)
	}
}

func TestSecondOpenOnSameDirIsBusy(t *testing.T) {
	_, dir := openTestStore(t)

	_, err := Open(dir, Options{DisableScrub: true})
	if !storeerr.Is(err, storeerr.Busy) {
		t.Fatalf("second Open error = %v, want storeerr.Busy", err)
	}
}

func TestReopenAfterCloseSucceeds(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir, Options{DisableScrub: true})
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.InsertTriple([]byte("<a>"), []byte("<p>"), []byte("<b>"), nil); err != nil {
		t.Fatalf("InsertTriple: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir, Options{DisableScrub: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if got := s2.Statistics().Triples; got != 1 {
		t.Fatalf("Statistics().Triples after reopen = %d, want 1", got)
	}
}

func TestPatchUnderWriterLock(t *testing.T) {
	s, _ := openTestStore(t)

	if err := s.InsertTriple([]byte("<a>"), []byte("<p>"), []byte("<b>"), nil); err != nil {
		t.Fatalf("seed InsertTriple: %v", err)
	}

	a, _ := s.ResolveTerm([]byte("<a>"))
	p, _ := s.ResolveTerm([]byte("<p>"))
	b, _ := s.ResolveTerm([]byte("<b>"))
	c, err := s.Intern([]byte("<c>"))
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}

	result, err := s.Patch(context.Background(), patch.N3Patch{
		Deletes: []query.TriplePattern{{Subject: query.Bound(a), Predicate: query.Bound(p), Object: query.Bound(b)}},
		Inserts: []query.TriplePattern{{Subject: query.Bound(a), Predicate: query.Bound(p), Object: query.Bound(c)}},
	})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if result.Deleted != 1 || result.Inserted != 1 {
		t.Fatalf("Patch result = %+v, want 1 deleted 1 inserted", result)
	}
}

func TestBGPJoinsTwoPatterns(t *testing.T) {
	s, _ := openTestStore(t)

	if err := s.InsertTriple([]byte("<a>"), []byte("<knows>"), []byte("<b>"), nil); err != nil {
		t.Fatalf("InsertTriple: %v", err)
	}
	if err := s.InsertTriple([]byte("<b>"), []byte("<name>"), []byte("\"bob\""), nil); err != nil {
		t.Fatalf("InsertTriple: %v", err)
	}

	knows, _ := s.ResolveTerm([]byte("<knows>"))
	name, _ := s.ResolveTerm([]byte("<name>"))

	bgp, err := s.BGP(context.Background(), []query.TriplePattern{
		{Subject: query.Var(0), Predicate: query.Bound(knows), Object: query.Var(1)},
		{Subject: query.Var(1), Predicate: query.Bound(name), Object: query.Var(2)},
	})
	if err != nil {
		t.Fatalf("BGP: %v", err)
	}
	defer bgp.Close()

	n := 0
	for bgp.Advance() {
		n++
	}
	if err := bgp.Err(); err != nil {
		t.Fatalf("bgp error: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d solutions, want 1", n)
	}
}
