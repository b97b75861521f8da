package patch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bemafred/sky-omega/pkg/index"
	"github.com/bemafred/sky-omega/pkg/query"
)

func openTestIndex(t *testing.T) *index.MultiIndex {
	t.Helper()
	dir := t.TempDir()
	idx, err := index.Open(filepath.Join(dir, "idx"), index.Options{CacheCapacity: 32})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func intern(t *testing.T, idx *index.MultiIndex, s string) uint32 {
	t.Helper()
	a, err := idx.Intern([]byte(s))
	if err != nil {
		t.Fatalf("intern %q: %v", s, err)
	}
	return a
}

func TestApplyGroundPatchNoWhere(t *testing.T) {
	idx := openTestIndex(t)
	if err := idx.InsertTriple([]byte("<a>"), []byte("<p>"), []byte("<b>"), nil); err != nil {
		t.Fatalf("seed InsertTriple: %v", err)
	}

	a, p, b, c := intern(t, idx, "<a>"), intern(t, idx, "<p>"), intern(t, idx, "<b>"), intern(t, idx, "<c>")

	exec := NewExecutor(idx)
	result, err := exec.Apply(context.Background(), N3Patch{
		Deletes: []TriplePattern{{Subject: query.Bound(a), Predicate: query.Bound(p), Object: query.Bound(b)}},
		Inserts: []TriplePattern{{Subject: query.Bound(a), Predicate: query.Bound(p), Object: query.Bound(c)}},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Deleted != 1 || result.Inserted != 1 {
		t.Fatalf("expected 1 deleted, 1 inserted, got %+v", result)
	}

	it, err := idx.Query(index.Pattern{Subject: &a, Predicate: &p})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer it.Close()
	n := 0
	for it.Advance(context.Background()) {
		if it.Current().Object != c {
			t.Fatalf("expected remaining object to be <c>, got atom %d", it.Current().Object)
		}
		n++
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 remaining triple after patch, got %d", n)
	}
}

func TestApplyRejectsVariablesWithoutWhere(t *testing.T) {
	idx := openTestIndex(t)
	exec := NewExecutor(idx)
	_, err := exec.Apply(context.Background(), N3Patch{
		Inserts: []TriplePattern{{Subject: query.Var(0), Predicate: query.Var(1), Object: query.Var(2)}},
	})
	if err == nil {
		t.Fatalf("expected MalformedPatch-equivalent rejection, got nil error")
	}
}

func TestApplyWithWhereBindings(t *testing.T) {
	idx := openTestIndex(t)
	for _, tr := range [][3]string{{"<a>", "<type>", "<Person>"}, {"<b>", "<type>", "<Person>"}} {
		if err := idx.InsertTriple([]byte(tr[0]), []byte(tr[1]), []byte(tr[2]), nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	typeAtom := intern(t, idx, "<type>")
	personAtom := intern(t, idx, "<Person>")
	archivedAtom := intern(t, idx, "<Archived>")

	exec := NewExecutor(idx)
	result, err := exec.Apply(context.Background(), N3Patch{
		Where:   []TriplePattern{{Subject: query.Var(0), Predicate: query.Bound(typeAtom), Object: query.Bound(personAtom)}},
		Deletes: []TriplePattern{{Subject: query.Var(0), Predicate: query.Bound(typeAtom), Object: query.Bound(personAtom)}},
		Inserts: []TriplePattern{{Subject: query.Var(0), Predicate: query.Bound(typeAtom), Object: query.Bound(archivedAtom)}},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Deleted != 2 || result.Inserted != 2 {
		t.Fatalf("expected deleted=2 inserted=2, got %+v", result)
	}
}
