package index

import (
	"context"
	"testing"
)

func openTestIndex(t *testing.T) *MultiIndex {
	t.Helper()
	dir := t.TempDir()
	m, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func collectResults(t *testing.T, it *ResultIterator) []Result {
	t.Helper()
	var out []Result
	for it.Advance(context.Background()) {
		out = append(out, it.Current())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	it.Close()
	return out
}

// TestQuerySubjectBoundDoesNotLeakOtherSubjects reproduces the case where an
// unbound graph wildcards the leading key field of every rotation: insert
// (a,p,b) and (x,p,y) with x > a, then Query{Subject: &a} must return only
// the row for a, not both.
func TestQuerySubjectBoundDoesNotLeakOtherSubjects(t *testing.T) {
	m := openTestIndex(t)

	// Intern a before x: atoms are assigned in increasing order, so a's
	// atom sorts below x's.
	a, err := m.Intern([]byte("http://example.org/a"))
	if err != nil {
		t.Fatalf("intern a: %v", err)
	}
	x, err := m.Intern([]byte("http://example.org/x"))
	if err != nil {
		t.Fatalf("intern x: %v", err)
	}
	if a >= x {
		t.Fatalf("test setup invalid: want a < x, got a=%d x=%d", a, x)
	}

	if err := m.InsertTriple([]byte("http://example.org/a"), []byte("http://example.org/p"), []byte("http://example.org/b"), nil); err != nil {
		t.Fatalf("insert (a,p,b): %v", err)
	}
	if err := m.InsertTriple([]byte("http://example.org/x"), []byte("http://example.org/p"), []byte("http://example.org/y"), nil); err != nil {
		t.Fatalf("insert (x,p,y): %v", err)
	}

	it, err := m.Query(Pattern{Subject: &a})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	results := collectResults(t, it)

	if len(results) != 1 {
		t.Fatalf("Query{Subject: &a} returned %d results, want 1: %+v", len(results), results)
	}
	if results[0].Subject != a {
		t.Fatalf("result subject = %d, want %d", results[0].Subject, a)
	}
}

// TestQueryPredicateBoundExcludesOtherPredicates checks a predicate-only
// bound query against two triples with different predicates, subjects and
// objects: only the triple with the bound predicate is returned, exercising
// the POS rotation's post-filter.
func TestQueryPredicateBoundExcludesOtherPredicates(t *testing.T) {
	m := openTestIndex(t)

	if err := m.InsertTriple([]byte("s1"), []byte("p"), []byte("o1"), nil); err != nil {
		t.Fatalf("insert s1: %v", err)
	}
	if err := m.InsertTriple([]byte("s2"), []byte("q"), []byte("o2"), nil); err != nil {
		t.Fatalf("insert s2: %v", err)
	}

	p, ok := m.ResolveTerm([]byte("p"))
	if !ok {
		t.Fatalf("p not interned")
	}

	it, err := m.Query(Pattern{Predicate: &p})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	results := collectResults(t, it)

	if len(results) != 1 {
		t.Fatalf("Query{Predicate: &p} returned %d results, want 1: %+v", len(results), results)
	}
	if results[0].Predicate != p {
		t.Fatalf("result predicate = %d, want %d", results[0].Predicate, p)
	}
}

// TestQueryObjectBoundExcludesOtherObjects exercises the OSP rotation's
// post-filter with an object-only bound query.
func TestQueryObjectBoundExcludesOtherObjects(t *testing.T) {
	m := openTestIndex(t)

	if err := m.InsertTriple([]byte("s1"), []byte("p1"), []byte("shared"), nil); err != nil {
		t.Fatalf("insert s1: %v", err)
	}
	if err := m.InsertTriple([]byte("s2"), []byte("p2"), []byte("other"), nil); err != nil {
		t.Fatalf("insert s2: %v", err)
	}

	o, ok := m.ResolveTerm([]byte("shared"))
	if !ok {
		t.Fatalf("shared not interned")
	}

	it, err := m.Query(Pattern{Object: &o})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	results := collectResults(t, it)

	if len(results) != 1 {
		t.Fatalf("Query{Object: &o} returned %d results, want 1: %+v", len(results), results)
	}
	if results[0].Object != o {
		t.Fatalf("result object = %d, want %d", results[0].Object, o)
	}
}

// TestQueryFullyUnboundReturnsEverything guards against the post-filter
// over-restricting the fully wildcarded case.
func TestQueryFullyUnboundReturnsEverything(t *testing.T) {
	m := openTestIndex(t)

	if err := m.InsertTriple([]byte("s1"), []byte("p1"), []byte("o1"), nil); err != nil {
		t.Fatalf("insert s1: %v", err)
	}
	if err := m.InsertTriple([]byte("s2"), []byte("p2"), []byte("o2"), nil); err != nil {
		t.Fatalf("insert s2: %v", err)
	}

	it, err := m.Query(Pattern{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	results := collectResults(t, it)

	if len(results) != 2 {
		t.Fatalf("Query{} returned %d results, want 2: %+v", len(results), results)
	}
}
