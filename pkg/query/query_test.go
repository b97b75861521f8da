package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bemafred/sky-omega/pkg/index"
)

func openTestIndex(t *testing.T) *index.MultiIndex {
	t.Helper()
	dir := t.TempDir()
	idx, err := index.Open(filepath.Join(dir, "idx"), index.Options{Temporal: true, CacheCapacity: 32})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func mustTerm(t *testing.T, idx *index.MultiIndex, s string) uint32 {
	t.Helper()
	a, ok := idx.ResolveTerm([]byte(s))
	if !ok {
		t.Fatalf("term %q not interned", s)
	}
	return a
}

func insertTriples(t *testing.T, idx *index.MultiIndex, triples [][3]string) {
	t.Helper()
	for _, tr := range triples {
		if err := idx.InsertTriple([]byte(tr[0]), []byte(tr[1]), []byte(tr[2]), nil); err != nil {
			t.Fatalf("InsertTriple: %v", err)
		}
	}
}

func TestPatternScanBindsVariables(t *testing.T) {
	idx := openTestIndex(t)
	insertTriples(t, idx, [][3]string{{"<a>", "<p>", "<b>"}})

	pred := mustTerm(t, idx, "<p>")
	pattern := TriplePattern{Subject: Var(0), Predicate: Bound(pred), Object: Var(1)}

	scan, err := NewPatternScan(context.Background(), idx, pattern, Solution{})
	if err != nil {
		t.Fatalf("NewPatternScan: %v", err)
	}
	defer scan.Close()

	if !scan.Advance() {
		t.Fatalf("expected one solution, got none: %v", scan.Err())
	}
	sol := scan.Current()
	if sol[0] != mustTerm(t, idx, "<a>") || sol[1] != mustTerm(t, idx, "<b>") {
		t.Fatalf("unexpected bindings: %v", sol)
	}
	if scan.Advance() {
		t.Fatalf("expected exactly one solution")
	}
}

func TestBGPJoinsSharedVariable(t *testing.T) {
	idx := openTestIndex(t)
	insertTriples(t, idx, [][3]string{
		{"<a>", "<p>", "<b>"},
		{"<b>", "<q>", "<c>"},
		{"<b>", "<q>", "<d>"},
	})

	p, q := mustTerm(t, idx, "<p>"), mustTerm(t, idx, "<q>")
	patterns := []TriplePattern{
		{Subject: Var(0), Predicate: Bound(p), Object: Var(1)},
		{Subject: Var(1), Predicate: Bound(q), Object: Var(2)},
	}

	bgp, err := NewBGP(context.Background(), idx, patterns)
	if err != nil {
		t.Fatalf("NewBGP: %v", err)
	}
	defer bgp.Close()

	got := map[uint32]bool{}
	for bgp.Advance() {
		sol := bgp.Current()
		if sol[0] != mustTerm(t, idx, "<a>") {
			t.Fatalf("unexpected subject binding: %v", sol)
		}
		got[sol[2]] = true
	}
	if err := bgp.Err(); err != nil {
		t.Fatalf("BGP iteration error: %v", err)
	}
	if len(got) != 2 || !got[mustTerm(t, idx, "<c>")] || !got[mustTerm(t, idx, "<d>")] {
		t.Fatalf("expected {c, d}, got %v", got)
	}
}

func TestOptionalEmitsUnboundOnNoMatch(t *testing.T) {
	idx := openTestIndex(t)
	insertTriples(t, idx, [][3]string{
		{"<a>", "<type>", "<Person>"},
		{"<b>", "<type>", "<Person>"},
		{"<a>", "<name>", "<\"Alice\">"},
	})

	typeAtom := mustTerm(t, idx, "<type>")
	nameAtom := mustTerm(t, idx, "<name>")
	personAtom := mustTerm(t, idx, "<Person>")

	left, err := NewPatternScan(context.Background(), idx, TriplePattern{
		Subject: Var(0), Predicate: Bound(typeAtom), Object: Bound(personAtom),
	}, Solution{})
	if err != nil {
		t.Fatalf("NewPatternScan: %v", err)
	}

	opt := NewOptional(left, func(sol Solution) (Operator, error) {
		return NewPatternScan(context.Background(), idx, TriplePattern{
			Subject: Var(0), Predicate: Bound(nameAtom), Object: Var(1),
		}, sol)
	})
	defer opt.Close()

	rows := 0
	boundCount, unboundCount := 0, 0
	for opt.Advance() {
		rows++
		sol := opt.Current()
		if _, ok := sol[1]; ok {
			boundCount++
		} else {
			unboundCount++
		}
	}
	if err := opt.Err(); err != nil {
		t.Fatalf("Optional iteration error: %v", err)
	}
	if rows != 2 || boundCount != 1 || unboundCount != 1 {
		t.Fatalf("expected 2 rows (1 bound, 1 unbound), got rows=%d bound=%d unbound=%d", rows, boundCount, unboundCount)
	}
}

func TestUnionConcatenates(t *testing.T) {
	idx := openTestIndex(t)
	insertTriples(t, idx, [][3]string{
		{"<a>", "<p>", "<b>"},
		{"<c>", "<q>", "<d>"},
	})
	p, q := mustTerm(t, idx, "<p>"), mustTerm(t, idx, "<q>")

	left, _ := NewPatternScan(context.Background(), idx, TriplePattern{Subject: Var(0), Predicate: Bound(p), Object: Var(1)}, Solution{})
	right, _ := NewPatternScan(context.Background(), idx, TriplePattern{Subject: Var(0), Predicate: Bound(q), Object: Var(1)}, Solution{})

	u := NewUnion(left, right)
	defer u.Close()

	n := 0
	for u.Advance() {
		n++
	}
	if err := u.Err(); err != nil {
		t.Fatalf("Union iteration error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows from union, got %d", n)
	}
}

func TestDistinctDedups(t *testing.T) {
	idx := openTestIndex(t)
	insertTriples(t, idx, [][3]string{
		{"<a>", "<type>", "<Person>"},
		{"<b>", "<type>", "<Person>"},
	})
	typeAtom := mustTerm(t, idx, "<type>")
	personAtom := mustTerm(t, idx, "<Person>")

	scan, _ := NewPatternScan(context.Background(), idx, TriplePattern{
		Subject: Var(0), Predicate: Bound(typeAtom), Object: Bound(personAtom),
	}, Solution{})

	d := NewDistinct(scan, []VarID{}) // project onto no variables: every row collapses to one
	defer d.Close()

	n := 0
	for d.Advance() {
		n++
	}
	if n != 1 {
		t.Fatalf("expected 1 distinct row when projecting onto no variables, got %d", n)
	}
}

func TestLimitOffset(t *testing.T) {
	idx := openTestIndex(t)
	insertTriples(t, idx, [][3]string{
		{"<a>", "<p>", "<1>"},
		{"<a>", "<p>", "<2>"},
		{"<a>", "<p>", "<3>"},
	})
	p := mustTerm(t, idx, "<p>")
	scan, _ := NewPatternScan(context.Background(), idx, TriplePattern{Subject: Var(0), Predicate: Bound(p), Object: Var(1)}, Solution{})

	lo := NewLimitOffset(scan, 1, 1)
	defer lo.Close()

	if !lo.Advance() {
		t.Fatalf("expected one row after offset 1")
	}
	if lo.Advance() {
		t.Fatalf("expected limit 1 to stop after one row")
	}
}

func TestPropertyPathTransitiveClosure(t *testing.T) {
	idx := openTestIndex(t)
	insertTriples(t, idx, [][3]string{
		{"<a>", "<p>", "<b>"},
		{"<b>", "<p>", "<c>"},
		{"<c>", "<p>", "<d>"},
	})
	p := mustTerm(t, idx, "<p>")
	a := mustTerm(t, idx, "<a>")

	results, err := OneOrMore(context.Background(), idx, Atomic(p), a)
	if err != nil {
		t.Fatalf("OneOrMore: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 reachable nodes, got %d: %v", len(results), results)
	}
	byEnd := map[uint32]int{}
	for _, r := range results {
		byEnd[r.End] = r.Length
	}
	if byEnd[mustTerm(t, idx, "<b>")] != 1 || byEnd[mustTerm(t, idx, "<c>")] != 2 || byEnd[mustTerm(t, idx, "<d>")] != 3 {
		t.Fatalf("unexpected path lengths: %v", byEnd)
	}
}

func TestGroupByCount(t *testing.T) {
	idx := openTestIndex(t)
	insertTriples(t, idx, [][3]string{
		{"<a>", "<type>", "<Person>"},
		{"<b>", "<type>", "<Person>"},
		{"<c>", "<type>", "<Org>"},
	})
	typeAtom := mustTerm(t, idx, "<type>")

	scan, _ := NewPatternScan(context.Background(), idx, TriplePattern{Subject: Var(0), Predicate: Bound(typeAtom), Object: Var(1)}, Solution{})

	results, err := GroupBy(scan, []VarID{1}, Count, 0, idx)
	if err != nil {
		t.Fatalf("GroupBy: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(results))
	}
	for _, r := range results {
		group, _ := idx.TermOf(r.GroupKey[0])
		if string(group) == "<Person>" && r.Value != 2 {
			t.Fatalf("expected count 2 for Person, got %v", r.Value)
		}
		if string(group) == "<Org>" && r.Value != 1 {
			t.Fatalf("expected count 1 for Org, got %v", r.Value)
		}
	}
}
