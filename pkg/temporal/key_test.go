package temporal

import (
	"bytes"
	"testing"
)

func TestKeyEncodeDecodeRoundTrip(t *testing.T) {
	k := Key{
		Subject: 1, Predicate: 2, Object: 3,
		ValidFrom: 1_600_000_000_000, ValidTo: Forever,
		TransactionTime: 1_600_000_000_500,
	}
	got := DecodeKey(k.Encode())
	if got != k {
		t.Fatalf("DecodeKey(Encode(k)) = %+v, want %+v", got, k)
	}
}

func TestKeyOrderingMatchesFieldPriority(t *testing.T) {
	// SPO differs: lower subject sorts first regardless of time fields.
	a := Key{Subject: 1, ValidFrom: 100, ValidTo: Forever}
	b := Key{Subject: 2, ValidFrom: 0, ValidTo: 1}
	if c := bytes.Compare(a.Encode(), b.Encode()); c >= 0 {
		t.Fatalf("expected a < b by SPO precedence, got compare=%d", c)
	}

	// Same SPO: valid_from breaks the tie.
	c1 := Key{Subject: 1, Predicate: 1, Object: 1, ValidFrom: 10, ValidTo: Forever}
	c2 := Key{Subject: 1, Predicate: 1, Object: 1, ValidFrom: 20, ValidTo: Forever}
	if c := bytes.Compare(c1.Encode(), c2.Encode()); c >= 0 {
		t.Fatalf("expected earlier valid_from to sort first, got compare=%d", c)
	}
}

func TestMetaEncodeDecodeRoundTrip(t *testing.T) {
	m := Meta{CreatedAt: 1000, ModifiedAt: 2000, Version: 3, Tombstone: true}
	got := DecodeMeta(m.Encode())
	if got != m {
		t.Fatalf("DecodeMeta(Encode(m)) = %+v, want %+v", got, m)
	}
}

func TestSetValidToPreservesOtherFields(t *testing.T) {
	k := Key{Subject: 5, Predicate: 6, Object: 7, ValidFrom: 10, ValidTo: Forever, TransactionTime: 99}
	buf := k.Encode()
	SetValidTo(buf, 500)

	got := DecodeKey(buf)
	want := k
	want.ValidTo = 500
	if got != want {
		t.Fatalf("after SetValidTo: got %+v, want %+v", got, want)
	}
}

func TestTouchModifiedBumpsVersion(t *testing.T) {
	m := Meta{CreatedAt: 1, ModifiedAt: 1, Version: 0}
	buf := m.Encode()
	TouchModified(buf, 42)

	got := DecodeMeta(buf)
	if got.ModifiedAt != 42 {
		t.Fatalf("ModifiedAt = %d, want 42", got.ModifiedAt)
	}
	if got.Version != 1 {
		t.Fatalf("Version = %d, want 1", got.Version)
	}
	if got.CreatedAt != 1 {
		t.Fatalf("CreatedAt changed: got %d, want unchanged 1", got.CreatedAt)
	}
}

// TestBitemporalNarrative walks a worked example: alice works at Acme
// from 2020-01-01 until 2023-07-01, then at OpenAI from then on.
func TestBitemporalNarrative(t *testing.T) {
	const (
		t2020 = 1_577_836_800_000
		t2023 = 1_688_169_600_000
		t2021 = 1_622_505_600_000 // 2021-06-01
		t2024 = 1_704_067_200_000 // 2024-01-01
	)

	acme := Key{Subject: 1, Predicate: 1, Object: 2, ValidFrom: t2020, ValidTo: t2023}
	openai := Key{Subject: 1, Predicate: 1, Object: 3, ValidFrom: t2023, ValidTo: Forever}

	asOf2021 := AsOf(t2021)
	asOf2024 := AsOf(t2024)

	if !asOf2021(acme.ValidFrom, acme.ValidTo) {
		t.Fatalf("AsOf(2021-06-01) should accept the Acme interval")
	}
	if asOf2021(openai.ValidFrom, openai.ValidTo) {
		t.Fatalf("AsOf(2021-06-01) should reject the OpenAI interval")
	}
	if asOf2024(acme.ValidFrom, acme.ValidTo) {
		t.Fatalf("AsOf(2024-01-01) should reject the Acme interval")
	}
	if !asOf2024(openai.ValidFrom, openai.ValidTo) {
		t.Fatalf("AsOf(2024-01-01) should accept the OpenAI interval")
	}

	rng := Range(1_672_531_200_000 /* 2023-01-01 */, 1_703_980_800_000 /* 2023-12-31 */)
	if !rng(acme.ValidFrom, acme.ValidTo) {
		t.Fatalf("Range(2023-01-01, 2023-12-31) should include Acme (overlaps through 2023-07-01)")
	}
	if !rng(openai.ValidFrom, openai.ValidTo) {
		t.Fatalf("Range(2023-01-01, 2023-12-31) should include OpenAI (starts within range)")
	}
}

func TestAsOfExcludesExactValidTo(t *testing.T) {
	k := Key{ValidFrom: 0, ValidTo: 100}
	if AsOf(100)(k.ValidFrom, k.ValidTo) {
		t.Fatalf("AsOf at exactly valid_to must be excluded (half-open interval)")
	}
	if !AsOf(99)(k.ValidFrom, k.ValidTo) {
		t.Fatalf("AsOf just before valid_to must be included")
	}
}

func TestAcceptSkipsTombstoned(t *testing.T) {
	k := Key{ValidFrom: 0, ValidTo: Forever}
	live := Meta{Tombstone: false}
	dead := Meta{Tombstone: true}
	p := AllTime()
	if !Accept(p, live, k) {
		t.Fatalf("AllTime should accept a live entry")
	}
	if Accept(p, dead, k) {
		t.Fatalf("AllTime must still skip a tombstoned entry")
	}
}

func TestNeedsTruncation(t *testing.T) {
	tests := []struct {
		name                      string
		priorFrom, priorTo, newFr uint64
		wantOK                    bool
		wantTo                    uint64
	}{
		{"open interval truncated by later insert", 0, Forever, 100, true, 100},
		{"non-overlapping: new starts after prior already ended", 0, 50, 100, false, 0},
		{"new starts before prior begins: not a truncation case", 100, Forever, 50, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, ok := NeedsTruncation(tt.priorFrom, tt.priorTo, tt.newFr)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && to != tt.wantTo {
				t.Fatalf("truncatedValidTo = %d, want %d", to, tt.wantTo)
			}
		})
	}
}
