package temporal

// Predicate decides whether a candidate temporal entry is visible under a
// particular kind of temporal query (AsOf/Range/AllTime/
// Current). Evaluated at enumeration time against each candidate pulled
// off an index iterator; no predicate ever sees a tombstoned entry, since
// that filter is applied uniformly before the kind-specific check.
type Predicate func(validFrom, validTo uint64) bool

// AsOf accepts entries whose valid interval contains t: valid_from ≤ t <
// valid_to.
func AsOf(t uint64) Predicate {
	return func(validFrom, validTo uint64) bool {
		return validFrom <= t && t < validTo
	}
}

// Range accepts entries whose valid interval overlaps [lo, hi):
// valid_from < hi ∧ valid_to > lo.
func Range(lo, hi uint64) Predicate {
	return func(validFrom, validTo uint64) bool {
		return validFrom < hi && validTo > lo
	}
}

// AllTime accepts every non-tombstoned entry regardless of interval.
func AllTime() Predicate {
	return func(uint64, uint64) bool { return true }
}

// Current is AsOf(now): the entry valid at the current instant.
func Current(now uint64) Predicate {
	return AsOf(now)
}

// Accept applies tombstone filtering and then the predicate: an entry
// whose tombstone flag is set is skipped by every query kind regardless
// of what the predicate itself would say.
func Accept(p Predicate, meta Meta, k Key) bool {
	if meta.Tombstone {
		return false
	}
	return p(k.ValidFrom, k.ValidTo)
}

// NeedsTruncation implements the overlap-truncation rule: on insert with
// identical SPO whose prior version's valid_to overlaps the new
// valid_from, the prior entry's valid_to is truncated to the new
// valid_from. Returns the truncated valid_to and ok=true when the rule
// fires; the caller (pkg/index, which holds the prior entry located by an
// SPO-prefix scan) is responsible for writing it back via
// btree.Tree.Update and stamping modified_at/version.
func NeedsTruncation(priorValidFrom, priorValidTo, newValidFrom uint64) (truncatedValidTo uint64, ok bool) {
	if priorValidFrom < newValidFrom && priorValidTo > newValidFrom {
		return newValidFrom, true
	}
	return 0, false
}
