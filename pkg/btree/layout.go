package btree

// PageSize is the fixed, compile-time page size for every tree file. All
// page I/O happens in PageSize-aligned units.
const PageSize = 16 * 1024

// headerSize is the fixed size of the per-page header (see Page below),
// rounded up for alignment. Node degree is derived at runtime from
// (PageSize - headerSize) / entrySize, never hardcoded.
const headerSize = 32

// Comparator orders two encoded keys the way memcmp would. Because every key
// field in this store is written big-endian, a single byte-wise comparator
// serves both the non-temporal and the bitemporal key layouts; the
// abstraction is kept so a future layout with a different field order (or a
// non-memcmp-friendly encoding) can supply its own.
type Comparator func(a, b []byte) int

// Memcmp is the default Comparator: plain lexicographic byte comparison.
// It is correct for every key layout in this package because all composite
// keys are encoded big-endian (see pkg/temporal and pkg/index).
func Memcmp(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Layout describes the fixed-width entry format for one tree flavor.
// KeySize and ValueSize apply uniformly to leaf and internal entries;
// MetaSize is non-zero only for bitemporal trees, which append a per-entry
// metadata block (created-at, modified-at, version, tombstone) after the
// value.
type Layout struct {
	KeySize   int
	ValueSize int
	MetaSize  int
}

// EntrySize is the total on-disk size of one entry under this layout.
func (l Layout) EntrySize() int {
	return l.KeySize + l.ValueSize + l.MetaSize
}

// Degree is the maximum number of entries a page can hold under this
// layout: (PageSize - headerSize) / EntrySize.
func (l Layout) Degree() int {
	return (PageSize - headerSize) / l.EntrySize()
}

// NonTemporal is a 12-byte-key / 8-byte-value layout shaped like an
// un-prefixed triple key (three 32-bit atoms, no graph). Used by this
// package's own tests; pkg/index prefixes every key with a graph atom, so
// its wired non-temporal rotations use a 16-byte key layout of their own.
var NonTemporal = Layout{KeySize: 12, ValueSize: 8, MetaSize: 0}

// Temporal is a 36-byte-key layout shaped like an un-prefixed bitemporal
// key (three 32-bit atoms plus three 64-bit time fields), an 8-byte value,
// and 16 bytes of per-entry metadata. Used by this package's own tests;
// pkg/index's wired temporal rotations add the same graph prefix as
// NonTemporal, for a 40-byte key.
var Temporal = Layout{KeySize: 36, ValueSize: 8, MetaSize: 16}
