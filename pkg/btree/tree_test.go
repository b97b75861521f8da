package btree

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
)

func makeKey(s, p, o uint32) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], s)
	binary.BigEndian.PutUint32(buf[4:8], p)
	binary.BigEndian.PutUint32(buf[8:12], o)
	return buf
}

func openTestTree(t *testing.T) *Tree {
	t.Helper()
	dir := t.TempDir()
	tr, err := Open(filepath.Join(dir, "spo.tdb"), NonTemporal, Memcmp, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestInsertAndPointLookup(t *testing.T) {
	tr := openTestTree(t)

	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, 42)
	key := makeKey(1, 2, 3)

	if err := tr.Insert(key, val, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, _, found, err := tr.PointLookup(key)
	if err != nil {
		t.Fatalf("PointLookup: %v", err)
	}
	if !found {
		t.Fatalf("PointLookup: key not found after insert")
	}
	if !bytes.Equal(got, val) {
		t.Fatalf("PointLookup value = %x, want %x", got, val)
	}
}

func TestInsertIdempotentOnExactKey(t *testing.T) {
	tr := openTestTree(t)
	key := makeKey(5, 5, 5)
	v1 := make([]byte, 8)
	binary.BigEndian.PutUint64(v1, 1)
	v2 := make([]byte, 8)
	binary.BigEndian.PutUint64(v2, 2)

	if err := tr.Insert(key, v1, nil); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if err := tr.Insert(key, v2, nil); err != nil {
		t.Fatalf("second Insert: %v", err)
	}

	got, _, found, err := tr.PointLookup(key)
	if err != nil || !found {
		t.Fatalf("PointLookup after duplicate insert: found=%v err=%v", found, err)
	}
	if !bytes.Equal(got, v1) {
		t.Fatalf("duplicate insert overwrote value: got %x, want original %x", got, v1)
	}
	if tr.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (idempotent insert must not double-count)", tr.Count())
	}
}

func TestPointLookupMiss(t *testing.T) {
	tr := openTestTree(t)
	_, _, found, err := tr.PointLookup(makeKey(9, 9, 9))
	if err != nil {
		t.Fatalf("PointLookup: %v", err)
	}
	if found {
		t.Fatalf("PointLookup found a key that was never inserted")
	}
}

func TestInsertForcesSplitsAndPreservesOrder(t *testing.T) {
	tr := openTestTree(t)

	const n = 3000 // comfortably more than one NonTemporal page holds
	for i := uint32(0); i < n; i++ {
		key := makeKey(i, 0, 0)
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(i))
		if err := tr.Insert(key, val, nil); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	if got := tr.Count(); got != n {
		t.Fatalf("Count() = %d, want %d", got, n)
	}

	// Spot-check a sample of keys across the range, including ones that
	// must have migrated across at least one split.
	for _, i := range []uint32{0, 1, 817, 1634, 2999} {
		val, _, found, err := tr.PointLookup(makeKey(i, 0, 0))
		if err != nil || !found {
			t.Fatalf("PointLookup(%d): found=%v err=%v", i, found, err)
		}
		if got := binary.BigEndian.Uint64(val); got != uint64(i) {
			t.Fatalf("PointLookup(%d) value = %d, want %d", i, got, i)
		}
	}

	it, err := tr.RangeScan(nil, nil)
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	defer it.Close()

	var count int
	var prev []byte
	for it.Advance(context.Background()) {
		k, _, _ := it.Current()
		if prev != nil && Memcmp(prev, k) >= 0 {
			t.Fatalf("RangeScan returned out-of-order keys: %x then %x", prev, k)
		}
		prev = k
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator ended with error: %v", err)
	}
	if count != n {
		t.Fatalf("RangeScan visited %d entries, want %d", count, n)
	}
}

func TestRangeScanBounds(t *testing.T) {
	tr := openTestTree(t)
	for i := uint32(0); i < 50; i++ {
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(i))
		if err := tr.Insert(makeKey(i, 0, 0), val, nil); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	it, err := tr.RangeScan(makeKey(10, 0, 0), makeKey(20, 0, 0))
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	defer it.Close()

	var got []uint32
	for it.Advance(context.Background()) {
		k, _, _ := it.Current()
		got = append(got, binary.BigEndian.Uint32(k[0:4]))
	}
	if len(got) != 10 {
		t.Fatalf("bounded RangeScan returned %d entries, want 10 (keys [10,20))", len(got))
	}
	for i, v := range got {
		if v != uint32(10+i) {
			t.Fatalf("entry %d = %d, want %d", i, v, 10+i)
		}
	}
}

func TestUpdateMutatesInPlace(t *testing.T) {
	tr := openTestTree(t)
	key := makeKey(1, 1, 1)
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, 100)
	if err := tr.Insert(key, val, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	found, err := tr.Update(key, func(key, value, meta []byte) {
		binary.BigEndian.PutUint64(value, 200)
	})
	if err != nil || !found {
		t.Fatalf("Update: found=%v err=%v", found, err)
	}

	got, _, _, err := tr.PointLookup(key)
	if err != nil {
		t.Fatalf("PointLookup: %v", err)
	}
	if binary.BigEndian.Uint64(got) != 200 {
		t.Fatalf("value after Update = %d, want 200", binary.BigEndian.Uint64(got))
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	tr := openTestTree(t)
	key := makeKey(7, 7, 7)
	if err := tr.Insert(key, make([]byte, 8), nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tr.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, _, found, err := tr.PointLookup(key)
	if err != nil {
		t.Fatalf("PointLookup: %v", err)
	}
	if found {
		t.Fatalf("key still present after Delete")
	}
	if tr.Count() != 0 {
		t.Fatalf("Count() = %d after deleting the only entry, want 0", tr.Count())
	}
}

func TestReopenPreservesTree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reopen.tdb")

	tr, err := Open(path, NonTemporal, Memcmp, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint32(0); i < 500; i++ {
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(i))
		if err := tr.Insert(makeKey(i, 1, 1), val, nil); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tr2, err := Open(path, NonTemporal, Memcmp, 64)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tr2.Close()

	if got := tr2.Count(); got != 500 {
		t.Fatalf("Count() after reopen = %d, want 500", got)
	}
	val, _, found, err := tr2.PointLookup(makeKey(499, 1, 1))
	if err != nil || !found {
		t.Fatalf("PointLookup after reopen: found=%v err=%v", found, err)
	}
	if binary.BigEndian.Uint64(val) != 499 {
		t.Fatalf("value after reopen = %d, want 499", binary.BigEndian.Uint64(val))
	}
}

func TestOrphanPageCountZeroOnFreshTree(t *testing.T) {
	tr := openTestTree(t)
	if got := tr.OrphanPageCount(); got != 0 {
		t.Fatalf("OrphanPageCount() on fresh tree = %d, want 0", got)
	}
}

func TestReclaimOrphanPages(t *testing.T) {
	tr := openTestTree(t)

	key := makeKey(1, 1, 1)
	val := make([]byte, 8)
	if err := tr.Insert(key, val, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Simulate a crash between a split's file-extending ensure() and the
	// metadata fence: the file is grown past meta.nextPageID with no page
	// at the new tail ever linked into the tree.
	if err := tr.mf.ensure(tr.meta.nextPageID + 2); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if got := tr.OrphanPageCount(); got != 3 {
		t.Fatalf("OrphanPageCount() = %d, want 3", got)
	}

	reclaimed, err := tr.ReclaimOrphanPages()
	if err != nil {
		t.Fatalf("ReclaimOrphanPages: %v", err)
	}
	if reclaimed != 3 {
		t.Fatalf("ReclaimOrphanPages() = %d, want 3", reclaimed)
	}
	if got := tr.OrphanPageCount(); got != 0 {
		t.Fatalf("OrphanPageCount() after reclaim = %d, want 0", got)
	}

	// The tree must still behave correctly after truncation: the lookup
	// path never depended on the orphaned tail.
	_, _, found, err := tr.PointLookup(key)
	if err != nil {
		t.Fatalf("PointLookup after reclaim: %v", err)
	}
	if !found {
		t.Fatalf("PointLookup after reclaim: key not found")
	}
}
