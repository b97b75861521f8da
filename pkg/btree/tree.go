package btree

import (
	"sync"
)

// Tree is a generic B+Tree over fixed-width composite keys, parameterized
// by a Layout (key/value/metadata widths) and a Comparator. Both the
// non-temporal (SPO/POS/OSP) and bitemporal (SPOT/POST/OSPT/TSPO) indexes
// are instances of this same type; only their Layout and Comparator
// differ.
type Tree struct {
	mu sync.RWMutex

	mf     *mappedFile
	cache  *PageCache
	layout Layout
	cmp    Comparator
	meta   metadata
	path   string
}

// Open opens or creates the tree rooted at path ("<name>.tdb"), running
// the crash recovery path if needed.
func Open(path string, layout Layout, cmp Comparator, cacheCapacity int) (*Tree, error) {
	mf, err := openMappedFile(path)
	if err != nil {
		return nil, err
	}
	m, err := loadOrInit(mf, layout)
	if err != nil {
		mf.close()
		return nil, err
	}
	return &Tree{
		mf:     mf,
		cache:  NewPageCache(mf, layout, cacheCapacity),
		layout: layout,
		cmp:    cmp,
		meta:   m,
		path:   path,
	}, nil
}

// Layout returns the tree's entry layout.
func (t *Tree) Layout() Layout { return t.layout }

// Count returns the number of entries (triples or temporal versions)
// currently recorded in the metadata block.
func (t *Tree) Count() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.tripleCount
}

// allocPage allocates a fresh page through the page cache,
// initializes it as a leaf or internal node, and advances the next-page-id
// counter. Caller must hold t.mu.
func (t *Tree) allocPage(leaf bool) (*Page, error) {
	id := t.meta.nextPageID
	t.meta.nextPageID++
	p, err := t.cache.Get(id)
	if err != nil {
		return nil, err
	}
	p.init(id, leaf)
	t.cache.MarkDirty(id)
	return p, nil
}

// page fetches id through the page cache, pinning it for the duration of
// the caller's use. Caller must hold t.mu and must call unpin(id) once
// finished with the returned page.
func (t *Tree) page(id uint64) (*Page, error) {
	return t.cache.Get(id)
}

// unpin releases a pin taken by page or allocPage.
func (t *Tree) unpin(id uint64) {
	t.cache.Unpin(id)
}

// dirty marks a page modified so the cache flushes it before eviction.
func (t *Tree) dirty(id uint64) {
	t.cache.MarkDirty(id)
}

// pathEntry records one step of a root-to-leaf descent, so promotions can
// walk back up after a split.
type pathEntry struct {
	pageID uint64
	idx    int // index of the entry (child pointer) taken at this level
}

// descend walks from the root to the leaf that would contain key, recording
// the path taken. The returned leaf is left pinned; the caller must unpin
// it. Every internal page visited along the way is unpinned before
// descend returns. Caller must hold t.mu.
func (t *Tree) descend(key []byte) ([]pathEntry, *Page, error) {
	var path []pathEntry
	id := t.meta.rootPageID
	for {
		p, err := t.page(id)
		if err != nil {
			return nil, nil, err
		}
		if p.IsLeaf() {
			return path, p, nil
		}
		idx, exact := p.search(key, t.cmp)
		var childIdx int
		if exact {
			childIdx = idx
		} else if idx == 0 {
			childIdx = 0
		} else {
			childIdx = idx - 1
		}
		if childIdx >= p.Count() {
			childIdx = p.Count() - 1
		}
		path = append(path, pathEntry{pageID: id, idx: childIdx})
		id = p.ChildPageID(childIdx)
		t.unpin(p.ID())
	}
}

// Insert writes (key, value, meta) into the tree. Idempotent on exact key
// match: if key is already present, Insert is a no-op (see Update for
// mutating an existing entry in place, used by the bitemporal truncation
// rule).
func (t *Tree) Insert(key, value, meta []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, leaf, err := t.descend(key)
	if err != nil {
		return err
	}
	defer t.unpin(leaf.ID())

	idx, exact := leaf.search(key, t.cmp)
	if exact {
		return nil // idempotent: no duplicate insert
	}

	if leaf.Count() < t.layout.Degree() {
		leaf.insertAt(idx, key, value, meta)
		t.dirty(leaf.ID())
		t.meta.tripleCount++
		return t.commit()
	}

	// Leaf is full: split before inserting.
	right, err := t.splitLeaf(leaf)
	if err != nil {
		return err
	}
	defer t.unpin(right.ID())
	t.dirty(leaf.ID())

	target := leaf
	if t.cmp(key, right.Key(0)) >= 0 {
		target = right
	}
	idx, _ = target.search(key, t.cmp)
	target.insertAt(idx, key, value, meta)
	t.dirty(target.ID())
	t.meta.tripleCount++

	if err := t.promote(path, leaf.ID(), right.Key(0), right.ID()); err != nil {
		return err
	}
	return t.commit()
}

// splitLeaf splits a full leaf page, moving its upper half into a new right
// sibling and re-linking the leaf chain. The new leaf is written fully
// before being linked in, so a concurrent reader never observes a
// half-written sibling (mid-split invisibility rule).
func (t *Tree) splitLeaf(left *Page) (*Page, error) {
	right, err := t.allocPage(true)
	if err != nil {
		return nil, err
	}
	n := left.Count()
	mid := n / 2
	for i := mid; i < n; i++ {
		right.insertAt(right.Count(), left.Key(i), left.Value(i), left.Meta(i))
	}
	for i := n - 1; i >= mid; i-- {
		left.removeAt(i)
	}
	right.SetNextLeaf(left.NextLeaf())
	left.SetNextLeaf(right.ID())
	right.SetParent(left.Parent())
	t.dirty(right.ID())
	return right, nil
}

// splitInternal splits a full internal page the same way a leaf splits:
// every entry already carries the minimum key of its child subtree, so no
// key needs to be "consumed" on promotion, only copied upward.
func (t *Tree) splitInternal(left *Page) (*Page, error) {
	right, err := t.allocPage(false)
	if err != nil {
		return nil, err
	}
	n := left.Count()
	mid := n / 2
	for i := mid; i < n; i++ {
		right.insertAt(right.Count(), left.Key(i), left.Value(i), nil)
	}
	for i := n - 1; i >= mid; i-- {
		left.removeAt(i)
	}
	right.SetParent(left.Parent())
	t.dirty(right.ID())
	return right, nil
}

// promote inserts (childMinKey, childID) into the parent found at the top
// of path, splitting and recursing upward as needed, and creating a new
// root if the root itself overflows. path is the root-to-leaf chain
// recorded by descend, not including the leaf itself.
func (t *Tree) promote(path []pathEntry, leftChildID uint64, rightMinKey []byte, rightChildID uint64) error {
	if len(path) == 0 {
		return t.newRoot(leftChildID, rightMinKey, rightChildID)
	}

	top := path[len(path)-1]
	parent, err := t.page(top.pageID)
	if err != nil {
		return err
	}
	defer t.unpin(parent.ID())

	parent.SetChildPageID(top.idx, leftChildID) // unchanged, kept explicit for clarity
	t.dirty(parent.ID())

	idx, exact := parent.search(rightMinKey, t.cmp)
	if exact {
		// Should not happen: a freshly promoted min-key is unique.
		idx++
	}

	valBuf := make([]byte, 8)
	putChildID(valBuf, rightChildID)

	if parent.Count() < t.layout.Degree() {
		parent.insertAt(idx, rightMinKey, valBuf, nil)
		t.dirty(parent.ID())
		return nil
	}

	right, err := t.splitInternal(parent)
	if err != nil {
		return err
	}
	defer t.unpin(right.ID())
	t.dirty(parent.ID())

	target := parent
	if t.cmp(rightMinKey, right.Key(0)) >= 0 {
		target = right
	}
	idx, _ = target.search(rightMinKey, t.cmp)
	target.insertAt(idx, rightMinKey, valBuf, nil)
	t.dirty(target.ID())

	return t.promote(path[:len(path)-1], parent.ID(), right.Key(0), right.ID())
}

// newRoot allocates a fresh internal root with two children: the original
// root (now split into left/right) addressed by a zero-valued minimum-key
// sentinel for the left child, guaranteeing every real key compares >= it.
func (t *Tree) newRoot(leftChildID uint64, rightMinKey []byte, rightChildID uint64) error {
	root, err := t.allocPage(false)
	if err != nil {
		return err
	}
	zeroKey := make([]byte, t.layout.KeySize)
	leftVal := make([]byte, 8)
	putChildID(leftVal, leftChildID)
	rightVal := make([]byte, 8)
	putChildID(rightVal, rightChildID)

	root.insertAt(0, zeroKey, leftVal, nil)
	root.insertAt(1, rightMinKey, rightVal, nil)
	t.dirty(root.ID())

	if lp, err := t.page(leftChildID); err == nil {
		lp.SetParent(root.ID())
		t.dirty(lp.ID())
		t.unpin(lp.ID())
	}
	if rp, err := t.page(rightChildID); err == nil {
		rp.SetParent(root.ID())
		t.dirty(rp.ID())
		t.unpin(rp.ID())
	}

	t.meta.rootPageID = root.ID()
	t.unpin(root.ID())
	return nil
}

func putChildID(buf []byte, id uint64) {
	for i := 7; i >= 0; i-- {
		buf[i] = byte(id)
		id >>= 8
	}
}

// commit rewrites and fences the metadata block last: page writes go
// through mmap, then a fence flushes modified pages, then metadata is
// rewritten and fenced. A crash before the metadata fence leaves the tree
// at its previous consistent state.
func (t *Tree) commit() error {
	if err := t.mf.flush(); err != nil {
		return err
	}
	writeMetadata(t.mf.slice(metadataPageID)[:metadataSize], t.meta)
	return t.mf.flush()
}

// PointLookup returns the value and metadata stored for key, or
// found=false if key is absent.
func (t *Tree) PointLookup(key []byte) (value, meta []byte, found bool, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, leaf, err := t.descend(key)
	if err != nil {
		return nil, nil, false, err
	}
	defer t.unpin(leaf.ID())

	idx, exact := leaf.search(key, t.cmp)
	if !exact {
		return nil, nil, false, nil
	}
	v := make([]byte, len(leaf.Value(idx)))
	copy(v, leaf.Value(idx))
	var m []byte
	if t.layout.MetaSize > 0 {
		m = make([]byte, len(leaf.Meta(idx)))
		copy(m, leaf.Meta(idx))
	}
	return v, m, true, nil
}

// Update locates key and, if present, calls mutate with live (mmap-backed)
// key, value and metadata slices so the caller can modify them in place —
// used by the bitemporal truncation rule to shorten a prior version's
// valid_to without a full delete+reinsert. mutate may freely rewrite value
// and meta; it must only rewrite key bytes that do not change this entry's
// relative order among its siblings (e.g. a temporal key's trailing
// valid_to/transaction_time fields, never the leading subject/predicate/
// object/valid_from prefix other entries are ordered on), or the tree's
// sort invariant is silently violated.
func (t *Tree) Update(key []byte, mutate func(key, value, meta []byte)) (found bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, leaf, err := t.descend(key)
	if err != nil {
		return false, err
	}
	defer t.unpin(leaf.ID())

	idx, exact := leaf.search(key, t.cmp)
	if !exact {
		return false, nil
	}
	mutate(leaf.Key(idx), leaf.Value(idx), leaf.Meta(idx))
	t.dirty(leaf.ID())
	return true, t.commit()
}

// Delete removes key from the tree. For temporal layouts the caller
// typically prefers setting the tombstone bit via Update instead; Delete
// performs a hard removal from the leaf. Rebalancing is deferred: pages
// are not merged on delete.
func (t *Tree) Delete(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, leaf, err := t.descend(key)
	if err != nil {
		return err
	}
	defer t.unpin(leaf.ID())

	idx, exact := leaf.search(key, t.cmp)
	if !exact {
		return nil
	}
	leaf.removeAt(idx)
	t.dirty(leaf.ID())
	if t.meta.tripleCount > 0 {
		t.meta.tripleCount--
	}
	return t.commit()
}

// leftmostLeaf returns the leftmost leaf page, pinned, for full-scan
// iteration. The caller must unpin it.
func (t *Tree) leftmostLeaf() (*Page, error) {
	id := t.meta.rootPageID
	for {
		p, err := t.page(id)
		if err != nil {
			return nil, err
		}
		if p.IsLeaf() {
			return p, nil
		}
		id = p.ChildPageID(0)
		t.unpin(p.ID())
	}
}

// findLeafContaining returns the leaf that would hold key.
func (t *Tree) findLeafContaining(key []byte) (*Page, error) {
	_, leaf, err := t.descend(key)
	return leaf, err
}

// Close flushes and closes the underlying page file.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.commit(); err != nil {
		return err
	}
	return t.mf.close()
}

// Path returns the file path this tree was opened from.
func (t *Tree) Path() string { return t.path }

// CacheStats exposes the page cache's hit/miss/eviction counters.
func (t *Tree) CacheStats() CacheStats { return t.cache.Stats() }

// OrphanPageCount returns the number of pages the backing file has been
// extended to hold beyond the committed next-page-id. ensure() grows the
// file before a split links its new page into the tree and fences
// metadata; a crash in that window leaves the file bigger than the
// committed tree describes, with the tail pages unreachable from the
// root and never reused by allocPage (which only ever hands out
// meta.nextPageID and above).
func (t *Tree) OrphanPageCount() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	mapped := uint64(t.mf.pageCount())
	if mapped <= t.meta.nextPageID {
		return 0
	}
	return mapped - t.meta.nextPageID
}

// ReclaimOrphanPages truncates the backing file back to exactly
// meta.nextPageID pages, returning the number of pages reclaimed. Safe to
// call at any time: the reclaimed region was never reachable from the
// tree and allocPage never hands out a page id below meta.nextPageID.
func (t *Tree) ReclaimOrphanPages() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mapped := uint64(t.mf.pageCount())
	if mapped <= t.meta.nextPageID {
		return 0, nil
	}
	orphaned := mapped - t.meta.nextPageID
	if err := t.mf.truncate(t.meta.nextPageID); err != nil {
		return 0, err
	}
	return orphaned, nil
}
