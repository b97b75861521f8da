package btree

import (
	"context"

	"github.com/bemafred/sky-omega/pkg/storeerr"
)

// Iterator is a pull-based cursor over a contiguous key range, walking the
// leaf chain left to right. It holds no lock across calls to Advance: each
// call takes the tree's read lock only for the duration of one page step,
// so a long-lived scan never blocks other readers and contends with writers
// no more than a single point lookup would (streaming
// operator model; readers are wait-free with respect to other readers).
type Iterator struct {
	tree *Tree

	maxKey []byte // exclusive upper bound; nil means unbounded

	leaf    *Page
	idx     int
	started bool
	done    bool
	err     error

	curKey, curValue, curMeta []byte
}

// RangeScan returns an iterator over [minKey, maxKey). A nil minKey starts
// at the leftmost leaf; a nil maxKey scans to the end of the key space.
func (t *Tree) RangeScan(minKey, maxKey []byte) (*Iterator, error) {
	it := &Iterator{tree: t, maxKey: maxKey}

	t.mu.RLock()
	var leaf *Page
	var err error
	if minKey == nil {
		leaf, err = t.leftmostLeaf()
	} else {
		leaf, err = t.findLeafContaining(minKey)
	}
	t.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	it.leaf = leaf
	if minKey != nil {
		idx, _ := leaf.search(minKey, t.cmp)
		it.idx = idx
	}
	return it, nil
}

// Advance moves to the next entry, returning false at end of range or on
// cancellation via ctx. Check Err after a false return to distinguish
// end-of-range from cancellation or I/O failure.
func (it *Iterator) Advance(ctx context.Context) bool {
	if it.done {
		return false
	}
	select {
	case <-ctx.Done():
		it.err = storeerr.Wrap(storeerr.Cancelled, "range scan cancelled", ctx.Err())
		it.finish()
		return false
	default:
	}

	it.tree.mu.RLock()
	defer it.tree.mu.RUnlock()

	for {
		if it.idx >= it.leaf.Count() {
			nextID := it.leaf.NextLeaf()
			if nextID == 0 {
				it.finish()
				return false
			}
			prevID := it.leaf.ID()
			next, err := it.tree.page(nextID)
			it.tree.unpin(prevID)
			if err != nil {
				it.err = err
				it.leaf = nil
				it.done = true
				return false
			}
			it.leaf = next
			it.idx = 0
			continue
		}
		break
	}

	key := it.leaf.Key(it.idx)
	if it.maxKey != nil && it.tree.cmp(key, it.maxKey) >= 0 {
		it.finish()
		return false
	}

	it.curKey = cloneBytes(key)
	it.curValue = cloneBytes(it.leaf.Value(it.idx))
	if it.tree.layout.MetaSize > 0 {
		it.curMeta = cloneBytes(it.leaf.Meta(it.idx))
	} else {
		it.curMeta = nil
	}
	it.idx++
	it.started = true
	return true
}

// Current returns the key/value/meta at the iterator's current position.
// Valid only after Advance returns true.
func (it *Iterator) Current() (key, value, meta []byte) {
	return it.curKey, it.curValue, it.curMeta
}

// Err returns the error that ended iteration, if any (nil on ordinary
// end-of-range).
func (it *Iterator) Err() error { return it.err }

// Close releases the iterator's pinned leaf page. Safe to call multiple
// times and after Advance has already returned false.
func (it *Iterator) Close() {
	it.finish()
}

func (it *Iterator) finish() {
	if !it.done && it.leaf != nil {
		it.tree.unpin(it.leaf.ID())
	}
	it.done = true
	it.leaf = nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
