package btree

import (
	"container/list"
	"sync"

	"github.com/bemafred/sky-omega/pkg/log"
)

// pageCacheEntry is the bookkeeping record for one resident page.
type pageCacheEntry struct {
	id    uint64
	page  *Page
	dirty bool
	pins  int
}

// PageCache is a bounded-by-count LRU over the pages of a single mapped
// file. Capacity bounds the number of resident page
// wrappers, not bytes, since every page is the same fixed size. Eviction
// flushes a dirty page through the mmap writeback path before it is
// dropped; a pinned page is never evicted.
//
// Pointers returned by Get are valid only while pinned — callers must not
// retain them across a yield point without holding the pin.
type PageCache struct {
	mu       sync.Mutex
	mf       *mappedFile
	layout   Layout
	capacity int

	entries map[uint64]*list.Element // pageID -> LRU list element
	order   *list.List               // front = most recently used

	gen uint64 // last mf.generation() this cache rebound its pages against

	hits, misses, evictions uint64
}

// NewPageCache creates a cache over mf with the given layout and capacity
// (number of resident pages).
func NewPageCache(mf *mappedFile, layout Layout, capacity int) *PageCache {
	if capacity < 1 {
		capacity = 1
	}
	return &PageCache{
		mf:       mf,
		layout:   layout,
		capacity: capacity,
		entries:  make(map[uint64]*list.Element),
		order:    list.New(),
	}
}

// checkRemap rebinds every resident page's buf to the current mapping if mf
// has been remapped (by this cache's own ensure call, or by a direct
// mf.truncate from outside the cache, e.g. Tree.ReclaimOrphanPages) since
// the last time this cache looked. mmap-go's Map/Unmap can hand back a
// different base address on every call, so a stale buf is a use-after-unmap
// waiting to happen. Caller must hold c.mu.
func (c *PageCache) checkRemap() {
	g := c.mf.generation()
	if g == c.gen {
		return
	}
	for _, el := range c.entries {
		ent := el.Value.(*pageCacheEntry)
		ent.page.rebind(c.mf.slice(ent.id))
	}
	c.gen = g
}

// Get returns the page for id, pinning it. Callers must call Unpin when
// done borrowing it.
func (c *PageCache) Get(id uint64) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checkRemap()

	if el, ok := c.entries[id]; ok {
		c.order.MoveToFront(el)
		ent := el.Value.(*pageCacheEntry)
		ent.pins++
		c.hits++
		return ent.page, nil
	}

	c.misses++
	if err := c.mf.ensure(id); err != nil {
		return nil, err
	}
	c.checkRemap()
	page := newPage(c.mf.slice(id), c.layout)

	if c.order.Len() >= c.capacity {
		if err := c.evictOne(); err != nil {
			return nil, err
		}
	}

	ent := &pageCacheEntry{id: id, page: page, pins: 1}
	el := c.order.PushFront(ent)
	c.entries[id] = el
	return page, nil
}

// Unpin releases a borrow taken by Get.
func (c *PageCache) Unpin(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[id]; ok {
		ent := el.Value.(*pageCacheEntry)
		if ent.pins > 0 {
			ent.pins--
		}
	}
}

// MarkDirty flags a resident page as modified, so it is flushed on
// eviction or on the next explicit Flush.
func (c *PageCache) MarkDirty(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[id]; ok {
		el.Value.(*pageCacheEntry).dirty = true
	}
}

// evictOne evicts the least-recently-used unpinned page. When every
// resident page is pinned it evicts nothing, logs a warning and returns
// nil, so the cache grows past its capacity.
func (c *PageCache) evictOne() error {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		ent := el.Value.(*pageCacheEntry)
		if ent.pins > 0 {
			continue
		}
		if ent.dirty {
			if err := c.mf.flush(); err != nil {
				return err
			}
		}
		c.order.Remove(el)
		delete(c.entries, ent.id)
		c.evictions++
		return nil
	}
	log.WithComponent("pagecache").Warn().Msg("cache full of pinned pages, growing past capacity")
	return nil
}

// Flush fsyncs all modified pages through the mmap writeback path.
func (c *PageCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mf.flush()
}

// Stats reports hit/miss/eviction counters, feeding pkg/metrics.
type CacheStats struct {
	Hits, Misses, Evictions uint64
	Resident                int
}

func (c *PageCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Resident: c.order.Len()}
}
