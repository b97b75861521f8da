package btree

import "encoding/binary"

// leafFlag marks a page as a leaf in the header's Flags byte.
const leafFlag = 0x01

// Page is a PageSize-byte view into the memory-mapped file, with fixed
// header fields at the front (little-endian) followed by the entry region.
// Composite keys inside the entry region are big-endian so that Memcmp equals
// semantic compare; the header itself carries no comparable keys, so it is
// free to use native byte order.
//
// Header layout (32 bytes):
//
//	offset 0  : page id            (uint64)
//	offset 8  : flags               (uint8)  - bit0: leaf
//	offset 9  : entry count          (uint16)
//	offset 12 : parent page id       (uint64)
//	offset 20 : next-leaf page id    (uint64, leaf only)
//	offset 28 : reserved
type Page struct {
	buf    []byte // exactly PageSize bytes, backed by the mmap region
	layout Layout
}

func newPage(buf []byte, layout Layout) *Page {
	return &Page{buf: buf, layout: layout}
}

// rebind repoints the page at a freshly mapped region after the backing
// file has been remapped. The page identity and cache entry are unchanged;
// only the underlying memory address moved.
func (p *Page) rebind(buf []byte) {
	p.buf = buf
}

func (p *Page) ID() uint64 { return binary.LittleEndian.Uint64(p.buf[0:8]) }
func (p *Page) setID(id uint64) {
	binary.LittleEndian.PutUint64(p.buf[0:8], id)
}

func (p *Page) IsLeaf() bool { return p.buf[8]&leafFlag != 0 }
func (p *Page) setLeaf(leaf bool) {
	if leaf {
		p.buf[8] |= leafFlag
	} else {
		p.buf[8] &^= leafFlag
	}
}

func (p *Page) Count() int { return int(binary.LittleEndian.Uint16(p.buf[9:11])) }
func (p *Page) setCount(n int) {
	binary.LittleEndian.PutUint16(p.buf[9:11], uint16(n))
}

func (p *Page) Parent() uint64 { return binary.LittleEndian.Uint64(p.buf[12:20]) }
func (p *Page) SetParent(id uint64) {
	binary.LittleEndian.PutUint64(p.buf[12:20], id)
}

func (p *Page) NextLeaf() uint64 { return binary.LittleEndian.Uint64(p.buf[20:28]) }
func (p *Page) SetNextLeaf(id uint64) {
	binary.LittleEndian.PutUint64(p.buf[20:28], id)
}

func (p *Page) init(id uint64, leaf bool) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.setID(id)
	p.setLeaf(leaf)
	p.setCount(0)
}

// entryOffset returns the byte offset of entry i within the page.
func (p *Page) entryOffset(i int) int {
	return headerSize + i*p.layout.EntrySize()
}

// Key returns a borrowed view of entry i's key bytes.
func (p *Page) Key(i int) []byte {
	off := p.entryOffset(i)
	return p.buf[off : off+p.layout.KeySize]
}

// Value returns a borrowed view of entry i's value bytes. For internal
// nodes the value holds a big-endian uint64 child page id; for leaves it
// holds the caller's opaque payload.
func (p *Page) Value(i int) []byte {
	off := p.entryOffset(i) + p.layout.KeySize
	return p.buf[off : off+p.layout.ValueSize]
}

// Meta returns a borrowed view of entry i's metadata block (temporal
// layouts only; zero-length slice otherwise).
func (p *Page) Meta(i int) []byte {
	if p.layout.MetaSize == 0 {
		return nil
	}
	off := p.entryOffset(i) + p.layout.KeySize + p.layout.ValueSize
	return p.buf[off : off+p.layout.MetaSize]
}

// ChildPageID reads entry i's value as a child page id (internal nodes).
func (p *Page) ChildPageID(i int) uint64 {
	return binary.BigEndian.Uint64(p.Value(i))
}

// SetChildPageID writes entry i's value as a child page id.
func (p *Page) SetChildPageID(i int, id uint64) {
	binary.BigEndian.PutUint64(p.Value(i), id)
}

// insertAt shifts entries [i, count) right by one slot and writes key/value/
// meta into slot i, growing the page's count by one. Caller must have
// already verified there is room (count < layout.Degree()).
func (p *Page) insertAt(i int, key, value, meta []byte) {
	n := p.Count()
	es := p.layout.EntrySize()
	if i < n {
		src := p.buf[p.entryOffset(i) : p.entryOffset(n)]
		dstStart := p.entryOffset(i + 1)
		copy(p.buf[dstStart:dstStart+len(src)], src)
	}
	off := p.entryOffset(i)
	copy(p.buf[off:off+p.layout.KeySize], key)
	copy(p.buf[off+p.layout.KeySize:off+p.layout.KeySize+p.layout.ValueSize], value)
	if p.layout.MetaSize > 0 && meta != nil {
		copy(p.buf[off+p.layout.KeySize+p.layout.ValueSize:off+es], meta)
	}
	p.setCount(n + 1)
}

// removeAt removes entry i, shifting subsequent entries left.
func (p *Page) removeAt(i int) {
	n := p.Count()
	if i < n-1 {
		src := p.buf[p.entryOffset(i+1) : p.entryOffset(n)]
		dst := p.entryOffset(i)
		copy(p.buf[dst:dst+len(src)], src)
	}
	p.setCount(n - 1)
}

// search performs a binary search for key among this page's entries,
// returning the index of the first entry whose key is >= key, and whether
// an exact match was found at that index.
func (p *Page) search(key []byte, cmp Comparator) (idx int, exact bool) {
	lo, hi := 0, p.Count()
	for lo < hi {
		mid := (lo + hi) / 2
		c := cmp(p.Key(mid), key)
		switch {
		case c < 0:
			lo = mid + 1
		case c > 0:
			hi = mid
		default:
			return mid, true
		}
	}
	return lo, false
}
