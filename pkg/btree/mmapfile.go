package btree

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/bemafred/sky-omega/pkg/storeerr"
)

// mappedFile owns the memory-mapped region backing a tree's ".tdb" page
// file. It grows the file (and remaps) whenever a new page is allocated
// past the current extent: a page split must extend the file before
// updating the root.
type mappedFile struct {
	f    *os.File
	mm   mmap.MMap
	path string

	// gen counts remaps. mmap-go's Map/Unmap can hand back a different base
	// address on every call, so any []byte sliced from a prior mapping (a
	// cached Page's buf) is invalid the moment gen changes; callers that
	// hold page slices across a call that might remap must compare gen
	// before trusting them. See PageCache.checkRemap.
	gen uint64
}

func openMappedFile(path string) (*mappedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.StorageFull, "open page file", err)
	}
	mf := &mappedFile{f: f, path: path}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, storeerr.Wrap(storeerr.Corruption, "stat page file", err)
	}
	if info.Size() == 0 {
		if err := f.Truncate(PageSize); err != nil {
			f.Close()
			return nil, storeerr.Wrap(storeerr.StorageFull, "extend new page file", err)
		}
	}
	if err := mf.remap(); err != nil {
		f.Close()
		return nil, err
	}
	return mf, nil
}

func (mf *mappedFile) remap() error {
	if mf.mm != nil {
		if err := mf.mm.Unmap(); err != nil {
			return storeerr.Wrap(storeerr.Corruption, "unmap page file", err)
		}
	}
	m, err := mmap.Map(mf.f, mmap.RDWR, 0)
	if err != nil {
		return storeerr.Wrap(storeerr.Corruption, "mmap page file", err)
	}
	mf.mm = m
	mf.gen++
	return nil
}

// generation returns the number of times this file has been remapped.
func (mf *mappedFile) generation() uint64 {
	return mf.gen
}

// pageCount returns the number of PageSize slots currently mapped.
func (mf *mappedFile) pageCount() int {
	return len(mf.mm) / PageSize
}

// ensure grows the file (and remaps) so that page id n is addressable.
func (mf *mappedFile) ensure(n uint64) error {
	need := int64(n+1) * PageSize
	if need <= int64(len(mf.mm)) {
		return nil
	}
	if err := mf.f.Truncate(need); err != nil {
		return storeerr.Wrap(storeerr.StorageFull, "extend page file", err)
	}
	return mf.remap()
}

// truncate shrinks the file to exactly n pages and remaps. Used to
// reclaim trailing pages a crashed split extended the file into but
// never linked into the tree.
func (mf *mappedFile) truncate(n uint64) error {
	size := int64(n) * PageSize
	if size < PageSize {
		size = PageSize
	}
	if err := mf.f.Truncate(size); err != nil {
		return storeerr.Wrap(storeerr.StorageFull, "truncate page file", err)
	}
	return mf.remap()
}

// slice returns the raw PageSize-byte region for page id.
func (mf *mappedFile) slice(id uint64) []byte {
	off := int64(id) * PageSize
	return mf.mm[off : off+PageSize]
}

// flush fsyncs modified pages through the mmap writeback path.
func (mf *mappedFile) flush() error {
	if err := mf.mm.Flush(); err != nil {
		return fmt.Errorf("flush page file %s: %w", mf.path, err)
	}
	return nil
}

func (mf *mappedFile) close() error {
	if err := mf.flush(); err != nil {
		return err
	}
	if err := mf.mm.Unmap(); err != nil {
		return fmt.Errorf("unmap page file %s: %w", mf.path, err)
	}
	return mf.f.Close()
}
