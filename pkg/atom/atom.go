// Package atom implements the string-interning layer:
// a persistent, append-only mapping from byte strings to 32-bit integer
// atoms. Every RDF term the store ever sees — an IRI, a literal, a blank
// node — is interned exactly once; everything above this package (keys,
// indexes, query operators) deals only in Atom values.
package atom

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/bemafred/sky-omega/pkg/log"
	"github.com/bemafred/sky-omega/pkg/storeerr"
)

// Atom is a 32-bit id uniquely identifying an interned byte string.
type Atom uint32

const (
	// Min is the reserved sentinel "minimum" atom. It is never assigned to
	// real content; it is used as a wildcard lower bound in key ranges.
	Min Atom = 0
	// Max is the reserved sentinel "maximum" atom, used as a wildcard upper
	// bound in key ranges. Never assigned to real content.
	Max Atom = 1<<32 - 1
)

// chunkSize is the size of each append-only backing-store chunk.
const chunkSize = 64 * 1024

// entrySize is the on-disk size of one index record: chunk, offset, length,
// hash, each a big-endian uint32.
const entrySize = 16

// entry is the persisted side-table record for one interned atom.
type entry struct {
	chunk  uint32
	offset uint32
	length uint32
	hash   uint32
}

// Store is a single atom-interning table, backed by a pair of companion
// files: "<name>.atoms.data" (the append-only content chunks) and
// "<name>.atoms.idx" (the fixed-width entry side table).
type Store struct {
	mu sync.RWMutex

	dataPath string
	idxPath  string

	dataFile *os.File
	idxFile  *os.File

	chunks  [][]byte // in-memory mirror of the data file, one slice per chunk
	curOff  int       // write offset within the last chunk
	entries []entry   // entries[i] describes atom i+1

	// hash -> candidate atom ids sharing that hash, for collision resolution.
	byHash map[uint32][]Atom

	name string
}

// Open opens or creates the atom store rooted at basePath (pkg/index passes
// "<dir>/terms"); it produces basePath+".atoms.data" and basePath+".atoms.idx".
func Open(basePath string) (*Store, error) {
	dataPath := basePath + ".atoms.data"
	idxPath := basePath + ".atoms.idx"

	dataFile, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.StorageFull, "open atom data file", err)
	}
	idxFile, err := os.OpenFile(idxPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		dataFile.Close()
		return nil, storeerr.Wrap(storeerr.StorageFull, "open atom index file", err)
	}

	s := &Store{
		dataPath: dataPath,
		idxPath:  idxPath,
		dataFile: dataFile,
		idxFile:  idxFile,
		byHash:   make(map[uint32][]Atom),
		name:     basePath,
	}

	if err := s.rebuild(); err != nil {
		dataFile.Close()
		idxFile.Close()
		return nil, err
	}

	return s, nil
}

// rebuild scans the on-disk data and index files and reconstructs the
// in-memory chunk mirror and hash index. Called on every Open: no
// clean-shutdown marker is kept, so the index is always rebuilt from the
// files.
func (s *Store) rebuild() error {
	info, err := s.dataFile.Stat()
	if err != nil {
		return storeerr.Wrap(storeerr.Corruption, "stat atom data file", err)
	}
	size := info.Size()

	s.chunks = nil
	if size > 0 {
		data := make([]byte, size)
		if _, err := s.dataFile.ReadAt(data, 0); err != nil {
			return storeerr.Wrap(storeerr.Corruption, "read atom data file", err)
		}
		for off := int64(0); off < size; off += chunkSize {
			end := off + chunkSize
			if end > size {
				end = size
			}
			chunk := make([]byte, chunkSize)
			copy(chunk, data[off:end])
			s.chunks = append(s.chunks, chunk)
		}
		s.curOff = int(size % chunkSize)
		if s.curOff == 0 && size > 0 {
			s.curOff = chunkSize
		}
	}
	if len(s.chunks) == 0 {
		s.chunks = [][]byte{make([]byte, chunkSize)}
		s.curOff = 0
	}

	idxInfo, err := s.idxFile.Stat()
	if err != nil {
		return storeerr.Wrap(storeerr.Corruption, "stat atom index file", err)
	}
	if idxInfo.Size()%entrySize != 0 {
		return storeerr.New(storeerr.Corruption, "atom index file size is not a multiple of the entry size")
	}
	n := int(idxInfo.Size() / entrySize)
	s.entries = make([]entry, 0, n)
	s.byHash = make(map[uint32][]Atom, n)

	r := bufio.NewReader(s.idxFile)
	if _, err := s.idxFile.Seek(0, 0); err != nil {
		return storeerr.Wrap(storeerr.Corruption, "seek atom index file", err)
	}
	r.Reset(s.idxFile)
	buf := make([]byte, entrySize)
	for i := 0; i < n; i++ {
		if _, err := readFull(r, buf); err != nil {
			return storeerr.Wrap(storeerr.Corruption, "read atom index entry", err)
		}
		e := decodeEntry(buf)
		s.entries = append(s.entries, e)
		id := Atom(i + 1)
		s.byHash[e.hash] = append(s.byHash[e.hash], id)
	}
	return nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func decodeEntry(buf []byte) entry {
	return entry{
		chunk:  binary.BigEndian.Uint32(buf[0:4]),
		offset: binary.BigEndian.Uint32(buf[4:8]),
		length: binary.BigEndian.Uint32(buf[8:12]),
		hash:   binary.BigEndian.Uint32(buf[12:16]),
	}
}

func encodeEntry(e entry) []byte {
	buf := make([]byte, entrySize)
	binary.BigEndian.PutUint32(buf[0:4], e.chunk)
	binary.BigEndian.PutUint32(buf[4:8], e.offset)
	binary.BigEndian.PutUint32(buf[8:12], e.length)
	binary.BigEndian.PutUint32(buf[12:16], e.hash)
	return buf
}

// hash computes the deterministic, non-cryptographic content hash used for
// collision resolution. xxhash64 truncated to 32 bits is stable across
// processes and versions, which a fixed hash function must be.
func hash(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}

// Intern returns the existing atom for b if one exists, otherwise appends b
// to the backing store and assigns a new atom. At-most-once per distinct
// content: concurrent callers interning identical bytes observe exactly one
// winner.
func (s *Store) Intern(b []byte) (Atom, error) {
	h := hash(b)

	s.mu.RLock()
	if id, ok := s.find(h, b); ok {
		s.mu.RUnlock()
		return id, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock: another writer may have interned the
	// same bytes between our read-unlock and this lock.
	if id, ok := s.find(h, b); ok {
		return id, nil
	}

	chunkIdx, offset, err := s.append(b)
	if err != nil {
		return 0, err
	}

	e := entry{chunk: uint32(chunkIdx), offset: uint32(offset), length: uint32(len(b)), hash: h}
	if _, err := s.idxFile.Write(encodeEntry(e)); err != nil {
		return 0, storeerr.Wrap(storeerr.StorageFull, "append atom index entry", err)
	}

	s.entries = append(s.entries, e)
	id := Atom(len(s.entries))
	s.byHash[h] = append(s.byHash[h], id)
	return id, nil
}

// find resolves content bytes to an existing atom by walking the hash
// bucket and comparing bytes, resolving collisions.
func (s *Store) find(h uint32, b []byte) (Atom, bool) {
	for _, id := range s.byHash[h] {
		e := s.entries[id-1]
		if e.length != uint32(len(b)) {
			continue
		}
		chunk := s.chunks[e.chunk]
		if string(chunk[e.offset:e.offset+e.length]) == string(b) {
			return id, true
		}
	}
	return 0, false
}

// append writes b into the chunked backing store, rolling over to a new
// chunk if b does not fit in the remaining space of the current one.
func (s *Store) append(b []byte) (chunkIdx int, offset int, err error) {
	if len(b) > chunkSize {
		return 0, 0, storeerr.New(storeerr.InvalidInput, "atom content exceeds chunk size")
	}

	last := len(s.chunks) - 1
	if s.curOff+len(b) > chunkSize {
		s.chunks = append(s.chunks, make([]byte, chunkSize))
		s.curOff = 0
		last++
		log.WithComponent("atom").Debug().Str("store", s.name).Int("chunk", last).Msg("rolled over to new chunk")
	}

	chunk := s.chunks[last]
	copy(chunk[s.curOff:], b)
	offset = s.curOff
	s.curOff += len(b)

	writeAt := int64(last)*chunkSize + int64(offset)
	if _, err := s.dataFile.WriteAt(b, writeAt); err != nil {
		return 0, 0, storeerr.Wrap(storeerr.StorageFull, "append atom content", err)
	}
	return last, offset, nil
}

// Lookup returns the content bytes for id. The returned slice is a borrowed
// view into the in-memory chunk mirror and must not be retained past the
// next call that mutates the store.
func (s *Store) Lookup(id Atom) ([]byte, error) {
	if id == Min || id == Max {
		return nil, storeerr.New(storeerr.InvalidInput, "sentinel atom has no content")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == 0 || int(id) > len(s.entries) {
		return nil, storeerr.New(storeerr.NotFound, "atom not found")
	}
	e := s.entries[id-1]
	if int(e.chunk) >= len(s.chunks) {
		return nil, storeerr.New(storeerr.Corruption, "atom entry points past end of backing store")
	}
	chunk := s.chunks[e.chunk]
	return chunk[e.offset : e.offset+e.length], nil
}

// IDOf performs a read-only lookup, returning ok=false if b was never
// interned (used by queries to resolve bound terms without interning them).
func (s *Store) IDOf(b []byte) (Atom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(hash(b), b)
}

// Stats reports the number of interned atoms and the bytes consumed by the
// backing store, feeding Store.Statistics() at the top-level API.
type Stats struct {
	Count int
	Bytes int64
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Count: len(s.entries),
		Bytes: int64(len(s.chunks)-1)*chunkSize + int64(s.curOff),
	}
}

// Close flushes and closes the companion files.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dataFile.Sync(); err != nil {
		return fmt.Errorf("sync atom data file: %w", err)
	}
	if err := s.idxFile.Sync(); err != nil {
		return fmt.Errorf("sync atom index file: %w", err)
	}
	if err := s.dataFile.Close(); err != nil {
		return fmt.Errorf("close atom data file: %w", err)
	}
	return s.idxFile.Close()
}
