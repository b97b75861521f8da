package btree

import (
	"encoding/binary"

	"github.com/bemafred/sky-omega/pkg/storeerr"
)

// magic identifies this file format and version. A mismatch (or absence)
// on open means either a fresh file or a foreign/corrupt one.
const magic uint64 = 0x534b595f4f4d4731 // "SKY_OMG1"

// metadataPageID is the reserved page holding the per-tree metadata block,
// always at the start of the file.
const metadataPageID = 0

// metadata is the durable root pointer and allocation state for one tree.
// It is rewritten and fenced last on every commit, so a crash before the
// metadata fence leaves the tree at its previous consistent state.
type metadata struct {
	magic       uint64
	rootPageID  uint64
	nextPageID  uint64
	tripleCount uint64
	atomGen     uint64
}

const metadataSize = 5 * 8

func readMetadata(buf []byte) metadata {
	return metadata{
		magic:       binary.LittleEndian.Uint64(buf[0:8]),
		rootPageID:  binary.LittleEndian.Uint64(buf[8:16]),
		nextPageID:  binary.LittleEndian.Uint64(buf[16:24]),
		tripleCount: binary.LittleEndian.Uint64(buf[24:32]),
		atomGen:     binary.LittleEndian.Uint64(buf[32:40]),
	}
}

func writeMetadata(buf []byte, m metadata) {
	binary.LittleEndian.PutUint64(buf[0:8], m.magic)
	binary.LittleEndian.PutUint64(buf[8:16], m.rootPageID)
	binary.LittleEndian.PutUint64(buf[16:24], m.nextPageID)
	binary.LittleEndian.PutUint64(buf[24:32], m.tripleCount)
	binary.LittleEndian.PutUint64(buf[32:40], m.atomGen)
}

// loadOrInit reads the metadata block for mf, initializing it (magic +
// empty root leaf) if the magic number is absent. If the magic number is
// present, the on-disk metadata is trusted as-is: this is the crash
// recovery path, not a validator.
func loadOrInit(mf *mappedFile, layout Layout) (metadata, error) {
	if err := mf.ensure(metadataPageID); err != nil {
		return metadata{}, err
	}
	buf := mf.slice(metadataPageID)[:metadataSize]
	m := readMetadata(buf)
	if m.magic == magic {
		return m, nil
	}
	if m.magic != 0 {
		return metadata{}, storeerr.New(storeerr.Corruption, "page file magic mismatch")
	}

	// Fresh file: allocate an empty leaf as root at page 1.
	const rootPageID = 1
	if err := mf.ensure(rootPageID); err != nil {
		return metadata{}, err
	}
	root := newPage(mf.slice(rootPageID), layout)
	root.init(rootPageID, true)

	m = metadata{magic: magic, rootPageID: rootPageID, nextPageID: rootPageID + 1}
	writeMetadata(mf.slice(metadataPageID)[:metadataSize], m)
	if err := mf.flush(); err != nil {
		return metadata{}, err
	}
	return m, nil
}
