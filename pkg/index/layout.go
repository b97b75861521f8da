// Package index implements the Multi-Index Store and the
// named-graph/quad layer: it owns the SPO/POS/OSP (plus
// SPOT/POST/OSPT/TSPO when temporal) B+Trees, picks the right one for a
// given bound-variable pattern, and builds the contiguous byte range that
// brackets the matching entries in whichever rotation it selected.
package index

import "encoding/binary"

// DefaultGraph is the reserved graph atom naming the unnamed default graph.
const DefaultGraph uint32 = 0

// Named graphs are implemented as a single tree with an extra 4-byte graph
// field prefixed to the composite key, rather than one tree per graph —
// named graphs are expected to be numerous and small, and a per-graph tree
// would mean a per-graph mmap file and page cache, which does not scale
// the way a quad-prefixed key does.

// component identifies one field of a composite index key, so the seven
// index rotations (SPO, POS, OSP, SPOT, POST, OSPT, TSPO) can share one
// encode/decode routine instead of seven hand-written ones.
type component int

const (
	compGraph component = iota
	compSubject
	compPredicate
	compObject
	compValidFrom
	compValidTo
	compTxTime
)

func (c component) width() int {
	switch c {
	case compGraph, compSubject, compPredicate, compObject:
		return 4
	default:
		return 8
	}
}

func orderWidth(order []component) int {
	n := 0
	for _, c := range order {
		n += c.width()
	}
	return n
}

// quadFields bundles the values a composite key might be built from or
// decoded into. Non-temporal rotations only use Graph/Subject/Predicate/
// Object; temporal rotations use all seven.
type quadFields struct {
	Graph, Subject, Predicate, Object uint32
	ValidFrom, ValidTo, TxTime        uint64
}

func encodeComposite(order []component, f quadFields) []byte {
	buf := make([]byte, orderWidth(order))
	off := 0
	for _, c := range order {
		switch c {
		case compGraph:
			binary.BigEndian.PutUint32(buf[off:off+4], f.Graph)
		case compSubject:
			binary.BigEndian.PutUint32(buf[off:off+4], f.Subject)
		case compPredicate:
			binary.BigEndian.PutUint32(buf[off:off+4], f.Predicate)
		case compObject:
			binary.BigEndian.PutUint32(buf[off:off+4], f.Object)
		case compValidFrom:
			binary.BigEndian.PutUint64(buf[off:off+8], f.ValidFrom)
		case compValidTo:
			binary.BigEndian.PutUint64(buf[off:off+8], f.ValidTo)
		case compTxTime:
			binary.BigEndian.PutUint64(buf[off:off+8], f.TxTime)
		}
		off += c.width()
	}
	return buf
}

func decodeComposite(order []component, buf []byte) quadFields {
	var f quadFields
	off := 0
	for _, c := range order {
		switch c {
		case compGraph:
			f.Graph = binary.BigEndian.Uint32(buf[off : off+4])
		case compSubject:
			f.Subject = binary.BigEndian.Uint32(buf[off : off+4])
		case compPredicate:
			f.Predicate = binary.BigEndian.Uint32(buf[off : off+4])
		case compObject:
			f.Object = binary.BigEndian.Uint32(buf[off : off+4])
		case compValidFrom:
			f.ValidFrom = binary.BigEndian.Uint64(buf[off : off+8])
		case compValidTo:
			f.ValidTo = binary.BigEndian.Uint64(buf[off : off+8])
		case compTxTime:
			f.TxTime = binary.BigEndian.Uint64(buf[off : off+8])
		}
		off += c.width()
	}
	return f
}

// Index rotations, one per bound-variable pattern class. Each non-temporal
// order is 16 bytes (graph + 3 atoms); each temporal order is 40 bytes
// (graph + 3 atoms + 3 time fields).
var (
	orderSPO = []component{compGraph, compSubject, compPredicate, compObject}
	orderPOS = []component{compGraph, compPredicate, compObject, compSubject}
	orderOSP = []component{compGraph, compObject, compSubject, compPredicate}

	orderSPOT = []component{compGraph, compSubject, compPredicate, compObject, compValidFrom, compValidTo, compTxTime}
	orderPOST = []component{compGraph, compPredicate, compObject, compSubject, compValidFrom, compValidTo, compTxTime}
	orderOSPT = []component{compGraph, compObject, compSubject, compPredicate, compValidFrom, compValidTo, compTxTime}
	orderTSPO = []component{compGraph, compValidFrom, compSubject, compPredicate, compObject, compValidTo, compTxTime}
)

const (
	nonTemporalKeySize = 16
	temporalKeySize    = 40
)
