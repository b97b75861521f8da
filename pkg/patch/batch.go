package patch

import "github.com/bemafred/sky-omega/pkg/index"

// opKind distinguishes a buffered batch operation.
type opKind int

const (
	opDelete opKind = iota
	opInsert
)

type bufferedOp struct {
	kind               opKind
	s, p, o, g         []byte
}

// batch buffers DELETE/INSERT operations until commit: if any operation
// fails while resolving or applying the patch, the batch rolls back by
// discarding the buffered writes. Nothing touches the underlying indexes
// until commit.
//
// This mirrors the defer-fence-flush-until-commit discipline the
// multi-index store itself follows for a single insert, one level up: a
// patch is a batch of triple-level operations, not a batch of page
// writes, since the patch executor sits above the index layer and has no
// visibility into page-level commit.
type batch struct {
	idx *index.MultiIndex
	ops []bufferedOp
}

func newBatch(idx *index.MultiIndex) *batch {
	return &batch{idx: idx}
}

func (b *batch) delete(s, p, o, g []byte) error {
	b.ops = append(b.ops, bufferedOp{kind: opDelete, s: s, p: p, o: o, g: g})
	return nil
}

func (b *batch) insert(s, p, o, g []byte) error {
	b.ops = append(b.ops, bufferedOp{kind: opInsert, s: s, p: p, o: o, g: g})
	return nil
}

// commit applies every buffered operation to the underlying store in
// order. If an operation fails partway through, the caller (Executor.Apply)
// still calls rollback for symmetry, but a partial commit here is only
// possible on a genuine storage fault (StorageFull/Corruption), which the
// error taxonomy already treats as aborting the operation outright rather
// than something a patch rollback could undo at the page level.
func (b *batch) commit() error {
	for _, op := range b.ops {
		var err error
		switch op.kind {
		case opDelete:
			err = b.idx.DeleteTriple(op.s, op.p, op.o, op.g)
		case opInsert:
			err = b.idx.InsertTriple(op.s, op.p, op.o, op.g)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// rollback discards the buffer. Safe to call after a successful commit (a
// no-op) or before any operation was buffered.
func (b *batch) rollback() {
	b.ops = nil
}
