// Package temporal implements the bitemporal key model:
// the fixed-width key/metadata encoding shared by every temporal index
// (SPOT/POST/OSPT/TSPO) and the AsOf/Range/AllTime/Current query
// predicates evaluated against decoded entries at enumeration time.
package temporal

import "encoding/binary"

// KeySize is the on-disk width of a bitemporal key: three 32-bit atoms
// plus three 64-bit millisecond-epoch time fields (12 + 24 = 36 bytes).
// See DESIGN.md for the reconciliation of this width against the design
// doc's stated field list.
const KeySize = 36

// MetaSize is the on-disk width of a temporal entry's per-version
// metadata block.
const MetaSize = 16

// Forever is the "open" valid_to sentinel representing an unbounded
// current interval [valid_from, ∞).
const Forever uint64 = ^uint64(0)

// Key is the decoded form of a bitemporal composite key: subject,
// predicate, object atoms followed by the valid-time interval and the
// transaction time the version was recorded. Encoded big-endian so plain
// byte comparison equals the lexicographic SPO-then-interval-then-tx
// ordering every index rotation relies on.
type Key struct {
	Subject, Predicate, Object uint32
	ValidFrom, ValidTo         uint64
	TransactionTime            uint64
}

// Encode writes k into a fresh 36-byte big-endian buffer.
func (k Key) Encode() []byte {
	buf := make([]byte, KeySize)
	k.EncodeInto(buf)
	return buf
}

// EncodeInto writes k into buf, which must be at least KeySize bytes.
func (k Key) EncodeInto(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], k.Subject)
	binary.BigEndian.PutUint32(buf[4:8], k.Predicate)
	binary.BigEndian.PutUint32(buf[8:12], k.Object)
	binary.BigEndian.PutUint64(buf[12:20], k.ValidFrom)
	binary.BigEndian.PutUint64(buf[20:28], k.ValidTo)
	binary.BigEndian.PutUint64(buf[28:36], k.TransactionTime)
}

// DecodeKey reads a 36-byte big-endian bitemporal key.
func DecodeKey(buf []byte) Key {
	return Key{
		Subject:         binary.BigEndian.Uint32(buf[0:4]),
		Predicate:       binary.BigEndian.Uint32(buf[4:8]),
		Object:          binary.BigEndian.Uint32(buf[8:12]),
		ValidFrom:       binary.BigEndian.Uint64(buf[12:20]),
		ValidTo:         binary.BigEndian.Uint64(buf[20:28]),
		TransactionTime: binary.BigEndian.Uint64(buf[28:36]),
	}
}

// SPOPrefix returns the leading 12 bytes of k's encoding: the
// subject/predicate/object atoms alone, used to bound a range scan to
// "every temporal version of this triple" regardless of interval.
func SPOPrefix(subject, predicate, object uint32) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], subject)
	binary.BigEndian.PutUint32(buf[4:8], predicate)
	binary.BigEndian.PutUint32(buf[8:12], object)
	return buf
}

// SPORangeBounds returns the [min, max) key pair bounding every temporal
// version of (subject, predicate, object), regardless of interval or
// transaction time.
func SPORangeBounds(subject, predicate, object uint32) (min, max []byte) {
	lo := Key{Subject: subject, Predicate: predicate, Object: object}
	hi := Key{Subject: subject, Predicate: predicate, Object: object + 1}
	return lo.Encode(), hi.Encode()
}

// Meta is the decoded per-entry metadata stored alongside a temporal
// value: when the version was first recorded, when it was last mutated
// (by a truncation), a monotonically increasing version counter, and the
// tombstone flag queries must respect.
type Meta struct {
	CreatedAt  uint32 // seconds since epoch
	ModifiedAt uint32 // seconds since epoch
	Version    uint32
	Tombstone  bool
}

// Encode writes m into a fresh 16-byte buffer. Metadata is not part of any
// key comparison, so it is encoded little-endian like the page header.
func (m Meta) Encode() []byte {
	buf := make([]byte, MetaSize)
	m.EncodeInto(buf)
	return buf
}

func (m Meta) EncodeInto(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], m.CreatedAt)
	binary.LittleEndian.PutUint32(buf[4:8], m.ModifiedAt)
	binary.LittleEndian.PutUint32(buf[8:12], m.Version)
	if m.Tombstone {
		buf[12] = 1
	} else {
		buf[12] = 0
	}
	buf[13], buf[14], buf[15] = 0, 0, 0
}

// DecodeMeta reads a 16-byte metadata block.
func DecodeMeta(buf []byte) Meta {
	return Meta{
		CreatedAt:  binary.LittleEndian.Uint32(buf[0:4]),
		ModifiedAt: binary.LittleEndian.Uint32(buf[4:8]),
		Version:    binary.LittleEndian.Uint32(buf[8:12]),
		Tombstone:  buf[12] != 0,
	}
}

// SetValidTo rewrites the valid_to field of an encoded key in place,
// preserving every other field — used by the truncation rule to shorten a
// prior version's interval without touching its position in the tree
// (valid_to is not part of the SPO-then-valid_from ordering prefix the key
// is searched and split on, so this never needs a re-insert).
func SetValidTo(keyBuf []byte, validTo uint64) {
	binary.BigEndian.PutUint64(keyBuf[20:28], validTo)
}

// TouchModified stamps modified_at and bumps version on an encoded meta
// block in place, used by the truncation rule.
func TouchModified(metaBuf []byte, modifiedAt uint32) {
	binary.LittleEndian.PutUint32(metaBuf[4:8], modifiedAt)
	v := binary.LittleEndian.Uint32(metaBuf[8:12])
	binary.LittleEndian.PutUint32(metaBuf[8:12], v+1)
}
