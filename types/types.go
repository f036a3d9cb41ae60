package types

import (
	"encoding/binary"
	"errors"

	"tilesolver/utils"
)

// ============================================================================
// NODE INDEX
// ============================================================================

// Index identifies a discovered state transition. Indices are dense and
// handed out in increasing order by the arena; NoIndex is never allocated
// and doubles as the "exhausted" sentinel of every queue.
type Index uint32

// NoIndex is the reserved "no node" value.
const NoIndex Index = 0

// Action is a puzzle-defined action code. The engine never interprets it.
type Action uint8

// ============================================================================
// NODE RECORD
// ============================================================================

// Step is the transition that produced a node from its parent.
//
// Extra counts the elementary walking moves the mover made before Action,
// and (X, Y) is the tile the action was taken from.
type Step struct {
	Action Action
	X, Y   uint16
	Extra  uint16
}

// Moves is the number of elementary moves the step represents.
func (s Step) Moves() int { return int(s.Extra) + 1 }

// Record flags.
const (
	// FlagExpanded marks a node a worker has claimed for expansion. Once set
	// the node's parent, step and frame are frozen.
	FlagExpanded uint8 = 1 << 0

	// flagStored is set on every encoded record so archives can tell a
	// written record from a never-written hole. It never appears in memory.
	flagStored uint8 = 1 << 7
)

// Record is the per-node data kept in the cache and the archive.
//
// Frame is the frame the node is scheduled at: the breadth-first layer in
// BFS mode, the accumulated frame cost in depth-first mode.
type Record struct {
	Parent Index
	Step   Step
	Frame  uint32
	Flags  uint8
}

// Expanded reports whether the node has been claimed for expansion.
func (r Record) Expanded() bool { return r.Flags&FlagExpanded != 0 }

// RecordSize is the fixed encoded size of a Record.
//
// Layout (little-endian):
//
//	0  parent u32
//	4  frame  u32
//	8  x      u16
//	10 y      u16
//	12 extra  u16
//	14 action u8
//	15 flags  u8
const RecordSize = 16

// ErrNoRecord is returned when decoding a slot that was never written.
var ErrNoRecord = errors.New("types: no record stored")

// Encode writes r into b, which must hold RecordSize bytes.
func (r Record) Encode(b []byte) {
	_ = b[RecordSize-1]
	binary.LittleEndian.PutUint32(b[0:], uint32(r.Parent))
	binary.LittleEndian.PutUint32(b[4:], r.Frame)
	binary.LittleEndian.PutUint16(b[8:], r.Step.X)
	binary.LittleEndian.PutUint16(b[10:], r.Step.Y)
	binary.LittleEndian.PutUint16(b[12:], r.Step.Extra)
	b[14] = byte(r.Step.Action)
	b[15] = r.Flags | flagStored
}

// DecodeRecord reads a record written by Encode.
func DecodeRecord(b []byte) (Record, error) {
	_ = b[RecordSize-1]
	if b[15]&flagStored == 0 {
		return Record{}, ErrNoRecord
	}
	return Record{
		Parent: Index(binary.LittleEndian.Uint32(b[0:])),
		Frame:  binary.LittleEndian.Uint32(b[4:]),
		Step: Step{
			X:      binary.LittleEndian.Uint16(b[8:]),
			Y:      binary.LittleEndian.Uint16(b[10:]),
			Extra:  binary.LittleEndian.Uint16(b[12:]),
			Action: Action(b[14]),
		},
		Flags: b[15] &^ flagStored,
	}, nil
}

// ============================================================================
// STATE FINGERPRINT
// ============================================================================

// FingerprintWords is the width of a fingerprint in 64-bit words.
const FingerprintWords = 4

// FingerprintBits is the number of usable fingerprint bits.
const FingerprintBits = FingerprintWords * 64

// Fingerprint is the bit-packed encoding of a full puzzle configuration.
// The engine treats it as an opaque, comparable, totally ordered key.
type Fingerprint [FingerprintWords]uint64

// Hash returns a well-mixed 64-bit hash of the fingerprint.
func (f Fingerprint) Hash() uint64 {
	return utils.Fold64(f[:])
}

// Compare orders fingerprints word by word, most significant word last.
func (f Fingerprint) Compare(g Fingerprint) int {
	for i := FingerprintWords - 1; i >= 0; i-- {
		switch {
		case f[i] < g[i]:
			return -1
		case f[i] > g[i]:
			return 1
		}
	}
	return 0
}

// IsZero reports whether no bit is set.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}
