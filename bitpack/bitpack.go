// Package bitpack packs puzzle configurations into fixed-width fingerprints.
//
// A Layout is built once, at configuration time, from the widths the puzzle
// needs (derived from its dimensions). All shifting and masking lives here;
// puzzles only name fields.
package bitpack

import (
	"errors"
	"fmt"
	"math/bits"

	"tilesolver/types"
)

var (
	ErrTooWide    = errors.New("bitpack: layout exceeds fingerprint width")
	ErrFieldWidth = errors.New("bitpack: field width must be positive")
)

// Field is a contiguous run of bits inside a fingerprint.
type Field struct {
	Offset int
	Width  int
}

// Layout is an ordered list of fields packed from bit 0 upward.
type Layout struct {
	fields []Field
	bits   int
}

// BitsFor returns the width needed to store values in [0, n).
func BitsFor(n int) int {
	if n <= 1 {
		return 1
	}
	return bits.Len(uint(n - 1))
}

// NewLayout places fields of the given widths back to back. Widths over 64
// are allowed and are addressed bit by bit (bitmaps).
func NewLayout(widths ...int) (*Layout, error) {
	l := &Layout{fields: make([]Field, 0, len(widths))}
	for _, w := range widths {
		if w <= 0 {
			return nil, ErrFieldWidth
		}
		l.fields = append(l.fields, Field{Offset: l.bits, Width: w})
		l.bits += w
	}
	if l.bits > types.FingerprintBits {
		return nil, fmt.Errorf("%w: %d > %d bits", ErrTooWide, l.bits, types.FingerprintBits)
	}
	return l, nil
}

// Bits is the total number of bits used.
func (l *Layout) Bits() int { return l.bits }

// Field returns the placement of field i.
func (l *Layout) Field(i int) Field { return l.fields[i] }

// Put stores v in scalar field i (width ≤ 64). Bits of v above the field
// width are discarded.
func (l *Layout) Put(fp *types.Fingerprint, i int, v uint64) {
	f := l.fields[i]
	if f.Width < 64 {
		v &= 1<<f.Width - 1
	}
	word, shift := f.Offset>>6, f.Offset&63
	lo := v << shift
	mask := lowMask(f.Width) << shift
	fp[word] = fp[word]&^mask | lo
	if shift+f.Width > 64 {
		spill := shift + f.Width - 64
		fp[word+1] = fp[word+1]&^lowMask(spill) | v>>(64-shift)
	}
}

// Get reads scalar field i (width ≤ 64).
func (l *Layout) Get(fp types.Fingerprint, i int) uint64 {
	f := l.fields[i]
	word, shift := f.Offset>>6, f.Offset&63
	v := fp[word] >> shift
	if shift+f.Width > 64 {
		v |= fp[word+1] << (64 - shift)
	}
	return v & lowMask(f.Width)
}

// SetBit sets or clears bit n of field i.
func (l *Layout) SetBit(fp *types.Fingerprint, i, n int, on bool) {
	pos := l.fields[i].Offset + n
	if on {
		fp[pos>>6] |= 1 << (pos & 63)
	} else {
		fp[pos>>6] &^= 1 << (pos & 63)
	}
}

// Bit reports bit n of field i.
func (l *Layout) Bit(fp types.Fingerprint, i, n int) bool {
	pos := l.fields[i].Offset + n
	return fp[pos>>6]&(1<<(pos&63)) != 0
}

func lowMask(w int) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return 1<<w - 1
}
