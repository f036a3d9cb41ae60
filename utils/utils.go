// Package utils holds the small bit-twiddling helpers shared by the index
// tables and the node fingerprints.
package utils

import "math/bits"

///////////////////////////////////////////////////////////////////////////////
// Fingerprint Hashing
///////////////////////////////////////////////////////////////////////////////

// Mix64 is the 64-bit finalizer from MurmurHash3. Zero maps to zero.
//
//go:nosplit
//go:inline
func Mix64(v uint64) uint64 {
	v = (v ^ v>>33) * 0xff51afd7ed558ccd
	v = (v ^ v>>33) * 0xc4ceb9fe1a85ec53
	return v ^ v>>33
}

// Fold64 hashes a packed fingerprint word by word. Word order matters.
//
//go:nosplit
//go:inline
func Fold64(words []uint64) uint64 {
	h := uint64(0x9E3779B185EBCA87)
	for _, w := range words {
		h ^= Mix64(w + h)
		h = h<<27 | h>>37
	}
	return Mix64(h)
}

///////////////////////////////////////////////////////////////////////////////
// Table Sizing
///////////////////////////////////////////////////////////////////////////////

// NextPow2 rounds n up to a power of two, with a floor of 1, so that a slot
// or shard can be picked with a mask.
//
//go:nosplit
//go:inline
func NextPow2(n int) uint32 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len32(uint32(n-1))
}
