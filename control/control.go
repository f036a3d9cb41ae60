// control.go - Stop signalling shared by the search workers
// ============================================================================
// SEARCH CONTROL
// ============================================================================
//
// Control package provides the coordination primitives the search workers
// share: a stop flag, the trim rendezvous (rendezvous.go) and the
// idle-detecting work stack (stack.go).
//
// Architecture overview:
//   • Flag: lock-free one-way stop signal polled between nodes
//   • Rendezvous: "everybody stops, one worker trims, everybody resumes"
//   • Stack: shared LIFO whose last idle popper ends the phase
//
// Threading model:
//   • Every primitive is owned by one search engine; there is no global state
//   • Workers poll Flag once per node, so a stop takes effect within one node

package control

import "sync/atomic"

// ============================================================================
// STOP FLAG
// ============================================================================

// Flag is a one-way signal. The zero value is unset.
type Flag struct {
	v atomic.Bool
}

// Set raises the flag. Further calls are no-ops.
//
//go:nosplit
//go:inline
func (f *Flag) Set() {
	f.v.Store(true)
}

// IsSet reports whether Set has been called since the last Clear.
//
//go:nosplit
//go:inline
func (f *Flag) IsSet() bool {
	return f.v.Load()
}

// Clear lowers the flag for the next phase.
func (f *Flag) Clear() {
	f.v.Store(false)
}
