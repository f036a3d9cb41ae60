package search

import "tilesolver/types"

// Outcome classifies an attempted action.
type Outcome uint8

const (
	// Valid: the action was performed.
	Valid Outcome = iota
	// InvalidUnchanged: the action is not possible and the state is untouched.
	InvalidUnchanged
	// InvalidChanged: the action is not possible but the state was modified
	// and must be discarded.
	InvalidChanged
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case InvalidUnchanged:
		return "invalid"
	case InvalidChanged:
		return "invalid-changed"
	}
	return "unknown"
}

// Problem is everything the engine needs to know about a puzzle. S is the
// puzzle's full in-memory state; the engine only ever stores its
// fingerprint and the steps between states.
type Problem[S any] interface {
	// Initial returns the start state.
	Initial() S

	// Perform applies action a to s and returns its frame cost.
	Perform(s *S, a types.Action) (uint32, Outcome)

	// Compress packs s into a fingerprint; Decompress inverts it exactly.
	Compress(s S) types.Fingerprint
	Decompress(fp types.Fingerprint) S

	// IsGoal reports whether s solves the puzzle.
	IsGoal(s S) bool

	// Expand emits every successor of s, which sits at frame, with the step
	// that produces it and the successor's frame. Successor frames must be
	// strictly greater than frame.
	Expand(s S, frame uint32, emit func(child S, step types.Step, frame uint32))

	// Replay re-applies a recorded step to s and returns its frame cost.
	Replay(s *S, step types.Step) (uint32, error)

	// Render draws s for transcripts.
	Render(s S) string

	// ActionName names an action code for transcripts.
	ActionName(a types.Action) string
}
