// Package solution turns a goal node back into the moves that reach it.
//
// Trace walks parent links from the goal to the root; Build replays the
// resulting steps from the initial state and renders a transcript.
package solution

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"

	"tilesolver/types"
)

var (
	ErrNoGoal      = errors.New("solution: no goal node")
	ErrChainLength = errors.New("solution: parent chain longer than the node count")
)

// RecordReader resolves node records. The search cache satisfies it.
type RecordReader interface {
	Get(idx types.Index) (types.Record, error)
}

// Replayer is the part of a puzzle a transcript needs.
type Replayer[S any] interface {
	Initial() S
	Replay(s *S, step types.Step) (uint32, error)
	Render(s S) string
	ActionName(a types.Action) string
}

// Transcript is a rendered solution.
type Transcript struct {
	Text   string
	Steps  []types.Step
	Moves  int
	Frames uint32
	Digest [32]byte
}

// Trace returns the steps from the root to goal in play order. limit bounds
// the walk; a chain longer than the number of allocated nodes is a cycle.
func Trace(r RecordReader, goal types.Index, limit int) ([]types.Step, error) {
	if goal == types.NoIndex {
		return nil, ErrNoGoal
	}
	var steps []types.Step
	for idx := goal; ; {
		rec, err := r.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("solution: trace node %d: %w", idx, err)
		}
		if rec.Parent == types.NoIndex {
			break
		}
		if len(steps) >= limit {
			return nil, fmt.Errorf("%w: %d", ErrChainLength, limit)
		}
		steps = append(steps, rec.Step)
		idx = rec.Parent
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps, nil
}

// Build replays steps from p's initial state and renders the transcript.
func Build[S any](p Replayer[S], steps []types.Step) (*Transcript, error) {
	var b strings.Builder
	s := p.Initial()
	t := &Transcript{Steps: steps}

	b.WriteString("Start\n")
	b.WriteString(p.Render(s))
	for i, st := range steps {
		cost, err := p.Replay(&s, st)
		if err != nil {
			return nil, fmt.Errorf("solution: replay step %d: %w", i+1, err)
		}
		t.Moves += st.Moves()
		t.Frames += cost
		fmt.Fprintf(&b, "\n%d. %s from (%d,%d) after %d walk moves, %d frames\n",
			i+1, p.ActionName(st.Action), st.X, st.Y, st.Extra, cost)
		b.WriteString(p.Render(s))
	}
	fmt.Fprintf(&b, "\nTotal moves: %d\nTotal frames: %d\n", t.Moves, t.Frames)

	t.Text = b.String()
	t.Digest = blake2b.Sum256([]byte(t.Text))
	return t, nil
}

// DigestHex is the transcript digest in hex.
func (t *Transcript) DigestHex() string { return hex.EncodeToString(t.Digest[:]) }

// WriteTo writes the transcript followed by its digest line.
func (t *Transcript) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, t.Text)
	if err != nil {
		return int64(n), err
	}
	m, err := fmt.Fprintf(w, "Digest: %s\n", t.DigestHex())
	return int64(n + m), err
}
