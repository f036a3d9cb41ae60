package gridwalk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilesolver/bitpack"
	"tilesolver/search"
	"tilesolver/types"
)

const corridor = `
#######
#@.B..#
#.....#
#....G#
#######
`

var timing = Timing{Walk: 1, Move: 4, Push: 8, WalkLimit: 16}

func mustPuzzle(t *testing.T, level string, tm Timing) *Puzzle {
	t.Helper()
	lvl, err := ParseString(level)
	require.NoError(t, err)
	p, err := New(lvl, tm)
	require.NoError(t, err)
	return p
}

type child struct {
	s     State
	step  types.Step
	frame uint32
}

func expandAll(p *Puzzle, s State, frame uint32) []child {
	var out []child
	p.Expand(s, frame, func(c State, st types.Step, f uint32) {
		out = append(out, child{c, st, f})
	})
	return out
}

// -----------------------------------------------------------------------------
// ░░ Parsing ░░
// -----------------------------------------------------------------------------

func TestParse(t *testing.T) {
	lvl, err := ParseString(corridor)
	require.NoError(t, err)
	// The leading blank line is a row of padding wall.
	assert.Equal(t, 7, lvl.W)
	assert.Equal(t, 6, lvl.H)
	assert.Equal(t, 1, lvl.Start().X)
	assert.Equal(t, 2, lvl.Start().Y)
	assert.True(t, lvl.start.Blocks.has(lvl.index(3, 2)))
	assert.True(t, lvl.goals.has(lvl.index(5, 4)))
	assert.True(t, lvl.walls.has(lvl.index(0, 0)))
}

func TestParseErrors(t *testing.T) {
	cases := map[string]struct {
		level string
		err   error
	}{
		"empty":      {"\n\n", ErrEmptyLevel},
		"no mover":   {"#.G#", ErrMover},
		"two movers": {"#@@G#", ErrMover},
		"no goal":    {"#@.#", ErrNoGoal},
		"bad tile":   {"#@x G#", ErrBadTile},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseString(tc.level)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.txt")
	require.NoError(t, os.WriteFile(path, []byte(corridor), 0o600))
	lvl, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, lvl.W)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestNewRejects(t *testing.T) {
	lvl, err := ParseString(corridor)
	require.NoError(t, err)
	_, err = New(lvl, Timing{Walk: 1, Move: 0, Push: 1})
	assert.ErrorIs(t, err, ErrTiming)

	// 16x16 tiles fill the fingerprint before the mover coordinates.
	wide := make([]byte, 0, 17*16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			switch {
			case x == 1 && y == 1:
				wide = append(wide, '@')
			case x == 2 && y == 1:
				wide = append(wide, 'G')
			default:
				wide = append(wide, '.')
			}
		}
		wide = append(wide, '\n')
	}
	lvl, err = ParseString(string(wide))
	require.NoError(t, err)
	_, err = New(lvl, timing)
	assert.ErrorIs(t, err, bitpack.ErrTooWide)
}

// -----------------------------------------------------------------------------
// ░░ Rules ░░
// -----------------------------------------------------------------------------

func TestPerform(t *testing.T) {
	p := mustPuzzle(t, corridor, timing)
	s := p.Initial()

	cost, out := p.Perform(&s, Up)
	assert.Equal(t, search.InvalidUnchanged, out)
	assert.Zero(t, cost)
	assert.Equal(t, p.Initial(), s)

	cost, out = p.Perform(&s, Right)
	require.Equal(t, search.Valid, out)
	assert.Equal(t, timing.Move, cost)
	assert.Equal(t, 2, s.X)

	// Push the block from (3,2) to (4,2).
	cost, out = p.Perform(&s, Right)
	require.Equal(t, search.Valid, out)
	assert.Equal(t, timing.Push, cost)
	assert.Equal(t, 3, s.X)
	assert.False(t, s.Blocks.has(p.lvl.index(3, 2)))
	assert.True(t, s.Blocks.has(p.lvl.index(4, 2)))

	// Push again into (5,2); a third push would hit the wall.
	_, out = p.Perform(&s, Right)
	require.Equal(t, search.Valid, out)
	_, out = p.Perform(&s, Right)
	assert.Equal(t, search.InvalidUnchanged, out)
	assert.Equal(t, 4, s.X)
}

func TestCompressRoundTrip(t *testing.T) {
	p := mustPuzzle(t, corridor, timing)
	s := p.Initial()
	fp := p.Compress(s)
	assert.Equal(t, s, p.Decompress(fp))

	_, _ = p.Perform(&s, Right)
	_, _ = p.Perform(&s, Right)
	fp2 := p.Compress(s)
	assert.NotEqual(t, fp, fp2)
	assert.Equal(t, s, p.Decompress(fp2))
}

func TestExpandFramesAndSteps(t *testing.T) {
	p := mustPuzzle(t, corridor, timing)
	kids := expandAll(p, p.Initial(), 10)
	require.NotEmpty(t, kids)

	for _, k := range kids {
		assert.Greater(t, k.frame, uint32(10))
		s := p.Initial()
		cost, err := p.Replay(&s, k.step)
		require.NoError(t, err)
		assert.Equal(t, k.s, s)
		assert.Equal(t, k.frame-10, cost)
	}

	// The first children act from the start tile with no walk.
	assert.Equal(t, uint16(0), kids[0].step.Extra)
	assert.Equal(t, uint16(1), kids[0].step.X)
}

func TestWalkLimit(t *testing.T) {
	p := mustPuzzle(t, corridor, Timing{Walk: 1, Move: 4, Push: 8})
	for _, k := range expandAll(p, p.Initial(), 0) {
		assert.Zero(t, k.step.Extra)
		assert.Equal(t, uint16(1), k.step.X)
		assert.Equal(t, uint16(2), k.step.Y)
	}
}

func TestWalkNeverEntersGoal(t *testing.T) {
	p := mustPuzzle(t, "#####\n#@G.#\n#####\n", timing)
	for _, r := range p.walk(p.Initial()) {
		assert.False(t, p.lvl.goals.has(p.lvl.index(r.x, r.y)))
	}
	kids := expandAll(p, p.Initial(), 0)
	require.Len(t, kids, 1)
	assert.True(t, p.IsGoal(kids[0].s))
	assert.Equal(t, timing.Move, kids[0].frame)
}

func TestReplayRejectsWrongWalk(t *testing.T) {
	p := mustPuzzle(t, corridor, timing)
	s := p.Initial()
	_, err := p.Replay(&s, types.Step{Action: Down, X: 2, Y: 2, Extra: 3})
	assert.ErrorIs(t, err, ErrReplay)

	s = p.Initial()
	_, err = p.Replay(&s, types.Step{Action: Up, X: 1, Y: 2})
	assert.ErrorIs(t, err, ErrReplay)
}

func TestRender(t *testing.T) {
	p := mustPuzzle(t, "#####\n#@GB#\n#####\n", timing)
	assert.Equal(t, "#####\n#@GB#\n#####\n", p.Render(p.Initial()))

	s := p.Initial()
	_, _ = p.Perform(&s, Right)
	assert.Equal(t, "#####\n#.+B#\n#####\n", p.Render(s))
	assert.Equal(t, "Left", p.ActionName(Left))
	assert.Equal(t, "Action(9)", p.ActionName(9))
}
