package gridwalk

import (
	"errors"
	"fmt"
	"strings"

	"tilesolver/bitpack"
	"tilesolver/search"
	"tilesolver/types"
)

// Actions, in expansion order.
const (
	Up types.Action = iota
	Right
	Down
	Left
	numActions
)

var (
	dx = [numActions]int{0, 1, 0, -1}
	dy = [numActions]int{-1, 0, 1, 0}

	actionNames = [numActions]string{"Up", "Right", "Down", "Left"}
)

var (
	ErrTiming = errors.New("gridwalk: move and push delays must be positive")
	ErrReplay = errors.New("gridwalk: step does not apply to state")
)

// fingerprint fields
const (
	fieldX = iota
	fieldY
	fieldBlocks
)

// State is a full configuration: the mover and every block.
type State struct {
	X, Y   int
	Blocks cells
}

// Timing prices actions in frames.
type Timing struct {
	Walk, Move, Push uint32

	// WalkLimit is the farthest the mover walks before an action.
	WalkLimit int
}

// Puzzle implements search.Problem[State] for one level.
type Puzzle struct {
	lvl    *Level
	t      Timing
	layout *bitpack.Layout
}

var _ search.Problem[State] = (*Puzzle)(nil)

// New binds a level to its timing and derives the fingerprint layout from
// the level dimensions.
func New(lvl *Level, t Timing) (*Puzzle, error) {
	if t.Move == 0 || t.Push == 0 {
		return nil, ErrTiming
	}
	t.WalkLimit = max(t.WalkLimit, 0)
	layout, err := bitpack.NewLayout(bitpack.BitsFor(lvl.W), bitpack.BitsFor(lvl.H), lvl.W*lvl.H)
	if err != nil {
		return nil, fmt.Errorf("gridwalk: %dx%d level: %w", lvl.W, lvl.H, err)
	}
	return &Puzzle{lvl: lvl, t: t, layout: layout}, nil
}

// Level returns the bound level.
func (p *Puzzle) Level() *Level { return p.lvl }

func (p *Puzzle) Initial() State { return p.lvl.start }

// Perform moves the mover one tile in direction a, pushing a block ahead
// of it when the tile beyond the block is open.
func (p *Puzzle) Perform(s *State, a types.Action) (uint32, search.Outcome) {
	if a >= numActions {
		return 0, search.InvalidUnchanged
	}
	l := p.lvl
	nx, ny := s.X+dx[a], s.Y+dy[a]
	if !l.inside(nx, ny) || l.walls.has(l.index(nx, ny)) {
		return 0, search.InvalidUnchanged
	}
	i := l.index(nx, ny)
	if !s.Blocks.has(i) {
		s.X, s.Y = nx, ny
		return p.t.Move, search.Valid
	}
	bx, by := nx+dx[a], ny+dy[a]
	if !l.open(s, bx, by) {
		return 0, search.InvalidUnchanged
	}
	s.Blocks.clear(i)
	s.Blocks.set(l.index(bx, by))
	s.X, s.Y = nx, ny
	return p.t.Push, search.Valid
}

func (p *Puzzle) Compress(s State) types.Fingerprint {
	var fp types.Fingerprint
	p.layout.Put(&fp, fieldX, uint64(s.X))
	p.layout.Put(&fp, fieldY, uint64(s.Y))
	for i := 0; i < p.lvl.W*p.lvl.H; i++ {
		if s.Blocks.has(i) {
			p.layout.SetBit(&fp, fieldBlocks, i, true)
		}
	}
	return fp
}

func (p *Puzzle) Decompress(fp types.Fingerprint) State {
	s := State{
		X: int(p.layout.Get(fp, fieldX)),
		Y: int(p.layout.Get(fp, fieldY)),
	}
	for i := 0; i < p.lvl.W*p.lvl.H; i++ {
		if p.layout.Bit(fp, fieldBlocks, i) {
			s.Blocks.set(i)
		}
	}
	return s
}

// IsGoal reports the mover standing on a goal tile.
func (p *Puzzle) IsGoal(s State) bool {
	return p.lvl.goals.has(p.lvl.index(s.X, s.Y))
}

type reach struct {
	x, y, d int
}

// walk lists the tiles the mover reaches on plain floor within the walk
// limit, nearest first, starting with its own tile. Goal tiles are never
// walked onto: entering one is always an action.
func (p *Puzzle) walk(s State) []reach {
	l := p.lvl
	seen := cells{}
	seen.set(l.index(s.X, s.Y))
	out := []reach{{s.X, s.Y, 0}}
	for head := 0; head < len(out); head++ {
		r := out[head]
		if r.d == p.t.WalkLimit {
			continue
		}
		for a := range numActions {
			nx, ny := r.x+dx[a], r.y+dy[a]
			if !l.open(&s, nx, ny) {
				continue
			}
			i := l.index(nx, ny)
			if seen.has(i) || l.goals.has(i) {
				continue
			}
			seen.set(i)
			out = append(out, reach{nx, ny, r.d + 1})
		}
	}
	return out
}

// Expand emits, for every walkable tile and direction, the state after
// walking there and acting. Frames grow by the walk plus the action cost.
func (p *Puzzle) Expand(s State, frame uint32, emit func(child State, step types.Step, frame uint32)) {
	for _, r := range p.walk(s) {
		for a := range numActions {
			child := s
			child.X, child.Y = r.x, r.y
			cost, out := p.Perform(&child, a)
			if out != search.Valid {
				continue
			}
			step := types.Step{Action: a, X: uint16(r.x), Y: uint16(r.y), Extra: uint16(r.d)}
			emit(child, step, frame+uint32(r.d)*p.t.Walk+cost)
		}
	}
}

// Replay walks to the step's tile, checking the walk length, and performs
// its action.
func (p *Puzzle) Replay(s *State, step types.Step) (uint32, error) {
	x, y := int(step.X), int(step.Y)
	d := -1
	for _, r := range p.walk(*s) {
		if r.x == x && r.y == y {
			d = r.d
			break
		}
	}
	if d != int(step.Extra) {
		return 0, fmt.Errorf("%w: (%d,%d) is %d walk moves away, step says %d", ErrReplay, x, y, d, step.Extra)
	}
	s.X, s.Y = x, y
	cost, out := p.Perform(s, step.Action)
	if out != search.Valid {
		return 0, fmt.Errorf("%w: %s from (%d,%d) is %s", ErrReplay, p.ActionName(step.Action), x, y, out)
	}
	return uint32(d)*p.t.Walk + cost, nil
}

// Render draws s one row per line; '+' is the mover on a goal.
func (p *Puzzle) Render(s State) string {
	l := p.lvl
	var b strings.Builder
	b.Grow((l.W + 1) * l.H)
	for y := 0; y < l.H; y++ {
		for x := 0; x < l.W; x++ {
			i := l.index(x, y)
			mover := x == s.X && y == s.Y
			switch {
			case mover && l.goals.has(i):
				b.WriteByte('+')
			case mover:
				b.WriteByte('@')
			case l.walls.has(i):
				b.WriteByte('#')
			case s.Blocks.has(i):
				b.WriteByte('B')
			case l.goals.has(i):
				b.WriteByte('G')
			default:
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (p *Puzzle) ActionName(a types.Action) string {
	if a < numActions {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", a)
}
