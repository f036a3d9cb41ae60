// Package gridwalk is the reference puzzle: a mover on a walled grid who
// walks freely for a few tiles, then moves or pushes a block one tile, and
// wins by stepping onto a goal tile.
//
// Level files are ASCII art:
//
//	#  wall
//	.  floor (a space is floor too)
//	G  goal
//	@  mover start (on floor)
//	B  block (on floor)
//
// Short rows are padded with wall.
package gridwalk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	ErrEmptyLevel = errors.New("gridwalk: empty level")
	ErrLevelSize  = errors.New("gridwalk: level too large")
	ErrMover      = errors.New("gridwalk: level needs exactly one mover")
	ErrNoGoal     = errors.New("gridwalk: level has no goal")
	ErrBadTile    = errors.New("gridwalk: unknown tile")
)

// MaxSide bounds both level dimensions.
const MaxSide = 64

// cells is a bitmap over the tiles of a level, bit y*W+x.
type cells [4]uint64

func (c *cells) set(i int)     { c[i>>6] |= 1 << (i & 63) }
func (c *cells) clear(i int)   { c[i>>6] &^= 1 << (i & 63) }
func (c cells) has(i int) bool { return c[i>>6]&(1<<(i&63)) != 0 }

// Level is a parsed, immutable level.
type Level struct {
	W, H  int
	walls cells
	goals cells
	start State
}

// Parse reads a level.
func Parse(r io.Reader) (*Level, error) {
	var rows []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		rows = append(rows, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("gridwalk: read level: %w", err)
	}
	for len(rows) > 0 && strings.TrimSpace(rows[len(rows)-1]) == "" {
		rows = rows[:len(rows)-1]
	}
	if len(rows) == 0 {
		return nil, ErrEmptyLevel
	}

	l := &Level{H: len(rows)}
	for _, row := range rows {
		l.W = max(l.W, len(row))
	}
	if l.W > MaxSide || l.H > MaxSide || l.W*l.H > len(cells{})*64 {
		return nil, fmt.Errorf("%w: %dx%d", ErrLevelSize, l.W, l.H)
	}

	movers, goals := 0, 0
	for y, row := range rows {
		for x := 0; x < l.W; x++ {
			i := y*l.W + x
			if x >= len(row) {
				l.walls.set(i)
				continue
			}
			switch row[x] {
			case '#':
				l.walls.set(i)
			case '.', ' ':
			case 'G':
				l.goals.set(i)
				goals++
			case '@':
				l.start.X, l.start.Y = x, y
				movers++
			case 'B':
				l.start.Blocks.set(i)
			default:
				return nil, fmt.Errorf("%w: %q at (%d,%d)", ErrBadTile, row[x], x, y)
			}
		}
	}
	if movers != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrMover, movers)
	}
	if goals == 0 {
		return nil, ErrNoGoal
	}
	return l, nil
}

// ParseString parses a level held in a string.
func ParseString(s string) (*Level, error) { return Parse(strings.NewReader(s)) }

// LoadFile parses the level file at path.
func LoadFile(path string) (*Level, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gridwalk: open level: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Start is the initial state.
func (l *Level) Start() State { return l.start }

func (l *Level) index(x, y int) int { return y*l.W + x }

func (l *Level) inside(x, y int) bool { return x >= 0 && y >= 0 && x < l.W && y < l.H }

// open reports a tile the mover or a block may enter: inside, no wall, no
// block.
func (l *Level) open(s *State, x, y int) bool {
	if !l.inside(x, y) {
		return false
	}
	i := l.index(x, y)
	return !l.walls.has(i) && !s.Blocks.has(i)
}
