package search

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilesolver/config"
	"tilesolver/logging"
	"tilesolver/types"
)

// graph is a weighted digraph over small ints. Node 0 is the start; the
// action of a step is its target node.
type graph struct {
	edges map[int][]edge
	goal  int
}

type edge struct {
	to   int
	cost uint32
}

func (g *graph) Initial() int { return 0 }

func (g *graph) Perform(s *int, a types.Action) (uint32, Outcome) {
	for _, e := range g.edges[*s] {
		if e.to == int(a) {
			*s = e.to
			return e.cost, Valid
		}
	}
	return 0, InvalidUnchanged
}

func (g *graph) Compress(s int) types.Fingerprint    { return types.Fingerprint{uint64(s) + 1} }
func (g *graph) Decompress(fp types.Fingerprint) int { return int(fp[0] - 1) }
func (g *graph) IsGoal(s int) bool                   { return s == g.goal }

func (g *graph) Expand(s int, frame uint32, emit func(int, types.Step, uint32)) {
	for _, e := range g.edges[s] {
		emit(e.to, types.Step{Action: types.Action(e.to)}, frame+e.cost)
	}
}

func (g *graph) Replay(s *int, st types.Step) (uint32, error) {
	cost, out := g.Perform(s, st.Action)
	if out != Valid {
		return 0, fmt.Errorf("no edge %d -> %d", *s, st.Action)
	}
	return cost, nil
}

func (g *graph) Render(s int) string              { return fmt.Sprintf("<%d>\n", s) }
func (g *graph) ActionName(a types.Action) string { return fmt.Sprintf("to%d", a) }

// detour reaches 2 expensively first and cheaply through 1 later.
func detour(goal int) *graph {
	return &graph{goal: goal, edges: map[int][]edge{
		0: {{1, 1}, {2, 10}},
		1: {{2, 2}},
		2: {{3, 1}},
	}}
}

// tree is a complete binary tree on n nodes with unit edges.
func tree(n, goal int) *graph {
	g := &graph{goal: goal, edges: map[int][]edge{}}
	for i := 0; i < n; i++ {
		for _, c := range []int{2*i + 1, 2*i + 2} {
			if c < n {
				g.edges[i] = append(g.edges[i], edge{c, 1})
			}
		}
	}
	return g
}

func testConfig(t *testing.T, mode string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.Search.Mode = mode
	cfg.Search.Workers = 2
	cfg.Search.MaxFrame = 64
	cfg.Search.DepthStart = 2
	cfg.Search.DepthStep = 2
	cfg.Search.MaxIterations = 64
	cfg.Search.ReplayCache = 16
	cfg.Nodes.Capacity = 1 << 12
	cfg.Nodes.Shards = 4
	cfg.Nodes.ShardHint = 16
	cfg.Cache.Capacity = 256
	cfg.Cache.Threshold = 192
	cfg.Archive.ClusterSize = 64
	require.NoError(t, cfg.Validate())
	return cfg
}

func run(t *testing.T, cfg config.Config, g *graph) (*Engine[int], Result) {
	t.Helper()
	e, err := New[int](cfg, g, logging.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, e.Close()) })
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	return e, res
}

// -----------------------------------------------------------------------------
// ░░ Breadth-first ░░
// -----------------------------------------------------------------------------

func TestBFSReparentLeavesStaleEntry(t *testing.T) {
	_, res := run(t, testConfig(t, config.ModeBFS), detour(-1))
	assert.False(t, res.Found)
	assert.Equal(t, 4, res.Nodes)
	assert.Equal(t, uint64(1), res.Reparents)
	// Node 2 moved from frame 10 to 3; its frame-10 entry is skipped.
	assert.Equal(t, uint64(1), res.Stale)
}

func TestBFSFindsCheapestPath(t *testing.T) {
	e, res := run(t, testConfig(t, config.ModeBFS), detour(3))
	require.True(t, res.Found)
	assert.Equal(t, uint32(4), res.Frame)

	tr, err := e.Solution(res.Goal)
	require.NoError(t, err)
	require.Len(t, tr.Steps, 3)
	assert.Equal(t, uint32(4), tr.Frames)
	assert.Equal(t, "<0>\n\n1. to1 from (0,0) after 0 walk moves, 1 frames\n<1>\n"+
		"\n2. to2 from (0,0) after 0 walk moves, 2 frames\n<2>\n"+
		"\n3. to3 from (0,0) after 0 walk moves, 1 frames\n<3>\n"+
		"\nTotal moves: 3\nTotal frames: 4\n", tr.Text[len("Start\n"):])
}

func TestBFSRootIsGoal(t *testing.T) {
	e, res := run(t, testConfig(t, config.ModeBFS), detour(0))
	require.True(t, res.Found)
	assert.Equal(t, e.Root(), res.Goal)
	assert.Zero(t, res.Frame)
	assert.Equal(t, 1, res.Frames)

	tr, err := e.Solution(res.Goal)
	require.NoError(t, err)
	assert.Empty(t, tr.Steps)
}

func TestBFSFrameOrderIsFatal(t *testing.T) {
	g := &graph{goal: -1, edges: map[int][]edge{0: {{1, 0}}}}
	e, err := New[int](testConfig(t, config.ModeBFS), g, logging.Discard().Logger)
	require.NoError(t, err)
	defer e.Close()
	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrFrameOrder)
}

func TestBFSFrameLoopEndsAtTopFrame(t *testing.T) {
	cfg := testConfig(t, config.ModeBFS)
	cfg.Search.MaxFrame = math.MaxUint32

	_, res := run(t, cfg, detour(9))
	assert.False(t, res.Found)
	assert.Equal(t, 4, res.Nodes)
}

func TestBFSPrunesBeyondMaxFrame(t *testing.T) {
	cfg := testConfig(t, config.ModeBFS)
	cfg.Search.MaxFrame = 5
	_, res := run(t, cfg, detour(-1))
	// 0 -> 2 at frame 10 is pruned; 2 is still reached through 1.
	assert.Equal(t, uint64(1), res.Pruned)
	assert.Equal(t, 4, res.Nodes)
	assert.Zero(t, res.Reparents)
}

func TestBFSTrimsUnderSmallCache(t *testing.T) {
	for _, policy := range []string{"hashchain", "splay"} {
		for _, queue := range []string{"file", "buffered", "list", "array"} {
			t.Run(policy+"/"+queue, func(t *testing.T) {
				cfg := testConfig(t, config.ModeBFS)
				cfg.Cache.Policy = policy
				cfg.Cache.Capacity = 48
				cfg.Cache.Threshold = 16
				cfg.Queue.Backend = queue

				e, res := run(t, cfg, tree(255, 254))
				require.True(t, res.Found)
				assert.Equal(t, uint32(7), res.Frame)
				assert.Positive(t, res.Trims)
				assert.LessOrEqual(t, e.Cache().Len(), e.Cache().Capacity())

				tr, err := e.Solution(res.Goal)
				require.NoError(t, err)
				assert.Len(t, tr.Steps, 7)
				assert.Contains(t, tr.Text, "<254>\n\nTotal moves: 7\n")
			})
		}
	}
}

// comb is a unit-cost chain 0..length with leaves dead ends hanging off
// every chain node. The goal is the end of the chain.
func comb(length, leaves int) *graph {
	g := &graph{goal: length, edges: map[int][]edge{}}
	for i := 0; i < length; i++ {
		g.edges[i] = append(g.edges[i], edge{i + 1, 1})
		for j := 0; j < leaves; j++ {
			g.edges[i] = append(g.edges[i], edge{1000 + 16*i + j, 1})
		}
	}
	return g
}

func TestSolutionAfterRunEndsOverThreshold(t *testing.T) {
	for _, policy := range []string{"hashchain", "splay"} {
		for leaves := 4; leaves <= 6; leaves++ {
			t.Run(fmt.Sprintf("%s/%d", policy, leaves), func(t *testing.T) {
				cfg := testConfig(t, config.ModeBFS)
				cfg.Search.Workers = 1
				cfg.Cache.Policy = policy
				cfg.Cache.Capacity = 32
				cfg.Cache.Threshold = 20

				e, res := run(t, cfg, comb(20, leaves))
				require.True(t, res.Found)
				assert.Equal(t, uint32(20), res.Frame)
				assert.Positive(t, res.Trims)

				tr, err := e.Solution(res.Goal)
				require.NoError(t, err)
				require.Len(t, tr.Steps, 20)
				for i, st := range tr.Steps {
					assert.Equal(t, types.Action(i+1), st.Action)
				}
				assert.LessOrEqual(t, e.Cache().Len(), e.Cache().Capacity())

				again, err := e.Solution(res.Goal)
				require.NoError(t, err)
				assert.Equal(t, tr.Digest, again.Digest)
			})
		}
	}
}

func TestBFSWithoutReplayCache(t *testing.T) {
	cfg := testConfig(t, config.ModeBFS)
	cfg.Search.ReplayCache = 0
	cfg.Archive.Backend = "badger"
	cfg.Cache.Capacity = 48
	cfg.Cache.Threshold = 16
	_, res := run(t, cfg, tree(127, 100))
	require.True(t, res.Found)
	assert.Equal(t, uint32(6), res.Frame)
}

// -----------------------------------------------------------------------------
// ░░ Depth-first ░░
// -----------------------------------------------------------------------------

func TestDFSReparentsAcrossIterations(t *testing.T) {
	e, res := run(t, testConfig(t, config.ModeDFS), detour(3))
	require.True(t, res.Found)
	assert.Equal(t, uint32(4), res.Frame)
	assert.Equal(t, uint64(1), res.Reparents)
	assert.Equal(t, 2, res.Iterations)
	// Node 2 was parked twice; the second resume entry is stale.
	assert.Equal(t, uint64(1), res.Stale)

	tr, err := e.Solution(res.Goal)
	require.NoError(t, err)
	assert.Len(t, tr.Steps, 3)
	assert.Equal(t, uint32(4), tr.Frames)
}

func TestDFSReachesFixedPointWithoutGoal(t *testing.T) {
	cfg := testConfig(t, config.ModeDFS)
	cfg.Cache.Capacity = 48
	cfg.Cache.Threshold = 16
	_, res := run(t, cfg, tree(63, -1))
	assert.False(t, res.Found)
	assert.Equal(t, 63, res.Nodes)
	// Budgets 2, 4 and 6 cover depths 0..5; the last iteration parks nothing.
	assert.Equal(t, 3, res.Iterations)
	assert.Positive(t, res.Trims)
}

func TestDFSBudgetJumpsToNearestTip(t *testing.T) {
	g := &graph{goal: 2, edges: map[int][]edge{0: {{1, 30}}, 1: {{2, 1}}}}
	_, res := run(t, testConfig(t, config.ModeDFS), g)
	require.True(t, res.Found)
	assert.Equal(t, uint32(31), res.Frame)
	// Budget 2, then straight to 30, then 32.
	assert.Equal(t, 3, res.Iterations)
}

func TestDFSMaxIterations(t *testing.T) {
	cfg := testConfig(t, config.ModeDFS)
	cfg.Search.MaxIterations = 1
	_, res := run(t, cfg, tree(63, 62))
	assert.False(t, res.Found)
	assert.Equal(t, 1, res.Iterations)
}

func TestDFSFinishFileOutlivesClose(t *testing.T) {
	cfg := testConfig(t, config.ModeDFS)
	e, res := run(t, cfg, detour(3))
	require.True(t, res.Found)
	require.NoError(t, e.Close())

	b, err := os.ReadFile(filepath.Join(cfg.QueueDir(), "finish.idx"))
	require.NoError(t, err)
	require.NotEmpty(t, b)
	require.Zero(t, len(b)%4)
	var goals []types.Index
	for i := 0; i < len(b); i += 4 {
		goals = append(goals, types.Index(binary.LittleEndian.Uint32(b[i:])))
	}
	assert.Contains(t, goals, res.Goal)

	tips, err := filepath.Glob(filepath.Join(cfg.QueueDir(), "tip-*.idx"))
	require.NoError(t, err)
	assert.Empty(t, tips)
}

// -----------------------------------------------------------------------------
// ░░ Lifecycle ░░
// -----------------------------------------------------------------------------

func TestNewRejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t, config.ModeBFS)
	cfg.Search.Mode = "astar"
	_, err := New[int](cfg, detour(3), nil)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestRunOnce(t *testing.T) {
	e, _ := run(t, testConfig(t, config.ModeBFS), detour(3))
	_, err := e.Run(context.Background())
	assert.Error(t, err)

	require.NoError(t, e.Close())
	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunHonoursCancel(t *testing.T) {
	e, err := New[int](testConfig(t, config.ModeBFS), tree(255, -1), nil)
	require.NoError(t, err)
	defer e.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// -----------------------------------------------------------------------------
// ░░ Replay cache ░░
// -----------------------------------------------------------------------------

func TestReplayCacheEvictsOldest(t *testing.T) {
	c := newReplayCache(2)
	c.put(1, types.Fingerprint{1})
	c.put(2, types.Fingerprint{2})
	_, ok := c.get(1)
	require.True(t, ok)
	c.put(3, types.Fingerprint{3})

	_, ok = c.get(2)
	assert.False(t, ok)
	fp, ok := c.get(1)
	assert.True(t, ok)
	assert.Equal(t, types.Fingerprint{1}, fp)
	assert.Equal(t, 2, c.len())
	assert.Equal(t, uint64(2), c.hits)
	assert.Equal(t, uint64(1), c.misses)
}

func TestReplayCacheDisabled(t *testing.T) {
	c := newReplayCache(0)
	c.put(1, types.Fingerprint{1})
	_, ok := c.get(1)
	assert.False(t, ok)
	assert.Zero(t, c.len())
}
