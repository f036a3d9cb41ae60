package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilesolver/archive"
	"tilesolver/types"
)

var policies = []Policy{PolicyHashChain, PolicySplay}

func newCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	store, err := archive.OpenFile(t.TempDir(), 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	c, err := New(cfg, store)
	require.NoError(t, err)
	return c
}

func rec(i int) types.Record {
	return types.Record{
		Parent: types.Index(i / 2),
		Frame:  uint32(i),
		Step:   types.Step{Action: types.Action(i % 4), X: uint16(i), Y: uint16(2 * i)},
	}
}

// -----------------------------------------------------------------------------
// ░░ Construction ░░
// -----------------------------------------------------------------------------

func TestNewRejectsBadConfig(t *testing.T) {
	store, err := archive.OpenFile(t.TempDir(), 16)
	require.NoError(t, err)
	defer store.Close()

	_, err = New(Config{Capacity: 1}, store)
	assert.ErrorIs(t, err, ErrBadConfig)

	_, err = New(Config{Capacity: 8, Threshold: 8}, store)
	assert.ErrorIs(t, err, ErrBadConfig)

	_, err = New(Config{Capacity: 8, Policy: "clock"}, store)
	assert.ErrorIs(t, err, ErrUnknownPolicy)

	c, err := New(Config{Capacity: 8}, store)
	require.NoError(t, err)
	assert.Equal(t, 6, c.Threshold())
	assert.Equal(t, 8, c.Capacity())
}

// -----------------------------------------------------------------------------
// ░░ Create / Get / Modify ░░
// -----------------------------------------------------------------------------

func TestCreateGet(t *testing.T) {
	for _, p := range policies {
		t.Run(string(p), func(t *testing.T) {
			c := newCache(t, Config{Policy: p, Capacity: 32})
			for i := 1; i <= 10; i++ {
				require.NoError(t, c.Create(types.Index(i), rec(i)))
			}
			assert.Equal(t, 10, c.Len())
			for i := 10; i >= 1; i-- {
				got, err := c.Get(types.Index(i))
				require.NoError(t, err)
				assert.Equal(t, rec(i), got)
			}
			assert.ErrorIs(t, c.Create(3, rec(3)), ErrResident)

			_, err := c.Get(types.NoIndex)
			assert.ErrorIs(t, err, ErrNoIndex)
		})
	}
}

func TestCacheFull(t *testing.T) {
	c := newCache(t, Config{Capacity: 4, Threshold: 3})
	for i := 1; i <= 4; i++ {
		require.NoError(t, c.Create(types.Index(i), rec(i)))
	}
	assert.ErrorIs(t, c.Create(5, rec(5)), ErrCacheFull)
}

func TestMissOnNeverArchived(t *testing.T) {
	c := newCache(t, Config{Capacity: 8})
	_, err := c.Get(42)
	assert.ErrorIs(t, err, archive.ErrNotArchived)
}

func TestModifySurvivesEviction(t *testing.T) {
	for _, p := range policies {
		t.Run(string(p), func(t *testing.T) {
			c := newCache(t, Config{Policy: p, Capacity: 16, Threshold: 1})
			for i := 1; i <= 8; i++ {
				require.NoError(t, c.Create(types.Index(i), rec(i)))
			}
			after, err := c.Modify(5, func(r *types.Record) bool {
				r.Flags |= types.FlagExpanded
				return true
			})
			require.NoError(t, err)
			assert.True(t, after.Expanded())

			_, err = c.Trim()
			require.NoError(t, err)
			assert.LessOrEqual(t, c.Len(), 1)

			got, err := c.Get(5)
			require.NoError(t, err)
			assert.True(t, got.Expanded())
			assert.Equal(t, rec(5).Frame, got.Frame)
		})
	}
}

func TestModifyDeclinedLeavesRecord(t *testing.T) {
	c := newCache(t, Config{Capacity: 8})
	require.NoError(t, c.Create(1, rec(1)))
	got, err := c.Modify(1, func(r *types.Record) bool {
		r.Frame = 1000
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, rec(1), got)
}

func TestMarkDirty(t *testing.T) {
	c := newCache(t, Config{Capacity: 8})
	assert.ErrorIs(t, c.MarkDirty(3), ErrNotResident)
	require.NoError(t, c.Create(3, rec(3)))
	assert.NoError(t, c.MarkDirty(3))
}

// -----------------------------------------------------------------------------
// ░░ Trim ░░
// -----------------------------------------------------------------------------

func TestTrimPostcondition(t *testing.T) {
	for _, p := range policies {
		t.Run(string(p), func(t *testing.T) {
			c := newCache(t, Config{Policy: p, Capacity: 64, Threshold: 40, ChainDepth: 2})
			for i := 1; i <= 60; i++ {
				require.NoError(t, c.Create(types.Index(i), rec(i)))
			}
			require.True(t, c.NeedsTrim())
			n, err := c.Trim()
			require.NoError(t, err)
			assert.LessOrEqual(t, c.Len(), 40)
			assert.Equal(t, 60-c.Len(), n)
			assert.False(t, c.NeedsTrim())

			n, err = c.Trim()
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestEveryRecordRecoverable(t *testing.T) {
	for _, p := range policies {
		t.Run(string(p), func(t *testing.T) {
			c := newCache(t, Config{Policy: p, Capacity: 32, Threshold: 20})
			const total = 300
			for i := 1; i <= total; i++ {
				if c.NeedsTrim() {
					_, err := c.Trim()
					require.NoError(t, err)
				}
				require.NoError(t, c.Create(types.Index(i), rec(i)))
			}
			for i := total; i >= 1; i -= 7 {
				if c.NeedsTrim() {
					_, err := c.Trim()
					require.NoError(t, err)
				}
				got, err := c.Get(types.Index(i))
				require.NoError(t, err, "index %d", i)
				assert.Equal(t, rec(i), got)
			}
			st := c.Stats()
			assert.NotZero(t, st.Loads)
			assert.NotZero(t, st.Evictions)
		})
	}
}

// flakyStore fails every Archive once its allowance runs out.
type flakyStore struct {
	archive.Store
	allow int
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) Archive(idx types.Index, r types.Record) error {
	if s.allow == 0 {
		return errDiskFull
	}
	s.allow--
	return s.Store.Archive(idx, r)
}

func TestFailedTrimKeepsUnevicted(t *testing.T) {
	for _, p := range policies {
		t.Run(string(p), func(t *testing.T) {
			inner, err := archive.OpenFile(t.TempDir(), 16)
			require.NoError(t, err)
			t.Cleanup(func() { _ = inner.Close() })
			store := &flakyStore{Store: inner, allow: 5}
			c, err := New(Config{Policy: p, Capacity: 32, Threshold: 4}, store)
			require.NoError(t, err)

			const total = 20
			for i := 1; i <= total; i++ {
				require.NoError(t, c.Create(types.Index(i), rec(i)))
			}
			_, err = c.Trim()
			require.ErrorIs(t, err, errDiskFull)
			assert.Equal(t, total-5, c.Len())

			resident := 0
			for i := 1; i <= total; i++ {
				if c.Resident(types.Index(i)) {
					resident++
				}
				got, err := c.Peek(types.Index(i))
				require.NoError(t, err, "index %d", i)
				assert.Equal(t, rec(i), got)
			}
			assert.Equal(t, c.Len(), resident)

			store.allow = total
			_, err = c.Trim()
			require.NoError(t, err)
			assert.LessOrEqual(t, c.Len(), 4)
			for i := 1; i <= total; i++ {
				got, err := c.Get(types.Index(i))
				require.NoError(t, err, "index %d", i)
				assert.Equal(t, rec(i), got)
			}
		})
	}
}

func TestHashChainKeepsPromoted(t *testing.T) {
	c := newCache(t, Config{Policy: PolicyHashChain, Capacity: 10, Threshold: 4, Buckets: 1, ChainDepth: 4})
	for i := 1; i <= 8; i++ {
		require.NoError(t, c.Create(types.Index(i), rec(i)))
	}
	_, err := c.Get(1)
	require.NoError(t, err)

	_, err = c.Trim()
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())
	assert.True(t, c.Resident(1))
	assert.True(t, c.Resident(8))
	assert.False(t, c.Resident(2))
}

func TestSplayKeepsRoot(t *testing.T) {
	c := newCache(t, Config{Policy: PolicySplay, Capacity: 20, Threshold: 4})
	for i := 1; i <= 16; i++ {
		require.NoError(t, c.Create(types.Index(i), rec(i)))
	}
	_, err := c.Get(9)
	require.NoError(t, err)

	_, err = c.Trim()
	require.NoError(t, err)
	assert.LessOrEqual(t, c.Len(), 4)
	assert.True(t, c.Resident(9))
}

func splayHeight(c *Cache) int {
	root := c.pol.(*splayTree).root
	if root == noSlot {
		return -1
	}
	h := 0
	stack := []depthSlot{{root, 0}}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h = max(h, n.depth)
		if l := c.slots[n.s].left; l != noSlot {
			stack = append(stack, depthSlot{l, n.depth + 1})
		}
		if r := c.slots[n.s].right; r != noSlot {
			stack = append(stack, depthSlot{r, n.depth + 1})
		}
	}
	return h
}

func TestSplayPeekFlattensMonotonicInserts(t *testing.T) {
	const n = 4096
	c := newCache(t, Config{Policy: PolicySplay, Capacity: 2 * n})
	for i := 1; i <= n; i++ {
		require.NoError(t, c.Create(types.Index(i), rec(i)))
	}
	require.Equal(t, n-1, splayHeight(c), "increasing inserts build a chain")

	got, err := c.Peek(1)
	require.NoError(t, err)
	assert.Equal(t, rec(1), got)
	assert.LessOrEqual(t, splayHeight(c), n/2+1)

	for i := 2; i <= 10; i++ {
		got, err := c.Peek(types.Index(i))
		require.NoError(t, err)
		assert.Equal(t, rec(i), got)
	}
	assert.LessOrEqual(t, splayHeight(c), 32)

	for k := 0; k < n; k++ {
		i := 1 + (k*2654435761)%n
		require.True(t, c.Resident(types.Index(i)))
	}
	assert.LessOrEqual(t, splayHeight(c), 64)
	assert.Equal(t, n, c.Len())
}

func TestPeekDoesNotInstall(t *testing.T) {
	c := newCache(t, Config{Capacity: 8, Threshold: 1, Buckets: 1, ChainDepth: 1})
	require.NoError(t, c.Create(1, rec(1)))
	require.NoError(t, c.Create(2, rec(2)))
	_, err := c.Trim()
	require.NoError(t, err)
	require.False(t, c.Resident(1))

	got, err := c.Peek(1)
	require.NoError(t, err)
	assert.Equal(t, rec(1), got)
	assert.False(t, c.Resident(1))
}

func TestFlushWritesDirty(t *testing.T) {
	store, err := archive.OpenFile(t.TempDir(), 16)
	require.NoError(t, err)
	defer store.Close()
	c, err := New(Config{Capacity: 8}, store)
	require.NoError(t, err)

	require.NoError(t, c.Create(3, rec(3)))
	_, err = store.Unarchive(3)
	require.ErrorIs(t, err, archive.ErrNotArchived)

	require.NoError(t, c.Flush())
	got, err := store.Unarchive(3)
	require.NoError(t, err)
	assert.Equal(t, rec(3), got)
}

// -----------------------------------------------------------------------------
// ░░ Policy equivalence ░░
// -----------------------------------------------------------------------------

// Both policies must yield identical records for the same workload; only
// residency may differ.
func TestPoliciesAgree(t *testing.T) {
	run := func(p Policy) []types.Record {
		c := newCache(t, Config{Policy: p, Capacity: 24, Threshold: 12})
		var out []types.Record
		for i := 1; i <= 120; i++ {
			if c.NeedsTrim() {
				_, err := c.Trim()
				require.NoError(t, err)
			}
			require.NoError(t, c.Create(types.Index(i), rec(i)))
			if i%5 == 0 {
				if c.NeedsTrim() {
					_, err := c.Trim()
					require.NoError(t, err)
				}
				_, err := c.Modify(types.Index(i/3), func(r *types.Record) bool {
					r.Frame += 100
					return true
				})
				require.NoError(t, err)
			}
		}
		for i := 1; i <= 120; i++ {
			r, err := c.Peek(types.Index(i))
			require.NoError(t, err)
			out = append(out, r)
		}
		return out
	}
	assert.Equal(t, run(PolicyHashChain), run(PolicySplay))
}

// -----------------------------------------------------------------------------
// ░░ Concurrency ░░
// -----------------------------------------------------------------------------

func TestConcurrentModify(t *testing.T) {
	for _, p := range policies {
		t.Run(string(p), func(t *testing.T) {
			c := newCache(t, Config{Policy: p, Capacity: 256})
			for i := 1; i <= 16; i++ {
				require.NoError(t, c.Create(types.Index(i), types.Record{}))
			}
			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for n := 0; n < 100; n++ {
						idx := types.Index(n%16 + 1)
						_, err := c.Modify(idx, func(r *types.Record) bool {
							r.Frame++
							return true
						})
						if err != nil {
							panic(fmt.Sprintf("modify %d: %v", idx, err))
						}
					}
				}()
			}
			wg.Wait()
			var sum uint32
			for i := 1; i <= 16; i++ {
				r, err := c.Get(types.Index(i))
				require.NoError(t, err)
				sum += r.Frame
			}
			assert.Equal(t, uint32(800), sum)
		})
	}
}
