// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go - compiled-in defaults for the solver
//
// Purpose:
//   - Defines the fallback values used when the startup configuration leaves
//     a field at its zero value.
//   - Fixes the on-disk geometry shared by archive clusters and queue files.
//
// Notes:
//   - Everything here is overridable through config.Config; nothing in this
//     package is read at run time except through config.Default().
//
// ⚠️ No runtime logic here; all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

// ───────────────────────────── Search Budget ──────────────────────────────

const (
	// DefaultMaxFrame is the frame budget used when the CLI gets no
	// positional argument. One frame is one tick of in-puzzle animation.
	DefaultMaxFrame = 4096

	// DefaultDepthStart is the first depth-first iteration budget, in frames.
	DefaultDepthStart = 64

	// DefaultDepthStep widens the depth-first budget on every iteration.
	DefaultDepthStep = 64

	// DefaultMaxIterations bounds the iterative-deepening loop.
	DefaultMaxIterations = 1 << 16
)

// ─────────────────────────── Node Arena & Index ────────────────────────────

const (
	// DefaultNodeCapacity is the largest index the arena hands out.
	// 2^26 ≈ 67M nodes ≈ 1 GiB of archived records at 16 B each.
	DefaultNodeCapacity = 1 << 26

	// DefaultShards is the number of independently locked dedup shards.
	// Must be a power of two.
	DefaultShards = 256

	// DefaultShardHint pre-sizes every shard table.
	DefaultShardHint = 1 << 10
)

// ─────────────────────────────── Cache ─────────────────────────────────────

const (
	// DefaultCacheCapacity is the number of cache slots (resident records).
	DefaultCacheCapacity = 1 << 20

	// DefaultTrimPercent places the trim threshold at this share of capacity.
	// The remaining slots are headroom for inserts made between checkpoints.
	DefaultTrimPercent = 75

	// DefaultChainDepth is the hash-chain depth kept on the first trim pass.
	DefaultChainDepth = 4

	// CacheEntryBytes approximates one resident slot, used to turn a RAM
	// budget into a slot count.
	CacheEntryBytes = 40
)

// ──────────────────────────── Disk Geometry ────────────────────────────────

const (
	// DefaultClusterSize is the number of records per archive cluster file.
	// 2^20 records × 16 B = 16 MiB per cluster.
	DefaultClusterSize = 1 << 20

	// QueueEntryBytes is the width of one index in queue, tip and finish files.
	QueueEntryBytes = 4
)

// ───────────────────────────── Puzzle Timing ───────────────────────────────

const (
	// DefaultWalkDelay is the frame cost of one free walking step.
	DefaultWalkDelay = 1

	// DefaultMoveDelay is the frame cost of a plain move action.
	DefaultMoveDelay = 4

	// DefaultPushDelay is the frame cost of a block push.
	DefaultPushDelay = 8

	// DefaultWalkLimit bounds the breadth-limited walk before each action.
	DefaultWalkLimit = 16
)

// ─────────────────────────────── Workers ──────────────────────────────────

const (
	// DefaultReplayCache is the per-worker number of reconstructed states kept
	// to shorten parent-chain replays.
	DefaultReplayCache = 4096
)
