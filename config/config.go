// Package config holds the solver's startup configuration.
//
// Priority: CLI flags > environment > config file > compiled-in defaults.
// Load covers the middle two layers on top of Default; the CLI applies its
// flags afterwards and calls Validate.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sugawarayuuta/sonnet"
	"gopkg.in/yaml.v3"

	"tilesolver/constants"
	"tilesolver/logging"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Search modes.
const (
	ModeBFS = "bfs"
	ModeDFS = "dfs"
)

// Config is the full startup configuration.
type Config struct {
	Puzzle  PuzzleConfig  `yaml:"puzzle" json:"puzzle"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Nodes   NodesConfig   `yaml:"nodes" json:"nodes"`
	Cache   CacheConfig   `yaml:"cache" json:"cache"`
	Archive ArchiveConfig `yaml:"archive" json:"archive"`
	Queue   QueueConfig   `yaml:"queue" json:"queue"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	RunLog  RunLogConfig  `yaml:"runlog" json:"runlog"`

	// WorkDir is the parent of the default archive and queue directories.
	WorkDir string `yaml:"work_dir" json:"work_dir"`
}

// PuzzleConfig selects the level and its timing.
type PuzzleConfig struct {
	// Level is the path of an ASCII level file.
	Level     string `yaml:"level" json:"level"`
	WalkDelay uint32 `yaml:"walk_delay" json:"walk_delay"`
	MoveDelay uint32 `yaml:"move_delay" json:"move_delay"`
	PushDelay uint32 `yaml:"push_delay" json:"push_delay"`
	WalkLimit int    `yaml:"walk_limit" json:"walk_limit"`
}

// SearchConfig drives the engine.
type SearchConfig struct {
	Mode          string `yaml:"mode" json:"mode"`
	Workers       int    `yaml:"workers" json:"workers"`
	PinWorkers    bool   `yaml:"pin_workers" json:"pin_workers"`
	MaxFrame      uint32 `yaml:"max_frame" json:"max_frame"`
	DepthStart    uint32 `yaml:"depth_start" json:"depth_start"`
	DepthStep     uint32 `yaml:"depth_step" json:"depth_step"`
	MaxIterations int    `yaml:"max_iterations" json:"max_iterations"`
	ReplayCache   int    `yaml:"replay_cache" json:"replay_cache"`
}

// NodesConfig sizes the arena and the dedup index.
type NodesConfig struct {
	Capacity  uint32 `yaml:"capacity" json:"capacity"`
	Shards    int    `yaml:"shards" json:"shards"`
	ShardHint int    `yaml:"shard_hint" json:"shard_hint"`
}

// CacheConfig sizes the record cache. Capacity 0 derives the slot count
// from MemoryBudget; Threshold 0 derives it from TrimPercent.
type CacheConfig struct {
	Policy       string `yaml:"policy" json:"policy"`
	Capacity     int    `yaml:"capacity" json:"capacity"`
	MemoryBudget int64  `yaml:"memory_budget" json:"memory_budget"`
	Threshold    int    `yaml:"threshold" json:"threshold"`
	TrimPercent  int    `yaml:"trim_percent" json:"trim_percent"`
	Buckets      int    `yaml:"buckets" json:"buckets"`
	ChainDepth   int    `yaml:"chain_depth" json:"chain_depth"`
}

// ArchiveConfig selects the overflow store.
type ArchiveConfig struct {
	Backend     string `yaml:"backend" json:"backend"`
	Dir         string `yaml:"dir" json:"dir"`
	ClusterSize uint32 `yaml:"cluster_size" json:"cluster_size"`
	// Durable flushes the store after every trim.
	Durable bool `yaml:"durable" json:"durable"`
}

// QueueConfig selects the frame queue backend.
type QueueConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	Dir     string `yaml:"dir" json:"dir"`
}

// LoggingConfig mirrors logging.Config in text form.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
	Dir   string `yaml:"dir" json:"dir"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// RunLogConfig enables the sqlite run ledger when Path is set.
type RunLogConfig struct {
	Path string `yaml:"path" json:"path"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Puzzle: PuzzleConfig{
			WalkDelay: constants.DefaultWalkDelay,
			MoveDelay: constants.DefaultMoveDelay,
			PushDelay: constants.DefaultPushDelay,
			WalkLimit: constants.DefaultWalkLimit,
		},
		Search: SearchConfig{
			Mode:          ModeBFS,
			MaxFrame:      constants.DefaultMaxFrame,
			DepthStart:    constants.DefaultDepthStart,
			DepthStep:     constants.DefaultDepthStep,
			MaxIterations: constants.DefaultMaxIterations,
			ReplayCache:   constants.DefaultReplayCache,
		},
		Nodes: NodesConfig{
			Capacity:  constants.DefaultNodeCapacity,
			Shards:    constants.DefaultShards,
			ShardHint: constants.DefaultShardHint,
		},
		Cache: CacheConfig{
			Policy:      "hashchain",
			TrimPercent: constants.DefaultTrimPercent,
			ChainDepth:  constants.DefaultChainDepth,
		},
		Archive: ArchiveConfig{
			Backend:     "file",
			ClusterSize: constants.DefaultClusterSize,
		},
		Queue:   QueueConfig{Backend: "file"},
		Logging: LoggingConfig{Level: "info"},
		WorkDir: "tilesolver-work",
	}
}

// Load overlays the file at path (YAML, or JSON for a .json extension) and
// the TILESOLVER_* environment onto Default. An empty path skips the file.
// The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			err = sonnet.Unmarshal(data, &cfg)
		default:
			err = yaml.Unmarshal(data, &cfg)
		}
		if err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv reads TILESOLVER_* overrides through lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("TILESOLVER_MODE", &c.Search.Mode)
	str("TILESOLVER_POLICY", &c.Cache.Policy)
	str("TILESOLVER_ARCHIVE", &c.Archive.Backend)
	str("TILESOLVER_QUEUE", &c.Queue.Backend)
	str("TILESOLVER_LOG_LEVEL", &c.Logging.Level)
	str("TILESOLVER_WORK_DIR", &c.WorkDir)

	if v, ok := lookup("TILESOLVER_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: TILESOLVER_WORKERS=%q: %v", ErrInvalid, v, err)
		}
		c.Search.Workers = n
	}
	if v, ok := lookup("TILESOLVER_CACHE_BUDGET"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: TILESOLVER_CACHE_BUDGET=%q: %v", ErrInvalid, v, err)
		}
		c.Cache.MemoryBudget = n
		c.Cache.Capacity = 0
	}
	return nil
}

// CacheCapacity resolves the slot count.
func (c Config) CacheCapacity() int {
	switch {
	case c.Cache.Capacity > 0:
		return c.Cache.Capacity
	case c.Cache.MemoryBudget > 0:
		return int(c.Cache.MemoryBudget / constants.CacheEntryBytes)
	default:
		return constants.DefaultCacheCapacity
	}
}

// CacheThreshold resolves the trim threshold.
func (c Config) CacheThreshold() int {
	if c.Cache.Threshold > 0 {
		return c.Cache.Threshold
	}
	return c.CacheCapacity() * c.Cache.TrimPercent / 100
}

// ArchiveDir resolves the archive directory.
func (c Config) ArchiveDir() string {
	if c.Archive.Dir != "" {
		return c.Archive.Dir
	}
	return filepath.Join(c.WorkDir, "archive")
}

// QueueDir resolves the queue directory.
func (c Config) QueueDir() string {
	if c.Queue.Dir != "" {
		return c.Queue.Dir
	}
	return filepath.Join(c.WorkDir, "queue")
}

// LoggerConfig converts the logging section.
func (c Config) LoggerConfig() (logging.Config, error) {
	lvl, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return logging.Config{Level: lvl, JSON: c.Logging.JSON, LogDir: c.Logging.Dir, Service: "tilesolver"}, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Search.Mode {
	case ModeBFS, ModeDFS:
	default:
		bad("search.mode %q (want bfs or dfs)", c.Search.Mode)
	}
	if c.Search.Workers < 0 {
		bad("search.workers %d", c.Search.Workers)
	}
	switch c.Search.MaxFrame {
	case 0:
		bad("search.max_frame must be positive")
	case math.MaxUint32:
		// The frame loop and the best-finish sentinel need one value above it.
		bad("search.max_frame must be below %d", uint32(math.MaxUint32))
	}
	if c.Search.Mode == ModeDFS {
		if c.Search.DepthStep == 0 {
			bad("search.depth_step must be positive")
		}
		if c.Search.MaxIterations <= 0 {
			bad("search.max_iterations must be positive")
		}
	}
	if c.Search.ReplayCache < 0 {
		bad("search.replay_cache %d", c.Search.ReplayCache)
	}

	if c.Nodes.Capacity == 0 {
		bad("nodes.capacity must be positive")
	}
	if c.Nodes.Shards <= 0 {
		bad("nodes.shards %d", c.Nodes.Shards)
	}

	switch c.Cache.Policy {
	case "hashchain", "splay":
	default:
		bad("cache.policy %q (want hashchain or splay)", c.Cache.Policy)
	}
	if c.Cache.Capacity == 0 && c.Cache.Threshold == 0 && (c.Cache.TrimPercent <= 0 || c.Cache.TrimPercent >= 100) {
		bad("cache.trim_percent %d (want 1..99)", c.Cache.TrimPercent)
	}
	if capacity, threshold := c.CacheCapacity(), c.CacheThreshold(); capacity < 2 || threshold <= 0 || threshold >= capacity {
		bad("cache threshold %d must lie in (0, capacity %d)", threshold, capacity)
	}

	switch c.Archive.Backend {
	case "file", "mmap", "badger":
	default:
		bad("archive.backend %q (want file, mmap or badger)", c.Archive.Backend)
	}
	if c.Archive.ClusterSize == 0 {
		bad("archive.cluster_size must be positive")
	}

	switch c.Queue.Backend {
	case "file", "buffered", "list", "array":
	default:
		bad("queue.backend %q (want file, buffered, list or array)", c.Queue.Backend)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		bad("logging.level %q", c.Logging.Level)
	}
	if c.Puzzle.WalkLimit < 0 {
		bad("puzzle.walk_limit %d", c.Puzzle.WalkLimit)
	}
	return errors.Join(errs...)
}
