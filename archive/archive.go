// Package archive is the disk-resident overflow store for node records
// evicted from the cache.
//
// Records sit at a computable position: cluster index/ClusterSize, slot
// index%ClusterSize. Cluster files are created the first time an index in
// their range is archived, truncating any file an earlier run left behind.
// Three interchangeable backends are provided:
// plain random-access files, memory-mapped files and a badger key-value
// store.
package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"tilesolver/types"
)

var (
	ErrNotArchived     = errors.New("archive: record was never archived")
	ErrClosed          = errors.New("archive: store closed")
	ErrUnknownBackend  = errors.New("archive: unknown backend")
	ErrMmapUnsupported = errors.New("archive: mmap backend unsupported on this platform")
)

// Store persists records by node index.
//
// Archive and Unarchive are safe for concurrent use on distinct indices.
// Flush makes every Archive that returned before it crash-durable.
type Store interface {
	Archive(idx types.Index, rec types.Record) error
	Unarchive(idx types.Index) (types.Record, error)
	Flush() error
	Close() error
}

// Backend selects a Store implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendMmap   Backend = "mmap"
	BackendBadger Backend = "badger"
)

// Config configures Open.
type Config struct {
	// Backend selects the implementation. Default: BackendFile.
	Backend Backend

	// Dir holds cluster files (or the badger database).
	Dir string

	// ClusterSize is the number of records per cluster file. Ignored by the
	// badger backend.
	ClusterSize uint32

	// Logger receives backend diagnostics. Optional.
	Logger *slog.Logger
}

// Open creates the configured store.
func Open(cfg Config) (Store, error) {
	if cfg.ClusterSize == 0 {
		cfg.ClusterSize = 1 << 20
	}
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "", BackendFile:
		s, err = OpenFile(cfg.Dir, cfg.ClusterSize)
	case BackendMmap:
		s, err = OpenMmap(cfg.Dir, cfg.ClusterSize)
	case BackendBadger:
		s, err = OpenBadger(cfg.Dir, cfg.Logger)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// locate splits an index into its cluster number and byte offset.
func locate(idx types.Index, clusterSize uint32) (int, int64) {
	return int(uint32(idx) / clusterSize), int64(uint32(idx)%clusterSize) * types.RecordSize
}

func clusterPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("cluster-%06d.arc", n))
}
