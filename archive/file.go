package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"tilesolver/types"
)

// FileStore keeps one os.File per cluster and uses positional I/O, so
// concurrent Archive/Unarchive calls need no lock beyond cluster creation.
type FileStore struct {
	dir         string
	clusterSize uint32

	mu       sync.RWMutex
	clusters []*os.File
	closed   bool
}

// OpenFile creates (if needed) dir and returns a plain-file store.
func OpenFile(dir string, clusterSize uint32) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("archive: create dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, clusterSize: clusterSize}, nil
}

// cluster returns cluster n, creating its file when create is set.
// A nil file with nil error means the cluster does not exist yet.
func (s *FileStore) cluster(n int, create bool) (*os.File, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	if n < len(s.clusters) && s.clusters[n] != nil {
		f := s.clusters[n]
		s.mu.RUnlock()
		return f, nil
	}
	s.mu.RUnlock()
	if !create {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	for len(s.clusters) <= n {
		s.clusters = append(s.clusters, nil)
	}
	if s.clusters[n] == nil {
		f, err := os.OpenFile(clusterPath(s.dir, n), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o640)
		if err != nil {
			return nil, fmt.Errorf("archive: open cluster %d: %w", n, err)
		}
		s.clusters[n] = f
	}
	return s.clusters[n], nil
}

// Archive writes rec at idx's position.
func (s *FileStore) Archive(idx types.Index, rec types.Record) error {
	n, off := locate(idx, s.clusterSize)
	f, err := s.cluster(n, true)
	if err != nil {
		return err
	}
	var buf [types.RecordSize]byte
	rec.Encode(buf[:])
	if _, err := f.WriteAt(buf[:], off); err != nil {
		return fmt.Errorf("archive: write index %d: %w", idx, err)
	}
	return nil
}

// Unarchive reads the record at idx's position.
func (s *FileStore) Unarchive(idx types.Index) (types.Record, error) {
	n, off := locate(idx, s.clusterSize)
	f, err := s.cluster(n, false)
	if err != nil {
		return types.Record{}, err
	}
	if f == nil {
		return types.Record{}, fmt.Errorf("%w: index %d", ErrNotArchived, idx)
	}
	var buf [types.RecordSize]byte
	if _, err := f.ReadAt(buf[:], off); err != nil {
		if errors.Is(err, io.EOF) {
			return types.Record{}, fmt.Errorf("%w: index %d", ErrNotArchived, idx)
		}
		return types.Record{}, fmt.Errorf("archive: read index %d: %w", idx, err)
	}
	rec, err := types.DecodeRecord(buf[:])
	if err != nil {
		return types.Record{}, fmt.Errorf("%w: index %d", ErrNotArchived, idx)
	}
	return rec, nil
}

// Flush fsyncs every open cluster.
func (s *FileStore) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	for n, f := range s.clusters {
		if f == nil {
			continue
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("archive: sync cluster %d: %w", n, err)
		}
	}
	return nil
}

// Close closes every cluster file. Files are left on disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, f := range s.clusters {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	s.clusters = nil
	return errors.Join(errs...)
}
