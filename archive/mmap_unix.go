// mmap_unix.go - memory-mapped cluster store via mmap(2)/msync(2)

//go:build unix

package archive

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"tilesolver/types"
)

// mapping is one cluster file mapped shared and read-write.
type mapping struct {
	f   *os.File
	mem []byte
}

// MmapStore maps every cluster file in full. Records are copied in and out
// of the mapping; the kernel writes dirty pages back on its own schedule and
// Flush forces them out with msync.
type MmapStore struct {
	dir         string
	clusterSize uint32

	mu       sync.RWMutex
	clusters []*mapping
	closed   bool
}

// OpenMmap creates (if needed) dir and returns a memory-mapped store.
func OpenMmap(dir string, clusterSize uint32) (*MmapStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("archive: create dir %s: %w", dir, err)
	}
	return &MmapStore{dir: dir, clusterSize: clusterSize}, nil
}

func (s *MmapStore) cluster(n int, create bool) (*mapping, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	if n < len(s.clusters) && s.clusters[n] != nil {
		m := s.clusters[n]
		s.mu.RUnlock()
		return m, nil
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
	if s.clusters[n] != nil {
		return s.clusters[n], nil
	}

	size := int64(s.clusterSize) * types.RecordSize
	f, err := os.OpenFile(clusterPath(s.dir, n), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("archive: open cluster %d: %w", n, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: size cluster %d: %w", n, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: map cluster %d: %w", n, err)
	}
	s.clusters[n] = &mapping{f: f, mem: mem}
	return s.clusters[n], nil
}

// Archive copies rec into the mapping.
func (s *MmapStore) Archive(idx types.Index, rec types.Record) error {
	n, off := locate(idx, s.clusterSize)
	m, err := s.cluster(n, true)
	if err != nil {
		return err
	}
	rec.Encode(m.mem[off : off+types.RecordSize])
	return nil
}

// Unarchive copies the record out of the mapping.
func (s *MmapStore) Unarchive(idx types.Index) (types.Record, error) {
	n, off := locate(idx, s.clusterSize)
	m, err := s.cluster(n, false)
	if err != nil {
		return types.Record{}, err
	}
	if m == nil {
		return types.Record{}, fmt.Errorf("%w: index %d", ErrNotArchived, idx)
	}
	rec, err := types.DecodeRecord(m.mem[off : off+types.RecordSize])
	if err != nil {
		return types.Record{}, fmt.Errorf("%w: index %d", ErrNotArchived, idx)
	}
	return rec, nil
}

// Flush msyncs every mapping synchronously.
func (s *MmapStore) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	for n, m := range s.clusters {
		if m == nil {
			continue
		}
		if err := unix.Msync(m.mem, unix.MS_SYNC); err != nil {
			return fmt.Errorf("archive: msync cluster %d: %w", n, err)
		}
	}
	return nil
}

// Close unmaps and closes every cluster.
func (s *MmapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, m := range s.clusters {
		if m == nil {
			continue
		}
		errs = append(errs, unix.Munmap(m.mem), m.f.Close())
	}
	s.clusters = nil
	return errors.Join(errs...)
}
