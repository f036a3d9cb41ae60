// mmap_stub.go - mmap backend placeholder for platforms without mmap(2)

//go:build !unix

package archive

import "tilesolver/types"

// MmapStore is unavailable on this platform; OpenMmap always fails.
type MmapStore struct{}

// OpenMmap reports ErrMmapUnsupported. Select the file backend instead.
func OpenMmap(dir string, clusterSize uint32) (*MmapStore, error) {
	return nil, ErrMmapUnsupported
}

func (s *MmapStore) Archive(types.Index, types.Record) error { return ErrMmapUnsupported }
func (s *MmapStore) Unarchive(types.Index) (types.Record, error) { return types.Record{}, ErrMmapUnsupported }
func (s *MmapStore) Flush() error { return ErrMmapUnsupported }
func (s *MmapStore) Close() error { return nil }
