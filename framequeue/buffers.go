package framequeue

import (
	"tilesolver/types"
)

// fileBuffer is a lazily created IndexFile. A frame that never receives an
// entry never touches the disk.
type fileBuffer struct {
	path     string
	buffered bool
	file     *IndexFile
	read     int
}

func (b *fileBuffer) append(idx types.Index) error {
	if b.file == nil {
		f, err := OpenIndexFile(b.path, b.buffered)
		if err != nil {
			return err
		}
		b.file = f
	}
	return b.file.Append(idx)
}

func (b *fileBuffer) rewind() (int, error) {
	if b.file == nil {
		return 0, nil
	}
	return b.file.Rewind()
}

func (b *fileBuffer) next() (types.Index, error) {
	if b.file == nil {
		return types.NoIndex, nil
	}
	idx, err := b.file.Next()
	if err == nil && idx != types.NoIndex {
		b.read++
	}
	return idx, err
}

func (b *fileBuffer) discard() (int, error) {
	if b.file == nil {
		return 0, nil
	}
	left := b.file.Len() - b.read
	err := b.file.Remove()
	b.file, b.read = nil, 0
	return left, err
}

// arrayBuffer is a growable slice with a read cursor.
type arrayBuffer struct {
	vals []types.Index
	pos  int
}

func (b *arrayBuffer) append(idx types.Index) error {
	b.vals = append(b.vals, idx)
	return nil
}

func (b *arrayBuffer) rewind() (int, error) {
	b.pos = 0
	return len(b.vals), nil
}

func (b *arrayBuffer) next() (types.Index, error) {
	if b.pos >= len(b.vals) {
		return types.NoIndex, nil
	}
	idx := b.vals[b.pos]
	b.pos++
	return idx, nil
}

func (b *arrayBuffer) discard() (int, error) {
	left := len(b.vals) - b.pos
	b.vals, b.pos = nil, 0
	return left, nil
}
