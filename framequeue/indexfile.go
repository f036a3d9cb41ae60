package framequeue

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"tilesolver/constants"
	"tilesolver/types"
)

// IndexFile is an append-only file of little-endian uint32 node indices.
// It is written, rewound once, then read front to back. Not safe for
// concurrent use.
type IndexFile struct {
	path string
	f    *os.File
	w    *bufio.Writer
	r    io.Reader
	n    int

	buffered bool
}

// OpenIndexFile creates (truncating) the file at path. With buffered set,
// appends and reads go through bufio.
func OpenIndexFile(path string, buffered bool) (*IndexFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("framequeue: open %s: %w", path, err)
	}
	x := &IndexFile{path: path, f: f, buffered: buffered}
	if buffered {
		x.w = bufio.NewWriterSize(f, 64<<10)
	}
	return x, nil
}

// Path is the file's location.
func (x *IndexFile) Path() string { return x.path }

// Len is the number of appended indices.
func (x *IndexFile) Len() int { return x.n }

// Append writes idx at the end of the file.
func (x *IndexFile) Append(idx types.Index) error {
	if x.r != nil {
		return ErrPhase
	}
	var b [constants.QueueEntryBytes]byte
	binary.LittleEndian.PutUint32(b[:], uint32(idx))
	var err error
	if x.w != nil {
		_, err = x.w.Write(b[:])
	} else {
		_, err = x.f.Write(b[:])
	}
	if err != nil {
		return fmt.Errorf("framequeue: append %s: %w", x.path, err)
	}
	x.n++
	return nil
}

// Rewind ends the write phase and positions reading at the first index.
func (x *IndexFile) Rewind() (int, error) {
	if x.r != nil {
		return 0, ErrPhase
	}
	if err := x.flush(); err != nil {
		return 0, err
	}
	if _, err := x.f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("framequeue: rewind %s: %w", x.path, err)
	}
	if x.buffered {
		x.r = bufio.NewReaderSize(x.f, 64<<10)
	} else {
		x.r = x.f
	}
	return x.n, nil
}

// Next returns the next index, or types.NoIndex once the file is exhausted.
func (x *IndexFile) Next() (types.Index, error) {
	if x.r == nil {
		return types.NoIndex, ErrPhase
	}
	var b [constants.QueueEntryBytes]byte
	if _, err := io.ReadFull(x.r, b[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return types.NoIndex, nil
		}
		return types.NoIndex, fmt.Errorf("framequeue: read %s: %w", x.path, err)
	}
	return types.Index(binary.LittleEndian.Uint32(b[:])), nil
}

// Snapshot returns every appended index without leaving the write phase.
func (x *IndexFile) Snapshot() ([]types.Index, error) {
	if err := x.flush(); err != nil {
		return nil, err
	}
	buf := make([]byte, constants.QueueEntryBytes*x.n)
	if _, err := x.f.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("framequeue: snapshot %s: %w", x.path, err)
	}
	out := make([]types.Index, x.n)
	for i := range out {
		out[i] = types.Index(binary.LittleEndian.Uint32(buf[constants.QueueEntryBytes*i:]))
	}
	return out, nil
}

// Close flushes pending appends and closes the file, leaving it on disk.
func (x *IndexFile) Close() error {
	if x.f == nil {
		return nil
	}
	err := x.flush()
	if cerr := x.f.Close(); err == nil {
		err = cerr
	}
	x.f = nil
	return err
}

// Remove closes and deletes the file.
func (x *IndexFile) Remove() error {
	err := x.Close()
	if rerr := os.Remove(x.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
		err = rerr
	}
	return err
}

func (x *IndexFile) flush() error {
	if x.w == nil || x.r != nil {
		return nil
	}
	if err := x.w.Flush(); err != nil {
		return fmt.Errorf("framequeue: flush %s: %w", x.path, err)
	}
	return nil
}
