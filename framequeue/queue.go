// Package framequeue holds the per-frame work lists of the search.
//
// Every frame moves through two phases: a write phase in which workers
// enqueue node indices, and, after Rewind, a read phase in which they are
// dequeued in insertion order. Destroy discards a frame and returns it to an
// empty write phase. Frames are independent, so later frames can be written
// while the current one is read.
package framequeue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"tilesolver/types"
)

var (
	ErrPhase          = errors.New("framequeue: operation not valid in the frame's current phase")
	ErrFrameRange     = errors.New("framequeue: frame outside the queue window")
	ErrUnknownBackend = errors.New("framequeue: unknown backend")
	ErrClosed         = errors.New("framequeue: queue closed")
)

// Backend selects how frame contents are stored.
type Backend string

const (
	// BackendFile keeps one unbuffered index file per frame.
	BackendFile Backend = "file"
	// BackendBuffered keeps one index file per frame behind bufio.
	BackendBuffered Backend = "buffered"
	// BackendList keeps frames as chunk lists drawn from a shared arena.
	BackendList Backend = "list"
	// BackendArray keeps one growable slice per frame.
	BackendArray Backend = "array"
)

// Config configures Open.
type Config struct {
	Backend Backend

	// Dir holds frame files for the file backends.
	Dir string

	// Prefix names frame files: <Prefix>-NNNNNNNN.idx. Default "frame".
	Prefix string

	// MaxFrame is the highest valid frame.
	MaxFrame uint32
}

// frameBuffer stores one frame's indices.
type frameBuffer interface {
	append(idx types.Index) error
	rewind() (int, error)
	next() (types.Index, error)
	// discard releases the storage and reports how many entries were never
	// read.
	discard() (int, error)
}

type frame struct {
	mu      sync.Mutex
	buf     frameBuffer
	reading bool
}

// Queue is a set of frame-indexed FIFO lists. Safe for concurrent use; each
// frame has its own lock.
type Queue struct {
	cfg   Config
	mk    func(f uint32) frameBuffer
	chunk *chunkArena

	mu     sync.Mutex
	frames map[uint32]*frame
	closed bool

	pending atomic.Int64
}

// Open builds a queue with the configured backend.
func Open(cfg Config) (*Queue, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "frame"
	}
	q := &Queue{cfg: cfg, frames: make(map[uint32]*frame)}

	switch cfg.Backend {
	case "", BackendFile, BackendBuffered:
		if cfg.Backend == "" {
			q.cfg.Backend = BackendFile
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("framequeue: create dir %s: %w", cfg.Dir, err)
		}
		buffered := cfg.Backend == BackendBuffered
		q.mk = func(f uint32) frameBuffer {
			return &fileBuffer{path: q.Path(f), buffered: buffered}
		}
	case BackendList:
		q.chunk = newChunkArena()
		q.mk = func(uint32) frameBuffer { return &listBuffer{arena: q.chunk} }
	case BackendArray:
		q.mk = func(uint32) frameBuffer { return &arrayBuffer{} }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	return q, nil
}

// Path is the file that holds frame f for the file backends.
func (q *Queue) Path(f uint32) string {
	return filepath.Join(q.cfg.Dir, fmt.Sprintf("%s-%08d.idx", q.cfg.Prefix, f))
}

// Backend reports the active backend.
func (q *Queue) Backend() Backend { return q.cfg.Backend }

func (q *Queue) frame(f uint32) (*frame, error) {
	if f > q.cfg.MaxFrame {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameRange, f, q.cfg.MaxFrame)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	fr := q.frames[f]
	if fr == nil {
		fr = &frame{buf: q.mk(f)}
		q.frames[f] = fr
	}
	return fr, nil
}

// Enqueue appends idx to frame f, which must be in its write phase.
func (q *Queue) Enqueue(idx types.Index, f uint32) error {
	fr, err := q.frame(f)
	if err != nil {
		return err
	}
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.reading {
		return fmt.Errorf("%w: enqueue to frame %d after rewind", ErrPhase, f)
	}
	if err := fr.buf.append(idx); err != nil {
		return err
	}
	q.pending.Add(1)
	return nil
}

// Rewind switches frame f to its read phase and returns its length.
func (q *Queue) Rewind(f uint32) (int, error) {
	fr, err := q.frame(f)
	if err != nil {
		return 0, err
	}
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.reading {
		return 0, fmt.Errorf("%w: frame %d already rewound", ErrPhase, f)
	}
	n, err := fr.buf.rewind()
	if err != nil {
		return 0, err
	}
	fr.reading = true
	return n, nil
}

// Dequeue returns the next index of frame f, or types.NoIndex once the
// frame is exhausted.
func (q *Queue) Dequeue(f uint32) (types.Index, error) {
	fr, err := q.frame(f)
	if err != nil {
		return types.NoIndex, err
	}
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if !fr.reading {
		return types.NoIndex, fmt.Errorf("%w: dequeue from frame %d before rewind", ErrPhase, f)
	}
	idx, err := fr.buf.next()
	if err != nil {
		return types.NoIndex, err
	}
	if idx != types.NoIndex {
		q.pending.Add(-1)
	}
	return idx, nil
}

// Destroy discards frame f and its storage. Entries never dequeued are
// dropped from the pending count.
func (q *Queue) Destroy(f uint32) error {
	if f > q.cfg.MaxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameRange, f, q.cfg.MaxFrame)
	}
	q.mu.Lock()
	fr := q.frames[f]
	delete(q.frames, f)
	q.mu.Unlock()
	if fr == nil {
		return nil
	}
	return q.drop(fr)
}

// Pending is the number of enqueued entries not yet dequeued or destroyed.
func (q *Queue) Pending() int { return int(q.pending.Load()) }

// Close discards every frame. File backends delete their frame files.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	frames := q.frames
	q.frames = nil
	q.mu.Unlock()

	var errs []error
	for _, fr := range frames {
		errs = append(errs, q.drop(fr))
	}
	return errors.Join(errs...)
}

func (q *Queue) drop(fr *frame) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	left, err := fr.buf.discard()
	q.pending.Add(-int64(left))
	return err
}
