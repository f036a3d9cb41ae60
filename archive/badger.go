package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"tilesolver/types"
)

// recordPrefix namespaces node records inside the database.
var recordPrefix = []byte("n/")

// BadgerStore keeps records in a badger LSM tree keyed by big-endian index.
// Cluster geometry does not apply; badger does its own file management.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens (creating if needed) a badger database in dir and drops
// whatever an earlier run left in it.
// Writes are not synced individually; Flush syncs them.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if dir == "" {
		return nil, errors.New("archive: badger backend needs a directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("archive: create dir %s: %w", dir, err)
	}
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(false).
		WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("archive: open badger: %w", err)
	}
	if err := db.DropAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: reset badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func recordKey(idx types.Index) []byte {
	k := make([]byte, len(recordPrefix)+4)
	copy(k, recordPrefix)
	binary.BigEndian.PutUint32(k[len(recordPrefix):], uint32(idx))
	return k
}

// Archive stores rec under idx, replacing any earlier version.
func (s *BadgerStore) Archive(idx types.Index, rec types.Record) error {
	val := make([]byte, types.RecordSize)
	rec.Encode(val)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(idx), val)
	})
	if err != nil {
		return fmt.Errorf("archive: badger write index %d: %w", idx, err)
	}
	return nil
}

// Unarchive loads the record stored under idx.
func (s *BadgerStore) Unarchive(idx types.Index) (types.Record, error) {
	var rec types.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(idx))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != types.RecordSize {
				return fmt.Errorf("archive: badger record %d has %d bytes", idx, len(val))
			}
			r, err := types.DecodeRecord(val)
			rec = r
			return err
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound), errors.Is(err, types.ErrNoRecord):
		return types.Record{}, fmt.Errorf("%w: index %d", ErrNotArchived, idx)
	case err != nil:
		return types.Record{}, fmt.Errorf("archive: badger read index %d: %w", idx, err)
	}
	return rec, nil
}

// Flush syncs the value log and memtables to disk.
func (s *BadgerStore) Flush() error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("archive: badger sync: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
