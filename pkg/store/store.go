// Package store persists Vantage index snapshots using BadgerDB.
//
// A snapshot is stored under a caller-chosen name as two entries: a metadata
// record (gob-encoded) and the flat binary tables. Saving under an existing
// name replaces the previous snapshot atomically within one transaction.
//
// Example:
//
//	st, err := store.Open("./data")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	snap, _ := tree.Snapshot()
//	rec, err := st.Save("products", snap)
package store

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/orneryd/vantage/pkg/vptree"
)

// Errors
var (
	ErrNotFound  = errors.New("store: snapshot not found")
	ErrCorrupted = errors.New("store: snapshot data corrupted")
)

// Key prefixes for BadgerDB storage organization.
// Single-byte prefixes keep keys compact.
const (
	prefixRecord = byte(0x01) // record:name -> gob(Record)
	prefixBlob   = byte(0x02) // blob:name -> binary snapshot tables
)

// Record describes a persisted snapshot.
type Record struct {
	// ID is assigned at save time and changes on every overwrite
	ID uuid.UUID
	// Name is the caller-chosen snapshot name
	Name string
	// Metric is the metric name the index was built with
	Metric string
	// Dims is the coordinate dimensionality
	Dims int
	// Count is the number of indexed points
	Count int
	// CreatedAt is the save timestamp
	CreatedAt time.Time
}

// Options configures the snapshot store.
type Options struct {
	// DataDir is the directory for data files. Required unless InMemory.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode. Useful for testing;
	// data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool
}

// Store is a BadgerDB-backed snapshot store.
//
// Safe for concurrent use from multiple goroutines.
type Store struct {
	db *badger.DB
}

// Open creates a persistent snapshot store in dataDir with default settings.
func Open(dataDir string) (*Store, error) {
	return OpenWithOptions(Options{DataDir: dataDir})
}

// OpenInMemory creates a memory-only store for testing.
func OpenInMemory() (*Store, error) {
	return OpenWithOptions(Options{InMemory: true})
}

// OpenWithOptions creates a store with custom configuration.
func OpenWithOptions(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).
		WithLogger(nil)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// Snapshot blobs are large sequential values; keep them in the value
	// log rather than the LSM tree.
	badgerOpts = badgerOpts.
		WithValueThreshold(4 << 10).
		WithMemTableSize(16 << 20).
		WithNumMemtables(2)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(name string) []byte {
	return append([]byte{prefixRecord}, name...)
}

func blobKey(name string) []byte {
	return append([]byte{prefixBlob}, name...)
}

// Save persists a snapshot under name, replacing any previous snapshot with
// that name. Record and tables are written in one transaction, so a reader
// never observes a record without its tables.
func (s *Store) Save(name string, snap *vptree.Snapshot) (*Record, error) {
	if name == "" {
		return nil, fmt.Errorf("store: snapshot name must not be empty")
	}
	if snap == nil {
		return nil, fmt.Errorf("store: nil snapshot")
	}

	rec := &Record{
		ID:        uuid.New(),
		Name:      name,
		Metric:    snap.Metric,
		Dims:      snap.Dims,
		Count:     snap.Count,
		CreatedAt: time.Now().UTC(),
	}

	var meta bytes.Buffer
	if err := gob.NewEncoder(&meta).Encode(rec); err != nil {
		return nil, fmt.Errorf("store: encoding record: %w", err)
	}

	blob, err := encodeSnapshot(snap)
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(name), meta.Bytes()); err != nil {
			return err
		}
		return txn.Set(blobKey(name), blob)
	})
	if err != nil {
		return nil, fmt.Errorf("store: saving snapshot %q: %w", name, err)
	}
	return rec, nil
}

// Load reads a snapshot by name. The returned snapshot's metric name is
// resolved by vptree.Restore, not here; a store can hold snapshots for
// metrics the current process has not registered.
func (s *Store) Load(name string) (*vptree.Snapshot, *Record, error) {
	var rec Record
	var snap *vptree.Snapshot

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
		}); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupted, err)
		}

		item, err = txn.Get(blobKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			// Record without tables means a partial write slipped through.
			return fmt.Errorf("%w: tables missing for %q", ErrCorrupted, name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snap, err = decodeSnapshot(val)
			return err
		})
	})
	if err != nil {
		return nil, nil, err
	}

	if snap.Dims != rec.Dims || snap.Count != rec.Count || snap.Metric != rec.Metric {
		return nil, nil, fmt.Errorf("%w: record does not match tables for %q", ErrCorrupted, name)
	}
	return snap, &rec, nil
}

// Delete removes a snapshot by name.
func (s *Store) Delete(name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recordKey(name)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		if err := txn.Delete(recordKey(name)); err != nil {
			return err
		}
		return txn.Delete(blobKey(name))
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("store: deleting snapshot %q: %w", name, err)
	}
	return err
}

// List returns the records of every stored snapshot, in key order.
func (s *Store) List() ([]Record, error) {
	var records []Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixRecord}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
			}); err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupted, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
