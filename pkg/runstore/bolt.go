package runstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fortiblox/sysfk/internal/types"
	bolt "go.etcd.io/bbolt"
)

// Bucket names for BoltDB.
var (
	// bucketRuns stores encoded runs keyed by big-endian ID.
	bucketRuns = []byte("runs")

	// bucketByProgram indexes run IDs by program hash (hash || id).
	bucketByProgram = []byte("by_program")

	// bucketMetadata stores store metadata.
	bucketMetadata = []byte("metadata")
)

var keyRunCount = []byte("run_count")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db     *bolt.DB
	config Config

	mu       sync.RWMutex
	runCount uint64
	closed   bool
}

// OpenBolt creates or opens a bolt run store at config.Path.
func OpenBolt(config Config) (*BoltStore, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	opts := &bolt.Options{
		Timeout: config.OpenTimeout,
		NoSync:  config.NoSync,
	}
	db, err := bolt.Open(config.Path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &BoltStore{db: db, config: config}
	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	if err := store.loadCachedValues(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load cached values: %w", err)
	}
	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRuns, bucketByProgram, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) loadCachedValues() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMetadata).Get(keyRunCount); v != nil {
			s.runCount = DecodeIDKey(v)
		}
		return nil
	})
}

func (s *BoltStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Put stores run under the bucket's next sequence number.
func (s *BoltStore) Put(run *Run) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var id, count uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		seq, err := runs.NextSequence()
		if err != nil {
			return err
		}

		stored := *run
		stored.ID = seq
		data, err := encodeRun(&stored)
		if err != nil {
			return err
		}
		if err := runs.Put(EncodeIDKey(seq), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketByProgram).Put(programKey(run.ProgramHash, seq), nil); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMetadata)
		count = DecodeIDKey(meta.Get(keyRunCount)) + 1
		if err := meta.Put(keyRunCount, EncodeIDKey(count)); err != nil {
			return err
		}
		id = seq
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.runCount = count
	s.mu.Unlock()

	run.ID = id
	return id, nil
}

// Get retrieves a run by ID.
func (s *BoltStore) Get(id uint64) (*Run, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var run *Run
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		run, err = getRun(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func getRun(tx *bolt.Tx, id uint64) (*Run, error) {
	data := tx.Bucket(bucketRuns).Get(EncodeIDKey(id))
	if data == nil {
		return nil, ErrRunNotFound
	}
	return decodeRun(data)
}

// List returns the newest runs first.
func (s *BoltStore) List(limit int) ([]*Run, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var runs []*Run
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) == limit {
				break
			}
			run, err := decodeRun(v)
			if err != nil {
				return fmt.Errorf("run %d: %w", DecodeIDKey(k), err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// ByProgram returns the newest runs of one program first.
func (s *BoltStore) ByProgram(hash types.Hash, limit int) ([]*Run, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var runs []*Run
	err := s.db.View(func(tx *bolt.Tx) error {
		var ids []uint64
		c := tx.Bucket(bucketByProgram).Cursor()
		prefix := hash[:]
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, DecodeIDKey(k[types.HashSize:]))
		}

		for _, id := range limitIDs(ids, limit) {
			run, err := getRun(tx, id)
			if err != nil {
				return fmt.Errorf("run %d: %w", id, err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Count returns the number of stored runs.
func (s *BoltStore) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runCount
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.config.Path
}

// Close closes the database.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
