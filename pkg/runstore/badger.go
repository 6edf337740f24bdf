package runstore

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/fortiblox/sysfk/internal/types"
)

// Key prefixes for BadgerDB storage.
var (
	// prefixRun is the prefix for run records.
	// Key format: prefixRun + id (8 bytes, big-endian)
	prefixRun = []byte{0x01}

	// prefixProgram is the prefix for the by-program index.
	// Key format: prefixProgram + hash (32 bytes) + id (8 bytes)
	prefixProgram = []byte{0x02}

	// prefixMeta is the prefix for metadata.
	prefixMeta = []byte{0x03}

	metaRunCount = append(append([]byte{}, prefixMeta...), []byte("count")...)
	metaSequence = append(append([]byte{}, prefixMeta...), []byte("seq")...)
)

// sequenceBandwidth is the number of IDs leased from badger at a time.
const sequenceBandwidth = 64

// BadgerStore implements Store using BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence

	runCount atomic.Uint64

	// mu serialises Put so the count stays in step with the records.
	mu     sync.Mutex
	closed atomic.Bool
}

// OpenBadger creates or opens a badger run store in the config.Path
// directory, or in memory when config.InMemory is set.
func OpenBadger(config Config) (*BadgerStore, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(!config.NoSync && !config.InMemory).
		WithNumCompactors(2).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence(metaSequence, sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("get sequence: %w", err)
	}

	s := &BadgerStore{db: db, seq: seq}
	if err := s.loadMetadata(); err != nil {
		seq.Release()
		db.Close()
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return s, nil
}

func (s *BadgerStore) loadMetadata() error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaRunCount)
		if err == badger.ErrKeyNotFound {
			s.runCount.Store(0)
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			s.runCount.Store(DecodeIDKey(val))
			return nil
		})
	})
}

func runKey(id uint64) []byte {
	return append(append([]byte{}, prefixRun...), EncodeIDKey(id)...)
}

func badgerProgramKey(hash types.Hash, id uint64) []byte {
	return append(append([]byte{}, prefixProgram...), programKey(hash, id)...)
}

// Put stores run under the next sequence number.
func (s *BadgerStore) Put(run *Run) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	id := next + 1

	stored := *run
	stored.ID = id
	data, err := encodeRun(&stored)
	if err != nil {
		return 0, err
	}

	count := s.runCount.Load() + 1
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey(id), data); err != nil {
			return err
		}
		if err := txn.Set(badgerProgramKey(run.ProgramHash, id), nil); err != nil {
			return err
		}
		return txn.Set(metaRunCount, EncodeIDKey(count))
	})
	if err != nil {
		return 0, err
	}

	s.runCount.Store(count)
	run.ID = id
	return id, nil
}

// Get retrieves a run by ID.
func (s *BadgerStore) Get(id uint64) (*Run, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var run *Run
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		run, err = getBadgerRun(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func getBadgerRun(txn *badger.Txn, id uint64) (*Run, error) {
	item, err := txn.Get(runKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	var run *Run
	err = item.Value(func(val []byte) error {
		run, err = decodeRun(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns the newest runs first.
func (s *BadgerStore) List(limit int) ([]*Run, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var runs []*Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixRun
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekLast(prefixRun)); it.ValidForPrefix(prefixRun); it.Next() {
			if limit > 0 && len(runs) == limit {
				break
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				run, err := decodeRun(val)
				if err != nil {
					return err
				}
				runs = append(runs, run)
				return nil
			})
			if err != nil {
				return fmt.Errorf("run %d: %w", DecodeIDKey(item.Key()[len(prefixRun):]), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// ByProgram returns the newest runs of one program first.
func (s *BadgerStore) ByProgram(hash types.Hash, limit int) ([]*Run, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	prefix := append(append([]byte{}, prefixProgram...), hash[:]...)

	var runs []*Run
	err := s.db.View(func(txn *badger.Txn) error {
		var ids []uint64
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, DecodeIDKey(it.Item().Key()[len(prefix):]))
		}
		it.Close()

		for _, id := range limitIDs(ids, limit) {
			run, err := getBadgerRun(txn, id)
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

// seekLast returns a key that sorts after every key under prefix, for
// reverse iteration.
func seekLast(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), bytes.Repeat([]byte{0xff}, 8)...)
}

// Count returns the number of stored runs.
func (s *BadgerStore) Count() uint64 {
	return s.runCount.Load()
}

// Close releases the ID lease and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("release sequence: %w", err)
	}
	return s.db.Close()
}
