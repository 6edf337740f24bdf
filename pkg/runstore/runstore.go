// Package runstore provides persistent storage for program runs.
//
// A run records what was executed (the program text and its hash), how it
// ended, and the machine state it left behind: the register file and a
// snapshot of the arena. Two engines are available behind the Store
// interface: a bbolt file and a badger directory.
package runstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fortiblox/sysfk/internal/types"
	"github.com/fortiblox/sysfk/pkg/vm"
)

var (
	// ErrRunNotFound is returned when a run doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("run store closed")

	// ErrUnknownEngine is returned by Open for an unrecognised engine name.
	ErrUnknownEngine = errors.New("unknown store engine")

	// ErrCorrupted is returned when a stored record cannot be decoded.
	ErrCorrupted = errors.New("run record corrupted")
)

// Engine names accepted by Open.
const (
	EngineBolt   = "bolt"
	EngineBadger = "badger"
)

// Run is one recorded execution.
type Run struct {
	// ID is assigned by the store on Put, starting at 1.
	ID uint64

	ProgramHash types.Hash
	ProgramPath string
	Source      string

	Host   string
	Status string
	Error  string

	Steps     uint64
	Traps     uint64
	Registers vm.Registers

	// Arena is the final arena contents.
	Arena       []byte
	ArenaDigest types.Hash

	StartedAt time.Time
	Duration  time.Duration
}

// Store is the run history interface.
type Store interface {
	// Put assigns the next ID to run, stores it and returns the ID.
	Put(run *Run) (uint64, error)

	// Get returns the run with the given ID.
	Get(id uint64) (*Run, error)

	// List returns up to limit runs, newest first. A limit of 0 returns
	// every run.
	List(limit int) ([]*Run, error)

	// ByProgram returns up to limit runs of the program with the given
	// hash, newest first.
	ByProgram(hash types.Hash, limit int) ([]*Run, error)

	// Count returns the number of stored runs.
	Count() uint64

	Close() error
}

// Config holds run store configuration.
type Config struct {
	// Engine selects the storage engine, EngineBolt or EngineBadger.
	Engine string

	// Path is the bolt database file or the badger directory.
	Path string

	// NoSync disables fsync after each write.
	NoSync bool

	// InMemory keeps a badger store in memory. Ignored by bolt.
	InMemory bool

	// OpenTimeout bounds the wait for the bolt file lock.
	OpenTimeout time.Duration
}

// DefaultConfig returns the default configuration for a store at path.
func DefaultConfig(path string) Config {
	return Config{
		Engine:      EngineBolt,
		Path:        path,
		NoSync:      false,
		OpenTimeout: 5 * time.Second,
	}
}

// Open opens the store selected by config.Engine.
func Open(config Config) (Store, error) {
	switch config.Engine {
	case EngineBolt, "":
		s, err := OpenBolt(config)
		if err != nil {
			return nil, err
		}
		return s, nil
	case EngineBadger:
		s, err := OpenBadger(config)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, config.Engine)
	}
}

// EncodeIDKey encodes a run ID as a big-endian 8-byte key.
// Big-endian keeps IDs in insertion order under lexicographic iteration.
func EncodeIDKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// DecodeIDKey decodes a big-endian run ID key.
func DecodeIDKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}

// programKey returns hash || id, the key of the by-program index.
func programKey(hash types.Hash, id uint64) []byte {
	key := make([]byte, types.HashSize+8)
	copy(key, hash[:])
	binary.BigEndian.PutUint64(key[types.HashSize:], id)
	return key
}

// limitIDs trims ids, which are in ascending order, to the newest limit
// entries, newest first.
func limitIDs(ids []uint64, limit int) []uint64 {
	out := make([]uint64, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, ids[i])
	}
	return out
}
