// Package executor runs sysfk programs end to end.
//
// It parses the source, builds an interpreter with the configured host and
// limits, runs it, and collects the final machine state into an
// ExecutionResult. When a run store is configured every run is recorded.
package executor

import (
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/fortiblox/sysfk/internal/types"
	"github.com/fortiblox/sysfk/pkg/host"
	"github.com/fortiblox/sysfk/pkg/parser"
	"github.com/fortiblox/sysfk/pkg/runstore"
	"github.com/fortiblox/sysfk/pkg/vm"
)

// Executor errors.
var (
	ErrHostSetup  = errors.New("host setup failed")
	ErrRecordRun  = errors.New("record run failed")
	ErrEmptyInput = errors.New("program has no instructions")
)

// Config holds executor configuration.
type Config struct {
	// Host selects the trap backend, host.KindNative or host.KindEmulated.
	Host string

	// HostConfig configures the emulated host.
	HostConfig host.Config

	// MaxSteps bounds a run. Zero means unlimited.
	MaxSteps uint64

	// MaxArena caps arena growth in bytes. Zero selects vm.DefaultMaxArena.
	MaxArena int

	// MaxStackDepth caps the pointer stack. Zero selects the vm default.
	MaxStackDepth int

	// Trace logs every instruction and every trap.
	Trace bool

	// AllowEmpty runs programs that parse to nothing instead of rejecting
	// them with ErrEmptyInput.
	AllowEmpty bool

	// Store, if set, records every run.
	Store runstore.Store
}

// DefaultConfig returns the default executor configuration: the native
// host, no step limit and no store.
func DefaultConfig() Config {
	return Config{
		Host:       host.KindNative,
		HostConfig: host.DefaultConfig(),
		AllowEmpty: true,
	}
}

// ExecutionResult contains the result of one run.
type ExecutionResult struct {
	// RunID is the store ID of the run, or zero when no store is set.
	RunID uint64

	// ProgramHash is the BLAKE3 hash of the program source.
	ProgramHash types.Hash

	// Counts summarises the parsed program.
	Counts parser.Counts

	// Status is how the run ended.
	Status vm.Status

	// Err is the error that stopped a faulted run. Error holds its text.
	Err   error
	Error string

	// ExitCode is the status an emulated program passed to exit.
	ExitCode uint64

	// Stats are the interpreter counters at the end of the run.
	Stats vm.Stats

	// Registers is the final register file.
	Registers vm.Registers

	// Arena is a copy of the final arena and ArenaDigest its SHA3-256.
	Arena       []byte
	ArenaDigest types.Hash

	StartedAt time.Time
	Duration  time.Duration
}

// Success reports whether the run ended without a fault.
func (r *ExecutionResult) Success() bool {
	return r.Status != vm.StatusFaulted
}

// Executor runs programs.
type Executor struct {
	config Config
}

// New creates an executor.
func New(config Config) *Executor {
	return &Executor{config: config}
}

// Execute parses and runs src. The returned error reports setup and
// recording failures; a program that faults still yields a result with
// Status set to vm.StatusFaulted and Err set.
func (e *Executor) Execute(src []byte) (*ExecutionResult, error) {
	return e.ExecuteNamed("", src)
}

// ExecuteNamed is Execute with the program path recorded in the store.
func (e *Executor) ExecuteNamed(path string, src []byte) (*ExecutionResult, error) {
	prog := parser.Parse(string(src))
	counts := parser.Count(prog)
	if counts.Total == 0 && !e.config.AllowEmpty {
		return nil, ErrEmptyInput
	}

	base, err := host.New(e.config.Host, e.config.HostConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHostSetup, err)
	}
	h := base
	if e.config.Trace {
		h = host.Logged(h, log.Printf)
	}

	opts := vm.Options{
		Host:          h,
		MaxSteps:      e.config.MaxSteps,
		MaxArena:      e.config.MaxArena,
		MaxStackDepth: e.config.MaxStackDepth,
	}
	if e.config.Trace {
		opts.Tracer = func(ev vm.Event) {
			log.Printf("step %d: %s depth=%d cursor=%#x", ev.Step, ev.Op, ev.Depth, ev.Cursor)
		}
	}

	result := &ExecutionResult{
		ProgramHash: types.ComputeHash(src),
		Counts:      counts,
		StartedAt:   time.Now(),
	}

	ip, status, runErr := vm.Execute(prog, opts)

	result.Duration = time.Since(result.StartedAt)
	result.Status = status
	result.Err = runErr
	if runErr != nil {
		result.Error = runErr.Error()
	}
	if em, ok := base.(*host.Emulated); ok {
		result.ExitCode, _ = em.ExitCode()
	}
	result.Stats = ip.Stats()
	result.Registers = ip.Registers()
	result.Arena = append([]byte(nil), ip.Arena().Bytes()...)
	result.ArenaDigest = sha3.Sum256(result.Arena)

	log.Printf("Run %s: %s after %d steps (%d instructions, depth %d, %d traps, arena %d bytes) in %s",
		result.ProgramHash.Short(), status, result.Stats.Steps, counts.Total, counts.MaxDepth,
		result.Stats.Traps, result.Stats.ArenaSize, result.Duration)

	if e.config.Store != nil {
		id, err := e.config.Store.Put(e.record(path, src, result))
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrRecordRun, err)
		}
		result.RunID = id
	}

	return result, nil
}

// record converts a result into a run store record.
func (e *Executor) record(path string, src []byte, result *ExecutionResult) *runstore.Run {
	return &runstore.Run{
		ProgramHash: result.ProgramHash,
		ProgramPath: path,
		Source:      string(src),
		Host:        e.config.Host,
		Status:      result.Status.String(),
		Error:       result.Error,
		Steps:       result.Stats.Steps,
		Traps:       result.Stats.Traps,
		Registers:   result.Registers,
		Arena:       result.Arena,
		ArenaDigest: result.ArenaDigest,
		StartedAt:   result.StartedAt,
		Duration:    result.Duration,
	}
}
