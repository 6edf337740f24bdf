// Package vm implements the sysfk execution engine.
//
// The engine owns three pieces of state:
//   - a register file of 13 64-bit registers, the argument and result
//     channel of the trap instruction
//   - an arena, a growable byte buffer whose first word holds the address
//     of the register file
//   - a pointer stack of cursors, seeded with the arena base
//
// Programs see real host addresses so that a native trap can hand them to
// the kernel unchanged. The engine itself never dereferences an address
// directly: every access is translated onto the register file or the arena
// and bounds-checked, so a wild pointer is reported as
// ErrInvalidMemoryAccess instead of faulting the process.
package vm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fortiblox/sysfk/pkg/parser"
)

// WordSize is the size of an address in memory.
const WordSize = 8

// Arena and stack limits.
const (
	InitialArenaSize     = WordSize
	DefaultMaxArena      = 1 << 30 // 1 GiB
	DefaultMaxStackDepth = 1 << 16
)

// Errors.
var (
	ErrInvalidMemoryAccess = errors.New("invalid memory access")
	ErrArenaLimit          = errors.New("arena limit reached")
	ErrStepLimit           = errors.New("step limit exceeded")
	ErrStackDepthExceeded  = errors.New("pointer stack depth exceeded")
	ErrNoHost              = errors.New("trap executed without a host")
	ErrExitCalled          = errors.New("exit called")
)

// errHalt unwinds the tree walk when the base cursor is returned from.
var errHalt = errors.New("halt")

// Status describes how a run ended.
type Status uint8

const (
	// StatusCompleted means the top-level sequence ran to its end.
	StatusCompleted Status = iota
	// StatusHalted means Return was executed on the base cursor.
	StatusHalted
	// StatusExited means the host reported an exit syscall.
	StatusExited
	// StatusFaulted means the run stopped on an error.
	StatusFaulted
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusHalted:
		return "halted"
	case StatusExited:
		return "exited"
	case StatusFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Host performs the trap instruction. regs is read as input and every
// register may be overwritten as output.
type Host interface {
	Trap(mem Memory, regs *Registers) error
}

// HostFunc is a function that implements Host.
type HostFunc func(mem Memory, regs *Registers) error

// Trap implements Host.
func (f HostFunc) Trap(mem Memory, regs *Registers) error {
	return f(mem, regs)
}

// Event is passed to a Tracer before each instruction executes.
type Event struct {
	Op     parser.Op
	Step   uint64
	Depth  int
	Cursor uint64
}

// Options configures the interpreter.
type Options struct {
	// Host performs traps. A trap with no host fails with ErrNoHost.
	Host Host

	// MaxSteps bounds execution. Zero means unlimited.
	MaxSteps uint64

	// MaxArena caps arena growth in bytes. Zero selects DefaultMaxArena.
	MaxArena int

	// MaxStackDepth caps the pointer stack. Zero selects
	// DefaultMaxStackDepth.
	MaxStackDepth int

	// Tracer, if set, observes every dispatched instruction.
	Tracer func(Event)
}

// Interpreter executes instruction trees.
type Interpreter struct {
	regs     []byte
	regsBase uint64
	arena    *Arena
	stack    *PointerStack

	host   Host
	meter  *StepMeter
	tracer func(Event)

	traps   uint64
	grows   int
	rebased int
}

// New creates an interpreter with a fresh register file and arena.
func New(opts Options) *Interpreter {
	maxArena := opts.MaxArena
	if maxArena == 0 {
		maxArena = DefaultMaxArena
	}
	maxDepth := opts.MaxStackDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxStackDepth
	}

	ip := &Interpreter{
		regs:   make([]byte, RegisterFileSize),
		arena:  newArena(InitialArenaSize, maxArena),
		host:   opts.Host,
		meter:  NewStepMeter(opts.MaxSteps),
		tracer: opts.Tracer,
	}
	ip.regsBase = addrOf(ip.regs)
	binary.LittleEndian.PutUint64(ip.arena.buf, ip.regsBase)
	ip.stack = newPointerStack(ip.arena.Base(), maxDepth)
	return ip
}

// Execute runs prog on a new interpreter.
func Execute(prog parser.Program, opts Options) (*Interpreter, Status, error) {
	ip := New(opts)
	status, err := ip.Run(prog)
	return ip, status, err
}

// Run walks prog once. Returning from the base cursor ends the run with
// StatusHalted; a host returning ErrExitCalled ends it with StatusExited.
// Any other error leaves the state as it was at the failing instruction.
func (ip *Interpreter) Run(prog parser.Program) (status Status, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			status = StatusFaulted
			err = fmt.Errorf("vm panic: %v", rec)
		}
	}()

	err = ip.exec(prog)
	switch {
	case err == nil:
		return StatusCompleted, nil
	case errors.Is(err, errHalt):
		return StatusHalted, nil
	case errors.Is(err, ErrExitCalled):
		return StatusExited, nil
	default:
		return StatusFaulted, err
	}
}

func (ip *Interpreter) exec(prog parser.Program) error {
	for i := range prog {
		ins := &prog[i]

		if err := ip.meter.Consume(CostInstruction); err != nil {
			return err
		}
		if ip.tracer != nil {
			ip.tracer(Event{
				Op:     ins.Op,
				Step:   ip.meter.Used(),
				Depth:  ip.stack.Depth(),
				Cursor: ip.stack.Top(),
			})
		}

		switch ins.Op {
		case parser.OpLoop:
			for {
				if err := ip.meter.Consume(CostLoopCheck); err != nil {
					return err
				}
				// The condition reads whatever cursor is active now, which
				// the body may have changed.
				v, err := ip.Read8(ip.stack.Top())
				if err != nil {
					return err
				}
				if v == 0 {
					break
				}
				if err := ip.exec(ins.Body); err != nil {
					return err
				}
			}

		case parser.OpPointerForward:
			cur := ip.stack.Top() + 1
			ip.stack.setTop(cur)
			if ip.stack.Depth() == 1 {
				if err := ip.ensureArena(cur); err != nil {
					return err
				}
			}

		case parser.OpPointerBackward:
			ip.stack.setTop(ip.stack.Top() - 1)

		case parser.OpValueIncrement:
			mem, err := ip.Translate(ip.stack.Top(), 1)
			if err != nil {
				return err
			}
			mem[0]++

		case parser.OpValueDecrement:
			mem, err := ip.Translate(ip.stack.Top(), 1)
			if err != nil {
				return err
			}
			mem[0]--

		case parser.OpDereference:
			addr, err := ip.ReadWord(ip.stack.Top())
			if err != nil {
				return err
			}
			if err := ip.stack.Push(addr); err != nil {
				return err
			}

		case parser.OpReturn:
			if !ip.stack.Pop() {
				return errHalt
			}

		case parser.OpSelfStore:
			cur := ip.stack.Top()
			if err := ip.WriteWord(cur, cur); err != nil {
				return err
			}

		case parser.OpTrap:
			if err := ip.trap(); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown instruction %d", ins.Op)
		}
	}
	return nil
}

// ensureArena grows the arena until the base cursor at addr is inside it.
// Cursors below the arena start are left alone.
func (ip *Interpreter) ensureArena(addr uint64) error {
	for {
		base := ip.arena.Base()
		if addr < base || addr-base < uint64(ip.arena.Len()) {
			return nil
		}
		oldBase, oldLen, err := ip.arena.grow()
		if err != nil {
			return err
		}
		ip.grows++
		ip.rebased += ip.stack.rebase(oldBase, oldLen, ip.arena.Base())
		addr = ip.arena.Base() + (addr - oldBase)
	}
}

// trap hands the register file to the host and stores whatever it returns,
// even when the host reports an error.
func (ip *Interpreter) trap() error {
	if ip.host == nil {
		return ErrNoHost
	}
	regs := decodeRegisters(ip.regs)
	err := ip.host.Trap(ip, &regs)
	regs.encode(ip.regs)
	ip.traps++
	return err
}

// Registers returns a copy of the register file.
func (ip *Interpreter) Registers() Registers {
	return decodeRegisters(ip.regs)
}

// SetRegisters overwrites the register file.
func (ip *Interpreter) SetRegisters(regs Registers) {
	regs.encode(ip.regs)
}

// RegisterFileAddr returns the address stored in the first arena word.
func (ip *Interpreter) RegisterFileAddr() uint64 {
	return ip.regsBase
}

// Arena returns the memory arena.
func (ip *Interpreter) Arena() *Arena {
	return ip.arena
}

// Stack returns the pointer stack.
func (ip *Interpreter) Stack() *PointerStack {
	return ip.stack
}

// Cursor returns the active cursor.
func (ip *Interpreter) Cursor() uint64 {
	return ip.stack.Top()
}

// Steps returns the number of steps consumed.
func (ip *Interpreter) Steps() uint64 {
	return ip.meter.Used()
}

// Stats reports counters accumulated over the interpreter's lifetime.
type Stats struct {
	Steps     uint64
	Traps     uint64
	Grows     int
	Rebased   int
	ArenaSize int
}

// Stats returns the interpreter counters.
func (ip *Interpreter) Stats() Stats {
	return Stats{
		Steps:     ip.meter.Used(),
		Traps:     ip.traps,
		Grows:     ip.grows,
		Rebased:   ip.rebased,
		ArenaSize: ip.arena.Len(),
	}
}
