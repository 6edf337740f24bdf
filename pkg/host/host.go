// Package host implements the trap instruction.
//
// Two hosts are provided. Native hands the register file to the kernel with
// a real system call and is only available on linux/amd64. Emulated serves
// a small set of Linux x86-64 system calls in-process through a registry,
// reading and writing buffers through the interpreter's address
// translation.
//
// Both follow the x86-64 Linux convention: rax holds the call number,
// arguments are taken from rdi, rsi, rdx, r10, r8 and r9, and the result
// (or a negated errno) is returned in rax.
package host

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fortiblox/sysfk/pkg/vm"
)

// Host errors.
var (
	ErrUnsupportedHost = errors.New("native traps are not supported on this platform")
	ErrUnknownHost     = errors.New("unknown host kind")
)

// Host kinds accepted by New.
const (
	KindNative   = "native"
	KindEmulated = "emulated"
)

// Linux x86-64 system call numbers.
const (
	SysRead      = 0
	SysWrite     = 1
	SysGetpid    = 39
	SysExit      = 60
	SysGetuid    = 102
	SysExitGroup = 231
)

// Errno values, returned negated in rax.
const (
	EIO    = 5
	EBADF  = 9
	EFAULT = 14
	EINVAL = 22
	ENOSYS = 38
)

// argRegisters lists the argument registers in call order.
var argRegisters = [6]int{vm.RDI, vm.RSI, vm.RDX, vm.R10, vm.R8, vm.R9}

// Args returns the six syscall arguments held in regs.
func Args(regs *vm.Registers) [6]uint64 {
	var a [6]uint64
	for i, r := range argRegisters {
		a[i] = regs[r]
	}
	return a
}

// Errno encodes an errno the way the kernel returns it in rax.
func Errno(e uint64) uint64 {
	return -e
}

// Config configures the emulated host.
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Pid and Uid are reported by getpid and getuid.
	Pid uint64
	Uid uint64

	// MaxIO caps the bytes moved by a single read or write.
	MaxIO uint64
}

// DefaultConfig returns a configuration wired to the process's standard
// streams and identity.
func DefaultConfig() Config {
	return Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Pid:    uint64(os.Getpid()),
		Uid:    uint64(os.Getuid()),
		MaxIO:  1 << 20,
	}
}

// New returns the host named by kind.
func New(kind string, cfg Config) (vm.Host, error) {
	switch kind {
	case KindNative:
		n, err := NewNative()
		if err != nil {
			return nil, err
		}
		return n, nil
	case KindEmulated:
		return NewEmulated(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHost, kind)
	}
}

// Logged wraps h so every trap is reported through logf.
func Logged(h vm.Host, logf func(format string, args ...any)) vm.Host {
	return vm.HostFunc(func(mem vm.Memory, regs *vm.Registers) error {
		nr, args := regs[vm.RAX], Args(regs)
		err := h.Trap(mem, regs)
		logf("trap %d(%#x, %#x, %#x, %#x, %#x, %#x) = %#x, err=%v",
			nr, args[0], args[1], args[2], args[3], args[4], args[5], regs[vm.RAX], err)
		return err
	})
}
