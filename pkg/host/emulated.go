package host

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/fortiblox/sysfk/pkg/vm"
)

// Handler serves one system call. It reads its arguments from regs and
// stores the result in regs[vm.RAX].
type Handler func(mem vm.Memory, regs *vm.Registers) error

// Emulated is a host that serves system calls from a registry.
type Emulated struct {
	cfg      Config
	handlers map[uint64]Handler
	names    map[uint64]string

	calls    atomic.Uint64
	exited   atomic.Bool
	exitCode atomic.Uint64
}

// NewEmulated creates an emulated host with all standard calls registered.
func NewEmulated(cfg Config) *Emulated {
	if cfg.MaxIO == 0 {
		cfg.MaxIO = DefaultConfig().MaxIO
	}
	e := &Emulated{
		cfg:      cfg,
		handlers: make(map[uint64]Handler),
		names:    make(map[uint64]string),
	}

	e.registerIO()
	e.registerProcess()

	return e
}

// Register adds or replaces the handler for call number nr.
func (e *Emulated) Register(nr uint64, name string, h Handler) {
	e.handlers[nr] = h
	e.names[nr] = name
}

// Lookup returns the handler for nr.
func (e *Emulated) Lookup(nr uint64) (Handler, bool) {
	h, ok := e.handlers[nr]
	return h, ok
}

// Name returns the registered name for nr.
func (e *Emulated) Name(nr uint64) string {
	if name, ok := e.names[nr]; ok {
		return name
	}
	return "unknown"
}

// Trap implements vm.Host. Unknown calls fail with -ENOSYS like the
// kernel does.
func (e *Emulated) Trap(mem vm.Memory, regs *vm.Registers) error {
	e.calls.Add(1)
	h, ok := e.handlers[regs[vm.RAX]]
	if !ok {
		regs[vm.RAX] = Errno(ENOSYS)
		return nil
	}
	return h(mem, regs)
}

// Calls returns the number of traps served.
func (e *Emulated) Calls() uint64 {
	return e.calls.Load()
}

// ExitCode returns the status passed to exit, if exit was called.
func (e *Emulated) ExitCode() (uint64, bool) {
	return e.exitCode.Load(), e.exited.Load()
}

// registerIO registers read and write.
func (e *Emulated) registerIO() {
	// read(fd, buf, count)
	e.Register(SysRead, "read", func(mem vm.Memory, regs *vm.Registers) error {
		fd, buf, count := regs[vm.RDI], regs[vm.RSI], regs[vm.RDX]
		if fd != 0 || e.cfg.Stdin == nil {
			regs[vm.RAX] = Errno(EBADF)
			return nil
		}
		if count > e.cfg.MaxIO {
			count = e.cfg.MaxIO
		}

		dst, err := mem.Translate(buf, count)
		if err != nil {
			regs[vm.RAX] = Errno(EFAULT)
			return nil
		}

		n, err := e.cfg.Stdin.Read(dst)
		if err != nil && !errors.Is(err, io.EOF) {
			regs[vm.RAX] = Errno(EIO)
			return nil
		}
		regs[vm.RAX] = uint64(n)
		return nil
	})

	// write(fd, buf, count)
	e.Register(SysWrite, "write", func(mem vm.Memory, regs *vm.Registers) error {
		fd, buf, count := regs[vm.RDI], regs[vm.RSI], regs[vm.RDX]
		var w io.Writer
		switch fd {
		case 1:
			w = e.cfg.Stdout
		case 2:
			w = e.cfg.Stderr
		}
		if w == nil {
			regs[vm.RAX] = Errno(EBADF)
			return nil
		}
		if count > e.cfg.MaxIO {
			count = e.cfg.MaxIO
		}

		src, err := mem.Translate(buf, count)
		if err != nil {
			regs[vm.RAX] = Errno(EFAULT)
			return nil
		}

		n, err := w.Write(src)
		if err != nil && n == 0 {
			regs[vm.RAX] = Errno(EIO)
			return nil
		}
		regs[vm.RAX] = uint64(n)
		return nil
	})
}

// registerProcess registers identity and exit calls.
func (e *Emulated) registerProcess() {
	e.Register(SysGetpid, "getpid", func(mem vm.Memory, regs *vm.Registers) error {
		regs[vm.RAX] = e.cfg.Pid
		return nil
	})

	e.Register(SysGetuid, "getuid", func(mem vm.Memory, regs *vm.Registers) error {
		regs[vm.RAX] = e.cfg.Uid
		return nil
	})

	exit := func(mem vm.Memory, regs *vm.Registers) error {
		e.exitCode.Store(regs[vm.RDI])
		e.exited.Store(true)
		return vm.ErrExitCalled
	}
	e.Register(SysExit, "exit", exit)
	e.Register(SysExitGroup, "exit_group", exit)
}
