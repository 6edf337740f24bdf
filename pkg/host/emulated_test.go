package host

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fortiblox/sysfk/pkg/parser"
	"github.com/fortiblox/sysfk/pkg/vm"
)

func testConfig(stdin string) (Config, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return Config{
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: &stderr,
		Pid:    4242,
		Uid:    1000,
		MaxIO:  64,
	}, &stdout, &stderr
}

// newArenaVM returns an interpreter whose base cursor sits on a zeroed
// 8-byte span at arena offset 8.
func newArenaVM(t *testing.T, h vm.Host) *vm.Interpreter {
	t.Helper()
	ip := vm.New(vm.Options{Host: h})
	if _, err := ip.Run(parser.Parse(">>>>>>>>")); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	return ip
}

func TestEmulatedWrite(t *testing.T) {
	cfg, stdout, stderr := testConfig("")
	e := NewEmulated(cfg)
	ip := newArenaVM(t, e)

	buf := ip.Cursor()
	if err := ip.Write(buf, []byte("ok\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	tests := []struct {
		name    string
		fd      uint64
		addr    uint64
		count   uint64
		wantRAX uint64
	}{
		{"stdout", 1, buf, 3, 3},
		{"stderr", 2, buf, 2, 2},
		{"bad fd", 7, buf, 3, Errno(EBADF)},
		{"bad buffer", 1, 0x10, 3, Errno(EFAULT)},
		{"buffer past arena end", 1, buf, 9, Errno(EFAULT)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regs := vm.Registers{vm.RAX: SysWrite, vm.RDI: tt.fd, vm.RSI: tt.addr, vm.RDX: tt.count}
			if err := e.Trap(ip, &regs); err != nil {
				t.Fatalf("Trap failed: %v", err)
			}
			if regs[vm.RAX] != tt.wantRAX {
				t.Errorf("rax = %#x, want %#x", regs[vm.RAX], tt.wantRAX)
			}
		})
	}

	if stdout.String() != "ok\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "ok\n")
	}
	if stderr.String() != "ok" {
		t.Errorf("stderr = %q, want %q", stderr.String(), "ok")
	}
}

func TestEmulatedRead(t *testing.T) {
	cfg, _, _ := testConfig("abc")
	e := NewEmulated(cfg)
	ip := newArenaVM(t, e)

	regs := vm.Registers{vm.RAX: SysRead, vm.RDI: 0, vm.RSI: ip.Cursor(), vm.RDX: 8}
	if err := e.Trap(ip, &regs); err != nil {
		t.Fatalf("Trap failed: %v", err)
	}
	if regs[vm.RAX] != 3 {
		t.Errorf("rax = %d, want 3", regs[vm.RAX])
	}
	got := make([]byte, 3)
	if err := ip.Read(ip.Cursor(), got); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("buffer = %q, want %q", got, "abc")
	}

	// End of input reads zero bytes.
	regs = vm.Registers{vm.RAX: SysRead, vm.RSI: ip.Cursor(), vm.RDX: 8}
	if err := e.Trap(ip, &regs); err != nil {
		t.Fatalf("Trap failed: %v", err)
	}
	if regs[vm.RAX] != 0 {
		t.Errorf("rax at EOF = %d, want 0", regs[vm.RAX])
	}

	regs = vm.Registers{vm.RAX: SysRead, vm.RDI: 3, vm.RSI: ip.Cursor(), vm.RDX: 8}
	_ = e.Trap(ip, &regs)
	if regs[vm.RAX] != Errno(EBADF) {
		t.Errorf("rax for bad fd = %#x, want -EBADF", regs[vm.RAX])
	}
}

func TestEmulatedIdentityAndUnknown(t *testing.T) {
	cfg, _, _ := testConfig("")
	e := NewEmulated(cfg)
	ip := vm.New(vm.Options{Host: e})

	tests := []struct {
		nr   uint64
		want uint64
	}{
		{SysGetpid, 4242},
		{SysGetuid, 1000},
		{9999, Errno(ENOSYS)},
	}
	for _, tt := range tests {
		regs := vm.Registers{vm.RAX: tt.nr, vm.R12: 5}
		if err := e.Trap(ip, &regs); err != nil {
			t.Fatalf("Trap(%d) failed: %v", tt.nr, err)
		}
		if regs[vm.RAX] != tt.want {
			t.Errorf("Trap(%d) rax = %#x, want %#x", tt.nr, regs[vm.RAX], tt.want)
		}
		if regs[vm.R12] != 5 {
			t.Errorf("Trap(%d) clobbered r12", tt.nr)
		}
	}
	if e.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", e.Calls())
	}
	if e.Name(SysGetpid) != "getpid" || e.Name(9999) != "unknown" {
		t.Error("Name() returned wrong names")
	}
}

func TestEmulatedExit(t *testing.T) {
	cfg, _, _ := testConfig("")
	e := NewEmulated(cfg)

	// exit(2), followed by an instruction that must not run.
	regs := vm.Registers{vm.RAX: SysExit, vm.RDI: 2}
	ip := vm.New(vm.Options{Host: e})
	ip.SetRegisters(regs)

	status, err := ip.Run(parser.Parse(".+"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status != vm.StatusExited {
		t.Errorf("status = %v, want exited", status)
	}
	code, ok := e.ExitCode()
	if !ok || code != 2 {
		t.Errorf("ExitCode() = %d, %v, want 2, true", code, ok)
	}
}

func TestEmulatedRegister(t *testing.T) {
	cfg, _, _ := testConfig("")
	e := NewEmulated(cfg)
	e.Register(500, "answer", func(mem vm.Memory, regs *vm.Registers) error {
		regs[vm.RAX] = 42
		return nil
	})

	if _, ok := e.Lookup(500); !ok {
		t.Fatal("Lookup(500) missing")
	}
	regs := vm.Registers{vm.RAX: 500}
	if err := e.Trap(nil, &regs); err != nil {
		t.Fatalf("Trap failed: %v", err)
	}
	if regs[vm.RAX] != 42 {
		t.Errorf("rax = %d, want 42", regs[vm.RAX])
	}
}

// TestHelloWorld has the program select write(1, ...) by bumping rax and rdi
// through the register file. The buffer address and length are seeded.
func TestHelloWorld(t *testing.T) {
	cfg, stdout, _ := testConfig("")
	e := NewEmulated(cfg)
	ip := newArenaVM(t, e)

	if err := ip.Write(ip.Cursor(), []byte("hi")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	ip.SetRegisters(vm.Registers{vm.RSI: ip.Cursor(), vm.RDX: 2})

	// Back to offset 0, into the register file: rax += 1, then rdi += 1.
	src := "<<<<<<<<" + "|+" + strings.Repeat(">", 4*vm.WordSize) + "+^" + "."
	status, err := ip.Run(parser.Parse(src))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status != vm.StatusCompleted {
		t.Errorf("status = %v, want completed", status)
	}
	if stdout.String() != "hi" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "hi")
	}
	if ip.Registers()[vm.RAX] != 2 {
		t.Errorf("rax = %d, want 2", ip.Registers()[vm.RAX])
	}
}

func TestNew(t *testing.T) {
	cfg, _, _ := testConfig("")
	h, err := New(KindEmulated, cfg)
	if err != nil {
		t.Fatalf("New(emulated) failed: %v", err)
	}
	if _, ok := h.(*Emulated); !ok {
		t.Errorf("New(emulated) = %T", h)
	}
	if _, err := New("bogus", cfg); !errors.Is(err, ErrUnknownHost) {
		t.Errorf("New(bogus) err = %v, want ErrUnknownHost", err)
	}
}

func TestLogged(t *testing.T) {
	cfg, _, _ := testConfig("")
	var lines []string
	h := Logged(NewEmulated(cfg), func(format string, args ...any) {
		lines = append(lines, format)
	})
	regs := vm.Registers{vm.RAX: SysGetpid}
	if err := h.Trap(nil, &regs); err != nil {
		t.Fatalf("Trap failed: %v", err)
	}
	if len(lines) != 1 {
		t.Errorf("logged %d lines, want 1", len(lines))
	}
	if regs[vm.RAX] != 4242 {
		t.Errorf("rax = %d, want 4242", regs[vm.RAX])
	}
}
