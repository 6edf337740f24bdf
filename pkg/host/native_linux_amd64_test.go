//go:build linux && amd64

package host

import (
	"io"
	"os"
	"testing"

	"github.com/fortiblox/sysfk/pkg/parser"
	"github.com/fortiblox/sysfk/pkg/vm"
)

// TestNativeGetpid checks that a native getpid only changes rax.
func TestNativeGetpid(t *testing.T) {
	n, err := NewNative()
	if err != nil {
		t.Fatalf("NewNative failed: %v", err)
	}
	ip := vm.New(vm.Options{Host: n})

	before := vm.Registers{vm.RAX: SysGetpid, vm.RCX: 1, vm.RDI: 2, vm.R12: 3, vm.R15: 4}
	ip.SetRegisters(before)

	if _, err := ip.Run(parser.Parse(".")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	after := ip.Registers()
	if after[vm.RAX] != uint64(os.Getpid()) {
		t.Errorf("rax = %d, want pid %d", after[vm.RAX], os.Getpid())
	}
	after[vm.RAX] = before[vm.RAX]
	if after != before {
		t.Errorf("registers other than rax changed:\n%v\nwant\n%v", after, before)
	}
}

// TestNativeProgramSelectsCall builds getpid (39) entirely in the program by
// incrementing rax through the register file.
func TestNativeProgramSelectsCall(t *testing.T) {
	n, _ := NewNative()
	ip := vm.New(vm.Options{Host: n})

	src := "|"
	for i := 0; i < SysGetpid; i++ {
		src += "+"
	}
	src += "^."
	if _, err := ip.Run(parser.Parse(src)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := ip.Registers()[vm.RAX]; got != uint64(os.Getpid()) {
		t.Errorf("rax = %d, want pid %d", got, os.Getpid())
	}
}

func TestNativeErrno(t *testing.T) {
	n, _ := NewNative()
	regs := vm.Registers{vm.RAX: 100000}
	if err := n.Trap(nil, &regs); err != nil {
		t.Fatalf("Trap failed: %v", err)
	}
	if regs[vm.RAX] != Errno(ENOSYS) {
		t.Errorf("rax = %#x, want -ENOSYS", regs[vm.RAX])
	}
}

// TestNativeWriteFromArena has the kernel read a buffer straight out of the
// arena.
func TestNativeWriteFromArena(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	defer r.Close()

	n, _ := NewNative()
	ip := vm.New(vm.Options{Host: n})
	if _, err := ip.Run(parser.Parse(">>>>>>>>")); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := ip.Write(ip.Cursor(), []byte("sysfk")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	ip.SetRegisters(vm.Registers{
		vm.RAX: SysWrite,
		vm.RDI: uint64(w.Fd()),
		vm.RSI: ip.Cursor(),
		vm.RDX: 5,
	})

	if _, err := ip.Run(parser.Parse(".")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	w.Close()

	if got := ip.Registers()[vm.RAX]; got != 5 {
		t.Errorf("rax = %d, want 5", got)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(out) != "sysfk" {
		t.Errorf("pipe = %q, want %q", out, "sysfk")
	}
}
