//go:build linux && amd64

package host

import (
	"golang.org/x/sys/unix"

	"github.com/fortiblox/sysfk/pkg/vm"
)

// Native performs traps as real system calls.
type Native struct{}

// NewNative returns the native host.
func NewNative() (*Native, error) {
	return &Native{}, nil
}

// Trap implements vm.Host. The kernel only writes rax (and clobbers rcx and
// r11 with the return address and flags), so rax is the only register
// updated. exit is issued as exit_group: exit ends a single thread, and a Go
// process always has more than one.
func (n *Native) Trap(mem vm.Memory, regs *vm.Registers) error {
	nr := regs[vm.RAX]
	if nr == SysExit {
		nr = SysExitGroup
	}
	a := Args(regs)

	r1, _, errno := unix.Syscall6(uintptr(nr),
		uintptr(a[0]), uintptr(a[1]), uintptr(a[2]),
		uintptr(a[3]), uintptr(a[4]), uintptr(a[5]))
	if errno != 0 {
		regs[vm.RAX] = Errno(uint64(errno))
	} else {
		regs[vm.RAX] = uint64(r1)
	}
	return nil
}
