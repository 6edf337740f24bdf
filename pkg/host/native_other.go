//go:build !(linux && amd64)

package host

import "github.com/fortiblox/sysfk/pkg/vm"

// Native is unavailable on this platform.
type Native struct{}

// NewNative always fails with ErrUnsupportedHost.
func NewNative() (*Native, error) {
	return nil, ErrUnsupportedHost
}

// Trap implements vm.Host.
func (n *Native) Trap(mem vm.Memory, regs *vm.Registers) error {
	return ErrUnsupportedHost
}
