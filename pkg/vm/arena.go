package vm

import (
	"fmt"
	"unsafe"
)

// Arena is the growable memory buffer backing program data. It only grows,
// by doubling, and new bytes are always zero.
type Arena struct {
	buf []byte
	max int
}

func newArena(size, max int) *Arena {
	return &Arena{
		buf: make([]byte, size),
		max: max,
	}
}

// Base returns the host address of the first arena byte.
func (a *Arena) Base() uint64 {
	return addrOf(a.buf)
}

// Len returns the current arena length.
func (a *Arena) Len() int {
	return len(a.buf)
}

// Bytes returns the live arena contents. The slice is invalidated by the
// next growth.
func (a *Arena) Bytes() []byte {
	return a.buf
}

// Contains reports whether addr lies inside the arena.
func (a *Arena) Contains(addr uint64) bool {
	base := a.Base()
	return addr >= base && addr-base < uint64(len(a.buf))
}

// grow doubles the arena, returning the previous base and length.
func (a *Arena) grow() (oldBase uint64, oldLen int, err error) {
	oldBase, oldLen = a.Base(), len(a.buf)
	newLen := oldLen * 2
	if newLen <= oldLen || (a.max > 0 && newLen > a.max) {
		return 0, 0, fmt.Errorf("%w: cannot grow %d bytes to %d (max %d)", ErrArenaLimit, oldLen, newLen, a.max)
	}
	buf := make([]byte, newLen)
	copy(buf, a.buf)
	a.buf = buf
	return oldBase, oldLen, nil
}

// addrOf returns the host address of a heap-allocated byte slice. Go's heap
// does not move objects, so the address is stable while the slice is live.
func addrOf(b []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}
