package vm

import (
	"encoding/binary"
	"fmt"
)

// Memory is the view of the address space handed to hosts.
type Memory interface {
	Translate(addr uint64, size uint64) ([]byte, error)

	Read(addr uint64, p []byte) error
	Read8(addr uint64) (uint8, error)
	ReadWord(addr uint64) (uint64, error)

	Write(addr uint64, p []byte) error
	Write8(addr uint64, x uint8) error
	WriteWord(addr uint64, x uint64) error
}

// Translate maps [addr, addr+size) onto the region that holds it. Only the
// register file and the arena are addressable.
func (ip *Interpreter) Translate(addr uint64, size uint64) ([]byte, error) {
	if size > 0 && addr > ^uint64(0)-size {
		return nil, fmt.Errorf("%w: address overflow at 0x%x (size %d)", ErrInvalidMemoryAccess, addr, size)
	}
	if mem, ok := sliceAt(ip.regs, ip.regsBase, addr, size); ok {
		return mem, nil
	}
	if mem, ok := sliceAt(ip.arena.buf, ip.arena.Base(), addr, size); ok {
		return mem, nil
	}
	return nil, fmt.Errorf("%w: 0x%x (size %d) is outside the register file and arena", ErrInvalidMemoryAccess, addr, size)
}

func sliceAt(mem []byte, base, addr, size uint64) ([]byte, bool) {
	if addr < base {
		return nil, false
	}
	off := addr - base
	n := uint64(len(mem))
	if off > n || size > n-off {
		return nil, false
	}
	return mem[off : off+size : off+size], true
}

// Read copies len(p) bytes starting at addr.
func (ip *Interpreter) Read(addr uint64, p []byte) error {
	mem, err := ip.Translate(addr, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(p, mem)
	return nil
}

// Read8 reads one byte.
func (ip *Interpreter) Read8(addr uint64) (uint8, error) {
	mem, err := ip.Translate(addr, 1)
	if err != nil {
		return 0, err
	}
	return mem[0], nil
}

// ReadWord reads an unaligned little-endian machine word.
func (ip *Interpreter) ReadWord(addr uint64) (uint64, error) {
	mem, err := ip.Translate(addr, WordSize)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(mem), nil
}

// Write copies p to addr.
func (ip *Interpreter) Write(addr uint64, p []byte) error {
	mem, err := ip.Translate(addr, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(mem, p)
	return nil
}

// Write8 writes one byte.
func (ip *Interpreter) Write8(addr uint64, x uint8) error {
	mem, err := ip.Translate(addr, 1)
	if err != nil {
		return err
	}
	mem[0] = x
	return nil
}

// WriteWord writes an unaligned little-endian machine word.
func (ip *Interpreter) WriteWord(addr uint64, x uint64) error {
	mem, err := ip.Translate(addr, WordSize)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(mem, x)
	return nil
}
