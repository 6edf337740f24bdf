package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// NumRegisters is the number of general-purpose registers exposed to
// programs. rbx, rsp and rbp belong to the host runtime and are excluded.
const NumRegisters = 13

// RegisterFileSize is the size of the register file region in bytes.
const RegisterFileSize = NumRegisters * WordSize

// Register indexes, in register file order.
const (
	RAX = iota
	RCX
	RDX
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var registerNames = [NumRegisters]string{
	"rax", "rcx", "rdx", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// RegisterName returns the assembler name of register i.
func RegisterName(i int) string {
	if i < 0 || i >= NumRegisters {
		return fmt.Sprintf("r?%d", i)
	}
	return registerNames[i]
}

// Registers is a decoded copy of the register file.
type Registers [NumRegisters]uint64

// String renders the registers four per line.
func (r Registers) String() string {
	var sb strings.Builder
	for i, v := range r {
		fmt.Fprintf(&sb, "%-3s %016x", registerNames[i], v)
		if i%4 == 3 || i == NumRegisters-1 {
			sb.WriteByte('\n')
		} else {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// decodeRegisters reads the register file region.
func decodeRegisters(b []byte) Registers {
	var r Registers
	for i := range r {
		r[i] = binary.LittleEndian.Uint64(b[i*WordSize:])
	}
	return r
}

// encode writes the registers into the register file region.
func (r *Registers) encode(b []byte) {
	for i, v := range r {
		binary.LittleEndian.PutUint64(b[i*WordSize:], v)
	}
}
