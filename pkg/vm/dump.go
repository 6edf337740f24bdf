package vm

import (
	"fmt"
	"io"
)

// HexDumpWidth is the number of bytes per hex dump line.
const HexDumpWidth = 16

// HexDump writes data as unseparated hex, HexDumpWidth bytes per line.
func HexDump(w io.Writer, data []byte) error {
	for i := 0; i < len(data); i += HexDumpWidth {
		end := i + HexDumpWidth
		if end > len(data) {
			end = len(data)
		}
		if _, err := fmt.Fprintf(w, "%x\n", data[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// Dump writes the register file followed by a hex dump of the arena.
func (ip *Interpreter) Dump(w io.Writer) error {
	if _, err := io.WriteString(w, ip.Registers().String()); err != nil {
		return err
	}
	return HexDump(w, ip.arena.buf)
}
