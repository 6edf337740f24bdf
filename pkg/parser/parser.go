package parser

import (
	"io"
	"strings"
)

// Parse parses program text. It never fails: unknown characters are
// skipped, an unmatched ']' ends the current level and a missing ']' is
// closed by end of input.
func Parse(src string) Program {
	return ParseReader(strings.NewReader(src))
}

// ParseReader parses program text from r. A read error is treated as end
// of input.
func ParseReader(r io.RuneReader) Program {
	return parseLevel(r)
}

func parseLevel(r io.RuneReader) Program {
	prog := Program{}
	for {
		ch, _, err := r.ReadRune()
		if err != nil {
			return prog
		}
		switch ch {
		case CharLoopOpen:
			prog = append(prog, Instruction{Op: OpLoop, Body: parseLevel(r)})
		case CharLoopClose:
			return prog
		case CharPointerForward:
			prog = append(prog, Instruction{Op: OpPointerForward})
		case CharPointerBackward:
			prog = append(prog, Instruction{Op: OpPointerBackward})
		case CharValueIncrement:
			prog = append(prog, Instruction{Op: OpValueIncrement})
		case CharValueDecrement:
			prog = append(prog, Instruction{Op: OpValueDecrement})
		case CharTrap:
			prog = append(prog, Instruction{Op: OpTrap})
		case CharSelfStore:
			prog = append(prog, Instruction{Op: OpSelfStore})
		case CharDereference:
			prog = append(prog, Instruction{Op: OpDereference})
		case CharReturn:
			prog = append(prog, Instruction{Op: OpReturn})
		}
	}
}
