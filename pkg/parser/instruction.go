// Package parser turns sysfk program text into an instruction tree.
//
// The language is Brainfuck with the I/O instructions replaced:
//
//	[ ]  loop while the byte at the active cursor is nonzero
//	> <  move the active cursor one byte forward/backward
//	+ -  increment/decrement the byte at the active cursor (wrapping)
//	.    trap: perform one host system call with the register file
//	,    self-store: write the cursor's own address at the cursor
//	|    dereference: push the word at the cursor as the new cursor
//	^    return: pop the pointer stack
//
// Every other character is ignored.
package parser

// Op identifies an instruction kind.
type Op uint8

// Instruction kinds.
const (
	OpLoop Op = iota
	OpPointerForward
	OpPointerBackward
	OpValueIncrement
	OpValueDecrement
	OpTrap
	OpSelfStore
	OpDereference
	OpReturn

	numOps
)

// Source characters.
const (
	CharLoopOpen        = '['
	CharLoopClose       = ']'
	CharPointerForward  = '>'
	CharPointerBackward = '<'
	CharValueIncrement  = '+'
	CharValueDecrement  = '-'
	CharTrap            = '.'
	CharSelfStore       = ','
	CharDereference     = '|'
	CharReturn          = '^'
)

var opNames = [numOps]string{
	OpLoop:            "loop",
	OpPointerForward:  "forward",
	OpPointerBackward: "backward",
	OpValueIncrement:  "increment",
	OpValueDecrement:  "decrement",
	OpTrap:            "trap",
	OpSelfStore:       "selfstore",
	OpDereference:     "deref",
	OpReturn:          "return",
}

// String returns the mnemonic for the op.
func (op Op) String() string {
	if op < numOps {
		return opNames[op]
	}
	return "unknown"
}

// Char returns the source character for a non-loop op, or 0.
func (op Op) Char() rune {
	switch op {
	case OpPointerForward:
		return CharPointerForward
	case OpPointerBackward:
		return CharPointerBackward
	case OpValueIncrement:
		return CharValueIncrement
	case OpValueDecrement:
		return CharValueDecrement
	case OpTrap:
		return CharTrap
	case OpSelfStore:
		return CharSelfStore
	case OpDereference:
		return CharDereference
	case OpReturn:
		return CharReturn
	default:
		return 0
	}
}

// Instruction is one node of the tree. Body is only set for OpLoop.
type Instruction struct {
	Op   Op
	Body Program
}

// Program is an ordered instruction sequence.
type Program []Instruction

// Equal reports whether two trees have the same shape and ops.
func (p Program) Equal(other Program) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i].Op != other[i].Op {
			return false
		}
		if p[i].Op == OpLoop && !p[i].Body.Equal(other[i].Body) {
			return false
		}
	}
	return true
}

// Counts summarises a tree.
type Counts struct {
	Ops      [numOps]int
	Total    int
	MaxDepth int
}

// Of returns the count for a single op.
func (c Counts) Of(op Op) int {
	if op < numOps {
		return c.Ops[op]
	}
	return 0
}

// Count walks the tree and tallies its instructions.
func Count(p Program) Counts {
	var c Counts
	count(p, 0, &c)
	return c
}

func count(p Program, depth int, c *Counts) {
	if depth > c.MaxDepth {
		c.MaxDepth = depth
	}
	for _, ins := range p {
		c.Ops[ins.Op]++
		c.Total++
		if ins.Op == OpLoop {
			count(ins.Body, depth+1, c)
		}
	}
}
