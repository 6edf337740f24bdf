package vm

import "fmt"

// PointerStack holds the cursors pushed by dereference. It is never empty:
// the bottom entry is the base cursor.
type PointerStack struct {
	entries  []uint64
	maxDepth int
}

func newPointerStack(base uint64, maxDepth int) *PointerStack {
	return &PointerStack{
		entries:  []uint64{base},
		maxDepth: maxDepth,
	}
}

// Top returns the active cursor.
func (s *PointerStack) Top() uint64 {
	return s.entries[len(s.entries)-1]
}

func (s *PointerStack) setTop(addr uint64) {
	s.entries[len(s.entries)-1] = addr
}

// Push makes addr the active cursor.
func (s *PointerStack) Push(addr uint64) error {
	if s.maxDepth > 0 && len(s.entries) >= s.maxDepth {
		return fmt.Errorf("%w: depth %d", ErrStackDepthExceeded, len(s.entries))
	}
	s.entries = append(s.entries, addr)
	return nil
}

// Pop drops the active cursor. It returns false, leaving the stack alone,
// when only the base cursor is left.
func (s *PointerStack) Pop() bool {
	if len(s.entries) <= 1 {
		return false
	}
	s.entries = s.entries[:len(s.entries)-1]
	return true
}

// Depth returns the number of cursors on the stack.
func (s *PointerStack) Depth() int {
	return len(s.entries)
}

// Entries returns a copy of the stack, base first.
func (s *PointerStack) Entries() []uint64 {
	out := make([]uint64, len(s.entries))
	copy(out, s.entries)
	return out
}

// rebase moves every entry in [oldBase, oldBase+oldLen] to the same offset
// from newBase. The closed upper bound covers a cursor sitting one past the
// end, which is exactly where the base cursor is when growth triggers.
func (s *PointerStack) rebase(oldBase uint64, oldLen int, newBase uint64) int {
	n := 0
	for i, addr := range s.entries {
		if addr >= oldBase && addr-oldBase <= uint64(oldLen) {
			s.entries[i] = newBase + (addr - oldBase)
			n++
		}
	}
	return n
}
