package vm

import (
	"fmt"
	"log/slog"
)

// stack is the bounded return-address stack used by 2nnn and 00EE.
type stack struct {
	slots [StackSize]uint16
	sp    int
}

// push stores a return address. On a full stack the top slot is
// overwritten and the pointer stays at StackSize.
func (s *stack) push(addr uint16) {
	if s.sp == StackSize {
		slog.Warn("stack overflow, overwriting top slot", "addr", fmt.Sprintf("0x%04x", addr))
		s.slots[StackSize-1] = addr
		return
	}

	s.slots[s.sp] = addr
	s.sp++
}

// pop returns the most recent return address. ok is false on an empty
// stack, which leaves the pointer at zero.
func (s *stack) pop() (addr uint16, ok bool) {
	if s.sp == 0 {
		slog.Warn("stack underflow, return ignored")
		return 0, false
	}

	s.sp--
	return s.slots[s.sp], true
}

func (s *stack) depth() int {
	return s.sp
}
