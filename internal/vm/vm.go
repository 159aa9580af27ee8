package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	ProgramStart    = uint16(0x200)
	InstructionSize = 2

	// TimerPeriod is the 60 Hz cadence of the delay and sound timers.
	TimerPeriod = 16_666_666 * time.Nanosecond

	flagRegister = 0x0F
)

var (
	ErrROMTooLarge  = errors.New("rom does not fit in memory")
	ErrInvalidRate  = errors.New("instructions per second must be positive")
	ErrPCOutOfRange = errors.New("program counter is out of memory")
)

type VM struct {
	memory    []uint8 // Memory (4k)
	registers []uint8 // V registers (V0-VF)

	stack stack // Call stack

	pc    uint16 // Program counter
	index uint16 // Index register

	delayTimer uint8 // Delay timer
	soundTimer uint8 // Sound timer

	gfx []uint8 // Graphics buffer

	clearFlag bool // 00E0 executed during the last cycle
	drawFlag  bool // Dxyn executed during the last cycle
	beepFlag  bool // Sound timer still running after the last timer tick
	halted    bool // Last jump targeted its own address

	instructionPeriod   time.Duration
	lastTimerTick       time.Duration
	lastInstructionTick time.Duration

	keypad Keypad
	random func() uint8
}

type Option func(vm *VM)

// WithKeypad connects the key-held query and the blocking key wait used
// by Ex9E, ExA1 and Fx0A.
func WithKeypad(k Keypad) Option {
	return func(vm *VM) {
		vm.keypad = k
	}
}

// WithRandom replaces the byte source used by Cxnn.
func WithRandom(fn func() uint8) Option {
	return func(vm *VM) {
		vm.random = fn
	}
}

// New builds a machine with the font table at 0x000 and the program at
// ProgramStart. now seeds both the timer and the instruction clocks.
func New(program []byte, instructionsPerSecond int, now time.Duration, opts ...Option) (*VM, error) {
	if instructionsPerSecond <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRate, instructionsPerSecond)
	}

	if len(program) > MemorySize-int(ProgramStart) {
		return nil, fmt.Errorf("%w: %d bytes, at most %d allowed", ErrROMTooLarge, len(program), MemorySize-int(ProgramStart))
	}

	vm := &VM{
		memory:              make([]uint8, MemorySize),
		registers:           make([]uint8, RegisterCount),
		gfx:                 make([]uint8, ScreenWidth*ScreenHeight),
		pc:                  ProgramStart,
		instructionPeriod:   time.Second / time.Duration(instructionsPerSecond),
		lastTimerTick:       now,
		lastInstructionTick: now,
		keypad:              noKeypad{},
		random:              func() uint8 { return uint8(rand.Intn(256)) },
	}

	for _, opt := range opts {
		opt(vm)
	}

	// Load font set into memory
	slog.Debug("load font", "at", fmt.Sprintf("0x%04x", 0), "n", len(chip8Font))
	copy(vm.memory[0:], chip8Font)

	// Load program into memory
	slog.Info("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(program))
	copy(vm.memory[ProgramStart:], program)

	return vm, nil
}

// Screen returns the 64x32 row-major display buffer. Each cell is 0 or 1.
// The slice is owned by the machine and is only valid until the next Cycle.
func (vm *VM) Screen() []uint8 {
	return vm.gfx
}

// ShouldClear reports whether 00E0 ran during the last Cycle.
func (vm *VM) ShouldClear() bool {
	return vm.clearFlag
}

// ShouldDraw reports whether Dxyn ran during the last Cycle.
func (vm *VM) ShouldDraw() bool {
	return vm.drawFlag
}

// ShouldBeep reports whether the sound timer was still running after the
// last timer tick.
func (vm *VM) ShouldBeep() bool {
	return vm.beepFlag
}

// Halted reports whether the last executed instruction jumped to itself.
func (vm *VM) Halted() bool {
	return vm.halted
}

func (vm *VM) PC() uint16 {
	return vm.pc
}

// Cycle advances the timers and runs at most one instruction, depending on
// how much time has passed since the previous tick of each clock. now must
// never decrease between calls.
func (vm *VM) Cycle(ctx context.Context, now time.Duration) error {
	vm.clearFlag = false
	vm.drawFlag = false

	if now-vm.lastTimerTick >= TimerPeriod {
		vm.tickTimers()
		vm.lastTimerTick = now
	}

	// A late call runs a single instruction, there is no catch-up burst.
	if now-vm.lastInstructionTick >= vm.instructionPeriod {
		if err := vm.step(ctx); err != nil {
			return err
		}
		vm.lastInstructionTick = now
	}

	return nil
}

func (vm *VM) tickTimers() {
	if vm.delayTimer > 0 {
		vm.delayTimer--
	}

	if vm.soundTimer > 0 {
		vm.soundTimer--
	}

	vm.beepFlag = vm.soundTimer > 0
}

func (vm *VM) step(ctx context.Context) error {
	raw, err := vm.fetchOpcode()
	if err != nil {
		return err
	}

	return vm.executeOpcode(ctx, opcode(raw))
}

func (vm *VM) fetchOpcode() (uint16, error) {
	if int(vm.pc)+1 >= MemorySize {
		return 0, fmt.Errorf("%w: pc=0x%04x", ErrPCOutOfRange, vm.pc)
	}

	hi := vm.memory[vm.pc]
	lo := vm.memory[vm.pc+1]
	vm.pc += InstructionSize

	opcode := uint16(hi)<<8 | uint16(lo) // Op code is two bytes
	return opcode, nil
}

// Index register addressing is not bounds checked by programs, so every
// access through I wraps inside the 4k address space.
func (vm *VM) addr(offset uint16) uint16 {
	return (vm.index + offset) & (MemorySize - 1)
}
