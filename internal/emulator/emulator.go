package emulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kapitanov/chip8emu/internal/vm"
)

var (
	ErrReboot = errors.New("reboot")
	ErrQuit   = errors.New("quit")
)

// HAL is everything the driver loop needs from the host platform.
type HAL interface {
	vm.Keypad

	// ReadInput drains pending input events. It returns ErrQuit or
	// ErrReboot when the user asks for either.
	ReadInput() error

	Clear() error
	Draw(gfx []uint8) error

	StartTone() error
	StopTone() error

	WaitForNextFrame() error
}

// Clock is the timestamp source fed to vm.Cycle. Values never decrease.
type Clock interface {
	Now() time.Duration
}

type systemClock struct {
	start time.Time
}

// SystemClock measures time elapsed since its creation on the monotonic
// wall clock.
func SystemClock() Clock {
	return systemClock{start: time.Now()}
}

func (c systemClock) Now() time.Duration {
	return time.Since(c.start)
}

type Emulator struct {
	program               []byte
	instructionsPerSecond int

	hal   HAL
	clock Clock

	machine *vm.VM
	beeping bool
	halted  bool
}

func New(program []byte, instructionsPerSecond int, hal HAL, clock Clock) (*Emulator, error) {
	e := &Emulator{
		program:               program,
		instructionsPerSecond: instructionsPerSecond,
		hal:                   hal,
		clock:                 clock,
	}

	if err := e.boot(); err != nil {
		return nil, err
	}

	return e, nil
}

// Machine returns the running interpreter. It changes after a reboot.
func (e *Emulator) Machine() *vm.VM {
	return e.machine
}

func (e *Emulator) boot() error {
	machine, err := vm.New(e.program, e.instructionsPerSecond, e.clock.Now(), vm.WithKeypad(e.hal))
	if err != nil {
		return fmt.Errorf("unable to create vm: %w", err)
	}

	e.machine = machine
	e.halted = false
	return nil
}

func (e *Emulator) reboot() error {
	slog.Info("emulator: reboot")

	if err := e.setTone(false); err != nil {
		return err
	}

	if err := e.hal.Clear(); err != nil {
		return err
	}

	return e.boot()
}

// Run drives the machine until ctx is done, the user quits or the
// machine fails. Quitting is not an error.
func (e *Emulator) Run(ctx context.Context) error {
	defer func() {
		if err := e.setTone(false); err != nil {
			slog.Error("emulator: failed to stop tone", "err", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			slog.Debug("emulator: context done")
			return nil
		}

		err := e.runFrame(ctx)
		switch {
		case err == nil:
			continue

		case errors.Is(err, ErrQuit), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			slog.Debug("emulator: exit requested")
			return nil

		case errors.Is(err, ErrReboot):
			if err := e.reboot(); err != nil {
				return err
			}

		default:
			return err
		}
	}
}

func (e *Emulator) runFrame(ctx context.Context) error {
	now := e.clock.Now()

	if err := e.hal.ReadInput(); err != nil {
		return err
	}

	if err := e.machine.Cycle(ctx, now); err != nil {
		return fmt.Errorf("cycle at pc 0x%04x: %w", e.machine.PC(), err)
	}

	if e.machine.Halted() && !e.halted {
		slog.Info("program halted", "pc", fmt.Sprintf("0x%04x", e.machine.PC()))
	}
	e.halted = e.machine.Halted()

	if e.machine.ShouldClear() {
		if err := e.hal.Clear(); err != nil {
			return err
		}
	}

	if e.machine.ShouldDraw() {
		if err := e.hal.Draw(e.machine.Screen()); err != nil {
			return err
		}
	}

	if err := e.setTone(e.machine.ShouldBeep()); err != nil {
		return err
	}

	return e.hal.WaitForNextFrame()
}

func (e *Emulator) setTone(on bool) error {
	if on == e.beeping {
		return nil
	}

	e.beeping = on
	if on {
		return e.hal.StartTone()
	}
	return e.hal.StopTone()
}
