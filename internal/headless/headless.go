package headless

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/kapitanov/chip8emu/internal/emulator"
	"github.com/kapitanov/chip8emu/internal/vm"
)

// Backend runs the emulator without devices on a virtual clock. Every
// frame advances the clock by a fixed step, so runs are reproducible.
type Backend struct {
	maxFrames int
	frameStep time.Duration

	frames int
	now    time.Duration

	screen []uint8
	held   [vm.KeyCount]bool
	queued []vm.Key
	reboot bool

	Clears     int
	Draws      int
	ToneStarts int
	ToneOn     bool
}

var (
	_ emulator.HAL   = (*Backend)(nil)
	_ emulator.Clock = (*Backend)(nil)
)

func New(maxFrames int, frameStep time.Duration) *Backend {
	return &Backend{
		maxFrames: maxFrames,
		frameStep: frameStep,
		screen:    make([]uint8, vm.ScreenWidth*vm.ScreenHeight),
	}
}

// Now returns the virtual time.
func (h *Backend) Now() time.Duration {
	return h.now
}

// Frames returns the number of completed frames.
func (h *Backend) Frames() int {
	return h.frames
}

// Hold marks a key as held or released for Ex9E and ExA1.
func (h *Backend) Hold(key vm.Key, held bool) {
	h.held[key] = held
}

// Press queues keys that will be returned to Fx0A, in order.
func (h *Backend) Press(keys ...vm.Key) {
	h.queued = append(h.queued, keys...)
}

// Reboot makes the next ReadInput report emulator.ErrReboot.
func (h *Backend) Reboot() {
	h.reboot = true
}

func (h *Backend) ReadInput() error {
	if h.reboot {
		h.reboot = false
		return emulator.ErrReboot
	}

	if h.frames >= h.maxFrames {
		slog.Info("headless execution completed", "frames", h.frames)
		return emulator.ErrQuit
	}

	return nil
}

func (h *Backend) IsPressed(key vm.Key) bool {
	return h.held[key]
}

// WaitKey returns the next queued key. Nobody can press a key later, so an
// empty queue ends the run.
func (h *Backend) WaitKey(ctx context.Context) (vm.Key, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if len(h.queued) == 0 {
		slog.Info("headless: key awaited with no input queued")
		return 0, emulator.ErrQuit
	}

	key := h.queued[0]
	h.queued = h.queued[1:]
	return key, nil
}

func (h *Backend) Clear() error {
	h.Clears++
	for i := range h.screen {
		h.screen[i] = 0
	}
	return nil
}

func (h *Backend) Draw(gfx []uint8) error {
	h.Draws++
	copy(h.screen, gfx)
	return nil
}

func (h *Backend) StartTone() error {
	h.ToneStarts++
	h.ToneOn = true
	return nil
}

func (h *Backend) StopTone() error {
	h.ToneOn = false
	return nil
}

func (h *Backend) WaitForNextFrame() error {
	h.frames++
	h.now += h.frameStep

	if h.frames%600 == 0 {
		slog.Debug("frame progress", "completed", h.frames, "total", h.maxFrames)
	}

	return nil
}

// WriteSnapshot writes the last drawn frame as text, one line per row,
// '█' for a set pixel and '.' for a clear one.
func (h *Backend) WriteSnapshot(w io.Writer) error {
	bw := bufio.NewWriter(w)

	for y := 0; y < vm.ScreenHeight; y++ {
		for x := 0; x < vm.ScreenWidth; x++ {
			r := '.'
			if h.screen[y*vm.ScreenWidth+x] != 0 {
				r = '█'
			}
			if _, err := bw.WriteRune(r); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}

	return bw.Flush()
}
