package terminal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/kapitanov/chip8emu/internal/emulator"
	"github.com/kapitanov/chip8emu/internal/vm"
)

const (
	// Terminals report key presses only, so a key counts as held until it
	// has not repeated for this long.
	keyTimeout = 150 * time.Millisecond

	waitKeyPoll = 5 * time.Millisecond
	frameDelay  = 200 * time.Microsecond
)

// Backend renders the display with half-block characters, two pixel rows
// per terminal line.
type Backend struct {
	screen tcell.Screen
	style  tcell.Style

	pressed map[vm.Key]time.Time
	now     func() time.Time

	logs     *logBuffer
	logOut   io.Writer
	prevLogs *slog.Logger
}

var _ emulator.HAL = (*Backend)(nil)

func New(logLevel slog.Level) (*Backend, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to create terminal screen: %w", err)
	}

	return NewWithScreen(screen, logLevel)
}

// NewWithScreen initializes the backend on an existing screen and routes
// logging into a buffer until Shutdown.
func NewWithScreen(screen tcell.Screen, logLevel slog.Level) (*Backend, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}

	width, height := screen.Size()
	if width < vm.ScreenWidth || height < vm.ScreenHeight/2 {
		screen.Fini()
		return nil, fmt.Errorf("terminal is %dx%d, at least %dx%d is required", width, height, vm.ScreenWidth, vm.ScreenHeight/2)
	}

	t := &Backend{
		screen:   screen,
		style:    tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite),
		pressed:  make(map[vm.Key]time.Time),
		now:      time.Now,
		logs:     newLogBuffer(200),
		logOut:   os.Stderr,
		prevLogs: slog.Default(),
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(t.logs, &slog.HandlerOptions{Level: logLevel})))
	slog.Info("terminal backend initialized", "width", width, "height", height)

	t.screen.SetStyle(t.style)
	t.screen.Clear()
	t.screen.Show()

	return t, nil
}

// Shutdown restores the terminal and the previous logger, then flushes the
// buffered log lines to stderr.
func (t *Backend) Shutdown() {
	t.screen.Fini()
	slog.SetDefault(t.prevLogs)

	for _, line := range t.logs.lines() {
		fmt.Fprintln(t.logOut, line)
	}
}

func (t *Backend) ReadInput() error {
	for t.screen.HasPendingEvent() {
		if _, err := t.processEvent(t.screen.PollEvent()); err != nil {
			return err
		}
	}

	return nil
}

func (t *Backend) IsPressed(key vm.Key) bool {
	at, ok := t.pressed[key]
	if !ok {
		return false
	}

	if t.now().Sub(at) >= keyTimeout {
		delete(t.pressed, key)
		return false
	}

	return true
}

func (t *Backend) WaitKey(ctx context.Context) (vm.Key, error) {
	for {
		for t.screen.HasPendingEvent() {
			key, err := t.processEvent(t.screen.PollEvent())
			if err != nil {
				return 0, err
			}
			if key != nil {
				return *key, nil
			}
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(waitKeyPoll):
		}
	}
}

func (t *Backend) processEvent(ev tcell.Event) (*vm.Key, error) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		t.screen.Sync()

	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			slog.Debug("terminal: exit requested")
			return nil, emulator.ErrQuit

		case tcell.KeyBackspace, tcell.KeyBackspace2:
			return nil, emulator.ErrReboot

		case tcell.KeyRune:
			key, ok := runeMap[ev.Rune()]
			if !ok {
				return nil, nil
			}

			t.pressed[key] = t.now()
			return &key, nil
		}
	}

	return nil, nil
}

// runeMap uses the same physical layout as the SDL backend.
var runeMap = map[rune]vm.Key{
	'1': vm.Key1, '2': vm.Key2, '3': vm.Key3, '4': vm.KeyC,
	'q': vm.Key4, 'w': vm.Key5, 'e': vm.Key6, 'r': vm.KeyD,
	'a': vm.Key7, 's': vm.Key8, 'd': vm.Key9, 'f': vm.KeyE,
	'z': vm.KeyA, 'x': vm.Key0, 'c': vm.KeyB, 'v': vm.KeyF,
}

func (t *Backend) Clear() error {
	t.screen.Clear()
	t.screen.Show()
	return nil
}

func (t *Backend) Draw(gfx []uint8) error {
	for row := 0; row < vm.ScreenHeight/2; row++ {
		for x := 0; x < vm.ScreenWidth; x++ {
			top := gfx[(2*row)*vm.ScreenWidth+x] != 0
			bottom := gfx[(2*row+1)*vm.ScreenWidth+x] != 0

			t.screen.SetContent(x, row, halfBlock(top, bottom), nil, t.style)
		}
	}

	t.screen.Show()
	return nil
}

func halfBlock(top, bottom bool) rune {
	switch {
	case top && bottom:
		return '█'
	case top:
		return '▀'
	case bottom:
		return '▄'
	default:
		return ' '
	}
}

// StartTone rings the terminal bell once; a terminal cannot hold a tone.
func (t *Backend) StartTone() error {
	return t.screen.Beep()
}

func (t *Backend) StopTone() error {
	return nil
}

func (t *Backend) WaitForNextFrame() error {
	time.Sleep(frameDelay)
	return nil
}
