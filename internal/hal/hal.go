package hal

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"github.com/kapitanov/chip8emu/internal/emulator"
	"github.com/kapitanov/chip8emu/internal/vm"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	DefaultScale = 10

	waitKeyTimeoutMillis = 10
)

type HAL struct {
	window          *sdl.Window
	renderer        *sdl.Renderer
	texture         *sdl.Texture
	backBuffer      []uint32
	backBufferPitch int

	audio *tone
	keys  [vm.KeyCount]bool
}

var _ emulator.HAL = (*HAL)(nil)

func New(title string, scale int) (*HAL, error) {
	if scale <= 0 {
		scale = DefaultScale
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("failed to init sdl: %w", err)
	}

	width, height := int32(vm.ScreenWidth*scale), int32(vm.ScreenHeight*scale)
	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED, width, height, sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("failed to create sdl window: %w", err)
	}
	slog.Debug("hal: create window", "width", width, "height", height)

	h := &HAL{
		window:          window,
		backBuffer:      make([]uint32, vm.ScreenWidth*vm.ScreenHeight),
		backBufferPitch: vm.ScreenWidth * int(unsafe.Sizeof(uint32(0))),
	}

	h.renderer, err = sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		h.Shutdown()
		return nil, fmt.Errorf("failed to create sdl renderer: %w", err)
	}
	if err = h.renderer.SetLogicalSize(width, height); err != nil {
		h.Shutdown()
		return nil, fmt.Errorf("failed to resize sdl renderer: %w", err)
	}
	slog.Debug("hal: create renderer")

	h.texture, err = h.renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING, vm.ScreenWidth, vm.ScreenHeight)
	if err != nil {
		h.Shutdown()
		return nil, fmt.Errorf("failed to create sdl texture: %w", err)
	}
	slog.Debug("hal: create texture")

	// A machine without a sound card still runs, it just stays silent.
	h.audio, err = openTone()
	if err != nil {
		slog.Warn("hal: audio disabled", "err", err)
	}

	return h, nil
}

func (hal *HAL) Shutdown() {
	if hal.audio != nil {
		hal.audio.close()
	}

	if hal.texture != nil {
		if err := hal.texture.Destroy(); err != nil {
			slog.Error("failed to destroy sdl texture", "err", err)
		}
	}

	if hal.renderer != nil {
		if err := hal.renderer.Destroy(); err != nil {
			slog.Error("failed to destroy sdl renderer", "err", err)
		}
	}

	if err := hal.window.Destroy(); err != nil {
		slog.Error("failed to destroy sdl window", "err", err)
	}

	sdl.Quit()
	slog.Debug("hal: shutdown")
}

func (hal *HAL) ReadInput() error {
	for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
		if _, err := hal.processEvent(e); err != nil {
			return err
		}
	}

	return nil
}

func (hal *HAL) IsPressed(key vm.Key) bool {
	return hal.keys[key]
}

// WaitKey sleeps on the SDL event queue in short slices so that ctx is
// checked while the program waits for a key.
func (hal *HAL) WaitKey(ctx context.Context) (vm.Key, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		e := sdl.WaitEventTimeout(waitKeyTimeoutMillis)
		if e == nil {
			continue
		}

		key, err := hal.processEvent(e)
		if err != nil {
			return 0, err
		}
		if key != nil {
			return *key, nil
		}
	}
}

// processEvent updates the keypad and returns the key that went down, if
// any. Window close and the reserved keys turn into sentinel errors.
func (hal *HAL) processEvent(e sdl.Event) (*vm.Key, error) {
	switch e.GetType() {
	case sdl.QUIT:
		slog.Debug("hal: exit requested")
		return nil, emulator.ErrQuit

	case sdl.KEYDOWN:
		return hal.processKeyDown(e.(*sdl.KeyboardEvent))

	case sdl.KEYUP:
		hal.processKeyUp(e.(*sdl.KeyboardEvent))
	}

	return nil, nil
}

func (hal *HAL) processKeyDown(e *sdl.KeyboardEvent) (*vm.Key, error) {
	switch e.Keysym.Scancode {
	case sdl.SCANCODE_ESCAPE, sdl.SCANCODE_CAPSLOCK:
		slog.Debug("hal: exit requested")
		return nil, emulator.ErrQuit

	case sdl.SCANCODE_BACKSPACE:
		return nil, emulator.ErrReboot
	}

	key, ok := keyMap(e.Keysym.Scancode)
	if !ok {
		return nil, nil
	}

	hal.keys[key] = true
	if e.Repeat != 0 {
		return nil, nil
	}
	return &key, nil
}

func (hal *HAL) processKeyUp(e *sdl.KeyboardEvent) {
	if key, ok := keyMap(e.Keysym.Scancode); ok {
		hal.keys[key] = false
	}
}

func keyMap(scancode sdl.Scancode) (vm.Key, bool) {
	// Physical                Logical
	// ================        =================
	// | 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
	// | q | w | e | r |       | 4 | 5 | 6 | D |
	// | a | s | d | f |  <=>  | 7 | 8 | 9 | E |
	// | z | x | c | v |       | A | 0 | B | F |
	// ================        =================

	switch scancode {
	case sdl.SCANCODE_X:
		return vm.Key0, true
	case sdl.SCANCODE_1:
		return vm.Key1, true
	case sdl.SCANCODE_2:
		return vm.Key2, true
	case sdl.SCANCODE_3:
		return vm.Key3, true
	case sdl.SCANCODE_Q:
		return vm.Key4, true
	case sdl.SCANCODE_W:
		return vm.Key5, true
	case sdl.SCANCODE_E:
		return vm.Key6, true
	case sdl.SCANCODE_A:
		return vm.Key7, true
	case sdl.SCANCODE_S:
		return vm.Key8, true
	case sdl.SCANCODE_D:
		return vm.Key9, true
	case sdl.SCANCODE_Z:
		return vm.KeyA, true
	case sdl.SCANCODE_C:
		return vm.KeyB, true
	case sdl.SCANCODE_4:
		return vm.KeyC, true
	case sdl.SCANCODE_R:
		return vm.KeyD, true
	case sdl.SCANCODE_F:
		return vm.KeyE, true
	case sdl.SCANCODE_V:
		return vm.KeyF, true
	default:
		return 0, false
	}
}

const (
	bgColor = uint32(0x000000)
	fgColor = uint32(0xbea700)
)

func (hal *HAL) Clear() error {
	for i := range hal.backBuffer {
		hal.backBuffer[i] = bgColor
	}

	return hal.present()
}

func (hal *HAL) Draw(gfx []uint8) error {
	for i, pixel := range gfx {
		color := bgColor
		if pixel != 0 {
			color = fgColor
		}

		hal.backBuffer[i] = color
	}

	return hal.present()
}

func (hal *HAL) present() error {
	backBufferPtr := unsafe.Pointer(&hal.backBuffer[0])
	if err := hal.texture.Update(nil, backBufferPtr, hal.backBufferPitch); err != nil {
		return fmt.Errorf("failed to update sdl texture: %w", err)
	}

	if err := hal.renderer.Clear(); err != nil {
		return fmt.Errorf("failed to clear sdl renderer: %w", err)
	}

	if err := hal.renderer.Copy(hal.texture, nil, nil); err != nil {
		return fmt.Errorf("failed to copy sdl texture to renderer: %w", err)
	}

	hal.renderer.Present()
	return nil
}

func (hal *HAL) StartTone() error {
	if hal.audio == nil {
		return nil
	}
	return hal.audio.start()
}

func (hal *HAL) StopTone() error {
	if hal.audio == nil {
		return nil
	}
	return hal.audio.stop()
}

func (hal *HAL) WaitForNextFrame() error {
	const delayDuration = 200 * time.Microsecond
	time.Sleep(delayDuration)
	return nil
}
