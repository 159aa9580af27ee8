package vm

import "context"

type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

// Keypad is the input capability the machine needs from the host.
type Keypad interface {
	// IsPressed reports whether the key is currently held.
	IsPressed(key Key) bool

	// WaitKey blocks until a mapped key goes down. It returns an error when
	// ctx is done or when the host asks to quit while waiting.
	WaitKey(ctx context.Context) (Key, error)
}

// noKeypad never reports a held key and waits until ctx is done.
type noKeypad struct{}

func (noKeypad) IsPressed(Key) bool { return false }

func (noKeypad) WaitKey(ctx context.Context) (Key, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}
