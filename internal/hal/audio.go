package hal

import (
	"fmt"
	"log/slog"

	"github.com/veandco/go-sdl2/sdl"
)

const (
	sampleRate    = 44100
	toneFrequency = 440
	toneAmplitude = 24

	// The sound timer runs for at most 255/60 s, so one buffer covers any
	// single beep without refilling the queue.
	toneSeconds = 5
)

// tone plays a fixed square wave through SDL's audio queue.
type tone struct {
	device  sdl.AudioDeviceID
	samples []byte
	playing bool
}

func openTone() (*tone, error) {
	spec := &sdl.AudioSpec{
		Freq:     sampleRate,
		Format:   sdl.AUDIO_S8,
		Channels: 1,
		Samples:  1024,
	}

	device, err := sdl.OpenAudioDevice("", false, spec, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open sdl audio device: %w", err)
	}
	slog.Debug("hal: open audio device", "id", device)

	return &tone{
		device:  device,
		samples: squareWave(sampleRate, toneFrequency, toneAmplitude, toneSeconds*sampleRate),
	}, nil
}

func squareWave(rate, frequency int, amplitude int8, n int) []byte {
	samples := make([]byte, n)
	period := rate / frequency

	for i := range samples {
		v := amplitude
		if i%period >= period/2 {
			v = -amplitude
		}
		samples[i] = byte(v)
	}

	return samples
}

func (t *tone) start() error {
	if t.playing {
		return nil
	}

	sdl.ClearQueuedAudio(t.device)
	if err := sdl.QueueAudio(t.device, t.samples); err != nil {
		return fmt.Errorf("failed to queue sdl audio: %w", err)
	}

	sdl.PauseAudioDevice(t.device, false)
	t.playing = true
	return nil
}

func (t *tone) stop() error {
	if !t.playing {
		return nil
	}

	sdl.PauseAudioDevice(t.device, true)
	sdl.ClearQueuedAudio(t.device)
	t.playing = false
	return nil
}

func (t *tone) close() {
	sdl.CloseAudioDevice(t.device)
}
