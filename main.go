package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kapitanov/chip8emu/internal/emulator"
	"github.com/kapitanov/chip8emu/internal/hal"
	"github.com/kapitanov/chip8emu/internal/headless"
	"github.com/kapitanov/chip8emu/internal/terminal"
	"github.com/kapitanov/chip8emu/internal/vm"
	"github.com/spf13/cobra"
)

const (
	DefaultInstructionsPerSecond = 500
	DefaultHeadlessFrames        = 600

	backendSDL      = "sdl"
	backendTerminal = "terminal"
	backendHeadless = "headless"
)

type options struct {
	scale                 int
	instructionsPerSecond int
	debug                 bool
	backend               string
	frames                int
	frameStep             time.Duration
}

func main() {
	cmd := newRootCommand()

	cmd.SetArgs(os.Args[1:])
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s PATH_TO_ROM_FILE", filepath.Base(os.Args[0])),
		Short:         "Run a CHIP-8 program",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging(opts.debug)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging and instruction tracing")

	flags = cmd.Flags()
	flags.IntVarP(&opts.scale, "scale", "s", hal.DefaultScale,
		fmt.Sprintf("screen scale, %dx%d window at the default", vm.ScreenWidth*hal.DefaultScale, vm.ScreenHeight*hal.DefaultScale))
	flags.IntVarP(&opts.instructionsPerSecond, "ips", "i", DefaultInstructionsPerSecond, "instructions executed per second")
	flags.StringVarP(&opts.backend, "backend", "b", backendSDL, "display backend: sdl, terminal or headless")
	flags.IntVar(&opts.frames, "frames", DefaultHeadlessFrames, "number of frames to run with the headless backend")
	flags.DurationVar(&opts.frameStep, "frame-step", time.Millisecond, "virtual time per frame with the headless backend")

	cmd.AddCommand(newDisasmCommand())
	return cmd
}

func setupLogging(debug bool) {
	loggerOpts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if debug {
		loggerOpts.Level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))
}

func loadROM(path string) ([]byte, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load file %q: %w", path, err)
	}
	return bs, nil
}

func run(ctx context.Context, path string, opts options) error {
	bs, err := loadROM(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch opts.backend {
	case backendSDL:
		h, err := hal.New("CHIP-8 - "+filepath.Base(path), opts.scale)
		if err != nil {
			return fmt.Errorf("unable to initialize hal: %w", err)
		}
		defer h.Shutdown()

		return runEmulator(ctx, bs, opts, h, emulator.SystemClock())

	case backendTerminal:
		level := slog.LevelInfo
		if opts.debug {
			level = slog.LevelDebug
		}

		t, err := terminal.New(level)
		if err != nil {
			return fmt.Errorf("unable to initialize terminal: %w", err)
		}
		defer t.Shutdown()

		return runEmulator(ctx, bs, opts, t, emulator.SystemClock())

	case backendHeadless:
		h := headless.New(opts.frames, opts.frameStep)
		if err := runEmulator(ctx, bs, opts, h, h); err != nil {
			return err
		}

		return h.WriteSnapshot(os.Stdout)

	default:
		return fmt.Errorf("unknown backend %q", opts.backend)
	}
}

func runEmulator(ctx context.Context, program []byte, opts options, h emulator.HAL, clock emulator.Clock) error {
	emu, err := emulator.New(program, opts.instructionsPerSecond, h, clock)
	if err != nil {
		return err
	}

	slog.Info("emulator: start", "ips", opts.instructionsPerSecond, "backend", opts.backend)
	return emu.Run(ctx)
}
