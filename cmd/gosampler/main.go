package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/GeoffreyPlitt/debuggo"

	"gosampler"
	"gosampler/otobus"
)

var debug = debuggo.Debug("gosampler:cmd")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gosampler: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaults := gosampler.DefaultConfig()

	mediaDir := flag.String("media", "media", "Directory holding samples, instruments and streams")
	rate := flag.Int("rate", defaults.SampleRate, "Output sample rate in Hz (ignored for jack)")
	voices := flag.Int("voices", defaults.Polyphony, "Maximum simultaneous voices")
	frames := flag.Int("frames", defaults.BufferFrames, "Frames per output buffer")
	volume := flag.Float64("volume", defaults.SampleVolume, "Initial sample volume (0-2)")
	output := flag.String("output", "oto", "Output backend: oto|null|wav|jack")
	record := flag.String("record", "", "Also record the output to this WAV file")
	midiDev := flag.String("midi", "", "Raw MIDI device or FIFO to read note events from")
	presets := flag.String("preset", "piano,drums", "Comma separated presets to load at startup, or none")
	require := flag.Bool("require", false, "Exit if any preset sample is missing from the media")
	limiter := flag.String("limiter", defaults.Limiter.String(), "Output limiter: hard|soft")
	retries := flag.Int("retries", 5, "Retries for media access")
	latency := flag.Duration("latency", 50*time.Millisecond, "Audio device buffer size (oto)")
	flag.Parse()

	cfg := defaults
	cfg.SampleRate = *rate
	cfg.Polyphony = *voices
	cfg.BufferFrames = *frames
	cfg.SampleVolume = *volume
	mode, err := gosampler.ParseLimiterMode(*limiter)
	if err != nil {
		return err
	}
	cfg.Limiter = mode

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	media := gosampler.NewMedia(*mediaDir, gosampler.WithRetries(*retries))

	var presetNames []string
	if *presets != "" && *presets != "none" {
		presetNames = strings.Split(*presets, ",")
	}

	if *require {
		files, err := gosampler.RequiredFiles(presetNames...)
		if err != nil {
			return err
		}
		if missing, err := media.VerifyRequired(files...); err != nil {
			for _, name := range missing {
				fmt.Fprintf(os.Stderr, "missing: %s\n", media.Path(name))
			}
			return err
		}
	}

	bus, jackBus, err := openBus(*output, &cfg, *latency, *record)
	if err != nil {
		return err
	}
	defer bus.Close()

	sampler, err := gosampler.NewSampler(cfg, media)
	if err != nil {
		return err
	}
	defer sampler.Close()
	if jackBus != nil {
		jackBus.SetDispatcher(sampler.Dispatcher())
	}

	for _, name := range presetNames {
		index, err := sampler.Load(ctx, strings.TrimSpace(name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", name, err)
			continue
		}
		debug("Preset %s loaded as instrument %d", name, index)
	}
	sampler.Bank().Select(0)

	driver, err := sampler.NewDriver(bus)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	driverErr := make(chan error, 1)
	go func() {
		driverErr <- driver.Run(ctx)
		cancel()
	}()

	if *midiDev != "" {
		f, err := os.Open(*midiDev)
		if err != nil {
			return fmt.Errorf("failed to open MIDI input: %w", err)
		}
		defer f.Close()
		go func() {
			if err := gosampler.NewMIDIReader(f).Run(ctx, sampler.Dispatcher()); err != nil {
				debug("MIDI input stopped: %v", err)
			}
		}()
	}

	fmt.Fprintf(os.Stdout, "gosampler ready (%d Hz, %d voices). Type 'help' for commands.\n", cfg.SampleRate, cfg.Polyphony)

	consoleDone := make(chan error, 1)
	go func() {
		consoleDone <- gosampler.NewConsole(sampler, os.Stdin, os.Stdout).Run(ctx)
	}()

	select {
	case err = <-consoleDone:
		cancel()
		if derr := <-driverErr; err == nil {
			err = derr
		}
	case err = <-driverErr:
	case <-ctx.Done():
		err = <-driverErr
	}

	st := driver.Stats()
	debug("Rendered %d buffers, %d overruns, worst %v", st.Buffers, st.Overruns, st.WorstTime)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openBus creates the output backend. JACK dictates the sample rate, so
// cfg is updated to match.
func openBus(output string, cfg *gosampler.Config, latency time.Duration, record string) (gosampler.Bus, *gosampler.JackBus, error) {
	var bus gosampler.Bus
	var jackBus *gosampler.JackBus

	switch output {
	case "oto":
		b, err := otobus.New(cfg.SampleRate, latency)
		if err != nil {
			return nil, nil, err
		}
		bus = b
	case "null", "wav":
		bus = gosampler.NewPacedBus(cfg.SampleRate, cfg.BufferFrames)
	case "jack":
		b, err := gosampler.NewJackBus("gosampler", cfg.BufferFrames)
		if err != nil {
			return nil, nil, err
		}
		cfg.SampleRate = b.SampleRate()
		bus, jackBus = b, b
	default:
		return nil, nil, fmt.Errorf("unknown output %q (expected oto|null|wav|jack)", output)
	}

	if output == "wav" && record == "" {
		record = "gosampler.wav"
	}
	if record != "" {
		rec, err := gosampler.NewWAVBus(record, cfg.SampleRate)
		if err != nil {
			bus.Close()
			return nil, nil, err
		}
		bus = gosampler.NewTeeBus(bus, rec)
	}
	return bus, jackBus, nil
}
