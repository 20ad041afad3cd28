package gosampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/GeoffreyPlitt/debuggo"
)

var debug = debuggo.Debug("gosampler:main")

// Sampler owns every piece of one synthesizer instance: media, sample
// store, instrument bank, engine, dispatcher and streamer. Tests may run
// any number of them side by side.
type Sampler struct {
	cfg        Config
	media      *Media
	store      *SampleStore
	bank       *InstrumentBank
	engine     *Engine
	dispatcher *Dispatcher
	streamer   *Streamer
	driver     atomic.Pointer[Driver]

	loadMu sync.Mutex
}

// NewSampler builds a sampler reading its files from media
func NewSampler(cfg Config, media *Media) (*Sampler, error) {
	debug("Creating sampler with media at %s", media.Root())

	bank := NewInstrumentBank(cfg.MaxInstruments, cfg.MaxKeySamples)
	engine, err := NewEngine(cfg, bank)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}

	s := &Sampler{
		cfg:        cfg,
		media:      media,
		store:      NewSampleStore(cfg.MaxSamples),
		bank:       bank,
		engine:     engine,
		dispatcher: NewDispatcher(engine),
		streamer:   NewStreamer(cfg.SampleRate),
	}
	engine.SetStream(s.streamer)
	return s, nil
}

func (s *Sampler) Config() Config { return s.cfg }
func (s *Sampler) Media() *Media { return s.media }
func (s *Sampler) Store() *SampleStore { return s.store }
func (s *Sampler) Bank() *InstrumentBank { return s.bank }
func (s *Sampler) Engine() *Engine { return s.engine }
func (s *Sampler) Dispatcher() *Dispatcher { return s.dispatcher }
func (s *Sampler) Streamer() *Streamer { return s.streamer }

// NewDriver creates the output loop for bus and remembers it for status
func (s *Sampler) NewDriver(bus Bus) (*Driver, error) {
	d, err := NewDriver(s.engine, bus, s.cfg.BufferFrames)
	if err != nil {
		return nil, err
	}
	s.driver.Store(d)
	return d, nil
}

// Load loads a built-in preset by name, or an instrument definition file
// from the media. Loading an instrument that already exists selects it.
func (s *Sampler) Load(ctx context.Context, name string) (int, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	var def *InstrumentDef
	var err error
	if isPresetName(name) {
		def, err = Preset(name)
	} else {
		def, err = LoadDefinitionFile(ctx, s.media, name)
	}
	if err != nil {
		return -1, err
	}

	if index := s.bank.Find(def.Name); index >= 0 {
		debug("Instrument %q already loaded at %d", def.Name, index)
		s.bank.Select(index)
		return index, nil
	}

	index, err := LoadInstrument(ctx, def, s.media, s.store, s.bank)
	if err != nil {
		return -1, err
	}
	s.bank.Select(index)
	return index, nil
}

func isPresetName(name string) bool {
	if path.Ext(name) != "" {
		return false
	}
	for _, p := range PresetNames() {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// RequiredFiles lists the sample files used by the named presets
func RequiredFiles(presets ...string) ([]string, error) {
	var files []string
	for _, name := range presets {
		def, err := Preset(name)
		if err != nil {
			return nil, err
		}
		files = append(files, def.Files()...)
	}
	return files, nil
}

// ExecuteLine parses and runs one control line. Unknown commands are
// ignored and return nil.
func (s *Sampler) ExecuteLine(ctx context.Context, line string, out io.Writer) error {
	cmd, err := ParseCommand(line)
	if err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			return nil
		}
		return err
	}
	return s.Execute(ctx, cmd, out)
}

// Execute runs a parsed command, writing any response to out
func (s *Sampler) Execute(ctx context.Context, cmd Command, out io.Writer) error {
	commandsDebug("Executing %s", cmd.Kind)

	switch cmd.Kind {
	case CmdPlay:
		if !s.dispatcher.NoteOn(cmd.Note, cmd.Velocity) {
			fmt.Fprintf(out, "Dropped MIDI note %d\n", cmd.Note)
			return nil
		}
		fmt.Fprintf(out, "Playing MIDI note %d\n", cmd.Note)

	case CmdStop:
		if !s.dispatcher.NoteOff(cmd.Note) {
			fmt.Fprintf(out, "Dropped MIDI note %d\n", cmd.Note)
			return nil
		}
		fmt.Fprintf(out, "Stopping MIDI note %d\n", cmd.Note)

	case CmdPanic:
		s.dispatcher.AllNotesOff()
		fmt.Fprintln(out, "All notes off")

	case CmdVolume:
		v := s.engine.SetSampleVolume(cmd.Value)
		fmt.Fprintf(out, "Sample volume: %.2f\n", v)

	case CmdInstrument:
		if !s.bank.Select(cmd.Index) {
			return nil
		}
		fmt.Fprintf(out, "Instrument %d: %s\n", cmd.Index, s.bank.Instrument(cmd.Index).Name)

	case CmdLoad:
		index, err := s.Load(ctx, cmd.Name)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", cmd.Name, err)
		}
		inst := s.bank.Instrument(index)
		fmt.Fprintf(out, "Loaded instrument %d: %s (%d zones)\n", index, inst.Name, len(inst.KeySamples))

	case CmdStream:
		start := s.streamer.Start
		if cmd.Loop {
			start = s.streamer.Loop
		}
		if err := start(ctx, s.media, cmd.Name); err != nil {
			return err
		}
		if cmd.Loop {
			fmt.Fprintf(out, "Streaming %s (looping)\n", cmd.Name)
		} else {
			fmt.Fprintf(out, "Streaming %s\n", cmd.Name)
		}

	case CmdStreamStop:
		s.streamer.Stop()
		fmt.Fprintln(out, "Stream stopped")

	case CmdStreamVolume:
		v := s.streamer.SetVolume(cmd.Value)
		fmt.Fprintf(out, "Stream volume: %.2f\n", v)

	case CmdLimiter:
		s.engine.SetLimiter(cmd.Limiter)
		fmt.Fprintf(out, "Limiter: %s\n", cmd.Limiter)

	case CmdReverb:
		v := s.engine.SetReverb(cmd.Value)
		fmt.Fprintf(out, "Reverb send: %.2f\n", v)

	case CmdStatus:
		s.WriteStatus(out)

	case CmdHelp:
		fmt.Fprint(out, HelpText)

	default:
		return fmt.Errorf("unhandled command %s", cmd.Kind)
	}
	return nil
}

// WriteStatus prints a summary of the sampler state
func (s *Sampler) WriteStatus(out io.Writer) {
	fmt.Fprintf(out, "Loaded samples: %d/%d\n", s.store.Len(), s.store.Capacity())

	current := s.bank.CurrentIndex()
	for i := 0; i < s.bank.Len(); i++ {
		inst := s.bank.Instrument(i)
		marker := " "
		if i == current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s Instrument %d: %s (%d zones)\n", marker, i, inst.Name, len(inst.KeySamples))
	}

	fmt.Fprintf(out, "Active voices: %d/%d\n", s.engine.ActiveVoices(), s.engine.Polyphony())
	for _, v := range s.engine.Voices() {
		fmt.Fprintf(out, "  voice %d: note %d vel %d %s env %.3f speed %.3f\n",
			v.Slot, v.Note, v.Velocity, v.Stage, v.Envelope, v.Speed)
	}
	fmt.Fprintf(out, "Sample volume: %.1f\n", s.engine.SampleVolume())
	fmt.Fprintf(out, "Limiter: %s, reverb send: %.2f\n", s.engine.Limiter(), s.engine.ReverbSend())

	if s.streamer.Playing() {
		fmt.Fprintf(out, "Stream: %s (volume %.2f, %d samples buffered)\n", s.streamer.Name(), s.streamer.Volume(), s.streamer.Buffered())
	} else {
		fmt.Fprintln(out, "Stream: idle")
	}

	if d := s.driver.Load(); d != nil {
		st := d.Stats()
		fmt.Fprintf(out, "Buffers: %d, overruns: %d, worst render: %v\n", st.Buffers, st.Overruns, st.WorstTime)
	}
	if n := s.engine.DroppedEvents(); n > 0 {
		fmt.Fprintf(out, "Dropped events: %d\n", n)
	}
}

// Close stops background work
func (s *Sampler) Close() {
	s.streamer.Stop()
	debug("Sampler closed")
}
