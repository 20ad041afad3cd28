package gosampler

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/GeoffreyPlitt/debuggo"
)

var engineDebug = debuggo.Debug("gosampler:engine")

// EventKind identifies a queued note event
type EventKind uint8

const (
	EventNoteOn EventKind = iota
	EventNoteOff
	EventAllNotesOff
)

func (k EventKind) String() string {
	switch k {
	case EventNoteOn:
		return "note-on"
	case EventNoteOff:
		return "note-off"
	case EventAllNotesOff:
		return "all-notes-off"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// NoteEvent is a control-plane request for the engine
type NoteEvent struct {
	Kind     EventKind
	Note     uint8
	Velocity uint8
}

// StreamSource supplies streamed stereo frames summed into the mix after
// the voices. It must return silence rather than block when it has no data.
type StreamSource interface {
	ReadFrame() (left, right int16)
}

type streamHolder struct {
	src StreamSource
}

// Engine owns the voice pool and mixes it into output buffers.
//
// Control code posts NoteEvents; the render goroutine applies them at the
// start of each buffer. The direct NoteOn/NoteOff/AllNotesOff methods take
// the engine lock and are safe from any goroutine, but a caller holding the
// lock delays the next buffer.
type Engine struct {
	cfg    Config
	bank   *InstrumentBank
	events chan NoteEvent

	mu     sync.Mutex
	voices []Voice
	reverb *Reverb

	active     atomic.Int32
	volumeBits atomic.Uint64
	reverbBits atomic.Uint64
	limiter    atomic.Int32
	stream     atomic.Pointer[streamHolder]
	dropped    atomic.Uint64
	frameCount atomic.Uint64
}

// NewEngine allocates the voice pool for cfg. The bank is read on note-on
// to resolve samples.
func NewEngine(cfg Config, bank *InstrumentBank) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	e := &Engine{
		cfg:    cfg,
		bank:   bank,
		events: make(chan NoteEvent, cfg.EventQueue),
		voices: make([]Voice, cfg.Polyphony),
		reverb: NewReverb(cfg.SampleRate),
	}
	e.SetSampleVolume(cfg.SampleVolume)
	e.SetLimiter(cfg.Limiter)
	engineDebug("Engine created: %d voices, %d Hz, %d-frame buffers", cfg.Polyphony, cfg.SampleRate, cfg.BufferFrames)
	return e, nil
}

// Config returns the engine's configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Bank returns the instrument bank used for lookups
func (e *Engine) Bank() *InstrumentBank {
	return e.bank
}

// Post queues an event for the next buffer. It never blocks; when the
// queue is full the event is dropped and false is returned.
func (e *Engine) Post(ev NoteEvent) bool {
	select {
	case e.events <- ev:
		return true
	default:
		e.dropped.Add(1)
		engineDebug("Event queue full, dropping %s note %d", ev.Kind, ev.Note)
		return false
	}
}

// DroppedEvents returns how many posted events were discarded
func (e *Engine) DroppedEvents() uint64 {
	return e.dropped.Load()
}

// Allocate returns the first inactive voice slot, or -1 when all are busy
func (e *Engine) Allocate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocate()
}

func (e *Engine) allocate() int {
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	return -1
}

// NoteOn starts a voice for note on the current instrument. It returns the
// slot used, or -1 if no sample resolved or no voice was free.
func (e *Engine) NoteOn(note, velocity uint8) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.noteOn(note, velocity)
}

func (e *Engine) noteOn(note, velocity uint8) int {
	ks := e.bank.Resolve(note)
	if ks == nil {
		engineDebug("No sample for note %d", note)
		return -1
	}

	slot := e.allocate()
	if slot < 0 {
		engineDebug("No free voice for note %d (%d active)", note, e.active.Load())
		return -1
	}

	speed := PitchRatio(int(note) - int(ks.RootNote))
	e.voices[slot].start(ks.Sample, note, velocity, speed, e.cfg.AttackRate)
	e.active.Add(1)
	engineDebug("Voice %d: note %d vel %d sample %s speed %.3f", slot, note, velocity, ks.Sample.Name, speed)
	return slot
}

// NoteOff moves every active voice playing note into release. Notes with
// no sounding voice are ignored.
func (e *Engine) NoteOff(note uint8) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.noteOff(note)
}

func (e *Engine) noteOff(note uint8) int {
	released := 0
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.note == note {
			v.release(e.cfg.ReleaseRate)
			released++
		}
	}
	if released > 0 {
		engineDebug("Released %d voice(s) for note %d", released, note)
	}
	return released
}

// AllNotesOff releases every active voice
func (e *Engine) AllNotesOff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allNotesOff()
}

func (e *Engine) allNotesOff() {
	for i := range e.voices {
		if e.voices[i].active {
			e.voices[i].release(e.cfg.ReleaseRate)
		}
	}
}

func (e *Engine) applyEvent(ev NoteEvent) {
	switch ev.Kind {
	case EventNoteOn:
		e.noteOn(ev.Note, ev.Velocity)
	case EventNoteOff:
		e.noteOff(ev.Note)
	case EventAllNotesOff:
		e.allNotesOff()
	}
}

func (e *Engine) drainEvents() {
	for {
		select {
		case ev := <-e.events:
			e.applyEvent(ev)
		default:
			return
		}
	}
}

// RenderFrame advances voice slot by one frame, adding its output into
// left and right. Inactive slots and slots outside the pool contribute
// nothing.
func (e *Engine) RenderFrame(slot int, left, right *int32) {
	if slot < 0 || slot >= len(e.voices) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderVoice(slot, e.sampleVolume(), left, right)
}

func (e *Engine) renderVoice(slot int, gain float64, left, right *int32) {
	v := &e.voices[slot]
	if !v.active {
		return
	}
	if !v.render(gain, e.cfg.HighPitchThreshold, e.cfg.HighPitchGain, left, right) {
		v.stop()
		e.active.Add(-1)
	}
}

// Render fills buf with interleaved stereo frames. Queued events are applied
// first. Render does not allocate.
func (e *Engine) Render(buf []int16) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.drainEvents()

	gain := e.sampleVolume()
	limiter := LimiterMode(e.limiter.Load())
	reverbSend := math.Float64frombits(e.reverbBits.Load())
	var stream StreamSource
	if h := e.stream.Load(); h != nil {
		stream = h.src
	}

	frames := len(buf) / 2
	for f := 0; f < frames; f++ {
		var left, right int32
		for slot := range e.voices {
			e.renderVoice(slot, gain, &left, &right)
		}

		if stream != nil {
			sl, sr := stream.ReadFrame()
			left += int32(sl)
			right += int32(sr)
		}

		if reverbSend > 0 {
			wl, wr := e.reverb.Process(float64(left)*reverbSend, float64(right)*reverbSend)
			left += int32(wl)
			right += int32(wr)
		}

		buf[f*2] = limit(left, limiter)
		buf[f*2+1] = limit(right, limiter)
	}
	e.frameCount.Add(uint64(frames))
}

// limit maps an accumulator to 16 bits. The hard limiter clamps; the soft
// limiter applies tanh shaping first.
func limit(v int32, mode LimiterMode) int16 {
	if mode == LimiterSoft {
		v = int32(32767 * math.Tanh(float64(v)/32767))
	}
	if v > 32767 {
		return 32767
	}
	if v < -32767 {
		return -32767
	}
	return int16(v)
}

// ActiveVoices returns the number of sounding voices
func (e *Engine) ActiveVoices() int {
	return int(e.active.Load())
}

// Polyphony returns the voice pool size
func (e *Engine) Polyphony() int {
	return len(e.voices)
}

// FramesRendered returns the total number of frames produced
func (e *Engine) FramesRendered() uint64 {
	return e.frameCount.Load()
}

// Voice returns a copy of slot's state. Slots outside the pool return
// the zero state.
func (e *Engine) Voice(slot int) VoiceState {
	if slot < 0 || slot >= len(e.voices) {
		return VoiceState{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voices[slot].snapshot(slot)
}

// Voices returns a copy of every active voice
func (e *Engine) Voices() []VoiceState {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []VoiceState
	for i := range e.voices {
		if e.voices[i].active {
			out = append(out, e.voices[i].snapshot(i))
		}
	}
	return out
}

// SetSampleVolume sets the global voice gain, clamped to 0..2
func (e *Engine) SetSampleVolume(v float64) float64 {
	v = clampRange(v, 0, 2)
	e.volumeBits.Store(math.Float64bits(v))
	return v
}

// SampleVolume returns the global voice gain
func (e *Engine) SampleVolume() float64 {
	return e.sampleVolume()
}

func (e *Engine) sampleVolume() float64 {
	return math.Float64frombits(e.volumeBits.Load())
}

// SetLimiter selects the output gain stage
func (e *Engine) SetLimiter(mode LimiterMode) {
	e.limiter.Store(int32(mode))
}

// Limiter returns the output gain stage
func (e *Engine) Limiter() LimiterMode {
	return LimiterMode(e.limiter.Load())
}

// SetReverb sets the reverb send level, clamped to 0..1. Zero bypasses it.
func (e *Engine) SetReverb(send float64) float64 {
	send = clamp01(send)
	if send == 0 {
		e.mu.Lock()
		e.reverb.Reset()
		e.mu.Unlock()
	}
	e.reverbBits.Store(math.Float64bits(send))
	return send
}

// ReverbSend returns the reverb send level
func (e *Engine) ReverbSend() float64 {
	return math.Float64frombits(e.reverbBits.Load())
}

// SetReverbRoom adjusts the reverb's room size and damping
func (e *Engine) SetReverbRoom(size, damping float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reverb.SetRoomSize(size)
	e.reverb.SetDamping(damping)
}

// SetStream attaches a streamed source to the final mix. Nil detaches it.
func (e *Engine) SetStream(src StreamSource) {
	if src == nil {
		e.stream.Store(nil)
		return
	}
	e.stream.Store(&streamHolder{src: src})
}
