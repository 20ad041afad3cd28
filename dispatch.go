package gosampler

import (
	"github.com/GeoffreyPlitt/debuggo"
	"gitlab.com/gomidi/midi/v2"
)

var dispatchDebug = debuggo.Debug("gosampler:dispatch")

// MIDI controller numbers
const (
	ccVolume      = 7
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

// Dispatcher turns note requests from MIDI or the console into engine
// events. By default events are queued and applied at the next buffer
// boundary; an immediate dispatcher applies them under the engine lock.
type Dispatcher struct {
	engine    *Engine
	immediate bool
}

// NewDispatcher creates a dispatcher that queues events for the render loop
func NewDispatcher(engine *Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

// NewImmediateDispatcher creates a dispatcher that mutates voices at once,
// for use when no render loop is draining the queue.
func NewImmediateDispatcher(engine *Engine) *Dispatcher {
	return &Dispatcher{engine: engine, immediate: true}
}

// NoteOn requests a note. Velocity 0 is treated as a note-off. Values
// above 127 are dropped.
func (d *Dispatcher) NoteOn(note, velocity int) bool {
	if note < 0 || note > 127 || velocity < 0 || velocity > 127 {
		dispatchDebug("Dropping note-on with note %d velocity %d", note, velocity)
		return false
	}
	if velocity == 0 {
		return d.NoteOff(note)
	}
	return d.Handle(NoteEvent{Kind: EventNoteOn, Note: uint8(note), Velocity: uint8(velocity)})
}

// NoteOff requests release of note
func (d *Dispatcher) NoteOff(note int) bool {
	if note < 0 || note > 127 {
		dispatchDebug("Dropping note-off with note %d", note)
		return false
	}
	return d.Handle(NoteEvent{Kind: EventNoteOff, Note: uint8(note)})
}

// AllNotesOff releases every voice
func (d *Dispatcher) AllNotesOff() bool {
	return d.Handle(NoteEvent{Kind: EventAllNotesOff})
}

// Handle forwards ev to the engine
func (d *Dispatcher) Handle(ev NoteEvent) bool {
	dispatchDebug("%s note %d velocity %d", ev.Kind, ev.Note, ev.Velocity)
	if !d.immediate {
		return d.engine.Post(ev)
	}
	switch ev.Kind {
	case EventNoteOn:
		return d.engine.NoteOn(ev.Note, ev.Velocity) >= 0
	case EventNoteOff:
		d.engine.NoteOff(ev.Note)
	case EventAllNotesOff:
		d.engine.AllNotesOff()
	}
	return true
}

// HandleMIDI dispatches a channel voice message. All channels are
// accepted. Program change selects an instrument, controller 7 maps
// 0..127 onto sample volume 0..2, and controllers 120 and 123 release
// every voice. Other messages are ignored.
func (d *Dispatcher) HandleMIDI(msg midi.Message) bool {
	var ch, key, vel, cc, val, program uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return d.NoteOn(int(key), int(vel))
	case msg.GetNoteEnd(&ch, &key):
		return d.NoteOff(int(key))
	case msg.GetProgramChange(&ch, &program):
		return d.engine.Bank().Select(int(program))
	case msg.GetControlChange(&ch, &cc, &val):
		switch cc {
		case ccVolume:
			v := d.engine.SetSampleVolume(float64(val) / 127 * 2)
			dispatchDebug("Sample volume %.2f from controller", v)
			return true
		case ccAllNotesOff, ccAllSoundOff:
			return d.AllNotesOff()
		}
	}
	dispatchDebug("Ignoring MIDI message %s", msg)
	return false
}
