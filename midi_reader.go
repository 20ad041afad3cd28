package gosampler

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/GeoffreyPlitt/debuggo"
	"gitlab.com/gomidi/midi/v2"
)

var midiDebug = debuggo.Debug("gosampler:midi")

// MIDIReader frames a raw MIDI byte stream (a serial port or device node)
// into channel messages. Running status is honored; realtime bytes and
// system exclusive data are skipped.
type MIDIReader struct {
	r       *bufio.Reader
	running byte
	pending []byte
	want    int
	inSysex bool
}

// NewMIDIReader wraps r
func NewMIDIReader(r io.Reader) *MIDIReader {
	return &MIDIReader{r: bufio.NewReader(r), pending: make([]byte, 0, 3)}
}

// channelDataLen returns the number of data bytes after a channel status
func channelDataLen(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	default:
		return 2
	}
}

// commonDataLen returns the number of data bytes after a system common status
func commonDataLen(status byte) int {
	switch status {
	case 0xF1, 0xF3:
		return 1
	case 0xF2:
		return 2
	default:
		return 0
	}
}

// Next returns the next complete channel message
func (mr *MIDIReader) Next() (midi.Message, error) {
	for {
		b, err := mr.r.ReadByte()
		if err != nil {
			return nil, err
		}

		switch {
		case b >= 0xF8:
			continue

		case b == 0xF0:
			mr.inSysex = true
			mr.running = 0
			continue

		case b == 0xF7:
			mr.inSysex = false
			continue

		case b >= 0xF1:
			mr.inSysex = false
			mr.running = 0
			mr.pending = mr.pending[:0]
			if n := commonDataLen(b); n > 0 {
				if _, err := mr.r.Discard(n); err != nil {
					return nil, err
				}
			}
			continue

		case b&0x80 != 0:
			mr.inSysex = false
			mr.running = b
			mr.want = channelDataLen(b)
			mr.pending = append(mr.pending[:0], b)
			continue
		}

		if mr.inSysex {
			continue
		}
		if mr.running == 0 {
			midiDebug("Dropping data byte 0x%02X without status", b)
			continue
		}
		if len(mr.pending) == 0 {
			mr.pending = append(mr.pending, mr.running)
		}
		mr.pending = append(mr.pending, b)

		if len(mr.pending) == mr.want+1 {
			msg := make(midi.Message, len(mr.pending))
			copy(msg, mr.pending)
			mr.pending = mr.pending[:0]
			return msg, nil
		}
	}
}

// Run feeds every message read into dispatcher until the stream ends or ctx
// is cancelled. End of stream returns nil.
func (mr *MIDIReader) Run(ctx context.Context, dispatcher *Dispatcher) error {
	count := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := mr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				midiDebug("MIDI input closed after %d messages", count)
				return nil
			}
			return err
		}
		count++
		dispatcher.HandleMIDI(msg)
	}
}
