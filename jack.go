//go:build jack
// +build jack

package gosampler

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/xthexder/go-jack"
	"gitlab.com/gomidi/midi/v2"
)

var jackDebug = debuggo.Debug("gosampler:jack")

const jackQueueDepth = 3

// JackBus is a Bus backed by a JACK client. Write hands a buffer to the
// process callback and blocks while the queue is full, so JACK's clock
// paces the mix loop. A MIDI input port feeds note events to a dispatcher.
type JackBus struct {
	client     *jack.Client
	outL, outR *jack.Port
	midiIn     *jack.Port
	sampleRate int

	free  chan []int16
	ready chan []int16

	// Owned by the process callback
	cur    []int16
	curPos int

	dispatcher atomic.Pointer[Dispatcher]
	underruns  atomic.Uint64
	closeOnce  sync.Once
	done       chan struct{}
}

// NewJackBus opens a JACK client with stereo outputs and a MIDI input and
// activates it. frames is the size of the buffers passed to Write.
func NewJackBus(clientName string, frames int) (*JackBus, error) {
	jackDebug("Creating JACK client: %s", clientName)

	client, status := jack.ClientOpen(clientName, jack.NoStartServer)
	if client == nil || status != 0 {
		return nil, fmt.Errorf("failed to open JACK client: %w", jack.StrError(status))
	}

	jb := &JackBus{
		client:     client,
		sampleRate: int(client.GetSampleRate()),
		free:       make(chan []int16, jackQueueDepth),
		ready:      make(chan []int16, jackQueueDepth),
		done:       make(chan struct{}),
	}
	for i := 0; i < jackQueueDepth; i++ {
		jb.free <- make([]int16, frames*2)
	}

	jb.outL = client.PortRegister("out_left", jack.DEFAULT_AUDIO_TYPE, jack.PortIsOutput, 0)
	jb.outR = client.PortRegister("out_right", jack.DEFAULT_AUDIO_TYPE, jack.PortIsOutput, 0)
	jb.midiIn = client.PortRegister("midi_in", jack.DEFAULT_MIDI_TYPE, jack.PortIsInput, 0)
	if jb.outL == nil || jb.outR == nil || jb.midiIn == nil {
		client.Close()
		return nil, fmt.Errorf("failed to register JACK ports")
	}

	if code := client.SetProcessCallback(jb.process); code != 0 {
		client.Close()
		return nil, fmt.Errorf("failed to set process callback: %w", jack.StrError(code))
	}
	if code := client.Activate(); code != 0 {
		client.Close()
		return nil, fmt.Errorf("failed to activate JACK client: %w", jack.StrError(code))
	}

	jackDebug("JACK client active (sample rate: %d Hz, period: %d frames)", jb.sampleRate, client.GetBufferSize())
	return jb, nil
}

// SetDispatcher routes MIDI from the input port to d
func (jb *JackBus) SetDispatcher(d *Dispatcher) {
	jb.dispatcher.Store(d)
}

// Underruns returns how many periods were padded with silence
func (jb *JackBus) Underruns() uint64 {
	return jb.underruns.Load()
}

func (jb *JackBus) Write(buf []int16) error {
	select {
	case <-jb.done:
		return ErrBusClosed
	default:
	}

	var b []int16
	select {
	case b = <-jb.free:
	case <-jb.done:
		return ErrBusClosed
	}
	b = b[:copy(b[:cap(b)], buf)]
	select {
	case jb.ready <- b:
		return nil
	case <-jb.done:
		return ErrBusClosed
	}
}

func (jb *JackBus) SampleRate() int { return jb.sampleRate }

// process runs on the JACK thread
func (jb *JackBus) process(nframes uint32) int {
	if d := jb.dispatcher.Load(); d != nil {
		for _, ev := range jb.midiIn.GetMidiEvents(nframes) {
			d.HandleMIDI(midi.Message(ev.Buffer))
		}
	}

	left := jb.outL.GetBuffer(nframes)
	right := jb.outR.GetBuffer(nframes)

	for i := uint32(0); i < nframes; i++ {
		if jb.curPos >= len(jb.cur) {
			if jb.cur != nil {
				jb.free <- jb.cur
				jb.cur = nil
			}
			select {
			case jb.cur = <-jb.ready:
				jb.curPos = 0
			default:
			}
		}
		if jb.cur == nil {
			jb.underruns.Add(1)
			for ; i < nframes; i++ {
				left[i], right[i] = 0, 0
			}
			break
		}
		left[i] = jack.AudioSample(float32(jb.cur[jb.curPos]) / 32768)
		right[i] = jack.AudioSample(float32(jb.cur[jb.curPos+1]) / 32768)
		jb.curPos += 2
	}
	return 0
}

// Close closes the JACK client. JACK deactivates a client as part of
// closing it.
func (jb *JackBus) Close() error {
	var err error
	jb.closeOnce.Do(func() {
		close(jb.done)
		jackDebug("Closing JACK client (%d underruns)", jb.underruns.Load())
		if code := jb.client.Close(); code != 0 {
			err = fmt.Errorf("failed to close JACK client: %w", jack.StrError(code))
		}
	})
	return err
}
