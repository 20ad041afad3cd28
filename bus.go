package gosampler

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var busDebug = debuggo.Debug("gosampler:bus")

// ErrBusClosed is returned by writes after Close
var ErrBusClosed = errors.New("audio bus closed")

// Bus accepts interleaved stereo 16-bit buffers at a fixed rate. Write
// blocks until the buffer has been accepted, which paces the mix loop.
type Bus interface {
	Write(buf []int16) error
	SampleRate() int
	Close() error
}

// PacedBus discards audio but accepts buffers no faster than real time
type PacedBus struct {
	rate   int
	frames int
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewPacedBus creates a headless bus ticking once per buffer of frames
func NewPacedBus(sampleRate, frames int) *PacedBus {
	period := time.Duration(frames) * time.Second / time.Duration(sampleRate)
	return &PacedBus{
		rate:   sampleRate,
		frames: frames,
		ticker: time.NewTicker(period),
		done:   make(chan struct{}),
	}
}

func (b *PacedBus) Write(buf []int16) error {
	select {
	case <-b.ticker.C:
		return nil
	case <-b.done:
		return ErrBusClosed
	}
}

func (b *PacedBus) SampleRate() int { return b.rate }

func (b *PacedBus) Close() error {
	b.once.Do(func() {
		b.ticker.Stop()
		close(b.done)
	})
	return nil
}

// WAVBus records everything written to it into a 16-bit stereo WAV file.
// It does not pace; pair it with a real bus through TeeBus for live use.
type WAVBus struct {
	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	ibuf    *audio.IntBuffer
	rate    int
	frames  int
	closed  bool
}

// NewWAVBus creates path and prepares it for recording
func NewWAVBus(path string, sampleRate int) (*WAVBus, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording %s: %w", path, err)
	}
	busDebug("Recording to %s at %d Hz", path, sampleRate)
	return &WAVBus{
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, 16, 2, 1),
		ibuf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
		rate: sampleRate,
	}, nil
}

func (b *WAVBus) Write(buf []int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	if cap(b.ibuf.Data) < len(buf) {
		b.ibuf.Data = make([]int, len(buf))
	}
	b.ibuf.Data = b.ibuf.Data[:len(buf)]
	for i, s := range buf {
		b.ibuf.Data[i] = int(s)
	}
	if err := b.encoder.Write(b.ibuf); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}
	b.frames += len(buf) / 2
	return nil
}

func (b *WAVBus) SampleRate() int { return b.rate }

// Frames returns the number of frames recorded so far
func (b *WAVBus) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Close finalizes the WAV header and closes the file
func (b *WAVBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	encErr := b.encoder.Close()
	fileErr := b.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize recording: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("failed to close recording: %w", fileErr)
	}
	busDebug("Recording closed after %d frames", b.frames)
	return nil
}

// TeeBus writes each buffer to a primary bus, which sets the pace, and
// then to any number of taps.
type TeeBus struct {
	primary Bus
	taps    []Bus
}

// NewTeeBus fans buffers out from primary to taps
func NewTeeBus(primary Bus, taps ...Bus) *TeeBus {
	return &TeeBus{primary: primary, taps: taps}
}

func (t *TeeBus) Write(buf []int16) error {
	if err := t.primary.Write(buf); err != nil {
		return err
	}
	for _, tap := range t.taps {
		if err := tap.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func (t *TeeBus) SampleRate() int { return t.primary.SampleRate() }

func (t *TeeBus) Close() error {
	errs := []error{t.primary.Close()}
	for _, tap := range t.taps {
		errs = append(errs, tap.Close())
	}
	return errors.Join(errs...)
}
