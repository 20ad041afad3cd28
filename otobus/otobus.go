// Package otobus plays sampler output through the system audio device
// using oto.
package otobus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/ebitengine/oto/v3"

	"gosampler"
)

var otoDebug = debuggo.Debug("gosampler:bus:oto")

// Bus feeds 16-bit stereo buffers to an oto player. oto pulls audio
// through an io.Reader; Bus pushes into one end of a pipe and the player
// drains the other, so Write blocks until the device has taken the data.
type Bus struct {
	ctx    *oto.Context
	player *oto.Player
	pr     *io.PipeReader
	pw     *io.PipeWriter
	rate   int
	raw    []byte

	mu     sync.Mutex
	closed bool
}

// New opens the default audio device. latency is the device buffer size;
// zero lets oto pick.
func New(sampleRate int, latency time.Duration) (*Bus, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   latency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	<-ready

	pr, pw := io.Pipe()
	b := &Bus{ctx: ctx, pr: pr, pw: pw, rate: sampleRate}
	b.player = ctx.NewPlayer(pr)
	b.player.Play()

	otoDebug("Audio device open at %d Hz (latency %v)", sampleRate, latency)
	return b, nil
}

func (b *Bus) Write(buf []int16) error {
	if cap(b.raw) < len(buf)*2 {
		b.raw = make([]byte, len(buf)*2)
	}
	raw := b.raw[:len(buf)*2]
	for i, s := range buf {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}

	if _, err := b.pw.Write(raw); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return gosampler.ErrBusClosed
		}
		return fmt.Errorf("failed to write audio: %w", err)
	}
	return nil
}

func (b *Bus) SampleRate() int { return b.rate }

// Close stops playback and releases the player
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	b.pw.Close()
	err := b.player.Close()
	b.pr.Close()
	otoDebug("Audio device closed")
	return err
}
