package gosampler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/hajimehoshi/go-mp3"
)

var streamDebug = debuggo.Debug("gosampler:stream")

// RingBuffer is a fixed-capacity circular buffer of interleaved stereo
// samples. One slot is always left empty so a full buffer never looks
// empty; hasData short-circuits the empty case.
type RingBuffer struct {
	mu      sync.Mutex
	data    []int16
	read    int
	write   int
	hasData bool
}

// NewRingBuffer allocates a buffer of size slots, holding size-1 samples
func NewRingBuffer(size int) *RingBuffer {
	if size < 3 {
		size = 3
	}
	return &RingBuffer{data: make([]int16, size)}
}

func (rb *RingBuffer) available() int {
	if !rb.hasData {
		return 0
	}
	return (rb.write - rb.read + len(rb.data)) % len(rb.data)
}

// Available returns the number of buffered samples
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.available()
}

// Free returns how many samples can be written
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.data) - 1 - rb.available()
}

// Capacity returns the maximum number of buffered samples
func (rb *RingBuffer) Capacity() int {
	return len(rb.data) - 1
}

// Write copies as many whole frames from p as fit and returns the number
// of samples written. It never blocks.
func (rb *RingBuffer) Write(p []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(p), len(rb.data)-1-rb.available()) &^ 1
	for i := 0; i < n; i++ {
		rb.data[rb.write] = p[i]
		rb.write++
		if rb.write == len(rb.data) {
			rb.write = 0
		}
	}
	if n > 0 {
		rb.hasData = true
	}
	return n
}

// ReadFrame pops one stereo frame. ok is false when fewer than two samples
// are buffered, in which case silence is returned.
func (rb *RingBuffer) ReadFrame() (left, right int16, ok bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.available() < 2 {
		return 0, 0, false
	}
	left = rb.data[rb.read]
	right = rb.data[(rb.read+1)%len(rb.data)]
	rb.read = (rb.read + 2) % len(rb.data)
	if rb.read == rb.write {
		rb.hasData = false
	}
	return left, right, true
}

// Reset discards all buffered samples
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read, rb.write, rb.hasData = 0, 0, false
}

const (
	// streamChunk is one decoded MPEG-1 Layer III frame: 1152 stereo frames
	streamChunk      = 2304
	streamBufferSecs = 4
	streamWait       = 10 * time.Millisecond
	maxResyncs       = 32
	maxSyncScan      = 64 * 1024
)

// Streamer decodes an MP3 file into a RingBuffer on its own goroutine and
// serves frames to the engine. It satisfies StreamSource.
type Streamer struct {
	ring       *RingBuffer
	sampleRate int
	volumeBits atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	name    string
	playing atomic.Bool
	frames  atomic.Uint64
	resyncs atomic.Uint64
	loops   atomic.Uint64
}

// NewStreamer allocates a four second buffer at sampleRate
func NewStreamer(sampleRate int) *Streamer {
	s := &Streamer{
		ring:       NewRingBuffer(sampleRate*2*streamBufferSecs + 1),
		sampleRate: sampleRate,
	}
	s.SetVolume(1.0)
	return s
}

// SetVolume sets the stream gain, clamped to 0..1
func (s *Streamer) SetVolume(v float64) float64 {
	v = clamp01(v)
	s.volumeBits.Store(math.Float64bits(v))
	return v
}

// Volume returns the stream gain
func (s *Streamer) Volume() float64 {
	return math.Float64frombits(s.volumeBits.Load())
}

// ReadFrame returns the next buffered frame scaled by the stream volume,
// or silence when nothing is buffered.
func (s *Streamer) ReadFrame() (left, right int16) {
	l, r, ok := s.ring.ReadFrame()
	if !ok {
		return 0, 0
	}
	vol := s.Volume()
	return int16(float64(l) * vol), int16(float64(r) * vol)
}

// Playing reports whether a producer goroutine is running
func (s *Streamer) Playing() bool {
	return s.playing.Load()
}

// Name returns the file being streamed
func (s *Streamer) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Buffered returns the number of buffered samples
func (s *Streamer) Buffered() int {
	return s.ring.Available()
}

// Resyncs returns how many times the decoder skipped to a new frame sync
func (s *Streamer) Resyncs() uint64 {
	return s.resyncs.Load()
}

// Loops returns how many times a looping stream restarted from the top
func (s *Streamer) Loops() uint64 {
	return s.loops.Load()
}

// Start opens name on media and begins decoding it. A stream already
// playing is stopped first.
func (s *Streamer) Start(ctx context.Context, media *Media, name string) error {
	return s.start(ctx, media, name, false)
}

// Loop is like Start but restarts the file each time it ends, until Stop
func (s *Streamer) Loop(ctx context.Context, media *Media, name string) error {
	return s.start(ctx, media, name, true)
}

func (s *Streamer) start(ctx context.Context, media *Media, name string, loop bool) error {
	s.Stop()

	file, err := media.Open(ctx, name)
	if err != nil {
		return err
	}

	src := bufio.NewReaderSize(file, 16*1024)
	dec, err := s.openDecoder(src)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to start stream %s: %w", name, err)
	}
	if dec.SampleRate() != s.sampleRate {
		streamDebug("Warning: %s is %d Hz, output is %d Hz; playing without resampling", name, dec.SampleRate(), s.sampleRate)
	}

	s.ring.Reset()
	s.frames.Store(0)
	s.loops.Store(0)
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.name = name
	s.mu.Unlock()
	s.playing.Store(true)

	go func() {
		defer close(done)
		defer file.Close()
		defer s.playing.Store(false)
		s.produce(runCtx, file, src, dec, name, loop)
	}()

	streamDebug("Streaming %s (loop: %t)", name, loop)
	return nil
}

// Stop halts the producer and discards buffered audio
func (s *Streamer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.ring.Reset()
	streamDebug("Stream stopped")
}

// Wait blocks until the producer has decoded the whole file or was stopped
func (s *Streamer) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// openDecoder resynchronizes src on the next frame header until a decoder
// accepts it, giving up after maxResyncs attempts.
func (s *Streamer) openDecoder(src *bufio.Reader) (*mp3.Decoder, error) {
	dec, err := mp3.NewDecoder(src)
	for attempt := 0; err != nil; attempt++ {
		if attempt >= maxResyncs {
			return nil, fmt.Errorf("no decodable frame after %d resyncs: %w", attempt, err)
		}
		header, serr := scanToSync(src)
		if serr != nil {
			return nil, fmt.Errorf("no frame sync found: %w", serr)
		}
		s.resyncs.Add(1)
		dec, err = mp3.NewDecoder(io.MultiReader(bytes.NewReader(header[:]), src))
	}
	return dec, nil
}

// rewind seeks file to its start and opens a fresh decoder on it
func (s *Streamer) rewind(file io.ReadSeeker, src *bufio.Reader) (*mp3.Decoder, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	src.Reset(file)
	return s.openDecoder(src)
}

// scanToSync discards bytes up to the next MPEG frame sync (eleven set
// bits) and returns the two sync bytes it consumed.
func scanToSync(r *bufio.Reader) ([2]byte, error) {
	var header [2]byte
	prev, err := r.ReadByte()
	if err != nil {
		return header, err
	}
	for scanned := 0; scanned < maxSyncScan; scanned++ {
		b, err := r.ReadByte()
		if err != nil {
			return header, err
		}
		if prev == 0xFF && b&0xE0 == 0xE0 {
			header[0], header[1] = prev, b
			return header, nil
		}
		prev = b
	}
	return header, fmt.Errorf("no sync within %d bytes", maxSyncScan)
}

// produce decodes into the ring until the file ends or ctx is cancelled.
// A looping stream seeks file back to the start at the end; a pass that
// yields no audio ends the stream.
func (s *Streamer) produce(ctx context.Context, file io.ReadSeeker, src *bufio.Reader, dec *mp3.Decoder, name string, loop bool) {
	raw := make([]byte, streamChunk*2)
	pcm := make([]int16, streamChunk)
	resyncs := 0
	passFrames := 0

	for {
		for s.ring.Free() < streamChunk {
			select {
			case <-ctx.Done():
				return
			case <-time.After(streamWait):
			}
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := io.ReadFull(dec, raw)
		samples := n / 2
		for i := 0; i < samples; i++ {
			pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		written := s.ring.Write(pcm[:samples])
		s.frames.Add(uint64(written / 2))
		passFrames += written / 2

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			streamDebug("Finished decoding %s (%d frames)", name, s.frames.Load())
			if !loop || passFrames == 0 {
				return
			}
			next, rerr := s.rewind(file, src)
			if rerr != nil {
				streamDebug("Failed to restart %s: %v", name, rerr)
				return
			}
			dec = next
			passFrames = 0
			s.loops.Add(1)
			continue
		}

		resyncs++
		streamDebug("Decode error in %s: %v (resync %d)", name, err, resyncs)
		if resyncs > maxResyncs {
			streamDebug("Giving up on %s after %d resyncs", name, resyncs)
			return
		}
		next, derr := s.openDecoder(src)
		if derr != nil {
			streamDebug("Giving up on %s: %v", name, derr)
			return
		}
		dec = next
	}
}
