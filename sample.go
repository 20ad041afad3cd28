package gosampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

var sampleDebug = debuggo.Debug("gosampler:sample")

var (
	ErrInvalidWAV        = errors.New("invalid WAV file")
	ErrNoDataChunk       = errors.New("data chunk not found")
	ErrEmptyData         = errors.New("sample has no audio frames")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrStoreFull         = errors.New("sample store is full")
)

// Sample is a decoded PCM buffer. It is never mutated after load, so any
// number of voices may read it concurrently.
type Sample struct {
	Name           string  // Source filename, for diagnostics
	Data           []int16 // Interleaved stereo frames
	Length         int     // Number of frames
	RootNote       uint8   // MIDI note the sample was recorded at
	SampleRate     int     // Sample rate of the source file in Hz
	Channels       int     // Always 2 once loaded
	SourceChannels int     // Channel count found in the file
}

// NewStereoSample wraps already interleaved stereo data
func NewStereoSample(name string, rootNote uint8, sampleRate int, data []int16) *Sample {
	return &Sample{
		Name:           name,
		Data:           data,
		Length:         len(data) / 2,
		RootNote:       rootNote,
		SampleRate:     sampleRate,
		Channels:       2,
		SourceChannels: 2,
	}
}

// Frame returns the left and right values of frame i
func (s *Sample) Frame(i int) (left, right int16) {
	return s.Data[i*2], s.Data[i*2+1]
}

// WAV format tags accepted by DecodeWAV
const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// pcmTo16 scales a signed PCM value of the given bit depth to 16 bits
func pcmTo16(v int, bitDepth int) int16 {
	switch bitDepth {
	case 8:
		return int16(v << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// interleaveStereo normalizes mono or stereo PCM to interleaved stereo
func interleaveStereo(pcm []int, channels, bitDepth int, unsigned8 bool) ([]int16, int, error) {
	if channels != 1 && channels != 2 {
		return nil, 0, fmt.Errorf("%w: %d channels (only mono and stereo are supported)", ErrUnsupportedFormat, channels)
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, 0, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, bitDepth)
	}

	frames := len(pcm) / channels
	if frames == 0 {
		return nil, 0, ErrEmptyData
	}

	out := make([]int16, frames*2)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < 2; ch++ {
			src := pcm[i*channels+ch%channels]
			if unsigned8 && bitDepth == 8 {
				src -= 128
			}
			out[i*2+ch] = pcmTo16(src, bitDepth)
		}
	}
	return out, frames, nil
}

// DecodeWAV reads a RIFF/WAVE stream. Mono input is duplicated to both
// channels so the engine only ever sees stereo frames.
func DecodeWAV(r io.ReadSeeker, name string, rootNote uint8) (*Sample, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %s: short header", ErrInvalidWAV, name)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: %s: missing RIFF/WAVE magic", ErrInvalidWAV, name)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", name, err)
	}

	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidWAV, name, err)
	}
	if decoder.NumChans == 0 {
		return nil, fmt.Errorf("%w: %s: no fmt chunk", ErrInvalidWAV, name)
	}
	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: %s: WAV format tag %#x (only integer PCM is supported)", ErrUnsupportedFormat, name, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoDataChunk, name, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyData, name)
	}

	channels := int(decoder.NumChans)
	data, frames, err := interleaveStereo(buf.Data, channels, int(decoder.BitDepth), true)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", name, err)
	}

	return &Sample{
		Name:           name,
		Data:           data,
		Length:         frames,
		RootNote:       rootNote,
		SampleRate:     int(decoder.SampleRate),
		Channels:       2,
		SourceChannels: channels,
	}, nil
}

// DecodeFLAC reads a FLAC stream into a stereo sample
func DecodeFLAC(r io.Reader, name string, rootNote uint8) (*Sample, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create FLAC decoder for %s: %w", name, err)
	}
	defer stream.Close()

	info := stream.Info
	if info == nil {
		return nil, fmt.Errorf("no stream info available for FLAC file: %s", name)
	}
	channels := int(info.NChannels)
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("%w: %s has %d channels", ErrUnsupportedFormat, name, channels)
	}

	var pcm []int
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read FLAC frame from %s: %w", name, err)
		}
		for i := range frame.Subframes[0].Samples {
			for ch := 0; ch < channels; ch++ {
				pcm = append(pcm, int(frame.Subframes[ch].Samples[i]))
			}
		}
	}

	data, frames, err := interleaveStereo(pcm, channels, int(info.BitsPerSample), false)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", name, err)
	}

	return &Sample{
		Name:           name,
		Data:           data,
		Length:         frames,
		RootNote:       rootNote,
		SampleRate:     int(info.SampleRate),
		Channels:       2,
		SourceChannels: channels,
	}, nil
}

// DecodeSample picks a decoder from the file extension
func DecodeSample(r io.ReadSeeker, name string, rootNote uint8) (*Sample, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".wav":
		return DecodeWAV(r, name, rootNote)
	case ".flac":
		return DecodeFLAC(r, name, rootNote)
	default:
		return nil, fmt.Errorf("%w: %s (supported: .wav, .flac)", ErrUnsupportedFormat, ext)
	}
}

// SampleStore holds every loaded sample for the life of the process.
// There is no eviction; capacity is fixed at construction.
type SampleStore struct {
	mu       sync.RWMutex
	capacity int
	samples  []*Sample
	byName   map[string]*Sample
}

// NewSampleStore creates a store holding at most capacity samples
func NewSampleStore(capacity int) *SampleStore {
	return &SampleStore{
		capacity: capacity,
		samples:  make([]*Sample, 0, capacity),
		byName:   make(map[string]*Sample, capacity),
	}
}

// Add registers a decoded sample. Adding a name that is already present
// returns the existing sample.
func (ss *SampleStore) Add(sample *Sample) (*Sample, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if existing, ok := ss.byName[sample.Name]; ok {
		return existing, nil
	}
	if len(ss.samples) >= ss.capacity {
		return nil, fmt.Errorf("%w (max %d samples)", ErrStoreFull, ss.capacity)
	}

	ss.samples = append(ss.samples, sample)
	ss.byName[sample.Name] = sample
	return sample, nil
}

// Load decodes a sample from media, using the cached copy if one exists.
// A failed load leaves the store untouched.
func (ss *SampleStore) Load(ctx context.Context, media *Media, name string, rootNote uint8) (*Sample, error) {
	if sample, ok := ss.Get(name); ok {
		sampleDebug("Sample already cached: %s", name)
		return sample, nil
	}
	if ss.Len() >= ss.capacity {
		return nil, fmt.Errorf("cannot load %s: %w (max %d samples)", name, ErrStoreFull, ss.capacity)
	}

	sampleDebug("Loading new sample: %s", name)

	file, err := media.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	sample, err := DecodeSample(file, name, rootNote)
	if err != nil {
		return nil, err
	}

	sample, err = ss.Add(sample)
	if err != nil {
		return nil, err
	}

	sampleDebug("Loaded sample: %s -> MIDI note %d (%d frames, %d Hz, %d source channels)",
		name, rootNote, sample.Length, sample.SampleRate, sample.SourceChannels)
	return sample, nil
}

// Get returns a loaded sample by name
func (ss *SampleStore) Get(name string) (*Sample, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	sample, ok := ss.byName[name]
	return sample, ok
}

// Len returns the number of loaded samples
func (ss *SampleStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.samples)
}

// Capacity returns the maximum number of samples
func (ss *SampleStore) Capacity() int {
	return ss.capacity
}

// Samples returns the loaded samples in load order
func (ss *SampleStore) Samples() []*Sample {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := make([]*Sample, len(ss.samples))
	copy(out, ss.samples)
	return out
}
