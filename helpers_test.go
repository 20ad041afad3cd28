package gosampler

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testChunk is an extra RIFF chunk placed before "data"
type testChunk struct {
	id   string
	data []byte
}

// buildWAV assembles a PCM WAV file byte by byte so malformed variants can
// be produced by editing the pieces.
func buildWAV(channels, sampleRate, bitsPerSample int, pcm []byte, extra ...testChunk) []byte {
	var body bytes.Buffer
	body.WriteString("WAVE")

	blockAlign := channels * bitsPerSample / 8
	body.WriteString("fmt ")
	binary.Write(&body, binary.LittleEndian, uint32(16))                    // Chunk size
	binary.Write(&body, binary.LittleEndian, uint16(1))                     // PCM
	binary.Write(&body, binary.LittleEndian, uint16(channels))              // Channels
	binary.Write(&body, binary.LittleEndian, uint32(sampleRate))            // Sample rate
	binary.Write(&body, binary.LittleEndian, uint32(sampleRate*blockAlign)) // Byte rate
	binary.Write(&body, binary.LittleEndian, uint16(blockAlign))            // Block align
	binary.Write(&body, binary.LittleEndian, uint16(bitsPerSample))         // Bits per sample

	for _, c := range extra {
		body.WriteString(c.id)
		binary.Write(&body, binary.LittleEndian, uint32(len(c.data)))
		body.Write(c.data)
		if len(c.data)%2 == 1 {
			body.WriteByte(0)
		}
	}

	if pcm != nil {
		body.WriteString("data")
		binary.Write(&body, binary.LittleEndian, uint32(len(pcm)))
		body.Write(pcm)
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

// pcm16 encodes samples as little-endian 16-bit PCM
func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// writeFile writes data under dir and returns the path
func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// writeToneWAV writes a stereo 16-bit WAV holding frames copies of value
func writeToneWAV(t *testing.T, dir, name string, frames int, value int16) string {
	t.Helper()
	samples := make([]int16, frames*2)
	for i := range samples {
		samples[i] = value
	}
	return writeFile(t, dir, name, buildWAV(2, 44100, 16, pcm16(samples...)))
}

// newTestMedia returns media over a fresh temp dir with short retries
func newTestMedia(t *testing.T) (*Media, string) {
	t.Helper()
	dir := t.TempDir()
	return NewMedia(dir, WithRetries(2), WithRetryDelay(time.Millisecond, 5*time.Millisecond)), dir
}

// constantSample returns a stereo sample whose every value is v
func constantSample(name string, root uint8, frames int, v int16) *Sample {
	data := make([]int16, frames*2)
	for i := range data {
		data[i] = v
	}
	return NewStereoSample(name, root, 44100, data)
}

// rampSample returns a stereo sample where frame i holds (i*step, -i*step)
func rampSample(name string, root uint8, frames int, step int16) *Sample {
	data := make([]int16, frames*2)
	for i := 0; i < frames; i++ {
		data[i*2] = int16(i) * step
		data[i*2+1] = -int16(i) * step
	}
	return NewStereoSample(name, root, 44100, data)
}

// testZone describes one key sample for newTestEngine
type testZone struct {
	sample       *Sample
	root, lo, hi uint8
}

// newTestEngine builds an engine whose current instrument holds zones
func newTestEngine(t *testing.T, cfg Config, zones ...testZone) *Engine {
	t.Helper()
	bank := NewInstrumentBank(cfg.MaxInstruments, cfg.MaxKeySamples)
	index, err := bank.Create("test")
	if err != nil {
		t.Fatalf("Failed to create instrument: %v", err)
	}
	for _, z := range zones {
		if err := bank.AddKeySample(index, z.sample, z.root, z.lo, z.hi); err != nil {
			t.Fatalf("Failed to add key sample: %v", err)
		}
	}
	engine, err := NewEngine(cfg, bank)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return engine
}

// renderFrames advances every voice n frames, one frame at a time
func renderFrames(e *Engine, n int) (left, right int32) {
	for i := 0; i < n; i++ {
		left, right = 0, 0
		for slot := 0; slot < e.Polyphony(); slot++ {
			e.RenderFrame(slot, &left, &right)
		}
	}
	return left, right
}
