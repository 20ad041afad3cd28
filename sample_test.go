package gosampler

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
)

func TestDecodeWAVMonoRoundTrip(t *testing.T) {
	// 1 channel, 8000 Hz, 16-bit, 4 frames
	values := []int16{1000, -2000, 3000, -4000}
	data := buildWAV(1, 8000, 16, pcm16(values...))

	sample, err := DecodeWAV(bytes.NewReader(data), "mono.wav", 60)
	if err != nil {
		t.Fatalf("Failed to decode mono WAV: %v", err)
	}

	if sample.Channels != 2 {
		t.Errorf("Expected 2 channels, got %d", sample.Channels)
	}
	if sample.SourceChannels != 1 {
		t.Errorf("Expected 1 source channel, got %d", sample.SourceChannels)
	}
	if sample.Length != 4 {
		t.Errorf("Expected length 4, got %d", sample.Length)
	}
	if sample.SampleRate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", sample.SampleRate)
	}
	if sample.RootNote != 60 {
		t.Errorf("Expected root note 60, got %d", sample.RootNote)
	}
	if len(sample.Data) != 8 {
		t.Fatalf("Expected 8 interleaved values, got %d", len(sample.Data))
	}
	for i, v := range values {
		left, right := sample.Frame(i)
		if left != v || right != v {
			t.Errorf("Frame %d: expected (%d, %d), got (%d, %d)", i, v, v, left, right)
		}
	}
}

func TestDecodeWAVStereoKeepsChannels(t *testing.T) {
	data := buildWAV(2, 44100, 16, pcm16(100, -100, 200, -200, 300, -300))

	sample, err := DecodeWAV(bytes.NewReader(data), "stereo.wav", 48)
	if err != nil {
		t.Fatalf("Failed to decode stereo WAV: %v", err)
	}
	if sample.Length != 3 {
		t.Fatalf("Expected 3 frames, got %d", sample.Length)
	}
	left, right := sample.Frame(2)
	if left != 300 || right != -300 {
		t.Errorf("Expected frame 2 = (300, -300), got (%d, %d)", left, right)
	}
}

func TestDecodeWAVSkipsNonDataChunks(t *testing.T) {
	data := buildWAV(1, 22050, 16, pcm16(7, 8, 9),
		testChunk{id: "LIST", data: []byte("INFOISFT\x04\x00\x00\x00test")},
		testChunk{id: "junk", data: []byte{1, 2, 3, 4}},
	)

	sample, err := DecodeWAV(bytes.NewReader(data), "chunks.wav", 60)
	if err != nil {
		t.Fatalf("Failed to decode WAV with extra chunks: %v", err)
	}
	if sample.Length != 3 {
		t.Fatalf("Expected 3 frames, got %d", sample.Length)
	}
	if left, _ := sample.Frame(0); left != 7 {
		t.Errorf("Expected first frame 7, got %d", left)
	}
}

func TestDecodeWAVRejectsMalformed(t *testing.T) {
	good := buildWAV(1, 8000, 16, pcm16(1, 2, 3, 4))

	badRiff := append([]byte{}, good...)
	copy(badRiff[0:4], "RIFX")

	badWave := append([]byte{}, good...)
	copy(badWave[8:12], "AVI ")

	// IEEE float samples 1.0 and 0.0 under format tag 3
	float := buildWAV(1, 8000, 32, []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0x00})
	binary.LittleEndian.PutUint16(float[20:22], 3)

	tests := []struct {
		name string
		data []byte
		want []error
	}{
		{"wrong RIFF magic", badRiff, []error{ErrInvalidWAV}},
		{"wrong WAVE magic", badWave, []error{ErrInvalidWAV}},
		{"truncated header", good[:6], []error{ErrInvalidWAV}},
		{"missing data chunk", buildWAV(1, 8000, 16, nil), []error{ErrNoDataChunk, ErrEmptyData}},
		{"empty data chunk", buildWAV(1, 8000, 16, []byte{}), []error{ErrEmptyData, ErrNoDataChunk}},
		{"float samples", float, []error{ErrUnsupportedFormat}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sample, err := DecodeWAV(bytes.NewReader(test.data), "bad.wav", 60)
			if err == nil {
				t.Fatalf("Expected error, got sample with %d frames", sample.Length)
			}
			matched := false
			for _, want := range test.want {
				if errors.Is(err, want) {
					matched = true
				}
			}
			if !matched {
				t.Errorf("Expected one of %v, got %v", test.want, err)
			}
		})
	}
}

func TestDecodeFLACRejectsGarbage(t *testing.T) {
	_, err := DecodeFLAC(bytes.NewReader([]byte("definitely not flac")), "bad.flac", 60)
	if err == nil {
		t.Error("Expected error decoding invalid FLAC data")
	}
}

func TestDecodeSampleUnsupportedExtension(t *testing.T) {
	_, err := DecodeSample(bytes.NewReader(nil), "loop.ogg", 60)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSampleStoreCache(t *testing.T) {
	media, dir := newTestMedia(t)
	writeToneWAV(t, dir, "tone.wav", 16, 1000)
	store := NewSampleStore(4)
	ctx := context.Background()

	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d", store.Len())
	}
	if _, ok := store.Get("tone.wav"); ok {
		t.Error("Expected miss before load")
	}

	first, err := store.Load(ctx, media, "tone.wav", 60)
	if err != nil {
		t.Fatalf("Failed to load tone.wav: %v", err)
	}
	second, err := store.Load(ctx, media, "tone.wav", 60)
	if err != nil {
		t.Fatalf("Failed to load cached tone.wav: %v", err)
	}

	if first != second {
		t.Error("Expected second load to return the cached sample")
	}
	if store.Len() != 1 {
		t.Errorf("Expected store size 1, got %d", store.Len())
	}
	if got, ok := store.Get("tone.wav"); !ok || got != first {
		t.Error("Expected Get to return the loaded sample")
	}
}

func TestSampleStoreFailedLoadKeepsEntries(t *testing.T) {
	media, dir := newTestMedia(t)
	writeToneWAV(t, dir, "good.wav", 8, 500)
	bad := buildWAV(1, 8000, 16, pcm16(1, 2))
	copy(bad[0:4], "JUNK")
	writeFile(t, dir, "bad.wav", bad)

	store := NewSampleStore(4)
	ctx := context.Background()
	good, err := store.Load(ctx, media, "good.wav", 60)
	if err != nil {
		t.Fatalf("Failed to load good.wav: %v", err)
	}

	if _, err := store.Load(ctx, media, "bad.wav", 62); err == nil {
		t.Fatal("Expected error loading bad.wav")
	}
	if _, err := store.Load(ctx, media, "missing.wav", 64); err == nil {
		t.Fatal("Expected error loading missing.wav")
	}

	if store.Len() != 1 {
		t.Errorf("Expected store size 1 after failed loads, got %d", store.Len())
	}
	samples := store.Samples()
	if len(samples) != 1 || samples[0] != good {
		t.Error("Expected the original sample to be untouched")
	}
	if _, ok := store.Get("bad.wav"); ok {
		t.Error("Expected bad.wav to be absent")
	}
}

func TestSampleStoreCapacity(t *testing.T) {
	media, dir := newTestMedia(t)
	for _, name := range []string{"a.wav", "b.wav", "c.wav"} {
		writeToneWAV(t, dir, name, 4, 1)
	}
	store := NewSampleStore(2)
	ctx := context.Background()

	for _, name := range []string{"a.wav", "b.wav"} {
		if _, err := store.Load(ctx, media, name, 60); err != nil {
			t.Fatalf("Failed to load %s: %v", name, err)
		}
	}

	_, err := store.Load(ctx, media, "c.wav", 60)
	if !errors.Is(err, ErrStoreFull) {
		t.Errorf("Expected ErrStoreFull, got %v", err)
	}
	if store.Len() != 2 {
		t.Errorf("Expected store size 2, got %d", store.Len())
	}

	// Cached names still resolve when full
	if _, err := store.Load(ctx, media, "a.wav", 60); err != nil {
		t.Errorf("Expected cached load to succeed when full, got %v", err)
	}
}
