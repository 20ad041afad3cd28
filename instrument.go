package gosampler

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/GeoffreyPlitt/debuggo"
)

var instrumentDebug = debuggo.Debug("gosampler:instrument")

var (
	ErrInstrumentFull     = errors.New("instrument has no free key sample slots")
	ErrInvalidInstrument  = errors.New("invalid instrument index")
	ErrTooManyInstruments = errors.New("instrument bank is full")
	ErrInvalidRange       = errors.New("invalid key range")
)

// KeySample binds a sample to the note range it serves
type KeySample struct {
	Sample   *Sample
	RootNote uint8
	MinNote  uint8
	MaxNote  uint8
	Loaded   bool
}

// Covers reports whether note falls inside the inclusive key range
func (ks *KeySample) Covers(note uint8) bool {
	return note >= ks.MinNote && note <= ks.MaxNote
}

// Instrument is a named set of key-mapped samples
type Instrument struct {
	Name       string
	KeySamples []KeySample
	Loaded     bool
	capacity   int
}

func newInstrument(name string, capacity int) *Instrument {
	return &Instrument{
		Name:       name,
		KeySamples: make([]KeySample, 0, capacity),
		capacity:   capacity,
	}
}

// Capacity returns the maximum number of key samples
func (inst *Instrument) Capacity() int {
	return inst.capacity
}

// FindBestKeySample resolves note to a key sample. The first loaded key
// sample whose range covers the note wins; otherwise the one whose root is
// closest, earliest on ties. Returns nil when nothing is loaded.
func (inst *Instrument) FindBestKeySample(note uint8) *KeySample {
	if inst == nil {
		return nil
	}

	for i := range inst.KeySamples {
		ks := &inst.KeySamples[i]
		if ks.Loaded && ks.Covers(note) {
			return ks
		}
	}

	var best *KeySample
	bestDistance := 128
	for i := range inst.KeySamples {
		ks := &inst.KeySamples[i]
		if !ks.Loaded {
			continue
		}
		distance := int(note) - int(ks.RootNote)
		if distance < 0 {
			distance = -distance
		}
		if distance < bestDistance {
			bestDistance = distance
			best = ks
		}
	}
	return best
}

// RangeOverlap describes two key samples claiming the same notes
type RangeOverlap struct {
	First, Second int // Key sample indexes
	Low, High     uint8
}

func (o RangeOverlap) String() string {
	return fmt.Sprintf("key samples %d and %d overlap on notes %d-%d", o.First, o.Second, o.Low, o.High)
}

// ValidateRanges lists every pair of loaded key samples with overlapping
// ranges. Lookup is unaffected; the earlier key sample keeps winning.
func (inst *Instrument) ValidateRanges() []RangeOverlap {
	var overlaps []RangeOverlap
	for i := range inst.KeySamples {
		a := &inst.KeySamples[i]
		if !a.Loaded {
			continue
		}
		for j := i + 1; j < len(inst.KeySamples); j++ {
			b := &inst.KeySamples[j]
			if !b.Loaded {
				continue
			}
			low := max(a.MinNote, b.MinNote)
			high := min(a.MaxNote, b.MaxNote)
			if low <= high {
				overlaps = append(overlaps, RangeOverlap{First: i, Second: j, Low: low, High: high})
			}
		}
	}
	return overlaps
}

// PitchRatio returns the equal-tempered playback speed for a semitone offset
func PitchRatio(semitoneOffset int) float64 {
	return math.Pow(2.0, float64(semitoneOffset)/12.0)
}

// InstrumentBank owns a fixed number of instruments, one of which is current
type InstrumentBank struct {
	mu          sync.RWMutex
	instruments []*Instrument
	capacity    int
	keyCapacity int
	current     int
}

// NewInstrumentBank creates an empty bank
func NewInstrumentBank(capacity, keySamplesPerInstrument int) *InstrumentBank {
	return &InstrumentBank{
		instruments: make([]*Instrument, 0, capacity),
		capacity:    capacity,
		keyCapacity: keySamplesPerInstrument,
		current:     -1,
	}
}

// Create adds an empty instrument and returns its index. The first
// instrument created becomes current.
func (b *InstrumentBank) Create(name string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.instruments) >= b.capacity {
		return -1, fmt.Errorf("cannot create %q: %w (max %d)", name, ErrTooManyInstruments, b.capacity)
	}
	b.instruments = append(b.instruments, newInstrument(name, b.keyCapacity))
	index := len(b.instruments) - 1
	if b.current < 0 {
		b.current = index
	}
	instrumentDebug("Created instrument %d: %s", index, name)
	return index, nil
}

// AddKeySample maps sample onto [minNote, maxNote] of instrument index
func (b *InstrumentBank) AddKeySample(index int, sample *Sample, rootNote, minNote, maxNote uint8) error {
	if sample == nil {
		return errors.New("nil sample")
	}
	if minNote > maxNote || maxNote > 127 || rootNote > 127 {
		return fmt.Errorf("%w: root %d range %d-%d", ErrInvalidRange, rootNote, minNote, maxNote)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.instruments) {
		return fmt.Errorf("%w: %d", ErrInvalidInstrument, index)
	}
	inst := b.instruments[index]
	if len(inst.KeySamples) >= inst.capacity {
		return fmt.Errorf("%s: %w (max %d)", inst.Name, ErrInstrumentFull, inst.capacity)
	}

	inst.KeySamples = append(inst.KeySamples, KeySample{
		Sample:   sample,
		RootNote: rootNote,
		MinNote:  minNote,
		MaxNote:  maxNote,
		Loaded:   true,
	})
	inst.Loaded = true
	instrumentDebug("%s: added %s root %d range %d-%d", inst.Name, sample.Name, rootNote, minNote, maxNote)
	return nil
}

// Select makes instrument index current. Invalid indexes are ignored.
func (b *InstrumentBank) Select(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.instruments) {
		instrumentDebug("Ignoring invalid instrument index %d (have %d)", index, len(b.instruments))
		return false
	}
	b.current = index
	instrumentDebug("Selected instrument %d: %s", index, b.instruments[index].Name)
	return true
}

// Current returns the selected instrument, or nil if none exists
func (b *InstrumentBank) Current() *Instrument {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current < 0 {
		return nil
	}
	return b.instruments[b.current]
}

// CurrentIndex returns the selected index, or -1
func (b *InstrumentBank) CurrentIndex() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Len returns the number of instruments
func (b *InstrumentBank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.instruments)
}

// Instrument returns instrument i, or nil if i is out of range
func (b *InstrumentBank) Instrument(i int) *Instrument {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.instruments) {
		return nil
	}
	return b.instruments[i]
}

// Find returns the index of the instrument with the given name, or -1
func (b *InstrumentBank) Find(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i, inst := range b.instruments {
		if inst.Name == name {
			return i
		}
	}
	return -1
}

// Resolve looks up note in the current instrument
func (b *InstrumentBank) Resolve(note uint8) *KeySample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current < 0 {
		return nil
	}
	return b.instruments[b.current].FindBestKeySample(note)
}
