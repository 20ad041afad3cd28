package gosampler

import (
	"errors"
	"fmt"
	"strings"
)

// LimiterMode selects the final gain stage applied to the mixed signal
type LimiterMode int32

const (
	// LimiterHard clamps each accumulator to the signed 16-bit range
	LimiterHard LimiterMode = iota
	// LimiterSoft shapes the signal through tanh before clamping
	LimiterSoft
)

func (m LimiterMode) String() string {
	switch m {
	case LimiterHard:
		return "hard"
	case LimiterSoft:
		return "soft"
	default:
		return fmt.Sprintf("LimiterMode(%d)", int32(m))
	}
}

// ParseLimiterMode converts "hard" or "soft" into a LimiterMode
func ParseLimiterMode(s string) (LimiterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hard", "clip":
		return LimiterHard, nil
	case "soft", "tanh":
		return LimiterSoft, nil
	default:
		return LimiterHard, fmt.Errorf("invalid limiter %q (expected hard|soft)", s)
	}
}

// Config holds the fixed sizes and envelope constants of a sampler instance.
// All pools are allocated from these values once, at construction time.
type Config struct {
	SampleRate   int // Output rate in Hz
	Polyphony    int // Voice pool size
	BufferFrames int // Frames per hardware buffer

	MaxSamples     int // Sample store capacity
	MaxKeySamples  int // Key samples per instrument
	MaxInstruments int

	AttackRate  float64 // Envelope increment per frame during attack
	ReleaseRate float64 // Envelope decrement per frame during release

	HighPitchThreshold float64 // Speed above which HighPitchGain is applied
	HighPitchGain      float64

	SampleVolume float64 // Global voice gain, 0..2
	EventQueue   int     // Capacity of the note event channel
	Limiter      LimiterMode
}

// DefaultConfig returns the settings of the reference hardware build
func DefaultConfig() Config {
	return Config{
		SampleRate:         44100,
		Polyphony:          8,
		BufferFrames:       64,
		MaxSamples:         16,
		MaxKeySamples:      16,
		MaxInstruments:     4,
		AttackRate:         0.01,
		ReleaseRate:        0.002,
		HighPitchThreshold: 2.0,
		HighPitchGain:      0.7,
		SampleVolume:       1.0,
		EventQueue:         64,
		Limiter:            LimiterHard,
	}
}

// Validate reports the first invalid field
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return errors.New("sample rate must be positive")
	case c.Polyphony <= 0:
		return errors.New("polyphony must be positive")
	case c.BufferFrames <= 0:
		return errors.New("buffer frames must be positive")
	case c.MaxSamples <= 0:
		return errors.New("max samples must be positive")
	case c.MaxKeySamples <= 0:
		return errors.New("max key samples must be positive")
	case c.MaxInstruments <= 0:
		return errors.New("max instruments must be positive")
	case c.AttackRate <= 0 || c.AttackRate > 1:
		return fmt.Errorf("attack rate %f out of range (0, 1]", c.AttackRate)
	case c.ReleaseRate <= 0 || c.ReleaseRate > 1:
		return fmt.Errorf("release rate %f out of range (0, 1]", c.ReleaseRate)
	case c.EventQueue <= 0:
		return errors.New("event queue must be positive")
	}
	return nil
}
