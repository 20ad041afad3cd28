package gosampler

import "fmt"

// EnvelopeStage is the phase of a voice's amplitude envelope
type EnvelopeStage int

const (
	EnvIdle EnvelopeStage = iota
	EnvAttack
	EnvSustain
	EnvRelease
)

func (s EnvelopeStage) String() string {
	switch s {
	case EnvIdle:
		return "IDLE"
	case EnvAttack:
		return "ATTACK"
	case EnvSustain:
		return "SUSTAIN"
	case EnvRelease:
		return "RELEASE"
	default:
		return fmt.Sprintf("EnvelopeStage(%d)", int(s))
	}
}

// envEpsilon absorbs float drift so that N steps of 1/N land exactly on
// the target.
const envEpsilon = 1e-9

// Voice is one playback slot. Only the engine touches it.
type Voice struct {
	sample    *Sample
	note      uint8
	velocity  uint8
	position  float64 // Fractional frame index
	speed     float64 // Frames advanced per output frame
	amplitude float64 // velocity / 127

	stage     EnvelopeStage
	envValue  float64
	envTarget float64
	envRate   float64

	active   bool
	released bool
}

func (v *Voice) start(sample *Sample, note, velocity uint8, speed, attackRate float64) {
	*v = Voice{
		sample:    sample,
		note:      note,
		velocity:  velocity,
		speed:     speed,
		amplitude: float64(velocity) / 127.0,
		stage:     EnvAttack,
		envValue:  0,
		envTarget: 1.0,
		envRate:   attackRate,
		active:    true,
	}
}

func (v *Voice) release(releaseRate float64) {
	v.released = true
	v.stage = EnvRelease
	v.envTarget = 0
	v.envRate = releaseRate
}

func (v *Voice) stop() {
	v.active = false
	v.stage = EnvIdle
	v.sample = nil
}

// stepEnvelope advances the envelope one frame and reports whether the
// voice is still sounding.
func (v *Voice) stepEnvelope() bool {
	switch v.stage {
	case EnvAttack:
		v.envValue += v.envRate
		if v.envValue >= v.envTarget-envEpsilon {
			v.envValue = v.envTarget
			v.stage = EnvSustain
		}
	case EnvSustain:
		if v.released {
			v.stage = EnvRelease
			v.envTarget = 0
		}
	case EnvRelease:
		v.envValue -= v.envRate
		if v.envValue <= envEpsilon {
			v.envValue = 0
			return false
		}
	case EnvIdle:
		return false
	}
	return true
}

// render adds one frame of this voice into the accumulators and reports
// whether the voice is still active afterwards.
func (v *Voice) render(gain, highPitchThreshold, highPitchGain float64, left, right *int32) bool {
	if !v.stepEnvelope() {
		return false
	}

	s := v.sample
	idx := int(v.position)
	if idx >= s.Length-1 {
		return false
	}

	frac := v.position - float64(idx)
	l0, r0 := float64(s.Data[idx*2]), float64(s.Data[idx*2+1])
	l1, r1 := float64(s.Data[idx*2+2]), float64(s.Data[idx*2+3])
	l := l0 + (l1-l0)*frac
	r := r0 + (r1-r0)*frac

	g := v.envValue * v.amplitude * gain
	if v.speed > highPitchThreshold {
		g *= highPitchGain
	}

	*left += int32(l * g)
	*right += int32(r * g)

	v.position += v.speed
	return true
}

// VoiceState is a copy of one voice slot's fields
type VoiceState struct {
	Slot      int
	Active    bool
	Sample    string
	Note      uint8
	Velocity  uint8
	Amplitude float64
	Speed     float64
	Position  float64
	Stage     EnvelopeStage
	Envelope  float64
	Target    float64
	Rate      float64
	Released  bool
}

func (v *Voice) snapshot(slot int) VoiceState {
	vs := VoiceState{
		Slot:      slot,
		Active:    v.active,
		Note:      v.note,
		Velocity:  v.velocity,
		Amplitude: v.amplitude,
		Speed:     v.speed,
		Position:  v.position,
		Stage:     v.stage,
		Envelope:  v.envValue,
		Target:    v.envTarget,
		Rate:      v.envRate,
		Released:  v.released,
	}
	if v.sample != nil {
		vs.Sample = v.sample.Name
	}
	return vs
}
