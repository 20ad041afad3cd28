package gosampler

import (
	"github.com/GeoffreyPlitt/debuggo"
)

var reverbDebug = debuggo.Debug("gosampler:reverb")

// Freeverb tuning (Jezar at Dreampoint), delays given at 44.1kHz
const (
	numCombs     = 8
	numAllpasses = 4
	stereoSpread = 23

	fixedGain  = 0.015
	scaleDamp  = 0.4
	scaleRoom  = 0.28
	offsetRoom = 0.7

	allpassFeedback = 0.5
)

var (
	combTuning    = [numCombs]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	allpassTuning = [numAllpasses]int{556, 441, 341, 225}
)

type combFilter struct {
	buffer      []float64
	idx         int
	feedback    float64
	damp1       float64
	damp2       float64
	filterStore float64
}

func (cf *combFilter) process(input float64) float64 {
	output := cf.buffer[cf.idx]
	cf.filterStore = output*cf.damp2 + cf.filterStore*cf.damp1
	cf.buffer[cf.idx] = input + cf.filterStore*cf.feedback
	if cf.idx++; cf.idx >= len(cf.buffer) {
		cf.idx = 0
	}
	return output
}

type allpassFilter struct {
	buffer []float64
	idx    int
}

func (af *allpassFilter) process(input float64) float64 {
	bufout := af.buffer[af.idx]
	af.buffer[af.idx] = input + bufout*allpassFeedback
	if af.idx++; af.idx >= len(af.buffer) {
		af.idx = 0
	}
	return bufout - input
}

// Reverb is a stereo Freeverb used as a send on the final mix. All delay
// lines are allocated up front; Process does not allocate.
type Reverb struct {
	combsL, combsR         [numCombs]combFilter
	allpassesL, allpassesR [numAllpasses]allpassFilter

	roomSize float64
	damp     float64
	width    float64
}

// NewReverb creates a reverb with delay lines scaled to sampleRate
func NewReverb(sampleRate int) *Reverb {
	rv := &Reverb{roomSize: 0.5, damp: 0.5, width: 1.0}

	scale := float64(sampleRate) / 44100.0
	for i, d := range combTuning {
		n := max(1, int(float64(d)*scale))
		rv.combsL[i].buffer = make([]float64, n)
		rv.combsR[i].buffer = make([]float64, n+stereoSpread)
	}
	for i, d := range allpassTuning {
		n := max(1, int(float64(d)*scale))
		rv.allpassesL[i].buffer = make([]float64, n)
		rv.allpassesR[i].buffer = make([]float64, n+stereoSpread)
	}
	rv.update()

	reverbDebug("Reverb initialized: sampleRate=%d, scale=%.2f", sampleRate, scale)
	return rv
}

func (rv *Reverb) update() {
	feedback := rv.roomSize*scaleRoom + offsetRoom
	damp := rv.damp * scaleDamp
	for i := range rv.combsL {
		for _, cf := range []*combFilter{&rv.combsL[i], &rv.combsR[i]} {
			cf.feedback = feedback
			cf.damp1 = damp
			cf.damp2 = 1 - damp
		}
	}
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

// clampRange limits v to [lo, hi]. NaN maps to lo.
func clampRange(v, lo, hi float64) float64 {
	if !(v > lo) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SetRoomSize sets the decay length, 0..1
func (rv *Reverb) SetRoomSize(size float64) {
	rv.roomSize = clamp01(size)
	rv.update()
}

// SetDamping sets high frequency absorption, 0..1
func (rv *Reverb) SetDamping(damp float64) {
	rv.damp = clamp01(damp)
	rv.update()
}

// SetWidth sets the stereo width of the tail, 0..1
func (rv *Reverb) SetWidth(width float64) {
	rv.width = clamp01(width)
}

func (rv *Reverb) RoomSize() float64 { return rv.roomSize }
func (rv *Reverb) Damping() float64  { return rv.damp }
func (rv *Reverb) Width() float64    { return rv.width }

// Process returns the wet tail for one stereo frame
func (rv *Reverb) Process(inL, inR float64) (wetL, wetR float64) {
	input := (inL + inR) * fixedGain

	var outL, outR float64
	for i := range rv.combsL {
		outL += rv.combsL[i].process(input)
		outR += rv.combsR[i].process(input)
	}
	for i := range rv.allpassesL {
		outL = rv.allpassesL[i].process(outL)
		outR = rv.allpassesR[i].process(outR)
	}

	wet1 := rv.width/2 + 0.5
	wet2 := (1 - rv.width) / 2
	return outL*wet1 + outR*wet2, outR*wet1 + outL*wet2
}

// Reset clears all delay lines
func (rv *Reverb) Reset() {
	for i := range rv.combsL {
		for _, cf := range []*combFilter{&rv.combsL[i], &rv.combsR[i]} {
			clear(cf.buffer)
			cf.filterStore = 0
			cf.idx = 0
		}
	}
	for i := range rv.allpassesL {
		for _, af := range []*allpassFilter{&rv.allpassesL[i], &rv.allpassesR[i]} {
			clear(af.buffer)
			af.idx = 0
		}
	}
}
