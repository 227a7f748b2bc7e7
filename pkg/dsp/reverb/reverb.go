// Package reverb implements the spring reverb stage: eight parallel damped
// comb filters feeding four series all-pass diffusers per channel, with the
// right channel detuned by a fixed spread for stereo width.
package reverb

const (
	numCombs     = 8
	numAllpasses = 4

	// Tunings are in samples at 44.1 kHz and scale with the sample rate.
	stereoSpread = 23
	inputGain    = 0.015
	combDamping  = 0.12
	combFeedback = 0.784
	allpassGain  = 0.5

	// Spring voicing: the width shapes the wet cross-mix below.
	springWidth = 0.8

	// Below this mix the stage is a bypass and filter state stays frozen.
	mixFloor = 0.001
)

var combTunings = [numCombs]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
var allpassTunings = [numAllpasses]int{556, 441, 341, 225}

// comb is a feedback comb filter with a one-pole low-pass in the loop.
type comb struct {
	buffer []float32
	idx    int
	store  float32
}

func (c *comb) process(input float32) float32 {
	output := c.buffer[c.idx]
	c.store = output*(1-combDamping) + c.store*combDamping
	c.buffer[c.idx] = input + combFeedback*c.store
	c.idx++
	if c.idx >= len(c.buffer) {
		c.idx = 0
	}
	return output
}

func (c *comb) reset() {
	for i := range c.buffer {
		c.buffer[i] = 0
	}
	c.idx = 0
	c.store = 0
}

// allpass is a Schroeder all-pass diffuser.
type allpass struct {
	buffer []float32
	idx    int
}

func (a *allpass) process(input float32) float32 {
	bufout := a.buffer[a.idx]
	a.buffer[a.idx] = input + allpassGain*bufout
	a.idx++
	if a.idx >= len(a.buffer) {
		a.idx = 0
	}
	return bufout - input
}

func (a *allpass) reset() {
	for i := range a.buffer {
		a.buffer[i] = 0
	}
	a.idx = 0
}

// Reverb is the stereo spring reverb. The mix control sets the wet level
// directly and pulls the dry level down to half at full mix, so the spring
// blooms without the source vanishing.
type Reverb struct {
	combL [numCombs]comb
	combR [numCombs]comb
	apL   [numAllpasses]allpass
	apR   [numAllpasses]allpass

	mix      float32
	prepared bool
}

// New creates an unprepared reverb. Prepare must run before Process.
func New() *Reverb {
	return &Reverb{}
}

// Prepare allocates the filter lines for the sample rate and clears all
// state. Control context only.
func (r *Reverb) Prepare(sampleRate float64) {
	scale := sampleRate / 44100
	for i := 0; i < numCombs; i++ {
		r.combL[i].buffer = make([]float32, tuned(combTunings[i], scale))
		r.combR[i].buffer = make([]float32, tuned(combTunings[i]+stereoSpread, scale))
	}
	for i := 0; i < numAllpasses; i++ {
		r.apL[i].buffer = make([]float32, tuned(allpassTunings[i], scale))
		r.apR[i].buffer = make([]float32, tuned(allpassTunings[i]+stereoSpread, scale))
	}
	r.prepared = true
	r.Reset()
}

func tuned(samples int, scale float64) int {
	n := int(float64(samples) * scale)
	if n < 1 {
		n = 1
	}
	return n
}

// Reset clears every filter line. The mix setting survives.
func (r *Reverb) Reset() {
	for i := range r.combL {
		r.combL[i].reset()
		r.combR[i].reset()
	}
	for i := range r.apL {
		r.apL[i].reset()
		r.apR[i].reset()
	}
}

// SetMix sets the wet amount in [0, 1]. Zero bypasses the stage.
func (r *Reverb) SetMix(mix float32) {
	if mix < 0 {
		mix = 0
	} else if mix > 1 {
		mix = 1
	}
	r.mix = mix
}

// Process runs the reverb in place over a stereo block. Real-time safe:
// no allocation, no locks.
func (r *Reverb) Process(left, right []float32) {
	if !r.prepared || r.mix < mixFloor {
		return
	}

	frames := len(left)
	if len(right) < frames {
		frames = len(right)
	}

	wet1 := r.mix * (springWidth/2 + 0.5)
	wet2 := r.mix * ((1 - springWidth) / 2)
	dry := 1 - r.mix*0.5

	for i := 0; i < frames; i++ {
		input := (left[i] + right[i]) * inputGain

		var outL, outR float32
		for c := 0; c < numCombs; c++ {
			outL += r.combL[c].process(input)
			outR += r.combR[c].process(input)
		}
		for a := 0; a < numAllpasses; a++ {
			outL = r.apL[a].process(outL)
			outR = r.apR[a].process(outR)
		}

		left[i] = outL*wet1 + outR*wet2 + left[i]*dry
		right[i] = outR*wet1 + outL*wet2 + right[i]*dry
	}
}
