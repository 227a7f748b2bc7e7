// Package engine ties the DSP layers into a polyphonic instrument: voices
// with envelope state machines, a voice manager with note stealing, the
// render entry point and state persistence.
package engine

import (
	"math"

	"github.com/palacesynth/palace/pkg/dsp/grain"
	"github.com/palacesynth/palace/pkg/dsp/sample"
	"github.com/palacesynth/palace/pkg/dsp/wear"
)

// EnvelopeState is the voice ADSR stage.
type EnvelopeState uint8

const (
	EnvelopeIdle EnvelopeState = iota
	EnvelopeAttack
	EnvelopeDecay
	EnvelopeSustain
	EnvelopeRelease
)

// EnvelopeTimes are the per-block ADSR settings, in milliseconds and a
// 0-1 sustain level.
type EnvelopeTimes struct {
	AttackMs  float64
	DecayMs   float64
	Sustain   float64
	ReleaseMs float64
}

// Voice owns one grain scheduler and an ADSR envelope. A voice is active
// from note-on until its release ramp reaches zero; the grain pool is
// cleared on every trigger and again when the release ramp lands.
type Voice struct {
	scheduler  *grain.Scheduler
	sampleRate float64

	state    EnvelopeState
	value    float32
	env      EnvelopeTimes
	note     uint8
	velocity float32
	age      int64

	bufL []float32
	bufR []float32
}

// NewVoice creates a voice wired to the shared wear tracker. seed feeds
// the scheduler's randomness so voices decorrelate.
func NewVoice(tracker *wear.Tracker, seed int64) *Voice {
	return &Voice{
		scheduler: grain.NewScheduler(tracker, seed),
	}
}

// Prepare sets the sample rate, sizes the scratch buffers and resets the
// voice. Control context only.
func (v *Voice) Prepare(sampleRate float64, maxBlockFrames int) {
	v.sampleRate = sampleRate
	v.scheduler.Prepare(sampleRate)
	if len(v.bufL) < maxBlockFrames {
		v.bufL = make([]float32, maxBlockFrames)
		v.bufR = make([]float32, maxBlockFrames)
	}
	v.Stop()
}

// Trigger starts or retriggers the voice on a note. The grain pool starts
// empty so no grain from the previous note sounds at the old pitch. The
// envelope enters Attack from its current level, so stealing a sounding
// voice ramps rather than clicks; from Idle that level is zero.
func (v *Voice) Trigger(note, velocity uint8) {
	if v.state == EnvelopeIdle {
		v.value = 0
	}
	v.scheduler.Reset()
	v.state = EnvelopeAttack
	v.note = note
	v.velocity = float32(velocity) / 127
	v.age = 0
}

// Release moves the envelope to its release ramp.
func (v *Voice) Release() {
	if v.state != EnvelopeIdle {
		v.state = EnvelopeRelease
	}
}

// Stop silences the voice immediately and clears its grain pool.
func (v *Voice) Stop() {
	v.state = EnvelopeIdle
	v.value = 0
	v.scheduler.Reset()
}

// IsActive reports whether the voice is sounding.
func (v *Voice) IsActive() bool {
	return v.state != EnvelopeIdle
}

// Note returns the note this voice plays; valid only while active.
func (v *Voice) Note() uint8 { return v.note }

// State returns the current envelope stage.
func (v *Voice) State() EnvelopeState { return v.state }

// EnvelopeValue returns the current envelope level in [0, 1].
func (v *Voice) EnvelopeValue() float32 { return v.value }

// Age returns the number of blocks rendered since the last trigger.
func (v *Voice) Age() int64 { return v.age }

// Scheduler exposes the voice's grain scheduler for parameter updates and
// snapshots.
func (v *Voice) Scheduler() *grain.Scheduler { return v.scheduler }

// SetEnvelopeTimes installs the ADSR settings for subsequent blocks.
func (v *Voice) SetEnvelopeTimes(env EnvelopeTimes) {
	v.env = env
}

// Process renders the voice's grains, shapes them with the envelope and
// accumulates into the stereo outputs. Real-time safe.
func (v *Voice) Process(source *sample.Buffer, left, right []float32, frames int) {
	if v.state == EnvelopeIdle {
		return
	}

	for i := 0; i < frames; i++ {
		v.bufL[i] = 0
		v.bufR[i] = 0
	}

	ratio := noteRatio(v.note)
	v.scheduler.Process(source, v.bufL[:frames], v.bufR[:frames], ratio)

	for i := 0; i < frames; i++ {
		v.stepEnvelope()
		g := v.value * v.velocity
		left[i] += v.bufL[i] * g
		right[i] += v.bufR[i] * g
	}

	if v.state != EnvelopeIdle {
		v.age++
	}
}

// stepEnvelope advances the ADSR by one frame. Every stage ramp is linear;
// a zero stage time snaps in a single frame. The grain pool is cleared at
// the Release to Idle transition so a dead voice holds no grains.
func (v *Voice) stepEnvelope() {
	switch v.state {
	case EnvelopeAttack:
		if v.env.AttackMs <= 0 {
			v.value = 1
		} else {
			v.value += rate(v.env.AttackMs, v.sampleRate)
		}
		if v.value >= 1 {
			v.value = 1
			v.state = EnvelopeDecay
		}

	case EnvelopeDecay:
		sustain := float32(v.env.Sustain)
		if v.env.DecayMs <= 0 {
			v.value = sustain
		} else {
			v.value -= rate(v.env.DecayMs, v.sampleRate)
		}
		if v.value <= sustain {
			v.value = sustain
			v.state = EnvelopeSustain
		}

	case EnvelopeSustain:
		v.value = float32(v.env.Sustain)

	case EnvelopeRelease:
		if v.env.ReleaseMs <= 0 {
			v.value = 0
		} else {
			v.value -= rate(v.env.ReleaseMs, v.sampleRate)
		}
		if v.value <= 0 {
			v.value = 0
			v.state = EnvelopeIdle
			v.scheduler.Reset()
		}
	}
}

// rate is the per-frame envelope increment for a full-scale ramp over the
// given time.
func rate(timeMs, sampleRate float64) float32 {
	return float32(1 / (timeMs * 0.001 * sampleRate))
}

// noteRatio converts a note number to a pitch ratio relative to middle C.
func noteRatio(note uint8) float32 {
	return float32(math.Pow(2, (float64(note)-60)/12))
}
