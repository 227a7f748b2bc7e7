// Package tapedelay implements a stereo delay line with tape-transport
// imperfections: smoothed delay-time changes, dual-LFO flutter, hiss, and
// a saturating, DC-blocked feedback path.
package tapedelay

import (
	"math"

	"github.com/palacesynth/palace/pkg/dsp/interpolation"
	"github.com/palacesynth/palace/pkg/dsp/utility"
)

const (
	maxDelaySeconds = 2.0
	// Flutter headroom plus the extra samples Hermite interpolation reads
	// past the integer position.
	bufferHeadroom = 0.1

	// Delay-time changes relax toward the target by this fraction per
	// frame; an instant jump would be an audible click.
	smoothingCoeff = 0.001

	// Two incommensurate flutter rates imitate the layered speed
	// instability of a mechanical transport.
	flutterFreq1 = 3.8 // Hz
	flutterFreq2 = 5.7 // Hz

	// At 100% flutter the wobble is ±4% of the current delay length.
	flutterDepth = 0.04

	hissGain = 0.03
	dcCoeff  = 0.995
)

// TapeDelay is the post-effect at the end of the signal chain. Process is
// real-time safe after Prepare; parameter setters may be called from the
// control context between blocks.
type TapeDelay struct {
	sampleRate float64
	bufferL    []float32
	bufferR    []float32
	writePos   int

	delayTimeMs   float32
	feedback      float32
	flutterAmount float32
	hissAmount    float32

	smoothedDelay float32 // frames
	targetDelay   float32 // frames

	lfoPhase1 float32
	lfoPhase2 float32

	noise *utility.Noise
	dcL   *utility.DCBlocker
	dcR   *utility.DCBlocker
}

// New creates an unprepared tape delay.
func New() *TapeDelay {
	return &TapeDelay{
		sampleRate:  44100,
		delayTimeMs: 300,
		noise:       utility.NewNoise(42),
		dcL:         utility.NewDCBlocker(dcCoeff),
		dcR:         utility.NewDCBlocker(dcCoeff),
	}
}

// Prepare allocates the delay buffers for the sample rate. Must be called
// off the real-time path before Process.
func (t *TapeDelay) Prepare(sampleRate float64) {
	t.sampleRate = sampleRate

	size := int(sampleRate*(maxDelaySeconds+bufferHeadroom)) + 4
	t.bufferL = make([]float32, size)
	t.bufferR = make([]float32, size)

	t.targetDelay = float32(float64(t.delayTimeMs) * 0.001 * sampleRate)
	t.smoothedDelay = t.targetDelay
	t.writePos = 0
}

// Reset clears the buffers and filter state without reallocating.
func (t *TapeDelay) Reset() {
	for i := range t.bufferL {
		t.bufferL[i] = 0
		t.bufferR[i] = 0
	}
	t.writePos = 0
	t.lfoPhase1 = 0
	t.lfoPhase2 = 0
	t.dcL.Reset()
	t.dcR.Reset()
	t.smoothedDelay = t.targetDelay
}

// SetDelayTime sets the delay in milliseconds, clamped to the buffer.
func (t *TapeDelay) SetDelayTime(ms float32) {
	if ms < 1 {
		ms = 1
	} else if ms > maxDelaySeconds*1000 {
		ms = maxDelaySeconds * 1000
	}
	t.delayTimeMs = ms
	t.targetDelay = float32(float64(ms) * 0.001 * t.sampleRate)
}

// SetFeedback sets the feedback amount, clamped to [0, 1].
func (t *TapeDelay) SetFeedback(fb float32) {
	t.feedback = clamp01(fb)
}

// SetFlutter sets the flutter depth, clamped to [0, 1].
func (t *TapeDelay) SetFlutter(amount float32) {
	t.flutterAmount = clamp01(amount)
}

// SetHiss sets the tape-hiss level, clamped to [0, 1].
func (t *TapeDelay) SetHiss(amount float32) {
	t.hissAmount = clamp01(amount)
}

// Process runs the delay over the block in place, adding the wet signal to
// both channels.
func (t *TapeDelay) Process(left, right []float32) {
	if len(t.bufferL) == 0 {
		return
	}

	frames := len(left)
	if len(right) < frames {
		frames = len(right)
	}

	size := len(t.bufferL)
	lfoInc1 := float32(flutterFreq1 / t.sampleRate)
	lfoInc2 := float32(flutterFreq2 / t.sampleRate)

	for i := 0; i < frames; i++ {
		t.smoothedDelay = interpolation.Smooth(t.smoothedDelay, t.targetDelay, smoothingCoeff)

		// Flutter: weighted pair of slow sines, scaled by the current
		// delay length so the wobble stays proportional.
		lfo1 := float32(math.Sin(float64(t.lfoPhase1) * 2 * math.Pi))
		lfo2 := float32(math.Sin(float64(t.lfoPhase2) * 2 * math.Pi))
		flutterOffset := t.flutterAmount * flutterDepth * t.smoothedDelay * (lfo1*0.6 + lfo2*0.4)

		t.lfoPhase1 += lfoInc1
		if t.lfoPhase1 >= 1 {
			t.lfoPhase1 -= 1
		}
		t.lfoPhase2 += lfoInc2
		if t.lfoPhase2 >= 1 {
			t.lfoPhase2 -= 1
		}

		readPos := float32(t.writePos) - t.smoothedDelay - flutterOffset
		for readPos < 0 {
			readPos += float32(size)
		}

		wetL := interpolation.HermiteWrapped(t.bufferL, readPos)
		wetR := interpolation.HermiteWrapped(t.bufferR, readPos)

		if t.hissAmount > 0 {
			wetL += t.noise.Next() * t.hissAmount * hissGain
			wetR += t.noise.Next() * t.hissAmount * hissGain
		}

		// Feedback path: cubic soft clip then DC block, so runaway
		// resonance folds over gently instead of slamming the rails.
		fbL := wetL * t.feedback
		fbR := wetR * t.feedback
		fbL = fbL - fbL*fbL*fbL/3
		fbR = fbR - fbR*fbR*fbR/3
		fbL = t.dcL.Process(fbL)
		fbR = t.dcR.Process(fbR)

		t.bufferL[t.writePos] = left[i] + fbL
		t.bufferR[t.writePos] = right[i] + fbR

		left[i] += wetL
		right[i] += wetR

		t.writePos++
		if t.writePos >= size {
			t.writePos = 0
		}
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
