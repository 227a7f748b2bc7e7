// Package modulation provides the engine's low-frequency modulation source.
package modulation

import (
	"math"
	"math/rand"
)

// Waveform selects the LFO shape.
type Waveform int

const (
	// WaveformSine produces a sine wave
	WaveformSine Waveform = iota
	// WaveformTriangle produces a triangle wave
	WaveformTriangle
	// WaveformSquare produces a square wave
	WaveformSquare
	// WaveformNoise produces a new random value on every advance
	WaveformNoise
	// WaveformSampleHold holds a random value for one full cycle
	WaveformSampleHold
)

// LFO is a free-running low-frequency oscillator.
//
// It deliberately splits "what is the value now" from "move time forward":
// Value is a pure function of the current phase and never mutates state,
// while Advance moves the phase by a frame count. Callers that want a
// block-representative sample advance to the block midpoint, read Value
// once, then advance to the block end — never by replaying single-frame
// advances.
type LFO struct {
	sampleRate float64
	frequency  float64
	phase      float64
	waveform   Waveform

	held float32
	rand *rand.Rand
}

// New creates an LFO at the given sample rate, running at 1 Hz sine.
func New(sampleRate float64) *LFO {
	l := &LFO{
		sampleRate: sampleRate,
		frequency:  1.0,
		waveform:   WaveformSine,
		rand:       rand.New(rand.NewSource(rand.Int63())),
	}
	l.held = l.draw()
	return l
}

// SetFrequency sets the rate in Hz, clamped to a usable LFO range.
func (l *LFO) SetFrequency(hz float64) {
	l.frequency = math.Max(0.01, math.Min(20.0, hz))
}

// SetWaveform selects the waveform shape.
func (l *LFO) SetWaveform(w Waveform) {
	l.waveform = w
}

// Frequency returns the current rate in Hz.
func (l *LFO) Frequency() float64 { return l.frequency }

// Phase returns the current phase in [0, 1).
func (l *LFO) Phase() float64 { return l.phase }

// Value returns the output for the current phase without advancing time.
// Pure for the deterministic waveforms; the random waveforms report the
// held value.
func (l *LFO) Value() float32 {
	switch l.waveform {
	case WaveformSine:
		return float32(math.Sin(l.phase * 2 * math.Pi))

	case WaveformTriangle:
		// -1 → 1 → -1 across one cycle, zero crossings at 0 and 0.5.
		switch {
		case l.phase < 0.25:
			return float32(l.phase * 4)
		case l.phase < 0.75:
			return float32(2 - l.phase*4)
		default:
			return float32(l.phase*4 - 4)
		}

	case WaveformSquare:
		if l.phase < 0.5 {
			return 1
		}
		return -1

	case WaveformNoise, WaveformSampleHold:
		return l.held

	default:
		return 0
	}
}

// Advance moves the oscillator forward by the given number of frames.
// The sample-and-hold waveform redraws its held value only when the phase
// wraps around; the noise waveform redraws on every advance.
func (l *LFO) Advance(frames int) {
	if frames <= 0 {
		return
	}

	last := l.phase
	l.phase += l.frequency / l.sampleRate * float64(frames)
	wrapped := l.phase >= 1.0
	if wrapped {
		l.phase -= math.Floor(l.phase)
	}

	switch l.waveform {
	case WaveformNoise:
		l.held = l.draw()
	case WaveformSampleHold:
		if wrapped || l.phase < last {
			l.held = l.draw()
		}
	}
}

// Reset returns the phase to zero and redraws the held random value.
func (l *LFO) Reset() {
	l.phase = 0
	l.held = l.draw()
}

func (l *LFO) draw() float32 {
	return float32(l.rand.Float64()*2 - 1)
}
