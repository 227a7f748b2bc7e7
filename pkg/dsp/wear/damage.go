package wear

import (
	"math"

	"github.com/palacesynth/palace/pkg/dsp/utility"
)

const (
	// Cutoff sweep of the high-frequency loss filter.
	maxCutoff = 20000.0 // Hz, pristine
	minCutoff = 500.0   // Hz, fully worn

	damageFloor = 0.001
	noiseScale  = 0.0005
)

// Damage degrades a signal according to a wear amount: high-frequency
// loss, tape noise and saturation, all deepening as damage rises.
//
// Each grain slot owns one Damage instance, so filter state never leaks
// between grains. The processor itself is stateless with respect to the
// tracker; it only consumes the damage scalar handed to Process.
type Damage struct {
	sampleRate  float64
	filterState float32
	noise       *utility.GaussianNoise
}

// NewDamage creates a damage processor. Each instance should get its own
// seed so parallel grains don't hiss in unison.
func NewDamage(seed int64) *Damage {
	return &Damage{
		sampleRate: 44100,
		noise:      utility.NewGaussianNoise(seed),
	}
}

// Prepare sets the sample rate and clears the filter state.
func (d *Damage) Prepare(sampleRate float64) {
	d.sampleRate = sampleRate
	d.Reset()
}

// Reset clears the filter state.
func (d *Damage) Reset() {
	d.filterState = 0
}

// Process degrades one sample. damage is in [0, 1]; at 0 the input passes
// through untouched.
func (d *Damage) Process(input, damage float32) float32 {
	if damage < damageFloor {
		return input
	}

	// High-frequency loss: one-pole low-pass whose cutoff slides from
	// 20 kHz down to 500 Hz as damage rises.
	cutoff := maxCutoff - float64(damage)*(maxCutoff-minCutoff)
	coeff := float32(math.Exp(-2 * math.Pi * cutoff / d.sampleRate))
	d.filterState = coeff*d.filterState + (1-coeff)*input

	// Tape noise, crossfaded in with the filtered signal.
	noiseAmount := damage * noiseScale
	withNoise := d.filterState*(1-noiseAmount) + d.noise.Next()*noiseAmount

	// Saturation: drive rises from 1x to 5x with damage, output
	// renormalized by the same drive.
	drive := 1 + damage*4
	return float32(math.Tanh(float64(withNoise*drive))) / drive
}
