// Package utility provides small DSP helpers shared across the engine.
package utility

import (
	"math"
	"math/rand"
)

// Noise generates uniform white noise in [-1, 1].
// Each instance owns its random source so concurrent processors never
// contend on a shared generator.
type Noise struct {
	rand *rand.Rand
}

// NewNoise creates a white noise generator with the given seed.
func NewNoise(seed int64) *Noise {
	return &Noise{rand: rand.New(rand.NewSource(seed))}
}

// Next returns the next noise sample in [-1, 1].
func (n *Noise) Next() float32 {
	return float32(n.rand.Float64()*2 - 1)
}

// GenerateAdd adds scaled noise to an existing buffer.
func (n *Noise) GenerateAdd(buffer []float32, gain float32) {
	for i := range buffer {
		buffer[i] += n.Next() * gain
	}
}

// GaussianNoise generates normally distributed noise via the Box-Muller
// transform. Tape hiss is closer to Gaussian than to uniform noise.
type GaussianNoise struct {
	rand     *rand.Rand
	hasSpare bool
	spare    float32
}

// NewGaussianNoise creates a Gaussian noise generator with the given seed.
func NewGaussianNoise(seed int64) *GaussianNoise {
	return &GaussianNoise{rand: rand.New(rand.NewSource(seed))}
}

// Next returns the next Gaussian sample with unit variance.
func (g *GaussianNoise) Next() float32 {
	if g.hasSpare {
		g.hasSpare = false
		return g.spare
	}

	u1 := g.rand.Float64()
	u2 := g.rand.Float64()
	if u1 < 1e-12 {
		u1 = 1e-12
	}

	mag := float32(math.Sqrt(-2.0 * math.Log(u1)))
	g.spare = mag * float32(math.Sin(2*math.Pi*u2))
	g.hasSpare = true
	return mag * float32(math.Cos(2*math.Pi*u2))
}
