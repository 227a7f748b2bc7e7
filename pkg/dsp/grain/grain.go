// Package grain implements the granular playback core: short enveloped
// snippets of sample playback, scheduled out of a fixed pool.
package grain

import (
	"math"

	"github.com/palacesynth/palace/pkg/dsp/pan"
	"github.com/palacesynth/palace/pkg/dsp/sample"
	"github.com/palacesynth/palace/pkg/dsp/wear"
)

// Params describes one grain at trigger time.
type Params struct {
	StartFrame      int     // offset into the source buffer
	Duration        int     // grain length in output frames
	PitchRatio      float32 // read-cursor advance per frame (1.0 = original pitch)
	Pan             float32 // -1 (left) to 1 (right)
	Amplitude       float32 // grain gain, linear
	AttackFraction  float32 // attack portion of the envelope (0-1)
	ReleaseFraction float32 // release portion of the envelope (0-1)
}

// Grain is a single playback unit. Grains are value types living
// permanently in the scheduler's fixed array; they are started and stopped
// in place, never allocated.
type Grain struct {
	params    Params
	leftGain  float32
	rightGain float32

	cursor  float64 // read offset within the grain, advanced by PitchRatio
	elapsed int     // output frames rendered so far
	active  bool
}

// Start arms the grain with new parameters. Pan gains are computed once
// here; they are constant for the grain's lifetime.
func (g *Grain) Start(p Params) {
	g.params = p
	g.leftGain, g.rightGain = pan.Gains(p.Pan)
	g.cursor = 0
	g.elapsed = 0
	g.active = true
}

// Stop deactivates the grain immediately.
func (g *Grain) Stop() {
	g.active = false
}

// IsActive reports whether the grain is currently sounding.
func (g *Grain) IsActive() bool {
	return g.active
}

// Progress returns how far through its duration the grain is, in [0, 1].
func (g *Grain) Progress() float32 {
	if g.params.Duration <= 0 {
		return 1
	}
	return float32(g.elapsed) / float32(g.params.Duration)
}

// ReadPosition returns the current absolute read position in the source.
func (g *Grain) ReadPosition() float64 {
	return float64(g.params.StartFrame) + g.cursor
}

// envelope returns the gain for the current progress: a sine-shaped attack,
// a cosine-shaped release and unity sustain in between. Zero attack or
// release fractions degenerate to a constant-1 edge.
func (g *Grain) envelope() float32 {
	progress := g.Progress()

	if progress < g.params.AttackFraction {
		if g.params.AttackFraction <= 0 {
			return 1
		}
		return float32(math.Sin(float64(progress/g.params.AttackFraction) * math.Pi / 2))
	}

	releaseStart := 1 - g.params.ReleaseFraction
	if progress > releaseStart {
		if g.params.ReleaseFraction <= 0 {
			return 1
		}
		return float32(math.Cos(float64((progress-releaseStart)/g.params.ReleaseFraction) * math.Pi / 2))
	}

	return 1
}

// Process renders the grain and accumulates it into the stereo outputs.
// damage, when non-nil, degrades each sample by damageAmount before the
// envelope is applied. Returns false once the grain has expired.
func (g *Grain) Process(source *sample.Buffer, damage *wear.Damage, damageAmount float32, left, right []float32) bool {
	if !g.active || source == nil {
		return false
	}

	n := len(left)
	if len(right) < n {
		n = len(right)
	}

	applyDamage := damage != nil && damageAmount > 0

	for i := 0; i < n && g.active; i++ {
		if g.elapsed >= g.params.Duration {
			g.active = false
			break
		}

		s := source.ReadMono(float64(g.params.StartFrame) + g.cursor)

		if applyDamage {
			s = damage.Process(s, damageAmount)
		}

		s *= g.envelope() * g.params.Amplitude

		left[i] += s * g.leftGain
		right[i] += s * g.rightGain

		g.cursor += float64(g.params.PitchRatio)
		g.elapsed++
	}

	return g.active
}
