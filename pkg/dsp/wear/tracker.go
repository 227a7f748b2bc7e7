// Package wear models irreversible tape degradation: playback wears down
// the regions of the sample it touches, and worn regions are rendered
// through a damage processor.
package wear

import (
	"math"
	"sync/atomic"
)

// NumRegions is the fixed resolution of the wear map. Each region covers
// 1/512 of the loaded sample.
const NumRegions = 512

const (
	minMaxLife = 25.0
	maxMaxLife = 1000000.0
)

// Tracker keeps one life counter per sample region. Counters live in
// [0, 1] with 1 meaning pristine; they only move down during playback,
// except for the explicit reset back to 1.
//
// Every counter is an independent atomic: grains decrement from the
// real-time path while the control context reads the map, with no lock
// anywhere.
type Tracker struct {
	regions     [NumRegions]atomic.Uint32 // float32 bits
	totalFrames atomic.Int64
	maxLife     atomic.Uint32 // float32 bits
	enabled     atomic.Bool
}

// NewTracker creates a tracker with all regions pristine.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.maxLife.Store(math.Float32bits(1000))
	t.Reset()
	return t
}

// Prepare tells the tracker how many frames the loaded sample spans, so
// frame positions can be mapped to regions. Safe to call from the control
// context at any time.
func (t *Tracker) Prepare(totalFrames int) {
	t.totalFrames.Store(int64(totalFrames))
}

// SetMaxLife sets how many touches wear a region from pristine to dead.
func (t *Tracker) SetMaxLife(hits float32) {
	if hits < minMaxLife {
		hits = minMaxLife
	} else if hits > maxMaxLife {
		hits = maxMaxLife
	}
	t.maxLife.Store(math.Float32bits(hits))
}

// SetEnabled switches wear accumulation on or off. Disabled, Touch is a
// no-op and DamageAt always reports 0.
func (t *Tracker) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Enabled reports whether wear accumulation is active.
func (t *Tracker) Enabled() bool {
	return t.enabled.Load()
}

// Touch wears down the region containing the given frame position by
// 1/maxLife, floored at zero. Called from the real-time path.
func (t *Tracker) Touch(framePosition int) {
	if !t.enabled.Load() {
		return
	}
	region := t.regionFor(framePosition)
	if region < 0 {
		return
	}

	decrement := 1.0 / math.Float32frombits(t.maxLife.Load())

	for {
		old := t.regions[region].Load()
		life := math.Float32frombits(old)
		next := life - decrement
		if next < 0 {
			next = 0
		}
		if t.regions[region].CompareAndSwap(old, math.Float32bits(next)) {
			return
		}
	}
}

// DamageAt returns the accumulated damage (1 - life) for the region
// containing the given frame position. 0 when disabled or unprepared.
func (t *Tracker) DamageAt(framePosition int) float32 {
	if !t.enabled.Load() {
		return 0
	}
	region := t.regionFor(framePosition)
	if region < 0 {
		return 0
	}
	return 1 - math.Float32frombits(t.regions[region].Load())
}

// Reset restores every region to pristine. Idempotent.
func (t *Tracker) Reset() {
	pristine := math.Float32bits(1)
	for i := range t.regions {
		t.regions[i].Store(pristine)
	}
}

// RegionLife returns the remaining life of one region.
func (t *Tracker) RegionLife(region int) float32 {
	if region < 0 || region >= NumRegions {
		return 1
	}
	return math.Float32frombits(t.regions[region].Load())
}

// SetRegionLife restores one region's life, clamped to [0, 1].
// Used when reloading persisted state.
func (t *Tracker) SetRegionLife(region int, life float32) {
	if region < 0 || region >= NumRegions {
		return
	}
	if life < 0 {
		life = 0
	} else if life > 1 {
		life = 1
	}
	t.regions[region].Store(math.Float32bits(life))
}

// LifeMap fills dst with the current life of every region and returns the
// number of entries written. Control context; dst should hold NumRegions
// values.
func (t *Tracker) LifeMap(dst []float32) int {
	n := NumRegions
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(t.regions[i].Load())
	}
	return n
}

func (t *Tracker) regionFor(framePosition int) int {
	total := t.totalFrames.Load()
	if total <= 0 {
		return -1
	}
	region := int(int64(framePosition) * NumRegions / total)
	if region < 0 {
		region = 0
	} else if region >= NumRegions {
		region = NumRegions - 1
	}
	return region
}
