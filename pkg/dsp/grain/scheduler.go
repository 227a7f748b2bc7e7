package grain

import (
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/palacesynth/palace/pkg/dsp/sample"
	"github.com/palacesynth/palace/pkg/dsp/wear"
)

// MaxGrains is the fixed pool capacity per scheduler. A trigger that finds
// no free slot is dropped, never queued.
const MaxGrains = 128

const minGrainFrames = 64

// SchedulerParams are the per-block trigger parameters. The owning voice
// writes them between blocks; values are assumed pre-clamped by the
// parameter layer.
type SchedulerParams struct {
	Position        float32 // normalized 0-1 base position in the sample
	GrainSizeMs     float32
	Density         float32 // target grain triggers per second
	PitchSemitones  float32
	Spray           float32 // max random position offset, fraction of the sample
	PanSpread       float32 // max random pan offset
	AttackFraction  float32
	ReleaseFraction float32
	CropStart       float32 // 0-1, grain reads never leave [CropStart, CropEnd]
	CropEnd         float32
	SampleGainDB    float32
}

// Info describes one active grain for visualization.
type Info struct {
	Position float32 // absolute start frame in the source
	Progress float32 // 0-1 through the grain
	Pan      float32
	Size     int // duration in frames
}

// Scheduler owns a fixed grain pool, triggers new grains from a
// sample-accurate clock and mixes all active grains into stereo output.
//
// One wear.Damage processor is bound to each pool slot so no filter state
// is ever shared between grains. The tracker is shared engine-wide and
// passed in at construction.
type Scheduler struct {
	grains  [MaxGrains]Grain
	damage  [MaxGrains]*wear.Damage
	params  SchedulerParams
	tracker *wear.Tracker

	sampleRate     float64
	clock          float64 // frames since the last trigger
	disintegration float32

	rng *rand.Rand

	// Snapshot for the UI thread, guarded by a generation counter. The
	// render path bumps the counter to odd before writing and back to even
	// after; a reader that observes an odd or changed generation discards
	// its copy and retries, so it never returns a torn snapshot.
	snapshot    [MaxGrains]Info
	snapshotLen int
	snapshotGen atomic.Uint32
	activeCount atomic.Int32
}

// NewScheduler creates a scheduler wired to the shared wear tracker.
// seed feeds the trigger randomness and the per-slot damage processors.
func NewScheduler(tracker *wear.Tracker, seed int64) *Scheduler {
	s := &Scheduler{
		tracker:    tracker,
		sampleRate: 44100,
		rng:        rand.New(rand.NewSource(seed)),
	}
	for i := range s.damage {
		s.damage[i] = wear.NewDamage(seed + int64(i) + 1)
	}
	s.params = SchedulerParams{
		GrainSizeMs:     100,
		Density:         10,
		PanSpread:       0.5,
		AttackFraction:  0.25,
		ReleaseFraction: 0.25,
		CropEnd:         1,
	}
	return s
}

// Prepare sets the sample rate and resets all state. Control context only.
func (s *Scheduler) Prepare(sampleRate float64) {
	s.sampleRate = sampleRate
	for _, d := range s.damage {
		d.Prepare(sampleRate)
	}
	s.Reset()
}

// Reset stops every grain and zeroes the trigger clock.
func (s *Scheduler) Reset() {
	for i := range s.grains {
		s.grains[i].Stop()
	}
	s.clock = 0
	s.activeCount.Store(0)
}

// SetParams replaces the trigger parameters for subsequent blocks.
func (s *Scheduler) SetParams(p SchedulerParams) {
	s.params = p
}

// SetDisintegrationAmount scales how strongly accumulated wear degrades
// grain playback (0 = bypass).
func (s *Scheduler) SetDisintegrationAmount(amount float32) {
	if amount < 0 {
		amount = 0
	} else if amount > 1 {
		amount = 1
	}
	s.disintegration = amount
}

// ActiveCount returns the number of sounding grains. Any thread.
func (s *Scheduler) ActiveCount() int {
	return int(s.activeCount.Load())
}

// Snapshot copies the most recent per-grain display info into dst and
// returns the number of entries written. Any thread; retries while the
// render path is mid-publish.
func (s *Scheduler) Snapshot(dst []Info) int {
	for {
		gen := s.snapshotGen.Load()
		if gen&1 != 0 {
			continue
		}
		// The length may be mid-update when the copy races a publish;
		// clamp before use, then let the generation check reject the copy.
		n := s.snapshotLen
		if n < 0 {
			n = 0
		} else if n > MaxGrains {
			n = MaxGrains
		}
		if len(dst) < n {
			n = len(dst)
		}
		copy(dst, s.snapshot[:n])
		if s.snapshotGen.Load() == gen {
			return n
		}
	}
}

// Process advances the trigger clock across the block, fires grains as the
// clock elapses, renders every active grain into the outputs and updates
// the wear map. noteRatio is the extra pitch factor from the played note.
// Real-time safe: no allocation, no locks.
func (s *Scheduler) Process(source *sample.Buffer, left, right []float32, noteRatio float32) {
	if source == nil {
		s.publishSnapshot()
		return
	}

	frames := len(left)
	if len(right) < frames {
		frames = len(right)
	}

	density := s.params.Density
	if density < 0.1 {
		density = 0.1
	}
	framesPerGrain := s.sampleRate / float64(density)

	// Accumulate one unit per frame; keep the remainder after firing so
	// long-run trigger rate matches density exactly even when
	// sampleRate/density is not an integer.
	for i := 0; i < frames; i++ {
		s.clock++
		if s.clock >= framesPerGrain {
			s.trigger(source, noteRatio)
			s.clock -= framesPerGrain
		}
	}

	for i := range s.grains {
		g := &s.grains[i]
		if !g.IsActive() {
			continue
		}

		readPos := int(g.ReadPosition())
		s.tracker.Touch(readPos)

		var damageAmount float32
		if s.disintegration > 0 {
			damageAmount = s.tracker.DamageAt(readPos) * s.disintegration
		}

		g.Process(source, s.damage[i], damageAmount, left[:frames], right[:frames])
	}

	s.publishSnapshot()
}

// trigger starts one grain, or drops the request silently when the pool
// is exhausted.
func (s *Scheduler) trigger(source *sample.Buffer, noteRatio float32) {
	slot := s.findFreeSlot()
	if slot < 0 {
		return
	}

	sourceFrames := source.Frames()
	if sourceFrames == 0 {
		return
	}

	cropStart := s.params.CropStart
	cropEnd := s.params.CropEnd
	if cropEnd < cropStart {
		cropStart, cropEnd = cropEnd, cropStart
	}

	position := s.params.Position
	if s.params.Spray > 0 {
		position += s.uniform() * s.params.Spray
	}
	if position < cropStart {
		position = cropStart
	} else if position > cropEnd {
		position = cropEnd
	}

	var p Params
	p.StartFrame = int(float64(position) * float64(sourceFrames-1))

	p.Duration = int(float64(s.params.GrainSizeMs) * 0.001 * s.sampleRate)
	if p.Duration < minGrainFrames {
		p.Duration = minGrainFrames
	}

	p.PitchRatio = float32(math.Pow(2, float64(s.params.PitchSemitones)/12)) * noteRatio

	// Clamp the duration so the pitch-scaled read window cannot cross the
	// crop end.
	if p.PitchRatio > 0 {
		cropEndFrame := int(float64(cropEnd) * float64(sourceFrames-1))
		maxRead := int(float64(cropEndFrame-p.StartFrame) / float64(p.PitchRatio))
		if maxRead < minGrainFrames {
			maxRead = minGrainFrames
		}
		if p.Duration > maxRead {
			p.Duration = maxRead
		}
	}

	if s.params.PanSpread > 0 {
		p.Pan = s.uniform() * s.params.PanSpread
	}

	p.Amplitude = dbToGain(s.params.SampleGainDB)
	p.AttackFraction = s.params.AttackFraction
	p.ReleaseFraction = s.params.ReleaseFraction

	s.grains[slot].Start(p)
}

func (s *Scheduler) findFreeSlot() int {
	for i := range s.grains {
		if !s.grains[i].IsActive() {
			return i
		}
	}
	return -1
}

// uniform returns a random value in [-1, 1].
func (s *Scheduler) uniform() float32 {
	return float32(s.rng.Float64()*2 - 1)
}

func (s *Scheduler) publishSnapshot() {
	s.snapshotGen.Add(1) // odd: write in progress

	n := 0
	for i := range s.grains {
		g := &s.grains[i]
		if !g.IsActive() {
			continue
		}
		s.snapshot[n] = Info{
			Position: float32(g.params.StartFrame),
			Progress: g.Progress(),
			Pan:      g.params.Pan,
			Size:     g.params.Duration,
		}
		n++
	}
	s.snapshotLen = n

	s.snapshotGen.Add(1) // even: stable
	s.activeCount.Store(int32(n))
}

func dbToGain(db float32) float32 {
	return float32(math.Pow(10, float64(db)/20))
}
