package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/palacesynth/palace/pkg/dsp/grain"
	"github.com/palacesynth/palace/pkg/dsp/modulation"
	"github.com/palacesynth/palace/pkg/dsp/reverb"
	"github.com/palacesynth/palace/pkg/dsp/sample"
	"github.com/palacesynth/palace/pkg/dsp/tapedelay"
	"github.com/palacesynth/palace/pkg/dsp/wear"
	"github.com/palacesynth/palace/pkg/midi"
	"github.com/palacesynth/palace/pkg/param"
)

// ErrNotPrepared is returned when RenderBlock runs before Prepare. Correct
// host integration never triggers it.
var ErrNotPrepared = errors.New("engine: render before prepare")

// Parameter IDs. Stable across versions; persisted state refers to them.
const (
	ParamPosition uint32 = iota + 1
	ParamGrainSize
	ParamDensity
	ParamPitch
	ParamSpray
	ParamPanSpread
	ParamGrainAttack
	ParamGrainRelease
	ParamSampleGain
	ParamCropStart
	ParamCropEnd
	ParamVoiceAttack
	ParamVoiceDecay
	ParamVoiceSustain
	ParamVoiceRelease
	ParamLFORate
	ParamLFOAmount
	ParamDelayTime
	ParamDelayFeedback
	ParamDelayFlutter
	ParamDelayHiss
	ParamDisintegration
	ParamWearMaxLife
	ParamFeedback
	ParamOutputGain
	ParamReverb
)

// feedbackCap scales the block-feedback control so a full setting still
// converges.
const feedbackCap = 0.85

// pitchBendSemitones is the full-scale pitch-wheel range.
const pitchBendSemitones = 2

// Engine is the top-level instrument: the sole owner of the wear tracker,
// the voice set, the modulation LFO, the spring reverb and the tape delay.
// RenderBlock is the only real-time entry point; everything else runs in
// the control context.
type Engine struct {
	registry *param.Registry
	source   *sample.Source
	tracker  *wear.Tracker
	voices   *VoiceManager
	spring   *reverb.Reverb
	delay    *tapedelay.TapeDelay
	lfo      *modulation.LFO

	position       *param.Parameter
	grainSize      *param.Parameter
	density        *param.Parameter
	pitch          *param.Parameter
	spray          *param.Parameter
	panSpread      *param.Parameter
	grainAttack    *param.Parameter
	grainRelease   *param.Parameter
	sampleGain     *param.Parameter
	cropStart      *param.Parameter
	cropEnd        *param.Parameter
	voiceAttack    *param.Parameter
	voiceDecay     *param.Parameter
	voiceSustain   *param.Parameter
	voiceRelease   *param.Parameter
	lfoRate        *param.Parameter
	lfoAmount      *param.Parameter
	delayTime      *param.Parameter
	delayFeedback  *param.Parameter
	delayFlutter   *param.Parameter
	delayHiss      *param.Parameter
	disintegration *param.Parameter
	wearMaxLife    *param.Parameter
	feedback       *param.Parameter
	reverbMix      *param.Parameter
	outputGain     *param.Parameter

	lfoWaveform atomic.Int32
	lfoPhase    atomic.Uint64 // float64 bits, updated once per block
	lfoValue    atomic.Uint64 // float64 bits
	pitchBend   atomic.Uint64 // float64 bits, semitones

	prevL []float32
	prevR []float32

	sampleRate     float64
	maxBlockFrames int
	prepared       atomic.Bool

	mu         sync.Mutex // control-only fields below
	samplePath string
}

// New creates an engine with default parameters. Prepare must run before
// rendering.
func New() *Engine {
	e := &Engine{
		registry: param.NewRegistry(),
		source:   sample.NewSource(),
		tracker:  wear.NewTracker(),
		spring:   reverb.New(),
		delay:    tapedelay.New(),
	}
	e.voices = NewVoiceManager(e.tracker, 1)

	e.position = param.New(ParamPosition, "Position").Range(0, 1).Default(0).ModRange(0.5).Build()
	e.grainSize = param.New(ParamGrainSize, "Grain Size").Range(1, 2000).Default(100).Unit("ms").ModRange(500).Build()
	e.density = param.New(ParamDensity, "Density").Range(0.1, 200).Default(10).Unit("grains/s").ModRange(50).Build()
	e.pitch = param.New(ParamPitch, "Pitch").Range(-24, 24).Default(0).Unit("st").ModRange(12).Build()
	e.spray = param.New(ParamSpray, "Spray").Range(0, 1).Default(0).ModRange(0.5).Build()
	e.panSpread = param.New(ParamPanSpread, "Pan Spread").Range(0, 1).Default(0.5).ModRange(0.5).Build()
	e.grainAttack = param.New(ParamGrainAttack, "Grain Attack").Range(0, 1).Default(0.25).ModRange(0.25).Build()
	e.grainRelease = param.New(ParamGrainRelease, "Grain Release").Range(0, 1).Default(0.25).ModRange(0.25).Build()
	e.sampleGain = param.New(ParamSampleGain, "Sample Gain").Range(-24, 24).Default(0).Unit("dB").Build()
	e.cropStart = param.New(ParamCropStart, "Crop Start").Range(0, 1).Default(0).Build()
	e.cropEnd = param.New(ParamCropEnd, "Crop End").Range(0, 1).Default(1).Build()
	e.voiceAttack = param.New(ParamVoiceAttack, "Attack").Range(0, 5000).Default(10).Unit("ms").ModRange(500).Build()
	e.voiceDecay = param.New(ParamVoiceDecay, "Decay").Range(0, 5000).Default(100).Unit("ms").ModRange(500).Build()
	e.voiceSustain = param.New(ParamVoiceSustain, "Sustain").Range(0, 1).Default(0.8).ModRange(0.25).Build()
	e.voiceRelease = param.New(ParamVoiceRelease, "Release").Range(0, 10000).Default(200).Unit("ms").ModRange(1000).Build()
	e.lfoRate = param.New(ParamLFORate, "LFO Rate").Range(0.01, 20).Default(1).Unit("Hz").Build()
	e.lfoAmount = param.New(ParamLFOAmount, "LFO Amount").Range(0, 1).Default(0).Build()
	e.delayTime = param.New(ParamDelayTime, "Delay Time").Range(1, 2000).Default(300).Unit("ms").Build()
	e.delayFeedback = param.New(ParamDelayFeedback, "Delay Feedback").Range(0, 1).Default(0.3).Build()
	e.delayFlutter = param.New(ParamDelayFlutter, "Flutter").Range(0, 1).Default(0).Build()
	e.delayHiss = param.New(ParamDelayHiss, "Hiss").Range(0, 1).Default(0).Build()
	e.disintegration = param.New(ParamDisintegration, "Disintegration").Range(0, 1).Default(0).Build()
	e.wearMaxLife = param.New(ParamWearMaxLife, "Wear Max Life").Range(25, 1000000).Default(1000).Unit("hits").Build()
	e.feedback = param.New(ParamFeedback, "Feedback").Range(0, 1).Default(0).Build()
	e.reverbMix = param.New(ParamReverb, "Reverb").Range(0, 1).Default(0).Build()
	e.outputGain = param.New(ParamOutputGain, "Output Gain").Range(-60, 6).Default(0).Unit("dB").Build()

	e.registry.Add(
		e.position, e.grainSize, e.density, e.pitch, e.spray, e.panSpread,
		e.grainAttack, e.grainRelease, e.sampleGain, e.cropStart, e.cropEnd,
		e.voiceAttack, e.voiceDecay, e.voiceSustain, e.voiceRelease,
		e.lfoRate, e.lfoAmount,
		e.delayTime, e.delayFeedback, e.delayFlutter, e.delayHiss,
		e.disintegration, e.wearMaxLife, e.feedback, e.reverbMix,
		e.outputGain,
	)

	return e
}

// Params exposes the parameter registry for generic UI binding.
func (e *Engine) Params() *param.Registry {
	return e.registry
}

// Prepare allocates all fixed buffers for the sample rate and maximum
// block size. Required before the first RenderBlock and again after either
// value changes. Control context only.
func (e *Engine) Prepare(sampleRate float64, maxBlockFrames int) error {
	if sampleRate <= 0 || maxBlockFrames <= 0 {
		return fmt.Errorf("engine: invalid prepare arguments %f/%d", sampleRate, maxBlockFrames)
	}

	e.prepared.Store(false)

	e.sampleRate = sampleRate
	e.maxBlockFrames = maxBlockFrames

	e.voices.Prepare(sampleRate, maxBlockFrames)
	e.spring.Prepare(sampleRate)
	e.delay.Prepare(sampleRate)
	e.lfo = modulation.New(sampleRate)

	e.prevL = make([]float32, maxBlockFrames)
	e.prevR = make([]float32, maxBlockFrames)

	e.prepared.Store(true)
	return nil
}

// LoadSample publishes a decoded sample buffer to the render path and keys
// the wear map to its length. A nil buffer reports a decode failure and
// leaves the current sample playing. Control context only.
func (e *Engine) LoadSample(buf *sample.Buffer, path string) error {
	if err := e.source.Load(buf); err != nil {
		return err
	}
	e.tracker.Prepare(buf.Frames())

	e.mu.Lock()
	e.samplePath = path
	e.mu.Unlock()
	return nil
}

// SamplePath returns the path of the loaded sample, if any.
func (e *Engine) SamplePath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.samplePath
}

// RenderBlock renders frames of stereo audio into the output slices,
// consuming the block's note events in offset order. The sole real-time
// entry point: no allocation, no locks, no logging.
func (e *Engine) RenderBlock(outLeft, outRight []float32, frames int, events []midi.Event) error {
	if !e.prepared.Load() {
		return ErrNotPrepared
	}
	if frames > e.maxBlockFrames || frames > len(outLeft) || frames > len(outRight) {
		return fmt.Errorf("engine: block of %d frames exceeds prepared maximum %d", frames, e.maxBlockFrames)
	}

	for i := 0; i < frames; i++ {
		outLeft[i] = 0
		outRight[i] = 0
	}

	for _, ev := range events {
		e.dispatchEvent(ev)
	}

	// One LFO sample represents the whole block: advance to the midpoint,
	// read once, advance the rest.
	e.lfo.SetFrequency(e.lfoRate.Value())
	e.lfo.SetWaveform(modulation.Waveform(e.lfoWaveform.Load()))
	half := frames / 2
	e.lfo.Advance(half)
	lfoSample := float64(e.lfo.Value())
	e.lfoPhase.Store(math.Float64bits(e.lfo.Phase()))
	e.lfoValue.Store(math.Float64bits(lfoSample))
	e.lfo.Advance(frames - half)

	amount := e.lfoAmount.Value()

	bend := math.Float64frombits(e.pitchBend.Load())

	sched := grain.SchedulerParams{
		Position:        float32(e.position.Modulated(lfoSample, amount)),
		GrainSizeMs:     float32(e.grainSize.Modulated(lfoSample, amount)),
		Density:         float32(e.density.Modulated(lfoSample, amount)),
		PitchSemitones:  float32(e.pitch.Modulated(lfoSample, amount) + bend),
		Spray:           float32(e.spray.Modulated(lfoSample, amount)),
		PanSpread:       float32(e.panSpread.Modulated(lfoSample, amount)),
		AttackFraction:  float32(e.grainAttack.Modulated(lfoSample, amount)),
		ReleaseFraction: float32(e.grainRelease.Modulated(lfoSample, amount)),
		CropStart:       float32(e.cropStart.Value()),
		CropEnd:         float32(e.cropEnd.Value()),
		SampleGainDB:    float32(e.sampleGain.Value()),
	}
	env := EnvelopeTimes{
		AttackMs:  e.voiceAttack.Modulated(lfoSample, amount),
		DecayMs:   e.voiceDecay.Modulated(lfoSample, amount),
		Sustain:   e.voiceSustain.Modulated(lfoSample, amount),
		ReleaseMs: e.voiceRelease.Modulated(lfoSample, amount),
	}

	disAmount := float32(e.disintegration.Value())
	e.tracker.SetMaxLife(float32(e.wearMaxLife.Value()))
	e.tracker.SetEnabled(disAmount > 0)

	source := e.source.Buffer()
	for _, v := range e.voices.Voices() {
		v.Scheduler().SetParams(sched)
		v.Scheduler().SetDisintegrationAmount(disAmount)
		v.SetEnvelopeTimes(env)
		v.Process(source, outLeft[:frames], outRight[:frames], frames)
	}

	// Block feedback: fold the previous block's mix back in before the
	// post-effects, capped so a full setting still decays.
	fb := float32(e.feedback.Value()) * feedbackCap
	if fb > 0 {
		for i := 0; i < frames; i++ {
			outLeft[i] += e.prevL[i] * fb
			outRight[i] += e.prevR[i] * fb
		}
	}
	copy(e.prevL[:frames], outLeft[:frames])
	copy(e.prevR[:frames], outRight[:frames])

	e.spring.SetMix(float32(e.reverbMix.Value()))
	e.spring.Process(outLeft[:frames], outRight[:frames])

	e.delay.SetDelayTime(float32(e.delayTime.Value()))
	e.delay.SetFeedback(float32(e.delayFeedback.Value()))
	e.delay.SetFlutter(float32(e.delayFlutter.Value()))
	e.delay.SetHiss(float32(e.delayHiss.Value()))
	e.delay.Process(outLeft[:frames], outRight[:frames])

	gain := float32(math.Pow(10, e.outputGain.Value()/20))
	for i := 0; i < frames; i++ {
		outLeft[i] *= gain
		outRight[i] *= gain
	}

	return nil
}

func (e *Engine) dispatchEvent(ev midi.Event) {
	switch m := ev.(type) {
	case midi.NoteOnEvent:
		if m.Velocity == 0 {
			e.voices.NoteOff(m.NoteNumber)
			return
		}
		e.voices.NoteOn(m.NoteNumber, m.Velocity)
	case midi.NoteOffEvent:
		e.voices.NoteOff(m.NoteNumber)
	case midi.ControlChangeEvent:
		switch m.Controller {
		case midi.CCAllNotesOff:
			e.voices.AllNotesOff()
		case midi.CCAllSoundOff:
			e.voices.AllSoundOff()
		}
	case midi.PitchBendEvent:
		e.pitchBend.Store(math.Float64bits(m.NormalizedValue() * pitchBendSemitones))
	}
}

// PitchBend returns the current pitch-wheel offset in semitones.
func (e *Engine) PitchBend() float64 {
	return math.Float64frombits(e.pitchBend.Load())
}

// ResetDisintegration restores the wear map to pristine. Idempotent.
func (e *Engine) ResetDisintegration() {
	e.tracker.Reset()
}

// ActiveGrainCount sums the sounding grains across all voices. Any thread.
func (e *Engine) ActiveGrainCount() int {
	n := 0
	for _, v := range e.voices.Voices() {
		n += v.Scheduler().ActiveCount()
	}
	return n
}

// GrainSnapshot fills dst with display info for every sounding grain and
// returns the count. Any thread.
func (e *Engine) GrainSnapshot(dst []grain.Info) int {
	n := 0
	for _, v := range e.voices.Voices() {
		if n >= len(dst) {
			break
		}
		n += v.Scheduler().Snapshot(dst[n:])
	}
	return n
}

// LFOPhase returns the LFO phase sampled at the last block's midpoint.
func (e *Engine) LFOPhase() float64 {
	return math.Float64frombits(e.lfoPhase.Load())
}

// LFOValue returns the LFO value sampled at the last block's midpoint.
func (e *Engine) LFOValue() float64 {
	return math.Float64frombits(e.lfoValue.Load())
}

// WearMap copies the per-region life values into dst and returns the
// number of regions. Any thread.
func (e *Engine) WearMap(dst []float32) int {
	return e.tracker.LifeMap(dst)
}

// RoutedParams returns the IDs of every parameter currently routed through
// the LFO, in registration order.
func (e *Engine) RoutedParams() []uint32 {
	var ids []uint32
	for _, p := range e.registry.All() {
		if p.IsModulated() {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// SetModulated routes or unroutes the LFO to the parameter with the given
// ID. Unknown IDs are ignored.
func (e *Engine) SetModulated(id uint32, on bool) {
	if p := e.registry.Get(id); p != nil {
		p.SetModulated(on)
	}
}

// SetLFOWaveform selects the modulation waveform.
func (e *Engine) SetLFOWaveform(w modulation.Waveform) {
	e.lfoWaveform.Store(int32(w))
}

// LFOWaveform returns the selected modulation waveform.
func (e *Engine) LFOWaveform() modulation.Waveform {
	return modulation.Waveform(e.lfoWaveform.Load())
}

// Setters for every engine tunable. All clamp through the parameter layer
// and are safe from any thread.

func (e *Engine) SetPosition(v float64)       { e.position.SetValue(v) }
func (e *Engine) SetGrainSize(ms float64)     { e.grainSize.SetValue(ms) }
func (e *Engine) SetDensity(v float64)        { e.density.SetValue(v) }
func (e *Engine) SetPitch(semitones float64)  { e.pitch.SetValue(semitones) }
func (e *Engine) SetSpray(v float64)          { e.spray.SetValue(v) }
func (e *Engine) SetPanSpread(v float64)      { e.panSpread.SetValue(v) }
func (e *Engine) SetGrainAttack(v float64)    { e.grainAttack.SetValue(v) }
func (e *Engine) SetGrainRelease(v float64)   { e.grainRelease.SetValue(v) }
func (e *Engine) SetSampleGain(db float64)    { e.sampleGain.SetValue(db) }
func (e *Engine) SetCropStart(v float64)      { e.cropStart.SetValue(v) }
func (e *Engine) SetCropEnd(v float64)        { e.cropEnd.SetValue(v) }
func (e *Engine) SetVoiceAttack(ms float64)   { e.voiceAttack.SetValue(ms) }
func (e *Engine) SetVoiceDecay(ms float64)    { e.voiceDecay.SetValue(ms) }
func (e *Engine) SetVoiceSustain(v float64)   { e.voiceSustain.SetValue(v) }
func (e *Engine) SetVoiceRelease(ms float64)  { e.voiceRelease.SetValue(ms) }
func (e *Engine) SetLFORate(hz float64)       { e.lfoRate.SetValue(hz) }
func (e *Engine) SetLFOAmount(v float64)      { e.lfoAmount.SetValue(v) }
func (e *Engine) SetDelayTime(ms float64)     { e.delayTime.SetValue(ms) }
func (e *Engine) SetDelayFeedback(v float64)  { e.delayFeedback.SetValue(v) }
func (e *Engine) SetDelayFlutter(v float64)   { e.delayFlutter.SetValue(v) }
func (e *Engine) SetDelayHiss(v float64)      { e.delayHiss.SetValue(v) }
func (e *Engine) SetDisintegration(v float64) { e.disintegration.SetValue(v) }
func (e *Engine) SetWearMaxLife(hits float64) { e.wearMaxLife.SetValue(hits) }
func (e *Engine) SetFeedback(v float64)       { e.feedback.SetValue(v) }
func (e *Engine) SetReverb(v float64)         { e.reverbMix.SetValue(v) }
func (e *Engine) SetOutputGain(db float64)    { e.outputGain.SetValue(db) }
