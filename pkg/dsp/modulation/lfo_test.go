package modulation

import (
	"math"
	"testing"
)

func TestValueDoesNotMutate(t *testing.T) {
	lfo := New(48000)
	lfo.SetFrequency(2.0)
	lfo.Advance(1000)

	v1 := lfo.Value()
	v2 := lfo.Value()
	p := lfo.Phase()

	if v1 != v2 {
		t.Errorf("Value mutated state: %f != %f", v1, v2)
	}
	if lfo.Phase() != p {
		t.Error("Value advanced the phase")
	}
}

func TestAdvanceByBlockEqualsTotalFrames(t *testing.T) {
	// Advancing in one jump must land on the same phase as many small jumps.
	a := New(48000)
	b := New(48000)
	a.SetFrequency(3.0)
	b.SetFrequency(3.0)

	a.Advance(4800)
	for i := 0; i < 10; i++ {
		b.Advance(480)
	}

	if math.Abs(a.Phase()-b.Phase()) > 1e-9 {
		t.Errorf("phase mismatch: %f vs %f", a.Phase(), b.Phase())
	}
}

func TestSineWaveform(t *testing.T) {
	lfo := New(1000)
	lfo.SetFrequency(1.0)
	lfo.SetWaveform(WaveformSine)

	if v := lfo.Value(); math.Abs(float64(v)) > 1e-6 {
		t.Errorf("sine at phase 0 = %f, want 0", v)
	}

	lfo.Advance(250) // quarter cycle
	if v := lfo.Value(); math.Abs(float64(v-1)) > 1e-5 {
		t.Errorf("sine at phase 0.25 = %f, want 1", v)
	}
}

func TestTriangleWaveform(t *testing.T) {
	lfo := New(1000)
	lfo.SetFrequency(1.0)
	lfo.SetWaveform(WaveformTriangle)

	tests := []struct {
		frames int
		want   float32
	}{
		{0, 0},
		{250, 1},
		{250, 0},
		{250, -1},
	}
	for _, tt := range tests {
		lfo.Advance(tt.frames)
		if v := lfo.Value(); math.Abs(float64(v-tt.want)) > 1e-5 {
			t.Errorf("triangle at phase %f = %f, want %f", lfo.Phase(), v, tt.want)
		}
	}
}

func TestSquareWaveform(t *testing.T) {
	lfo := New(1000)
	lfo.SetFrequency(1.0)
	lfo.SetWaveform(WaveformSquare)

	if v := lfo.Value(); v != 1 {
		t.Errorf("square first half = %f, want 1", v)
	}
	lfo.Advance(600)
	if v := lfo.Value(); v != -1 {
		t.Errorf("square second half = %f, want -1", v)
	}
}

func TestSampleHoldRedrawsOnlyAtWraparound(t *testing.T) {
	lfo := New(1000)
	lfo.SetFrequency(1.0)
	lfo.SetWaveform(WaveformSampleHold)

	held := lfo.Value()

	// Advancing within one cycle keeps the value.
	lfo.Advance(300)
	if lfo.Value() != held {
		t.Error("sample-and-hold redrew before wraparound")
	}
	lfo.Advance(300)
	if lfo.Value() != held {
		t.Error("sample-and-hold redrew before wraparound")
	}

	// Crossing the cycle boundary eventually redraws. Loop in case the new
	// draw happens to equal the old one.
	changed := false
	for i := 0; i < 50 && !changed; i++ {
		lfo.Advance(1000)
		changed = lfo.Value() != held
	}
	if !changed {
		t.Error("sample-and-hold never redrew after wraparound")
	}
}

func TestValuesStayInRange(t *testing.T) {
	for _, w := range []Waveform{WaveformSine, WaveformTriangle, WaveformSquare, WaveformNoise, WaveformSampleHold} {
		lfo := New(48000)
		lfo.SetFrequency(7.7)
		lfo.SetWaveform(w)
		for i := 0; i < 10000; i++ {
			lfo.Advance(17)
			v := lfo.Value()
			if v < -1 || v > 1 {
				t.Fatalf("waveform %d out of range: %f", w, v)
			}
		}
	}
}

func TestFrequencyClamp(t *testing.T) {
	lfo := New(48000)
	lfo.SetFrequency(1000)
	if lfo.Frequency() != 20 {
		t.Errorf("frequency not clamped high: %f", lfo.Frequency())
	}
	lfo.SetFrequency(-5)
	if lfo.Frequency() != 0.01 {
		t.Errorf("frequency not clamped low: %f", lfo.Frequency())
	}
}

func TestReset(t *testing.T) {
	lfo := New(48000)
	lfo.Advance(12345)
	lfo.Reset()
	if lfo.Phase() != 0 {
		t.Errorf("phase after reset = %f", lfo.Phase())
	}
}
