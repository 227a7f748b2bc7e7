package grain

import (
	"math"
	"testing"

	"github.com/palacesynth/palace/pkg/dsp/sample"
)

func testBuffer(t testing.TB, frames int) *sample.Buffer {
	t.Helper()
	data := make([]float32, frames)
	for i := range data {
		data[i] = 1.0
	}
	buf, err := sample.NewBuffer([][]float32{data}, 44100)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	return buf
}

func TestGrainExpiresAtDuration(t *testing.T) {
	buf := testBuffer(t, 44100)

	var g Grain
	g.Start(Params{
		Duration:   100,
		PitchRatio: 1,
		Amplitude:  1,
	})

	left := make([]float32, 64)
	right := make([]float32, 64)

	if !g.Process(buf, nil, 0, left, right) {
		t.Fatal("grain expired after 64 of 100 frames")
	}
	if g.Process(buf, nil, 0, left, right) {
		t.Fatal("grain still active after 128 of 100 frames")
	}
	if g.IsActive() {
		t.Error("IsActive true after expiry")
	}
}

func TestGrainEnvelopeStaysInRange(t *testing.T) {
	tests := []struct {
		name            string
		attack, release float32
	}{
		{"Standard", 0.25, 0.25},
		{"ZeroAttack", 0, 0.5},
		{"ZeroRelease", 0.5, 0},
		{"ZeroBoth", 0, 0},
		{"FullAttack", 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var g Grain
			g.Start(Params{
				Duration:        200,
				PitchRatio:      1,
				Amplitude:       1,
				AttackFraction:  tt.attack,
				ReleaseFraction: tt.release,
			})

			for g.IsActive() {
				env := g.envelope()
				if env < 0 || env > 1 {
					t.Fatalf("envelope out of range at progress %f: %f", g.Progress(), env)
				}
				g.elapsed++
				if g.elapsed >= g.params.Duration {
					g.Stop()
				}
			}
		})
	}
}

func TestGrainZeroFractionsGiveUnityEdges(t *testing.T) {
	var g Grain
	g.Start(Params{
		Duration:   100,
		PitchRatio: 1,
		Amplitude:  1,
	})

	// With no attack or release portion the envelope is constant 1,
	// including at the very first and last frame.
	if env := g.envelope(); env != 1 {
		t.Errorf("first-frame envelope = %f, want 1", env)
	}
	g.elapsed = 99
	if env := g.envelope(); env != 1 {
		t.Errorf("last-frame envelope = %f, want 1", env)
	}
}

func TestGrainAccumulatesIntoOutput(t *testing.T) {
	buf := testBuffer(t, 44100)

	var g Grain
	g.Start(Params{
		Duration:   64,
		PitchRatio: 1,
		Amplitude:  0.5,
		Pan:        0, // center: both channels at cos(π/4)
	})

	left := make([]float32, 64)
	right := make([]float32, 64)
	// Pre-existing content must be added to, not overwritten.
	left[0] = 0.1
	right[0] = 0.1

	g.Process(buf, nil, 0, left, right)

	centerGain := float32(math.Sqrt(2) / 2)
	want := 0.1 + 0.5*centerGain
	if math.Abs(float64(left[0]-want)) > 1e-5 {
		t.Errorf("left[0] = %f, want %f", left[0], want)
	}
	if math.Abs(float64(left[0]-right[0])) > 1e-6 {
		t.Errorf("center pan unbalanced: %f vs %f", left[0], right[0])
	}
}

func TestGrainPitchRatioAdvancesCursor(t *testing.T) {
	buf := testBuffer(t, 44100)

	var g Grain
	g.Start(Params{
		StartFrame: 1000,
		Duration:   64,
		PitchRatio: 2,
		Amplitude:  1,
	})

	left := make([]float32, 10)
	right := make([]float32, 10)
	g.Process(buf, nil, 0, left, right)

	if got := g.ReadPosition(); math.Abs(got-1020) > 1e-9 {
		t.Errorf("read position after 10 frames at ratio 2 = %f, want 1020", got)
	}
}

func TestGrainSilentWithoutSource(t *testing.T) {
	var g Grain
	g.Start(Params{Duration: 64, PitchRatio: 1, Amplitude: 1})

	left := make([]float32, 16)
	right := make([]float32, 16)
	if g.Process(nil, nil, 0, left, right) {
		t.Error("grain should report inactive with no source")
	}
	for i := range left {
		if left[i] != 0 || right[i] != 0 {
			t.Fatal("grain wrote output with no source")
		}
	}
}
