package utility

import (
	"math"
	"testing"
)

func TestNoiseRange(t *testing.T) {
	n := NewNoise(1)
	for i := 0; i < 10000; i++ {
		v := n.Next()
		if v < -1 || v > 1 {
			t.Fatalf("noise sample out of range: %f", v)
		}
	}
}

func TestNoiseIsSeeded(t *testing.T) {
	a := NewNoise(42)
	b := NewNoise(42)
	for i := 0; i < 100; i++ {
		if a.Next() != b.Next() {
			t.Fatal("same seed should produce same sequence")
		}
	}
}

func TestGaussianNoiseStatistics(t *testing.T) {
	g := NewGaussianNoise(7)

	const samples = 100000
	var sum, sumSq float64
	for i := 0; i < samples; i++ {
		v := float64(g.Next())
		sum += v
		sumSq += v * v
	}

	mean := sum / samples
	variance := sumSq/samples - mean*mean

	if math.Abs(mean) > 0.02 {
		t.Errorf("mean too far from 0: %f", mean)
	}
	if math.Abs(variance-1.0) > 0.05 {
		t.Errorf("variance too far from 1: %f", variance)
	}
}

func TestDCBlockerRemovesOffset(t *testing.T) {
	dc := NewDCBlocker(0.995)

	// Feed a constant DC signal; output should decay toward zero.
	var out float32
	for i := 0; i < 48000; i++ {
		out = dc.Process(0.5)
	}

	if math.Abs(float64(out)) > 0.01 {
		t.Errorf("DC not removed: %f", out)
	}
}

func TestDCBlockerPassesTransients(t *testing.T) {
	dc := NewDCBlocker(0.995)

	// First sample of an impulse passes essentially unchanged.
	out := dc.Process(1.0)
	if math.Abs(float64(out-1.0)) > 1e-6 {
		t.Errorf("impulse attenuated on first sample: %f", out)
	}
}

func TestDCBlockerReset(t *testing.T) {
	dc := NewDCBlocker(0.995)
	dc.Process(1.0)
	dc.Process(-0.5)
	dc.Reset()

	out := dc.Process(1.0)
	if math.Abs(float64(out-1.0)) > 1e-6 {
		t.Errorf("state not cleared by Reset: %f", out)
	}
}
