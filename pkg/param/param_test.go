package param

import (
	"sync"
	"testing"
)

func TestSetValueClampsToRange(t *testing.T) {
	p := New(1, "Grain Size").Range(1, 2000).Default(100).Unit("ms").Build()

	if got := p.Value(); got != 100 {
		t.Errorf("default value = %f, want 100", got)
	}

	p.SetValue(5000)
	if got := p.Value(); got != 2000 {
		t.Errorf("over-range write stored %f, want 2000", got)
	}

	p.SetValue(-10)
	if got := p.Value(); got != 1 {
		t.Errorf("under-range write stored %f, want 1", got)
	}
}

func TestModulatedValue(t *testing.T) {
	p := New(2, "Position").Range(0, 1).Default(0.5).ModRange(0.5).Build()

	// Unrouted: modulation has no effect.
	if got := p.Modulated(1, 1); got != 0.5 {
		t.Errorf("unrouted modulated value = %f, want 0.5", got)
	}

	p.SetModulated(true)
	if got := p.Modulated(0.5, 1); got != 0.75 {
		t.Errorf("modulated value = %f, want 0.75", got)
	}
	if got := p.Modulated(0.5, 0.5); got != 0.625 {
		t.Errorf("half-depth modulated value = %f, want 0.625", got)
	}

	// Excursion past the bounds clamps.
	if got := p.Modulated(1.0, 1); got != 1 {
		t.Errorf("positive excursion = %f, want clamp to 1", got)
	}
	if got := p.Modulated(-1.0, 1); got != 0 {
		t.Errorf("negative excursion = %f, want clamp to 0", got)
	}
}

func TestModulatedWithoutModRange(t *testing.T) {
	p := New(3, "Output Gain").Range(-60, 6).Default(0).Build()
	p.SetModulated(true)
	if got := p.Modulated(1, 1); got != 0 {
		t.Errorf("parameter without mod range moved to %f", got)
	}
}

func TestResetClearsRouting(t *testing.T) {
	p := New(4, "Spray").Range(0, 1).Default(0).ModRange(0.5).Build()
	p.SetValue(0.8)
	p.SetModulated(true)

	p.Reset()
	if p.Value() != 0 {
		t.Errorf("reset value = %f, want 0", p.Value())
	}
	if p.IsModulated() {
		t.Error("reset left modulation routed")
	}
}

func TestNormalizeDenormalizeRoundTrip(t *testing.T) {
	p := New(5, "Pitch").Range(-24, 24).Default(0).Build()

	if n := p.Normalize(0); n != 0.5 {
		t.Errorf("Normalize(0) = %f, want 0.5", n)
	}
	if v := p.Denormalize(0.5); v != 0 {
		t.Errorf("Denormalize(0.5) = %f, want 0", v)
	}
	if n := p.Normalize(100); n != 1 {
		t.Errorf("out-of-range Normalize = %f, want 1", n)
	}
}

func TestRegistryOrderAndLookup(t *testing.T) {
	r := NewRegistry()
	a := New(10, "A").Build()
	b := New(20, "B").Build()
	r.Add(a, b)
	r.Add(a) // duplicate, ignored

	if r.Count() != 2 {
		t.Fatalf("count = %d, want 2", r.Count())
	}
	if r.Get(20) != b {
		t.Error("Get(20) did not return the registered parameter")
	}
	if r.GetByIndex(0) != a || r.GetByIndex(1) != b {
		t.Error("index order does not match registration order")
	}
	if r.GetByIndex(2) != nil || r.Get(99) != nil {
		t.Error("missing lookups should return nil")
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	p := New(6, "Density").Range(0.1, 1000).Default(10).Build()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			p.SetValue(float64(i % 1000))
		}
	}()

	for i := 0; i < 100000; i++ {
		v := p.Value()
		if v < 0.1 || v > 1000 {
			t.Errorf("read out-of-range value %f", v)
			break
		}
	}
	close(stop)
	wg.Wait()
}
