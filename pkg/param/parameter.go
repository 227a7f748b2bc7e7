// Package param provides lock-free engine parameters. Control code writes
// values, the audio thread reads them per block; both sides go through
// atomics so no lock ever sits on the render path.
package param

import (
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
)

// Parameter is a single engine parameter. Values are stored in plain units
// (milliseconds, semitones, dB) rather than normalized; Min and Max bound
// every write.
//
// ModRange is the full-scale excursion the modulation source can add when
// this parameter is routed: the effective value becomes
// value + lfo*amount*ModRange, clamped back into [Min, Max].
type Parameter struct {
	ID           uint32
	Name         string
	ShortName    string
	Unit         string
	Min          float64
	Max          float64
	DefaultValue float64
	ModRange     float64

	value     atomic.Uint64 // float64 bits
	modulated atomic.Bool

	formatFunc func(float64) string
	parseFunc  func(string) (float64, error)
}

// Value returns the current plain value. Any thread.
func (p *Parameter) Value() float64 {
	return math.Float64frombits(p.value.Load())
}

// SetValue stores a plain value, clamped to [Min, Max]. Any thread.
func (p *Parameter) SetValue(v float64) {
	if v < p.Min {
		v = p.Min
	} else if v > p.Max {
		v = p.Max
	}
	p.value.Store(math.Float64bits(v))
}

// Reset restores the default value and clears the modulation routing.
func (p *Parameter) Reset() {
	p.SetValue(p.DefaultValue)
	p.modulated.Store(false)
}

// SetModulated routes or unroutes the modulation source to this parameter.
func (p *Parameter) SetModulated(on bool) {
	p.modulated.Store(on)
}

// IsModulated reports whether the modulation source is routed here.
func (p *Parameter) IsModulated() bool {
	return p.modulated.Load()
}

// Modulated returns the effective value for this block: the stored value
// plus the scaled modulation sample when routed, clamped to [Min, Max].
// lfo is the bipolar source sample, amount its depth in [0, 1].
func (p *Parameter) Modulated(lfo, amount float64) float64 {
	v := p.Value()
	if !p.modulated.Load() || p.ModRange == 0 {
		return v
	}
	v += lfo * amount * p.ModRange
	if v < p.Min {
		v = p.Min
	} else if v > p.Max {
		v = p.Max
	}
	return v
}

// Normalize converts a plain value to the 0-1 range for UI controls.
func (p *Parameter) Normalize(plain float64) float64 {
	if p.Max <= p.Min {
		return 0
	}
	n := (plain - p.Min) / (p.Max - p.Min)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// Denormalize converts a 0-1 control position back to a plain value.
func (p *Parameter) Denormalize(normalized float64) float64 {
	return p.Min + normalized*(p.Max-p.Min)
}

// FormatValue renders a plain value for display.
func (p *Parameter) FormatValue(plain float64) string {
	if p.formatFunc != nil {
		return p.formatFunc(plain)
	}
	if p.Unit != "" {
		return fmt.Sprintf("%.2f %s", plain, p.Unit)
	}
	return fmt.Sprintf("%.2f", plain)
}

// ParseValue parses user input into a plain value.
func (p *Parameter) ParseValue(str string) (float64, error) {
	if p.parseFunc != nil {
		return p.parseFunc(str)
	}
	return strconv.ParseFloat(str, 64)
}
