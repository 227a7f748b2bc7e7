// Package sample holds the loaded audio sample and serves interpolated
// reads to the grain engine.
//
// The buffer is immutable after publish: loading swaps an atomic pointer to
// a freshly built Buffer, so the real-time path never observes a torn
// buffer and never takes a lock. A reader that briefly sees the pre-swap
// buffer is harmless.
package sample

import (
	"errors"
	"sync/atomic"

	"github.com/palacesynth/palace/pkg/dsp/interpolation"
)

// ErrDecode reports audio data that could not be turned into a buffer.
// The previously loaded sample (or silence) is retained.
var ErrDecode = errors.New("sample: undecodable audio data")

// Buffer is an immutable block of decoded audio: channels × frames plus
// the source sample rate. Build one with NewBuffer, then publish it via
// Source.Load. Never mutate a buffer after publishing it.
type Buffer struct {
	data   [][]float32
	frames int
	rate   float64
}

// NewBuffer wraps decoded channel data into a Buffer.
// All channels must have equal length.
func NewBuffer(data [][]float32, rate float64) (*Buffer, error) {
	if len(data) == 0 || len(data[0]) == 0 || rate <= 0 {
		return nil, ErrDecode
	}
	frames := len(data[0])
	for _, ch := range data[1:] {
		if len(ch) != frames {
			return nil, ErrDecode
		}
	}
	return &Buffer{data: data, frames: frames, rate: rate}, nil
}

// Channels returns the channel count.
func (b *Buffer) Channels() int { return len(b.data) }

// Frames returns the frame count.
func (b *Buffer) Frames() int { return b.frames }

// Rate returns the source sample rate.
func (b *Buffer) Rate() float64 { return b.rate }

// Channel returns the raw data of one channel, for waveform rendering.
// Treat it as read-only.
func (b *Buffer) Channel(ch int) []float32 {
	if ch < 0 || ch >= len(b.data) {
		return nil
	}
	return b.data[ch]
}

// Source is the shared sample holder: single writer (control context, on
// load) and many readers (real-time path).
type Source struct {
	buffer atomic.Pointer[Buffer]
}

// NewSource creates an empty, silent source.
func NewSource() *Source {
	return &Source{}
}

// Load publishes a new buffer. It fails with ErrDecode on nil input and
// leaves the current sample in place. Control context only.
func (s *Source) Load(buf *Buffer) error {
	if buf == nil || buf.frames == 0 {
		return ErrDecode
	}
	s.buffer.Store(buf)
	return nil
}

// Clear drops the loaded sample, returning the source to silence.
func (s *Source) Clear() {
	s.buffer.Store(nil)
}

// IsLoaded reports whether a sample is present.
func (s *Source) IsLoaded() bool {
	return s.buffer.Load() != nil
}

// Buffer returns the currently published buffer, or nil when silent.
// The returned buffer is immutable and safe to read from any goroutine.
func (s *Source) Buffer() *Buffer {
	return s.buffer.Load()
}

// Frames returns the frame count of the loaded sample, 0 when silent.
func (s *Source) Frames() int {
	if buf := s.buffer.Load(); buf != nil {
		return buf.frames
	}
	return 0
}

// ReadInterpolated returns the sample at a fractional position on one
// channel, linearly interpolated. Positions wrap around the buffer length
// in both directions. Returns 0 when silent or the channel is absent.
func (b *Buffer) ReadInterpolated(channel int, position float64) float32 {
	if b == nil || channel < 0 || channel >= len(b.data) {
		return 0
	}

	frames := float64(b.frames)
	for position < 0 {
		position += frames
	}
	for position >= frames {
		position -= frames
	}

	index0 := int(position)
	index1 := index0 + 1
	if index1 >= b.frames {
		index1 = 0
	}
	frac := float32(position - float64(index0))

	ch := b.data[channel]
	return interpolation.Linear(ch[index0], ch[index1], frac)
}

// ReadMono returns the interpolated sample at a fractional position,
// averaging all channels down to mono. Grain playback is mono before
// panning.
func (b *Buffer) ReadMono(position float64) float32 {
	if b == nil {
		return 0
	}
	switch len(b.data) {
	case 1:
		return b.ReadInterpolated(0, position)
	case 2:
		return (b.ReadInterpolated(0, position) + b.ReadInterpolated(1, position)) * 0.5
	default:
		var sum float32
		for ch := range b.data {
			sum += b.ReadInterpolated(ch, position)
		}
		return sum / float32(len(b.data))
	}
}
