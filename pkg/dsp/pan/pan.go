// Package pan provides constant-power stereo panning.
package pan

import "math"

// Gains returns the left/right channel gains for a pan position.
// pan: -1.0 = hard left, 0.0 = center, 1.0 = hard right.
// Uses the sine/cosine law so total power stays constant across the field.
func Gains(pan float32) (left, right float32) {
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}

	// Map [-1, 1] to [0, π/2]
	angle := float64(pan+1) * math.Pi / 4
	left = float32(math.Cos(angle))
	right = float32(math.Sin(angle))
	return
}

// Process pans a mono buffer into stereo outputs.
func Process(mono []float32, pan float32, leftOut, rightOut []float32) {
	leftGain, rightGain := Gains(pan)

	n := len(mono)
	if len(leftOut) < n {
		n = len(leftOut)
	}
	if len(rightOut) < n {
		n = len(rightOut)
	}

	for i := 0; i < n; i++ {
		leftOut[i] = mono[i] * leftGain
		rightOut[i] = mono[i] * rightGain
	}
}
