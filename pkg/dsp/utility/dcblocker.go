package utility

// DCBlocker removes DC offset with a first-order high-pass filter:
//
//	y[n] = x[n] - x[n-1] + R * y[n-1]
//
// Feedback paths accumulate DC from asymmetric clipping; this keeps them
// centered.
type DCBlocker struct {
	x1, y1      float32
	coefficient float32
}

// NewDCBlocker creates a DC blocker with the given feedback coefficient R.
// Values close to 1 (0.99-0.999) give a cutoff of a few Hz.
func NewDCBlocker(coefficient float32) *DCBlocker {
	return &DCBlocker{coefficient: coefficient}
}

// Process removes DC from a single sample.
func (dc *DCBlocker) Process(input float32) float32 {
	output := input - dc.x1 + dc.coefficient*dc.y1
	dc.x1 = input
	dc.y1 = output
	return output
}

// ProcessBuffer processes a buffer in-place.
func (dc *DCBlocker) ProcessBuffer(buffer []float32) {
	for i := range buffer {
		buffer[i] = dc.Process(buffer[i])
	}
}

// Reset clears the filter state.
func (dc *DCBlocker) Reset() {
	dc.x1 = 0
	dc.y1 = 0
}
