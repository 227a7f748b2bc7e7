// Package interpolation provides the fractional-read kernels used by the
// sample source and the tape delay.
package interpolation

// Linear interpolates between two samples.
// frac is the fractional position between y0 and y1 (0.0 to 1.0).
func Linear(y0, y1, frac float32) float32 {
	return y0 + (y1-y0)*frac
}

// Hermite performs 4-point, 3rd-order Hermite interpolation.
// frac is the fractional position between y1 and y2 (0.0 to 1.0).
func Hermite(y0, y1, y2, y3, frac float32) float32 {
	c0 := y1
	c1 := 0.5 * (y2 - y0)
	c2 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	c3 := 0.5*(y3-y0) + 1.5*(y1-y2)

	return ((c3*frac+c2)*frac+c1)*frac + c0
}

// HermiteWrapped reads a fractional position from a circular buffer using
// 4-point Hermite interpolation with wrap-around indices.
// position must be non-negative.
func HermiteWrapped(buffer []float32, position float32) float32 {
	size := len(buffer)
	if size == 0 {
		return 0
	}

	i0 := int(position)
	frac := position - float32(i0)

	im1 := ((i0-1)%size + size) % size
	i1 := (i0 + 1) % size
	i2 := (i0 + 2) % size
	i0 = i0 % size

	return Hermite(buffer[im1], buffer[i0], buffer[i1], buffer[i2], frac)
}

// Smooth moves current toward target by a fixed fraction per call.
// Useful for parameter smoothing.
func Smooth(current, target, coefficient float32) float32 {
	return current + (target-current)*coefficient
}
