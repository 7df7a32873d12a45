// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package filter smooths joint angles with a sliding-window median that
// tolerates wraparound at ±180°.
package filter

import (
	"math"
	"sort"
)

// DefaultWindow is the number of samples kept per channel.
const DefaultWindow = 10

// CircularMedian is a FIFO window of angles in degrees. Each update unwraps the
// window into a continuous trajectory, takes its median and wraps the result
// back into [-180, 180). Not safe for concurrent use.
type CircularMedian struct {
	size   int
	window []float64
}

// NewCircularMedian returns a filter holding up to size samples.
func NewCircularMedian(size int) *CircularMedian {
	if size <= 0 {
		size = DefaultWindow
	}
	return &CircularMedian{size: size, window: make([]float64, 0, size)}
}

// Update pushes deg into the window (evicting the oldest sample when full)
// and returns the filtered angle in degrees.
func (f *CircularMedian) Update(deg float64) float64 {
	if len(f.window) == f.size {
		copy(f.window, f.window[1:])
		f.window = f.window[:f.size-1]
	}
	f.window = append(f.window, deg)

	rad := make([]float64, len(f.window))
	for i, d := range f.window {
		rad[i] = d * math.Pi / 180.0
	}

	m := Median(Unwrap(rad))
	return WrapDegrees(m * 180.0 / math.Pi)
}

// Len reports how many samples are in the window.
func (f *CircularMedian) Len() int { return len(f.window) }

// Reset empties the window.
func (f *CircularMedian) Reset() { f.window = f.window[:0] }

// Unwrap removes jumps larger than π between consecutive phase samples by
// adding multiples of 2π, so the result is a continuous path starting at
// phase[0]. A jump of exactly π is left as is; a step that reduces to -π
// while the raw step is positive is corrected to +π.
func Unwrap(phase []float64) []float64 {
	out := make([]float64, len(phase))
	if len(phase) == 0 {
		return out
	}

	out[0] = phase[0]
	correction := 0.0
	for i := 1; i < len(phase); i++ {
		d := phase[i] - phase[i-1]
		if math.Abs(d) >= math.Pi {
			dd := floorMod(d+math.Pi, 2*math.Pi) - math.Pi
			if dd == -math.Pi && d > 0 {
				dd = math.Pi
			}
			correction += dd - d
		}
		out[i] = phase[i] + correction
	}
	return out
}

// Median of values; the mean of the two middle values for an even count.
// Returns NaN for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// WrapDegrees maps v into [-180, 180) via ((v + 180) mod 360) - 180.
func WrapDegrees(v float64) float64 {
	return floorMod(v+180, 360) - 180
}

// floorMod returns a mod m with the sign of m.
func floorMod(a, m float64) float64 {
	r := math.Mod(a, m)
	if r != 0 && (r < 0) != (m < 0) {
		r += m
	}
	return r
}

// Bank is one CircularMedian per channel.
type Bank struct {
	filters []*CircularMedian
}

// NewBank returns channels independent filters of the given window size.
func NewBank(channels, window int) *Bank {
	b := &Bank{filters: make([]*CircularMedian, channels)}
	for i := range b.filters {
		b.filters[i] = NewCircularMedian(window)
	}
	return b
}

// Apply filters one sample per channel. len(angles) must equal the number of
// channels the bank was built with.
func (b *Bank) Apply(angles []float64) []float64 {
	out := make([]float64, len(angles))
	for i, a := range angles {
		out[i] = b.filters[i].Update(a)
	}
	return out
}

// Reset empties every channel window.
func (b *Bank) Reset() {
	for _, f := range b.filters {
		f.Reset()
	}
}
