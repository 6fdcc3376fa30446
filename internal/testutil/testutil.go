// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the synthetic amplification curves used across
// the analysis packages so every test speaks about the same shapes. All
// generators are deterministic: there is no random source, so fixtures are
// identical on every run.
package testutil

import "math"

// Standard run shape used by most fixtures.
const (
	DefaultCycles   = 40
	DefaultBaseline = 100.0
)

// Cycles returns cycle numbers 1..n.
func Cycles(n int) []float64 {
	cycles := make([]float64, n)
	for i := range cycles {
		cycles[i] = float64(i + 1)
	}
	return cycles
}

// Sigmoid returns n cycles and the readings of
// b + l / (1 + exp(-k·(cycle - x0))).
func Sigmoid(n int, l, k, x0, b float64) (cycles, readings []float64) {
	cycles = Cycles(n)
	readings = make([]float64, n)
	for i, c := range cycles {
		readings[i] = b + l/(1+math.Exp(-k*(c-x0)))
	}
	return cycles, readings
}

// Flat returns n cycles of constant readings.
func Flat(n int, level float64) (cycles, readings []float64) {
	cycles = Cycles(n)
	readings = make([]float64, n)
	for i := range readings {
		readings[i] = level
	}
	return cycles, readings
}

// Jitter returns a copy of readings with a fixed pseudo-noise pattern of the
// given amplitude added. The pattern is a sum of incommensurate sinusoids, so
// it looks irregular but never changes between runs.
func Jitter(readings []float64, amplitude float64) []float64 {
	out := make([]float64, len(readings))
	for i, r := range readings {
		x := float64(i)
		out[i] = r + amplitude*(0.6*math.Sin(2.3*x+0.4)+0.4*math.Sin(5.1*x+1.7))
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
