// Package metrics derives the per-curve quality metrics from a sigmoid fit
// and the raw readings.
//
// Everything here is a pure function of its inputs; no package state is
// read or written.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/curve"
)

// Window sizes and floors.
const (
	// BaselinePoints is the number of leading valid readings treated as the
	// noise baseline for SNR.
	BaselinePoints = 5
	// PlateauPoints is the number of trailing valid readings averaged into
	// the plateau level.
	PlateauPoints = 5
	// BaselineNoiseFloor bounds the SNR denominator (RFU).
	BaselineNoiseFloor = 1.0

	expWindowLow  = 0.05
	expWindowHigh = 0.95
)

// QualityMetrics summarises the shape and quality of one curve.
type QualityMetrics struct {
	Amplitude    float64 `json:"amplitude"`
	SNR          float64 `json:"snr"`
	GrowthRate   float64 `json:"growth_rate"`
	PlateauLevel float64 `json:"plateau_level"`
	DynamicRange float64 `json:"dynamic_range"`
	Efficiency   float64 `json:"efficiency"`

	MinReading  float64 `json:"min_rfu"`
	MaxReading  float64 `json:"max_rfu"`
	MeanReading float64 `json:"mean_rfu"`
	StdReading  float64 `json:"std_rfu"`

	MinCycle float64 `json:"min_cycle"`
	MaxCycle float64 `json:"max_cycle"`
}

// Extract computes QualityMetrics for c given its fit. A curve with no valid
// points yields the zero value.
func Extract(c curve.RawCurve, fit curve.SigmoidFit) QualityMetrics {
	x, y := c.Valid()
	if len(y) == 0 {
		return QualityMetrics{}
	}

	m := QualityMetrics{
		Amplitude:   fit.L,
		MinReading:  floats.Min(y),
		MaxReading:  floats.Max(y),
		MinCycle:    floats.Min(x),
		MaxCycle:    floats.Max(x),
		MeanReading: stat.Mean(y, nil),
		StdReading:  stat.PopStdDev(y, nil),
	}
	m.DynamicRange = m.MaxReading - m.MinReading
	m.PlateauLevel = stat.Mean(tail(y, PlateauPoints), nil)
	m.SNR = SNR(fit.L, y)
	m.GrowthRate = growthRate(x, y, fit)
	if m.DynamicRange > 0 {
		m.Efficiency = m.Amplitude / m.DynamicRange
	}
	return m
}

// BaselineNoise returns the population standard deviation of the first
// BaselinePoints readings, floored at BaselineNoiseFloor.
func BaselineNoise(readings []float64) float64 {
	if len(readings) == 0 {
		return BaselineNoiseFloor
	}
	return math.Max(stat.PopStdDev(head(readings, BaselinePoints), nil), BaselineNoiseFloor)
}

// SNR returns amplitude over baseline noise.
func SNR(amplitude float64, readings []float64) float64 {
	return amplitude / BaselineNoise(readings)
}

// ExponentialWindow returns the index range [lo, hi] of points whose fitted
// fraction lies inside the exponential phase. ok is false when the fit is not
// reliable or the window holds fewer than two points.
func ExponentialWindow(cycles []float64, fit curve.SigmoidFit) (lo, hi int, ok bool) {
	if !fit.Reliable() || fit.K <= 0 {
		return 0, 0, false
	}
	lo, hi = -1, -1
	for i, c := range cycles {
		f := fit.Fraction(c)
		if f < expWindowLow || f > expWindowHigh {
			continue
		}
		if lo < 0 {
			lo = i
		}
		hi = i
	}
	if lo < 0 || hi-lo < 1 {
		return 0, 0, false
	}
	return lo, hi, true
}

func growthRate(x, y []float64, fit curve.SigmoidFit) float64 {
	lo, hi, ok := ExponentialWindow(x, fit)
	if !ok {
		lo, hi = 0, len(y)-1
	}
	if hi <= lo {
		return 0
	}
	best := math.Inf(-1)
	for i := lo + 1; i <= hi; i++ {
		if d := y[i] - y[i-1]; d > best {
			best = d
		}
	}
	return best
}

func head(v []float64, n int) []float64 {
	if len(v) < n {
		return v
	}
	return v[:n]
}

func tail(v []float64, n int) []float64 {
	if len(v) < n {
		return v
	}
	return v[len(v)-n:]
}
