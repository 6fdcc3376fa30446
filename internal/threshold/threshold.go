// Package threshold computes the amplification threshold for a curve and the
// quantification cycle (CQJ) at which the readings first cross it, plus the
// calibrated quantity (CalcJ) derived from CQJ.
//
// Per-channel thresholds chosen by an operator are passed in through Params;
// there is no process-wide threshold state.
package threshold

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/curve"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/metrics"
)

// Method names the strategy that produced a threshold.
type Method string

const (
	MethodSigmoid Method = "sigmoid"
	MethodLinear  Method = "linear"
	MethodManual  Method = "manual"
)

const (
	// DefaultLinearMultiplier is N in baseline + N·baseline_std.
	DefaultLinearMultiplier = 10.0
	// MinSigmoidR2 is the fit quality below which the linear fallback is used.
	MinSigmoidR2 = 0.75

	clampLow  = 0.10
	clampHigh = 0.90
)

// Calibration is a standard curve Cq = Slope·log10(quantity) + Intercept.
type Calibration struct {
	Slope     float64 `json:"slope" yaml:"slope"`
	Intercept float64 `json:"intercept" yaml:"intercept"`
}

// Quantity inverts the standard curve at cq.
func (c Calibration) Quantity(cq float64) (float64, bool) {
	if c.Slope == 0 || math.IsNaN(cq) {
		return 0, false
	}
	q := math.Pow(10, (cq-c.Intercept)/c.Slope)
	if math.IsInf(q, 0) || math.IsNaN(q) {
		return 0, false
	}
	return q, true
}

// Efficiency returns the amplification efficiency implied by the slope,
// 10^(-1/slope) - 1.
func (c Calibration) Efficiency() float64 {
	if c.Slope == 0 {
		return 0
	}
	return math.Pow(10, -1/c.Slope) - 1
}

// Params are the caller-supplied inputs to Calculate.
type Params struct {
	// Manual, when set, is used as the threshold verbatim.
	Manual *float64
	// LinearMultiplier is N for the linear fallback. Zero means
	// DefaultLinearMultiplier.
	LinearMultiplier float64
	// Calibration, when set, is used to derive CalcJ.
	Calibration *Calibration
}

// Result is the outcome of Calculate.
type Result struct {
	Threshold float64  `json:"threshold"`
	CQJ       *float64 `json:"cqj"`
	CalcJ     *float64 `json:"calcj"`
	Method    Method   `json:"method"`

	// Efficiency is the calibration's amplification efficiency, set
	// whenever a calibration with a non-zero slope is configured.
	Efficiency *float64 `json:"efficiency,omitempty"`
}

// Calculate picks a threshold for c and locates the crossing.
func Calculate(c curve.RawCurve, fit curve.SigmoidFit, p Params) Result {
	cycles, readings := c.Valid()

	var r Result
	switch {
	case p.Manual != nil:
		r.Threshold, r.Method = *p.Manual, MethodManual
	case UseSigmoid(fit):
		r.Threshold, r.Method = SigmoidThreshold(fit), MethodSigmoid
	default:
		n := p.LinearMultiplier
		if n <= 0 {
			n = DefaultLinearMultiplier
		}
		r.Threshold, r.Method = LinearThreshold(readings, n), MethodLinear
	}

	r.CQJ = CrossingCycle(cycles, readings, r.Threshold)
	if p.Calibration == nil {
		return r
	}
	if p.Calibration.Slope != 0 {
		e := p.Calibration.Efficiency()
		r.Efficiency = &e
	}
	if r.CQJ != nil {
		if q, ok := p.Calibration.Quantity(*r.CQJ); ok {
			r.CalcJ = &q
		}
	}
	return r
}

// UseSigmoid reports whether fit is good enough to place the threshold.
func UseSigmoid(fit curve.SigmoidFit) bool {
	return fit.Reliable() && fit.L > 0 && fit.R2 >= MinSigmoidR2
}

// SigmoidThreshold returns L/2 + B clamped to [B + 0.10·L, B + 0.90·L].
func SigmoidThreshold(fit curve.SigmoidFit) float64 {
	lo := fit.B + clampLow*fit.L
	hi := fit.B + clampHigh*fit.L
	if lo > hi {
		lo, hi = hi, lo
	}
	return math.Min(math.Max(fit.L/2+fit.B, lo), hi)
}

// LinearThreshold returns mean + n·std over the baseline readings.
func LinearThreshold(readings []float64, n float64) float64 {
	if len(readings) == 0 {
		return 0
	}
	base := readings
	if len(base) > metrics.BaselinePoints {
		base = base[:metrics.BaselinePoints]
	}
	mean, std := stat.PopMeanStdDev(base, nil)
	return mean + n*std
}

// CrossingCycle returns the cycle at which readings first cross threshold
// going up, interpolated linearly between the bracketing samples, or nil
// if they never do.
func CrossingCycle(cycles, readings []float64, threshold float64) *float64 {
	for i := 1; i < len(readings) && i < len(cycles); i++ {
		prev, cur := readings[i-1], readings[i]
		if prev < threshold && cur >= threshold {
			cq := cycles[i-1] + (threshold-prev)*(cycles[i]-cycles[i-1])/(cur-prev)
			return &cq
		}
	}
	return nil
}

// CqValid reports whether cq is a usable quantification cycle for a run
// spanning cycles.
func CqValid(cq *float64, cycles []float64) bool {
	if cq == nil || math.IsNaN(*cq) || math.IsInf(*cq, 0) || len(cycles) == 0 {
		return false
	}
	return *cq >= floats.Min(cycles) && *cq <= floats.Max(cycles)
}

// ReportedCq is the quantification cycle published for a well. An imported
// value may stand in for the computed CQJ only on a confirmed positive; for
// every other outcome imported values are discarded and nothing is reported.
func ReportedCq(confirmedPositive bool, cqj, imported *float64) *float64 {
	if !confirmedPositive {
		return nil
	}
	if imported != nil {
		v := *imported
		return &v
	}
	if cqj != nil {
		v := *cqj
		return &v
	}
	return nil
}
