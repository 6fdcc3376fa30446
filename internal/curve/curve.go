// Package curve holds the raw amplification curve model and the sigmoid
// curve fitter.
//
// A RawCurve is one well/channel trace: cycle numbers paired with RFU
// readings. Missing readings are carried as NaN and excluded from fitting.
// Nothing in this package mutates a RawCurve after it is built.
package curve

import (
	"errors"
	"fmt"
	"math"
)

// MinValidPoints is the smallest number of finite cycle/reading pairs a curve
// needs before it is fitted. Below this the curve is degenerate.
const MinValidPoints = 5

var (
	// ErrInvalidInput is returned when a curve fails boundary checks such as
	// mismatched sequence lengths.
	ErrInvalidInput = errors.New("invalid curve input")
	// ErrInsufficientData marks a curve with fewer than MinValidPoints valid
	// points. Fit never returns it; SigmoidFit.Err reports it for a fit that
	// degraded for that reason.
	ErrInsufficientData = errors.New("insufficient curve data")
)

// RawCurve is the per-well input to the analysis pipeline.
type RawCurve struct {
	Well     string    `json:"well"`
	Channel  string    `json:"channel"`
	Cycles   []float64 `json:"cycles"`
	Readings []float64 `json:"readings"`

	// ImportedCq is an externally supplied quantification cycle, for example
	// from the instrument export. It is only ever reported for confirmed
	// positives.
	ImportedCq *float64 `json:"imported_cq,omitempty"`
}

// Validate performs the boundary checks on a curve: matched lengths, no
// infinities and strictly increasing cycles. NaN values are treated as
// missing, not invalid, and are skipped by the ordering check.
func (c RawCurve) Validate() error {
	if len(c.Cycles) != len(c.Readings) {
		return fmt.Errorf("%w: well %s/%s has %d cycles but %d readings",
			ErrInvalidInput, c.Well, c.Channel, len(c.Cycles), len(c.Readings))
	}
	prev := math.NaN()
	for i := range c.Cycles {
		if math.IsInf(c.Cycles[i], 0) || math.IsInf(c.Readings[i], 0) {
			return fmt.Errorf("%w: well %s/%s has an infinite value at index %d",
				ErrInvalidInput, c.Well, c.Channel, i)
		}
		if math.IsNaN(c.Cycles[i]) {
			continue
		}
		if !math.IsNaN(prev) && c.Cycles[i] <= prev {
			return fmt.Errorf("%w: well %s/%s: cycle %g at index %d does not follow %g",
				ErrInvalidInput, c.Well, c.Channel, c.Cycles[i], i, prev)
		}
		prev = c.Cycles[i]
	}
	if c.ImportedCq != nil && (math.IsNaN(*c.ImportedCq) || math.IsInf(*c.ImportedCq, 0)) {
		return fmt.Errorf("%w: well %s/%s has a non-numeric imported Cq",
			ErrInvalidInput, c.Well, c.Channel)
	}
	return nil
}

// Len returns the number of cycle points, valid or not.
func (c RawCurve) Len() int {
	return len(c.Cycles)
}

// Valid returns copies of the cycle and reading slices restricted to points
// where both values are finite. Order is preserved.
func (c RawCurve) Valid() (cycles, readings []float64) {
	n := len(c.Cycles)
	if len(c.Readings) < n {
		n = len(c.Readings)
	}
	cycles = make([]float64, 0, n)
	readings = make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if !isFinite(c.Cycles[i]) || !isFinite(c.Readings[i]) {
			continue
		}
		cycles = append(cycles, c.Cycles[i])
		readings = append(readings, c.Readings[i])
	}
	return cycles, readings
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
