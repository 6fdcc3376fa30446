// Package anomaly flags curve-quality problems from the raw readings, the
// baseline window and the sigmoid fit.
//
// Each check is independent; Detect runs all of them and returns the set of
// tags that matched. An empty set is reported as the sentinel "none".
package anomaly

import (
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/curve"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/metrics"
)

// Tag names one curve-quality problem.
type Tag string

const (
	LowAmplitude          Tag = "low_amplitude"
	EarlyPlateau          Tag = "early_plateau"
	UnstableBaseline      Tag = "unstable_baseline"
	NegativeAmplification Tag = "negative_amplification"
	NegativeRFUValues     Tag = "negative_rfu_values"
	HighNoise             Tag = "high_noise"
	InsufficientData      Tag = "insufficient_data"
	InsufficientValidData Tag = "insufficient_valid_data"
	// FitDivergence marks a curve whose sigmoid fit did not converge.
	FitDivergence Tag = "fit_divergence"
)

// None is the rendering of an empty Flags set.
const None = "none"

// Check thresholds (RFU unless noted).
const (
	LowAmplitudeMin      = 50.0
	LowAmplitudeFraction = 0.10

	BaselineWindowStart = 6.0 // cycle, inclusive
	BaselineWindowEnd   = 10.0
	BaselineStdMax      = 50.0
	BaselineStdFraction = 0.15

	PlateauFraction = 0.90

	NegativeSlopeFraction = 0.10
	NegativeRFUFraction   = 0.10

	HighNoiseFraction = 0.30
)

// Options carries run-level context for the checks.
type Options struct {
	// ExpectedRange is the signal range an amplifying well is expected to
	// reach on this run. Zero means the largest absolute reading of the
	// curve itself.
	ExpectedRange float64
}

// Flags is a sorted set of tags.
type Flags []Tag

// Has reports whether t is in the set.
func (f Flags) Has(t Tag) bool {
	i := sort.Search(len(f), func(i int) bool { return f[i] >= t })
	return i < len(f) && f[i] == t
}

// Empty reports whether no anomaly was found.
func (f Flags) Empty() bool {
	return len(f) == 0
}

// String returns the tags joined by ";" or None.
func (f Flags) String() string {
	if f.Empty() {
		return None
	}
	parts := make([]string, len(f))
	for i, t := range f {
		parts[i] = string(t)
	}
	return strings.Join(parts, ";")
}

// MarshalJSON encodes the set as an array; an empty set is [].
func (f Flags) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Tag(f))
}

// NewFlags builds a sorted, de-duplicated set.
func NewFlags(tags ...Tag) Flags {
	if len(tags) == 0 {
		return nil
	}
	out := make(Flags, 0, len(tags))
	seen := make(map[Tag]bool, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// sample is the view every check works from.
type sample struct {
	cycles   []float64
	readings []float64
	total    int
	span     float64
	fit      curve.SigmoidFit
	opts     Options
}

type check struct {
	tag Tag
	hit func(s sample) bool
}

var checks = []check{
	{LowAmplitude, lowAmplitude},
	{EarlyPlateau, earlyPlateau},
	{UnstableBaseline, unstableBaseline},
	{NegativeAmplification, negativeAmplification},
	{NegativeRFUValues, negativeRFUValues},
	{HighNoise, highNoise},
	{InsufficientData, insufficientData},
	{InsufficientValidData, func(s sample) bool { return len(s.readings) < curve.MinValidPoints }},
	{FitDivergence, func(s sample) bool { return s.fit.Status == curve.FitDiverged }},
}

// Detect evaluates every check against c and returns the matching tags.
func Detect(c curve.RawCurve, fit curve.SigmoidFit, opts Options) Flags {
	x, y := c.Valid()
	s := sample{cycles: x, readings: y, total: c.Len(), fit: fit, opts: opts}
	if len(y) > 0 {
		s.span = floats.Max(y) - floats.Min(y)
	}

	var tags []Tag
	for _, chk := range checks {
		if chk.hit(s) {
			tags = append(tags, chk.tag)
		}
	}
	return NewFlags(tags...)
}

// insufficientData: too few points in total, or a fit that degraded because
// too few of them were valid.
func insufficientData(s sample) bool {
	return s.total < curve.MinValidPoints || errors.Is(s.fit.Err(), curve.ErrInsufficientData)
}

func lowAmplitude(s sample) bool {
	if len(s.readings) < 2 {
		return false
	}
	expected := s.opts.ExpectedRange
	if expected <= 0 {
		expected = math.Max(math.Abs(floats.Max(s.readings)), math.Abs(floats.Min(s.readings)))
	}
	return s.span < LowAmplitudeMin || s.span < LowAmplitudeFraction*expected
}

// earlyPlateau: the curve reaches 90% of its range before the middle of the
// run.
func earlyPlateau(s sample) bool {
	if len(s.readings) < curve.MinValidPoints || s.span < LowAmplitudeMin {
		return false
	}
	level := floats.Min(s.readings) + PlateauFraction*s.span
	mid := (floats.Min(s.cycles) + floats.Max(s.cycles)) / 2
	for i, r := range s.readings {
		if r >= level {
			return s.cycles[i] < mid
		}
	}
	return false
}

func unstableBaseline(s sample) bool {
	var window []float64
	for i, c := range s.cycles {
		if c >= BaselineWindowStart && c <= BaselineWindowEnd {
			window = append(window, s.readings[i])
		}
	}
	if len(window) < 2 {
		return false
	}
	sd := stat.PopStdDev(window, nil)
	return sd > BaselineStdMax || sd > BaselineStdFraction*s.span
}

// negativeAmplification: the least-squares trend across the expected
// exponential window falls by more than a tenth of the range.
func negativeAmplification(s sample) bool {
	n := len(s.readings)
	if n < curve.MinValidPoints || s.span == 0 {
		return false
	}
	lo, hi, ok := metrics.ExponentialWindow(s.cycles, s.fit)
	if !ok {
		lo, hi = n/4, (3*n)/4
	}
	if hi-lo < 2 {
		return false
	}
	xs, ys := s.cycles[lo:hi+1], s.readings[lo:hi+1]
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope*(xs[len(xs)-1]-xs[0]) < -NegativeSlopeFraction*s.span
}

func negativeRFUValues(s sample) bool {
	if len(s.readings) == 0 {
		return false
	}
	var neg int
	for _, r := range s.readings {
		if r < 0 {
			neg++
		}
	}
	frac := float64(neg) / float64(len(s.readings))
	return frac >= NegativeRFUFraction && frac < 1
}

func highNoise(s sample) bool {
	if len(s.readings) < 3 || s.span == 0 {
		return false
	}
	diffs := make([]float64, len(s.readings)-1)
	for i := 1; i < len(s.readings); i++ {
		diffs[i-1] = s.readings[i] - s.readings[i-1]
	}
	return stat.PopStdDev(diffs, nil) > HighNoiseFraction*s.span
}
