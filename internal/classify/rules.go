package classify

import (
	"math"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/curve"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/metrics"
)

// Class is the graded call for a curve.
type Class string

const (
	StrongPositive Class = "STRONG_POSITIVE"
	Positive       Class = "POSITIVE"
	WeakPositive   Class = "WEAK_POSITIVE"
	Indeterminate  Class = "INDETERMINATE"
	// Redo is never produced by the rule chain; it arrives through a review
	// override.
	Redo       Class = "REDO"
	Suspicious Class = "SUSPICIOUS"
	Negative   Class = "NEGATIVE"
)

// Classes lists every class in rank order.
var Classes = []Class{StrongPositive, Positive, WeakPositive, Indeterminate, Redo, Suspicious, Negative}

// Valid reports whether c is one of Classes.
func (c Class) Valid() bool {
	for _, k := range Classes {
		if c == k {
			return true
		}
	}
	return false
}

// EdgeCaseConfidence is the confidence at or below which a call is an edge
// case.
const EdgeCaseConfidence = 0.60

// Features are the inputs to the rule chain. Midpoint and Baseline are
// carried for callers and reviewers but do not gate any rule.
type Features struct {
	R2        float64 `json:"r2"`
	Steepness float64 `json:"steepness"`
	SNR       float64 `json:"snr"`
	Amplitude float64 `json:"amplitude"`
	Midpoint  float64 `json:"midpoint"`
	Baseline  float64 `json:"baseline"`
}

// FeaturesFrom collects Features from a fit and its metrics.
func FeaturesFrom(fit curve.SigmoidFit, m metrics.QualityMetrics) Features {
	return Features{
		R2:        fit.R2,
		Steepness: fit.K,
		SNR:       m.SNR,
		Amplitude: fit.L,
		Midpoint:  fit.X0,
		Baseline:  fit.B,
	}
}

type metric int

const (
	r2 metric = iota
	steepness
	snr
)

func (m metric) of(f Features) float64 {
	switch m {
	case r2:
		return f.R2
	case steepness:
		return f.Steepness
	default:
		return f.SNR
	}
}

type cond struct {
	m     metric
	above bool
	limit float64
}

func gt(m metric, limit float64) cond { return cond{m: m, above: true, limit: limit} }
func lt(m metric, limit float64) cond { return cond{m: m, limit: limit} }

func (c cond) holds(f Features) bool {
	v := c.m.of(f)
	if c.above {
		return v > c.limit
	}
	return v < c.limit
}

// margin is how far past its limit the value sits, scaled to [0, 1]. r²
// is bounded by 1 so its headroom is 1 - limit.
func (c cond) margin(f Features) float64 {
	v := c.m.of(f)
	var d float64
	switch {
	case c.above && c.m == r2:
		d = (v - c.limit) / (1 - c.limit)
	case c.above:
		d = (v - c.limit) / c.limit
	default:
		d = (c.limit - v) / c.limit
	}
	if math.IsNaN(d) {
		return 0
	}
	return math.Min(math.Max(d, 0), 1)
}

type rule struct {
	name   string
	class  Class
	reason string
	base   float64
	// alts is a disjunction of conjunctions. A rule with no alternatives
	// always matches.
	alts [][]cond
	edge bool
}

// rules is evaluated top to bottom; the first match wins.
var rules = []rule{
	{
		name: "noise_spike", class: Suspicious, reason: "possible noise spike", base: 0.40, edge: true,
		alts: [][]cond{{gt(steepness, 0.8), lt(snr, 5)}},
	},
	{
		name: "poor_fit", class: Negative, reason: "poor fit", base: 0.70,
		alts: [][]cond{{lt(r2, 0.75)}},
	},
	{
		name: "low_signal", class: Negative, reason: "low signal", base: 0.70,
		alts: [][]cond{{lt(snr, 2.0)}},
	},
	{
		name: "strong", class: StrongPositive, reason: "strong sigmoid amplification", base: 0.85,
		alts: [][]cond{{gt(r2, 0.95), gt(steepness, 0.4), gt(snr, 15.0)}},
	},
	{
		name: "positive", class: Positive, reason: "clear amplification", base: 0.70,
		alts: [][]cond{
			{gt(r2, 0.85), gt(steepness, 0.3), gt(snr, 8.0)},
			{gt(steepness, 0.6), gt(snr, 3), gt(r2, 0.80)},
			{gt(snr, 12), gt(steepness, 0.15), gt(r2, 0.85)},
		},
	},
	{
		name: "weak", class: WeakPositive, reason: "weak amplification", base: 0.55,
		alts: [][]cond{{gt(r2, 0.80), gt(steepness, 0.2), gt(snr, 4.0)}},
	},
	{
		name: "indeterminate", class: Indeterminate, reason: "ambiguous amplification", base: 0.45,
		alts: [][]cond{{gt(r2, 0.75), gt(steepness, 0.1), gt(snr, 2.5)}},
	},
	fallback,
}

// fallback closes the rule chain and is also what a chain without a match
// yields.
var fallback = rule{
	name: "default", class: Negative, reason: "does not meet criteria", base: EdgeCaseConfidence,
}

// match reports whether r applies to f and, if so, the best margin among
// its satisfied alternatives.
func (r rule) match(f Features) (bool, float64) {
	if len(r.alts) == 0 {
		return true, 0
	}
	matched := false
	best := 0.0
	for _, alt := range r.alts {
		ok := true
		sum := 0.0
		for _, c := range alt {
			if !c.holds(f) {
				ok = false
				break
			}
			sum += c.margin(f)
		}
		if !ok {
			continue
		}
		if m := sum / float64(len(alt)); !matched || m > best {
			best = m
		}
		matched = true
	}
	return matched, best
}

// clampConfidence clamps a confidence value to the range [min, max].
func clampConfidence(value, min, max float64) float64 {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}
