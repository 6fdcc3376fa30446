// Package review decides when a rule-based call should go to the external
// learned classifier, assembles the features handed to it, and applies any
// override it returns.
//
// The learned classifier itself lives outside this module. It is reached
// through the Reviewer interface; visual descriptors come from a
// VisualExtractor, also supplied by the caller.
package review

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/classify"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/curve"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/metrics"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/threshold"
)

// Feature vector layout.
const (
	MetricFeatures = 18
	VisualFeatures = 12
	FeatureCount   = MetricFeatures + VisualFeatures
)

// MetricFeatureNames names the first MetricFeatures entries of a
// FeatureVector, in order.
var MetricFeatureNames = [MetricFeatures]string{
	"amplitude", "snr", "growth_rate", "plateau_level", "dynamic_range", "efficiency",
	"min_rfu", "max_rfu", "mean_rfu", "std_rfu", "min_cycle", "max_cycle",
	"r2", "rmse", "steepness", "midpoint", "baseline", "cqj",
}

// ErrInvalidOverride is returned by Apply for an override naming an unknown
// class.
var ErrInvalidOverride = errors.New("invalid review override")

// FeatureVector is the input to the learned classifier: the numeric curve
// metrics followed by the visual descriptors.
type FeatureVector [FeatureCount]float64

// VisualExtractor computes the visual-pattern descriptors for a curve.
type VisualExtractor interface {
	Describe(c curve.RawCurve) ([VisualFeatures]float64, error)
}

// Request is what a Reviewer receives.
type Request struct {
	Well     string          `json:"well"`
	Channel  string          `json:"channel"`
	Features FeatureVector   `json:"features"`
	EdgeCase bool            `json:"edge_case"`
	Rule     classify.Result `json:"rule_result"`
}

// Override is a reviewer's decision. It is authoritative over both the
// graded class and the strict result.
type Override struct {
	Class      classify.Class `json:"class"`
	Confidence float64        `json:"confidence"`
	// Strict is optional; when empty it is derived from Class.
	Strict classify.Strict `json:"strict,omitempty"`
	Model  string          `json:"model,omitempty"`
}

// Reviewer is the external supplemental classifier. A nil Override with a
// nil error means the reviewer declined to change the call.
type Reviewer interface {
	Review(ctx context.Context, req Request) (*Override, error)
}

// NeedsReview is the edge-case gate.
func NeedsReview(r classify.Result) bool {
	return r.EdgeCase
}

// MetricVector flattens the numeric metrics in MetricFeatureNames order. A
// missing CQJ is encoded as 0.
func MetricVector(fit curve.SigmoidFit, m metrics.QualityMetrics, th threshold.Result) [MetricFeatures]float64 {
	var cqj float64
	if th.CQJ != nil {
		cqj = *th.CQJ
	}
	return [MetricFeatures]float64{
		m.Amplitude, m.SNR, m.GrowthRate, m.PlateauLevel, m.DynamicRange, m.Efficiency,
		m.MinReading, m.MaxReading, m.MeanReading, m.StdReading, m.MinCycle, m.MaxCycle,
		fit.R2, fit.RMSE, fit.K, fit.X0, fit.B, cqj,
	}
}

// BuildFeatures assembles the full vector. A nil extractor leaves the visual
// descriptors at zero.
func BuildFeatures(c curve.RawCurve, fit curve.SigmoidFit, m metrics.QualityMetrics, th threshold.Result, vx VisualExtractor) (FeatureVector, error) {
	var v FeatureVector
	mv := MetricVector(fit, m, th)
	copy(v[:MetricFeatures], mv[:])
	if vx == nil {
		return v, nil
	}
	visual, err := vx.Describe(c)
	if err != nil {
		return v, fmt.Errorf("visual features for %s/%s: %w", c.Well, c.Channel, err)
	}
	copy(v[MetricFeatures:], visual[:])
	return v, nil
}

// Apply folds an override into a rule-based result. A nil override returns
// res unchanged.
func Apply(res classify.Result, o *Override) (classify.Result, error) {
	if o == nil {
		return res, nil
	}
	if !o.Class.Valid() {
		return res, fmt.Errorf("%w: class %q", ErrInvalidOverride, o.Class)
	}
	strict := o.Strict
	switch strict {
	case "":
		strict = classify.StrictForClass(o.Class)
	case classify.StrictPOS, classify.StrictNEG, classify.StrictREDO:
	default:
		return res, fmt.Errorf("%w: strict %q", ErrInvalidOverride, o.Strict)
	}

	out := res
	out.Class = o.Class
	out.Strict = strict
	out.Confidence = clamp01(o.Confidence)
	out.Rule = "review"
	out.Reason = "review override"
	if o.Model != "" {
		out.Reason += " (" + o.Model + ")"
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
