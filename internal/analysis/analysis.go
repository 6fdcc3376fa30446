// Package analysis wires the curve components into the per-well pipeline
//
//	raw curve → fit → metrics, anomalies → threshold → classification → review gate
//
// and runs it over a batch of wells on a bounded worker pool.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/anomaly"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/classify"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/config"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/curve"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/metrics"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/monitoring"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/review"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/threshold"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/timeutil"
)

// ChannelSettings supplies the per-channel threshold inputs.
// *config.AnalysisConfig implements it.
type ChannelSettings interface {
	ChannelThreshold(channel string) *float64
	Calibration(channel string) *threshold.Calibration
}

// Options configures an analysis. The zero value uses every default and
// performs no external review.
type Options struct {
	MaxFitIterations int
	LinearMultiplier float64
	ExpectedRange    float64
	// Channels, when set, supplies operator thresholds and calibrations.
	Channels ChannelSettings

	// Reviewer, when set, is consulted for edge-case wells.
	Reviewer review.Reviewer
	// Visual supplies the visual descriptors for review requests.
	Visual        review.VisualExtractor
	ReviewTimeout time.Duration

	// Workers bounds Batch concurrency. Zero means GOMAXPROCS.
	Workers int
	// Clock stamps runs. Nil means the wall clock.
	Clock timeutil.Clock
}

// OptionsFromConfig maps a loaded config onto Options. Reviewer and Visual
// are left for the caller to set.
func OptionsFromConfig(cfg *config.AnalysisConfig) Options {
	return Options{
		MaxFitIterations: cfg.GetMaxFitIterations(),
		LinearMultiplier: cfg.GetLinearThresholdMultiplier(),
		ExpectedRange:    cfg.GetExpectedRange(),
		Channels:         cfg,
		ReviewTimeout:    cfg.GetReviewTimeout(),
		Workers:          cfg.GetWorkers(),
	}
}

func (o Options) thresholdParams(channel string) threshold.Params {
	p := threshold.Params{LinearMultiplier: o.LinearMultiplier}
	if o.Channels != nil {
		p.Manual = o.Channels.ChannelThreshold(channel)
		p.Calibration = o.Channels.Calibration(channel)
	}
	return p
}

// Result is everything produced for one well.
type Result struct {
	Well    string `json:"well"`
	Channel string `json:"channel"`

	Fit            curve.SigmoidFit       `json:"fit"`
	Metrics        metrics.QualityMetrics `json:"metrics"`
	Anomalies      anomaly.Flags          `json:"anomalies"`
	Threshold      threshold.Result       `json:"threshold"`
	CqValue        *float64               `json:"cq_value"`
	Classification classify.Result        `json:"classification"`

	Reviewed    bool   `json:"reviewed"`
	ReviewError string `json:"review_error,omitempty"`
	// Error is set when the well was rejected at the input boundary.
	Error string `json:"error,omitempty"`
}

// Analyze runs the rule-based pipeline for one curve. It does no I/O and
// never consults a reviewer. The only error is a rejected input
// (curve.ErrInvalidInput); every other problem degrades into the result.
func Analyze(c curve.RawCurve, opts Options) (Result, error) {
	res := Result{Well: c.Well, Channel: c.Channel}
	if err := c.Validate(); err != nil {
		res.Error = err.Error()
		return res, err
	}

	fit := curve.Fit(c, curve.FitOptions{MaxIterations: opts.MaxFitIterations})
	if err := fit.Err(); err != nil {
		monitoring.Logf("well %s/%s: %v", c.Well, c.Channel, err)
	}
	m := metrics.Extract(c, fit)
	flags := anomaly.Detect(c, fit, anomaly.Options{ExpectedRange: opts.ExpectedRange})
	th := threshold.Calculate(c, fit, opts.thresholdParams(c.Channel))

	cycles, _ := c.Valid()
	cls := classify.Evaluate(
		classify.FeaturesFrom(fit, m),
		classify.StrictInput{
			Amplitude:  fit.L,
			R2:         fit.R2,
			Steepness:  fit.K,
			Range:      m.DynamicRange,
			CycleCount: c.Len(),
			CQJValid:   threshold.CqValid(th.CQJ, cycles),
			Anomalies:  flags,
		},
	)

	res.Fit = fit
	res.Metrics = m
	res.Anomalies = flags
	res.Threshold = th
	res.Classification = cls
	res.CqValue = threshold.ReportedCq(cls.Strict == classify.StrictPOS, th.CQJ, c.ImportedCq)
	return res, nil
}

// AnalyzeWell runs Analyze and, for edge cases, the external reviewer.
// Review failures are logged and recorded on the result; the rule-based
// call stands.
func AnalyzeWell(ctx context.Context, c curve.RawCurve, opts Options) (Result, error) {
	res, err := Analyze(c, opts)
	if err != nil {
		return res, err
	}
	if err := applyReview(ctx, c, &res, opts); err != nil {
		res.ReviewError = err.Error()
		monitoring.Warnf("review of well %s/%s failed, keeping rule-based call: %v", c.Well, c.Channel, err)
	}
	return res, nil
}

func applyReview(ctx context.Context, c curve.RawCurve, res *Result, opts Options) error {
	if opts.Reviewer == nil || !review.NeedsReview(res.Classification) {
		return nil
	}

	fv, err := review.BuildFeatures(c, res.Fit, res.Metrics, res.Threshold, opts.Visual)
	if err != nil {
		return err
	}

	if opts.ReviewTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ReviewTimeout)
		defer cancel()
	}
	o, err := opts.Reviewer.Review(ctx, review.Request{
		Well:     c.Well,
		Channel:  c.Channel,
		Features: fv,
		EdgeCase: true,
		Rule:     res.Classification,
	})
	if err != nil {
		return fmt.Errorf("reviewer: %w", err)
	}
	if o == nil {
		return nil
	}

	cls, err := review.Apply(res.Classification, o)
	if err != nil {
		return err
	}
	res.Classification = cls
	res.Reviewed = true
	res.CqValue = threshold.ReportedCq(cls.Strict == classify.StrictPOS, res.Threshold.CQJ, c.ImportedCq)
	return nil
}
