package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/classify"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/curve"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/monitoring"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/timeutil"
)

// Run is the output of one batch.
type Run struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Results   []Result  `json:"results"`
	Summary   *Summary  `json:"summary"`

	// Duration is the wall time the batch took.
	Duration time.Duration `json:"duration_ns"`
}

// Batch analyses every curve concurrently. Results are returned in input
// order. A curve rejected at the input boundary does not fail the batch: its
// result carries the error and the other wells proceed. Batch fails only
// when ctx is done before every well finished.
func Batch(ctx context.Context, curves []curve.RawCurve, opts Options) (*Run, error) {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	start := clock.Now()
	run := &Run{
		RunID:     uuid.New().String(),
		CreatedAt: start.UTC(),
		Results:   make([]Result, len(curves)),
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range curves {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := AnalyzeWell(gctx, curves[i], opts)
			if err != nil && !errors.Is(err, curve.ErrInvalidInput) {
				return err
			}
			if err != nil {
				monitoring.Warnf("run %s: well %s/%s rejected: %v", run.RunID, curves[i].Well, curves[i].Channel, err)
			}
			run.Results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run %s: %w", run.RunID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s: %w", run.RunID, err)
	}

	run.Summary = Summarize(run.Results)
	run.Duration = clock.Since(start)
	monitoring.Logf("run %s: analysed %d wells in %s (%d invalid, %d edge cases, %d reviewed)",
		run.RunID, run.Summary.Wells, run.Duration, run.Summary.Invalid, run.Summary.EdgeCases, run.Summary.Reviewed)
	return run, nil
}

// Summary holds aggregate statistics for a run.
type Summary struct {
	Wells   int `json:"wells"`
	Invalid int `json:"invalid"`

	// Classification distribution over the valid wells
	ClassCounts        map[classify.Class]int     `json:"class_counts"`
	ClassConfidenceAvg map[classify.Class]float64 `json:"class_confidence_avg"`
	StrictCounts       map[classify.Strict]int    `json:"strict_counts"`

	EdgeCases int `json:"edge_cases"`
	Reviewed  int `json:"reviewed"`
	// Reported counts wells with a reported Cq.
	Reported int `json:"reported"`
}

// Summarize calculates aggregate statistics from a set of results.
func Summarize(results []Result) *Summary {
	s := &Summary{
		Wells:              len(results),
		ClassConfidenceAvg: make(map[classify.Class]float64),
		StrictCounts:       make(map[classify.Strict]int),
	}

	valid := make([]classify.Result, 0, len(results))
	for _, r := range results {
		if r.Error != "" {
			s.Invalid++
			continue
		}
		cls := r.Classification
		valid = append(valid, cls)
		s.ClassConfidenceAvg[cls.Class] += cls.Confidence
		s.StrictCounts[cls.Strict]++
		if cls.EdgeCase {
			s.EdgeCases++
		}
		if r.Reviewed {
			s.Reviewed++
		}
		if r.CqValue != nil {
			s.Reported++
		}
	}

	s.ClassCounts = classify.Counts(valid)
	for class, total := range s.ClassConfidenceAvg {
		s.ClassConfidenceAvg[class] = total / float64(s.ClassCounts[class])
	}
	return s
}
