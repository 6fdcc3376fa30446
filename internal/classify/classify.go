package classify

import (
	"math"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/anomaly"
)

// Strict is the three-state call.
type Strict string

const (
	StrictPOS  Strict = "POS"
	StrictNEG  Strict = "NEG"
	StrictREDO Strict = "REDO"
)

// Strict-result limits.
const (
	StrictNegativeAmplitude = 400.0
	StrictPositiveAmplitude = 500.0

	sCurveLongRunCycles = 20
	sCurveLongRunR2     = 0.9
	sCurveShortRunR2    = 0.85
	sCurveMinSteepness  = 0.05
	sCurveMinAmplitude  = 50.0
	sCurveRangeFraction = 0.3
)

// Result is the classification of one curve.
type Result struct {
	Class      Class   `json:"class"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	EdgeCase   bool    `json:"edge_case"`
	Rule       string  `json:"rule"`
	Strict     Strict  `json:"strict"`
}

// Classify runs the rule chain over f. Strict is left empty; see Evaluate.
func Classify(f Features) Result {
	return classifyWith(rules, f)
}

func classifyWith(chain []rule, f Features) Result {
	for _, r := range chain {
		if ok, margin := r.match(f); ok {
			return r.result(margin)
		}
	}
	return fallback.result(0)
}

func (r rule) result(margin float64) Result {
	res := Result{
		Class:      r.class,
		Reason:     r.reason,
		Confidence: clampConfidence(r.base+(1-r.base)*margin, 0, 1),
		Rule:       r.name,
	}
	res.EdgeCase = r.edge || res.Confidence <= EdgeCaseConfidence || res.Class == Indeterminate
	return res
}

// StrictInput carries what the strict result depends on.
type StrictInput struct {
	Amplitude  float64
	R2         float64
	Steepness  float64
	Range      float64
	CycleCount int
	CQJValid   bool
	Anomalies  anomaly.Flags
}

// GoodSCurve reports whether the fit describes a clean sigmoid: tight fit,
// non-trivial steepness and an amplitude that dominates the signal range.
func GoodSCurve(in StrictInput) bool {
	minR2 := sCurveShortRunR2
	if in.CycleCount > sCurveLongRunCycles {
		minR2 = sCurveLongRunR2
	}
	return in.R2 > minR2 &&
		in.Steepness > sCurveMinSteepness &&
		in.Amplitude > math.Max(sCurveMinAmplitude, in.Range*sCurveRangeFraction)
}

// StrictResult derives POS/NEG/REDO.
func StrictResult(in StrictInput) Strict {
	good := GoodSCurve(in)
	if in.Amplitude < StrictNegativeAmplitude || !good || !in.CQJValid {
		return StrictNEG
	}
	if in.Amplitude > StrictPositiveAmplitude && in.Anomalies.Empty() {
		return StrictPOS
	}
	return StrictREDO
}

// Evaluate produces the full classification: the graded class and the
// strict result.
func Evaluate(f Features, in StrictInput) Result {
	res := Classify(f)
	res.Strict = StrictResult(in)
	return res
}

// StrictForClass maps a graded class onto the strict scale. It is used when
// a graded class arrives from outside the rule chain.
func StrictForClass(c Class) Strict {
	switch c {
	case StrongPositive, Positive:
		return StrictPOS
	case Negative:
		return StrictNEG
	default:
		return StrictREDO
	}
}

// Counts tallies results by class.
func Counts(results []Result) map[Class]int {
	counts := make(map[Class]int, len(Classes))
	for _, r := range results {
		counts[r.Class]++
	}
	return counts
}
