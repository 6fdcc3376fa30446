package curve

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// FitStatus records how a SigmoidFit was produced.
type FitStatus string

const (
	// FitOK indicates the solver converged to finite parameters.
	FitOK FitStatus = "ok"
	// FitInsufficientData indicates the curve had fewer than MinValidPoints
	// valid points and was never fitted.
	FitInsufficientData FitStatus = "insufficient_data"
	// FitDiverged indicates the solver hit its iteration bound or produced
	// non-finite parameters.
	FitDiverged FitStatus = "diverged"
)

// Solver tuning.
const (
	DefaultMaxIterations = 200

	initialSteepness   = 0.3
	baselineSeedPoints = 5
	initialDamping     = 1e-3
	minDamping         = 1e-12
	maxDamping         = 1e12
	relativeTolerance  = 1e-10
)

// SigmoidFit is the four-parameter logistic model
//
//	signal(c) = B + L / (1 + exp(-K·(c - X0)))
//
// together with its goodness of fit.
type SigmoidFit struct {
	L  float64 `json:"amplitude"`
	K  float64 `json:"steepness"`
	X0 float64 `json:"midpoint"`
	B  float64 `json:"baseline"`

	R2   float64 `json:"r2"`
	RMSE float64 `json:"rmse"`

	Iterations int       `json:"iterations"`
	Status     FitStatus `json:"status"`
}

// FitOptions bounds the solver.
type FitOptions struct {
	// MaxIterations caps Levenberg-Marquardt iterations. Zero means
	// DefaultMaxIterations.
	MaxIterations int
}

// Reliable reports whether the fit parameters can be trusted downstream.
func (f SigmoidFit) Reliable() bool {
	return f.Status == FitOK
}

// Err returns the cause behind a degenerate fit that had too few valid
// points, wrapping ErrInsufficientData. It is nil for every other status.
func (f SigmoidFit) Err() error {
	if f.Status != FitInsufficientData {
		return nil
	}
	return fmt.Errorf("%w: fewer than %d valid points", ErrInsufficientData, MinValidPoints)
}

// Fraction returns the logistic term at cycle c, in [0, 1].
func (f SigmoidFit) Fraction(c float64) float64 {
	return logistic(f.K * (c - f.X0))
}

// Eval returns the fitted signal at cycle c.
func (f SigmoidFit) Eval(c float64) float64 {
	return f.B + f.L*f.Fraction(c)
}

// Fit fits the sigmoid model to the valid points of c by nonlinear least
// squares. It never fails: curves that are too short, or on which the solver
// does not converge, yield a degenerate fit with L = 0 and R2 = 0 and a
// Status saying why.
func Fit(c RawCurve, opts FitOptions) SigmoidFit {
	x, y := c.Valid()
	if len(x) < MinValidPoints {
		return degenerate(x, y, FitInsufficientData, 0)
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	p := [4]float64{
		floats.Max(y) - floats.Min(y),
		initialSteepness,
		(floats.Min(x) + floats.Max(x)) / 2,
		stat.Mean(y[:baselineSeedPoints], nil),
	}

	sse := sumSquares(x, y, p)
	lambda := initialDamping
	converged := false
	iter := 0
	for iter < maxIter && !converged {
		iter++
		jtj, jtr := normalEquations(x, y, p)

		accepted := false
		for lambda <= maxDamping {
			step, ok := dampedStep(jtj, jtr, lambda)
			if !ok {
				lambda *= 10
				continue
			}
			var trial [4]float64
			for i := range p {
				trial[i] = p[i] + step[i]
			}
			trialSSE := sumSquares(x, y, trial)
			if isFinite(trialSSE) && trialSSE < sse {
				if sse-trialSSE <= relativeTolerance*sse || smallStep(step, trial) {
					converged = true
				}
				p, sse = trial, trialSSE
				lambda = math.Max(lambda/10, minDamping)
				accepted = true
				break
			}
			lambda *= 10
		}
		// No damping produces descent: p is a stationary point.
		if !accepted {
			converged = true
		}
	}

	for _, v := range p {
		if !isFinite(v) {
			return degenerate(x, y, FitDiverged, iter)
		}
	}
	if !converged {
		return degenerate(x, y, FitDiverged, iter)
	}

	fit := SigmoidFit{L: p[0], K: p[1], X0: p[2], B: p[3], Iterations: iter, Status: FitOK}
	// B + L·s(-k) == (B + L) - L·s(k): keep K non-negative.
	if fit.K < 0 {
		fit.K = -fit.K
		fit.B += fit.L
		fit.L = -fit.L
	}
	fit.RMSE = math.Sqrt(sse / float64(len(x)))
	fit.R2 = rSquared(fit, x, y)
	return fit
}

func degenerate(x, y []float64, status FitStatus, iter int) SigmoidFit {
	fit := SigmoidFit{Iterations: iter, Status: status}
	if len(y) > 0 {
		fit.B = stat.Mean(y, nil)
		fit.RMSE = stat.PopStdDev(y, nil)
	}
	if len(x) > 0 {
		fit.X0 = (floats.Min(x) + floats.Max(x)) / 2
	}
	return fit
}

func rSquared(fit SigmoidFit, x, y []float64) float64 {
	if floats.Max(y) == floats.Min(y) {
		return 0
	}
	est := make([]float64, len(x))
	for i, c := range x {
		est[i] = fit.Eval(c)
	}
	r2 := stat.RSquaredFrom(est, y, nil)
	if !isFinite(r2) || r2 < 0 {
		return 0
	}
	if r2 > 1 {
		return 1
	}
	return r2
}

func logistic(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func model(c float64, p [4]float64) float64 {
	return p[3] + p[0]*logistic(p[1]*(c-p[2]))
}

func sumSquares(x, y []float64, p [4]float64) float64 {
	var sse float64
	for i := range x {
		r := y[i] - model(x[i], p)
		sse += r * r
	}
	return sse
}

// normalEquations returns JᵀJ and Jᵀr for the residuals r = y - model.
func normalEquations(x, y []float64, p [4]float64) (*mat.Dense, *mat.VecDense) {
	n := len(x)
	jac := mat.NewDense(n, 4, nil)
	res := mat.NewVecDense(n, nil)
	for i, c := range x {
		s := logistic(p[1] * (c - p[2]))
		ds := p[0] * s * (1 - s)
		jac.Set(i, 0, s)
		jac.Set(i, 1, ds*(c-p[2]))
		jac.Set(i, 2, -ds*p[1])
		jac.Set(i, 3, 1)
		res.SetVec(i, y[i]-(p[3]+p[0]*s))
	}
	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)
	var jtr mat.VecDense
	jtr.MulVec(jac.T(), res)
	return &jtj, &jtr
}

// dampedStep solves (JᵀJ + λ·diag(JᵀJ))·δ = Jᵀr.
func dampedStep(jtj *mat.Dense, jtr *mat.VecDense, lambda float64) ([4]float64, bool) {
	var step [4]float64
	a := mat.DenseCopyOf(jtj)
	for i := 0; i < 4; i++ {
		d := jtj.At(i, i)
		if d < minDamping {
			d = minDamping
		}
		a.Set(i, i, jtj.At(i, i)+lambda*d)
	}
	var delta mat.VecDense
	if err := delta.SolveVec(a, jtr); err != nil {
		// An ill-conditioned system still yields a usable step.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return step, false
		}
	}
	for i := 0; i < 4; i++ {
		step[i] = delta.AtVec(i)
		if !isFinite(step[i]) {
			return step, false
		}
	}
	return step, true
}

func smallStep(step, p [4]float64) bool {
	for i := range step {
		if math.Abs(step[i]) > relativeTolerance*(math.Abs(p[i])+relativeTolerance) {
			return false
		}
	}
	return true
}
