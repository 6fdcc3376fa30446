package anomaly

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/curve"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/testutil"
)

func sigmoid(l, k, x0, b float64) curve.RawCurve {
	cycles, readings := testutil.Sigmoid(testutil.DefaultCycles, l, k, x0, b)
	return curve.RawCurve{Cycles: cycles, Readings: readings}
}

func detect(c curve.RawCurve, opts Options) Flags {
	return Detect(c, curve.Fit(c, curve.FitOptions{}), opts)
}

func TestDetectCleanCurve(t *testing.T) {
	t.Parallel()

	flags := detect(sigmoid(1000, 0.5, 22, 100), Options{})
	assert.True(t, flags.Empty(), "unexpected flags %v", flags)
	assert.Equal(t, None, flags.String())
}

func TestDetectInsufficientData(t *testing.T) {
	t.Parallel()

	flags := detect(curve.RawCurve{Cycles: []float64{1, 2, 3}, Readings: []float64{10, 20, 30}}, Options{})
	assert.True(t, flags.Has(InsufficientData))
	assert.True(t, flags.Has(InsufficientValidData))
}

func TestDetectInsufficientValidData(t *testing.T) {
	t.Parallel()

	c := sigmoid(1000, 0.5, 22, 100)
	for i := 4; i < len(c.Readings); i++ {
		c.Readings[i] = math.NaN()
	}
	flags := detect(c, Options{})
	assert.True(t, flags.Has(InsufficientValidData))
	assert.True(t, flags.Has(InsufficientData), "a fit degraded for missing readings is insufficient data")

	// The tag follows the fit: a caller-supplied fit that did converge
	// leaves only the raw-reading check.
	flags = Detect(c, curve.SigmoidFit{Status: curve.FitOK}, Options{})
	assert.True(t, flags.Has(InsufficientValidData))
	assert.False(t, flags.Has(InsufficientData))
}

func TestDetectSingleChecks(t *testing.T) {
	t.Parallel()

	alternating := func() curve.RawCurve {
		cycles, readings := testutil.Flat(testutil.DefaultCycles, 0)
		for i := range readings {
			if i%2 == 1 {
				readings[i] = 1000
			}
		}
		return curve.RawCurve{Cycles: cycles, Readings: readings}
	}
	unstable := func() curve.RawCurve {
		cycles, readings := testutil.Flat(testutil.DefaultCycles, 100)
		copy(readings[5:10], []float64{100, 300, 50, 250, 100})
		return curve.RawCurve{Cycles: cycles, Readings: readings}
	}

	tests := []struct {
		name  string
		curve curve.RawCurve
		opts  Options
		want  Tag
	}{
		{"low amplitude", sigmoid(30, 0.5, 22, 100), Options{}, LowAmplitude},
		{"low against expected range", sigmoid(300, 0.5, 22, 100), Options{ExpectedRange: 5000}, LowAmplitude},
		{"early plateau", sigmoid(1000, 1.0, 8, 100), Options{}, EarlyPlateau},
		{"unstable baseline", unstable(), Options{}, UnstableBaseline},
		{"negative amplification", sigmoid(-800, 0.5, 20, 1000), Options{}, NegativeAmplification},
		{"negative rfu", sigmoid(1000, 0.5, 22, -200), Options{}, NegativeRFUValues},
		{"high noise", alternating(), Options{}, HighNoise},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := detect(tt.curve, tt.opts)
			assert.True(t, flags.Has(tt.want), "want %s in %v", tt.want, flags)
		})
	}
}

func TestDetectExpectedRangeDefault(t *testing.T) {
	t.Parallel()

	flags := detect(sigmoid(300, 0.5, 22, 100), Options{})
	assert.False(t, flags.Has(LowAmplitude))
}

func TestDetectConstantNegativeOffsetIsNotFlagged(t *testing.T) {
	t.Parallel()

	cycles, readings := testutil.Flat(testutil.DefaultCycles, -50)
	flags := detect(curve.RawCurve{Cycles: cycles, Readings: readings}, Options{})
	assert.False(t, flags.Has(NegativeRFUValues))
}

func TestDetectFitDivergence(t *testing.T) {
	t.Parallel()

	c := sigmoid(1000, 0.5, 22, 100)
	flags := Detect(c, curve.SigmoidFit{Status: curve.FitDiverged}, Options{})
	assert.True(t, flags.Has(FitDivergence))
}

func TestFlags(t *testing.T) {
	t.Parallel()

	f := NewFlags(HighNoise, EarlyPlateau, HighNoise)
	require.Len(t, f, 2)
	assert.Equal(t, Flags{EarlyPlateau, HighNoise}, f)
	assert.True(t, f.Has(HighNoise))
	assert.False(t, f.Has(LowAmplitude))
	assert.Equal(t, "early_plateau;high_noise", f.String())

	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `["early_plateau","high_noise"]`, string(b))

	b, err = json.Marshal(NewFlags())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
	assert.Equal(t, None, NewFlags().String())
}
