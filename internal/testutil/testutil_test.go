package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigmoid(t *testing.T) {
	t.Parallel()

	cycles, readings := Sigmoid(DefaultCycles, 1000, 0.5, 22, DefaultBaseline)
	require.Len(t, cycles, DefaultCycles)
	require.Len(t, readings, DefaultCycles)
	assert.Equal(t, 1.0, cycles[0])
	assert.Equal(t, 40.0, cycles[39])
	assert.InDelta(t, 600.0, readings[21], 1e-9, "midpoint sits at B + L/2")
	for i := 1; i < len(readings); i++ {
		assert.Greater(t, readings[i], readings[i-1])
	}
}

func TestFlat(t *testing.T) {
	t.Parallel()

	_, readings := Flat(10, 42)
	for _, r := range readings {
		assert.Equal(t, 42.0, r)
	}
}

func TestJitterIsDeterministic(t *testing.T) {
	t.Parallel()

	_, readings := Flat(20, 100)
	a := Jitter(readings, 5)
	b := Jitter(readings, 5)
	assert.Equal(t, a, b)
	for _, r := range a {
		assert.InDelta(t, 100.0, r, 5.0)
	}
	assert.Equal(t, 100.0, readings[0], "input must not be modified")
}
