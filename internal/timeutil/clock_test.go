package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	assert.False(t, start.IsZero())
	assert.GreaterOrEqual(t, c.Since(start), time.Duration(0))
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now(), "mock clock does not move")
	assert.Zero(t, c.Since(start))
	assert.Equal(t, 90*time.Second, c.Since(start.Add(-90*time.Second)))
}
