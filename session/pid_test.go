package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPidControllerOutputIncreasesAboveTarget(t *testing.T) {
	c := NewPidController()
	c.SetTargetAndLimit(BalancerControllerBounds{Target: 1000, Max: 5000})

	// Current buffer above target: output should be positive.
	out := c.NextControlOutput(1500)
	require.Greater(t, out, uint64(0))
}

func TestPidControllerOutputClampsToZeroBelowTarget(t *testing.T) {
	c := NewPidController()
	c.SetTargetAndLimit(BalancerControllerBounds{Target: 1000, Max: 5000})

	out := c.NextControlOutput(200)
	require.Equal(t, uint64(0), out)
}

func TestPidControllerOutputClampsToMax(t *testing.T) {
	c := NewPidController()
	c.SetTargetAndLimit(BalancerControllerBounds{Target: 0, Max: 100})

	out := c.NextControlOutput(1_000_000)
	require.LessOrEqual(t, out, uint64(100))
}

func TestPidControllerAtTargetIsStable(t *testing.T) {
	c := NewPidController()
	c.SetTargetAndLimit(BalancerControllerBounds{Target: 1000, Max: 5000})

	out1 := c.NextControlOutput(1000)
	out2 := c.NextControlOutput(1000)
	require.Equal(t, out1, out2)
}

func TestPidControllerBoundsRoundTrip(t *testing.T) {
	c := NewPidController()
	bounds := BalancerControllerBounds{Target: 42, Max: 99}
	c.SetTargetAndLimit(bounds)
	require.Equal(t, bounds, c.Bounds())
}
