package session

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeEstimator struct {
	produced, consumed uint64
}

func (f *fakeEstimator) Produced() uint64 { return f.produced }
func (f *fakeEstimator) Consumed() uint64 { return f.consumed }

type fakeFlowController struct {
	lastRate uint64
	calls    int
}

func (f *fakeFlowController) AdjustSurbFlow(rate uint64) {
	f.lastRate = rate
	f.calls++
}

func TestDefaultSurbBalancerConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultSurbBalancerConfig()
	require.EqualValues(t, 7000, cfg.TargetSurbBufferSize)
	require.EqualValues(t, 5000, cfg.MaxSurbsPerSec)
	require.Equal(t, 60*time.Second, cfg.DecayWindow)
	require.InDelta(t, 0.05, cfg.DecayCoeff, 1e-9)
}

func TestBalancerStateUpdateRoundTripsConfig(t *testing.T) {
	cfg := DefaultSurbBalancerConfig()
	state := NewBalancerState(cfg)
	require.Equal(t, cfg, state.Config())
	require.False(t, state.IsDisabled())

	state.Update(SurbBalancerConfig{})
	require.True(t, state.IsDisabled())
}

func TestSurbBalancerUpdateRaisesBufferOnNetProduction(t *testing.T) {
	state := NewBalancerState(SurbBalancerConfig{TargetSurbBufferSize: 1000, MaxSurbsPerSec: 5000})
	estimator := &fakeEstimator{}
	flowCtl := &fakeFlowController{}
	controller := NewPidController()

	b := NewSurbBalancer("sess-1", controller, estimator, flowCtl, state, nil)
	// Force the internal rate-gate open for the test.
	b.lastUpdate = time.Now().Add(-time.Second)

	estimator.produced = 500
	level := b.Update()

	require.EqualValues(t, 500, level)
	require.Equal(t, 1, flowCtl.calls)
}

func TestSurbBalancerUpdateLowersBufferOnNetConsumption(t *testing.T) {
	state := NewBalancerState(SurbBalancerConfig{TargetSurbBufferSize: 1000, MaxSurbsPerSec: 5000})
	state.bufferLevel.Store(500)
	estimator := &fakeEstimator{produced: 100, consumed: 0}
	flowCtl := &fakeFlowController{}
	controller := NewPidController()

	b := NewSurbBalancer("sess-2", controller, estimator, flowCtl, state, nil)
	b.lastUpdate = time.Now().Add(-time.Second)
	b.lastProduced, b.lastConsumed = 0, 0

	// consumed outpaces produced: net negative delta shrinks the buffer.
	estimator.produced = 100
	estimator.consumed = 300
	level := b.Update()
	require.EqualValues(t, 300, level)
}

func TestSurbBalancerUpdateSkipsWithinMinInterval(t *testing.T) {
	state := NewBalancerState(SurbBalancerConfig{TargetSurbBufferSize: 1000, MaxSurbsPerSec: 5000})
	estimator := &fakeEstimator{produced: 1000}
	flowCtl := &fakeFlowController{}
	controller := NewPidController()

	b := NewSurbBalancer("sess-3", controller, estimator, flowCtl, state, nil)
	b.lastUpdate = time.Now()

	level := b.Update()
	require.Zero(t, level)
	require.Zero(t, flowCtl.calls)
}

func TestBalancerLevelCapacityDefaultsTo32768(t *testing.T) {
	os.Unsetenv("HOPR_INTERNAL_SESSION_BALANCER_LEVEL_CAPACITY")
	require.Equal(t, 32_768, balancerLevelCapacity())
}

func TestBalancerLevelCapacityHonorsEnvOverride(t *testing.T) {
	t.Setenv("HOPR_INTERNAL_SESSION_BALANCER_LEVEL_CAPACITY", "128")
	require.Equal(t, 128, balancerLevelCapacity())
}

func TestBalancerLevelCapacityIgnoresInvalidOverride(t *testing.T) {
	t.Setenv("HOPR_INTERNAL_SESSION_BALANCER_LEVEL_CAPACITY", "not-a-number")
	require.Equal(t, 32_768, balancerLevelCapacity())
}
