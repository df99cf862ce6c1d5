package session

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
)

// SurbFlowEstimator reports the cumulative number of SURBs produced and
// consumed so far At the entry side this tracks
// local SURB consumption by egress application traffic; at the exit
// side it tracks SURBs minted into outgoing KeepAlive messages.
type SurbFlowEstimator interface {
	Produced() uint64
	Consumed() uint64
}

// SurbFlowController is regulated by the balancer: at the entry side it
// throttles egress application traffic, at the exit side it regulates
// the rate of Start-protocol KeepAlive messages.
type SurbFlowController interface {
	AdjustSurbFlow(ratePerSec uint64)
}

// MinBalancerSamplingInterval is the lower bound for the balancer's
// sampling interval. RunControlLoop does not check it: the interval is
// that of the ticker passed in.
const MinBalancerSamplingInterval = 100 * time.Millisecond

// SurbBalancerConfig is the tunable policy for one SurbBalancer.
type SurbBalancerConfig struct {
	TargetSurbBufferSize uint64
	MaxSurbsPerSec       uint64
	DecayWindow          time.Duration
	DecayCoeff           float64
}

// DefaultSurbBalancerConfig mirrors
// original_source/transport/session/src/balancer/controller.rs's
// SurbBalancerConfig::default (7000 target, 5000 max/sec, 5% decay
// every 60s).
func DefaultSurbBalancerConfig() SurbBalancerConfig {
	return SurbBalancerConfig{
		TargetSurbBufferSize: 7_000,
		MaxSurbsPerSec:       5_000,
		DecayWindow:          60 * time.Second,
		DecayCoeff:           0.05,
	}
}

func (c SurbBalancerConfig) bounds() BalancerControllerBounds {
	return BalancerControllerBounds{Target: c.TargetSurbBufferSize, Max: c.MaxSurbsPerSec}
}

// BalancerState is the atomic, hot-swappable runtime configuration of a
// SurbBalancer, translated from controller.rs's BalancerStateData (a
// struct of AtomicU64/AtomicU8 fields so the config can be updated
// concurrently with the sampling loop without a lock).
type BalancerState struct {
	targetSurbBufferSize atomic.Uint64
	maxSurbsPerSec        atomic.Uint64
	decayWindowMs         atomic.Uint64
	decayCoeffPct         atomic.Uint64
	bufferLevel           atomic.Int64
}

// NewBalancerState builds a BalancerState from cfg.
func NewBalancerState(cfg SurbBalancerConfig) *BalancerState {
	s := &BalancerState{}
	s.Update(cfg)
	return s
}

// Update applies a new configuration; safe to call concurrently with an
// active control loop.
func (s *BalancerState) Update(cfg SurbBalancerConfig) {
	s.targetSurbBufferSize.Store(cfg.TargetSurbBufferSize)
	s.maxSurbsPerSec.Store(cfg.MaxSurbsPerSec)
	s.decayWindowMs.Store(uint64(cfg.DecayWindow / time.Millisecond))
	s.decayCoeffPct.Store(uint64(cfg.DecayCoeff * 10000))
}

// Config extracts the current SurbBalancerConfig.
func (s *BalancerState) Config() SurbBalancerConfig {
	return SurbBalancerConfig{
		TargetSurbBufferSize: s.targetSurbBufferSize.Load(),
		MaxSurbsPerSec:       s.maxSurbsPerSec.Load(),
		DecayWindow:          time.Duration(s.decayWindowMs.Load()) * time.Millisecond,
		DecayCoeff:           float64(s.decayCoeffPct.Load()) / 10000,
	}
}

// IsDisabled reports whether balancing is off (zero target).
func (s *BalancerState) IsDisabled() bool { return s.targetSurbBufferSize.Load() == 0 }

// BufferLevel returns the current estimated SURB buffer level.
func (s *BalancerState) BufferLevel() int64 { return s.bufferLevel.Load() }

func (s *BalancerState) bounds() BalancerControllerBounds {
	return BalancerControllerBounds{Target: s.targetSurbBufferSize.Load(), Max: s.maxSurbsPerSec.Load()}
}

// BalancerMetrics are the five gauges
// original_source/transport/session/src/balancer/controller.rs
// registers under the hopr_surb_balancer_* names, reimplemented with
// github.com/prometheus/client_golang against a caller-owned Registry
// (no HTTP exporter is started here's non-goals).
type BalancerMetrics struct {
	TargetErrorEstimate *prometheus.GaugeVec
	ControlOutput       *prometheus.GaugeVec
	CurrentBuffer       *prometheus.GaugeVec
	CurrentTarget       *prometheus.GaugeVec
	SurbRate            *prometheus.GaugeVec
}

// NewBalancerMetrics creates and registers the balancer gauge vectors
// against reg. Passing a nil Registry is valid and simply disables
// registration (metrics are still computed, just not exported).
func NewBalancerMetrics(reg *prometheus.Registry) *BalancerMetrics {
	m := &BalancerMetrics{
		TargetErrorEstimate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hopr_surb_balancer_target_error_estimate",
			Help: "Target error estimation by the SURB balancer",
		}, []string{"session_id"}),
		ControlOutput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hopr_surb_balancer_control_output",
			Help: "Control output of the SURB balancer",
		}, []string{"session_id"}),
		CurrentBuffer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hopr_surb_balancer_current_buffer_estimate",
			Help: "Estimated number of SURBs in the buffer",
		}, []string{"session_id"}),
		CurrentTarget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hopr_surb_balancer_current_buffer_target",
			Help: "Current target (setpoint) number of SURBs in the buffer",
		}, []string{"session_id"}),
		SurbRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hopr_surb_balancer_surbs_rate",
			Help: "Estimation of SURB rate per second (positive is buffer surplus, negative is buffer loss)",
		}, []string{"session_id"}),
	}

	if reg != nil {
		reg.MustRegister(m.TargetErrorEstimate, m.ControlOutput, m.CurrentBuffer, m.CurrentTarget, m.SurbRate)
	}
	return m
}

// SurbBalancer runs the discrete PID-like control loop, sampling a
// SurbFlowEstimator and driving a SurbFlowController to keep the SURB
// buffer near BalancerState's target.
type SurbBalancer struct {
	sessionID  string
	controller SurbBalancerController
	estimator  SurbFlowEstimator
	flowCtl    SurbFlowController
	state      *BalancerState
	metrics    *BalancerMetrics

	lastProduced, lastConsumed uint64
	lastUpdate, lastDecay      time.Time
	wasBelowTarget             bool
}

// NewSurbBalancer builds a SurbBalancer bound to sessionID.
func NewSurbBalancer(sessionID string, controller SurbBalancerController, estimator SurbFlowEstimator, flowCtl SurbFlowController, state *BalancerState, metrics *BalancerMetrics) *SurbBalancer {
	controller.SetTargetAndLimit(state.bounds())
	return &SurbBalancer{
		sessionID:      sessionID,
		controller:     controller,
		estimator:      estimator,
		flowCtl:        flowCtl,
		state:          state,
		metrics:        metrics,
		lastUpdate:     time.Now(),
		lastDecay:      time.Now(),
		wasBelowTarget: true,
	}
}

// Update samples the estimator, applies buffer growth/decay, and feeds
// the result to the controller, returning the new buffer level.
// Translated from controller.rs's SurbBalancer::update.
func (b *SurbBalancer) Update() uint64 {
	now := time.Now()
	dt := now.Sub(b.lastUpdate)
	current := b.state.bufferLevel.Load()

	if dt < 10*time.Millisecond {
		return uint64(current)
	}
	b.lastUpdate = now

	produced, consumed := b.estimator.Produced(), b.estimator.Consumed()
	deltaProduced := int64(produced - b.lastProduced)
	deltaConsumed := int64(consumed - b.lastConsumed)
	b.lastProduced, b.lastConsumed = produced, consumed

	current += deltaProduced - deltaConsumed

	cfg := b.state.Config()
	if cfg.DecayWindow > 0 && cfg.DecayCoeff > 0 && now.Sub(b.lastDecay) >= cfg.DecayWindow {
		decayed := int64(float64(b.controller.Bounds().Target) * cfg.DecayCoeff)
		current -= decayed
		if current < 0 {
			current = 0
		}
		b.lastDecay = now
	}

	b.state.bufferLevel.Store(current)

	bounds := b.state.bounds()
	if bounds != b.controller.Bounds() {
		b.controller.SetTargetAndLimit(bounds)
	}

	errVal := current - int64(bounds.Target)
	if b.wasBelowTarget && errVal >= 0 {
		b.wasBelowTarget = false
	} else if !b.wasBelowTarget && errVal < 0 {
		b.wasBelowTarget = true
	}

	output := b.controller.NextControlOutput(uint64(max64(current, 0)))
	b.flowCtl.AdjustSurbFlow(output)

	if b.metrics != nil {
		labels := prometheus.Labels{"session_id": b.sessionID}
		b.metrics.CurrentBuffer.With(labels).Set(float64(current))
		b.metrics.CurrentTarget.With(labels).Set(float64(bounds.Target))
		b.metrics.TargetErrorEstimate.With(labels).Set(float64(errVal))
		b.metrics.ControlOutput.With(labels).Set(float64(output))
		b.metrics.SurbRate.With(labels).Set(float64(deltaProduced-deltaConsumed) / dt.Seconds())
	}

	return uint64(max64(current, 0))
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// balancerLevelCapacity reads
// HOPR_INTERNAL_SESSION_BALANCER_LEVEL_CAPACITY the same way
// controller.rs's start_control_loop does, defaulting to 32768.
func balancerLevelCapacity() int {
	if v, ok := os.LookupEnv("HOPR_INTERNAL_SESSION_BALANCER_LEVEL_CAPACITY"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return 32_768
}

// RunControlLoop samples b on every tick of tkr, at whatever interval
// tkr was built with; it does not clamp that interval to
// MinBalancerSamplingInterval. tkr is an injectable
// github.com/lightningnetwork/lnd/ticker.Ticker replaces a raw
// time.Ticker so tests can drive it synthetically. It
// runs until stop is closed, sending each new buffer level on the
// returned channel (a slow consumer drops updates rather than blocking
// the sampling cadence).
func (b *SurbBalancer) RunControlLoop(tkr ticker.Ticker, stop <-chan struct{}) <-chan uint64 {
	levels := make(chan uint64, balancerLevelCapacity())

	tkr.Resume()
	go func() {
		defer close(levels)
		defer tkr.Stop()

		for {
			select {
			case <-tkr.Ticks():
				level := b.Update()
				select {
				case levels <- level:
				default:
				}
			case <-stop:
				return
			}
		}
	}()

	return levels
}
