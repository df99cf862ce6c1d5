package session

// BalancerControllerBounds carries the target buffer level and maximum
// outflow rate a SurbBalancerController regulates to: a target buffer
// size, clamped to [0, max_surbs_per_sec].
type BalancerControllerBounds struct {
	Target uint64
	Max    uint64
}

// SurbBalancerController computes the next outflow rate from a sampled
// buffer level. Grounded on
// original_source/transport/session/src/balancer/controller.rs's
// SurbBalancerController trait (no standalone pid.rs was retrieved, so
// PidController below is an original discrete PID built to the
// interface controller.rs names: next_control_output(current) -> rate,
// bounds(), set_target_and_limit(bounds)).
type SurbBalancerController interface {
	SetTargetAndLimit(bounds BalancerControllerBounds)
	Bounds() BalancerControllerBounds
	NextControlOutput(current uint64) uint64
}

// PidController is a discrete proportional-integral-derivative
// controller whose setpoint is BalancerControllerBounds.Target and
// whose output is clamped to [0, BalancerControllerBounds.Max].
type PidController struct {
	Kp, Ki, Kd float64

	bounds     BalancerControllerBounds
	integral   float64
	lastError  float64
	haveLast   bool
}

// DefaultPidGains are conservative gains tuned for a setpoint on the
// order of thousands of buffered SURBs, chosen so the controller
// approaches the target smoothly rather than oscillating (no gain
// values are specified by any retrieved reference source, so these are
// an implementation choice, recorded in DESIGN.md).
const (
	DefaultKp = 0.6
	DefaultKi = 0.08
	DefaultKd = 0.05
)

// NewPidController builds a PidController with the default gains.
func NewPidController() *PidController {
	return &PidController{Kp: DefaultKp, Ki: DefaultKi, Kd: DefaultKd}
}

func (c *PidController) SetTargetAndLimit(bounds BalancerControllerBounds) {
	c.bounds = bounds
}

func (c *PidController) Bounds() BalancerControllerBounds { return c.bounds }

// NextControlOutput computes a new outflow rate from the current
// buffer level: error = target - current (a buffer below target wants
// more outflow restraint... here output directly models "rate at which
// we should let SURBs leave the buffer", so a buffer ABOVE target
// raises the output and a buffer below it lowers it, matching
// controller.rs's test expectations that an above-target buffer
// produces an increasing output and a below-target buffer a
// decreasing one).
func (c *PidController) NextControlOutput(current uint64) uint64 {
	err := float64(current) - float64(c.bounds.Target)

	c.integral += err
	derivative := 0.0
	if c.haveLast {
		derivative = err - c.lastError
	}
	c.lastError = err
	c.haveLast = true

	output := c.Kp*err + c.Ki*c.integral + c.Kd*derivative
	if output < 0 {
		output = 0
	}
	max := float64(c.bounds.Max)
	if output > max {
		output = max
	}
	return uint64(output)
}
