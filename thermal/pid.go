package thermal

import "math"

// PID is a proportional-integral-derivative controller producing an
// output in [0, maxOutput]. The integral is clamped to the output range
// (anti-windup) and only committed when the output is unbounded; the
// derivative is smoothed over minDerivTime to suppress sample noise.
type PID struct {
	kp, ki, kd   float64
	maxOutput    float64
	minDerivTime float64
	integMax     float64

	prevTemp  float64
	prevTime  float64
	prevDeriv float64
	integ     float64
	primed    bool
}

// NewPID builds a controller. minDerivTime is the derivative smoothing
// window in seconds.
func NewPID(kp, ki, kd, maxOutput, minDerivTime float64) *PID {
	var integMax float64
	if ki > 0 {
		integMax = maxOutput / ki
	}
	return &PID{
		kp:           kp,
		ki:           ki,
		kd:           kd,
		maxOutput:    maxOutput,
		minDerivTime: minDerivTime,
		integMax:     integMax,
	}
}

// Update advances the controller with a measurement taken at now
// (seconds) and returns the bounded actuation output.
func (c *PID) Update(now, temp, target float64) float64 {
	if !c.primed {
		c.prevTemp = temp
		c.prevTime = now
		c.primed = true
	}
	dt := now - c.prevTime

	var deriv float64
	if dt >= c.minDerivTime {
		deriv = (temp - c.prevTemp) / dt
	} else if c.minDerivTime > 0 {
		deriv = (c.prevDeriv*(c.minDerivTime-dt) + temp - c.prevTemp) / c.minDerivTime
	}

	err := target - temp
	integ := c.integ + err*dt
	if c.integMax > 0 {
		integ = math.Max(0, math.Min(c.integMax, integ))
	}

	out := c.kp*err + c.ki*integ - c.kd*deriv
	bounded := math.Max(0, math.Min(c.maxOutput, out))

	c.prevTemp = temp
	c.prevTime = now
	c.prevDeriv = deriv
	if out == bounded {
		c.integ = integ
	}
	return bounded
}

// Reset clears the controller memory, as after a fault re-arm or a
// setpoint returning from zero.
func (c *PID) Reset() {
	c.prevTemp = 0
	c.prevTime = 0
	c.prevDeriv = 0
	c.integ = 0
	c.primed = false
}
