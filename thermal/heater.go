package thermal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"printd/core"
)

// State is the interlock state of a heater channel.
type State int

const (
	Idle State = iota
	Regulating
	Fault
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Regulating:
		return "regulating"
	case Fault:
		return "fault"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ThermalFaultError reports an over-temperature or sensor fault. The
// channel stays faulted until Rearm.
type ThermalFaultError struct {
	Channel string
	Reason  string
}

func (e *ThermalFaultError) Error() string {
	return fmt.Sprintf("thermal: %s fault: %s", e.Channel, e.Reason)
}

// InvalidSetpointError rejects a target outside the interlock bounds.
type InvalidSetpointError struct {
	Channel  string
	Target   float64
	Min, Max float64
}

func (e *InvalidSetpointError) Error() string {
	return fmt.Sprintf("thermal: %s setpoint %.1f outside [%.1f, %.1f]",
		e.Channel, e.Target, e.Min, e.Max)
}

// Config is the immutable per-channel thermal configuration.
type Config struct {
	Name         string
	Kp, Ki, Kd   float64
	MinDerivTime float64       // derivative smoothing window, seconds
	SamplePeriod time.Duration // control cycle period
	MinTarget    float64       // lowest accepted nonzero setpoint, degC
	MaxTemp      float64       // hard over-temperature cutoff, degC
}

// Snapshot is a point-in-time copy of a channel's state for reports and
// diagnostics.
type Snapshot struct {
	Name     string
	State    State
	Measured float64
	Setpoint float64
	Duty     float64 // fraction of full power, 0..1
}

// Actuator is one regulated heater channel. The control loop runs on its
// own schedule; the dispatcher only writes the setpoint. All exported
// methods are safe for concurrent use.
type Actuator struct {
	cfg   Config
	therm *Thermistor
	pid   *PID
	pwm   core.PWMOutput
	clock core.Clock
	log   zerolog.Logger

	mu       sync.Mutex
	state    State
	setpoint float64
	measured float64
	duty     float64

	// observe, when set, receives the channel snapshot after every
	// control cycle along with the fault that tripped it, if any.
	observe func(Snapshot, error)
}

// SetCycleObserver installs the telemetry callback. Must be set before
// Run starts.
func (a *Actuator) SetCycleObserver(fn func(Snapshot, error)) {
	a.observe = fn
}

// NewActuator assembles a heater channel from its sensor, controller
// output and clock.
func NewActuator(cfg Config, therm *Thermistor, pwm core.PWMOutput, clock core.Clock, log zerolog.Logger) *Actuator {
	return &Actuator{
		cfg:   cfg,
		therm: therm,
		pid:   NewPID(cfg.Kp, cfg.Ki, cfg.Kd, 1, cfg.MinDerivTime),
		pwm:   pwm,
		clock: clock,
		log:   log.With().Str("task", "thermal").Str("channel", cfg.Name).Logger(),
	}
}

// SetTarget updates the channel setpoint. Zero turns regulation off.
// Nonzero targets outside the interlock bounds are rejected, and any
// target is ignored while the channel is faulted.
func (a *Actuator) SetTarget(target float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == Fault {
		return &ThermalFaultError{Channel: a.cfg.Name, Reason: "channel faulted, re-arm required"}
	}
	if target != 0 && (target < a.cfg.MinTarget || target > a.cfg.MaxTemp) {
		return &InvalidSetpointError{Channel: a.cfg.Name, Target: target, Min: a.cfg.MinTarget, Max: a.cfg.MaxTemp}
	}

	a.setpoint = target
	if target == 0 {
		if a.state == Regulating {
			a.state = Idle
			a.pid.Reset()
		}
	} else if a.state == Idle {
		a.state = Regulating
	}
	a.log.Info().Float64("target", target).Str("state", a.state.String()).Msg("setpoint updated")
	return nil
}

// Rearm clears a fault and returns the channel to Idle with the
// controller memory wiped. The setpoint stays zero; regulation resumes
// only on the next nonzero target.
func (a *Actuator) Rearm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Fault {
		return
	}
	a.state = Idle
	a.setpoint = 0
	a.pid.Reset()
	a.log.Info().Msg("channel re-armed")
}

// Snapshot returns a copy of the channel state.
func (a *Actuator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Name:     a.cfg.Name,
		State:    a.state,
		Measured: a.measured,
		Setpoint: a.setpoint,
		Duty:     a.duty,
	}
}

// RunCycle executes one sample/control/actuate cycle. The returned error
// is the fault that tripped the channel, if any; the duty write that
// disables the heater has already happened when it is returned.
func (a *Actuator) RunCycle() error {
	temp, readErr := a.therm.Read()

	a.mu.Lock()
	if readErr == nil {
		a.measured = temp
	}

	var fault *ThermalFaultError
	switch {
	case readErr != nil:
		fault = &ThermalFaultError{Channel: a.cfg.Name, Reason: readErr.Error()}
	case temp > a.cfg.MaxTemp:
		fault = &ThermalFaultError{
			Channel: a.cfg.Name,
			Reason:  fmt.Sprintf("measured %.1f above limit %.1f", temp, a.cfg.MaxTemp),
		}
	}

	if fault != nil {
		a.state = Fault
		a.setpoint = 0
		a.duty = 0
		a.mu.Unlock()
		a.applyDuty(0)
		a.log.Error().Str("reason", fault.Reason).Msg("thermal fault")
		if a.observe != nil {
			a.observe(a.Snapshot(), fault)
		}
		return fault
	}

	var duty float64
	if a.state == Regulating {
		duty = a.pid.Update(a.clock.Now().Seconds(), temp, a.setpoint)
	}
	a.duty = duty
	a.mu.Unlock()

	a.applyDuty(duty)
	if a.observe != nil {
		a.observe(a.Snapshot(), nil)
	}
	return nil
}

// Run regulates the channel until ctx is cancelled, then leaves the
// heater off.
func (a *Actuator) Run(ctx context.Context) {
	for {
		a.RunCycle()
		if err := a.clock.Sleep(ctx, a.cfg.SamplePeriod); err != nil {
			a.applyDuty(0)
			return
		}
	}
}

// Wait blocks until the measured temperature is within tol of the
// setpoint, the setpoint returns to zero, or the channel faults. Used by
// the blocking set-and-wait commands.
func (a *Actuator) Wait(ctx context.Context, tol float64) error {
	for {
		snap := a.Snapshot()
		switch {
		case snap.State == Fault:
			return &ThermalFaultError{Channel: a.cfg.Name, Reason: "faulted while waiting for temperature"}
		case snap.State == Idle:
			return nil
		case snap.Measured >= snap.Setpoint-tol && snap.Measured <= snap.Setpoint+tol:
			return nil
		}
		if err := a.clock.Sleep(ctx, a.cfg.SamplePeriod); err != nil {
			return err
		}
	}
}

func (a *Actuator) applyDuty(duty float64) {
	max := a.pwm.MaxDuty()
	if err := a.pwm.SetDutyCycle(uint32(duty * float64(max))); err != nil {
		a.log.Error().Err(err).Msg("pwm write failed")
	}
}
