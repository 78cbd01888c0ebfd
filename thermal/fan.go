package thermal

import (
	"sync"

	"github.com/rs/zerolog"

	"printd/core"
)

// Fan is the open-loop part-cooling fan: a requested speed maps linearly
// onto the PWM duty range. Out-of-range requests clamp instead of
// erroring, and duty changes apply synchronously.
type Fan struct {
	pwm      core.PWMOutput
	maxSpeed float64
	log      zerolog.Logger

	mu    sync.Mutex
	speed float64
}

// NewFan binds the fan to its PWM channel. maxSpeed is the value of a
// full-speed request (255 for the usual M106 scale).
func NewFan(pwm core.PWMOutput, maxSpeed float64, log zerolog.Logger) *Fan {
	return &Fan{
		pwm:      pwm,
		maxSpeed: maxSpeed,
		log:      log.With().Str("task", "fan").Logger(),
	}
}

// Set requests a fan speed in [0, maxSpeed], clamping anything outside.
func (f *Fan) Set(speed float64) error {
	if speed < 0 {
		speed = 0
	}
	if speed > f.maxSpeed {
		speed = f.maxSpeed
	}

	duty := uint32(speed / f.maxSpeed * float64(f.pwm.MaxDuty()))
	if err := f.pwm.SetDutyCycle(duty); err != nil {
		return err
	}
	f.mu.Lock()
	f.speed = speed
	f.mu.Unlock()
	f.log.Debug().Float64("speed", speed).Uint32("duty", duty).Msg("fan speed set")
	return nil
}

// Off stops the fan.
func (f *Fan) Off() error {
	return f.Set(0)
}

// Speed returns the last applied speed.
func (f *Fan) Speed() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speed
}
