package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"printd/config"
	"printd/core"
	"printd/core/sim"
	"printd/motion"
	"printd/thermal"
)

// simRig is the virtual printer the host binary drives: recording pins
// for the steppers, endstops that trip at the end of the axis travel,
// and first-order heater plants behind the ADCs so temperature commands
// actually converge.
type simRig struct {
	step    [motion.NumAxes]*sim.Pin
	dir     [motion.NumAxes]*sim.Pin
	endstop [motion.NumAxes]*sim.Endstop
	heaters []*simHeater
	fanPWM  *sim.PWM
	clock   core.Clock
	log     zerolog.Logger
}

type simHeater struct {
	name  string
	adc   *sim.ADC
	pwm   *sim.PWM
	therm *thermal.Thermistor
	temp  float64
	tau   float64 // cooling time constant, seconds
	gain  float64 // degC/s at full power
}

const simAmbient = 25.0

func newSimRig(f *config.File, clock core.Clock, log zerolog.Logger) *simRig {
	r := &simRig{
		fanPWM: sim.NewPWM(uint32(f.Fan.MaxSpeed)),
		clock:  clock,
		log:    log.With().Str("task", "sim").Logger(),
	}

	mc := f.MotionConfig()
	for a := motion.AxisX; a < motion.NumAxes; a++ {
		r.step[a] = sim.NewPin()
		r.dir[a] = sim.NewPin()
		r.endstop[a] = sim.NewEndstop()
		ac := mc.Axes[a]
		if ac.HomingSpeed > 0 {
			// The endstop trips after a full travel's worth of pulses,
			// as if the carriage started at the far end.
			travel := int((ac.Max - ac.Min) / ac.StepSize())
			r.endstop[a].AssertAfter(travel)
		}
	}

	for _, name := range []string{"hotend", "heatbed"} {
		tc := f.Thermal[name]
		h := &simHeater{
			name: name,
			adc:  sim.NewADC(0),
			pwm:  sim.NewPWM(255),
			temp: simAmbient,
			tau:  60,
			gain: (f.ThermalConfig(name).MaxTemp - simAmbient) / 55,
		}
		h.therm = thermal.NewThermistor(h.adc, tc.SeriesResistor, tc.NominalR, tc.Beta, tc.Samples, uint16(tc.ADCMax))
		h.adc.SetValue(h.therm.SampleFor(h.temp))
		r.heaters = append(r.heaters, h)
	}
	return r
}

func (r *simRig) heater(name string) *simHeater {
	for _, h := range r.heaters {
		if h.name == name {
			return h
		}
	}
	return nil
}

// Run advances the heater plants until ctx is cancelled. Each tick
// simulates one second of plant time so warm-ups finish in a reasonable
// wall-clock sitting.
func (r *simRig) Run(ctx context.Context) {
	const (
		tick = 250 * time.Millisecond
		dt   = 1.0
	)
	for {
		if err := r.clock.Sleep(ctx, tick); err != nil {
			return
		}
		for _, h := range r.heaters {
			duty := float64(h.pwm.Duty()) / float64(h.pwm.MaxDuty())
			h.temp += (simAmbient-h.temp)/h.tau*dt + h.gain*duty*dt
			h.adc.SetValue(h.therm.SampleFor(h.temp))
		}
	}
}
