//go:build rp2040

package main

import (
	"context"
	"time"

	"machine"

	"github.com/rs/zerolog"

	"printd/core"
	"printd/diag"
	"printd/dispatch"
	"printd/host/console"
	"printd/motion"
	"printd/thermal"
)

func main() {
	// Give the USB console time to enumerate before anything logs.
	time.Sleep(2 * time.Second)

	log := diag.NewLogger("info", false)
	clock := core.NewWallClock()
	bus := diag.NewBus()
	ctx := context.Background()

	mc := boardMotionConfig()
	var drivers [motion.NumAxes]*motion.Driver
	for a := motion.AxisX; a < motion.NumAxes; a++ {
		var es core.EndstopSource
		if pin, ok := endstopPins[a]; ok {
			src, err := newEndstop(pin)
			if err != nil {
				log.Error().Err(err).Str("axis", a.String()).Msg("endstop setup failed")
			} else {
				es = src
			}
		}
		drivers[a] = motion.NewDriver(a, &mc.Axes[a], newOutPin(stepPins[a]), newOutPin(dirPins[a]), es, clock)

		if em, err := newPulseEmitter(uint8(a), stepPins[a]); err != nil {
			log.Warn().Err(err).Str("axis", a.String()).Msg("pio unavailable, bit-banging steps")
		} else {
			drivers[a].UsePulseEmitter(em)
		}
	}
	planner := motion.NewPlanner(mc, drivers, log)

	actuators := make(map[string]*thermal.Actuator, 2)
	heaters := []struct {
		name  string
		heat  machine.Pin
		sense machine.Pin
	}{
		{"hotend", hotendHeaterPin, hotendSensePin},
		{"heatbed", heatbedPin, heatbedSensePin},
	}
	for _, h := range heaters {
		pwm, err := newPWMOut(h.heat, heaterPWMPeriodNs)
		if err != nil {
			halt(log, h.name+" pwm setup failed", err)
		}
		adc, err := newThermistorADC(h.sense)
		if err != nil {
			halt(log, h.name+" thermistor setup failed", err)
		}
		therm := thermal.NewThermistor(adc, senseSeriesResistor, senseNominalR, senseBeta, senseSamples, senseADCMax)
		a := thermal.NewActuator(boardThermalConfig(h.name), therm, pwm, clock, log)
		actuators[h.name] = a
		go a.Run(ctx)
	}

	fanPWM, err := newPWMOut(fanPin, heaterPWMPeriodNs)
	if err != nil {
		halt(log, "fan pwm setup failed", err)
	}
	fan := thermal.NewFan(fanPWM, fanMaxSpeed, log)

	if chamber, err := newChamberMonitor(log); err == nil {
		go chamber.Run(ctx)
	}

	d := dispatch.New(planner, actuators["hotend"], actuators["heatbed"], fan, nil, clock, bus, log)

	c := console.New(usbStream{}, log)
	go d.RunLines(ctx, c.Lines(), c.Reply)

	log.Info().Msg("control stack running")
	c.Run(ctx)
}

// halt parks the firmware after an unrecoverable setup failure. The
// heaters have not been enabled at this point.
func halt(log zerolog.Logger, msg string, err error) {
	for {
		log.Error().Err(err).Msg(msg)
		time.Sleep(5 * time.Second)
	}
}
