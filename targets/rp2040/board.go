//go:build rp2040

package main

import (
	"time"

	"machine"

	"printd/motion"
	"printd/thermal"
)

// Pin map for the reference controller board. Step/dir pairs sit on
// consecutive pins so the wiring stays readable; heaters share PWM
// slice 0.
var (
	stepPins = [motion.NumAxes]machine.Pin{
		motion.AxisX: machine.GP2,
		motion.AxisY: machine.GP5,
		motion.AxisZ: machine.GP8,
		motion.AxisE: machine.GP11,
	}
	dirPins = [motion.NumAxes]machine.Pin{
		motion.AxisX: machine.GP3,
		motion.AxisY: machine.GP6,
		motion.AxisZ: machine.GP9,
		motion.AxisE: machine.GP12,
	}
	endstopPins = map[motion.Axis]machine.Pin{
		motion.AxisX: machine.GP4,
		motion.AxisY: machine.GP7,
		motion.AxisZ: machine.GP10,
	}
)

const (
	hotendHeaterPin = machine.GP16
	heatbedPin      = machine.GP17
	fanPin          = machine.GP18

	hotendSensePin  = machine.ADC0 // GP26
	heatbedSensePin = machine.ADC1 // GP27

	chamberSDA = machine.GP20
	chamberSCL = machine.GP21

	heaterPWMPeriodNs = 1_000_000 // 1 kHz
	fanMaxSpeed       = 255
)

func boardMotionConfig() *motion.Config {
	cfg := &motion.Config{
		ArcUnitLength:    0.5,
		DefaultFeedrate:  1200,
		AbsoluteLinear:   true,
		AbsoluteExtruder: true,
		Retract: motion.RetractConfig{
			Length:   2,
			Feedrate: 2400,
			ZLift:    0.2,
		},
		Recover: motion.RecoverConfig{
			Feedrate: 2400,
		},
	}

	xy := motion.AxisConfig{
		SteppingMode:    motion.SixteenthStep,
		DistancePerStep: 0.64, // 20T GT2 pulley, 1.8 deg motor
		StepsPerRev:     200,
		Min:             0,
		Max:             220,
		HomeOffset:      0,
		HomingSpeed:     20,
		HomingBudget:    6000,
	}
	cfg.Axes[motion.AxisX] = xy
	cfg.Axes[motion.AxisY] = xy
	cfg.Axes[motion.AxisZ] = motion.AxisConfig{
		SteppingMode:    motion.SixteenthStep,
		DistancePerStep: 0.04, // M8 leadscrew
		StepsPerRev:     200,
		Min:             0,
		Max:             240,
		HomeOffset:      0,
		HomingSpeed:     4,
		HomingBudget:    100000,
	}
	cfg.Axes[motion.AxisE] = motion.AxisConfig{
		SteppingMode:    motion.SixteenthStep,
		DistancePerStep: 0.176, // BMG-style geared extruder
		StepsPerRev:     200,
		Min:             -100000,
		Max:             100000,
	}
	return cfg
}

func boardThermalConfig(name string) thermal.Config {
	switch name {
	case "heatbed":
		return thermal.Config{
			Name:         name,
			Kp:           0.1,
			Ki:           0.004,
			Kd:           0,
			MinDerivTime: 2,
			SamplePeriod: 500 * time.Millisecond,
			MaxTemp:      120,
		}
	default:
		return thermal.Config{
			Name:         "hotend",
			Kp:           0.05,
			Ki:           0.002,
			Kd:           0.1,
			MinDerivTime: 2,
			SamplePeriod: 250 * time.Millisecond,
			MaxTemp:      260,
		}
	}
}

// Thermistor divider shared by both channels: 100k NTC, beta 3950,
// 4.7k series resistor, 12-bit conversions.
const (
	senseSeriesResistor = 4700.0
	senseNominalR       = 100000.0
	senseBeta           = 3950.0
	senseSamples        = 4
	senseADCMax         = 4095
)
