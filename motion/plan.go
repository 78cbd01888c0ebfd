package motion

import (
	"math"
	"time"
)

// StepPlan is the pulse train for one axis of one move. Consumed exactly
// once by a Driver; the target position is committed only after the full
// plan completes.
type StepPlan struct {
	Axis     Axis
	Steps    int           // pulse count, always >= 0
	Forward  bool          // logical direction, before polarity
	Interval time.Duration // spacing between pulses, a floor
	Target   float64       // position to commit on completion, mm
}

// stepsFor converts a displacement to a pulse count. Rounding is half
// away from zero, so a displacement of exactly half a step moves.
func stepsFor(displacement, stepSize float64) int {
	return int(math.Round(math.Abs(displacement) / stepSize))
}

// planLinear builds the per-axis plans for a straight move to target
// (absolute coordinates, mm) at speed (mm/s). Bounds are checked for
// every axis before any plan is produced, so a violation never emits a
// partial move.
func planLinear(cfg *Config, current, target [NumAxes]float64, speed float64) ([]StepPlan, error) {
	for a := AxisX; a < NumAxes; a++ {
		ac := &cfg.Axes[a]
		if target[a] < ac.Min || target[a] > ac.Max {
			return nil, &BoundsViolationError{Axis: a, Target: target[a], Min: ac.Min, Max: ac.Max}
		}
	}

	// Coordinated timing: each axis runs at the share of the commanded
	// speed proportional to its displacement, so all axes finish
	// together. The cartesian distance covers the linear axes; a pure
	// extruder move falls back to the extruder displacement.
	var sq float64
	for a := AxisX; a < NumAxes; a++ {
		if a.linear() {
			d := target[a] - current[a]
			sq += d * d
		}
	}
	distance := math.Sqrt(sq)
	if distance == 0 {
		distance = math.Abs(target[AxisE] - current[AxisE])
	}

	var plans []StepPlan
	for a := AxisX; a < NumAxes; a++ {
		ac := &cfg.Axes[a]
		delta := target[a] - current[a]
		steps := stepsFor(delta, ac.StepSize())
		if steps == 0 {
			continue
		}
		axisSpeed := speed
		if distance > 0 {
			axisSpeed = math.Abs(delta) / distance * speed
		}
		plans = append(plans, StepPlan{
			Axis:     a,
			Steps:    steps,
			Forward:  delta > 0,
			Interval: intervalFor(ac.StepSize(), axisSpeed),
			Target:   target[a],
		})
	}
	return plans, nil
}

// intervalFor derives the inter-pulse spacing from the axis share of the
// move speed.
func intervalFor(stepSize, axisSpeed float64) time.Duration {
	if axisSpeed <= 0 {
		return 0
	}
	return time.Duration(stepSize / axisSpeed * float64(time.Second))
}
