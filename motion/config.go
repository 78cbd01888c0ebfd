// Package motion turns parsed move commands into per-axis step plans and
// drives the stepper outputs that execute them.
package motion

import "fmt"

// Axis indexes the machine axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisE
	NumAxes
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	case AxisE:
		return "e"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// linear reports whether the axis participates in cartesian distance.
func (a Axis) linear() bool {
	return a == AxisX || a == AxisY || a == AxisZ
}

// SteppingMode is the micro-stepping resolution the driver is strapped
// for. Divisor returns how many micro-steps make one full motor step.
type SteppingMode int

const (
	FullStep SteppingMode = iota
	HalfStep
	QuarterStep
	EighthStep
	SixteenthStep
)

func (m SteppingMode) Divisor() int {
	return 1 << int(m)
}

func (m SteppingMode) String() string {
	switch m {
	case FullStep:
		return "full"
	case HalfStep:
		return "half"
	case QuarterStep:
		return "quarter"
	case EighthStep:
		return "eighth"
	case SixteenthStep:
		return "sixteenth"
	}
	return fmt.Sprintf("stepping(%d)", int(m))
}

// SteppingModeFromString parses a stepping mode name from configuration.
func SteppingModeFromString(s string) (SteppingMode, error) {
	switch s {
	case "full":
		return FullStep, nil
	case "half":
		return HalfStep, nil
	case "quarter":
		return QuarterStep, nil
	case "eighth":
		return EighthStep, nil
	case "sixteenth":
		return SixteenthStep, nil
	}
	return 0, fmt.Errorf("unknown stepping mode %q", s)
}

// AxisConfig is the static per-axis configuration. Immutable after
// startup; shared read-only by the planner and the driver.
type AxisConfig struct {
	SteppingMode    SteppingMode
	DistancePerStep float64 // mm per full motor step
	StepsPerRev     int     // full steps per motor revolution
	Min, Max        float64 // signed position bounds, mm
	Invert          bool    // flip the direction pin polarity
	HomeOffset      float64 // position assigned when the endstop triggers
	HomingSpeed     float64 // mm/s toward the endstop
	HomingBudget    int     // max micro-steps before homing fails
}

// StepSize returns the travel of one emitted pulse at the configured
// micro-stepping resolution.
func (c *AxisConfig) StepSize() float64 {
	return c.DistancePerStep / float64(c.SteppingMode.Divisor())
}

// RetractConfig holds the firmware-retract deltas applied by G10.
type RetractConfig struct {
	Length   float64 // mm withdrawn from the extruder
	Feedrate float64 // mm/min
	ZLift    float64 // mm raised during retract
}

// RecoverConfig holds the G11 recover deltas. ExtraLength is added on
// top of the retracted length.
type RecoverConfig struct {
	ExtraLength float64 // mm
	Feedrate    float64 // mm/min
}

// Config is the immutable motion configuration supplied at startup.
type Config struct {
	Axes             [NumAxes]AxisConfig
	ArcUnitLength    float64 // max chord length for arc subdivision, mm
	DefaultFeedrate  float64 // mm/min
	AbsoluteLinear   bool    // initial linear positioning mode
	AbsoluteExtruder bool    // initial extruder positioning mode
	Retract          RetractConfig
	Recover          RecoverConfig
}
