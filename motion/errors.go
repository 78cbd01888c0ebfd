package motion

import "fmt"

// BoundsViolationError rejects a move whose target leaves the axis
// limits. The machine state is unchanged when it is returned.
type BoundsViolationError struct {
	Axis     Axis
	Target   float64
	Min, Max float64
}

func (e *BoundsViolationError) Error() string {
	return fmt.Sprintf("motion: %s target %.3f outside bounds [%.3f, %.3f]",
		e.Axis, e.Target, e.Min, e.Max)
}

// HomingFailureError reports an endstop that never triggered within the
// homing step budget. The axis is marked unhomed.
type HomingFailureError struct {
	Axis   Axis
	Budget int
}

func (e *HomingFailureError) Error() string {
	return fmt.Sprintf("motion: %s endstop not reached within %d steps", e.Axis, e.Budget)
}
