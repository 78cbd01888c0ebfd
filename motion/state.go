package motion

// MachineState is the commanded machine state. It is owned by the
// planner task; other tasks see it only through Snapshot copies.
type MachineState struct {
	Pos              [NumAxes]float64 // commanded position, mm
	Homed            [NumAxes]bool
	Feedrate         float64 // persisted feedrate, mm/min
	Multiplier       float64 // feedrate multiplier, 1.0 = 100%
	AbsoluteLinear   bool
	AbsoluteExtruder bool
	Retracted        bool // a G10 retract is pending recovery
}

// newMachineState seeds the state from configuration defaults.
func newMachineState(cfg *Config) MachineState {
	return MachineState{
		Feedrate:         cfg.DefaultFeedrate,
		Multiplier:       1,
		AbsoluteLinear:   cfg.AbsoluteLinear,
		AbsoluteExtruder: cfg.AbsoluteExtruder,
	}
}

// speed converts the persisted feedrate to mm/s with the multiplier
// applied. An explicit F word bypasses the multiplier.
func (s *MachineState) speed(explicit float64, hasExplicit bool) float64 {
	if hasExplicit {
		return explicit / 60
	}
	return s.Feedrate * s.Multiplier / 60
}
