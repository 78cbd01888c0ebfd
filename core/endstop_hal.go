package core

// EndstopSource delivers an endstop signal across the interrupt boundary.
// Implementations must do nothing in interrupt context beyond setting the
// triggered flag and signalling Wake; all other logic runs in the stepper
// driver task, which checks the source at suspension points between pulses.
type EndstopSource interface {
	// Triggered reports whether the endstop is currently asserted.
	Triggered() bool

	// Wake returns a channel signalled on the assertion edge. The channel
	// may be closed or receive at most one value per assertion; receivers
	// must combine it with Triggered rather than counting events.
	Wake() <-chan struct{}
}
