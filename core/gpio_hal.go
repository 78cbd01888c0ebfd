package core

// OutputPin is the abstract digital output capability used for step,
// direction and enable signals. Platform-specific drivers (or simulations)
// implement it; components receive pins explicitly at construction and
// never touch hardware state through globals.
type OutputPin interface {
	// Set drives the pin high (true) or low (false).
	Set(high bool)
}

// InputPin is the abstract digital input capability.
type InputPin interface {
	// High reads the current pin level.
	High() bool
}

// PulseEmitter is an optional fast path for step pins. Hardware that can
// generate a whole pulse train on its own (PIO state machines, timer DMA)
// implements this in addition to OutputPin; the stepper driver uses it for
// bounded batches and falls back to bit-banging otherwise.
type PulseEmitter interface {
	// EmitPulses outputs count step pulses spaced intervalTicks apart
	// (ticks of the emitter's own clock). Blocks until the train is done.
	EmitPulses(count uint32, intervalTicks uint32) error

	// TickHz returns the emitter clock frequency in Hz.
	TickHz() uint32
}

// PulseHalter is implemented by emitters that can abandon a pulse train
// early. The stepper driver calls Halt on cancellation so an emergency
// stop does not wait for queued pulses to drain.
type PulseHalter interface {
	Halt()
}
