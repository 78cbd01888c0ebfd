package motion

import (
	"context"
	"fmt"
	"math"
	"time"

	"printd/core"
)

const (
	// pulseWidth is the high time of a step pulse. Drivers latch on the
	// rising edge; the width only needs to satisfy the driver's minimum.
	pulseWidth = 2 * time.Microsecond

	// dirSettle is the hold time after a direction change before the
	// first pulse.
	dirSettle = time.Microsecond

	// emitChunk bounds how many pulses are handed to a hardware emitter
	// at once, so cancellation is observed within one chunk's duration.
	emitChunk = 32
)

// Driver emits the pulse train for one axis. It owns the axis's step and
// direction pins; the planner guarantees at most one plan is in flight
// per axis.
type Driver struct {
	axis    Axis
	cfg     *AxisConfig
	step    core.OutputPin
	dir     core.OutputPin
	endstop core.EndstopSource
	clock   core.Clock
	emitter core.PulseEmitter
}

// NewDriver wires a driver to its axis pins. endstop may be nil for axes
// that are not homed (the extruder).
func NewDriver(axis Axis, cfg *AxisConfig, step, dir core.OutputPin, endstop core.EndstopSource, clock core.Clock) *Driver {
	return &Driver{
		axis:    axis,
		cfg:     cfg,
		step:    step,
		dir:     dir,
		endstop: endstop,
		clock:   clock,
	}
}

// UsePulseEmitter installs a hardware pulse generator (PIO or timer
// peripheral) used for plans that need no endstop gating. The bit-banged
// path remains the fallback.
func (d *Driver) UsePulseEmitter(e core.PulseEmitter) {
	d.emitter = e
}

// Run executes one step plan. It returns only after every pulse has been
// emitted, or early with ctx.Err() on cancellation. The caller commits
// the position afterward.
func (d *Driver) Run(ctx context.Context, plan StepPlan) error {
	if plan.Steps <= 0 {
		return nil
	}
	if err := d.setDirection(ctx, plan.Forward); err != nil {
		return err
	}
	if d.emitter != nil {
		if ok, err := d.emitPulses(ctx, plan); ok {
			return err
		}
	}
	interval := plan.Interval
	if interval < pulseWidth {
		interval = pulseWidth
	}
	for i := 0; i < plan.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.pulse(ctx, interval); err != nil {
			return err
		}
	}
	return nil
}

// emitPulses tries the hardware fast path. ok is false when the plan
// does not fit the emitter's counters and the caller must bit-bang.
// Pulses are handed over in bounded chunks with a cancellation check
// between them, so an emergency stop interrupts the train within one
// chunk; a halting emitter is told to drop anything still queued.
func (d *Driver) emitPulses(ctx context.Context, plan StepPlan) (ok bool, err error) {
	ticks := plan.Interval.Seconds() * float64(d.emitter.TickHz())
	if ticks < 1 || ticks > math.MaxUint32 || uint64(plan.Steps) > math.MaxUint32 {
		return false, nil
	}
	interval := uint32(ticks)
	for remaining := uint32(plan.Steps); remaining > 0; {
		if err := ctx.Err(); err != nil {
			if h, ok := d.emitter.(core.PulseHalter); ok {
				h.Halt()
			}
			return true, err
		}
		n := remaining
		if n > emitChunk {
			n = emitChunk
		}
		if err := d.emitter.EmitPulses(n, interval); err != nil {
			return true, err
		}
		remaining -= n
	}
	return true, nil
}

// Home drives the axis toward its endstop at the configured homing speed
// until the endstop asserts, bounded by the homing step budget. No pulse
// is emitted while the endstop is already asserted. On success the caller
// assigns the home offset as the axis position.
func (d *Driver) Home(ctx context.Context) error {
	if d.endstop == nil {
		return fmt.Errorf("motion: %s has no endstop", d.axis)
	}
	if d.cfg.HomingSpeed <= 0 || d.cfg.HomingBudget <= 0 {
		return fmt.Errorf("motion: %s is not configured for homing", d.axis)
	}

	// The home offset sits at the endstop end of the axis, which gives
	// the direction of travel.
	forward := d.cfg.HomeOffset > (d.cfg.Min+d.cfg.Max)/2
	if err := d.setDirection(ctx, forward); err != nil {
		return err
	}

	interval := intervalFor(d.cfg.StepSize(), d.cfg.HomingSpeed)
	if interval < pulseWidth {
		interval = pulseWidth
	}
	for i := 0; i < d.cfg.HomingBudget; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.endstop.Triggered() {
			return nil
		}
		if err := d.pulse(ctx, interval); err != nil {
			return err
		}
	}
	if d.endstop.Triggered() {
		return nil
	}
	return &HomingFailureError{Axis: d.axis, Budget: d.cfg.HomingBudget}
}

func (d *Driver) setDirection(ctx context.Context, forward bool) error {
	d.dir.Set(forward != d.cfg.Invert)
	return d.clock.Sleep(ctx, dirSettle)
}

// pulse emits one step edge pair and waits out the remaining interval.
func (d *Driver) pulse(ctx context.Context, interval time.Duration) error {
	d.step.Set(true)
	if err := d.clock.Sleep(ctx, pulseWidth); err != nil {
		d.step.Set(false)
		return err
	}
	d.step.Set(false)
	return d.clock.Sleep(ctx, interval-pulseWidth)
}
