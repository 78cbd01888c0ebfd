package motion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"printd/gcode"
)

// Planner owns the machine state and converts motion commands into step
// plans executed by the axis drivers. Execute is called from a single
// dispatcher-fed goroutine; Snapshot may be called from anywhere.
type Planner struct {
	cfg     *Config
	drivers [NumAxes]*Driver
	log     zerolog.Logger

	mu      sync.Mutex
	state   MachineState
	retract RetractConfig
	recover RecoverConfig

	// observeSteps, when set, receives the pulse count of every plan
	// that ran to completion.
	observeSteps func(Axis, int)
}

// SetStepObserver installs a callback for committed step counts, used by
// the metrics layer. Must be set before any command executes.
func (p *Planner) SetStepObserver(fn func(Axis, int)) {
	p.observeSteps = fn
}

// NewPlanner builds a planner over the axis drivers. Drivers for unused
// axes may be nil; moves on such axes are rejected by configuration
// (zero-width bounds) rather than here.
func NewPlanner(cfg *Config, drivers [NumAxes]*Driver, log zerolog.Logger) *Planner {
	return &Planner{
		cfg:     cfg,
		drivers: drivers,
		log:     log.With().Str("task", "planner").Logger(),
		state:   newMachineState(cfg),
		retract: cfg.Retract,
		recover: cfg.Recover,
	}
}

// Snapshot returns a copy of the machine state for diagnostics.
func (p *Planner) Snapshot() MachineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Execute runs one motion command to completion. Bounds and homing
// errors are returned for reporting; the machine state is unchanged for
// rejected moves.
func (p *Planner) Execute(ctx context.Context, cmd *gcode.Command) error {
	switch cmd.Kind {
	case gcode.KindLinearMove:
		return p.linearMove(ctx, cmd)
	case gcode.KindArcMove:
		return p.arcMove(ctx, cmd)
	case gcode.KindRetract:
		return p.retractMove(ctx)
	case gcode.KindRecover:
		return p.recoverMove(ctx)
	case gcode.KindHome:
		return p.home(ctx, cmd)
	case gcode.KindSetPosition:
		return p.setPosition(cmd)
	case gcode.KindSetPositioningMode:
		p.mu.Lock()
		p.state.AbsoluteLinear = cmd.Absolute
		p.mu.Unlock()
		return nil
	case gcode.KindSetExtruderMode:
		p.mu.Lock()
		p.state.AbsoluteExtruder = cmd.Absolute
		p.mu.Unlock()
		return nil
	case gcode.KindSetRetractParams:
		p.mu.Lock()
		p.retract.Length = cmd.S.Or(p.retract.Length)
		p.retract.Feedrate = cmd.F.Or(p.retract.Feedrate)
		p.retract.ZLift = cmd.ZLift.Or(p.retract.ZLift)
		p.mu.Unlock()
		return nil
	case gcode.KindSetRecoverParams:
		p.mu.Lock()
		p.recover.ExtraLength = cmd.S.Or(p.recover.ExtraLength)
		p.recover.Feedrate = cmd.F.Or(p.recover.Feedrate)
		p.mu.Unlock()
		return nil
	case gcode.KindSetFeedrateMultiplier:
		p.mu.Lock()
		p.state.Multiplier = cmd.S.Value / 100
		p.mu.Unlock()
		return nil
	}
	return nil
}

// resolveTarget maps the command's axis words onto absolute coordinates
// using the active positioning modes. Absent axes keep their position.
func (p *Planner) resolveTarget(cmd *gcode.Command) [NumAxes]float64 {
	target := p.state.Pos
	resolve := func(a Axis, o gcode.Opt, absolute bool) {
		if !o.Set {
			return
		}
		if absolute {
			target[a] = o.Value
		} else {
			target[a] = p.state.Pos[a] + o.Value
		}
	}
	resolve(AxisX, cmd.X, p.state.AbsoluteLinear)
	resolve(AxisY, cmd.Y, p.state.AbsoluteLinear)
	resolve(AxisZ, cmd.Z, p.state.AbsoluteLinear)
	resolve(AxisE, cmd.E, p.state.AbsoluteExtruder)
	return target
}

func (p *Planner) linearMove(ctx context.Context, cmd *gcode.Command) error {
	p.mu.Lock()
	target := p.resolveTarget(cmd)
	speed := p.state.speed(cmd.F.Value, cmd.F.Set)
	if cmd.F.Set {
		p.state.Feedrate = cmd.F.Value
	}
	p.mu.Unlock()
	return p.moveTo(ctx, target, speed)
}

func (p *Planner) arcMove(ctx context.Context, cmd *gcode.Command) error {
	p.mu.Lock()
	start := p.state.Pos
	target := p.resolveTarget(cmd)
	speed := p.state.speed(cmd.F.Value, cmd.F.Set)
	if cmd.F.Set {
		p.state.Feedrate = cmd.F.Value
	}
	p.mu.Unlock()

	points, err := subdivideArc(
		start[AxisX], start[AxisY], target[AxisX], target[AxisY],
		cmd.I.Or(0), cmd.J.Or(0), cmd.R.Or(0), cmd.R.Set, cmd.Clockwise,
		p.cfg.ArcUnitLength,
	)
	if err != nil {
		return err
	}

	// Z and E advance linearly across the chords.
	n := float64(len(points))
	for s, pt := range points {
		frac := float64(s+1) / n
		seg := [NumAxes]float64{
			AxisX: pt.x,
			AxisY: pt.y,
			AxisZ: start[AxisZ] + (target[AxisZ]-start[AxisZ])*frac,
			AxisE: start[AxisE] + (target[AxisE]-start[AxisE])*frac,
		}
		if err := p.moveTo(ctx, seg, speed); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) retractMove(ctx context.Context) error {
	p.mu.Lock()
	if p.state.Retracted || p.retract.Length == 0 {
		p.mu.Unlock()
		return nil
	}
	target := p.state.Pos
	target[AxisE] -= p.retract.Length
	target[AxisZ] += p.retract.ZLift
	speed := p.retract.Feedrate / 60
	p.mu.Unlock()

	if err := p.moveTo(ctx, target, speed); err != nil {
		return err
	}
	p.mu.Lock()
	p.state.Retracted = true
	p.mu.Unlock()
	return nil
}

func (p *Planner) recoverMove(ctx context.Context) error {
	p.mu.Lock()
	if !p.state.Retracted {
		p.mu.Unlock()
		return nil
	}
	target := p.state.Pos
	target[AxisE] += p.retract.Length + p.recover.ExtraLength
	target[AxisZ] -= p.retract.ZLift
	speed := p.recover.Feedrate / 60
	if speed <= 0 {
		speed = p.retract.Feedrate / 60
	}
	p.mu.Unlock()

	if err := p.moveTo(ctx, target, speed); err != nil {
		return err
	}
	p.mu.Lock()
	p.state.Retracted = false
	p.mu.Unlock()
	return nil
}

// moveTo executes one straight move to absolute target coordinates. The
// per-axis positions commit only for plans that ran to completion; an
// interrupted axis is marked unhomed since its true position is unknown.
func (p *Planner) moveTo(ctx context.Context, target [NumAxes]float64, speed float64) error {
	p.mu.Lock()
	current := p.state.Pos
	p.mu.Unlock()

	plans, err := planLinear(p.cfg, current, target, speed)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		return nil
	}

	errs := make([]error, len(plans))
	var wg sync.WaitGroup
	for i, plan := range plans {
		d := p.drivers[plan.Axis]
		if d == nil {
			errs[i] = fmt.Errorf("motion: no driver for %s", plan.Axis)
			continue
		}
		wg.Add(1)
		go func(i int, plan StepPlan) {
			defer wg.Done()
			errs[i] = d.Run(ctx, plan)
		}(i, plan)
	}
	wg.Wait()

	p.mu.Lock()
	for i, plan := range plans {
		if errs[i] == nil {
			p.state.Pos[plan.Axis] = plan.Target
		} else {
			p.state.Homed[plan.Axis] = false
		}
	}
	p.mu.Unlock()

	if p.observeSteps != nil {
		for i, plan := range plans {
			if errs[i] == nil {
				p.observeSteps(plan.Axis, plan.Steps)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.log.Debug().
		Float64("x", target[AxisX]).Float64("y", target[AxisY]).
		Float64("z", target[AxisZ]).Float64("e", target[AxisE]).
		Float64("speed", speed).Msg("move complete")
	return nil
}

func (p *Planner) home(ctx context.Context, cmd *gcode.Command) error {
	axes := []Axis{AxisX, AxisY, AxisZ}
	if cmd.X.Set || cmd.Y.Set || cmd.Z.Set {
		axes = axes[:0]
		if cmd.X.Set {
			axes = append(axes, AxisX)
		}
		if cmd.Y.Set {
			axes = append(axes, AxisY)
		}
		if cmd.Z.Set {
			axes = append(axes, AxisZ)
		}
	}

	// Axes home one at a time; a failed axis is reported but does not
	// stop the remaining ones.
	var errs []error
	for _, a := range axes {
		d := p.drivers[a]
		if d == nil {
			continue
		}
		err := d.Home(ctx)
		p.mu.Lock()
		if err != nil {
			p.state.Homed[a] = false
		} else {
			p.state.Pos[a] = p.cfg.Axes[a].HomeOffset
			p.state.Homed[a] = true
		}
		p.mu.Unlock()
		if err != nil {
			p.log.Warn().Str("axis", a.String()).Err(err).Msg("homing failed")
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		} else {
			p.log.Info().Str("axis", a.String()).Msg("axis homed")
		}
	}
	return errors.Join(errs...)
}

// setPosition implements G92: it redefines the coordinates of the
// present axis words without motion.
func (p *Planner) setPosition(cmd *gcode.Command) error {
	words := []struct {
		a Axis
		o gcode.Opt
	}{{AxisX, cmd.X}, {AxisY, cmd.Y}, {AxisZ, cmd.Z}, {AxisE, cmd.E}}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range words {
		if !w.o.Set {
			continue
		}
		ac := &p.cfg.Axes[w.a]
		if w.o.Value < ac.Min || w.o.Value > ac.Max {
			return &BoundsViolationError{Axis: w.a, Target: w.o.Value, Min: ac.Min, Max: ac.Max}
		}
	}
	for _, w := range words {
		if w.o.Set {
			p.state.Pos[w.a] = w.o.Value
		}
	}
	return nil
}
