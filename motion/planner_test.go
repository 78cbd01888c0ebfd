package motion

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"printd/core/sim"
	"printd/gcode"
)

type plannerFixture struct {
	planner  *Planner
	steps    [NumAxes]*sim.Pin
	endstops [NumAxes]*sim.Endstop
}

func newPlannerFixture(cfg *Config) *plannerFixture {
	f := &plannerFixture{}
	clock := sim.NewClock()
	var drivers [NumAxes]*Driver
	for a := AxisX; a < NumAxes; a++ {
		f.steps[a] = sim.NewPin()
		f.endstops[a] = sim.NewEndstop()
		var endstop *sim.Endstop
		if a != AxisE {
			endstop = f.endstops[a]
		}
		if endstop != nil {
			drivers[a] = NewDriver(a, &cfg.Axes[a], f.steps[a], sim.NewPin(), endstop, clock)
		} else {
			drivers[a] = NewDriver(a, &cfg.Axes[a], f.steps[a], sim.NewPin(), nil, clock)
		}
	}
	f.planner = NewPlanner(cfg, drivers, zerolog.Nop())
	return f
}

func mustParse(t *testing.T, line string) *gcode.Command {
	t.Helper()
	cmd, err := gcode.NewParser().ParseLine(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return cmd
}

func (f *plannerFixture) exec(t *testing.T, line string) {
	t.Helper()
	if err := f.planner.Execute(context.Background(), mustParse(t, line)); err != nil {
		t.Fatalf("execute %q: %v", line, err)
	}
}

func TestPlannerLinearMove(t *testing.T) {
	f := newPlannerFixture(planTestConfig())
	f.exec(t, "G1 X10 F1000")

	st := f.planner.Snapshot()
	if st.Pos[AxisX] != 10 {
		t.Errorf("x = %v, want 10", st.Pos[AxisX])
	}
	if st.Feedrate != 1000 {
		t.Errorf("feedrate = %v, want 1000 persisted from F word", st.Feedrate)
	}
	if got := f.steps[AxisX].Pulses(); got != 63 {
		t.Errorf("x pulses = %d, want 63", got)
	}
}

func TestPlannerBoundsRejectionIdempotent(t *testing.T) {
	f := newPlannerFixture(planTestConfig())
	cmd := mustParse(t, "G1 X1000")

	for i := 0; i < 3; i++ {
		err := f.planner.Execute(context.Background(), cmd)
		var bv *BoundsViolationError
		if !errors.As(err, &bv) {
			t.Fatalf("attempt %d: error = %v, want BoundsViolationError", i, err)
		}
	}
	st := f.planner.Snapshot()
	if st.Pos[AxisX] != 0 {
		t.Errorf("x = %v after rejections, want 0", st.Pos[AxisX])
	}
	if f.steps[AxisX].Pulses() != 0 {
		t.Errorf("pulses emitted for a rejected move: %d", f.steps[AxisX].Pulses())
	}
}

func TestPlannerRelativeRoundTrip(t *testing.T) {
	f := newPlannerFixture(planTestConfig())
	f.exec(t, "G92 X25")
	f.exec(t, "G91")
	f.exec(t, "G1 X0 Y0")

	st := f.planner.Snapshot()
	if st.Pos[AxisX] != 25 {
		t.Errorf("x = %v after zero relative move, want 25", st.Pos[AxisX])
	}
}

func TestPlannerExtruderModeIndependent(t *testing.T) {
	f := newPlannerFixture(planTestConfig())
	f.exec(t, "G91") // relative linear axes
	f.exec(t, "G92 E10")
	f.exec(t, "G1 E4.8") // extruder still absolute: moves to 4.8, not 14.8

	st := f.planner.Snapshot()
	if st.Pos[AxisE] != 4.8 {
		t.Errorf("e = %v, want 4.8 (absolute extruder mode unaffected by G91)", st.Pos[AxisE])
	}

	f.exec(t, "M83")
	f.exec(t, "G1 E1.6")
	st = f.planner.Snapshot()
	if st.Pos[AxisE] != 6.4 {
		t.Errorf("e = %v, want 6.4 after relative extrude", st.Pos[AxisE])
	}
}

func TestPlannerFeedrateMultiplier(t *testing.T) {
	cfg := planTestConfig()
	f := newPlannerFixture(cfg)
	f.exec(t, "M220 S50")

	st := f.planner.Snapshot()
	if st.Multiplier != 0.5 {
		t.Errorf("multiplier = %v, want 0.5", st.Multiplier)
	}
}

func TestPlannerHome(t *testing.T) {
	cfg := planTestConfig()
	cfg.Axes[AxisX].HomeOffset = -100
	f := newPlannerFixture(cfg)
	f.exec(t, "G1 X10 Y10 F600")

	f.endstops[AxisX].AssertAfter(30)
	f.endstops[AxisY].AssertAfter(30)
	f.endstops[AxisZ].Assert()
	f.exec(t, "G28")

	st := f.planner.Snapshot()
	if st.Pos[AxisX] != -100 {
		t.Errorf("x = %v after homing, want home offset -100", st.Pos[AxisX])
	}
	if st.Pos[AxisY] != 0 || st.Pos[AxisZ] != 0 {
		t.Errorf("y/z = %v/%v, want 0/0", st.Pos[AxisY], st.Pos[AxisZ])
	}
	for _, a := range []Axis{AxisX, AxisY, AxisZ} {
		if !st.Homed[a] {
			t.Errorf("%s not marked homed", a)
		}
	}
}

func TestPlannerHomeFailureMarksUnhomed(t *testing.T) {
	cfg := planTestConfig()
	cfg.Axes[AxisY].HomingBudget = 10
	f := newPlannerFixture(cfg)

	f.endstops[AxisX].Assert()
	f.endstops[AxisZ].Assert()
	err := f.planner.Execute(context.Background(), mustParse(t, "G28"))
	var hf *HomingFailureError
	if !errors.As(err, &hf) {
		t.Fatalf("error = %v, want HomingFailureError", err)
	}
	st := f.planner.Snapshot()
	if st.Homed[AxisY] {
		t.Error("y marked homed after budget exhaustion")
	}
	// The other axes still homed despite the failure.
	if !st.Homed[AxisX] || !st.Homed[AxisZ] {
		t.Error("x/z homing lost to the y failure")
	}
}

func TestPlannerRetractRecover(t *testing.T) {
	cfg := planTestConfig()
	cfg.Retract = RetractConfig{Length: 2, Feedrate: 2400, ZLift: 0.5}
	cfg.Recover = RecoverConfig{ExtraLength: 0.5, Feedrate: 2400}
	f := newPlannerFixture(cfg)

	f.exec(t, "G10")
	st := f.planner.Snapshot()
	if st.Pos[AxisE] != -2 || st.Pos[AxisZ] != 0.5 {
		t.Fatalf("after retract e=%v z=%v, want -2/0.5", st.Pos[AxisE], st.Pos[AxisZ])
	}
	if !st.Retracted {
		t.Fatal("retracted flag not set")
	}

	// A second retract is a no-op.
	f.exec(t, "G10")
	st = f.planner.Snapshot()
	if st.Pos[AxisE] != -2 {
		t.Fatalf("double retract moved e to %v", st.Pos[AxisE])
	}

	f.exec(t, "G11")
	st = f.planner.Snapshot()
	if st.Pos[AxisE] != 0.5 || st.Pos[AxisZ] != 0 {
		t.Errorf("after recover e=%v z=%v, want 0.5/0", st.Pos[AxisE], st.Pos[AxisZ])
	}
	if st.Retracted {
		t.Error("retracted flag still set after recover")
	}
}

func TestPlannerRetractParamsUpdate(t *testing.T) {
	cfg := planTestConfig()
	cfg.Retract = RetractConfig{Length: 2, Feedrate: 2400}
	f := newPlannerFixture(cfg)

	f.exec(t, "M207 S4 Z1")
	f.exec(t, "G10")
	st := f.planner.Snapshot()
	if st.Pos[AxisE] != -4 || st.Pos[AxisZ] != 1 {
		t.Errorf("e=%v z=%v, want -4/1 after M207 update", st.Pos[AxisE], st.Pos[AxisZ])
	}
}

func TestPlannerArcMove(t *testing.T) {
	f := newPlannerFixture(planTestConfig())
	f.exec(t, "G2 X10 Y0 I5 J0 F600")

	st := f.planner.Snapshot()
	// The final chord lands exactly on the target; the committed
	// position snaps to each chord target in turn.
	if st.Pos[AxisX] != 10 || st.Pos[AxisY] != 0 {
		t.Errorf("pos = (%v, %v), want (10, 0)", st.Pos[AxisX], st.Pos[AxisY])
	}
	if f.steps[AxisY].Pulses() == 0 {
		t.Error("no y pulses for a semicircular arc")
	}
}

func TestPlannerSetPositionBounds(t *testing.T) {
	f := newPlannerFixture(planTestConfig())
	err := f.planner.Execute(context.Background(), mustParse(t, "G92 X500"))
	var bv *BoundsViolationError
	if !errors.As(err, &bv) {
		t.Fatalf("error = %v, want BoundsViolationError", err)
	}
	if st := f.planner.Snapshot(); st.Pos[AxisX] != 0 {
		t.Errorf("x = %v after rejected G92, want 0", st.Pos[AxisX])
	}
}
