// Package dispatch routes parsed commands to the motion planner, thermal
// actuators, fan and SD controller, preserving per-stream ordering.
// Synchronous commands (dwell, temperature waits) block the stream;
// thermal regulation and the fan never wait on it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"printd/core"
	"printd/diag"
	"printd/gcode"
	"printd/motion"
	"printd/thermal"
)

// waitTolerance is the settle band for the blocking set-and-wait
// temperature commands.
const waitTolerance = 2.0

// SDControl is the virtual SD card surface driven by M20-M31.
type SDControl interface {
	List() ([]string, error)
	Mount() error
	Release() error
	Select(name string) error
	Start() error
	Pause() error
	PrintTime() (time.Duration, bool)
}

// Dispatcher is the single entry point for command streams. Commands
// from concurrent streams (console and an SD print) interleave at
// command granularity: each Dispatch call runs one command to completion
// under a lock, which is what serializes motion. The emergency stop
// bypasses that lock so it can preempt a plan in flight.
type Dispatcher struct {
	planner *motion.Planner
	hotend  *thermal.Actuator
	heatbed *thermal.Actuator
	fan     *thermal.Fan
	sd      SDControl
	clock   core.Clock
	bus     *diag.Bus
	log     zerolog.Logger

	execMu     sync.Mutex
	mu         sync.Mutex
	estop      chan struct{}
	reportStop context.CancelFunc
}

// New wires the dispatcher to its actuators. sd may be nil when no SD
// source is configured.
func New(planner *motion.Planner, hotend, heatbed *thermal.Actuator, fan *thermal.Fan, sd SDControl, clock core.Clock, bus *diag.Bus, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		planner: planner,
		hotend:  hotend,
		heatbed: heatbed,
		fan:     fan,
		sd:      sd,
		clock:   clock,
		bus:     bus,
		log:     log.With().Str("task", "dispatch").Logger(),
	}
}

// RunLines parses and dispatches a line stream until the channel closes
// or ctx is cancelled. Parse and execution errors are reported and the
// stream continues; only cancellation stops it. reply receives the
// textual responses of the report commands and may be nil.
func (d *Dispatcher) RunLines(ctx context.Context, lines <-chan string, reply func(string)) {
	parser := gcode.NewParser()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			d.DispatchLine(ctx, parser, line, reply)
		}
	}
}

// DispatchLine parses and executes one line, reporting the outcome on
// the stream. The returned error mirrors what was reported; callers that
// only care about stream health may ignore it.
func (d *Dispatcher) DispatchLine(ctx context.Context, parser *gcode.Parser, line string, reply func(string)) error {
	cmd, err := parser.ParseLine(line)
	if err != nil {
		d.reject("parse", err)
		d.say(reply, "error: "+err.Error())
		return err
	}
	if err := d.Dispatch(ctx, cmd, reply); err != nil {
		d.say(reply, "error: "+err.Error())
		return err
	}
	if cmd.Kind != gcode.KindNoOp {
		d.say(reply, "ok")
	}
	return nil
}

// Dispatch executes one command. Rejections come back as errors after
// being counted and published; the caller decides what to tell the
// stream.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *gcode.Command, reply func(string)) error {
	// The emergency stop preempts everything, including a plan already
	// in flight on another stream, so it must not queue behind the
	// execution lock.
	if cmd.Kind == gcode.KindEmergencyStop {
		d.EmergencyStop()
		return nil
	}

	d.execMu.Lock()
	defer d.execMu.Unlock()

	// A stream cancelled while queued behind the lock (a paused SD
	// print, a closed console) must not start its command.
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	switch {
	case cmd.Kind == gcode.KindNoOp || cmd.Kind == gcode.KindSetUnits:
		return nil

	case cmd.Motion():
		mctx, cancel := d.motionCtx(ctx)
		err = d.planner.Execute(mctx, cmd)
		cancel()

	case cmd.Kind == gcode.KindDwell:
		err = d.clock.Sleep(ctx, cmd.Duration)

	case cmd.Kind == gcode.KindSetTemperature:
		err = d.actuator(cmd.Channel).SetTarget(cmd.S.Value)

	case cmd.Kind == gcode.KindWaitTemperature:
		a := d.actuator(cmd.Channel)
		if err = a.SetTarget(cmd.S.Value); err == nil {
			err = a.Wait(ctx, waitTolerance)
		}

	case cmd.Kind == gcode.KindRearm:
		d.hotend.Rearm()
		d.heatbed.Rearm()
		d.log.Info().Msg("thermal channels re-armed")

	case cmd.Kind == gcode.KindReportTemperatures:
		d.say(reply, d.temperatureReport())

	case cmd.Kind == gcode.KindReportPosition:
		d.say(reply, d.positionReport())

	case cmd.Kind == gcode.KindSetFanSpeed:
		// Only the part-cooling fan at index 0 exists.
		if cmd.P.Set && cmd.P.Value != 0 {
			err = fmt.Errorf("dispatch: no fan at index %d", int(cmd.P.Value))
			break
		}
		if err = d.fan.Set(cmd.S.Value); err == nil {
			diag.SetFanSpeed(d.fan.Speed())
		}

	case cmd.Kind == gcode.KindAutoReport:
		d.setAutoReport(ctx, time.Duration(cmd.S.Value)*time.Second, reply)

	default:
		err = d.sdCommand(cmd, reply)
	}

	if err != nil {
		d.reject(cmd.Kind.String(), err)
		return err
	}
	diag.CountCommand(cmd.Kind.String(), true)
	return nil
}

// EmergencyStop halts motion in flight, turns both heaters and the fan
// off, and pauses any SD print. Axis positions are untrusted afterward;
// the planner marks interrupted axes unhomed.
func (d *Dispatcher) EmergencyStop() {
	d.mu.Lock()
	close(d.estopChanLocked())
	d.estop = nil
	d.mu.Unlock()

	d.hotend.SetTarget(0)
	d.heatbed.SetTarget(0)
	d.fan.Off()
	if d.sd != nil {
		d.sd.Pause()
	}

	d.log.Error().Msg("emergency stop")
	d.bus.Publish(diag.Event{Kind: diag.EventEmergencyStop, Source: "dispatch"})
}

// Status implements diag.StatusSource.
func (d *Dispatcher) Status() diag.Status {
	ms := d.planner.Snapshot()
	st := diag.Status{
		Position: map[string]float64{
			"x": ms.Pos[motion.AxisX], "y": ms.Pos[motion.AxisY],
			"z": ms.Pos[motion.AxisZ], "e": ms.Pos[motion.AxisE],
		},
		Homed: map[string]bool{
			"x": ms.Homed[motion.AxisX], "y": ms.Homed[motion.AxisY],
			"z": ms.Homed[motion.AxisZ],
		},
		Feedrate:   ms.Feedrate,
		Multiplier: ms.Multiplier,
		FanSpeed:   d.fan.Speed(),
	}
	for _, a := range []*thermal.Actuator{d.hotend, d.heatbed} {
		snap := a.Snapshot()
		st.Channels = append(st.Channels, diag.ChannelStatus{
			Name:     snap.Name,
			State:    snap.State.String(),
			Measured: snap.Measured,
			Setpoint: snap.Setpoint,
			Duty:     snap.Duty,
		})
	}
	if d.sd != nil {
		_, st.Printing = d.sd.PrintTime()
	}
	return st
}

func (d *Dispatcher) actuator(ch gcode.Channel) *thermal.Actuator {
	if ch == gcode.ChannelHeatbed {
		return d.heatbed
	}
	return d.hotend
}

func (d *Dispatcher) sdCommand(cmd *gcode.Command, reply func(string)) error {
	if d.sd == nil {
		return fmt.Errorf("dispatch: no sd card configured")
	}
	switch cmd.Kind {
	case gcode.KindSDList:
		names, err := d.sd.List()
		if err != nil {
			return err
		}
		d.say(reply, "Begin file list")
		for _, name := range names {
			d.say(reply, name)
		}
		d.say(reply, "End file list")
		return nil
	case gcode.KindSDMount:
		return d.sd.Mount()
	case gcode.KindSDRelease:
		return d.sd.Release()
	case gcode.KindSDSelect:
		return d.sd.Select(cmd.Filename)
	case gcode.KindSDStart:
		return d.sd.Start()
	case gcode.KindSDPause:
		return d.sd.Pause()
	case gcode.KindSDPrintTime:
		elapsed, printing := d.sd.PrintTime()
		if printing {
			d.say(reply, fmt.Sprintf("Print time: %s", elapsed.Round(time.Second)))
		} else {
			d.say(reply, "Not printing")
		}
		return nil
	}
	return fmt.Errorf("dispatch: unhandled command %s", cmd.Kind)
}

func (d *Dispatcher) temperatureReport() string {
	h := d.hotend.Snapshot()
	b := d.heatbed.Snapshot()
	return fmt.Sprintf("ok T:%.1f /%.1f B:%.1f /%.1f", h.Measured, h.Setpoint, b.Measured, b.Setpoint)
}

func (d *Dispatcher) positionReport() string {
	ms := d.planner.Snapshot()
	return fmt.Sprintf("X:%.2f Y:%.2f Z:%.2f E:%.2f",
		ms.Pos[motion.AxisX], ms.Pos[motion.AxisY], ms.Pos[motion.AxisZ], ms.Pos[motion.AxisE])
}

// setAutoReport starts or stops the periodic temperature report (M155).
func (d *Dispatcher) setAutoReport(ctx context.Context, interval time.Duration, reply func(string)) {
	d.mu.Lock()
	if d.reportStop != nil {
		d.reportStop()
		d.reportStop = nil
	}
	if interval <= 0 || reply == nil {
		d.mu.Unlock()
		return
	}
	rctx, cancel := context.WithCancel(ctx)
	d.reportStop = cancel
	d.mu.Unlock()

	go func() {
		for {
			if err := d.clock.Sleep(rctx, interval); err != nil {
				return
			}
			reply(d.temperatureReport())
		}
	}()
}

// motionCtx derives a context that is cancelled by an emergency stop in
// addition to the stream's own cancellation.
func (d *Dispatcher) motionCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	d.mu.Lock()
	ch := d.estopChanLocked()
	d.mu.Unlock()

	mctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-mctx.Done():
		}
	}()
	return mctx, cancel
}

func (d *Dispatcher) estopChanLocked() chan struct{} {
	if d.estop == nil {
		d.estop = make(chan struct{})
	}
	return d.estop
}

func (d *Dispatcher) reject(kind string, err error) {
	diag.CountCommand(kind, false)
	d.log.Warn().Str("command", kind).Err(err).Msg("command rejected")
	d.bus.Publish(diag.Event{Kind: diag.EventCommandRejected, Source: kind, Detail: err.Error()})

	var hf *motion.HomingFailureError
	if errors.As(err, &hf) {
		d.bus.Publish(diag.Event{Kind: diag.EventHomingFailure, Source: hf.Axis.String(), Detail: err.Error()})
	}
}

func (d *Dispatcher) say(reply func(string), line string) {
	if reply != nil {
		reply(line)
	}
}
