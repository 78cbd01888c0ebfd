// Package gcode parses newline-terminated ASCII G-code into typed commands.
// The parser is stateful only for unit selection (G20/G21); everything else
// on a line is self-contained.
package gcode

import (
	"fmt"
	"time"
)

// Kind identifies what a parsed command asks the machine to do.
type Kind int

const (
	KindNoOp Kind = iota // blank or comment-only line
	KindLinearMove
	KindArcMove
	KindDwell
	KindRetract
	KindRecover
	KindSetUnits
	KindHome
	KindSetPositioningMode
	KindSetExtruderMode
	KindSetPosition
	KindSetTemperature
	KindWaitTemperature
	KindReportTemperatures
	KindSetFanSpeed
	KindReportPosition
	KindEmergencyStop
	KindRearm
	KindAutoReport
	KindSetRetractParams
	KindSetRecoverParams
	KindSetFeedrateMultiplier
	KindSDList
	KindSDMount
	KindSDRelease
	KindSDSelect
	KindSDStart
	KindSDPause
	KindSDPrintTime
)

var kindNames = map[Kind]string{
	KindNoOp:                  "noop",
	KindLinearMove:            "linear-move",
	KindArcMove:               "arc-move",
	KindDwell:                 "dwell",
	KindRetract:               "retract",
	KindRecover:               "recover",
	KindSetUnits:              "set-units",
	KindHome:                  "home",
	KindSetPositioningMode:    "set-positioning-mode",
	KindSetExtruderMode:       "set-extruder-mode",
	KindSetPosition:           "set-position",
	KindSetTemperature:        "set-temperature",
	KindWaitTemperature:       "wait-temperature",
	KindReportTemperatures:    "report-temperatures",
	KindSetFanSpeed:           "set-fan-speed",
	KindReportPosition:        "report-position",
	KindEmergencyStop:         "emergency-stop",
	KindRearm:                 "rearm",
	KindAutoReport:            "auto-report",
	KindSetRetractParams:      "set-retract-params",
	KindSetRecoverParams:      "set-recover-params",
	KindSetFeedrateMultiplier: "set-feedrate-multiplier",
	KindSDList:                "sd-list",
	KindSDMount:               "sd-mount",
	KindSDRelease:             "sd-release",
	KindSDSelect:              "sd-select",
	KindSDStart:               "sd-start",
	KindSDPause:               "sd-pause",
	KindSDPrintTime:           "sd-print-time",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Channel names a thermal channel addressed by a temperature command.
type Channel int

const (
	ChannelHotend Channel = iota
	ChannelHeatbed
)

func (c Channel) String() string {
	switch c {
	case ChannelHotend:
		return "hotend"
	case ChannelHeatbed:
		return "heatbed"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// Opt is an optional numeric parameter. Presence matters: a move that
// omits an axis leaves that axis alone, which zero values cannot express.
type Opt struct {
	Value float64
	Set   bool
}

// Or returns the parameter value, or def when the parameter was absent.
func (o Opt) Or(def float64) float64 {
	if o.Set {
		return o.Value
	}
	return def
}

func opt(v float64) Opt { return Opt{Value: v, Set: true} }

// Command is one parsed input line. Immutable once produced; coordinate,
// offset and length fields are already converted to millimeters.
type Command struct {
	Kind Kind

	// Target coordinates and feedrate (linear/arc moves, G92, G28 axis
	// selection where only Set is meaningful).
	X, Y, Z, E Opt
	F          Opt

	// Arc geometry: center offsets or radius, and rotation sense.
	I, J      Opt
	R         Opt
	Clockwise bool

	// Generic numeric parameters (dwell time, fan speed, multiplier,
	// retract lengths) carried as the command's S/P/Z words.
	S, P, ZLift Opt

	// Thermal channel for temperature commands.
	Channel Channel

	// Positioning-mode commands.
	Absolute bool

	// Dwell duration (G4).
	Duration time.Duration

	// SD file name (M23).
	Filename string
}

// Motion reports whether the command moves an axis and therefore must be
// serialized through the planner queue.
func (c *Command) Motion() bool {
	switch c.Kind {
	case KindLinearMove, KindArcMove, KindRetract, KindRecover, KindHome,
		KindSetPosition, KindSetPositioningMode, KindSetExtruderMode,
		KindSetRetractParams, KindSetRecoverParams, KindSetFeedrateMultiplier:
		return true
	}
	return false
}

// ParseError reports a rejected input line. Recoverable: the line is
// skipped and parsing continues with the next one.
type ParseError struct {
	Line   string
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("gcode: %s at %q in line %q", e.Reason, e.Token, e.Line)
	}
	return fmt.Sprintf("gcode: %s in line %q", e.Reason, e.Line)
}
