// Package config loads and validates the printer configuration. The
// encoding is picked by file extension (TOML or YAML); validation is
// strict, rejecting startup on missing or out-of-range fields instead of
// defaulting silently.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"printd/motion"
	"printd/thermal"
)

// Axis is one axis section. Min, Max and HomeOffset are pointers because
// zero is a legal value and absence must be detectable.
type Axis struct {
	SteppingMode    string   `toml:"stepping_mode" yaml:"stepping_mode"`
	DistancePerStep float64  `toml:"distance_per_step" yaml:"distance_per_step"`
	StepsPerRev     int      `toml:"steps_per_rev" yaml:"steps_per_rev"`
	Min             *float64 `toml:"min" yaml:"min"`
	Max             *float64 `toml:"max" yaml:"max"`
	Invert          bool     `toml:"invert" yaml:"invert"`
	HomeOffset      *float64 `toml:"home_offset" yaml:"home_offset"`
	HomingSpeed     float64  `toml:"homing_speed" yaml:"homing_speed"`
	HomingBudget    int      `toml:"homing_budget" yaml:"homing_budget"`
	StepPin         string   `toml:"step_pin" yaml:"step_pin"`
	DirPin          string   `toml:"dir_pin" yaml:"dir_pin"`
	EndstopPin      string   `toml:"endstop_pin" yaml:"endstop_pin"`
}

// Motion is the global motion section.
type Motion struct {
	ArcUnitLength    float64 `toml:"arc_unit_length" yaml:"arc_unit_length"`
	DefaultFeedrate  float64 `toml:"default_feedrate" yaml:"default_feedrate"`
	PositioningMode  string  `toml:"positioning_mode" yaml:"positioning_mode"`
	ExtruderMode     string  `toml:"extruder_mode" yaml:"extruder_mode"`
	RetractLength    float64 `toml:"retract_length" yaml:"retract_length"`
	RetractFeedrate  float64 `toml:"retract_feedrate" yaml:"retract_feedrate"`
	RetractZLift     float64 `toml:"retract_z_lift" yaml:"retract_z_lift"`
	RecoverExtra     float64 `toml:"recover_extra" yaml:"recover_extra"`
	RecoverFeedrate  float64 `toml:"recover_feedrate" yaml:"recover_feedrate"`
}

// Thermal is one heater channel section.
type Thermal struct {
	Kp             float64  `toml:"kp" yaml:"kp"`
	Ki             float64  `toml:"ki" yaml:"ki"`
	Kd             float64  `toml:"kd" yaml:"kd"`
	MinDerivTime   float64  `toml:"min_deriv_time" yaml:"min_deriv_time"`
	SamplePeriodMS int      `toml:"sample_period_ms" yaml:"sample_period_ms"`
	MinTarget      *float64 `toml:"min_target" yaml:"min_target"`
	MaxTemp        float64  `toml:"max_temp" yaml:"max_temp"`
	SeriesResistor float64  `toml:"series_resistor" yaml:"series_resistor"`
	NominalR       float64  `toml:"nominal_resistance" yaml:"nominal_resistance"`
	Beta           float64  `toml:"beta" yaml:"beta"`
	Samples        int      `toml:"samples" yaml:"samples"`
	ADCMax         int      `toml:"adc_max" yaml:"adc_max"`
	HeaterPin      string   `toml:"heater_pin" yaml:"heater_pin"`
	SensorChannel  string   `toml:"sensor_channel" yaml:"sensor_channel"`
}

// Fan is the part-cooling fan section.
type Fan struct {
	MaxSpeed float64 `toml:"max_speed" yaml:"max_speed"`
	Pin      string  `toml:"pin" yaml:"pin"`
}

// Input selects the command source.
type Input struct {
	Source string `toml:"source" yaml:"source"` // serial, sd, stdin
	Device string `toml:"device" yaml:"device"`
	Baud   int    `toml:"baud" yaml:"baud"`
	SDDir  string `toml:"sd_dir" yaml:"sd_dir"`
}

// MQTT is the optional telemetry section; an empty broker disables it.
type MQTT struct {
	Broker     string `toml:"broker" yaml:"broker"`
	ClientID   string `toml:"client_id" yaml:"client_id"`
	Topic      string `toml:"topic" yaml:"topic"`
	Username   string `toml:"username" yaml:"username"`
	Password   string `toml:"password" yaml:"password"`
	IntervalMS int    `toml:"interval_ms" yaml:"interval_ms"`
}

// Diag is the diagnostics section; an empty HTTPAddr disables the
// status server.
type Diag struct {
	HTTPAddr string `toml:"http_addr" yaml:"http_addr"`
	LogLevel string `toml:"log_level" yaml:"log_level"`
	Pretty   bool   `toml:"pretty" yaml:"pretty"`
	MQTT     MQTT   `toml:"mqtt" yaml:"mqtt"`
}

// File is the whole configuration document.
type File struct {
	Motion  Motion             `toml:"motion" yaml:"motion"`
	Axes    map[string]Axis    `toml:"axes" yaml:"axes"`
	Thermal map[string]Thermal `toml:"thermal" yaml:"thermal"`
	Fan     Fan                `toml:"fan" yaml:"fan"`
	Input   Input              `toml:"input" yaml:"input"`
	Diag    Diag               `toml:"diag" yaml:"diag"`
}

var axisNames = map[string]motion.Axis{
	"x": motion.AxisX,
	"y": motion.AxisY,
	"z": motion.AxisZ,
	"e": motion.AxisE,
}

// Load reads and validates a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var f File
	switch ext := filepath.Ext(path); ext {
	case ".toml", ".tml":
		err = toml.Unmarshal(data, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("config: unsupported extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every section. It returns the first problem found.
func (f *File) Validate() error {
	if f.Motion.ArcUnitLength <= 0 {
		return fmt.Errorf("config: motion.arc_unit_length must be positive")
	}
	if f.Motion.DefaultFeedrate <= 0 {
		return fmt.Errorf("config: motion.default_feedrate must be positive")
	}
	if err := validMode(f.Motion.PositioningMode); err != nil {
		return fmt.Errorf("config: motion.positioning_mode: %w", err)
	}
	if err := validMode(f.Motion.ExtruderMode); err != nil {
		return fmt.Errorf("config: motion.extruder_mode: %w", err)
	}

	for name := range axisNames {
		ax, ok := f.Axes[name]
		if !ok {
			return fmt.Errorf("config: axes.%s missing", name)
		}
		if err := ax.validate(); err != nil {
			return fmt.Errorf("config: axes.%s: %w", name, err)
		}
	}
	for name := range f.Axes {
		if _, ok := axisNames[name]; !ok {
			return fmt.Errorf("config: unknown axis %q", name)
		}
	}

	for _, name := range []string{"hotend", "heatbed"} {
		th, ok := f.Thermal[name]
		if !ok {
			return fmt.Errorf("config: thermal.%s missing", name)
		}
		if err := th.validate(); err != nil {
			return fmt.Errorf("config: thermal.%s: %w", name, err)
		}
	}

	if f.Fan.MaxSpeed <= 0 {
		return fmt.Errorf("config: fan.max_speed must be positive")
	}

	switch f.Input.Source {
	case "serial":
		if f.Input.Device == "" || f.Input.Baud <= 0 {
			return fmt.Errorf("config: input.device and input.baud required for serial")
		}
	case "sd":
		if f.Input.SDDir == "" {
			return fmt.Errorf("config: input.sd_dir required for sd")
		}
	case "stdin":
	default:
		return fmt.Errorf("config: input.source must be serial, sd or stdin")
	}
	return nil
}

func (a *Axis) validate() error {
	if _, err := motion.SteppingModeFromString(a.SteppingMode); err != nil {
		return err
	}
	if a.DistancePerStep <= 0 {
		return fmt.Errorf("distance_per_step must be positive")
	}
	if a.StepsPerRev <= 0 {
		return fmt.Errorf("steps_per_rev must be positive")
	}
	if a.Min == nil || a.Max == nil {
		return fmt.Errorf("min and max bounds required")
	}
	if *a.Min >= *a.Max {
		return fmt.Errorf("min %v not below max %v", *a.Min, *a.Max)
	}
	if a.HomeOffset != nil && (*a.HomeOffset < *a.Min || *a.HomeOffset > *a.Max) {
		return fmt.Errorf("home_offset %v outside bounds", *a.HomeOffset)
	}
	if a.HomingSpeed < 0 || a.HomingBudget < 0 {
		return fmt.Errorf("homing_speed and homing_budget must not be negative")
	}
	return nil
}

func (t *Thermal) validate() error {
	if t.Kp <= 0 || t.Ki < 0 || t.Kd < 0 {
		return fmt.Errorf("pid gains invalid (kp > 0, ki >= 0, kd >= 0)")
	}
	if t.SamplePeriodMS <= 0 {
		return fmt.Errorf("sample_period_ms must be positive")
	}
	if t.MinTarget == nil {
		return fmt.Errorf("min_target required")
	}
	if t.MaxTemp <= *t.MinTarget {
		return fmt.Errorf("max_temp %v not above min_target %v", t.MaxTemp, *t.MinTarget)
	}
	if t.SeriesResistor <= 0 || t.NominalR <= 0 || t.Beta <= 0 {
		return fmt.Errorf("thermistor parameters must be positive")
	}
	if t.Samples <= 0 {
		return fmt.Errorf("samples must be positive")
	}
	if t.ADCMax <= 0 || t.ADCMax > 65535 {
		return fmt.Errorf("adc_max out of range")
	}
	return nil
}

func validMode(mode string) error {
	if mode != "absolute" && mode != "relative" {
		return fmt.Errorf("must be absolute or relative, got %q", mode)
	}
	return nil
}

// MotionConfig converts the validated file into the planner's immutable
// configuration.
func (f *File) MotionConfig() *motion.Config {
	cfg := &motion.Config{
		ArcUnitLength:    f.Motion.ArcUnitLength,
		DefaultFeedrate:  f.Motion.DefaultFeedrate,
		AbsoluteLinear:   f.Motion.PositioningMode == "absolute",
		AbsoluteExtruder: f.Motion.ExtruderMode == "absolute",
		Retract: motion.RetractConfig{
			Length:   f.Motion.RetractLength,
			Feedrate: f.Motion.RetractFeedrate,
			ZLift:    f.Motion.RetractZLift,
		},
		Recover: motion.RecoverConfig{
			ExtraLength: f.Motion.RecoverExtra,
			Feedrate:    f.Motion.RecoverFeedrate,
		},
	}
	for name, idx := range axisNames {
		ax := f.Axes[name]
		mode, _ := motion.SteppingModeFromString(ax.SteppingMode)
		cfg.Axes[idx] = motion.AxisConfig{
			SteppingMode:    mode,
			DistancePerStep: ax.DistancePerStep,
			StepsPerRev:     ax.StepsPerRev,
			Min:             *ax.Min,
			Max:             *ax.Max,
			Invert:          ax.Invert,
			HomingSpeed:     ax.HomingSpeed,
			HomingBudget:    ax.HomingBudget,
		}
		if ax.HomeOffset != nil {
			cfg.Axes[idx].HomeOffset = *ax.HomeOffset
		}
	}
	return cfg
}

// ThermalConfig converts one validated channel section.
func (f *File) ThermalConfig(name string) thermal.Config {
	t := f.Thermal[name]
	return thermal.Config{
		Name:         name,
		Kp:           t.Kp,
		Ki:           t.Ki,
		Kd:           t.Kd,
		MinDerivTime: t.MinDerivTime,
		SamplePeriod: time.Duration(t.SamplePeriodMS) * time.Millisecond,
		MinTarget:    *t.MinTarget,
		MaxTemp:      t.MaxTemp,
	}
}
