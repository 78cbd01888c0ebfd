package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"printd/config"
	"printd/core"
	"printd/diag"
	"printd/dispatch"
	"printd/host/console"
	"printd/host/sdcard"
	"printd/host/serial"
	"printd/motion"
	"printd/thermal"
)

func newRunCmd() *cobra.Command {
	var (
		path  string
		simHW bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the control stack",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !simHW {
				return fmt.Errorf("host builds drive simulated hardware; use the embedded target for real pins")
			}
			f, err := config.Load(path)
			if err != nil {
				return err
			}
			return run(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "printer.toml", "configuration file")
	cmd.Flags().BoolVar(&simHW, "sim", true, "simulate the hardware")
	return cmd
}

// stdio pairs stdin and stdout into one console stream.
type stdio struct {
	io.Reader
	io.Writer
}

func run(parent context.Context, f *config.File) error {
	log := diag.NewLogger(f.Diag.LogLevel, f.Diag.Pretty)
	clock := core.NewWallClock()
	bus := diag.NewBus()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rig := newSimRig(f, clock, log)
	go rig.Run(ctx)

	mc := f.MotionConfig()
	var drivers [motion.NumAxes]*motion.Driver
	for a := motion.AxisX; a < motion.NumAxes; a++ {
		drivers[a] = motion.NewDriver(a, &mc.Axes[a], rig.step[a], rig.dir[a], rig.endstop[a], clock)
	}
	planner := motion.NewPlanner(mc, drivers, log)
	planner.SetStepObserver(func(a motion.Axis, n int) {
		diag.AddSteps(a.String(), n)
	})

	actuators := make(map[string]*thermal.Actuator, 2)
	for _, name := range []string{"hotend", "heatbed"} {
		h := rig.heater(name)
		a := thermal.NewActuator(f.ThermalConfig(name), h.therm, h.pwm, clock, log)
		a.SetCycleObserver(func(s thermal.Snapshot, err error) {
			diag.ObserveThermal(s.Name, s.Measured, s.Setpoint, s.Duty)
			if err != nil {
				diag.CountFault(s.Name)
				bus.Publish(diag.Event{Kind: diag.EventThermalFault, Source: s.Name, Detail: err.Error()})
			}
		})
		actuators[name] = a
		go a.Run(ctx)
	}

	fan := thermal.NewFan(rig.fanPWM, f.Fan.MaxSpeed, log)

	var sd *sdcard.Controller
	if f.Input.SDDir != "" {
		sd = sdcard.New(f.Input.SDDir, clock, bus, log)
	}

	var sdIface dispatch.SDControl
	if sd != nil {
		sdIface = sd
	}
	d := dispatch.New(planner, actuators["hotend"], actuators["heatbed"], fan, sdIface, clock, bus, log)
	if sd != nil {
		sd.Bind(d)
		if f.Input.Source == "sd" {
			if err := sd.Mount(); err != nil {
				return err
			}
		}
	}

	if f.Diag.HTTPAddr != "" {
		srv := diag.NewServer(f.Diag.HTTPAddr, d, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("status server failed")
			}
		}()
	}

	if f.Diag.MQTT.Broker != "" {
		mq := f.Diag.MQTT
		interval := time.Duration(mq.IntervalMS) * time.Millisecond
		if interval <= 0 {
			interval = 5 * time.Second
		}
		pub := diag.NewMQTTPublisher(diag.MQTTConfig{
			Broker:   mq.Broker,
			ClientID: mq.ClientID,
			Topic:    mq.Topic,
			Username: mq.Username,
			Password: mq.Password,
			Interval: interval,
		}, d, bus, log)
		if err := pub.Connect(); err != nil {
			log.Warn().Err(err).Msg("mqtt unavailable, telemetry disabled")
		} else {
			go pub.Run(ctx)
		}
	}

	var stream io.ReadWriter
	switch f.Input.Source {
	case "serial":
		sc := serial.DefaultConfig(f.Input.Device)
		if f.Input.Baud > 0 {
			sc.Baud = f.Input.Baud
		}
		// The console scanner owns the read loop, so block instead of
		// polling.
		sc.ReadTimeout = 0
		port, err := serial.Open(sc)
		if err != nil {
			return err
		}
		defer port.Close()
		if err := port.Flush(); err != nil {
			log.Warn().Err(err).Msg("serial flush failed")
		}
		stream = port
	default: // stdin, sd
		stream = stdio{Reader: os.Stdin, Writer: os.Stdout}
	}

	c := console.New(stream, log)
	go d.RunLines(ctx, c.Lines(), c.Reply)

	log.Info().Str("input", f.Input.Source).Msg("control stack running")

	// The scanner blocks in a read, so a signal is the other way out.
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return nil
	case err := <-runErr:
		if err == context.Canceled {
			err = nil
		}
		return err
	}
}
