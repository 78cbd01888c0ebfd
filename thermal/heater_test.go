package thermal

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"printd/core/sim"
)

type heaterFixture struct {
	actuator *Actuator
	adc      *sim.ADC
	pwm      *sim.PWM
	clock    *sim.Clock
	plant    *firstOrderPlant
	therm    *Thermistor
}

func newHeaterFixture() *heaterFixture {
	f := &heaterFixture{
		adc:   sim.NewADC(0),
		pwm:   sim.NewPWM(255),
		clock: sim.NewClock(),
		plant: &firstOrderPlant{temp: 25, ambient: 25, tau: 60, gain: 4},
	}
	f.therm = NewThermistor(f.adc, 4700, 100000, 3950, 1, 4095)
	f.adc.Source = func() uint16 { return f.therm.SampleFor(f.plant.temp) }
	f.actuator = NewActuator(Config{
		Name:         "hotend",
		Kp:           0.05,
		Ki:           0.002,
		Kd:           0,
		MinDerivTime: 2,
		SamplePeriod: time.Second,
		MinTarget:    0,
		MaxTemp:      250,
	}, f.therm, f.pwm, f.clock, zerolog.Nop())
	return f
}

// cycle runs one control cycle and advances the plant by one second.
func (f *heaterFixture) cycle() error {
	err := f.actuator.RunCycle()
	duty := float64(f.pwm.Duty()) / float64(f.pwm.MaxDuty())
	f.plant.step(duty, 1)
	f.clock.Advance(time.Second)
	return err
}

func TestActuatorIdleKeepsHeaterOff(t *testing.T) {
	f := newHeaterFixture()
	for i := 0; i < 5; i++ {
		if err := f.cycle(); err != nil {
			t.Fatalf("cycle failed: %v", err)
		}
	}
	if f.pwm.Duty() != 0 {
		t.Errorf("idle duty = %d, want 0", f.pwm.Duty())
	}
	snap := f.actuator.Snapshot()
	if snap.State != Idle {
		t.Errorf("state = %v, want Idle", snap.State)
	}
	if math.Abs(snap.Measured-25) > 1.5 {
		t.Errorf("measured = %.2f, want ~25", snap.Measured)
	}
}

func TestActuatorRegulatesTowardTarget(t *testing.T) {
	f := newHeaterFixture()
	if err := f.actuator.SetTarget(200); err != nil {
		t.Fatalf("SetTarget failed: %v", err)
	}
	if f.actuator.Snapshot().State != Regulating {
		t.Fatal("nonzero setpoint should enter Regulating")
	}

	var maxDuty float64
	for i := 0; i < 1000; i++ {
		if err := f.cycle(); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
		maxDuty = math.Max(maxDuty, f.actuator.Snapshot().Duty)
	}
	snap := f.actuator.Snapshot()
	if math.Abs(snap.Measured-200) > 3 {
		t.Errorf("settled at %.2f, want 200 +-3", snap.Measured)
	}
	if maxDuty < 0.9 {
		t.Errorf("max duty %.2f, expected a near-saturated heat-up", maxDuty)
	}
	// Settled duty is partial, not saturated.
	if snap.Duty <= 0 || snap.Duty >= 1 {
		t.Errorf("settled duty = %.2f, want strictly inside (0, 1)", snap.Duty)
	}
}

func TestActuatorZeroSetpointReturnsToIdle(t *testing.T) {
	f := newHeaterFixture()
	if err := f.actuator.SetTarget(100); err != nil {
		t.Fatalf("SetTarget failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		f.cycle()
	}
	if err := f.actuator.SetTarget(0); err != nil {
		t.Fatalf("SetTarget(0) failed: %v", err)
	}
	f.cycle()
	snap := f.actuator.Snapshot()
	if snap.State != Idle {
		t.Errorf("state = %v, want Idle", snap.State)
	}
	if f.pwm.Duty() != 0 {
		t.Errorf("duty = %d after idling, want 0", f.pwm.Duty())
	}
}

func TestActuatorOvertempFaultsWithinOneCycle(t *testing.T) {
	f := newHeaterFixture()
	if err := f.actuator.SetTarget(200); err != nil {
		t.Fatalf("SetTarget failed: %v", err)
	}
	f.cycle()

	f.plant.temp = 260 // above the 250 limit
	err := f.cycle()
	var tf *ThermalFaultError
	if !errors.As(err, &tf) {
		t.Fatalf("error = %v, want ThermalFaultError", err)
	}
	snap := f.actuator.Snapshot()
	if snap.State != Fault {
		t.Errorf("state = %v, want Fault", snap.State)
	}
	if snap.Setpoint != 0 || snap.Duty != 0 {
		t.Errorf("setpoint/duty = %v/%v, want 0/0", snap.Setpoint, snap.Duty)
	}
	if f.pwm.Duty() != 0 {
		t.Errorf("pwm duty = %d after fault, want 0", f.pwm.Duty())
	}
}

func TestActuatorSensorFault(t *testing.T) {
	f := newHeaterFixture()
	f.actuator.SetTarget(200)
	f.cycle()

	f.adc.Source = nil
	f.adc.SetValue(0) // disconnected sensor
	err := f.cycle()
	var tf *ThermalFaultError
	if !errors.As(err, &tf) {
		t.Fatalf("error = %v, want ThermalFaultError", err)
	}
	if f.actuator.Snapshot().State != Fault {
		t.Error("sensor fault should latch the Fault state")
	}
}

func TestActuatorFaultIgnoresSetpointUntilRearm(t *testing.T) {
	f := newHeaterFixture()
	f.actuator.SetTarget(200)
	f.plant.temp = 260
	f.cycle()

	if err := f.actuator.SetTarget(180); err == nil {
		t.Fatal("setpoint accepted while faulted")
	}
	if snap := f.actuator.Snapshot(); snap.Setpoint != 0 {
		t.Errorf("setpoint = %v while faulted, want 0", snap.Setpoint)
	}

	f.plant.temp = 25
	f.actuator.Rearm()
	if snap := f.actuator.Snapshot(); snap.State != Idle {
		t.Fatalf("state = %v after re-arm, want Idle", snap.State)
	}
	if err := f.actuator.SetTarget(180); err != nil {
		t.Fatalf("SetTarget after re-arm failed: %v", err)
	}
	if f.actuator.Snapshot().State != Regulating {
		t.Error("re-armed channel should regulate again")
	}
}

func TestActuatorInvalidSetpoint(t *testing.T) {
	f := newHeaterFixture()
	err := f.actuator.SetTarget(400)
	var inv *InvalidSetpointError
	if !errors.As(err, &inv) {
		t.Fatalf("error = %v, want InvalidSetpointError", err)
	}
	if f.actuator.Snapshot().Setpoint != 0 {
		t.Error("rejected setpoint must not stick")
	}
}
