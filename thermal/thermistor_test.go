package thermal

import (
	"errors"
	"math"
	"testing"

	"printd/core/sim"
)

func testThermistor(adc *sim.ADC) *Thermistor {
	return NewThermistor(adc, 4700, 100000, 3950, 4, 4095)
}

func TestThermistorRoundTrip(t *testing.T) {
	adc := sim.NewADC(0)
	therm := testThermistor(adc)

	for _, tempC := range []float64{25, 60, 100, 200, 250} {
		adc.SetValue(therm.SampleFor(tempC))
		got, err := therm.Read()
		if err != nil {
			t.Fatalf("Read at %v degC failed: %v", tempC, err)
		}
		// Converter quantization dominates the round-trip error.
		if math.Abs(got-tempC) > 1.5 {
			t.Errorf("Read = %.2f, want %.2f +-1.5", got, tempC)
		}
	}
}

func TestThermistorAveragesSamples(t *testing.T) {
	adc := sim.NewADC(0)
	therm := testThermistor(adc)

	values := []uint16{1000, 1100, 900, 1000}
	i := 0
	adc.Source = func() uint16 {
		v := values[i%len(values)]
		i++
		return v
	}
	got, err := therm.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	adc.Source = nil
	adc.SetValue(1000)
	want, err := therm.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if math.Abs(got-want) > 0.01 {
		t.Errorf("averaged read %.3f, steady read %.3f", got, want)
	}
}

func TestThermistorRailFaults(t *testing.T) {
	adc := sim.NewADC(0)
	therm := testThermistor(adc)

	adc.SetValue(0)
	if _, err := therm.Read(); err == nil {
		t.Error("low-rail sample should report a fault")
	}

	adc.SetValue(4095)
	if _, err := therm.Read(); err == nil {
		t.Error("high-rail sample should report a fault")
	}
}

func TestThermistorReadError(t *testing.T) {
	adc := sim.NewADC(2000)
	therm := testThermistor(adc)
	adc.Fail(errors.New("bus stuck"))

	if _, err := therm.Read(); err == nil {
		t.Error("converter error should propagate")
	}
}

func TestThermistorMonotonic(t *testing.T) {
	adc := sim.NewADC(0)
	therm := testThermistor(adc)

	// Hotter sensor, lower resistance, larger sample.
	low := therm.SampleFor(30)
	high := therm.SampleFor(220)
	if low >= high {
		t.Fatalf("SampleFor(30)=%d >= SampleFor(220)=%d", low, high)
	}
}
