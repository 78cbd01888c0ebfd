// Package thermal implements the closed-loop heater channels: thermistor
// sampling, PID regulation, interlock state machine, and the open-loop
// part-cooling fan.
package thermal

import (
	"fmt"
	"math"

	"printd/core"
)

const (
	kelvinOffset = 273.15
	nominalTempC = 25 // thermistor reference temperature for r0

	// faultMargin is the band of raw counts at either rail treated as a
	// disconnected or shorted sensor.
	faultMargin = 4
)

// Thermistor converts raw ADC samples from a series-resistor divider
// into a temperature using the beta equation.
type Thermistor struct {
	sampler core.ADCSampler
	series  float64 // divider series resistance, ohms
	r0      float64 // nominal resistance at 25 degC, ohms
	beta    float64
	samples int    // readings averaged per measurement
	adcMax  uint16 // full-scale converter value
}

// NewThermistor binds a beta-model thermistor to its ADC channel.
func NewThermistor(sampler core.ADCSampler, series, r0, beta float64, samples int, adcMax uint16) *Thermistor {
	if samples < 1 {
		samples = 1
	}
	return &Thermistor{
		sampler: sampler,
		series:  series,
		r0:      r0,
		beta:    beta,
		samples: samples,
		adcMax:  adcMax,
	}
}

// Read measures the channel temperature in degrees Celsius. Readings
// pinned at either converter rail report a sensor fault.
func (t *Thermistor) Read() (float64, error) {
	var sum float64
	for i := 0; i < t.samples; i++ {
		raw, err := t.sampler.ReadRaw()
		if err != nil {
			return 0, fmt.Errorf("thermal: adc read: %w", err)
		}
		sum += float64(raw)
	}
	avg := sum / float64(t.samples)

	// The divider reads across the series resistor, so an open sensor
	// pins the sample low and a shorted one pins it high.
	if avg < faultMargin {
		return 0, fmt.Errorf("thermal: sensor disconnected (sample %.0f)", avg)
	}
	if avg > float64(t.adcMax)-faultMargin {
		return 0, fmt.Errorf("thermal: sensor shorted (sample %.0f)", avg)
	}

	resistance := t.series * (float64(t.adcMax)/avg - 1)
	invT := 1/(nominalTempC+kelvinOffset) + math.Log(resistance/t.r0)/t.beta
	return 1/invT - kelvinOffset, nil
}

// SampleFor returns the raw converter value a sensor at tempC would
// produce. Used by simulations and tests to drive the loop backward.
func (t *Thermistor) SampleFor(tempC float64) uint16 {
	invT0 := 1 / (nominalTempC + kelvinOffset)
	resistance := t.r0 * math.Exp(t.beta*(1/(tempC+kelvinOffset)-invT0))
	sample := float64(t.adcMax) * t.series / (t.series + resistance)
	if sample < 0 {
		return 0
	}
	if sample > float64(t.adcMax) {
		return t.adcMax
	}
	return uint16(math.Round(sample))
}
