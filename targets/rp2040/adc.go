//go:build rp2040

package main

import (
	"machine"
)

// thermistorADC samples one thermistor divider. TinyGo's ADC returns a
// left-justified 16-bit value; the shift restores the converter's native
// 12 bits so readings line up with adc_max = 4095.
type thermistorADC struct {
	adc machine.ADC
}

func newThermistorADC(pin machine.Pin) (*thermistorADC, error) {
	machine.InitADC()
	adc := machine.ADC{Pin: pin}
	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return nil, err
	}
	return &thermistorADC{adc: adc}, nil
}

func (t *thermistorADC) ReadRaw() (uint16, error) {
	return t.adc.Get() >> 4, nil
}
