//go:build rp2040

package main

import (
	"machine"
)

// outPin wraps a machine pin as a digital output.
type outPin struct {
	pin machine.Pin
}

func newOutPin(pin machine.Pin) *outPin {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pin.Low()
	return &outPin{pin: pin}
}

func (p *outPin) Set(high bool) {
	p.pin.Set(high)
}

// endstop reads a normally-open switch to ground with the internal
// pull-up. The interrupt handler only records the edge; everything else
// runs in the stepper task.
type endstop struct {
	pin  machine.Pin
	wake chan struct{}
}

func newEndstop(pin machine.Pin) (*endstop, error) {
	e := &endstop{pin: pin, wake: make(chan struct{}, 1)}
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	err := pin.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		select {
		case e.wake <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Triggered is active-low: the switch shorts the pin to ground.
func (e *endstop) Triggered() bool {
	return !e.pin.Get()
}

func (e *endstop) Wake() <-chan struct{} {
	return e.wake
}
