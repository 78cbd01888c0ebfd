//go:build rp2040

package main

import (
	"fmt"

	"machine"
)

const pwmMax = 255

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type.
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// pwmOut is one heater or fan channel on an RP2040 PWM slice.
type pwmOut struct {
	group   pwmPeripheral
	channel uint8
}

// newPWMOut binds a pin to its hardware slice. GPIO pin N lives on slice
// (N >> 1) & 7, channel N & 1.
func newPWMOut(pin machine.Pin, periodNs uint64) (*pwmOut, error) {
	group := pwmGroupFor(uint8((uint32(pin) >> 1) & 0x7))
	if err := group.Configure(machine.PWMConfig{Period: periodNs}); err != nil {
		return nil, fmt.Errorf("pwm configure pin %d: %w", pin, err)
	}
	ch, err := group.Channel(pin)
	if err != nil {
		return nil, fmt.Errorf("pwm channel pin %d: %w", pin, err)
	}
	group.Set(ch, 0)
	return &pwmOut{group: group, channel: ch}, nil
}

func (p *pwmOut) SetDutyCycle(value uint32) error {
	if value > pwmMax {
		value = pwmMax
	}
	p.group.Set(p.channel, value*p.group.Top()/pwmMax)
	return nil
}

func (p *pwmOut) MaxDuty() uint32 {
	return pwmMax
}

func pwmGroupFor(slice uint8) pwmPeripheral {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}
