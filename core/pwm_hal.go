package core

// PWMOutput is one bound PWM channel (heater or fan). The duty range is
// [0, MaxDuty]; writing 0 turns the output fully off.
type PWMOutput interface {
	// SetDutyCycle sets the duty for this channel.
	// value: 0 (fully off) to MaxDuty() (fully on).
	SetDutyCycle(value uint32) error

	// MaxDuty returns the maximum duty value (e.g. 255 for 8-bit PWM).
	MaxDuty() uint32
}
