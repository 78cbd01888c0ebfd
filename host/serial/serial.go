// Package serial opens the byte stream that carries the G-code console.
package serial

import (
	"io"
)

// Port is the byte stream a console runs over. The abstraction keeps the
// dispatcher wiring testable against in-memory pipes.
type Port interface {
	io.ReadWriteCloser

	// Flush drops any buffered input so a fresh session does not replay
	// half a line from before a reconnect.
	Flush() error
}

// Config holds serial port parameters.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3".
	Device string

	// Baud rate. USB CDC devices ignore it but the field must still be
	// plausible for real UARTs.
	Baud int

	// ReadTimeout in milliseconds; 0 blocks.
	ReadTimeout int
}

// DefaultConfig returns the usual host-side console settings.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
