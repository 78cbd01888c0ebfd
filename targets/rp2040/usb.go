//go:build rp2040

package main

import (
	"time"

	"machine"
)

// usbStream adapts the USB CDC console to io.ReadWriter for the command
// pump.
type usbStream struct{}

func (usbStream) Read(p []byte) (int, error) {
	for machine.Serial.Buffered() == 0 {
		time.Sleep(time.Millisecond)
	}
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (usbStream) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := machine.Serial.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}
