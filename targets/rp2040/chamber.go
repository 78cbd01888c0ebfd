//go:build rp2040

package main

import (
	"context"
	"time"

	"machine"

	"github.com/rs/zerolog"
	"tinygo.org/x/drivers/sht3x"
)

// chamberMonitor logs the enclosure temperature and humidity from an
// SHT31 on the expansion header. The sensor is optional; a missing or
// failing part only silences the readings.
type chamberMonitor struct {
	sensor sht3x.Device
	log    zerolog.Logger
}

func newChamberMonitor(log zerolog.Logger) (*chamberMonitor, error) {
	err := machine.I2C0.Configure(machine.I2CConfig{
		SDA: chamberSDA,
		SCL: chamberSCL,
	})
	if err != nil {
		return nil, err
	}
	return &chamberMonitor{
		sensor: sht3x.New(machine.I2C0),
		log:    log.With().Str("task", "chamber").Logger(),
	}, nil
}

func (m *chamberMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			temp, humidity, err := m.sensor.ReadTemperatureHumidity()
			if err != nil {
				continue
			}
			m.log.Info().
				Float32("temp", float32(temp)/1000).
				Float32("humidity", float32(humidity)/1000).
				Msg("chamber")
		}
	}
}
