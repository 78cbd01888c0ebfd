package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTConfig configures the optional telemetry publisher.
type MQTTConfig struct {
	Broker   string        // e.g. tcp://localhost:1883
	ClientID string
	Topic    string        // status topic; events go to Topic + "/events"
	Username string
	Password string
	Interval time.Duration // status publish period
}

// MQTTPublisher periodically publishes the machine status and forwards
// bus events to the broker. Telemetry is best effort: publish failures
// are logged, never propagated to control tasks.
type MQTTPublisher struct {
	cfg    MQTTConfig
	src    StatusSource
	bus    *Bus
	log    zerolog.Logger
	client mqtt.Client
}

func NewMQTTPublisher(cfg MQTTConfig, src StatusSource, bus *Bus, log zerolog.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		cfg: cfg,
		src: src,
		bus: bus,
		log: log.With().Str("task", "mqtt").Logger(),
	}
}

// Connect establishes the broker session.
func (p *MQTTPublisher) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.log.Warn().Err(err).Msg("broker connection lost")
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			p.log.Info().Str("broker", p.cfg.Broker).Msg("connected to broker")
		})

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("diag: broker connect timeout")
	}
	return token.Error()
}

// Run publishes until ctx is cancelled.
func (p *MQTTPublisher) Run(ctx context.Context) {
	interval := p.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	events, cancel := p.bus.Subscribe(16)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			p.client.Disconnect(250)
			return
		case <-ticker.C:
			p.publishJSON(p.cfg.Topic, p.src.Status())
		case ev := <-events:
			p.publishJSON(p.cfg.Topic+"/events", map[string]string{
				"kind":   ev.Kind.String(),
				"source": ev.Source,
				"detail": ev.Detail,
				"at":     ev.At.Format(time.RFC3339),
			})
		}
	}
}

func (p *MQTTPublisher) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error().Err(err).Msg("telemetry encode failed")
		return
	}
	token := p.client.Publish(topic, 0, false, payload)
	if token.WaitTimeout(time.Second) && token.Error() != nil {
		p.log.Warn().Err(token.Error()).Str("topic", topic).Msg("publish failed")
	}
}
