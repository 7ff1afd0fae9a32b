// Package ingest provides the MQTT reading source. Devices that talk
// MQTT publish readings to a broker topic; this source subscribes and
// feeds them into the pipeline alongside the HTTP surface.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"fleetwatch/internal/config"
	"fleetwatch/internal/handlers"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
)

// MQTTSource subscribes to a readings topic and forwards parsed
// readings to the sink
type MQTTSource struct {
	cfg    config.MQTTConfig
	sink   handlers.Sink
	client mqtt.Client
}

// NewMQTTSource creates a source; Start connects and subscribes
func NewMQTTSource(cfg config.MQTTConfig, sink handlers.Sink) *MQTTSource {
	return &MQTTSource{cfg: cfg, sink: sink}
}

// Start connects to the broker with backoff and subscribes to the
// readings topic. Re-subscription after reconnect is automatic.
func (s *MQTTSource) Start(ctx context.Context) error {
	log := logger.WithComponent("mqtt_source")

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetOrderMatters(false).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}

	// Re-subscribe on every (re)connect
	opts.OnConnect = func(c mqtt.Client) {
		log.Info().Str("broker", s.cfg.BrokerURL).Msg("connected to mqtt broker")
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
		if token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("mqtt subscribe failed")
			return
		}
		log.Info().Str("topic", s.cfg.Topic).Msg("subscribed to readings topic")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}

	s.client = mqtt.NewClient(opts)

	// Connect with exponential backoff until success or cancel
	backoff := time.Second
	for {
		token := s.client.Connect()
		if token.Wait() && token.Error() == nil {
			return nil
		}
		log.Warn().
			Err(token.Error()).
			Dur("backoff", backoff).
			Msg("mqtt connect failed, retrying")

		select {
		case <-time.After(backoff):
			if backoff < 30*time.Second {
				backoff *= 2
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleMessage parses one reading payload and feeds the sink
func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	log := logger.WithComponent("mqtt_source")

	var reading models.Reading
	if err := json.Unmarshal(msg.Payload(), &reading); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("discarding undecodable payload")
		metrics.ReadingsTotal.WithLabelValues("mqtt", "rejected").Inc()
		return
	}

	reading.Normalize()
	if err := reading.Validate(); err != nil {
		log.Warn().
			Err(err).
			Str("device_id", reading.DeviceID).
			Msg("discarding invalid reading")
		metrics.ReadingsTotal.WithLabelValues("mqtt", "rejected").Inc()
		metrics.ReadingValidationErrors.WithLabelValues(err.Error()).Inc()
		return
	}

	if err := s.sink.IngestReading(&reading); err != nil {
		log.Warn().
			Err(err).
			Str("device_id", reading.DeviceID).
			Msg("reading rejected by pipeline")
		metrics.ReadingsTotal.WithLabelValues("mqtt", "rejected").Inc()
		return
	}
	metrics.ReadingsTotal.WithLabelValues("mqtt", "accepted").Inc()
}

// Stop disconnects from the broker
func (s *MQTTSource) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
