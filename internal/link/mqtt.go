// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"strings"
	"time"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const mqttTimeout = 10 * time.Second

// RelayTopic returns the topic a relay publishes frames from src to dst on
func RelayTopic(prefix string, src, dst espnow.MAC) string {
	return strings.TrimSuffix(prefix, "/") + "/" + src.Hex() + "/" + dst.Hex()
}

// ParseRelayTopic extracts the sender and destination from a relay topic
func ParseRelayTopic(prefix, topic string) (espnow.MAC, espnow.MAC, error) {
	var src, dst espnow.MAC

	prefix = strings.TrimSuffix(prefix, "/") + "/"
	if !strings.HasPrefix(topic, prefix) {
		return src, dst, errors.Errorf("topic %q outside prefix %q", topic, prefix)
	}

	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(parts) != 2 {
		return src, dst, errors.Errorf("topic %q: expected <src>/<dst>", topic)
	}

	src, err := espnow.ParseMAC(parts[0])
	if err != nil {
		return src, dst, errors.Wrap(err, "source")
	}
	dst, err = espnow.ParseMAC(parts[1])
	if err != nil {
		return src, dst, errors.Wrap(err, "destination")
	}
	return src, dst, nil
}

// MQTTConfig configures an MQTT relay connection
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
}

// NewMQTTClient creates a paho client for cfg. An empty ClientID gets a random one.
func NewMQTTClient(cfg MQTTConfig, role string) mqtt.Client {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "gaugelink-" + role + "-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetConnectTimeout(mqttTimeout).
		SetAutoReconnect(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return mqtt.NewClient(opts)
}

// MQTTSource subscribes to relay topics and delivers each message as an envelope
type MQTTSource struct {
	cfg     MQTTConfig
	handler EnvelopeHandler

	client mqtt.Client
}

// NewMQTTSource creates a relay source
func NewMQTTSource(cfg MQTTConfig, handler EnvelopeHandler) *MQTTSource {
	return &MQTTSource{
		cfg:     cfg,
		handler: handler,
	}
}

// Name returns the source description
func (m *MQTTSource) Name() string {
	return "mqtt " + m.cfg.Broker
}

// Open connects to the broker
func (m *MQTTSource) Open() error {
	client := NewMQTTClient(m.cfg, "rx")

	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return errors.Errorf("mqtt connect to %s timed out", m.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "mqtt connect to %s", m.cfg.Broker)
	}
	m.client = client
	return nil
}

// Close disconnects from the broker
func (m *MQTTSource) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
	return nil
}

// Start subscribes to <prefix>/+/+ and waits until the connection is lost or ctx is done
func (m *MQTTSource) Start(ctx context.Context) error {
	if m.client == nil {
		return errors.New("mqtt source not open")
	}

	filter := strings.TrimSuffix(m.cfg.TopicPrefix, "/") + "/+/+"
	token := m.client.Subscribe(filter, 0, func(_ mqtt.Client, msg mqtt.Message) {
		m.HandleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(mqttTimeout) {
		return errors.Errorf("mqtt subscribe %s timed out", filter)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "mqtt subscribe %s", filter)
	}
	log.WithField("topic", filter).Info("subscribed to relay topic")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !m.client.IsConnectionOpen() {
				return errors.Errorf("mqtt connection to %s lost", m.cfg.Broker)
			}
		}
	}
}

// HandleMessage converts one relay message into an envelope
func (m *MQTTSource) HandleMessage(topic string, payload []byte) {
	src, dst, err := ParseRelayTopic(m.cfg.TopicPrefix, topic)
	if err != nil {
		m.handler.DecodeError(topic, err)
		return
	}
	if len(payload) > espnow.MaxPayloadSize {
		m.handler.DecodeError(topic, errors.Wrapf(espnow.ErrLength, "%d bytes", len(payload)))
		return
	}

	frame := make([]byte, len(payload))
	copy(frame, payload)
	m.handler.Deliver(espnow.NewEnvelope(src, dst, frame))
}
