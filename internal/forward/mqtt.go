// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forward

import (
	"context"
	"time"

	"github.com/Thermoquad/gaugelink/internal/link"
	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// MQTTForwarder publishes each snapshot as CBOR on a topic
type MQTTForwarder struct {
	topic  string
	client mqtt.Client
}

// NewMQTTForwarder connects to the broker in cfg
func NewMQTTForwarder(cfg link.MQTTConfig, topic string) (*MQTTForwarder, error) {
	client := link.NewMQTTClient(cfg, "fwd")
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt connect to %s", cfg.Broker)
	}
	return newMQTTForwarder(client, topic), nil
}

func newMQTTForwarder(client mqtt.Client, topic string) *MQTTForwarder {
	return &MQTTForwarder{topic: topic, client: client}
}

// Name returns the forwarder description
func (f *MQTTForwarder) Name() string {
	return "mqtt " + f.topic
}

// Forward publishes s; a stale snapshot is published as the zero snapshot
// so subscribers see the link drop
func (f *MQTTForwarder) Forward(ctx context.Context, s telemetry.Snapshot, _ bool) error {
	payload, err := telemetry.MarshalCBOR(s)
	if err != nil {
		return err
	}

	token := f.client.Publish(f.topic, 0, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "mqtt publish")
	}
	return errors.Wrap(token.Error(), "mqtt publish")
}

// Close disconnects from the broker
func (f *MQTTForwarder) Close() error {
	f.client.Disconnect(250)
	return nil
}
