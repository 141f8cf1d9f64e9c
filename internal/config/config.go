// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads receiver settings from defaults, a TOML file and
// GAUGELINK_* environment variables.
package config

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "GAUGELINK_"

// Duration is a time.Duration written as a string ("5s") in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Receiver configures the telemetry channel and peer admission
type Receiver struct {
	Format    string   `toml:"format"`
	Timeout   Duration `toml:"timeout"`
	MaxPeers  int      `toml:"max_peers"`
	Channel   uint8    `toml:"channel"`
	Interface string   `toml:"interface"`
	// Key is the hex local master key given to admitted peers, empty for none
	Key      string `toml:"key"`
	Validate bool   `toml:"validate"`
}

// Display configures the gauge dashboard
type Display struct {
	Gauge        string   `toml:"gauge"`
	FollowSender bool     `toml:"follow_sender"`
	Tick         Duration `toml:"tick"`
}

// Link selects the bridge connection
type Link struct {
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	NoSSLVerify bool   `toml:"no_ssl_verify"`
	UDP         string `toml:"udp"`
}

// MQTT configures the broker used by the relay source and forwarder
type MQTT struct {
	Broker   string `toml:"broker"`
	Prefix   string `toml:"prefix"`
	ClientID string `toml:"client_id"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Forward configures the optional repeaters
type Forward struct {
	Interval  Duration `toml:"interval"`
	Keepalive Duration `toml:"keepalive"`
	UDP       string   `toml:"udp"`
	Source    string   `toml:"source"`
	MQTTTopic string   `toml:"mqtt_topic"`
	Redis     string   `toml:"redis"`
	RedisDB   int      `toml:"redis_db"`
	RedisKey  string   `toml:"redis_key"`
	RedisTTL  Duration `toml:"redis_ttl"`
}

// Log configures logrus
type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Config is the complete gaugelink configuration
type Config struct {
	Receiver Receiver `toml:"receiver"`
	Display  Display  `toml:"display"`
	Link     Link     `toml:"link"`
	MQTT     MQTT     `toml:"mqtt"`
	Forward  Forward  `toml:"forward"`
	Log      Log      `toml:"log"`
}

// Default returns the baseline configuration
func Default() Config {
	return Config{
		Receiver: Receiver{
			Format:    telemetry.FormatStandard.String(),
			Timeout:   Duration{5000 * time.Millisecond},
			MaxPeers:  espnow.MaxPeers,
			Channel:   espnow.DefaultChannel,
			Interface: espnow.InterfaceStation.String(),
			Validate:  true,
		},
		Display: Display{
			Gauge: telemetry.GaugeOilTemp.String(),
			Tick:  Duration{50 * time.Millisecond},
		},
		Link: Link{
			Baud: 115200,
		},
		MQTT: MQTT{
			Prefix: "gaugelink/espnow",
		},
		Forward: Forward{
			Interval:  Duration{100 * time.Millisecond},
			Keepalive: Duration{time.Second},
			Source:    "02:00:00:00:00:01",
			RedisKey:  "gaugelink:telemetry",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load returns Default overlaid with the TOML file at path (if path is not
// empty) and then the environment, and validates the result
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, errors.Wrapf(err, "unable to load configuration %s", path)
		}
		for _, key := range md.Undecoded() {
			log.WithField("key", key.String()).Warn("unknown configuration key")
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(envPrefix + key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return fallback, errors.Wrapf(err, "%s%s", envPrefix, key)
	}
	return v, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, errors.Wrapf(err, "%s%s", envPrefix, key)
	}
	return v, nil
}

func getEnvDuration(key string, fallback Duration) (Duration, error) {
	value, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback, nil
	}
	var d Duration
	if err := d.UnmarshalText([]byte(value)); err != nil {
		return fallback, errors.Wrapf(err, "%s%s", envPrefix, key)
	}
	return d, nil
}

func (c *Config) applyEnv() error {
	var err error

	c.Receiver.Format = getEnv("FORMAT", c.Receiver.Format)
	if c.Receiver.Timeout, err = getEnvDuration("TIMEOUT", c.Receiver.Timeout); err != nil {
		return err
	}
	if c.Receiver.MaxPeers, err = getEnvInt("MAX_PEERS", c.Receiver.MaxPeers); err != nil {
		return err
	}
	c.Receiver.Key = getEnv("KEY", c.Receiver.Key)

	c.Display.Gauge = getEnv("GAUGE", c.Display.Gauge)
	if c.Display.FollowSender, err = getEnvBool("FOLLOW_SENDER", c.Display.FollowSender); err != nil {
		return err
	}

	c.Link.Port = getEnv("PORT", c.Link.Port)
	if c.Link.Baud, err = getEnvInt("BAUD", c.Link.Baud); err != nil {
		return err
	}
	c.Link.URL = getEnv("URL", c.Link.URL)
	c.Link.Username = getEnv("USERNAME", c.Link.Username)
	c.Link.UDP = getEnv("UDP", c.Link.UDP)

	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Prefix = getEnv("MQTT_PREFIX", c.MQTT.Prefix)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)

	c.Forward.UDP = getEnv("FORWARD_UDP", c.Forward.UDP)
	c.Forward.MQTTTopic = getEnv("FORWARD_MQTT_TOPIC", c.Forward.MQTTTopic)
	c.Forward.Redis = getEnv("REDIS_ADDR", c.Forward.Redis)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	return nil
}

// Validate checks every field that has a restricted range
func (c Config) Validate() error {
	if _, ok := telemetry.ParseFormat(c.Receiver.Format); !ok {
		return errors.Errorf("receiver.format: unknown format %q", c.Receiver.Format)
	}
	if c.Receiver.Timeout.Duration <= 0 {
		return errors.New("receiver.timeout must be positive")
	}
	if c.Receiver.MaxPeers < 1 || c.Receiver.MaxPeers > espnow.MaxPeers {
		return errors.Errorf("receiver.max_peers must be 1..%d, got %d", espnow.MaxPeers, c.Receiver.MaxPeers)
	}
	if c.Receiver.Channel > espnow.MaxChannel {
		return errors.Errorf("receiver.channel must be 0..%d, got %d", espnow.MaxChannel, c.Receiver.Channel)
	}
	if _, ok := espnow.ParseInterface(c.Receiver.Interface); !ok {
		return errors.Errorf("receiver.interface: unknown interface %q", c.Receiver.Interface)
	}
	if _, err := c.Receiver.KeyBytes(); err != nil {
		return err
	}
	if _, ok := telemetry.ParseGaugeType(c.Display.Gauge); !ok {
		return errors.Errorf("display.gauge: unknown gauge %q", c.Display.Gauge)
	}
	if c.Display.Tick.Duration <= 0 {
		return errors.New("display.tick must be positive")
	}
	if c.Forward.Interval.Duration <= 0 {
		return errors.New("forward.interval must be positive")
	}
	if c.Forward.Keepalive.Duration <= 0 {
		return errors.New("forward.keepalive must be positive")
	}
	if c.Forward.UDP != "" {
		if _, err := espnow.ParseMAC(c.Forward.Source); err != nil {
			return errors.Wrap(err, "forward.source")
		}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

// TelemetryFormat returns the parsed frame format
func (r Receiver) TelemetryFormat() telemetry.Format {
	f, _ := telemetry.ParseFormat(r.Format)
	return f
}

// PeerInterface returns the parsed peer interface
func (r Receiver) PeerInterface() espnow.Interface {
	i, _ := espnow.ParseInterface(r.Interface)
	return i
}

// KeyBytes decodes the local master key. An empty key means unencrypted.
func (r Receiver) KeyBytes() ([]byte, error) {
	if r.Key == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(strings.ReplaceAll(r.Key, ":", ""))
	if err != nil {
		return nil, errors.Wrap(err, "receiver.key")
	}
	if len(key) != espnow.KeySize {
		return nil, errors.Errorf("receiver.key must be %d bytes, got %d", espnow.KeySize, len(key))
	}
	return key, nil
}

// DefaultGauge returns the parsed startup gauge
func (d Display) DefaultGauge() telemetry.GaugeType {
	g, _ := telemetry.ParseGaugeType(d.Gauge)
	return g
}
