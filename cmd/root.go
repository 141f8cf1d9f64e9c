// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/gaugelink/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string

	// Serial bridge flags
	portName string
	baudRate int

	// WebSocket bridge flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Relay flags
	udpListen  string
	mqttBroker string

	frameFormat string
	logLevel    string
	logFile     string

	// cfg is the merged configuration, valid once PersistentPreRunE has run
	cfg     config.Config
	logSink *os.File
)

var rootCmd = &cobra.Command{
	Use:   "gaugelink",
	Short: "ESP-NOW dashboard telemetry receiver",
	Long: `Gaugelink - A receiver and gauge dashboard for the ESP-NOW telemetry link.

An ESP-NOW bridge dongle (or a UDP/MQTT relay) hands each link frame to the
host. Gaugelink admits senders from their broadcast announce, decodes the
telemetry frames that follow, and drops back to a zeroed snapshot when no
frame has arrived for the configured timeout.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  UDP:       --udp :4210
  MQTT:      --mqtt tcp://broker:1883

For WebSocket authentication, the password is read from the GAUGELINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSink != nil {
			logSink.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")

	// Serial bridge flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port of the bridge dongle")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket bridge flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Relay flags
	rootCmd.PersistentFlags().StringVar(&udpListen, "udp", "", "Listen for envelope datagrams on this address")
	rootCmd.PersistentFlags().StringVar(&mqttBroker, "mqtt", "", "Subscribe to relayed frames on this MQTT broker")

	rootCmd.PersistentFlags().StringVarP(&frameFormat, "format", "f", "standard", "Telemetry frame format (standard or extended)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file")
}

// loadConfig merges defaults, the config file, the environment and any flag
// the user set, then configures logging
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Link.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Link.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Link.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Link.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Link.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("udp") {
		cfg.Link.UDP = udpListen
	}
	if flags.Changed("mqtt") {
		cfg.MQTT.Broker = mqttBroker
	}
	if flags.Changed("format") {
		cfg.Receiver.Format = frameFormat
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := log.ParseLevel(cfg.Log.Level)
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if cfg.Log.File != "" {
		logSink, err = os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.Log.File, err)
		}
		log.SetOutput(logSink)
	} else {
		log.SetOutput(os.Stderr)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
