// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Thermoquad/gaugelink/internal/forward"
	"github.com/Thermoquad/gaugelink/internal/gauge"
	"github.com/Thermoquad/gaugelink/internal/link"
	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"
)

var (
	simTarget   string
	simMAC      string
	simRate     int
	simDuration int
	simGauge    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Send sweep-animation telemetry like a dashboard sender",
	Long: `Act as a telemetry sender for testing a receiver without a car.

The simulator announces itself once, then sends frames from the sweep test
animation: oil temperature 60 to 160 °C and water 60 to 140 °C over nine
seconds, back down over three, with RPM, oil pressure, throttle and speed
following along.

Frames are wrapped in bridge envelopes and sent as UDP datagrams to --target,
and published as relay messages when --mqtt is given.

Examples:
  # Feed a receiver started with --udp :4210
  gaugelink simulate --target 127.0.0.1:4210

  # Extended frames asking the dashboard for the multi gauge
  gaugelink simulate --target 127.0.0.1:4210 --format extended --gauge multi`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simTarget, "target", "127.0.0.1:4210", "UDP address of the receiver")
	simulateCmd.Flags().StringVar(&simMAC, "mac", "02:00:00:00:00:01", "Sender MAC address")
	simulateCmd.Flags().IntVar(&simRate, "rate", 20, "Frames per second")
	simulateCmd.Flags().IntVar(&simDuration, "duration", 0, "Stop after this many seconds (0 runs until Ctrl+C)")
	simulateCmd.Flags().StringVar(&simGauge, "gauge", "oil_temp", "Requested gauge (extended format only)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	source, err := espnow.ParseMAC(simMAC)
	if err != nil {
		return fmt.Errorf("invalid --mac: %w", err)
	}
	requested, ok := telemetry.ParseGaugeType(simGauge)
	if !ok {
		return fmt.Errorf("unknown gauge %q", simGauge)
	}
	if simRate <= 0 {
		return fmt.Errorf("--rate must be positive")
	}
	format := cfg.Receiver.TelemetryFormat()

	var forwarders []forward.Forwarder
	if simTarget != "" {
		host, portStr, err := net.SplitHostPort(simTarget)
		if err != nil {
			return fmt.Errorf("invalid --target: %w", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --target port: %w", err)
		}
		udp, err := forward.NewUDPForwarder(forward.UDPConfig{
			Server: host,
			Port:   port,
			Source: source,
			Format: format,
		})
		if err != nil {
			return err
		}
		forwarders = append(forwarders, udp)
	}
	if cfg.MQTT.Broker != "" {
		relay, err := newRelayPublisher(source, format)
		if err != nil {
			return err
		}
		forwarders = append(forwarders, relay)
	}
	if len(forwarders) == 0 {
		return fmt.Errorf("nothing to send to: set --target or --mqtt")
	}
	defer func() {
		for _, f := range forwarders {
			f.Close()
		}
	}()

	fmt.Printf("Gaugelink - Sender Simulator\n")
	fmt.Printf("Sender: %s\n", source)
	for _, f := range forwarders {
		fmt.Printf("Output: %s\n", f.Name())
	}
	fmt.Printf("Format: %s, %d frames/sec\n", format, simRate)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if simDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(simDuration)*time.Second)
		defer cancel()
	}

	ticker := time.NewTicker(time.Second / time.Duration(simRate))
	defer ticker.Stop()

	start := time.Now()
	var sent uint64
	lastReport := start

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\nSent %d frames in %s\n", sent, formatUptime(time.Since(start)))
			return nil
		case now := <-ticker.C:
			s := gauge.SweepSnapshot(now.Sub(start))
			if format == telemetry.FormatExtended {
				s.Gauge = requested
				s.Extended = true
			}

			for _, f := range forwarders {
				if err := f.Forward(ctx, s, true); err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", f.Name(), err)
				}
			}
			sent++

			if now.Sub(lastReport) >= time.Second {
				fmt.Printf("[%s] %s\n", now.Format("15:04:05"), telemetry.FormatSummary(s))
				lastReport = now
			}
		}
	}
}

// relayPublisher publishes raw frames on the MQTT relay topic a receiver's
// MQTT source subscribes to
type relayPublisher struct {
	client    mqtt.Client
	topic     string
	format    telemetry.Format
	announced bool
}

func newRelayPublisher(source espnow.MAC, format telemetry.Format) (*relayPublisher, error) {
	client := link.NewMQTTClient(mqttConfig(), "sim")
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.MQTT.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.MQTT.Broker, err)
	}
	return &relayPublisher{
		client: client,
		topic:  link.RelayTopic(cfg.MQTT.Prefix, source, espnow.BroadcastMAC),
		format: format,
	}, nil
}

func (r *relayPublisher) Name() string {
	return "mqtt " + r.topic
}

func (r *relayPublisher) Forward(ctx context.Context, s telemetry.Snapshot, live bool) error {
	frame := telemetry.Encode(s, r.format)
	count := 1
	if !r.announced {
		count = 2
		r.announced = true
	}
	for i := 0; i < count; i++ {
		token := r.client.Publish(r.topic, 0, false, frame)
		select {
		case <-token.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := token.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (r *relayPublisher) Close() error {
	r.client.Disconnect(250)
	return nil
}
