// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Thermoquad/gaugelink/internal/forward"
	"github.com/Thermoquad/gaugelink/internal/gauge"
	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	useTUI        bool
	monitorGauge  string
	followSender  bool
	monitorTick   time.Duration
	forwardUDP    string
	forwardMQTT   string
	forwardRedis  string
	forwardPeriod time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Receive telemetry and show the gauge dashboard",
	Long: `Run the receiver and show the current gauge in a terminal dashboard.

Senders are admitted from their broadcast announce; their telemetry frames
drive the gauges. When no frame has arrived for the receiver timeout (5
seconds by default) the gauges show NO SIGNAL and alerts are suppressed until
the next frame.

Keys mirror the display gestures: swipe right or double tap for the next
gauge, swipe left for the previous one.

The current snapshot can be repeated on every change to another receiver over
UDP (--forward-udp), to an MQTT topic as CBOR (--forward-mqtt), and to a Redis
hash with pub/sub notification (--redis).`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().StringVarP(&monitorGauge, "gauge", "g", "oil_temp", "Gauge shown at start (oil_temp, oil_pressure, water_temp, multi)")
	monitorCmd.Flags().BoolVar(&followSender, "follow-sender", false, "Let extended frames select the gauge")
	monitorCmd.Flags().DurationVar(&monitorTick, "tick", 50*time.Millisecond, "UI refresh interval")
	monitorCmd.Flags().StringVar(&forwardUDP, "forward-udp", "", "Repeat telemetry to this host:port as envelopes")
	monitorCmd.Flags().StringVar(&forwardMQTT, "forward-mqtt", "", "Publish telemetry as CBOR on this MQTT topic (needs --mqtt)")
	monitorCmd.Flags().StringVar(&forwardRedis, "redis", "", "Write telemetry to the Redis server at this address")
	monitorCmd.Flags().DurationVar(&forwardPeriod, "forward-interval", 100*time.Millisecond, "Forwarder poll interval")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("gauge") {
		cfg.Display.Gauge = monitorGauge
	}
	if flags.Changed("follow-sender") {
		cfg.Display.FollowSender = followSender
	}
	if flags.Changed("tick") {
		cfg.Display.Tick.Duration = monitorTick
	}
	if flags.Changed("forward-udp") {
		cfg.Forward.UDP = forwardUDP
	}
	if flags.Changed("forward-mqtt") {
		cfg.Forward.MQTTTopic = forwardMQTT
	}
	if flags.Changed("redis") {
		cfg.Forward.Redis = forwardRedis
	}
	if flags.Changed("forward-interval") {
		cfg.Forward.Interval.Duration = forwardPeriod
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rx, err := newReceiver(nil)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	forwarders, err := openForwarders(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rx.run(gctx)
	})
	if len(forwarders) > 0 {
		pump := forward.NewPump(rx.channel, cfg.Forward.Interval.Duration, forwarders...)
		pump.SetKeepalive(cfg.Forward.Keepalive.Duration)
		g.Go(func() error {
			if err := pump.Run(gctx); !isContextErr(err) {
				return err
			}
			return nil
		})
	}

	managerOpts := []gauge.Option{
		gauge.WithDefaultGauge(cfg.Display.DefaultGauge()),
		gauge.WithFollowSender(cfg.Display.FollowSender),
	}

	if useTUI {
		runDashboard(gctx, g, cancel, rx, managerOpts)
	} else {
		runTextMonitor(gctx, rx, managerOpts)
		cancel()
	}

	err = g.Wait()
	if !useTUI {
		printReceiverStats(rx)
	}
	return err
}

func runDashboard(ctx context.Context, g *errgroup.Group, cancel context.CancelFunc, rx *receiver, opts []gauge.Option) {
	surface := &dashboard{}
	manager := gauge.NewManager(surface, opts...)
	manager.Update(rx.channel.Read())

	// The dashboard owns the terminal
	if cfg.Log.File == "" {
		log.SetOutput(io.Discard)
	}

	p := tea.NewProgram(newMonitorModel(rx, manager, surface, cfg.Display.Tick.Duration),
		tea.WithAltScreen(), tea.WithContext(ctx))
	log.AddHook(newTUILogHook(p))

	for _, info := range rx.infos {
		log.WithField("connection", info).Info("receiver started")
	}

	g.Go(func() error {
		defer cancel()
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	})
}

func runTextMonitor(ctx context.Context, rx *receiver, opts []gauge.Option) {
	surface := &textSurface{out: os.Stdout, every: time.Second}
	manager := gauge.NewManager(surface, opts...)

	fmt.Printf("Gaugelink - Monitor\n")
	for _, info := range rx.infos {
		fmt.Printf("Connection: %s\n", info)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ticker := time.NewTicker(cfg.Display.Tick.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			manager.Update(rx.channel.Read())
		}
	}
}

// textSurface prints the current gauge at most once per interval
type textSurface struct {
	out   io.Writer
	every time.Duration
	last  time.Time
}

func (t *textSurface) Render(g telemetry.GaugeType, readings []gauge.Reading) {
	now := time.Now()
	if now.Sub(t.last) < t.every {
		return
	}
	t.last = now

	line := fmt.Sprintf("[%s] %-12s", now.Format("15:04:05"), g)
	for _, r := range readings {
		if r.NoSignal {
			line += fmt.Sprintf("  %s --.- %s", r.Label, r.Unit)
			continue
		}
		line += fmt.Sprintf("  %s %.1f %s (%s)", r.Label, r.Value, r.Unit, r.Zone)
		if r.Alert {
			line += " ALERT"
		}
	}
	if len(readings) > 0 && readings[0].NoSignal {
		line += "  NO SIGNAL"
	}
	fmt.Fprintln(t.out, line)
}

// openForwarders creates every configured forwarder
func openForwarders(ctx context.Context) ([]forward.Forwarder, error) {
	var forwarders []forward.Forwarder
	fail := func(err error) ([]forward.Forwarder, error) {
		for _, f := range forwarders {
			f.Close()
		}
		return nil, err
	}

	if cfg.Forward.UDP != "" {
		host, portStr, err := net.SplitHostPort(cfg.Forward.UDP)
		if err != nil {
			return fail(fmt.Errorf("invalid forward address: %w", err))
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fail(fmt.Errorf("invalid forward port: %w", err))
		}
		source, _ := espnow.ParseMAC(cfg.Forward.Source)
		udp, err := forward.NewUDPForwarder(forward.UDPConfig{
			Server: host,
			Port:   port,
			Source: source,
			Format: cfg.Receiver.TelemetryFormat(),
		})
		if err != nil {
			return fail(err)
		}
		forwarders = append(forwarders, udp)
	}

	if cfg.Forward.MQTTTopic != "" {
		if cfg.MQTT.Broker == "" {
			return fail(fmt.Errorf("--forward-mqtt needs --mqtt"))
		}
		fwd, err := forward.NewMQTTForwarder(mqttConfig(), cfg.Forward.MQTTTopic)
		if err != nil {
			return fail(err)
		}
		forwarders = append(forwarders, fwd)
	}

	if cfg.Forward.Redis != "" {
		fwd, err := forward.NewRedisForwarder(ctx, forward.RedisConfig{
			Addr:     cfg.Forward.Redis,
			Password: os.Getenv("GAUGELINK_REDIS_PASSWORD"),
			DB:       cfg.Forward.RedisDB,
			Key:      cfg.Forward.RedisKey,
			TTL:      cfg.Forward.RedisTTL.Duration,
		})
		if err != nil {
			return fail(err)
		}
		forwarders = append(forwarders, fwd)
	}

	return forwarders, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
