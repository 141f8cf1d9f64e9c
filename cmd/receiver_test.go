// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/gaugelink/internal/config"
	"github.com/Thermoquad/gaugelink/internal/forward"
	"github.com/Thermoquad/gaugelink/internal/gauge"
	"github.com/Thermoquad/gaugelink/internal/link"
	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUDPTestReceiver(t *testing.T) *receiver {
	t.Helper()
	cfg = config.Default()
	cfg.Link.UDP = "127.0.0.1:0"
	cfg.Receiver.Timeout = config.Duration{Duration: 200 * time.Millisecond}

	rx, err := newReceiver(nil)
	require.NoError(t, err)
	return rx
}

func TestOpenSources_NoneConfigured(t *testing.T) {
	cfg = config.Default()
	_, _, err := OpenSources(nil)
	assert.Error(t, err)
}

func TestReceiver_EndToEnd(t *testing.T) {
	rx := newUDPTestReceiver(t)
	require.NoError(t, rx.open())

	addr := rx.sources[0].(*link.UDPSource).LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rx.serve(ctx) }()

	sender := espnow.MAC{0x02, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	fwd, err := forward.NewUDPForwarder(forward.UDPConfig{
		Server: "127.0.0.1",
		Port:   addr.Port,
		Source: sender,
		Format: telemetry.FormatStandard,
	})
	require.NoError(t, err)
	defer fwd.Close()

	s := telemetry.Snapshot{OilTemp: 95, WaterTemp: 88, EngineRPM: 3200, OilPressure: 3.5}
	require.NoError(t, fwd.Forward(ctx, s, true))

	require.Eventually(t, func() bool {
		_, live := rx.channel.Read()
		return live
	}, 2*time.Second, 10*time.Millisecond)

	got, live := rx.channel.Read()
	assert.True(t, live)
	assert.Equal(t, s, got)
	assert.Equal(t, sender, rx.channel.LastSender())
	assert.Equal(t, 1, rx.registry.Len())
	assert.Equal(t, uint64(1), rx.dispatcher.Stats().Admissions)

	// No more frames: the snapshot goes stale and reads as zero
	require.Eventually(t, func() bool {
		_, live := rx.channel.Read()
		return !live
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, telemetry.Snapshot{}, rx.channel.Snapshot())

	cancel()
	assert.NoError(t, <-done)
}

type steadyReader struct {
	s telemetry.Snapshot
}

func (r steadyReader) Read() (telemetry.Snapshot, bool) {
	return r.s, true
}

func TestReceiver_ChainedStaysLiveOnSteadyValues(t *testing.T) {
	rx := newUDPTestReceiver(t)
	require.NoError(t, rx.open())
	addr := rx.sources[0].(*link.UDPSource).LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rx.serve(ctx) }()

	fwd, err := forward.NewUDPForwarder(forward.UDPConfig{
		Server: "127.0.0.1",
		Port:   addr.Port,
		Source: espnow.MAC{0x02, 0xAA, 0xBB, 0xCC, 0xDD, 0x01},
		Format: telemetry.FormatStandard,
	})
	require.NoError(t, err)

	steady := telemetry.Snapshot{OilTemp: 90, WaterTemp: 85, EngineRPM: 800, OilPressure: 2.0}
	pump := forward.NewPump(steadyReader{s: steady}, 10*time.Millisecond, fwd)
	pump.SetKeepalive(50 * time.Millisecond)
	pumpDone := make(chan error, 1)
	go func() { pumpDone <- pump.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, live := rx.channel.Read()
		return live
	}, 2*time.Second, 10*time.Millisecond)

	// Several receiver timeouts with unchanged values upstream
	time.Sleep(700 * time.Millisecond)
	got, live := rx.channel.Read()
	assert.True(t, live)
	assert.Equal(t, steady, got)

	cancel()
	assert.ErrorIs(t, <-pumpDone, context.Canceled)
	assert.NoError(t, <-done)
}

func TestMonitorModel_Keys(t *testing.T) {
	rx := newUDPTestReceiver(t)
	surface := &dashboard{}
	manager := gauge.NewManager(surface)
	m := newMonitorModel(rx, manager, surface, time.Second)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m = updated.(monitorModel)
	assert.Equal(t, telemetry.GaugeOilPressure, manager.Current())
	assert.Equal(t, telemetry.GaugeOilPressure, surface.gauge)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	m = updated.(monitorModel)
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	m = updated.(monitorModel)
	assert.Equal(t, telemetry.GaugeMulti, manager.Current())
	assert.Len(t, surface.readings, 3)
	for _, r := range surface.readings {
		assert.True(t, r.NoSignal)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'3'}})
	m = updated.(monitorModel)
	assert.Equal(t, telemetry.GaugeWaterTemp, manager.Current())

	view := m.View()
	assert.Contains(t, view, "GAUGELINK - DASHBOARD")
	assert.Contains(t, view, "NO SIGNAL")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestMonitorModel_EventLogBounded(t *testing.T) {
	rx := newUDPTestReceiver(t)
	surface := &dashboard{}
	m := newMonitorModel(rx, gauge.NewManager(surface), surface, time.Second)

	for i := 0; i < m.maxLogEntries+10; i++ {
		updated, _ := m.Update(logMsg{timestamp: time.Now(), message: "peer registered"})
		m = updated.(monitorModel)
	}
	assert.Len(t, m.eventLog, m.maxLogEntries)
}

func TestTextSurface_Throttles(t *testing.T) {
	var out bytes.Buffer
	surface := &textSurface{out: &out, every: time.Hour}
	manager := gauge.NewManager(surface)

	manager.Update(telemetry.Snapshot{OilTemp: 140}, true)
	manager.Update(telemetry.Snapshot{OilTemp: 90}, true)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "OIL_TEMP")
	assert.Contains(t, lines[0], "140.0")
	assert.Contains(t, lines[0], "ALERT")
}
