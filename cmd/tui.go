// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/gaugelink/internal/gauge"
	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	level     log.Level
}

// dashboard is the gauge surface the TUI draws from
type dashboard struct {
	gauge    telemetry.GaugeType
	readings []gauge.Reading
	renders  uint64
}

func (d *dashboard) Render(g telemetry.GaugeType, readings []gauge.Reading) {
	d.gauge = g
	d.readings = append(d.readings[:0], readings...)
	d.renders++
}

type keyMap struct {
	Next     key.Binding
	Previous key.Binding
	Tap      key.Binding
	Jump     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Previous, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Previous, k.Tap},
		{k.Jump, k.Help, k.Quit},
	}
}

var monitorKeys = keyMap{
	Next: key.NewBinding(
		key.WithKeys("right", "l", "tab"),
		key.WithHelp("→/l", "swipe right (next gauge)"),
	),
	Previous: key.NewBinding(
		key.WithKeys("left", "h", "shift+tab"),
		key.WithHelp("←/h", "swipe left (previous gauge)"),
	),
	Tap: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "double tap (next gauge)"),
	),
	Jump: key.NewBinding(
		key.WithKeys("1", "2", "3", "4"),
		key.WithHelp("1-4", "select gauge"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more keys"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// TUI model
type monitorModel struct {
	rx            *receiver
	manager       *gauge.Manager
	surface       *dashboard
	keys          keyMap
	help          help.Model
	tick          time.Duration
	eventLog      []logEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
	snapshot      telemetry.Snapshot
	live          bool
	frame         int
}

// Messages
type monitorTickMsg time.Time
type logMsg logEntry

func newMonitorModel(rx *receiver, manager *gauge.Manager, surface *dashboard, tick time.Duration) monitorModel {
	return monitorModel{
		rx:            rx,
		manager:       manager,
		surface:       surface,
		keys:          monitorKeys,
		help:          help.New(),
		tick:          tick,
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd(m.tick)
}

func monitorTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Next):
			m.manager.OnGesture(gauge.DirectionRight)
		case key.Matches(msg, m.keys.Previous):
			m.manager.OnGesture(gauge.DirectionLeft)
		case key.Matches(msg, m.keys.Tap):
			m.manager.OnGesture(gauge.DirectionDoubleTap)
		case key.Matches(msg, m.keys.Jump):
			m.manager.Select(telemetry.Gauges[msg.String()[0]-'1'])
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		m.refresh()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case monitorTickMsg:
		m.frame++
		m.refresh()
		return m, monitorTickCmd(m.tick)

	case logMsg:
		m.addLogEntry(logEntry(msg))
	}

	return m, nil
}

// refresh reads the channel, which applies the staleness timeout, and
// renders the current gauge
func (m *monitorModel) refresh() {
	m.snapshot, m.live = m.rx.channel.Read()
	m.manager.Update(m.snapshot, m.live)
}

func (m *monitorModel) addLogEntry(entry logEntry) {
	m.eventLog = append(m.eventLog, entry)
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

const noSignalColor = "240"

func zoneColor(z gauge.Zone) string {
	switch z {
	case gauge.ZoneCold:
		return "12"
	case gauge.ZoneNormal:
		return "10"
	case gauge.ZoneWarning:
		return "11"
	default:
		return "9"
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("GAUGELINK - DASHBOARD"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Format: %s | Uptime: %s",
		strings.Join(m.rx.infos, ", "), m.rx.channel.Format(), formatUptime(time.Since(m.rx.started)))))
	s.WriteString("\n\n")

	s.WriteString(m.linkStatus())
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.gaugeView()))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.statsView()))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.eventLogView()))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m monitorModel) linkStatus() string {
	last := m.rx.channel.LastArrival()
	switch {
	case m.live:
		return valueStyle.Render(fmt.Sprintf("● LIVE from %s", m.rx.channel.LastSender())) +
			headerStyle.Render(fmt.Sprintf(" (last frame %s ago)", formatAge(time.Since(last))))
	case last.IsZero():
		return warningStyle.Render("⏳ Waiting for a sender to announce...")
	default:
		return errorStyle.Render(fmt.Sprintf("✗ STALE, no frame for %s", formatAge(time.Since(last))))
	}
}

func (m monitorModel) gaugeView() string {
	var b strings.Builder

	g := m.surface.gauge
	b.WriteString(labelStyle.Render(fmt.Sprintf("Gauge %d/%d: %s", uint8(g)+1, len(telemetry.Gauges), g)))
	b.WriteString("\n\n")

	barWidth := m.width - 40
	if barWidth < 10 {
		barWidth = 10
	}
	if barWidth > 60 {
		barWidth = 60
	}

	for _, r := range m.surface.readings {
		b.WriteString(m.readingView(r, barWidth))
		b.WriteString("\n")
	}

	if m.live {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render(fmt.Sprintf("RPM %d  Speed %.0f km/h  Throttle %.0f%%  Accel %.0f%%  Brake %.1f bar %d%%",
			m.snapshot.EngineRPM, m.snapshot.Speed, m.snapshot.ThrottlePos, m.snapshot.AccelPos,
			m.snapshot.BrakePressure, m.snapshot.BrakePercent)))
	}

	return b.String()
}

func (m monitorModel) readingView(r gauge.Reading, barWidth int) string {
	label := labelStyle.Render(fmt.Sprintf("%-6s", r.Label))

	if r.NoSignal {
		bar := progress.New(progress.WithSolidFill(noSignalColor), progress.WithoutPercentage(), progress.WithWidth(barWidth))
		return fmt.Sprintf("%s %s %s %s", label,
			headerStyle.Render(fmt.Sprintf("%7s %-3s", "--.-", r.Unit)),
			bar.ViewAs(0),
			headerStyle.Render("NO SIGNAL"))
	}

	color := zoneColor(r.Zone)
	bar := progress.New(progress.WithSolidFill(color), progress.WithoutPercentage(), progress.WithWidth(barWidth))
	zoneStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(color))

	line := fmt.Sprintf("%s %s %s %s", label,
		zoneStyle.Render(fmt.Sprintf("%7.1f %-3s", r.Value, r.Unit)),
		bar.ViewAs(r.Fraction()),
		zoneStyle.Render(r.Zone.String()))

	if r.MinSafe > 0 {
		line += headerStyle.Render(fmt.Sprintf(" (min %.1f)", r.MinSafe))
	}
	// Alerts flash
	if r.Alert && m.frame%2 == 0 {
		line += " " + errorStyle.Reverse(true).Render(" ALERT ")
	}
	return line
}

func (m monitorModel) statsView() string {
	stats := m.rx.channel.Stats()
	dispatch := m.rx.dispatcher.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		labelStyle.Render("Accepted:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.AcceptedFrames, stats.AcceptedPercent())),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", stats.FrameRate)),
	)

	if stats.SizeMismatches > 0 || stats.StaleEvents > 0 || stats.AnomalousValues > 0 {
		fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
			labelStyle.Render("Size Mismatch:"), errorStyle.Render(fmt.Sprintf("%d", stats.SizeMismatches)),
			labelStyle.Render("Stale:"), warningStyle.Render(fmt.Sprintf("%d", stats.StaleEvents)),
			labelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", stats.AnomalousValues)),
		)
	}

	fmt.Fprintf(&b, "%s %s   %s %s   %s %s",
		labelStyle.Render("Peers:"), valueStyle.Render(fmt.Sprintf("%d/%d", m.rx.registry.Len(), m.rx.table.Capacity())),
		labelStyle.Render("Envelopes:"), valueStyle.Render(fmt.Sprintf("%d", dispatch.Envelopes)),
		labelStyle.Render("Dropped:"), func() string {
			dropped := dispatch.UnknownDropped + dispatch.DecodeErrors + dispatch.AdmissionErrors
			if dropped > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", dropped))
			}
			return valueStyle.Render("0")
		}(),
	)
	return b.String()
}

func (m monitorModel) eventLogView() string {
	logHeight := m.height - 24
	if logHeight < 5 {
		logHeight = 5
	}

	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var b strings.Builder
	for _, entry := range m.eventLog[startIdx:] {
		timestamp := headerStyle.Render(entry.timestamp.Format("01/02/06 15:04:05.000"))
		switch {
		case entry.level <= log.ErrorLevel:
			fmt.Fprintf(&b, "%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message))
		case entry.level == log.WarnLevel:
			fmt.Fprintf(&b, "%s %s\n", timestamp, warningStyle.Render("⚠ "+entry.message))
		default:
			fmt.Fprintf(&b, "%s %s\n", timestamp, valueStyle.Render("ℹ "+entry.message))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// tuiLogHook mirrors log entries into the event log. Entries are queued so
// that logging under a lock never waits on the UI loop.
type tuiLogHook struct {
	entries chan logMsg
}

func newTUILogHook(p *tea.Program) *tuiLogHook {
	h := &tuiLogHook{entries: make(chan logMsg, 256)}
	go func() {
		for msg := range h.entries {
			p.Send(msg)
		}
	}()
	return h
}

func (h *tuiLogHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel, log.InfoLevel}
}

func (h *tuiLogHook) Fire(entry *log.Entry) error {
	msg := logMsg{
		timestamp: entry.Time,
		message:   formatLogEntry(entry),
		level:     entry.Level,
	}
	select {
	case h.entries <- msg:
	default:
		// dashboard is behind, drop
	}
	return nil
}

func formatLogEntry(entry *log.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	message := entry.Message
	for _, k := range keys {
		message += fmt.Sprintf(" %s=%v", k, entry.Data[k])
	}
	return message
}
