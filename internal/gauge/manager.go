// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gauge selects which dashboard gauge is shown and turns telemetry
// into gauge readings for a display surface.
package gauge

import (
	"sync"

	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	log "github.com/sirupsen/logrus"
)

// Reading is one value as a surface should show it
type Reading struct {
	Gauge    telemetry.GaugeType
	Label    string
	Unit     string
	Value    float32
	Min      float32
	Max      float32
	Zone     Zone
	Alert    bool
	NoSignal bool
	// MinSafe is the RPM-derived lower limit, oil pressure only
	MinSafe float32
}

// Fraction returns the clamped position of Value on [Min, Max] as 0..1
func (r Reading) Fraction() float64 {
	if r.Max <= r.Min {
		return 0
	}
	v := r.Value
	if v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	return float64(v-r.Min) / float64(r.Max-r.Min)
}

// Surface draws gauges
type Surface interface {
	Render(gauge telemetry.GaugeType, readings []Reading)
}

// Direction is a swipe or tap on the display
type Direction int

// Gesture directions
const (
	DirectionLeft Direction = iota
	DirectionRight
	DirectionUp
	DirectionDown
	DirectionTap
	DirectionDoubleTap
)

// Reaction is what the manager did with a gesture
type Reaction int

// Gesture reactions
const (
	ReactionNone Reaction = iota
	ReactionNext
	ReactionPrevious
)

// Option configures a Manager
type Option func(*Manager)

// WithDefaultGauge sets the gauge shown at start
func WithDefaultGauge(g telemetry.GaugeType) Option {
	return func(m *Manager) {
		if g.Valid() {
			m.current = g
		}
	}
}

// WithFollowSender lets an extended frame's gauge byte select the gauge
func WithFollowSender(follow bool) Option {
	return func(m *Manager) {
		m.followSender = follow
	}
}

// WithProfiles overrides the default profiles
func WithProfiles(p Profiles) Option {
	return func(m *Manager) {
		for g, profile := range p {
			m.profiles[g] = profile
		}
	}
}

// Manager owns the current gauge selection
type Manager struct {
	surface      Surface
	profiles     Profiles
	followSender bool

	mu      sync.Mutex
	current telemetry.GaugeType
}

// NewManager creates a manager rendering to surface
func NewManager(surface Surface, opts ...Option) *Manager {
	m := &Manager{
		surface:  surface,
		profiles: DefaultProfiles(),
		current:  telemetry.GaugeOilTemp,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the selected gauge
func (m *Manager) Current() telemetry.GaugeType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Select shows gauge g; it returns false for an unknown gauge
func (m *Manager) Select(g telemetry.GaugeType) bool {
	if !g.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(g)
	return true
}

// Next cycles forward and returns the new gauge
func (m *Manager) Next() telemetry.GaugeType {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(m.current.Next())
	return m.current
}

// Previous cycles backward and returns the new gauge
func (m *Manager) Previous() telemetry.GaugeType {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(m.current.Previous())
	return m.current
}

// OnGesture maps a display gesture to a gauge change
func (m *Manager) OnGesture(d Direction) Reaction {
	switch d {
	case DirectionRight, DirectionDoubleTap:
		m.Next()
		return ReactionNext
	case DirectionLeft:
		m.Previous()
		return ReactionPrevious
	default:
		return ReactionNone
	}
}

// Update renders the current gauge from s. hasData is false when s is the
// zero snapshot substituted for stale or missing telemetry.
func (m *Manager) Update(s telemetry.Snapshot, hasData bool) []Reading {
	m.mu.Lock()
	if m.followSender && hasData && s.Extended && s.Gauge.Valid() && s.Gauge != m.current {
		m.setLocked(s.Gauge)
	}
	current := m.current
	m.mu.Unlock()

	readings := m.Readings(current, s, hasData)
	if m.surface != nil {
		m.surface.Render(current, readings)
	}
	return readings
}

// Readings builds the readings for gauge g without rendering
func (m *Manager) Readings(g telemetry.GaugeType, s telemetry.Snapshot, hasData bool) []Reading {
	var readings []Reading

	switch g {
	case telemetry.GaugeOilTemp:
		readings = []Reading{m.temperature(g, s.OilTemp)}
	case telemetry.GaugeWaterTemp:
		readings = []Reading{m.temperature(g, s.WaterTemp)}
	case telemetry.GaugeOilPressure:
		readings = []Reading{m.oilPressure(s.OilPressure, s.EngineRPM)}
	case telemetry.GaugeMulti:
		readings = []Reading{
			m.bar(telemetry.GaugeWaterTemp, s.WaterTemp),
			m.bar(telemetry.GaugeOilTemp, s.OilTemp),
			m.bar(telemetry.GaugeOilPressure, s.OilPressure),
		}
	}

	if !hasData {
		for i := range readings {
			readings[i].NoSignal = true
			readings[i].Alert = false
		}
	}
	return readings
}

func (m *Manager) setLocked(g telemetry.GaugeType) {
	if g == m.current {
		return
	}
	log.WithFields(log.Fields{
		"from": m.current,
		"to":   g,
	}).Debug("gauge changed")
	m.current = g
}

func (m *Manager) reading(g telemetry.GaugeType, v float32) (Reading, Profile) {
	p := m.profiles[g]
	return Reading{
		Gauge: g,
		Label: p.Label,
		Unit:  p.Unit,
		Value: v,
		Min:   p.Min,
		Max:   p.Max,
	}, p
}

func (m *Manager) temperature(g telemetry.GaugeType, v float32) Reading {
	// Temperatures are shown as whole degrees
	v = float32(int32(v))
	r, p := m.reading(g, v)
	r.Zone = p.Zone(v)
	r.Alert = p.Alerting(v)
	return r
}

func (m *Manager) oilPressure(pressure float32, rpm uint32) Reading {
	r, p := m.reading(telemetry.GaugeOilPressure, pressure)
	r.Zone, r.Alert = p.ClassifyOilPressure(pressure, rpm)
	r.MinSafe = MinSafeOilPressure(rpm)
	return r
}

func (m *Manager) bar(g telemetry.GaugeType, v float32) Reading {
	r, p := m.reading(g, v)
	if g == telemetry.GaugeOilPressure {
		r.Value = p.Clamp(v)
		r.Zone = p.BarZone(v)
		return r
	}
	r.Value = p.Clamp(float32(int32(v)))
	r.Zone = p.Zone(r.Value)
	return r
}
