// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gauge

import "github.com/Thermoquad/gaugelink/pkg/telemetry"

// Zone is the colour band a value falls in
type Zone int

// Zones, coolest first
const (
	ZoneCold Zone = iota
	ZoneNormal
	ZoneWarning
	ZoneCritical
)

// String returns the zone name
func (z Zone) String() string {
	switch z {
	case ZoneCold:
		return "cold"
	case ZoneNormal:
		return "normal"
	case ZoneWarning:
		return "warning"
	case ZoneCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Profile holds the scale and thresholds of one gauge
type Profile struct {
	Label   string
	Unit    string
	Min     float32
	Max     float32
	Green   float32
	Amber   float32
	Red     float32
	Redline float32
	Alert   float32
}

// Default profiles
var (
	OilTempProfile = Profile{
		Label: "OIL T", Unit: "°C",
		Min: 60, Max: 160,
		Green: 80, Amber: 120, Red: 130,
		Redline: 130, Alert: 135,
	}

	WaterTempProfile = Profile{
		Label: "H2O", Unit: "°C",
		Min: 60, Max: 140,
		Green: 80, Amber: 105, Red: 110,
		Redline: 110, Alert: 115,
	}

	OilPressureProfile = Profile{
		Label: "OIL P", Unit: "bar",
		Min: 0, Max: 8,
		Green: 2, Amber: 5, Red: 7,
		Redline: 8, Alert: 7,
	}
)

// Profiles maps each single-value gauge to its profile
type Profiles map[telemetry.GaugeType]Profile

// DefaultProfiles returns a fresh copy of the default profile set
func DefaultProfiles() Profiles {
	return Profiles{
		telemetry.GaugeOilTemp:     OilTempProfile,
		telemetry.GaugeWaterTemp:   WaterTempProfile,
		telemetry.GaugeOilPressure: OilPressureProfile,
	}
}

// Clamp limits v to [Min, Max]
func (p Profile) Clamp(v float32) float32 {
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// Zone classifies the clamped value
func (p Profile) Zone(v float32) Zone {
	v = p.Clamp(v)
	switch {
	case v < p.Green:
		return ZoneCold
	case v < p.Amber:
		return ZoneNormal
	case v < p.Red:
		return ZoneWarning
	default:
		return ZoneCritical
	}
}

// Alerting reports whether the unclamped value reaches the alert threshold
func (p Profile) Alerting(v float32) bool {
	return v >= p.Alert
}

// BarZone classifies a pressure value for the compact bar layout
func (p Profile) BarZone(v float32) Zone {
	v = p.Clamp(v)
	switch {
	case v < p.Green:
		return ZoneCold
	case v >= p.Red:
		return ZoneCritical
	case v >= p.Amber:
		return ZoneWarning
	default:
		return ZoneNormal
	}
}

// Oil pressure rule of thumb: 1 bar per 2000 rpm, never below this floor
const (
	oilPressurePerRPM  = 1.0 / 2000.0
	minOilPressureSafe = 0.5
)

// MinSafeOilPressure returns the lowest acceptable oil pressure at rpm
func MinSafeOilPressure(rpm uint32) float32 {
	p := float32(float64(rpm) * oilPressurePerRPM)
	if p < minOilPressureSafe {
		return minOilPressureSafe
	}
	return p
}

// ClassifyOilPressure returns the zone and alert state for pressure at rpm
func (p Profile) ClassifyOilPressure(pressure float32, rpm uint32) (Zone, bool) {
	minSafe := MinSafeOilPressure(rpm)

	var zone Zone
	switch {
	case pressure < minSafe:
		zone = ZoneCritical
	case pressure >= p.Red:
		zone = ZoneCritical
	case pressure >= p.Amber:
		zone = ZoneWarning
	default:
		zone = ZoneNormal
	}

	alert := pressure < minSafe || pressure >= p.Alert
	return zone, alert
}
