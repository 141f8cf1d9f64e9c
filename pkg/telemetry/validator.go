// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"math"
)

// AnomalyType represents different types of telemetry anomalies
type AnomalyType int

const (
	AnomalyNotFinite AnomalyType = iota
	AnomalyOutOfRange
	AnomalyHighRPM
	AnomalyInvalidGauge
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyNotFinite:
		return "not finite"
	case AnomalyOutOfRange:
		return "out of range"
	case AnomalyHighRPM:
		return "high RPM"
	case AnomalyInvalidGauge:
		return "invalid gauge"
	default:
		return "unknown"
	}
}

// Plausibility limits
const (
	MaxEngineRPM = 9000
)

// ValidationError represents a telemetry validation failure
type ValidationError struct {
	Type    AnomalyType
	Field   string
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

type floatRange struct {
	field string
	value float32
	min   float32
	max   float32
}

// ValidateSnapshot checks a decoded snapshot for implausible values.
// Returns a slice of validation errors (empty if the snapshot is plausible).
func ValidateSnapshot(s Snapshot) []ValidationError {
	errors := []ValidationError{}

	ranges := []floatRange{
		{"oil_temp", s.OilTemp, -40, 200},
		{"water_temp", s.WaterTemp, -40, 150},
		{"oil_pressure", s.OilPressure, 0, 10},
		{"brake_pressure", s.BrakePressure, 0, 200},
		{"throttle_pos", s.ThrottlePos, 0, 100},
		{"speed", s.Speed, 0, 400},
		{"accel_pos", s.AccelPos, 0, 100},
	}

	for _, r := range ranges {
		v := float64(r.value)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errors = append(errors, ValidationError{
				Type:    AnomalyNotFinite,
				Field:   r.field,
				Message: fmt.Sprintf("%s is not finite (%v)", r.field, r.value),
				Details: map[string]interface{}{"field": r.field},
			})
			continue
		}
		if r.value < r.min || r.value > r.max {
			errors = append(errors, ValidationError{
				Type:    AnomalyOutOfRange,
				Field:   r.field,
				Message: fmt.Sprintf("%s=%.1f outside [%.0f, %.0f]", r.field, r.value, r.min, r.max),
				Details: map[string]interface{}{"field": r.field, "value": r.value, "min": r.min, "max": r.max},
			})
		}
	}

	if s.BrakePercent < 0 || s.BrakePercent > 100 {
		errors = append(errors, ValidationError{
			Type:    AnomalyOutOfRange,
			Field:   "brake_percent",
			Message: fmt.Sprintf("brake_percent=%d outside [0, 100]", s.BrakePercent),
			Details: map[string]interface{}{"field": "brake_percent", "value": s.BrakePercent},
		})
	}

	if s.EngineRPM > MaxEngineRPM {
		errors = append(errors, ValidationError{
			Type:    AnomalyHighRPM,
			Field:   "engine_rpm",
			Message: fmt.Sprintf("engine_rpm=%d exceeds %d", s.EngineRPM, MaxEngineRPM),
			Details: map[string]interface{}{"value": s.EngineRPM, "max": MaxEngineRPM},
		})
	}

	if s.Extended && !s.Gauge.Valid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidGauge,
			Field:   "gauge",
			Message: fmt.Sprintf("unknown gauge type %d", s.Gauge),
			Details: map[string]interface{}{"value": uint8(s.Gauge)},
		})
	}

	return errors
}
