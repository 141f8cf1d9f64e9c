// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry implements the dashboard telemetry frame.
//
// A sender broadcasts one fixed-size, packed, little-endian frame per update.
// The standard frame carries nine engine and chassis values; the extended
// frame appends a gauge selector byte. This package provides the snapshot
// value type, the frame codec, range validation, statistics and formatting.
package telemetry

// Frame sizes in bytes
const (
	StandardFrameSize = 36
	ExtendedFrameSize = 37
)

// Field offsets within a frame
const (
	offsetOilTemp       = 0
	offsetWaterTemp     = 4
	offsetEngineRPM     = 8
	offsetOilPressure   = 12
	offsetBrakePressure = 16
	offsetBrakePercent  = 20
	offsetThrottlePos   = 24
	offsetSpeed         = 28
	offsetAccelPos      = 32
	offsetGaugeType     = 36
)

// Format selects the frame layout a receiver accepts
type Format int

// Frame formats
const (
	FormatStandard Format = iota
	FormatExtended
)

// Size returns the exact frame length for the format
func (f Format) Size() int {
	if f == FormatExtended {
		return ExtendedFrameSize
	}
	return StandardFrameSize
}

// String returns the format name
func (f Format) String() string {
	switch f {
	case FormatStandard:
		return "standard"
	case FormatExtended:
		return "extended"
	default:
		return "unknown"
	}
}

// ParseFormat converts "standard" or "extended" to a Format
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "standard", "std", "":
		return FormatStandard, true
	case "extended", "ext":
		return FormatExtended, true
	}
	return FormatStandard, false
}

// GaugeType identifies one of the dashboard gauges
type GaugeType uint8

// Gauge values, in display cycle order
const (
	GaugeOilTemp GaugeType = iota
	GaugeOilPressure
	GaugeWaterTemp
	GaugeMulti
	gaugeCount
)

// Gauges lists every gauge in cycle order
var Gauges = []GaugeType{GaugeOilTemp, GaugeOilPressure, GaugeWaterTemp, GaugeMulti}

// Valid reports whether g names a known gauge
func (g GaugeType) Valid() bool {
	return g < gaugeCount
}

// Next returns the following gauge, wrapping after Multi
func (g GaugeType) Next() GaugeType {
	return (g + 1) % gaugeCount
}

// Previous returns the preceding gauge, wrapping before OilTemp
func (g GaugeType) Previous() GaugeType {
	return (g + gaugeCount - 1) % gaugeCount
}

// String returns the gauge name
func (g GaugeType) String() string {
	switch g {
	case GaugeOilTemp:
		return "OIL_TEMP"
	case GaugeOilPressure:
		return "OIL_PRESSURE"
	case GaugeWaterTemp:
		return "WATER_TEMP"
	case GaugeMulti:
		return "MULTI"
	default:
		return "UNKNOWN"
	}
}

// ParseGaugeType converts a gauge name such as "oil_temp" or "multi" to a GaugeType
func ParseGaugeType(s string) (GaugeType, bool) {
	switch s {
	case "oil_temp", "OIL_TEMP", "oil-temp":
		return GaugeOilTemp, true
	case "oil_pressure", "OIL_PRESSURE", "oil-pressure":
		return GaugeOilPressure, true
	case "water_temp", "WATER_TEMP", "water-temp":
		return GaugeWaterTemp, true
	case "multi", "MULTI":
		return GaugeMulti, true
	}
	return GaugeOilTemp, false
}

// Snapshot is the latest decoded telemetry. The zero value is the
// all-zero snapshot shown when no data is available.
type Snapshot struct {
	OilTemp       float32   `cbor:"0,keyasint" json:"oil_temp"`
	WaterTemp     float32   `cbor:"1,keyasint" json:"water_temp"`
	EngineRPM     uint32    `cbor:"2,keyasint" json:"engine_rpm"`
	OilPressure   float32   `cbor:"3,keyasint" json:"oil_pressure"`
	BrakePressure float32   `cbor:"4,keyasint" json:"brake_pressure"`
	BrakePercent  int32     `cbor:"5,keyasint" json:"brake_percent"`
	ThrottlePos   float32   `cbor:"6,keyasint" json:"throttle_pos"`
	Speed         float32   `cbor:"7,keyasint" json:"speed"`
	AccelPos      float32   `cbor:"8,keyasint" json:"accel_pos"`
	Gauge         GaugeType `cbor:"9,keyasint,omitempty" json:"gauge,omitempty"`
	Extended      bool      `cbor:"10,keyasint,omitempty" json:"extended,omitempty"`
}

// IsZero reports whether s equals the all-zero snapshot
func (s Snapshot) IsZero() bool {
	return s == Snapshot{}
}
