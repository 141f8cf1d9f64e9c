// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrFrameSize is returned when a payload length differs from the format size
var ErrFrameSize = errors.New("frame size mismatch")

// Decode decodes a telemetry frame field by field.
// The payload length must equal format.Size() exactly; nothing is decoded otherwise.
func Decode(format Format, payload []byte) (Snapshot, error) {
	if len(payload) != format.Size() {
		return Snapshot{}, fmt.Errorf("%w: got %d bytes, expected %d (%s)", ErrFrameSize, len(payload), format.Size(), format)
	}

	le := binary.LittleEndian
	s := Snapshot{
		OilTemp:       math.Float32frombits(le.Uint32(payload[offsetOilTemp:])),
		WaterTemp:     math.Float32frombits(le.Uint32(payload[offsetWaterTemp:])),
		EngineRPM:     le.Uint32(payload[offsetEngineRPM:]),
		OilPressure:   math.Float32frombits(le.Uint32(payload[offsetOilPressure:])),
		BrakePressure: math.Float32frombits(le.Uint32(payload[offsetBrakePressure:])),
		BrakePercent:  int32(le.Uint32(payload[offsetBrakePercent:])),
		ThrottlePos:   math.Float32frombits(le.Uint32(payload[offsetThrottlePos:])),
		Speed:         math.Float32frombits(le.Uint32(payload[offsetSpeed:])),
		AccelPos:      math.Float32frombits(le.Uint32(payload[offsetAccelPos:])),
	}

	if format == FormatExtended {
		s.Gauge = GaugeType(payload[offsetGaugeType])
		s.Extended = true
	}

	return s, nil
}

// Encode builds a telemetry frame in the given format
func Encode(s Snapshot, format Format) []byte {
	buf := make([]byte, format.Size())

	le := binary.LittleEndian
	le.PutUint32(buf[offsetOilTemp:], math.Float32bits(s.OilTemp))
	le.PutUint32(buf[offsetWaterTemp:], math.Float32bits(s.WaterTemp))
	le.PutUint32(buf[offsetEngineRPM:], s.EngineRPM)
	le.PutUint32(buf[offsetOilPressure:], math.Float32bits(s.OilPressure))
	le.PutUint32(buf[offsetBrakePressure:], math.Float32bits(s.BrakePressure))
	le.PutUint32(buf[offsetBrakePercent:], uint32(s.BrakePercent))
	le.PutUint32(buf[offsetThrottlePos:], math.Float32bits(s.ThrottlePos))
	le.PutUint32(buf[offsetSpeed:], math.Float32bits(s.Speed))
	le.PutUint32(buf[offsetAccelPos:], math.Float32bits(s.AccelPos))

	if format == FormatExtended {
		buf[offsetGaugeType] = uint8(s.Gauge)
	}

	return buf
}
