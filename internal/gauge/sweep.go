// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gauge

import (
	"time"

	"github.com/Thermoquad/gaugelink/pkg/telemetry"
)

// Sweep animation timing
const (
	SweepPeriod = 12 * time.Second
	sweepUp     = 9 * time.Second
	sweepDown   = SweepPeriod - sweepUp
)

// SweepSnapshot returns the test-animation telemetry at elapsed.
// Over each period oil temperature rises 60 to 160 and water 60 to 140 in
// nine seconds, then both fall back in three. The other fields follow along
// so every gauge moves.
func SweepSnapshot(elapsed time.Duration) telemetry.Snapshot {
	t := int64((elapsed % SweepPeriod) / time.Millisecond)
	up := int64(sweepUp / time.Millisecond)
	down := int64(sweepDown / time.Millisecond)

	var oil, water, frac int64
	if t < up {
		oil = 60 + (100*t)/up
		water = 60 + (80*t)/up
		frac = (1000 * t) / up
	} else {
		t2 := t - up
		oil = 160 - (100*t2)/down
		water = 140 - (80*t2)/down
		frac = 1000 - (1000*t2)/down
	}

	rpm := uint32(800 + (6200*frac)/1000)
	return telemetry.Snapshot{
		OilTemp:       float32(oil),
		WaterTemp:     float32(water),
		EngineRPM:     rpm,
		OilPressure:   float32(frac) * 7.5 / 1000,
		BrakePressure: 0,
		BrakePercent:  0,
		ThrottlePos:   float32(frac) / 10,
		Speed:         float32(frac) * 0.2,
		AccelPos:      float32(frac) / 10,
	}
}
