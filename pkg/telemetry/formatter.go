// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"strings"
)

// FormatSnapshot formats a snapshot into a human-readable multi-line string
func FormatSnapshot(s Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "  Oil:      %6.1f °C  %5.2f bar\n", s.OilTemp, s.OilPressure)
	fmt.Fprintf(&b, "  Water:    %6.1f °C\n", s.WaterTemp)
	fmt.Fprintf(&b, "  Engine:   %6d rpm  %5.1f km/h\n", s.EngineRPM, s.Speed)
	fmt.Fprintf(&b, "  Brake:    %6.1f bar  %3d%%\n", s.BrakePressure, s.BrakePercent)
	fmt.Fprintf(&b, "  Throttle: %6.1f %%   Accel: %5.1f %%\n", s.ThrottlePos, s.AccelPos)
	if s.Extended {
		fmt.Fprintf(&b, "  Gauge:    %s (%d)\n", s.Gauge, uint8(s.Gauge))
	}

	return b.String()
}

// FormatSummary formats a snapshot as a single line
func FormatSummary(s Snapshot) string {
	line := fmt.Sprintf("oil=%.1f°C/%.2fbar water=%.1f°C rpm=%d speed=%.1f throttle=%.0f%% brake=%d%%",
		s.OilTemp, s.OilPressure, s.WaterTemp, s.EngineRPM, s.Speed, s.ThrottlePos, s.BrakePercent)
	if s.Extended {
		line += " gauge=" + s.Gauge.String()
	}
	return line
}
