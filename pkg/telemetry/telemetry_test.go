// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		OilTemp:       102.5,
		WaterTemp:     88.25,
		EngineRPM:     4200,
		OilPressure:   3.75,
		BrakePressure: 12.5,
		BrakePercent:  40,
		ThrottlePos:   55.5,
		Speed:         121.0,
		AccelPos:      60.0,
	}
}

// ============================================================
// Codec Tests
// ============================================================

func TestDecode_KnownBytes(t *testing.T) {
	frame := []byte{
		0x00, 0x00, 0x80, 0x3F, // oilTemp 1.0
		0x00, 0x00, 0x00, 0x40, // waterTemp 2.0
		0xB8, 0x0B, 0x00, 0x00, // engineRPM 3000
		0x00, 0x00, 0x40, 0x40, // oilPressure 3.0
		0x00, 0x00, 0x80, 0x40, // brakePressure 4.0
		0xFF, 0xFF, 0xFF, 0xFF, // brakePercent -1
		0x00, 0x00, 0xA0, 0x40, // throttlePos 5.0
		0x00, 0x00, 0xC0, 0x40, // speed 6.0
		0x00, 0x00, 0xE0, 0x40, // accelPos 7.0
	}

	s, err := Decode(FormatStandard, frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Snapshot{
		OilTemp:       1,
		WaterTemp:     2,
		EngineRPM:     3000,
		OilPressure:   3,
		BrakePressure: 4,
		BrakePercent:  -1,
		ThrottlePos:   5,
		Speed:         6,
		AccelPos:      7,
	}
	if s != want {
		t.Errorf("got %+v, want %+v", s, want)
	}

	extended := append(append([]byte{}, frame...), byte(GaugeWaterTemp))
	s, err = Decode(FormatExtended, extended)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Extended || s.Gauge != GaugeWaterTemp {
		t.Errorf("extended fields: gauge=%s extended=%v", s.Gauge, s.Extended)
	}
	if s.EngineRPM != 3000 {
		t.Errorf("engineRPM: got %d", s.EngineRPM)
	}
}

func TestDecode_LengthGate(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		length int
		ok     bool
	}{
		{"standard exact", FormatStandard, 36, true},
		{"standard short", FormatStandard, 35, false},
		{"standard long", FormatStandard, 37, false},
		{"standard empty", FormatStandard, 0, false},
		{"extended exact", FormatExtended, 37, true},
		{"extended given standard", FormatExtended, 36, false},
		{"extended long", FormatExtended, 38, false},
		{"oversized", FormatStandard, 250, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode(tt.format, make([]byte, tt.length))
			if tt.ok {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrFrameSize) {
				t.Errorf("expected ErrFrameSize, got %v", err)
			}
			if !s.IsZero() {
				t.Errorf("rejected frame produced data: %+v", s)
			}
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	s := sampleSnapshot()

	got, err := Decode(FormatStandard, Encode(s, FormatStandard))
	if err != nil {
		t.Fatalf("standard decode failed: %v", err)
	}
	if got != s {
		t.Errorf("standard: got %+v, want %+v", got, s)
	}

	s.Gauge = GaugeMulti
	s.Extended = true
	got, err = Decode(FormatExtended, Encode(s, FormatExtended))
	if err != nil {
		t.Fatalf("extended decode failed: %v", err)
	}
	if got != s {
		t.Errorf("extended: got %+v, want %+v", got, s)
	}
}

func TestEncode_Size(t *testing.T) {
	if n := len(Encode(Snapshot{}, FormatStandard)); n != StandardFrameSize {
		t.Errorf("standard frame size %d", n)
	}
	if n := len(Encode(Snapshot{}, FormatExtended)); n != ExtendedFrameSize {
		t.Errorf("extended frame size %d", n)
	}
}

// ============================================================
// Gauge Type Tests
// ============================================================

func TestGaugeType_Cycle(t *testing.T) {
	g := GaugeOilTemp
	for i := 0; i < len(Gauges); i++ {
		if g != Gauges[i] {
			t.Errorf("step %d: got %s, want %s", i, g, Gauges[i])
		}
		g = g.Next()
	}
	if g != GaugeOilTemp {
		t.Errorf("four Next calls should wrap to OIL_TEMP, got %s", g)
	}

	if p := GaugeOilTemp.Previous(); p != GaugeMulti {
		t.Errorf("Previous of OIL_TEMP: got %s, want MULTI", p)
	}
	if p := GaugeMulti.Previous(); p != GaugeWaterTemp {
		t.Errorf("Previous of MULTI: got %s, want WATER_TEMP", p)
	}
}

func TestGaugeType_Valid(t *testing.T) {
	for _, g := range Gauges {
		if !g.Valid() {
			t.Errorf("%s should be valid", g)
		}
	}
	if GaugeType(4).Valid() {
		t.Error("gauge 4 should be invalid")
	}
	if GaugeType(200).String() != "UNKNOWN" {
		t.Error("unknown gauge should format as UNKNOWN")
	}
}

func TestParseGaugeType(t *testing.T) {
	if g, ok := ParseGaugeType("oil_pressure"); !ok || g != GaugeOilPressure {
		t.Errorf("oil_pressure: got %s ok=%v", g, ok)
	}
	if g, ok := ParseGaugeType("multi"); !ok || g != GaugeMulti {
		t.Errorf("multi: got %s ok=%v", g, ok)
	}
	if _, ok := ParseGaugeType("boost"); ok {
		t.Error("boost should not parse")
	}
}

func TestParseFormat(t *testing.T) {
	if f, ok := ParseFormat("extended"); !ok || f != FormatExtended {
		t.Errorf("extended: got %s ok=%v", f, ok)
	}
	if f, ok := ParseFormat("standard"); !ok || f != FormatStandard {
		t.Errorf("standard: got %s ok=%v", f, ok)
	}
	if _, ok := ParseFormat("v2"); ok {
		t.Error("v2 should not parse")
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateSnapshot_Clean(t *testing.T) {
	if errs := ValidateSnapshot(sampleSnapshot()); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if errs := ValidateSnapshot(Snapshot{}); len(errs) != 0 {
		t.Errorf("zero snapshot should be valid, got %v", errs)
	}
}

func TestValidateSnapshot_Anomalies(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
		want   AnomalyType
		field  string
	}{
		{"NaN oil temp", func(s *Snapshot) { s.OilTemp = float32(math.NaN()) }, AnomalyNotFinite, "oil_temp"},
		{"Inf speed", func(s *Snapshot) { s.Speed = float32(math.Inf(1)) }, AnomalyNotFinite, "speed"},
		{"hot water", func(s *Snapshot) { s.WaterTemp = 180 }, AnomalyOutOfRange, "water_temp"},
		{"negative pressure", func(s *Snapshot) { s.OilPressure = -1 }, AnomalyOutOfRange, "oil_pressure"},
		{"brake percent", func(s *Snapshot) { s.BrakePercent = 101 }, AnomalyOutOfRange, "brake_percent"},
		{"high rpm", func(s *Snapshot) { s.EngineRPM = 12000 }, AnomalyHighRPM, "engine_rpm"},
		{"bad gauge", func(s *Snapshot) { s.Extended = true; s.Gauge = 7 }, AnomalyInvalidGauge, "gauge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleSnapshot()
			tt.mutate(&s)
			errs := ValidateSnapshot(s)
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
			}
			if errs[0].Type != tt.want || errs[0].Field != tt.field {
				t.Errorf("got %s on %s, want %s on %s", errs[0].Type, errs[0].Field, tt.want, tt.field)
			}
			if errs[0].Error() == "" {
				t.Error("empty error message")
			}
		})
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Counters(t *testing.T) {
	s := NewStatistics()
	s.RecordFrame(true)
	s.RecordFrame(true)
	s.RecordFrame(false)
	s.RecordStale()
	s.RecordAnomalies([]ValidationError{{Type: AnomalyHighRPM}, {Type: AnomalyOutOfRange}})

	if s.TotalFrames != 3 || s.AcceptedFrames != 2 || s.SizeMismatches != 1 {
		t.Errorf("frame counters: total=%d accepted=%d mismatched=%d", s.TotalFrames, s.AcceptedFrames, s.SizeMismatches)
	}
	if s.StaleEvents != 1 {
		t.Errorf("stale events: %d", s.StaleEvents)
	}
	if s.AnomalousValues != 2 || s.HighRPM != 1 || s.OutOfRange != 1 {
		t.Errorf("anomaly counters: total=%d rpm=%d range=%d", s.AnomalousValues, s.HighRPM, s.OutOfRange)
	}

	out := s.String()
	for _, want := range []string{"Total Frames:", "Size Mismatch:", "Stale Events:", "High RPM"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	s.Reset()
	if s.TotalFrames != 0 || s.AnomalousValues != 0 || s.StaleEvents != 0 {
		t.Error("Reset did not clear counters")
	}
}

// ============================================================
// Formatting and Export Tests
// ============================================================

func TestFormatSummary(t *testing.T) {
	line := FormatSummary(sampleSnapshot())
	for _, want := range []string{"rpm=4200", "oil=102.5", "water=88."} {
		if !strings.Contains(line, want) {
			t.Errorf("summary %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "gauge=") {
		t.Error("standard snapshot should not show a gauge")
	}
}

func TestCBOR_RoundTrip(t *testing.T) {
	s := sampleSnapshot()
	s.Extended = true
	s.Gauge = GaugeOilPressure

	data, err := MarshalCBOR(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	got, err := UnmarshalCBOR(data)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got != s {
		t.Errorf("got %+v, want %+v", got, s)
	}

	if _, err := UnmarshalCBOR(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}
