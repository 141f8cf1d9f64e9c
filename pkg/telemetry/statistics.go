// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	AcceptedFrames  uint64
	SizeMismatches  uint64
	StaleEvents     uint64
	AnomalousValues uint64
	NotFinite       uint64
	OutOfRange      uint64
	HighRPM         uint64
	InvalidGauge    uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // rejected frames/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordFrame counts one received frame
func (s *Statistics) RecordFrame(accepted bool) {
	s.TotalFrames++
	if accepted {
		s.AcceptedFrames++
	} else {
		s.SizeMismatches++
	}
	s.LastUpdateTime = time.Now()
}

// RecordStale counts one transition from live to stale data
func (s *Statistics) RecordStale() {
	s.StaleEvents++
}

// RecordAnomalies counts validation errors for an accepted frame
func (s *Statistics) RecordAnomalies(validationErrors []ValidationError) {
	for _, err := range validationErrors {
		s.AnomalousValues++
		switch err.Type {
		case AnomalyNotFinite:
			s.NotFinite++
		case AnomalyOutOfRange:
			s.OutOfRange++
		case AnomalyHighRPM:
			s.HighRPM++
		case AnomalyInvalidGauge:
			s.InvalidGauge++
		}
	}
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.SizeMismatches) / elapsed
	}
}

// AcceptedPercent returns the share of frames that passed the length gate
func (s *Statistics) AcceptedPercent() float64 {
	if s.TotalFrames == 0 {
		return 0
	}
	return float64(s.AcceptedFrames) * 100.0 / float64(s.TotalFrames)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var mismatchPercent float64
	if s.TotalFrames > 0 {
		mismatchPercent = float64(s.SizeMismatches) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Accepted:        %8d (%.1f%%)\n", s.AcceptedFrames, s.AcceptedPercent())

	if s.SizeMismatches > 0 {
		result += fmt.Sprintf("Size Mismatch:   %8d (%.1f%%)\n", s.SizeMismatches, mismatchPercent)
	}
	if s.StaleEvents > 0 {
		result += fmt.Sprintf("Stale Events:    %8d\n", s.StaleEvents)
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", s.AnomalousValues)
		if s.NotFinite > 0 {
			result += fmt.Sprintf("  Not Finite:       %5d\n", s.NotFinite)
		}
		if s.OutOfRange > 0 {
			result += fmt.Sprintf("  Out of Range:     %5d\n", s.OutOfRange)
		}
		if s.HighRPM > 0 {
			result += fmt.Sprintf("  High RPM (>%d): %5d\n", MaxEngineRPM, s.HighRPM)
		}
		if s.InvalidGauge > 0 {
			result += fmt.Sprintf("  Invalid Gauge:    %5d\n", s.InvalidGauge)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
