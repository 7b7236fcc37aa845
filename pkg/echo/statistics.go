// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// Statistics tracks lifetime device counters. Fields are atomics so that
// observers can read them without taking the device lock.
type Statistics struct {
	StartTime time.Time

	// Counters
	BytesReceived  atomic.Uint64
	BytesStored    atomic.Uint64
	BytesDropped   atomic.Uint64 // arrived while the buffer was full
	BytesEchoed    atomic.Uint64
	Cycles         atomic.Uint64 // completed flushes
	Windows        atomic.Uint64 // closed windows with a report
	ReportsSent    atomic.Uint64
	ReportsDropped atomic.Uint64 // report queue was full
	TransmitErrors atomic.Uint64

	// Speeds in bps
	LastSpeed atomic.Uint64
	PeakSpeed atomic.Uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// recordSpeed updates the last and peak speed.
func (s *Statistics) recordSpeed(bps uint64) {
	s.LastSpeed.Store(bps)
	for {
		peak := s.PeakSpeed.Load()
		if bps <= peak || s.PeakSpeed.CompareAndSwap(peak, bps) {
			return
		}
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Cycles:          %8d\n", s.Cycles.Load())
	result += fmt.Sprintf("Bytes Received:  %8d\n", s.BytesReceived.Load())
	result += fmt.Sprintf("Bytes Stored:    %8d\n", s.BytesStored.Load())
	if dropped := s.BytesDropped.Load(); dropped > 0 {
		result += fmt.Sprintf("Bytes Dropped:   %8d (buffer full)\n", dropped)
	}
	result += fmt.Sprintf("Bytes Echoed:    %8d\n", s.BytesEchoed.Load())
	result += fmt.Sprintf("Speed Reports:   %8d\n", s.ReportsSent.Load())
	if dropped := s.ReportsDropped.Load(); dropped > 0 {
		result += fmt.Sprintf("  Dropped:         %6d\n", dropped)
	}
	if errs := s.TransmitErrors.Load(); errs > 0 {
		result += fmt.Sprintf("Transmit Errors: %8d\n", errs)
	}
	result += fmt.Sprintf("Last Speed:      %8d bps\n", s.LastSpeed.Load())
	result += fmt.Sprintf("Peak Speed:      %8d bps\n", s.PeakSpeed.Load())
	result += "================================\n"

	return result
}
