// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStatistics_PeakSpeed(t *testing.T) {
	s := NewStatistics()
	for _, bps := range []uint64{800, 2400, 1600} {
		s.recordSpeed(bps)
	}
	if got := s.LastSpeed.Load(); got != 1600 {
		t.Errorf("LastSpeed = %d, want 1600", got)
	}
	if got := s.PeakSpeed.Load(); got != 2400 {
		t.Errorf("PeakSpeed = %d, want 2400", got)
	}
}

func TestStatistics_StringHidesZeroErrors(t *testing.T) {
	s := NewStatistics()
	s.Cycles.Inc()
	out := s.String()
	if !strings.Contains(out, "Cycles:") {
		t.Errorf("summary missing cycles:\n%s", out)
	}
	if strings.Contains(out, "Dropped") || strings.Contains(out, "Transmit Errors") {
		t.Errorf("summary shows zero error counters:\n%s", out)
	}

	s.BytesDropped.Add(3)
	if !strings.Contains(s.String(), "Bytes Dropped:") {
		t.Error("summary should show dropped bytes once non-zero")
	}
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 6000000, time.UTC)
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"report", Event{Kind: EventReport, Time: at, Speed: 2400}, "[03:04:05.006] REPORT 2400 bps"},
		{"flush", Event{Kind: EventFlush, Time: at, Captured: 4, Echoed: 4, Terminated: true}, "[03:04:05.006] FLUSH captured=4 echoed=4"},
		{"truncated", Event{Kind: EventFlush, Time: at, Captured: 10, Echoed: 5, Terminated: true}, "(truncated at byte 5)"},
		{"full", Event{Kind: EventFlush, Time: at, Captured: 1000, Echoed: 1000, Dropped: 1}, "dropped=1 (buffer full, no end marker)"},
		{"transmit error", Event{Kind: EventTransmitError, Time: at, Err: errors.New("boom")}, "TRANSMIT_ERROR boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatEvent(tt.ev); !strings.Contains(got, tt.want) {
				t.Errorf("FormatEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}
