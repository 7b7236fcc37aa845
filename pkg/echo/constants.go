// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package echo implements the echometer loop-back device.
//
// A Device accumulates a burst of bytes received from a host, reports the
// instantaneous receive rate once per throughput window, and replays the
// whole burst back to the host after the link has been quiet for a fixed
// period. Bytes and timer ticks are delivered as events and handled from a
// single dispatcher goroutine; the flush engine runs in the main poll loop.
// All state shared between the two is guarded by one mutex.
package echo

import "time"

// Buffer geometry
const (
	DefaultCapacity = 1000
	SentinelByte    = 0xFF // fill value for cleared positions
	TerminatorByte  = 0x00 // end marker written at flush time
)

// Link parameters
const (
	DefaultBaudRate = 2400
	DataBits        = 8
)

// Timing
const (
	DefaultResolution     = 10 * time.Millisecond
	DefaultWindow         = 1000 * time.Millisecond
	DefaultQuietThreshold = 1000 * time.Millisecond
	DefaultSettleDelay    = 500 * time.Millisecond
	DefaultPollInterval   = 10 * time.Millisecond
)

// Queues
const (
	DefaultEventQueue  = 256
	DefaultReportQueue = 8
)

// DefaultBanner is sent once after startup, before the first receive.
const DefaultBanner = "Ready to receive\n"

// ReportFormat is the diagnostic line emitted once per closed window.
const ReportFormat = "Speed: %d bps\n"

// CycleState is the receive state of the current cycle.
type CycleState uint8

const (
	StateIdle CycleState = iota
	StateReceiving
)

func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateReceiving:
		return "RECEIVING"
	default:
		return "UNKNOWN"
	}
}

// ReplayMode selects how the flush engine finds the end of captured data.
type ReplayMode uint8

const (
	// ReplaySentinel stops at the first terminator or sentinel byte, so
	// payload bytes equal to either marker cut the replay short.
	ReplaySentinel ReplayMode = iota
	// ReplayLength replays exactly the bytes below the write cursor.
	ReplayLength
)

func (m ReplayMode) String() string {
	switch m {
	case ReplaySentinel:
		return "sentinel"
	case ReplayLength:
		return "length"
	default:
		return "unknown"
	}
}

// ParseReplayMode parses the config spelling of a replay mode.
func ParseReplayMode(s string) (ReplayMode, bool) {
	switch s {
	case "", "sentinel":
		return ReplaySentinel, true
	case "length":
		return ReplayLength, true
	default:
		return 0, false
	}
}
