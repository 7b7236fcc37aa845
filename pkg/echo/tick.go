// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import (
	"context"
	"time"
)

// HandleTick is the timer handler, invoked once per Resolution. It advances
// the millisecond counter and, when a window closes while bytes are arriving,
// queues a speed report and returns the cycle to Idle. The window byte count
// resets at every window close.
//
// Rebasing the elapsed counter to zero shifts the last-receive timestamp by
// the same amount inside the same critical section, so the quiet duration
// seen by the flush engine is continuous across window closes.
func (d *Device) HandleTick() {
	step := d.cfg.Resolution.Milliseconds()
	window := d.cfg.Window.Milliseconds()

	d.mu.Lock()
	d.elapsedMs += step
	d.windowMs += step
	if d.windowMs < window {
		d.mu.Unlock()
		return
	}

	d.windowMs = 0
	count := d.windowBytes
	d.windowBytes = 0
	if d.state != StateReceiving {
		d.mu.Unlock()
		return
	}

	bps := windowSpeed(count, window)
	d.lastReceiveMs -= d.elapsedMs
	d.elapsedMs = 0
	d.state = StateIdle
	d.mu.Unlock()

	d.stats.Windows.Inc()
	d.stats.recordSpeed(bps)
	select {
	case d.reports <- bps:
	default:
		d.stats.ReportsDropped.Inc()
	}
	d.emit(Event{Kind: EventReport, Speed: bps})
}

// windowSpeed converts a per-window byte count to bits per second. For the
// nominal one second window this is exactly bytes*8.
func windowSpeed(bytes uint64, windowMs int64) uint64 {
	return bytes * DataBits * 1000 / uint64(windowMs)
}

// tickLoop is the periodic timer. Ticks are never dropped: a full queue
// delays the tick rather than losing time.
func (d *Device) tickLoop(ctx context.Context, signals chan<- signal) {
	ticker := time.NewTicker(d.cfg.Resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case signals <- signal{tick: true}:
			case <-ctx.Done():
				return
			}
		}
	}
}
