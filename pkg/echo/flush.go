// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// flushResult is what the freeze step hands to the transmit step.
type flushResult struct {
	replay     []byte
	captured   int
	dropped    int
	terminated bool
}

// Poll runs one iteration of the main loop: it transmits pending speed
// reports, then flushes if the link has been quiet long enough. It returns
// true when a flush happened. A transmit error does not undo the flush.
func (d *Device) Poll(ctx context.Context) (bool, error) {
	reportErr := d.sendReports()

	if !d.quiet() {
		return false, reportErr
	}

	// Bytes arriving during the settle delay are still captured.
	if err := d.sleep(ctx, d.cfg.SettleDelay); err != nil {
		return false, err
	}

	res := d.freeze()
	n, err := d.tx.Send(res.replay)

	d.stats.BytesEchoed.Add(uint64(n))
	d.stats.Cycles.Inc()
	d.emit(Event{
		Kind:       EventFlush,
		Captured:   res.captured,
		Echoed:     n,
		Dropped:    res.dropped,
		Terminated: res.terminated,
	})

	if err != nil {
		d.stats.TransmitErrors.Inc()
		d.emit(Event{Kind: EventTransmitError, Err: err})
		return true, fmt.Errorf("replay interrupted after %d of %d bytes: %w", n, len(res.replay), err)
	}
	return true, reportErr
}

// quiet evaluates the flush trigger as one atomic snapshot.
func (d *Device) quiet() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dataProduced &&
		d.state == StateIdle &&
		d.elapsedMs-d.lastReceiveMs > d.cfg.QuietThreshold.Milliseconds()
}

// freeze terminates the capture, copies out the replay, clears the store and
// resets the cycle to Idle, all inside one critical section. Bytes that
// arrive after freeze returns belong to the next cycle.
func (d *Device) freeze() flushResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := flushResult{
		captured:   d.buf.Cursor(),
		dropped:    d.cycleDropped,
		terminated: d.buf.Terminate(d.cfg.Terminator),
	}
	switch d.cfg.Replay {
	case ReplayLength:
		res.replay = d.buf.Used()
	default:
		res.replay = d.buf.ScanReplay(d.cfg.Terminator)
	}

	d.buf.Clear()
	d.cycleDropped = 0
	d.dataProduced = false
	d.state = StateIdle
	d.lastReceiveMs = d.elapsedMs
	return res
}

// sendReports transmits every queued speed report.
func (d *Device) sendReports() error {
	for {
		select {
		case bps := <-d.reports:
			if err := d.tx.SendString(fmt.Sprintf(ReportFormat, bps)); err != nil {
				d.stats.TransmitErrors.Inc()
				d.emit(Event{Kind: EventTransmitError, Err: err})
				return err
			}
			d.stats.ReportsSent.Inc()
		default:
			return nil
		}
	}
}

// pollLoop runs Poll every PollInterval until ctx is done.
func (d *Device) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := d.Poll(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			d.logf("Flush error: %v", err)
		}
	}
}
