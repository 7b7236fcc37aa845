// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// HandleByte is the receive handler, invoked once per arrived byte. It is
// O(1) and never transmits. Bytes arriving while the buffer is full are
// counted but not stored.
func (d *Device) HandleByte(c byte) {
	d.mu.Lock()
	stored := d.buf.Append(c)
	if !stored {
		d.cycleDropped++
	}
	d.windowBytes++
	d.state = StateReceiving
	started := !d.dataProduced
	d.dataProduced = true
	d.lastReceiveMs = d.elapsedMs
	d.mu.Unlock()

	d.stats.BytesReceived.Inc()
	if stored {
		d.stats.BytesStored.Inc()
	} else {
		d.stats.BytesDropped.Inc()
	}
	if started {
		d.emit(Event{Kind: EventCycleStart})
	}
}

// readLoop pushes received chunks onto the dispatcher queue until the link
// closes or ctx is done. Transient read errors are logged and retried.
func (d *Device) readLoop(ctx context.Context, r io.Reader, signals chan<- signal) error {
	buf := make([]byte, 128)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case signals <- signal{data: data}:
			case <-ctx.Done():
				return nil
			}
		}
		if err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if linkClosed(err) {
			return fmt.Errorf("link closed: %w", err)
		}
		d.logf("Read error: %v", err)
		// Brief pause before retry on transient errors (e.g., serial)
		time.Sleep(10 * time.Millisecond)
	}
}

func linkClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
