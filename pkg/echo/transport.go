// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import (
	"fmt"
	"io"
	"sync"
)

// Transport is the transmit half of the serial link. Writes are byte-at-a-time
// and block until the underlying writer accepts each byte.
type Transport struct {
	mu  sync.Mutex
	w   io.Writer
	one [1]byte
}

// NewTransport wraps an already-configured link writer.
func NewTransport(w io.Writer) *Transport {
	return &Transport{w: w}
}

// SendByte blocks until c has been accepted by the link.
func (t *Transport) SendByte(c byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendByteLocked(c)
}

func (t *Transport) sendByteLocked(c byte) error {
	t.one[0] = c
	for {
		n, err := t.w.Write(t.one[:])
		if err != nil {
			return fmt.Errorf("transmit failed: %w", err)
		}
		if n == 1 {
			return nil
		}
		// Zero-length write without error: link not ready yet, retry.
	}
}

// Send transmits p by repeated SendByte. It returns the number of bytes sent
// before the first error.
func (t *Transport) Send(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range p {
		if err := t.sendByteLocked(c); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// SendString transmits s by repeated SendByte.
func (t *Transport) SendString(s string) error {
	_, err := t.Send([]byte(s))
	return err
}
