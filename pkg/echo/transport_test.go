// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import (
	"bytes"
	"errors"
	"testing"
)

// stallWriter accepts nothing on every other write, like a busy link.
type stallWriter struct {
	out   bytes.Buffer
	calls int
	limit int // fail after this many accepted bytes (0 = never)
}

var errLinkDown = errors.New("link down")

func (w *stallWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.limit > 0 && w.out.Len() >= w.limit {
		return 0, errLinkDown
	}
	if w.calls%2 == 1 {
		return 0, nil
	}
	return w.out.Write(p)
}

func TestTransport_SendStringRetriesStalls(t *testing.T) {
	w := &stallWriter{}
	tx := NewTransport(w)

	if err := tx.SendString("Speed: 8 bps\n"); err != nil {
		t.Fatalf("SendString failed: %v", err)
	}
	if got := w.out.String(); got != "Speed: 8 bps\n" {
		t.Errorf("sent %q", got)
	}
	if want := 2 * len("Speed: 8 bps\n"); w.calls != want {
		t.Errorf("writer called %d times, want %d (one byte per write)", w.calls, want)
	}
}

func TestTransport_SendStopsOnError(t *testing.T) {
	w := &stallWriter{limit: 3}
	tx := NewTransport(w)

	n, err := tx.Send([]byte("abcdef"))
	if !errors.Is(err, errLinkDown) {
		t.Fatalf("err = %v, want errLinkDown", err)
	}
	if n != 3 {
		t.Errorf("sent %d bytes before error, want 3", n)
	}
}

func TestTransport_SendByte(t *testing.T) {
	var out bytes.Buffer
	tx := NewTransport(&out)
	if err := tx.SendByte(0x7E); err != nil {
		t.Fatalf("SendByte failed: %v", err)
	}
	if !bytes.Equal(out.Bytes(), []byte{0x7E}) {
		t.Errorf("sent %x", out.Bytes())
	}
}
