// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// fastConfig shrinks every timing so a real-time run completes in
// milliseconds.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Resolution = time.Millisecond
	cfg.Window = 20 * time.Millisecond
	cfg.QuietThreshold = 30 * time.Millisecond
	cfg.SettleDelay = 5 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	return cfg
}

// hostSide collects everything the device transmits.
type hostSide struct {
	conn net.Conn
	mu   sync.Mutex
	buf  bytes.Buffer
}

func newHostSide(conn net.Conn) *hostSide {
	h := &hostSide{conn: conn}
	go func() {
		p := make([]byte, 256)
		for {
			n, err := conn.Read(p)
			h.mu.Lock()
			h.buf.Write(p[:n])
			h.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	return h
}

func (h *hostSide) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.String()
}

func (h *hostSide) waitFor(t *testing.T, substr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(h.String(), substr) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q, got %q", substr, h.String())
}

func TestRun_EchoesOverPipe(t *testing.T) {
	deviceConn, hostConn := net.Pipe()
	defer hostConn.Close()

	dev, err := New(deviceConn, fastConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	host := newHostSide(hostConn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dev.Run(ctx, deviceConn) }()

	host.waitFor(t, DefaultBanner, time.Second)
	if _, err := hostConn.Write([]byte("hello, link")); err != nil {
		t.Fatalf("host write failed: %v", err)
	}
	host.waitFor(t, "hello, link", 2*time.Second)

	out := host.String()
	if !strings.Contains(out, "Speed: ") {
		t.Errorf("no speed report in %q", out)
	}
	if strings.Index(out, "Speed: ") > strings.Index(out, "hello, link") {
		t.Errorf("speed report should precede the replay: %q", out)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	deviceConn.Close()

	if got := dev.Stats().Cycles.Load(); got != 1 {
		t.Errorf("Cycles = %d, want 1", got)
	}
	if got := dev.Stats().BytesEchoed.Load(); got != uint64(len("hello, link")) {
		t.Errorf("BytesEchoed = %d", got)
	}
}

func TestRun_ReturnsWhenLinkCloses(t *testing.T) {
	deviceConn, hostConn := net.Pipe()
	defer deviceConn.Close()

	dev, err := New(deviceConn, fastConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	host := newHostSide(hostConn)

	done := make(chan error, 1)
	go func() { done <- dev.Run(context.Background(), deviceConn) }()

	host.waitFor(t, DefaultBanner, time.Second)
	hostConn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Run returned %v, want link closed (EOF)", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after link close")
	}
}

func TestRun_EventsDescribeCycle(t *testing.T) {
	deviceConn, hostConn := net.Pipe()
	defer hostConn.Close()
	defer deviceConn.Close()

	dev, err := New(deviceConn, fastConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	host := newHostSide(hostConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dev.Run(ctx, deviceConn)

	host.waitFor(t, DefaultBanner, time.Second)
	hostConn.Write([]byte("xyz"))

	var kinds []EventKind
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-dev.Events():
			kinds = append(kinds, ev.Kind)
			if ev.Kind != EventFlush {
				continue
			}
			if ev.Captured != 3 || ev.Echoed != 3 || !ev.Terminated {
				t.Errorf("flush event = %+v", ev)
			}
			want := []EventKind{EventBanner, EventCycleStart, EventReport, EventFlush}
			if len(kinds) != len(want) {
				t.Fatalf("events = %v, want %v", kinds, want)
			}
			for i := range want {
				if kinds[i] != want[i] {
					t.Fatalf("events = %v, want %v", kinds, want)
				}
			}
			return
		case <-timeout:
			t.Fatalf("no flush event, saw %v", kinds)
		}
	}
}
