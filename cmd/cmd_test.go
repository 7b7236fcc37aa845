// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/echometer/pkg/echo"
	"github.com/Thermoquad/echometer/pkg/probe"
	"github.com/gorilla/websocket"
	"go.bug.st/serial/enumerator"
)

func fastDeviceConfig() echo.Config {
	cfg := echo.DefaultConfig()
	cfg.Resolution = time.Millisecond
	cfg.Window = 20 * time.Millisecond
	cfg.QuietThreshold = 30 * time.Millisecond
	cfg.SettleDelay = 5 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	return cfg
}

func TestWebSocketBridge_EndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	runErr := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			runErr <- err
			return
		}
		conn := &WebSocketConnection{conn: ws}
		defer conn.Close()

		dev, err := echo.New(conn, fastDeviceConfig())
		if err != nil {
			runErr <- err
			return
		}
		runErr <- dev.Run(context.Background(), conn)
	}))
	defer srv.Close()

	conn, err := OpenWebSocketConnection("ws"+strings.TrimPrefix(srv.URL, "http"), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection failed: %v", err)
	}

	res, err := probe.Run(context.Background(), conn, []byte("over the bridge"), probe.Options{
		IdleTimeout: 50 * time.Millisecond,
		MaxWait:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("probe.Run failed: %v", err)
	}
	if !res.Verify.Match {
		t.Errorf("echo %q does not match: %s", res.Echo, res.Verify)
	}
	if res.Banners != 1 {
		t.Errorf("Banners = %d, want 1", res.Banners)
	}

	// Closing the client ends the device run.
	conn.Close()
	select {
	case err := <-runErr:
		if !errors.Is(err, ErrConnectionClosed) || !errors.Is(err, io.EOF) {
			t.Errorf("device Run returned %v, want connection closed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("device did not stop after the client closed")
	}
}

func TestWebSocketConnection_ReadsBinaryOnly(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.WriteMessage(websocket.TextMessage, []byte("status"))
		ws.WriteMessage(websocket.BinaryMessage, []byte("Speed: 8 bps\n"))
		ws.Close()
	}))
	defer srv.Close()

	conn, err := OpenWebSocketConnection("ws"+strings.TrimPrefix(srv.URL, "http"), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection failed: %v", err)
	}
	defer conn.Close()

	// A small buffer forces the message to be returned in pieces.
	var got []byte
	buf := make([]byte, 4)
	var readErr error
	for readErr == nil {
		var n int
		n, readErr = conn.Read(buf)
		got = append(got, buf[:n]...)
	}
	if string(got) != "Speed: 8 bps\n" {
		t.Errorf("read %q, want only the binary message", got)
	}
	if !errors.Is(readErr, ErrConnectionClosed) {
		t.Errorf("err = %v, want ErrConnectionClosed", readErr)
	}
	if _, err := conn.Read(buf); !errors.Is(err, io.EOF) {
		t.Errorf("read after close: err = %v, want io.EOF", err)
	}
}

func TestOpenWebSocketConnection_RejectsScheme(t *testing.T) {
	_, err := OpenWebSocketConnection("http://localhost/ws", "", "", false)
	if err == nil || !strings.Contains(err.Error(), "unsupported URL scheme") {
		t.Errorf("error = %v, want unsupported scheme", err)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{61000, "1 minute and 1 second"},
		{3600000, "1 hour"},
		{90061000, "1 day, 1 hour, 1 minute, and 1 second"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.ms); got != tt.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestLoadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, []byte{0x01, 0x02}, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := loadPayload("", path)
	if err != nil || !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Errorf("file payload = %v, %v", got, err)
	}
	got, _ = loadPayload("AB", "")
	if string(got) != "AB" {
		t.Errorf("text payload = %q", got)
	}
	got, _ = loadPayload("", "")
	if string(got) != defaultPayload {
		t.Error("default payload not used")
	}
	if _, err := loadPayload("", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestDefaultPayload_FitsDevice(t *testing.T) {
	v := probe.Verify([]byte(defaultPayload), []byte(defaultPayload), echo.DefaultConfig())
	if !v.Match || v.Truncated {
		t.Errorf("default payload would not echo intact: %s", v)
	}
}

func TestSendDeviceConfig(t *testing.T) {
	t.Cleanup(func() {
		for _, name := range []string{"config", "capacity", "replay"} {
			f := sendCmd.Flags().Lookup(name)
			f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})

	path := filepath.Join(t.TempDir(), "device.yaml")
	if err := os.WriteFile(path, []byte("sentinel: 0x2A\ncapacity: 64\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := sendCmd.Flags().Set("config", path); err != nil {
		t.Fatal(err)
	}

	cfg, err := sendDeviceConfig(sendCmd)
	if err != nil {
		t.Fatalf("sendDeviceConfig failed: %v", err)
	}
	if cfg.Sentinel != '*' || cfg.Capacity != 64 || cfg.Replay != echo.ReplaySentinel {
		t.Errorf("config = sentinel %#x, capacity %d, replay %s", cfg.Sentinel, cfg.Capacity, cfg.Replay)
	}
	if v := probe.Verify([]byte("abc*def"), []byte("abc"), cfg); !v.Match {
		t.Errorf("echo cut at the configured sentinel not accepted: %s", v)
	}

	if err := sendCmd.Flags().Set("replay", "length"); err != nil {
		t.Fatal(err)
	}
	cfg, err = sendDeviceConfig(sendCmd)
	if err != nil {
		t.Fatalf("sendDeviceConfig failed: %v", err)
	}
	if cfg.Replay != echo.ReplayLength || cfg.Capacity != 64 {
		t.Errorf("--replay override: replay %s, capacity %d", cfg.Replay, cfg.Capacity)
	}

	if err := sendCmd.Flags().Set("capacity", "0"); err != nil {
		t.Fatal(err)
	}
	if _, err := sendDeviceConfig(sendCmd); err == nil {
		t.Error("expected an error for --capacity 0")
	}
}

func TestBitcount_LeadingZerosCounted(t *testing.T) {
	c := probe.CountBits([]byte("A"))
	if c.Zeros != 6 {
		t.Errorf("zeros in 'A' = %d, want 6", c.Zeros)
	}
	if !strings.Contains(bitcountCmd.Long, "leading zeros") {
		t.Error("bitcount help does not say leading zeros are counted")
	}
}

func TestRunDevice_RejectsStatsInterval(t *testing.T) {
	saved := statsInterval
	t.Cleanup(func() { statsInterval = saved })

	for _, v := range []int{0, -5} {
		statsInterval = v
		err := runDevice(deviceCmd, nil)
		if err == nil || !strings.Contains(err.Error(), "--stats-interval") {
			t.Errorf("stats interval %d: err = %v, want a --stats-interval error", v, err)
		}
	}
}

func TestPrintRecord(t *testing.T) {
	rec := probe.Record{
		Version:     probe.RecordVersion,
		StartedMs:   time.Now().UnixMilli(),
		Link:        "/dev/ttyUSB0",
		Sent:        []byte("abc"),
		Echo:        []byte("abx"),
		Reports:     []uint64{24},
		SendMs:      12,
		EchoDelayMs: 1510,
		MismatchAt:  2,
	}

	var buf bytes.Buffer
	printRecord(&buf, 0, rec, true)
	out := buf.String()

	for _, want := range []string{"MISMATCH at byte 2", "Link: /dev/ttyUSB0", "after 1510 ms", "[24] bps", `Echo:    "abx"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDescribeEvent(t *testing.T) {
	ev := echo.Event{Kind: echo.EventFlush, Captured: 1000, Echoed: 1000, Dropped: 1}
	if got := describeEvent(ev); got != "Echoed 1000 of 1000 captured bytes, 1 dropped" {
		t.Errorf("describeEvent = %q", got)
	}
	if got := describeEvent(echo.Event{Kind: echo.EventReport, Speed: 8008}); got != "Speed: 8008 bps" {
		t.Errorf("describeEvent = %q", got)
	}
}

func TestFormatPort(t *testing.T) {
	usb := &enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", SerialNumber: "A1", Product: "Uno"}
	if got := formatPort(usb); got != "  /dev/ttyACM0  USB 2341:0043 serial=A1 (Uno)" {
		t.Errorf("formatPort(usb) = %q", got)
	}
	if got := formatPort(&enumerator.PortDetails{Name: "/dev/ttyS0"}); got != "  /dev/ttyS0" {
		t.Errorf("formatPort(plain) = %q", got)
	}
}
