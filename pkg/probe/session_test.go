// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Thermoquad/echometer/pkg/echo"
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

func fastOptions() Options {
	return Options{
		IdleTimeout:    50 * time.Millisecond,
		MaxWait:        2 * time.Second,
		SampleInterval: 10 * time.Millisecond,
	}
}

func TestRun_AgainstDevice(t *testing.T) {
	deviceConn, hostConn := net.Pipe()
	defer hostConn.Close()
	defer deviceConn.Close()

	dev, err := echo.New(deviceConn, fastDeviceConfig())
	if err != nil {
		t.Fatalf("echo.New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dev.Run(ctx, deviceConn)

	var reports []uint64
	opts := fastOptions()
	opts.OnReport = func(bps uint64) { reports = append(reports, bps) }

	res, err := Run(context.Background(), hostConn, []byte("hello"), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if string(res.Echo) != "hello" {
		t.Errorf("echo = %q, want %q", res.Echo, "hello")
	}
	if !res.Verify.Match {
		t.Errorf("verification failed: %s", res.Verify)
	}
	if res.Banners != 1 {
		t.Errorf("Banners = %d, want 1", res.Banners)
	}
	if len(res.Reports) == 0 || len(reports) != len(res.Reports) {
		t.Errorf("reports = %v, callback saw %v", res.Reports, reports)
	}
	if res.EchoDelay < fastDeviceConfig().QuietThreshold {
		t.Errorf("EchoDelay = %v, want at least the quiet threshold", res.EchoDelay)
	}
}

func TestRun_CustomSentinelDevice(t *testing.T) {
	deviceConn, hostConn := net.Pipe()
	defer hostConn.Close()
	defer deviceConn.Close()

	cfg := fastDeviceConfig()
	cfg.Sentinel = '*'
	dev, err := echo.New(deviceConn, cfg)
	if err != nil {
		t.Fatalf("echo.New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dev.Run(ctx, deviceConn)

	opts := fastOptions()
	opts.Device = cfg
	res, err := Run(context.Background(), hostConn, []byte("abc*def"), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if string(res.Echo) != "abc" {
		t.Errorf("echo = %q, want %q", res.Echo, "abc")
	}
	if !res.Verify.Match || !res.Verify.Truncated {
		t.Errorf("verification = %s, want a truncated match", res.Verify)
	}
}

func TestRun_Mismatch(t *testing.T) {
	deviceConn, hostConn := net.Pipe()
	defer hostConn.Close()
	defer deviceConn.Close()

	// Fake device that corrupts the last byte.
	go func() {
		buf := make([]byte, 3)
		if _, err := io.ReadFull(deviceConn, buf); err != nil {
			return
		}
		deviceConn.Write([]byte("abX"))
	}()

	res, err := Run(context.Background(), hostConn, []byte("abc"), fastOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Verify.Match || res.Verify.MismatchAt != 2 {
		t.Errorf("verification = %+v, want mismatch at 2", res.Verify)
	}
}

func TestRun_NoEcho(t *testing.T) {
	deviceConn, hostConn := net.Pipe()
	defer hostConn.Close()
	defer deviceConn.Close()

	go io.Copy(io.Discard, deviceConn)

	opts := fastOptions()
	opts.MaxWait = 30 * time.Millisecond
	res, err := Run(context.Background(), hostConn, []byte("abc"), opts)
	if !errors.Is(err, ErrNoEcho) {
		t.Fatalf("Run error = %v, want ErrNoEcho", err)
	}
	if len(res.Echo) != 0 {
		t.Errorf("echo = %q, want empty", res.Echo)
	}
}

func TestRun_LinkClosedBeforeEcho(t *testing.T) {
	deviceConn, hostConn := net.Pipe()
	defer hostConn.Close()

	go func() {
		buf := make([]byte, 2)
		io.ReadFull(deviceConn, buf)
		deviceConn.Close()
	}()

	_, err := Run(context.Background(), hostConn, []byte("ab"), fastOptions())
	if !errors.Is(err, io.EOF) {
		t.Errorf("Run error = %v, want wrapped EOF", err)
	}
}

func TestRun_GapSpacesBytes(t *testing.T) {
	deviceConn, hostConn := net.Pipe()
	defer hostConn.Close()
	defer deviceConn.Close()

	go func() {
		buf := make([]byte, 3)
		if _, err := io.ReadFull(deviceConn, buf); err != nil {
			return
		}
		deviceConn.Write(buf)
	}()

	opts := fastOptions()
	opts.Gap = 15 * time.Millisecond
	var progress []int
	opts.OnSent = func(sent, total int) { progress = append(progress, sent) }

	res, err := Run(context.Background(), hostConn, []byte("xyz"), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.SendTime < 2*opts.Gap {
		t.Errorf("SendTime = %v, want at least %v", res.SendTime, 2*opts.Gap)
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Errorf("progress = %v, want [1 2 3]", progress)
	}
}
