// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/echometer/pkg/echo"
)

// ErrNoEcho is returned when the device never replays the payload.
var ErrNoEcho = errors.New("no echo received")

// Options tunes a probe session. Zero fields take the defaults below.
type Options struct {
	Gap            time.Duration // pause between payload bytes
	IdleTimeout    time.Duration // echo is complete after this much silence (default 3s)
	MaxWait        time.Duration // give up when nothing is echoed this long after sending (default 10s)
	SampleInterval time.Duration // receive-rate sampling period (default 1s)

	// Device is the configuration of the device under test. The echo is
	// verified against its capacity, replay mode and marker bytes. A zero
	// Capacity selects echo.DefaultConfig.
	Device echo.Config

	OnReport func(bps uint64)      // device speed report received
	OnSample func(bps float64)     // receive-rate sample taken
	OnSent   func(sent, total int) // payload progress
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 3 * time.Second
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 10 * time.Second
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = time.Second
	}
	if o.Device.Capacity <= 0 {
		o.Device = echo.DefaultConfig()
	}
	return o
}

// Result is the outcome of a probe session.
type Result struct {
	Started   time.Time
	Sent      []byte
	Echo      []byte
	Reports   []uint64  // device speed reports, bps
	RxSamples []float64 // host receive-rate samples, bps
	SendTime  time.Duration
	EchoDelay time.Duration // last byte sent to first echoed byte
	Banners   int
	Verify    Verification
}

// session holds the receive-side bookkeeping of Run.
type session struct {
	opts     Options
	scanner  *Scanner
	res      *Result
	rxBytes  int
	lastRx   time.Time
	sentAt   time.Time
	echoSeen bool
}

func (s *session) handle(data []byte) {
	s.rxBytes += len(data)
	s.lastRx = time.Now()
	for _, bps := range s.scanner.Feed(data) {
		s.res.Reports = append(s.res.Reports, bps)
		if s.opts.OnReport != nil {
			s.opts.OnReport(bps)
		}
	}
	if !s.echoSeen && !s.sentAt.IsZero() && s.scanner.PayloadLen() > 0 {
		s.echoSeen = true
		s.res.EchoDelay = s.lastRx.Sub(s.sentAt)
	}
}

func (s *session) finish() *Result {
	s.res.Echo = s.scanner.Finish()
	s.res.Banners = s.scanner.Banners()
	s.res.Verify = Verify(s.res.Sent, s.res.Echo, s.opts.Device)
	return s.res
}

// Run sends payload over conn one byte at a time, then collects the device's
// replay until the link has been idle for IdleTimeout. The returned Result is
// populated even when an error is returned.
func Run(ctx context.Context, conn io.ReadWriter, payload []byte, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	s := &session{
		opts:    opts,
		scanner: NewScanner(),
		res:     &Result{Started: time.Now(), Sent: payload},
	}

	// Reader goroutine
	chunks := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case chunks <- data:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	drain := func() {
		for {
			select {
			case data := <-chunks:
				s.handle(data)
			default:
				return
			}
		}
	}

	// Send phase
	one := make([]byte, 1)
	for i, c := range payload {
		one[0] = c
		if _, err := conn.Write(one); err != nil {
			return s.finish(), fmt.Errorf("send failed at byte %d: %w", i, err)
		}
		drain()
		if opts.OnSent != nil {
			opts.OnSent(i+1, len(payload))
		}
		if opts.Gap > 0 && i < len(payload)-1 {
			if err := s.wait(ctx, chunks, opts.Gap); err != nil {
				return s.finish(), err
			}
		}
	}
	s.sentAt = time.Now()
	s.res.SendTime = s.sentAt.Sub(s.res.Started)
	if s.scanner.PayloadLen() > 0 {
		// Anything already classified as payload arrived before sending
		// finished; it still marks the echo as started.
		s.echoSeen = true
	}

	// Receive phase
	check := time.NewTicker(10 * time.Millisecond)
	defer check.Stop()
	sample := time.NewTicker(opts.SampleInterval)
	defer sample.Stop()
	sampleStart, sampleBytes := time.Now(), s.rxBytes

	for {
		select {
		case <-ctx.Done():
			return s.finish(), ctx.Err()

		case data := <-chunks:
			s.handle(data)

		case err := <-readErr:
			drain()
			if s.echoSeen {
				return s.finish(), nil
			}
			return s.finish(), fmt.Errorf("read failed before echo: %w", err)

		case now := <-sample.C:
			elapsed := now.Sub(sampleStart).Seconds()
			if elapsed > 0 {
				bps := float64(s.rxBytes-sampleBytes) * 8 / elapsed
				s.res.RxSamples = append(s.res.RxSamples, bps)
				if opts.OnSample != nil {
					opts.OnSample(bps)
				}
			}
			sampleStart, sampleBytes = now, s.rxBytes

		case now := <-check.C:
			if s.echoSeen && now.Sub(s.lastRx) > opts.IdleTimeout {
				return s.finish(), nil
			}
			if !s.echoSeen && now.Sub(s.sentAt) > opts.MaxWait {
				return s.finish(), ErrNoEcho
			}
		}
	}
}

// wait pauses for d while still consuming received data.
func (s *session) wait(ctx context.Context, chunks <-chan []byte, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-chunks:
			s.handle(data)
		case <-timer.C:
			return nil
		}
	}
}
