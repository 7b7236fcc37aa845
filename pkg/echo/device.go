// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import (
	"context"
	"io"
	"log"
	"sync"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// EventKind identifies an observer notification.
type EventKind uint8

const (
	EventBanner EventKind = iota
	EventCycleStart
	EventReport
	EventFlush
	EventTransmitError
)

func (k EventKind) String() string {
	switch k {
	case EventBanner:
		return "BANNER"
	case EventCycleStart:
		return "CYCLE_START"
	case EventReport:
		return "REPORT"
	case EventFlush:
		return "FLUSH"
	case EventTransmitError:
		return "TRANSMIT_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is an observer notification. Only the fields relevant to Kind are
// set.
type Event struct {
	Kind       EventKind
	Time       time.Time
	Speed      uint64 // EventReport: bps
	Captured   int    // EventFlush: write cursor at freeze time
	Echoed     int    // EventFlush: bytes transmitted
	Dropped    int    // EventFlush: bytes dropped this cycle
	Terminated bool   // EventFlush: end marker fit in the buffer
	Err        error  // EventTransmitError
}

// Snapshot is a consistent view of the device state.
type Snapshot struct {
	State         CycleState
	DataProduced  bool
	Cursor        int
	Capacity      int
	WindowBytes   uint64
	ElapsedMs     int64
	LastReceiveMs int64
	Quiet         time.Duration
	Cleared       bool
}

// Option configures a Device.
type Option func(*Device)

// WithSleeper replaces the settle-delay sleeper.
func WithSleeper(s Sleeper) Option {
	return func(d *Device) { d.sleep = s }
}

// WithLogger routes runtime log lines to l instead of the standard logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Device) { d.logf = l.Printf }
}

// Device is the loop-back echo device.
type Device struct {
	cfg    Config
	tx     *Transport
	stats  *Statistics
	sleep  Sleeper
	logf   func(format string, v ...any)
	events chan Event
	// reports carries closed-window speeds from the tick context to the main
	// loop, which owns all transmission.
	reports chan uint64

	// mu is the critical section shared by the byte handler, the tick handler
	// and the flush engine.
	mu            sync.Mutex
	buf           *Buffer
	state         CycleState
	dataProduced  bool
	windowBytes   uint64
	windowMs      int64
	elapsedMs     int64
	lastReceiveMs int64
	cycleDropped  int
}

// New creates a Device that transmits on w. The buffer starts
// sentinel-filled.
func New(w io.Writer, cfg Config, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Device{
		cfg:     cfg,
		tx:      NewTransport(w),
		stats:   NewStatistics(),
		sleep:   sleepContext,
		logf:    log.Printf,
		events:  make(chan Event, 64),
		reports: make(chan uint64, cfg.ReportQueue),
		buf:     NewBuffer(cfg.Capacity, cfg.Sentinel),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the device configuration.
func (d *Device) Config() Config { return d.cfg }

// Stats returns the lifetime counters.
func (d *Device) Stats() *Statistics { return d.stats }

// Events returns observer notifications. Notifications are dropped when the
// channel is full.
func (d *Device) Events() <-chan Event { return d.events }

// Snapshot returns the current device state.
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Snapshot{
		State:         d.state,
		DataProduced:  d.dataProduced,
		Cursor:        d.buf.Cursor(),
		Capacity:      d.buf.Capacity(),
		WindowBytes:   d.windowBytes,
		ElapsedMs:     d.elapsedMs,
		LastReceiveMs: d.lastReceiveMs,
		Quiet:         time.Duration(d.elapsedMs-d.lastReceiveMs) * time.Millisecond,
		Cleared:       d.buf.Cleared(),
	}
}

// Start transmits the startup banner.
func (d *Device) Start() error {
	if d.cfg.Banner == "" {
		return nil
	}
	if err := d.tx.SendString(d.cfg.Banner); err != nil {
		d.stats.TransmitErrors.Inc()
		return err
	}
	d.emit(Event{Kind: EventBanner})
	return nil
}

// Run starts the device on a link: it sends the banner, then dispatches
// received bytes and timer ticks from one goroutine while the calling
// goroutine runs the flush engine. Run returns nil when ctx is cancelled and
// an error when the link is closed.
//
// The reader goroutine may stay blocked in r.Read after Run returns; closing
// the link releases it.
func (d *Device) Run(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.Start(); err != nil {
		return err
	}

	signals := make(chan signal, d.cfg.EventQueue)
	linkErr := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.dispatch(ctx, signals)
	}()
	go func() {
		defer wg.Done()
		d.tickLoop(ctx, signals)
	}()
	go func() {
		if err := d.readLoop(ctx, r, signals); err != nil {
			linkErr <- err
			cancel()
		}
	}()

	d.pollLoop(ctx)
	cancel()
	wg.Wait()

	select {
	case err := <-linkErr:
		return err
	default:
		return nil
	}
}

// signal is one entry of the dispatcher queue: either received bytes or a
// timer tick.
type signal struct {
	data []byte
	tick bool
}

// dispatch is the single consumer of the signal queue. Handlers invoked from
// here never run concurrently with each other.
func (d *Device) dispatch(ctx context.Context, signals <-chan signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-signals:
			if s.tick {
				d.HandleTick()
				continue
			}
			for _, c := range s.data {
				d.HandleByte(c)
			}
		}
	}
}

func (d *Device) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case d.events <- ev:
	default:
		// drop if observer is slow
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
