// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid device config")

// Config holds the tunables of a Device. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	Capacity       int
	Resolution     time.Duration // tick period of the millisecond counter
	Window         time.Duration // throughput window length
	QuietThreshold time.Duration
	SettleDelay    time.Duration
	PollInterval   time.Duration
	Replay         ReplayMode
	Banner         string
	Sentinel       byte
	Terminator     byte
	EventQueue     int
	ReportQueue    int
}

// DefaultConfig returns the nominal device configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:       DefaultCapacity,
		Resolution:     DefaultResolution,
		Window:         DefaultWindow,
		QuietThreshold: DefaultQuietThreshold,
		SettleDelay:    DefaultSettleDelay,
		PollInterval:   DefaultPollInterval,
		Replay:         ReplaySentinel,
		Banner:         DefaultBanner,
		Sentinel:       SentinelByte,
		Terminator:     TerminatorByte,
		EventQueue:     DefaultEventQueue,
		ReportQueue:    DefaultReportQueue,
	}
}

// Validate checks the config for values the device cannot run with.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.Resolution < time.Millisecond {
		return fmt.Errorf("%w: resolution must be >= 1ms, got %v", ErrInvalidConfig, c.Resolution)
	}
	if c.Resolution%time.Millisecond != 0 {
		return fmt.Errorf("%w: resolution must be a whole number of milliseconds, got %v", ErrInvalidConfig, c.Resolution)
	}
	if c.Window < c.Resolution {
		return fmt.Errorf("%w: window (%v) shorter than resolution (%v)", ErrInvalidConfig, c.Window, c.Resolution)
	}
	if c.Window%c.Resolution != 0 {
		return fmt.Errorf("%w: window (%v) is not a multiple of resolution (%v)", ErrInvalidConfig, c.Window, c.Resolution)
	}
	if c.QuietThreshold <= 0 {
		return fmt.Errorf("%w: quiet threshold must be > 0, got %v", ErrInvalidConfig, c.QuietThreshold)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("%w: settle delay must be >= 0, got %v", ErrInvalidConfig, c.SettleDelay)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be > 0, got %v", ErrInvalidConfig, c.PollInterval)
	}
	if c.Replay != ReplaySentinel && c.Replay != ReplayLength {
		return fmt.Errorf("%w: unknown replay mode %d", ErrInvalidConfig, c.Replay)
	}
	if c.EventQueue <= 0 {
		return fmt.Errorf("%w: event queue must be > 0, got %d", ErrInvalidConfig, c.EventQueue)
	}
	if c.ReportQueue <= 0 {
		return fmt.Errorf("%w: report queue must be > 0, got %d", ErrInvalidConfig, c.ReportQueue)
	}
	return nil
}

// FileConfig is the on-disk YAML form of Config. Unset fields keep their
// defaults.
type FileConfig struct {
	Capacity     *int    `yaml:"capacity"`
	ResolutionMs *int    `yaml:"resolution_ms"`
	WindowMs     *int    `yaml:"window_ms"`
	QuietMs      *int    `yaml:"quiet_ms"`
	SettleMs     *int    `yaml:"settle_ms"`
	PollMs       *int    `yaml:"poll_ms"`
	Replay       string  `yaml:"replay"`
	Banner       *string `yaml:"banner"`
	Sentinel     *uint8  `yaml:"sentinel"`
	Terminator   *uint8  `yaml:"terminator"`
	EventQueue   *int    `yaml:"event_queue"`
	ReportQueue  *int    `yaml:"report_queue"`
}

// Apply overlays the set fields of f onto c.
func (f FileConfig) Apply(c Config) (Config, error) {
	ms := func(v *int, dst *time.Duration) {
		if v != nil {
			*dst = time.Duration(*v) * time.Millisecond
		}
	}

	if f.Capacity != nil {
		c.Capacity = *f.Capacity
	}
	ms(f.ResolutionMs, &c.Resolution)
	ms(f.WindowMs, &c.Window)
	ms(f.QuietMs, &c.QuietThreshold)
	ms(f.SettleMs, &c.SettleDelay)
	ms(f.PollMs, &c.PollInterval)

	mode, ok := ParseReplayMode(f.Replay)
	if !ok {
		return c, fmt.Errorf("%w: replay must be \"sentinel\" or \"length\", got %q", ErrInvalidConfig, f.Replay)
	}
	c.Replay = mode

	if f.Banner != nil {
		c.Banner = *f.Banner
	}
	if f.Sentinel != nil {
		c.Sentinel = *f.Sentinel
	}
	if f.Terminator != nil {
		c.Terminator = *f.Terminator
	}
	if f.EventQueue != nil {
		c.EventQueue = *f.EventQueue
	}
	if f.ReportQueue != nil {
		c.ReportQueue = *f.ReportQueue
	}
	return c, nil
}

// ParseConfig decodes YAML config data on top of DefaultConfig and validates
// the result.
func ParseConfig(data []byte) (Config, error) {
	var f FileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg, err := f.Apply(DefaultConfig())
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
