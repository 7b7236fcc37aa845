// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/echometer/pkg/echo"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	deviceConfigPath string
	statsInterval    int
	useTUI           bool
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Run the loop-back echo device on the connection",
	Long: `Run the loop-back device on a serial port or WebSocket bridge.

The device sends a banner, then captures every received byte into a
fixed-size buffer (1000 bytes by default). While data is arriving it reports
"Speed: <n> bps" once per window. Once the line has been quiet for the quiet
threshold and the settle delay has passed, the captured bytes are replayed
and the buffer is cleared for the next cycle.

Timings, capacity and replay mode can be overridden with a YAML file:

  capacity: 1000
  quiet_ms: 1000
  settle_ms: 500
  replay: sentinel   # or "length"

Events and periodic statistics are printed in text mode; --tui shows a live
view of the buffer and event log instead.`,
	RunE: runDevice,
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.Flags().StringVarP(&deviceConfigPath, "config", "c", "", "Device config file (YAML)")
	deviceCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	deviceCmd.Flags().BoolVar(&useTUI, "tui", false, "Use terminal UI (false for text mode)")
}

// loadDeviceConfig returns the config file contents, or the defaults when no
// file is given.
func loadDeviceConfig(path string) (echo.Config, error) {
	if path == "" {
		return echo.DefaultConfig(), nil
	}
	return echo.LoadConfig(path)
}

func runDevice(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be > 0, got %d", statsInterval)
	}
	cfg, err := loadDeviceConfig(deviceConfigPath)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if useTUI {
		return runDeviceTUI(ctx, cancel, conn, connInfo, cfg)
	}
	return runDeviceText(ctx, conn, connInfo, cfg)
}

// runDeviceText runs the device and prints events and statistics
func runDeviceText(ctx context.Context, conn Connection, connInfo string, cfg echo.Config) error {
	dev, err := echo.New(conn, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Echometer - Loop-back Device\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Capacity: %d bytes, replay: %s\n", cfg.Capacity, cfg.Replay)
	fmt.Printf("Quiet threshold: %v, settle delay: %v\n", cfg.QuietThreshold, cfg.SettleDelay)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	runDone := make(chan error, 1)
	go func() { runDone <- dev.Run(ctx, conn) }()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case ev := <-dev.Events():
			fmt.Println(echo.FormatEvent(ev))

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(dev.Stats().String())
			fmt.Println()

		case err := <-runDone:
			fmt.Println()
			fmt.Print(dev.Stats().String())
			if err != nil {
				log.Printf("Connection closed: %v", err)
			}
			return nil
		}
	}
}

// runDeviceTUI runs the device behind the terminal UI
func runDeviceTUI(ctx context.Context, cancel context.CancelFunc, conn Connection, connInfo string, cfg echo.Config) error {
	// Runtime log lines go to the event log instead of the alternate screen
	logs := &tuiLogWriter{}
	dev, err := echo.New(conn, cfg, echo.WithLogger(log.New(logs, "", 0)))
	if err != nil {
		return err
	}

	p := tea.NewProgram(initialModel(connInfo, dev))
	logs.p = p

	go func() {
		err := dev.Run(ctx, conn)
		p.Send(linkDownMsg{err: err})
	}()

	go func() {
		for {
			select {
			case ev := <-dev.Events():
				p.Send(deviceEventMsg(ev))
			case <-ctx.Done():
				return
			}
		}
	}()

	_, err = p.Run()
	cancel()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	fmt.Print(dev.Stats().String())
	return nil
}

// tuiLogWriter forwards log output to the TUI event log
type tuiLogWriter struct {
	p *tea.Program
}

func (w *tuiLogWriter) Write(b []byte) (int, error) {
	if w.p != nil {
		w.p.Send(logLineMsg(strings.TrimRight(string(b), "\n")))
	}
	return len(b), nil
}
