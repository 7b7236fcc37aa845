// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/echometer/pkg/echo"
	"github.com/Thermoquad/echometer/pkg/probe"
	"github.com/spf13/cobra"
)

// defaultPayload is sent when neither --text nor --file is given. It is
// shorter than the default capacity and contains no marker bytes.
const defaultPayload = `The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs. How vexingly quick daft zebras jump! Sphinx of black quartz, judge my vow. The five boxing wizards jump quickly. Jackdaws love my big sphinx of quartz. Bright vixens jump; dozy fowl quack. Quick zephyrs blow, vexing daft Jim. Waltz, bad nymph, for quick jigs vex. Glib jocks quiz nymph to vex dwarf.`

var (
	sendText        string
	sendFile        string
	sendGapMs       int
	sendIdleTimeout int
	sendMaxWait     int
	sendRecordPath  string
	sendCapacity    int
	sendReplayMode  string
	sendConfigPath  string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a payload and verify the device echoes it back",
	Long: `Send a payload to the loop-back device one byte at a time, print the
device's speed reports while sending, then collect the replay and compare it
with what was sent.

While the replay arrives, the host-side receive rate is printed once per
second as "SpeedRx". The session ends once the link has been idle for
--idle-timeout seconds after the echo started.

The expected replay accounts for the device's buffer capacity and replay mode:
payloads longer than the capacity are cut, and in sentinel mode the replay
ends before the first terminator or sentinel byte (0x00 and 0xFF by default).
Pass the device's --config file so custom capacity, replay mode and marker
bytes are modelled; --capacity and --replay override the file.

Exit codes:
  0 - Echo matches the payload
  1 - Echo mismatch or no echo received
  2 - Connection error`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendText, "text", "t", "", "Payload text (default: built-in sample)")
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "Read payload from file")
	sendCmd.Flags().IntVar(&sendGapMs, "gap", 0, "Pause between payload bytes (milliseconds)")
	sendCmd.Flags().IntVar(&sendIdleTimeout, "idle-timeout", 3, "Idle time that ends the echo (seconds)")
	sendCmd.Flags().IntVar(&sendMaxWait, "max-wait", 10, "Give up when no echo starts within this time (seconds)")
	sendCmd.Flags().StringVar(&sendRecordPath, "record", "", "Append a CBOR session record to this file")
	sendCmd.Flags().IntVar(&sendCapacity, "capacity", echo.DefaultCapacity, "Device buffer capacity (bytes)")
	sendCmd.Flags().StringVar(&sendReplayMode, "replay", "sentinel", "Device replay mode (sentinel or length)")
	sendCmd.Flags().StringVarP(&sendConfigPath, "config", "c", "", "Device config file (YAML) to verify against")
	sendCmd.MarkFlagsMutuallyExclusive("text", "file")
}

// loadPayload resolves the payload from --text, --file or the default
func loadPayload(text, file string) ([]byte, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		return data, nil
	case text != "":
		return []byte(text), nil
	default:
		return []byte(defaultPayload), nil
	}
}

// sendDeviceConfig models the device under test: the --config file (or the
// defaults), with --capacity and --replay applied on top when given.
func sendDeviceConfig(cmd *cobra.Command) (echo.Config, error) {
	cfg, err := loadDeviceConfig(sendConfigPath)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("capacity") {
		if sendCapacity <= 0 {
			return cfg, fmt.Errorf("capacity must be > 0, got %d", sendCapacity)
		}
		cfg.Capacity = sendCapacity
	}
	if cmd.Flags().Changed("replay") {
		mode, ok := echo.ParseReplayMode(sendReplayMode)
		if !ok {
			return cfg, fmt.Errorf("unknown replay mode %q", sendReplayMode)
		}
		cfg.Replay = mode
	}
	return cfg, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	payload, err := loadPayload(sendText, sendFile)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return fmt.Errorf("payload is empty")
	}
	devCfg, err := sendDeviceConfig(cmd)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bits := probe.CountBits(payload)
	fmt.Printf("Echometer - Send\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Payload: %d bytes", len(payload))
	if wsURL == "" {
		fmt.Printf(", %v minimum line time", bits.LineTime(baudRate).Round(time.Millisecond))
	}
	fmt.Printf("\n\nSending data to device...\n")

	opts := probe.Options{
		Gap:         time.Duration(sendGapMs) * time.Millisecond,
		IdleTimeout: time.Duration(sendIdleTimeout) * time.Second,
		MaxWait:     time.Duration(sendMaxWait) * time.Second,
		Device:      devCfg,
		OnReport: func(bps uint64) {
			fmt.Printf("Speed: %d bps\n", bps)
		},
		OnSample: func(bps float64) {
			fmt.Printf("SpeedRx: %.2f bps\n", bps)
		},
		OnSent: func(sent, total int) {
			if sent == total {
				fmt.Printf("All data sent. Waiting for echo...\n\n")
			}
		},
	}

	res, err := probe.Run(ctx, conn, payload, opts)

	if sendRecordPath != "" && res != nil {
		if recErr := probe.AppendRecord(sendRecordPath, probe.NewRecord(linkName(), res)); recErr != nil {
			fmt.Fprintf(os.Stderr, "Record error: %v\n", recErr)
		}
	}

	switch {
	case errors.Is(err, probe.ErrNoEcho):
		fmt.Fprintf(os.Stderr, "NO ECHO: nothing received within %ds of sending\n", sendMaxWait)
		os.Exit(1)
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(os.Stderr, "Interrupted\n")
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	printSendResult(res)

	if !res.Verify.Match {
		os.Exit(1)
	}
	return nil
}

func printSendResult(res *probe.Result) {
	fmt.Printf("%s\n\n", res.Echo)
	fmt.Printf("--- Session ---\n")
	fmt.Printf("Sent: %d bytes in %v\n", len(res.Sent), res.SendTime.Round(time.Millisecond))
	fmt.Printf("Echo: %d bytes, first byte after %v\n", len(res.Echo), res.EchoDelay.Round(time.Millisecond))
	if len(res.Reports) > 0 {
		var peak uint64
		for _, bps := range res.Reports {
			peak = max(peak, bps)
		}
		fmt.Printf("Device reports: %d, peak %d bps\n", len(res.Reports), peak)
	}
	fmt.Printf("Result: %s\n", res.Verify)
}
