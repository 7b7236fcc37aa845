// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/echometer/pkg/probe"
	"github.com/spf13/cobra"
)

var (
	waitReadyTimeout int
)

var waitReadyCmd = &cobra.Command{
	Use:   "wait_ready",
	Short: "Wait for the device's startup banner",
	Long: `Wait for the device to announce "Ready to receive" on the connection.

The banner is sent once when the device starts, so start this command before
resetting or launching the device. Speed reports and other bytes received
while waiting are ignored.

Exit codes:
  0 - Banner received before timeout
  1 - Timeout reached without receiving the banner
  2 - Connection error`,
	RunE: runWaitReady,
}

func init() {
	rootCmd.AddCommand(waitReadyCmd)
	waitReadyCmd.Flags().IntVar(&waitReadyTimeout, "timeout", 10, "Timeout in seconds to wait for the banner")
}

func runWaitReady(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Echometer - Wait Ready\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", waitReadyTimeout)
	fmt.Printf("Waiting for banner...\n\n")

	scanner := probe.NewScanner()
	start := time.Now()

	readyChan := make(chan int, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				scanner.Feed(buf[:n])
				if scanner.Banners() > 0 {
					readyChan <- scanner.PayloadLen()
					return
				}
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	select {
	case skipped := <-readyChan:
		fmt.Printf("SUCCESS: Device ready after %v\n", time.Since(start).Round(time.Millisecond))
		if skipped > 0 {
			fmt.Printf("  (ignored %d other bytes)\n", skipped)
		}
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(waitReadyTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No banner received within %d seconds\n", waitReadyTimeout)
		os.Exit(1)
	}

	return nil
}
