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
	listenDuration int
	listenHex      bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Passively monitor device output",
	Long: `Connect and print everything the device sends without transmitting
anything. Speed reports and banners are shown as they complete; other bytes
are shown as payload chunks.

Useful for watching a device driven by another host, or for checking link
stability over a long period.

Exit codes:
  0 - Monitoring completed normally
  1 - Connection lost during monitoring
  2 - Connection error`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().IntVar(&listenDuration, "duration", 30, "Monitoring duration in seconds")
	listenCmd.Flags().BoolVar(&listenHex, "hex", false, "Print payload chunks as hex")
}

func runListen(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Echometer - Listen\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", listenDuration)

	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				readChan <- data
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(listenDuration) * time.Second)
	scanner := probe.NewScanner()
	printed := 0 // payload bytes already shown
	bytesReceived := 0
	var reports []uint64

	fmt.Printf("Listening...\n\n")

	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			bytesReceived += len(data)
			banners := scanner.Banners()
			for _, bps := range scanner.Feed(data) {
				reports = append(reports, bps)
				fmt.Printf("[%s] Speed: %d bps\n", time.Now().Format("15:04:05.000"), bps)
			}
			if scanner.Banners() > banners {
				fmt.Printf("[%s] Device ready\n", time.Now().Format("15:04:05.000"))
			}
			if payload := scanner.Payload(); len(payload) > printed {
				chunk := payload[printed:]
				printed = len(payload)
				if listenHex {
					fmt.Printf("[%s] Payload %d bytes: %x\n", time.Now().Format("15:04:05.000"), len(chunk), chunk)
				} else {
					fmt.Printf("[%s] Payload %d bytes: %q\n", time.Now().Format("15:04:05.000"), len(chunk), chunk)
				}
			}

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), err)
			printListenSummary(time.Since(start), bytesReceived, printed, reports)
			fmt.Printf("Result: FAILED (connection lost)\n")
			os.Exit(1)

		case <-time.After(1 * time.Second):
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	printListenSummary(time.Since(start), bytesReceived, printed, reports)
	fmt.Printf("Result: PASSED (connection stable)\n")
	return nil
}

func printListenSummary(elapsed time.Duration, received, payload int, reports []uint64) {
	fmt.Printf("\n--- Listen Results ---\n")
	fmt.Printf("Duration: %v\n", elapsed.Round(time.Second))
	fmt.Printf("Bytes received: %d (%d payload)\n", received, payload)
	fmt.Printf("Speed reports: %d\n", len(reports))
}
