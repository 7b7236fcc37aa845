// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/echometer/pkg/echo"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "echometer",
	Short: "Serial loop-back throughput tester",
	Long: `Echometer - A serial loop-back device and the host tools that drive it.

The device side captures everything it receives into a fixed-size buffer,
reports its receive throughput once per second, and replays the captured
bytes after the line has been quiet for a while. The host side sends a
payload, separates speed reports from the replay, and verifies the echo.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 2400]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the ECHOMETER_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.0.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", echo.DefaultBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
