// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Echometer - Serial loop-back throughput tester
//
// Runs a loop-back echo device on a serial port or WebSocket bridge, and
// drives one from the host side to measure throughput and verify the echo.

package main

import (
	"os"

	"github.com/Thermoquad/echometer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
