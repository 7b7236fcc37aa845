// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports available for --port",
	Long: `List the serial ports found on this host.

Examples:
  # Find the adapter, then run the device on it
  echometer ports
  echometer device --port /dev/ttyUSB0

Exit codes:
  0 - At least one port found
  1 - No ports found
  2 - Port enumeration failed`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Port enumeration failed: %v\n", err)
		os.Exit(2)
	}

	if len(ports) == 0 {
		fmt.Printf("No serial ports found. Check the adapter is connected.\n")
		os.Exit(1)
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	fmt.Printf("Serial ports found: %d\n", len(ports))
	for _, p := range ports {
		fmt.Println(formatPort(p))
	}
	return nil
}

// formatPort describes one port, with USB details when available
func formatPort(p *enumerator.PortDetails) string {
	if !p.IsUSB {
		return "  " + p.Name
	}
	line := fmt.Sprintf("  %s  USB %s:%s", p.Name, p.VID, p.PID)
	if p.SerialNumber != "" {
		line += " serial=" + p.SerialNumber
	}
	if p.Product != "" {
		line += " (" + p.Product + ")"
	}
	return line
}
