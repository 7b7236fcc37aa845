// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/echometer/pkg/probe"
	"github.com/spf13/cobra"
)

var (
	bitcountText string
	bitcountFile string
)

var bitcountCmd = &cobra.Command{
	Use:   "bitcount",
	Short: "Count the data bits a payload puts on the wire",
	Long: `Print the number of set and clear data bits in a payload, its length in
bytes and bits, and the minimum time to send it at --baud with 8N1 framing.

Uses the same payload selection as "send", so the figures describe exactly
what a send session transmits. No connection is opened.

Zeros are counted over all eight data bits of every byte, leading zeros
included, since those are the bits on the wire. Counts taken over each byte's
shortest binary form differ: 'A' (0x41) has 6 zeros here, not 5.`,
	Args: cobra.NoArgs,
	RunE: runBitcount,
}

func init() {
	rootCmd.AddCommand(bitcountCmd)
	bitcountCmd.Flags().StringVarP(&bitcountText, "text", "t", "", "Payload text (default: built-in sample)")
	bitcountCmd.Flags().StringVarP(&bitcountFile, "file", "f", "", "Read payload from file")
	bitcountCmd.MarkFlagsMutuallyExclusive("text", "file")
}

func runBitcount(cmd *cobra.Command, args []string) error {
	payload, err := loadPayload(bitcountText, bitcountFile)
	if err != nil {
		return err
	}

	c := probe.CountBits(payload)
	fmt.Fprint(cmd.OutOrStdout(), c.String())
	fmt.Fprintf(cmd.OutOrStdout(), "Line time @ %d baud: %v\n", baudRate, c.LineTime(baudRate).Round(time.Millisecond))
	return nil
}
