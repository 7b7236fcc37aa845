// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/Thermoquad/echometer/pkg/probe"
	"github.com/spf13/cobra"
)

var recordsShowData bool

var recordsCmd = &cobra.Command{
	Use:   "records <file.cbor>",
	Short: "Display recorded send sessions in human-readable format",
	Long: `Decode and display the session records appended by "send --record".

Each record shows when the session ran, the link it used, payload and echo
sizes, timings, the device's speed reports and the verdict. Use --data to
also print the payload and echo bytes.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.Flags().BoolVar(&recordsShowData, "data", false, "Print payload and echo contents")
}

func runRecords(cmd *cobra.Command, args []string) error {
	recs, err := probe.ReadRecords(args[0])
	for i, rec := range recs {
		printRecord(cmd.OutOrStdout(), i, rec, recordsShowData)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d records\n", len(recs))
	return nil
}

// printRecord formats one session record
func printRecord(w io.Writer, index int, rec probe.Record, showData bool) {
	verdict := "MATCH"
	if !rec.Match {
		verdict = fmt.Sprintf("MISMATCH at byte %d", rec.MismatchAt)
	}

	fmt.Fprintf(w, "[%s] #%d %s\n", rec.Started().Format("2006-01-02 15:04:05.000"), index, verdict)
	if rec.Link != "" {
		fmt.Fprintf(w, "  Link: %s\n", rec.Link)
	}
	fmt.Fprintf(w, "  Sent: %d bytes in %d ms\n", len(rec.Sent), rec.SendMs)
	fmt.Fprintf(w, "  Echo: %d bytes after %d ms\n", len(rec.Echo), rec.EchoDelayMs)
	if len(rec.Reports) > 0 {
		fmt.Fprintf(w, "  Speed reports: %v bps\n", rec.Reports)
	}
	if len(rec.RxSamples) > 0 {
		fmt.Fprintf(w, "  Rx samples:")
		for _, bps := range rec.RxSamples {
			fmt.Fprintf(w, " %.2f", bps)
		}
		fmt.Fprintf(w, " bps\n")
	}
	if showData {
		fmt.Fprintf(w, "  Payload: %q\n", rec.Sent)
		fmt.Fprintf(w, "  Echo:    %q\n", rec.Echo)
	}
	fmt.Fprintln(w)
}
