// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package probe drives an echometer device from the host side: it sends a
// payload, separates the device's diagnostic lines from the replayed bytes,
// measures receive throughput and verifies the echo.
package probe

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/Thermoquad/echometer/pkg/echo"
)

const reportPrefix = "Speed: "

// diagnosticLine matches a speed report or the startup banner.
var diagnosticLine = regexp.MustCompile(`Speed: (\d+) bps\n|` + regexp.QuoteMeta(echo.DefaultBanner))

// Scanner splits the device's output stream into speed reports, banners and
// payload. Lines may be split across Feed calls. Only a trailing fragment that
// may still complete a diagnostic line is held back, so memory and scanning
// cost stay bounded on long streams.
type Scanner struct {
	raw     []byte // unclassified tail
	payload []byte
	banners int
}

// NewScanner creates an empty scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Feed adds received bytes and returns the speed reports completed by them.
func (s *Scanner) Feed(p []byte) []uint64 {
	s.raw = append(s.raw, p...)

	var reports []uint64
	pos := 0
	for _, m := range diagnosticLine.FindAllSubmatchIndex(s.raw, -1) {
		s.payload = append(s.payload, s.raw[pos:m[0]]...)
		if m[2] >= 0 {
			bps, err := strconv.ParseUint(string(s.raw[m[2]:m[3]]), 10, 64)
			if err == nil {
				reports = append(reports, bps)
			}
		} else {
			s.banners++
		}
		pos = m[1]
	}

	// Everything before a possible partial line is payload.
	keep := pos + partialStart(s.raw[pos:])
	s.payload = append(s.payload, s.raw[pos:keep]...)
	s.raw = append(s.raw[:0], s.raw[keep:]...)
	return reports
}

// PayloadLen returns the number of payload bytes seen so far. A trailing
// fragment that may still complete a diagnostic line is not counted.
func (s *Scanner) PayloadLen() int {
	return len(s.payload)
}

// Payload returns the payload bytes seen so far, excluding a trailing
// fragment that may still complete a diagnostic line. The slice is only
// valid until the next Feed and must not be modified.
func (s *Scanner) Payload() []byte { return s.payload }

// Banners returns the number of startup banners seen.
func (s *Scanner) Banners() int { return s.banners }

// Finish returns every payload byte, including any trailing partial line.
func (s *Scanner) Finish() []byte {
	out := append([]byte(nil), s.payload...)
	return append(out, s.raw...)
}

// maxDiagnosticLen bounds the length of any diagnostic line.
var maxDiagnosticLen = max(len(echo.DefaultBanner), len(reportPrefix)+20+len(" bps\n"))

// partialStart returns the index in tail where an incomplete diagnostic line
// may begin, or len(tail) when there is none.
func partialStart(tail []byte) int {
	start := max(len(tail)-maxDiagnosticLen, 0)
	for i := start; i < len(tail); i++ {
		if isPartialDiagnostic(tail[i:]) {
			return i
		}
	}
	return len(tail)
}

func isPartialDiagnostic(tail []byte) bool {
	if len(tail) == 0 {
		return false
	}
	if bytes.HasPrefix([]byte(echo.DefaultBanner), tail) {
		return true
	}
	if len(tail) <= len(reportPrefix) {
		return bytes.HasPrefix([]byte(reportPrefix), tail)
	}
	if !bytes.HasPrefix(tail, []byte(reportPrefix)) {
		return false
	}
	rest := tail[len(reportPrefix):]
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 {
		return false
	}
	return bytes.HasPrefix([]byte(" bps\n"), rest[i:])
}
