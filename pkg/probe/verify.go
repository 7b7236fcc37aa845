// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"fmt"

	"github.com/Thermoquad/echometer/pkg/echo"
)

// Verification compares a replay with the payload that produced it.
type Verification struct {
	Match      bool
	Expected   []byte
	MismatchAt int  // first differing index, -1 on a match
	Truncated  bool // Expected is shorter than the sent payload
}

// Verify computes the replay a device running with cfg should produce for
// sent, and compares it with got. Only the capacity, replay mode and marker
// bytes of cfg are used. In sentinel mode the expected replay ends before the
// first terminator or sentinel byte.
func Verify(sent, got []byte, cfg echo.Config) Verification {
	expected := sent
	if len(expected) > cfg.Capacity {
		expected = expected[:cfg.Capacity]
	}
	if cfg.Replay == echo.ReplaySentinel {
		for i, c := range expected {
			if c == cfg.Terminator || c == cfg.Sentinel {
				expected = expected[:i]
				break
			}
		}
	}

	v := Verification{
		Expected:   expected,
		MismatchAt: -1,
		Truncated:  len(expected) < len(sent),
	}
	n := len(expected)
	if len(got) < n {
		n = len(got)
	}
	for i := 0; i < n; i++ {
		if expected[i] != got[i] {
			v.MismatchAt = i
			return v
		}
	}
	if len(expected) != len(got) {
		v.MismatchAt = n
		return v
	}
	v.Match = true
	return v
}

// String summarises the verification for operator output.
func (v Verification) String() string {
	if v.Match {
		if v.Truncated {
			return fmt.Sprintf("MATCH (%d bytes, payload truncated by device)", len(v.Expected))
		}
		return fmt.Sprintf("MATCH (%d bytes)", len(v.Expected))
	}
	return fmt.Sprintf("MISMATCH at byte %d (expected %d bytes)", v.MismatchAt, len(v.Expected))
}
