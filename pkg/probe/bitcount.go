// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"fmt"
	"math/bits"
	"time"
)

// BitCount summarises the data bits a payload puts on the wire.
type BitCount struct {
	Bytes int
	Ones  int
	Zeros int
}

// CountBits counts set and clear data bits over all eight bits of each byte.
func CountBits(data []byte) BitCount {
	c := BitCount{Bytes: len(data)}
	for _, b := range data {
		ones := bits.OnesCount8(b)
		c.Ones += ones
		c.Zeros += 8 - ones
	}
	return c
}

// Bits returns the total number of data bits.
func (c BitCount) Bits() int { return c.Bytes * 8 }

// LineTime returns the minimum time to transmit the payload at baud with
// 8N1 framing (ten line bits per byte).
func (c BitCount) LineTime(baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	return time.Duration(c.Bytes) * 10 * time.Second / time.Duration(baud)
}

func (c BitCount) String() string {
	return fmt.Sprintf("Number of 1's: %d\nNumber of 0's: %d\nBytes: %d\nBits: %d\n", c.Ones, c.Zeros, c.Bytes, c.Bits())
}
