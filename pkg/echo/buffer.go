// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

// Buffer is the fixed-capacity capture store. Its used region is [0, Cursor).
// Positions past the cursor hold the sentinel after a Clear, or the end
// marker written by Terminate.
//
// Buffer is not safe for concurrent use; Device guards it with its mutex.
type Buffer struct {
	data     []byte
	cursor   int
	sentinel byte
}

// NewBuffer returns a sentinel-filled buffer of the given capacity.
func NewBuffer(capacity int, sentinel byte) *Buffer {
	b := &Buffer{
		data:     make([]byte, capacity),
		sentinel: sentinel,
	}
	b.Clear()
	return b
}

// Capacity returns the fixed size of the store.
func (b *Buffer) Capacity() int { return len(b.data) }

// Cursor returns the write cursor.
func (b *Buffer) Cursor() int { return b.cursor }

// Full reports whether the cursor has reached capacity.
func (b *Buffer) Full() bool { return b.cursor >= len(b.data) }

// Append stores c at the cursor and advances it. A full buffer drops c and
// returns false.
func (b *Buffer) Append(c byte) bool {
	if b.Full() {
		return false
	}
	b.data[b.cursor] = c
	b.cursor++
	return true
}

// Terminate writes the end marker at the cursor without advancing it. It is a
// no-op on a full buffer.
func (b *Buffer) Terminate(marker byte) bool {
	if b.Full() {
		return false
	}
	b.data[b.cursor] = marker
	return true
}

// ScanReplay copies bytes from index 0 up to, not including, the first byte
// equal to marker or to the sentinel. Payload bytes that equal either value
// end the replay early.
func (b *Buffer) ScanReplay(marker byte) []byte {
	n := 0
	for n < len(b.data) {
		c := b.data[n]
		if c == marker || c == b.sentinel {
			break
		}
		n++
	}
	return append([]byte(nil), b.data[:n]...)
}

// Used returns a copy of the used region.
func (b *Buffer) Used() []byte {
	return append([]byte(nil), b.data[:b.cursor]...)
}

// At returns the byte at index i.
func (b *Buffer) At(i int) byte { return b.data[i] }

// Clear fills the whole store with the sentinel and rewinds the cursor.
func (b *Buffer) Clear() {
	for i := range b.data {
		b.data[i] = b.sentinel
	}
	b.cursor = 0
}

// Cleared reports whether every position holds the sentinel.
func (b *Buffer) Cleared() bool {
	for _, c := range b.data {
		if c != b.sentinel {
			return false
		}
	}
	return true
}
