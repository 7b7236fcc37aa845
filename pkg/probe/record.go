// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// RecordVersion is the current session record format.
const RecordVersion = 1

// Record is the CBOR form of a probe session. Keys are integers to keep
// records compact; fields are never renumbered.
type Record struct {
	Version     uint8     `cbor:"0,keyasint"`
	StartedMs   int64     `cbor:"1,keyasint"` // Unix milliseconds
	Link        string    `cbor:"2,keyasint,omitempty"`
	Sent        []byte    `cbor:"3,keyasint"`
	Echo        []byte    `cbor:"4,keyasint"`
	Reports     []uint64  `cbor:"5,keyasint,omitempty"`
	RxSamples   []float64 `cbor:"6,keyasint,omitempty"`
	SendMs      int64     `cbor:"7,keyasint"`
	EchoDelayMs int64     `cbor:"8,keyasint"`
	Match       bool      `cbor:"9,keyasint"`
	MismatchAt  int       `cbor:"10,keyasint"`
}

// NewRecord converts a session result into a record.
func NewRecord(link string, r *Result) Record {
	return Record{
		Version:     RecordVersion,
		StartedMs:   r.Started.UnixMilli(),
		Link:        link,
		Sent:        r.Sent,
		Echo:        r.Echo,
		Reports:     r.Reports,
		RxSamples:   r.RxSamples,
		SendMs:      r.SendTime.Milliseconds(),
		EchoDelayMs: r.EchoDelay.Milliseconds(),
		Match:       r.Verify.Match,
		MismatchAt:  r.Verify.MismatchAt,
	}
}

// Started returns the session start time.
func (r Record) Started() time.Time { return time.UnixMilli(r.StartedMs) }

// EncodeRecord writes one record to w.
func EncodeRecord(w io.Writer, rec Record) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// DecodeRecords reads records from r until EOF.
func DecodeRecords(r io.Reader) ([]Record, error) {
	dec := cbor.NewDecoder(r)
	var recs []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return recs, fmt.Errorf("failed to decode record %d: %w", len(recs), err)
		}
		if rec.Version != RecordVersion {
			return recs, fmt.Errorf("record %d: unsupported version %d", len(recs), rec.Version)
		}
		recs = append(recs, rec)
	}
}

// AppendRecord appends rec to the file at path, creating it if needed.
func AppendRecord(path string, rec Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := EncodeRecord(f, rec); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadRecords reads every record in the file at path.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return DecodeRecords(f)
}
