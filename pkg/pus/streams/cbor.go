// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package streams

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/pusgate/pkg/pus"
)

// Record is the CBOR form of one exported packet. Keys are small integers to
// keep records compact.
type Record struct {
	TC         bool   `cbor:"1,keyasint"`
	APID       uint16 `cbor:"2,keyasint"`
	SeqCount   uint16 `cbor:"3,keyasint"`
	Service    uint8  `cbor:"4,keyasint,omitempty"`
	Subservice uint8  `cbor:"5,keyasint,omitempty"`
	Time       int64  `cbor:"6,keyasint,omitempty"` // onboard time, unix ns
	Received   int64  `cbor:"7,keyasint,omitempty"` // local time, unix ns
	Raw        []byte `cbor:"8,keyasint"`
}

// NewRecord builds the export record of packet
func NewRecord(packet *pus.Packet) (Record, error) {
	raw, err := packet.Serialize()
	if err != nil {
		return Record{}, err
	}
	r := Record{
		TC:         packet.IsTC(),
		APID:       packet.APID(),
		SeqCount:   packet.SeqCount(),
		Service:    packet.Service(),
		Subservice: packet.Subservice(),
		Raw:        raw,
	}
	if packet.TM != nil && packet.TM.Time != nil {
		r.Time = packet.TM.Time.Time().UnixNano()
	}
	if ts := packet.Timestamp(); !ts.IsZero() {
		r.Received = ts.UnixNano()
	}
	return r, nil
}

// Packet decodes the raw bytes of the record
func (r Record) Packet(opts pus.DecodeOptions) (*pus.Packet, error) {
	packet, _, err := pus.Deserialize(r.Raw, opts)
	return packet, err
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("streams: cbor encoder initialization failed: " + err.Error())
	}
	return mode
}()

// CBORWriter appends one CBOR record per packet to w
type CBORWriter struct {
	mu    sync.Mutex
	enc   *cbor.Encoder
	count int
}

// NewCBORWriter creates a CBOR exporter on w
func NewCBORWriter(w io.Writer) *CBORWriter {
	return &CBORWriter{enc: encMode.NewEncoder(w)}
}

// Write exports packet
func (c *CBORWriter) Write(packet *pus.Packet) error {
	record, err := NewRecord(packet)
	if err != nil {
		return fmt.Errorf("failed to export packet: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(record); err != nil {
		return fmt.Errorf("failed to encode CBOR record: %w", err)
	}
	c.count++
	return nil
}

// Count returns the number of exported records
func (c *CBORWriter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// ReadRecords decodes every CBOR record in r
func ReadRecords(r io.Reader) ([]Record, error) {
	dec := cbor.NewDecoder(r)
	var records []Record
	for {
		var record Record
		err := dec.Decode(&record)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("failed to decode CBOR record %d: %w", len(records), err)
		}
		records = append(records, record)
	}
}
