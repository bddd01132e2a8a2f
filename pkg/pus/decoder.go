// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// DecodeOptions tells the decoder which optional fields to expect. The wire
// format is not self-describing, so these must mirror the mission policy.
type DecodeOptions struct {
	HasSource      bool // TC source ID
	HasMsgCounter  bool // TM message type counter
	HasDestination bool // TM destination ID
	HasPEC         bool

	// TimeFormat fixes the TM time layout. When nil the time field must
	// carry a P-field and is decoded from it.
	TimeFormat  *CucFormat
	AgencyEpoch time.Time

	ValidateFields bool
	ValidatePEC    bool
}

// Deserialize decodes the packet at the start of buf, choosing the secondary
// header from the type bit. It returns the packet and its encoded length.
func Deserialize(buf []byte, opts DecodeOptions) (*Packet, int, error) {
	return deserialize(buf, opts, nil)
}

// DecodeTC decodes a telecommand at the start of buf
func DecodeTC(buf []byte, opts DecodeOptions) (*Packet, int, error) {
	expected := TypeTC
	return deserialize(buf, opts, &expected)
}

// DecodeTM decodes a telemetry packet at the start of buf
func DecodeTM(buf []byte, opts DecodeOptions) (*Packet, int, error) {
	expected := TypeTM
	return deserialize(buf, opts, &expected)
}

func deserialize(buf []byte, opts DecodeOptions, expected *PacketType) (*Packet, int, error) {
	if len(buf) < PrimaryHeaderSize {
		return nil, 0, fmt.Errorf("%w: %d bytes, primary header needs %d", ErrIncompletePacket, len(buf), PrimaryHeaderSize)
	}
	header := parsePrimaryHeader(buf)
	packetSize := header.PacketSize()
	if packetSize > len(buf) {
		return nil, 0, fmt.Errorf("%w: declared %d bytes, have %d", ErrIncompletePacket, packetSize, len(buf))
	}
	if packetSize > MaxPacketSize {
		return nil, 0, fmt.Errorf("%w: packet size %d (max %d)", ErrInvalidPacket, packetSize, MaxPacketSize)
	}
	if opts.HasPEC && opts.ValidatePEC && !ChecksumValid(buf[:packetSize]) {
		received := binary.BigEndian.Uint16(buf[packetSize-PECSize : packetSize])
		return nil, 0, fmt.Errorf("%w: received 0x%04X, expected 0x%04X",
			ErrCrcMismatch, received, Checksum(buf[:packetSize-PECSize]))
	}
	if expected != nil && header.Type != *expected {
		return nil, 0, fmt.Errorf("%w: packet type %d, expected %d", ErrInvalidPacket, header.Type, *expected)
	}

	p := &Packet{Header: header, HasPEC: opts.HasPEC, timestamp: time.Now()}
	end := packetSize
	if opts.HasPEC {
		end -= PECSize
	}
	offset := PrimaryHeaderSize

	if header.SecHeaderFlag {
		var err error
		if header.Type == TypeTC {
			offset, err = p.decodeTcHeader(buf[:end], offset, opts)
		} else {
			offset, err = p.decodeTmHeader(buf[:end], offset, opts)
		}
		if err != nil {
			return nil, 0, err
		}
	}
	if end < offset {
		return nil, 0, fmt.Errorf("%w: data length %d too short for headers", ErrInvalidPacket, header.DataLength)
	}
	p.Payload = append([]byte(nil), buf[offset:end]...)

	if opts.ValidateFields {
		if err := p.Validate(); err != nil {
			return nil, 0, err
		}
	}
	return p, packetSize, nil
}

func (p *Packet) decodeTcHeader(buf []byte, offset int, opts DecodeOptions) (int, error) {
	size := TcSecondaryHeaderSize
	if opts.HasSource {
		size += optionalFieldSize
	}
	if len(buf) < offset+size {
		return 0, fmt.Errorf("%w: data length %d too short for TC secondary header", ErrInvalidPacket, p.Header.DataLength)
	}
	h := &TcSecondaryHeader{
		PusVersion:     buf[offset] >> 4,
		AckFlags:       AckFlags(buf[offset] & 0x0F),
		ServiceType:    buf[offset+1],
		ServiceSubtype: buf[offset+2],
		HasSource:      opts.HasSource,
	}
	offset += TcSecondaryHeaderSize
	if opts.HasSource {
		h.Source = binary.BigEndian.Uint16(buf[offset:])
		offset += optionalFieldSize
	}
	p.TC = h
	return offset, nil
}

func (p *Packet) decodeTmHeader(buf []byte, offset int, opts DecodeOptions) (int, error) {
	size := TmSecondaryHeaderSize
	if opts.HasMsgCounter {
		size += optionalFieldSize
	}
	if opts.HasDestination {
		size += optionalFieldSize
	}
	if len(buf) < offset+size {
		return 0, fmt.Errorf("%w: data length %d too short for TM secondary header", ErrInvalidPacket, p.Header.DataLength)
	}
	h := &TmSecondaryHeader{
		PusVersion:     buf[offset] >> 4,
		TimeRefStatus:  buf[offset] & 0x0F,
		ServiceType:    buf[offset+1],
		ServiceSubtype: buf[offset+2],
		HasMsgCounter:  opts.HasMsgCounter,
		HasDestination: opts.HasDestination,
	}
	offset += TmSecondaryHeaderSize
	if opts.HasMsgCounter {
		h.MsgCounter = binary.BigEndian.Uint16(buf[offset:])
		offset += optionalFieldSize
	}
	if opts.HasDestination {
		h.Destination = binary.BigEndian.Uint16(buf[offset:])
		offset += optionalFieldSize
	}

	var (
		n   int
		err error
	)
	if opts.TimeFormat != nil {
		h.Time, n, err = ParseCucTime(buf[offset:], *opts.TimeFormat)
	} else {
		h.Time, n, err = DecodeCucTime(buf[offset:], opts.AgencyEpoch)
	}
	if errors.Is(err, ErrIncompletePacket) {
		return 0, fmt.Errorf("%w: data length %d too short for TM time field", ErrInvalidPacket, p.Header.DataLength)
	}
	if err != nil {
		return 0, err
	}
	p.TM = h
	return offset + n, nil
}

// StreamDecoder reassembles packets from a byte stream such as a serial or
// websocket link. Bytes that cannot start a valid packet are discarded one at
// a time until the stream resynchronises.
type StreamDecoder struct {
	opts    DecodeOptions
	buffer  []byte
	skipped int
}

// NewStreamDecoder creates a stream decoder with the given expectations
func NewStreamDecoder(opts DecodeOptions) *StreamDecoder {
	return &StreamDecoder{
		opts:   opts,
		buffer: make([]byte, 0, 4096),
	}
}

// Reset drops any buffered bytes
func (d *StreamDecoder) Reset() {
	d.buffer = d.buffer[:0]
	d.skipped = 0
}

// Buffered returns the number of bytes waiting for a complete packet
func (d *StreamDecoder) Buffered() int {
	return len(d.buffer)
}

// Skipped returns the number of bytes discarded while resynchronising
func (d *StreamDecoder) Skipped() int {
	return d.skipped
}

// Write appends received bytes. It never fails.
func (d *StreamDecoder) Write(data []byte) (int, error) {
	d.buffer = append(d.buffer, data...)
	return len(data), nil
}

// DecodeByte processes a single byte and returns a packet once one completes
func (d *StreamDecoder) DecodeByte(b byte) (*Packet, error) {
	d.buffer = append(d.buffer, b)
	return d.Next()
}

// Next returns the next complete packet, or nil when more bytes are needed.
// A decode error consumes one byte so the caller can keep calling Next.
func (d *StreamDecoder) Next() (*Packet, error) {
	if len(d.buffer) < PrimaryHeaderSize {
		return nil, nil
	}
	header := parsePrimaryHeader(d.buffer)
	if header.Version != PacketVersion {
		d.skip()
		return nil, fmt.Errorf("%w: version %d", ErrInvalidPacket, header.Version)
	}
	if len(d.buffer) < header.PacketSize() {
		return nil, nil
	}

	packet, n, err := Deserialize(d.buffer, d.opts)
	if err != nil {
		d.skip()
		return nil, err
	}
	d.discard(n)
	return packet, nil
}

func (d *StreamDecoder) skip() {
	d.skipped++
	d.discard(1)
}

func (d *StreamDecoder) discard(n int) {
	remaining := copy(d.buffer, d.buffer[n:])
	d.buffer = d.buffer[:remaining]
}
