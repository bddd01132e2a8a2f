// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"encoding/binary"
	"fmt"
)

// SerializeTo encodes the packet into buf and returns the number of bytes
// written. The packet must be valid and its declared data length must agree
// with the packet contents.
func (p *Packet) SerializeTo(buf []byte) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	size := p.Size()
	if expected := dataLengthFor(p.dataFieldSize()); p.Header.DataLength != expected {
		return 0, fmt.Errorf("%w: data length %d, contents need %d", ErrInvalidPacket, p.Header.DataLength, expected)
	}
	if len(buf) < size {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTooSmallBuffer, size, len(buf))
	}

	out := p.Header.appendTo(buf[:0])
	if p.Header.SecHeaderFlag {
		if p.Header.Type == TypeTC {
			out = p.TC.appendTo(out)
		} else {
			out = p.TM.appendTo(out)
		}
	}
	out = append(out, p.Payload...)
	if p.HasPEC {
		out = binary.BigEndian.AppendUint16(out, Checksum(out))
	}
	return len(out), nil
}

// Serialize encodes the packet into a newly allocated slice
func (p *Packet) Serialize() ([]byte, error) {
	buf := make([]byte, p.Size())
	n, err := p.SerializeTo(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// MarshalBinary implements encoding.BinaryMarshaler
func (p *Packet) MarshalBinary() ([]byte, error) {
	return p.Serialize()
}

// MustSerialize encodes the packet and panics on error.
// Use Serialize for packets that were not built by NewTcPacket or NewTmPacket.
func (p *Packet) MustSerialize() []byte {
	data, err := p.Serialize()
	if err != nil {
		panic(fmt.Sprintf("pus: serialize error: %v", err))
	}
	return data
}

// SetPayload replaces the application data and updates the data length.
// The packet is left unchanged when the new payload makes it invalid.
func (p *Packet) SetPayload(data []byte) error {
	previous := p.Payload
	p.Payload = data
	if err := p.Validate(); err != nil {
		p.Payload = previous
		return err
	}
	p.Header.DataLength = dataLengthFor(p.dataFieldSize())
	return nil
}
