// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"encoding/binary"
	"fmt"
	"time"
)

// PrimaryHeader is the 6-byte CCSDS space packet primary header
type PrimaryHeader struct {
	Version       uint8
	Type          PacketType
	SecHeaderFlag bool
	APID          uint16
	SeqFlags      SequenceFlags
	SeqCount      uint16 // sequence count, or packet name for TCs
	DataLength    uint16 // data field length in bytes minus one
}

// PacketID returns the first 16 bits of the primary header
func (h PrimaryHeader) PacketID() uint16 {
	id := uint16(h.Version&0b111)<<13 | uint16(h.Type&1)<<12 | h.APID&MaxAPID
	if h.SecHeaderFlag {
		id |= 1 << 11
	}
	return id
}

// SeqControl returns the packet sequence control word
func (h PrimaryHeader) SeqControl() uint16 {
	return uint16(h.SeqFlags&0b11)<<14 | h.SeqCount&MaxSeqCount
}

// PacketSize returns the total packet size the header declares
func (h PrimaryHeader) PacketSize() int {
	return PrimaryHeaderSize + int(h.DataLength) + 1
}

func (h PrimaryHeader) appendTo(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, h.PacketID())
	dst = binary.BigEndian.AppendUint16(dst, h.SeqControl())
	return binary.BigEndian.AppendUint16(dst, h.DataLength)
}

func parsePrimaryHeader(buf []byte) PrimaryHeader {
	packetID := binary.BigEndian.Uint16(buf[0:2])
	seqControl := binary.BigEndian.Uint16(buf[2:4])
	return PrimaryHeader{
		Version:       uint8(packetID >> 13 & 0b111),
		Type:          PacketType(packetID >> 12 & 1),
		SecHeaderFlag: packetID>>11&1 == 1,
		APID:          packetID & MaxAPID,
		SeqFlags:      SequenceFlags(seqControl >> 14),
		SeqCount:      seqControl & MaxSeqCount,
		DataLength:    binary.BigEndian.Uint16(buf[4:6]),
	}
}

// TcSecondaryHeader is the PUS telecommand data field header
type TcSecondaryHeader struct {
	PusVersion     uint8
	AckFlags       AckFlags
	ServiceType    uint8
	ServiceSubtype uint8
	HasSource      bool
	Source         uint16
}

// Size returns the encoded length in octets
func (h *TcSecondaryHeader) Size() int {
	if h.HasSource {
		return TcSecondaryHeaderSize + optionalFieldSize
	}
	return TcSecondaryHeaderSize
}

func (h *TcSecondaryHeader) appendTo(dst []byte) []byte {
	dst = append(dst, h.PusVersion<<4|uint8(h.AckFlags)&0x0F, h.ServiceType, h.ServiceSubtype)
	if h.HasSource {
		dst = binary.BigEndian.AppendUint16(dst, h.Source)
	}
	return dst
}

// TmSecondaryHeader is the PUS telemetry data field header
type TmSecondaryHeader struct {
	PusVersion     uint8
	TimeRefStatus  uint8
	ServiceType    uint8
	ServiceSubtype uint8
	HasMsgCounter  bool
	MsgCounter     uint16
	HasDestination bool
	Destination    uint16
	Time           *CucTime
}

// Size returns the encoded length in octets
func (h *TmSecondaryHeader) Size() int {
	size := TmSecondaryHeaderSize
	if h.HasMsgCounter {
		size += optionalFieldSize
	}
	if h.HasDestination {
		size += optionalFieldSize
	}
	if h.Time != nil {
		size += h.Time.Size()
	}
	return size
}

func (h *TmSecondaryHeader) appendTo(dst []byte) []byte {
	dst = append(dst, h.PusVersion<<4|h.TimeRefStatus&0x0F, h.ServiceType, h.ServiceSubtype)
	if h.HasMsgCounter {
		dst = binary.BigEndian.AppendUint16(dst, h.MsgCounter)
	}
	if h.HasDestination {
		dst = binary.BigEndian.AppendUint16(dst, h.Destination)
	}
	if h.Time != nil {
		dst = h.Time.AppendBytes(dst)
	}
	return dst
}

// Packet is a CCSDS space packet. Header.Type selects which secondary header
// is meaningful: TC for telecommands, TM for telemetry. Both are nil when the
// packet carries no secondary header.
type Packet struct {
	Header  PrimaryHeader
	TC      *TcSecondaryHeader
	TM      *TmSecondaryHeader
	Payload []byte
	HasPEC  bool

	timestamp time.Time
}

// IsTC reports whether the packet is a telecommand
func (p *Packet) IsTC() bool {
	return p.Header.Type == TypeTC
}

// APID returns the application process identifier
func (p *Packet) APID() uint16 {
	return p.Header.APID
}

// SeqCount returns the sequence count (or TC packet name)
func (p *Packet) SeqCount() uint16 {
	return p.Header.SeqCount
}

// Service returns the PUS service type, or 0 without a secondary header
func (p *Packet) Service() uint8 {
	switch {
	case p.Header.Type == TypeTC && p.TC != nil:
		return p.TC.ServiceType
	case p.Header.Type == TypeTM && p.TM != nil:
		return p.TM.ServiceType
	}
	return 0
}

// Subservice returns the PUS service subtype, or 0 without a secondary header
func (p *Packet) Subservice() uint8 {
	switch {
	case p.Header.Type == TypeTC && p.TC != nil:
		return p.TC.ServiceSubtype
	case p.Header.Type == TypeTM && p.TM != nil:
		return p.TM.ServiceSubtype
	}
	return 0
}

// AckFlags returns the TC acknowledgment flags (AckNone for TM packets)
func (p *Packet) AckFlags() AckFlags {
	if p.Header.Type == TypeTC && p.TC != nil {
		return p.TC.AckFlags
	}
	return AckNone
}

// AppData returns the application data (TC) or source data (TM)
func (p *Packet) AppData() []byte {
	return p.Payload
}

// Timestamp returns when the packet was decoded or created locally
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// RequestID returns the packet ID and sequence control words that identify
// a telecommand in verification reports
func (p *Packet) RequestID() [4]byte {
	var id [4]byte
	binary.BigEndian.PutUint16(id[0:2], p.Header.PacketID())
	binary.BigEndian.PutUint16(id[2:4], p.Header.SeqControl())
	return id
}

// secondaryHeaderSize returns the size of whichever secondary header applies
func (p *Packet) secondaryHeaderSize() int {
	if !p.Header.SecHeaderFlag {
		return 0
	}
	if p.Header.Type == TypeTC && p.TC != nil {
		return p.TC.Size()
	}
	if p.Header.Type == TypeTM && p.TM != nil {
		return p.TM.Size()
	}
	return 0
}

// dataFieldSize returns the number of bytes after the primary header
func (p *Packet) dataFieldSize() int {
	size := p.secondaryHeaderSize() + len(p.Payload)
	if p.HasPEC {
		size += PECSize
	}
	return size
}

// Size returns the total encoded packet length
func (p *Packet) Size() int {
	return PrimaryHeaderSize + p.dataFieldSize()
}

// String returns a one-line summary
func (p *Packet) String() string {
	kind := "TM"
	if p.IsTC() {
		kind = "TC"
	}
	if !p.Header.SecHeaderFlag {
		return fmt.Sprintf("%s apid=%d seq=%d len=%d", kind, p.APID(), p.SeqCount(), len(p.Payload))
	}
	return fmt.Sprintf("%s[%d,%d] apid=%d seq=%d len=%d", kind, p.Service(), p.Subservice(), p.APID(), p.SeqCount(), len(p.Payload))
}

// dataLengthFor converts a data field size into the CCSDS data length field
func dataLengthFor(dataFieldSize int) uint16 {
	if dataFieldSize == 0 {
		return 0
	}
	return uint16(dataFieldSize - 1)
}

// TcOptions holds the fields of a telecommand to create
type TcOptions struct {
	APID          uint16
	Name          uint16 // sequence count / packet name
	SeqFlags      SequenceFlags
	SecHeaderFlag bool
	PusVersion    uint8
	AckFlags      AckFlags
	Service       uint8
	Subservice    uint8
	HasSource     bool
	Source        uint16
	Data          []byte
	HasPEC        bool
}

// NewTcPacket creates a telecommand, validating every field
func NewTcPacket(opts TcOptions) (*Packet, error) {
	p := &Packet{
		Header: PrimaryHeader{
			Version:       PacketVersion,
			Type:          TypeTC,
			SecHeaderFlag: opts.SecHeaderFlag,
			APID:          opts.APID,
			SeqFlags:      opts.SeqFlags,
			SeqCount:      opts.Name,
		},
		Payload:   opts.Data,
		HasPEC:    opts.HasPEC,
		timestamp: time.Now(),
	}
	if opts.SecHeaderFlag {
		p.TC = &TcSecondaryHeader{
			PusVersion:     opts.PusVersion,
			AckFlags:       opts.AckFlags,
			ServiceType:    opts.Service,
			ServiceSubtype: opts.Subservice,
			HasSource:      opts.HasSource,
			Source:         opts.Source,
		}
	}
	if err := p.finalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// TmOptions holds the fields of a telemetry packet to create
type TmOptions struct {
	APID           uint16
	SeqCount       uint16
	SeqFlags       SequenceFlags
	SecHeaderFlag  bool
	PusVersion     uint8
	TimeRefStatus  uint8
	Service        uint8
	Subservice     uint8
	HasMsgCounter  bool
	MsgCounter     uint16
	HasDestination bool
	Destination    uint16
	Time           *CucTime
	Data           []byte
	HasPEC         bool
}

// NewTmPacket creates a telemetry packet, validating every field
func NewTmPacket(opts TmOptions) (*Packet, error) {
	p := &Packet{
		Header: PrimaryHeader{
			Version:       PacketVersion,
			Type:          TypeTM,
			SecHeaderFlag: opts.SecHeaderFlag,
			APID:          opts.APID,
			SeqFlags:      opts.SeqFlags,
			SeqCount:      opts.SeqCount,
		},
		Payload:   opts.Data,
		HasPEC:    opts.HasPEC,
		timestamp: time.Now(),
	}
	if opts.SecHeaderFlag {
		p.TM = &TmSecondaryHeader{
			PusVersion:     opts.PusVersion,
			TimeRefStatus:  opts.TimeRefStatus,
			ServiceType:    opts.Service,
			ServiceSubtype: opts.Subservice,
			HasMsgCounter:  opts.HasMsgCounter,
			MsgCounter:     opts.MsgCounter,
			HasDestination: opts.HasDestination,
			Destination:    opts.Destination,
			Time:           opts.Time,
		}
	}
	if err := p.finalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// finalize range checks the fields and derives the data length
func (p *Packet) finalize() error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Header.DataLength = dataLengthFor(p.dataFieldSize())
	return nil
}

// Validate range checks every header field and the total size
func (p *Packet) Validate() error {
	h := p.Header
	if h.Version != PacketVersion {
		return fmt.Errorf("%w: version %d (only %d supported)", ErrInvalidPacket, h.Version, PacketVersion)
	}
	if h.Type > TypeTC {
		return fmt.Errorf("%w: packet type %d", ErrInvalidPacket, h.Type)
	}
	if h.APID > MaxAPID {
		return fmt.Errorf("%w: APID %d (max %d)", ErrInvalidPacket, h.APID, MaxAPID)
	}
	if h.SeqFlags > SeqUnsegmented {
		return fmt.Errorf("%w: sequence flags %d", ErrInvalidPacket, h.SeqFlags)
	}
	if h.SeqCount > MaxSeqCount {
		return fmt.Errorf("%w: sequence count %d (max %d)", ErrInvalidPacket, h.SeqCount, MaxSeqCount)
	}
	if h.SecHeaderFlag {
		switch {
		case h.Type == TypeTC && p.TC == nil, h.Type == TypeTM && p.TM == nil:
			return fmt.Errorf("%w: secondary header flag set without a secondary header", ErrInvalidPacket)
		case h.Type == TypeTC && (p.TC.PusVersion > 0x0F || p.TC.AckFlags > AckAll):
			return fmt.Errorf("%w: TC PUS version %d / ack flags %d", ErrInvalidPacket, p.TC.PusVersion, p.TC.AckFlags)
		case h.Type == TypeTM && (p.TM.PusVersion > 0x0F || p.TM.TimeRefStatus > 0x0F):
			return fmt.Errorf("%w: TM PUS version %d / time reference status %d", ErrInvalidPacket, p.TM.PusVersion, p.TM.TimeRefStatus)
		case h.Type == TypeTM && p.TM.Time == nil:
			return fmt.Errorf("%w: TM secondary header without a time field", ErrInvalidPacket)
		}
	}
	if p.dataFieldSize() == 0 {
		return fmt.Errorf("%w: empty data field", ErrInvalidPacket)
	}
	if size := p.Size(); size > MaxPacketSize {
		return fmt.Errorf("%w: packet size %d (max %d)", ErrInvalidPacket, size, MaxPacketSize)
	}
	return nil
}
