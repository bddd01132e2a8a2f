// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pus implements the CCSDS Space Packet and ECSS PUS packet codec.
//
// It provides telecommand (TC) and telemetry (TM) packets with their
// secondary headers, the CRC-16/CCITT packet error control, the CUC time
// value carried in TM secondary headers, a byte stream decoder for links,
// and monitoring helpers (validation, statistics, formatting).
//
// All multi-byte fields are big-endian.
package pus

// Primary header layout
const (
	PrimaryHeaderSize = 6
	MaxPacketSize     = 65542
	MaxDataLength     = MaxPacketSize - PrimaryHeaderSize

	PacketVersion = 0
	MaxAPID       = 0x7FF
	MaxSeqCount   = 0x3FFF
	SeqCountRange = MaxSeqCount + 1

	IdleAPID = 2047
)

// Secondary header sizes, excluding optional fields
const (
	TcSecondaryHeaderSize = 3
	TmSecondaryHeaderSize = 3

	optionalFieldSize = 2
	PECSize           = 2
)

// PacketType is the primary header type bit
type PacketType uint8

const (
	TypeTM PacketType = 0
	TypeTC PacketType = 1
)

// SequenceFlags is the two-bit segmentation field of the primary header
type SequenceFlags uint8

const (
	SeqContinuation SequenceFlags = 0
	SeqFirst        SequenceFlags = 1
	SeqLast         SequenceFlags = 2
	SeqUnsegmented  SequenceFlags = 3
)

// AckFlags is the TC acknowledgment bitset
type AckFlags uint8

const (
	AckNone       AckFlags = 0
	AckAcceptance AckFlags = 1
	AckStart      AckFlags = 2
	AckProgress   AckFlags = 4
	AckCompletion AckFlags = 8

	AckAll = AckAcceptance | AckStart | AckProgress | AckCompletion
)

// Has reports whether every bit of flag is set
func (a AckFlags) Has(flag AckFlags) bool {
	return a&flag == flag
}

// PUS service types
const (
	ServiceRequestVerification = 1
	ServiceHousekeeping        = 3
	ServiceEventReporting      = 5
	ServiceFunctionManagement  = 8
	ServiceTest                = 17
	ServiceParameterManagement = 20
)

// Default PUS versions
const (
	DefaultTcPusVersion = 2
	DefaultTmPusVersion = 1
)
