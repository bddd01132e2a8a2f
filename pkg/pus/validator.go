// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import "fmt"

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyPusVersion AnomalyType = iota
	AnomalyIdlePacket
	AnomalyUnknownService
	AnomalyMissingSecondaryHeader
	AnomalySequenceGap
	AnomalyCRCError
	AnomalyDecodeError
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyPusVersion:
		return "PUS_VERSION"
	case AnomalyIdlePacket:
		return "IDLE_PACKET"
	case AnomalyUnknownService:
		return "UNKNOWN_SERVICE"
	case AnomalyMissingSecondaryHeader:
		return "MISSING_SECONDARY_HEADER"
	case AnomalySequenceGap:
		return "SEQUENCE_GAP"
	case AnomalyCRCError:
		return "CRC_ERROR"
	case AnomalyDecodeError:
		return "DECODE_ERROR"
	default:
		return fmt.Sprintf("ANOMALY_%d", int(a))
	}
}

// ValidationError represents a packet that decoded but looks wrong
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Expectations describes what a monitor expects to see on a link
type Expectations struct {
	TcPusVersion uint8
	TmPusVersion uint8
}

// DefaultExpectations matches the default mission policy
var DefaultExpectations = Expectations{
	TcPusVersion: DefaultTcPusVersion,
	TmPusVersion: DefaultTmPusVersion,
}

// ValidatePacket checks a decoded packet against expectations.
// Returns a slice of validation errors (empty if the packet looks valid).
func ValidatePacket(p *Packet, exp Expectations) []ValidationError {
	errors := []ValidationError{}

	if p.APID() == IdleAPID {
		errors = append(errors, ValidationError{
			Type:    AnomalyIdlePacket,
			Message: "Idle packet (APID 2047)",
			Details: map[string]interface{}{"apid": p.APID()},
		})
		return errors
	}

	if !p.Header.SecHeaderFlag {
		if p.IsTC() {
			errors = append(errors, ValidationError{
				Type:    AnomalyMissingSecondaryHeader,
				Message: "TC without PUS secondary header",
				Details: map[string]interface{}{"apid": p.APID()},
			})
		}
		return errors
	}

	version, expected := uint8(0), exp.TmPusVersion
	if p.IsTC() && p.TC != nil {
		version, expected = p.TC.PusVersion, exp.TcPusVersion
	} else if p.TM != nil {
		version = p.TM.PusVersion
	}
	if version != expected {
		errors = append(errors, ValidationError{
			Type:    AnomalyPusVersion,
			Message: fmt.Sprintf("PUS version=%d (expected %d)", version, expected),
			Details: map[string]interface{}{"version": version, "expected": expected},
		})
	}

	if !KnownService(p.Service()) {
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownService,
			Message: fmt.Sprintf("Unknown service type %d", p.Service()),
			Details: map[string]interface{}{"service": p.Service(), "subservice": p.Subservice()},
		})
	}

	return errors
}

type sequenceKey struct {
	apid       uint16
	packetType PacketType
}

// SequenceTracker detects gaps in per-APID sequence counts
type SequenceTracker struct {
	last map[sequenceKey]uint16
}

// NewSequenceTracker creates an empty tracker
func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{last: make(map[sequenceKey]uint16)}
}

// Check records the packet and reports a gap since the previous packet of
// the same APID and type
func (s *SequenceTracker) Check(p *Packet) *ValidationError {
	key := sequenceKey{apid: p.APID(), packetType: p.Header.Type}
	prev, seen := s.last[key]
	s.last[key] = p.SeqCount()
	if !seen {
		return nil
	}
	expected := (prev + 1) % SeqCountRange
	if p.SeqCount() == expected {
		return nil
	}
	missing := (int(p.SeqCount()) - int(expected) + SeqCountRange) % SeqCountRange
	return &ValidationError{
		Type:    AnomalySequenceGap,
		Message: fmt.Sprintf("Sequence gap on APID %d: expected %d, got %d", p.APID(), expected, p.SeqCount()),
		Details: map[string]interface{}{"apid": p.APID(), "expected": expected, "received": p.SeqCount(), "missing": missing},
	}
}
