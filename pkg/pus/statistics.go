// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Statistics tracks packet statistics and error rates on a link
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPackets    uint64
	ValidPackets    uint64
	TCPackets       uint64
	TMPackets       uint64
	CRCErrors       uint64
	DecodeErrors    uint64
	Anomalies       uint64
	VersionErrors   uint64
	SequenceGaps    uint64
	UnknownServices uint64
	IdlePackets     uint64

	// Packets per service type
	PerService map[uint8]uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		PerService:     make(map[uint8]uint64),
	}
}

// Update updates statistics based on a packet and its errors
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.TotalPackets++

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCrcMismatch) {
			s.CRCErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}

	if packet.IsTC() {
		s.TCPackets++
	} else {
		s.TMPackets++
	}
	if packet.Header.SecHeaderFlag {
		s.PerService[packet.Service()]++
	}

	if len(validationErrors) == 0 {
		s.ValidPackets++
	}
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyPusVersion:
			s.VersionErrors++
		case AnomalySequenceGap:
			s.SequenceGaps++
		case AnomalyUnknownService:
			s.UnknownServices++
		case AnomalyIdlePacket:
			s.IdlePackets++
		}
		s.Anomalies++
	}

	s.LastUpdateTime = time.Now()
}

// Errors returns the number of packets that failed to decode or raised anomalies
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.DecodeErrors + s.Anomalies
}

// CalculateRates calculates packet and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// ServiceTypes returns the observed service types in ascending order
func (s *Statistics) ServiceTypes() []uint8 {
	types := make([]uint8, 0, len(s.PerService))
	for t := range s.PerService {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalPackets == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Packets:   %8d (TC %d, TM %d)\n", s.TotalPackets, s.TCPackets, s.TMPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, percent(s.ValidPackets))

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, percent(s.CRCErrors))
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
		if s.VersionErrors > 0 {
			result += fmt.Sprintf("  PUS Version:      %5d\n", s.VersionErrors)
		}
		if s.SequenceGaps > 0 {
			result += fmt.Sprintf("  Sequence Gaps:    %5d\n", s.SequenceGaps)
		}
		if s.UnknownServices > 0 {
			result += fmt.Sprintf("  Unknown Service:  %5d\n", s.UnknownServices)
		}
		if s.IdlePackets > 0 {
			result += fmt.Sprintf("  Idle Packets:     %5d\n", s.IdlePackets)
		}
	}
	for _, t := range s.ServiceTypes() {
		result += fmt.Sprintf("  %-22s %5d\n", FormatServiceType(t)+":", s.PerService[t])
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
