// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package policy holds the mission dependent parts of the PUS binary format:
// optional header fields, PUS versions, the time code and the widths of the
// identifiers and counts carried in service application data.
//
// A Policy is passed explicitly to every constructor that needs it. It is
// safe to read concurrently but must not be modified while packets are in
// flight.
package policy

import (
	"fmt"
	"time"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
)

// Common holds widths shared by every service
type Common struct {
	ParamID parameter.UnsignedType
}

// RequestVerification holds the PUS 1 widths
type RequestVerification struct {
	FailureCode parameter.UnsignedType
}

// Housekeeping holds the PUS 3 widths
type Housekeeping struct {
	StructureID        parameter.UnsignedType
	CollectionInterval parameter.UnsignedType
	Count              parameter.UnsignedType
	// GenerationStatus is the periodic generation action status of TM[3,35] and TM[3,36]
	GenerationStatus parameter.UnsignedType
	// IntervalUnit is the duration of one collection interval step
	IntervalUnit time.Duration
}

// EventReporting holds the PUS 5 widths
type EventReporting struct {
	EventDefinitionID parameter.UnsignedType
	Count             parameter.UnsignedType
}

// FunctionManagement holds the PUS 8 widths
type FunctionManagement struct {
	FunctionID parameter.UnsignedType
	Count      parameter.UnsignedType
}

// ParameterManagement holds the PUS 20 widths
type ParameterManagement struct {
	Count parameter.UnsignedType
}

// Policy describes one mission's PUS conventions
type Policy struct {
	TcPusVersion    uint8
	TmPusVersion    uint8
	DefaultAckFlags pus.AckFlags

	TcHasSource      bool
	TmHasMsgCounter  bool
	TmHasDestination bool
	HasPEC           bool

	Time pus.CucFormat
	// Now is the clock used for TM time stamps
	Now func() time.Time

	Common              Common
	RequestVerification RequestVerification
	Housekeeping        Housekeeping
	EventReporting      EventReporting
	FunctionManagement  FunctionManagement
	ParameterManagement ParameterManagement
}

// Default returns the baseline policy: PUS-C TCs acknowledged on acceptance,
// PUS-A TMs without counter or destination, a PEC on every packet and a CUC
// 4.2 time code with P-field.
func Default() *Policy {
	return &Policy{
		TcPusVersion:    pus.DefaultTcPusVersion,
		TmPusVersion:    pus.DefaultTmPusVersion,
		DefaultAckFlags: pus.AckAcceptance,
		HasPEC:          true,
		Time:            pus.DefaultCucFormat,
		Now:             time.Now,
		Common: Common{
			ParamID: parameter.U16,
		},
		RequestVerification: RequestVerification{
			FailureCode: parameter.U8,
		},
		Housekeeping: Housekeeping{
			StructureID:        parameter.U16,
			CollectionInterval: parameter.U16,
			Count:              parameter.U16,
			GenerationStatus:   parameter.U8,
			IntervalUnit:       time.Second,
		},
		EventReporting: EventReporting{
			EventDefinitionID: parameter.U16,
			Count:             parameter.U8,
		},
		FunctionManagement: FunctionManagement{
			FunctionID: parameter.U16,
			Count:      parameter.U8,
		},
		ParameterManagement: ParameterManagement{
			Count: parameter.U8,
		},
	}
}

// Validate checks the time format and every width
func (p *Policy) Validate() error {
	if p.TcPusVersion > 0x0F || p.TmPusVersion > 0x0F {
		return fmt.Errorf("%w: PUS version %d/%d", pus.ErrInvalidPacket, p.TcPusVersion, p.TmPusVersion)
	}
	if p.DefaultAckFlags > pus.AckAll {
		return fmt.Errorf("%w: ack flags %d", pus.ErrInvalidPacket, p.DefaultAckFlags)
	}
	if err := p.Time.Validate(); err != nil {
		return err
	}
	if p.Housekeeping.IntervalUnit <= 0 {
		return fmt.Errorf("%w: collection interval unit %s", parameter.ErrRange, p.Housekeeping.IntervalUnit)
	}

	widths := map[string]parameter.UnsignedType{
		"common.param_id":                     p.Common.ParamID,
		"request_verification.failure_code":   p.RequestVerification.FailureCode,
		"housekeeping.structure_id":           p.Housekeeping.StructureID,
		"housekeeping.collection_interval":    p.Housekeeping.CollectionInterval,
		"housekeeping.count":                  p.Housekeeping.Count,
		"housekeeping.generation_status":      p.Housekeeping.GenerationStatus,
		"event_reporting.event_definition_id": p.EventReporting.EventDefinitionID,
		"event_reporting.count":               p.EventReporting.Count,
		"function_management.function_id":     p.FunctionManagement.FunctionID,
		"function_management.count":           p.FunctionManagement.Count,
		"parameter_management.count":          p.ParameterManagement.Count,
	}
	for name, width := range widths {
		if err := width.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// NewTime returns the current time in the mission time code
func (p *Policy) NewTime() (*pus.CucTime, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return pus.CucTimeFromTime(now(), p.Time)
}

// TcOptions fills in the mission fields of a telecommand. Callers may adjust
// the result, for example the ack flags, before creating the packet.
func (p *Policy) TcOptions(apid, name uint16, service, subservice uint8, data []byte) pus.TcOptions {
	return pus.TcOptions{
		APID:          apid,
		Name:          name,
		SeqFlags:      pus.SeqUnsegmented,
		SecHeaderFlag: true,
		PusVersion:    p.TcPusVersion,
		AckFlags:      p.DefaultAckFlags,
		Service:       service,
		Subservice:    subservice,
		HasSource:     p.TcHasSource,
		Data:          data,
		HasPEC:        p.HasPEC,
	}
}

// NewTcPacket creates a telecommand with the mission defaults
func (p *Policy) NewTcPacket(apid, name uint16, service, subservice uint8, data []byte) (*pus.Packet, error) {
	return pus.NewTcPacket(p.TcOptions(apid, name, service, subservice, data))
}

// TmOptions fills in the mission fields of a telemetry packet, stamped with
// the current time
func (p *Policy) TmOptions(apid, seqCount uint16, service, subservice uint8, data []byte) (pus.TmOptions, error) {
	ts, err := p.NewTime()
	if err != nil {
		return pus.TmOptions{}, err
	}
	return pus.TmOptions{
		APID:           apid,
		SeqCount:       seqCount,
		SeqFlags:       pus.SeqUnsegmented,
		SecHeaderFlag:  true,
		PusVersion:     p.TmPusVersion,
		Service:        service,
		Subservice:     subservice,
		HasMsgCounter:  p.TmHasMsgCounter,
		HasDestination: p.TmHasDestination,
		Time:           ts,
		Data:           data,
		HasPEC:         p.HasPEC,
	}, nil
}

// NewTmPacket creates a telemetry packet with the mission defaults
func (p *Policy) NewTmPacket(apid, seqCount uint16, service, subservice uint8, data []byte) (*pus.Packet, error) {
	opts, err := p.TmOptions(apid, seqCount, service, subservice, data)
	if err != nil {
		return nil, err
	}
	return pus.NewTmPacket(opts)
}

// TcDecodeOptions returns validating decode options for telecommands
func (p *Policy) TcDecodeOptions() pus.DecodeOptions {
	return pus.DecodeOptions{
		HasSource:      p.TcHasSource,
		HasPEC:         p.HasPEC,
		ValidateFields: true,
		ValidatePEC:    true,
	}
}

// TmDecodeOptions returns validating decode options for telemetry
func (p *Policy) TmDecodeOptions() pus.DecodeOptions {
	format := p.Time
	return pus.DecodeOptions{
		HasMsgCounter:  p.TmHasMsgCounter,
		HasDestination: p.TmHasDestination,
		HasPEC:         p.HasPEC,
		TimeFormat:     &format,
		AgencyEpoch:    p.Time.Epoch,
		ValidateFields: true,
		ValidatePEC:    true,
	}
}

// DecodeOptions returns options able to decode both packet types
func (p *Policy) DecodeOptions() pus.DecodeOptions {
	opts := p.TmDecodeOptions()
	opts.HasSource = p.TcHasSource
	return opts
}

// Expectations returns the PUS versions a monitor should expect
func (p *Policy) Expectations() pus.Expectations {
	return pus.Expectations{
		TcPusVersion: p.TcPusVersion,
		TmPusVersion: p.TmPusVersion,
	}
}
