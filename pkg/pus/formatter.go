// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"encoding/hex"
	"fmt"
	"strings"
)

var serviceNames = map[uint8]string{
	1:  "REQUEST_VERIFICATION",
	2:  "DEVICE_ACCESS",
	3:  "HOUSEKEEPING",
	4:  "PARAMETER_STATISTICS",
	5:  "EVENT_REPORTING",
	6:  "MEMORY_MANAGEMENT",
	8:  "FUNCTION_MANAGEMENT",
	9:  "TIME_MANAGEMENT",
	11: "TIME_BASED_SCHEDULING",
	12: "ONBOARD_MONITORING",
	13: "LARGE_PACKET_TRANSFER",
	14: "REAL_TIME_FORWARDING",
	15: "ONBOARD_STORAGE",
	17: "TEST",
	18: "ONBOARD_CONTROL_PROCEDURE",
	19: "EVENT_ACTION",
	20: "PARAMETER_MANAGEMENT",
	21: "REQUEST_SEQUENCING",
	22: "POSITION_BASED_SCHEDULING",
	23: "FILE_MANAGEMENT",
}

type messageKey struct {
	service    uint8
	subservice uint8
}

var messageNames = map[messageKey]string{
	{1, 1}:  "ACCEPTANCE_SUCCESS",
	{1, 2}:  "ACCEPTANCE_FAILURE",
	{1, 3}:  "START_SUCCESS",
	{1, 4}:  "START_FAILURE",
	{1, 5}:  "PROGRESS_SUCCESS",
	{1, 6}:  "PROGRESS_FAILURE",
	{1, 7}:  "COMPLETION_SUCCESS",
	{1, 8}:  "COMPLETION_FAILURE",
	{3, 1}:  "CREATE_HK_REPORT",
	{3, 2}:  "CREATE_DIAG_REPORT",
	{3, 3}:  "DELETE_HK_REPORTS",
	{3, 4}:  "DELETE_DIAG_REPORTS",
	{3, 5}:  "ENABLE_HK_REPORTS",
	{3, 6}:  "DISABLE_HK_REPORTS",
	{3, 7}:  "ENABLE_DIAG_REPORTS",
	{3, 8}:  "DISABLE_DIAG_REPORTS",
	{3, 9}:  "REPORT_HK_STRUCTURES",
	{3, 10}: "HK_STRUCTURE_REPORT",
	{3, 11}: "REPORT_DIAG_STRUCTURES",
	{3, 12}: "DIAG_STRUCTURE_REPORT",
	{3, 25}: "HK_PARAMETER_REPORT",
	{3, 26}: "DIAG_PARAMETER_REPORT",
	{3, 27}: "GENERATE_HK_REPORTS",
	{3, 28}: "GENERATE_DIAG_REPORTS",
	{3, 29}: "APPEND_HK_PARAMETERS",
	{3, 30}: "APPEND_DIAG_PARAMETERS",
	{3, 31}: "MODIFY_HK_INTERVALS",
	{3, 32}: "MODIFY_DIAG_INTERVALS",
	{3, 33}: "REPORT_HK_PROPERTIES",
	{3, 34}: "REPORT_DIAG_PROPERTIES",
	{3, 35}: "HK_PROPERTIES_REPORT",
	{3, 36}: "DIAG_PROPERTIES_REPORT",
	{5, 1}:  "INFO_EVENT",
	{5, 2}:  "LOW_SEVERITY_EVENT",
	{5, 3}:  "MEDIUM_SEVERITY_EVENT",
	{5, 4}:  "HIGH_SEVERITY_EVENT",
	{5, 5}:  "ENABLE_EVENTS",
	{5, 6}:  "DISABLE_EVENTS",
	{5, 7}:  "REPORT_DISABLED_EVENTS",
	{5, 8}:  "DISABLED_EVENTS_REPORT",
	{8, 1}:  "PERFORM_FUNCTION",
	{17, 1}: "CONNECTION_TEST",
	{17, 2}: "CONNECTION_TEST_REPORT",
	{20, 1}: "REPORT_PARAMETER_VALUES",
	{20, 2}: "PARAMETER_VALUE_REPORT",
	{20, 3}: "SET_PARAMETER_VALUES",
}

// KnownService reports whether the service type is defined by the standard
func KnownService(service uint8) bool {
	_, ok := serviceNames[service]
	return ok
}

// FormatServiceType returns the human-readable name for a service type
func FormatServiceType(service uint8) string {
	if name, ok := serviceNames[service]; ok {
		return name
	}
	return fmt.Sprintf("SERVICE_%d", service)
}

// FormatMessageType returns the human-readable name for a service/subservice pair
func FormatMessageType(service, subservice uint8) string {
	if name, ok := messageNames[messageKey{service, subservice}]; ok {
		return name
	}
	return fmt.Sprintf("%s_%d", FormatServiceType(service), subservice)
}

// FormatPacket formats a packet into a human-readable line
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")

	var b strings.Builder
	if !p.Header.SecHeaderFlag {
		fmt.Fprintf(&b, "[%s] %s apid=%d seq=%d", timestamp, kindOf(p), p.APID(), p.SeqCount())
	} else {
		fmt.Fprintf(&b, "[%s] %s[%d,%d] %s apid=%d seq=%d", timestamp, kindOf(p),
			p.Service(), p.Subservice(), FormatMessageType(p.Service(), p.Subservice()), p.APID(), p.SeqCount())
	}

	switch {
	case p.IsTC() && p.TC != nil:
		fmt.Fprintf(&b, " ack=%s", FormatAckFlags(p.TC.AckFlags))
		if p.TC.HasSource {
			fmt.Fprintf(&b, " src=%d", p.TC.Source)
		}
	case !p.IsTC() && p.TM != nil:
		if p.TM.HasMsgCounter {
			fmt.Fprintf(&b, " cnt=%d", p.TM.MsgCounter)
		}
		if p.TM.HasDestination {
			fmt.Fprintf(&b, " dst=%d", p.TM.Destination)
		}
		if p.TM.Time != nil {
			fmt.Fprintf(&b, " time=%s", p.TM.Time.Time().UTC().Format("2006-01-02T15:04:05.000Z"))
		}
	}

	if len(p.Payload) > 0 {
		fmt.Fprintf(&b, " data=%s", hex.EncodeToString(p.Payload))
	}
	b.WriteString("\n")
	return b.String()
}

// FormatAckFlags renders the acknowledgment bitset as letters, e.g. "A--C"
func FormatAckFlags(flags AckFlags) string {
	letters := []byte("----")
	for i, flag := range []AckFlags{AckAcceptance, AckStart, AckProgress, AckCompletion} {
		if flags.Has(flag) {
			letters[i] = "ASPC"[i]
		}
	}
	return string(letters)
}

func kindOf(p *Packet) string {
	if p.IsTC() {
		return "TC"
	}
	return "TM"
}
