// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package services

import "fmt"

// ErrorCode is the failure code carried in failed verification reports
type ErrorCode uint64

// Failure codes
const (
	IllegalAPID          ErrorCode = 0
	Incomplete           ErrorCode = 1
	IncorrectChecksum    ErrorCode = 2
	IllegalPacketType    ErrorCode = 3
	IllegalPacketSubtype ErrorCode = 4
	IllegalAppData       ErrorCode = 5

	Pus3SidAlreadyPresent           ErrorCode = 30
	Pus3SidNotPresent               ErrorCode = 31
	Pus3CannotModifyEnabledReport   ErrorCode = 32
	Pus3ParamDuplication            ErrorCode = 33
	Pus3SuperCommutationUnsupported ErrorCode = 34

	Pus8InvalidFID             ErrorCode = 80
	Pus8FunctionNotImplemented ErrorCode = 81
	Pus8InvalidArgs            ErrorCode = 82
)

var errorCodeNames = map[ErrorCode]string{
	IllegalAPID:                     "ILLEGAL_APID",
	Incomplete:                      "INCOMPLETE",
	IncorrectChecksum:               "INCORRECT_CHECKSUM",
	IllegalPacketType:               "ILLEGAL_PACKET_TYPE",
	IllegalPacketSubtype:            "ILLEGAL_PACKET_SUBTYPE",
	IllegalAppData:                  "ILLEGAL_APP_DATA",
	Pus3SidAlreadyPresent:           "PUS3_SID_ALREADY_PRESENT",
	Pus3SidNotPresent:               "PUS3_SID_NOT_PRESENT",
	Pus3CannotModifyEnabledReport:   "PUS3_CANNOT_MODIFY_ENABLED_REPORT",
	Pus3ParamDuplication:            "PUS3_PARAM_DUPLICATION",
	Pus3SuperCommutationUnsupported: "PUS3_SUPER_COMMUTATION_UNSUPPORTED",
	Pus8InvalidFID:                  "PUS8_INVALID_FID",
	Pus8FunctionNotImplemented:      "PUS8_FUNCTION_NOT_IMPLEMENTED",
	Pus8InvalidArgs:                 "PUS8_INVALID_ARGS",
}

var errorCodeDescriptions = map[ErrorCode]string{
	IllegalAPID:                     "Illegal APID",
	Incomplete:                      "Incomplete or invalid length packet",
	IncorrectChecksum:               "Incorrect checksum",
	IllegalPacketType:               "Illegal packet type",
	IllegalPacketSubtype:            "Illegal packet subtype",
	IllegalAppData:                  "Illegal or inconsistent application data",
	Pus3SidAlreadyPresent:           "Structure ID already exists",
	Pus3SidNotPresent:               "Structure ID does not exist",
	Pus3CannotModifyEnabledReport:   "Report is enabled and cannot be modified",
	Pus3ParamDuplication:            "Same parameter is identified more than once in request",
	Pus3SuperCommutationUnsupported: "Super commutated parameters are not supported",
	Pus8InvalidFID:                  "Invalid function ID",
	Pus8FunctionNotImplemented:      "Function not implemented",
	Pus8InvalidArgs:                 "Invalid function arguments",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_CODE_%d", uint64(c))
}

// Description returns a human readable explanation of the code
func (c ErrorCode) Description() string {
	if desc, ok := errorCodeDescriptions[c]; ok {
		return desc
	}
	return "Unknown error code"
}

// Result is the outcome of a subservice handler
type Result struct {
	ok      bool
	hasCode bool
	code    ErrorCode
	data    []byte
}

// Success reports that the request was executed
func Success() Result {
	return Result{ok: true}
}

// Fail reports a failure without a specific code. Verification reports
// carry IllegalAppData for it.
func Fail() Result {
	return Result{}
}

// Failure reports a failure with a specific code
func Failure(code ErrorCode) Result {
	return Result{hasCode: true, code: code}
}

// FailureWithData reports a failure with a code and failure detail bytes
func FailureWithData(code ErrorCode, data []byte) Result {
	return Result{hasCode: true, code: code, data: data}
}

// OK reports whether the result is a success
func (r Result) OK() bool {
	return r.ok
}

// Code returns the failure code, IllegalAppData when none was given
func (r Result) Code() ErrorCode {
	if !r.hasCode {
		return IllegalAppData
	}
	return r.code
}

// Data returns the failure detail bytes
func (r Result) Data() []byte {
	return r.data
}

func (r Result) String() string {
	if r.ok {
		return "success"
	}
	return "failure: " + r.Code().String()
}
