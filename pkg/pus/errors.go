// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import "errors"

var (
	// ErrIncompletePacket is returned when the declared packet length exceeds the buffer
	ErrIncompletePacket = errors.New("incomplete packet")

	// ErrInvalidPacket is returned when a field is out of range or the lengths disagree
	ErrInvalidPacket = errors.New("invalid packet")

	// ErrCrcMismatch is returned when packet error control validation fails
	ErrCrcMismatch = errors.New("CRC mismatch")

	// ErrTooSmallBuffer is returned when a caller supplied buffer cannot hold the packet
	ErrTooSmallBuffer = errors.New("buffer too small")

	// ErrInvalidTimeFormat is returned for malformed CUC time configurations
	ErrInvalidTimeFormat = errors.New("invalid time format")

	// ErrTimeOutOfRange is returned when a time value does not fit its format
	ErrTimeOutOfRange = errors.New("time value out of range")
)
