// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package parameter provides typed, bounds-checked value cells with a
// big-endian binary layout and synchronous change notification.
//
// Subscribers run in subscription order on the goroutine that changed the
// value. A subscriber must not change the parameter it observes.
package parameter

import "errors"

var (
	// ErrType is returned when a value has the wrong Go type for a parameter
	ErrType = errors.New("parameter type error")

	// ErrRange is returned when a value does not fit the parameter's width
	ErrRange = errors.New("parameter value out of range")

	// ErrIncomplete is returned when too few bytes remain to decode a value
	ErrIncomplete = errors.New("not enough data for parameter")
)

// PTC is the ECSS packet field type code
type PTC uint8

const (
	PTCBoolean      PTC = 1
	PTCEnumerated   PTC = 2
	PTCUnsignedInt  PTC = 3
	PTCSignedInt    PTC = 4
	PTCReal         PTC = 5
	PTCBitString    PTC = 6
	PTCOctetString  PTC = 7
	PTCCharString   PTC = 8
	PTCAbsoluteTime PTC = 9
	PTCRelativeTime PTC = 10
	PTCDeduced      PTC = 11
	PTCPacket       PTC = 12
)

// Handler is called with the previous and the new value after a change
type Handler func(oldValue, newValue any)

// Parameter is a typed value cell
type Parameter interface {
	// PTC and PFC describe the value's ECSS packet field type and format
	PTC() PTC
	PFC() uint8

	// Size is the encoded length in bytes
	Size() int

	Value() any
	// SetValue validates v, stores it and notifies subscribers if it changed
	SetValue(v any) error

	Bytes() []byte
	AppendBytes(dst []byte) []byte
	// Decode parses a value of this parameter's type without storing it and
	// returns it with the number of bytes consumed
	Decode(b []byte) (any, int, error)

	Subscribe(h Handler)
}

// subscribers is the observer registry embedded in every parameter
type subscribers struct {
	handlers []Handler
}

// Subscribe registers h to be called on every value change
func (s *subscribers) Subscribe(h Handler) {
	s.handlers = append(s.handlers, h)
}

func (s *subscribers) notify(oldValue, newValue any) {
	for _, h := range s.handlers {
		h(oldValue, newValue)
	}
}

// Table maps application parameter ids to parameters
type Table map[uint64]Parameter

// Get returns the parameter with the given id
func (t Table) Get(id uint64) (Parameter, bool) {
	p, ok := t[id]
	return p, ok
}
