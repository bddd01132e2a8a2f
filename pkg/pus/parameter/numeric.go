// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package parameter

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Integer is the set of fixed-width integer types a parameter can hold
type Integer interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

// Int is an integer parameter of width 1, 2, 4 or 8 bytes
type Int[T Integer] struct {
	subscribers
	value T
}

// Integer parameter types
type (
	UInt8  = Int[uint8]
	UInt16 = Int[uint16]
	UInt32 = Int[uint32]
	UInt64 = Int[uint64]
	Int8   = Int[int8]
	Int16  = Int[int16]
	Int32  = Int[int32]
	Int64  = Int[int64]
)

// NewInt creates an integer parameter with an initial value
func NewInt[T Integer](v T) *Int[T] {
	return &Int[T]{value: v}
}

func NewUInt8(v uint8) *UInt8    { return NewInt(v) }
func NewUInt16(v uint16) *UInt16 { return NewInt(v) }
func NewUInt32(v uint32) *UInt32 { return NewInt(v) }
func NewUInt64(v uint64) *UInt64 { return NewInt(v) }
func NewInt8(v int8) *Int8       { return NewInt(v) }
func NewInt16(v int16) *Int16    { return NewInt(v) }
func NewInt32(v int32) *Int32    { return NewInt(v) }
func NewInt64(v int64) *Int64    { return NewInt(v) }

func isSigned[T Integer]() bool {
	var zero T
	return zero-1 < zero
}

func sizeOf[T Integer]() int {
	size := 0
	for v := T(1); v != 0; v <<= 8 {
		size++
	}
	return size
}

// Get returns the current value
func (p *Int[T]) Get() T {
	return p.value
}

// Set stores v and notifies subscribers when it differs from the current value
func (p *Int[T]) Set(v T) {
	if v == p.value {
		return
	}
	old := p.value
	p.value = v
	p.notify(old, v)
}

// Value returns the current value
func (p *Int[T]) Value() any {
	return p.value
}

// SetValue accepts any Go integer that fits the parameter's range
func (p *Int[T]) SetValue(v any) error {
	n, err := convertInteger[T](v)
	if err != nil {
		return err
	}
	p.Set(n)
	return nil
}

// PTC returns the signed or unsigned integer type code
func (p *Int[T]) PTC() PTC {
	if isSigned[T]() {
		return PTCSignedInt
	}
	return PTCUnsignedInt
}

// PFC returns the format code for the integer width
func (p *Int[T]) PFC() uint8 {
	switch sizeOf[T]() {
	case 1:
		return 4
	case 2:
		return 12
	case 4:
		return 14
	default:
		return 16
	}
}

// Size returns the width in bytes
func (p *Int[T]) Size() int {
	return sizeOf[T]()
}

// Bytes encodes the value big-endian
func (p *Int[T]) Bytes() []byte {
	return p.AppendBytes(make([]byte, 0, p.Size()))
}

// AppendBytes appends the big-endian value to dst
func (p *Int[T]) AppendBytes(dst []byte) []byte {
	return appendUint(dst, uint64(p.value), sizeOf[T]())
}

// Decode parses a big-endian value of this width
func (p *Int[T]) Decode(b []byte) (any, int, error) {
	size := sizeOf[T]()
	u, err := readUint(b, size)
	if err != nil {
		return nil, 0, err
	}
	return T(u), size, nil
}

func appendUint(dst []byte, v uint64, size int) []byte {
	switch size {
	case 1:
		return append(dst, byte(v))
	case 2:
		return binary.BigEndian.AppendUint16(dst, uint16(v))
	case 4:
		return binary.BigEndian.AppendUint32(dst, uint32(v))
	default:
		return binary.BigEndian.AppendUint64(dst, v)
	}
}

func readUint(b []byte, size int) (uint64, error) {
	if len(b) < size {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrIncomplete, size, len(b))
	}
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	default:
		return binary.BigEndian.Uint64(b), nil
	}
}

// splitInteger returns the sign and magnitude of any Go integer
func splitInteger(v any) (negative bool, magnitude uint64, ok bool) {
	var s int64
	switch n := v.(type) {
	case int:
		s = int64(n)
	case int8:
		s = int64(n)
	case int16:
		s = int64(n)
	case int32:
		s = int64(n)
	case int64:
		s = n
	case uint:
		return false, uint64(n), true
	case uint8:
		return false, uint64(n), true
	case uint16:
		return false, uint64(n), true
	case uint32:
		return false, uint64(n), true
	case uint64:
		return false, n, true
	default:
		return false, 0, false
	}
	if s < 0 {
		return true, uint64(-(s + 1)) + 1, true
	}
	return false, uint64(s), true
}

func convertInteger[T Integer](v any) (T, error) {
	if n, ok := v.(T); ok {
		return n, nil
	}
	negative, magnitude, ok := splitInteger(v)
	if !ok {
		return 0, fmt.Errorf("%w: %T is not an integer", ErrType, v)
	}

	bits := 8 * sizeOf[T]()
	if !isSigned[T]() {
		limit := uint64(math.MaxUint64) >> (64 - bits)
		if (negative && magnitude != 0) || magnitude > limit {
			return 0, fmt.Errorf("%w: %v does not fit uint%d", ErrRange, v, bits)
		}
		return T(magnitude), nil
	}

	limit := uint64(1) << (bits - 1) // magnitude of the minimum value
	if negative {
		if magnitude > limit {
			return 0, fmt.Errorf("%w: %v does not fit int%d", ErrRange, v, bits)
		}
		return T(-int64(magnitude - 1) - 1), nil
	}
	if magnitude > limit-1 {
		return 0, fmt.Errorf("%w: %v does not fit int%d", ErrRange, v, bits)
	}
	return T(magnitude), nil
}

// Float is the set of floating point types a parameter can hold
type Float interface {
	~float32 | ~float64
}

// Real is an IEEE 754 floating point parameter
type Real[T Float] struct {
	subscribers
	value T
}

// Real parameter types
type (
	Real32 = Real[float32]
	Real64 = Real[float64]
)

// NewReal creates a floating point parameter with an initial value
func NewReal[T Float](v T) *Real[T] {
	return &Real[T]{value: v}
}

func NewReal32(v float32) *Real32 { return NewReal(v) }
func NewReal64(v float64) *Real64 { return NewReal(v) }

func isDouble[T Float]() bool {
	var v T = math.MaxFloat32
	return v*2 != T(math.Inf(1))
}

// Get returns the current value
func (p *Real[T]) Get() T {
	return p.value
}

// Set stores v and notifies subscribers when it differs from the current value
func (p *Real[T]) Set(v T) {
	if v == p.value {
		return
	}
	old := p.value
	p.value = v
	p.notify(old, v)
}

// Value returns the current value
func (p *Real[T]) Value() any {
	return p.value
}

// SetValue accepts a float32 or float64
func (p *Real[T]) SetValue(v any) error {
	switch f := v.(type) {
	case float32:
		p.Set(T(f))
	case float64:
		p.Set(T(f))
	default:
		return fmt.Errorf("%w: %T is not a real number", ErrType, v)
	}
	return nil
}

// PTC returns the real type code
func (p *Real[T]) PTC() PTC {
	return PTCReal
}

// PFC returns 1 for single and 2 for double precision
func (p *Real[T]) PFC() uint8 {
	if isDouble[T]() {
		return 2
	}
	return 1
}

// Size returns 4 or 8
func (p *Real[T]) Size() int {
	if isDouble[T]() {
		return 8
	}
	return 4
}

// Bytes encodes the IEEE 754 value big-endian
func (p *Real[T]) Bytes() []byte {
	return p.AppendBytes(make([]byte, 0, p.Size()))
}

// AppendBytes appends the IEEE 754 value to dst
func (p *Real[T]) AppendBytes(dst []byte) []byte {
	if isDouble[T]() {
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(float64(p.value)))
	}
	return binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(p.value)))
}

// Decode parses an IEEE 754 value
func (p *Real[T]) Decode(b []byte) (any, int, error) {
	u, err := readUint(b, p.Size())
	if err != nil {
		return nil, 0, err
	}
	if isDouble[T]() {
		return T(math.Float64frombits(u)), 8, nil
	}
	return T(math.Float32frombits(uint32(u))), 4, nil
}
