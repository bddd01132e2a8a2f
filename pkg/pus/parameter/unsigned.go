// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package parameter

import (
	"fmt"
	"math"
)

// UnsignedType is the byte width of an unsigned field such as an identifier
// or a repetition count
type UnsignedType int

const (
	U8  UnsignedType = 1
	U16 UnsignedType = 2
	U32 UnsignedType = 4
	U64 UnsignedType = 8
)

// Validate reports whether the width is one of 1, 2, 4 or 8 bytes
func (u UnsignedType) Validate() error {
	switch u {
	case U8, U16, U32, U64:
		return nil
	}
	return fmt.Errorf("%w: unsigned width %d bytes", ErrRange, int(u))
}

// Size returns the width in bytes
func (u UnsignedType) Size() int {
	return int(u)
}

// Max returns the largest value of this width
func (u UnsignedType) Max() uint64 {
	return math.MaxUint64 >> (64 - 8*uint(u))
}

// Append appends v big-endian, failing if it does not fit
func (u UnsignedType) Append(dst []byte, v uint64) ([]byte, error) {
	if v > u.Max() {
		return dst, fmt.Errorf("%w: %d does not fit uint%d", ErrRange, v, 8*int(u))
	}
	return appendUint(dst, v, int(u)), nil
}

// Read decodes a big-endian value from the start of b
func (u UnsignedType) Read(b []byte) (uint64, error) {
	return readUint(b, int(u))
}

// New creates an unsigned integer parameter of this width
func (u UnsignedType) New(v uint64) (Parameter, error) {
	if v > u.Max() {
		return nil, fmt.Errorf("%w: %d does not fit uint%d", ErrRange, v, 8*int(u))
	}
	switch u {
	case U8:
		return NewUInt8(uint8(v)), nil
	case U16:
		return NewUInt16(uint16(v)), nil
	case U32:
		return NewUInt32(uint32(v)), nil
	case U64:
		return NewUInt64(v), nil
	}
	return nil, u.Validate()
}

func (u UnsignedType) String() string {
	return fmt.Sprintf("uint%d", 8*int(u))
}

// Reader consumes fields from an application data buffer
type Reader struct {
	buf []byte
	off int
}

// NewReader creates a reader over b
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Uint reads an unsigned value of width u
func (r *Reader) Uint(u UnsignedType) (uint64, error) {
	v, err := u.Read(r.buf[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += u.Size()
	return v, nil
}

// Value decodes a value shaped like p without storing it
func (r *Reader) Value(p Parameter) (any, error) {
	v, n, err := p.Decode(r.buf[r.off:])
	if err != nil {
		return nil, err
	}
	r.off += n
	return v, nil
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Offset returns the number of bytes consumed
func (r *Reader) Offset() int {
	return r.off
}
