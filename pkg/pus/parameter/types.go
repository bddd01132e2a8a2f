// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package parameter

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/Thermoquad/pusgate/pkg/pus"
)

// Bool is a one byte boolean parameter
type Bool struct {
	subscribers
	value bool
}

// NewBool creates a boolean parameter
func NewBool(v bool) *Bool {
	return &Bool{value: v}
}

func (p *Bool) Get() bool     { return p.value }
func (p *Bool) Value() any    { return p.value }
func (p *Bool) PTC() PTC      { return PTCBoolean }
func (p *Bool) PFC() uint8    { return 8 }
func (p *Bool) Size() int     { return 1 }
func (p *Bool) Bytes() []byte { return p.AppendBytes(nil) }

func (p *Bool) Set(v bool) {
	if v == p.value {
		return
	}
	old := p.value
	p.value = v
	p.notify(old, v)
}

func (p *Bool) SetValue(v any) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("%w: %T is not a bool", ErrType, v)
	}
	p.Set(b)
	return nil
}

func (p *Bool) AppendBytes(dst []byte) []byte {
	if p.value {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func (p *Bool) Decode(b []byte) (any, int, error) {
	if len(b) < 1 {
		return nil, 0, fmt.Errorf("%w: need 1 byte", ErrIncomplete)
	}
	return b[0] != 0, 1, nil
}

// Enum is an enumerated value of 1 to 64 bits, stored in whole bytes
type Enum struct {
	subscribers
	bits  int
	value uint64
}

// NewEnum creates an enumerated parameter of the given bit width
func NewEnum(bits int, v uint64) (*Enum, error) {
	if bits < 1 || bits > 64 {
		return nil, fmt.Errorf("%w: enum width %d bits", ErrRange, bits)
	}
	p := &Enum{bits: bits}
	if v > p.max() {
		return nil, fmt.Errorf("%w: %d does not fit %d bits", ErrRange, v, bits)
	}
	p.value = v
	return p, nil
}

func (p *Enum) max() uint64 {
	return math.MaxUint64 >> (64 - p.bits)
}

func (p *Enum) Get() uint64   { return p.value }
func (p *Enum) Value() any    { return p.value }
func (p *Enum) PTC() PTC      { return PTCEnumerated }
func (p *Enum) PFC() uint8    { return uint8(p.bits) }
func (p *Enum) Size() int     { return (p.bits + 7) / 8 }
func (p *Enum) Bytes() []byte { return p.AppendBytes(nil) }

// Set stores v when it fits the bit width
func (p *Enum) Set(v uint64) error {
	if v > p.max() {
		return fmt.Errorf("%w: %d does not fit %d bits", ErrRange, v, p.bits)
	}
	if v == p.value {
		return nil
	}
	old := p.value
	p.value = v
	p.notify(old, v)
	return nil
}

func (p *Enum) SetValue(v any) error {
	negative, magnitude, ok := splitInteger(v)
	if !ok {
		return fmt.Errorf("%w: %T is not an integer", ErrType, v)
	}
	if negative {
		return fmt.Errorf("%w: %v is negative", ErrRange, v)
	}
	return p.Set(magnitude)
}

func (p *Enum) AppendBytes(dst []byte) []byte {
	for i := p.Size() - 1; i >= 0; i-- {
		dst = append(dst, byte(p.value>>(8*i)))
	}
	return dst
}

func (p *Enum) Decode(b []byte) (any, int, error) {
	size := p.Size()
	if len(b) < size {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrIncomplete, size, len(b))
	}
	var v uint64
	for _, octet := range b[:size] {
		v = v<<8 | uint64(octet)
	}
	if v > p.max() {
		return nil, 0, fmt.Errorf("%w: %d does not fit %d bits", ErrRange, v, p.bits)
	}
	return v, size, nil
}

// OctetString is a fixed length byte string. Shorter values are zero padded.
type OctetString struct {
	subscribers
	value []byte
}

// NewOctetString creates an octet string parameter of length n
func NewOctetString(n int, v []byte) (*OctetString, error) {
	if n < 1 || n > math.MaxUint8 {
		return nil, fmt.Errorf("%w: octet string length %d", ErrRange, n)
	}
	p := &OctetString{value: make([]byte, n)}
	if len(v) > n {
		return nil, fmt.Errorf("%w: %d bytes exceed length %d", ErrRange, len(v), n)
	}
	copy(p.value, v)
	return p, nil
}

// Get returns a copy of the current value
func (p *OctetString) Get() []byte { return bytes.Clone(p.value) }
func (p *OctetString) Value() any  { return p.Get() }
func (p *OctetString) PTC() PTC    { return PTCOctetString }
func (p *OctetString) PFC() uint8  { return uint8(len(p.value)) }
func (p *OctetString) Size() int   { return len(p.value) }
func (p *OctetString) Bytes() []byte {
	return p.Get()
}

// Set stores v padded to the parameter length
func (p *OctetString) Set(v []byte) error {
	if len(v) > len(p.value) {
		return fmt.Errorf("%w: %d bytes exceed length %d", ErrRange, len(v), len(p.value))
	}
	padded := make([]byte, len(p.value))
	copy(padded, v)
	if bytes.Equal(padded, p.value) {
		return nil
	}
	old := p.value
	p.value = padded
	p.notify(old, bytes.Clone(padded))
	return nil
}

func (p *OctetString) SetValue(v any) error {
	switch s := v.(type) {
	case []byte:
		return p.Set(s)
	case string:
		return p.Set([]byte(s))
	default:
		return fmt.Errorf("%w: %T is not an octet string", ErrType, v)
	}
}

func (p *OctetString) AppendBytes(dst []byte) []byte {
	return append(dst, p.value...)
}

func (p *OctetString) Decode(b []byte) (any, int, error) {
	size := len(p.value)
	if len(b) < size {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrIncomplete, size, len(b))
	}
	return bytes.Clone(b[:size]), size, nil
}

// Time holds a CUC time value of a fixed format. It serves both absolute
// and relative time parameters.
type Time struct {
	subscribers
	ptc   PTC
	value *pus.CucTime
}

// NewAbsoluteTime creates an absolute time parameter. A nil initial value
// is the format's epoch.
func NewAbsoluteTime(format pus.CucFormat, v *pus.CucTime) (*Time, error) {
	return newTime(PTCAbsoluteTime, format, v)
}

// NewRelativeTime creates a relative time parameter
func NewRelativeTime(format pus.CucFormat, v *pus.CucTime) (*Time, error) {
	return newTime(PTCRelativeTime, format, v)
}

func newTime(ptc PTC, format pus.CucFormat, v *pus.CucTime) (*Time, error) {
	if v == nil {
		zero, err := pus.NewCucTime(0, 0, format)
		if err != nil {
			return nil, err
		}
		v = zero
	}
	if v.Format() != format {
		return nil, fmt.Errorf("%w: time format %s, want %s", ErrType, v.Format(), format)
	}
	return &Time{ptc: ptc, value: v}, nil
}

func (p *Time) Get() *pus.CucTime     { return p.value }
func (p *Time) Value() any            { return p.value }
func (p *Time) Format() pus.CucFormat { return p.value.Format() }
func (p *Time) PTC() PTC              { return p.ptc }
func (p *Time) Size() int             { return p.value.Size() }
func (p *Time) Bytes() []byte         { return p.value.Bytes() }

// PFC is 0 when the preamble is carried, otherwise the basic and fractional
// octet counts in the range 3 to 18
func (p *Time) PFC() uint8 {
	f := p.value.Format()
	if f.Preamble || f.BasicLength > 4 || f.FractionLength > 3 {
		return 0
	}
	return uint8(4*(f.BasicLength-1) + f.FractionLength + 3)
}

// SetValue accepts a *pus.CucTime of the same format or a time.Time
func (p *Time) SetValue(v any) error {
	var next *pus.CucTime
	switch t := v.(type) {
	case *pus.CucTime:
		if t == nil || t.Format() != p.value.Format() {
			return fmt.Errorf("%w: time format mismatch", ErrType)
		}
		next = t
	case time.Time:
		converted, err := pus.CucTimeFromTime(t, p.value.Format())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRange, err)
		}
		next = converted
	default:
		return fmt.Errorf("%w: %T is not a time", ErrType, v)
	}
	if next.Equal(p.value) {
		return nil
	}
	old := p.value
	p.value = next
	p.notify(old, next)
	return nil
}

func (p *Time) AppendBytes(dst []byte) []byte {
	return p.value.AppendBytes(dst)
}

func (p *Time) Decode(b []byte) (any, int, error) {
	t, n, err := pus.ParseCucTime(b, p.value.Format())
	if err != nil {
		return nil, 0, err
	}
	return t, n, nil
}

// Packet holds a complete space packet, typically a telecommand
type Packet struct {
	subscribers
	opts  pus.DecodeOptions
	value *pus.Packet
}

// NewPacket creates a packet parameter. opts describe the optional fields
// used when decoding packets from a byte stream.
func NewPacket(v *pus.Packet, opts pus.DecodeOptions) *Packet {
	return &Packet{opts: opts, value: v}
}

func (p *Packet) Get() *pus.Packet { return p.value }
func (p *Packet) Value() any       { return p.value }
func (p *Packet) PTC() PTC         { return PTCPacket }
func (p *Packet) PFC() uint8       { return 0 }

func (p *Packet) Size() int {
	if p.value == nil {
		return 0
	}
	return p.value.Size()
}

func (p *Packet) Bytes() []byte {
	return p.AppendBytes(nil)
}

func (p *Packet) AppendBytes(dst []byte) []byte {
	if p.value == nil {
		return dst
	}
	encoded, err := p.value.Serialize()
	if err != nil {
		return dst
	}
	return append(dst, encoded...)
}

func (p *Packet) SetValue(v any) error {
	packet, ok := v.(*pus.Packet)
	if !ok || packet == nil {
		return fmt.Errorf("%w: %T is not a packet", ErrType, v)
	}
	if err := packet.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrRange, err)
	}
	old := p.value
	p.value = packet
	if !Equal(old, packet) {
		p.notify(old, packet)
	}
	return nil
}

func (p *Packet) Decode(b []byte) (any, int, error) {
	packet, n, err := pus.Deserialize(b, p.opts)
	if err != nil {
		return nil, 0, err
	}
	return packet, n, nil
}
