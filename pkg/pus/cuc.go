// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"
)

// CUC field limits
const (
	MinBasicTimeLength    = 1
	MaxBasicTimeLength    = 7
	MaxFractionTimeLength = 10
)

// Time code identification values of the CUC P-field
const (
	timeCodeTAI    = 0b001
	timeCodeAgency = 0b010
)

// TAIEpoch is the CCSDS level 1 epoch, 1958-01-01 TAI
var TAIEpoch = time.Date(1958, time.January, 1, 0, 0, 0, 0, time.UTC)

// CucFormat describes the layout of a CCSDS Unsegmented time Code
type CucFormat struct {
	BasicLength    int  // coarse time octets (1..7)
	FractionLength int  // fine time octets (0..10)
	Preamble       bool // P-field present on the wire

	// Epoch is the agency-defined epoch. The zero value selects TAIEpoch.
	Epoch time.Time
}

// DefaultCucFormat is 4 octets of seconds, 2 octets of fraction and a P-field
var DefaultCucFormat = CucFormat{BasicLength: 4, FractionLength: 2, Preamble: true}

// Validate checks the octet counts
func (f CucFormat) Validate() error {
	if f.BasicLength < MinBasicTimeLength || f.BasicLength > MaxBasicTimeLength {
		return fmt.Errorf("%w: basic time unit length %d (valid %d-%d)",
			ErrInvalidTimeFormat, f.BasicLength, MinBasicTimeLength, MaxBasicTimeLength)
	}
	if f.FractionLength < 0 || f.FractionLength > MaxFractionTimeLength {
		return fmt.Errorf("%w: fractional time unit length %d (valid 0-%d)",
			ErrInvalidTimeFormat, f.FractionLength, MaxFractionTimeLength)
	}
	return nil
}

// EpochTime returns the epoch the format counts from
func (f CucFormat) EpochTime() time.Time {
	if f.Epoch.IsZero() {
		return TAIEpoch
	}
	return f.Epoch
}

func (f CucFormat) isTAI() bool {
	return f.EpochTime().Equal(TAIEpoch)
}

func (f CucFormat) extended() bool {
	return f.BasicLength > 4 || f.FractionLength > 3
}

// PreambleSize returns the P-field length in octets (0, 1 or 2)
func (f CucFormat) PreambleSize() int {
	if !f.Preamble {
		return 0
	}
	if f.extended() {
		return 2
	}
	return 1
}

// Size returns the full encoded length in octets
func (f CucFormat) Size() int {
	return f.PreambleSize() + f.BasicLength + f.FractionLength
}

// preamble encodes the P-field octets
func (f CucFormat) preamble() []byte {
	timeCode := byte(timeCodeAgency)
	if f.isTAI() {
		timeCode = timeCodeTAI
	}
	octet1 := timeCode<<4 | byte(min(3, f.BasicLength-1))<<2 | byte(min(3, f.FractionLength))
	if !f.extended() {
		return []byte{octet1}
	}
	octet1 |= 1 << 7
	octet2 := byte(max(0, f.BasicLength-4))<<5 | byte(max(0, f.FractionLength-3))<<2
	return []byte{octet1, octet2}
}

// String returns a compact description such as "CUC 4.2 (TAI, P-field)"
func (f CucFormat) String() string {
	epoch := "TAI"
	if !f.isTAI() {
		epoch = f.EpochTime().Format("2006-01-02")
	}
	if f.Preamble {
		return fmt.Sprintf("CUC %d.%d (%s, P-field)", f.BasicLength, f.FractionLength, epoch)
	}
	return fmt.Sprintf("CUC %d.%d (%s)", f.BasicLength, f.FractionLength, epoch)
}

// CucTime is a CUC time value: whole seconds and a binary fraction since the epoch
type CucTime struct {
	format   CucFormat
	seconds  uint64
	fraction []byte // FractionLength octets, big-endian
}

// NewCucTime creates a time value, checking both fields against the format
func NewCucTime(seconds, fraction uint64, format CucFormat) (*CucTime, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.BasicLength < 8 && seconds >= 1<<(8*format.BasicLength) {
		return nil, fmt.Errorf("%w: seconds %d do not fit %d octets", ErrTimeOutOfRange, seconds, format.BasicLength)
	}
	if format.FractionLength == 0 && fraction != 0 {
		return nil, fmt.Errorf("%w: fraction %d without fractional octets", ErrTimeOutOfRange, fraction)
	}
	if format.FractionLength < 8 && fraction >= 1<<(8*format.FractionLength) {
		return nil, fmt.Errorf("%w: fraction %d does not fit %d octets", ErrTimeOutOfRange, fraction, format.FractionLength)
	}

	t := &CucTime{format: format, seconds: seconds, fraction: make([]byte, format.FractionLength)}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], fraction)
	if format.FractionLength >= 8 {
		copy(t.fraction[format.FractionLength-8:], raw[:])
	} else {
		copy(t.fraction, raw[8-format.FractionLength:])
	}
	return t, nil
}

// CucTimeFromTime converts a wall clock time to a CUC time value
func CucTimeFromTime(ts time.Time, format CucFormat) (*CucTime, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	since := ts.Sub(format.EpochTime())
	if since < 0 {
		return nil, fmt.Errorf("%w: %s is before the epoch", ErrTimeOutOfRange, ts.Format(time.RFC3339))
	}
	seconds := uint64(since / time.Second)
	nanos := int64(since % time.Second)

	// fraction = round(nanos / 1e9 * (2^(8n) - 1))
	scale := fractionScale(format.FractionLength)
	num := new(big.Int).Mul(big.NewInt(nanos), scale)
	num.Add(num, big.NewInt(int64(time.Second)/2))
	num.Quo(num, big.NewInt(int64(time.Second)))

	t := &CucTime{format: format, seconds: seconds, fraction: make([]byte, format.FractionLength)}
	num.FillBytes(t.fraction)
	if format.BasicLength < 8 && seconds >= 1<<(8*format.BasicLength) {
		return nil, fmt.Errorf("%w: seconds %d do not fit %d octets", ErrTimeOutOfRange, seconds, format.BasicLength)
	}
	return t, nil
}

// fractionScale returns 2^(8n) - 1
func fractionScale(octets int) *big.Int {
	scale := new(big.Int).Lsh(big.NewInt(1), uint(8*octets))
	return scale.Sub(scale, big.NewInt(1))
}

// Format returns the time value's layout
func (t *CucTime) Format() CucFormat {
	return t.format
}

// Seconds returns the coarse time
func (t *CucTime) Seconds() uint64 {
	return t.seconds
}

// Fraction returns the fine time field. For fields longer than 8 octets the
// trailing 8 octets are returned.
func (t *CucTime) Fraction() uint64 {
	var raw [8]byte
	if len(t.fraction) >= 8 {
		copy(raw[:], t.fraction[len(t.fraction)-8:])
	} else {
		copy(raw[8-len(t.fraction):], t.fraction)
	}
	return binary.BigEndian.Uint64(raw[:])
}

// Time converts the value back to wall clock time
func (t *CucTime) Time() time.Time {
	ts := t.format.EpochTime().Add(time.Duration(t.seconds) * time.Second)
	if len(t.fraction) == 0 {
		return ts
	}
	num := new(big.Int).SetBytes(t.fraction)
	num.Mul(num, big.NewInt(int64(time.Second)))
	scale := fractionScale(len(t.fraction))
	num.Add(num, new(big.Int).Rsh(scale, 1))
	num.Quo(num, scale)
	return ts.Add(time.Duration(num.Int64()))
}

// Size returns the encoded length in octets
func (t *CucTime) Size() int {
	return t.format.Size()
}

// Bytes encodes the P-field (if any), coarse time and fine time
func (t *CucTime) Bytes() []byte {
	return t.AppendBytes(make([]byte, 0, t.Size()))
}

// AppendBytes appends the encoded time value to dst
func (t *CucTime) AppendBytes(dst []byte) []byte {
	if t.format.Preamble {
		dst = append(dst, t.format.preamble()...)
	}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], t.seconds)
	dst = append(dst, raw[8-t.format.BasicLength:]...)
	return append(dst, t.fraction...)
}

// Equal reports whether both values have the same format and fields
func (t *CucTime) Equal(other *CucTime) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.seconds == other.seconds &&
		bytes.Equal(t.fraction, other.fraction) &&
		t.format.BasicLength == other.format.BasicLength &&
		t.format.FractionLength == other.format.FractionLength &&
		t.format.Preamble == other.format.Preamble &&
		t.format.EpochTime().Equal(other.format.EpochTime())
}

// String formats the value as seconds.fraction since the epoch
func (t *CucTime) String() string {
	return fmt.Sprintf("%d.%x", t.seconds, t.fraction)
}

// ParseCucTime decodes a time value of a known format from the start of buf.
// It returns the value and the number of bytes consumed.
func ParseCucTime(buf []byte, format CucFormat) (*CucTime, int, error) {
	if err := format.Validate(); err != nil {
		return nil, 0, err
	}
	size := format.Size()
	if len(buf) < size {
		return nil, 0, fmt.Errorf("%w: time field needs %d bytes, have %d", ErrIncompletePacket, size, len(buf))
	}
	offset := 0
	if format.Preamble {
		expected := format.preamble()
		if !bytes.Equal(buf[:len(expected)], expected) {
			return nil, 0, fmt.Errorf("%w: P-field %x does not match %s", ErrInvalidTimeFormat, buf[:len(expected)], format)
		}
		offset = len(expected)
	}
	return parseCucFields(buf, offset, format), size, nil
}

// DecodeCucTime decodes a self-describing time value whose layout is given by
// its P-field. agencyEpoch is used when the P-field selects an agency-defined
// epoch; the zero value falls back to TAI.
func DecodeCucTime(buf []byte, agencyEpoch time.Time) (*CucTime, int, error) {
	if len(buf) < 1 {
		return nil, 0, fmt.Errorf("%w: empty time field", ErrIncompletePacket)
	}
	octet1 := buf[0]
	format := CucFormat{
		BasicLength:    int(octet1>>2&0b11) + 1,
		FractionLength: int(octet1 & 0b11),
		Preamble:       true,
	}
	switch octet1 >> 4 & 0b111 {
	case timeCodeTAI:
	case timeCodeAgency:
		format.Epoch = agencyEpoch
	default:
		return nil, 0, fmt.Errorf("%w: time code identification %03b is not CUC", ErrInvalidTimeFormat, octet1>>4&0b111)
	}
	offset := 1
	if octet1&0x80 != 0 {
		if len(buf) < 2 {
			return nil, 0, fmt.Errorf("%w: missing second P-field octet", ErrIncompletePacket)
		}
		octet2 := buf[1]
		format.BasicLength += int(octet2 >> 5 & 0b11)
		format.FractionLength += int(octet2 >> 2 & 0b111)
		offset = 2
	}
	if err := format.Validate(); err != nil {
		return nil, 0, err
	}
	size := offset + format.BasicLength + format.FractionLength
	if len(buf) < size {
		return nil, 0, fmt.Errorf("%w: time field needs %d bytes, have %d", ErrIncompletePacket, size, len(buf))
	}
	return parseCucFields(buf, offset, format), size, nil
}

func parseCucFields(buf []byte, offset int, format CucFormat) *CucTime {
	var raw [8]byte
	copy(raw[8-format.BasicLength:], buf[offset:offset+format.BasicLength])
	offset += format.BasicLength
	t := &CucTime{
		format:   format,
		seconds:  binary.BigEndian.Uint64(raw[:]),
		fraction: make([]byte, format.FractionLength),
	}
	copy(t.fraction, buf[offset:offset+format.FractionLength])
	return t
}
