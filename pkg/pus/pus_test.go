// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return data
}

// vectorTC builds the reference telecommand used by the known byte vectors
func vectorTC(t *testing.T, hasSource, hasPEC bool, data []byte) *Packet {
	t.Helper()
	p, err := NewTcPacket(TcOptions{
		APID:          0x10,
		Name:          0x50,
		SeqFlags:      SeqUnsegmented,
		SecHeaderFlag: true,
		PusVersion:    DefaultTcPusVersion,
		AckFlags:      AckAcceptance,
		Service:       8,
		Subservice:    1,
		HasSource:     hasSource,
		Source:        0x2021,
		Data:          data,
		HasPEC:        hasPEC,
	})
	if err != nil {
		t.Fatalf("NewTcPacket failed: %v", err)
	}
	return p
}

func tmTime(t *testing.T, seconds, fraction uint64) *CucTime {
	t.Helper()
	ts, err := NewCucTime(seconds, fraction, DefaultCucFormat)
	if err != nil {
		t.Fatalf("NewCucTime failed: %v", err)
	}
	return ts
}

// ============================================================
// CRC Tests
// ============================================================

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{name: "0000", data: []byte{0x00, 0x00}, expected: 0x1D0F},
		{name: "000000", data: []byte{0x00, 0x00, 0x00}, expected: 0xCC9C},
		{name: "ABCDEF01", data: []byte{0xAB, 0xCD, 0xEF, 0x01}, expected: 0x04A2},
		{name: "1456F89A0001", data: []byte{0x14, 0x56, 0xF8, 0x9A, 0x00, 0x01}, expected: 0x7FD5},
		{name: "ASCII '123456789'", data: []byte("123456789"), expected: 0x29B1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := Checksum(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestChecksum_Empty(t *testing.T) {
	if crc := Checksum(nil); crc != 0xFFFF {
		t.Errorf("CRC of empty data should be the initial value, got 0x%04X", crc)
	}
}

func TestChecksumValid_AppendedChecksumGivesZero(t *testing.T) {
	data := []byte{0x14, 0x56, 0xF8, 0x9A, 0x00, 0x01}
	crc := Checksum(data)
	withCRC := append(append([]byte{}, data...), byte(crc>>8), byte(crc))
	if !ChecksumValid(withCRC) {
		t.Errorf("data followed by its checksum should validate")
	}
}

// ============================================================
// Identity Tests
// ============================================================

func TestIdent_SequenceCountWraps(t *testing.T) {
	ident, err := NewIdent(1)
	if err != nil {
		t.Fatalf("NewIdent failed: %v", err)
	}
	if got := ident.NextSeqCount(); got != 0 {
		t.Fatalf("first sequence count should be 0, got %d", got)
	}
	for i := 1; i < SeqCountRange; i++ {
		if got := ident.NextSeqCount(); got > MaxSeqCount {
			t.Fatalf("sequence count %d exceeds %d", got, MaxSeqCount)
		}
	}
	if got := ident.NextSeqCount(); got != 0 {
		t.Errorf("sequence count should wrap to 0 after %d calls, got %d", SeqCountRange, got)
	}
}

func TestIdent_RejectsLargeAPID(t *testing.T) {
	if _, err := NewIdent(MaxAPID + 1); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("expected ErrInvalidPacket, got %v", err)
	}
	ident, err := NewIdent(MaxAPID)
	if err != nil {
		t.Fatalf("APID %d should be accepted: %v", MaxAPID, err)
	}
	if ident.APID() != MaxAPID {
		t.Errorf("APID mismatch: got %d", ident.APID())
	}
}

// ============================================================
// TC Encoding Tests
// ============================================================

func TestTcPacket_KnownVectors(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	tests := []struct {
		name      string
		hasSource bool
		hasPEC    bool
		data      []byte
		expected  string
	}{
		{name: "no source, no PEC", expected: "1810c0500002210801"},
		{name: "no source, PEC", hasPEC: true, expected: "1810c0500004210801bbc9"},
		{name: "source, no PEC", hasSource: true, expected: "1810c05000042108012021"},
		{name: "source, PEC", hasSource: true, hasPEC: true, expected: "1810c050000621080120213377"},
		{name: "source and data, no PEC", hasSource: true, data: data, expected: "1810c05000082108012021deadbeef"},
		{name: "source and data, PEC", hasSource: true, hasPEC: true, data: data, expected: "1810c050000a2108012021deadbeefc984"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := vectorTC(t, tt.hasSource, tt.hasPEC, tt.data)
			encoded, err := p.Serialize()
			if err != nil {
				t.Fatalf("Serialize failed: %v", err)
			}
			if got := hex.EncodeToString(encoded); got != tt.expected {
				t.Errorf("encoding mismatch:\n  expected %s\n  got      %s", tt.expected, got)
			}
			if len(encoded) != PrimaryHeaderSize+int(p.Header.DataLength)+1 {
				t.Errorf("length %d does not match data length field %d", len(encoded), p.Header.DataLength)
			}

			decoded, n, err := DecodeTC(encoded, DecodeOptions{
				HasSource:      tt.hasSource,
				HasPEC:         tt.hasPEC,
				ValidateFields: true,
				ValidatePEC:    true,
			})
			if err != nil {
				t.Fatalf("DecodeTC failed: %v", err)
			}
			if n != len(encoded) {
				t.Errorf("consumed %d bytes, expected %d", n, len(encoded))
			}
			if decoded.APID() != 0x10 || decoded.SeqCount() != 0x50 {
				t.Errorf("header mismatch: apid=%d name=%d", decoded.APID(), decoded.SeqCount())
			}
			if decoded.Service() != 8 || decoded.Subservice() != 1 || decoded.AckFlags() != AckAcceptance {
				t.Errorf("secondary header mismatch: %s", decoded)
			}
			if tt.hasSource && decoded.TC.Source != 0x2021 {
				t.Errorf("source mismatch: 0x%04X", decoded.TC.Source)
			}
			if !bytes.Equal(decoded.Payload, tt.data) && len(tt.data) > 0 {
				t.Errorf("payload mismatch: %x", decoded.Payload)
			}
		})
	}
}

func TestTcPacket_RequestID(t *testing.T) {
	p := vectorTC(t, false, false, nil)
	id := p.RequestID()
	if got := hex.EncodeToString(id[:]); got != "1810c050" {
		t.Errorf("request ID mismatch: got %s", got)
	}
}

func TestSerializeTo_TooSmallBuffer(t *testing.T) {
	p := vectorTC(t, true, true, nil)
	buf := make([]byte, p.Size()-1)
	if _, err := p.SerializeTo(buf); !errors.Is(err, ErrTooSmallBuffer) {
		t.Errorf("expected ErrTooSmallBuffer, got %v", err)
	}
	buf = make([]byte, p.Size()+10)
	n, err := p.SerializeTo(buf)
	if err != nil {
		t.Fatalf("SerializeTo failed: %v", err)
	}
	if n != p.Size() {
		t.Errorf("wrote %d bytes, expected %d", n, p.Size())
	}
}

func TestSerialize_RejectsStaleDataLength(t *testing.T) {
	p := vectorTC(t, false, false, nil)
	p.Payload = []byte{1, 2, 3}
	if _, err := p.Serialize(); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("expected ErrInvalidPacket for stale data length, got %v", err)
	}
	if err := p.SetPayload([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SetPayload failed: %v", err)
	}
	if _, err := p.Serialize(); err != nil {
		t.Errorf("Serialize after SetPayload failed: %v", err)
	}
}

func TestSetPayload_RejectsEmptyDataField(t *testing.T) {
	p, err := NewTcPacket(TcOptions{APID: 5, Data: []byte{1}})
	if err != nil {
		t.Fatalf("NewTcPacket failed: %v", err)
	}
	if err := p.SetPayload(nil); !errors.Is(err, ErrInvalidPacket) {
		t.Fatalf("expected ErrInvalidPacket for empty data field, got %v", err)
	}
	if !bytes.Equal(p.Payload, []byte{1}) {
		t.Errorf("payload changed after rejected SetPayload: %x", p.Payload)
	}

	encoded, err := p.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if len(encoded) != PrimaryHeaderSize+int(p.Header.DataLength)+1 {
		t.Errorf("length %d does not match data length %d", len(encoded), p.Header.DataLength)
	}
	if _, _, err := Deserialize(encoded, DecodeOptions{ValidateFields: true}); err != nil {
		t.Errorf("Deserialize failed: %v", err)
	}
}

func TestSerialize_RejectsInvalidPackets(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
	}{
		{
			name: "secondary header flag without TC header",
			packet: &Packet{
				Header:  PrimaryHeader{Type: TypeTC, SecHeaderFlag: true, APID: 5},
				Payload: []byte{1},
			},
		},
		{
			name: "secondary header flag without TM header",
			packet: &Packet{
				Header:  PrimaryHeader{Type: TypeTM, SecHeaderFlag: true, APID: 5},
				Payload: []byte{1},
			},
		},
		{
			name:   "empty data field",
			packet: &Packet{Header: PrimaryHeader{Type: TypeTC, APID: 5}},
		},
		{
			name: "TM header without time",
			packet: &Packet{
				Header: PrimaryHeader{Type: TypeTM, SecHeaderFlag: true, APID: 5, DataLength: 2},
				TM:     &TmSecondaryHeader{PusVersion: DefaultTmPusVersion, ServiceType: 17, ServiceSubtype: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.packet.Serialize(); !errors.Is(err, ErrInvalidPacket) {
				t.Errorf("expected ErrInvalidPacket, got %v", err)
			}
		})
	}
}

func TestNewTmPacket_RequiresTime(t *testing.T) {
	opts := TmOptions{
		APID:          0x42,
		SecHeaderFlag: true,
		PusVersion:    DefaultTmPusVersion,
		Service:       17,
		Subservice:    2,
		Data:          []byte{1, 2, 3},
		HasPEC:        true,
	}
	if _, err := NewTmPacket(opts); !errors.Is(err, ErrInvalidPacket) {
		t.Fatalf("expected ErrInvalidPacket without time, got %v", err)
	}

	opts.Time = tmTime(t, 42, 0)
	p, err := NewTmPacket(opts)
	if err != nil {
		t.Fatalf("NewTmPacket failed: %v", err)
	}
	format := DefaultCucFormat
	decoded, n, err := DecodeTM(p.MustSerialize(), DecodeOptions{
		HasPEC:         true,
		TimeFormat:     &format,
		ValidateFields: true,
		ValidatePEC:    true,
	})
	if err != nil {
		t.Fatalf("DecodeTM failed: %v", err)
	}
	if n != p.Size() || decoded.Header != p.Header || !bytes.Equal(decoded.Payload, p.Payload) {
		t.Errorf("round trip mismatch: %s != %s", decoded, p)
	}
	if !decoded.TM.Time.Equal(p.TM.Time) {
		t.Errorf("time mismatch: %s != %s", decoded.TM.Time, p.TM.Time)
	}
}

// ============================================================
// Field Validation Tests
// ============================================================

func TestNewTcPacket_RangeChecks(t *testing.T) {
	tests := []struct {
		name string
		opts TcOptions
	}{
		{name: "APID too large", opts: TcOptions{APID: MaxAPID + 1}},
		{name: "sequence count too large", opts: TcOptions{Name: MaxSeqCount + 1}},
		{name: "sequence flags too large", opts: TcOptions{SeqFlags: 4}},
		{name: "PUS version too large", opts: TcOptions{SecHeaderFlag: true, PusVersion: 16}},
		{name: "ack flags too large", opts: TcOptions{SecHeaderFlag: true, AckFlags: 16}},
		{name: "payload too large", opts: TcOptions{Data: make([]byte, MaxDataLength+1)}},
		{name: "empty data field", opts: TcOptions{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTcPacket(tt.opts); !errors.Is(err, ErrInvalidPacket) {
				t.Errorf("expected ErrInvalidPacket, got %v", err)
			}
		})
	}
}

func TestNewTcPacket_Limits(t *testing.T) {
	p, err := NewTcPacket(TcOptions{APID: MaxAPID, Name: MaxSeqCount, Data: make([]byte, MaxDataLength)})
	if err != nil {
		t.Fatalf("maximum sized packet should be accepted: %v", err)
	}
	if p.Size() != MaxPacketSize {
		t.Errorf("size %d, expected %d", p.Size(), MaxPacketSize)
	}
	if p.Header.DataLength != 0xFFFF {
		t.Errorf("data length 0x%04X, expected 0xFFFF", p.Header.DataLength)
	}
}

// ============================================================
// TM Encoding Tests
// ============================================================

func TestTmPacket_RoundTrip(t *testing.T) {
	tests := []struct {
		name           string
		hasCounter     bool
		hasDestination bool
		hasPEC         bool
		data           []byte
	}{
		{name: "minimal"},
		{name: "counter", hasCounter: true},
		{name: "destination", hasDestination: true},
		{name: "all optional fields", hasCounter: true, hasDestination: true, hasPEC: true},
		{name: "payload with PEC", hasPEC: true, data: []byte{0x01, 0x02, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewTmPacket(TmOptions{
				APID:           0x42,
				SeqCount:       1234,
				SeqFlags:       SeqUnsegmented,
				SecHeaderFlag:  true,
				PusVersion:     DefaultTmPusVersion,
				Service:        3,
				Subservice:     25,
				HasMsgCounter:  tt.hasCounter,
				MsgCounter:     7,
				HasDestination: tt.hasDestination,
				Destination:    9,
				Time:           tmTime(t, 1000, 0x8000),
				Data:           tt.data,
				HasPEC:         tt.hasPEC,
			})
			if err != nil {
				t.Fatalf("NewTmPacket failed: %v", err)
			}
			encoded := p.MustSerialize()
			if len(encoded) != PrimaryHeaderSize+int(p.Header.DataLength)+1 {
				t.Fatalf("length %d does not match data length %d", len(encoded), p.Header.DataLength)
			}

			format := DefaultCucFormat
			decoded, _, err := DecodeTM(encoded, DecodeOptions{
				HasMsgCounter:  tt.hasCounter,
				HasDestination: tt.hasDestination,
				HasPEC:         tt.hasPEC,
				TimeFormat:     &format,
				ValidateFields: true,
				ValidatePEC:    true,
			})
			if err != nil {
				t.Fatalf("DecodeTM failed: %v", err)
			}
			if decoded.Header != p.Header {
				t.Errorf("primary header mismatch: %+v != %+v", decoded.Header, p.Header)
			}
			if decoded.TM.HasMsgCounter != tt.hasCounter || (tt.hasCounter && decoded.TM.MsgCounter != 7) {
				t.Errorf("counter mismatch: %+v", decoded.TM)
			}
			if decoded.TM.HasDestination != tt.hasDestination || (tt.hasDestination && decoded.TM.Destination != 9) {
				t.Errorf("destination mismatch: %+v", decoded.TM)
			}
			if !decoded.TM.Time.Equal(p.TM.Time) {
				t.Errorf("time mismatch: %s != %s", decoded.TM.Time, p.TM.Time)
			}
			if !bytes.Equal(decoded.Payload, p.Payload) && len(p.Payload) > 0 {
				t.Errorf("payload mismatch: %x != %x", decoded.Payload, p.Payload)
			}

			// Self-describing time field decodes to the same value
			selfDescribing, _, err := DecodeTM(encoded, DecodeOptions{
				HasMsgCounter:  tt.hasCounter,
				HasDestination: tt.hasDestination,
				HasPEC:         tt.hasPEC,
			})
			if err != nil {
				t.Fatalf("DecodeTM with P-field failed: %v", err)
			}
			if !selfDescribing.TM.Time.Equal(p.TM.Time) {
				t.Errorf("P-field decoded time mismatch: %s", selfDescribing.TM.Time)
			}
		})
	}
}

// ============================================================
// Decoding Error Tests
// ============================================================

func TestDeserialize_IncompletePacket(t *testing.T) {
	encoded := mustHex(t, "1810c050000a2108012021deadbeefc984")
	for _, size := range []int{0, 5, 6, len(encoded) - 1} {
		if _, _, err := Deserialize(encoded[:size], DecodeOptions{HasSource: true, HasPEC: true}); !errors.Is(err, ErrIncompletePacket) {
			t.Errorf("size %d: expected ErrIncompletePacket, got %v", size, err)
		}
	}
}

func TestDeserialize_CorruptedByteFailsCRC(t *testing.T) {
	encoded := mustHex(t, "1810c050000a2108012021deadbeefc984")
	opts := DecodeOptions{HasSource: true, HasPEC: true, ValidatePEC: true}

	for i := range encoded {
		corrupted := append([]byte{}, encoded...)
		corrupted[i] ^= 0x01
		_, _, err := Deserialize(corrupted, opts)
		// a longer declared data length runs past the end of the buffer
		expected := ErrCrcMismatch
		if i == 4 || i == 5 {
			expected = ErrIncompletePacket
		}
		if !errors.Is(err, expected) {
			t.Errorf("byte %d corrupted: expected %v, got %v", i, expected, err)
		}
	}

	// Without validation the corrupted packet still decodes
	corrupted := append([]byte{}, encoded...)
	corrupted[10] ^= 0xFF
	opts.ValidatePEC = false
	if _, _, err := Deserialize(corrupted, opts); err != nil {
		t.Errorf("decode without PEC validation failed: %v", err)
	}
}

func TestDeserialize_DataLengthTooShortForHeader(t *testing.T) {
	// Declares one data byte but the TC secondary header needs three
	encoded := mustHex(t, "1810c050000021")
	if _, _, err := Deserialize(encoded, DecodeOptions{}); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("expected ErrInvalidPacket, got %v", err)
	}
}

func TestDeserialize_WrongType(t *testing.T) {
	encoded := mustHex(t, "1810c0500002210801")
	if _, _, err := DecodeTM(encoded, DecodeOptions{}); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("expected ErrInvalidPacket decoding a TC as TM, got %v", err)
	}
}

func TestDeserialize_ValidateFieldsRejectsVersion(t *testing.T) {
	encoded := mustHex(t, "3810c0500002210801")
	if _, _, err := Deserialize(encoded, DecodeOptions{ValidateFields: true}); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("expected ErrInvalidPacket for version 1, got %v", err)
	}
	if _, _, err := Deserialize(encoded, DecodeOptions{}); err != nil {
		t.Errorf("trusted decode should not check the version: %v", err)
	}
}

// ============================================================
// Stream Decoder Tests
// ============================================================

func TestStreamDecoder_ByteAtATime(t *testing.T) {
	first := mustHex(t, "1810c050000a2108012021deadbeefc984")
	second := mustHex(t, "1810c050000621080120213377")
	stream := append(append([]byte{}, first...), second...)

	decoder := NewStreamDecoder(DecodeOptions{HasSource: true, HasPEC: true, ValidatePEC: true})
	var packets []*Packet
	for _, b := range stream {
		p, err := decoder.DecodeByte(b)
		if err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	if len(packets) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(packets))
	}
	if !bytes.Equal(packets[0].Payload, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("first payload mismatch: %x", packets[0].Payload)
	}
	if decoder.Buffered() != 0 {
		t.Errorf("decoder should be empty, %d bytes buffered", decoder.Buffered())
	}
}

func TestStreamDecoder_ResynchronisesAfterGarbage(t *testing.T) {
	packet := mustHex(t, "1810c050000621080120213377")
	stream := append([]byte{0xFF, 0xE0, 0xA5}, packet...)

	decoder := NewStreamDecoder(DecodeOptions{HasSource: true, HasPEC: true, ValidatePEC: true})
	if _, err := decoder.Write(stream); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var found *Packet
	errorsSeen := 0
	for i := 0; i < len(stream) && found == nil; i++ {
		p, err := decoder.Next()
		if err != nil {
			errorsSeen++
			continue
		}
		found = p
	}
	if found == nil {
		t.Fatalf("packet not recovered after garbage")
	}
	if decoder.Skipped() != 3 || errorsSeen != 3 {
		t.Errorf("expected 3 skipped bytes, got %d (%d errors)", decoder.Skipped(), errorsSeen)
	}
	if found.TC.Source != 0x2021 {
		t.Errorf("source mismatch: 0x%04X", found.TC.Source)
	}
}

// ============================================================
// Validator and Statistics Tests
// ============================================================

func TestValidatePacket(t *testing.T) {
	good := vectorTC(t, false, false, nil)
	if errs := ValidatePacket(good, DefaultExpectations); len(errs) != 0 {
		t.Errorf("expected no anomalies, got %v", errs)
	}

	wrongVersion, _ := NewTcPacket(TcOptions{APID: 1, SecHeaderFlag: true, PusVersion: 1, Service: 17, Subservice: 1})
	errs := ValidatePacket(wrongVersion, DefaultExpectations)
	if len(errs) != 1 || errs[0].Type != AnomalyPusVersion {
		t.Errorf("expected a PUS version anomaly, got %v", errs)
	}

	unknown, _ := NewTcPacket(TcOptions{APID: 1, SecHeaderFlag: true, PusVersion: 2, Service: 200, Subservice: 1})
	errs = ValidatePacket(unknown, DefaultExpectations)
	if len(errs) != 1 || errs[0].Type != AnomalyUnknownService {
		t.Errorf("expected an unknown service anomaly, got %v", errs)
	}

	idle, _ := NewTmPacket(TmOptions{APID: IdleAPID, Data: []byte{0xFF}})
	errs = ValidatePacket(idle, DefaultExpectations)
	if len(errs) != 1 || errs[0].Type != AnomalyIdlePacket {
		t.Errorf("expected an idle packet anomaly, got %v", errs)
	}
}

func TestSequenceTracker(t *testing.T) {
	tracker := NewSequenceTracker()
	for _, seq := range []uint16{MaxSeqCount - 1, MaxSeqCount, 0, 1} {
		p, _ := NewTmPacket(TmOptions{APID: 5, SeqCount: seq, Data: []byte{0}})
		if gap := tracker.Check(p); gap != nil {
			t.Fatalf("unexpected gap at %d: %s", seq, gap.Message)
		}
	}
	p, _ := NewTmPacket(TmOptions{APID: 5, SeqCount: 4, Data: []byte{0}})
	gap := tracker.Check(p)
	if gap == nil || gap.Type != AnomalySequenceGap {
		t.Fatalf("expected a sequence gap")
	}
	if missing := gap.Details["missing"].(int); missing != 2 {
		t.Errorf("expected 2 missing packets, got %d", missing)
	}
}

func TestStatistics_Update(t *testing.T) {
	stats := NewStatistics()
	good := vectorTC(t, false, false, nil)

	stats.Update(good, nil, nil)
	stats.Update(nil, ErrCrcMismatch, nil)
	stats.Update(nil, ErrIncompletePacket, nil)
	stats.Update(good, nil, []ValidationError{{Type: AnomalySequenceGap}})

	if stats.TotalPackets != 4 || stats.ValidPackets != 1 {
		t.Errorf("total=%d valid=%d", stats.TotalPackets, stats.ValidPackets)
	}
	if stats.CRCErrors != 1 || stats.DecodeErrors != 1 || stats.SequenceGaps != 1 {
		t.Errorf("crc=%d decode=%d gaps=%d", stats.CRCErrors, stats.DecodeErrors, stats.SequenceGaps)
	}
	if stats.PerService[8] != 2 || stats.TCPackets != 2 {
		t.Errorf("per service=%v tc=%d", stats.PerService, stats.TCPackets)
	}
	if stats.Errors() != 3 {
		t.Errorf("errors=%d", stats.Errors())
	}

	stats.Reset()
	if stats.TotalPackets != 0 || len(stats.PerService) != 0 {
		t.Errorf("reset did not clear counters")
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatPacket(t *testing.T) {
	p := vectorTC(t, true, false, []byte{0xDE, 0xAD})
	p.timestamp = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	expected := "[12:00:00.000] TC[8,1] PERFORM_FUNCTION apid=16 seq=80 ack=A--- src=8225 data=dead\n"
	if got := FormatPacket(p); got != expected {
		t.Errorf("format mismatch:\n  expected %q\n  got      %q", expected, got)
	}
}

func TestFormatMessageType(t *testing.T) {
	tests := []struct {
		service, subservice uint8
		expected            string
	}{
		{1, 7, "COMPLETION_SUCCESS"},
		{3, 25, "HK_PARAMETER_REPORT"},
		{17, 9, "TEST_9"},
		{99, 1, "SERVICE_99_1"},
	}
	for _, tt := range tests {
		if got := FormatMessageType(tt.service, tt.subservice); got != tt.expected {
			t.Errorf("FormatMessageType(%d, %d) = %s, expected %s", tt.service, tt.subservice, got, tt.expected)
		}
	}
}
