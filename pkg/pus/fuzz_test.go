// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomPayload(rng *rand.Rand) []byte {
	data := make([]byte, 1+rng.Intn(64))
	rng.Read(data)
	return data
}

func TestFuzz_TcRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)

	for round := 0; round < getFuzzRounds(); round++ {
		opts := TcOptions{
			APID:          uint16(rng.Intn(MaxAPID + 1)),
			Name:          uint16(rng.Intn(SeqCountRange)),
			SeqFlags:      SequenceFlags(rng.Intn(4)),
			SecHeaderFlag: rng.Intn(4) != 0,
			PusVersion:    uint8(rng.Intn(16)),
			AckFlags:      AckFlags(rng.Intn(16)),
			Service:       uint8(rng.Intn(256)),
			Subservice:    uint8(rng.Intn(256)),
			HasSource:     rng.Intn(2) == 1,
			Source:        uint16(rng.Intn(65536)),
			Data:          randomPayload(rng),
			HasPEC:        rng.Intn(2) == 1,
		}
		p, err := NewTcPacket(opts)
		if err != nil {
			t.Fatalf("round %d: NewTcPacket failed: %v", round, err)
		}
		encoded := p.MustSerialize()

		decoded, n, err := Deserialize(encoded, DecodeOptions{
			HasSource:      opts.HasSource,
			HasPEC:         opts.HasPEC,
			ValidateFields: true,
			ValidatePEC:    true,
		})
		if err != nil {
			t.Fatalf("round %d: decode failed: %v (%x)", round, err, encoded)
		}
		if n != len(encoded) || decoded.Header != p.Header {
			t.Fatalf("round %d: header mismatch %+v != %+v", round, decoded.Header, p.Header)
		}
		if opts.SecHeaderFlag && *decoded.TC != *p.TC {
			t.Fatalf("round %d: TC header mismatch %+v != %+v", round, decoded.TC, p.TC)
		}
		if !bytes.Equal(decoded.Payload, opts.Data) {
			t.Fatalf("round %d: payload mismatch", round)
		}
	}
}

func TestFuzz_TmRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)

	for round := 0; round < getFuzzRounds(); round++ {
		format := CucFormat{
			BasicLength:    1 + rng.Intn(MaxBasicTimeLength),
			FractionLength: rng.Intn(MaxFractionTimeLength + 1),
			Preamble:       rng.Intn(2) == 1,
		}
		seconds := uint64(rng.Int63()) & (1<<(8*format.BasicLength) - 1)
		fraction := uint64(0)
		if format.FractionLength > 0 {
			fraction = uint64(rng.Int63())
			if format.FractionLength < 8 {
				fraction &= 1<<(8*format.FractionLength) - 1
			}
		}
		ts, err := NewCucTime(seconds, fraction, format)
		if err != nil {
			t.Fatalf("round %d: NewCucTime(%d, %d, %s) failed: %v", round, seconds, fraction, format, err)
		}

		opts := TmOptions{
			APID:           uint16(rng.Intn(MaxAPID + 1)),
			SeqCount:       uint16(rng.Intn(SeqCountRange)),
			SeqFlags:       SeqUnsegmented,
			SecHeaderFlag:  true,
			PusVersion:     uint8(rng.Intn(16)),
			TimeRefStatus:  uint8(rng.Intn(16)),
			Service:        uint8(rng.Intn(256)),
			Subservice:     uint8(rng.Intn(256)),
			HasMsgCounter:  rng.Intn(2) == 1,
			MsgCounter:     uint16(rng.Intn(65536)),
			HasDestination: rng.Intn(2) == 1,
			Destination:    uint16(rng.Intn(65536)),
			Time:           ts,
			Data:           randomPayload(rng),
			HasPEC:         rng.Intn(2) == 1,
		}
		p, err := NewTmPacket(opts)
		if err != nil {
			t.Fatalf("round %d: NewTmPacket failed: %v", round, err)
		}
		encoded := p.MustSerialize()

		decoded, _, err := DecodeTM(encoded, DecodeOptions{
			HasMsgCounter:  opts.HasMsgCounter,
			HasDestination: opts.HasDestination,
			HasPEC:         opts.HasPEC,
			TimeFormat:     &format,
			ValidateFields: true,
			ValidatePEC:    true,
		})
		if err != nil {
			t.Fatalf("round %d: decode failed: %v", round, err)
		}
		if decoded.Header != p.Header {
			t.Fatalf("round %d: header mismatch", round)
		}
		if !decoded.TM.Time.Equal(ts) {
			t.Fatalf("round %d: time mismatch %s != %s", round, decoded.TM.Time, ts)
		}
		if !bytes.Equal(decoded.Payload, opts.Data) {
			t.Fatalf("round %d: payload mismatch", round)
		}
	}
}

func TestFuzz_StreamDecoderNeverPanics(t *testing.T) {
	rng := newFuzzRng(t)
	decoder := NewStreamDecoder(DecodeOptions{HasPEC: true, ValidatePEC: true})

	for round := 0; round < getFuzzRounds(); round++ {
		chunk := make([]byte, rng.Intn(32))
		rng.Read(chunk)
		for _, b := range chunk {
			decoder.DecodeByte(b)
		}
		if decoder.Buffered() > MaxPacketSize {
			t.Fatalf("round %d: decoder buffered %d bytes", round, decoder.Buffered())
		}
	}
}
