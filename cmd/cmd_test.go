// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/policy"
	"github.com/Thermoquad/pusgate/pkg/pus/services"
	"github.com/Thermoquad/pusgate/pkg/pus/streams"
)

func testPolicy() *policy.Policy {
	p := policy.Default()
	p.Now = func() time.Time { return pus.TAIEpoch.Add(time.Minute) }
	return p
}

func newTM(t *testing.T, apid, seq uint16, service, subservice uint8, data []byte) *pus.Packet {
	t.Helper()
	p, err := testPolicy().NewTmPacket(apid, seq, service, subservice, data)
	require.NoError(t, err)
	return p
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []byte
		err   bool
	}{
		{"spaces", "18 10 c0", []byte{0x18, 0x10, 0xC0}, false},
		{"colons", "de:ad:be:ef", []byte{0xDE, 0xAD, 0xBE, 0xEF}, false},
		{"prefixed", "0x01,0X02", []byte{1, 2}, false},
		{"packed", "0102\n03", []byte{1, 2, 3}, false},
		{"odd digits", "123", nil, true},
		{"not hex", "zz", nil, true},
		{"empty", "  ", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHex(tt.input)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodePacket(t *testing.T) {
	data, err := parseHex("18 10 c0 01 00 04 21 11 01 37 16")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, decodePacket(&out, append(data, 0xAA), policy.Default()))
	text := out.String()
	assert.Contains(t, text, "[17,1]")
	assert.Contains(t, text, "request_id=1810c001")
	assert.Contains(t, text, "1 trailing bytes ignored")
	assert.NotContains(t, text, "invalid:")

	out.Reset()
	require.Error(t, decodePacket(&out, data[:4], policy.Default()))
}

func TestListArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "link.bin")
	archive, err := streams.CreateFileOutput(path, 0, false)
	require.NoError(t, err)
	for _, seq := range []uint16{1, 2, 5} {
		require.NoError(t, archive.Write(newTM(t, 0x10, seq, pus.ServiceHousekeeping, 25, []byte{0, 1})))
	}
	require.NoError(t, archive.Close())

	pol := testPolicy()
	queue := streams.NewQueuedOutput()
	var out bytes.Buffer
	input := streams.NewFileInput(path, pol.DecodeOptions(), 0)
	require.NoError(t, listArchive(&out, input, pol, queue, 0))

	assert.Equal(t, 3, queue.Size())
	text := out.String()
	assert.Equal(t, 3, strings.Count(text, "[3,25]"))
	assert.Contains(t, text, "00000000 ")
	assert.Contains(t, text, "anomaly:", "sequence 2 to 5 is a gap")

	out.Reset()
	limited := streams.NewQueuedOutput()
	require.NoError(t, listArchive(&out, input, pol, limited, 2))
	assert.Equal(t, 2, limited.Size())
}

func TestReadPackets(t *testing.T) {
	pol := testPolicy()
	var wire []byte
	for seq := range uint16(3) {
		raw, err := newTM(t, 0x10, seq, pus.ServiceTest, services.ConnectionTestReport, nil).Serialize()
		require.NoError(t, err)
		wire = append(wire, raw...)
	}

	events := readPackets(context.Background(), io.NopCloser(bytes.NewReader(wire)), pol.DecodeOptions())
	var seqs []uint16
	for event := range events {
		require.NoError(t, event.err)
		seqs = append(seqs, event.packet.SeqCount())
	}
	assert.Equal(t, []uint16{0, 1, 2}, seqs)
}

func TestLinkMonitorWaitsForSync(t *testing.T) {
	m := newLinkMonitor(testPolicy())

	_, counted := m.observe(linkEvent{err: pus.ErrInvalidPacket})
	assert.False(t, counted)
	assert.Equal(t, 1, m.skipped)

	_, counted = m.observe(linkEvent{packet: newTM(t, 0x10, 0, pus.ServiceTest, 2, nil)})
	assert.True(t, counted)
	anomalies, _ := m.observe(linkEvent{packet: newTM(t, 0x10, 4, pus.ServiceTest, 2, nil)})
	assert.NotEmpty(t, anomalies)

	_, counted = m.observe(linkEvent{err: pus.ErrInvalidPacket})
	assert.True(t, counted)
	assert.Equal(t, uint64(1), m.stats.ValidPackets)
	assert.Equal(t, uint64(1), m.stats.SequenceGaps)
	assert.Equal(t, uint64(1), m.stats.DecodeErrors)
}

func TestDiscoverySet(t *testing.T) {
	found := make(discoverySet)
	tc, err := testPolicy().NewTcPacket(0x20, 0, pus.ServiceTest, services.ConnectionTest, nil)
	require.NoError(t, err)

	_, isNew := found.observe(tc)
	assert.False(t, isNew, "telecommands are not sources")

	proc, isNew := found.observe(newTM(t, 0x20, 0, pus.ServiceHousekeeping, 25, []byte{0, 1}))
	require.True(t, isNew)
	_, isNew = found.observe(newTM(t, 0x20, 1, pus.ServiceTest, services.ConnectionTestReport, nil))
	assert.False(t, isNew)
	assert.Equal(t, 2, proc.packets)
	assert.True(t, proc.answered)

	var out bytes.Buffer
	found.print(&out)
	assert.Contains(t, out.String(), "APID   32: 2 packets (answered connection test)")
}

func TestVerificationOutcome(t *testing.T) {
	pol := testPolicy()
	opts := pol.TcOptions(0x10, 3, pus.ServiceTest, services.ConnectionTest, nil)
	tc, err := pus.NewTcPacket(opts)
	require.NoError(t, err)
	id := tc.RequestID()

	report := func(subservice uint8, extra ...byte) *pus.Packet {
		return newTM(t, 0x10, 0, pus.ServiceRequestVerification, subservice, append(id[:], extra...))
	}

	tests := []struct {
		name    string
		ack     pus.AckFlags
		reports []*pus.Packet
		settled bool
		failed  bool
	}{
		{"acceptance only", pus.AckAcceptance, []*pus.Packet{report(1)}, true, false},
		{"waits for completion", pus.AckAcceptance | pus.AckCompletion, []*pus.Packet{report(1)}, false, false},
		{"completed", pus.AckAcceptance | pus.AckCompletion, []*pus.Packet{report(1), report(7)}, true, false},
		{"rejected", pus.AckAll, []*pus.Packet{report(2, 0, 3)}, true, true},
		{"other request ignored", pus.AckAcceptance, []*pus.Packet{newTM(t, 0x10, 0, 1, 1, []byte{9, 9, 9, 9})}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := make(chan linkEvent, len(tt.reports))
			for _, r := range tt.reports {
				events <- linkEvent{packet: r}
			}
			close(events)

			outcome := &verificationOutcome{requestID: id, ack: tt.ack}
			var out bytes.Buffer
			assert.Equal(t, tt.settled, followReports(&out, events, 0x10, outcome))
			assert.Equal(t, tt.failed, outcome.failed)
			assert.Equal(t, len(tt.reports), strings.Count(out.String(), "\n"))
		})
	}
}
