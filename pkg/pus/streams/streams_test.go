// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package streams

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/policy"
)

var testTime = pus.TAIEpoch.Add(100 * time.Second)

func testPolicy() *policy.Policy {
	p := policy.Default()
	p.Now = func() time.Time { return testTime }
	return p
}

func newTM(t *testing.T, seq uint16, data []byte) *pus.Packet {
	t.Helper()
	p, err := testPolicy().NewTmPacket(0x10, seq, pus.ServiceHousekeeping, 25, data)
	require.NoError(t, err)
	return p
}

type failingSink struct{}

func (failingSink) Write(*pus.Packet) error { return errors.New("sink down") }

func TestQueuedOutput(t *testing.T) {
	q := NewQueuedOutput()
	assert.True(t, q.Empty())
	assert.Nil(t, q.Get())

	first, second := newTM(t, 1, nil), newTM(t, 2, nil)
	require.NoError(t, q.Write(first))
	require.NoError(t, q.Write(second))
	assert.Equal(t, 2, q.Size())

	assert.Same(t, first, q.Get())
	assert.Same(t, second, q.Get())
	assert.True(t, q.Empty())
}

func TestDistributor(t *testing.T) {
	a, b := NewQueuedOutput(), NewQueuedOutput()
	d := NewDistributor(a, failingSink{})
	d.Add(b)

	err := d.Write(newTM(t, 1, nil))
	require.ErrorContains(t, err, "sink down")
	assert.Equal(t, 1, a.Size())
	assert.Equal(t, 1, b.Size(), "delivery continues past a failing sink")
}

func TestLinkWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewLinkWriter(&buf)
	packet := newTM(t, 3, []byte{1, 2, 3})
	require.NoError(t, w.Write(packet))
	require.NoError(t, w.Write(packet))

	raw, err := packet.Serialize()
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte(nil), raw...), raw...), buf.Bytes())

	packets, n := w.Counters()
	assert.Equal(t, uint64(2), packets)
	assert.Equal(t, uint64(2*len(raw)), n)
}

func TestCBORWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewCBORWriter(&buf)
	require.NoError(t, w.Write(newTM(t, 4, []byte{0xAB})))

	tc, err := testPolicy().NewTcPacket(0x10, 9, pus.ServiceTest, 1, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(tc))
	assert.Equal(t, 2, w.Count())

	records, err := ReadRecords(&buf)
	require.NoError(t, err)
	require.Len(t, records, 2)

	tm := records[0]
	assert.False(t, tm.TC)
	assert.Equal(t, uint16(0x10), tm.APID)
	assert.Equal(t, uint16(4), tm.SeqCount)
	assert.Equal(t, uint8(3), tm.Service)
	assert.Equal(t, uint8(25), tm.Subservice)
	assert.Equal(t, testTime.UnixNano(), tm.Time)

	decoded, err := tm.Packet(testPolicy().TmDecodeOptions())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB}, decoded.AppData())

	assert.True(t, records[1].TC)
	assert.Equal(t, uint8(17), records[1].Service)
	assert.Zero(t, records[1].Time)

	_, err = ReadRecords(bytes.NewReader([]byte{0xFF}))
	require.Error(t, err)
}

func TestFileArchive(t *testing.T) {
	opts := testPolicy().TmDecodeOptions()
	tests := []struct {
		name        string
		otherHeader int
		compress    bool
	}{
		{"plain", 0, false},
		{"other header", 6, false},
		{"zstd", 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "archive.bin")
			out, err := CreateFileOutput(path, tt.otherHeader, tt.compress)
			require.NoError(t, err)
			require.NoError(t, out.WriteWithHeader([]byte{1, 2, 3, 4, 5, 6, 7}, newTM(t, 1, []byte{0x11})))
			require.NoError(t, out.Write(newTM(t, 2, []byte{0x22, 0x33})))
			require.NoError(t, out.Close())

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.compress, bytes.HasPrefix(raw, zstdMagic))

			in := NewFileInput(path, opts, tt.otherHeader)
			entries, err := in.Entries()
			require.NoError(t, err)
			require.Len(t, entries, 2)

			assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}[:tt.otherHeader], entries[0].OtherHeader)
			assert.Equal(t, make([]byte, tt.otherHeader), entries[1].OtherHeader)
			assert.Equal(t, []byte{0x11}, entries[0].Packet.AppData())
			assert.Equal(t, uint16(2), entries[1].Packet.SeqCount())
			assert.Equal(t, testTime, entries[1].Packet.TM.Time.Time())

			packet, err := in.Read(entries[1].Offset)
			require.NoError(t, err)
			assert.Equal(t, []byte{0x22, 0x33}, packet.AppData())
		})
	}
}

func TestFileInputErrors(t *testing.T) {
	opts := testPolicy().TmDecodeOptions()

	_, err := NewFileInput(filepath.Join(t.TempDir(), "missing"), opts, 0).Entries()
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "truncated.bin")
	raw, err := newTM(t, 1, []byte{1, 2}).Serialize()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(raw, raw[:5]...), 0o644))

	in := NewFileInput(path, opts, 0)
	entries, err := in.Entries()
	require.ErrorIs(t, err, pus.ErrIncompletePacket)
	assert.Len(t, entries, 1, "packets before the damage are returned")

	_, err = in.Read(len(raw) + 10)
	require.Error(t, err)
}
