// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package services

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
	"github.com/Thermoquad/pusgate/pkg/pus/policy"
)

const testAPID = 0x10

type captureOutput struct {
	packets []*pus.Packet
	err     error
}

func (c *captureOutput) Write(p *pus.Packet) error {
	if c.err != nil {
		return c.err
	}
	c.packets = append(c.packets, p)
	return nil
}

func (c *captureOutput) kinds() [][2]uint8 {
	kinds := make([][2]uint8, 0, len(c.packets))
	for _, p := range c.packets {
		kinds = append(kinds, [2]uint8{p.Service(), p.Subservice()})
	}
	return kinds
}

func newTestEnv(t *testing.T) (Env, *captureOutput) {
	t.Helper()
	ident, err := pus.NewIdent(testAPID)
	require.NoError(t, err)
	pol := policy.Default()
	pol.Now = func() time.Time { return pus.TAIEpoch.Add(time.Hour) }
	out := &captureOutput{}
	return Env{Ident: ident, Policy: pol, Output: out}, out
}

func newTC(t *testing.T, env Env, service, subservice uint8, ack pus.AckFlags, data []byte) *pus.Packet {
	t.Helper()
	opts := env.Policy.TcOptions(env.Ident.APID(), 42, service, subservice, data)
	opts.AckFlags = ack
	tc, err := pus.NewTcPacket(opts)
	require.NoError(t, err)
	return tc
}

func u16s(values ...uint16) []byte {
	buf := make([]byte, 0, 2*len(values))
	for _, v := range values {
		buf = binary.BigEndian.AppendUint16(buf, v)
	}
	return buf
}

// ============================================================================
// Request verification
// ============================================================================

func TestAckFanOut(t *testing.T) {
	env, out := newTestEnv(t)
	pus1 := NewRequestVerification(env)

	tc := newTC(t, env, pus.ServiceTest, 1, pus.AckAll, nil)
	require.NoError(t, pus1.Accept(tc, Success()))
	require.NoError(t, pus1.Start(tc, Success()))
	require.NoError(t, pus1.Progress(tc, Success()))
	require.NoError(t, pus1.Complete(tc, Success()))

	require.Equal(t, [][2]uint8{{1, 1}, {1, 3}, {1, 5}, {1, 7}}, out.kinds())
	requestID := tc.RequestID()
	for i, p := range out.packets {
		assert.Equal(t, requestID[:], p.AppData())
		assert.Equal(t, uint16(i), p.SeqCount())
		assert.Equal(t, uint16(testAPID), p.APID())
	}

	out.packets = nil
	none := newTC(t, env, pus.ServiceTest, 1, pus.AckNone, nil)
	require.NoError(t, pus1.Accept(none, Success()))
	require.NoError(t, pus1.Start(none, Success()))
	require.NoError(t, pus1.Progress(none, Success()))
	require.NoError(t, pus1.Complete(none, Success()))
	assert.Empty(t, out.packets)
}

func TestFailureReports(t *testing.T) {
	env, out := newTestEnv(t)
	pus1 := NewRequestVerification(env)
	tc := newTC(t, env, pus.ServiceTest, 1, pus.AckAll, nil)
	requestID := tc.RequestID()

	require.NoError(t, pus1.Accept(tc, FailureWithData(Pus3ParamDuplication, []byte{0xAA})))
	require.NoError(t, pus1.Complete(tc, Fail()))

	require.Equal(t, [][2]uint8{{1, 2}, {1, 8}}, out.kinds())
	assert.Equal(t, append(requestID[:], 33, 0xAA), out.packets[0].AppData())
	assert.Equal(t, append(requestID[:], byte(IllegalAppData)), out.packets[1].AppData())
}

func TestFailureCodeWidthFollowsPolicy(t *testing.T) {
	env, out := newTestEnv(t)
	env.Policy.RequestVerification.FailureCode = parameter.U16
	pus1 := NewRequestVerification(env)
	tc := newTC(t, env, pus.ServiceTest, 1, pus.AckAcceptance, nil)

	require.NoError(t, pus1.Accept(tc, Failure(Pus8InvalidFID)))
	require.Len(t, out.packets, 1)
	assert.Equal(t, []byte{0, 80}, out.packets[0].AppData()[4:])
}

func TestRequestVerificationHasNoQueue(t *testing.T) {
	env, _ := newTestEnv(t)
	pus1 := NewRequestVerification(env)
	tc := newTC(t, env, pus.ServiceRequestVerification, 1, pus.AckAll, nil)

	require.ErrorIs(t, pus1.Enqueue(tc), ErrNoQueue)
	require.ErrorIs(t, pus1.Process(), ErrNoQueue)
}

// ============================================================================
// Dispatch
// ============================================================================

func TestDispatchEmitsAcceptAndComplete(t *testing.T) {
	env, out := newTestEnv(t)
	s := NewTest(env, NewRequestVerification(env))

	require.NoError(t, s.Enqueue(newTC(t, env, pus.ServiceTest, 1, pus.AckAll, nil)))
	require.NoError(t, s.Enqueue(newTC(t, env, pus.ServiceTest, 1, pus.AckNone, nil)))
	assert.Equal(t, 2, s.Pending())

	require.NoError(t, s.Process())
	assert.Zero(t, s.Pending())
	// start and progress are left to handlers
	assert.Equal(t, [][2]uint8{{17, 2}, {1, 1}, {1, 7}, {17, 2}}, out.kinds())
}

func TestEnqueueDropsMisrouted(t *testing.T) {
	env, _ := newTestEnv(t)
	s := NewTest(env, NewRequestVerification(env))

	wrongAPID := env.Policy.TcOptions(testAPID+1, 0, pus.ServiceTest, 1, nil)
	tc, err := pus.NewTcPacket(wrongAPID)
	require.NoError(t, err)

	for _, tc := range []*pus.Packet{
		tc,
		newTC(t, env, pus.ServiceHousekeeping, 1, pus.AckAll, nil),
		newTC(t, env, pus.ServiceTest, 9, pus.AckAll, nil),
	} {
		assert.False(t, s.Accepts(tc))
		require.NoError(t, s.Enqueue(tc))
	}
	assert.Zero(t, s.Pending())
	assert.Equal(t, "PUS17 test", s.String())
}

func TestHandlerPanicBecomesFailure(t *testing.T) {
	env, out := newTestEnv(t)
	s := NewTest(env, NewRequestVerification(env))
	s.register(9, func([]byte) Result { panic("boom") })
	s.register(10, func([]byte) Result { return Success() })

	require.NoError(t, s.Enqueue(newTC(t, env, pus.ServiceTest, 9, pus.AckCompletion, nil)))
	require.NoError(t, s.Enqueue(newTC(t, env, pus.ServiceTest, 10, pus.AckCompletion, nil)))
	require.NoError(t, s.Process())

	require.Equal(t, [][2]uint8{{1, 8}, {1, 7}}, out.kinds())
	assert.Equal(t, byte(IllegalAppData), out.packets[0].AppData()[4])
}

func TestProcessReportsOutputErrors(t *testing.T) {
	env, out := newTestEnv(t)
	out.err = errors.New("link down")
	s := NewTest(env, NewRequestVerification(env))

	require.NoError(t, s.Enqueue(newTC(t, env, pus.ServiceTest, 1, pus.AckAll, nil)))
	require.NoError(t, s.Enqueue(newTC(t, env, pus.ServiceTest, 1, pus.AckAll, nil)))
	err := s.Process()
	require.ErrorIs(t, err, out.err)
	assert.Zero(t, s.Pending(), "every queued command is processed")
}

func TestResult(t *testing.T) {
	assert.True(t, Success().OK())
	assert.False(t, Fail().OK())
	assert.Equal(t, IllegalAppData, Fail().Code())
	assert.Equal(t, Pus8InvalidArgs, Failure(Pus8InvalidArgs).Code())
	assert.Equal(t, "failure: PUS3_SID_NOT_PRESENT", Failure(Pus3SidNotPresent).String())
	assert.Equal(t, "ERROR_CODE_99", ErrorCode(99).String())
	assert.Equal(t, "Incorrect checksum", IncorrectChecksum.Description())
}
