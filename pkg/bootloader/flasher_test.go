// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/feeflash/pkg/dynamixel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// servoBus answers pings for the given ids with a status packet, stays
// silent on reboot and ACKs everything else (magic, init and frames).
func servoBus(ids ...uint8) func([]byte) []reply {
	return func(w []byte) []reply {
		for _, id := range ids {
			if bytes.Equal(w, dynamixel.NewPing(id)) {
				return []reply{bytesReply(0xFF, 0xFF, id, 0x02, 0x00, ^(id + 0x02))}
			}
		}
		if len(w) >= 2 && w[0] == 0xFF && w[1] == 0xFF {
			return nil
		}
		return []reply{ackReply}
	}
}

func isCommandPacket(w []byte) bool {
	return len(w) >= 2 && w[0] == 0xFF && w[1] == 0xFF
}

func fastFlasher(s *fakeStream, opts ...Option) *Flasher {
	opts = append([]Option{WithRebootDelay(0)}, opts...)
	return NewFlasher(s, opts...)
}

func uint8Ptr(v uint8) *uint8 {
	return &v
}

func TestFlasherNormalFlowWithID(t *testing.T) {
	s := &fakeStream{respond: servoBus(7)}
	image := make([]byte, 100)

	require.NoError(t, fastFlasher(s).Run(context.Background(), image, Target{ID: uint8Ptr(7)}))

	require.Len(t, s.writes, 6)
	assert.Equal(t, dynamixel.NewPing(7), s.writes[0])
	assert.Equal(t, dynamixel.NewReboot(7), s.writes[1])
	assert.Equal(t, Magic, s.writes[2])
	assert.Equal(t, []byte{InitByte}, s.writes[3])
	assert.Equal(t, byte(1), s.writes[4][0])
	assert.Equal(t, byte(2), s.writes[5][0])

	assert.Equal(t, []int{DefaultBootloaderBaud}, s.bauds)
	assert.Equal(t, []time.Duration{DefaultPingTimeout, DefaultNormalTimeout}, s.timeouts)
	assert.Equal(t, []string{
		"timeout:" + DefaultPingTimeout.String(),
		"w",
		"timeout:" + DefaultNormalTimeout.String(),
		"w",
		"baud",
		"w", "w", "w", "w",
	}, s.events)
}

func TestFlasherNormalFlowWithScan(t *testing.T) {
	var phases []Phase
	s := &fakeStream{respond: servoBus(3)}
	f := fastFlasher(s, WithProgress(func(p Progress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	}))

	require.NoError(t, f.Run(context.Background(), make([]byte, 10), Target{}))

	// 254 pings, reboot, magic, init, one frame
	require.Len(t, s.writes, 258)
	assert.Equal(t, dynamixel.NewReboot(3), s.writes[254])
	assert.Equal(t, Magic, s.writes[255])
	assert.Equal(t, []Phase{PhaseDiscover, PhaseReboot, PhaseHandshake, PhaseInit, PhaseTransfer, PhaseComplete}, phases)
}

func TestFlasherNoDevice(t *testing.T) {
	s := &fakeStream{respond: servoBus()}
	err := fastFlasher(s).Run(context.Background(), []byte{1}, Target{})

	assert.ErrorIs(t, err, ErrNoDevice)
	assert.Len(t, s.writes, dynamixel.MaxID+1)
	assert.Empty(t, s.bauds)
}

func TestFlasherAmbiguousScanAbortsBeforeReboot(t *testing.T) {
	s := &fakeStream{respond: servoBus(1, 2)}
	err := fastFlasher(s).Run(context.Background(), []byte{1}, Target{})

	var ae *AmbiguousDeviceError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, []uint8{1, 2}, ae.IDs)

	for _, w := range s.writes {
		assert.Equal(t, byte(dynamixel.InstPing), w[4])
	}
	assert.Empty(t, s.bauds)
}

func TestFlasherPingFailureAborts(t *testing.T) {
	s := &fakeStream{respond: servoBus()}
	err := fastFlasher(s).Run(context.Background(), []byte{1}, Target{ID: uint8Ptr(5)})

	assert.ErrorIs(t, err, dynamixel.ErrTimeout)
	assert.Len(t, s.writes, 1)
}

func TestFlasherRecoveryFlow(t *testing.T) {
	s := newFakeStream(timeoutReply, timeoutReply, ackReply, ackReply, ackReply)
	f := fastFlasher(s, WithMagicInterval(time.Millisecond))

	require.NoError(t, f.Run(context.Background(), []byte{0xAB}, Target{Recovery: true}))

	require.Len(t, s.writes, 5)
	for _, w := range s.writes {
		assert.False(t, isCommandPacket(w), "recovery must not send command packets")
	}
	assert.Equal(t, Magic, s.writes[0])
	assert.Equal(t, Magic, s.writes[2])
	assert.Equal(t, []byte{InitByte}, s.writes[3])

	assert.Equal(t, []int{DefaultBootloaderBaud}, s.bauds)
	assert.Equal(t, []time.Duration{time.Millisecond, DefaultNormalTimeout}, s.timeouts)
}

func TestFlasherRecoveryIgnoresID(t *testing.T) {
	s := newFakeStream(ackReply, ackReply, ackReply)
	err := fastFlasher(s).Run(context.Background(), []byte{1}, Target{ID: uint8Ptr(1), Recovery: true})

	require.NoError(t, err)
	assert.Equal(t, Magic, s.writes[0])
}

func TestFlasherRecoveryMaxWait(t *testing.T) {
	s := newFakeStream()
	s.sleepOnTimeout = true
	f := fastFlasher(s, WithMagicInterval(2*time.Millisecond), WithMaxWait(10*time.Millisecond))

	err := f.Run(context.Background(), []byte{1}, Target{Recovery: true})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFlasherEmptyImageTouchesNothing(t *testing.T) {
	s := newFakeStream()
	err := fastFlasher(s).Run(context.Background(), nil, Target{})

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, s.events)
}

func TestFlasherKeepsBaudWhenZero(t *testing.T) {
	s := newFakeStream(ackReply, ackReply, ackReply)
	err := fastFlasher(s, WithBootloaderBaud(0)).Run(context.Background(), []byte{1}, Target{Recovery: true})

	require.NoError(t, err)
	assert.Empty(t, s.bauds)
}

func TestFlasherRebootDelayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeStream{respond: servoBus(1)}
	f := NewFlasher(s, WithRebootDelay(time.Hour))

	err := f.Run(ctx, []byte{1}, Target{ID: uint8Ptr(1)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, s.writes, 2)
}

func TestFlasherMagicRejected(t *testing.T) {
	s := &fakeStream{}
	s.respond = func(w []byte) []reply {
		switch {
		case bytes.Equal(w, dynamixel.NewPing(1)):
			return []reply{bytesReply(0xFF)}
		case bytes.Equal(w, Magic):
			return []reply{nakReply}
		}
		return nil
	}

	err := fastFlasher(s).Run(context.Background(), []byte{1}, Target{ID: uint8Ptr(1)})

	var ue *UnexpectedResponseError
	assert.ErrorAs(t, err, &ue)
	assert.Len(t, s.writes, 3)
}

func TestFlasherBaudChangeFails(t *testing.T) {
	s := &fakeStream{respond: servoBus(1)}
	s.baudErr = errors.New("unsupported rate")

	err := fastFlasher(s).Run(context.Background(), []byte{1}, Target{ID: uint8Ptr(1)})
	assert.ErrorContains(t, err, "set baud rate 500000")
	// ping and reboot only
	assert.Len(t, s.writes, 2)
}
