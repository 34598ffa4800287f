// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedConn replays chunks, then times out until cancel is called
type scriptedConn struct {
	chunks [][]byte
	err    error
	cancel context.CancelFunc
	idle   int
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	if len(c.chunks) > 0 {
		n := copy(p, c.chunks[0])
		c.chunks = c.chunks[1:]
		return n, nil
	}
	if c.err != nil {
		return 0, c.err
	}
	c.idle++
	if c.idle >= 2 {
		c.cancel()
	}
	return 0, os.ErrDeadlineExceeded
}

func (c *scriptedConn) Write(p []byte) (int, error)        { return len(p), nil }
func (c *scriptedConn) Flush() error                       { return nil }
func (c *scriptedConn) SetReadTimeout(time.Duration) error { return nil }
func (c *scriptedConn) SetBaudRate(int) error              { return nil }
func (c *scriptedConn) Close() error                       { return nil }

func TestMonitorBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &scriptedConn{
		chunks: [][]byte{
			{0xFF, 0xFF, 0x01, 0x02, 0x00, 0xFC},
			{0x12, 0x34},
		},
		cancel: cancel,
	}

	var lines []string
	stats, err := monitorBus(ctx, conn, func(l string) { lines = append(lines, l) })
	require.NoError(t, err)

	assert.Equal(t, monitorStats{chunks: 2, bytes: 8, statusPackets: 1}, stats)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Received 6 bytes: FF FF 01 02 00 FC")
	assert.Equal(t, "  id=1 error=0x00 (OK)", lines[1])
	assert.Contains(t, lines[2], "12 34")
}

func TestMonitorBusConnectionError(t *testing.T) {
	conn := &scriptedConn{err: errors.New("bridge closed"), cancel: func() {}}

	_, err := monitorBus(context.Background(), conn, func(string) {})
	assert.EqualError(t, err, "bridge closed")
}
