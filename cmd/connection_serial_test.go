// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type fakeRead struct {
	data []byte
	err  error
}

// fakeSerialPort records calls made by SerialConnection. Methods it does not
// override panic through the nil embedded interface.
type fakeSerialPort struct {
	serial.Port

	reads   []fakeRead
	calls   []string
	modes   []serial.Mode
	timeout time.Duration
	written []byte

	modeErr  error
	resetErr error
}

func (f *fakeSerialPort) Read(p []byte) (int, error) {
	f.calls = append(f.calls, "Read")
	if len(f.reads) == 0 {
		return 0, nil
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	return copy(p, r.data), r.err
}

func (f *fakeSerialPort) Write(p []byte) (int, error) {
	f.calls = append(f.calls, "Write")
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeSerialPort) Drain() error {
	f.calls = append(f.calls, "Drain")
	return nil
}

func (f *fakeSerialPort) SetReadTimeout(d time.Duration) error {
	f.calls = append(f.calls, "SetReadTimeout")
	f.timeout = d
	return nil
}

func (f *fakeSerialPort) SetMode(m *serial.Mode) error {
	f.calls = append(f.calls, "SetMode")
	if f.modeErr != nil {
		return f.modeErr
	}
	f.modes = append(f.modes, *m)
	return nil
}

func (f *fakeSerialPort) ResetInputBuffer() error {
	f.calls = append(f.calls, "ResetInputBuffer")
	return f.resetErr
}

func (f *fakeSerialPort) Close() error {
	f.calls = append(f.calls, "Close")
	return nil
}

func newTestSerialConnection(port *fakeSerialPort) *SerialConnection {
	return &SerialConnection{port: port, mode: &serial.Mode{BaudRate: 1000000}}
}

func TestSerialConnectionReadTimeout(t *testing.T) {
	s := newTestSerialConnection(&fakeSerialPort{})

	n, err := s.Read(make([]byte, 8))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestSerialConnectionReadData(t *testing.T) {
	port := &fakeSerialPort{reads: []fakeRead{{data: []byte{0x06}}}}
	s := newTestSerialConnection(port)

	buf := make([]byte, 8)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x06}, buf[:n])
}

func TestSerialConnectionReadEmptyBuffer(t *testing.T) {
	s := newTestSerialConnection(&fakeSerialPort{})

	n, err := s.Read(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSerialConnectionReadError(t *testing.T) {
	portErr := &serial.PortError{}
	port := &fakeSerialPort{reads: []fakeRead{{err: portErr}}}
	s := newTestSerialConnection(port)

	_, err := s.Read(make([]byte, 8))
	assert.ErrorIs(t, err, portErr)
	assert.NotErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestSerialConnectionWriteFlush(t *testing.T) {
	port := &fakeSerialPort{}
	s := newTestSerialConnection(port)

	n, err := s.Write([]byte("1fBVA"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, s.Flush())
	require.NoError(t, s.SetReadTimeout(30*time.Millisecond))
	require.NoError(t, s.Close())

	assert.Equal(t, []byte("1fBVA"), port.written)
	assert.Equal(t, 30*time.Millisecond, port.timeout)
	assert.Equal(t, []string{"Write", "Drain", "SetReadTimeout", "Close"}, port.calls)
}

func TestSerialConnectionSetBaudRate(t *testing.T) {
	port := &fakeSerialPort{}
	s := newTestSerialConnection(port)

	require.NoError(t, s.SetBaudRate(500000))

	assert.Equal(t, []string{"SetMode", "ResetInputBuffer"}, port.calls)
	require.Len(t, port.modes, 1)
	assert.Equal(t, 500000, port.modes[0].BaudRate)
	assert.Equal(t, 500000, s.mode.BaudRate)
}

func TestSerialConnectionSetBaudRateResetFails(t *testing.T) {
	port := &fakeSerialPort{resetErr: errors.New("flush failed")}
	s := newTestSerialConnection(port)

	assert.ErrorContains(t, s.SetBaudRate(500000), "flush failed")
	// the port did switch, so the stored mode follows it
	assert.Equal(t, 500000, s.mode.BaudRate)
}

func TestSerialConnectionSetBaudRateRejected(t *testing.T) {
	port := &fakeSerialPort{modeErr: errors.New("invalid baud")}
	s := newTestSerialConnection(port)

	assert.ErrorContains(t, s.SetBaudRate(123), "invalid baud")
	assert.Equal(t, 1000000, s.mode.BaudRate)
	assert.Equal(t, []string{"SetMode"}, port.calls)
}
