// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"os"
	"time"
)

// reply is one scripted Read result
type reply struct {
	data []byte
	err  error
}

var (
	ackReply     = reply{data: []byte{Ack}}
	nakReply     = reply{data: []byte{Nak}}
	timeoutReply = reply{err: os.ErrDeadlineExceeded}
)

func bytesReply(b ...byte) reply {
	return reply{data: b}
}

// fakeStream is a scripted Port. Reads pop the reply queue; an empty queue
// times out. Bytes that do not fit the read buffer stay queued for the next
// read, like a UART receive buffer. If respond is set it is called on every
// write and its replies are appended to the queue.
type fakeStream struct {
	replies []reply
	respond func(written []byte) []reply

	// sleep for the read timeout when a read times out
	sleepOnTimeout bool

	writes   [][]byte
	flushes  int
	reads    int
	timeout  time.Duration
	timeouts []time.Duration
	bauds    []int
	baudErr  error
	writeErr error

	// events is the ordered log of writes ("w"), timeout and baud changes
	events []string
}

func newFakeStream(replies ...reply) *fakeStream {
	return &fakeStream{replies: replies}
}

func (f *fakeStream) Read(p []byte) (int, error) {
	f.reads++
	if len(f.replies) == 0 {
		if f.sleepOnTimeout {
			time.Sleep(f.timeout)
		}
		return 0, os.ErrDeadlineExceeded
	}

	r := f.replies[0]
	f.replies = f.replies[1:]
	if r.err != nil {
		if r.err == os.ErrDeadlineExceeded && f.sleepOnTimeout {
			time.Sleep(f.timeout)
		}
		return 0, r.err
	}
	n := copy(p, r.data)
	if n < len(r.data) {
		rest := reply{data: r.data[n:]}
		f.replies = append([]reply{rest}, f.replies...)
	}
	return n, nil
}

func (f *fakeStream) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}

	b := append([]byte(nil), p...)
	f.writes = append(f.writes, b)
	f.events = append(f.events, "w")
	if f.respond != nil {
		f.replies = append(f.replies, f.respond(b)...)
	}
	return len(p), nil
}

func (f *fakeStream) Flush() error {
	f.flushes++
	return nil
}

func (f *fakeStream) SetReadTimeout(d time.Duration) error {
	f.timeout = d
	f.timeouts = append(f.timeouts, d)
	f.events = append(f.events, "timeout:"+d.String())
	return nil
}

func (f *fakeStream) SetBaudRate(baud int) error {
	if f.baudErr != nil {
		return f.baudErr
	}
	f.bauds = append(f.bauds, baud)
	f.events = append(f.events, "baud")
	return nil
}
