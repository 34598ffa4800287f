// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"context"
	"fmt"
	"time"
)

// Client talks to a servo that is already in (or being coaxed into) the
// bootloader. It owns the stream for the duration of one session and is not
// safe for concurrent use.
type Client struct {
	stream Stream
	config Config

	// NAKs seen during the current transfer
	retries int
}

// NewClient creates a Client on an open stream
func NewClient(stream Stream, opts ...Option) *Client {
	if stream == nil {
		panic("bootloader: stream cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		stream: stream,
		config: cfg,
	}
}

// SendFrame writes one encoded frame and waits for its ACK.
//
// A NAK resends the identical frame until MaxRetries resends have been used,
// then fails with *RetryExhaustedError. Any other byte fails immediately with
// *UnexpectedResponseError. A reply of zero or several bytes fails with
// *FramingError, so a stray byte is never taken as the next frame's ACK. A
// read timeout returns ErrTimeout and is not retried here.
func (c *Client) SendFrame(frame [FrameSize]byte) error {
	resp := make([]byte, ackBufferSize)

	for attempt := 1; ; attempt++ {
		if err := c.write(frame[:]); err != nil {
			return err
		}

		n, err := c.read(resp)
		if err != nil {
			return err
		}
		if n != 1 {
			return &FramingError{Expected: 1, Actual: n}
		}

		switch resp[0] {
		case Ack:
			return nil
		case Nak:
			c.retries++
			if attempt > c.config.MaxRetries {
				return &RetryExhaustedError{Attempts: attempt}
			}
			c.config.Logger.Warn().
				Uint8("index", frame[0]).
				Int("attempt", attempt).
				Int("max_retries", c.config.MaxRetries).
				Msg("bootloader NAK, resending frame")
		default:
			return &UnexpectedResponseError{Expected: []byte{Ack, Nak}, Actual: resp[0]}
		}
	}
}

// ExpectAck reads a reply that must be exactly one ACK byte
func (c *Client) ExpectAck() error {
	buf := make([]byte, ackBufferSize)

	n, err := c.read(buf)
	if err != nil {
		return err
	}
	if n != 1 {
		return &FramingError{Expected: 1, Actual: n}
	}
	if buf[0] != Ack {
		return &UnexpectedResponseError{Expected: []byte{Ack}, Actual: buf[0]}
	}
	return nil
}

// SendMagic writes the magic sequence once and requires a single ACK.
// This is the normal entry path right after a reboot command.
func (c *Client) SendMagic() error {
	c.config.Logger.Debug().Str("magic", string(Magic)).Msg("sending magic sequence")

	if err := c.write(Magic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := c.ExpectAck(); err != nil {
		return fmt.Errorf("magic ack: %w", err)
	}

	c.config.Logger.Info().Msg("bootloader acknowledged magic")
	return nil
}

// Init sends the init byte and waits for the ACK that opens the transfer
func (c *Client) Init() error {
	if err := c.write([]byte{InitByte}); err != nil {
		return fmt.Errorf("write init byte: %w", err)
	}
	if err := c.ExpectAck(); err != nil {
		return fmt.Errorf("init ack: %w", err)
	}

	c.config.Logger.Info().Msg("bootloader acknowledged init")
	return nil
}

// WaitForMagicAck keeps sending the magic sequence until the bootloader
// answers with ACK. It is used in recovery, while the servo is being power
// cycled by hand.
//
// The read timeout is set to interval and is the only wait between sends.
// Each timeout emits a PhaseHandshake progress event. Bytes other than ACK are
// ignored. maxWait of zero keeps going until ctx is cancelled; otherwise
// ErrTimeout is returned once maxWait has elapsed. Both are checked once per
// iteration.
//
// The read timeout is left at interval on return.
func (c *Client) WaitForMagicAck(ctx context.Context, interval, maxWait time.Duration) error {
	if err := c.stream.SetReadTimeout(interval); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}

	start := time.Now()
	buf := make([]byte, 1)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.write(Magic); err != nil {
			return fmt.Errorf("write magic: %w", err)
		}

		n, err := c.stream.Read(buf)
		switch {
		case err == nil:
			if n == 1 && buf[0] == Ack {
				c.config.Logger.Info().
					Int("attempts", attempt).
					Dur("elapsed", time.Since(start)).
					Msg("bootloader ACK received")
				return nil
			}
			if n == 1 {
				c.config.Logger.Debug().Uint8("byte", buf[0]).Msg("ignoring non-ACK byte during handshake")
			}
		case isTimeout(err):
			c.report(Progress{
				Phase:   PhaseHandshake,
				Attempt: attempt,
				Elapsed: time.Since(start),
			})
		default:
			return fmt.Errorf("read magic ack: %w", err)
		}

		if maxWait > 0 && time.Since(start) >= maxWait {
			return fmt.Errorf("%w: no magic ACK within %s", ErrTimeout, maxWait)
		}
	}
}

// write sends b and flushes it out of the host
func (c *Client) write(b []byte) error {
	if _, err := c.stream.Write(b); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := c.stream.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// read performs one read and maps stream timeouts to ErrTimeout
func (c *Client) read(buf []byte) (int, error) {
	n, err := c.stream.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return n, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return n, fmt.Errorf("read: %w", err)
	}
	return n, nil
}

func (c *Client) report(p Progress) {
	if c.config.Progress != nil {
		c.config.Progress(p)
	}
}
