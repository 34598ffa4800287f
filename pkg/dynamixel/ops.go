// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dynamixel

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

var (
	// ErrTimeout is returned when a servo does not answer before the read timeout
	ErrTimeout = errors.New("ping timed out")

	// ErrNoResponse is returned when a read completes with zero bytes
	ErrNoResponse = errors.New("no ping response received")
)

// Stream is the byte link used to reach the servo.
// A Read that times out must return an error matching os.ErrDeadlineExceeded.
type Stream interface {
	io.Reader
	io.Writer
	Flush() error
	SetReadTimeout(d time.Duration) error
}

// Ping sends a ping to id and returns whatever the servo sent back.
// The reply is not validated; use ParseStatusPacket to decode it.
func Ping(s Stream, id uint8) ([]byte, error) {
	if err := send(s, NewPing(id)); err != nil {
		return nil, err
	}

	buf := make([]byte, readBufferSize)
	n, err := s.Read(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("%w: id %d", ErrTimeout, id)
		}
		return nil, fmt.Errorf("read ping response: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: id %d", ErrNoResponse, id)
	}

	return buf[:n], nil
}

// Reboot sends the reboot command to id. Servos do not answer it.
func Reboot(s Stream, id uint8) error {
	return send(s, NewReboot(id))
}

// ScanProgress is reported after each pinged id
type ScanProgress struct {
	ID      uint8
	Scanned int
	Total   int
	Found   int
}

type scanConfig struct {
	timeout        time.Duration
	restoreTimeout time.Duration
	progress       func(ScanProgress)
}

// ScanOption configures Scan
type ScanOption func(*scanConfig)

// WithScanTimeout sets the per-id read timeout
func WithScanTimeout(d time.Duration) ScanOption {
	return func(c *scanConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRestoreTimeout sets the read timeout applied when the scan finishes
func WithRestoreTimeout(d time.Duration) ScanOption {
	return func(c *scanConfig) {
		if d > 0 {
			c.restoreTimeout = d
		}
	}
}

// WithScanProgress sets a callback invoked after every pinged id
func WithScanProgress(fn func(ScanProgress)) ScanOption {
	return func(c *scanConfig) {
		c.progress = fn
	}
}

// Scan pings every unicast id from 0 to 253 in ascending order and returns
// the ids that answered with at least one byte. The broadcast id is never
// pinged. An empty result is not an error.
//
// Timeouts and empty reads mean "not present". Any other read or write
// error aborts the scan. The restore timeout is applied before returning
// in either case.
func Scan(s Stream, opts ...ScanOption) (found []uint8, err error) {
	cfg := scanConfig{
		timeout:        DefaultScanTimeout,
		restoreTimeout: DefaultRestoreTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := s.SetReadTimeout(cfg.timeout); err != nil {
		return nil, fmt.Errorf("set scan timeout: %w", err)
	}
	defer func() {
		if rerr := s.SetReadTimeout(cfg.restoreTimeout); rerr != nil && err == nil {
			err = fmt.Errorf("restore timeout: %w", rerr)
		}
	}()

	total := MaxID + 1
	found = []uint8{}

	for i := 0; i <= MaxID; i++ {
		id := uint8(i)

		_, perr := Ping(s, id)
		switch {
		case perr == nil:
			found = append(found, id)
		case errors.Is(perr, ErrTimeout), errors.Is(perr, ErrNoResponse):
		default:
			return found, fmt.Errorf("scan id %d: %w", id, perr)
		}

		if cfg.progress != nil {
			cfg.progress(ScanProgress{
				ID:      id,
				Scanned: i + 1,
				Total:   total,
				Found:   len(found),
			})
		}
	}

	return found, nil
}

func send(s Stream, packet []byte) error {
	if _, err := s.Write(packet); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	if err := s.Flush(); err != nil {
		return fmt.Errorf("flush packet: %w", err)
	}
	return nil
}
