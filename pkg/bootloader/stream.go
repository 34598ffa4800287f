// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"errors"
	"io"
	"os"
	"time"
)

// Stream is an open byte link to the bootloader.
//
// A Read that hits the read timeout must return an error matching
// os.ErrDeadlineExceeded.
type Stream interface {
	io.Reader
	io.Writer
	Flush() error
	SetReadTimeout(d time.Duration) error
}

// Port is a Stream whose baud rate can be changed while open
type Port interface {
	Stream
	SetBaudRate(baud int) error
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, ErrTimeout)
}
