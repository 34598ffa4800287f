// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout is returned when the bootloader does not answer within the
	// stream's read timeout, or the magic handshake deadline expires.
	ErrTimeout = errors.New("timed out waiting for bootloader")

	// ErrInvalidInput is returned for unusable input such as an empty image
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoDevice is returned when a scan finds no responding servo
	ErrNoDevice = errors.New("no device responded to ping")
)

// UnexpectedResponseError reports a control byte outside the expected set.
// It means the link is out of sync and is never retried.
type UnexpectedResponseError struct {
	Expected []byte
	Actual   byte
}

func (e *UnexpectedResponseError) Error() string {
	want := make([]string, len(e.Expected))
	for i, b := range e.Expected {
		want[i] = fmt.Sprintf("0x%02X", b)
	}
	return fmt.Sprintf("unexpected bootloader response 0x%02X (expected %s)", e.Actual, strings.Join(want, " or "))
}

// RetryExhaustedError reports a frame that kept getting NAKed
type RetryExhaustedError struct {
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("bootloader NAK after %d attempts", e.Attempts)
}

// FramingError reports a read that returned the wrong number of bytes
type FramingError struct {
	Expected int
	Actual   int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("expected %d-byte response from bootloader, got %d", e.Expected, e.Actual)
}

// TransferError wraps the failure that aborted a firmware transfer with the
// frame it happened on.
type TransferError struct {
	Index uint8 // wire index of the failing frame
	Chunk int   // 1-based chunk number
	Total int
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("frame index=%d (chunk %d/%d): %v", e.Index, e.Chunk, e.Total, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// AmbiguousDeviceError is returned when a scan finds more than one servo
// and no id was given.
type AmbiguousDeviceError struct {
	IDs []uint8
}

func (e *AmbiguousDeviceError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("multiple devices found (%s), select one with --id", strings.Join(ids, ", "))
}
