// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bootloader implements the host side of the Feetech servo bootloader
// protocol: 70-byte firmware frames acknowledged with single ACK/NAK bytes,
// the "1fBVA" magic handshake, and the full flash session that reboots a servo
// into the bootloader and pushes a firmware image.
//
// All operations are synchronous and strictly half-duplex: every write is
// followed by a blocking read bounded by the stream's read timeout.
package bootloader

import "time"

// Control bytes
const (
	Ack      = 0x06
	Nak      = 0x15
	InitByte = 0x01
)

// Frame layout
const (
	FrameSize      = 70
	PayloadSize    = 64
	ChecksumWindow = 64
	PayloadOffset  = 3
	crcHighOffset  = 67
	crcLowOffset   = 68
	stopOffset     = 69
	PadByte        = 0xFF
	FirstIndex     = 1
)

// Stop markers
const (
	StopMore = 0x06
	StopLast = 0x04
)

// CRC-16 configuration. The bootloader uses a zero initial value.
const (
	crcPolynomial = 0x1021
	crcInitial    = 0x0000
)

// Magic is sent to enter (or recover into) the bootloader.
var Magic = []byte("1fBVA")

// Defaults
const (
	DefaultMaxRetries     = 5
	DefaultBootloaderBaud = 500_000
	DefaultNormalTimeout  = 10 * time.Second
	DefaultPingTimeout    = 100 * time.Millisecond
	DefaultScanTimeout    = 30 * time.Millisecond
	DefaultMagicInterval  = 100 * time.Millisecond
	DefaultRebootDelay    = 400 * time.Millisecond

	// ackBufferSize lets single-byte replies notice trailing bytes
	ackBufferSize = 64
)
