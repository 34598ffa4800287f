// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dynamixel implements the Dynamixel v1 style command packets that
// Feetech servos accept in application mode: ping, reboot and id scanning.
package dynamixel

import "time"

// Packet framing
const (
	HeaderByte = 0xFF
	headerSize = 2 // FF FF

	// id + length + instruction/error + checksum, without header or params
	minPacketSize = headerSize + 4
)

// Instructions
const (
	InstPing   = 0x01
	InstReboot = 0x08
)

// Ids
const (
	MaxID       = 0xFD // highest unicast id (253)
	BroadcastID = 0xFE
)

// Status error bits
const (
	ErrBitVoltage     = 0x01
	ErrBitAngle       = 0x02
	ErrBitOverheat    = 0x04
	ErrBitRange       = 0x08
	ErrBitChecksum    = 0x10
	ErrBitOverload    = 0x20
	ErrBitInstruction = 0x40
)

// Timeouts
const (
	DefaultScanTimeout    = 30 * time.Millisecond
	DefaultRestoreTimeout = 10 * time.Second

	// replies larger than this are truncated
	readBufferSize = 1024
)
