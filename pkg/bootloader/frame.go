// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import "fmt"

// Frame is one bootloader transfer unit carrying 64 bytes of firmware
type Frame struct {
	Index    uint8
	Reserved uint8 // opaque, always 0 on the wire so far
	Payload  [PayloadSize]byte
	Last     bool
}

// NewFrame builds a frame from a firmware chunk of at most 64 bytes.
// Short chunks are padded with 0xFF.
func NewFrame(index, reserved uint8, chunk []byte, last bool) (Frame, error) {
	if len(chunk) > PayloadSize {
		return Frame{}, fmt.Errorf("%w: chunk is %d bytes (max %d)", ErrInvalidInput, len(chunk), PayloadSize)
	}

	f := Frame{
		Index:    index,
		Reserved: reserved,
		Last:     last,
	}
	n := copy(f.Payload[:], chunk)
	for i := n; i < PayloadSize; i++ {
		f.Payload[i] = PadByte
	}
	return f, nil
}

// Encode returns the 70-byte wire form:
//
//	[0]      index
//	[1]      ^index
//	[2]      reserved
//	[3:67]   payload
//	[67:69]  checksum over [0:64], big-endian
//	[69]     stop marker (4 = last frame, 6 = more follow)
//
// The checksum window ends three bytes short of the payload end. The
// bootloader computes it the same way.
func (f Frame) Encode() [FrameSize]byte {
	var out [FrameSize]byte

	out[0] = f.Index
	out[1] = ^f.Index
	out[2] = f.Reserved
	copy(out[PayloadOffset:PayloadOffset+PayloadSize], f.Payload[:])

	crc := Checksum(out[:ChecksumWindow])
	out[crcHighOffset] = byte(crc >> 8)
	out[crcLowOffset] = byte(crc & 0xFF)

	if f.Last {
		out[stopOffset] = StopLast
	} else {
		out[stopOffset] = StopMore
	}

	return out
}

// String returns a short description used in logs
func (f Frame) String() string {
	return fmt.Sprintf("frame index=%d last=%v", f.Index, f.Last)
}
