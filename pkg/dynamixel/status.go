// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dynamixel

import "fmt"

// StatusPacket is a decoded reply from a servo
type StatusPacket struct {
	ID     uint8
	Error  uint8
	Params []byte
}

// StatusError reports a reply that is not a well-formed status packet
type StatusError struct {
	Message string
	Raw     []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invalid status packet: %s (% X)", e.Message, e.Raw)
}

// ParseStatusPacket decodes FF FF id len err params... chk and verifies the
// checksum. Bytes after the packet are ignored.
func ParseStatusPacket(b []byte) (*StatusPacket, error) {
	if len(b) < minPacketSize {
		return nil, &StatusError{Message: fmt.Sprintf("too short (%d bytes)", len(b)), Raw: b}
	}
	if b[0] != HeaderByte || b[1] != HeaderByte {
		return nil, &StatusError{Message: "missing FF FF header", Raw: b}
	}

	length := int(b[3])
	if length < 2 {
		return nil, &StatusError{Message: fmt.Sprintf("length field %d below minimum", length), Raw: b}
	}

	end := headerSize + 2 + length // header, id, len, then len bytes
	if len(b) < end {
		return nil, &StatusError{Message: fmt.Sprintf("truncated: need %d bytes, have %d", end, len(b)), Raw: b}
	}

	want := checksum(b[headerSize : end-1])
	if got := b[end-1]; got != want {
		return nil, &StatusError{Message: fmt.Sprintf("checksum 0x%02X, expected 0x%02X", got, want), Raw: b}
	}

	params := make([]byte, length-2)
	copy(params, b[5:end-1])

	return &StatusPacket{
		ID:     b[2],
		Error:  b[4],
		Params: params,
	}, nil
}

// HasError reports whether any error bit is set
func (s *StatusPacket) HasError() bool {
	return s.Error != 0
}
