// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

// Checksum computes the bootloader CRC-16 (poly 0x1021, init 0) over the
// first 64 bytes of data. Anything past byte 64 is ignored; the bootloader
// checks a fixed 64-byte window, not the whole frame.
//
// Callers must pass at least 64 bytes. A shorter slice is checksummed over
// the bytes present, which the bootloader will never accept.
func Checksum(data []byte) uint16 {
	if len(data) > ChecksumWindow {
		data = data[:ChecksumWindow]
	}

	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			msb := crc&0x8000 != 0
			crc = (crc & 0x7FFF) << 1
			if msb {
				crc ^= crcPolynomial
			}
		}
	}
	return crc
}
