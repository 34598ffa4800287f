// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dynamixel

// EncodePacket builds a command packet:
//
//	FF FF id len instr params... chk
//
// len counts the instruction, params and checksum (len(params)+2). chk is the
// inverted low byte of the sum of id through the last param.
func EncodePacket(id, instruction uint8, params []byte) []byte {
	length := uint8(len(params)) + 2

	packet := make([]byte, 0, minPacketSize+len(params))
	packet = append(packet, HeaderByte, HeaderByte, id, length, instruction)
	packet = append(packet, params...)

	return append(packet, checksum(packet[headerSize:]))
}

// NewPing builds a ping for id
func NewPing(id uint8) []byte {
	return EncodePacket(id, InstPing, nil)
}

// NewReboot builds a reboot command for id
func NewReboot(id uint8) []byte {
	return EncodePacket(id, InstReboot, nil)
}

func checksum(b []byte) uint8 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return uint8(^sum & 0xFF)
}
