// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dynamixel

import (
	"fmt"
	"strings"
)

var errorBitNames = []struct {
	bit  uint8
	name string
}{
	{ErrBitVoltage, "VOLTAGE"},
	{ErrBitAngle, "ANGLE"},
	{ErrBitOverheat, "OVERHEAT"},
	{ErrBitRange, "RANGE"},
	{ErrBitChecksum, "CHECKSUM"},
	{ErrBitOverload, "OVERLOAD"},
	{ErrBitInstruction, "INSTRUCTION"},
}

// FormatStatus formats a status packet into a human-readable string
func FormatStatus(s *StatusPacket) string {
	result := fmt.Sprintf("id=%d error=0x%02X (%s)", s.ID, s.Error, FormatErrorFlags(s.Error))
	if len(s.Params) > 0 {
		result += fmt.Sprintf(" params=[% X]", s.Params)
	}
	return result
}

// FormatErrorFlags names the set error bits, or "OK" if none are set
func FormatErrorFlags(flags uint8) string {
	if flags == 0 {
		return "OK"
	}

	var names []string
	for _, e := range errorBitNames {
		if flags&e.bit != 0 {
			names = append(names, e.name)
		}
	}
	if rest := flags &^ 0x7F; rest != 0 {
		names = append(names, fmt.Sprintf("UNKNOWN(0x%02X)", rest))
	}
	return strings.Join(names, "|")
}
