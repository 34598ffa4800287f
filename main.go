// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Feeflash - Feetech Servo Bootloader Client
//
// A CLI tool for flashing firmware to Feetech servos through their
// serial bootloader.

package main

import (
	"os"

	"github.com/Thermoquad/feeflash/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
