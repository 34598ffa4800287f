// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/feeflash/pkg/bootloader"
	"github.com/Thermoquad/feeflash/pkg/dynamixel"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var scanTimeout time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the bus for responding servos",
	Long: `Ping every unicast servo id (0..253) and list the ones that answer.

The broadcast id 254 is never pinged. Any non-empty reply counts as a
responding servo.

Examples:
  feeflash scan --port /dev/ttyACM0
  feeflash scan --baud 115200 --scan-timeout 50ms

Exit codes:
  0 - At least one servo found
  1 - No servo found or scan failed
  2 - Connection error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", dynamixel.DefaultScanTimeout, "Read timeout per id")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := requirePositive("scan-timeout", scanTimeout); err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	conn, connInfo := mustOpenConnection()
	defer conn.Close()

	fmt.Printf("Feeflash - Bus Scan\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v per id\n\n", scanTimeout)

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	start := time.Now()

	found, err := dynamixel.Scan(conn,
		dynamixel.WithScanTimeout(scanTimeout),
		dynamixel.WithRestoreTimeout(bootloader.DefaultNormalTimeout),
		dynamixel.WithScanProgress(func(p dynamixel.ScanProgress) {
			if isTTY || p.Scanned == p.Total {
				fmt.Printf("\x1b[2K\rScanning IDs (%3d/%3d) found: %d", p.Scanned, p.Total, p.Found)
			}
		}),
	)
	fmt.Println()
	if err != nil {
		fmt.Printf("SCAN FAILED: %v\n", err)
		logger.Error().Err(err).Msg("scan failed")
		os.Exit(1)
	}

	logger.Info().Int("found", len(found)).Dur("elapsed", time.Since(start)).Msg("scan complete")

	// Summary
	fmt.Printf("\n--- Scan summary ---\n")
	fmt.Printf("Servos found: %d (%v)\n", len(found), time.Since(start).Round(time.Millisecond))

	if len(found) == 0 {
		fmt.Printf("No servos responded. Check wiring, power and baud rate.\n")
		os.Exit(1)
	}

	fmt.Printf("Responding IDs: %s\n", formatIDs(found))
	return nil
}

// formatIDs renders ids as a comma separated list
func formatIDs(ids []uint8) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
