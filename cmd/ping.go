// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/feeflash/pkg/bootloader"
	"github.com/Thermoquad/feeflash/pkg/dynamixel"
	"github.com/spf13/cobra"
)

var (
	pingID      int
	pingTimeout time.Duration
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping a servo and decode its status reply",
	Long: `Send ping packets to a servo id and print the raw reply and decoded status.

This is useful for verifying:
  - The servo is powered and wired
  - The baud rate matches
  - The id is correct before flashing

Exit codes:
  0 - All pings answered
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingID, "id", -1, "Servo id (0..253)")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", bootloader.DefaultPingTimeout, "Timeout for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 1, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingID < 0 {
		return fmt.Errorf("--id is required")
	}
	id, err := parseID(pingID)
	if err != nil {
		return err
	}
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	if err := requirePositive("timeout", pingTimeout); err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	conn, connInfo := mustOpenConnection()
	defer conn.Close()

	if err := conn.SetReadTimeout(pingTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Feeflash - Servo Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v per ping\n\n", pingTimeout)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d id %d: ", i, pingCount, id)

		startTime := time.Now()
		resp, err := dynamixel.Ping(conn, id)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			rtt := time.Since(startTime)
			fmt.Printf("%d bytes, rtt=%v\n", len(resp), rtt.Round(time.Millisecond))
			fmt.Printf("  Response bytes: % X\n", resp)
			fmt.Printf("  %s\n", describeStatus(resp))
			successCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

// describeStatus decodes a ping reply, or explains why it could not
func describeStatus(resp []byte) string {
	status, err := dynamixel.ParseStatusPacket(resp)
	if err != nil {
		return fmt.Sprintf("Status: undecoded (%v)", err)
	}
	return "Status: " + dynamixel.FormatStatus(status)
}
