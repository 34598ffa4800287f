// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/feeflash/pkg/dynamixel"
	"github.com/spf13/cobra"
)

var rebootID int

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Send the reboot command to a servo",
	Long: `Send the reboot instruction to a servo id. The servo restarts into its
bootloader briefly before running the application again; follow up with
"flash --recovery" to catch it.

Exit codes:
  0 - Command sent
  1 - Send failed
  2 - Connection error`,
	RunE: runReboot,
}

func init() {
	rootCmd.AddCommand(rebootCmd)
	rebootCmd.Flags().IntVar(&rebootID, "id", -1, "Servo id (0..253)")
}

func runReboot(cmd *cobra.Command, args []string) error {
	if rebootID < 0 {
		return fmt.Errorf("--id is required")
	}
	id, err := parseID(rebootID)
	if err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	conn, connInfo := mustOpenConnection()
	defer conn.Close()

	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Rebooting device id %d...\n", id)

	if err := dynamixel.Reboot(conn, id); err != nil {
		fmt.Printf("SEND FAILED: %v\n", err)
		os.Exit(1)
	}

	logger.Info().Uint8("id", id).Msg("reboot sent")
	fmt.Printf("Reboot command sent: % X\n", dynamixel.NewReboot(id))
	return nil
}
