// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}

	if len(ports) == 0 {
		fmt.Printf("No serial ports found.\n")
		return nil
	}

	for _, p := range ports {
		fmt.Println(formatPort(p))
	}
	return nil
}

// formatPort renders one port with its USB identity when known
func formatPort(p *enumerator.PortDetails) string {
	if !p.IsUSB {
		return p.Name
	}

	line := fmt.Sprintf("%s  USB %s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		line += "  " + p.Product
	}
	if p.SerialNumber != "" {
		line += "  serial=" + p.SerialNumber
	}
	return line
}
