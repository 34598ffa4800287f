// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Logging and config flags
	logLevel   string
	logFile    string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "feeflash",
	Short: "Feetech servo bootloader client",
	Long: `Feeflash - A CLI tool for flashing firmware to Feetech servos over their
bootloader.

The normal flow pings (or scans for) the servo, reboots it into the
bootloader, switches to the bootloader baud rate and streams the firmware in
64-byte frames. Recovery mode skips the reboot and keeps sending the magic
sequence while the servo is power cycled by hand.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 1000000]
  WebSocket: --url ws://host/path [--username user]

Every flag can also be set from the environment with the FEEFLASH_ prefix
(FEEFLASH_PORT, FEEFLASH_ID, FEEFLASH_RECOVERY, ...) or from a config file
passed with --config.

For WebSocket authentication, the password is read from the FEEFLASH_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", defaultPort, "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", defaultBaud, "Initial baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, toml or json)")
}

// setup loads configuration and logging before any subcommand runs
func setup(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	return setupLogging(logLevel, logFile)
}

// Execute runs the root command
func Execute() error {
	defer closeLogging()
	return rootCmd.Execute()
}
