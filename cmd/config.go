// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix   = "FEEFLASH"
	defaultPort = "/dev/ttyACM0"
	defaultBaud = 1_000_000
)

var config = viper.New()

// loadConfig merges flags, FEEFLASH_* environment variables and the optional
// config file, in that order of precedence, back into the flag variables.
func loadConfig(cmd *cobra.Command) error {
	config.SetEnvPrefix(envPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()

	if err := config.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if err := config.BindPFlags(cmd.InheritedFlags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	path := configFile
	if path == "" {
		path = config.GetString("config")
	}
	if path != "" {
		config.SetConfigFile(path)
		if err := config.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return applyConfig(cmd)
}

// applyConfig copies resolved values into flags that were not set on the
// command line, so commands keep reading their package-level variables.
func applyConfig(cmd *cobra.Command) error {
	var firstErr error
	visit := func(f *pflag.Flag) {
		if f.Changed || firstErr != nil || !config.IsSet(f.Name) {
			return
		}
		if err := f.Value.Set(config.GetString(f.Name)); err != nil {
			firstErr = fmt.Errorf("invalid value for %s: %w", f.Name, err)
		}
	}

	cmd.Flags().VisitAll(visit)
	cmd.InheritedFlags().VisitAll(visit)
	return firstErr
}
