// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFlags struct {
	port     string
	id       int
	wait     time.Duration
	recovery bool
}

func newConfigTestCommand(t *testing.T) (*cobra.Command, *testFlags) {
	t.Helper()
	config = viper.New()
	configFile = ""

	f := &testFlags{}
	c := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	c.Flags().StringVar(&f.port, "port", defaultPort, "")
	c.Flags().IntVar(&f.id, "id", -1, "")
	c.Flags().DurationVar(&f.wait, "max-wait", 0, "")
	c.Flags().BoolVar(&f.recovery, "recovery", false, "")
	c.Flags().StringVar(&configFile, "config", "", "")
	return c, f
}

func TestLoadConfigDefaults(t *testing.T) {
	c, f := newConfigTestCommand(t)
	require.NoError(t, c.ParseFlags(nil))
	require.NoError(t, loadConfig(c))

	assert.Equal(t, defaultPort, f.port)
	assert.Equal(t, -1, f.id)
	assert.False(t, f.recovery)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("FEEFLASH_PORT", "/dev/ttyUSB3")
	t.Setenv("FEEFLASH_ID", "12")
	t.Setenv("FEEFLASH_MAX_WAIT", "30s")
	t.Setenv("FEEFLASH_RECOVERY", "true")

	c, f := newConfigTestCommand(t)
	require.NoError(t, c.ParseFlags(nil))
	require.NoError(t, loadConfig(c))

	assert.Equal(t, "/dev/ttyUSB3", f.port)
	assert.Equal(t, 12, f.id)
	assert.Equal(t, 30*time.Second, f.wait)
	assert.True(t, f.recovery)
}

func TestLoadConfigFlagWinsOverEnvironment(t *testing.T) {
	t.Setenv("FEEFLASH_PORT", "/dev/ttyUSB3")

	c, f := newConfigTestCommand(t)
	require.NoError(t, c.ParseFlags([]string{"--port", "/dev/ttyACM1"}))
	require.NoError(t, loadConfig(c))

	assert.Equal(t, "/dev/ttyACM1", f.port)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeflash.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: /dev/ttyS9\nid: 4\n"), 0o644))

	c, f := newConfigTestCommand(t)
	require.NoError(t, c.ParseFlags([]string{"--config", path, "--id", "7"}))
	require.NoError(t, loadConfig(c))

	assert.Equal(t, "/dev/ttyS9", f.port)
	assert.Equal(t, 7, f.id)
}

func TestLoadConfigMissingFile(t *testing.T) {
	c, _ := newConfigTestCommand(t)
	require.NoError(t, c.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}))
	assert.Error(t, loadConfig(c))
}

func TestLoadConfigInvalidEnvironment(t *testing.T) {
	t.Setenv("FEEFLASH_ID", "twelve")

	c, _ := newConfigTestCommand(t)
	require.NoError(t, c.ParseFlags(nil))
	assert.ErrorContains(t, loadConfig(c), "invalid value for id")
}
