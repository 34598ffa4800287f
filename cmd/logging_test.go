// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggingInvalidLevel(t *testing.T) {
	assert.Error(t, setupLogging("loud", ""))
}

func TestSetupLoggingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeflash.log")
	require.NoError(t, setupLogging("info", path))

	logger.Debug().Msg("hidden")
	logger.Info().Int("frames", 3).Msg("transfer complete")
	closeLogging()
	logger = zerolog.Nop()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}

	require.Len(t, lines, 1)
	assert.Equal(t, "transfer complete", lines[0]["message"])
	assert.Equal(t, float64(3), lines[0]["frames"])
	assert.NotEmpty(t, lines[0]["session"])
}
