// ABOUTME: Tests for coven-accumulator command helpers
// ABOUTME: Covers config path lookup and log output formatting

package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-accumulator/internal/config"
)

func TestGetConfigPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv("COVEN_ACCUMULATOR_CONFIG", "/etc/coven/acc.toml")
		assert.Equal(t, "/etc/coven/acc.toml", getConfigPath())
	})

	t.Run("xdg", func(t *testing.T) {
		t.Setenv("COVEN_ACCUMULATOR_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		assert.Equal(t, filepath.Join("/xdg", "coven", "accumulator.yaml"), getConfigPath())
	})

	t.Run("home", func(t *testing.T) {
		t.Setenv("COVEN_ACCUMULATOR_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/coven")
		assert.Equal(t, filepath.Join("/home/coven", ".config", "coven", "accumulator.yaml"), getConfigPath())
	})
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "block-1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "shown", record["msg"])
	assert.Equal(t, "block-1", record["key"])
}

func TestNewLogger_Text(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "debug"}, &buf)

	logger.With("component", "ingest").WithGroup("run").Debug("entry evicted", "key", "k")

	out := buf.String()
	assert.Contains(t, out, "DBG entry evicted")
	assert.Contains(t, out, " component=ingest")
	assert.Contains(t, out, " run.key=k")
}
