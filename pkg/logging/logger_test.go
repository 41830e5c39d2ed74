// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestToSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.toSlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
}

func TestDefaultNeverNil(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	require.NotNil(t, logger.Logger)
	assert.NoError(t, logger.Close())
}

func TestFileLoggingWritesJSON(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "prompt_eval",
		Quiet:   true,
	})
	require.NoError(t, err)

	logger.Info("run created", "run_id", "r-123")
	require.NoError(t, logger.Close())

	expected := filepath.Join(dir, "prompt_eval_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(expected)
	require.NoError(t, err)

	var entry map[string]any
	line := strings.TrimSpace(string(data))
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "run created", entry["msg"])
	assert.Equal(t, "r-123", entry["run_id"])
	assert.Equal(t, "prompt_eval", entry["service"])
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "filter_test",
		Quiet:   true,
	})
	require.NoError(t, err)

	logger.Info("should be dropped")
	logger.Warn("should survive")
	require.NoError(t, logger.Close())

	path := filepath.Join(dir, "filter_test_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be dropped")
	assert.Contains(t, string(data), "should survive")
}

func TestCloseIdempotent(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Service: "close_test", Quiet: true})
	require.NoError(t, err)
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}
