// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/parameter"
	"github.com/Thermoquad/pusgate/pkg/pus/policy"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pusgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultMatchesPolicy(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	got, err := cfg.BuildPolicy()
	require.NoError(t, err)
	want := policy.Default()
	assert.Equal(t, want.TcPusVersion, got.TcPusVersion)
	assert.Equal(t, want.DefaultAckFlags, got.DefaultAckFlags)
	assert.Equal(t, want.Time, got.Time)
	assert.Equal(t, want.Housekeeping, got.Housekeeping)
	assert.Equal(t, want.EventReporting, got.EventReporting)
	assert.Equal(t, uint16(pus.IdleAPID), cfg.Process.APID)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
process:
  apid: 0x42
  services: [3, 17]
  housekeepingTick: 500ms
policy:
  ackFlags: [acceptance, completion]
  tmHasMsgCounter: true
  time:
    basicLength: 4
    fractionLength: 0
    preamble: false
    epoch: "2000-01-01T12:00:00Z"
  widths:
    failureCode: 2
    structureId: 1
link:
  port: /dev/ttyUSB0
log:
  level: debug
archive:
  otherHeaderSize: 8
  compress: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x42), cfg.Process.APID)
	assert.Equal(t, 115200, cfg.Link.Baud, "defaults survive")
	assert.Equal(t, 8, cfg.Archive.OtherHeaderSize)

	types, err := cfg.ServiceTypes()
	require.NoError(t, err)
	assert.Equal(t, []uint8{3, 17}, types)

	p, err := cfg.BuildPolicy()
	require.NoError(t, err)
	assert.Equal(t, pus.AckAcceptance|pus.AckCompletion, p.DefaultAckFlags)
	assert.True(t, p.TmHasMsgCounter)
	assert.True(t, p.HasPEC)
	assert.Equal(t, 500*time.Millisecond, p.Housekeeping.IntervalUnit)
	assert.Equal(t, parameter.U16, p.RequestVerification.FailureCode)
	assert.Equal(t, parameter.U8, p.Housekeeping.StructureID)
	assert.Equal(t, parameter.U16, p.Housekeeping.Count)
	assert.Equal(t, time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), p.Time.Epoch)
	assert.False(t, p.Time.Preamble)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "process:\n  apidd: 1\n", "apidd"},
		{"apid too large", "process:\n  apid: 4096\n", "process.apid"},
		{"unsupported service", "process:\n  services: [2]\n", "unsupported service 2"},
		{"zero tick", "process:\n  housekeepingTick: 0s\n", "housekeepingTick"},
		{"bad ack flag", "policy:\n  ackFlags: [sometimes]\n", "sometimes"},
		{"bad width", "policy:\n  widths:\n    eventCount: 3\n", "event_reporting.count"},
		{"bad time", "policy:\n  time:\n    basicLength: 9\n", "invalid time format"},
		{"bad epoch", "policy:\n  time:\n    epoch: yesterday\n", "policy.time.epoch"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"negative header", "archive:\n  otherHeaderSize: -1\n", "otherHeaderSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSetupLogging(t *testing.T) {
	var stdout bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "pusgate.log")
	logger, closer, err := SetupLogging(LogConfig{Level: "warn", File: file, MaxSizeMB: 1}, &stdout)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("link lost", "port", "/dev/ttyUSB0")
	require.NoError(t, closer.Close())

	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "link lost")

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, stdout.String(), string(content))

	_, _, err = SetupLogging(LogConfig{Level: "chatty"}, &stdout)
	require.Error(t, err)
}
