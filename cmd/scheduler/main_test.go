package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shift-scheduler/config"
	"github.com/warp/shift-scheduler/scheduler"
)

func writeConfig(t *testing.T, withCredentials bool) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "scheduler.db")
	if withCredentials {
		cfg.Vendor.AppID, cfg.Vendor.AppKey, cfg.Vendor.AppSecret = "app", "key", "secret"
	}
	path := filepath.Join(dir, "scheduler.yaml")
	require.NoError(t, config.Save(path, cfg))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRuns_EmptyHistory(t *testing.T) {
	path := writeConfig(t, true)

	out, err := execute(t, "--config", path, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "STARTED")
}

func TestCacheClear(t *testing.T) {
	path := writeConfig(t, true)

	out, err := execute(t, "--config", path, "--log-level", "error", "cache", "clear")
	require.NoError(t, err)
	assert.Equal(t, "cleared 0 entries\n", out)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestCommands_RequireCredentials(t *testing.T) {
	path := writeConfig(t, false)

	_, err := execute(t, "--config", path, "runs")
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestMissingConfigIsCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.yaml")

	_, err := execute(t, "--config", path, "runs")
	assert.ErrorIs(t, err, config.ErrMissingCredentials)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestPrintRuns(t *testing.T) {
	var out bytes.Buffer
	started := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	err := printRuns(&out, []scheduler.BatchRun{{
		ID: "run-1", Kind: scheduler.BatchPublish, ViewStart: "2024-06-03", ViewEnd: "2024-06-09",
		Total: 3, Succeeded: 2, Failed: 1, StartedAt: started,
	}})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "run-1")
	assert.Contains(t, out.String(), "2024-06-03..2024-06-09")
	assert.Contains(t, out.String(), "2024-06-03T09:00:00Z")
}
