package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stellar.yaml")
	writeFile(t, path, `
general:
  id: node-a
  actionTimeout: 2s
  filteredParams: [password]
logger:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File())
	assert.Equal(t, "node-a", cfg.General.ID)
	assert.Equal(t, 2*time.Second, cfg.General.ActionTimeout)
	assert.Equal(t, 5, cfg.General.SimultaneousActions)
	assert.Equal(t, []string{"password"}, cfg.General.FilteredParams)
	assert.Equal(t, filepath.Join(dir, "modules"), cfg.General.ModulesDir)
	assert.Equal(t, filepath.Join(dir, "temp", "pids"), cfg.General.Paths.Pid)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 100, cfg.Logger.MaxLogStringLength)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.NotNil(t, cfg.Errors)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "absent.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File())
	assert.Equal(t, 30*time.Second, cfg.General.ActionTimeout)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "", cfg.File())
	assert.Equal(t, ":8080", cfg.Web.Address)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stellar.yaml")
	writeFile(t, path, `
cache:
  driver: memcached
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Driver")
}

func TestLoadRequiresRedisAddressWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stellar.yaml")
	writeFile(t, path, `
redis:
  enabled: true
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWatchNotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stellar.yaml")
	writeFile(t, path, "general: {}\n")

	changed := make(chan struct{}, 8)
	w, err := Watch(path, func() { changed <- struct{}{} })
	require.NoError(t, err)
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "other.yaml"), "x: 1\n")
	writeFile(t, path, "general:\n  id: changed\n")

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
