package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 300, cfg.DefaultTimeoutSeconds)
	assert.Equal(t, []string{"logs", "cache", "temp", "output"}, cfg.SafeDirs)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoadProjectConfig(t *testing.T) {
	dir := t.TempDir()
	content := `{
		// project overrides
		"defaultTimeoutSeconds": 60,
		"logLevel": "DEBUG",
		"safeCommands": ["make"]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sysgate.jsonc"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.DefaultTimeoutSeconds)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Contains(t, cfg.SafeCommands, "make")
	assert.Equal(t, dir, cfg.Workspace)
}

func TestLoadEnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SYSGATE_TEST_WS", "/srv/work")
	content := `{"workspace": "{env:SYSGATE_TEST_WS}"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sysgate.json"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/srv/work", cfg.Workspace)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SYSGATE_LOG_LEVEL", "ERROR")
	t.Setenv("SYSGATE_TIMEOUT", "42")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.LogLevel)
	assert.Equal(t, 42, cfg.DefaultTimeoutSeconds)
}

func TestEnvOverridesBeatFileConfig(t *testing.T) {
	dir := t.TempDir()
	content := `{"logLevel": "DEBUG"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sysgate.json"), []byte(content), 0644))
	t.Setenv("SYSGATE_LOG_LEVEL", "WARN")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.LogLevel)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "sysgate.json")

	cfg := Default()
	cfg.Workspace = "/tmp/ws"
	require.NoError(t, Save(cfg, path))

	loaded := Default()
	require.NoError(t, loadConfigFile(path, loaded, dir))
	assert.Equal(t, "/tmp/ws", loaded.Workspace)
}

func TestGetPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	p := GetPaths()
	assert.Equal(t, filepath.Join("/custom/data", "sysgate"), p.Data)
	assert.Equal(t, filepath.Join("/custom/data", "sysgate", "permissions.json"), p.PermissionsPath())
}
