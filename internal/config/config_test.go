package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CCSWITCH_DIR", "CCSWITCH_CLAUDE_CONFIG", "CCSWITCH_CLAUDE_CREDENTIALS",
		"CCSWITCH_CLAUDE_LOCK_DIR", "CCSWITCH_KEYCHAIN_SERVICE",
		"CCSWITCH_LOG_LEVEL", "CCSWITCH_LOG_FORMAT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaultsWithoutFile(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Contains(t, cfg.DataDir, ".ccswitch")
	assert.Contains(t, cfg.Claude.ConfigPath, ".claude.json")
	assert.True(t, cfg.Switch.Wait)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadTOML(t *testing.T) {
	clearEnvOverrides(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
data_dir = "/srv/ccswitch"

[claude]
config_path = "/srv/claude/config.json"
lock_dir = "/srv/claude/ide"

[switch]
wait = false

[logging]
level = "debug"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/ccswitch", cfg.DataDir)
	assert.Equal(t, "/srv/claude/config.json", cfg.Claude.ConfigPath)
	assert.Equal(t, "/srv/claude/ide", cfg.Claude.LockDir)
	assert.False(t, cfg.Switch.Wait)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadYAMLKeepsUnsetDefaults(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "logging:\n  level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	// Untouched sections keep their defaults.
	assert.True(t, cfg.Switch.Wait)
	assert.Contains(t, cfg.DataDir, ".ccswitch")
}

func TestLoadJSON(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"claude": {"keychain_service": "Claude Code-credentials-test"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Claude Code-credentials-test", cfg.Claude.KeychainService)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	clearEnvOverrides(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`data_dir = "/from/file"`), 0o600))

	t.Setenv("CCSWITCH_DIR", "/from/env")
	t.Setenv("CCSWITCH_LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.DataDir)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestDiscoverPrefersTOML(t *testing.T) {
	clearEnvOverrides(t)
	dataDir := t.TempDir()
	t.Setenv("CCSWITCH_DIR", dataDir)

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.json"), []byte(`{"logging":{"level":"error"}}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.toml"), []byte("[logging]\nlevel = \"debug\"\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsBadLevel(t *testing.T) {
	clearEnvOverrides(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	clearEnvOverrides(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
