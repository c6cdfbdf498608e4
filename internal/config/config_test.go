package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpterm/mcpterm/internal/types"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncInterval, cfg.Interval())
	assert.Equal(t, types.ScopeHybrid, cfg.Mode())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &Config{
		URL:          "libsql://example.turso.io",
		Token:        "tok",
		SyncInterval: 60,
		HistoryMode:  "user",
		MachineID:    "abc123",
	}
	require.NoError(t, in.Save(dir))

	// Owner-only permissions on the persisted secret.
	info, err := os.Stat(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, in.URL, out.URL)
	assert.Equal(t, in.Token, out.Token)
	assert.Equal(t, 60*time.Second, out.Interval())
	assert.Equal(t, types.ScopeUser, out.Mode())
	assert.NotEmpty(t, out.CreatedAt)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, (&Config{URL: "libsql://file.turso.io", Token: "file-tok"}).Save(dir))

	t.Setenv("REMOTE_DB_URL", "libsql://env.turso.io")
	t.Setenv("REMOTE_DB_TOKEN", "env-tok")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "libsql://env.turso.io", cfg.URL)
	assert.Equal(t, "env-tok", cfg.Token)
}

func TestInvalidModeFallsBackToHybrid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, (&Config{HistoryMode: "bogus"}).Save(dir))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, types.ScopeHybrid, cfg.Mode())
}
