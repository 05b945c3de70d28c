package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "geovec", cfg.AppName)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.True(t, cfg.Storage.Mmap)
	assert.Equal(t, 30*time.Second, cfg.Storage.LockTimeout)
	assert.Equal(t, "ISO-8859-1", cfg.Storage.Charset)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geovec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  data_dir: /srv/geo
  mmap: false
  id_field: gid
  lock_timeout: 2s
log:
  level: debug
`), 0o644))
	t.Setenv("GEOVEC_SERVER_LISTEN", ":9999")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/geo", cfg.Storage.DataDir)
	assert.False(t, cfg.Storage.Mmap)
	assert.Equal(t, ":9999", cfg.Server.Listen)

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	opts := cfg.EngineOptions(nil)
	assert.Equal(t, "gid", opts.IDField)
	assert.Equal(t, 2*time.Second, opts.LockTimeout)
	assert.False(t, opts.UseMmap)
}

func TestLoadConfigRejectsBadLevel(t *testing.T) {
	t.Setenv("GEOVEC_LOG_LEVEL", "loud")
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
