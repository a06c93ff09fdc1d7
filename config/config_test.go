package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "sync", cfg.Index.Mode)
	assert.Equal(t, 10, cfg.Profile.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Index.JobTimeout)
	assert.Equal(t, ":9090", cfg.Server.Addr())
}

func TestLoadFrom_EnvOverride(t *testing.T) {
	t.Setenv("APP_INDEX_MODE", "async")
	t.Setenv("APP_PROFILE_BATCH_SIZE", "25")

	cfg, err := LoadFrom(writeConfig(t, "index:\n  mode: sync\n"))
	require.NoError(t, err)

	assert.Equal(t, "async", cfg.Index.Mode)
	assert.Equal(t, 25, cfg.Profile.BatchSize)
}

func TestLoadFrom_RejectsUnknownEnums(t *testing.T) {
	_, err := LoadFrom(writeConfig(t, "index:\n  mode: eventually\n"))
	require.Error(t, err)

	_, err = LoadFrom(writeConfig(t, "profile:\n  source: ldap\n"))
	require.Error(t, err)
}

func TestLoadFrom_MissingExplicitFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
