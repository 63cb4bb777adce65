package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvSiteURL, EnvLogLevel, EnvEnvironment, EnvDrainPartials} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.DefaultSiteURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogDevelopment)
	assert.False(t, cfg.AutoDrainPartials)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(file, []byte(
		"LISTBIND_SITE_URL=https://contoso.example/sites/team/\n"+
			"LISTBIND_ENV=development\n"+
			"LISTBIND_DRAIN_PARTIALS=true\n"+
			"LISTBIND_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "https://contoso.example/sites/team", cfg.DefaultSiteURL)
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over file")
	assert.True(t, cfg.LogDevelopment)
	assert.True(t, cfg.AutoDrainPartials)

	log, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, log)

	rc := cfg.RegistryConfig()
	assert.Equal(t, "https://contoso.example/sites/team", rc.DefaultSiteURL)
	assert.True(t, rc.AutoDrainPartials)
}
