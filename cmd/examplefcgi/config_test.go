package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, defaultAppConfig(), cfg)
}

func TestLoadConfigEnvOverridesCompoundKeys(t *testing.T) {
	t.Setenv("EXAMPLEFCGI_LISTEN_UNIX_PATH", "/tmp/examplefcgi.sock")
	t.Setenv("EXAMPLEFCGI_LISTEN_TCP_ADDR", "127.0.0.1:9000")
	t.Setenv("EXAMPLEFCGI_MAX_POST_SIZE", "2048")
	t.Setenv("EXAMPLEFCGI_WORKERS", "4")
	t.Setenv("EXAMPLEFCGI_DEBUG", "true")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, "/tmp/examplefcgi.sock", cfg.ListenUnixPath)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenTCPAddr)
	require.Equal(t, 2048, cfg.MaxPostSize)
	require.Equal(t, 4, cfg.Workers)
	require.True(t, cfg.Debug)
}

func TestLoadConfigEnvUnknownVariableIgnored(t *testing.T) {
	t.Setenv("EXAMPLEFCGI_NOT_A_REAL_KEY", "whatever")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, defaultAppConfig(), cfg)
}

func TestLoadConfigFileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := "" +
		"listen:\n" +
		"  unix_path: /var/run/fromfile.sock\n" +
		"workers: 2\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	t.Setenv("EXAMPLEFCGI_LISTEN_UNIX_PATH", "/var/run/fromenv.sock")

	cfg, err := loadConfig(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "/var/run/fromenv.sock", cfg.ListenUnixPath)
	require.Equal(t, 2, cfg.Workers)
}
