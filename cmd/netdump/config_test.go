package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netdumpsystems/netdump-go"
)

func clearEnv(t *testing.T) {
	t.Setenv("NETDUMP_LEVEL", "")
	t.Setenv("NETDUMP_DIR", "")
	t.Setenv("NETDUMP_MAX_SIZE", "")
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "netdump.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Reads every section of the file", func(t *testing.T) {
		clearEnv(t)
		path := writeConfig(t, `
level: headers
dir: /var/log/net
max_size: 52428800
sync_writes: true
redact:
  request_headers: [Authorization, Cookie]
  request_body_keys: [password]
  response_body_keys: ["items[].token"]
log:
  level: warn
  file: /var/log/netdump.log
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, "headers", cfg.Level)
		require.Equal(t, "/var/log/net", cfg.Dir)
		require.Equal(t, int64(50<<20), cfg.MaxSize)
		require.True(t, cfg.SyncWrites)
		require.Equal(t, []string{"Authorization", "Cookie"}, cfg.Redact.RequestHeaders)
		require.Equal(t, []string{"password"}, cfg.Redact.RequestBodyKeys)
		require.Equal(t, []string{"items[].token"}, cfg.Redact.ResponseBodyKeys)
		require.Equal(t, "warn", cfg.Log.Level)
		require.Equal(t, "/var/log/netdump.log", cfg.Log.File)

		o, err := cfg.Options()
		require.NoError(t, err)
		require.Equal(t, netdump.LevelHeaders, o.Level)
		require.Equal(t, "/var/log/net", o.Dir)
		require.Equal(t, int64(50<<20), o.MaxSize)
		require.True(t, o.SyncWrites)
		require.Equal(t, []string{"Authorization", "Cookie"}, o.RedactRequestHeaderKeys)
	})

	t.Run("Applies defaults without a file", func(t *testing.T) {
		clearEnv(t)
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		require.Equal(t, "body", cfg.Level)
		require.Equal(t, "info", cfg.Log.Level)
		require.Empty(t, cfg.Dir)
		require.Zero(t, cfg.MaxSize)
	})

	t.Run("Environment overrides the file", func(t *testing.T) {
		path := writeConfig(t, "level: basic\ndir: /from/file\nmax_size: 1000\n")
		t.Setenv("NETDUMP_LEVEL", "NONE")
		t.Setenv("NETDUMP_DIR", "/from/env")
		t.Setenv("NETDUMP_MAX_SIZE", "2000")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, "NONE", cfg.Level)
		require.Equal(t, "/from/env", cfg.Dir)
		require.Equal(t, int64(2000), cfg.MaxSize)
	})

	t.Run("Rejects invalid configuration", func(t *testing.T) {
		clearEnv(t)
		for _, content := range []string{
			"level: loud\n",
			"max_size: -1\n",
			"log:\n  level: shouting\n",
			"level: [body\n",
		} {
			_, err := LoadConfig(writeConfig(t, content))
			require.Error(t, err, content)
		}

		t.Setenv("NETDUMP_MAX_SIZE", "ten")
		_, err := LoadConfig("")
		require.ErrorContains(t, err, "NETDUMP_MAX_SIZE")
	})

	t.Run("Fails on a missing file", func(t *testing.T) {
		clearEnv(t)
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.ErrorContains(t, err, "failed to read configuration file")
	})
}
