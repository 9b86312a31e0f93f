package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileFlattensNestedKeys(t *testing.T) {
	path := writeConfigFile(t, `
node:
  id: node1
services:
  node:
    http_port: 8081
    peer_port: 9081
cluster:
  peers: [node2=http://localhost:9082, node3=http://localhost:9083]
  election_timeout_min: 5s
storage:
  postgres:
    enabled: false
`)

	cfg := New()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "node1", cfg.Get("node.id"))
	assert.Equal(t, "8081", cfg.Get("services.node.http_port"))
	assert.Equal(t, "9081", cfg.Get("services.node.peer_port"))
	assert.Equal(t, "5s", cfg.Get("cluster.election_timeout_min"))
	assert.Equal(t, "false", cfg.Get("storage.postgres.enabled"))

	// sequences are comma-joined
	assert.Equal(t, "node2=http://localhost:9082,node3=http://localhost:9083", cfg.Get("cluster.peers"))
}

func TestLoadFileMissing(t *testing.T) {
	cfg := New()
	err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadFileMalformed(t *testing.T) {
	path := writeConfigFile(t, "node: [unclosed")
	cfg := New()
	require.Error(t, cfg.LoadFile(path))
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfigFile(t, `
auth:
  jwt_secret: filesecret
services:
  node:
    http_port: 8081
`)

	t.Setenv("AISLE__AUTH__JWT_SECRET", "envsecret")
	t.Setenv("AISLE__SERVICES__NODE__HTTP_PORT", "9999")

	cfg := New()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "envsecret", cfg.Get("auth.jwt_secret"))
	assert.Equal(t, "9999", cfg.Get("services.node.http_port"))
}

func TestTypedGetters(t *testing.T) {
	cfg := New()
	cfg.Update(map[string]string{
		"port":     "8081",
		"bad_port": "eighty",
		"enabled":  "true",
		"interval": "750ms",
		"timeout":  "2",
		"fraction": "0.5",
	})

	t.Run("int", func(t *testing.T) {
		assert.Equal(t, 8081, cfg.GetInt("port", 1))
		assert.Equal(t, 1, cfg.GetInt("bad_port", 1))
		assert.Equal(t, 1, cfg.GetInt("missing", 1))
	})

	t.Run("bool", func(t *testing.T) {
		assert.True(t, cfg.GetBool("enabled", false))
		assert.False(t, cfg.GetBool("missing", false))
		assert.True(t, cfg.GetBool("missing", true))
	})

	t.Run("duration", func(t *testing.T) {
		assert.Equal(t, 750*time.Millisecond, cfg.GetDuration("interval", time.Second))
		// bare numbers mean seconds
		assert.Equal(t, 2*time.Second, cfg.GetDuration("timeout", time.Second))
		assert.Equal(t, 500*time.Millisecond, cfg.GetDuration("fraction", time.Second))
		assert.Equal(t, time.Minute, cfg.GetDuration("missing", time.Minute))
		assert.Equal(t, time.Minute, cfg.GetDuration("bad_port", time.Minute))
	})

	t.Run("default string", func(t *testing.T) {
		cfg.Set("empty", "")
		assert.Equal(t, "fallback", cfg.GetOrDefault("empty", "fallback"))
		assert.Equal(t, "8081", cfg.GetOrDefault("port", "fallback"))
	})
}

func TestRequiresRestart(t *testing.T) {
	cfg := New()
	cfg.Update(map[string]string{
		"services.node.http_port": "8081",
		"auth.token_ttl":          "24h",
	})
	cfg.SetRestartKeys([]string{"services.node.http_port"})

	before := cfg.GetAll()

	cfg.Set("auth.token_ttl", "1h")
	assert.False(t, cfg.RequiresRestart(before))

	cfg.Set("services.node.http_port", "8082")
	assert.True(t, cfg.RequiresRestart(before))
}
