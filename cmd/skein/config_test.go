package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, ":4200", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 2*time.Second, cfg.pollInterval())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SKEIN_LISTEN_ADDR", ":9999")
	t.Setenv("SKEIN_DB_PATH", "memory")
	t.Setenv("SKEIN_POOL_SIZE", "3")
	t.Setenv("SKEIN_POLL_INTERVAL", "250ms")
	t.Setenv("SKEIN_MCP", "1")

	cfg := loadConfig()
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "memory", cfg.DBPath)
	assert.Equal(t, 3, cfg.PoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.pollInterval())
	assert.True(t, cfg.MCP)
}

func TestLoadConfigIgnoresBadValues(t *testing.T) {
	t.Setenv("SKEIN_POOL_SIZE", "lots")
	t.Setenv("SKEIN_POLL_INTERVAL", "soon")

	cfg := loadConfig()
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 2*time.Second, cfg.pollInterval())
}
