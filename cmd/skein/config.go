package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all skein server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr   string `json:"listen_addr"`
	DBPath       string `json:"db_path"` // "memory" runs without persistence
	LogLevel     string `json:"log_level"`
	PoolSize     int    `json:"pool_size"`
	PollInterval string `json:"poll_interval"` // resumable queue poll cadence
	LLMEndpoint  string `json:"llm_endpoint"`
	LLMModel     string `json:"llm_model"`
	MCP          bool   `json:"mcp"` // serve MCP tools over stdio
}

func defaultConfig() Config {
	return Config{
		ListenAddr:   ":4200",
		DBPath:       filepath.Join(skeinDir(), "skein.db"),
		LogLevel:     "info",
		PoolSize:     10,
		PollInterval: "2s",
	}
}

func skeinDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".skein"
	}
	return filepath.Join(home, ".skein")
}

func settingsPath() string {
	return filepath.Join(skeinDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("SKEIN_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SKEIN_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SKEIN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SKEIN_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("SKEIN_POLL_INTERVAL"); v != "" {
		cfg.PollInterval = v
	}
	if v := os.Getenv("SKEIN_LLM_URL"); v != "" {
		cfg.LLMEndpoint = v
	}
	if v := os.Getenv("SKEIN_LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("SKEIN_MCP"); v != "" {
		cfg.MCP = v == "true" || v == "1"
	}

	return cfg
}

// pollInterval parses the queue cadence, falling back to the default on
// malformed input.
func (c Config) pollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}
