package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig carries everything the server needs. Values come from an
// optional YAML file (CONFIG_FILE) with environment variables taking
// precedence.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	BotAPIAddr string `yaml:"bot_api_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	JWTSecret string `yaml:"jwt_secret"`

	StockfishPath      string `yaml:"stockfish_path"`
	EnginePoolSize     int    `yaml:"engine_pool_size"`
	EngineMoveTimeout  int    `yaml:"engine_move_timeout_ms"`
	RoomTTLSeconds     int    `yaml:"room_ttl_seconds"`
	DisconnectGraceMS  int    `yaml:"disconnect_grace_ms"`
	DefaultDifficulty  string `yaml:"default_difficulty"`
}

// Load reads CONFIG_FILE (when set), then environment variables on top.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:        ":8080",
		BotAPIAddr:        ":8081",
		EnginePoolSize:    4,
		EngineMoveTimeout: 5000,
		RoomTTLSeconds:    3600,
		DisconnectGraceMS: 30000,
		DefaultDifficulty: "medium",
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("BOT_API_ADDR")); v != "" {
		cfg.BotAPIAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET")); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("STOCKFISH_PATH")); v != "" {
		cfg.StockfishPath = v
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_DIFFICULTY")); v != "" {
		cfg.DefaultDifficulty = v
	}

	intEnv("ENGINE_POOL_SIZE", &cfg.EnginePoolSize)
	intEnv("ENGINE_MOVE_TIMEOUT_MS", &cfg.EngineMoveTimeout)
	intEnv("ROOM_TTL_SECONDS", &cfg.RoomTTLSeconds)
	intEnv("DISCONNECT_GRACE_MS", &cfg.DisconnectGraceMS)

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.EnginePoolSize <= 0 {
		return nil, fmt.Errorf("engine pool size must be positive: %d", cfg.EnginePoolSize)
	}

	return cfg, nil
}

func intEnv(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}

// RoomTTL is the cache expiry refreshed on every room write.
func (c *AppConfig) RoomTTL() time.Duration {
	return time.Duration(c.RoomTTLSeconds) * time.Second
}

// DisconnectGrace is the reconnection window before a forfeit.
func (c *AppConfig) DisconnectGrace() time.Duration {
	return time.Duration(c.DisconnectGraceMS) * time.Millisecond
}

// EngineDeadline is the per-request wall-clock limit for best-move searches.
func (c *AppConfig) EngineDeadline() time.Duration {
	return time.Duration(c.EngineMoveTimeout) * time.Millisecond
}
