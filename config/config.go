// Package config resolves server settings from the environment with sane
// defaults for local play.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every tunable the server reads at startup.
type Config struct {
	Port   string
	Host   string
	AppURL string
	Debug  bool

	JWTSecret string
	TokenTTL  time.Duration

	TickRate        int
	SnapshotEvery   int
	InputRateLimit  int
	InputRateWindow time.Duration

	CatalogDir    string
	RoomRetention time.Duration
}

// FromEnv builds a Config from environment variables, falling back to
// defaults suitable for a dev machine.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Host:            getEnv("HOST", "0.0.0.0"),
		AppURL:          getEnv("APP_URL", ""),
		Debug:           getEnvBool("DEBUG", false),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-me"),
		TokenTTL:        getEnvDuration("TOKEN_TTL", 24*time.Hour),
		TickRate:        getEnvInt("TICK_RATE", 20),
		SnapshotEvery:   getEnvInt("SNAPSHOT_EVERY", 3),
		InputRateLimit:  getEnvInt("INPUT_RATE_LIMIT", 10),
		InputRateWindow: getEnvDuration("INPUT_RATE_WINDOW", 100*time.Millisecond),
		CatalogDir:      getEnv("CATALOG_DIR", ""),
		RoomRetention:   getEnvDuration("ROOM_RETENTION", time.Hour),
	}

	if cfg.TickRate < 1 {
		return nil, fmt.Errorf("TICK_RATE must be at least 1, got %d", cfg.TickRate)
	}
	if cfg.SnapshotEvery < 1 {
		return nil, fmt.Errorf("SNAPSHOT_EVERY must be at least 1, got %d", cfg.SnapshotEvery)
	}
	if cfg.InputRateLimit < 1 {
		return nil, fmt.Errorf("INPUT_RATE_LIMIT must be at least 1, got %d", cfg.InputRateLimit)
	}

	if cfg.AppURL == "" {
		cfg.AppURL = "http://localhost:" + cfg.Port
	}

	return cfg, nil
}

// TickInterval converts the tick rate into the per-room clock period.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
