package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.TickRate != 20 {
		t.Errorf("Expected tick rate 20, got %d", cfg.TickRate)
	}
	if cfg.TickInterval() != 50*time.Millisecond {
		t.Errorf("Expected 50ms tick interval, got %s", cfg.TickInterval())
	}
	if cfg.SnapshotEvery != 3 {
		t.Errorf("Expected snapshot every 3 ticks, got %d", cfg.SnapshotEvery)
	}
	if cfg.InputRateLimit != 10 || cfg.InputRateWindow != 100*time.Millisecond {
		t.Errorf("Expected 10 inputs per 100ms, got %d per %s", cfg.InputRateLimit, cfg.InputRateWindow)
	}
	if cfg.AppURL == "" {
		t.Error("AppURL must default from the port")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("TICK_RATE", "30")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ROOM_RETENTION", "15m")
	t.Setenv("DEBUG", "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.Port != "9999" {
		t.Errorf("Port override lost: %s", cfg.Port)
	}
	if cfg.TickRate != 30 {
		t.Errorf("Tick rate override lost: %d", cfg.TickRate)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("Secret override lost: %s", cfg.JWTSecret)
	}
	if cfg.RoomRetention != 15*time.Minute {
		t.Errorf("Retention override lost: %s", cfg.RoomRetention)
	}
	if !cfg.Debug {
		t.Error("Debug override lost")
	}
	if cfg.AppURL != "http://localhost:9999" {
		t.Errorf("AppURL must follow the port, got %s", cfg.AppURL)
	}
}

func TestRejectsNonsenseRates(t *testing.T) {
	t.Setenv("TICK_RATE", "0")
	if _, err := FromEnv(); err == nil {
		t.Error("Expected error for zero tick rate")
	}
}
