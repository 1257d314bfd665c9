package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("AGENT_PING_INTERVAL", "")
	t.Setenv("PLAYBACK_STALL_TIMEOUT", "")
	t.Setenv("INSTANCE_STORE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != defaultPort {
		t.Errorf("Expected port %s, got %s", defaultPort, cfg.Port)
	}
	if cfg.PingInterval != 25*time.Second {
		t.Errorf("Expected 25s ping interval, got %s", cfg.PingInterval)
	}
	if cfg.StallTimeout != 0 {
		t.Errorf("Stall watchdog should be disabled by default, got %s", cfg.StallTimeout)
	}
	if cfg.InstanceStore != StoreMemory {
		t.Errorf("Expected memory store, got %s", cfg.InstanceStore)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("AGENT_SOCKET_URL", "ws://localhost:9000/")
	t.Setenv("AGENT_PING_INTERVAL", "5s")
	t.Setenv("PLAYBACK_STALL_TIMEOUT", "90s")
	t.Setenv("INSTANCE_STORE", "MONGO")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AgentSocketURL != "ws://localhost:9000" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.AgentSocketURL)
	}
	if cfg.PingInterval != 5*time.Second {
		t.Errorf("Expected 5s, got %s", cfg.PingInterval)
	}
	if cfg.StallTimeout != 90*time.Second {
		t.Errorf("Expected 90s, got %s", cfg.StallTimeout)
	}
	if cfg.InstanceStore != StoreMongo {
		t.Errorf("Expected mongo store, got %s", cfg.InstanceStore)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		if _, err := Load(); err == nil {
			t.Error("Expected error without JWT_SECRET")
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("AGENT_PING_INTERVAL", "soon")
		if _, err := Load(); err == nil {
			t.Error("Expected error for invalid duration")
		}
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("INSTANCE_STORE", "redis")
		if _, err := Load(); err == nil {
			t.Error("Expected error for unknown store")
		}
	})
}
