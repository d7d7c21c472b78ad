package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerAddr != "ws://localhost:3001/ws" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.Port != 3001 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.PublishInterval != 10*time.Second {
		t.Errorf("PublishInterval = %v", cfg.PublishInterval)
	}
	if cfg.DetailsCacheTTL != time.Minute {
		t.Errorf("DetailsCacheTTL = %v", cfg.DetailsCacheTTL)
	}
}
