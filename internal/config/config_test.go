package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POS_DATA_DIR", "")
	t.Setenv("POS_REMOTE_URL", "")
	t.Setenv("POS_REMOTE_KEY", "")
	t.Setenv("POS_PROBE_INTERVAL", "")
	t.Setenv("POS_WS_ADDR", "")

	cfg := Load()
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.RemoteURL != "http://localhost:8000" {
		t.Errorf("RemoteURL = %q", cfg.RemoteURL)
	}
	if cfg.ProbeInterval != 10*time.Second {
		t.Errorf("ProbeInterval = %s, want 10s", cfg.ProbeInterval)
	}
	if cfg.WSAddr != "localhost:8090" {
		t.Errorf("WSAddr = %q", cfg.WSAddr)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("POS_DATA_DIR", "/var/lib/pos")
	t.Setenv("POS_REMOTE_URL", "https://api.example.com")
	t.Setenv("POS_REMOTE_KEY", "secret")
	t.Setenv("POS_PROBE_INTERVAL", "30s")
	t.Setenv("POS_WS_ADDR", "0.0.0.0:9000")

	cfg := Load()
	if cfg.DataDir != "/var/lib/pos" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.RemoteURL != "https://api.example.com" {
		t.Errorf("RemoteURL = %q", cfg.RemoteURL)
	}
	if cfg.RemoteKey != "secret" {
		t.Errorf("RemoteKey = %q", cfg.RemoteKey)
	}
	if cfg.ProbeInterval != 30*time.Second {
		t.Errorf("ProbeInterval = %s, want 30s", cfg.ProbeInterval)
	}
	if cfg.WSAddr != "0.0.0.0:9000" {
		t.Errorf("WSAddr = %q", cfg.WSAddr)
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("POS_PROBE_INTERVAL", "often")

	cfg := Load()
	if cfg.ProbeInterval != 10*time.Second {
		t.Errorf("ProbeInterval = %s, want 10s fallback", cfg.ProbeInterval)
	}
}
