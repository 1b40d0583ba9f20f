// Package config loads daemon configuration from the environment.
package config

import (
	"os"
	"time"

	"github.com/tableside/pos/internal/logging"
)

// Config holds the daemon's runtime settings.
type Config struct {
	DataDir       string        // local database directory
	RemoteURL     string        // base URL of the remote system
	RemoteKey     string        // API key for the remote system
	ProbeInterval time.Duration // connectivity probe interval
	WSAddr        string        // listen address for the local HTTP/WebSocket server
}

// Load reads configuration from environment variables, falling back to
// defaults for anything unset.
func Load() *Config {
	cfg := &Config{
		DataDir:       getEnv("POS_DATA_DIR", "./data"),
		RemoteURL:     getEnv("POS_REMOTE_URL", "http://localhost:8000"),
		RemoteKey:     os.Getenv("POS_REMOTE_KEY"),
		ProbeInterval: getDuration("POS_PROBE_INTERVAL", 10*time.Second),
		WSAddr:        getEnv("POS_WS_ADDR", "localhost:8090"),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logging.Warn("Invalid duration in environment, using default",
			map[string]interface{}{"key": key, "value": v, "default": fallback.String()})
		return fallback
	}
	return d
}
