package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 5
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 65536
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http rps must be > 0", func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 }},
		{"http max concurrent must be >= 0", func(c *Config) { c.RateLimiting.HTTP.MaxConcurrent = -1 }},
		{"ws messages per second must be > 0", func(c *Config) { c.RateLimiting.WebSocket.MessagesPerSecond = 0 }},
		{"ws max message size must be >= 0", func(c *Config) { c.RateLimiting.WebSocket.MaxMessageSizeBytes = -1 }},
		{"preferred weight above one", func(c *Config) { c.Matching.PreferredWeight = 1.5 }},
		{"stale after zero", func(c *Config) { c.Matching.StaleAfter = 0 }},
		{"unknown ceiling tier", func(c *Config) { c.Quality.FreeCeiling = "4k" }},
		{"headroom ratio zero", func(c *Config) { c.Quality.HeadroomRatio = 0 }},
		{"pong timeout not above ping interval", func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval }},
		{"ice server without urls", func(c *Config) { c.WebRTC.ICEServers = []ICEServer{{}} }},
		{"oidc without issuer", func(c *Config) { c.Auth.OIDC.Enabled = true }},
		{"redis without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}
	if cfg.Matching.PreferredWeight != 0.8 {
		t.Fatalf("expected default preferred weight 0.8, got %v", cfg.Matching.PreferredWeight)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
matching:
  preferred_weight: 0.7
  stale_after: 10m
quality:
  pro_ceiling: 720p
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Matching.PreferredWeight != 0.7 {
		t.Fatalf("expected preferred weight 0.7, got %v", cfg.Matching.PreferredWeight)
	}
	if cfg.Matching.StaleAfter != 10*time.Minute {
		t.Fatalf("expected stale_after 10m, got %v", cfg.Matching.StaleAfter)
	}
	if cfg.Quality.ProCeiling != "720p" {
		t.Fatalf("expected pro ceiling 720p, got %s", cfg.Quality.ProCeiling)
	}
	// untouched sections keep their defaults
	if cfg.Signal.Path != "/ws" {
		t.Fatalf("expected default signal path, got %s", cfg.Signal.Path)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("PAIRLINE_SERVER_ADDRESS", ":9999")
	t.Setenv("PAIRLINE_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Fatalf("expected env server address, got %s", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env log level, got %s", cfg.Logging.Level)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("matching: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
