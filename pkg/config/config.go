package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v2"
)

// ICEServer is one STUN/TURN entry handed to clients in match_found.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address" env:"PAIRLINE_SERVER_ADDRESS"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Path           string        `yaml:"path"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		AuthTimeout    time.Duration `yaml:"auth_timeout"`
		SendQueueSize  int           `yaml:"send_queue_size"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"signal"`

	Matching struct {
		PreferredWeight float64       `yaml:"preferred_weight" env:"PAIRLINE_MATCHING_PREFERRED_WEIGHT"`
		StaleAfter      time.Duration `yaml:"stale_after" env:"PAIRLINE_MATCHING_STALE_AFTER"`
		SweepInterval   time.Duration `yaml:"sweep_interval"`
		Seed            int64         `yaml:"seed"` // 0 = seeded from the clock
	} `yaml:"matching"`

	Quality struct {
		SampleInterval time.Duration `yaml:"sample_interval"`
		WindowSize     int           `yaml:"window_size"`
		HeadroomRatio  float64       `yaml:"headroom_ratio"`
		MaxRoundTrip   time.Duration `yaml:"max_round_trip"`
		MaxPacketLoss  float64       `yaml:"max_packet_loss"`
		DefaultTier    string        `yaml:"default_tier"`
		FreeCeiling    string        `yaml:"free_ceiling"`
		ProCeiling     string        `yaml:"pro_ceiling"`
	} `yaml:"quality"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
		PortRange  struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Moderation struct {
		WordListPath string `yaml:"word_list_path" env:"PAIRLINE_MODERATION_WORD_LIST"`
		Replacement  string `yaml:"replacement"`
		WatchChanges bool   `yaml:"watch_changes"`
		MaxTextBytes int    `yaml:"max_text_bytes"`
	} `yaml:"moderation"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		HealthTimeout     time.Duration `yaml:"health_timeout"`
		HealthInterval    time.Duration `yaml:"health_interval"`
		MaxConnections    int           `yaml:"max_connections"` // 0 = unlimited
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled" env:"PAIRLINE_TRACING_ENABLED"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url" env:"PAIRLINE_JAEGER_URL"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level" env:"PAIRLINE_LOG_LEVEL"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled      bool   `yaml:"enabled" env:"PAIRLINE_REDIS_ENABLED"`
		Address      string `yaml:"address" env:"PAIRLINE_REDIS_ADDRESS"`
		Password     string `yaml:"password" env:"PAIRLINE_REDIS_PASSWORD"`
		DB           int    `yaml:"db"`
		PoolSize     int    `yaml:"pool_size"`
		KeyPrefix    string `yaml:"key_prefix"`
		EventChannel string `yaml:"event_channel"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret" env:"PAIRLINE_JWT_SECRET"`
		AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
		RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
		GuestEnabled    bool          `yaml:"guest_enabled"`

		OIDC struct {
			Enabled   bool   `yaml:"enabled" env:"PAIRLINE_OIDC_ENABLED"`
			IssuerURL string `yaml:"issuer_url" env:"PAIRLINE_OIDC_ISSUER"`
			ClientID  string `yaml:"client_id" env:"PAIRLINE_OIDC_CLIENT_ID"`
		} `yaml:"oidc"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second"`
			Burst               int     `yaml:"burst"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

var tierLabels = map[string]bool{"240p": true, "480p": true, "720p": true, "1080p": true}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.read_timeout and server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.Path == "" {
		return fmt.Errorf("signal.path must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be greater than signal.ping_interval")
	}
	if c.Signal.AuthTimeout <= 0 {
		return fmt.Errorf("signal.auth_timeout must be > 0")
	}
	if c.Signal.SendQueueSize <= 0 {
		return fmt.Errorf("signal.send_queue_size must be > 0")
	}

	// Matching
	if c.Matching.PreferredWeight < 0 || c.Matching.PreferredWeight > 1 {
		return fmt.Errorf("matching.preferred_weight must be within [0, 1]")
	}
	if c.Matching.StaleAfter <= 0 {
		return fmt.Errorf("matching.stale_after must be > 0")
	}
	if c.Matching.SweepInterval <= 0 {
		return fmt.Errorf("matching.sweep_interval must be > 0")
	}

	// Quality
	if c.Quality.SampleInterval <= 0 {
		return fmt.Errorf("quality.sample_interval must be > 0")
	}
	if c.Quality.WindowSize <= 0 {
		return fmt.Errorf("quality.window_size must be > 0")
	}
	if c.Quality.HeadroomRatio <= 0 || c.Quality.HeadroomRatio > 1 {
		return fmt.Errorf("quality.headroom_ratio must be within (0, 1]")
	}
	if c.Quality.MaxPacketLoss <= 0 || c.Quality.MaxPacketLoss >= 1 {
		return fmt.Errorf("quality.max_packet_loss must be within (0, 1)")
	}
	for name, label := range map[string]string{
		"quality.default_tier": c.Quality.DefaultTier,
		"quality.free_ceiling": c.Quality.FreeCeiling,
		"quality.pro_ceiling":  c.Quality.ProCeiling,
	} {
		if !tierLabels[label] {
			return fmt.Errorf("%s has unknown tier %q", name, label)
		}
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}
	for i, s := range c.WebRTC.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("webrtc.ice_servers[%d].urls must not be empty", i)
		}
	}

	// Moderation
	if c.Moderation.MaxTextBytes <= 0 {
		return fmt.Errorf("moderation.max_text_bytes must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth token TTLs must be > 0")
	}
	if c.Auth.OIDC.Enabled && (c.Auth.OIDC.IssuerURL == "" || c.Auth.OIDC.ClientID == "") {
		return fmt.Errorf("auth.oidc.issuer_url and auth.oidc.client_id are required when auth.oidc.enabled=true")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}
	if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0")
	}

	return nil
}

// Load reads configuration from a YAML file over DefaultConfig, then applies
// PAIRLINE_* environment overrides and validates the result. A missing file
// is not an error.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.Path = "/ws"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.AuthTimeout = 10 * time.Second
	cfg.Signal.SendQueueSize = 64
	cfg.Signal.AllowedOrigins = []string{"*"}

	cfg.Matching.PreferredWeight = 0.8
	cfg.Matching.StaleAfter = 30 * time.Minute
	cfg.Matching.SweepInterval = time.Minute

	cfg.Quality.SampleInterval = 2 * time.Second
	cfg.Quality.WindowSize = 10
	cfg.Quality.HeadroomRatio = 0.8
	cfg.Quality.MaxRoundTrip = 200 * time.Millisecond
	cfg.Quality.MaxPacketLoss = 0.05
	cfg.Quality.DefaultTier = "480p"
	cfg.Quality.FreeCeiling = "720p"
	cfg.Quality.ProCeiling = "1080p"

	cfg.WebRTC.ICEServers = []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}

	cfg.Moderation.Replacement = "***"
	cfg.Moderation.WatchChanges = true
	cfg.Moderation.MaxTextBytes = 2000

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthTimeout = 2 * time.Second
	cfg.Monitoring.HealthInterval = 15 * time.Second

	cfg.Tracing.ServiceName = "pairline"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.KeyPrefix = "pairline:"
	cfg.Redis.EventChannel = "pairline:events"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	cfg.Auth.GuestEnabled = true

	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	err := envdecode.Decode(c)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment overrides: %w", err)
	}
	return nil
}
