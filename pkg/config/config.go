package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		SendBufferSize int           `yaml:"send_buffer_size"`
	} `yaml:"signal"`

	Presence struct {
		TTL               time.Duration `yaml:"ttl"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	} `yaml:"presence"`

	Matchmaking struct {
		// AutoCall pre-creates the call on a successful match. When false,
		// matched users must send an explicit call:initiate.
		AutoCall  bool `yaml:"auto_call"`
		MaxSkills int  `yaml:"max_skills"`
	} `yaml:"matchmaking"`

	Call struct {
		AcceptTimeout time.Duration `yaml:"accept_timeout"`
		MaxDuration   time.Duration `yaml:"max_duration"`
		// Store selects where call state lives: "memory" (process-local,
		// default) or "redis" (shared store with optimistic versioning).
		Store string `yaml:"store"`
	} `yaml:"call"`

	Turn struct {
		Secret        string        `yaml:"secret"`
		CredentialTTL time.Duration `yaml:"credential_ttl"`
		STUNURLs      []string      `yaml:"stun_urls"`
		TURNURLs      []string      `yaml:"turn_urls"`
	} `yaml:"turn"`

	NATS struct {
		URL           string        `yaml:"url"`
		StreamName    string        `yaml:"stream_name"`
		PendingBuffer int           `yaml:"pending_buffer"`
		PublishRetry  int           `yaml:"publish_retry"`
		RetryDelay    time.Duration `yaml:"retry_delay"`
	} `yaml:"nats"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret"`
		AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
		RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond float64 `yaml:"messages_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}
	if c.Signal.SendBufferSize <= 0 {
		return fmt.Errorf("signal.send_buffer_size must be > 0")
	}

	if c.Presence.TTL <= 0 {
		return fmt.Errorf("presence.ttl must be > 0")
	}
	if c.Presence.HeartbeatInterval <= 0 {
		return fmt.Errorf("presence.heartbeat_interval must be > 0")
	}
	// One missed beat must not expire presence.
	if c.Presence.HeartbeatInterval >= c.Presence.TTL {
		return fmt.Errorf("presence.heartbeat_interval must be < presence.ttl")
	}

	if c.Matchmaking.MaxSkills <= 0 {
		return fmt.Errorf("matchmaking.max_skills must be > 0")
	}

	if c.Call.AcceptTimeout <= 0 {
		return fmt.Errorf("call.accept_timeout must be > 0")
	}
	if c.Call.MaxDuration <= 0 {
		return fmt.Errorf("call.max_duration must be > 0")
	}
	if c.Call.Store != "memory" && c.Call.Store != "redis" {
		return fmt.Errorf("call.store must be %q or %q", "memory", "redis")
	}
	if c.Call.Store == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("call.store=redis requires redis.enabled=true")
	}

	if c.Turn.Secret == "" {
		return fmt.Errorf("turn.secret must not be empty")
	}
	if c.Turn.CredentialTTL <= 0 {
		return fmt.Errorf("turn.credential_ttl must be > 0")
	}

	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url must not be empty")
	}
	if c.NATS.StreamName == "" {
		return fmt.Errorf("nats.stream_name must not be empty")
	}
	if c.NATS.PendingBuffer <= 0 {
		return fmt.Errorf("nats.pending_buffer must be > 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth.refresh_token_ttl must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
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

	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.SendBufferSize = 256

	cfg.Presence.TTL = 60 * time.Second
	cfg.Presence.HeartbeatInterval = 30 * time.Second

	cfg.Matchmaking.AutoCall = true
	cfg.Matchmaking.MaxSkills = 10

	cfg.Call.AcceptTimeout = 20 * time.Second
	cfg.Call.MaxDuration = 180 * time.Second
	cfg.Call.Store = "memory"

	cfg.Turn.Secret = "change-me-in-production"
	cfg.Turn.CredentialTTL = 600 * time.Second
	cfg.Turn.STUNURLs = []string{"stun:stun.l.google.com:19302"}
	cfg.Turn.TURNURLs = []string{"turn:localhost:3478"}

	cfg.NATS.URL = "nats://localhost:4222"
	cfg.NATS.StreamName = "SESSIONS"
	cfg.NATS.PendingBuffer = 1024
	cfg.NATS.PublishRetry = 5
	cfg.NATS.RetryDelay = 200 * time.Millisecond

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 24 * time.Hour
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("SKILLCALL_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("SKILLCALL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("SKILLCALL_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if secret := os.Getenv("SKILLCALL_TURN_SECRET"); secret != "" {
		c.Turn.Secret = secret
	}
	if url := os.Getenv("SKILLCALL_NATS_URL"); url != "" {
		c.NATS.URL = url
	}
	if addr := os.Getenv("SKILLCALL_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
}
