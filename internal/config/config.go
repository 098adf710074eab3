// Package config loads the client configuration from CAMPUSCHAT_*
// environment variables. Command-line flags override individual fields
// after Load.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/campuschat/client/internal/api"
	"github.com/campuschat/client/internal/messaging"
	"github.com/campuschat/client/internal/tokenstore"
	"github.com/campuschat/client/internal/ws"
)

// Token store backends.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config is the full client configuration.
type Config struct {
	APIURL string `env:"CAMPUSCHAT_API_URL" envDefault:"http://localhost:8000"`
	// WSURL defaults to APIURL with the scheme mapped to ws/wss.
	WSURL  string `env:"CAMPUSCHAT_WS_URL"`
	WSPath string `env:"CAMPUSCHAT_WS_PATH" envDefault:"/ws/main/"`

	HeartbeatInterval time.Duration `env:"CAMPUSCHAT_HEARTBEAT_INTERVAL" envDefault:"30s"`
	ReconnectDelay    time.Duration `env:"CAMPUSCHAT_RECONNECT_DELAY" envDefault:"3s"`
	TypingTimeout     time.Duration `env:"CAMPUSCHAT_TYPING_TIMEOUT" envDefault:"3s"`
	DialTimeout       time.Duration `env:"CAMPUSCHAT_DIAL_TIMEOUT" envDefault:"10s"`
	HTTPTimeout       time.Duration `env:"CAMPUSCHAT_HTTP_TIMEOUT" envDefault:"10s"`
	ValidateInterval  time.Duration `env:"CAMPUSCHAT_VALIDATE_INTERVAL" envDefault:"5m"`

	Profile    string `env:"CAMPUSCHAT_PROFILE" envDefault:"default"`
	TokenStore string `env:"CAMPUSCHAT_TOKEN_STORE" envDefault:"file"`
	TokenFile  string `env:"CAMPUSCHAT_TOKEN_FILE"`
	RedisAddr  string `env:"CAMPUSCHAT_REDIS_ADDR" envDefault:"localhost:6379"`

	// NATSURL enables notification fan-out when set.
	NATSURL     string `env:"CAMPUSCHAT_NATS_URL"`
	MetricsAddr string `env:"CAMPUSCHAT_METRICS_ADDR"`
	LogLevel    string `env:"CAMPUSCHAT_LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"CAMPUSCHAT_LOG_FILE"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("config: CAMPUSCHAT_API_URL is required")
	}
	switch c.TokenStore {
	case StoreFile, StoreRedis:
	default:
		return fmt.Errorf("config: unknown token store %q", c.TokenStore)
	}
	if c.Profile == "" {
		return fmt.Errorf("config: profile must not be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.HeartbeatInterval < 0 || c.ReconnectDelay < 0 || c.TypingTimeout < 0 {
		return fmt.Errorf("config: durations must not be negative")
	}
	return nil
}

// Client returns the realtime client settings.
func (c Config) Client() ws.ClientConfig {
	cc := ws.DefaultClientConfig()
	cc.URL = c.APIURL
	if c.WSURL != "" {
		cc.URL = c.WSURL
	}
	if c.WSPath != "" {
		cc.Path = c.WSPath
	}
	if c.HeartbeatInterval > 0 {
		cc.HeartbeatInterval = c.HeartbeatInterval
	}
	if c.ReconnectDelay > 0 {
		cc.ReconnectDelay = c.ReconnectDelay
	}
	if c.TypingTimeout > 0 {
		cc.TypingTimeout = c.TypingTimeout
	}
	if c.DialTimeout > 0 {
		cc.DialTimeout = c.DialTimeout
	}
	return cc
}

// API returns the REST client settings.
func (c Config) API(logger *slog.Logger) api.Config {
	ac := api.DefaultConfig()
	ac.BaseURL = c.APIURL
	if c.HTTPTimeout > 0 {
		ac.Timeout = c.HTTPTimeout
	}
	ac.Logger = logger
	return ac
}

// NATS returns the fan-out settings. ok is false when fan-out is disabled.
func (c Config) NATS() (cfg messaging.NATSConfig, ok bool) {
	if c.NATSURL == "" {
		return messaging.NATSConfig{}, false
	}
	cfg = messaging.DefaultNATSConfig()
	cfg.URL = c.NATSURL
	cfg.Name = "campuschat-" + c.Profile
	return cfg, true
}

// Redis returns the Redis token store settings.
func (c Config) Redis() tokenstore.RedisConfig {
	rc := tokenstore.DefaultRedisConfig()
	rc.Addr = c.RedisAddr
	rc.Profile = c.Profile
	return rc
}

// TokenPath returns the token file location for the file store.
func (c Config) TokenPath() (string, error) {
	if c.TokenFile != "" {
		return c.TokenFile, nil
	}
	return tokenstore.DefaultPath(c.Profile)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", s)
	}
	return l, nil
}
