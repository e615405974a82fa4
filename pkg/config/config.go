// Package config loads the sayhi server configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Framework names accepted in Config.Framework
const (
	FrameworkRouter = "router"
	FrameworkChi    = "chi"
)

var (
	ErrInvalidFramework = errors.New("invalid framework")
	ErrMissingAddr      = errors.New("listen address is required")
	ErrInvalidTimeout   = errors.New("timeouts must not be negative")
	ErrInvalidBodySize  = errors.New("max body size must not be negative")
	ErrInvalidRateLimit = errors.New("invalid rate limit")
	ErrInvalidLogLevel  = errors.New("invalid log level")
)

// Config is the top-level server configuration.
type Config struct {
	// Framework selects the routing stack: "router" or "chi"
	Framework string          `yaml:"framework"`
	LogLevel  string          `yaml:"log_level"`
	StaticDir string          `yaml:"static_dir"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds listener and per-request limits.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodySize     int64         `yaml:"max_body_size"`

	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP
	TrustProxy  bool `yaml:"trust_proxy"`
	EnableTrace bool `yaml:"enable_trace"`

	// CORSOrigins enables CORS headers when non-empty
	CORSOrigins []string `yaml:"cors_origins"`
}

// RateLimitConfig paces requests per client IP.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`

	// Burst is the slack allowed after a quiet period (router) or the
	// extra requests allowed per window (chi)
	Burst int `yaml:"burst"`

	// MaxWaiting caps queued requests per client before 429 (router only)
	MaxWaiting int `yaml:"max_waiting"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Framework: FrameworkRouter,
		LogLevel:  "info",
		StaticDir: "./static",
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodySize:     1 << 20,
			EnableTrace:     true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             10,
			MaxWaiting:        100,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "sayhi",
		},
	}
}

// Load reads path on top of Default and validates the result.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	// #nosec G304 -- the config path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse %s: multiple documents or trailing content", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Framework {
	case FrameworkRouter, FrameworkChi:
	default:
		return fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidFramework, c.Framework, FrameworkRouter, FrameworkChi)
	}
	if c.Server.Addr == "" {
		return ErrMissingAddr
	}
	if c.Server.RequestTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.Server.MaxBodySize < 0 {
		return ErrInvalidBodySize
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("%w: requests_per_second must be positive", ErrInvalidRateLimit)
		}
		if c.RateLimit.Burst < 0 || c.RateLimit.MaxWaiting < 0 {
			return fmt.Errorf("%w: burst and max_waiting must not be negative", ErrInvalidRateLimit)
		}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLogLevel, err)
	}
	return nil
}
