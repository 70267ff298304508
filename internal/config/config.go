// Package config provides configuration loading for skatepedia.
//
// Configuration comes from an optional YAML file, then SKATEPEDIA_* environment
// variables, then built-in defaults, and is validated before use.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete skatepedia configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	NATS      NATSConfig      `koanf:"nats"`
	Storage   StorageConfig   `koanf:"storage"`
	Media     MediaConfig     `koanf:"media"`
	Feed      FeedConfig      `koanf:"feed"`
	Screens   ScreensConfig   `koanf:"screens"`
	Auth      AuthConfig      `koanf:"auth"`
	Likes     LikesConfig     `koanf:"likes"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	Heartbeat       Duration `koanf:"heartbeat"` // SSE keepalive interval
}

// NATSConfig holds broker connection settings.
type NATSConfig struct {
	URL           string   `koanf:"url"`
	Embedded      bool     `koanf:"embedded"`
	StoreDir      string   `koanf:"store_dir"`
	MaxReconnects int      `koanf:"max_reconnects"`
	ReconnectWait Duration `koanf:"reconnect_wait"`
}

// StorageConfig selects the document and object drivers.
type StorageConfig struct {
	Driver       string `koanf:"driver"` // "nats" or "memory"
	Bucket       string `koanf:"bucket"`
	ObjectBucket string `koanf:"object_bucket"`
}

// MediaConfig controls video uploads.
type MediaConfig struct {
	BaseURL     string `koanf:"base_url"`
	MaxUploadMB int    `koanf:"max_upload_mb"`
	ContentType string `koanf:"content_type"`
}

// FeedConfig controls live collections.
type FeedConfig struct {
	PageSize    int    `koanf:"page_size"`
	Window      int    `koanf:"window"`
	MergePolicy string `koanf:"merge_policy"` // "replace" or "retain_tail"
}

// ScreensConfig bounds server-side screen sessions.
type ScreensConfig struct {
	IdleTimeout   Duration `koanf:"idle_timeout"`
	SweepInterval Duration `koanf:"sweep_interval"`
	MaxPerUser    int      `koanf:"max_per_user"`
}

// AuthConfig holds bearer token validation settings.
type AuthConfig struct {
	Secret   Secret   `koanf:"secret"`
	Issuer   string   `koanf:"issuer"`
	TokenTTL Duration `koanf:"token_ttl"`
	Disabled bool     `koanf:"disabled"` // trusts the X-User-ID header; development only
}

// LikesConfig throttles likes per user.
type LikesConfig struct {
	PerMinute int `koanf:"per_minute"`
	Burst     int `koanf:"burst"`
}

// LoggingConfig is the subset of logging options exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	Protocol     string  `koanf:"protocol"` // "grpc" or "http/protobuf"
	Insecure     bool    `koanf:"insecure"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.Storage.Driver {
	case "memory":
	case "nats":
		if !c.NATS.Embedded && c.NATS.URL == "" {
			errs = append(errs, errors.New("nats.url is required unless nats.embedded is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be 'nats' or 'memory', got %q", c.Storage.Driver))
	}

	if _, err := url.ParseRequestURI(c.Media.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("media.base_url: %w", err))
	}
	if c.Media.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("media.max_upload_mb must be positive"))
	}

	if c.Feed.PageSize <= 0 {
		errs = append(errs, errors.New("feed.page_size must be positive"))
	}
	if c.Feed.Window < 0 {
		errs = append(errs, errors.New("feed.window cannot be negative"))
	}
	if c.Feed.MergePolicy != "replace" && c.Feed.MergePolicy != "retain_tail" {
		errs = append(errs, fmt.Errorf("feed.merge_policy must be 'replace' or 'retain_tail', got %q", c.Feed.MergePolicy))
	}

	if c.Screens.MaxPerUser <= 0 {
		errs = append(errs, errors.New("screens.max_per_user must be positive"))
	}
	if c.Screens.IdleTimeout <= 0 || c.Screens.SweepInterval <= 0 {
		errs = append(errs, errors.New("screens.idle_timeout and screens.sweep_interval must be positive"))
	}

	if !c.Auth.Disabled && c.Auth.Secret.Value() == "" {
		errs = append(errs, errors.New("auth.secret is required unless auth.disabled is set"))
	}

	if c.Likes.PerMinute <= 0 || c.Likes.Burst <= 0 {
		errs = append(errs, errors.New("likes.per_minute and likes.burst must be positive"))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate))
	}

	return errors.Join(errs...)
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.Heartbeat == 0 {
		cfg.Server.Heartbeat = Duration(30 * time.Second)
	}

	if cfg.NATS.URL == "" && !cfg.NATS.Embedded {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.MaxReconnects == 0 {
		cfg.NATS.MaxReconnects = 5
	}
	if cfg.NATS.ReconnectWait == 0 {
		cfg.NATS.ReconnectWait = Duration(time.Second)
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "nats"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "skatepedia"
	}
	if cfg.Storage.ObjectBucket == "" {
		cfg.Storage.ObjectBucket = "skatepedia-media"
	}

	if cfg.Media.BaseURL == "" {
		cfg.Media.BaseURL = "http://localhost:8080/media"
	}
	if cfg.Media.MaxUploadMB == 0 {
		cfg.Media.MaxUploadMB = 200
	}
	if cfg.Media.ContentType == "" {
		cfg.Media.ContentType = "video/quicktime"
	}

	if cfg.Feed.PageSize == 0 {
		cfg.Feed.PageSize = 10
	}
	if cfg.Feed.MergePolicy == "" {
		cfg.Feed.MergePolicy = "replace"
	}

	if cfg.Screens.IdleTimeout == 0 {
		cfg.Screens.IdleTimeout = Duration(10 * time.Minute)
	}
	if cfg.Screens.SweepInterval == 0 {
		cfg.Screens.SweepInterval = Duration(time.Minute)
	}
	if cfg.Screens.MaxPerUser == 0 {
		cfg.Screens.MaxPerUser = 8
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "skatepedia"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = Duration(24 * time.Hour)
	}

	if cfg.Likes.PerMinute == 0 {
		cfg.Likes.PerMinute = 30
	}
	if cfg.Likes.Burst == 0 {
		cfg.Likes.Burst = 5
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
}
