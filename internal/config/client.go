// Package config loads and validates the client SDK configuration.
// Configuration comes from the environment (TASKDECK_* keys) or a YAML
// file with environment overrides; there is no command-line surface.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"taskdeck-client/internal/apiclient"
	"taskdeck-client/internal/realtime"
	pkgconfig "taskdeck-client/pkg/config"

	"gopkg.in/yaml.v3"
)

// Config is the full client SDK configuration.
type Config struct {
	API      apiclient.Config
	Realtime realtime.Config
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		API: apiclient.Config{
			BaseURL:        "http://localhost:8080",
			Timeout:        15 * time.Second,
			CSRFHeader:     "X-CSRF-Token",
			BreakerEnabled: true,
		},
		Realtime: realtime.Config{
			Enabled: true,
			URL:     "ws://localhost:8080/realtime",
		},
	}
}

// Load builds the configuration from environment variables on top of the
// built-in defaults and validates it.
func Load() (Config, error) {
	cfg := applyEnv(Defaults())
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile loads configuration from a YAML file, applies environment
// overrides on top, and validates the result.
// The path parameter is expected to come from a trusted source.
func LoadFile(path string) (Config, error) {
	// #nosec G304 -- path is provided by the hosting application, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg, err := file.apply(Defaults())
	if err != nil {
		return Config{}, fmt.Errorf("config file invalid: %w", err)
	}

	cfg = applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays TASKDECK_* environment variables onto base.
func applyEnv(base Config) Config {
	base.API.BaseURL = pkgconfig.GetEnvString("TASKDECK_API_URL", base.API.BaseURL)
	base.API.Timeout = pkgconfig.GetEnvDuration("TASKDECK_REQUEST_TIMEOUT", base.API.Timeout)
	base.API.CSRFHeader = pkgconfig.GetEnvString("TASKDECK_CSRF_HEADER", base.API.CSRFHeader)
	base.API.RatePerSecond = pkgconfig.GetEnvFloat("TASKDECK_RATE_PER_SECOND", base.API.RatePerSecond)
	base.API.RateBurst = pkgconfig.GetEnvInt("TASKDECK_RATE_BURST", base.API.RateBurst)
	base.API.BreakerEnabled = pkgconfig.GetEnvBool("TASKDECK_BREAKER_ENABLED", base.API.BreakerEnabled)

	base.Realtime.Enabled = pkgconfig.GetEnvBool("TASKDECK_REALTIME_ENABLED", base.Realtime.Enabled)
	base.Realtime.URL = pkgconfig.GetEnvString("TASKDECK_REALTIME_URL", base.Realtime.URL)
	base.Realtime.DomainEvents = pkgconfig.GetEnvStringList("TASKDECK_DOMAIN_EVENTS", base.Realtime.DomainEvents)
	base.Realtime.HandshakeTimeout = pkgconfig.GetEnvDuration("TASKDECK_HANDSHAKE_TIMEOUT", base.Realtime.HandshakeTimeout)

	return base
}

// fileConfig is the YAML shape of the configuration file.
// Durations are strings parseable by time.ParseDuration.
type fileConfig struct {
	API struct {
		BaseURL       string  `yaml:"base_url"`
		Timeout       string  `yaml:"timeout"`
		CSRFHeader    string  `yaml:"csrf_header"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		RateBurst     int     `yaml:"rate_burst"`
		Breaker       *bool   `yaml:"breaker"`
	} `yaml:"api"`
	Realtime struct {
		Enabled      *bool    `yaml:"enabled"`
		URL          string   `yaml:"url"`
		DomainEvents []string `yaml:"domain_events"`
		Handshake    string   `yaml:"handshake_timeout"`
	} `yaml:"realtime"`
}

// apply overlays the file's values onto base.
func (f fileConfig) apply(base Config) (Config, error) {
	if f.API.BaseURL != "" {
		base.API.BaseURL = f.API.BaseURL
	}
	if f.API.Timeout != "" {
		d, err := time.ParseDuration(f.API.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("api.timeout: %w", err)
		}
		base.API.Timeout = d
	}
	if f.API.CSRFHeader != "" {
		base.API.CSRFHeader = f.API.CSRFHeader
	}
	if f.API.RatePerSecond > 0 {
		base.API.RatePerSecond = f.API.RatePerSecond
	}
	if f.API.RateBurst > 0 {
		base.API.RateBurst = f.API.RateBurst
	}
	if f.API.Breaker != nil {
		base.API.BreakerEnabled = *f.API.Breaker
	}

	if f.Realtime.Enabled != nil {
		base.Realtime.Enabled = *f.Realtime.Enabled
	}
	if f.Realtime.URL != "" {
		base.Realtime.URL = f.Realtime.URL
	}
	if len(f.Realtime.DomainEvents) > 0 {
		base.Realtime.DomainEvents = f.Realtime.DomainEvents
	}
	if f.Realtime.Handshake != "" {
		d, err := time.ParseDuration(f.Realtime.Handshake)
		if err != nil {
			return Config{}, fmt.Errorf("realtime.handshake_timeout: %w", err)
		}
		base.Realtime.HandshakeTimeout = d
	}

	return base, nil
}

// Validate checks the configuration for values the SDK cannot run with.
func Validate(cfg Config) error {
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api base URL is required")
	}
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api base URL must be http or https, got %q", cfg.API.BaseURL)
	}
	if err := pkgconfig.ValidatePositiveDuration(cfg.API.Timeout); err != nil {
		return fmt.Errorf("invalid request timeout: %w", err)
	}
	if cfg.API.CSRFHeader == "" {
		return fmt.Errorf("anti-forgery header name is required")
	}

	if cfg.Realtime.Enabled {
		if cfg.Realtime.URL == "" {
			return fmt.Errorf("realtime URL is required when the channel is enabled")
		}
		w, err := url.Parse(cfg.Realtime.URL)
		if err != nil || (w.Scheme != "ws" && w.Scheme != "wss") {
			return fmt.Errorf("realtime URL must be ws or wss, got %q", cfg.Realtime.URL)
		}
	}

	return nil
}
