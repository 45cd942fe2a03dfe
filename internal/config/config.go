// Package config resolves the runtime configuration of the srg tools once,
// at startup, from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Processor ProcessorConfig `envPrefix:"PROC_"`
	Catalog   CatalogConfig   `envPrefix:"CATALOG_"`
	ASF       ASFConfig       `envPrefix:"ASF_"`
	CMR       CMRConfig       `envPrefix:"CMR_"`
	Orbit     OrbitConfig     `envPrefix:"ORBIT_"`
	DEM       DEMConfig       `envPrefix:"DEM_"`
	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Work      WorkConfig      `envPrefix:"WORK_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
}

// ProcessorConfig locates the external processor installation.
type ProcessorConfig struct {
	// Home is the processor root. processor.NewRunner rejects it when empty,
	// so only processing commands need it.
	Home string `env:"HOME"`
	// Timeout bounds a single module invocation; 0 disables it.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"0s"`
	// MaxOutput is how many trailing stderr bytes an ExitError keeps.
	MaxOutput int `env:"MAX_OUTPUT" envDefault:"8192"`
}

// CatalogConfig selects where raw scenes are looked up and searched.
type CatalogConfig struct {
	// Backend is "asf" or "cmr"
	Backend string `env:"BACKEND" envDefault:"asf"`
}

// ASFConfig contains ASF API client configuration.
type ASFConfig struct {
	BaseURL         string        `env:"BASE_URL" envDefault:"https://api.daac.asf.alaska.edu"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"30s"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"1h"`
}

// CMRConfig contains CMR API client configuration.
type CMRConfig struct {
	BaseURL  string        `env:"BASE_URL" envDefault:"https://cmr.earthdata.nasa.gov/search"`
	Provider string        `env:"PROVIDER" envDefault:"ASF"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// OrbitConfig names the public bucket holding precise orbit files.
type OrbitConfig struct {
	Bucket string `env:"BUCKET" envDefault:"s1-orbits"`
	Region string `env:"REGION" envDefault:"us-west-2"`
}

// DEMConfig contains DEM provisioning settings.
type DEMConfig struct {
	GeoidURL string `env:"GEOID_URL" envDefault:"https://ffwilliams2-shenanigans.s3.us-west-2.amazonaws.com/lavas/egm2008_geoid_grid"`
}

// StorageConfig configures the object store clients.
type StorageConfig struct {
	S3Region           string `env:"S3_REGION" envDefault:"us-west-2"`
	S3Endpoint         string `env:"S3_ENDPOINT"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

// WorkConfig contains working directory defaults.
type WorkConfig struct {
	Dir         string `env:"DIR" envDefault:"."`
	Concurrency int    `env:"CONCURRENCY" envDefault:"4"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	JobTTL          time.Duration `env:"JOB_TTL" envDefault:"24h"`
	QueueDepth      int           `env:"QUEUE_DEPTH" envDefault:"16"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Load parses configuration from environment variables.
// It returns an error if any value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Processor.Timeout < 0 {
		return fmt.Errorf("processor timeout must not be negative, got %s", c.Processor.Timeout)
	}

	if c.Processor.MaxOutput < 0 {
		return fmt.Errorf("processor max output must not be negative, got %d", c.Processor.MaxOutput)
	}

	if c.Catalog.Backend != "asf" && c.Catalog.Backend != "cmr" {
		return fmt.Errorf("catalog backend must be 'asf' or 'cmr', got %q", c.Catalog.Backend)
	}

	if c.ASF.BaseURL == "" {
		return fmt.Errorf("ASF base URL is required")
	}

	if c.ASF.Timeout <= 0 {
		return fmt.Errorf("ASF timeout must be positive, got %s", c.ASF.Timeout)
	}

	if c.ASF.DownloadTimeout <= 0 {
		return fmt.Errorf("ASF download timeout must be positive, got %s", c.ASF.DownloadTimeout)
	}

	if c.CMR.BaseURL == "" {
		return fmt.Errorf("CMR base URL is required")
	}

	if c.CMR.Timeout <= 0 {
		return fmt.Errorf("CMR timeout must be positive, got %s", c.CMR.Timeout)
	}

	if c.Orbit.Bucket == "" {
		return fmt.Errorf("orbit bucket is required")
	}

	if c.DEM.GeoidURL == "" {
		return fmt.Errorf("DEM geoid URL is required")
	}

	if c.Work.Dir == "" {
		return fmt.Errorf("work directory is required")
	}

	if c.Work.Concurrency < 1 {
		return fmt.Errorf("work concurrency must be at least 1, got %d", c.Work.Concurrency)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if c.Server.JobTTL <= 0 {
		return fmt.Errorf("server job TTL must be positive, got %s", c.Server.JobTTL)
	}

	if c.Server.QueueDepth < 1 {
		return fmt.Errorf("server queue depth must be at least 1, got %d", c.Server.QueueDepth)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
