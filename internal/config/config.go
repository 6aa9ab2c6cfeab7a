// Package config provides configuration loading for vectoradmin.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete vectoradmin configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	NATS       NATSConfig       `koanf:"nats"`
	Storage    StorageConfig    `koanf:"storage"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds the relational record store configuration.
type DatabaseConfig struct {
	// Driver selects the gorm driver: "sqlite" or "postgres".
	Driver string `koanf:"driver"`

	// DSN is the driver-specific connection string. For sqlite this is a
	// file path; for postgres a standard connection string.
	DSN string `koanf:"dsn"`
}

// NATSConfig holds the job dispatch channel configuration.
type NATSConfig struct {
	// URL of the NATS server. Ignored when Embedded is true.
	URL string `koanf:"url"`

	// Embedded runs an in-process NATS server. Suitable for single-node
	// deployments and development.
	Embedded bool `koanf:"embedded"`
}

// StorageConfig holds on-disk storage locations.
type StorageConfig struct {
	// VectorCacheDir is the directory holding cached vector files.
	VectorCacheDir string `koanf:"vector_cache_dir"`
}

// EmbeddingsConfig holds text-embedding provider configuration.
type EmbeddingsConfig struct {
	// Model is the OpenAI embedding model name.
	Model string `koanf:"model"`

	// Dimensions is the embedding width produced by Model.
	Dimensions int `koanf:"dimensions"`

	// APIKey is a fallback key used when no open_ai_api_key system
	// setting is present.
	APIKey string `koanf:"api_key"`
}

// LoggingConfig holds process logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn required")
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return fmt.Errorf("nats url required when embedded server is disabled")
	}
	if c.Storage.VectorCacheDir == "" {
		return fmt.Errorf("vector cache directory required")
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format: %s (supported: json, console)", c.Logging.Format)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3355
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "storage/vectoradmin.db"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}

	if cfg.Storage.VectorCacheDir == "" {
		cfg.Storage.VectorCacheDir = "storage/vector-cache"
	}

	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-ada-002"
	}
	if cfg.Embeddings.Dimensions == 0 {
		cfg.Embeddings.Dimensions = 1536
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
