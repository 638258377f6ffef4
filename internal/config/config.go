// Package config provides configuration loading for schemactx.
//
// Configuration is read from a YAML file, overridden by environment variables and
// completed with defaults. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete schemactx configuration.
type Config struct {
	Store      StoreConfig      `koanf:"store"`
	Memory     MemoryConfig     `koanf:"memory"`
	Chromem    ChromemConfig    `koanf:"chromem"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Introspect IntrospectConfig `koanf:"introspect"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	// Provider is one of "memory" (default), "chromem" or "qdrant".
	Provider string `koanf:"provider"`
}

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	SnapshotPath string `koanf:"snapshot_path"` // empty disables persistence
	Compress     bool   `koanf:"compress"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
}

// QdrantConfig configures the Qdrant store.
type QdrantConfig struct {
	Host       string   `koanf:"host"`
	Port       int      `koanf:"port"`
	Collection string   `koanf:"collection"`
	UseTLS     bool     `koanf:"use_tls"`
	APIKey     Secret   `koanf:"api_key"`
	Timeout    Duration `koanf:"timeout"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	Dimension int    `koanf:"dimension"`
}

// RetrievalConfig configures the retrieval engine.
type RetrievalConfig struct {
	DefaultK          int `koanf:"default_k"`
	IngestConcurrency int `koanf:"ingest_concurrency"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// IntrospectConfig configures the PostgreSQL catalog reader.
type IntrospectConfig struct {
	DSN      Secret `koanf:"dsn"`
	DBSchema string `koanf:"db_schema"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Store.Provider == "" {
		cfg.Store.Provider = "memory"
	}

	if cfg.Chromem.Path == "" {
		cfg.Chromem.Path = "~/.config/schemactx/vectorstore"
	}
	if cfg.Chromem.Collection == "" {
		cfg.Chromem.Collection = "schema_context"
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "schema_context"
	}
	if cfg.Qdrant.Timeout == 0 {
		cfg.Qdrant.Timeout = Duration(5 * time.Second)
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "hash"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 512
	}

	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 5
	}
	if cfg.Retrieval.IngestConcurrency == 0 {
		cfg.Retrieval.IngestConcurrency = 4
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
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "schemactx"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Introspect.DBSchema == "" {
		cfg.Introspect.DBSchema = "public"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Store.Provider {
	case "memory", "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported store provider %q (supported: memory, chromem, qdrant)", c.Store.Provider)
	}

	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings dimension must be positive, got %d", c.Embeddings.Dimension)
	}

	if c.Store.Provider == "qdrant" && (c.Qdrant.Port < 1 || c.Qdrant.Port > 65535) {
		return fmt.Errorf("invalid qdrant port: %d (must be 1-65535)", c.Qdrant.Port)
	}

	if c.Retrieval.DefaultK <= 0 {
		return errors.New("retrieval default_k must be positive")
	}
	if c.Retrieval.IngestConcurrency <= 0 {
		return errors.New("retrieval ingest_concurrency must be positive")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			return fmt.Errorf("telemetry protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
		}
	}

	return nil
}
