package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
	if cfg.Store.Provider != "memory" {
		t.Errorf("Store.Provider = %q, want memory", cfg.Store.Provider)
	}
	if cfg.Chromem.Collection != "schema_context" || cfg.Qdrant.Collection != "schema_context" {
		t.Errorf("collections = %q/%q, want schema_context", cfg.Chromem.Collection, cfg.Qdrant.Collection)
	}
	if cfg.Qdrant.Port != 6334 {
		t.Errorf("Qdrant.Port = %d, want 6334", cfg.Qdrant.Port)
	}
	if cfg.Retrieval.DefaultK != 5 {
		t.Errorf("Retrieval.DefaultK = %d, want 5", cfg.Retrieval.DefaultK)
	}
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled = true, want disabled by default")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Store.Provider = "milvus" }, "unsupported store provider"},
		{"zero dimension", func(c *Config) { c.Embeddings.Dimension = -1 }, "dimension must be positive"},
		{"qdrant bad port", func(c *Config) { c.Store.Provider = "qdrant"; c.Qdrant.Port = 70000 }, "invalid qdrant port"},
		{"non-positive k", func(c *Config) { c.Retrieval.DefaultK = -3 }, "default_k"},
		{"non-positive concurrency", func(c *Config) { c.Retrieval.IngestConcurrency = -1 }, "ingest_concurrency"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
		{"bad telemetry protocol", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Protocol = "udp" }, "telemetry protocol"},
		{"bad sample rate", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.SampleRate = 1.5 }, "sample_rate"},
		{"disabled telemetry ignores protocol", func(c *Config) { c.Telemetry.Protocol = "udp" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("postgres://user:pw@db/app")

	if s.String() != "[REDACTED]" {
		t.Errorf("String() = %q", s.String())
	}
	if got := fmt.Sprintf("%v %s %#v", s, s, s); strings.Contains(got, "pw@db") {
		t.Errorf("formatted secret leaked: %q", got)
	}
	data, err := json.Marshal(struct{ DSN Secret }{s})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "pw@db") {
		t.Errorf("json leaked secret: %s", data)
	}
	if s.Value() != "postgres://user:pw@db/app" || !s.IsSet() {
		t.Error("Value()/IsSet() lost the secret")
	}
	if Secret("").String() != "" {
		t.Error("empty secret should render empty")
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1500ms")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration().Milliseconds() != 1500 {
		t.Errorf("Duration() = %v, want 1.5s", d.Duration())
	}
	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("negative duration accepted")
	}
}
