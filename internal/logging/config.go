package logging

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/schemactx/internal/config"
)

// Config describes the logger built by New.
type Config struct {
	Level  zapcore.Level
	Format string // "json" or "console"

	// Sampling applies below Error. A zero First disables it.
	Sampling Sampling

	// Redact lists lower-case field keys whose values are never written.
	Redact []string
	// RedactPatterns are matched against string values and messages.
	RedactPatterns []string
}

// Sampling keeps the First entries with the same level and message in each
// Tick, then every Thereafter-th one.
type Sampling struct {
	First      int
	Thereafter int
	Tick       time.Duration
}

// DefaultConfig is JSON at info, sampled, with credential scrubbing.
func DefaultConfig() Config {
	return Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Sampling: Sampling{
			First:      100,
			Thereafter: 10,
			Tick:       time.Second,
		},
		Redact: []string{
			"password", "secret", "token", "api_key",
			"authorization", "dsn", "credential",
		},
		RedactPatterns: []string{
			`(?i)bearer\s+\S+`,
			`(?i)api[_-]?key[=:]\s*\S+`,
		},
	}
}

// FromSettings applies the logging section of the application config.
func FromSettings(s config.LoggingConfig) (Config, error) {
	cfg := DefaultConfig()
	if s.Level != "" {
		lvl, err := zapcore.ParseLevel(s.Level)
		if err != nil {
			return Config{}, fmt.Errorf("invalid log level %q: %w", s.Level, err)
		}
		cfg.Level = lvl
	}
	if s.Format != "" {
		cfg.Format = s.Format
	}
	return cfg, cfg.Validate()
}

const maxPatternLen = 200

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Format)
	}
	if c.Sampling.First < 0 || c.Sampling.Thereafter < 0 {
		return errors.New("sampling counts must not be negative")
	}
	if c.Sampling.First > 0 && c.Sampling.Tick <= 0 {
		return errors.New("sampling tick must be positive")
	}
	for _, p := range c.RedactPatterns {
		if len(p) > maxPatternLen {
			return fmt.Errorf("redaction pattern longer than %d characters", maxPatternLen)
		}
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
	}
	return nil
}
