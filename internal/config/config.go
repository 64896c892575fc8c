// ./internal/config/config.go

package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the engine-wide knobs. Every value can be overridden
// from the environment; a .env file in the working directory is loaded
// first when present.
type Config struct {
	// DistinctCap is K: the hard cap on distinct-value samples used by
	// allowed-value and regex discovery.
	DistinctCap int
	// Epsilon is the fuzzy-comparison tolerance at numeric boundary
	// checks.
	Epsilon float64
	// StrictTypes makes int and real distinct during verification.
	StrictTypes bool
	// DiscoverRex enables regular-expression induction on string
	// fields during discovery.
	DiscoverRex bool
	// MaxAlternation caps merged literal alternations in induced
	// patterns.
	MaxAlternation int
	// Workers bounds per-field concurrency in discovery and
	// verification. 0 means one goroutine per field.
	Workers int
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// NewDefaultConfig creates a Config struct with sensible default values.
func NewDefaultConfig() Config {
	return Config{
		DistinctCap:    20,
		Epsilon:        0,
		StrictTypes:    false,
		DiscoverRex:    true,
		MaxAlternation: 8,
		Workers:        0,
		LogLevel:       "info",
	}
}

// LoadConfig loads configuration with a clear precedence: Environment > .env > Defaults.
func LoadConfig() Config {
	cfg := NewDefaultConfig()
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env file")
	}
	applyEnvConfig(&cfg)
	return cfg
}

// applyEnvConfig overrides config values from environment variables.
func applyEnvConfig(cfg *Config) {
	if capEnv := os.Getenv("TDDA_DISTINCT_CAP"); capEnv != "" {
		if i, err := strconv.Atoi(capEnv); err == nil && i > 0 {
			cfg.DistinctCap = i
			slog.Info("Overriding DistinctCap from environment", "value", i)
		} else {
			slog.Warn("Invalid TDDA_DISTINCT_CAP env var, using default", "value", capEnv)
		}
	}

	if epsEnv := os.Getenv("TDDA_EPSILON"); epsEnv != "" {
		if f, err := strconv.ParseFloat(epsEnv, 64); err == nil && f >= 0 {
			cfg.Epsilon = f
			slog.Info("Overriding Epsilon from environment", "value", f)
		} else {
			slog.Warn("Invalid TDDA_EPSILON env var, using default", "value", epsEnv)
		}
	}

	if strictEnv := os.Getenv("TDDA_STRICT_TYPES"); strictEnv != "" {
		if b, err := strconv.ParseBool(strictEnv); err == nil {
			cfg.StrictTypes = b
			slog.Info("Overriding StrictTypes from environment", "value", b)
		} else {
			slog.Warn("Invalid TDDA_STRICT_TYPES env var, using default", "value", strictEnv)
		}
	}

	if rexEnv := os.Getenv("TDDA_DISCOVER_REX"); rexEnv != "" {
		if b, err := strconv.ParseBool(rexEnv); err == nil {
			cfg.DiscoverRex = b
			slog.Info("Overriding DiscoverRex from environment", "value", b)
		} else {
			slog.Warn("Invalid TDDA_DISCOVER_REX env var, using default", "value", rexEnv)
		}
	}

	if altEnv := os.Getenv("TDDA_MAX_ALTERNATION"); altEnv != "" {
		if i, err := strconv.Atoi(altEnv); err == nil && i > 0 {
			cfg.MaxAlternation = i
			slog.Info("Overriding MaxAlternation from environment", "value", i)
		} else {
			slog.Warn("Invalid TDDA_MAX_ALTERNATION env var, using default", "value", altEnv)
		}
	}

	if workersEnv := os.Getenv("TDDA_WORKERS"); workersEnv != "" {
		if i, err := strconv.Atoi(workersEnv); err == nil && i >= 0 {
			cfg.Workers = i
			slog.Info("Overriding Workers from environment", "value", i)
		} else {
			slog.Warn("Invalid TDDA_WORKERS env var, using default", "value", workersEnv)
		}
	}

	if levelEnv := os.Getenv("TDDA_LOG_LEVEL"); levelEnv != "" {
		cfg.LogLevel = levelEnv
	}
}

// SlogLevel maps the configured level name onto a slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
