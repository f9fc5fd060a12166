// Package config provides configuration management for the reconciliation engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process-wide configuration, loaded once at startup and
// treated as read-only from then on (mirrors the registry's own lifecycle,
// spec §3 "Lifecycle").
type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	Reconcile ReconcileConfig
	LLM       LLMConfig
	Safety    SafetyConfig
	Tracing   TracingConfig
	Logging   LoggingConfig
}

// ServerConfig holds the HTTP collaborator surface's bind settings.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// CatalogConfig controls how the metadata registry (C1) is loaded.
type CatalogConfig struct {
	// Mode selects the loader: "flatfile" (a directory of YAML descriptors)
	// or "relational" (a bun-backed SQL schema, one table per concept).
	Mode       string
	FlatFileDir string
	DatabaseURL string
}

// ReconcileConfig controls defaults for the diff/attribution/grain-resolution stages.
type ReconcileConfig struct {
	// DefaultAbsTolerance / DefaultRelTolerance seed the per-metric tolerance
	// policy (spec §4.7) when a metric has none configured.
	DefaultAbsTolerance float64
	DefaultRelTolerance float64

	// TopN bounds the size of DiffResult.differences and Attribution output (spec §4.8).
	TopN int

	// MappingFanoutCeiling bounds maps_grain traversal cardinality (spec §4.5).
	MappingFanoutCeiling int

	// FreshnessThreshold is how old last_updated may be before C9 classifies
	// a mismatch as "freshness" rather than "value_mismatch".
	FreshnessThreshold time.Duration

	// SampleRowsPerSide bounds attribution's per-side sample rows (C8's "K").
	SampleRowsPerSide int
}

// LLMConfig configures the bounded, optional LLM call made by the intent compiler (C2).
type LLMConfig struct {
	Provider string // "anthropic", "openai", or "" to force the heuristic fallback
	APIKey   string
	Model    string
	MaxTokens int
	Deadline  time.Duration
}

// SafetyConfig configures C12's resource limits and retry bounds.
type SafetyConfig struct {
	RequestDeadline   time.Duration
	MaxInFlightRows   int64
	MaxPeakMemoryMB   int64
	MaxJoinFanout     int64
	ScanRetryAttempts int
	ScanRetryBaseDelay time.Duration
}

// TracingConfig configures the observability layer (C11).
type TracingConfig struct {
	ServiceName   string
	SampleRatio   float64
	RingBufferCap int
}

// LoggingConfig controls the slog wrapper in internal/logger.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Load reads configuration from environment variables (optionally from a
// .env file, loaded best-effort via godotenv), applying defaults for
// anything unset, then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("RCA_PORT", 8080),
			Host:            getEnv("RCA_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("RCA_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("RCA_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("RCA_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Catalog: CatalogConfig{
			Mode:        getEnv("RCA_CATALOG_MODE", "flatfile"),
			FlatFileDir: getEnv("RCA_CATALOG_DIR", "./catalog"),
			DatabaseURL: getEnv("RCA_CATALOG_DATABASE_URL", ""),
		},
		Reconcile: ReconcileConfig{
			DefaultAbsTolerance:  getEnvAsFloat("RCA_DEFAULT_ABS_TOLERANCE", 0),
			DefaultRelTolerance:  getEnvAsFloat("RCA_DEFAULT_REL_TOLERANCE", 0),
			TopN:                 getEnvAsInt("RCA_TOP_N", 25),
			MappingFanoutCeiling: getEnvAsInt("RCA_MAPPING_FANOUT_CEILING", 50),
			FreshnessThreshold:   getEnvAsDuration("RCA_FRESHNESS_THRESHOLD", 24*time.Hour),
			SampleRowsPerSide:    getEnvAsInt("RCA_SAMPLE_ROWS_PER_SIDE", 5),
		},
		LLM: LLMConfig{
			Provider:  getEnv("RCA_LLM_PROVIDER", ""),
			APIKey:    getEnv("RCA_LLM_API_KEY", ""),
			Model:     getEnv("RCA_LLM_MODEL", "claude-sonnet-4-5"),
			MaxTokens: getEnvAsInt("RCA_LLM_MAX_TOKENS", 1024),
			Deadline:  getEnvAsDuration("RCA_LLM_DEADLINE", 8*time.Second),
		},
		Safety: SafetyConfig{
			RequestDeadline:    getEnvAsDuration("RCA_REQUEST_DEADLINE", 30*time.Second),
			MaxInFlightRows:    getEnvAsInt64("RCA_MAX_INFLIGHT_ROWS", 5_000_000),
			MaxPeakMemoryMB:    getEnvAsInt64("RCA_MAX_PEAK_MEMORY_MB", 2048),
			MaxJoinFanout:      getEnvAsInt64("RCA_MAX_JOIN_FANOUT", 10_000_000),
			ScanRetryAttempts:  getEnvAsInt("RCA_SCAN_RETRY_ATTEMPTS", 3),
			ScanRetryBaseDelay: getEnvAsDuration("RCA_SCAN_RETRY_BASE_DELAY", 200*time.Millisecond),
		},
		Tracing: TracingConfig{
			ServiceName:   getEnv("RCA_SERVICE_NAME", "reconciliation-engine"),
			SampleRatio:   getEnvAsFloat("RCA_TRACE_SAMPLE_RATIO", 1.0),
			RingBufferCap: getEnvAsInt("RCA_TRACE_RING_BUFFER_CAP", 1000),
		},
		Logging: LoggingConfig{
			Level:  getEnv("RCA_LOG_LEVEL", "info"),
			Format: getEnv("RCA_LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks field-level invariants, returning the first violation found.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	if c.Catalog.Mode != "flatfile" && c.Catalog.Mode != "relational" {
		return &ValidationError{Field: "catalog.mode", Message: "must be 'flatfile' or 'relational'"}
	}
	if c.Catalog.Mode == "relational" && c.Catalog.DatabaseURL == "" {
		return &ValidationError{Field: "catalog.database_url", Message: "required when catalog.mode is 'relational'"}
	}
	if c.Catalog.Mode == "flatfile" && c.Catalog.FlatFileDir == "" {
		return &ValidationError{Field: "catalog.flatfile_dir", Message: "required when catalog.mode is 'flatfile'"}
	}
	if c.Reconcile.TopN <= 0 {
		return &ValidationError{Field: "reconcile.top_n", Message: "must be positive"}
	}
	if c.Reconcile.MappingFanoutCeiling <= 0 {
		return &ValidationError{Field: "reconcile.mapping_fanout_ceiling", Message: "must be positive"}
	}
	if c.Safety.MaxInFlightRows <= 0 {
		return &ValidationError{Field: "safety.max_inflight_rows", Message: "must be positive"}
	}
	if c.Safety.MaxJoinFanout <= 0 {
		return &ValidationError{Field: "safety.max_join_fanout", Message: "must be positive"}
	}
	return nil
}

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Helper functions for environment variables, following the teacher's
// internal/config pattern (a getEnv family with typed parsing and fallback).

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
