// Package config provides configuration management for a cachebay instance.
// This demonstrates the same practices the rest of the stack follows:
//   - environment-specific settings
//   - validation with struct tags
//   - feature flags for optional subsystems
//   - sensible defaults with overrides
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete configuration for a cachebay instance (spec
// SPEC_FULL §10.3).
type Config struct {
	Environment Environment `yaml:"environment" json:"environment" validate:"required,oneof=development staging production"`
	Logging     Logging     `yaml:"logging" json:"logging"`
	Metrics     Metrics     `yaml:"metrics" json:"metrics"`
	Tracing     Tracing     `yaml:"tracing" json:"tracing"`
	Connection  Connection  `yaml:"connection" json:"connection"`
	GC          GC          `yaml:"gc" json:"gc"`
	Persistence Persistence `yaml:"persistence" json:"persistence"`
	Features    Features    `yaml:"features" json:"features"`

	Version    string   `yaml:"version" json:"version"`
	LoadedFrom []string `yaml:"-" json:"-"`
}

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Logging configures the zap logger threaded through every component
// (spec SPEC_FULL §10.1).
type Logging struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=json console"`
	Output string `yaml:"output" json:"output" validate:"oneof=stdout stderr"`
}

// Metrics configures the prometheus counters exposed by the telemetry
// package (spec SPEC_FULL §10.6, §11).
type Metrics struct {
	Enabled    bool             `yaml:"enabled" json:"enabled"`
	Namespace  string           `yaml:"namespace" json:"namespace" validate:"omitempty,min=1,max=255"`
	Prometheus PrometheusConfig `yaml:"prometheus" json:"prometheus"`
}

// PrometheusConfig contains the exposition endpoint settings.
type PrometheusConfig struct {
	Port int    `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	Path string `yaml:"path" json:"path" validate:"omitempty,startswith=/"`
}

// Tracing configures otel spans around normalize/materialize/canonical
// rebuild (spec SPEC_FULL §10.6, §11).
type Tracing struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint" validate:"omitempty,url"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate" validate:"min=0,max=1"`
}

// Connection selects the cache's default read decision mode (see
// internal/wire ProvideCacheConfig): "page" makes reads strict, resolving
// @connection fields to the concrete page; "infinite" reads through the
// canonical union. It does not change the mode compiled for a document's
// @connection fields.
type Connection struct {
	DefaultMode string `yaml:"default_mode" json:"default_mode" validate:"oneof=infinite page"`
}

// GC controls the optional background sweeper for canonical connections
// (spec §5, SPEC_FULL §12 "gc.connections(predicate)").
type GC struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Interval time.Duration `yaml:"interval" json:"interval" validate:"omitempty,min=1s"`
	IdleTTL  time.Duration `yaml:"idle_ttl" json:"idle_ttl" validate:"omitempty,min=1s"`
}

// Persistence controls the optional file-backed dehydrate/hydrate snapshot
// store watched for external changes via fsnotify (spec SPEC_FULL §11).
type Persistence struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Dir     string        `yaml:"dir" json:"dir" validate:"required_if=Enabled true"`
	Debounce time.Duration `yaml:"debounce" json:"debounce" validate:"omitempty,min=10ms"`
}

// Features toggles optional cache subsystems.
type Features struct {
	EnableOptimistic   bool `yaml:"enable_optimistic" json:"enable_optimistic"`
	EnableBatchedNotify bool `yaml:"enable_batched_notify" json:"enable_batched_notify"`
}

// Load builds a Config from environment variables and defaults, the way
// LoadConfig works for the rest of the stack.
func Load() Config {
	cfg := Config{
		Environment: getEnvironment(),
		Logging:     loadLoggingConfig(),
		Metrics:     loadMetricsConfig(),
		Tracing:     loadTracingConfig(),
		Connection:  loadConnectionConfig(),
		GC:          loadGCConfig(),
		Persistence: loadPersistenceConfig(),
		Features:    loadFeatures(),
		Version:     "1.0.0",
	}
	cfg.applyEnvironmentDefaults()
	return cfg
}

// Validate validates the configuration using struct tags and business rules.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errs []string
			for _, e := range validationErrors {
				errs = append(errs, formatValidationError(e))
			}
			return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return c.validateBusinessRules()
}

func (c *Config) validateBusinessRules() error {
	if c.GC.Enabled && c.GC.Interval == 0 {
		return fmt.Errorf("gc.interval must be set when gc is enabled")
	}
	if c.Persistence.Enabled && c.Persistence.Dir == "" {
		return fmt.Errorf("persistence.dir is required when persistence is enabled")
	}
	return nil
}

func formatValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()
	param := e.Param()
	switch tag {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}

func (c *Config) applyEnvironmentDefaults() {
	switch c.Environment {
	case Production:
		c.Logging.Level = "info"
		c.Metrics.Enabled = true
	case Development:
		c.Logging.Level = "debug"
		c.Logging.Format = "console"
	case Staging:
		c.Metrics.Enabled = true
	}
}

func getEnvironment() Environment {
	env := os.Getenv("CACHEBAY_ENV")
	switch strings.ToLower(env) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

func loadLoggingConfig() Logging {
	return Logging{
		Level:  getEnvString("CACHEBAY_LOG_LEVEL", "info"),
		Format: getEnvString("CACHEBAY_LOG_FORMAT", "json"),
		Output: getEnvString("CACHEBAY_LOG_OUTPUT", "stdout"),
	}
}

func loadMetricsConfig() Metrics {
	return Metrics{
		Enabled:   getEnvBool("CACHEBAY_METRICS_ENABLED", false),
		Namespace: getEnvString("CACHEBAY_METRICS_NAMESPACE", "cachebay"),
		Prometheus: PrometheusConfig{
			Port: getEnvInt("CACHEBAY_METRICS_PORT", 9090),
			Path: getEnvString("CACHEBAY_METRICS_PATH", "/metrics"),
		},
	}
}

func loadTracingConfig() Tracing {
	return Tracing{
		Enabled:     getEnvBool("CACHEBAY_TRACING_ENABLED", false),
		ServiceName: getEnvString("CACHEBAY_TRACING_SERVICE_NAME", "cachebay"),
		Endpoint:    getEnvString("CACHEBAY_TRACING_ENDPOINT", ""),
		SampleRate:  getEnvFloat("CACHEBAY_TRACING_SAMPLE_RATE", 0.1),
	}
}

func loadConnectionConfig() Connection {
	return Connection{
		DefaultMode: getEnvString("CACHEBAY_CONNECTION_DEFAULT_MODE", "infinite"),
	}
}

func loadGCConfig() GC {
	return GC{
		Enabled:  getEnvBool("CACHEBAY_GC_ENABLED", false),
		Interval: getEnvDuration("CACHEBAY_GC_INTERVAL", 5*time.Minute),
		IdleTTL:  getEnvDuration("CACHEBAY_GC_IDLE_TTL", 30*time.Minute),
	}
}

func loadPersistenceConfig() Persistence {
	return Persistence{
		Enabled:  getEnvBool("CACHEBAY_PERSIST_ENABLED", false),
		Dir:      getEnvString("CACHEBAY_PERSIST_DIR", ""),
		Debounce: getEnvDuration("CACHEBAY_PERSIST_DEBOUNCE", 500*time.Millisecond),
	}
}

func loadFeatures() Features {
	return Features{
		EnableOptimistic:    getEnvBool("CACHEBAY_ENABLE_OPTIMISTIC", true),
		EnableBatchedNotify: getEnvBool("CACHEBAY_ENABLE_BATCHED_NOTIFY", false),
	}
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
