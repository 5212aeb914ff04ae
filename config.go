package perfscope

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exporter names understood by the otelexport package.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// DefaultCardinalityLimit caps the distinct scope names and group labels
// recorded as metric attributes.
const DefaultCardinalityLimit = 100

// Config configures the scope library and its exporters.
//
// Configuration sources are applied in order, later sources winning:
//  1. DefaultConfig
//  2. Environment variables (LoadFromEnv)
//  3. Functional options, including WithConfigFile
type Config struct {
	// Enabled turns recording on. Recording is opt-in and off by default.
	Enabled     bool   `json:"enabled" yaml:"enabled" env:"PERFSCOPE_ENABLED" default:"false"`
	ServiceName string `json:"service_name" yaml:"service_name" env:"PERFSCOPE_SERVICE_NAME,OTEL_SERVICE_NAME" default:"perfscope"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Export  ExportConfig  `json:"export" yaml:"export"`
}

// LoggingConfig configures the library logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"PERFSCOPE_LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"PERFSCOPE_LOG_FORMAT" default:"text"`
}

// ExportConfig selects where finished scope trees are sent.
type ExportConfig struct {
	// Exporter is one of "none", "stdout" or "otlp".
	Exporter string `json:"exporter" yaml:"exporter" env:"PERFSCOPE_EXPORTER" default:"none"`
	// Endpoint is the OTLP gRPC collector address (host:port).
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"PERFSCOPE_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure bool   `json:"insecure" yaml:"insecure" env:"PERFSCOPE_EXPORT_INSECURE" default:"true"`
	// Metrics also records scope and group durations as histograms.
	Metrics bool `json:"metrics" yaml:"metrics" env:"PERFSCOPE_EXPORT_METRICS" default:"false"`
	// MetricsEndpoint is the OTLP HTTP collector address for metrics.
	MetricsEndpoint string `json:"metrics_endpoint" yaml:"metrics_endpoint" env:"PERFSCOPE_METRICS_ENDPOINT"`
	// CardinalityLimit is the number of distinct scope names, and of group
	// labels, kept as metric attributes. Further values are recorded as
	// "other". Zero selects DefaultCardinalityLimit.
	CardinalityLimit int `json:"cardinality_limit" yaml:"cardinality_limit" env:"PERFSCOPE_CARDINALITY_LIMIT" default:"100"`
}

// Option is a functional option for configuring the library.
type Option func(*Config) error

// Profile represents a pre-configured setup.
type Profile string

const (
	ProfileDevelopment Profile = "development"
	ProfileProduction  Profile = "production"
)

// Profiles contains pre-configured setups.
var Profiles = map[Profile]Config{
	ProfileDevelopment: {
		Enabled:     true,
		ServiceName: "perfscope",
		Logging:     LoggingConfig{Level: "debug", Format: "text"},
		Export:      ExportConfig{Exporter: ExporterStdout, Insecure: true},
	},
	ProfileProduction: {
		Enabled:     false,
		ServiceName: "perfscope",
		Logging:     LoggingConfig{Level: "warn", Format: "json"},
		Export: ExportConfig{
			Exporter:        ExporterOTLP,
			Endpoint:        "otel-collector:4317",
			Insecure:        true,
			Metrics:         true,
			MetricsEndpoint: "otel-collector:4318",
		},
	},
}

// UseProfile returns a configuration based on a profile name.
// Unknown profiles fall back to the development profile.
func UseProfile(profile Profile) Config {
	if cfg, ok := Profiles[profile]; ok {
		return cfg
	}
	return Profiles[ProfileDevelopment]
}

// DefaultConfig returns the defaults: recording off, no exporter.
func DefaultConfig() *Config {
	cfg := &Config{
		Enabled:     false,
		ServiceName: "perfscope",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Export: ExportConfig{
			Exporter:         ExporterNone,
			Insecure:         true,
			CardinalityLimit: DefaultCardinalityLimit,
		},
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		cfg.Logging.Format = "json"
	}
	return cfg
}

// NewConfig builds a validated configuration. The environment is applied
// over the defaults first, then the options in order, so options override
// environment variables.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv overlays environment variables onto the configuration.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PERFSCOPE_ENABLED"); v != "" {
		c.Enabled = parseBool(v)
	}

	if v := os.Getenv("PERFSCOPE_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	} else if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}

	if v := os.Getenv("PERFSCOPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PERFSCOPE_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if parseBool(os.Getenv("PERFSCOPE_DEBUG")) {
		c.Logging.Level = "debug"
	}

	if v := os.Getenv("PERFSCOPE_EXPORTER"); v != "" {
		c.Export.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("PERFSCOPE_ENDPOINT"); v != "" {
		c.Export.Endpoint = v
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Export.Endpoint = v
	}
	if v := os.Getenv("PERFSCOPE_EXPORT_INSECURE"); v != "" {
		c.Export.Insecure = parseBool(v)
	}
	if v := os.Getenv("PERFSCOPE_EXPORT_METRICS"); v != "" {
		c.Export.Metrics = parseBool(v)
	}
	if v := os.Getenv("PERFSCOPE_METRICS_ENDPOINT"); v != "" {
		c.Export.MetricsEndpoint = v
	}
	if v := os.Getenv("PERFSCOPE_CARDINALITY_LIMIT"); v != "" {
		limit, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{
				Op:      "Config.LoadFromEnv",
				Kind:    "config",
				Message: fmt.Sprintf("invalid PERFSCOPE_CARDINALITY_LIMIT: %q", v),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Export.CardinalityLimit = limit
	}

	return nil
}

// LoadFromFile reads a JSON or YAML configuration file onto c.
// Fields missing from the file keep their current values.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return &Error{
			Op:      "Config.LoadFromFile",
			Kind:    "config",
			Message: fmt.Sprintf("unsupported config file extension %s", ext),
			Err:     ErrInvalidConfiguration,
		}
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- caller-supplied config path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return &Error{
				Op:      "Config.LoadFromFile",
				Kind:    "config",
				Message: fmt.Sprintf("failed to parse JSON config file: %v", err),
				Err:     ErrInvalidConfiguration,
			}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return &Error{
				Op:      "Config.LoadFromFile",
				Kind:    "config",
				Message: fmt.Sprintf("failed to parse YAML config file: %v", err),
				Err:     ErrInvalidConfiguration,
			}
		}
	}

	return nil
}

// Validate checks the configuration.
//
// Validation rules:
//   - Exporter must be "none", "stdout" or "otlp"
//   - Endpoint is required for the otlp exporter
//   - MetricsEndpoint is required for otlp metrics
//   - CardinalityLimit must not be negative (zero selects the default)
//   - Log level must be debug, info, warn or error ("warning" becomes "warn")
//   - Log format must be text or json
func (c *Config) Validate() error {
	switch c.Export.Exporter {
	case ExporterNone, ExporterStdout, ExporterOTLP:
	case "":
		c.Export.Exporter = ExporterNone
	default:
		return &Error{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unsupported exporter: %q (expected: none|stdout|otlp)", c.Export.Exporter),
			Err:     ErrUnsupportedExporter,
		}
	}

	if c.Export.Exporter == ExporterOTLP && c.Export.Endpoint == "" {
		return &Error{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "endpoint is required for the otlp exporter",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Export.Exporter == ExporterOTLP && c.Export.Metrics && c.Export.MetricsEndpoint == "" {
		return &Error{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "metrics endpoint is required when exporting metrics over otlp",
			Err:     ErrMissingConfiguration,
		}
	}

	switch {
	case c.Export.CardinalityLimit == 0:
		c.Export.CardinalityLimit = DefaultCardinalityLimit
	case c.Export.CardinalityLimit < 0:
		return &Error{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("cardinality limit must be positive, got %d", c.Export.CardinalityLimit),
			Err:     ErrInvalidConfiguration,
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	case "warning":
		c.Logging.Level = "warn"
	default:
		return &Error{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid log level: %q", c.Logging.Level),
			Err:     ErrInvalidConfiguration,
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "":
	default:
		return &Error{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid log format: %q", c.Logging.Format),
			Err:     ErrInvalidConfiguration,
		}
	}

	return nil
}

// parseBool accepts "true", "1", "yes", "on" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithEnabled turns recording on or off.
func WithEnabled(enabled bool) Option {
	return func(c *Config) error {
		c.Enabled = enabled
		return nil
	}
}

// WithServiceName sets the service name used in logs and exported traces.
func WithServiceName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return &Error{
				Op:      "WithServiceName",
				Kind:    "config",
				Message: "service name cannot be empty",
				Err:     ErrInvalidConfiguration,
			}
		}
		c.ServiceName = name
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error).
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = strings.ToLower(level)
		return nil
	}
}

// WithLogFormat sets the log format (text, json).
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = strings.ToLower(format)
		return nil
	}
}

// WithExporter selects the exporter (none, stdout, otlp).
func WithExporter(exporter string) Option {
	return func(c *Config) error {
		c.Export.Exporter = strings.ToLower(exporter)
		return nil
	}
}

// WithEndpoint sets the OTLP collector endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Export.Endpoint = endpoint
		return nil
	}
}

// WithMetrics also records durations as OpenTelemetry histograms.
func WithMetrics(enabled bool) Option {
	return func(c *Config) error {
		c.Export.Metrics = enabled
		return nil
	}
}

// WithCardinalityLimit caps the distinct scope names and group labels
// kept as metric attributes.
func WithCardinalityLimit(limit int) Option {
	return func(c *Config) error {
		c.Export.CardinalityLimit = limit
		return nil
	}
}

// WithMetricsEndpoint sets the OTLP HTTP endpoint for metrics.
func WithMetricsEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Export.MetricsEndpoint = endpoint
		return nil
	}
}

// WithConfigFile loads a JSON or YAML configuration file. Pass it first
// so later options can override file settings.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}
