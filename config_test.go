package perfscope

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable LoadFromEnv reads for the test's duration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PERFSCOPE_ENABLED", "PERFSCOPE_SERVICE_NAME", "OTEL_SERVICE_NAME",
		"PERFSCOPE_LOG_LEVEL", "PERFSCOPE_LOG_FORMAT", "PERFSCOPE_DEBUG",
		"PERFSCOPE_EXPORTER", "PERFSCOPE_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"PERFSCOPE_EXPORT_INSECURE", "PERFSCOPE_EXPORT_METRICS", "PERFSCOPE_METRICS_ENDPOINT",
		"PERFSCOPE_CARDINALITY_LIMIT", "KUBERNETES_SERVICE_HOST",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)

	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled, "recording is opt-in")
	assert.Equal(t, "perfscope", cfg.ServiceName)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, ExporterNone, cfg.Export.Exporter)
	assert.True(t, cfg.Export.Insecure)
	assert.False(t, cfg.Export.Metrics)
	assert.Equal(t, DefaultCardinalityLimit, cfg.Export.CardinalityLimit)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig_Kubernetes(t *testing.T) {
	clearEnv(t)
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")

	assert.Equal(t, "json", DefaultConfig().Logging.Format)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PERFSCOPE_ENABLED", "yes")
	t.Setenv("OTEL_SERVICE_NAME", "checkout")
	t.Setenv("PERFSCOPE_LOG_LEVEL", "WARN")
	t.Setenv("PERFSCOPE_EXPORTER", "OTLP")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("PERFSCOPE_EXPORT_INSECURE", "false")
	t.Setenv("PERFSCOPE_EXPORT_METRICS", "1")
	t.Setenv("PERFSCOPE_METRICS_ENDPOINT", "collector:4318")
	t.Setenv("PERFSCOPE_CARDINALITY_LIMIT", " 25 ")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "checkout", cfg.ServiceName)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ExporterOTLP, cfg.Export.Exporter)
	assert.Equal(t, "collector:4317", cfg.Export.Endpoint)
	assert.False(t, cfg.Export.Insecure)
	assert.True(t, cfg.Export.Metrics)
	assert.Equal(t, "collector:4318", cfg.Export.MetricsEndpoint)
	assert.Equal(t, 25, cfg.Export.CardinalityLimit)
}

func TestLoadFromEnv_InvalidCardinalityLimit(t *testing.T) {
	clearEnv(t)
	t.Setenv("PERFSCOPE_CARDINALITY_LIMIT", "lots")

	err := DefaultConfig().LoadFromEnv()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestLoadFromEnv_PerfscopeVariablesWin(t *testing.T) {
	clearEnv(t)
	t.Setenv("PERFSCOPE_SERVICE_NAME", "billing")
	t.Setenv("OTEL_SERVICE_NAME", "ignored")
	t.Setenv("PERFSCOPE_ENDPOINT", "primary:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "fallback:4317")
	t.Setenv("PERFSCOPE_DEBUG", "true")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "billing", cfg.ServiceName)
	assert.Equal(t, "primary:4317", cfg.Export.Endpoint)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "perfscope.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
enabled: true
service_name: orders
logging:
  level: debug
export:
  exporter: stdout
  metrics: true
`), 0o600))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "orders", cfg.ServiceName)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "text", cfg.Logging.Format, "missing fields keep their value")
		assert.Equal(t, ExporterStdout, cfg.Export.Exporter)
		assert.True(t, cfg.Export.Metrics)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "perfscope.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"enabled": true,
			"export": {"exporter": "otlp", "endpoint": "localhost:4317"}
		}`), 0o600))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))
		assert.True(t, cfg.Enabled)
		assert.Equal(t, ExporterOTLP, cfg.Export.Exporter)
		assert.Equal(t, "localhost:4317", cfg.Export.Endpoint)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "perfscope.toml")
		require.NoError(t, os.WriteFile(path, []byte("enabled = true"), 0o600))

		err := DefaultConfig().LoadFromFile(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yml")
		require.NoError(t, os.WriteFile(path, []byte("enabled: [unterminated"), 0o600))

		err := DefaultConfig().LoadFromFile(path)
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("missing file", func(t *testing.T) {
		err := DefaultConfig().LoadFromFile(filepath.Join(dir, "absent.yaml"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty exporter becomes none", mutate: func(c *Config) { c.Export.Exporter = "" }},
		{name: "stdout", mutate: func(c *Config) { c.Export.Exporter = ExporterStdout }},
		{
			name:    "unknown exporter",
			mutate:  func(c *Config) { c.Export.Exporter = "zipkin" },
			wantErr: ErrUnsupportedExporter,
		},
		{
			name:    "otlp without endpoint",
			mutate:  func(c *Config) { c.Export.Exporter = ExporterOTLP },
			wantErr: ErrMissingConfiguration,
		},
		{
			name: "otlp metrics without metrics endpoint",
			mutate: func(c *Config) {
				c.Export.Exporter = ExporterOTLP
				c.Export.Endpoint = "collector:4317"
				c.Export.Metrics = true
			},
			wantErr: ErrMissingConfiguration,
		},
		{
			name:    "negative cardinality limit",
			mutate:  func(c *Config) { c.Export.CardinalityLimit = -1 },
			wantErr: ErrInvalidConfiguration,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: ErrInvalidConfiguration,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: ErrInvalidConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "Config.Validate", perr.Op)
			assert.Equal(t, "config", perr.Kind)
		})
	}

	cfg := DefaultConfig()
	cfg.Export.Exporter = ""
	cfg.Export.CardinalityLimit = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ExporterNone, cfg.Export.Exporter)
	assert.Equal(t, DefaultCardinalityLimit, cfg.Export.CardinalityLimit)
}

func TestNewConfig_OptionsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PERFSCOPE_ENABLED", "true")
	t.Setenv("PERFSCOPE_EXPORTER", "stdout")

	cfg, err := NewConfig(
		WithEnabled(false),
		WithServiceName("inventory"),
		WithExporter("otlp"),
		WithEndpoint("collector:4317"),
		WithLogLevel("DEBUG"),
		WithLogFormat("JSON"),
		WithMetrics(true),
		WithMetricsEndpoint("collector:4318"),
		WithCardinalityLimit(10),
		nil,
	)
	require.NoError(t, err)

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "inventory", cfg.ServiceName)
	assert.Equal(t, ExporterOTLP, cfg.Export.Exporter)
	assert.Equal(t, "collector:4317", cfg.Export.Endpoint)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Export.Metrics)
	assert.Equal(t, "collector:4318", cfg.Export.MetricsEndpoint)
	assert.Equal(t, 10, cfg.Export.CardinalityLimit)
}

func TestNewConfig_ConfigFileThenOptions(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "perfscope.yml")
	require.NoError(t, os.WriteFile(path, []byte("enabled: true\nservice_name: from-file\n"), 0o600))

	cfg, err := NewConfig(WithConfigFile(path), WithServiceName("from-option"))
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "from-option", cfg.ServiceName)
}

func TestNewConfig_Errors(t *testing.T) {
	clearEnv(t)

	_, err := NewConfig(WithServiceName(""))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	_, err = NewConfig(WithExporter("otlp"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingConfiguration)
}

func TestUseProfile(t *testing.T) {
	dev := UseProfile(ProfileDevelopment)
	assert.True(t, dev.Enabled)
	assert.Equal(t, ExporterStdout, dev.Export.Exporter)
	assert.NoError(t, dev.Validate())

	prod := UseProfile(ProfileProduction)
	assert.False(t, prod.Enabled)
	assert.Equal(t, ExporterOTLP, prod.Export.Exporter)
	assert.NoError(t, prod.Validate())

	assert.Equal(t, dev, UseProfile("unknown"))
}

func TestError(t *testing.T) {
	withMessage := &Error{Op: "op", Kind: "config", Message: "custom", Err: ErrInvalidConfiguration}
	assert.Equal(t, "custom", withMessage.Error())

	wrapped := NewError("Exporter.Start", "export", ErrUnsupportedExporter)
	assert.Equal(t, "Exporter.Start: unsupported exporter", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrUnsupportedExporter)

	assert.Equal(t, "config error", (&Error{Kind: "config"}).Error())
	assert.Equal(t, "missing required configuration", (&Error{Err: ErrMissingConfiguration}).Error())

	assert.False(t, IsConfigurationError(errors.New("other")))
}
