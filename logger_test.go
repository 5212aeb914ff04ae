package perfscope

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := NewLogger("test-service")
	l.SetOutput(&buf)
	l.SetLevel(level)
	l.SetFormat(format)
	return l, &buf
}

func TestLogger_TextFormat(t *testing.T) {
	l, buf := newTestLogger(t, "info", "text")

	l.Info("exported tree", map[string]interface{}{
		"spans": 3,
		"error": "none",
		"root":  "checkout",
	})

	line := buf.String()
	assert.Contains(t, line, "[INFO] [perfscope:test-service] exported tree")
	assert.Contains(t, line, `error="none"`)
	assert.True(t, strings.Index(line, "root=checkout") < strings.Index(line, "spans=3"), "fields are sorted")
}

func TestLogger_JSONFormat(t *testing.T) {
	l, buf := newTestLogger(t, "info", "json")

	l.Warn("slow export", map[string]interface{}{
		"duration_ms": 120,
		"level":       "overridden?",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"], "core fields cannot be overwritten")
	assert.Equal(t, "slow export", entry["message"])
	assert.Equal(t, "perfscope", entry["component"])
	assert.Equal(t, "test-service", entry["service"])
	assert.Equal(t, float64(120), entry["duration_ms"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newTestLogger(t, "warn", "text")

	l.Debug("debug", nil)
	l.Info("info", nil)
	assert.Empty(t, buf.String())
	assert.False(t, l.DebugEnabled())

	l.Warn("warn", nil)
	assert.Contains(t, buf.String(), "[WARN]")

	l.SetLevel("debug")
	assert.True(t, l.DebugEnabled())
	l.Debug("now visible", nil)
	assert.Contains(t, buf.String(), "now visible")
}

func TestLogger_WarningIsWarn(t *testing.T) {
	l, buf := newTestLogger(t, "warning", "text")

	l.Info("hidden", nil)
	assert.Empty(t, buf.String(), "warning filters info like warn does")

	l.Warn("shown", nil)
	assert.Contains(t, buf.String(), "[WARN]")

	cfg := DefaultConfig()
	cfg.Logging.Level = "WARNING"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLogger_ErrorsAreRateLimited(t *testing.T) {
	l, buf := newTestLogger(t, "info", "text")

	for i := 0; i < 5; i++ {
		l.Error("export failed", nil)
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "export failed"))
}

func TestLogger_EnvironmentConfiguration(t *testing.T) {
	clearEnv(t)
	t.Setenv("PERFSCOPE_DEBUG", "true")
	t.Setenv("PERFSCOPE_LOG_FORMAT", "JSON")

	l := NewLogger("env")
	assert.True(t, l.DebugEnabled())
	assert.Equal(t, "json", l.format)
}

func TestLogMisuse_OnlyWhenDebugging(t *testing.T) {
	enableForTest(t)

	logger := GetLogger()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetLevel("info")
	t.Cleanup(func() {
		logger.SetLevel("info")
		logger.SetOutput(nopWriter{})
	})

	Append(context.Background(), "quiet").End()
	assert.Empty(t, buf.String(), "misuse is silent outside debug")

	logger.SetLevel("debug")
	logger.misuseLimiter = NewRateLimiter(time.Hour)
	Append(context.Background(), "loud").End()
	Append(context.Background(), "suppressed").End()

	out := buf.String()
	assert.Contains(t, out, "group appended with no active scope")
	assert.Contains(t, out, "group=loud")
	assert.NotContains(t, out, "suppressed", "misuse logs are rate limited")
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRateLimiter(t *testing.T) {
	r := NewRateLimiter(50 * time.Millisecond)
	assert.True(t, r.Allow())
	assert.False(t, r.Allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, r.Allow())

	unlimited := NewRateLimiter(0)
	for i := 0; i < 3; i++ {
		assert.True(t, unlimited.Allow())
	}
}

func TestInitialize(t *testing.T) {
	prev := IsEnabled()
	t.Cleanup(func() {
		SetEnabled(prev)
		GetLogger().SetLevel("info")
		GetLogger().SetFormat("text")
	})
	GetLogger().SetOutput(nopWriter{})

	cfg := UseProfile(ProfileDevelopment)
	require.NoError(t, Initialize(cfg))
	assert.True(t, IsEnabled())
	assert.True(t, GetLogger().DebugEnabled())

	off := *DefaultConfig()
	require.NoError(t, Initialize(off))
	assert.False(t, IsEnabled())

	bad := UseProfile(ProfileDevelopment)
	bad.Export.Exporter = "carrier-pigeon"
	err := Initialize(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedExporter)
	assert.False(t, IsEnabled(), "a failed Initialize leaves the gate alone")
}
