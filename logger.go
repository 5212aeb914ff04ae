package perfscope

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Logger provides self-contained logging for the scope library.
//
// Design Principles:
//   - Self-contained: no dependency on the host application's logger
//   - Production-ready: JSON format in K8s, text for local dev
//   - Rate-limited: misuse and error logs cannot flood the output
//   - Cheap when quiet: the debug check is a single atomic load, so the
//     Create/Append hot path pays nothing unless debug is on
type Logger struct {
	mu          sync.RWMutex
	level       string
	format      string
	serviceName string
	output      io.Writer

	debug atomic.Bool

	// errorLimiter caps ERROR lines, misuseLimiter caps the DEBUG lines
	// emitted from handle misuse on the hot path.
	errorLimiter  *RateLimiter
	misuseLimiter *RateLimiter
}

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// GetLogger returns the process-wide logger, creating it from the
// environment on first use.
func GetLogger() *Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = NewLogger("perfscope")
	})
	return defaultLogger
}

// NewLogger creates a logger configured from the environment.
// Configuration priority:
//  1. Environment variables (PERFSCOPE_LOG_LEVEL, PERFSCOPE_LOG_FORMAT, PERFSCOPE_DEBUG)
//  2. Auto-detection (K8s environment selects JSON)
//  3. Defaults (INFO, text, stdout)
func NewLogger(serviceName string) *Logger {
	level := normalizeLevel(os.Getenv("PERFSCOPE_LOG_LEVEL"))
	if level == "" {
		level = "INFO"
	}
	if parseBool(os.Getenv("PERFSCOPE_DEBUG")) {
		level = "DEBUG"
	}

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if envFormat := os.Getenv("PERFSCOPE_LOG_FORMAT"); envFormat != "" {
		format = strings.ToLower(envFormat)
	}

	l := &Logger{
		level:         level,
		format:        format,
		serviceName:   serviceName,
		output:        os.Stdout,
		errorLimiter:  NewRateLimiter(1 * time.Second),
		misuseLimiter: NewRateLimiter(1 * time.Second),
	}
	l.debug.Store(level == "DEBUG")
	return l
}

// Debug logs debug messages (only when debug mode is enabled)
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug.Load() {
		return
	}
	l.log("DEBUG", msg, fields)
}

// Info logs informational messages
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

// Warn logs warning messages
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

// Error logs error messages with rate limiting
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

// DebugEnabled reports whether Debug calls produce output.
func (l *Logger) DebugEnabled() bool {
	return l.debug.Load()
}

func (l *Logger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)
	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

func (l *Logger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.serviceName,
		"component": "perfscope",
		"message":   msg,
	}
	for k, v := range fields {
		switch k {
		case "timestamp", "level", "service", "component", "message":
			// core fields win
		default:
			entry[k] = v
		}
	}

	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

func (l *Logger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var fieldStr strings.Builder
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		// error first for readability
		if err, ok := fields["error"]; ok {
			fmt.Fprintf(&fieldStr, " error=%q", fmt.Sprint(err))
		}
		for _, k := range keys {
			if k == "error" {
				continue
			}
			fmt.Fprintf(&fieldStr, " %s=%v", k, fields[k])
		}
	}

	fmt.Fprintf(l.output, "%s [%s] [perfscope:%s] %s%s\n",
		timestamp, level, l.serviceName, msg, fieldStr.String())
}

// shouldLog determines if a log level should be output
func (l *Logger) shouldLog(level string) bool {
	levels := map[string]int{
		"DEBUG": 0,
		"INFO":  1,
		"WARN":  2,
		"ERROR": 3,
	}

	currentLevel, ok1 := levels[l.level]
	messageLevel, ok2 := levels[level]
	if !ok1 || !ok2 {
		return true
	}
	return messageLevel >= currentLevel
}

// SetLevel dynamically updates the log level
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = normalizeLevel(level)
	l.debug.Store(l.level == "DEBUG")
}

// normalizeLevel upper-cases a level name and folds "WARNING" into "WARN".
func normalizeLevel(level string) string {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "WARNING" {
		return "WARN"
	}
	return level
}

// SetFormat dynamically updates the log format ("text" or "json")
func (l *Logger) SetFormat(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = strings.ToLower(format)
}

// SetServiceName changes the service name stamped on every line.
func (l *Logger) SetServiceName(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.serviceName = name
}

// SetOutput changes the output writer (useful for testing)
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// logMisuse reports a harmless misuse of the API at DEBUG level.
func logMisuse(msg string, fields map[string]interface{}) {
	l := GetLogger()
	if !l.debug.Load() || !l.misuseLimiter.Allow() {
		return
	}
	l.log("DEBUG", msg, fields)
}
