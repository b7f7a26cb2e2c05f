package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "custom json config",
			config: &Config{
				Level:  "debug",
				Format: "json",
				Output: io.Discard,
			},
		},
		{
			name: "console config",
			config: &Config{
				Level:  "info",
				Format: "console",
				Output: io.Discard,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.config)
			assert.NotNil(t, logger)
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{
		Level:  "info",
		Format: "json",
		Output: buf,
	})

	logger.Info("schema loaded")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "info", logEntry["level"])
	assert.Equal(t, "schema loaded", logEntry["message"])
	assert.NotEmpty(t, logEntry["time"])
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{
		Level:  "info",
		Format: "json",
		Output: buf,
	})

	childLogger := logger.With().
		Str("driver", "sqlserver").
		Int("max_rows", 100).
		Logger()

	childLogger.Info("executor ready")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "sqlserver", logEntry["driver"])
	assert.Equal(t, float64(100), logEntry["max_rows"])
	assert.Equal(t, "executor ready", logEntry["message"])
}

func TestLogger_ErrorWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{
		Level:  "error",
		Format: "json",
		Output: buf,
	})

	testErr := errors.New("login failed")
	logger.ErrorWith("failed to connect", testErr, map[string]interface{}{
		"server": "localhost",
		"port":   1433,
	})

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "error", logEntry["level"])
	assert.Equal(t, "failed to connect", logEntry["message"])
	assert.Equal(t, "login failed", logEntry["error"])
	assert.Equal(t, "localhost", logEntry["server"])
	assert.Equal(t, float64(1433), logEntry["port"])
}

func TestLogger_Stage(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{Level: "info", Format: "json", Output: buf})

	logger.Stage("validate", 2*time.Millisecond, errors.New("rejected"), map[string]interface{}{
		"rule": "ForbiddenOperation",
	})

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "warn", logEntry["level"])
	assert.Equal(t, "validate", logEntry["stage"])
	assert.Equal(t, "ForbiddenOperation", logEntry["rule"])
	assert.Equal(t, "rejected", logEntry["error"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(&Config{
		Level:  "info",
		Format: "json",
		Output: buf,
	})

	ctx := logger.WithContext(context.Background())
	retrievedLogger := FromContext(ctx)

	retrievedLogger.Info("from context")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "from context", logEntry["message"])
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool // should log or not
	}{
		{
			name:  "debug level logs debug",
			level: "debug",
			logFunc: func(l *Logger) {
				l.Debugf("debug %s", "message")
			},
			expected: true,
		},
		{
			name:  "info level skips debug",
			level: "info",
			logFunc: func(l *Logger) {
				l.Debugf("debug %s", "message")
			},
			expected: false,
		},
		{
			name:  "error level logs error",
			level: "error",
			logFunc: func(l *Logger) {
				l.ErrorWith("error message", errors.New("boom"), nil)
			},
			expected: true,
		},
		{
			name:  "error level skips info",
			level: "error",
			logFunc: func(l *Logger) {
				l.Info("info message")
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := New(&Config{
				Level:  tt.level,
				Format: "json",
				Output: buf,
			})

			tt.logFunc(logger)

			if tt.expected {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	assert.True(t, ValidLevel("DEBUG"))
	assert.True(t, ValidLevel("warning"))
	assert.False(t, ValidLevel("verbose"))
}

func BenchmarkLogger_Stage(b *testing.B) {
	logger := New(&Config{
		Level:  "info",
		Format: "json",
		Output: io.Discard,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Stage("execute", time.Millisecond, nil, map[string]interface{}{"rows": i})
	}
}
