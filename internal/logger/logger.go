// Package logger is the structured logger used by every querygate stage.
// It wraps zerolog; JSON output in production, console output for the REPL.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with querygate's field conventions.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // rfc3339, unix, unixms, unixmicro
	Output     io.Writer
}

// DefaultConfig returns production defaults. The REPL writes to stderr so
// log lines never interleave with answers on stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: "rfc3339",
		Output:     os.Stderr,
	}
}

// New creates a logger from cfg; a nil cfg means DefaultConfig.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = getTimeFormat(cfg.TimeFormat)

	var zlog zerolog.Logger
	if strings.EqualFold(cfg.Format, "console") {
		output := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
		zlog = zerolog.New(output).With().Timestamp().Logger()
	} else {
		zlog = zerolog.New(out).With().Timestamp().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything. Used by tests and by
// library callers that pass no logger.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// WithContext adds logger to context
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.zlog.WithContext(ctx)
}

// FromContext retrieves the logger stored by WithContext, falling back to
// the global logger.
func FromContext(ctx context.Context) *Logger {
	zlog := zerolog.Ctx(ctx)
	if zlog.GetLevel() == zerolog.Disabled {
		return global
	}
	return &Logger{zlog: *zlog}
}

// With creates a child logger with additional fields
func (l *Logger) With() *Context {
	return &Context{ctx: l.zlog.With()}
}

// Context wraps zerolog.Context for field chaining
type Context struct {
	ctx zerolog.Context
}

func (c *Context) Str(key, val string) *Context {
	c.ctx = c.ctx.Str(key, val)
	return c
}

func (c *Context) Logger() *Logger {
	return &Logger{zlog: c.ctx.Logger()}
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

// Structured logging with fields
func (l *Logger) InfoWith(msg string, fields map[string]interface{}) {
	event := l.zlog.Info()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func (l *Logger) WarnWith(msg string, err error, fields map[string]interface{}) {
	event := l.zlog.Warn().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func (l *Logger) ErrorWith(msg string, err error, fields map[string]interface{}) {
	event := l.zlog.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Stage records the outcome of one pipeline stage (describe, generate,
// validate, execute, explain). A nil err logs at info, otherwise at warn.
func (l *Logger) Stage(stage string, elapsed time.Duration, err error, fields map[string]interface{}) {
	event := l.zlog.Info()
	if err != nil {
		event = l.zlog.Warn().Err(err)
	}
	event = event.Str("stage", stage).Dur("elapsed", elapsed)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg("stage finished")
}

// HTTPEvent starts an info event for the request logging middleware.
func (l *Logger) HTTPEvent() *zerolog.Event {
	return l.zlog.Info()
}

// Helper functions
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ValidLevel reports whether level names a supported log level.
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error", "fatal":
		return true
	default:
		return false
	}
}

func getTimeFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}

// Global logger instance (for convenience)
var global *Logger

func init() {
	global = New(nil)
}

// SetGlobal replaces the logger returned by FromContext when the context
// carries none.
func SetGlobal(l *Logger) {
	global = l
}

// Global returns the process-wide logger.
func Global() *Logger {
	return global
}
