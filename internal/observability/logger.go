// Package observability provides structured logging and the per-run log file.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Logger wraps zerolog with pipeline specific functionality.
// Nesting is carried as an explicit "scope" field instead of shared indentation state,
// so loggers for concurrent artifacts never interfere.
type Logger struct {
	zl    zerolog.Logger
	scope string
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level       string
	Format      string // json or console
	Output      io.Writer
	File        io.Writer // optional run log, always plain text
	ServiceName string
	RunID       string
}

// NewLogger creates a new Logger with the given configuration.
func NewLogger(cfg LogConfig) *Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var console io.Writer = output
	if cfg.Format == "console" {
		console = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.TimeOnly,
		}
	}

	writer := console
	if cfg.File != nil {
		writer = zerolog.MultiLevelWriter(console, zerolog.ConsoleWriter{
			Out:        cfg.File,
			NoColor:    true,
			TimeFormat: time.DateTime,
		})
	}

	ctx := zerolog.New(writer).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.RunID != "" {
		ctx = ctx.Str("run_id", cfg.RunID)
	}

	return &Logger{zl: ctx.Logger()}
}

// NopLogger discards everything. Used by tests and library callers without logging.
func NopLogger() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithScope returns a child logger nested one level below the receiver.
func (l *Logger) WithScope(name string) *Logger {
	scope := name
	if l.scope != "" {
		scope = l.scope + "/" + name
	}
	return &Logger{zl: l.zl.With().Str("scope", scope).Logger(), scope: scope}
}

// Scope returns the current nesting path, e.g. "batch/scan-1942/page_003".
func (l *Logger) Scope() string {
	return l.scope
}

// WithArtifact returns a logger with artifact context.
func (l *Logger) WithArtifact(artifactID string) *Logger {
	return &Logger{zl: l.zl.With().Str("artifact", artifactID).Logger(), scope: l.scope}
}

// WithUnit returns a logger with unit context.
func (l *Logger) WithUnit(unitID string) *Logger {
	return &Logger{zl: l.zl.With().Str("unit", unitID).Logger(), scope: l.scope}
}

// WithOperation returns a logger with operation context.
func (l *Logger) WithOperation(op string) *Logger {
	return &Logger{zl: l.zl.With().Str("operation", op).Logger(), scope: l.scope}
}

// With returns a new logger with additional context fields.
func (l *Logger) With() *LoggerContext {
	return &LoggerContext{ctx: l.zl.With(), scope: l.scope}
}

// Debug logs a debug message.
func (l *Logger) Debug() *LogEvent {
	return &LogEvent{evt: l.zl.Debug()}
}

// Info logs an info message.
func (l *Logger) Info() *LogEvent {
	return &LogEvent{evt: l.zl.Info()}
}

// Warn logs a warning message.
func (l *Logger) Warn() *LogEvent {
	return &LogEvent{evt: l.zl.Warn()}
}

// Error logs an error message.
func (l *Logger) Error() *LogEvent {
	return &LogEvent{evt: l.zl.Error()}
}

// Step logs the start and duration of a timed step. Call the returned func when the step ends.
//
//	done := logger.Step("render")
//	defer done()
func (l *Logger) Step(name string) func() {
	start := time.Now()
	l.zl.Debug().Str("step", name).Time("started", start).Msg("step started")
	return func() {
		l.zl.Info().
			Str("step", name).
			Time("started", start).
			Dur("duration", time.Since(start)).
			Msg("step finished")
	}
}

// LoggerContext builds a new logger with context.
type LoggerContext struct {
	ctx   zerolog.Context
	scope string
}

// Str adds a string field.
func (c *LoggerContext) Str(key, val string) *LoggerContext {
	c.ctx = c.ctx.Str(key, val)
	return c
}

// Int adds an int field.
func (c *LoggerContext) Int(key string, val int) *LoggerContext {
	c.ctx = c.ctx.Int(key, val)
	return c
}

// Logger returns the configured logger.
func (c *LoggerContext) Logger() *Logger {
	return &Logger{zl: c.ctx.Logger(), scope: c.scope}
}

// LogEvent represents a log event being built.
type LogEvent struct {
	evt *zerolog.Event
}

// Str adds a string field.
func (e *LogEvent) Str(key, val string) *LogEvent {
	e.evt = e.evt.Str(key, val)
	return e
}

// Int adds an int field.
func (e *LogEvent) Int(key string, val int) *LogEvent {
	e.evt = e.evt.Int(key, val)
	return e
}

// Bool adds a bool field.
func (e *LogEvent) Bool(key string, val bool) *LogEvent {
	e.evt = e.evt.Bool(key, val)
	return e
}

// Dur adds a duration field.
func (e *LogEvent) Dur(key string, val time.Duration) *LogEvent {
	e.evt = e.evt.Dur(key, val)
	return e
}

// Err adds an error field.
func (e *LogEvent) Err(err error) *LogEvent {
	e.evt = e.evt.Err(err)
	return e
}

// Msg sends the log event with a message.
func (e *LogEvent) Msg(msg string) {
	e.evt.Msg(msg)
}

// Msgf sends the log event with a formatted message.
func (e *LogEvent) Msgf(format string, args ...interface{}) {
	e.evt.Msgf(format, args...)
}

// parseLevel converts a string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
