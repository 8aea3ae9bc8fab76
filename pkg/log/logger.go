package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Field is a single structured log field.
type Field struct {
	Key   string
	Value any
}

// Str returns a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int returns an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 returns an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 returns a uint64 field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// Bool returns a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Dur returns a duration field.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Any returns a field holding an arbitrary value.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Err returns an error field under the conventional "error" key.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Component tags the logger with the owning component name.
func Component(name string) Field { return Field{Key: "component", Value: name} }

// Logger is the logging interface used across StreamWeaver components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// With returns a child logger carrying the given fields.
	With(fields ...Field) Logger
}

// Option configures a logger created by NewLogger.
type Option func(*options)

type options struct {
	level  Level
	format string
	out    io.Writer
}

// WithLevel sets the minimum level.
func WithLevel(l Level) Option { return func(o *options) { o.level = l } }

// WithFormat selects FormatJSON (default) or FormatText console output.
func WithFormat(format string) Option { return func(o *options) { o.format = format } }

// WithOutput sets the destination writer.
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

type baseLogger struct {
	zl zerolog.Logger
}

// NewLogger builds a Logger. Defaults: info level, JSON format, stderr.
func NewLogger(opts ...Option) Logger {
	o := options{level: InfoLevel, format: FormatJSON, out: os.Stderr}
	for _, fn := range opts {
		fn(&o)
	}
	w := o.out
	if o.format == FormatText {
		w = zerolog.ConsoleWriter{Out: o.out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).Level(o.level.zerolog()).With().Timestamp().Logger()
	return &baseLogger{zl: zl}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &baseLogger{zl: zerolog.Nop()}
}

func (b *baseLogger) With(fields ...Field) Logger {
	ctx := b.zl.With()
	for _, f := range fields {
		ctx = appendField(ctx, f)
	}
	return &baseLogger{zl: ctx.Logger()}
}

func appendField(ctx zerolog.Context, f Field) zerolog.Context {
	switch v := f.Value.(type) {
	case string:
		return ctx.Str(f.Key, v)
	case int:
		return ctx.Int(f.Key, v)
	case int64:
		return ctx.Int64(f.Key, v)
	case uint64:
		return ctx.Uint64(f.Key, v)
	case bool:
		return ctx.Bool(f.Key, v)
	case time.Duration:
		return ctx.Dur(f.Key, v)
	case error:
		return ctx.AnErr(f.Key, v)
	default:
		return ctx.Interface(f.Key, v)
	}
}

func (b *baseLogger) emit(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			ev = ev.Str(f.Key, v)
		case int:
			ev = ev.Int(f.Key, v)
		case int64:
			ev = ev.Int64(f.Key, v)
		case uint64:
			ev = ev.Uint64(f.Key, v)
		case bool:
			ev = ev.Bool(f.Key, v)
		case time.Duration:
			ev = ev.Dur(f.Key, v)
		case error:
			ev = ev.AnErr(f.Key, v)
		default:
			ev = ev.Interface(f.Key, v)
		}
	}
	ev.Msg(msg)
}

func (b *baseLogger) Debug(msg string, fields ...Field) { b.emit(b.zl.Debug(), msg, fields) }
func (b *baseLogger) Info(msg string, fields ...Field)  { b.emit(b.zl.Info(), msg, fields) }
func (b *baseLogger) Warn(msg string, fields ...Field)  { b.emit(b.zl.Warn(), msg, fields) }
func (b *baseLogger) Error(msg string, fields ...Field) { b.emit(b.zl.Error(), msg, fields) }
func (b *baseLogger) Fatal(msg string, fields ...Field) { b.emit(b.zl.Fatal(), msg, fields) }
