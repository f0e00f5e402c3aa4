package logger

import (
	"context"
	"fmt"
	"io"
	golog "log"
	"log/slog"
	"os"
	"strings"

	"disorder.dev/shandler"
	"github.com/tochemey/goakt/v3/log"
)

// levelPanic sits above fatal so panics are never filtered out
const levelPanic = shandler.LevelFatal + 2

// DefaultSlogLogger represents the default Log to use
// This Log wraps slog under the hood
var DefaultSlogLogger = NewSlog(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
var DiscardSlogLogger = NewSlog(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

// Config selects the process-wide log handler
type Config struct {
	// Level is one of trace, debug, info, warn or error
	Level string `json:"level"`

	// Format is json or text
	Format string `json:"format"`
}

// ParseLevel maps a level name to a slog level, including shandler's trace
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "trace":
		return shandler.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// NewHandler builds the handler described by cfg writing to w
func NewHandler(w io.Writer, cfg Config) (slog.Handler, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// Slog represents a logger that wraps the slog logger
// It implements the goakt Logger interface
type Slog struct {
	logger *slog.Logger
	level  slog.Level
}

// enforce compilation and linter error
var _ log.Logger = &Slog{}

// NewSlog creates an instance of Slog at the lowest level handler accepts
func NewSlog(handler slog.Handler) *Slog {
	levels := []slog.Level{levelPanic, shandler.LevelFatal, slog.LevelError, slog.LevelWarn, slog.LevelInfo, slog.LevelDebug, shandler.LevelTrace}
	l := levels[len(levels)-1]

	for i, level := range levels {
		if !handler.Enabled(context.TODO(), level) {
			if i > 0 {
				l = levels[i-1]
			} else {
				l = levelPanic
			}
			break
		}
	}

	return &Slog{
		logger: slog.New(handler),
		level:  l,
	}
}

// join renders v the way fmt.Sprintln does, without the newline
func join(v []any) string {
	s := strings.Builder{}
	for i, a := range v {
		if i > 0 {
			_, _ = s.WriteString(" ")
		}
		_, _ = s.WriteString(fmt.Sprint(a))
	}
	return s.String()
}

// Debug starts a message with debug level
func (l *Slog) Debug(v ...any) {
	l.logger.Debug(join(v))
}

// Debugf starts a message with debug level
func (l *Slog) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

// Panic logs at panic level and then panics
func (l *Slog) Panic(v ...any) {
	msg := join(v)
	l.logger.Log(context.TODO(), levelPanic, msg)
	panic(msg)
}

// Panicf logs at panic level and then panics
func (l *Slog) Panicf(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	l.logger.Log(context.TODO(), levelPanic, msg)
	panic(msg)
}

// Fatal starts a new message with fatal level. The os.Exit(1) function
// is called which terminates the program immediately.
func (l *Slog) Fatal(v ...any) {
	l.logger.Log(context.TODO(), shandler.LevelFatal, join(v))
	os.Exit(1)
}

// Fatalf starts a new message with fatal level. The os.Exit(1) function
// is called which terminates the program immediately.
func (l *Slog) Fatalf(format string, v ...any) {
	l.logger.Log(context.TODO(), shandler.LevelFatal, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Error starts a new message with error level.
func (l *Slog) Error(v ...any) {
	l.logger.Error(join(v))
}

// Errorf starts a new message with error level.
func (l *Slog) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// Warn starts a new message with warn level
func (l *Slog) Warn(v ...any) {
	l.logger.Warn(join(v))
}

// Warnf starts a new message with warn level
func (l *Slog) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

// Info starts a message with info level
func (l *Slog) Info(v ...any) {
	l.logger.Info(join(v))
}

// Infof starts a message with info level
func (l *Slog) Infof(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Trace starts a message with shandler's trace level
func (l *Slog) Trace(v ...any) {
	l.logger.Log(context.TODO(), shandler.LevelTrace, join(v))
}

// LogLevel returns the log level that is used
func (l *Slog) LogLevel() log.Level {
	var traceLevel log.Level = log.DebugLevel + 2
	switch l.level {
	case shandler.LevelFatal:
		return log.FatalLevel
	case slog.LevelError:
		return log.ErrorLevel
	case slog.LevelInfo:
		return log.InfoLevel
	case slog.LevelDebug:
		return log.DebugLevel
	case slog.LevelWarn:
		return log.WarningLevel
	case shandler.LevelTrace:
		return traceLevel
	default:
		return log.InvalidLevel
	}
}

// LogOutput returns the log output that is set
func (l *Slog) LogOutput() []io.Writer {
	return nil
}

// StdLogger returns the standard logger associated to the logger
func (l *Slog) StdLogger() *golog.Logger {
	return slog.NewLogLogger(l.logger.Handler(), l.level)
}
