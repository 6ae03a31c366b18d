package metrics

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Level is a logging threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent // nothing is written
)

var levelNames = [...]string{
	LevelDebug:  "DEBUG",
	LevelInfo:   "INFO",
	LevelWarn:   "WARN",
	LevelError:  "ERROR",
	LevelSilent: "SILENT",
}

// String returns the upper-case level name.
func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel reads a level name, case-insensitively. "warning", "off" and
// "none" are accepted as aliases. Unknown names return LevelInfo and an
// error.
func ParseLevel(s string) (Level, error) {
	switch name := strings.ToUpper(strings.TrimSpace(s)); name {
	case "WARNING":
		return LevelWarn, nil
	case "OFF", "NONE":
		return LevelSilent, nil
	default:
		for l, n := range levelNames {
			if n == name {
				return Level(l), nil
			}
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// logrusLevel maps the threshold onto logrus. Silent maps to panic level,
// which nothing in this module logs at.
func (l Level) logrusLevel() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelSilent:
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// Format is the log line encoding.
type Format int

const (
	FormatText Format = iota // logfmt-style key=value
	FormatJSON
)

// ParseFormat reads "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

func (f Format) formatter() logrus.Formatter {
	if f == FormatJSON {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	}
}

// Fields are structured key/value pairs attached to a log entry.
type Fields map[string]any

// Logger writes leveled, structured entries through logrus. Loggers
// derived with With, Named or ForCall share their parent's output, level
// and format.
type Logger struct {
	entry *logrus.Entry
	name  string
}

type loggerConfig struct {
	out    io.Writer
	level  Level
	format Format
	fields Fields
	name   string
}

// LoggerOption configures NewLogger.
type LoggerOption func(*loggerConfig)

// WithOutput sets the destination. The default is stdout.
func WithOutput(w io.Writer) LoggerOption {
	return func(c *loggerConfig) { c.out = w }
}

// WithLevel sets the threshold. The default is LevelInfo.
func WithLevel(level Level) LoggerOption {
	return func(c *loggerConfig) { c.level = level }
}

// WithFormat sets the line encoding. The default is FormatText.
func WithFormat(format Format) LoggerOption {
	return func(c *loggerConfig) { c.format = format }
}

// WithFields attaches fields to every entry.
func WithFields(fields Fields) LoggerOption {
	return func(c *loggerConfig) { c.fields = fields }
}

// WithName sets the logger name, written as the "logger" field.
func WithName(name string) LoggerOption {
	return func(c *loggerConfig) { c.name = name }
}

// NewLogger returns a logger with its own logrus instance.
func NewLogger(opts ...LoggerOption) *Logger {
	cfg := loggerConfig{out: os.Stdout, level: LevelInfo, format: FormatText}
	for _, opt := range opts {
		opt(&cfg)
	}

	base := logrus.New()
	base.SetOutput(cfg.out)
	base.SetLevel(cfg.level.logrusLevel())
	base.SetFormatter(cfg.format.formatter())

	return &Logger{
		entry: logrus.NewEntry(base).WithFields(logrus.Fields(cfg.fields)),
		name:  cfg.name,
	}
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields)), name: l.name}
}

// Named returns a child logger whose name is appended to the parent's,
// dot separated.
func (l *Logger) Named(name string) *Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return &Logger{entry: l.entry, name: name}
}

// ForCall returns a child logger tagged with one engine call.
func (l *Logger) ForCall(opID string, dir Direction) *Logger {
	return l.With(Fields{"op_id": opID, "direction": string(dir)})
}

// SetLevel changes the threshold of this logger and every logger sharing
// its output.
func (l *Logger) SetLevel(level Level) {
	l.entry.Logger.SetLevel(level.logrusLevel())
}

// Enabled reports whether an entry at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level != LevelSilent && l.entry.Logger.IsLevelEnabled(level.logrusLevel())
}

func (l *Logger) Debug(msg string, fields ...Fields) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Fields)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Fields)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Fields) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, extra []Fields) {
	if !l.Enabled(level) {
		return
	}
	e := l.entry
	for _, f := range extra {
		e = e.WithFields(logrus.Fields(f))
	}
	if l.name != "" {
		e = e.WithField("logger", l.name)
	}
	e.Log(level.logrusLevel(), msg)
}

var globalLogger atomic.Pointer[Logger]

// SetLogger replaces the process-wide logger used by observers built
// without one.
func SetLogger(l *Logger) {
	globalLogger.Store(l)
}

// GetLogger returns the process-wide logger, an info-level text logger on
// stderr until SetLogger is called.
func GetLogger() *Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	globalLogger.CompareAndSwap(nil, NewLogger(WithOutput(os.Stderr)))
	return globalLogger.Load()
}

// NullLogger discards everything.
func NullLogger() *Logger {
	return NewLogger(WithOutput(io.Discard), WithLevel(LevelSilent))
}

// TestLogger writes debug-level text entries to w.
func TestLogger(w io.Writer) *Logger {
	return NewLogger(WithOutput(w), WithLevel(LevelDebug))
}
