package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level      string // Log level (e.g., "info", "debug", "error")
	FilePath   string // Path to the log file
	MaxSize    int    // Maximum size in megabytes before log rotation
	MaxBackups int    // Maximum number of old log files to retain
	MaxAge     int    // Maximum number of days to retain old log files
	Compress   bool   // Whether to compress rotated log files
	Console    bool   // Whether to also log to stderr
}

// NewLogger returns a JSON logger writing to a rotated file and, when enabled, to stderr.
// Stdout is never used so command output stays machine-readable.
func NewLogger(config LoggerConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	out, err := openOutputs(config)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(jsonFormatter())
	log.SetOutput(out)
	return log, nil
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyFunc:  "function",
		},
	}
}

// openOutputs falls back to stderr when no file is configured.
func openOutputs(config LoggerConfig) (io.Writer, error) {
	if config.FilePath == "" {
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
		return nil, err
	}
	rotated := &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	if config.Console {
		return io.MultiWriter(rotated, os.Stderr), nil
	}
	return rotated, nil
}

// WithFile returns a logger entry with the specified file context.
func WithFile(logger *logrus.Logger, filePath string) *logrus.Entry {
	return logger.WithField("file", filePath)
}

// WithOperation returns a logger entry with the specified operation context.
func WithOperation(logger *logrus.Logger, operation string) *logrus.Entry {
	return logger.WithField("operation", operation)
}

// WithFileOperation returns a logger entry with both file and operation context.
func WithFileOperation(logger *logrus.Logger, filePath, operation string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"file":      filePath,
		"operation": operation,
	})
}

// WithResult returns a logger entry scoped to one analysis result.
func WithResult(logger *logrus.Logger, resultID string) *logrus.Entry {
	return logger.WithField("result_id", resultID)
}

// FuncHook forwards every entry at or above MinLevel to Fn.
// Entries carrying a true "skip_hook" field are not forwarded.
type FuncHook struct {
	MinLevel logrus.Level
	Fn       func(level, message string, fields logrus.Fields)
}

// SkipHookField marks entries FuncHook must not forward.
const SkipHookField = "skip_hook"

// Levels implements logrus.Hook.
func (h *FuncHook) Levels() []logrus.Level {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, l := range logrus.AllLevels {
		if l <= h.MinLevel {
			levels = append(levels, l)
		}
	}
	return levels
}

// Fire implements logrus.Hook.
func (h *FuncHook) Fire(entry *logrus.Entry) error {
	if skip, _ := entry.Data[SkipHookField].(bool); skip {
		return nil
	}
	fields := make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fields[k] = v
	}
	h.Fn(entry.Level.String(), entry.Message, fields)
	return nil
}
