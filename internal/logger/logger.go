package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config represents logger configuration. FilePath is the absolute path
// of the rotated log file; when empty, file output is disabled. All
// daemon state, the log included, lives under the data directory.
type Config struct {
	Level         string
	Format        string // "json" or "text"
	ConsoleOutput bool
	FilePath      string
	FileMaxSize   string // e.g. "10MB"
}

// Logger wraps zerolog functionality with isolated dependencies
type Logger struct {
	zlog   zerolog.Logger
	config Config
}

var globalLogger *Logger

// Init initializes the global logger with given configuration
func Init(config Config) error {
	logger, err := New(config)
	if err != nil {
		return err
	}
	globalLogger = logger
	return nil
}

// New creates a new logger instance
func New(config Config) (*Logger, error) {
	level, err := parseLogLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var writers []io.Writer

	if config.ConsoleOutput {
		var consoleWriter io.Writer = os.Stdout
		if config.Format == "text" {
			consoleWriter = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			}
		}
		writers = append(writers, consoleWriter)
	}

	if config.FilePath != "" {
		maxSizeMB, err := parseMaxSize(config.FileMaxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid file max size: %w", err)
		}

		fileWriter := &lumberjack.Logger{
			Filename: config.FilePath,
			MaxSize:  maxSizeMB, // megabytes
			Compress: true,
		}
		writers = append(writers, fileWriter)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = io.MultiWriter(writers...)
	}

	zlogger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{
		zlog:   zlogger,
		config: config,
	}, nil
}

// parseLogLevel converts string to zerolog level
func parseLogLevel(levelStr string) (zerolog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

// parseMaxSize converts a size string (e.g. "10MB") to megabytes
func parseMaxSize(sizeStr string) (int, error) {
	if sizeStr == "" {
		return 10, nil // default 10MB
	}

	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))
	sizeStr = strings.TrimSuffix(sizeStr, "MB")

	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return 0, fmt.Errorf("invalid size format: %s", sizeStr)
	}
	return size, nil
}

// Global logging functions that use the global logger

// Debug logs a debug message
func Debug(msg string, fields ...interface{}) {
	if globalLogger != nil {
		globalLogger.Debug(msg, fields...)
	}
}

// Info logs an info message
func Info(msg string, fields ...interface{}) {
	if globalLogger != nil {
		globalLogger.Info(msg, fields...)
	}
}

// Warn logs a warning message
func Warn(msg string, fields ...interface{}) {
	if globalLogger != nil {
		globalLogger.Warn(msg, fields...)
	}
}

// Error logs an error message
func Error(msg string, fields ...interface{}) {
	if globalLogger != nil {
		globalLogger.Error(msg, fields...)
	}
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...interface{}) {
	if globalLogger != nil {
		globalLogger.Fatal(msg, fields...)
	}
	os.Exit(1)
}

// Logger instance methods

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.log(l.zlog.Debug(), msg, fields...)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.log(l.zlog.Info(), msg, fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.log(l.zlog.Warn(), msg, fields...)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.log(l.zlog.Error(), msg, fields...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...interface{}) {
	l.log(l.zlog.Fatal(), msg, fields...)
}

func (l *Logger) log(ev *zerolog.Event, msg string, fields ...interface{}) {
	if len(fields) > 0 {
		ev = ev.Fields(fieldsToMap(fields...))
	}
	ev.Msg(msg)
}

// fieldsToMap converts variadic key/value fields to a map for zerolog
func fieldsToMap(fields ...interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}

	fieldMap := make(map[string]interface{})
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			fieldMap[key] = fields[i+1]
		}
	}
	return fieldMap
}
