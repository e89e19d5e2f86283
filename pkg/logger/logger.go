// Package logger provides structured logging with run and component awareness
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger interface for abstracted logging
type Logger interface {
	Info(message string, fields ...Field)
	Error(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Debug(message string, fields ...Field)
	Success(message string, fields ...Field)
	WithComponent(component string) Logger
	WithRun(runID string) Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// WithField creates a new field
func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// WithError creates an error field
func WithError(err error) Field {
	return Field{Key: "error", Value: err}
}

const (
	componentKey = "component"
	runKey       = "run"
	successKey   = "success"
)

// RunLogger implements Logger on top of logrus
type RunLogger struct {
	logger    *logrus.Logger
	component string
	runID     string
	mu        sync.RWMutex
}

// CustomFormatter formats entries as a single colored line
type CustomFormatter struct {
	TimestampFormat string
	DisableColors   bool
}

// Format implements logrus.Formatter
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)

	var levelColor *color.Color
	var levelText string

	switch entry.Level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		levelColor = color.New(color.FgRed, color.Bold)
		levelText = "ERROR"
	case logrus.WarnLevel:
		levelColor = color.New(color.FgYellow, color.Bold)
		levelText = "WARN"
	case logrus.DebugLevel, logrus.TraceLevel:
		levelColor = color.New(color.FgWhite, color.Faint)
		levelText = "DEBUG"
	default:
		levelColor = color.New(color.FgCyan)
		levelText = "INFO"
	}

	data := make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		data[k] = v
	}

	if _, ok := data[successKey]; ok {
		levelColor = color.New(color.FgGreen)
		levelText = "DONE"
		delete(data, successKey)
	}

	prefix := ""
	if component, ok := data[componentKey]; ok {
		prefix += fmt.Sprintf("[%s] ", f.paint(color.New(color.FgBlue), fmt.Sprint(component)))
		delete(data, componentKey)
	}
	if run, ok := data[runKey]; ok {
		prefix += fmt.Sprintf("(%s) ", f.paint(color.New(color.FgMagenta), fmt.Sprint(run)))
		delete(data, runKey)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s%s", timestamp, f.paint(levelColor, levelText), prefix, entry.Message)

	if len(data) > 0 {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
		}
		b.WriteString(" ")
		b.WriteString(f.paint(color.New(color.FgWhite, color.Faint), "{"+strings.Join(parts, ", ")+"}"))
	}
	b.WriteString("\n")

	return []byte(b.String()), nil
}

func (f *CustomFormatter) paint(c *color.Color, s string) string {
	if f.DisableColors {
		return s
	}
	return c.Sprint(s)
}

// CreateLogger creates a logger writing to stderr and, optionally, a log file
func CreateLogger(logFile string, logLevel string) Logger {
	log := logrus.New()
	log.SetLevel(parseLevel(logLevel))
	log.SetFormatter(&CustomFormatter{
		TimestampFormat: "15:04:05",
	})
	log.SetOutput(os.Stderr)

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(io.MultiWriter(os.Stderr, file))
		}
	}

	return &RunLogger{logger: log}
}

// CreateLoggerWithOutput creates a logger with custom output (for testing)
func CreateLoggerWithOutput(logLevel string, output io.Writer) Logger {
	log := logrus.New()
	log.SetLevel(parseLevel(logLevel))
	log.SetFormatter(&CustomFormatter{
		TimestampFormat: "15:04:05",
		DisableColors:   true,
	})
	log.SetOutput(output)

	return &RunLogger{logger: log}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() Logger {
	return CreateLoggerWithOutput("error", io.Discard)
}

func parseLevel(logLevel string) logrus.Level {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// WithComponent returns a logger tagged with a component name
func (l *RunLogger) WithComponent(component string) Logger {
	return &RunLogger{
		logger:    l.logger,
		component: component,
		runID:     l.runID,
	}
}

// WithRun returns a logger tagged with a run ID
func (l *RunLogger) WithRun(runID string) Logger {
	return &RunLogger{
		logger:    l.logger,
		component: l.component,
		runID:     runID,
	}
}

func (l *RunLogger) convertFields(fields []Field) logrus.Fields {
	result := make(logrus.Fields, len(fields)+2)
	if l.component != "" {
		result[componentKey] = l.component
	}
	if l.runID != "" {
		result[runKey] = l.runID
	}
	for _, f := range fields {
		result[f.Key] = f.Value
	}
	return result
}

// Info logs an info message
func (l *RunLogger) Info(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Info(message)
}

// Error logs an error message
func (l *RunLogger) Error(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Error(message)
}

// Warn logs a warning message
func (l *RunLogger) Warn(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Warn(message)
}

// Debug logs a debug message
func (l *RunLogger) Debug(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Debug(message)
}

// Success logs at info level with the success marker
func (l *RunLogger) Success(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f := l.convertFields(fields)
	f[successKey] = true
	l.logger.WithFields(f).Info(message)
}
