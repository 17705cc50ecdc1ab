package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields carries structured key/value pairs attached to a log line.
type Fields map[string]interface{}

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	return l
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// SetLevel changes the level of every logger created by this package.
func SetLevel(level string) {
	base.SetLevel(parseLevel(level))
}

// LoggerV2 is a component-scoped structured logger.
type LoggerV2 struct {
	entry *logrus.Entry
}

// NewLoggerV2 returns a logger tagged with the given service or component name.
func NewLoggerV2(service string) *LoggerV2 {
	return &LoggerV2{entry: base.WithField("service", service)}
}

// With returns a child logger that always carries fields.
func (l *LoggerV2) With(fields Fields) *LoggerV2 {
	return &LoggerV2{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *LoggerV2) Debug(msg string, fields ...Fields) {
	l.withFields(fields).Debug(msg)
}

func (l *LoggerV2) Info(msg string, fields ...Fields) {
	l.withFields(fields).Info(msg)
}

func (l *LoggerV2) Warn(msg string, fields ...Fields) {
	l.withFields(fields).Warn(msg)
}

func (l *LoggerV2) Error(msg string, fields ...Fields) {
	l.withFields(fields).Error(msg)
}

// Fatal logs and exits the process.
func (l *LoggerV2) Fatal(msg string, fields ...Fields) {
	l.withFields(fields).Fatal(msg)
}

func (l *LoggerV2) withFields(fields []Fields) *logrus.Entry {
	if l == nil || l.entry == nil {
		return logrus.NewEntry(base)
	}
	entry := l.entry
	for _, f := range fields {
		entry = entry.WithFields(logrus.Fields(f))
	}
	return entry
}

// Info logs through the package-level logger.
func Info(msg string, fields ...Fields) {
	(&LoggerV2{entry: logrus.NewEntry(base)}).Info(msg, fields...)
}

// Infof is the unstructured form kept for startup banners.
// TODO(TEAM-PLATFORM): Migrate remaining Infof callers to structured logging
func Infof(format string, args ...interface{}) {
	base.Info(fmt.Sprintf(format, args...))
}
