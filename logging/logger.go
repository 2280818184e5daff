// Package logging builds the structured logger shared by the binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a JSON logger tagged with the service name. The level comes
// from LOG_LEVEL (DEBUG, WARN, ERROR; anything else is INFO).
func New(service string) *logrus.Logger {
	return NewWithOutput(service, os.Stdout)
}

// NewWithOutput is New writing to w.
func NewWithOutput(service string, w io.Writer) *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
	log.SetOutput(w)
	log.AddHook(serviceHook{service: service})

	return log
}

// ParseLevel maps a LOG_LEVEL value onto a logrus level.
func ParseLevel(value string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// serviceHook stamps every entry with the service name.
type serviceHook struct {
	service string
}

func (h serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h serviceHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = h.service
	}
	return nil
}
