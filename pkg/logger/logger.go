package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// DashboardService is the service field of entries logged by the dashboard packages
const DashboardService = "tourney-dashboard"

// InitLogger initializes the structured logger used by the dashboard and the CLI
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	return InitLoggerWithOutput(logLevel, isDevelopment, os.Stdout)
}

// InitLoggerWithOutput is InitLogger writing to out instead of stdout
func InitLoggerWithOutput(logLevel string, isDevelopment bool, out io.Writer) *logrus.Logger {
	log := logrus.New()

	// Fall back to the environment, then to a mode-specific default
	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			if isDevelopment {
				logLevel = "debug"
			} else {
				logLevel = "info"
			}
		}
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	if !isDevelopment || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.SetOutput(out)

	Logger = log

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("info", false)
	}
	return Logger
}

// WithService creates a logger with service context
func WithService(serviceName string) *logrus.Entry {
	return GetLogger().WithField("service", serviceName)
}

// WithComponent scopes a service logger to one component of it
func WithComponent(serviceName, component string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"service":   serviceName,
		"component": component,
	})
}

// WithSession scopes log to one dashboard view session. A nil log uses the
// global logger.
func WithSession(log *logrus.Logger, sessionID string) *logrus.Entry {
	if log == nil {
		log = GetLogger()
	}
	return log.WithField("session_id", sessionID)
}

// WithSimulationContext adds simulation request fields to entry. A nil entry
// uses the global logger.
func WithSimulationContext(entry *logrus.Entry, teams, runs int) *logrus.Entry {
	if entry == nil {
		entry = logrus.NewEntry(GetLogger())
	}
	return entry.WithFields(logrus.Fields{
		"teams":  teams,
		"n_runs": runs,
	})
}
