package db

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"
)

// NewLogger returns the gorm logger for the store: silent unless the
// app runs at debug or trace, in which case SQL is routed to logrus.
func NewLogger(logLevel string) logger.Interface {
	cfg := logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Silent,
		IgnoreRecordNotFoundError: true,
	}
	if logLevel == "debug" || logLevel == "trace" {
		cfg.LogLevel = logger.Info
	}
	return logger.New(logrusWriter{}, cfg)
}

type logrusWriter struct{}

func (logrusWriter) Printf(format string, args ...interface{}) {
	logrus.WithField("component", "gorm").Debugf(format, args...)
}
