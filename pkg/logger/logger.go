package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a new logger with the specified log level
func New(level string) *logrus.Logger {
	logger := logrus.New()

	// Set log level
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set formatter
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Set output
	logger.SetOutput(os.Stdout)

	return logger
}
