// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/concrete-go"
)

// Formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Init sets level and format on the standard logger.
func Init(level, format string) error {
	return Configure(logrus.StandardLogger(), level, format, nil)
}

// Configure applies level and format to logger. A nil out keeps its output.
func Configure(logger *logrus.Logger, level, format string, out io.Writer) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return concrete.NewConfigurationError("invalid log level '"+level+"'", err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return concrete.NewConfigurationError("invalid log format '"+format+"'", nil)
	}
	if out != nil {
		logger.SetOutput(out)
	}
	return nil
}

// New returns an entry tagged with component.
func New(component string) *logrus.Entry {
	return logrus.StandardLogger().WithField("component", component)
}
