package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Option configures a logger created by New or modified by SetOptions.
type Option func(logger *logger)

// WithLevel drops entries less severe than level.
func WithLevel(level Level) Option {
	return func(logger *logger) {
		logger.Logger.SetLevel(level.ToLogrusLevel())
	}
}

// WithOutput sends entries to output.
func WithOutput(output io.Writer) Option {
	return func(logger *logger) {
		logger.Logger.SetOutput(output)
	}
}

func WithFormatter(formatter logrus.Formatter) Option {
	return func(logger *logger) {
		logger.Logger.SetFormatter(formatter)
	}
}

// WithColors turns terminal colors of the text formatter on or off. Colors are only ever
// written to a terminal.
func WithColors(enabled bool) Option {
	return func(logger *logger) {
		if formatter, ok := logger.Logger.Formatter.(*TextFormatter); ok {
			updated := *formatter
			updated.DisableColors = !enabled
			logger.Logger.SetFormatter(&updated)
		}
	}
}
