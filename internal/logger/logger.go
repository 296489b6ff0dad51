package logger

import (
	"io"

	"github.com/goliatone/go-formwidget/internal/config"
	"github.com/sirupsen/logrus"
)

// NewLogger creates a structured logger from the logging section. Unknown
// levels fall back to info; any format other than "json" is text.
func NewLogger(cfg config.LoggingConfig, out io.Writer) *logrus.Logger {
	log := logrus.New()
	if out != nil {
		log.SetOutput(out)
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return log
}
