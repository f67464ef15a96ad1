package logging

import (
	"os"
	"strings"

	"docorder-service/internal/config"

	logger "github.com/sirupsen/logrus"
)

// Configure sets the global logrus level and formatter.
func Configure(cfg config.Log) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logger.TextFormatter{FullTimestamp: true})
		return
	}
	logger.SetFormatter(&logger.JSONFormatter{})
}
