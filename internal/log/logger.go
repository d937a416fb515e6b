package log

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once   sync.Once
	logger *logrus.Logger
)

// Setup initializes the global logger.
// Unknown levels fall back to INFO.
func Setup(level string) {
	once.Do(func() {
		logger = newLogger(level)
	})
}

func newLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *logrus.Logger {
	Setup("info")
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *logrus.Entry {
	return Get().WithField("component", name)
}
