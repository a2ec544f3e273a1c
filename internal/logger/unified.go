package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogType tags an entry with the channel that writes it
type LogType string

const (
	UserLog LogType = "user"
	OpLog   LogType = "op"
)

// UnifiedLogger owns the single logrus instance behind User and Op
type UnifiedLogger struct {
	logger *logrus.Logger
}

var (
	unifiedLog *UnifiedLogger
	once       sync.Once
)

// GetLogger returns the shared logger, creating it on first use
func GetLogger() *UnifiedLogger {
	once.Do(func() {
		logger := logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&CLIFormatter{
			DisableTimestamp: true,
			DisableLevel:     true,
		})
		unifiedLog = &UnifiedLogger{logger: logger}
	})
	return unifiedLog
}

// Level reports the level set by the last Setup
func (l *UnifiedLogger) Level() logrus.Level {
	return l.logger.GetLevel()
}

// GetInternalLogger returns the underlying logrus logger
func (l *UnifiedLogger) GetInternalLogger() *logrus.Logger {
	return l.logger
}
