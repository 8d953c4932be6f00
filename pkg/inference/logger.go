package inference

import (
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

type leveledLogger struct {
	s *zap.SugaredLogger
}

// NewLeveledLogger lets retryablehttp log through zap at matching levels.
func NewLeveledLogger(lg *zap.Logger) retryablehttp.LeveledLogger {
	return &leveledLogger{s: lg.Sugar()}
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
