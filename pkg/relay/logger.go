package relay

import (
	"fmt"

	"github.com/pion/logging"

	"github.com/inercia/violet/pkg/common"
)

// loggerFactory routes the TURN library's logging into the application
// logger. The library is chatty, so its levels are shifted down by one:
// debug and trace become verbose and info becomes debug.
type loggerFactory struct {
	logger *common.Logger
}

var _ logging.LoggerFactory = loggerFactory{}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &scopedLogger{logger: f.logger, scope: scope}
}

type scopedLogger struct {
	logger *common.Logger
	scope  string
}

var _ logging.LeveledLogger = (*scopedLogger)(nil)

func (l *scopedLogger) prefix(msg string) string {
	return l.scope + ": " + msg
}

func (l *scopedLogger) Trace(msg string) { l.logger.Verbose("%s", l.prefix(msg)) }
func (l *scopedLogger) Tracef(format string, args ...interface{}) {
	l.logger.Verbose("%s", l.prefix(fmt.Sprintf(format, args...)))
}

func (l *scopedLogger) Debug(msg string) { l.logger.Verbose("%s", l.prefix(msg)) }
func (l *scopedLogger) Debugf(format string, args ...interface{}) {
	l.logger.Verbose("%s", l.prefix(fmt.Sprintf(format, args...)))
}

func (l *scopedLogger) Info(msg string) { l.logger.Debug("%s", l.prefix(msg)) }
func (l *scopedLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug("%s", l.prefix(fmt.Sprintf(format, args...)))
}

func (l *scopedLogger) Warn(msg string) { l.logger.Warn("%s", l.prefix(msg)) }
func (l *scopedLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn("%s", l.prefix(fmt.Sprintf(format, args...)))
}

func (l *scopedLogger) Error(msg string) { l.logger.Error("%s", l.prefix(msg)) }
func (l *scopedLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error("%s", l.prefix(fmt.Sprintf(format, args...)))
}
