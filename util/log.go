package util

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogLevel byte

const (
	LogLevelTrace   LogLevel = 0
	LogLevelDebug   LogLevel = 1
	LogLevelEnabled LogLevel = 2
)

var logrusLevels = map[LogLevel]logrus.Level{
	LogLevelTrace:   logrus.TraceLevel,
	LogLevelDebug:   logrus.DebugLevel,
	LogLevelEnabled: logrus.InfoLevel,
}

var baseLogger = newBaseLogger()

func newBaseLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	return logger
}

func SetLogOutput(out io.Writer) {
	baseLogger.SetOutput(out)
}

// SetLogLevel enables every logger created at or above level.
func SetLogLevel(level LogLevel) {
	if l, ok := logrusLevels[level]; ok {
		baseLogger.SetLevel(l)
	}
}

// Logger prints through the shared logrus logger at a fixed level, tagged
// with the component it was created for.
type Logger struct {
	*logrus.Entry
	level logrus.Level
}

func NewLogger(prefix string, level LogLevel) *Logger {
	component := strings.Trim(strings.TrimSpace(prefix), "[]")
	l, ok := logrusLevels[level]
	if !ok {
		l = logrus.TraceLevel
	}
	return &Logger{
		Entry: baseLogger.WithField("component", strings.ToLower(component)),
		level: l,
	}
}

func (logger *Logger) Printf(format string, args ...interface{}) {
	logger.Logf(logger.level, strings.TrimRight(format, "\n"), args...)
}

func (logger *Logger) Println(args ...interface{}) {
	logger.Logln(logger.level, args...)
}
