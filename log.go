package blesec

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface the stack writes to. Subsystems derive
// tagged child loggers from the process wide root so their output can be
// told apart.
type Logger interface {
	Info(...interface{})
	Debug(...interface{})
	Error(...interface{})
	Warn(...interface{})

	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Warnf(string, ...interface{})

	ChildLogger(tags map[string]interface{}) Logger
}

var (
	loggerMu sync.Mutex
	logger   Logger
)

// SetLogger replaces the root logger. Child loggers already derived keep
// writing through the logger they were created from.
func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// GetLogger returns the root logger, creating the logrus backed default on
// first use.
func GetLogger() Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger == nil {
		logger = newDefaultLogger()
	}
	return logger
}

// SetLogLevelMax turns on trace level output on the default logger. A
// replacement logger manages its own level and gets an error logged
// instead.
func SetLogLevelMax() {
	l := GetLogger()

	lg, ok := l.(*defaultLogger)
	if !ok {
		l.Error("non-default logger, don't know how to set level")
		return
	}
	lg.Entry.Logger.SetLevel(logrus.TraceLevel)
}

// defaultLogger adapts a logrus entry; ChildLogger maps to WithFields.
type defaultLogger struct {
	*logrus.Entry
}

func newDefaultLogger() *defaultLogger {
	l := &logrus.Logger{
		Formatter: &logrus.TextFormatter{DisableTimestamp: true},
		Level:     logrus.InfoLevel,
		Out:       os.Stderr,
		Hooks:     make(logrus.LevelHooks),
	}
	return &defaultLogger{Entry: logrus.NewEntry(l)}
}

func (d *defaultLogger) ChildLogger(tags map[string]interface{}) Logger {
	return &defaultLogger{Entry: d.Entry.WithFields(tags)}
}
