package log

import (
	"fmt"

	"github.com/sirupsen/logrus"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// meowLogger routes whatsmeow's internal logging through logrus.
type meowLogger struct {
	entry  *logrus.Entry
	module string
}

// WhatsMeow returns a waLog.Logger for the given whatsmeow module (Client, Database, ...).
func WhatsMeow(module string) waLog.Logger {
	return &meowLogger{
		entry:  logger.WithField("module", module),
		module: module,
	}
}

func (l *meowLogger) Debugf(msg string, args ...interface{}) {
	l.entry.Debug(fmt.Sprintf(msg, args...))
}

func (l *meowLogger) Infof(msg string, args ...interface{}) {
	l.entry.Info(fmt.Sprintf(msg, args...))
}

func (l *meowLogger) Warnf(msg string, args ...interface{}) {
	l.entry.Warn(fmt.Sprintf(msg, args...))
}

func (l *meowLogger) Errorf(msg string, args ...interface{}) {
	l.entry.Error(fmt.Sprintf(msg, args...))
}

func (l *meowLogger) Sub(module string) waLog.Logger {
	name := module
	if l.module != "" {
		name = l.module + "/" + module
	}
	return &meowLogger{
		entry:  l.entry.WithField("module", name),
		module: name,
	}
}
