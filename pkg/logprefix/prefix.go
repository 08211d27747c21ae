// Package logprefix tags every message of a component with a fixed prefix,
// so that interleaved output from the frame loop, the sensors and the
// websocket clients can be told apart.
package logprefix

import "github.com/cyclopcam/logs"

// Logger writes to the underlying log, but all messages are prefixed with a string of your choice.
// Methods that are not overridden pass straight through to the underlying log.
type Logger struct {
	logs.Log
	Prefix string
}

// Create a new prefix logger. A space is added after prefix.
func New(log logs.Log, prefix string) *Logger {
	return NewNoSpace(log, prefix+" ")
}

// Create a new prefix logger, but don't add a space onto 'prefix'
func NewNoSpace(log logs.Log, prefix string) *Logger {
	return &Logger{
		Log:    log,
		Prefix: prefix,
	}
}

func (l *Logger) Debugf(format string, a ...any) {
	l.Log.Debugf(l.Prefix+format, a...)
}

func (l *Logger) Infof(format string, a ...any) {
	l.Log.Infof(l.Prefix+format, a...)
}

func (l *Logger) Warnf(format string, a ...any) {
	l.Log.Warnf(l.Prefix+format, a...)
}

func (l *Logger) Errorf(format string, a ...any) {
	l.Log.Errorf(l.Prefix+format, a...)
}
