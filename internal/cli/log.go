package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Log represents the logger. Every line carries the run_id of the
// invocation.
type Log struct {
	entry   *logrus.Entry
	verbose bool
}

// NewLog returns a Log writing to out. format is "json" or "text".
func NewLog(out io.Writer, format string, verbose bool) *Log {
	l := logrus.New()
	l.SetOutput(out)
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return &Log{
		entry:   l.WithField("run_id", uuid.NewString()),
		verbose: verbose,
	}
}

// Printf prints out formatted string into a log
func (l *Log) Printf(format string, v ...any) {
	l.entry.Info(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

// Println prints out args into a log
func (l *Log) Println(args ...any) {
	l.entry.Info(strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

// Debugf is only written in verbose mode.
func (l *Log) Debugf(format string, v ...any) {
	l.entry.Debugf(format, v...)
}

// Errorf logs a failure.
func (l *Log) Errorf(format string, v ...any) {
	l.entry.Errorf(format, v...)
}

// Verbose shows if verbose print enabled
func (l *Log) Verbose() bool {
	return l.verbose
}
