// Package logging holds the process-wide logrus logger. Packages log through
// entries from WithFields so every line carries the session, device or plane
// it concerns.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Options selects where and how log lines are written.
type Options struct {
	Level   string // debug, info, warn or error; anything else means info
	File    string // appended to when set
	Console bool   // also write to stderr
	JSON    bool   // one JSON object per line instead of key=value text
}

var (
	mu   sync.Mutex
	log  *logrus.Logger
	file *os.File
)

// Init replaces the logger. A log file opened by an earlier Init is closed.
func Init(opts Options) error {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	var writers []io.Writer
	if opts.Console {
		writers = append(writers, os.Stderr)
	}

	var f *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return err
		}
		f, err = os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	switch len(writers) {
	case 0:
		l.SetOutput(io.Discard)
	case 1:
		l.SetOutput(writers[0])
	default:
		l.SetOutput(io.MultiWriter(writers...))
	}

	mu.Lock()
	prev := file
	log, file = l, f
	mu.Unlock()
	if prev != nil {
		return prev.Close()
	}
	return nil
}

// Close closes the log file, if any, and routes logging to stderr.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	log = nil
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// Get returns the logger instance
func Get() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		log = logrus.New()
	}
	return log
}

// WithFields returns an entry carrying structured context.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Get().WithFields(fields)
}

func Debugf(format string, args ...interface{}) {
	Get().Debugf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Get().Errorf(format, args...)
}
