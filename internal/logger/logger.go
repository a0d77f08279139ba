package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var _log = logrus.New()

// Init configures the process logger. Debug mode switches to a human-readable
// text format; otherwise entries are emitted as JSON for log shippers.
func Init(debug bool, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	_log.SetOutput(out)
	if debug {
		_log.SetLevel(logrus.DebugLevel)
		_log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	_log.SetLevel(logrus.InfoLevel)
	_log.SetFormatter(&logrus.JSONFormatter{})
}

// Log returns an entry on the process logger.
func Log() *logrus.Entry {
	return logrus.NewEntry(_log)
}

// WithFields returns a logger entry with provided fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log().WithFields(fields)
}

// Component tags entries with the subsystem that produced them.
func Component(name string) *logrus.Entry {
	return Log().WithField("component", name)
}

// WithRequestID returns an entry bound to a single inbound request.
func WithRequestID(id string) *logrus.Entry {
	return Log().WithField("request_id", id)
}
