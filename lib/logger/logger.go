// Package logger provides the shared logging interface for the SDK. The
// cluster owns one ILogger and hands prefixed children to the backend cores.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

const rfc3339Usec = "2006-01-02T15:04:05.000000Z07:00"

// Ensure implementations satisfy the interface.
var (
	_ ILogger = &nopLogger{}
	_ ILogger = &standardLogger{}
	_ ILogger = &LogfLogger{}
	_ ILogger = &BufferLogger{}
)

// ILogger represents an interface for a shared logger.
type ILogger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	// WithPrefix returns a new ILogger with the same configuration as
	// this one, but all logs will have the given prefix.
	WithPrefix(prefix string) ILogger
}

const (
	LevelError = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func levelPrefix(level int) string {
	return [...]string{"ERROR: ", "WARN:  ", "INFO:  ", "DEBUG: "}[level]
}

// StderrLogger is the default logger of a cluster that configured none.
var StderrLogger = NewStandardLogger(os.Stderr)

// NopLogger represents an ILogger that doesn't do anything.
var NopLogger ILogger = &nopLogger{}

type nopLogger struct{}

func (n *nopLogger) Printf(format string, v ...interface{}) {}
func (n *nopLogger) Debugf(format string, v ...interface{}) {}
func (n *nopLogger) Infof(format string, v ...interface{})  {}
func (n *nopLogger) Warnf(format string, v ...interface{})  {}
func (n *nopLogger) Errorf(format string, v ...interface{}) {}

func (n *nopLogger) WithPrefix(prefix string) ILogger {
	return n
}

// standardLogger is a basic implementation of ILogger based on log.Logger.
type standardLogger struct {
	logger    *log.Logger
	verbosity int
	prefix    string
	w         io.Writer
}

// write in UTC with constant width and microsecond resolution.
type formatLog struct {
	w io.Writer
}

func (fl formatLog) Write(p []byte) (int, error) {
	return fmt.Fprintf(fl.w, "%v %v", time.Now().UTC().Format(rfc3339Usec), string(p))
}

func newStandardLogger(w io.Writer, verbosity int, prefix string) *standardLogger {
	logger := log.New(w, prefix, 0)
	logger.SetOutput(formatLog{w: w})
	return &standardLogger{
		logger:    logger,
		verbosity: verbosity,
		prefix:    prefix,
		w:         w,
	}
}

// NewStandardLogger logs at info level and above to w.
func NewStandardLogger(w io.Writer) *standardLogger {
	return newStandardLogger(w, LevelInfo, "")
}

// NewVerboseLogger logs everything including debug to w.
func NewVerboseLogger(w io.Writer) *standardLogger {
	return newStandardLogger(w, LevelDebug, "")
}

func (s *standardLogger) printf(level int, format string, v ...interface{}) {
	if level > s.verbosity {
		return
	}
	s.logger.Printf(levelPrefix(level)+format, v...)
}

func (s *standardLogger) Printf(format string, v ...interface{}) {
	s.printf(LevelInfo, format, v...)
}

func (s *standardLogger) Debugf(format string, v ...interface{}) {
	s.printf(LevelDebug, format, v...)
}

func (s *standardLogger) Infof(format string, v ...interface{}) {
	s.printf(LevelInfo, format, v...)
}

func (s *standardLogger) Warnf(format string, v ...interface{}) {
	s.printf(LevelWarn, format, v...)
}

func (s *standardLogger) Errorf(format string, v ...interface{}) {
	s.printf(LevelError, format, v...)
}

func (s *standardLogger) WithPrefix(prefix string) ILogger {
	return newStandardLogger(s.w, s.verbosity, prefix)
}

// Logfer is a thing that has only a Logf() method, like for instance,
// testing.T or testing.B.
type Logfer interface {
	Logf(format string, v ...interface{})
}

// LogfLogger wraps something that has a Logf interface and makes it act
// like an ILogger, so tests can route SDK logs through testing.T.
type LogfLogger struct {
	wrapped Logfer
}

func NewLogfLogger(l Logfer) *LogfLogger {
	return &LogfLogger{wrapped: l}
}

func (ll *LogfLogger) Printf(format string, v ...interface{}) {
	ll.wrapped.Logf(format, v...)
}

func (ll *LogfLogger) Debugf(format string, v ...interface{}) {
	ll.wrapped.Logf(format, v...)
}

func (ll *LogfLogger) Infof(format string, v ...interface{}) {
	ll.wrapped.Logf(format, v...)
}

func (ll *LogfLogger) Warnf(format string, v ...interface{}) {
	ll.wrapped.Logf(format, v...)
}

func (ll *LogfLogger) Errorf(format string, v ...interface{}) {
	ll.wrapped.Logf(format, v...)
}

func (ll *LogfLogger) WithPrefix(prefix string) ILogger {
	return ll
}

// BufferLogger is a test logger that collects everything written to it.
type BufferLogger struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func NewBufferLogger() *BufferLogger {
	return &BufferLogger{}
}

func (bl *BufferLogger) logf(format string, v ...interface{}) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	fmt.Fprintf(&bl.buf, format, v...)
	if len(format) == 0 || format[len(format)-1] != '\n' {
		bl.buf.WriteByte('\n')
	}
}

func (bl *BufferLogger) Printf(format string, v ...interface{}) { bl.logf(format, v...) }
func (bl *BufferLogger) Debugf(format string, v ...interface{}) { bl.logf(format, v...) }
func (bl *BufferLogger) Infof(format string, v ...interface{})  { bl.logf(format, v...) }
func (bl *BufferLogger) Warnf(format string, v ...interface{})  { bl.logf(format, v...) }
func (bl *BufferLogger) Errorf(format string, v ...interface{}) { bl.logf(format, v...) }

func (bl *BufferLogger) WithPrefix(prefix string) ILogger {
	return bl
}

// String returns everything logged so far.
func (bl *BufferLogger) String() string {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	return bl.buf.String()
}
