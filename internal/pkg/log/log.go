// Package log provides the fielded logger used by every component: a
// thin wrapper over logrus with rotating file output, matching the
// component/key-value style used throughout this tree.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

// Fields is a named map of key-value pairs attached to every line emitted
// by a FieldedLogger.
type Fields map[string]interface{}

// FieldedLogger logs with a fixed set of base fields plus whatever
// key-value pairs are passed at the call site.
type FieldedLogger struct {
	entry *logrus.Entry
}

var (
	base   *logrus.Logger
	once   sync.Once
	stopCh chan struct{}
)

// Start initializes the process-wide logrus instance: text output to
// stderr plus a daily-rotated file under a "logs" subdirectory of the
// process's current working directory. Safe to call multiple times; only
// the first call has effect.
func Start() error {
	var err error

	once.Do(func() {
		base = logrus.New()
		base.SetLevel(levelFromEnv())

		logDir := "logs"
		if wd, e := os.Getwd(); e == nil {
			logDir = wd + "/logs"
		}
		if e := os.MkdirAll(logDir, 0o755); e != nil {
			err = e
			return
		}

		writer, e := rotatelogs.New(
			logDir+"/atwworker-%Y%m%d.log",
			rotatelogs.WithLinkName(logDir+"/atwworker.log"),
			rotatelogs.WithMaxAge(7*24*time.Hour),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if e != nil {
			err = e
			return
		}

		base.SetOutput(io.MultiWriter(os.Stderr, writer))
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

		stopCh = make(chan struct{})
	})

	return err
}

// Stop closes the stop channel Start created. A no-op if Start was never
// called. The rotating log file writer is left open.
func Stop() {
	if stopCh != nil {
		close(stopCh)
		stopCh = nil
	}
}

func levelFromEnv() logrus.Level {
	switch os.Getenv("ATW_LOG") {
	case "debug", "DEBUG":
		return logrus.DebugLevel
	case "warn", "WARN":
		return logrus.WarnLevel
	case "error", "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// NewFieldedLogger returns a logger that prefixes every line with the
// given base fields. Start must have been called first; if it wasn't,
// NewFieldedLogger lazily falls back to a stderr-only logger so callers
// in tests don't need to bootstrap the full rotating-file setup.
func NewFieldedLogger(f *Fields) *FieldedLogger {
	if base == nil {
		base = logrus.New()
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	fields := logrus.Fields{}
	if f != nil {
		for k, v := range *f {
			fields[k] = v
		}
	}

	return &FieldedLogger{entry: base.WithFields(fields)}
}

func (l *FieldedLogger) withKV(kv []interface{}) *logrus.Entry {
	if len(kv) == 0 {
		return l.entry
	}
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		fields[key] = kv[i+1]
	}
	return l.entry.WithFields(fields)
}

func (l *FieldedLogger) Debug(msg string, kv ...interface{}) { l.withKV(kv).Debug(msg) }
func (l *FieldedLogger) Info(msg string, kv ...interface{})  { l.withKV(kv).Info(msg) }
func (l *FieldedLogger) Warn(msg string, kv ...interface{})  { l.withKV(kv).Warn(msg) }
func (l *FieldedLogger) Error(msg string, kv ...interface{}) { l.withKV(kv).Error(msg) }
func (l *FieldedLogger) Fatal(msg string, kv ...interface{}) { l.withKV(kv).Fatal(msg) }
