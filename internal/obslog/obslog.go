// Package obslog is the library's internal structured-logging sink. It is
// unrelated to the per-Version log files (see logregistry), which stay
// literal free-text; this package carries operational diagnostics (backend
// invocation failures, registry housekeeping) the way lazydocker logs its
// own application events: a single package-level *logrus.Logger, fields
// attached per call site.
package obslog

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	log = logrus.New()
)

func init() {
	log.SetLevel(logrus.InfoLevel)
}

// SetLogger replaces the package-wide logger, e.g. to redirect output or
// change formatting/level in an embedding application.
func SetLogger(l *logrus.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l != nil {
		log = l
	}
}

func current() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

// Error logs a component-tagged error, mirroring the original C++ library's
// log lines of the form "Component::method ERROR detail".
func Error(msg string, kv ...any) {
	current().WithFields(fields(kv)).Error(msg)
}

// Warn logs a degraded-but-recoverable condition (e.g. LoggingFailure).
func Warn(msg string, kv ...any) {
	current().WithFields(fields(kv)).Warn(msg)
}

// Debug logs fine-grained lifecycle detail (stage transitions, command
// lines before they're executed).
func Debug(msg string, kv ...any) {
	current().WithFields(fields(kv)).Debug(msg)
}
