// Package logregistry implements the process-wide table that serialises
// writes to per-Version log files.
//
// A single Registry maps a log-file path to a reference-counted, exclusive
// lock. Versions sharing a log path (e.g. two Versions built by the same
// backend instance) serialise their writes through the same lock; the
// lock is freed only once every referencing Version has released it.
// Structurally this is the same refcounted-map-plus-per-item-lock shape as
// promise bookkeeping in an event loop's registry: an outer lock protects
// only insertion/removal of map entries, while per-entry state is
// independently guarded.
package logregistry

import (
	"os"
	"sync"

	"github.com/vc-go/vcompiler/internal/obslog"
)

// entry is the reference-counted state for one log file path.
type entry struct {
	mu       sync.Mutex
	refcount int
	file     *os.File
	truncate bool // WarningTestCompiler-style "truncate on first write" flag
}

// Registry is a process-wide table from log-file path to its exclusive
// lock. The zero value is ready to use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New constructs a ready Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Acquire increments the refcount for path, creating the entry (refcount 1)
// if absent. An empty path is a no-op.
func (r *Registry) Acquire(path string) {
	if path == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]*entry)
	}
	e, ok := r.entries[path]
	if !ok {
		e = &entry{}
		r.entries[path] = e
	}
	e.refcount++
}

// Release decrements the refcount for path, removing the entry and closing
// its file once it reaches zero. An empty path is a no-op.
func (r *Registry) Release(path string) {
	if path == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	if !ok {
		return
	}
	e.refcount--
	if e.refcount <= 0 {
		delete(r.entries, path)
		e.mu.Lock()
		if e.file != nil {
			_ = e.file.Close()
			e.file = nil
		}
		e.mu.Unlock()
	}
}

// SetTruncateOnFirstUse arranges for the next write to path to truncate the
// existing file content before appending, matching the WarningTestCompiler
// peripheral named in Open Questions, modeled here as a registry
// flag rather than a separate backend variant. No-op for an empty path or
// an unacquired entry.
func (r *Registry) SetTruncateOnFirstUse(path string) {
	if path == "" {
		return
	}
	r.mu.Lock()
	e, ok := r.entries[path]
	r.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.truncate = true
	e.mu.Unlock()
}

// WithLock acquires the per-path lock, opening the file lazily on first
// use, runs work with the open file (nil if path is empty, making the
// whole operation a no-op), and releases the lock on every
// exit path including a panic unwinding through work.
//
// Opening the log file is best-effort: if the log file cannot be opened,
// the intended content is silently dropped rather than surfaced as an
// error (LoggingFailure is a degraded-silently condition, not a hard
// failure).
func (r *Registry) WithLock(path string, work func(f *os.File)) {
	if path == "" {
		work(nil)
		return
	}

	r.mu.Lock()
	e, ok := r.entries[path]
	if !ok {
		// Acquire was not called; treat as an implicit, self-contained
		// acquisition for the duration of this call only.
		e = &entry{}
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if e.truncate {
			flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			e.truncate = false
		}
		f, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			obslog.Warn("logregistry: could not open log file, dropping log content", "path", path, "error", err)
			work(nil)
			return
		}
		e.file = f
	}
	if !ok {
		defer func() { _ = e.file.Close() }()
	}

	work(e.file)
}
