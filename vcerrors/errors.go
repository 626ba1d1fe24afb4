// Package vcerrors defines the library's error kinds. None of these
// cross the public stage-method boundary: every stage method still
// returns a bool (or an absent result).
// They exist so the library's internal plumbing and LastError accessor
// have a stable vocabulary to log and compare against, without the
// library terminating the process on a stage failure.
package vcerrors

import (
	"errors"
	"fmt"
	"sync"
)

// Sentinel error kinds.
var (
	// ErrConfiguration is returned when a builder produced a Version that
	// cannot reach a requested state, e.g. prepare_ir on a backend that
	// lacks IR support.
	ErrConfiguration = errors.New("vcompiler: configuration error")
	// ErrBackendInvocation is returned when an external process or
	// in-process driver reports a non-success result.
	ErrBackendInvocation = errors.New("vcompiler: backend invocation failure")
	// ErrMissingArtifact is returned when a back-end reports success but
	// its expected output file does not exist.
	ErrMissingArtifact = errors.New("vcompiler: missing artifact")
	// ErrLoadFailure is returned when a shared artifact is present but
	// unloadable, or a requested symbol is missing.
	ErrLoadFailure = errors.New("vcompiler: load failure")
	// ErrLogging is returned (internally; never surfaced to a stage
	// caller) when a log file could not be opened. Logging always
	// degrades silently rather than failing a stage call.
	ErrLogging = errors.New("vcompiler: logging failure")
)

// Wrap annotates a sentinel kind with contextual detail, e.g.
// vcerrors.Wrap(vcerrors.ErrMissingArtifact, "bin file %q not found", path).
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// Is reports whether err is (wraps) kind, a thin wrapper over errors.Is
// kept so call sites read as vcerrors.Is rather than mixing packages.
func Is(err, kind error) bool { return errors.Is(err, kind) }

var (
	lastMu sync.RWMutex
	last   = make(map[string]error)
)

// Record stashes err as the most recent failure observed for versionID.
// Called by Version's stage methods on failure; never by user code.
func Record(versionID string, err error) {
	if versionID == "" || err == nil {
		return
	}
	lastMu.Lock()
	defer lastMu.Unlock()
	last[versionID] = err
}

// Clear drops any recorded failure for versionID, called once a stage
// subsequently succeeds.
func Clear(versionID string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	delete(last, versionID)
}

// Forget removes all bookkeeping for versionID, called from a Version's
// destruction path.
func Forget(versionID string) { Clear(versionID) }

// LastError returns the most recent stage failure recorded for versionID,
// or nil if its most recent stage call succeeded or none has run. This is
// an additive diagnostic accessor; it never substitutes for checking a stage's own
// result.
func LastError(versionID string) error {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return last[versionID]
}
