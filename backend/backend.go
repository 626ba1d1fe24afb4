// Package backend implements the CompilerBackend abstraction: a uniform
// contract for the four primitive operations a Version needs (generate IR,
// optimise IR, generate a shared object, load/unload symbols), fronting
// four concrete strategies.
package backend

import (
	"context"

	"github.com/vc-go/vcompiler/option"
)

// Symbol is a raw, callable address: the caller chooses how to type it.
// For External, ExternalWithOpt and InProcessBatch it is the literal value
// the platform dynamic loader resolved. InProcessJit cannot hand back a
// real machine-code address without an actual native-code-emitting JIT
// (see jit.go's doc comment); there, Symbol is an opaque per-engine token,
// still invalidated by Fold like any other.
type Symbol uintptr

// Handle is the opaque handle written by LoadSymbols and consumed by
// ReleaseSymbols. Its concrete meaning is backend-specific.
type Handle any

// CompilerBackend is the uniform contract every compiler strategy
// implements. All operations may block; none retries automatically;
// failure is always reported as an absent/false result plus a logged
// detail, never a panic or process termination.
type CompilerBackend interface {
	// SupportsIR reports whether GenerateIR is implemented by this
	// instance. Fixed for the lifetime of the instance.
	SupportsIR() bool
	// SupportsOptimizer reports whether RunOptimizer is implemented by
	// this instance. Fixed for the lifetime of the instance.
	SupportsOptimizer() bool

	// GenerateIR produces an intermediate-representation file from
	// sources. sources must be non-empty; funcs may be empty. Returns the
	// IR file path and true on success, or ("", false) on failure
	// (back-end lacks IR support, invocation failed, or output file was
	// not produced) — detail is logged via obslog, not returned.
	GenerateIR(ctx context.Context, sources []string, funcs []string, versionID string, opts option.List) (path string, ok bool)

	// RunOptimizer produces an optimised IR file from irFile, which must
	// already exist. Returns the optimised IR path and true on success.
	// If the backend has no optimiser, this is a hard failure (the
	// backend should still return ("", false) rather than panic).
	RunOptimizer(ctx context.Context, irFile string, versionID string, opts option.List) (path string, ok bool)

	// GenerateBin produces a shared artifact loadable by the platform's
	// dynamic linker (or, for InProcessJit, a token that variant alone
	// understands) from sources, which may be the optimised IR, the raw
	// IR, or the original sources — the caller (Version) picks which.
	GenerateBin(ctx context.Context, sources []string, funcs []string, versionID string, opts option.List) (artifact string, ok bool)

	// LoadSymbols resolves funcs within artifact (as produced by
	// GenerateBin from the same backend instance), returning one Symbol
	// per requested name (zero-value Symbol in a missing name's
	// position — missing symbols are logged, not fatal), and an opaque
	// Handle used to later release the artifact. ok is false only when
	// the artifact itself could not be loaded at all.
	LoadSymbols(ctx context.Context, artifact string, funcs []string, versionID string) (symbols []Symbol, handle Handle, ok bool)

	// ReleaseSymbols closes/removes the artifact referenced by handle.
	// After return, any Symbol previously resolved through handle is
	// invalid.
	ReleaseSymbols(handle Handle)

	// RenderOption converts an Option into the string form forwarded to
	// this backend's invocation channel, applying whatever
	// escaping/quoting rules the channel requires.
	RenderOption(o option.Option) string
}
