// Package version implements the Version lifecycle engine: a sealed
// configuration record plus mutable derived-artifact state, driven
// through its stage methods prepare_ir/compile/fold/reload.
package version

import (
	"context"
	"os"

	"github.com/vc-go/vcompiler/backend"
	"github.com/vc-go/vcompiler/internal/obslog"
	"github.com/vc-go/vcompiler/option"
	"github.com/vc-go/vcompiler/vcerrors"
)

// Version is a sealed configuration record plus the derived-artifact
// state. Stage methods are not internally thread-safe: a caller driving
// one Version across goroutines must serialise its own calls. The zero
// value is not usable; construct via Builder.Build or FromSharedObject.
type Version struct {
	id            string
	tags          []string
	sourceFiles   []string
	functionNames []string
	nameIndex     map[string]int

	buildOptions  option.List
	irGenOptions  option.List
	optOptions    option.List
	functionFlags option.List

	backend    backend.CompilerBackend
	autoremove bool

	state     State
	irFile    string
	optIRFile string
	binFile   string
	libHandle backend.Handle
	symbols   []backend.Symbol
}

// ID returns the Version's UUID, stable for its lifetime.
func (v *Version) ID() string { return v.id }

// Tags returns the Version's free-form descriptive tags.
func (v *Version) Tags() []string { return v.tags }

// SourceFiles returns the sealed source file paths.
func (v *Version) SourceFiles() []string { return v.sourceFiles }

// FunctionNames returns the sealed target function names.
func (v *Version) FunctionNames() []string { return v.functionNames }

// BuildOptions returns the sealed build_options sequence (function flags
// first, per invariant 4).
func (v *Version) BuildOptions() option.List { return v.buildOptions }

// IRGenOptions returns the sealed ir_gen_options sequence (function flags
// first, per invariant 4).
func (v *Version) IRGenOptions() option.List { return v.irGenOptions }

// OptOptions returns the sealed opt_options sequence.
func (v *Version) OptOptions() option.List { return v.optOptions }

// Autoremove reports whether Close deletes derived files.
func (v *Version) Autoremove() bool { return v.autoremove }

// State returns the Version's current lifecycle state.
func (v *Version) State() State { return v.state }

// HasIR reports whether ir_file is present.
func (v *Version) HasIR() bool { return v.irFile != "" }

// HasOptIR reports whether opt_ir_file is present.
func (v *Version) HasOptIR() bool { return v.optIRFile != "" }

// HasBin reports whether bin_file is present.
func (v *Version) HasBin() bool { return v.binFile != "" }

// IsLoaded reports whether the Version's symbols are currently valid.
func (v *Version) IsLoaded() bool { return v.state == Loaded }

// IRFile returns the recorded IR file path, or "" if absent.
func (v *Version) IRFile() string { return v.irFile }

// OptIRFile returns the recorded optimised IR file path, or "" if
// absent.
func (v *Version) OptIRFile() string { return v.optIRFile }

// BinFile returns the recorded shared-artifact path, or "" if absent.
func (v *Version) BinFile() string { return v.binFile }

// Equal reports whether two Versions share an id, supplemented from the
// original library's Version::operator==.
func (v *Version) Equal(other *Version) bool {
	if other == nil {
		return false
	}
	return v.id == other.id
}

// Less orders Versions by id, for deterministic diagnostics and test
// output only — not used by any core algorithm, supplemented from the
// original library's Version::operator<.
func (v *Version) Less(other *Version) bool {
	if other == nil {
		return false
	}
	return v.id < other.id
}

// PrepareIR drives Fresh → HasIR (→ HasOptIR if the backend has an
// optimiser). Requires the backend to support IR; returns false
// (ConfigurationError) otherwise. Returns success iff an IR file — and,
// when the backend has an optimiser, an optimised IR file — was
// produced.
func (v *Version) PrepareIR(ctx context.Context) bool {
	if !v.backend.SupportsIR() {
		err := vcerrors.Wrap(vcerrors.ErrConfiguration, "version %s: backend does not support IR generation", v.id)
		obslog.Error("Version::prepareIR ERROR", "versionID", v.id, "error", err)
		vcerrors.Record(v.id, err)
		return false
	}

	irPath, ok := v.backend.GenerateIR(ctx, v.sourceFiles, v.functionNames, v.id, v.irGenOptions)
	if !ok {
		err := vcerrors.Wrap(vcerrors.ErrBackendInvocation, "version %s: generate_ir failed", v.id)
		obslog.Error("Version::prepareIR ERROR", "versionID", v.id, "error", err)
		vcerrors.Record(v.id, err)
		return false
	}
	v.irFile = irPath
	v.state = HasIR

	if !v.backend.SupportsOptimizer() {
		vcerrors.Clear(v.id)
		return true
	}

	optPath, ok := v.backend.RunOptimizer(ctx, irPath, v.id, v.optOptions)
	if !ok {
		err := vcerrors.Wrap(vcerrors.ErrBackendInvocation, "version %s: run_optimizer failed", v.id)
		obslog.Error("Version::prepareIR ERROR", "versionID", v.id, "error", err)
		vcerrors.Record(v.id, err)
		return false
	}
	v.optIRFile = optPath
	v.state = HasOptIR
	vcerrors.Clear(v.id)
	return true
}

// sourcesForBin selects generate_bin's input set: optimised IR if
// present, else IR, else the original source files.
func (v *Version) sourcesForBin() []string {
	if v.optIRFile != "" {
		return []string{v.optIRFile}
	}
	if v.irFile != "" {
		return []string{v.irFile}
	}
	return v.sourceFiles
}

// Compile drives the Version to Loaded. Idempotent once Loaded (returns
// true without re-invoking the backend). After a fold, re-invokes only
// the load path using the existing bin_file without rebuilding it.
func (v *Version) Compile(ctx context.Context) bool {
	if v.state == Loaded {
		return true
	}

	if v.binFile == "" {
		artifact, ok := v.backend.GenerateBin(ctx, v.sourcesForBin(), v.functionNames, v.id, v.buildOptions)
		if !ok {
			err := vcerrors.Wrap(vcerrors.ErrBackendInvocation, "version %s: generate_bin failed", v.id)
			obslog.Error("Version::compile ERROR", "versionID", v.id, "error", err)
			vcerrors.Record(v.id, err)
			return false
		}
		v.binFile = artifact
		v.state = HasBin
	}

	return v.loadSymbols(ctx)
}

// loadSymbols performs the load-path shared by Compile and Reload.
// Success iff symbols is non-empty and the first entry is non-zero; on
// failure it releases any handle obtained and leaves bin_file recorded
// but symbols empty.
func (v *Version) loadSymbols(ctx context.Context) bool {
	symbols, handle, ok := v.backend.LoadSymbols(ctx, v.binFile, v.functionNames, v.id)
	if !ok {
		err := vcerrors.Wrap(vcerrors.ErrLoadFailure, "version %s: load_symbols failed for artifact %q", v.id, v.binFile)
		obslog.Error("Version::compile ERROR", "versionID", v.id, "error", err)
		vcerrors.Record(v.id, err)
		return false
	}

	success := len(symbols) > 0 && symbols[0] != 0
	if !success {
		v.backend.ReleaseSymbols(handle)
		v.symbols = nil
		v.libHandle = nil
		err := vcerrors.Wrap(vcerrors.ErrLoadFailure, "version %s: first symbol unresolved", v.id)
		obslog.Error("Version::compile ERROR", "versionID", v.id, "error", err)
		vcerrors.Record(v.id, err)
		return false
	}

	v.symbols = symbols
	v.libHandle = handle
	v.state = Loaded
	vcerrors.Clear(v.id)
	return true
}

// Fold releases the loaded shared artifact without discarding the
// Version. No-op if already Folded or never loaded.
func (v *Version) Fold() bool {
	if v.state != Loaded {
		return true
	}
	v.backend.ReleaseSymbols(v.libHandle)
	v.symbols = nil
	v.libHandle = nil
	v.state = Folded
	return true
}

// Reload folds if loaded, then re-invokes the load path using the
// existing bin_file. Fails if bin_file is absent or the artifact can no
// longer be loaded.
func (v *Version) Reload(ctx context.Context) bool {
	if v.binFile == "" {
		err := vcerrors.Wrap(vcerrors.ErrMissingArtifact, "version %s: reload with no bin_file recorded", v.id)
		obslog.Error("Version::reload ERROR", "versionID", v.id, "error", err)
		vcerrors.Record(v.id, err)
		return false
	}
	if v.state == Loaded {
		v.Fold()
	}
	return v.loadSymbols(ctx)
}

// Symbol returns the symbol at index 0.
func (v *Version) Symbol() (backend.Symbol, bool) { return v.SymbolByIndex(0) }

// SymbolByIndex returns the i-th loaded symbol, or (0, false) if out of
// range or unresolved.
func (v *Version) SymbolByIndex(i int) (backend.Symbol, bool) {
	if i < 0 || i >= len(v.symbols) {
		return 0, false
	}
	s := v.symbols[i]
	return s, s != 0
}

// SymbolByName consults the reverse lookup table built at seal time and
// returns the symbol at that index, or (0, false) when name is unknown.
func (v *Version) SymbolByName(name string) (backend.Symbol, bool) {
	idx, ok := v.nameIndex[name]
	if !ok {
		return 0, false
	}
	return v.SymbolByIndex(idx)
}

// Close releases the loaded artifact (as Fold does), then, when
// autoremove is set, deletes derived files in dependency-reverse order
// (bin → opt_ir → ir), ignoring removal failures — the file may already
// be gone, or the caller may lack permission. Go has no destructors, so
// callers invoke this explicitly (typically via defer).
func (v *Version) Close() error {
	v.Fold()
	vcerrors.Forget(v.id)
	if v.autoremove {
		for _, p := range []string{v.binFile, v.optIRFile, v.irFile} {
			if p != "" {
				_ = os.Remove(p)
			}
		}
	}
	return nil
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func buildNameIndex(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return idx
}
