package version_test

import (
	"context"

	"github.com/vc-go/vcompiler/backend"
	"github.com/vc-go/vcompiler/option"
)

// fakeBackend is a deterministic, in-memory stand-in for a real
// CompilerBackend, used to drive Version/Builder through the state
// machine without a system compiler. It never touches the filesystem;
// "paths" it returns are synthetic labels Version never dereferences
// itself (only a real backend's own stages ever open these files).
type fakeBackend struct {
	supportsIRFlag  bool
	supportsOptFlag bool

	failGenerateIR   bool
	failRunOptimizer bool
	failGenerateBin  bool
	failLoadSymbols  bool
	missingFirst     bool

	genIRCalls  int
	genBinCalls int
	loadCalls   int
	released    []backend.Handle
}

func (b *fakeBackend) SupportsIR() bool        { return b.supportsIRFlag }
func (b *fakeBackend) SupportsOptimizer() bool { return b.supportsOptFlag }

func (b *fakeBackend) GenerateIR(ctx context.Context, sources, funcs []string, versionID string, opts option.List) (string, bool) {
	b.genIRCalls++
	if b.failGenerateIR {
		return "", false
	}
	return "ir_" + versionID, true
}

func (b *fakeBackend) RunOptimizer(ctx context.Context, irFile, versionID string, opts option.List) (string, bool) {
	if b.failRunOptimizer {
		return "", false
	}
	return "opt_" + versionID, true
}

func (b *fakeBackend) GenerateBin(ctx context.Context, sources, funcs []string, versionID string, opts option.List) (string, bool) {
	b.genBinCalls++
	if b.failGenerateBin {
		return "", false
	}
	return "bin_" + versionID, true
}

func (b *fakeBackend) LoadSymbols(ctx context.Context, artifact string, funcs []string, versionID string) ([]backend.Symbol, backend.Handle, bool) {
	b.loadCalls++
	if b.failLoadSymbols {
		return nil, nil, false
	}
	symbols := make([]backend.Symbol, len(funcs))
	for i := range funcs {
		if b.missingFirst && i == 0 {
			symbols[i] = 0
			continue
		}
		symbols[i] = backend.Symbol(i + 1)
	}
	return symbols, "handle-" + versionID, true
}

func (b *fakeBackend) ReleaseSymbols(handle backend.Handle) {
	b.released = append(b.released, handle)
}

func (b *fakeBackend) RenderOption(o option.Option) string { return o.Rendered() }
