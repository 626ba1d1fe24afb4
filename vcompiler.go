// Package vcompiler is the root convenience layer: a thin wrapper over
// version.Builder and
// version.Version for callers that don't need the builder's full
// accumulation API. The core lifecycle engine lives in package version;
// the backend strategies live in package backend. This package adds
// nothing to either — it only composes them.
package vcompiler

import (
	"context"

	"github.com/vc-go/vcompiler/backend"
	"github.com/vc-go/vcompiler/option"
	"github.com/vc-go/vcompiler/vcconfig"
	"github.com/vc-go/vcompiler/version"
)

// NewVersion builds and seals a Version from sourcePaths, functionNames
// and options in one call. If be is nil, a default External backend is
// constructed from
// vcconfig.Default() (no configuration file consulted — callers wanting
// file-backed defaults should call vcconfig.Load themselves and pass an
// explicit backend).
func NewVersion(be backend.CompilerBackend, sourcePaths []string, functionNames []string, options option.List) (*version.Version, bool) {
	if be == nil {
		cfg := vcconfig.Default()
		be = backend.NewExternal(cfg.CCExec, cfg.InstallDir, cfg.WorkDir, cfg.LogFile, false, nil)
	}

	b := version.NewBuilder().SetCompiler(be).Options(options)
	for _, p := range sourcePaths {
		b.AddSourceFile(p)
	}
	for _, f := range functionNames {
		b.AddFunctionName(f)
	}
	return b.Build()
}

// CompileAndGetFirstSymbol compiles v and returns its first symbol. Returns
// (0, false) if compile fails or the first symbol could not be resolved.
func CompileAndGetFirstSymbol(ctx context.Context, v *version.Version) (backend.Symbol, bool) {
	if !v.Compile(ctx) {
		return 0, false
	}
	return v.Symbol()
}
