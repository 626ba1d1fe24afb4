package vcompiler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vc-go/vcompiler"
	"github.com/vc-go/vcompiler/backend"
	"github.com/vc-go/vcompiler/option"
)

type stubBackend struct{}

func (stubBackend) SupportsIR() bool        { return false }
func (stubBackend) SupportsOptimizer() bool { return false }
func (stubBackend) GenerateIR(ctx context.Context, sources, funcs []string, versionID string, opts option.List) (string, bool) {
	return "", false
}
func (stubBackend) RunOptimizer(ctx context.Context, irFile, versionID string, opts option.List) (string, bool) {
	return "", false
}
func (stubBackend) GenerateBin(ctx context.Context, sources, funcs []string, versionID string, opts option.List) (string, bool) {
	return "bin_" + versionID, true
}
func (stubBackend) LoadSymbols(ctx context.Context, artifact string, funcs []string, versionID string) ([]backend.Symbol, backend.Handle, bool) {
	symbols := make([]backend.Symbol, len(funcs))
	for i := range funcs {
		symbols[i] = backend.Symbol(i + 1)
	}
	return symbols, "handle", true
}
func (stubBackend) ReleaseSymbols(handle backend.Handle) {}
func (stubBackend) RenderOption(o option.Option) string  { return o.Rendered() }

func TestNewVersion_And_CompileAndGetFirstSymbol(t *testing.T) {
	v, ok := vcompiler.NewVersion(stubBackend{}, []string{"f.c"}, []string{"f"}, nil)
	require.True(t, ok)

	sym, ok := vcompiler.CompileAndGetFirstSymbol(context.Background(), v)
	require.True(t, ok)
	assert.EqualValues(t, 1, sym)
}

func TestNewVersion_DefaultsBackendWhenNil(t *testing.T) {
	v, ok := vcompiler.NewVersion(nil, []string{"f.c"}, []string{"f"}, nil)
	require.True(t, ok)
	assert.NotEmpty(t, v.ID())
}
