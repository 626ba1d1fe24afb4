package backend

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ebitengine/purego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vc-go/vcompiler/logregistry"
	"github.com/vc-go/vcompiler/option"
)

// writeFakeCC writes a shell script standing in for a system compiler: it
// scans argv for "-o <path>" and touches that path, ignoring everything
// else. Good enough to exercise External's invocation/verification logic
// without a real toolchain.
func writeFakeCC(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compiler script is POSIX shell only")
	}
	path := filepath.Join(dir, "fakecc.sh")
	script := "#!/bin/sh\nwhile [ $# -gt 0 ]; do\n  if [ \"$1\" = \"-o\" ]; then\n    shift\n    touch \"$1\"\n  fi\n  shift\ndone\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExternal_GenerateIR_FailsWhenUnsupported(t *testing.T) {
	dir := t.TempDir()
	cc := writeFakeCC(t, dir)
	e := NewExternal(cc, "", dir, "", false, nil)
	defer e.Close()

	_, ok := e.GenerateIR(context.Background(), []string{"a.c"}, nil, "v1", nil)
	assert.False(t, ok)
}

func TestExternal_GenerateIR_Success(t *testing.T) {
	dir := t.TempDir()
	cc := writeFakeCC(t, dir)
	e := NewExternal(cc, "", dir, "", true, nil)
	defer e.Close()

	path, ok := e.GenerateIR(context.Background(), []string{"a.c"}, nil, "v1", option.List{option.New("opt", "-O", "2")})
	require.True(t, ok)
	assert.FileExists(t, path)
}

func TestExternal_GenerateBin_Success(t *testing.T) {
	dir := t.TempDir()
	cc := writeFakeCC(t, dir)
	e := NewExternal(cc, "", dir, "", false, nil)
	defer e.Close()

	path, ok := e.GenerateBin(context.Background(), []string{"a.c"}, []string{"f"}, "v2", nil)
	require.True(t, ok)
	assert.FileExists(t, path)
}

func TestExternal_GenerateBin_NoSources(t *testing.T) {
	dir := t.TempDir()
	cc := writeFakeCC(t, dir)
	e := NewExternal(cc, "", dir, "", false, nil)
	defer e.Close()

	_, ok := e.GenerateBin(context.Background(), nil, nil, "v3", nil)
	assert.False(t, ok)
}

func TestExternal_RunOptimizer_AlwaysFails(t *testing.T) {
	dir := t.TempDir()
	cc := writeFakeCC(t, dir)
	e := NewExternal(cc, "", dir, "", false, nil)
	defer e.Close()

	_, ok := e.RunOptimizer(context.Background(), "ir.bc", "v4", nil)
	assert.False(t, ok)
}

func TestExternalWithOpt_RunOptimizer_Success(t *testing.T) {
	dir := t.TempDir()
	cc := writeFakeCC(t, dir)
	base := NewExternal(cc, "", dir, "", true, nil)
	defer base.Close()
	e := NewExternalWithOpt(base, cc)

	irFile := filepath.Join(dir, "fake_ir.bc")
	require.NoError(t, os.WriteFile(irFile, []byte("fake-ir"), 0o644))

	path, ok := e.RunOptimizer(context.Background(), irFile, "v5", option.List{option.New("opt", "-O", "3")})
	require.True(t, ok)
	assert.FileExists(t, path)
}

func TestExternalWithOpt_RunOptimizer_MissingInput(t *testing.T) {
	dir := t.TempDir()
	cc := writeFakeCC(t, dir)
	base := NewExternal(cc, "", dir, "", true, nil)
	defer base.Close()
	e := NewExternalWithOpt(base, cc)

	_, ok := e.RunOptimizer(context.Background(), filepath.Join(dir, "missing.bc"), "v6", nil)
	assert.False(t, ok)
}

func TestExternal_LoadSymbols_Success(t *testing.T) {
	if _, err := exec.LookPath("cc"); err != nil {
		t.Skip("cc not available on PATH")
	}
	if testing.Short() {
		t.Skip("skipping real shared-object build in short mode")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "f.c")
	require.NoError(t, os.WriteFile(src, []byte("int f(int x){ return x + 1; }\n"), 0o644))

	e := NewExternal("cc", "", dir, "", false, nil)
	defer e.Close()

	artifact, ok := e.GenerateBin(context.Background(), []string{src}, []string{"f"}, "v7", nil)
	require.True(t, ok)
	assert.FileExists(t, artifact)

	symbols, handle, ok := e.LoadSymbols(context.Background(), artifact, []string{"f"}, "v7")
	require.True(t, ok)
	require.Len(t, symbols, 1)
	require.NotZero(t, symbols[0])

	r1, _, callErr := purego.SyscallN(uintptr(symbols[0]), 41)
	require.Zero(t, callErr)
	assert.Equal(t, int32(42), int32(r1))

	e.ReleaseSymbols(handle)
}

func TestExternal_SharedLogRegistry_SerialisesWrites(t *testing.T) {
	dir := t.TempDir()
	cc := writeFakeCC(t, dir)
	logFile := filepath.Join(dir, "build.log")
	logs := logregistry.New()

	e1 := NewExternal(cc, "", dir, logFile, false, logs)
	e2 := NewExternal(cc, "", dir, logFile, false, logs)
	defer e1.Close()
	defer e2.Close()

	_, ok1 := e1.GenerateBin(context.Background(), []string{"a.c"}, nil, "va", nil)
	_, ok2 := e2.GenerateBin(context.Background(), []string{"b.c"}, nil, "vb", nil)
	require.True(t, ok1)
	require.True(t, ok2)

	contents, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "a.c")
	assert.Contains(t, string(contents), "b.c")
}
