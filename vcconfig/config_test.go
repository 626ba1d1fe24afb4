package vcconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vc-go/vcompiler/vcconfig"
)

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := vcconfig.Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, vcconfig.Default(), cfg)
}

func TestLoad_EmptyPath_ReturnsDefaults(t *testing.T) {
	cfg, err := vcconfig.Load("")
	require.NoError(t, err)
	assert.Equal(t, vcconfig.Default(), cfg)
}

func TestLoad_OverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vcompiler.toml")
	contents := `
work_dir = "/tmp/vc-work"
cc_exec = "clang"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := vcconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vc-work", cfg.WorkDir)
	assert.Equal(t, "clang", cfg.CCExec)
	assert.Equal(t, "opt", cfg.OptExec, "unset fields keep Default()'s values")
}
