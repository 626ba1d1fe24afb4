// Package identity generates per-Version unique tokens and derives the
// canonical derived-file names from them.
package identity

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

// New generates a type-4 UUID for a new Version, rendered in its canonical
// textual form. Uniqueness across live Versions relies on UUIDv4's
// collision probability being negligible for the
// lifetime of a process, the same trust boundary the original C++ library
// placed in libuuid.
func New() string {
	return uuid.NewString()
}

// sharedLibExt returns the platform's native shared-library extension.
func sharedLibExt() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// IRFileName returns the canonical IR file path for id within workDir:
// "<workdir>/IR_<id>.bc".
func IRFileName(workDir, id string) string {
	return filepath.Join(workDir, fmt.Sprintf("IR_%s.bc", id))
}

// OptIRFileName returns the canonical optimised-IR file path for id within
// workDir: "<workdir>/opt_IR_<id>.bc".
func OptIRFileName(workDir, id string) string {
	return filepath.Join(workDir, fmt.Sprintf("opt_IR_%s.bc", id))
}

// BinFileName returns the canonical shared-object path for id within
// workDir, using the host platform's native shared-library extension:
// "<workdir>/lib<id>.so" (or .dylib/.dll).
func BinFileName(workDir, id string) string {
	return filepath.Join(workDir, fmt.Sprintf("lib%s%s", id, sharedLibExt()))
}

// TempArtifactName derives a staged working copy's name for original,
// distinguishing concurrent stagings of the same source by versionID and
// an incrementing counter n. Supplemented from the original library's
// Compiler::generateTemporaryFileName (original_source/include/
// versioningCompiler/Compiler.hpp), used by the InProcessBatch backend to
// stage .go-named copies of IR files for go build, so that the original
// files are not renamed or modified.
func TempArtifactName(workDir, original, versionID string, n int) string {
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	return filepath.Join(workDir, fmt.Sprintf("%s_%s_%d%s", stem, versionID, n, ext))
}
