// Package vcconfig loads process-wide defaults for the backends and
// convenience constructors in the root vcompiler package: install
// directories, working directories, and default compiler/optimiser
// executable names. This is ambient configuration left to the embedding
// application; the library itself never chooses build options on the
// user's behalf, and this package does not choose options either — it
// only supplies the knobs an application may otherwise have to hard-code.
package vcconfig

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the defaults consulted by the root package's convenience
// constructors when a caller does not fully specify a backend.
type Config struct {
	// WorkDir is the default backend working directory, where derived
	// files (IR, optimised IR, shared objects) are written.
	WorkDir string `toml:"work_dir"`
	// InstallDir is prefixed to compiler/optimiser executable names that
	// are not already absolute, mirroring the original library's
	// Compiler::installDirectory.
	InstallDir string `toml:"install_dir"`
	// CCExec is the default external-compiler executable for the
	// External/ExternalWithOpt backends, e.g. "clang" or "gcc".
	CCExec string `toml:"cc_exec"`
	// OptExec is the default optimiser executable for ExternalWithOpt,
	// e.g. "opt".
	OptExec string `toml:"opt_exec"`
	// LogFile is the default per-backend log file path; empty disables
	// logging.
	LogFile string `toml:"log_file"`
}

// Default returns the built-in defaults used when no configuration file is
// present: the current directory as WorkDir, no InstallDir prefix, "cc"
// and "opt" as the default executables, and logging disabled.
func Default() Config {
	return Config{
		WorkDir: ".",
		CCExec:  "cc",
		OptExec: "opt",
	}
}

// Load reads a TOML configuration file at path, overlaying it onto
// Default(). A missing file is not an error: Default() is returned
// unmodified, matching the library's overall stance that configuration
// problems degrade gracefully rather than aborting the process.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
