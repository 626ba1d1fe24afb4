package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/vc-go/vcompiler/identity"
	"github.com/vc-go/vcompiler/internal/obslog"
	"github.com/vc-go/vcompiler/logregistry"
	"github.com/vc-go/vcompiler/option"
)

// External spawns a system compiler process to generate IR and/or shared
// objects. IR support is opt-in per instance (some system compilers, e.g.
// a plain "cc", cannot emit LLVM-IR bitcode); there is no optimiser (see
// ExternalWithOpt for that).
type External struct {
	// CCPath is the compiler executable, resolved relative to InstallDir
	// if not absolute.
	CCPath string
	// InstallDir, if set, is prefixed onto CCPath when CCPath is not
	// already absolute, mirroring Compiler::installDirectory in the
	// original library.
	InstallDir string
	// WorkDir is where derived files are written.
	WorkDir string
	// LogFile is the path logged command lines and errors are appended
	// to; empty disables logging.
	LogFile string
	// SupportsIRFlag, when true, allows GenerateIR to run; some system
	// compilers have no IR emission support at all.
	SupportsIRFlag bool
	// TruncateLogOnFirstUse mirrors the original library's
	// WarningTestCompiler peripheral: truncate the log file instead of
	// appending, the first time this instance writes to it.
	TruncateLogOnFirstUse bool

	logs         *logregistry.Registry
	truncateOnce sync.Once
}

// NewExternal constructs an External backend. logs may be shared across
// several backends targeting the same log file; pass logregistry.New() if
// the caller owns no registry yet.
func NewExternal(ccPath, installDir, workDir, logFile string, supportsIR bool, logs *logregistry.Registry) *External {
	e := &External{
		CCPath:         ccPath,
		InstallDir:     installDir,
		WorkDir:        workDir,
		LogFile:        logFile,
		SupportsIRFlag: supportsIR,
		logs:           logs,
	}
	if e.logs == nil {
		e.logs = logregistry.New()
	}
	e.logs.Acquire(e.LogFile)
	return e
}

// Close releases this backend's reference on its log file.
func (e *External) Close() { e.logs.Release(e.LogFile) }

func (e *External) SupportsIR() bool        { return e.SupportsIRFlag }
func (e *External) SupportsOptimizer() bool { return false }

func (e *External) resolvedCC() string {
	if e.InstallDir == "" || filepath.IsAbs(e.CCPath) {
		return e.CCPath
	}
	return filepath.Join(e.InstallDir, e.CCPath)
}

func (e *External) RenderOption(o option.Option) string { return renderExternal(o) }

func (e *External) GenerateIR(ctx context.Context, sources []string, funcs []string, versionID string, opts option.List) (string, bool) {
	if !e.SupportsIRFlag {
		obslog.Error("External::generateIR ERROR backend does not support IR", "versionID", versionID)
		e.logLine(fmt.Sprintf("External::generateIR ERROR backend %q does not support IR", e.CCPath))
		return "", false
	}
	if len(sources) == 0 {
		return "", false
	}
	out := identity.IRFileName(e.WorkDir, versionID)
	args := append([]string{"-c", "-emit-llvm", "-o", out}, renderOptions(opts, renderExternal)...)
	args = append(args, sources...)
	if !e.run(ctx, "External::generateIR", args) {
		return "", false
	}
	if !exists(out) {
		obslog.Error("External::generateIR ERROR output file not produced", "file", out)
		e.logLine(fmt.Sprintf("External::generateIR ERROR output file not produced: %s", out))
		return "", false
	}
	return out, true
}

func (e *External) RunOptimizer(ctx context.Context, irFile, versionID string, opts option.List) (string, bool) {
	obslog.Error("External::runOptimizer ERROR backend has no optimiser", "versionID", versionID)
	e.logLine("External::runOptimizer ERROR backend has no optimiser")
	return "", false
}

func (e *External) GenerateBin(ctx context.Context, sources []string, funcs []string, versionID string, opts option.List) (string, bool) {
	if len(sources) == 0 {
		return "", false
	}
	out := identity.BinFileName(e.WorkDir, versionID)
	args := append([]string{"-fpic", "-shared", "-o", out}, renderOptions(opts, renderExternal)...)
	args = append(args, sources...)
	if !e.run(ctx, "External::generateBin", args) {
		return "", false
	}
	if !exists(out) {
		obslog.Error("External::generateBin ERROR output file not produced", "file", out)
		e.logLine(fmt.Sprintf("External::generateBin ERROR output file not produced: %s", out))
		return "", false
	}
	return out, true
}

func (e *External) LoadSymbols(ctx context.Context, artifact string, funcs []string, versionID string) ([]Symbol, Handle, bool) {
	return dlopenAndResolve(artifact, funcs, "External::loadSymbols", e.logLine)
}

func (e *External) ReleaseSymbols(handle Handle) { dlclose(handle) }

// run executes the compiler with args, logging the full command line (or
// the failure) to both obslog and the per-Version log file.
func (e *External) run(ctx context.Context, tag string, args []string) bool {
	cmd := exec.CommandContext(ctx, e.resolvedCC(), args...)
	out, err := cmd.CombinedOutput()
	cmdline := joinCommand([]string{e.resolvedCC()}, args)
	if err != nil {
		obslog.Error(tag+" ERROR invocation failed", "error", err, "command", cmdline, "output", string(out))
		e.logLine(fmt.Sprintf("%s ERROR invocation failed: %v\n%s", tag, err, out))
		return false
	}
	e.logLine(cmdline)
	return true
}

func (e *External) logLine(line string) {
	if e.TruncateLogOnFirstUse {
		e.truncateOnce.Do(func() { e.logs.SetTruncateOnFirstUse(e.LogFile) })
	}
	e.logs.WithLock(e.LogFile, func(f *os.File) {
		if f == nil {
			return
		}
		_, _ = f.WriteString(line + "\n")
	})
}

// ExternalWithOpt extends External with a separate optimiser process.
type ExternalWithOpt struct {
	*External
	// OptPath is the optimiser executable, resolved relative to
	// InstallDir the same way CCPath is.
	OptPath string
}

// NewExternalWithOpt constructs an ExternalWithOpt backend sharing base's
// compiler configuration, adding optPath as the optimiser.
func NewExternalWithOpt(base *External, optPath string) *ExternalWithOpt {
	return &ExternalWithOpt{External: base, OptPath: optPath}
}

func (e *ExternalWithOpt) SupportsOptimizer() bool { return true }

func (e *ExternalWithOpt) resolvedOpt() string {
	if e.InstallDir == "" || filepath.IsAbs(e.OptPath) {
		return e.OptPath
	}
	return filepath.Join(e.InstallDir, e.OptPath)
}

func (e *ExternalWithOpt) RunOptimizer(ctx context.Context, irFile, versionID string, opts option.List) (string, bool) {
	if !exists(irFile) {
		obslog.Error("ExternalWithOpt::runOptimizer ERROR input IR missing", "file", irFile)
		e.logLine(fmt.Sprintf("ExternalWithOpt::runOptimizer ERROR input IR missing: %s", irFile))
		return "", false
	}
	out := identity.OptIRFileName(e.WorkDir, versionID)
	args := append(renderOptions(opts, renderExternal), "-o", out, irFile)
	cmd := exec.CommandContext(ctx, e.resolvedOpt(), args...)
	cmdout, err := cmd.CombinedOutput()
	cmdline := joinCommand([]string{e.resolvedOpt()}, args)
	if err != nil {
		obslog.Error("ExternalWithOpt::runOptimizer ERROR invocation failed", "error", err, "command", cmdline, "output", string(cmdout))
		e.logLine(fmt.Sprintf("ExternalWithOpt::runOptimizer ERROR invocation failed: %v\n%s", err, cmdout))
		return "", false
	}
	e.logLine(cmdline)
	if !exists(out) {
		obslog.Error("ExternalWithOpt::runOptimizer ERROR output file not produced", "file", out)
		e.logLine(fmt.Sprintf("ExternalWithOpt::runOptimizer ERROR output file not produced: %s", out))
		return "", false
	}
	return out, true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// dlopenAndResolve opens artifact via the platform dynamic loader
// (cgo-free, via purego) and resolves funcs within it: a missing name
// yields a null (zero-value Symbol) in its position, logged but not
// fatal; the whole operation fails only if the artifact itself cannot be
// opened.
func dlopenAndResolve(artifact string, funcs []string, tag string, logLine func(string)) ([]Symbol, Handle, bool) {
	handle, err := purego.Dlopen(artifact, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		obslog.Error(tag+" ERROR dlopen failed", "artifact", artifact, "error", err)
		logLine(fmt.Sprintf("%s ERROR dlopen failed: %v", tag, err))
		return nil, nil, false
	}
	symbols := make([]Symbol, len(funcs))
	for i, name := range funcs {
		addr, err := purego.Dlsym(handle, name)
		if err != nil {
			obslog.Error(tag+" ERROR missing symbol", "name", name, "error", err)
			logLine(fmt.Sprintf("%s ERROR missing symbol %q: %v", tag, name, err))
			continue
		}
		symbols[i] = Symbol(addr)
	}
	return symbols, handle, true
}

func dlclose(handle Handle) {
	if handle == nil {
		return
	}
	h, ok := handle.(uintptr)
	if !ok {
		return
	}
	if err := purego.Dlclose(h); err != nil {
		obslog.Warn("dlclose failed", "error", err)
	}
}
