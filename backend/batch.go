package backend

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"plugin"
	"reflect"
	"sync"

	"golang.org/x/tools/imports"

	"github.com/vc-go/vcompiler/identity"
	"github.com/vc-go/vcompiler/internal/obslog"
	"github.com/vc-go/vcompiler/logregistry"
	"github.com/vc-go/vcompiler/option"
)

// globalOptionParseMu serialises InProcessBatch's optimiser stage across
// every instance in the process: a compiler-as-library front end
// typically consults global registered command-line options, so two
// concurrent optimiser stages must serialise on one process-wide lock.
// This backend's stand-in for that registered-option parser is a
// flag.FlagSet built fresh for each optimiser call (so every parse starts
// from defaults), declared and parsed under this lock; the process-global
// flag.CommandLine is not touched.
var globalOptionParseMu sync.Mutex

// goFuncRegistry maps a Symbol (derived from reflect.Value.Pointer() on a
// resolved Go func value) back to the func value itself, so a caller can
// actually invoke what LoadSymbols resolved. Unlike External's C ABI
// symbols (real addresses a purego caller can call directly), a Go
// plugin's exported func value cannot be safely re-typed from a bare
// uintptr without knowing its exact signature ahead of time; this
// registry is the idiomatic Go substitute, in the same spirit as the
// teacher's registries (e.g. eventloop's promise registry) mapping
// lightweight ids back to live objects instead of raw pointers.
var (
	goFuncRegistryMu sync.RWMutex
	goFuncRegistry   = make(map[Symbol]any)
)

// LookupGoFunc retrieves the Go func value an InProcessBatch LoadSymbols
// call previously resolved to sym, for actual invocation via reflection.
// Returns false once the owning Version has folded or released the
// symbol.
func LookupGoFunc(sym Symbol) (any, bool) {
	goFuncRegistryMu.RLock()
	defer goFuncRegistryMu.RUnlock()
	v, ok := goFuncRegistry[sym]
	return v, ok
}

func registerGoFunc(sym Symbol, fn any) {
	goFuncRegistryMu.Lock()
	defer goFuncRegistryMu.Unlock()
	goFuncRegistry[sym] = fn
}

func forgetGoFuncs(symbols []Symbol) {
	goFuncRegistryMu.Lock()
	defer goFuncRegistryMu.Unlock()
	for _, s := range symbols {
		delete(goFuncRegistry, s)
	}
}

// InProcessBatch drives an in-process "compiler as library" front end
// using go/parser, go/format and golang.org/x/tools/imports for IR
// generation and optimisation, and the Go toolchain's buildmode=plugin
// for the final native link. Sources are Go source files; the target
// functions are the package-level funcs named in the Version.
// RenderOption only strips one layer of wrapping quotes from an Option's
// rendered form. GenerateIR and GenerateBin do not consult their opts, so
// function-flag Options (conventionally "-DFLAG") have no effect on what
// this backend builds; only RunOptimizer parses its opts.
type InProcessBatch struct {
	WorkDir string
	LogFile string
	GoExec  string // defaults to "go" if empty

	logs *logregistry.Registry
	once sync.Once
}

// NewInProcessBatch constructs an InProcessBatch backend.
func NewInProcessBatch(workDir, logFile string, logs *logregistry.Registry) *InProcessBatch {
	b := &InProcessBatch{WorkDir: workDir, LogFile: logFile, GoExec: "go", logs: logs}
	if b.logs == nil {
		b.logs = logregistry.New()
	}
	b.logs.Acquire(b.LogFile)
	b.init()
	return b
}

// init performs the once-per-process lazy initialisation of in-process
// back-end infrastructure: constructing any in-process backend
// establishes this state. There is no heavy native engine to spin up for
// this variant (unlike InProcessJit's JIT engine),
// but the hook exists so future additions to shared state have a single,
// documented place to live.
var batchInitOnce sync.Once

func (b *InProcessBatch) init() {
	batchInitOnce.Do(func() {
		obslog.Debug("InProcessBatch: process-wide initialisation complete")
	})
}

func (b *InProcessBatch) Close() { b.logs.Release(b.LogFile) }

func (b *InProcessBatch) SupportsIR() bool        { return true }
func (b *InProcessBatch) SupportsOptimizer() bool { return true }

func (b *InProcessBatch) RenderOption(o option.Option) string { return renderInProcess(o) }

func (b *InProcessBatch) logLine(line string) {
	b.logs.WithLock(b.LogFile, func(f *os.File) {
		if f == nil {
			return
		}
		_, _ = f.WriteString(line + "\n")
	})
}

// GenerateIR parses sources with go/parser and re-renders them through
// go/format, producing a normalised, round-trippable textual form — this
// backend's stand-in for LLVM-IR bitcode as a byte-identical,
// round-trippable intermediate form between the front end and the back
// end.
func (b *InProcessBatch) GenerateIR(ctx context.Context, sources []string, funcs []string, versionID string, opts option.List) (string, bool) {
	if len(sources) == 0 {
		return "", false
	}
	fset := token.NewFileSet()
	var buf bytes.Buffer
	for _, src := range sources {
		f, err := parser.ParseFile(fset, src, nil, parser.ParseComments)
		if err != nil {
			obslog.Error("InProcessBatch::generateIR ERROR parse failed", "file", src, "error", err)
			b.logLine(fmt.Sprintf("InProcessBatch::generateIR ERROR parse failed: %s: %v", src, err))
			return "", false
		}
		if err := format.Node(&buf, fset, f); err != nil {
			obslog.Error("InProcessBatch::generateIR ERROR format failed", "file", src, "error", err)
			b.logLine(fmt.Sprintf("InProcessBatch::generateIR ERROR format failed: %s: %v", src, err))
			return "", false
		}
		buf.WriteByte('\n')
	}
	out := identity.IRFileName(b.WorkDir, versionID)
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		obslog.Error("InProcessBatch::generateIR ERROR write failed", "file", out, "error", err)
		b.logLine(fmt.Sprintf("InProcessBatch::generateIR ERROR write failed: %s: %v", out, err))
		return "", false
	}
	b.logLine(fmt.Sprintf("InProcessBatch::generateIR sources=%v -> %s", sources, out))
	return out, true
}

// RunOptimizer re-parses irFile, runs it through golang.org/x/tools'
// import-organising/simplification pass, and verifies the result still
// parses (a stand-in for the original library's verifier aborting the
// stage without writing output on corrupt IR). The whole stage is
// serialised on globalOptionParseMu: the rendered opts are parsed into a
// fresh flag.FlagSet (one string flag declared per option tag), the pass
// runs, and only then is the lock released.
func (b *InProcessBatch) RunOptimizer(ctx context.Context, irFile, versionID string, opts option.List) (string, bool) {
	if !exists(irFile) {
		obslog.Error("InProcessBatch::runOptimizer ERROR input IR missing", "file", irFile)
		b.logLine(fmt.Sprintf("InProcessBatch::runOptimizer ERROR input IR missing: %s", irFile))
		return "", false
	}

	globalOptionParseMu.Lock()
	defer globalOptionParseMu.Unlock()

	fs := flag.NewFlagSet("vcompiler-inprocess-optimizer", flag.ContinueOnError)
	declared := make(map[string]*string)
	for _, o := range opts {
		name := o.Tag()
		if _, ok := declared[name]; ok {
			continue
		}
		declared[name] = fs.String(name, "", "InProcessBatch optimiser pass option")
	}
	args := renderOptions(opts, renderInProcess)
	if err := fs.Parse(args); err != nil {
		obslog.Error("InProcessBatch::runOptimizer ERROR option parse failed", "error", err)
		b.logLine(fmt.Sprintf("InProcessBatch::runOptimizer ERROR option parse failed: %v", err))
		return "", false
	}

	src, err := os.ReadFile(irFile)
	if err != nil {
		obslog.Error("InProcessBatch::runOptimizer ERROR read failed", "file", irFile, "error", err)
		return "", false
	}
	optimised, err := imports.Process(irFile, src, nil)
	if err != nil {
		// Corrupt IR: abort without writing output.
		obslog.Error("InProcessBatch::runOptimizer ERROR verifier rejected IR", "file", irFile, "error", err)
		b.logLine(fmt.Sprintf("InProcessBatch::runOptimizer ERROR verifier rejected IR: %s: %v", irFile, err))
		return "", false
	}

	out := identity.OptIRFileName(b.WorkDir, versionID)
	if err := os.WriteFile(out, optimised, 0o644); err != nil {
		obslog.Error("InProcessBatch::runOptimizer ERROR write failed", "file", out, "error", err)
		return "", false
	}
	b.logLine(fmt.Sprintf("InProcessBatch::runOptimizer options=%v %s -> %s", args, irFile, out))
	return out, true
}

// GenerateBin compiles sources (optimised IR, raw IR, or original Go
// source — Version decides which to hand in) into a Go plugin via
// `go build -buildmode=plugin`. A genuine in-process, no-subprocess build
// is not achievable for a real native artifact without vendoring a full
// compiler backend, so this single, narrow exec call is the link step even real
// compiler-as-a-library implementations typically still hand to the
// platform linker. go build accepts only .go files, so a source with any
// other extension (the IR files are named IR_<id>.bc / opt_IR_<id>.bc) is
// first copied to a staged .go-named file in WorkDir.
func (b *InProcessBatch) GenerateBin(ctx context.Context, sources []string, funcs []string, versionID string, opts option.List) (string, bool) {
	if len(sources) == 0 {
		return "", false
	}
	out := identity.BinFileName(b.WorkDir, versionID)
	args := []string{"build", "-buildmode=plugin", "-o", out}
	for i, src := range sources {
		if ext := filepath.Ext(src); ext != ".go" {
			staged := identity.TempArtifactName(b.WorkDir, src[:len(src)-len(ext)]+".go", versionID, i)
			data, err := os.ReadFile(src)
			if err == nil {
				err = os.WriteFile(staged, data, 0o644)
			}
			if err != nil {
				obslog.Error("InProcessBatch::generateBin ERROR staging failed", "file", src, "error", err)
				return "", false
			}
			src = staged
		}
		args = append(args, src)
	}
	goExec := b.GoExec
	if goExec == "" {
		goExec = "go"
	}
	cmd := exec.CommandContext(ctx, goExec, args...)
	cmdOut, err := cmd.CombinedOutput()
	cmdline := joinCommand([]string{goExec}, args)
	if err != nil {
		obslog.Error("InProcessBatch::generateBin ERROR invocation failed", "error", err, "command", cmdline, "output", string(cmdOut))
		b.logLine(fmt.Sprintf("InProcessBatch::generateBin ERROR invocation failed: %v\n%s", err, cmdOut))
		return "", false
	}
	b.logLine(cmdline)
	if !exists(out) {
		obslog.Error("InProcessBatch::generateBin ERROR output file not produced", "file", out)
		return "", false
	}
	return out, true
}

// batchHandle is the Handle InProcessBatch.LoadSymbols returns: the opened
// plugin plus the set of symbols resolved from it, so ReleaseSymbols can
// invalidate exactly those goFuncRegistry entries on its own, without its
// caller needing any backend-specific knowledge.
type batchHandle struct {
	plugin  *plugin.Plugin
	symbols []Symbol
}

// LoadSymbols opens the built plugin via Go's stdlib plugin package and
// resolves funcs as exported symbols. Each resolved func value's code
// address is obtained via reflect.Value.Pointer() (stdlib, cgo-free) and
// used as its Symbol; the func value itself is kept in goFuncRegistry so
// callers can still invoke it (see that var's doc comment).
func (b *InProcessBatch) LoadSymbols(ctx context.Context, artifact string, funcs []string, versionID string) ([]Symbol, Handle, bool) {
	p, err := plugin.Open(artifact)
	if err != nil {
		obslog.Error("InProcessBatch::loadSymbols ERROR plugin.Open failed", "artifact", artifact, "error", err)
		b.logLine(fmt.Sprintf("InProcessBatch::loadSymbols ERROR plugin.Open failed: %v", err))
		return nil, nil, false
	}
	symbols := make([]Symbol, len(funcs))
	for i, name := range funcs {
		sym, err := p.Lookup(name)
		if err != nil {
			obslog.Error("InProcessBatch::loadSymbols ERROR missing symbol", "name", name, "error", err)
			b.logLine(fmt.Sprintf("InProcessBatch::loadSymbols ERROR missing symbol %q: %v", name, err))
			continue
		}
		v := reflect.ValueOf(sym)
		if v.Kind() != reflect.Func {
			obslog.Error("InProcessBatch::loadSymbols ERROR symbol is not a function", "name", name)
			continue
		}
		addr := Symbol(v.Pointer())
		symbols[i] = addr
		registerGoFunc(addr, sym)
	}
	return symbols, &batchHandle{plugin: p, symbols: symbols}, true
}

// ReleaseSymbols drops this artifact's func values from goFuncRegistry,
// invalidating every Symbol LoadSymbols resolved into handle. Go plugins,
// once loaded, cannot be unloaded from the process (a documented stdlib
// limitation); releasing the registry entries is the achievable portion of
// closing/removing the artifact from the process for this variant.
func (b *InProcessBatch) ReleaseSymbols(handle Handle) {
	bh, ok := handle.(*batchHandle)
	if !ok || bh == nil {
		return
	}
	forgetGoFuncs(bh.symbols)
}

// ForgetGoFuncs drops symbols from goFuncRegistry directly, for callers
// holding resolved Symbols without the Handle ReleaseSymbols consumes.
func ForgetGoFuncs(symbols []Symbol) { forgetGoFuncs(symbols) }
