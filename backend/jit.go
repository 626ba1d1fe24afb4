package backend

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/vc-go/vcompiler/identity"
	"github.com/vc-go/vcompiler/internal/obslog"
	"github.com/vc-go/vcompiler/logregistry"
	"github.com/vc-go/vcompiler/option"
)

// jitProgram is what GenerateIR produces for InProcessJit: a pre-parsed,
// pre-compiled goja.Program (genuine bytecode, not text) plus the source
// it was compiled from, keyed by the path GenerateIR returns.
type jitProgram struct {
	program *goja.Program
	source  string
}

// jitLoad is one "load" of a compiled program into a fresh goja.Runtime —
// InProcessJit's resource tracker for one Version's worth of independent
// runtime state, released independently of any other Version's.
type jitLoad struct {
	rt      *goja.Runtime
	symbols map[Symbol]string // token -> function name, for ResolveJSFunc
}

// jitEngine is the single shared in-process JIT engine this variant
// needs: one process-wide instance, with per-version resource trackers
// hung off it.
type jitEngine struct {
	mu       sync.RWMutex
	programs map[string]*jitProgram // IR path -> compiled program
	loads    map[string]*jitLoad    // artifact id -> load
	nextTok  atomic.Uint64
}

var sharedJitEngine = &jitEngine{
	programs: make(map[string]*jitProgram),
	loads:    make(map[string]*jitLoad),
}

// InProcessJit fronts the single shared jitEngine instance. It is the
// documented, deliberate divergence from the other three backends'
// "raw callable native address" Symbol semantics: github.com/dop251/goja is a JavaScript interpreter, not a
// native-code-emitting JIT, so it cannot hand back an address a caller
// could dereference through a C function pointer. Symbol is instead an
// opaque per-engine token; ResolveJSFunc is the Go-native substitute for
// "the caller re-types the address," in the same spirit as
// backend.LookupGoFunc for InProcessBatch.
type InProcessJit struct {
	WorkDir string
	LogFile string

	logs *logregistry.Registry
}

// NewInProcessJit constructs an InProcessJit backend fronting the shared
// engine.
func NewInProcessJit(workDir, logFile string, logs *logregistry.Registry) *InProcessJit {
	j := &InProcessJit{WorkDir: workDir, LogFile: logFile, logs: logs}
	if j.logs == nil {
		j.logs = logregistry.New()
	}
	j.logs.Acquire(j.LogFile)
	return j
}

func (j *InProcessJit) Close() { j.logs.Release(j.LogFile) }

func (j *InProcessJit) SupportsIR() bool        { return true }
func (j *InProcessJit) SupportsOptimizer() bool { return false }

func (j *InProcessJit) RenderOption(o option.Option) string { return renderInProcess(o) }

func (j *InProcessJit) logLine(line string) {
	j.logs.WithLock(j.LogFile, func(f *os.File) {
		if f == nil {
			return
		}
		_, _ = f.WriteString(line + "\n")
	})
}

// GenerateIR concatenates sources' contents and compiles them with
// goja.Compile, storing the resulting *goja.Program in the shared
// engine keyed by the returned path. funcs and opts play no role at this
// stage (goja has no macro preprocessor), and no global is defined from
// opts, so function-flag Options have no effect on this backend.
func (j *InProcessJit) GenerateIR(ctx context.Context, sources []string, funcs []string, versionID string, opts option.List) (string, bool) {
	if len(sources) == 0 {
		return "", false
	}
	var src string
	for _, s := range sources {
		b, err := os.ReadFile(s)
		if err != nil {
			obslog.Error("InProcessJit::generateIR ERROR read failed", "file", s, "error", err)
			j.logLine(fmt.Sprintf("InProcessJit::generateIR ERROR read failed: %s: %v", s, err))
			return "", false
		}
		src += string(b) + "\n"
	}
	program, err := goja.Compile(versionID, src, false)
	if err != nil {
		obslog.Error("InProcessJit::generateIR ERROR compile failed", "versionID", versionID, "error", err)
		j.logLine(fmt.Sprintf("InProcessJit::generateIR ERROR compile failed: %v", err))
		return "", false
	}
	path := identity.IRFileName(j.WorkDir, versionID)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		obslog.Error("InProcessJit::generateIR ERROR write failed", "file", path, "error", err)
		return "", false
	}
	sharedJitEngine.mu.Lock()
	sharedJitEngine.programs[path] = &jitProgram{program: program, source: src}
	sharedJitEngine.mu.Unlock()
	j.logLine(fmt.Sprintf("InProcessJit::generateIR sources=%v -> %s", sources, path))
	return path, true
}

func (j *InProcessJit) RunOptimizer(ctx context.Context, irFile, versionID string, opts option.List) (string, bool) {
	obslog.Error("InProcessJit::runOptimizer ERROR backend has no optimiser", "versionID", versionID)
	j.logLine("InProcessJit::runOptimizer ERROR backend has no optimiser")
	return "", false
}

// GenerateBin accepts the IR path GenerateIR produced (or, if the caller
// skipped IR generation, compiles sources itself exactly as GenerateIR
// does) and records the artifact id under which LoadSymbols will
// instantiate a fresh goja.Runtime. No actual linking happens — the
// "artifact" is the engine's lookup key.
func (j *InProcessJit) GenerateBin(ctx context.Context, sources []string, funcs []string, versionID string, opts option.List) (string, bool) {
	irPath := identity.IRFileName(j.WorkDir, versionID)
	sharedJitEngine.mu.RLock()
	_, ok := sharedJitEngine.programs[irPath]
	sharedJitEngine.mu.RUnlock()
	if !ok {
		if _, genOK := j.GenerateIR(ctx, sources, funcs, versionID, opts); !genOK {
			return "", false
		}
	}
	artifact := identity.BinFileName(j.WorkDir, versionID)
	j.logLine(fmt.Sprintf("InProcessJit::generateBin -> %s", artifact))
	return artifact, true
}

// LoadSymbols instantiates a fresh goja.Runtime, runs the compiled
// program in it, and resolves funcs as callable globals. Each resolved
// function gets an opaque token (a process-wide monotonic counter, cast
// to Symbol) rather than a real address; ResolveJSFunc maps the token
// back to the (runtime, value) pair.
func (j *InProcessJit) LoadSymbols(ctx context.Context, artifact string, funcs []string, versionID string) ([]Symbol, Handle, bool) {
	irPath := identity.IRFileName(j.WorkDir, versionID)
	sharedJitEngine.mu.RLock()
	prog, ok := sharedJitEngine.programs[irPath]
	sharedJitEngine.mu.RUnlock()
	if !ok {
		obslog.Error("InProcessJit::loadSymbols ERROR no compiled program for artifact", "artifact", artifact)
		j.logLine(fmt.Sprintf("InProcessJit::loadSymbols ERROR no compiled program for artifact: %s", artifact))
		return nil, nil, false
	}

	rt := goja.New()
	if _, err := rt.RunProgram(prog.program); err != nil {
		obslog.Error("InProcessJit::loadSymbols ERROR RunProgram failed", "error", err)
		j.logLine(fmt.Sprintf("InProcessJit::loadSymbols ERROR RunProgram failed: %v", err))
		return nil, nil, false
	}

	load := &jitLoad{rt: rt, symbols: make(map[Symbol]string, len(funcs))}
	symbols := make([]Symbol, len(funcs))
	for i, name := range funcs {
		v := rt.Get(name)
		if v == nil || goja.IsUndefined(v) {
			obslog.Error("InProcessJit::loadSymbols ERROR missing symbol", "name", name)
			j.logLine(fmt.Sprintf("InProcessJit::loadSymbols ERROR missing symbol %q", name))
			continue
		}
		if _, callable := goja.AssertFunction(v); !callable {
			obslog.Error("InProcessJit::loadSymbols ERROR symbol is not callable", "name", name)
			continue
		}
		tok := Symbol(sharedJitEngine.nextTok.Add(1))
		load.symbols[tok] = name
		symbols[i] = tok
	}

	sharedJitEngine.mu.Lock()
	sharedJitEngine.loads[artifact] = load
	sharedJitEngine.mu.Unlock()

	return symbols, artifact, true
}

// ReleaseSymbols drops the runtime associated with handle (an artifact
// id string), invalidating every Symbol token it issued.
func (j *InProcessJit) ReleaseSymbols(handle Handle) {
	artifact, ok := handle.(string)
	if !ok {
		return
	}
	sharedJitEngine.mu.Lock()
	delete(sharedJitEngine.loads, artifact)
	sharedJitEngine.mu.Unlock()
}

// ResolveJSFunc returns a callable goja function and the runtime it lives
// in for a Symbol token previously returned by LoadSymbols, so a caller
// can actually invoke what was "loaded" — the Go-native substitute this
// variant needs in place of re-typing a raw address (see InProcessJit's
// doc comment).
func ResolveJSFunc(sym Symbol) (rt *goja.Runtime, fn goja.Callable, ok bool) {
	sharedJitEngine.mu.RLock()
	defer sharedJitEngine.mu.RUnlock()
	for _, load := range sharedJitEngine.loads {
		name, found := load.symbols[sym]
		if !found {
			continue
		}
		callable, isFn := goja.AssertFunction(load.rt.Get(name))
		if !isFn {
			return nil, nil, false
		}
		return load.rt, callable, true
	}
	return nil, nil, false
}
