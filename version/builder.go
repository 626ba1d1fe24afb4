package version

import (
	"context"

	"github.com/vc-go/vcompiler/backend"
	"github.com/vc-go/vcompiler/identity"
	"github.com/vc-go/vcompiler/internal/obslog"
	"github.com/vc-go/vcompiler/option"
	"github.com/vc-go/vcompiler/vcerrors"
)

// Builder accumulates Version configuration mutably and seals it into a
// Version on Build.
type Builder struct {
	sourceFiles   []string
	functionNames []string
	tags          []string

	buildOptions  option.List
	irGenOptions  option.List
	optOptions    option.List
	functionFlags option.List

	backend    backend.CompilerBackend
	autoremove bool
}

// NewBuilder returns a Builder with its reset defaults: empty option
// sequences, no source files, no functions, autoremove on, no tags, no
// flags.
func NewBuilder() *Builder {
	b := &Builder{}
	b.Reset()
	return b
}

// Reset restores the builder's defaults and returns the
// builder for chaining.
func (b *Builder) Reset() *Builder {
	b.sourceFiles = nil
	b.functionNames = nil
	b.tags = nil
	b.buildOptions = nil
	b.irGenOptions = nil
	b.optOptions = nil
	b.functionFlags = nil
	b.backend = nil
	b.autoremove = true
	return b
}

// AddSourceFile appends path to the source file list.
func (b *Builder) AddSourceFile(path string) *Builder {
	b.sourceFiles = append(b.sourceFiles, path)
	return b
}

// AddFunctionName appends name to the function list and returns its
// assigned index.
func (b *Builder) AddFunctionName(name string) int {
	b.functionNames = append(b.functionNames, name)
	return len(b.functionNames) - 1
}

// SetCompiler sets the backend the sealed Version will delegate stage
// operations to.
func (b *Builder) SetCompiler(be backend.CompilerBackend) *Builder {
	b.backend = be
	return b
}

// AddTag appends a free-form descriptive tag.
func (b *Builder) AddTag(tag string) *Builder {
	b.tags = append(b.tags, tag)
	return b
}

// AddFunctionFlag adds a bare "-D flag" function flag, prepended to both
// build_options and ir_gen_options at seal time.
func (b *Builder) AddFunctionFlag(flag string) *Builder {
	b.functionFlags = b.functionFlags.Append(option.Flag(flag))
	return b
}

// AddDefine is the convenience form of AddFunctionFlag composing a
// "-D name=value" Option.
func (b *Builder) AddDefine(name, value string) *Builder {
	b.functionFlags = b.functionFlags.Append(option.Define(name, value))
	return b
}

// AddIncludeDir appends a "-I dir" Option to both build_options and
// ir_gen_options: an include path matters to both the front-end parse
// stage and the final link stage, the same reasoning applied to function
// flags (an Open Question resolution, recorded in DESIGN.md).
func (b *Builder) AddIncludeDir(dir string) *Builder {
	o := option.New("include_dir", "-I", dir)
	b.buildOptions = b.buildOptions.Append(o)
	b.irGenOptions = b.irGenOptions.Append(o)
	return b
}

// AddLinkingDir appends a "-L dir" Option to build_options only: linking
// search paths are only consulted at the final shared-object link stage.
func (b *Builder) AddLinkingDir(dir string) *Builder {
	b.buildOptions = b.buildOptions.Append(option.New("linking_dir", "-L", dir))
	return b
}

// SetAutoremove sets whether the sealed Version deletes derived files on
// Close.
func (b *Builder) SetAutoremove(v bool) *Builder {
	b.autoremove = v
	return b
}

// Options replaces build_options wholesale.
func (b *Builder) Options(opts option.List) *Builder {
	b.buildOptions = opts.Clone()
	return b
}

// GenIROptions replaces ir_gen_options wholesale.
func (b *Builder) GenIROptions(opts option.List) *Builder {
	b.irGenOptions = opts.Clone()
	return b
}

// OptOptions replaces opt_options wholesale.
func (b *Builder) OptOptions(opts option.List) *Builder {
	b.optOptions = opts.Clone()
	return b
}

// RemoveOption removes every Option tagged tag from build_options.
func (b *Builder) RemoveOption(tag string) *Builder {
	b.buildOptions = b.buildOptions.Remove(tag)
	return b
}

// RemoveGenIROption removes every Option tagged tag from ir_gen_options.
func (b *Builder) RemoveGenIROption(tag string) *Builder {
	b.irGenOptions = b.irGenOptions.Remove(tag)
	return b
}

// RemoveOptOption removes every Option tagged tag from opt_options.
func (b *Builder) RemoveOptOption(tag string) *Builder {
	b.optOptions = b.optOptions.Remove(tag)
	return b
}

// Build consumes the accumulated state and produces a sealed Version. The
// builder itself is left usable afterwards (the previous sealed Version
// is unaffected, since Build clones every mutable slice/list into the new
// Version). Fails only when no backend has been set (ConfigurationError).
func (b *Builder) Build() (*Version, bool) {
	if b.backend == nil {
		err := vcerrors.Wrap(vcerrors.ErrConfiguration, "builder.Build: no backend set")
		obslog.Error("VersionBuilder::build ERROR", "error", err)
		return nil, false
	}

	id := identity.New()
	v := &Version{
		id:            id,
		tags:          cloneStrings(b.tags),
		sourceFiles:   cloneStrings(b.sourceFiles),
		functionNames: cloneStrings(b.functionNames),
		nameIndex:     buildNameIndex(b.functionNames),
		buildOptions:  b.buildOptions.PrependList(b.functionFlags),
		irGenOptions:  b.irGenOptions.PrependList(b.functionFlags),
		optOptions:    b.optOptions.Clone(),
		functionFlags: b.functionFlags.Clone(),
		backend:       b.backend,
		autoremove:    b.autoremove,
		state:         Fresh,
	}
	return v, true
}

// NewBuilderFromVersion constructs a Builder pre-populated from v's
// sealed fields, so they can be mutated and re-sealed. The returned builder's function-flag list starts
// empty: v's build_options/ir_gen_options already carry its flags
// prepended at their original seal, and Build's PrependList of an empty
// functionFlags is a no-op, so a straight Build() reproduces the same
// option sequences verbatim.
func NewBuilderFromVersion(v *Version) *Builder {
	return &Builder{
		sourceFiles:   cloneStrings(v.sourceFiles),
		functionNames: cloneStrings(v.functionNames),
		tags:          cloneStrings(v.tags),
		buildOptions:  v.buildOptions.Clone(),
		irGenOptions:  v.irGenOptions.Clone(),
		optOptions:    v.optOptions.Clone(),
		functionFlags: nil,
		backend:       v.backend,
		autoremove:    v.autoremove,
	}
}

// FromSharedObject produces a Version pre-set to HasBin from a prebuilt
// artifact, then invokes Compile to load it; it never touches IR or
// sources. funcs may name one or many symbols.
func FromSharedObject(ctx context.Context, artifact string, funcs []string, be backend.CompilerBackend, autoremove bool, tags []string) (*Version, bool) {
	v := &Version{
		id:            identity.New(),
		tags:          cloneStrings(tags),
		functionNames: cloneStrings(funcs),
		nameIndex:     buildNameIndex(funcs),
		backend:       be,
		autoremove:    autoremove,
		state:         HasBin,
		binFile:       artifact,
	}
	ok := v.Compile(ctx)
	return v, ok
}
