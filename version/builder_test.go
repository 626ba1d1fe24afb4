package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vc-go/vcompiler/option"
	"github.com/vc-go/vcompiler/version"
)

func TestBuilder_Build_NoBackend(t *testing.T) {
	b := version.NewBuilder().AddSourceFile("f.c")
	_, ok := b.Build()
	assert.False(t, ok)
}

func TestBuilder_AddFunctionName_ReturnsIndex(t *testing.T) {
	b := version.NewBuilder()
	assert.Equal(t, 0, b.AddFunctionName("g"))
	assert.Equal(t, 1, b.AddFunctionName("h"))
}

func TestBuilder_RemoveOption(t *testing.T) {
	be := &fakeBackend{}
	b := version.NewBuilder().SetCompiler(be).
		Options(option.List{option.New("opt", "-O", "2"), option.New("warn", "-W", "all")}).
		RemoveOption("opt")
	v, ok := b.Build()
	require.True(t, ok)
	assert.False(t, v.BuildOptions().HasTag("opt"))
	assert.True(t, v.BuildOptions().HasTag("warn"))
}

func TestBuilder_Reset_RestoresDefaults(t *testing.T) {
	be := &fakeBackend{}
	b := version.NewBuilder().SetCompiler(be).AddSourceFile("f.c").AddTag("x")
	b.Reset()
	_, ok := b.Build()
	assert.False(t, ok, "reset clears the backend too")
}

func TestBuilder_OptionsOrderPreserved(t *testing.T) {
	be := &fakeBackend{}
	opts := option.List{option.New("a", "-O", "0"), option.New("b", "-O", "3")}
	v, _ := version.NewBuilder().SetCompiler(be).Options(opts).Build()
	assert.Equal(t, []string{"-O0", "-O3"}, v.BuildOptions().Rendered())

	reversed := option.List{option.New("b", "-O", "3"), option.New("a", "-O", "0")}
	v2, _ := version.NewBuilder().SetCompiler(be).Options(reversed).Build()
	assert.Equal(t, []string{"-O3", "-O0"}, v2.BuildOptions().Rendered())
}

func TestNewBuilderFromVersion_RoundTrip(t *testing.T) {
	be := &fakeBackend{}
	orig := version.NewBuilder().SetCompiler(be).
		AddSourceFile("f.c")
	orig.AddFunctionName("f")
	orig.AddFunctionFlag("FEATURE")
	v1, ok := orig.Build()
	require.True(t, ok)

	cloneBuilder := version.NewBuilderFromVersion(v1)
	v2, ok := cloneBuilder.Build()
	require.True(t, ok)

	assert.NotEqual(t, v1.ID(), v2.ID())
	assert.Equal(t, v1.SourceFiles(), v2.SourceFiles())
	assert.Equal(t, v1.FunctionNames(), v2.FunctionNames())
	assert.Equal(t, v1.BuildOptions().Rendered(), v2.BuildOptions().Rendered())
	assert.Equal(t, v1.IRGenOptions().Rendered(), v2.IRGenOptions().Rendered())
	assert.False(t, v2.HasIR())
	assert.False(t, v2.HasBin())
}

func TestBuilder_AddIncludeDir_AppliesToBuildAndIRGenOptions(t *testing.T) {
	be := &fakeBackend{}
	v, _ := version.NewBuilder().SetCompiler(be).AddIncludeDir("/usr/include").Build()
	assert.True(t, v.BuildOptions().HasTag("include_dir"))
	assert.True(t, v.IRGenOptions().HasTag("include_dir"))
}

func TestBuilder_AddLinkingDir_OnlyBuildOptions(t *testing.T) {
	be := &fakeBackend{}
	v, _ := version.NewBuilder().SetCompiler(be).AddLinkingDir("/usr/lib").Build()
	assert.True(t, v.BuildOptions().HasTag("linking_dir"))
	assert.False(t, v.IRGenOptions().HasTag("linking_dir"))
}
