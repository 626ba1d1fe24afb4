package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vc-go/vcompiler/identity"
)

func TestNew_Unique(t *testing.T) {
	a := identity.New()
	b := identity.New()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36) // canonical UUID textual form
}

func TestIRFileName(t *testing.T) {
	assert.Equal(t, "work/IR_abc.bc", filepathClean(identity.IRFileName("work", "abc")))
}

func TestOptIRFileName(t *testing.T) {
	assert.Equal(t, "work/opt_IR_abc.bc", filepathClean(identity.OptIRFileName("work", "abc")))
}

func TestBinFileName_HasPlatformExtension(t *testing.T) {
	name := identity.BinFileName("work", "abc")
	assert.Contains(t, name, "libabc")
}

func TestTempArtifactName_PreservesExtensionAndDistinguishesByCounter(t *testing.T) {
	a := identity.TempArtifactName("work", "orig.c", "v1", 0)
	b := identity.TempArtifactName("work", "orig.c", "v1", 1)
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "orig_v1_0.c")
	assert.Contains(t, b, "orig_v1_1.c")
}

// filepathClean normalises path separators for comparison on any platform
// without importing path/filepath into this small test directly.
func filepathClean(p string) string {
	out := make([]byte, len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == '\\' {
			out[i] = '/'
		} else {
			out[i] = p[i]
		}
	}
	return string(out)
}
