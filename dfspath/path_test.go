package dfspath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinBasenameInvariant(t *testing.T) {
	cases := []string{"/a", "/a/b", "/a/b/c", "/weird//double//slashes/", "/trailing/"}
	for _, p := range cases {
		joined, err := Join(Root, p)
		require.NoError(t, err)
		assert.Equal(t, Basename(p), Basename(joined))
	}
}

func TestBasenameOfRootIsEmpty(t *testing.T) {
	assert.Equal(t, "", Basename(Root))
}

func TestNormalizeCollapsesSeparators(t *testing.T) {
	assert.Equal(t, "/a/b/c", Normalize("//a//b/c//"))
	assert.Equal(t, "/", Normalize(""))
	assert.Equal(t, "/", Normalize("/"))
}

func TestJoinRejectsEmptyFirst(t *testing.T) {
	_, err := Join("")
	require.Error(t, err)
}

func TestRequireAbsolute(t *testing.T) {
	require.NoError(t, RequireAbsolute("/a/b"))
	require.Error(t, RequireAbsolute("a/b"))
}

func TestDirname(t *testing.T) {
	assert.Equal(t, "/a/b", Dirname("/a/b/c"))
	assert.Equal(t, "/", Dirname("/a"))
	assert.Equal(t, "/", Dirname("/"))
}
