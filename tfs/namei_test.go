package tfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyfs-go/tinyfs"
)

func TestSplitPath(t *testing.T) {
	assert.Empty(t, splitPath(""))
	assert.Empty(t, splitPath("/"))
	assert.Empty(t, splitPath("//"))
	assert.Equal(t, []string{"a"}, splitPath("/a"))
	assert.Equal(t, []string{"a"}, splitPath("/a/"))
	assert.Equal(t, []string{"a", "b", "c"}, splitPath("/a/b/c"))
	assert.Equal(t, []string{"a", "b"}, splitPath("a//b/"))
}

func TestResolveRoot(t *testing.T) {
	fs := newTestFS(t, smallParams)

	for _, path := range []string{"", "/", "///"} {
		node, err := fs.resolve(path)
		require.NoError(t, err, "path %q", path)
		assert.EqualValues(t, 0, node.Ino)
		assert.True(t, node.IsDirectory())
	}
}

func TestResolveWalksComponents(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Mkdir("/a", 0o755))
	require.NoError(t, fs.Mkdir("/a/b", 0o755))
	require.NoError(t, fs.Create("/a/b/c", 0o644))

	node, err := fs.resolve("/a/b/c")
	require.NoError(t, err)
	assert.False(t, node.IsDirectory())

	// A trailing slash still resolves the same object.
	node2, err := fs.resolve("/a/b/")
	require.NoError(t, err)
	assert.True(t, node2.IsDirectory())

	_, err = fs.resolve("/a/missing/c")
	assert.ErrorIs(t, err, tinyfs.ErrNotFound)
}

func TestResolveThroughDotDot(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Mkdir("/a", 0o755))
	require.NoError(t, fs.Mkdir("/a/b", 0o755))

	// Dot-dot is folded away during normalization, before any lookup runs.
	node, err := fs.resolve("/a/b/..")
	require.NoError(t, err)
	aNode, err := fs.resolve("/a")
	require.NoError(t, err)
	assert.Equal(t, aNode.Ino, node.Ino)
}

func TestResolveRejectsFileAsIntermediate(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Create("/f", 0o644))

	_, err := fs.resolve("/f/child")
	assert.ErrorIs(t, err, tinyfs.ErrNotADirectory)
}

func TestResolveParent(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Mkdir("/a", 0o755))

	parent, name, err := fs.resolveParent("/a/newfile")
	require.NoError(t, err)
	assert.Equal(t, "newfile", name)
	aNode, err := fs.resolve("/a")
	require.NoError(t, err)
	assert.Equal(t, aNode.Ino, parent.Ino)

	// The final component doesn't need to exist, but intermediates do.
	_, _, err = fs.resolveParent("/missing/newfile")
	assert.ErrorIs(t, err, tinyfs.ErrNotFound)

	_, _, err = fs.resolveParent("/")
	assert.ErrorIs(t, err, tinyfs.ErrInvalidArgument)
}
