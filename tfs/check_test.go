package tfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyfs-go/tinyfs"
)

func TestCheckPassesAfterNormalUse(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Check())

	require.NoError(t, fs.Mkdir("/a", 0o755))
	require.NoError(t, fs.Create("/a/f", 0o644))
	_, err := fs.WriteAt("/a/f", patternBytes(20*DefaultBlockSize), 0)
	require.NoError(t, err)
	require.NoError(t, fs.Check())

	require.NoError(t, fs.Unlink("/a/f"))
	require.NoError(t, fs.Rmdir("/a"))
	require.NoError(t, fs.Check())
}

func TestCheckDetectsLeakedBitmapBit(t *testing.T) {
	fs := newTestFS(t, smallParams)

	// Claim a data block that no inode references.
	_, err := fs.allocBlock()
	require.NoError(t, err)

	err = fs.Check()
	assert.ErrorIs(t, err, tinyfs.ErrFileSystemCorrupted)
}

func TestCheckDetectsInodeBitmapMismatch(t *testing.T) {
	fs := newTestFS(t, smallParams)

	fs.inodeBitmap.Set(5, true)
	require.NoError(t, fs.writeInodeBitmap())

	err := fs.Check()
	assert.ErrorIs(t, err, tinyfs.ErrFileSystemCorrupted)
}
