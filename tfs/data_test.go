package tfs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyfs-go/tinyfs"
)

func usedDataBlocks(fs *FileSystem) int {
	used := 0
	for i := uint32(0); i < fs.sb.MaxDataBlocks; i++ {
		if fs.dataBitmap.Get(int(i)) {
			used++
		}
	}
	return used
}

func patternBytes(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

func TestSmallWriteReadBack(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Create("/f", 0o644))

	n, err := fs.WriteAt("/f", []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	stat, err := fs.GetAttr("/f")
	require.NoError(t, err)
	assert.EqualValues(t, 5, stat.Size)

	buf := make([]byte, 5)
	n, err = fs.ReadAt("/f", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), buf)
}

func TestOverwriteDoesNotGrowTheFile(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Create("/f", 0o644))

	_, err := fs.WriteAt("/f", []byte("hello"), 0)
	require.NoError(t, err)
	_, err = fs.WriteAt("/f", []byte("HELLO"), 0)
	require.NoError(t, err)

	stat, err := fs.GetAttr("/f")
	require.NoError(t, err)
	assert.EqualValues(t, 5, stat.Size, "rewriting existing bytes must not extend the size")

	buf := make([]byte, 16)
	n, err := fs.ReadAt("/f", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("HELLO"), buf[:n])
}

func TestMultiBlockWrite(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Create("/big", 0o644))

	pattern := patternBytes(100_000)
	n, err := fs.WriteAt("/big", pattern, 0)
	require.NoError(t, err)
	assert.Equal(t, len(pattern), n)

	stat, err := fs.GetAttr("/big")
	require.NoError(t, err)
	assert.EqualValues(t, 100_000, stat.Size)

	readBack := make([]byte, len(pattern))
	n, err = fs.ReadAt("/big", readBack, 0)
	require.NoError(t, err)
	assert.Equal(t, len(pattern), n)
	assert.True(t, bytes.Equal(pattern, readBack))
}

func TestReadAcrossBlockBoundary(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Create("/f", 0o644))

	pattern := patternBytes(2 * DefaultBlockSize)
	_, err := fs.WriteAt("/f", pattern, 0)
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := fs.ReadAt("/f", buf, DefaultBlockSize-50)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, pattern[DefaultBlockSize-50:DefaultBlockSize+50], buf)
}

func TestReadPastEOF(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Create("/f", 0o644))
	_, err := fs.WriteAt("/f", []byte("abc"), 0)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := fs.ReadAt("/f", buf, 3)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = fs.ReadAt("/f", buf, 1000)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A short tail read stops at EOF.
	n, err = fs.ReadAt("/f", buf, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("bc"), buf[:n])
}

func TestSparseWriteForcesIndirectAllocation(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Create("/huge", 0o644))
	usedBefore := usedDataBlocks(fs)

	// One byte past the direct range: logical block 16, the first block of
	// the first indirect page.
	offset := int64(NumDirectPointers*DefaultBlockSize + 10)
	n, err := fs.WriteAt("/huge", []byte{0xFF}, offset)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Exactly two new data blocks: the indirect page and the data block.
	assert.Equal(t, usedBefore+2, usedDataBlocks(fs))

	stat, err := fs.GetAttr("/huge")
	require.NoError(t, err)
	assert.EqualValues(t, offset+1, stat.Size)

	// The unwritten prefix reads as zeroes, including the direct-pointer
	// holes that were never allocated.
	readBack := make([]byte, offset+1)
	n, err = fs.ReadAt("/huge", readBack, 0)
	require.NoError(t, err)
	require.EqualValues(t, offset+1, n)
	assert.Equal(t, make([]byte, offset), readBack[:offset])
	assert.EqualValues(t, 0xFF, readBack[offset])
}

func TestFillingAHoleKeepsLaterBlocks(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Create("/f", 0o644))

	// Allocate block 2 first, leaving a hole at block 1.
	tail := patternBytes(100)
	_, err := fs.WriteAt("/f", tail, 2*DefaultBlockSize)
	require.NoError(t, err)

	// Filling the hole must not disturb the block behind it.
	_, err = fs.WriteAt("/f", []byte("middle"), DefaultBlockSize)
	require.NoError(t, err)

	readBack := make([]byte, 100)
	n, err := fs.ReadAt("/f", readBack, 2*DefaultBlockSize)
	require.NoError(t, err)
	require.Equal(t, 100, n)
	assert.Equal(t, tail, readBack)
	require.NoError(t, fs.Check())
}

func TestWriteBeyondAddressableRange(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Create("/f", 0o644))

	_, err := fs.WriteAt("/f", []byte("x"), fs.MaxFileSize())
	assert.ErrorIs(t, err, tinyfs.ErrFileTooLarge)

	// A write straddling the limit is refused outright.
	_, err = fs.WriteAt("/f", []byte("xy"), fs.MaxFileSize()-1)
	assert.ErrorIs(t, err, tinyfs.ErrFileTooLarge)
}

func TestReadWriteOnDirectory(t *testing.T) {
	fs := newTestFS(t, smallParams)
	require.NoError(t, fs.Mkdir("/d", 0o755))

	buf := make([]byte, 8)
	_, err := fs.ReadAt("/d", buf, 0)
	assert.ErrorIs(t, err, tinyfs.ErrIsADirectory)

	_, err = fs.WriteAt("/d", buf, 0)
	assert.ErrorIs(t, err, tinyfs.ErrIsADirectory)
}
