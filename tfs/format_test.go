package tfs

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyfs-go/tinyfs"
	"github.com/tinyfs-go/tinyfs/blockdev"
)

// smallParams keeps test images under a megabyte. Two inode-table blocks, so
// the data region starts at block 5.
var smallParams = Params{MaxInodes: 64, MaxDataBlocks: 128}

func newTestImage(t *testing.T, params Params) ([]byte, *blockdev.Device) {
	params = params.withDefaults()
	storage := make([]byte, int(params.TotalBlocks())*int(params.BlockSize))
	return storage, blockdev.WrapSlice(storage, uint(params.BlockSize))
}

func newTestFS(t *testing.T, params Params) *FileSystem {
	_, dev := newTestImage(t, params)
	fs := New(dev)
	require.NoError(t, fs.Format(params))
	return fs
}

func TestRecordSizesMatchTheLayout(t *testing.T) {
	require.EqualValues(t, InodeSize, binary.Size(RawInode{}))
	require.EqualValues(t, DirentSize, binary.Size(RawDirent{}))
	assert.Zero(t, DefaultBlockSize%InodeSize)
	assert.Zero(t, DefaultBlockSize%DirentSize)
}

func TestFormatWritesTheLayout(t *testing.T) {
	storage, dev := newTestImage(t, smallParams)
	fs := New(dev)
	require.NoError(t, fs.Format(smallParams))

	sb, err := decodeSuperblock(storage[:DefaultBlockSize])
	require.NoError(t, err)
	assert.EqualValues(t, Magic, sb.Magic)
	assert.EqualValues(t, 64, sb.MaxInodes)
	assert.EqualValues(t, 128, sb.MaxDataBlocks)
	assert.EqualValues(t, 1, sb.InodeBitmapBlock)
	assert.EqualValues(t, 2, sb.DataBitmapBlock)
	assert.EqualValues(t, 3, sb.InodeStartBlock)
	assert.EqualValues(t, 5, sb.DataStartBlock)

	// Inode 0 and data block 0 are claimed for the root directory.
	assert.EqualValues(t, 1, storage[1*DefaultBlockSize]&1)
	assert.EqualValues(t, 1, storage[2*DefaultBlockSize]&1)
}

func TestFormatThenGetattrRoot(t *testing.T) {
	fs := newTestFS(t, smallParams)

	stat, err := fs.GetAttr("/")
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
	assert.EqualValues(t, 2, stat.Nlinks)
	assert.EqualValues(t, 2*DirentSize, stat.Size)
	assert.EqualValues(t, 0, stat.InodeNumber)
}

func TestMountExistingImage(t *testing.T) {
	storage, dev := newTestImage(t, smallParams)
	require.NoError(t, New(dev).Format(smallParams))

	// A second filesystem over the same storage sees the formatted image.
	fs := New(blockdev.WrapSlice(storage, DefaultBlockSize))
	require.NoError(t, fs.Mount())

	stat, err := fs.GetAttr("/")
	require.NoError(t, err)
	assert.True(t, stat.IsDir())

	fsstat := fs.FSStat()
	assert.EqualValues(t, 127, fsstat.BlocksFree)
	assert.EqualValues(t, 1, fsstat.Files)
	assert.EqualValues(t, 63, fsstat.FilesFree)
}

func TestMountRejectsBadMagic(t *testing.T) {
	_, dev := newTestImage(t, smallParams)
	err := New(dev).Mount()
	assert.ErrorIs(t, err, tinyfs.ErrInvalidFileSystem)
}

func TestDefaultLayoutConstants(t *testing.T) {
	p := Params{}.withDefaults()
	assert.EqualValues(t, 4096, p.BlockSize)
	assert.EqualValues(t, 1024, p.MaxInodes)
	// 1024 inodes at 128 bytes each fill 32 table blocks.
	assert.EqualValues(t, 35, p.DataStartBlock())
	assert.EqualValues(t, 35+16384, p.TotalBlocks())
}
