package blockdev_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyfs-go/tinyfs"
	"github.com/tinyfs-go/tinyfs/blockdev"
)

func TestWrapSliceRoundTrip(t *testing.T) {
	storage := make([]byte, 16*512)
	dev := blockdev.WrapSlice(storage, 512)

	require.EqualValues(t, 512, dev.BytesPerBlock())
	require.EqualValues(t, 16, dev.TotalBlocks())
	require.EqualValues(t, 16*512, dev.Size())

	block := bytes.Repeat([]byte{0xA5}, 512)
	require.NoError(t, dev.WriteBlock(3, block))

	readBack := make([]byte, 512)
	require.NoError(t, dev.ReadBlock(3, readBack))
	assert.Equal(t, block, readBack)

	// The write landed at the right offset in the underlying storage.
	assert.Equal(t, block, storage[3*512:4*512])
	assert.Equal(t, make([]byte, 512), storage[2*512:3*512])
}

func TestBlockIndexOutOfRange(t *testing.T) {
	dev := blockdev.WrapSlice(make([]byte, 4*512), 512)
	buffer := make([]byte, 512)

	err := dev.ReadBlock(4, buffer)
	assert.ErrorIs(t, err, tinyfs.ErrArgumentOutOfRange)

	err = dev.WriteBlock(100, buffer)
	assert.ErrorIs(t, err, tinyfs.ErrArgumentOutOfRange)
}

func TestBufferMustBeOneBlock(t *testing.T) {
	dev := blockdev.WrapSlice(make([]byte, 4*512), 512)

	err := dev.ReadBlock(0, make([]byte, 511))
	assert.ErrorIs(t, err, tinyfs.ErrInvalidArgument)

	err = dev.WriteBlock(0, make([]byte, 1024))
	assert.ErrorIs(t, err, tinyfs.ErrInvalidArgument)
}

func TestCreateSizesTheImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.img")
	dev, err := blockdev.Create(path, 4096, 64)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 64*4096, info.Size())

	block := bytes.Repeat([]byte{0x5A}, 4096)
	require.NoError(t, dev.WriteBlock(63, block))
	require.NoError(t, dev.Close())

	// Reopen and check the block survived.
	dev, err = blockdev.Open(path, 4096)
	require.NoError(t, err)
	require.EqualValues(t, 64, dev.TotalBlocks())

	readBack := make([]byte, 4096)
	require.NoError(t, dev.ReadBlock(63, readBack))
	assert.Equal(t, block, readBack)
	require.NoError(t, dev.Close())
}

func TestOpenMissingImage(t *testing.T) {
	_, err := blockdev.Open(filepath.Join(t.TempDir(), "nope.img"), 4096)
	assert.ErrorIs(t, err, tinyfs.ErrNotFound)
}
