package tfs

import (
	"fmt"

	"github.com/tinyfs-go/tinyfs"
)

// The allocators are first-fit: they hand out the lowest free index. Every
// bitmap mutation writes the bitmap block back to disk before returning, so
// the in-memory and on-disk copies never diverge between operations.

// allocInode claims the lowest free inode number.
func (fs *FileSystem) allocInode() (uint16, error) {
	for i := uint32(0); i < fs.sb.MaxInodes; i++ {
		if fs.inodeBitmap.Get(int(i)) {
			continue
		}
		fs.inodeBitmap.Set(int(i), true)
		err := fs.writeInodeBitmap()
		if err != nil {
			return 0, err
		}
		return uint16(i), nil
	}
	return 0, tinyfs.ErrNoSpaceOnDevice.WithMessage("no free inodes")
}

// allocBlock claims the lowest free data block and returns its absolute index.
// The block's existing contents are undefined; callers that need zeroes must
// use allocZeroedBlock.
func (fs *FileSystem) allocBlock() (uint32, error) {
	for i := uint32(0); i < fs.sb.MaxDataBlocks; i++ {
		if fs.dataBitmap.Get(int(i)) {
			continue
		}
		fs.dataBitmap.Set(int(i), true)
		err := fs.writeDataBitmap()
		if err != nil {
			return 0, err
		}
		return fs.sb.DataStartBlock + i, nil
	}
	return 0, tinyfs.ErrNoSpaceOnDevice.WithMessage("no free data blocks")
}

// allocZeroedBlock claims a data block and overwrites it with zeroes.
func (fs *FileSystem) allocZeroedBlock() (uint32, error) {
	block, err := fs.allocBlock()
	if err != nil {
		return 0, err
	}
	err = fs.dev.WriteBlock(uint(block), fs.newBlockBuffer())
	if err != nil {
		return 0, err
	}
	return block, nil
}

// freeInode releases an inode number back to the bitmap.
func (fs *FileSystem) freeInode(ino uint16) error {
	fs.inodeBitmap.Set(int(ino), false)
	return fs.writeInodeBitmap()
}

// freeBlock releases the data block at absolute index `block`.
func (fs *FileSystem) freeBlock(block uint32) error {
	if block < fs.sb.DataStartBlock ||
		block >= fs.sb.DataStartBlock+fs.sb.MaxDataBlocks {
		return tinyfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("block %d not in the data region [%d, %d)",
				block,
				fs.sb.DataStartBlock,
				fs.sb.DataStartBlock+fs.sb.MaxDataBlocks))
	}
	fs.dataBitmap.Set(int(block-fs.sb.DataStartBlock), false)
	return fs.writeDataBitmap()
}

func (fs *FileSystem) writeInodeBitmap() error {
	return fs.dev.WriteBlock(uint(fs.sb.InodeBitmapBlock), fs.inodeBitmap)
}

func (fs *FileSystem) writeDataBitmap() error {
	return fs.dev.WriteBlock(uint(fs.sb.DataBitmapBlock), fs.dataBitmap)
}
