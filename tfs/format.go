package tfs

import (
	"fmt"
	"time"

	"github.com/boljen/go-bitmap"
	"github.com/tinyfs-go/tinyfs"
)

// Format writes a fresh TFS layout to the device: superblock, zeroed bitmaps,
// zeroed inode table, and a root directory containing "." and "..". The
// filesystem is left mounted.
func (fs *FileSystem) Format(params Params) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	params = params.withDefaults()
	if err := params.validate(); err != nil {
		return err
	}
	if uint(params.BlockSize) != fs.dev.BytesPerBlock() {
		return tinyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("device has %d-byte blocks, layout wants %d",
				fs.dev.BytesPerBlock(), params.BlockSize))
	}
	if uint(params.TotalBlocks()) > fs.dev.TotalBlocks() {
		return tinyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("layout needs %d blocks, device has %d",
				params.TotalBlocks(), fs.dev.TotalBlocks()))
	}

	sb := newSuperblock(params)
	buffer := fs.newBlockBuffer()
	if err := sb.encode(buffer); err != nil {
		return err
	}
	if err := fs.dev.WriteBlock(superblockBlock, buffer); err != nil {
		return err
	}
	fs.sb = sb
	fs.params = params

	// Fresh bitmaps with inode 0 and data block 0 claimed for the root
	// directory. The image file is not guaranteed to be zeroed, so both
	// bitmap blocks and the whole inode table are written out explicitly.
	inodeBits := bitmap.Bitmap(fs.newBlockBuffer())
	inodeBits.Set(0, true)
	dataBits := bitmap.Bitmap(fs.newBlockBuffer())
	dataBits.Set(0, true)
	fs.inodeBitmap = inodeBits
	fs.dataBitmap = dataBits
	if err := fs.writeInodeBitmap(); err != nil {
		return err
	}
	if err := fs.writeDataBitmap(); err != nil {
		return err
	}

	zeroBlock := fs.newBlockBuffer()
	for blk := sb.InodeStartBlock; blk < sb.DataStartBlock; blk++ {
		if err := fs.dev.WriteBlock(uint(blk), zeroBlock); err != nil {
			return err
		}
	}

	// Root directory: inode 0, one data block holding "." and "..", both
	// referring to the root itself.
	root := Inode{
		Ino:   0,
		Valid: true,
		Type:  TypeDirectory,
		Link:  2,
		FileStat: tinyfs.FileStat{
			InodeNumber:  0,
			Nlinks:       2,
			ModeFlags:    tinyfs.FileModeFromRaw(tinyfs.S_IFDIR | 0o755),
			Size:         2 * DirentSize,
			BlockSize:    int64(params.BlockSize),
			NumBlocks:    1,
			LastModified: time.Now(),
		},
	}
	root.Direct[0] = sb.DataStartBlock

	dirBlock := fs.newBlockBuffer()
	putDirent(dirBlock, 0, RawDirent{Ino: 0, Valid: 1, Name: direntName(".")})
	putDirent(dirBlock, 1, RawDirent{Ino: 0, Valid: 1, Name: direntName("..")})
	if err := fs.dev.WriteBlock(uint(sb.DataStartBlock), dirBlock); err != nil {
		return err
	}

	if err := fs.writeInode(&root); err != nil {
		return err
	}

	fs.mounted = true
	return fs.dev.Flush()
}
