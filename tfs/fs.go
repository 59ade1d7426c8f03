package tfs

import (
	"os"
	"sync"

	"github.com/boljen/go-bitmap"
	"github.com/tinyfs-go/tinyfs"
	"github.com/tinyfs-go/tinyfs/blockdev"
)

// FileSystem is a mounted TFS image. All operations are serialized behind a
// single mutex covering the in-memory superblock, both bitmaps and device I/O;
// each operation runs to completion before the next begins.
type FileSystem struct {
	mu      sync.Mutex
	dev     *blockdev.Device
	sb      Superblock
	params  Params
	mounted bool

	// inodeBitmap and dataBitmap are backed by full block buffers, so writing
	// a bitmap back to disk writes the same bytes the allocators mutate.
	inodeBitmap bitmap.Bitmap
	dataBitmap  bitmap.Bitmap
}

var _ tinyfs.FileSystem = (*FileSystem)(nil)

// New creates an unmounted filesystem over `dev`. Follow with [FileSystem.Mount]
// for an existing image or [FileSystem.Format] for a fresh one.
func New(dev *blockdev.Device) *FileSystem {
	return &FileSystem{dev: dev}
}

// Init opens the image at `path`, formatting it first if it doesn't exist.
// This is the whole mount lifecycle of a host: call Init at startup and
// [FileSystem.Unmount] at teardown.
func Init(path string, params Params) (*FileSystem, error) {
	params = params.withDefaults()
	if err := params.validate(); err != nil {
		return nil, err
	}

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		dev, err := blockdev.Create(path, uint(params.BlockSize), uint(params.TotalBlocks()))
		if err != nil {
			return nil, err
		}
		fs := New(dev)
		if err := fs.Format(params); err != nil {
			dev.Close()
			return nil, err
		}
		return fs, nil
	}

	dev, err := blockdev.Open(path, uint(params.BlockSize))
	if err != nil {
		return nil, err
	}
	fs := New(dev)
	if err := fs.Mount(); err != nil {
		dev.Close()
		return nil, err
	}
	return fs, nil
}

// Mount reads the superblock and both allocation bitmaps into memory. The
// image must have been formatted with a matching block size.
func (fs *FileSystem) Mount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.mounted {
		return nil
	}

	buffer := fs.newBlockBuffer()
	err := fs.dev.ReadBlock(superblockBlock, buffer)
	if err != nil {
		return err
	}
	sb, err := decodeSuperblock(buffer)
	if err != nil {
		return err
	}
	fs.sb = sb
	fs.params = Params{
		BlockSize:     uint32(fs.dev.BytesPerBlock()),
		MaxInodes:     sb.MaxInodes,
		MaxDataBlocks: sb.MaxDataBlocks,
	}

	inodeBits := fs.newBlockBuffer()
	err = fs.dev.ReadBlock(uint(sb.InodeBitmapBlock), inodeBits)
	if err != nil {
		return err
	}
	dataBits := fs.newBlockBuffer()
	err = fs.dev.ReadBlock(uint(sb.DataBitmapBlock), dataBits)
	if err != nil {
		return err
	}

	fs.inodeBitmap = bitmap.Bitmap(inodeBits)
	fs.dataBitmap = bitmap.Bitmap(dataBits)
	fs.mounted = true
	return nil
}

// Unmount flushes the device and drops the in-memory structures. The bitmaps
// are already on disk; every mutation writes them back before returning.
func (fs *FileSystem) Unmount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.mounted {
		return nil
	}
	err := fs.dev.Close()
	fs.inodeBitmap = nil
	fs.dataBitmap = nil
	fs.mounted = false
	return err
}

// FSStat reports usage counters for the mounted image.
func (fs *FileSystem) FSStat() tinyfs.FSStat {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Brute-force count of the free bits. The bitmaps are one block each, so
	// this is cheap enough.
	freeBlocks := uint64(0)
	for i := uint32(0); i < fs.sb.MaxDataBlocks; i++ {
		if !fs.dataBitmap.Get(int(i)) {
			freeBlocks++
		}
	}
	usedInodes := uint64(0)
	for i := uint32(0); i < fs.sb.MaxInodes; i++ {
		if fs.inodeBitmap.Get(int(i)) {
			usedInodes++
		}
	}

	return tinyfs.FSStat{
		BlockSize:       int64(fs.params.BlockSize),
		TotalBlocks:     uint64(fs.params.TotalBlocks()),
		BlocksFree:      freeBlocks,
		BlocksAvailable: freeBlocks,
		Files:           usedInodes,
		FilesFree:       uint64(fs.sb.MaxInodes) - usedInodes,
		MaxNameLength:   MaxNameLength,
	}
}

// newBlockBuffer returns a zeroed buffer of exactly one block.
func (fs *FileSystem) newBlockBuffer() []byte {
	return make([]byte, fs.dev.BytesPerBlock())
}
