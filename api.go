// Package tinyfs defines the host-facing types shared by the TFS layout engine
// and its adapters: file and filesystem status records, on-disk mode bits, and
// the errno-backed error kinds every operation returns.
package tinyfs

import (
	"os"
	"time"
)

// FileStat is a platform-independent form of [syscall.Stat_t], restricted to
// the attributes the TFS format actually stores.
type FileStat struct {
	InodeNumber  uint64
	Nlinks       uint64
	ModeFlags    os.FileMode
	Size         int64
	BlockSize    int64
	NumBlocks    int64
	LastModified time.Time
}

func (stat *FileStat) IsDir() bool {
	return stat.ModeFlags.IsDir()
}

func (stat *FileStat) IsFile() bool {
	return stat.ModeFlags.IsRegular()
}

// FSStat is a platform-independent form of [syscall.Statfs_t].
type FSStat struct {
	// BlockSize is the size of a logical block on the file system, in bytes.
	BlockSize int64
	// TotalBlocks is the total number of blocks on the disk image.
	TotalBlocks uint64
	// BlocksFree is the number of unallocated data blocks on the image.
	BlocksFree uint64
	// BlocksAvailable is the number of blocks available for use by user data.
	BlocksAvailable uint64
	// Files is the number of inodes currently in use.
	Files uint64
	// FilesFree is the number of remaining inodes available for use.
	FilesFree uint64
	// MaxNameLength is the longest possible name for a directory entry, in bytes.
	MaxNameLength int64
}

// FileSystem is the set of operations a mounted TFS image supports. Hosts
// (the FUSE adapter, the CLI) program against this interface; the concrete
// implementation lives in the tfs package.
type FileSystem interface {
	// GetAttr returns the status of the object at `path`.
	GetAttr(path string) (FileStat, error)

	// Mkdir creates a new empty directory. The parent must already exist.
	Mkdir(path string, perm os.FileMode) error

	// Rmdir removes an empty directory.
	Rmdir(path string) error

	// Create makes a new empty regular file. The parent must already exist.
	Create(path string, perm os.FileMode) error

	// Open checks that the object at `path` exists and is live on disk.
	Open(path string) error

	// ReadAt copies file content beginning at `offset` into `buf` and returns
	// the number of bytes copied. Reads at or past EOF return 0.
	ReadAt(path string, buf []byte, offset int64) (int, error)

	// WriteAt stores `buf` into the file beginning at `offset`, allocating
	// blocks as needed, and returns the number of bytes written.
	WriteAt(path string, buf []byte, offset int64) (int, error)

	// Unlink removes a regular file and frees its blocks.
	Unlink(path string) error

	// ReadDir invokes `emit` once per live entry of the directory at `path`,
	// in directory-entry order. A non-nil error from `emit` stops the scan.
	ReadDir(path string, emit func(name string, stat FileStat) error) error

	// FSStat reports usage counters for the mounted image.
	FSStat() FSStat
}
