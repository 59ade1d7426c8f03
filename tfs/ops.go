package tfs

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/tinyfs-go/tinyfs"
)

// The operations below compose the allocators, the inode table, the directory
// table, namei, and the data addressing layer. Each one takes the filesystem
// mutex for its whole duration.

// GetAttr returns the status of the object at `path`.
func (fs *FileSystem) GetAttr(path string) (tinyfs.FileStat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, err := fs.resolve(path)
	if err != nil {
		return tinyfs.FileStat{}, err
	}
	return node.FileStat, nil
}

// Open checks that `path` names a live object.
func (fs *FileSystem) Open(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if !node.Valid {
		return tinyfs.ErrNotFound.WithMessage(
			fmt.Sprintf("%q names a dead inode", path))
	}
	return nil
}

// Mkdir creates an empty directory at `path` with the given permissions.
func (fs *FileSystem) Mkdir(path string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}

	ino, err := fs.allocInode()
	if err != nil {
		return err
	}
	err = fs.dirInsert(&parent, ino, name)
	if err != nil {
		// The entry never made it in, so the inode must go back.
		fs.freeInode(ino)
		return err
	}

	block, err := fs.allocZeroedBlock()
	if err != nil {
		return err
	}

	child := Inode{
		Ino:   ino,
		Valid: true,
		Type:  TypeDirectory,
		Link:  1,
		FileStat: tinyfs.FileStat{
			InodeNumber:  uint64(ino),
			Nlinks:       1,
			ModeFlags:    os.ModeDir | perm.Perm(),
			Size:         2 * DirentSize,
			BlockSize:    int64(fs.params.BlockSize),
			NumBlocks:    1,
			LastModified: time.Now(),
		},
	}
	child.Direct[0] = block

	buffer := fs.newBlockBuffer()
	putDirent(buffer, 0, RawDirent{Ino: ino, Valid: 1, Name: direntName(".")})
	putDirent(buffer, 1, RawDirent{Ino: parent.Ino, Valid: 1, Name: direntName("..")})
	err = fs.dev.WriteBlock(uint(block), buffer)
	if err != nil {
		return err
	}
	return fs.writeInode(&child)
}

// Rmdir removes the directory at `path`. Directories still holding entries
// beyond "." and ".." are refused.
func (fs *FileSystem) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	target, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if !target.IsDirectory() {
		return tinyfs.ErrNotADirectory.WithMessage(
			fmt.Sprintf("%q is not a directory", path))
	}

	entries, err := fs.liveEntries(&target)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name != "." && entry.Name != ".." {
			return tinyfs.ErrDirectoryNotEmpty.WithMessage(
				fmt.Sprintf("%q still contains %q", path, entry.Name))
		}
	}

	parent, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for i, block := range target.Direct {
		if block == 0 {
			break
		}
		result = multierror.Append(result, fs.freeBlock(block))
		target.Direct[i] = 0
	}

	target.Valid = false
	result = multierror.Append(result, fs.freeInode(target.Ino))
	result = multierror.Append(result, fs.writeInode(&target))
	result = multierror.Append(result, fs.dirDelete(&parent, name))
	return result.ErrorOrNil()
}

// Create makes an empty regular file at `path`.
func (fs *FileSystem) Create(path string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}

	ino, err := fs.allocInode()
	if err != nil {
		return err
	}
	err = fs.dirInsert(&parent, ino, name)
	if err != nil {
		fs.freeInode(ino)
		return err
	}

	block, err := fs.allocZeroedBlock()
	if err != nil {
		return err
	}

	child := Inode{
		Ino:   ino,
		Valid: true,
		Type:  TypeRegular,
		Link:  1,
		FileStat: tinyfs.FileStat{
			InodeNumber:  uint64(ino),
			Nlinks:       1,
			ModeFlags:    perm.Perm(),
			Size:         0,
			BlockSize:    int64(fs.params.BlockSize),
			NumBlocks:    1,
			LastModified: time.Now(),
		},
	}
	child.Direct[0] = block

	return fs.writeInode(&child)
}

// ReadAt copies file content beginning at `offset` into `buf`.
func (fs *FileSystem) ReadAt(path string, buf []byte, offset int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	if node.IsDirectory() {
		return 0, tinyfs.ErrIsADirectory.WithMessage(
			fmt.Sprintf("%q is a directory", path))
	}
	return fs.readFileAt(&node, buf, offset)
}

// WriteAt stores `buf` into the file at `path` beginning at `offset`.
func (fs *FileSystem) WriteAt(path string, buf []byte, offset int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	if node.IsDirectory() {
		return 0, tinyfs.ErrIsADirectory.WithMessage(
			fmt.Sprintf("%q is a directory", path))
	}
	return fs.writeFileAt(&node, buf, offset)
}

// Unlink removes the regular file at `path` and releases every block it
// reaches: direct blocks, indirect pages, and the blocks those pages name.
func (fs *FileSystem) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	target, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if target.IsDirectory() {
		return tinyfs.ErrIsADirectory.WithMessage(
			fmt.Sprintf("%q is a directory; use Rmdir", path))
	}

	parent, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}

	var result *multierror.Error

	// Past-EOF writes can leave holes anywhere in the pointer arrays, so both
	// scans cover every slot rather than stopping at the first zero. Each
	// indirect page is read before it or any block it names is freed; freeing
	// the page first
	// would leave the scan walking a block the allocator may hand out again.
	buffer := fs.newBlockBuffer()
	for i, page := range target.Indirect {
		if page == 0 {
			continue
		}
		err = fs.dev.ReadBlock(uint(page), buffer)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for slot := uint32(0); slot < fs.pointersPerPage(); slot++ {
			block := binary.LittleEndian.Uint32(buffer[slot*4:])
			if block != 0 {
				result = multierror.Append(result, fs.freeBlock(block))
			}
		}
		result = multierror.Append(result, fs.freeBlock(page))
		target.Indirect[i] = 0
	}

	for i, block := range target.Direct {
		if block == 0 {
			continue
		}
		result = multierror.Append(result, fs.freeBlock(block))
		target.Direct[i] = 0
	}

	target.Valid = false
	result = multierror.Append(result, fs.freeInode(target.Ino))
	result = multierror.Append(result, fs.writeInode(&target))
	result = multierror.Append(result, fs.dirDelete(&parent, name))
	return result.ErrorOrNil()
}

// ReadDir invokes `emit` once per live entry of the directory at `path`, in
// entry order, with each child's stat record.
func (fs *FileSystem) ReadDir(path string, emit func(name string, stat tinyfs.FileStat) error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if !dir.IsDirectory() {
		return tinyfs.ErrNotADirectory.WithMessage(
			fmt.Sprintf("%q is not a directory", path))
	}

	entries, err := fs.liveEntries(&dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		child, err := fs.readInode(entry.Ino)
		if err != nil {
			return err
		}
		err = emit(entry.Name, child.FileStat)
		if err != nil {
			return err
		}
	}
	return nil
}
