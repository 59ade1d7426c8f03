package tfs

import (
	"errors"
	"fmt"
	posixpath "path"
	"strings"

	"github.com/tinyfs-go/tinyfs"
)

func isNotFound(err error) bool {
	return errors.Is(err, tinyfs.ErrNotFound)
}

// splitPath normalizes `path` and returns its components. The caller's string
// is never modified. Empty paths, "/", and trailing slashes all normalize the
// same way; the root resolves to an empty component list.
func splitPath(path string) []string {
	cleaned := posixpath.Clean("/" + path)
	if cleaned == "/" {
		return nil
	}
	return strings.Split(cleaned[1:], "/")
}

// resolve walks `path` from the root directory (inode 0) and returns the
// inode it names.
func (fs *FileSystem) resolve(path string) (Inode, error) {
	current, err := fs.readInode(0)
	if err != nil {
		return Inode{}, err
	}

	for _, component := range splitPath(path) {
		if !current.IsDirectory() {
			return Inode{}, tinyfs.ErrNotADirectory.WithMessage(
				fmt.Sprintf("intermediate component of %q is not a directory", path))
		}
		entry, err := fs.dirLookup(&current, component)
		if err != nil {
			return Inode{}, err
		}
		current, err = fs.readInode(entry.Ino)
		if err != nil {
			return Inode{}, err
		}
	}
	return current, nil
}

// resolveParent walks everything but the final component and returns the
// parent directory's inode plus the final component's name. Resolving the
// root this way fails; the root has no parent.
func (fs *FileSystem) resolveParent(path string) (Inode, string, error) {
	components := splitPath(path)
	if len(components) == 0 {
		return Inode{}, "", tinyfs.ErrInvalidArgument.WithMessage(
			"the root directory has no parent")
	}

	parentPath := "/" + strings.Join(components[:len(components)-1], "/")
	parent, err := fs.resolve(parentPath)
	if err != nil {
		return Inode{}, "", err
	}
	if !parent.IsDirectory() {
		return Inode{}, "", tinyfs.ErrNotADirectory.WithMessage(
			fmt.Sprintf("parent of %q is not a directory", path))
	}
	return parent, components[len(components)-1], nil
}
