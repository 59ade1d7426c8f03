// Package fusefs exposes a mounted TFS image through FUSE. It is a thin
// binding: every callback resolves the node's path and delegates to the
// filesystem operations, translating errors into errno values.
package fusefs

import (
	"context"
	"os"
	posixpath "path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/tinyfs-go/tinyfs"
	"github.com/tinyfs-go/tinyfs/tfs"
)

// Node is one object in the FUSE tree. TFS has no rename, so a node's path is
// fixed for its whole lifetime.
type Node struct {
	fs.Inode

	fsys *tfs.FileSystem
	path string
}

var _ = (fs.NodeGetattrer)((*Node)(nil))
var _ = (fs.NodeSetattrer)((*Node)(nil))
var _ = (fs.NodeLookuper)((*Node)(nil))
var _ = (fs.NodeReaddirer)((*Node)(nil))
var _ = (fs.NodeMkdirer)((*Node)(nil))
var _ = (fs.NodeRmdirer)((*Node)(nil))
var _ = (fs.NodeCreater)((*Node)(nil))
var _ = (fs.NodeUnlinker)((*Node)(nil))
var _ = (fs.NodeOpener)((*Node)(nil))
var _ = (fs.NodeReader)((*Node)(nil))
var _ = (fs.NodeWriter)((*Node)(nil))
var _ = (fs.NodeStatfser)((*Node)(nil))

// Mount serves `fsys` at `mountpoint` until the returned server is unmounted.
func Mount(mountpoint string, fsys *tfs.FileSystem, debug bool) (*fuse.Server, error) {
	root := &Node{fsys: fsys, path: "/"}
	return fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName: "tinyfs",
			Name:   "tinyfs",
			Debug:  debug,
		},
	})
}

func (n *Node) childPath(name string) string {
	return posixpath.Join(n.path, name)
}

func rawFuseMode(stat *tinyfs.FileStat) uint32 {
	mode := uint32(stat.ModeFlags.Perm())
	if stat.IsDir() {
		return mode | syscall.S_IFDIR
	}
	return mode | syscall.S_IFREG
}

func fillAttr(stat *tinyfs.FileStat, out *fuse.Attr) {
	out.Ino = stat.InodeNumber
	out.Size = uint64(stat.Size)
	out.Blocks = uint64(stat.NumBlocks)
	out.Blksize = uint32(stat.BlockSize)
	out.Mode = rawFuseMode(stat)
	out.Nlink = uint32(stat.Nlinks)
	out.Mtime = uint64(stat.LastModified.Unix())
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	stat, err := n.fsys.GetAttr(n.path)
	if err != nil {
		return tinyfs.Errno(err)
	}
	fillAttr(&stat, &out.Attr)
	return 0
}

// Setattr accepts and ignores attribute changes. TFS stores no ownership or
// timestamps beyond mtime, and truncate is not part of the format's operation
// set.
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	stat, err := n.fsys.GetAttr(n.path)
	if err != nil {
		return tinyfs.Errno(err)
	}
	fillAttr(&stat, &out.Attr)
	return 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.childPath(name)
	stat, err := n.fsys.GetAttr(child)
	if err != nil {
		return nil, tinyfs.Errno(err)
	}
	fillAttr(&stat, &out.Attr)

	node := &Node{fsys: n.fsys, path: child}
	return n.NewInode(ctx, node, fs.StableAttr{
		Mode: rawFuseMode(&stat),
		Ino:  stat.InodeNumber,
	}), 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	err := n.fsys.ReadDir(n.path, func(name string, stat tinyfs.FileStat) error {
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Ino:  stat.InodeNumber,
			Mode: rawFuseMode(&stat),
		})
		return nil
	})
	if err != nil {
		return nil, tinyfs.Errno(err)
	}
	return fs.NewListDirStream(entries), 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	err := n.fsys.Mkdir(n.childPath(name), os.FileMode(mode)&os.ModePerm)
	if err != nil {
		return nil, tinyfs.Errno(err)
	}
	return n.Lookup(ctx, name, out)
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	err := n.fsys.Rmdir(n.childPath(name))
	if err != nil {
		return tinyfs.Errno(err)
	}
	return 0
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	err := n.fsys.Create(n.childPath(name), os.FileMode(mode)&os.ModePerm)
	if err != nil {
		return nil, nil, 0, tinyfs.Errno(err)
	}
	node, errno := n.Lookup(ctx, name, out)
	if errno != 0 {
		return nil, nil, 0, errno
	}
	return node, nil, 0, 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	err := n.fsys.Unlink(n.childPath(name))
	if err != nil {
		return tinyfs.Errno(err)
	}
	return 0
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	err := n.fsys.Open(n.path)
	if err != nil {
		return nil, 0, tinyfs.Errno(err)
	}
	return nil, 0, 0
}

func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	count, err := n.fsys.ReadAt(n.path, dest, off)
	if err != nil {
		return nil, tinyfs.Errno(err)
	}
	return fuse.ReadResultData(dest[:count]), 0
}

func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	count, err := n.fsys.WriteAt(n.path, data, off)
	if err != nil {
		return 0, tinyfs.Errno(err)
	}
	return uint32(count), 0
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	stat := n.fsys.FSStat()
	out.Bsize = uint32(stat.BlockSize)
	out.Frsize = uint32(stat.BlockSize)
	out.Blocks = stat.TotalBlocks
	out.Bfree = stat.BlocksFree
	out.Bavail = stat.BlocksAvailable
	out.Files = stat.Files
	out.Ffree = stat.FilesFree
	out.NameLen = uint32(stat.MaxNameLength)
	return 0
}
