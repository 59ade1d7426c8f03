package tfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/tinyfs-go/tinyfs"
)

// InodeSize is the on-disk size of one inode record. The inode table stores
// BlockSize/InodeSize of them per block, contiguous from the table's first
// block.
const InodeSize = 128

const (
	TypeRegular   = 0
	TypeDirectory = 1
)

// RawInode is the on-disk layout of an inode, serialized little-endian.
// Direct and Indirect hold absolute block indices; 0 means unallocated. A
// directory's direct pointers are packed contiguously from slot 0; a regular
// file's pointers can hold holes anywhere.
type RawInode struct {
	Ino      uint16
	Valid    uint8
	Type     uint8
	Link     uint16
	Mode     uint16
	Size     uint32
	Blocks   uint32
	Mtime    int64
	Direct   [NumDirectPointers]uint32
	Indirect [NumIndirectPointers]uint32
	Reserved [8]byte
}

// Inode is the in-memory form of a file or directory descriptor.
type Inode struct {
	tinyfs.FileStat
	Ino      uint16
	Valid    bool
	Type     uint8
	Link     uint16
	Direct   [NumDirectPointers]uint32
	Indirect [NumIndirectPointers]uint32
}

func (node *Inode) IsDirectory() bool {
	return node.Type == TypeDirectory
}

// rawToInode inflates an on-disk record. Size, inode number and link count are
// mirrored into the embedded FileStat so hosts get a ready-to-use stat record.
func rawToInode(raw RawInode, blockSize uint32) Inode {
	return Inode{
		Ino:      raw.Ino,
		Valid:    raw.Valid != 0,
		Type:     raw.Type,
		Link:     raw.Link,
		Direct:   raw.Direct,
		Indirect: raw.Indirect,
		FileStat: tinyfs.FileStat{
			InodeNumber:  uint64(raw.Ino),
			Nlinks:       uint64(raw.Link),
			ModeFlags:    tinyfs.FileModeFromRaw(raw.Mode),
			Size:         int64(raw.Size),
			BlockSize:    int64(blockSize),
			NumBlocks:    int64(raw.Blocks),
			LastModified: time.Unix(raw.Mtime, 0),
		},
	}
}

func inodeToRaw(node *Inode) RawInode {
	raw := RawInode{
		Ino:      node.Ino,
		Type:     node.Type,
		Link:     node.Link,
		Mode:     tinyfs.RawModeFromFileMode(node.ModeFlags),
		Size:     uint32(node.Size),
		Blocks:   uint32(node.NumBlocks),
		Mtime:    node.LastModified.Unix(),
		Direct:   node.Direct,
		Indirect: node.Indirect,
	}
	if node.Valid {
		raw.Valid = 1
	}
	return raw
}

func (fs *FileSystem) inodesPerBlock() uint32 {
	return fs.params.BlockSize / InodeSize
}

// inodeLocation maps an inode number to its table block and byte offset within
// that block.
func (fs *FileSystem) inodeLocation(ino uint16) (block uint32, offset uint32) {
	perBlock := fs.inodesPerBlock()
	block = fs.sb.InodeStartBlock + uint32(ino)/perBlock
	offset = (uint32(ino) % perBlock) * InodeSize
	return block, offset
}

// readInode copies inode `ino` out of the table.
func (fs *FileSystem) readInode(ino uint16) (Inode, error) {
	if uint32(ino) >= fs.sb.MaxInodes {
		return Inode{}, tinyfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("inode %d not in range [0, %d)", ino, fs.sb.MaxInodes))
	}

	block, offset := fs.inodeLocation(ino)
	buffer := fs.newBlockBuffer()
	err := fs.dev.ReadBlock(uint(block), buffer)
	if err != nil {
		return Inode{}, err
	}

	var raw RawInode
	reader := bytes.NewReader(buffer[offset : offset+InodeSize])
	err = binary.Read(reader, binary.LittleEndian, &raw)
	if err != nil {
		return Inode{}, tinyfs.ErrIOFailed.Wrap(err)
	}
	return rawToInode(raw, fs.params.BlockSize), nil
}

// writeInode stores `node` into the table with a read-modify-write of its
// block, preserving the other inodes sharing it.
func (fs *FileSystem) writeInode(node *Inode) error {
	if uint32(node.Ino) >= fs.sb.MaxInodes {
		return tinyfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("inode %d not in range [0, %d)", node.Ino, fs.sb.MaxInodes))
	}

	block, offset := fs.inodeLocation(node.Ino)
	buffer := fs.newBlockBuffer()
	err := fs.dev.ReadBlock(uint(block), buffer)
	if err != nil {
		return err
	}

	raw := inodeToRaw(node)
	var encoded bytes.Buffer
	err = binary.Write(&encoded, binary.LittleEndian, &raw)
	if err != nil {
		return tinyfs.ErrIOFailed.Wrap(err)
	}
	copy(buffer[offset:offset+InodeSize], encoded.Bytes())

	return fs.dev.WriteBlock(uint(block), buffer)
}

// touch refreshes the inode's modification time.
func (node *Inode) touch() {
	node.LastModified = time.Now()
}
