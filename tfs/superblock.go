// Package tfs implements the Tiny File System: a hierarchical namespace of
// directories and regular files stored in a flat disk image with a fixed
// layout. Block 0 holds the superblock; blocks 1 and 2 hold the inode and
// data-block allocation bitmaps; the inode table follows; the rest of the
// image is the data region.
package tfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
	"github.com/tinyfs-go/tinyfs"
)

// Magic identifies a TFS image ("TFS1").
const Magic = 0x54465331

const (
	DefaultBlockSize     = 4096
	DefaultMaxInodes     = 1024
	DefaultMaxDataBlocks = 16384
)

// NumDirectPointers and NumIndirectPointers give the fan-out of an inode's
// block addressing. Each indirect pointer names one page of direct pointers.
const (
	NumDirectPointers   = 16
	NumIndirectPointers = 8
)

const (
	superblockBlock  = 0
	inodeBitmapBlock = 1
	dataBitmapBlock  = 2
	inodeStartBlock  = 3
)

// Params are the layout inputs of an image. Zero fields take the defaults.
type Params struct {
	BlockSize     uint32
	MaxInodes     uint32
	MaxDataBlocks uint32
}

func (p Params) withDefaults() Params {
	if p.BlockSize == 0 {
		p.BlockSize = DefaultBlockSize
	}
	if p.MaxInodes == 0 {
		p.MaxInodes = DefaultMaxInodes
	}
	if p.MaxDataBlocks == 0 {
		p.MaxDataBlocks = DefaultMaxDataBlocks
	}
	return p
}

func (p Params) validate() error {
	if p.BlockSize < InodeSize || p.BlockSize%InodeSize != 0 {
		return tinyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("block size must be a multiple of %d, got %d", InodeSize, p.BlockSize))
	}
	if p.MaxInodes > uint32(p.BlockSize)*8 {
		return tinyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("inode bitmap doesn't fit in one block: %d > %d bits",
				p.MaxInodes, p.BlockSize*8))
	}
	if p.MaxDataBlocks > uint32(p.BlockSize)*8 {
		return tinyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("data bitmap doesn't fit in one block: %d > %d bits",
				p.MaxDataBlocks, p.BlockSize*8))
	}
	return nil
}

// inodeTableBlocks gives the number of blocks the inode table occupies.
func (p Params) inodeTableBlocks() uint32 {
	return (p.MaxInodes*InodeSize + p.BlockSize - 1) / p.BlockSize
}

// DataStartBlock gives the absolute index of the first data-region block.
func (p Params) DataStartBlock() uint32 {
	return inodeStartBlock + p.inodeTableBlocks()
}

// TotalBlocks gives the number of blocks an image with these parameters
// occupies.
func (p Params) TotalBlocks() uint32 {
	return p.DataStartBlock() + p.MaxDataBlocks
}

// Superblock is the first block of every TFS image. It is written once when
// the image is formatted and never modified afterwards.
type Superblock struct {
	Magic            uint32
	MaxInodes        uint32
	MaxDataBlocks    uint32
	InodeBitmapBlock uint32
	DataBitmapBlock  uint32
	InodeStartBlock  uint32
	DataStartBlock   uint32
}

func newSuperblock(p Params) Superblock {
	return Superblock{
		Magic:            Magic,
		MaxInodes:        p.MaxInodes,
		MaxDataBlocks:    p.MaxDataBlocks,
		InodeBitmapBlock: inodeBitmapBlock,
		DataBitmapBlock:  dataBitmapBlock,
		InodeStartBlock:  inodeStartBlock,
		DataStartBlock:   p.DataStartBlock(),
	}
}

// encode serializes the superblock into `buffer`, which must be one block.
// Bytes past the fixed fields are left as-is.
func (sb *Superblock) encode(buffer []byte) error {
	writer := bytewriter.New(buffer)
	err := binary.Write(writer, binary.LittleEndian, sb)
	if err != nil {
		return tinyfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// decodeSuperblock reads a superblock out of a raw block and verifies the
// magic number.
func decodeSuperblock(buffer []byte) (Superblock, error) {
	var sb Superblock
	err := binary.Read(bytes.NewReader(buffer), binary.LittleEndian, &sb)
	if err != nil {
		return Superblock{}, tinyfs.ErrIOFailed.Wrap(err)
	}
	if sb.Magic != Magic {
		return Superblock{}, tinyfs.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf("bad magic number: expected %#08x, got %#08x", Magic, sb.Magic))
	}
	return sb, nil
}
