package tfs

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyfs-go/tinyfs"
)

// File content is addressed in two tiers. Logical block L maps to Direct[L]
// for L < NumDirectPointers; past that, the remainder indexes into pages of
// block pointers named by the Indirect slots. Each page is one block of
// little-endian uint32 absolute indices.

// pointersPerPage gives the fan-out of one indirect page.
func (fs *FileSystem) pointersPerPage() uint32 {
	return fs.params.BlockSize / 4
}

// maxFileBlocks is the number of logical blocks a single file can address.
func (fs *FileSystem) maxFileBlocks() uint32 {
	return NumDirectPointers + NumIndirectPointers*fs.pointersPerPage()
}

// MaxFileSize reports the largest byte size a single file can reach.
func (fs *FileSystem) MaxFileSize() int64 {
	return int64(fs.maxFileBlocks()) * int64(fs.params.BlockSize)
}

// blockForOffset resolves logical block `logical` of `node` to an absolute
// disk block. With `allocate` set, missing blocks (and indirect pages) are
// allocated and zeroed on the way; otherwise a missing block resolves to 0,
// which readers treat as a hole.
func (fs *FileSystem) blockForOffset(node *Inode, logical uint32, allocate bool) (uint32, error) {
	if logical >= fs.maxFileBlocks() {
		return 0, tinyfs.ErrFileTooLarge.WithMessage(
			fmt.Sprintf("logical block %d exceeds the addressable maximum %d",
				logical, fs.maxFileBlocks()))
	}

	if logical < NumDirectPointers {
		if node.Direct[logical] == 0 && allocate {
			block, err := fs.allocZeroedBlock()
			if err != nil {
				return 0, err
			}
			node.Direct[logical] = block
			node.NumBlocks++
		}
		return node.Direct[logical], nil
	}

	remainder := logical - NumDirectPointers
	page := remainder / fs.pointersPerPage()
	slot := remainder % fs.pointersPerPage()

	if node.Indirect[page] == 0 {
		if !allocate {
			return 0, nil
		}
		block, err := fs.allocZeroedBlock()
		if err != nil {
			return 0, err
		}
		node.Indirect[page] = block
		node.NumBlocks++
	}

	buffer := fs.newBlockBuffer()
	err := fs.dev.ReadBlock(uint(node.Indirect[page]), buffer)
	if err != nil {
		return 0, err
	}

	target := binary.LittleEndian.Uint32(buffer[slot*4:])
	if target == 0 && allocate {
		target, err = fs.allocZeroedBlock()
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(buffer[slot*4:], target)
		err = fs.dev.WriteBlock(uint(node.Indirect[page]), buffer)
		if err != nil {
			return 0, err
		}
		node.NumBlocks++
	}
	return target, nil
}

// readFileAt copies up to len(buffer) bytes of content starting at `offset`
// into `buffer` and returns the count. Reads stop at EOF; holes read as
// zeroes.
func (fs *FileSystem) readFileAt(node *Inode, buffer []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, tinyfs.ErrInvalidArgument.WithMessage("negative offset")
	}
	if offset >= node.Size {
		return 0, nil
	}

	remaining := node.Size - offset
	if int64(len(buffer)) < remaining {
		remaining = int64(len(buffer))
	}

	blockSize := int64(fs.params.BlockSize)
	scratch := fs.newBlockBuffer()
	copied := int64(0)

	for copied < remaining {
		position := offset + copied
		logical := uint32(position / blockSize)
		within := position % blockSize

		span := blockSize - within
		if span > remaining-copied {
			span = remaining - copied
		}
		chunk := buffer[copied : copied+span]

		block, err := fs.blockForOffset(node, logical, false)
		if err != nil {
			return int(copied), err
		}
		if block == 0 {
			// Hole inside EOF: reads as zeroes.
			for i := range chunk {
				chunk[i] = 0
			}
		} else {
			err = fs.dev.ReadBlock(uint(block), scratch)
			if err != nil {
				return int(copied), err
			}
			copy(chunk, scratch[within:within+span])
		}
		copied += span
	}
	return int(copied), nil
}

// writeFileAt stores `buffer` into the file starting at `offset`, allocating
// blocks on the way, and returns the count written. The size grows by however
// many bytes land past the old EOF; the inode is persisted once at the end.
func (fs *FileSystem) writeFileAt(node *Inode, buffer []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, tinyfs.ErrInvalidArgument.WithMessage("negative offset")
	}
	if offset+int64(len(buffer)) > fs.MaxFileSize() {
		return 0, tinyfs.ErrFileTooLarge.WithMessage(
			fmt.Sprintf("write [%d, %d) exceeds the maximum file size %d",
				offset, offset+int64(len(buffer)), fs.MaxFileSize()))
	}

	blockSize := int64(fs.params.BlockSize)
	scratch := fs.newBlockBuffer()
	written := int64(0)
	total := int64(len(buffer))

	for written < total {
		position := offset + written
		logical := uint32(position / blockSize)
		within := position % blockSize

		span := blockSize - within
		if span > total-written {
			span = total - written
		}

		block, err := fs.blockForOffset(node, logical, true)
		if err != nil {
			return int(written), err
		}

		// Read-modify-write the intra-block slice.
		err = fs.dev.ReadBlock(uint(block), scratch)
		if err != nil {
			return int(written), err
		}
		copy(scratch[within:within+span], buffer[written:written+span])
		err = fs.dev.WriteBlock(uint(block), scratch)
		if err != nil {
			return int(written), err
		}
		written += span
	}

	if end := offset + written; end > node.Size {
		node.Size = end
	}
	node.touch()
	err := fs.writeInode(node)
	if err != nil {
		return int(written), err
	}
	return int(written), nil
}
