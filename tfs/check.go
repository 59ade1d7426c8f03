package tfs

import (
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/tinyfs-go/tinyfs"
)

// Check audits the mounted image against the format's structural invariants:
//
//  1. An inode bitmap bit is set exactly when the inode record is live.
//  2. A data bitmap bit is set exactly when some live inode reaches the block
//     through a direct pointer, an indirect page, or a page entry.
//  3. No directory holds two live entries with the same name.
//  4. No file exceeds the addressable maximum size.
//
// Every violation found is reported; the result wraps them all.
func (fs *FileSystem) Check() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var result *multierror.Error

	reachable := make(map[uint32]uint16)
	buffer := fs.newBlockBuffer()

	for i := uint32(0); i < fs.sb.MaxInodes; i++ {
		node, err := fs.readInode(uint16(i))
		if err != nil {
			return err
		}

		if fs.inodeBitmap.Get(int(i)) != node.Valid {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d: bitmap bit %t but valid flag %t",
				i, fs.inodeBitmap.Get(int(i)), node.Valid))
		}
		if !node.Valid {
			continue
		}

		if node.Size > fs.MaxFileSize() {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d: size %d exceeds the addressable maximum %d",
				i, node.Size, fs.MaxFileSize()))
		}

		claim := func(block uint32) {
			if owner, taken := reachable[block]; taken {
				result = multierror.Append(result, fmt.Errorf(
					"block %d reachable from both inode %d and inode %d",
					block, owner, node.Ino))
				return
			}
			reachable[block] = node.Ino
		}

		// Sparse files can hold zero pointers anywhere, so every slot is
		// visited rather than stopping at the first hole.
		for _, block := range node.Direct {
			if block == 0 {
				continue
			}
			claim(block)
		}
		for _, page := range node.Indirect {
			if page == 0 {
				continue
			}
			claim(page)
			err = fs.dev.ReadBlock(uint(page), buffer)
			if err != nil {
				return err
			}
			for slot := uint32(0); slot < fs.pointersPerPage(); slot++ {
				block := binary.LittleEndian.Uint32(buffer[slot*4:])
				if block != 0 {
					claim(block)
				}
			}
		}

		if node.IsDirectory() {
			entries, err := fs.liveEntries(&node)
			if err != nil {
				return err
			}
			seen := make(map[string]bool, len(entries))
			for _, entry := range entries {
				if seen[entry.Name] {
					result = multierror.Append(result, fmt.Errorf(
						"directory inode %d: duplicate entry %q", i, entry.Name))
				}
				seen[entry.Name] = true
			}
		}
	}

	for j := uint32(0); j < fs.sb.MaxDataBlocks; j++ {
		_, isReachable := reachable[fs.sb.DataStartBlock+j]
		if fs.dataBitmap.Get(int(j)) != isReachable {
			result = multierror.Append(result, fmt.Errorf(
				"data block %d (absolute %d): bitmap bit %t but reachable %t",
				j, fs.sb.DataStartBlock+j, fs.dataBitmap.Get(int(j)), isReachable))
		}
	}

	err := result.ErrorOrNil()
	if err != nil {
		return tinyfs.ErrFileSystemCorrupted.Wrap(err)
	}
	return nil
}
