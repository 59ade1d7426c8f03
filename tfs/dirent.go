package tfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/tinyfs-go/tinyfs"
)

// DirentSize is the on-disk size of one directory entry; a block holds
// BlockSize/DirentSize of them.
const DirentSize = 32

// MaxNameLength is the longest entry name, excluding the NUL terminator.
const MaxNameLength = 28

// RawDirent is the on-disk layout of a directory entry. Name is NUL-terminated.
type RawDirent struct {
	Ino   uint16
	Valid uint8
	Name  [DirentSize - 3]byte
}

// Dirent is a decoded live directory entry.
type Dirent struct {
	Ino  uint16
	Name string
}

func direntName(name string) [DirentSize - 3]byte {
	var fixed [DirentSize - 3]byte
	copy(fixed[:], name)
	return fixed
}

func (d *RawDirent) name() string {
	end := bytes.IndexByte(d.Name[:], 0)
	if end < 0 {
		end = len(d.Name)
	}
	return string(d.Name[:end])
}

// getDirent decodes entry `slot` from a raw directory block.
func getDirent(block []byte, slot uint32) RawDirent {
	var raw RawDirent
	reader := bytes.NewReader(block[slot*DirentSize : (slot+1)*DirentSize])
	binary.Read(reader, binary.LittleEndian, &raw)
	return raw
}

// putDirent encodes `entry` into slot `slot` of a raw directory block.
func putDirent(block []byte, slot uint32, entry RawDirent) {
	var encoded bytes.Buffer
	binary.Write(&encoded, binary.LittleEndian, &entry)
	copy(block[slot*DirentSize:(slot+1)*DirentSize], encoded.Bytes())
}

func (fs *FileSystem) direntsPerBlock() uint32 {
	return fs.params.BlockSize / DirentSize
}

// checkEntryName rejects names that can't be stored in an entry slot.
func checkEntryName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return tinyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid entry name %q", name))
	}
	if len(name) > MaxNameLength {
		return tinyfs.ErrNameTooLong.WithMessage(
			fmt.Sprintf("%q exceeds %d bytes", name, MaxNameLength))
	}
	return nil
}

// dirLookup scans the directory's data blocks for a live entry named `name`.
// Directories use only direct pointers, packed from slot 0; the first zero
// pointer ends the scan.
func (fs *FileSystem) dirLookup(dir *Inode, name string) (Dirent, error) {
	buffer := fs.newBlockBuffer()
	for _, block := range dir.Direct {
		if block == 0 {
			break
		}
		err := fs.dev.ReadBlock(uint(block), buffer)
		if err != nil {
			return Dirent{}, err
		}
		for slot := uint32(0); slot < fs.direntsPerBlock(); slot++ {
			raw := getDirent(buffer, slot)
			if raw.Valid == 0 {
				continue
			}
			if raw.name() == name {
				return Dirent{Ino: raw.Ino, Name: name}, nil
			}
		}
	}
	return Dirent{}, tinyfs.ErrNotFound.WithMessage(
		fmt.Sprintf("no entry %q in directory inode %d", name, dir.Ino))
}

// dirInsert adds an entry for `childIno` under `name`. The entry goes into the
// first dead slot of an existing block, or slot 0 of a freshly allocated block
// if every existing slot is live. The parent's size grows by one entry and the
// mutated block and parent inode are written back.
func (fs *FileSystem) dirInsert(dir *Inode, childIno uint16, name string) error {
	if err := checkEntryName(name); err != nil {
		return err
	}

	_, err := fs.dirLookup(dir, name)
	if err == nil {
		return tinyfs.ErrExists.WithMessage(
			fmt.Sprintf("entry %q already exists in directory inode %d", name, dir.Ino))
	} else if !isNotFound(err) {
		return err
	}

	entry := RawDirent{Ino: childIno, Valid: 1, Name: direntName(name)}
	buffer := fs.newBlockBuffer()

	for i := range dir.Direct {
		if dir.Direct[i] == 0 {
			// Every earlier block is full; grow the directory by one block.
			block, err := fs.allocZeroedBlock()
			if err != nil {
				return err
			}
			dir.Direct[i] = block
			if i+1 < len(dir.Direct) {
				dir.Direct[i+1] = 0
			}
			dir.NumBlocks++

			// A fresh buffer here; `buffer` still holds the previous block.
			fresh := fs.newBlockBuffer()
			putDirent(fresh, 0, entry)
			return fs.commitDirentInsert(dir, block, fresh)
		}

		err := fs.dev.ReadBlock(uint(dir.Direct[i]), buffer)
		if err != nil {
			return err
		}
		for slot := uint32(0); slot < fs.direntsPerBlock(); slot++ {
			if getDirent(buffer, slot).Valid != 0 {
				continue
			}
			putDirent(buffer, slot, entry)
			return fs.commitDirentInsert(dir, dir.Direct[i], buffer)
		}
	}

	return tinyfs.ErrNoSpaceOnDevice.WithMessage(
		fmt.Sprintf("directory inode %d is full", dir.Ino))
}

// commitDirentInsert persists the mutated directory block, then the parent
// inode describing it.
func (fs *FileSystem) commitDirentInsert(dir *Inode, block uint32, buffer []byte) error {
	err := fs.dev.WriteBlock(uint(block), buffer)
	if err != nil {
		return err
	}
	dir.Size += DirentSize
	dir.touch()
	return fs.writeInode(dir)
}

// dirDelete marks the entry named `name` dead and shrinks the parent's size.
// Emptied blocks are not reclaimed; the pointer slot stays.
func (fs *FileSystem) dirDelete(dir *Inode, name string) error {
	buffer := fs.newBlockBuffer()
	for _, block := range dir.Direct {
		if block == 0 {
			break
		}
		err := fs.dev.ReadBlock(uint(block), buffer)
		if err != nil {
			return err
		}
		for slot := uint32(0); slot < fs.direntsPerBlock(); slot++ {
			raw := getDirent(buffer, slot)
			if raw.Valid == 0 || raw.name() != name {
				continue
			}

			raw.Valid = 0
			putDirent(buffer, slot, raw)
			err = fs.dev.WriteBlock(uint(block), buffer)
			if err != nil {
				return err
			}

			dir.Size -= DirentSize
			dir.touch()
			return fs.writeInode(dir)
		}
	}
	return tinyfs.ErrNotFound.WithMessage(
		fmt.Sprintf("no entry %q in directory inode %d", name, dir.Ino))
}

// liveEntries returns every live entry of the directory in entry order.
func (fs *FileSystem) liveEntries(dir *Inode) ([]Dirent, error) {
	var entries []Dirent
	buffer := fs.newBlockBuffer()
	for _, block := range dir.Direct {
		if block == 0 {
			break
		}
		err := fs.dev.ReadBlock(uint(block), buffer)
		if err != nil {
			return nil, err
		}
		for slot := uint32(0); slot < fs.direntsPerBlock(); slot++ {
			raw := getDirent(buffer, slot)
			if raw.Valid == 0 {
				continue
			}
			entries = append(entries, Dirent{Ino: raw.Ino, Name: raw.name()})
		}
	}
	return entries, nil
}
