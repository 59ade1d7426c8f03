package tinyfs

import "os"

////////////////////////////////////////////////////////////////////////////////
// File attribute flags
//
// These are the standard POSIX mode bits, as stored in the Mode field of an
// on-disk inode.

const (
	S_IXOTH = 1 << iota
	S_IWOTH = 1 << iota
	S_IROTH = 1 << iota
	S_IXGRP = 1 << iota
	S_IWGRP = 1 << iota
	S_IRGRP = 1 << iota
	S_IXUSR = 1 << iota
	S_IWUSR = 1 << iota
	S_IRUSR = 1 << iota
	S_ISVTX = 1 << iota
	S_ISGID = 1 << iota
	S_ISUID = 1 << iota
)

const S_IFDIR = 0x4000
const S_IFREG = 0x8000
const S_IFMT = 0xf000

const S_IRWXO = S_IXOTH | S_IWOTH | S_IROTH
const S_IRWXG = S_IXGRP | S_IWGRP | S_IRGRP
const S_IRWXU = S_IXUSR | S_IWUSR | S_IRUSR

const permMask = 0o777 | S_ISVTX | S_ISGID | S_ISUID

// FileModeFromRaw converts an on-disk mode value to an [os.FileMode].
func FileModeFromRaw(raw uint16) os.FileMode {
	mode := os.FileMode(raw & permMask)
	if raw&S_IFMT == S_IFDIR {
		mode |= os.ModeDir
	}
	return mode
}

// RawModeFromFileMode converts an [os.FileMode] to its on-disk representation.
// Anything that isn't a directory is stored as a regular file; TFS has no
// other object types.
func RawModeFromFileMode(mode os.FileMode) uint16 {
	raw := uint16(mode.Perm())
	if mode&os.ModeSticky != 0 {
		raw |= S_ISVTX
	}
	if mode&os.ModeSetgid != 0 {
		raw |= S_ISGID
	}
	if mode&os.ModeSetuid != 0 {
		raw |= S_ISUID
	}
	if mode.IsDir() {
		raw |= S_IFDIR
	} else {
		raw |= S_IFREG
	}
	return raw
}
