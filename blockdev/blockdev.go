// Package blockdev provides fixed-size block access to a disk image. All I/O
// goes through whole blocks: a read or write moves exactly one block's worth
// of bytes at offset `index * bytesPerBlock`. There is no caching; every write
// reaches the backing stream before the call returns.
//
// All block indices begin at 0.
package blockdev

import (
	"fmt"
	"io"
	"os"

	"github.com/tinyfs-go/tinyfs"
	"github.com/xaionaro-go/bytesextra"
)

// Device is a block-oriented view of an [io.ReadWriteSeeker], usually an image
// file on the host file system.
type Device struct {
	stream        io.ReadWriteSeeker
	bytesPerBlock uint
	totalBlocks   uint
}

// Create makes (or truncates) an image file sized to hold exactly `totalBlocks`
// blocks and returns a device over it.
func Create(path string, bytesPerBlock, totalBlocks uint) (*Device, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, tinyfs.ErrIOFailed.Wrap(err)
	}
	err = file.Truncate(int64(bytesPerBlock) * int64(totalBlocks))
	if err != nil {
		file.Close()
		return nil, tinyfs.ErrIOFailed.Wrap(err)
	}
	return WrapStream(file, bytesPerBlock, totalBlocks), nil
}

// Open opens an existing image file, inferring the block count from its size.
func Open(path string, bytesPerBlock uint) (*Device, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tinyfs.ErrNotFound.Wrap(err)
		}
		return nil, tinyfs.ErrIOFailed.Wrap(err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, tinyfs.ErrIOFailed.Wrap(err)
	}
	return WrapStream(file, bytesPerBlock, uint(info.Size())/bytesPerBlock), nil
}

// WrapStream creates a device over any [io.ReadWriteSeeker].
func WrapStream(stream io.ReadWriteSeeker, bytesPerBlock, totalBlocks uint) *Device {
	return &Device{
		stream:        stream,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// WrapSlice creates a device backed entirely by `storage`. Handy for tests.
func WrapSlice(storage []byte, bytesPerBlock uint) *Device {
	stream := bytesextra.NewReadWriteSeeker(storage)
	return WrapStream(stream, bytesPerBlock, uint(len(storage))/bytesPerBlock)
}

// BytesPerBlock returns the size of a single block, in bytes.
func (dev *Device) BytesPerBlock() uint {
	return dev.bytesPerBlock
}

// TotalBlocks returns the size of the device, in blocks.
func (dev *Device) TotalBlocks() uint {
	return dev.totalBlocks
}

// Size gives the size of the device, in bytes (not blocks!).
func (dev *Device) Size() int64 {
	return int64(dev.bytesPerBlock) * int64(dev.totalBlocks)
}

// seekToBlock sets the stream pointer to the beginning of a block.
func (dev *Device) seekToBlock(index uint) error {
	if index >= dev.totalBlocks {
		return tinyfs.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid block number: %d not in range [0, %d)",
				index,
				dev.totalBlocks,
			),
		)
	}
	_, err := dev.stream.Seek(int64(index)*int64(dev.bytesPerBlock), io.SeekStart)
	if err != nil {
		return tinyfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// checkBuffer rejects buffers that aren't exactly one block.
func (dev *Device) checkBuffer(buffer []byte) error {
	if uint(len(buffer)) != dev.bytesPerBlock {
		return tinyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"buffer must be exactly %d bytes, got %d",
				dev.bytesPerBlock,
				len(buffer),
			),
		)
	}
	return nil
}

// ReadBlock fills `buffer` with the contents of the block at `index`. The
// buffer must be exactly one block in size.
func (dev *Device) ReadBlock(index uint, buffer []byte) error {
	if err := dev.checkBuffer(buffer); err != nil {
		return err
	}
	if err := dev.seekToBlock(index); err != nil {
		return err
	}

	n, err := io.ReadFull(dev.stream, buffer)
	if err != nil {
		return tinyfs.ErrIOFailed.WithMessage(
			fmt.Sprintf(
				"short read on block %d: expected %d bytes, got %d",
				index,
				dev.bytesPerBlock,
				n,
			),
		)
	}
	return nil
}

// WriteBlock writes `buffer` to the block at `index`. The buffer must be
// exactly one block in size.
func (dev *Device) WriteBlock(index uint, buffer []byte) error {
	if err := dev.checkBuffer(buffer); err != nil {
		return err
	}
	if err := dev.seekToBlock(index); err != nil {
		return err
	}

	n, err := dev.stream.Write(buffer)
	if err != nil {
		return tinyfs.ErrIOFailed.Wrap(err)
	}
	if uint(n) != dev.bytesPerBlock {
		return tinyfs.ErrIOFailed.WithMessage(
			fmt.Sprintf(
				"short write on block %d: expected %d bytes, wrote %d",
				index,
				dev.bytesPerBlock,
				n,
			),
		)
	}
	return nil
}

// Flush forces buffered writes in the backing stream to stable storage, for
// streams that support it.
func (dev *Device) Flush() error {
	if file, ok := dev.stream.(*os.File); ok {
		err := file.Sync()
		if err != nil {
			return tinyfs.ErrIOFailed.Wrap(err)
		}
	}
	return nil
}

// Close flushes and releases the backing stream if it's closable. The device
// must not be used afterwards.
func (dev *Device) Close() error {
	err := dev.Flush()
	if closer, ok := dev.stream.(io.Closer); ok {
		cerr := closer.Close()
		if err == nil && cerr != nil {
			err = tinyfs.ErrIOFailed.Wrap(cerr)
		}
	}
	return err
}
