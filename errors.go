package tinyfs

import (
	"fmt"
	"syscall"
)

// DriverError is a wrapper around POSIX errno codes, with a customizable error
// message. Hosts that speak the classic negative-integer convention can recover
// the code with [DriverError.Errno] or the package-level [Errno] helper.
type DriverError struct {
	errnoCode syscall.Errno
	message   string
	cause     error
}

// Error implements the `error` interface. When called, it returns a string
// describing the error.
func (e *DriverError) Error() string {
	return e.message
}

// Errno returns the POSIX error code this error corresponds to.
func (e *DriverError) Errno() syscall.Errno {
	return e.errnoCode
}

func (e *DriverError) Unwrap() error {
	return e.cause
}

// WithMessage returns a new error that appends `message` to this error's text.
// The original error is set as the parent, so [errors.Is] still matches the
// base error kind.
func (e *DriverError) WithMessage(message string) *DriverError {
	return &DriverError{
		errnoCode: e.errnoCode,
		message:   fmt.Sprintf("%s: %s", e.message, message),
		cause:     e,
	}
}

// Wrap returns a new error combining this error's text with `err`. Both this
// error and `err` remain reachable through the unwrap chain.
func (e *DriverError) Wrap(err error) *DriverError {
	return &DriverError{
		errnoCode: e.errnoCode,
		message:   fmt.Sprintf("%s: %s", e.message, err.Error()),
		cause:     &wrappedPair{base: e, inner: err},
	}
}

// wrappedPair chains two parents so that errors.Is matches either one.
type wrappedPair struct {
	base  *DriverError
	inner error
}

func (w *wrappedPair) Error() string {
	return w.base.Error()
}

func (w *wrappedPair) Is(target error) bool {
	return target == error(w.base)
}

func (w *wrappedPair) Unwrap() error {
	return w.inner
}

// NewDriverError creates a new error kind from a POSIX error code with a custom
// message.
func NewDriverError(errnoCode syscall.Errno, message string) *DriverError {
	return &DriverError{
		errnoCode: errnoCode,
		message:   message,
	}
}

// Errno extracts the POSIX error code from `err`, walking the unwrap chain if
// necessary. Errors with no embedded code report EIO.
func Errno(err error) syscall.Errno {
	for err != nil {
		if derr, ok := err.(*DriverError); ok {
			return derr.errnoCode
		}
		if errno, ok := err.(syscall.Errno); ok {
			return errno
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return syscall.EIO
}

var ErrArgumentOutOfRange = NewDriverError(syscall.ERANGE, "numerical argument out of domain")
var ErrDirectoryNotEmpty = NewDriverError(syscall.ENOTEMPTY, "directory not empty")
var ErrExists = NewDriverError(syscall.EEXIST, "file exists")
var ErrFileSystemCorrupted = NewDriverError(syscall.EIO, "structure needs cleaning")
var ErrFileTooLarge = NewDriverError(syscall.EFBIG, "file too large")
var ErrInvalidArgument = NewDriverError(syscall.EINVAL, "invalid argument")
var ErrInvalidFileSystem = NewDriverError(syscall.EINVAL, "wrong medium type")
var ErrIOFailed = NewDriverError(syscall.EIO, "input/output error")
var ErrIsADirectory = NewDriverError(syscall.EISDIR, "is a directory")
var ErrNameTooLong = NewDriverError(syscall.ENAMETOOLONG, "file name too long")
var ErrNoSpaceOnDevice = NewDriverError(syscall.ENOSPC, "no space left on device")
var ErrNotADirectory = NewDriverError(syscall.ENOTDIR, "not a directory")
var ErrNotFound = NewDriverError(syscall.ENOENT, "no such file or directory")
var ErrNotSupported = NewDriverError(syscall.ENOTSUP, "operation not supported")
