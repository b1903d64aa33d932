package nodekit

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotExist       = errors.New("path does not exist")
	ErrExist          = errors.New("path already exists")
	ErrNotEmpty       = errors.New("directory not empty")
	ErrNotDir         = errors.New("not a directory")
	ErrIsDir          = errors.New("is a directory")
	ErrCorruptArchive = errors.New("archive corrupt")
	ErrArchiveLimit   = errors.New("archive exceeds limits")
	ErrNotSupported   = errors.New("operation not supported by backend")
	ErrBackend        = errors.New("backend failure")
	ErrInvalidPath    = errors.New("invalid path")
	ErrReadOnly       = errors.New("backend is read-only")
	ErrPermission     = errors.New("permission denied")
)

// PathError records an error and the operation and path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// NewPathError returns a *PathError for op on path.
func NewPathError(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}

// WrapPathErr wraps err in a *PathError unless it is nil or already one.
func WrapPathErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PathError
	if errors.As(err, &pe) {
		return err
	}
	return &PathError{Op: op, Path: path, Err: err}
}

// BackendError classifies err as a backend failure for op on path. Errors
// that already match one of the package sentinels keep their class.
func BackendError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if classified(err) {
		return WrapPathErr(op, path, err)
	}
	return &PathError{Op: op, Path: path, Err: fmt.Errorf("%w: %w", ErrBackend, err)}
}

func classified(err error) bool {
	for _, sentinel := range []error{
		ErrNotExist, ErrExist, ErrNotEmpty, ErrNotDir, ErrIsDir,
		ErrCorruptArchive, ErrArchiveLimit, ErrNotSupported, ErrBackend,
		ErrInvalidPath, ErrReadOnly, ErrPermission,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsNotExist reports whether err indicates that a path does not exist
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// IsExist reports whether err indicates that a path already exists
func IsExist(err error) bool {
	return errors.Is(err, ErrExist)
}

// IsNotEmpty reports whether err indicates a non-empty directory
func IsNotEmpty(err error) bool {
	return errors.Is(err, ErrNotEmpty)
}

// IsCorruptArchive reports whether err indicates a malformed archive
func IsCorruptArchive(err error) bool {
	return errors.Is(err, ErrCorruptArchive)
}

// IsNotSupported reports whether err indicates an unsupported operation
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// IsPermission reports whether err indicates that permission is denied
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission) || errors.Is(err, ErrReadOnly)
}
