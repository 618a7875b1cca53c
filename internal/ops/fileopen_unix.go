//go:build !windows

package ops

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/neoprompts/neoprompts/internal/errors"
)

// openLibraryFile opens a checked library file without following a symlink
// in its last component. Writes create a new file and fail if it exists.
func openLibraryFile(path string, access FileAccess) (*os.File, error) {
	flag := syscall.O_RDONLY
	if access == WriteLibraryFile {
		flag = syscall.O_WRONLY | syscall.O_CREAT | syscall.O_EXCL
	}
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0600)
	switch {
	case err == nil:
		return os.NewFile(uintptr(fd), path), nil
	case stderrors.Is(err, syscall.ELOOP):
		return nil, errors.NewInvalidRequest(path + " is a symlink")
	case stderrors.Is(err, syscall.ENOENT) && access == ReadLibraryFile:
		return nil, errors.NewFileNotFound(path)
	}
	return nil, &os.PathError{Op: "open", Path: path, Err: err}
}
