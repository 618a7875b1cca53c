//go:build windows

package ops

import (
	"os"

	"github.com/neoprompts/neoprompts/internal/errors"
)

// openLibraryFile opens a checked library file. Windows has no O_NOFOLLOW;
// checkLibraryFile has already refused symlinks.
func openLibraryFile(path string, access FileAccess) (*os.File, error) {
	flag := os.O_RDONLY
	if access == WriteLibraryFile {
		flag = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flag, 0600)
	if os.IsNotExist(err) && access == ReadLibraryFile {
		return nil, errors.NewFileNotFound(path)
	}
	return f, err
}
