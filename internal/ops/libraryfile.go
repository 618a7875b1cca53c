package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/neoprompts/neoprompts/internal/config"
	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/mode"
)

// ExportExt is the extension of every library file.
const ExportExt = ".json"

// DefaultExportLabel prefixes default export file names.
const DefaultExportLabel = "neoprompts"

const exportStampLayout = "2006-01-02T150405"

// FileAccess is what Export or Import is about to do with a library file.
type FileAccess int

const (
	ReadLibraryFile FileAccess = iota
	WriteLibraryFile
)

// stateFiles live next to exports in ~/.neoprompts and are never library files.
var stateFiles = []string{config.FileName, mode.FileName}

// ExportFileName is the default name of an export: <label>-<timestamp>.json.
// The label is lowercased and reduced to letters, digits and single dashes.
func ExportFileName(label string, at time.Time) string {
	return exportLabel(label) + "-" + at.UTC().Format(exportStampLayout) + ExportExt
}

// ParseExportFileName reverses ExportFileName. ok is false for names that
// were not produced by it.
func ParseExportFileName(name string) (label string, at time.Time, ok bool) {
	stem, found := strings.CutSuffix(name, ExportExt)
	if !found || len(stem) < len(exportStampLayout)+2 {
		return "", time.Time{}, false
	}
	cut := len(stem) - len(exportStampLayout)
	if stem[cut-1] != '-' {
		return "", time.Time{}, false
	}
	at, err := time.Parse(exportStampLayout, stem[cut:])
	if err != nil {
		return "", time.Time{}, false
	}
	label = stem[:cut-1]
	if label != exportLabel(label) {
		return "", time.Time{}, false
	}
	return label, at, true
}

func exportLabel(label string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(label) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return DefaultExportLabel
	}
	return b.String()
}

// ExportFile is an export found in the exports directory.
type ExportFile struct {
	Path       string    `json:"path"`
	Label      string    `json:"label"`
	ExportedAt time.Time `json:"exported_at"`
}

// ListExports returns the exports in the configured exports directory,
// newest first. Files not named by ExportFileName are skipped.
func ListExports(cfg *config.Config) ([]ExportFile, error) {
	dir, err := cfg.ExportsPath()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("locate exports directory: %w", err))
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("read exports directory: %w", err))
	}

	var out []ExportFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		label, at, ok := ParseExportFileName(e.Name())
		if !ok {
			continue
		}
		out = append(out, ExportFile{Path: filepath.Join(dir, e.Name()), Label: label, ExportedAt: at})
	}
	slices.SortStableFunc(out, func(a, b ExportFile) int { return b.ExportedAt.Compare(a.ExportedAt) })
	return out, nil
}

// LatestExport returns the newest export, or FILE_NOT_FOUND when there is none.
func LatestExport(cfg *config.Config) (*ExportFile, error) {
	files, err := ListExports(cfg)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		dir, _ := cfg.ExportsPath()
		return nil, errors.NewFileNotFound(filepath.Join(dir, "*"+ExportExt))
	}
	return &files[0], nil
}

// checkLibraryFile decides whether path may be read by Import or written by
// Export, and returns it made absolute.
//
// A library file is a .json file sitting directly in the exports directory
// or in one of cfg.AllowedPaths; AllowUnsafePaths lifts the directory rule
// only. Symlinks, ".." segments and the neoprompts state files are always
// refused. Files in subdirectories are refused so that no directory on the
// way can be swapped between this check and the O_NOFOLLOW open.
func checkLibraryFile(path string, access FileAccess, cfg *config.Config) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	if hasDotDot(path) {
		return "", errors.NewInvalidRequest("path must not contain '..'")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	name := filepath.Base(abs)
	if !strings.EqualFold(filepath.Ext(name), ExportExt) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("library files must end in %s, got %q", ExportExt, name))
	}
	if slices.Contains(stateFiles, strings.ToLower(name)) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s is a neoprompts state file, not a library file", name))
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		dirs, err := libraryDirs(cfg)
		if err != nil {
			return "", err
		}
		parent := filepath.Dir(abs)
		if !slices.Contains(dirs, parent) {
			return "", errors.NewInvalidRequest(
				fmt.Sprintf("library files must sit directly in one of %v", dirs))
		}
		if isSymlink(parent) {
			return "", errors.NewInvalidRequest("library directory must not be a symlink")
		}
	}

	info, err := os.Lstat(abs)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s is a symlink", name))
	case err == nil && info.IsDir():
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s is a directory", name))
	case os.IsNotExist(err) && access == ReadLibraryFile:
		return "", errors.NewFileNotFound(path)
	}
	return abs, nil
}

// libraryDirs lists the directories library files may live in, with
// symlinked entries resolved to their targets.
func libraryDirs(cfg *config.Config) ([]string, error) {
	exports, err := cfg.ExportsPath()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("locate exports directory: %w", err))
	}
	dirs := []string{exports}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, filepath.Clean(p))
			}
		}
	}
	for i, d := range dirs {
		if !isSymlink(d) {
			continue
		}
		resolved, err := filepath.EvalSymlinks(d)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve allowed path %s: %v", d, err))
		}
		dirs[i] = resolved
	}
	return dirs, nil
}

func hasDotDot(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	return slices.Contains(parts, "..")
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}
