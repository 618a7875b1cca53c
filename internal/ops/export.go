package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/neoprompts/neoprompts/internal/config"
	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path  string // optional, default: <exports dir>/<label>-<timestamp>.json
	Label string // optional file name prefix for the default path, default: neoprompts
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path        string    `json:"path"`
	Collections int       `json:"collections"`
	Prompts     int       `json:"prompts"`
	Tags        int       `json:"tags"`
	ExportedAt  time.Time `json:"exported_at"`
}

// Export writes the whole library of the store to a JSON file.
// The file is written to a temp file first and renamed into place,
// so an existing file survives a failed export.
func Export(ctx context.Context, store storage.Adapter, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := prompt.Now()

	exportPath := input.Path
	if exportPath == "" {
		dir, err := cfg.ExportsPath()
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("locate exports directory: %w", err))
		}
		exportPath = filepath.Join(dir, ExportFileName(input.Label, now))
	}
	exportPath, err := checkLibraryFile(exportPath, WriteLibraryFile, cfg)
	if err != nil {
		return nil, err
	}

	data, err := store.ExportData(ctx)
	if err != nil {
		return nil, err
	}
	data.ExportedAt = &now
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	tempPath := exportPath + "." + strings.ToLower(ulid.Make().String()) + ".tmp"
	file, err := openLibraryFile(tempPath, WriteLibraryFile)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(append(body, '\n')); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("export path must not be a symlink")
	}

	// On Windows os.Rename fails if the destination exists. Fail and keep
	// the existing file rather than delete it first.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	collections, prompts, tags := data.Counts()
	return &ExportOutput{
		Path:        exportPath,
		Collections: collections,
		Prompts:     prompts,
		Tags:        tags,
		ExportedAt:  now,
	}, nil
}
