package ops

import (
	"context"
	"fmt"

	"github.com/neoprompts/neoprompts/internal/config"
	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path   string // required unless Latest is set
	Latest bool   // import the newest file in the exports directory
	DryRun bool   // parse and validate only
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Path        string `json:"path"`
	Collections int    `json:"collections"`
	Prompts     int    `json:"prompts"`
	Tags        int    `json:"tags"`
	DryRun      bool   `json:"dry_run,omitempty"`
}

// Import replaces the store's collections, prompts, and tags with the
// contents of an export file. The document is fully parsed and validated
// before anything is written; a malformed file leaves the store untouched.
func Import(ctx context.Context, store storage.Adapter, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	path := input.Path
	if path == "" && input.Latest {
		latest, err := LatestExport(cfg)
		if err != nil {
			return nil, err
		}
		path = latest.Path
	}
	path, err := checkLibraryFile(path, ReadLibraryFile, cfg)
	if err != nil {
		return nil, err
	}

	file, err := openLibraryFile(path, ReadLibraryFile)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	data, err := prompt.ParseExport(file)
	if err != nil {
		return nil, err
	}

	collections, prompts, tags := data.Counts()
	out := &ImportOutput{Path: path, Collections: collections, Prompts: prompts, Tags: tags, DryRun: input.DryRun}
	if input.DryRun {
		return out, nil
	}
	if err := store.ImportData(ctx, data); err != nil {
		return nil, err
	}
	return out, nil
}
