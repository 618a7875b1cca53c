package ops

import (
	"context"
	"fmt"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// BulkDeleteInput contains parameters for the BulkDelete operation.
type BulkDeleteInput struct {
	Filter PromptFilter
}

// BulkDeleteOutput contains the result of the BulkDelete operation.
type BulkDeleteOutput struct {
	Deleted int      `json:"deleted"`
	IDs     []string `json:"ids"`
	Message string   `json:"message"`
}

// BulkDelete deletes every prompt matching the filter.
// At least one filter must be provided (safety guard).
func BulkDelete(ctx context.Context, store storage.Adapter, input BulkDeleteInput) (*BulkDeleteOutput, error) {
	if input.Filter.IsEmpty() {
		return nil, errors.NewInvalidRequest("at least one filter is required")
	}

	targets, err := filterPrompts(ctx, store, input.Filter)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(targets))
	for _, p := range targets {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("bulk delete")
		}
		if err := store.DeletePrompt(ctx, p.ID); err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}

	return &BulkDeleteOutput{
		Deleted: len(ids),
		IDs:     ids,
		Message: fmt.Sprintf("Deleted %d prompts", len(ids)),
	}, nil
}
