package ops

import (
	"context"
	"fmt"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// BulkUpdateInput contains parameters for the BulkUpdate operation.
type BulkUpdateInput struct {
	Filter PromptFilter
	// Updates (set_ prefix to distinguish from filters)
	SetCollectionID *string // empty string: uncategorized
	SetFavorite     *bool
	AddTags         []string
	RemoveTags      []string
}

// BulkUpdateOutput contains the result of the BulkUpdate operation.
type BulkUpdateOutput struct {
	Updated int    `json:"updated"`
	Message string `json:"message"`
}

func (in BulkUpdateInput) hasAnyUpdate() bool {
	return in.SetCollectionID != nil || in.SetFavorite != nil || len(in.AddTags) > 0 || len(in.RemoveTags) > 0
}

// BulkUpdate applies the same change to every prompt matching the filter.
// At least one filter and one update field must be provided (safety guard).
// Prompts the change would leave as they are are not written.
func BulkUpdate(ctx context.Context, store storage.Adapter, input BulkUpdateInput) (*BulkUpdateOutput, error) {
	if input.Filter.IsEmpty() {
		return nil, errors.NewInvalidRequest("at least one filter is required")
	}
	if !input.hasAnyUpdate() {
		return nil, errors.NewInvalidRequest("at least one update field is required")
	}

	targets, err := filterPrompts(ctx, store, input.Filter)
	if err != nil {
		return nil, err
	}
	addTags := prompt.DedupeTags(input.AddTags)
	if err := ensureTags(ctx, store, addTags); err != nil {
		return nil, err
	}
	setCollection := cleanOptionalString(input.SetCollectionID)

	updated := 0
	for _, p := range targets {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("bulk update")
		}
		patch := bulkPatch(p, setCollection, input.SetFavorite, addTags, input.RemoveTags)
		if patch.IsEmpty() {
			continue
		}
		if err := store.UpdatePrompt(ctx, p.ID, patch); err != nil {
			return nil, err
		}
		updated++
	}

	return &BulkUpdateOutput{
		Updated: updated,
		Message: fmt.Sprintf("Updated %d prompts", updated),
	}, nil
}

// bulkPatch computes the patch that brings p in line with the requested
// change, leaving out fields that already match.
func bulkPatch(p prompt.Prompt, setCollection *string, setFavorite *bool, add, remove []string) prompt.PromptPatch {
	var patch prompt.PromptPatch

	if setCollection != nil {
		switch {
		case *setCollection == "" && p.CollectionID != nil:
			patch.ClearCollection = true
		case *setCollection != "" && !p.InCollection(*setCollection):
			patch.CollectionID = setCollection
		}
	}
	if setFavorite != nil && *setFavorite != p.IsFavorite {
		patch.IsFavorite = setFavorite
	}

	tags := p.Tags
	changed := false
	for _, name := range remove {
		var removed bool
		tags, removed = prompt.RemoveTag(tags, name)
		changed = changed || removed
	}
	for _, name := range add {
		if !prompt.HasTag(tags, name) {
			tags = append(append([]string{}, tags...), name)
			changed = true
		}
	}
	if changed {
		patch.Tags = &tags
	}
	return patch
}
