package ops

import (
	"context"
	"strings"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/placeholder"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// PromptDetail is a prompt with the placeholders found in its template.
type PromptDetail struct {
	prompt.Prompt
	Variables []string `json:"variables"`
}

func detail(p *prompt.Prompt) *PromptDetail {
	return &PromptDetail{Prompt: *p, Variables: placeholder.Names(p.Template)}
}

// CreatePromptInput contains parameters for the CreatePrompt operation.
type CreatePromptInput struct {
	Title        string // required
	Template     string
	Description  string
	Tags         []string // unknown names are registered as tags
	CollectionID *string  // nil or empty: uncategorized
	IsFavorite   bool
}

// CreatePrompt adds a prompt with a zero copy count.
func CreatePrompt(ctx context.Context, store storage.Adapter, input CreatePromptInput) (*PromptDetail, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errors.NewInvalidRequest("title is required")
	}
	tags := prompt.DedupeTags(input.Tags)
	if err := ensureTags(ctx, store, tags); err != nil {
		return nil, err
	}

	p, err := store.AddPrompt(ctx, prompt.Prompt{
		Title:        title,
		Template:     strings.TrimSpace(input.Template),
		Description:  strings.TrimSpace(input.Description),
		Tags:         tags,
		CollectionID: cleanOptionalString(input.CollectionID),
		IsFavorite:   input.IsFavorite,
	})
	if err != nil {
		return nil, err
	}
	return detail(p), nil
}

// GetPrompt returns one prompt by id.
func GetPrompt(ctx context.Context, store storage.Adapter, id string) (*PromptDetail, error) {
	id, err := requireID("prompt", id)
	if err != nil {
		return nil, err
	}
	p, err := store.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail(p), nil
}

// UpdatePromptInput contains parameters for the UpdatePrompt operation.
type UpdatePromptInput struct {
	ID              string // required
	Title           *string
	Template        *string
	Description     *string
	Tags            *[]string // replaces the list; unknown names are registered
	CollectionID    *string   // empty string: uncategorized
	ClearCollection bool
	IsFavorite      *bool
	CopyCount       *int // may only grow
}

// UpdatePrompt applies a partial update. Copy counts never decrease.
func UpdatePrompt(ctx context.Context, store storage.Adapter, input UpdatePromptInput) (*PromptDetail, error) {
	id, err := requireID("prompt", input.ID)
	if err != nil {
		return nil, err
	}

	patch := prompt.PromptPatch{
		Title:           cleanOptionalString(input.Title),
		Template:        cleanOptionalString(input.Template),
		Description:     cleanOptionalString(input.Description),
		CollectionID:    cleanOptionalString(input.CollectionID),
		ClearCollection: input.ClearCollection,
		IsFavorite:      input.IsFavorite,
		CopyCount:       input.CopyCount,
	}
	if input.Tags != nil {
		tags := prompt.DedupeTags(*input.Tags)
		patch.Tags = &tags
	}
	if patch.IsEmpty() {
		return nil, errors.NewInvalidRequest("at least one field to update is required")
	}

	if patch.Tags != nil {
		if err := ensureTags(ctx, store, *patch.Tags); err != nil {
			return nil, err
		}
	}
	if err := store.UpdatePrompt(ctx, id, patch); err != nil {
		return nil, err
	}
	return GetPrompt(ctx, store, id)
}

// DeletePrompt deletes a prompt. Missing ids are not an error.
func DeletePrompt(ctx context.Context, store storage.Adapter, id string) error {
	id, err := requireID("prompt", id)
	if err != nil {
		return err
	}
	return store.DeletePrompt(ctx, id)
}

// ToggleFavorite flips a prompt's favorite flag.
func ToggleFavorite(ctx context.Context, store storage.Adapter, id string) (*PromptDetail, error) {
	id, err := requireID("prompt", id)
	if err != nil {
		return nil, err
	}
	p, err := store.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	fav := !p.IsFavorite
	if err := store.UpdatePrompt(ctx, id, prompt.PromptPatch{IsFavorite: &fav}); err != nil {
		return nil, err
	}
	return GetPrompt(ctx, store, id)
}

// IncrementCopyCount records one use: the copy count grows by one and
// LastCopiedAt is set in the same update.
func IncrementCopyCount(ctx context.Context, store storage.Adapter, id string) (*prompt.Prompt, error) {
	id, err := requireID("prompt", id)
	if err != nil {
		return nil, err
	}
	p, err := store.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	count := p.CopyCount + 1
	now := prompt.Now()
	if err := store.UpdatePrompt(ctx, id, prompt.PromptPatch{CopyCount: &count, LastCopiedAt: &now}); err != nil {
		return nil, err
	}
	p.CopyCount = count
	p.LastCopiedAt = &now
	p.UpdatedAt = now
	return p, nil
}
