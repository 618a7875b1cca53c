package ops

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// TagPalette is the set of colors given to tags created without one.
var TagPalette = []string{
	"#007AFF", // blue
	"#34C759", // green
	"#FF9500", // orange
	"#FF3B30", // red
	"#5856D6", // purple
	"#AF52DE", // magenta
	"#FF2D55", // pink
	"#00C7BE", // teal
}

// RandomTagColor picks a color from TagPalette.
func RandomTagColor() string {
	return TagPalette[rand.IntN(len(TagPalette))]
}

// TagSummary is a tag with the number of prompts carrying it.
type TagSummary struct {
	prompt.Tag
	PromptCount int `json:"promptCount"`
}

// ListTagsOutput contains the result of the ListTags operation.
type ListTagsOutput struct {
	Items []TagSummary `json:"items"`
	Total int          `json:"total"`
}

// ListTags returns tags by name with usage counts.
func ListTags(ctx context.Context, store storage.Adapter) (*ListTagsOutput, error) {
	tags, err := store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	prompts, err := store.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(tags))
	for _, p := range prompts {
		for _, name := range p.Tags {
			counts[prompt.FoldTagName(name)]++
		}
	}

	items := make([]TagSummary, len(tags))
	for i, t := range tags {
		items[i] = TagSummary{Tag: t, PromptCount: counts[prompt.FoldTagName(t.Name)]}
	}
	return &ListTagsOutput{Items: items, Total: len(items)}, nil
}

// AddTagInput contains parameters for the AddTag operation.
type AddTagInput struct {
	Name  string // required
	Color string // default: #6c757d
}

// AddTag creates a tag. Names are unique case-insensitively.
func AddTag(ctx context.Context, store storage.Adapter, input AddTagInput) (*prompt.Tag, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.NewInvalidRequest("tag name is required")
	}
	return store.AddTag(ctx, prompt.Tag{Name: name, Color: strings.TrimSpace(input.Color)})
}

// UpdateTagInput contains parameters for the UpdateTag operation.
type UpdateTagInput struct {
	ID    string  // required
	Name  *string // optional; prompts keep the old name
	Color *string // optional
}

// UpdateTag renames or recolors a tag.
func UpdateTag(ctx context.Context, store storage.Adapter, input UpdateTagInput) (*prompt.Tag, error) {
	id, err := requireID("tag", input.ID)
	if err != nil {
		return nil, err
	}
	patch := prompt.TagPatch{
		Name:  cleanOptionalString(input.Name),
		Color: cleanOptionalString(input.Color),
	}
	if patch.IsEmpty() {
		return nil, errors.NewInvalidRequest("at least one field to update is required")
	}
	if err := store.UpdateTag(ctx, id, patch); err != nil {
		return nil, err
	}
	return findTag(ctx, store, func(t prompt.Tag) bool { return t.ID == id }, id)
}

// DeleteTag deletes a tag and strips it from every prompt.
func DeleteTag(ctx context.Context, store storage.Adapter, id string) error {
	id, err := requireID("tag", id)
	if err != nil {
		return err
	}
	return store.DeleteTag(ctx, id)
}

// FindTagByName resolves a tag by case-insensitive name.
func FindTagByName(ctx context.Context, store storage.Adapter, name string) (*prompt.Tag, error) {
	name = strings.TrimSpace(name)
	return findTag(ctx, store, func(t prompt.Tag) bool { return prompt.SameTag(t.Name, name) }, name)
}

func findTag(ctx context.Context, store storage.Adapter, match func(prompt.Tag) bool, key string) (*prompt.Tag, error) {
	tags, err := store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tags {
		if match(tags[i]) {
			return &tags[i], nil
		}
	}
	return nil, errors.NewNotFound("tag", key)
}

// ensureTags registers every name in names that has no tag yet, with a
// palette color.
func ensureTags(ctx context.Context, store storage.Adapter, names []string) error {
	if len(names) == 0 {
		return nil
	}
	tags, err := store.ListTags(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(tags))
	for _, t := range tags {
		known[prompt.FoldTagName(t.Name)] = true
	}
	for _, name := range prompt.DedupeTags(names) {
		key := prompt.FoldTagName(name)
		if known[key] {
			continue
		}
		if _, err := store.AddTag(ctx, prompt.Tag{Name: name, Color: RandomTagColor()}); err != nil {
			return err
		}
		known[key] = true
	}
	return nil
}
