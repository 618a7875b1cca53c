package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// CollectionSummary is a collection with the number of prompts in it.
type CollectionSummary struct {
	prompt.Collection
	PromptCount int `json:"promptCount"`
}

// ListCollectionsOutput contains the result of the ListCollections operation.
type ListCollectionsOutput struct {
	Items         []CollectionSummary `json:"items"`
	Uncategorized int                 `json:"uncategorized"`
	Total         int                 `json:"total"`
}

// ListCollections returns collections in display order with prompt counts.
func ListCollections(ctx context.Context, store storage.Adapter) (*ListCollectionsOutput, error) {
	collections, err := store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	prompts, err := store.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(collections))
	uncategorized := 0
	for _, p := range prompts {
		if p.CollectionID == nil {
			uncategorized++
			continue
		}
		counts[*p.CollectionID]++
	}

	items := make([]CollectionSummary, len(collections))
	for i, c := range collections {
		items[i] = CollectionSummary{Collection: c, PromptCount: counts[c.ID]}
	}
	return &ListCollectionsOutput{
		Items:         items,
		Uncategorized: uncategorized,
		Total:         len(items),
	}, nil
}

// AddCollectionInput contains parameters for the AddCollection operation.
type AddCollectionInput struct {
	Name  string // required
	Emoji string // default: 📁
}

// AddCollection appends a collection after the last one in display order.
func AddCollection(ctx context.Context, store storage.Adapter, input AddCollectionInput) (*prompt.Collection, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.NewInvalidRequest("collection name is required")
	}

	existing, err := store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	order := 0
	for _, c := range existing {
		order = max(order, c.Order+1)
	}

	return store.AddCollection(ctx, prompt.Collection{
		Name:  name,
		Emoji: strings.TrimSpace(input.Emoji),
		Order: order,
	})
}

// UpdateCollectionInput contains parameters for the UpdateCollection operation.
type UpdateCollectionInput struct {
	ID    string  // required
	Name  *string // optional
	Emoji *string // optional
}

// UpdateCollection renames a collection or changes its emoji.
func UpdateCollection(ctx context.Context, store storage.Adapter, input UpdateCollectionInput) (*prompt.Collection, error) {
	id, err := requireID("collection", input.ID)
	if err != nil {
		return nil, err
	}
	patch := prompt.CollectionPatch{
		Name:  cleanOptionalString(input.Name),
		Emoji: cleanOptionalString(input.Emoji),
	}
	if patch.IsEmpty() {
		return nil, errors.NewInvalidRequest("at least one field to update is required")
	}
	if err := store.UpdateCollection(ctx, id, patch); err != nil {
		return nil, err
	}
	return findCollection(ctx, store, id)
}

// DeleteCollection deletes a collection; its prompts become uncategorized.
func DeleteCollection(ctx context.Context, store storage.Adapter, id string) error {
	id, err := requireID("collection", id)
	if err != nil {
		return err
	}
	return store.DeleteCollection(ctx, id)
}

// ReorderCollections assigns Order 0..n-1 following ids, which must list
// every collection exactly once.
func ReorderCollections(ctx context.Context, store storage.Adapter, ids []string) ([]prompt.Collection, error) {
	existing, err := store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(existing) {
		return nil, errors.NewInvalidRequest(
			fmt.Sprintf("reorder needs all %d collection ids, got %d", len(existing), len(ids)))
	}

	current := make(map[string]int, len(existing))
	for _, c := range existing {
		current[c.ID] = c.Order
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := current[id]; !ok {
			return nil, errors.NewNotFound("collection", id)
		}
		if seen[id] {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("collection %q listed twice", id))
		}
		seen[id] = true
	}

	for i, id := range ids {
		if current[id] == i {
			continue
		}
		order := i
		if err := store.UpdateCollection(ctx, id, prompt.CollectionPatch{Order: &order}); err != nil {
			return nil, err
		}
	}
	return store.ListCollections(ctx)
}

func findCollection(ctx context.Context, store storage.Adapter, id string) (*prompt.Collection, error) {
	list, err := store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, errors.NewNotFound("collection", id)
}
