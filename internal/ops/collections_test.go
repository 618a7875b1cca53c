package ops

import (
	"context"
	"testing"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
)

func TestAddCollection_AppendsOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for i, name := range []string{"Work", "Personal", "Ideas"} {
		c, err := AddCollection(ctx, store, AddCollectionInput{Name: name})
		if err != nil {
			t.Fatalf("AddCollection(%q) failed: %v", name, err)
		}
		if c.Order != i {
			t.Errorf("%s Order = %d, want %d", name, c.Order, i)
		}
		if c.Emoji != prompt.DefaultCollectionEmoji {
			t.Errorf("%s Emoji = %q, want %q", name, c.Emoji, prompt.DefaultCollectionEmoji)
		}
	}

	_, err := AddCollection(ctx, store, AddCollectionInput{Name: "  "})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestListCollections_Counts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	work, err := AddCollection(ctx, store, AddCollectionInput{Name: "Work"})
	if err != nil {
		t.Fatalf("AddCollection failed: %v", err)
	}
	if _, err := AddCollection(ctx, store, AddCollectionInput{Name: "Empty", Emoji: "🗂"}); err != nil {
		t.Fatalf("AddCollection failed: %v", err)
	}
	in := promptFixture("a")
	in.CollectionID = &work.ID
	addPrompt(t, store, in, 0)
	addPrompt(t, store, in, 1)
	addPrompt(t, store, promptFixture("loose"), 2)

	out, err := ListCollections(ctx, store)
	if err != nil {
		t.Fatalf("ListCollections failed: %v", err)
	}
	if out.Total != 2 {
		t.Fatalf("Total = %d, want 2", out.Total)
	}
	if out.Items[0].Name != "Work" || out.Items[0].PromptCount != 2 {
		t.Errorf("Items[0] = %s/%d, want Work/2", out.Items[0].Name, out.Items[0].PromptCount)
	}
	if out.Items[1].Emoji != "🗂" || out.Items[1].PromptCount != 0 {
		t.Errorf("Items[1] = %s/%d, want 🗂/0", out.Items[1].Emoji, out.Items[1].PromptCount)
	}
	if out.Uncategorized != 1 {
		t.Errorf("Uncategorized = %d, want 1", out.Uncategorized)
	}
}

func TestUpdateCollection(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c, err := AddCollection(ctx, store, AddCollectionInput{Name: "Work"})
	if err != nil {
		t.Fatalf("AddCollection failed: %v", err)
	}

	out, err := UpdateCollection(ctx, store, UpdateCollectionInput{ID: c.ID, Name: stringPtr(" Job ")})
	if err != nil {
		t.Fatalf("UpdateCollection failed: %v", err)
	}
	if out.Name != "Job" {
		t.Errorf("Name = %q, want %q", out.Name, "Job")
	}

	_, err = UpdateCollection(ctx, store, UpdateCollectionInput{ID: c.ID})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for empty patch, got: %v", err)
	}
	_, err = UpdateCollection(ctx, store, UpdateCollectionInput{ID: "missing", Name: stringPtr("x")})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestDeleteCollection_PromptsBecomeUncategorized(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c, err := AddCollection(ctx, store, AddCollectionInput{Name: "Work"})
	if err != nil {
		t.Fatalf("AddCollection failed: %v", err)
	}
	in := promptFixture("a")
	in.CollectionID = &c.ID
	p := addPrompt(t, store, in, 0)

	if err := DeleteCollection(ctx, store, c.ID); err != nil {
		t.Fatalf("DeleteCollection failed: %v", err)
	}
	got, err := GetPrompt(ctx, store, p.ID)
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if got.CollectionID != nil {
		t.Errorf("CollectionID = %q, want nil", *got.CollectionID)
	}
}

func TestReorderCollections(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var ids []string
	for _, name := range []string{"A", "B", "C"} {
		c, err := AddCollection(ctx, store, AddCollectionInput{Name: name})
		if err != nil {
			t.Fatalf("AddCollection failed: %v", err)
		}
		ids = append(ids, c.ID)
	}

	// C, A, B
	got, err := ReorderCollections(ctx, store, []string{ids[2], ids[0], ids[1]})
	if err != nil {
		t.Fatalf("ReorderCollections failed: %v", err)
	}
	wantNames := []string{"C", "A", "B"}
	for i, c := range got {
		if c.Name != wantNames[i] {
			t.Errorf("got[%d].Name = %q, want %q", i, c.Name, wantNames[i])
		}
		if c.Order != i {
			t.Errorf("got[%d].Order = %d, want %d", i, c.Order, i)
		}
	}
}

func TestReorderCollections_Invalid(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var ids []string
	for _, name := range []string{"A", "B"} {
		c, err := AddCollection(ctx, store, AddCollectionInput{Name: name})
		if err != nil {
			t.Fatalf("AddCollection failed: %v", err)
		}
		ids = append(ids, c.ID)
	}

	tests := []struct {
		name string
		ids  []string
		code errors.ErrorCode
	}{
		{"too few", []string{ids[0]}, errors.ErrInvalidRequest},
		{"duplicate", []string{ids[0], ids[0]}, errors.ErrInvalidRequest},
		{"unknown", []string{ids[0], "nope"}, errors.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReorderCollections(ctx, store, tc.ids)
			if !errors.Is(err, tc.code) {
				t.Errorf("expected %s, got: %v", tc.code, err)
			}
		})
	}
}
