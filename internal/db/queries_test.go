package db

import (
	"context"
	"database/sql"
	"slices"
	"testing"
	"time"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func ts(sec int) time.Time {
	return time.Date(2024, 5, 1, 12, 0, sec, 250_000_000, time.UTC)
}

func TestCollections_CRUD(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	for i, name := range []string{"Second", "First"} {
		c := &prompt.Collection{ID: name, Name: name, Emoji: "📁", Order: 1 - i, CreatedAt: ts(i), UpdatedAt: ts(i)}
		if err := InsertCollection(ctx, database, c); err != nil {
			t.Fatalf("InsertCollection(%s) failed: %v", name, err)
		}
	}

	list, err := ListCollections(ctx, database)
	if err != nil {
		t.Fatalf("ListCollections failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "First" || list[1].ID != "Second" {
		t.Fatalf("ListCollections order = %v, want [First Second]", list)
	}
	if !list[0].CreatedAt.Equal(ts(1)) {
		t.Errorf("CreatedAt = %v, want %v", list[0].CreatedAt, ts(1))
	}

	c := list[0]
	c.Name = "Renamed"
	c.UpdatedAt = ts(9)
	if err := UpdateCollection(ctx, database, &c); err != nil {
		t.Fatalf("UpdateCollection failed: %v", err)
	}
	got, err := GetCollection(ctx, database, "First")
	if err != nil {
		t.Fatalf("GetCollection failed: %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want %q", got.Name, "Renamed")
	}

	missing := prompt.Collection{ID: "nope", Name: "x"}
	if err := UpdateCollection(ctx, database, &missing); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("UpdateCollection(missing) = %v, want NOT_FOUND", err)
	}

	if err := DeleteCollection(ctx, database, "First"); err != nil {
		t.Fatalf("DeleteCollection failed: %v", err)
	}
	if err := DeleteCollection(ctx, database, "First"); err != nil {
		t.Errorf("second DeleteCollection should be a no-op, got %v", err)
	}
	if _, err := GetCollection(ctx, database, "First"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetCollection after delete = %v, want NOT_FOUND", err)
	}
}

func TestInsertCollection_DuplicateID(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	c := &prompt.Collection{ID: "c1", Name: "A", CreatedAt: ts(0), UpdatedAt: ts(0)}
	if err := InsertCollection(ctx, database, c); err != nil {
		t.Fatalf("InsertCollection failed: %v", err)
	}
	if err := InsertCollection(ctx, database, c); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("duplicate InsertCollection = %v, want CONFLICT", err)
	}
}

func TestPrompts_RoundTripFields(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	if err := InsertCollection(ctx, database, &prompt.Collection{ID: "c1", Name: "Work", CreatedAt: ts(0), UpdatedAt: ts(0)}); err != nil {
		t.Fatalf("InsertCollection failed: %v", err)
	}

	cid := "c1"
	copied := ts(5)
	p := &prompt.Prompt{
		ID: "p1", Title: "Email", Template: "Hi {{name}}", Description: "d",
		Tags: []string{"Email", "work"}, CollectionID: &cid, IsFavorite: true,
		CopyCount: 2, LastCopiedAt: &copied, CreatedAt: ts(1), UpdatedAt: ts(2),
	}
	if err := InsertPrompt(ctx, database, p); err != nil {
		t.Fatalf("InsertPrompt failed: %v", err)
	}

	got, err := GetPrompt(ctx, database, "p1")
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if got.Title != "Email" || got.Template != "Hi {{name}}" || got.Description != "d" {
		t.Errorf("text fields = %+v", got)
	}
	if !slices.Equal(got.Tags, []string{"Email", "work"}) {
		t.Errorf("Tags = %v, want [Email work]", got.Tags)
	}
	if got.CollectionID == nil || *got.CollectionID != "c1" {
		t.Errorf("CollectionID = %v, want c1", got.CollectionID)
	}
	if !got.IsFavorite || got.CopyCount != 2 {
		t.Errorf("IsFavorite = %v, CopyCount = %d", got.IsFavorite, got.CopyCount)
	}
	if got.LastCopiedAt == nil || !got.LastCopiedAt.Equal(copied) {
		t.Errorf("LastCopiedAt = %v, want %v", got.LastCopiedAt, copied)
	}
	if !got.CreatedAt.Equal(ts(1)) || !got.UpdatedAt.Equal(ts(2)) {
		t.Errorf("timestamps = %v / %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestInsertPrompt_UnknownCollection(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	cid := "ghost"
	p := &prompt.Prompt{ID: "p1", Title: "x", CollectionID: &cid, CreatedAt: ts(0), UpdatedAt: ts(0)}
	if err := InsertPrompt(ctx, database, p); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("InsertPrompt with unknown collection = %v, want INVALID_REQUEST", err)
	}
}

func TestListPrompts_NewestFirst(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	for i, id := range []string{"old", "new", "mid"} {
		created := map[string]int{"old": 1, "mid": 2, "new": 3}[id]
		p := &prompt.Prompt{ID: id, Title: id, CreatedAt: ts(created), UpdatedAt: ts(created + i)}
		if err := InsertPrompt(ctx, database, p); err != nil {
			t.Fatalf("InsertPrompt failed: %v", err)
		}
	}

	list, err := ListPrompts(ctx, database)
	if err != nil {
		t.Fatalf("ListPrompts failed: %v", err)
	}
	var ids []string
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	if !slices.Equal(ids, []string{"new", "mid", "old"}) {
		t.Errorf("order = %v, want [new mid old]", ids)
	}
}

func TestClearCollectionRefs(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	_ = InsertCollection(ctx, database, &prompt.Collection{ID: "c1", Name: "A", CreatedAt: ts(0), UpdatedAt: ts(0)})
	cid := "c1"
	for _, id := range []string{"p1", "p2"} {
		if err := InsertPrompt(ctx, database, &prompt.Prompt{ID: id, Title: id, CollectionID: &cid, CreatedAt: ts(0), UpdatedAt: ts(0)}); err != nil {
			t.Fatalf("InsertPrompt failed: %v", err)
		}
	}
	if err := InsertPrompt(ctx, database, &prompt.Prompt{ID: "p3", Title: "p3", CreatedAt: ts(0), UpdatedAt: ts(0)}); err != nil {
		t.Fatalf("InsertPrompt failed: %v", err)
	}

	n, err := ClearCollectionRefs(ctx, database, "c1")
	if err != nil {
		t.Fatalf("ClearCollectionRefs failed: %v", err)
	}
	if n != 2 {
		t.Errorf("reassigned = %d, want 2", n)
	}

	p, _ := GetPrompt(ctx, database, "p1")
	if p.CollectionID != nil {
		t.Errorf("CollectionID = %v, want nil", *p.CollectionID)
	}
	if !p.UpdatedAt.Equal(ts(0)) {
		t.Errorf("UpdatedAt changed to %v", p.UpdatedAt)
	}
}

func TestListPromptIDsByTag(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	prompts := map[string][]string{
		"p1": {"Go", "sql"},
		"p2": {"go"},
		"p3": {"sql"},
	}
	for id, tags := range prompts {
		if err := InsertPrompt(ctx, database, &prompt.Prompt{ID: id, Title: id, Tags: tags, CreatedAt: ts(0), UpdatedAt: ts(0)}); err != nil {
			t.Fatalf("InsertPrompt failed: %v", err)
		}
	}

	ids, err := ListPromptIDsByTag(ctx, database, "GO")
	if err != nil {
		t.Fatalf("ListPromptIDsByTag failed: %v", err)
	}
	if !slices.Equal(ids, []string{"p1", "p2"}) {
		t.Errorf("ids = %v, want [p1 p2]", ids)
	}

	// Re-tagging moves the prompt out of the index.
	if err := SetPromptTags(ctx, database, "p2", []string{"other"}); err != nil {
		t.Fatalf("SetPromptTags failed: %v", err)
	}
	ids, _ = ListPromptIDsByTag(ctx, database, "go")
	if !slices.Equal(ids, []string{"p1"}) {
		t.Errorf("ids after retag = %v, want [p1]", ids)
	}

	// Deleting the prompt cascades to its index rows.
	if err := DeletePrompt(ctx, database, "p1"); err != nil {
		t.Fatalf("DeletePrompt failed: %v", err)
	}
	ids, _ = ListPromptIDsByTag(ctx, database, "go")
	if len(ids) != 0 {
		t.Errorf("ids after delete = %v, want none", ids)
	}
}

func TestTags_UniqueNameCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	if err := InsertTag(ctx, database, &prompt.Tag{ID: "t1", Name: "Writing", Color: "#007AFF"}); err != nil {
		t.Fatalf("InsertTag failed: %v", err)
	}
	if err := InsertTag(ctx, database, &prompt.Tag{ID: "t2", Name: "writing"}); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("InsertTag(duplicate name) = %v, want CONFLICT", err)
	}

	_ = InsertTag(ctx, database, &prompt.Tag{ID: "t0", Name: "Code"})
	list, err := ListTags(ctx, database)
	if err != nil {
		t.Fatalf("ListTags failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Code" || list[1].Name != "Writing" {
		t.Errorf("ListTags = %v, want [Code Writing]", list)
	}

	tag := list[1]
	tag.Name = "code"
	if err := UpdateTag(ctx, database, &tag); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("UpdateTag(rename onto existing) = %v, want CONFLICT", err)
	}
}

func TestSettings_Upsert(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	if _, err := GetSettings(ctx, database, prompt.SettingsID); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("GetSettings on empty db = %v, want NOT_FOUND", err)
	}

	s := prompt.DefaultSettings()
	if err := UpsertSettings(ctx, database, &s); err != nil {
		t.Fatalf("UpsertSettings failed: %v", err)
	}
	s.Theme = prompt.ThemeDark
	s.SidebarCollapsed = true
	if err := UpsertSettings(ctx, database, &s); err != nil {
		t.Fatalf("UpsertSettings (update) failed: %v", err)
	}

	got, err := GetSettings(ctx, database, prompt.SettingsID)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if got.Theme != prompt.ThemeDark || !got.SidebarCollapsed {
		t.Errorf("settings = %+v, want dark/collapsed", got)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	_ = InsertCollection(ctx, database, &prompt.Collection{ID: "c1", Name: "A", CreatedAt: ts(0), UpdatedAt: ts(0)})
	cid := "c1"
	_ = InsertPrompt(ctx, database, &prompt.Prompt{ID: "p1", Title: "p", Tags: []string{"a"}, CollectionID: &cid, CreatedAt: ts(0), UpdatedAt: ts(0)})
	_ = InsertTag(ctx, database, &prompt.Tag{ID: "t1", Name: "a"})
	s := prompt.DefaultSettings()
	_ = UpsertSettings(ctx, database, &s)

	if err := ClearEntities(ctx, database); err != nil {
		t.Fatalf("ClearEntities failed: %v", err)
	}
	if _, err := GetSettings(ctx, database, prompt.SettingsID); err != nil {
		t.Errorf("settings should survive ClearEntities, got %v", err)
	}

	if err := ClearAll(ctx, database); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	for _, table := range []string{"prompts", "prompt_tags", "collections", "tags", "settings"} {
		var n int
		if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after ClearAll", table, n)
		}
	}
}

func TestInTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	database := setupDB(t)

	err := InTx(ctx, database, func(tx *sql.Tx) error {
		if err := InsertTag(ctx, tx, &prompt.Tag{ID: "t1", Name: "a"}); err != nil {
			return err
		}
		return InsertTag(ctx, tx, &prompt.Tag{ID: "t2", Name: "A"})
	})
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("InTx error = %v, want CONFLICT", err)
	}

	list, _ := ListTags(ctx, database)
	if len(list) != 0 {
		t.Errorf("tags after rollback = %v, want none", list)
	}
}

func TestStoreErr_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	database := setupDB(t)

	if _, err := ListPrompts(ctx, database); !errors.Is(err, errors.ErrCancelled) {
		t.Errorf("ListPrompts with cancelled ctx = %v, want CANCELLED", err)
	}
}
