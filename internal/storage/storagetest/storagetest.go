// Package storagetest is the behavioural contract every storage.Adapter must pass.
// Adapter packages call Run from their own tests with a constructor for a fresh, empty store.
package storagetest

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// Factory returns a fresh, empty adapter. It should register its own cleanup.
type Factory func(t *testing.T) storage.Adapter

// Run executes the full contract against adapters built by newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, a storage.Adapter)
	}{
		{"CollectionsCRUD", testCollectionsCRUD},
		{"CollectionsOrdered", testCollectionsOrdered},
		{"DeleteCollectionReassignsPrompts", testDeleteCollectionReassigns},
		{"PromptRoundTrip", testPromptRoundTrip},
		{"PromptKeepsCallerID", testPromptKeepsCallerID},
		{"PromptsNewestFirst", testPromptsNewestFirst},
		{"PromptNotFound", testPromptNotFound},
		{"PromptUnknownCollection", testPromptUnknownCollection},
		{"UpdatePromptPatch", testUpdatePromptPatch},
		{"UpdatePromptClearCollection", testUpdatePromptClearCollection},
		{"CopyCountIncrements", testCopyCountIncrements},
		{"CopyCountNeverDecreases", testCopyCountNeverDecreases},
		{"NoAliasing", testNoAliasing},
		{"TagsCRUD", testTagsCRUD},
		{"TagNameUnique", testTagNameUnique},
		{"RenameTagDoesNotPropagate", testRenameTagDoesNotPropagate},
		{"DeleteTagStripsPrompts", testDeleteTagStrips},
		{"SettingsDefaults", testSettingsDefaults},
		{"ExportImportRoundTrip", testExportImportRoundTrip},
		{"ImportReplaces", testImportReplaces},
		{"ImportRejectsMalformed", testImportRejectsMalformed},
		{"ClearAll", testClearAll},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newAdapter(t))
		})
	}
}

func addCollection(t *testing.T, a storage.Adapter, name string, order int) *prompt.Collection {
	t.Helper()
	c, err := a.AddCollection(context.Background(), prompt.Collection{Name: name, Order: order})
	require.NoError(t, err)
	return c
}

func addPrompt(t *testing.T, a storage.Adapter, p prompt.Prompt) *prompt.Prompt {
	t.Helper()
	out, err := a.AddPrompt(context.Background(), p)
	require.NoError(t, err)
	return out
}

func promptIDs(ps []prompt.Prompt) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

func testCollectionsCRUD(t *testing.T, a storage.Adapter) {
	ctx := context.Background()

	c := addCollection(t, a, "Work", 0)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, prompt.DefaultCollectionEmoji, c.Emoji)
	assert.False(t, c.CreatedAt.IsZero())

	name := "Office"
	require.NoError(t, a.UpdateCollection(ctx, c.ID, prompt.CollectionPatch{Name: &name}))

	list, err := a.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Office", list[0].Name)
	assert.False(t, list[0].UpdatedAt.Before(list[0].CreatedAt))

	err = a.UpdateCollection(ctx, "missing", prompt.CollectionPatch{Name: &name})
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	require.NoError(t, a.DeleteCollection(ctx, c.ID))
	require.NoError(t, a.DeleteCollection(ctx, c.ID), "deleting twice is a no-op")

	list, err = a.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testCollectionsOrdered(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	addCollection(t, a, "C", 2)
	addCollection(t, a, "A", 0)
	addCollection(t, a, "B", 1)

	list, err := a.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{list[0].Name, list[1].Name, list[2].Name})
}

func testDeleteCollectionReassigns(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	c := addCollection(t, a, "Work", 0)
	other := addCollection(t, a, "Other", 1)

	in1 := addPrompt(t, a, prompt.Prompt{Title: "one", CollectionID: &c.ID})
	in2 := addPrompt(t, a, prompt.Prompt{Title: "two", CollectionID: &c.ID})
	kept := addPrompt(t, a, prompt.Prompt{Title: "three", CollectionID: &other.ID})

	require.NoError(t, a.DeleteCollection(ctx, c.ID))

	for _, id := range []string{in1.ID, in2.ID} {
		p, err := a.GetPrompt(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, p.CollectionID, "prompt %s should be uncategorized", id)
	}
	p, err := a.GetPrompt(ctx, kept.ID)
	require.NoError(t, err)
	require.NotNil(t, p.CollectionID)
	assert.Equal(t, other.ID, *p.CollectionID)
}

func testPromptRoundTrip(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	c := addCollection(t, a, "Work", 0)

	added := addPrompt(t, a, prompt.Prompt{
		Title:        "Email",
		Template:     "Hi {{name}}",
		Description:  "greeting",
		Tags:         []string{"email", "Email", "work"},
		CollectionID: &c.ID,
		IsFavorite:   true,
	})
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, []string{"email", "work"}, added.Tags, "tags are deduped case-insensitively")
	assert.False(t, added.CreatedAt.IsZero())

	got, err := a.GetPrompt(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "Email", got.Title)
	assert.Equal(t, "Hi {{name}}", got.Template)
	assert.Equal(t, "greeting", got.Description)
	assert.Equal(t, []string{"email", "work"}, got.Tags)
	require.NotNil(t, got.CollectionID)
	assert.Equal(t, c.ID, *got.CollectionID)
	assert.True(t, got.IsFavorite)
	assert.Equal(t, 0, got.CopyCount)
	assert.Nil(t, got.LastCopiedAt)
	assert.True(t, got.CreatedAt.Equal(added.CreatedAt))
}

func testPromptKeepsCallerID(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	added := addPrompt(t, a, prompt.Prompt{ID: "fixed-id", Title: "x"})
	assert.Equal(t, "fixed-id", added.ID)

	_, err := a.AddPrompt(ctx, prompt.Prompt{ID: "fixed-id", Title: "y"})
	assert.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)
}

func testPromptsNewestFirst(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	addPrompt(t, a, prompt.Prompt{ID: "old", Title: "old", CreatedAt: base})
	addPrompt(t, a, prompt.Prompt{ID: "new", Title: "new", CreatedAt: base.Add(2 * time.Hour)})
	addPrompt(t, a, prompt.Prompt{ID: "mid", Title: "mid", CreatedAt: base.Add(time.Hour)})

	list, err := a.ListPrompts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old"}, promptIDs(list))
}

func testPromptNotFound(t *testing.T, a storage.Adapter) {
	ctx := context.Background()

	_, err := a.GetPrompt(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound), "GetPrompt: got %v", err)

	title := "x"
	err = a.UpdatePrompt(ctx, "missing", prompt.PromptPatch{Title: &title})
	assert.True(t, errors.Is(err, errors.ErrNotFound), "UpdatePrompt: got %v", err)

	assert.NoError(t, a.DeletePrompt(ctx, "missing"))
}

func testPromptUnknownCollection(t *testing.T, a storage.Adapter) {
	ghost := "no-such-collection"
	_, err := a.AddPrompt(context.Background(), prompt.Prompt{Title: "x", CollectionID: &ghost})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func testUpdatePromptPatch(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	p := addPrompt(t, a, prompt.Prompt{
		Title: "old", Template: "t", Description: "d", Tags: []string{"a"},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	title := "new"
	tags := []string{"b", "c"}
	fav := true
	require.NoError(t, a.UpdatePrompt(ctx, p.ID, prompt.PromptPatch{Title: &title, Tags: &tags, IsFavorite: &fav}))

	got, err := a.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, "t", got.Template, "unpatched fields are unchanged")
	assert.Equal(t, "d", got.Description)
	assert.Equal(t, []string{"b", "c"}, got.Tags)
	assert.True(t, got.IsFavorite)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt), "UpdatedAt is stamped")

	empty := ""
	err = a.UpdatePrompt(ctx, p.ID, prompt.PromptPatch{Title: &empty})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func testUpdatePromptClearCollection(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	c := addCollection(t, a, "Work", 0)
	p := addPrompt(t, a, prompt.Prompt{Title: "x", CollectionID: &c.ID})

	require.NoError(t, a.UpdatePrompt(ctx, p.ID, prompt.PromptPatch{ClearCollection: true}))

	got, err := a.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CollectionID)
}

func testCopyCountIncrements(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	p := addPrompt(t, a, prompt.Prompt{Title: "x"})

	for range 2 {
		cur, err := a.GetPrompt(ctx, p.ID)
		require.NoError(t, err)
		count := cur.CopyCount + 1
		now := prompt.Now()
		require.NoError(t, a.UpdatePrompt(ctx, p.ID, prompt.PromptPatch{CopyCount: &count, LastCopiedAt: &now}))
	}

	got, err := a.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CopyCount)
	require.NotNil(t, got.LastCopiedAt)
}

func testCopyCountNeverDecreases(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	p := addPrompt(t, a, prompt.Prompt{Title: "x"})

	five := 5
	require.NoError(t, a.UpdatePrompt(ctx, p.ID, prompt.PromptPatch{CopyCount: &five}))
	got, err := a.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.CopyCount)
	require.NotNil(t, got.LastCopiedAt, "an increase stamps lastCopiedAt")
	stamped := *got.LastCopiedAt

	zero := 0
	err = a.UpdatePrompt(ctx, p.ID, prompt.PromptPatch{CopyCount: &zero})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "decrease: %v", err)

	later := stamped.Add(time.Hour)
	err = a.UpdatePrompt(ctx, p.ID, prompt.PromptPatch{LastCopiedAt: &later})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "time without increase: %v", err)

	err = a.UpdatePrompt(ctx, p.ID, prompt.PromptPatch{CopyCount: &five, LastCopiedAt: &later})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "time with same count: %v", err)

	got, err = a.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.CopyCount)
	require.NotNil(t, got.LastCopiedAt)
	assert.True(t, stamped.Equal(*got.LastCopiedAt))

	title := "renamed"
	require.NoError(t, a.UpdatePrompt(ctx, p.ID, prompt.PromptPatch{Title: &title, CopyCount: &five}))
}

func testNoAliasing(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	tags := []string{"a", "b"}
	p := addPrompt(t, a, prompt.Prompt{Title: "x", Tags: tags})

	tags[0] = "mutated-input"
	p.Tags[1] = "mutated-output"

	got, err := a.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
}

func testTagsCRUD(t *testing.T, a storage.Adapter) {
	ctx := context.Background()

	tag, err := a.AddTag(ctx, prompt.Tag{Name: "writing"})
	require.NoError(t, err)
	assert.NotEmpty(t, tag.ID)
	assert.Equal(t, prompt.DefaultTagColor, tag.Color)

	_, err = a.AddTag(ctx, prompt.Tag{Name: "code", Color: "#34C759"})
	require.NoError(t, err)

	color := "#FF3B30"
	require.NoError(t, a.UpdateTag(ctx, tag.ID, prompt.TagPatch{Color: &color}))

	list, err := a.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "code", list[0].Name, "tags are listed by name")
	assert.Equal(t, "writing", list[1].Name)
	assert.Equal(t, "#FF3B30", list[1].Color)

	err = a.UpdateTag(ctx, "missing", prompt.TagPatch{Color: &color})
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	assert.NoError(t, a.DeleteTag(ctx, "missing"))
}

func testTagNameUnique(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	_, err := a.AddTag(ctx, prompt.Tag{Name: "Writing"})
	require.NoError(t, err)

	_, err = a.AddTag(ctx, prompt.Tag{Name: "writing"})
	assert.True(t, errors.Is(err, errors.ErrConflict), "got %v", err)
}

func testRenameTagDoesNotPropagate(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	tag, err := a.AddTag(ctx, prompt.Tag{Name: "old"})
	require.NoError(t, err)
	p := addPrompt(t, a, prompt.Prompt{Title: "x", Tags: []string{"old"}})

	name := "new"
	require.NoError(t, a.UpdateTag(ctx, tag.ID, prompt.TagPatch{Name: &name}))

	got, err := a.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, got.Tags)
}

func testDeleteTagStrips(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	x, err := a.AddTag(ctx, prompt.Tag{Name: "x"})
	require.NoError(t, err)

	p1 := addPrompt(t, a, prompt.Prompt{Title: "one", Tags: []string{"a", "x", "b"}})
	p2 := addPrompt(t, a, prompt.Prompt{Title: "two", Tags: []string{"x"}})
	p3 := addPrompt(t, a, prompt.Prompt{Title: "three", Tags: []string{"c"}})
	// Tag names match case-insensitively.
	p4 := addPrompt(t, a, prompt.Prompt{Title: "four", Tags: []string{"X", "d"}})

	require.NoError(t, a.DeleteTag(ctx, x.ID))

	want := map[string][]string{
		p1.ID: {"a", "b"},
		p2.ID: {},
		p3.ID: {"c"},
		p4.ID: {"d"},
	}
	for id, tags := range want {
		got, err := a.GetPrompt(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tags, got.Tags, "prompt %s", id)
	}

	list, err := a.ListTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testSettingsDefaults(t *testing.T, a storage.Adapter) {
	ctx := context.Background()

	s, err := a.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, prompt.SettingsID, s.ID)
	assert.Equal(t, prompt.ThemeSystem, s.Theme)
	assert.False(t, s.SidebarCollapsed)

	dark := prompt.ThemeDark
	saved, err := a.SaveSettings(ctx, prompt.SettingsPatch{Theme: &dark})
	require.NoError(t, err)
	assert.Equal(t, prompt.ThemeDark, saved.Theme)

	collapsed := true
	_, err = a.SaveSettings(ctx, prompt.SettingsPatch{SidebarCollapsed: &collapsed})
	require.NoError(t, err)

	s, err = a.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, prompt.ThemeDark, s.Theme)
	assert.True(t, s.SidebarCollapsed)

	bad := prompt.Theme("sepia")
	_, err = a.SaveSettings(ctx, prompt.SettingsPatch{Theme: &bad})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

// seed fills a store with a small but complete library.
func seed(t *testing.T, a storage.Adapter) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 2, 1, 8, 0, 0, 500_000_000, time.UTC)

	work := addCollection(t, a, "Work", 0)
	addCollection(t, a, "Home", 1)
	for _, name := range []string{"email", "code"} {
		_, err := a.AddTag(ctx, prompt.Tag{Name: name})
		require.NoError(t, err)
	}
	addPrompt(t, a, prompt.Prompt{Title: "Email", Template: "Dear {{name}}", Tags: []string{"email"}, CollectionID: &work.ID, CreatedAt: base})
	p := addPrompt(t, a, prompt.Prompt{Title: "Review", Template: "Review {{code}}", Tags: []string{"code", "email"}, IsFavorite: true, CreatedAt: base.Add(time.Minute)})

	count := 3
	copied := base.Add(time.Hour)
	require.NoError(t, a.UpdatePrompt(ctx, p.ID, prompt.PromptPatch{CopyCount: &count, LastCopiedAt: &copied}))
}

func exportJSON(t *testing.T, a storage.Adapter) string {
	t.Helper()
	data, err := a.ExportData(context.Background())
	require.NoError(t, err)
	data.ExportedAt = nil
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return string(b)
}

func testExportImportRoundTrip(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	seed(t, a)

	exported, err := a.ExportData(ctx)
	require.NoError(t, err)
	require.NotNil(t, exported.ExportedAt)
	c, p, tg := exported.Counts()
	assert.Equal(t, [3]int{2, 2, 2}, [3]int{c, p, tg})

	before := exportJSON(t, a)

	raw, err := json.Marshal(exported)
	require.NoError(t, err)
	parsed, err := prompt.ParseExport(bytes.NewReader(raw))
	require.NoError(t, err)

	require.NoError(t, a.ClearAll(ctx))
	require.NoError(t, a.ImportData(ctx, parsed))

	assert.JSONEq(t, before, exportJSON(t, a))
}

func testImportReplaces(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	seed(t, a)

	dark := prompt.ThemeDark
	_, err := a.SaveSettings(ctx, prompt.SettingsPatch{Theme: &dark})
	require.NoError(t, err)

	cid := "c-new"
	now := prompt.Now()
	doc := &prompt.ExportData{
		Collections: []prompt.Collection{{ID: cid, Name: "Imported", Emoji: "📥", CreatedAt: now, UpdatedAt: now}},
		Prompts:     []prompt.Prompt{{ID: "p-new", Title: "Imported", Tags: []string{"t"}, CollectionID: &cid, CreatedAt: now, UpdatedAt: now}},
		Tags:        []prompt.Tag{{ID: "t-new", Name: "t", Color: "#007AFF"}},
	}
	require.NoError(t, a.ImportData(ctx, doc))

	prompts, err := a.ListPrompts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-new"}, promptIDs(prompts))

	cols, err := a.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "Imported", cols[0].Name)

	tags, err := a.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "t-new", tags[0].ID)

	s, err := a.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, prompt.ThemeDark, s.Theme, "settings survive an import")
}

func testImportRejectsMalformed(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	seed(t, a)
	before := exportJSON(t, a)

	ghost := "ghost"
	doc := &prompt.ExportData{
		Prompts: []prompt.Prompt{{ID: "p", Title: "x", CollectionID: &ghost}},
	}
	err := a.ImportData(ctx, doc)
	assert.True(t, errors.Is(err, errors.ErrMalformedImport), "got %v", err)

	assert.JSONEq(t, before, exportJSON(t, a), "store is untouched")
}

func testClearAll(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	seed(t, a)

	require.NoError(t, a.ClearAll(ctx))

	data, err := a.ExportData(ctx)
	require.NoError(t, err)
	assert.Empty(t, data.Collections)
	assert.Empty(t, data.Prompts)
	assert.Empty(t, data.Tags)

	s, err := a.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, prompt.ThemeSystem, s.Theme, "settings are recreated with defaults")
}
