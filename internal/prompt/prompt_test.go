package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/neoprompts/neoprompts/internal/errors"
)

func TestNow_MillisecondUTC(t *testing.T) {
	now := Now()
	if now.Location() != time.UTC {
		t.Errorf("Location = %v, want UTC", now.Location())
	}
	if now.Nanosecond()%int(time.Millisecond) != 0 {
		t.Errorf("Nanosecond = %d, want millisecond precision", now.Nanosecond())
	}
}

func TestPromptClone_NoAliasing(t *testing.T) {
	cid := "c1"
	copied := Now()
	p := Prompt{ID: "p1", Tags: []string{"a", "b"}, CollectionID: &cid, LastCopiedAt: &copied}

	c := p.Clone()
	c.Tags[0] = "changed"
	*c.CollectionID = "c2"

	if p.Tags[0] != "a" {
		t.Errorf("original Tags[0] = %q, want %q", p.Tags[0], "a")
	}
	if *p.CollectionID != "c1" {
		t.Errorf("original CollectionID = %q, want %q", *p.CollectionID, "c1")
	}
}

func TestPromptClone_NilTags(t *testing.T) {
	c := Prompt{ID: "p1"}.Clone()
	if c.Tags == nil {
		t.Error("Clone should turn nil Tags into an empty slice")
	}
}

func TestPromptPatch_Apply(t *testing.T) {
	cid := "c1"
	p := Prompt{ID: "p1", Title: "old", Tags: []string{"x"}, CollectionID: &cid}
	now := Now()

	title := "new"
	tags := []string{"y", "z"}
	fav := true
	PromptPatch{Title: &title, Tags: &tags, IsFavorite: &fav}.Apply(&p, now)

	if p.Title != "new" {
		t.Errorf("Title = %q, want %q", p.Title, "new")
	}
	if len(p.Tags) != 2 || p.Tags[0] != "y" {
		t.Errorf("Tags = %v, want [y z]", p.Tags)
	}
	if !p.IsFavorite {
		t.Error("IsFavorite = false, want true")
	}
	if p.CollectionID == nil || *p.CollectionID != "c1" {
		t.Error("CollectionID should be unchanged")
	}
	if !p.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", p.UpdatedAt, now)
	}

	// Mutating the patch slice afterwards must not leak into the prompt.
	tags[0] = "mutated"
	if p.Tags[0] != "y" {
		t.Errorf("Tags[0] = %q after patch slice mutation, want %q", p.Tags[0], "y")
	}
}

func TestPromptPatch_TargetCollection(t *testing.T) {
	cid := "c1"
	empty := ""

	tests := []struct {
		name        string
		patch       PromptPatch
		wantID      *string
		wantChanged bool
	}{
		{"untouched", PromptPatch{}, nil, false},
		{"set", PromptPatch{CollectionID: &cid}, &cid, true},
		{"empty string clears", PromptPatch{CollectionID: &empty}, nil, true},
		{"clear wins", PromptPatch{CollectionID: &cid, ClearCollection: true}, nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, changed := tc.patch.TargetCollection()
			if changed != tc.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tc.wantChanged)
			}
			if (id == nil) != (tc.wantID == nil) || (id != nil && *id != *tc.wantID) {
				t.Errorf("id = %v, want %v", id, tc.wantID)
			}
		})
	}
}

func TestPromptPatch_IsEmpty(t *testing.T) {
	if !(PromptPatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
	if (PromptPatch{ClearCollection: true}).IsEmpty() {
		t.Error("ClearCollection patch should not be empty")
	}
}

func TestSettingsPatch_Apply(t *testing.T) {
	s := DefaultSettings()
	dark := ThemeDark
	SettingsPatch{Theme: &dark}.Apply(&s)

	if s.Theme != ThemeDark {
		t.Errorf("Theme = %q, want %q", s.Theme, ThemeDark)
	}
	if s.SidebarCollapsed {
		t.Error("SidebarCollapsed should be unchanged")
	}
	if s.ID != SettingsID {
		t.Errorf("ID = %q, want %q", s.ID, SettingsID)
	}
}

func TestValidate(t *testing.T) {
	bad := Theme("sepia")
	emptyName := ""
	negative := -1

	tests := []struct {
		name      string
		v         any
		wantErr   bool
		wantField string
	}{
		{"valid collection", Collection{Name: "Work"}, false, ""},
		{"collection without name", Collection{}, true, "name"},
		{"collection name too long", Collection{Name: strings.Repeat("x", 101)}, true, "name"},
		{"valid prompt", Prompt{Title: "Hello"}, false, ""},
		{"prompt without title", Prompt{}, true, "title"},
		{"negative copy count", Prompt{Title: "t", CopyCount: -1}, true, "copyCount"},
		{"valid tag", Tag{Name: "go", Color: "#34C759"}, false, ""},
		{"tag bad color", Tag{Name: "go", Color: "green"}, true, "color"},
		{"settings bad theme", Settings{Theme: "sepia"}, true, "theme"},
		{"settings patch bad theme", SettingsPatch{Theme: &bad}, true, "theme"},
		{"collection patch empty name", CollectionPatch{Name: &emptyName}, true, "name"},
		{"prompt patch negative count", PromptPatch{CopyCount: &negative}, true, "copyCount"},
		{"empty prompt patch", PromptPatch{}, false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.v)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Fatalf("expected INVALID_REQUEST, got %v", err)
			}
			e, _ := errors.As(err)
			fields, _ := e.Details["fields"].([]string)
			if len(fields) == 0 || fields[0] != tc.wantField {
				t.Errorf("fields = %v, want [%s]", fields, tc.wantField)
			}
		})
	}
}
