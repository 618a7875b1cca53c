package remote

import (
	"encoding/json"
	"time"

	"github.com/neoprompts/neoprompts/internal/prompt"
)

const stampLayout = "2006-01-02T15:04:05.000Z07:00"

// stamp is a timestamp sent as RFC 3339 with millisecond precision.
// Decoding accepts any RFC 3339 value.
type stamp struct{ time.Time }

func (s stamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.UTC().Format(stampLayout))
}

func newStamp(t time.Time) stamp { return stamp{t.UTC().Truncate(time.Millisecond)} }

func newStampPtr(t *time.Time) *stamp {
	if t == nil {
		return nil
	}
	s := newStamp(*t)
	return &s
}

func (s stamp) time() time.Time { return s.UTC().Truncate(time.Millisecond) }

func (s *stamp) timePtr() *time.Time {
	if s == nil {
		return nil
	}
	t := s.time()
	return &t
}

type collectionRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Emoji     string `json:"emoji"`
	Order     int    `json:"order"`
	CreatedAt stamp  `json:"created_at"`
	UpdatedAt stamp  `json:"updated_at"`
}

func toCollectionRow(c prompt.Collection) collectionRow {
	return collectionRow{
		ID:        c.ID,
		Name:      c.Name,
		Emoji:     c.Emoji,
		Order:     c.Order,
		CreatedAt: newStamp(c.CreatedAt),
		UpdatedAt: newStamp(c.UpdatedAt),
	}
}

func (r collectionRow) collection() prompt.Collection {
	return prompt.Collection{
		ID:        r.ID,
		Name:      r.Name,
		Emoji:     r.Emoji,
		Order:     r.Order,
		CreatedAt: r.CreatedAt.time(),
		UpdatedAt: r.UpdatedAt.time(),
	}
}

type promptRow struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Template     string   `json:"template"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	CollectionID *string  `json:"collection_id"`
	IsFavorite   bool     `json:"is_favorite"`
	CopyCount    int      `json:"copy_count"`
	LastCopiedAt *stamp   `json:"last_copied_at"`
	CreatedAt    stamp    `json:"created_at"`
	UpdatedAt    stamp    `json:"updated_at"`
}

func toPromptRow(p prompt.Prompt) promptRow {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return promptRow{
		ID:           p.ID,
		Title:        p.Title,
		Template:     p.Template,
		Description:  p.Description,
		Tags:         tags,
		CollectionID: p.CollectionID,
		IsFavorite:   p.IsFavorite,
		CopyCount:    p.CopyCount,
		LastCopiedAt: newStampPtr(p.LastCopiedAt),
		CreatedAt:    newStamp(p.CreatedAt),
		UpdatedAt:    newStamp(p.UpdatedAt),
	}
}

func (r promptRow) prompt() prompt.Prompt {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return prompt.Prompt{
		ID:           r.ID,
		Title:        r.Title,
		Template:     r.Template,
		Description:  r.Description,
		Tags:         tags,
		CollectionID: r.CollectionID,
		IsFavorite:   r.IsFavorite,
		CopyCount:    r.CopyCount,
		LastCopiedAt: r.LastCopiedAt.timePtr(),
		CreatedAt:    r.CreatedAt.time(),
		UpdatedAt:    r.UpdatedAt.time(),
	}
}

type tagRow struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

func toTagRow(t prompt.Tag) tagRow { return tagRow(t) }

func (r tagRow) tag() prompt.Tag { return prompt.Tag(r) }

type settingsRow struct {
	ID               string `json:"id"`
	Theme            string `json:"theme"`
	SidebarCollapsed bool   `json:"sidebar_collapsed"`
}

func toSettingsRow(s prompt.Settings) settingsRow {
	return settingsRow{ID: s.ID, Theme: string(s.Theme), SidebarCollapsed: s.SidebarCollapsed}
}

func (r settingsRow) settings() prompt.Settings {
	return prompt.Settings{ID: r.ID, Theme: prompt.Theme(r.Theme), SidebarCollapsed: r.SidebarCollapsed}
}

// Patch bodies carry only the fields being changed.

func collectionPatchBody(p prompt.CollectionPatch, now time.Time) map[string]any {
	body := map[string]any{"updated_at": newStamp(now)}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.Emoji != nil {
		body["emoji"] = *p.Emoji
	}
	if p.Order != nil {
		body["order"] = *p.Order
	}
	return body
}

func promptPatchBody(p prompt.PromptPatch, now time.Time) map[string]any {
	body := map[string]any{"updated_at": newStamp(now)}
	if p.Title != nil {
		body["title"] = *p.Title
	}
	if p.Template != nil {
		body["template"] = *p.Template
	}
	if p.Description != nil {
		body["description"] = *p.Description
	}
	if p.Tags != nil {
		body["tags"] = *p.Tags
	}
	if id, ok := p.TargetCollection(); ok {
		body["collection_id"] = id
	}
	if p.IsFavorite != nil {
		body["is_favorite"] = *p.IsFavorite
	}
	if p.CopyCount != nil {
		body["copy_count"] = *p.CopyCount
	}
	if p.LastCopiedAt != nil {
		body["last_copied_at"] = newStamp(*p.LastCopiedAt)
	}
	return body
}

func tagPatchBody(p prompt.TagPatch) map[string]any {
	body := map[string]any{}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.Color != nil {
		body["color"] = *p.Color
	}
	return body
}
