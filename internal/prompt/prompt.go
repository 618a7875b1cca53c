// Package prompt defines the prompt-library entities shared by every store:
// prompts, collections, tags, and the settings singleton.
package prompt

import (
	"slices"
	"time"
)

// Theme is the display theme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// SettingsID is the key of the settings singleton in every store.
const SettingsID = "app-settings"

// Defaults applied when the caller leaves a field empty.
const (
	DefaultCollectionEmoji = "📁"
	DefaultTagColor        = "#6c757d"
)

// Collection is a named, ordered folder for prompts.
type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required,max=100"`
	Emoji     string    `json:"emoji"`
	Order     int       `json:"order" validate:"min=0"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Prompt is a reusable text template.
// Tags reference Tag names; CollectionID is nil for uncategorized prompts.
type Prompt struct {
	ID           string     `json:"id"`
	Title        string     `json:"title" validate:"required,max=200"`
	Template     string     `json:"template"`
	Description  string     `json:"description"`
	Tags         []string   `json:"tags"`
	CollectionID *string    `json:"collectionId"`
	IsFavorite   bool       `json:"isFavorite"`
	CopyCount    int        `json:"copyCount" validate:"min=0"`
	LastCopiedAt *time.Time `json:"lastCopiedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Tag is a named label. Names are unique case-insensitively.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required,max=50"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

// Settings is the per-user preference singleton.
type Settings struct {
	ID               string `json:"id"`
	Theme            Theme  `json:"theme" validate:"required,oneof=light dark system"`
	SidebarCollapsed bool   `json:"sidebarCollapsed"`
}

// DefaultSettings returns the settings created on first access.
func DefaultSettings() Settings {
	return Settings{
		ID:    SettingsID,
		Theme: ThemeSystem,
	}
}

// Now returns the current UTC time at millisecond precision,
// which is the precision every store keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Clone returns a deep copy of p.
func (p Prompt) Clone() Prompt {
	out := p
	out.Tags = slices.Clone(p.Tags)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if p.CollectionID != nil {
		id := *p.CollectionID
		out.CollectionID = &id
	}
	if p.LastCopiedAt != nil {
		ts := *p.LastCopiedAt
		out.LastCopiedAt = &ts
	}
	return out
}

// InCollection reports whether p belongs to the collection with the given id.
func (p Prompt) InCollection(id string) bool {
	return p.CollectionID != nil && *p.CollectionID == id
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
