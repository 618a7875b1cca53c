package prompt

import (
	"slices"
	"time"
)

// CollectionPatch is a partial update; nil fields are left unchanged.
type CollectionPatch struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Emoji *string `json:"emoji,omitempty"`
	Order *int    `json:"order,omitempty" validate:"omitempty,min=0"`
}

// IsEmpty reports whether the patch changes nothing.
func (p CollectionPatch) IsEmpty() bool {
	return p.Name == nil && p.Emoji == nil && p.Order == nil
}

// Apply writes the set fields onto c and stamps UpdatedAt.
func (p CollectionPatch) Apply(c *Collection, now time.Time) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Emoji != nil {
		c.Emoji = *p.Emoji
	}
	if p.Order != nil {
		c.Order = *p.Order
	}
	c.UpdatedAt = now
}

// PromptPatch is a partial update; nil fields are left unchanged.
// ClearCollection, or an empty CollectionID, moves the prompt to uncategorized.
type PromptPatch struct {
	Title           *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Template        *string    `json:"template,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Tags            *[]string  `json:"tags,omitempty"`
	CollectionID    *string    `json:"collectionId,omitempty"`
	ClearCollection bool       `json:"clearCollection,omitempty"`
	IsFavorite      *bool      `json:"isFavorite,omitempty"`
	CopyCount       *int       `json:"copyCount,omitempty" validate:"omitempty,min=0"`
	LastCopiedAt    *time.Time `json:"lastCopiedAt,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p PromptPatch) IsEmpty() bool {
	return p.Title == nil && p.Template == nil && p.Description == nil && p.Tags == nil &&
		p.CollectionID == nil && !p.ClearCollection && p.IsFavorite == nil &&
		p.CopyCount == nil && p.LastCopiedAt == nil
}

// TargetCollection resolves the collection change carried by the patch.
// changed is false when the patch leaves the collection alone.
func (p PromptPatch) TargetCollection() (id *string, changed bool) {
	if p.ClearCollection {
		return nil, true
	}
	if p.CollectionID == nil {
		return nil, false
	}
	if *p.CollectionID == "" {
		return nil, true
	}
	return StringPtr(*p.CollectionID), true
}

// Apply writes the set fields onto dst and stamps UpdatedAt.
func (p PromptPatch) Apply(dst *Prompt, now time.Time) {
	if p.Title != nil {
		dst.Title = *p.Title
	}
	if p.Template != nil {
		dst.Template = *p.Template
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.Tags != nil {
		dst.Tags = slices.Clone(*p.Tags)
		if dst.Tags == nil {
			dst.Tags = []string{}
		}
	}
	if id, changed := p.TargetCollection(); changed {
		dst.CollectionID = id
	}
	if p.IsFavorite != nil {
		dst.IsFavorite = *p.IsFavorite
	}
	if p.CopyCount != nil {
		dst.CopyCount = *p.CopyCount
	}
	if p.LastCopiedAt != nil {
		ts := p.LastCopiedAt.UTC().Truncate(time.Millisecond)
		dst.LastCopiedAt = &ts
	}
	dst.UpdatedAt = now
}

// TagPatch is a partial update; nil fields are left unchanged.
type TagPatch struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=50"`
	Color *string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TagPatch) IsEmpty() bool {
	return p.Name == nil && p.Color == nil
}

// Apply writes the set fields onto t.
func (p TagPatch) Apply(t *Tag) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	Theme            *Theme `json:"theme,omitempty" validate:"omitempty,oneof=light dark system"`
	SidebarCollapsed *bool  `json:"sidebarCollapsed,omitempty"`
}

// Apply writes the set fields onto s.
func (p SettingsPatch) Apply(s *Settings) {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.SidebarCollapsed != nil {
		s.SidebarCollapsed = *p.SidebarCollapsed
	}
}
