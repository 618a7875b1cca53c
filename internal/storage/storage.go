// Package storage defines the contract every prompt-library store implements.
// Callers depend only on Adapter; the local and remote stores are interchangeable.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
)

// Kind identifies a store implementation.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Unsubscribe stops change notifications. Calling it more than once is safe.
type Unsubscribe func()

// LossReporter is implemented by stores whose change feed can end without
// Unsubscribe being called, as when the remote service drops the socket.
// onLost runs at most once on the feed's goroutine and must not call
// Unsubscribe. The subscription is released right after it returns.
type LossReporter interface {
	SubscribeUntilLost(ctx context.Context, onChange func(), onLost func(error)) (Unsubscribe, error)
}

// Adapter is the full persistence contract for the prompt library.
//
// Add* generate an id when the caller leaves it empty and keep a caller-supplied
// one. Update* return NOT_FOUND for a missing id and always stamp UpdatedAt.
// Delete* succeed for missing ids. DeleteCollection moves the collection's prompts
// to uncategorized first; DeleteTag strips the tag's name from every prompt first.
// ImportData replaces collections, prompts, and tags (settings are kept) after
// validating the whole document.
type Adapter interface {
	Kind() Kind

	ListCollections(ctx context.Context) ([]prompt.Collection, error)
	AddCollection(ctx context.Context, c prompt.Collection) (*prompt.Collection, error)
	UpdateCollection(ctx context.Context, id string, patch prompt.CollectionPatch) error
	DeleteCollection(ctx context.Context, id string) error

	ListPrompts(ctx context.Context) ([]prompt.Prompt, error)
	GetPrompt(ctx context.Context, id string) (*prompt.Prompt, error)
	AddPrompt(ctx context.Context, p prompt.Prompt) (*prompt.Prompt, error)
	UpdatePrompt(ctx context.Context, id string, patch prompt.PromptPatch) error
	DeletePrompt(ctx context.Context, id string) error

	ListTags(ctx context.Context) ([]prompt.Tag, error)
	AddTag(ctx context.Context, t prompt.Tag) (*prompt.Tag, error)
	UpdateTag(ctx context.Context, id string, patch prompt.TagPatch) error
	DeleteTag(ctx context.Context, id string) error

	GetSettings(ctx context.Context) (*prompt.Settings, error)
	SaveSettings(ctx context.Context, patch prompt.SettingsPatch) (*prompt.Settings, error)

	ExportData(ctx context.Context) (*prompt.ExportData, error)
	ImportData(ctx context.Context, data *prompt.ExportData) error
	ClearAll(ctx context.Context) error

	// SubscribeToChanges calls onChange, with no payload, whenever collections,
	// prompts, or tags change in the backing store, including this caller's own writes.
	SubscribeToChanges(ctx context.Context, onChange func()) (Unsubscribe, error)

	Close() error
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}

// Noop is an Unsubscribe that does nothing.
func Noop() {}

// Once wraps fn so only the first call runs it.
func Once(fn func()) Unsubscribe {
	var once sync.Once
	return func() { once.Do(fn) }
}

// PrepareCollection fills the id, emoji, and timestamps of a collection
// about to be added, and validates it.
func PrepareCollection(c prompt.Collection) (prompt.Collection, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.Emoji == "" {
		c.Emoji = prompt.DefaultCollectionEmoji
	}
	c.CreatedAt, c.UpdatedAt = stamps(c.CreatedAt, c.UpdatedAt)
	return c, prompt.Validate(c)
}

// PreparePrompt fills the id and timestamps of a prompt about to be added,
// dedupes its tags, and validates it. The result shares no memory with p.
func PreparePrompt(p prompt.Prompt) (prompt.Prompt, error) {
	p = p.Clone()
	p.Title = strings.TrimSpace(p.Title)
	if p.ID == "" {
		p.ID = NewID()
	}
	p.Tags = prompt.DedupeTags(p.Tags)
	if p.CollectionID != nil && *p.CollectionID == "" {
		p.CollectionID = nil
	}
	if p.LastCopiedAt != nil {
		t := p.LastCopiedAt.UTC().Truncate(time.Millisecond)
		p.LastCopiedAt = &t
	}
	p.CreatedAt, p.UpdatedAt = stamps(p.CreatedAt, p.UpdatedAt)
	return p, prompt.Validate(p)
}

// PrepareTag fills the id and color of a tag about to be added, and validates it.
func PrepareTag(t prompt.Tag) (prompt.Tag, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Color == "" {
		t.Color = prompt.DefaultTagColor
	}
	return t, prompt.Validate(t)
}

// PreparePromptPatch dedupes tags in a patch and validates it.
func PreparePromptPatch(patch prompt.PromptPatch) (prompt.PromptPatch, error) {
	if patch.Tags != nil {
		tags := prompt.DedupeTags(*patch.Tags)
		patch.Tags = &tags
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	return patch, prompt.Validate(patch)
}

// TouchesCopyCount reports whether a patch writes the copy fields.
func TouchesCopyCount(patch prompt.PromptPatch) bool {
	return patch.CopyCount != nil || patch.LastCopiedAt != nil
}

// CheckCopyCount applies the copy-count rule to a patch against the stored
// count: the count never decreases, and lastCopiedAt moves only together
// with an increase. An increase without a time is stamped with now.
func CheckCopyCount(current int, patch *prompt.PromptPatch) error {
	if patch.CopyCount == nil {
		if patch.LastCopiedAt != nil {
			return errors.NewInvalidRequest("lastCopiedAt can only change with a copy count increase")
		}
		return nil
	}
	next := *patch.CopyCount
	switch {
	case next < current:
		return errors.NewInvalidRequest(
			fmt.Sprintf("copy count cannot decrease (current %d, requested %d)", current, next))
	case next == current:
		if patch.LastCopiedAt != nil {
			return errors.NewInvalidRequest("lastCopiedAt can only change with a copy count increase")
		}
	default:
		if patch.LastCopiedAt == nil {
			now := prompt.Now()
			patch.LastCopiedAt = &now
		} else {
			t := patch.LastCopiedAt.UTC().Truncate(time.Millisecond)
			patch.LastCopiedAt = &t
		}
	}
	return nil
}

func stamps(created, updated time.Time) (time.Time, time.Time) {
	if created.IsZero() {
		created = prompt.Now()
	} else {
		created = created.UTC().Truncate(time.Millisecond)
	}
	if updated.IsZero() {
		updated = created
	} else {
		updated = updated.UTC().Truncate(time.Millisecond)
	}
	return created, updated
}
