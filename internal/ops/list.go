package ops

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// SortField names a prompt ordering.
type SortField string

const (
	SortCreatedAt    SortField = "createdAt"
	SortLastCopiedAt SortField = "lastCopiedAt"
	SortCopyCount    SortField = "copyCount"
	SortTitle        SortField = "title"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// PromptFilter selects prompts. Zero fields do not filter.
type PromptFilter struct {
	Search        string   // case-insensitive substring of title, template, description, or a tag
	CollectionID  *string  // exact collection
	Uncategorized bool     // only prompts without a collection
	Tags          []string // prompts carrying any of these tags
	FavoritesOnly bool
}

// IsEmpty reports whether the filter matches every prompt.
func (f PromptFilter) IsEmpty() bool {
	return strings.TrimSpace(f.Search) == "" &&
		(f.CollectionID == nil || strings.TrimSpace(*f.CollectionID) == "") &&
		!f.Uncategorized &&
		len(f.Tags) == 0 &&
		!f.FavoritesOnly
}

func (f PromptFilter) validate() error {
	if f.Uncategorized && f.CollectionID != nil && strings.TrimSpace(*f.CollectionID) != "" {
		return errors.NewInvalidRequest("collection and uncategorized filters are mutually exclusive")
	}
	return nil
}

// matcher returns a predicate for f with its inputs folded once.
func (f PromptFilter) matcher() func(p prompt.Prompt) bool {
	search := prompt.FoldTagName(f.Search)
	var collectionID string
	if f.CollectionID != nil {
		collectionID = strings.TrimSpace(*f.CollectionID)
	}
	tags := prompt.DedupeTags(f.Tags)

	return func(p prompt.Prompt) bool {
		if search != "" && !matchesSearch(p, search) {
			return false
		}
		if collectionID != "" && !p.InCollection(collectionID) {
			return false
		}
		if f.Uncategorized && p.CollectionID != nil {
			return false
		}
		if len(tags) > 0 && !slices.ContainsFunc(tags, func(t string) bool { return prompt.HasTag(p.Tags, t) }) {
			return false
		}
		if f.FavoritesOnly && !p.IsFavorite {
			return false
		}
		return true
	}
}

func matchesSearch(p prompt.Prompt, folded string) bool {
	fields := append([]string{p.Title, p.Template, p.Description}, p.Tags...)
	for _, field := range fields {
		if strings.Contains(prompt.FoldTagName(field), folded) {
			return true
		}
	}
	return false
}

// ListPromptsInput contains parameters for the ListPrompts operation.
type ListPromptsInput struct {
	Filter PromptFilter
	SortBy SortField // default: createdAt
	Order  SortOrder // default: desc
	Limit  int       // default: 50, max: 500
	Offset int       // default: 0
}

// ListPromptsOutput contains the result of the ListPrompts operation.
type ListPromptsOutput struct {
	Items      []prompt.Prompt `json:"items"`
	Pagination Pagination      `json:"pagination"`
	Sort       string          `json:"sort"`
}

// ListPrompts filters, sorts, and pages the store's prompts.
func ListPrompts(ctx context.Context, store storage.Adapter, input ListPromptsInput) (*ListPromptsOutput, error) {
	sortBy, order, err := parseSort(input.SortBy, input.Order)
	if err != nil {
		return nil, err
	}
	matched, err := filterPrompts(ctx, store, input.Filter)
	if err != nil {
		return nil, err
	}

	sortPrompts(matched, sortBy, order)
	page, pagination := paginate(matched, input.Limit, input.Offset)
	return &ListPromptsOutput{
		Items:      page,
		Pagination: pagination,
		Sort:       fmt.Sprintf("%s_%s", sortBy, order),
	}, nil
}

// filterPrompts returns the store's prompts matching f, newest first.
func filterPrompts(ctx context.Context, store storage.Adapter, f PromptFilter) ([]prompt.Prompt, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	all, err := store.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	match := f.matcher()
	out := make([]prompt.Prompt, 0, len(all))
	for _, p := range all {
		if match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func parseSort(field SortField, order SortOrder) (SortField, SortOrder, error) {
	if field == "" {
		field = SortCreatedAt
	}
	if order == "" {
		order = SortDesc
	}
	switch field {
	case SortCreatedAt, SortLastCopiedAt, SortCopyCount, SortTitle:
	default:
		return "", "", errors.NewInvalidRequest(
			fmt.Sprintf("sort must be one of: %s, %s, %s, %s", SortCreatedAt, SortLastCopiedAt, SortCopyCount, SortTitle))
	}
	if order != SortAsc && order != SortDesc {
		return "", "", errors.NewInvalidRequest("order must be asc or desc")
	}
	return field, order, nil
}

// sortPrompts sorts in place. Ties keep their input order.
// A prompt that was never copied sorts as copied at the zero time.
func sortPrompts(prompts []prompt.Prompt, field SortField, order SortOrder) {
	var cmp func(a, b prompt.Prompt) int
	switch field {
	case SortTitle:
		col := collate.New(language.Und, collate.IgnoreCase)
		cmp = func(a, b prompt.Prompt) int { return col.CompareString(a.Title, b.Title) }
	case SortCopyCount:
		cmp = func(a, b prompt.Prompt) int { return a.CopyCount - b.CopyCount }
	case SortLastCopiedAt:
		cmp = func(a, b prompt.Prompt) int { return lastCopied(a).Compare(lastCopied(b)) }
	default:
		cmp = func(a, b prompt.Prompt) int { return a.CreatedAt.Compare(b.CreatedAt) }
	}
	if order == SortDesc {
		asc := cmp
		cmp = func(a, b prompt.Prompt) int { return asc(b, a) }
	}
	slices.SortStableFunc(prompts, cmp)
}

func lastCopied(p prompt.Prompt) time.Time {
	if p.LastCopiedAt == nil {
		return time.Time{}
	}
	return *p.LastCopiedAt
}
