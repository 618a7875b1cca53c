package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/placeholder"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// MaxComposeItems caps the number of prompts in one bundle.
const MaxComposeItems = 50

// ComposeInput contains parameters for the Compose operation.
type ComposeInput struct {
	IDs     []string          // required, 1-50 prompt ids
	Values  map[string]string // shared by every part
	Format  string            // "markdown" (default) or "json"
	StoreAs *ComposeStoreAs   // optional: save the bundle as a new prompt
}

// ComposeStoreAs specifies how to persist the composed bundle.
type ComposeStoreAs struct {
	Title        string // required
	CollectionID *string
	Tags         []string
}

// ComposeOutput contains the result of the Compose operation.
type ComposeOutput struct {
	BundleText  string        `json:"bundle_text"`
	BundleChars int           `json:"bundle_chars"`
	PartsCount  int           `json:"parts_count"`
	Missing     []string      `json:"missing,omitempty"`
	Stored      *PromptDetail `json:"stored,omitempty"`
}

// ComposePart is a single rendered prompt in the bundle.
type ComposePart struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
	Chars int    `json:"chars"`
}

// ComposeBundle is the JSON format output structure.
type ComposeBundle struct {
	Parts []ComposePart `json:"parts"`
}

// Compose renders several prompts with one set of values and joins them
// into a single bundle. All-or-nothing: fails if any prompt is missing.
func Compose(ctx context.Context, store storage.Adapter, input ComposeInput) (*ComposeOutput, error) {
	if len(input.IDs) == 0 {
		return nil, errors.NewInvalidRequest("ids is required and must not be empty")
	}
	if len(input.IDs) > MaxComposeItems {
		return nil, errors.NewInvalidRequest(
			fmt.Sprintf("too many items: %d (max %d)", len(input.IDs), MaxComposeItems))
	}

	format := input.Format
	if format == "" {
		format = "markdown"
	}
	if format != "markdown" && format != "json" {
		return nil, errors.NewInvalidRequest("format must be one of: markdown, json")
	}

	parts := make([]ComposePart, 0, len(input.IDs))
	var missing []string
	seenMissing := make(map[string]bool)
	for i, raw := range input.IDs {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("compose")
		}
		id, err := requireID("prompt", raw)
		if err != nil {
			return nil, fmt.Errorf("ids[%d]: %w", i, err)
		}
		p, err := store.GetPrompt(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("ids[%d]: %w", i, err)
		}

		for _, name := range placeholder.Missing(p.Template, input.Values) {
			if !seenMissing[name] {
				seenMissing[name] = true
				missing = append(missing, name)
			}
		}
		text := placeholder.Render(p.Template, input.Values)
		parts = append(parts, ComposePart{
			ID:    p.ID,
			Title: p.Title,
			Text:  text,
			Chars: utf8.RuneCountInString(text),
		})
	}

	var bundleText string
	if format == "markdown" {
		bundleText = assembleMarkdown(parts)
	} else {
		var err error
		bundleText, err = assembleJSON(parts)
		if err != nil {
			return nil, err
		}
	}

	output := &ComposeOutput{
		BundleText:  bundleText,
		BundleChars: utf8.RuneCountInString(bundleText),
		PartsCount:  len(parts),
		Missing:     missing,
	}

	if input.StoreAs != nil {
		stored, err := CreatePrompt(ctx, store, CreatePromptInput{
			Title:        input.StoreAs.Title,
			Template:     bundleText,
			Tags:         input.StoreAs.Tags,
			CollectionID: input.StoreAs.CollectionID,
		})
		if err != nil {
			return nil, err
		}
		output.Stored = stored
	}

	return output, nil
}

// assembleMarkdown creates markdown format: ## heading\n\ntext\n\n---\n\n...
func assembleMarkdown(parts []ComposePart) string {
	var sb strings.Builder
	for i, part := range parts {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		sb.WriteString("## ")
		sb.WriteString(part.Title)
		sb.WriteString("\n\n")
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// assembleJSON creates JSON format: {"parts": [...]}
func assembleJSON(parts []ComposePart) (string, error) {
	data, err := json.MarshalIndent(ComposeBundle{Parts: parts}, "", "  ")
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return string(data), nil
}
