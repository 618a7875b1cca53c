package ops

import (
	"context"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/placeholder"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// RenderInput contains parameters for the RenderPrompt and UsePrompt operations.
type RenderInput struct {
	ID     string            // required
	Values map[string]string // placeholder name -> value
	HTML   bool              // also render the result as HTML
	Strict bool              // fail when a placeholder has no value
}

// RenderOutput contains a rendered template.
type RenderOutput struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	HTML      string   `json:"html,omitempty"`
	Variables []string `json:"variables"`
	Missing   []string `json:"missing,omitempty"`
	CopyCount int      `json:"copy_count"`
}

// RenderPrompt fills a prompt's placeholders without recording a use.
// Placeholders with no value render as the empty string unless Strict is set.
func RenderPrompt(ctx context.Context, store storage.Adapter, input RenderInput) (*RenderOutput, error) {
	id, err := requireID("prompt", input.ID)
	if err != nil {
		return nil, err
	}
	p, err := store.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	return render(p, input)
}

// UsePrompt renders a prompt and records the copy: the copy count grows
// by one and the last-copied time is set.
func UsePrompt(ctx context.Context, store storage.Adapter, input RenderInput) (*RenderOutput, error) {
	out, err := RenderPrompt(ctx, store, input)
	if err != nil {
		return nil, err
	}
	p, err := IncrementCopyCount(ctx, store, out.ID)
	if err != nil {
		return nil, err
	}
	out.CopyCount = p.CopyCount
	return out, nil
}

func render(p *prompt.Prompt, input RenderInput) (*RenderOutput, error) {
	missing := placeholder.Missing(p.Template, input.Values)
	if input.Strict && len(missing) > 0 {
		err := errors.NewInvalidRequest("missing values for placeholders")
		err.Details = map[string]any{"missing": missing}
		return nil, err
	}

	out := &RenderOutput{
		ID:        p.ID,
		Title:     p.Title,
		Text:      placeholder.Render(p.Template, input.Values),
		Variables: placeholder.Names(p.Template),
		Missing:   missing,
		CopyCount: p.CopyCount,
	}
	if input.HTML {
		html, err := placeholder.RenderHTML(p.Template, input.Values)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out.HTML = html
	}
	return out, nil
}
