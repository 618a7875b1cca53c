package prompt

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/neoprompts/neoprompts/internal/errors"
)

// ExportData is the full-library document used by export, import, and sync.
type ExportData struct {
	Collections []Collection `json:"collections"`
	Prompts     []Prompt     `json:"prompts"`
	Tags        []Tag        `json:"tags"`
	ExportedAt  *time.Time   `json:"exportedAt,omitempty"`
}

// Counts returns the number of entities of each kind.
func (d *ExportData) Counts() (collections, prompts, tags int) {
	return len(d.Collections), len(d.Prompts), len(d.Tags)
}

// Normalize fills nil slices and zero timestamps so the document
// can be written to any store unchanged.
func (d *ExportData) Normalize(now time.Time) {
	if d.Collections == nil {
		d.Collections = []Collection{}
	}
	if d.Prompts == nil {
		d.Prompts = []Prompt{}
	}
	if d.Tags == nil {
		d.Tags = []Tag{}
	}
	for i := range d.Collections {
		c := &d.Collections[i]
		c.CreatedAt = orNow(c.CreatedAt, now)
		c.UpdatedAt = orNow(c.UpdatedAt, c.CreatedAt)
	}
	for i := range d.Prompts {
		p := &d.Prompts[i]
		if p.Tags == nil {
			p.Tags = []string{}
		}
		if p.CollectionID != nil && *p.CollectionID == "" {
			p.CollectionID = nil
		}
		p.CreatedAt = orNow(p.CreatedAt, now)
		p.UpdatedAt = orNow(p.UpdatedAt, p.CreatedAt)
	}
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.UTC().Truncate(time.Millisecond)
}

// ParseExport decodes an export document. Any decoding problem,
// including unparseable timestamps, is a MALFORMED_IMPORT error.
func ParseExport(r io.Reader) (*ExportData, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.NewMalformedImport(fmt.Sprintf("invalid export document: %v", err))
	}
	if raw == nil {
		return nil, errors.NewMalformedImport("export document must be a JSON object")
	}

	d := &ExportData{}
	fields := []struct {
		key string
		dst any
	}{
		{"collections", &d.Collections},
		{"prompts", &d.Prompts},
		{"tags", &d.Tags},
		{"exportedAt", &d.ExportedAt},
	}
	for _, f := range fields {
		msg, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(msg, f.dst); err != nil {
			return nil, errors.NewMalformedImport(fmt.Sprintf("invalid %s: %v", f.key, err))
		}
	}

	d.Normalize(Now())
	if err := ValidateExport(d); err != nil {
		return nil, err
	}
	return d, nil
}

// ValidateExport checks that a document can be applied as a whole:
// ids present and unique per kind, tag names unique, collection
// references resolvable inside the document, and entity fields valid.
func ValidateExport(d *ExportData) error {
	if d == nil {
		return errors.NewMalformedImport("export document is empty")
	}

	collectionIDs := make(map[string]bool, len(d.Collections))
	for i, c := range d.Collections {
		if c.ID == "" {
			return errors.NewMalformedImport(fmt.Sprintf("collections[%d]: id is required", i))
		}
		if collectionIDs[c.ID] {
			return errors.NewMalformedImport(fmt.Sprintf("duplicate collection id %q", c.ID))
		}
		collectionIDs[c.ID] = true
		if err := Validate(c); err != nil {
			return malformed(fmt.Sprintf("collection %q", c.ID), err)
		}
	}

	tagIDs := make(map[string]bool, len(d.Tags))
	tagNames := make(map[string]bool, len(d.Tags))
	for i, t := range d.Tags {
		if t.ID == "" {
			return errors.NewMalformedImport(fmt.Sprintf("tags[%d]: id is required", i))
		}
		if tagIDs[t.ID] {
			return errors.NewMalformedImport(fmt.Sprintf("duplicate tag id %q", t.ID))
		}
		tagIDs[t.ID] = true
		if err := Validate(t); err != nil {
			return malformed(fmt.Sprintf("tag %q", t.ID), err)
		}
		key := FoldTagName(t.Name)
		if tagNames[key] {
			return errors.NewMalformedImport(fmt.Sprintf("duplicate tag name %q", t.Name))
		}
		tagNames[key] = true
	}

	promptIDs := make(map[string]bool, len(d.Prompts))
	for i, p := range d.Prompts {
		if p.ID == "" {
			return errors.NewMalformedImport(fmt.Sprintf("prompts[%d]: id is required", i))
		}
		if promptIDs[p.ID] {
			return errors.NewMalformedImport(fmt.Sprintf("duplicate prompt id %q", p.ID))
		}
		promptIDs[p.ID] = true
		if err := Validate(p); err != nil {
			return malformed(fmt.Sprintf("prompt %q", p.ID), err)
		}
		if p.CollectionID != nil && !collectionIDs[*p.CollectionID] {
			return errors.NewMalformedImport(
				fmt.Sprintf("prompt %q references unknown collection %q", p.ID, *p.CollectionID))
		}
	}

	return nil
}

func malformed(subject string, err error) error {
	if e, ok := errors.As(err); ok {
		return errors.NewMalformedImport(fmt.Sprintf("%s: %s", subject, e.Message))
	}
	return errors.NewMalformedImport(fmt.Sprintf("%s: %v", subject, err))
}
