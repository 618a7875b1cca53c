// Package local implements storage.Adapter on the embedded SQLite database.
package local

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/neoprompts/neoprompts/internal/db"
	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/logger"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// Adapter stores the library in a SQLite database opened by db.Init.
type Adapter struct {
	db  *sql.DB
	log *slog.Logger
}

var _ storage.Adapter = (*Adapter)(nil)

// New wraps an open database. The adapter owns the handle and closes it in Close.
func New(database *sql.DB, log *slog.Logger) *Adapter {
	if log == nil {
		log = logger.Discard()
	}
	return &Adapter{db: database, log: log.With("store", storage.KindLocal)}
}

// Open initializes the database under baseDir and wraps it.
func Open(baseDir string, log *slog.Logger) (*Adapter, error) {
	database, err := db.Init(baseDir)
	if err != nil {
		return nil, errors.NewStoreFailure("open local database", err)
	}
	return New(database, log), nil
}

// DB exposes the underlying handle for pool tuning.
func (a *Adapter) DB() *sql.DB { return a.db }

func (a *Adapter) Kind() storage.Kind { return storage.KindLocal }

func (a *Adapter) Close() error { return a.db.Close() }

// Collections

func (a *Adapter) ListCollections(ctx context.Context) ([]prompt.Collection, error) {
	return db.ListCollections(ctx, a.db)
}

func (a *Adapter) AddCollection(ctx context.Context, c prompt.Collection) (*prompt.Collection, error) {
	c, err := storage.PrepareCollection(c)
	if err != nil {
		return nil, err
	}
	if err := db.InsertCollection(ctx, a.db, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (a *Adapter) UpdateCollection(ctx context.Context, id string, patch prompt.CollectionPatch) error {
	if err := prompt.Validate(patch); err != nil {
		return err
	}
	return db.InTx(ctx, a.db, func(tx *sql.Tx) error {
		c, err := db.GetCollection(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(c, prompt.Now())
		return db.UpdateCollection(ctx, tx, c)
	})
}

func (a *Adapter) DeleteCollection(ctx context.Context, id string) error {
	return db.InTx(ctx, a.db, func(tx *sql.Tx) error {
		n, err := db.ClearCollectionRefs(ctx, tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			a.log.Debug("reassigned prompts to uncategorized", "collection", id, "count", n)
		}
		return db.DeleteCollection(ctx, tx, id)
	})
}

// Prompts

func (a *Adapter) ListPrompts(ctx context.Context) ([]prompt.Prompt, error) {
	return db.ListPrompts(ctx, a.db)
}

func (a *Adapter) GetPrompt(ctx context.Context, id string) (*prompt.Prompt, error) {
	return db.GetPrompt(ctx, a.db, id)
}

func (a *Adapter) AddPrompt(ctx context.Context, p prompt.Prompt) (*prompt.Prompt, error) {
	p, err := storage.PreparePrompt(p)
	if err != nil {
		return nil, err
	}
	err = db.InTx(ctx, a.db, func(tx *sql.Tx) error {
		return db.InsertPrompt(ctx, tx, &p)
	})
	if err != nil {
		return nil, err
	}
	out := p.Clone()
	return &out, nil
}

func (a *Adapter) UpdatePrompt(ctx context.Context, id string, patch prompt.PromptPatch) error {
	patch, err := storage.PreparePromptPatch(patch)
	if err != nil {
		return err
	}
	return db.InTx(ctx, a.db, func(tx *sql.Tx) error {
		p, err := db.GetPrompt(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := storage.CheckCopyCount(p.CopyCount, &patch); err != nil {
			return err
		}
		patch.Apply(p, prompt.Now())
		return db.UpdatePrompt(ctx, tx, p)
	})
}

func (a *Adapter) DeletePrompt(ctx context.Context, id string) error {
	return db.DeletePrompt(ctx, a.db, id)
}

// Tags

func (a *Adapter) ListTags(ctx context.Context) ([]prompt.Tag, error) {
	return db.ListTags(ctx, a.db)
}

func (a *Adapter) AddTag(ctx context.Context, t prompt.Tag) (*prompt.Tag, error) {
	t, err := storage.PrepareTag(t)
	if err != nil {
		return nil, err
	}
	if err := db.InsertTag(ctx, a.db, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTag renames or recolors a tag. Prompts keep the old name.
func (a *Adapter) UpdateTag(ctx context.Context, id string, patch prompt.TagPatch) error {
	if err := prompt.Validate(patch); err != nil {
		return err
	}
	return db.InTx(ctx, a.db, func(tx *sql.Tx) error {
		t, err := db.GetTag(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(t)
		return db.UpdateTag(ctx, tx, t)
	})
}

// DeleteTag strips the tag from every prompt, then removes it.
func (a *Adapter) DeleteTag(ctx context.Context, id string) error {
	return db.InTx(ctx, a.db, func(tx *sql.Tx) error {
		t, err := db.GetTag(ctx, tx, id)
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		ids, err := db.ListPromptIDsByTag(ctx, tx, t.Name)
		if err != nil {
			return err
		}
		for _, pid := range ids {
			p, err := db.GetPrompt(ctx, tx, pid)
			if err != nil {
				return err
			}
			tags, _ := prompt.RemoveTag(p.Tags, t.Name)
			if err := db.SetPromptTags(ctx, tx, pid, tags); err != nil {
				return err
			}
		}
		a.log.Debug("deleted tag", "tag", t.Name, "prompts", len(ids))
		return db.DeleteTag(ctx, tx, id)
	})
}

// Settings

func (a *Adapter) GetSettings(ctx context.Context) (*prompt.Settings, error) {
	s, err := db.GetSettings(ctx, a.db, prompt.SettingsID)
	if errors.Is(err, errors.ErrNotFound) {
		def := prompt.DefaultSettings()
		if err := db.UpsertSettings(ctx, a.db, &def); err != nil {
			return nil, err
		}
		return &def, nil
	}
	return s, err
}

func (a *Adapter) SaveSettings(ctx context.Context, patch prompt.SettingsPatch) (*prompt.Settings, error) {
	if err := prompt.Validate(patch); err != nil {
		return nil, err
	}
	var out *prompt.Settings
	err := db.InTx(ctx, a.db, func(tx *sql.Tx) error {
		s, err := db.GetSettings(ctx, tx, prompt.SettingsID)
		if errors.Is(err, errors.ErrNotFound) {
			def := prompt.DefaultSettings()
			s, err = &def, nil
		}
		if err != nil {
			return err
		}
		patch.Apply(s)
		out = s
		return db.UpsertSettings(ctx, tx, s)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Bulk

// ExportData reads all three entity sets from one consistent snapshot.
func (a *Adapter) ExportData(ctx context.Context) (*prompt.ExportData, error) {
	out := &prompt.ExportData{}
	err := db.InTx(ctx, a.db, func(tx *sql.Tx) error {
		var err error
		if out.Collections, err = db.ListCollections(ctx, tx); err != nil {
			return err
		}
		if out.Prompts, err = db.ListPrompts(ctx, tx); err != nil {
			return err
		}
		out.Tags, err = db.ListTags(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	now := prompt.Now()
	out.ExportedAt = &now
	return out, nil
}

// ImportData replaces the library in a single transaction, so a failure
// leaves the previous contents untouched.
func (a *Adapter) ImportData(ctx context.Context, data *prompt.ExportData) error {
	if data != nil {
		data.Normalize(prompt.Now())
	}
	if err := prompt.ValidateExport(data); err != nil {
		return err
	}
	err := db.InTx(ctx, a.db, func(tx *sql.Tx) error {
		if err := db.ClearEntities(ctx, tx); err != nil {
			return err
		}
		for i := range data.Tags {
			t := data.Tags[i]
			if t.Color == "" {
				t.Color = prompt.DefaultTagColor
			}
			if err := db.InsertTag(ctx, tx, &t); err != nil {
				return err
			}
		}
		for i := range data.Collections {
			if err := db.InsertCollection(ctx, tx, &data.Collections[i]); err != nil {
				return err
			}
		}
		for i := range data.Prompts {
			if err := db.InsertPrompt(ctx, tx, &data.Prompts[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c, p, t := data.Counts()
	a.log.Info("imported library", "collections", c, "prompts", p, "tags", t)
	return nil
}

func (a *Adapter) ClearAll(ctx context.Context) error {
	return db.InTx(ctx, a.db, func(tx *sql.Tx) error {
		return db.ClearAll(ctx, tx)
	})
}

// SubscribeToChanges is a no-op: the local store has no change feed.
func (a *Adapter) SubscribeToChanges(_ context.Context, _ func()) (storage.Unsubscribe, error) {
	return storage.Noop, nil
}
