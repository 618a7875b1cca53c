// Package remote implements storage.Adapter against a hosted PostgREST table
// service with a Phoenix-style realtime channel for change notifications.
package remote

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/logger"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

const (
	// DefaultRPS and DefaultBurst pace requests when Config leaves them zero.
	DefaultRPS   = 20
	DefaultBurst = 10
)

const (
	tableCollections = "collections"
	tablePrompts     = "prompts"
	tableTags        = "tags"
	tableSettings    = "settings"
)

// Config configures a remote adapter.
type Config struct {
	URL        string // service base URL, e.g. https://project.example.co
	Key        string // API key sent as apikey and bearer token
	RPS        float64
	Burst      int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Adapter stores the library in the remote table service.
type Adapter struct {
	c      *client
	log    *slog.Logger
	wsURL  string
	origin string

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ storage.Adapter = (*Adapter)(nil)

// New validates cfg and returns an adapter. No request is made.
func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.NewNotConfigured("remote store requires both a URL and an API key")
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.URL), "/"))
	if err != nil || base.Host == "" {
		return nil, errors.NewNotConfigured("remote URL is not a valid absolute URL")
	}
	var wsScheme string
	switch base.Scheme {
	case "https":
		wsScheme = "wss"
	case "http":
		wsScheme = "ws"
	default:
		return nil, errors.NewNotConfigured("remote URL must use http or https")
	}

	rps := cfg.RPS
	if rps <= 0 {
		rps = DefaultRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultClientTimeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("store", storage.KindRemote)

	ws := *base
	ws.Scheme = wsScheme
	ws.Path = strings.TrimRight(ws.Path, "/") + realtimePath
	ws.RawQuery = url.Values{"apikey": {cfg.Key}, "vsn": {realtimeVersion}}.Encode()

	return &Adapter{
		c: &client{
			base:    base.String(),
			key:     cfg.Key,
			http:    hc,
			limiter: rate.NewLimiter(rate.Limit(rps), burst),
			log:     log,
		},
		log:    log,
		wsURL:  ws.String(),
		origin: base.String(),
		subs:   make(map[*subscription]struct{}),
	}, nil
}

func (a *Adapter) Kind() storage.Kind { return storage.KindRemote }

// Close tears down every open change subscription.
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.closed = true
	subs := make([]*subscription, 0, len(a.subs))
	for s := range a.subs {
		subs = append(subs, s)
	}
	a.subs = make(map[*subscription]struct{})
	a.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	return nil
}

// Collections

func (a *Adapter) ListCollections(ctx context.Context) ([]prompt.Collection, error) {
	var rows []collectionRow
	err := a.c.do(ctx, call{
		op:     "list collections",
		method: http.MethodGet,
		table:  tableCollections,
		query:  url.Values{"select": {"*"}, "order": {"order.asc,created_at.asc,id.asc"}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]prompt.Collection, len(rows))
	for i, r := range rows {
		out[i] = r.collection()
	}
	return out, nil
}

func (a *Adapter) AddCollection(ctx context.Context, c prompt.Collection) (*prompt.Collection, error) {
	c, err := storage.PrepareCollection(c)
	if err != nil {
		return nil, err
	}
	err = a.c.do(ctx, call{
		op:     "insert collection",
		method: http.MethodPost,
		table:  tableCollections,
		body:   toCollectionRow(c),
		prefer: preferMinimal,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (a *Adapter) UpdateCollection(ctx context.Context, id string, patch prompt.CollectionPatch) error {
	if err := prompt.Validate(patch); err != nil {
		return err
	}
	var rows []collectionRow
	err := a.c.do(ctx, call{
		op:     "update collection",
		method: http.MethodPatch,
		table:  tableCollections,
		query:  byID(id),
		body:   collectionPatchBody(patch, prompt.Now()),
		prefer: preferRepresentation,
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.NewNotFound("collection", id)
	}
	return nil
}

// DeleteCollection moves the collection's prompts to uncategorized, then deletes it.
func (a *Adapter) DeleteCollection(ctx context.Context, id string) error {
	err := a.c.do(ctx, call{
		op:     "reassign prompts",
		method: http.MethodPatch,
		table:  tablePrompts,
		query:  url.Values{"collection_id": {eq(id)}},
		body:   map[string]any{"collection_id": nil},
		prefer: preferMinimal,
	}, nil)
	if err != nil {
		return err
	}
	return a.c.do(ctx, call{
		op:     "delete collection",
		method: http.MethodDelete,
		table:  tableCollections,
		query:  byID(id),
	}, nil)
}

// Prompts

func (a *Adapter) ListPrompts(ctx context.Context) ([]prompt.Prompt, error) {
	var rows []promptRow
	err := a.c.do(ctx, call{
		op:     "list prompts",
		method: http.MethodGet,
		table:  tablePrompts,
		query:  url.Values{"select": {"*"}, "order": {"created_at.desc,id.asc"}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]prompt.Prompt, len(rows))
	for i, r := range rows {
		out[i] = r.prompt()
	}
	return out, nil
}

func (a *Adapter) GetPrompt(ctx context.Context, id string) (*prompt.Prompt, error) {
	var row promptRow
	err := a.c.do(ctx, call{
		op:     "get prompt",
		method: http.MethodGet,
		table:  tablePrompts,
		query:  url.Values{"select": {"*"}, "id": {eq(id)}},
		object: true,
		kind:   "prompt",
		id:     id,
	}, &row)
	if err != nil {
		return nil, err
	}
	p := row.prompt()
	return &p, nil
}

func (a *Adapter) AddPrompt(ctx context.Context, p prompt.Prompt) (*prompt.Prompt, error) {
	p, err := storage.PreparePrompt(p)
	if err != nil {
		return nil, err
	}
	err = a.c.do(ctx, call{
		op:     "insert prompt",
		method: http.MethodPost,
		table:  tablePrompts,
		body:   toPromptRow(p),
		prefer: preferMinimal,
	}, nil)
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
	query := byID(id)
	if storage.TouchesCopyCount(patch) {
		current, err := a.GetPrompt(ctx, id)
		if err != nil {
			return err
		}
		if err := storage.CheckCopyCount(current.CopyCount, &patch); err != nil {
			return err
		}
		// Only write if nobody counted a copy since the read.
		query.Set("copy_count", eq(strconv.Itoa(current.CopyCount)))
	}

	var rows []promptRow
	err = a.c.do(ctx, call{
		op:     "update prompt",
		method: http.MethodPatch,
		table:  tablePrompts,
		query:  query,
		body:   promptPatchBody(patch, prompt.Now()),
		prefer: preferRepresentation,
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		if query.Has("copy_count") {
			if _, err := a.GetPrompt(ctx, id); err == nil {
				return errors.NewConflict("prompt copy count changed during update")
			}
		}
		return errors.NewNotFound("prompt", id)
	}
	return nil
}

func (a *Adapter) DeletePrompt(ctx context.Context, id string) error {
	return a.c.do(ctx, call{
		op:     "delete prompt",
		method: http.MethodDelete,
		table:  tablePrompts,
		query:  byID(id),
	}, nil)
}

// Tags

func (a *Adapter) ListTags(ctx context.Context) ([]prompt.Tag, error) {
	var rows []tagRow
	err := a.c.do(ctx, call{
		op:     "list tags",
		method: http.MethodGet,
		table:  tableTags,
		query:  url.Values{"select": {"*"}, "order": {"name.asc,id.asc"}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]prompt.Tag, len(rows))
	for i, r := range rows {
		out[i] = r.tag()
	}
	return out, nil
}

func (a *Adapter) getTag(ctx context.Context, id string) (*prompt.Tag, error) {
	var row tagRow
	err := a.c.do(ctx, call{
		op:     "get tag",
		method: http.MethodGet,
		table:  tableTags,
		query:  url.Values{"select": {"*"}, "id": {eq(id)}},
		object: true,
		kind:   "tag",
		id:     id,
	}, &row)
	if err != nil {
		return nil, err
	}
	t := row.tag()
	return &t, nil
}

func (a *Adapter) AddTag(ctx context.Context, t prompt.Tag) (*prompt.Tag, error) {
	t, err := storage.PrepareTag(t)
	if err != nil {
		return nil, err
	}
	err = a.c.do(ctx, call{
		op:     "insert tag",
		method: http.MethodPost,
		table:  tableTags,
		body:   toTagRow(t),
		prefer: preferMinimal,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTag renames or recolors a tag. Prompts keep the old name.
func (a *Adapter) UpdateTag(ctx context.Context, id string, patch prompt.TagPatch) error {
	if err := prompt.Validate(patch); err != nil {
		return err
	}
	if patch.IsEmpty() {
		_, err := a.getTag(ctx, id)
		return err
	}
	var rows []tagRow
	err := a.c.do(ctx, call{
		op:     "update tag",
		method: http.MethodPatch,
		table:  tableTags,
		query:  byID(id),
		body:   tagPatchBody(patch),
		prefer: preferRepresentation,
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.NewNotFound("tag", id)
	}
	return nil
}

// DeleteTag strips the tag from every prompt carrying it, then removes it.
// Names match case-insensitively, so the candidate prompts are filtered here
// rather than with the service's case-sensitive containment operator.
func (a *Adapter) DeleteTag(ctx context.Context, id string) error {
	t, err := a.getTag(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var rows []struct {
		ID   string   `json:"id"`
		Tags []string `json:"tags"`
	}
	err = a.c.do(ctx, call{
		op:     "list tagged prompts",
		method: http.MethodGet,
		table:  tablePrompts,
		query:  url.Values{"select": {"id,tags"}},
	}, &rows)
	if err != nil {
		return err
	}

	stripped := 0
	for _, r := range rows {
		tags, removed := prompt.RemoveTag(r.Tags, t.Name)
		if !removed {
			continue
		}
		err := a.c.do(ctx, call{
			op:     "strip tag",
			method: http.MethodPatch,
			table:  tablePrompts,
			query:  byID(r.ID),
			body:   map[string]any{"tags": tags},
			prefer: preferMinimal,
		}, nil)
		if err != nil {
			return err
		}
		stripped++
	}
	a.log.Debug("deleted tag", "tag", t.Name, "prompts", stripped)

	return a.c.do(ctx, call{
		op:     "delete tag",
		method: http.MethodDelete,
		table:  tableTags,
		query:  byID(id),
	}, nil)
}

// Settings

func (a *Adapter) GetSettings(ctx context.Context) (*prompt.Settings, error) {
	var row settingsRow
	err := a.c.do(ctx, call{
		op:     "get settings",
		method: http.MethodGet,
		table:  tableSettings,
		query:  url.Values{"select": {"*"}, "id": {eq(prompt.SettingsID)}},
		object: true,
		kind:   "settings",
		id:     prompt.SettingsID,
	}, &row)
	if errors.Is(err, errors.ErrNotFound) {
		def := prompt.DefaultSettings()
		if err := a.upsertSettings(ctx, def); err != nil {
			return nil, err
		}
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	s := row.settings()
	return &s, nil
}

func (a *Adapter) SaveSettings(ctx context.Context, patch prompt.SettingsPatch) (*prompt.Settings, error) {
	if err := prompt.Validate(patch); err != nil {
		return nil, err
	}
	s, err := a.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	patch.Apply(s)
	if err := a.upsertSettings(ctx, *s); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *Adapter) upsertSettings(ctx context.Context, s prompt.Settings) error {
	return a.c.do(ctx, call{
		op:     "save settings",
		method: http.MethodPost,
		table:  tableSettings,
		body:   toSettingsRow(s),
		prefer: preferUpsert,
	}, nil)
}

// Bulk

// BulkUpsertTags inserts or replaces tags by id in one request.
func (a *Adapter) BulkUpsertTags(ctx context.Context, tags []prompt.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	rows := make([]tagRow, len(tags))
	for i, t := range tags {
		if t.Color == "" {
			t.Color = prompt.DefaultTagColor
		}
		rows[i] = toTagRow(t)
	}
	return a.upsert(ctx, "upsert tags", tableTags, rows)
}

// BulkUpsertCollections inserts or replaces collections by id in one request.
func (a *Adapter) BulkUpsertCollections(ctx context.Context, collections []prompt.Collection) error {
	if len(collections) == 0 {
		return nil
	}
	rows := make([]collectionRow, len(collections))
	for i, c := range collections {
		rows[i] = toCollectionRow(c)
	}
	return a.upsert(ctx, "upsert collections", tableCollections, rows)
}

// BulkUpsertPrompts inserts or replaces prompts by id in one request.
func (a *Adapter) BulkUpsertPrompts(ctx context.Context, prompts []prompt.Prompt) error {
	if len(prompts) == 0 {
		return nil
	}
	rows := make([]promptRow, len(prompts))
	for i, p := range prompts {
		rows[i] = toPromptRow(p)
	}
	return a.upsert(ctx, "upsert prompts", tablePrompts, rows)
}

func (a *Adapter) upsert(ctx context.Context, op, table string, rows any) error {
	return a.c.do(ctx, call{
		op:     op,
		method: http.MethodPost,
		table:  table,
		body:   rows,
		prefer: preferUpsert,
	}, nil)
}

// ExportData fetches the three entity tables concurrently.
func (a *Adapter) ExportData(ctx context.Context) (*prompt.ExportData, error) {
	out := &prompt.ExportData{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Collections, err = a.ListCollections(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Prompts, err = a.ListPrompts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Tags, err = a.ListTags(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	now := prompt.Now()
	out.ExportedAt = &now
	return out, nil
}

// ImportData replaces collections, prompts, and tags. The service offers no
// multi-table transaction, so the current contents are snapshotted first and
// written back if any step fails.
func (a *Adapter) ImportData(ctx context.Context, data *prompt.ExportData) error {
	if data != nil {
		data.Normalize(prompt.Now())
	}
	if err := prompt.ValidateExport(data); err != nil {
		return err
	}

	snapshot, err := a.ExportData(ctx)
	if err != nil {
		return err
	}

	if err := a.replace(ctx, data); err != nil {
		if restoreErr := a.replace(ctx, snapshot); restoreErr != nil {
			a.log.Error("restore after failed import also failed", "import_error", err, "restore_error", restoreErr)
			return errors.NewStoreFailure("import and restore", stderrors.Join(err, restoreErr))
		}
		a.log.Warn("import failed, previous library restored", "error", err)
		return err
	}

	c, p, t := data.Counts()
	a.log.Info("imported library", "collections", c, "prompts", p, "tags", t)
	return nil
}

func (a *Adapter) replace(ctx context.Context, data *prompt.ExportData) error {
	if err := a.clearEntities(ctx); err != nil {
		return err
	}
	if err := a.BulkUpsertTags(ctx, data.Tags); err != nil {
		return err
	}
	if err := a.BulkUpsertCollections(ctx, data.Collections); err != nil {
		return err
	}
	return a.BulkUpsertPrompts(ctx, data.Prompts)
}

func (a *Adapter) clearEntities(ctx context.Context) error {
	for _, table := range []string{tablePrompts, tableCollections, tableTags} {
		err := a.c.do(ctx, call{
			op:     "clear " + table,
			method: http.MethodDelete,
			table:  table,
			query:  matchAll(),
		}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

// ClearAll deletes prompts, collections, tags, then settings.
func (a *Adapter) ClearAll(ctx context.Context) error {
	if err := a.clearEntities(ctx); err != nil {
		return err
	}
	return a.c.do(ctx, call{
		op:     "clear settings",
		method: http.MethodDelete,
		table:  tableSettings,
		query:  matchAll(),
	}, nil)
}
