// Package mode chooses between the local and remote stores, persists that
// choice, and copies the library between them.
package mode

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/logger"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// FileName is the preference file inside the base directory.
const FileName = "mode.json"

// Mode names the active store.
type Mode string

const (
	Local  Mode = "local"
	Remote Mode = "remote"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Local, Remote:
		return Mode(s), nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown mode %q (want local or remote)", s))
}

type preference struct {
	Mode Mode `json:"mode"`
}

// SyncResult reports what a sync copied.
type SyncResult struct {
	From        Mode `json:"from"`
	To          Mode `json:"to"`
	Collections int  `json:"collections"`
	Prompts     int  `json:"prompts"`
	Tags        int  `json:"tags"`
}

// Manager owns both adapters and routes callers to the active one.
type Manager struct {
	local  storage.Adapter
	remote storage.Adapter
	path   string
	log    *slog.Logger

	mu   sync.RWMutex
	mode Mode

	syncMu sync.Mutex
}

// NewManager returns a manager in local mode. remote may be nil when the
// remote store is not configured. Call Init to apply the saved preference.
func NewManager(baseDir string, local, remote storage.Adapter, log *slog.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		local:  local,
		remote: remote,
		path:   filepath.Join(baseDir, FileName),
		log:    log,
		mode:   Local,
	}
}

// Init applies the saved preference. A remote preference falls back to local
// when the remote store is not configured or cannot be reached.
func (m *Manager) Init(ctx context.Context) error {
	pref, err := m.readPreference()
	if err != nil {
		m.log.Warn("ignoring unreadable mode preference", "path", m.path, "error", err)
		pref = Local
	}

	if pref == Remote {
		switch {
		case m.remote == nil:
			m.log.Warn("remote mode preferred but not configured, using local")
			pref = Local
		default:
			if _, err := m.remote.GetSettings(ctx); err != nil {
				if errors.Is(err, errors.ErrCancelled) {
					return err
				}
				m.log.Warn("remote store unreachable, using local", "error", err)
				pref = Local
			}
		}
	}

	m.mu.Lock()
	m.mode = pref
	m.mu.Unlock()
	m.log.Debug("storage mode", "mode", pref)
	return nil
}

func (m *Manager) readPreference() (Mode, error) {
	data, err := os.ReadFile(m.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return Local, nil
	}
	if err != nil {
		return "", err
	}
	var p preference
	if err := json.Unmarshal(data, &p); err != nil {
		return "", err
	}
	return ParseMode(string(p.Mode))
}

func (m *Manager) writePreference(mode Mode) error {
	data, err := json.MarshalIndent(preference{Mode: mode}, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0700); err != nil {
		return errors.NewStoreFailure("save mode preference", err)
	}
	if err := os.WriteFile(m.path, append(data, '\n'), 0600); err != nil {
		return errors.NewStoreFailure("save mode preference", err)
	}
	return nil
}

// Mode returns the active mode.
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Active returns the adapter for the active mode.
func (m *Manager) Active() storage.Adapter {
	if m.Mode() == Remote {
		return m.remote
	}
	return m.local
}

// RemoteAvailable reports whether a remote store is configured.
func (m *Manager) RemoteAvailable() bool {
	return m.remote != nil
}

// SetMode switches the active store and saves the preference.
// Switching to remote without a configured remote store changes nothing.
func (m *Manager) SetMode(mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	if mode == Remote && m.remote == nil {
		return errors.NewNotConfigured("remote store is not configured; set NEOPROMPTS_REMOTE_URL and NEOPROMPTS_REMOTE_KEY")
	}
	if err := m.writePreference(mode); err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.mode
	m.mode = mode
	m.mu.Unlock()
	if prev != mode {
		m.log.Info("switched storage mode", "from", prev, "to", mode)
	}
	return nil
}

// SyncToRemote replaces the remote library with the local one.
func (m *Manager) SyncToRemote(ctx context.Context) (*SyncResult, error) {
	return m.sync(ctx, Local, Remote)
}

// SyncFromRemote replaces the local library with the remote one.
func (m *Manager) SyncFromRemote(ctx context.Context) (*SyncResult, error) {
	return m.sync(ctx, Remote, Local)
}

func (m *Manager) sync(ctx context.Context, from, to Mode) (*SyncResult, error) {
	if m.remote == nil {
		return nil, errors.NewNotConfigured("remote store is not configured")
	}
	if !m.syncMu.TryLock() {
		return nil, errors.NewConflict("sync already in progress")
	}
	defer m.syncMu.Unlock()

	src, dst := m.local, m.remote
	if from == Remote {
		src, dst = m.remote, m.local
	}

	data, err := src.ExportData(ctx)
	if err != nil {
		return nil, err
	}
	if err := dst.ImportData(ctx, data); err != nil {
		return nil, err
	}

	c, p, t := data.Counts()
	m.log.Info("synced library", "from", from, "to", to, "collections", c, "prompts", p, "tags", t)
	return &SyncResult{From: from, To: to, Collections: c, Prompts: p, Tags: t}, nil
}

// Watch subscribes to changes in the active store. For the local store the
// callback never fires. onLost, when not nil, is told if the store ends the
// feed on its own; the subscription is already gone by then.
func (m *Manager) Watch(ctx context.Context, onChange func(), onLost func(error)) (storage.Unsubscribe, error) {
	active := m.Active()
	if lr, ok := active.(storage.LossReporter); ok && onLost != nil {
		return lr.SubscribeUntilLost(ctx, onChange, onLost)
	}
	return active.SubscribeToChanges(ctx, onChange)
}

// Close closes both adapters.
func (m *Manager) Close() error {
	var errs []error
	if m.remote != nil {
		errs = append(errs, m.remote.Close())
	}
	if m.local != nil {
		errs = append(errs, m.local.Close())
	}
	return stderrors.Join(errs...)
}
