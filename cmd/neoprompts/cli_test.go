package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoprompts/neoprompts/internal/config"
	"github.com/neoprompts/neoprompts/internal/mode"
	"github.com/neoprompts/neoprompts/internal/ops"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
	"github.com/neoprompts/neoprompts/internal/storage/local"
	"github.com/neoprompts/neoprompts/internal/storage/remote"
	"github.com/neoprompts/neoprompts/internal/storage/remote/remotetest"
)

const testKey = "anon"

// setupEnv creates a CLI environment over a temp local store. When srv is
// non-nil the remote store points at it.
func setupEnv(t *testing.T, srv *remotetest.Server) *appEnv {
	t.Helper()
	tmpDir := t.TempDir()

	l, err := local.Open(tmpDir, nil)
	if err != nil {
		t.Fatalf("failed to open local store: %v", err)
	}

	var rem storage.Adapter
	if srv != nil {
		r, err := remote.New(remote.Config{URL: srv.URL, Key: testKey, RPS: 1000, Burst: 100})
		if err != nil {
			t.Fatalf("failed to create remote store: %v", err)
		}
		rem = r
	}

	m := mode.NewManager(tmpDir, l, rem, nil)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("failed to init mode manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	return &appEnv{modes: m, cfg: cfg}
}

// runCLI runs one command and returns what it wrote to stdout.
func runCLI(t *testing.T, env *appEnv, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(env)
	var buf bytes.Buffer
	app.Writer = &buf
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"neoprompts"}, args...))
	return buf.String(), err
}

// mustRun runs a command, fails on error, and decodes its JSON output into v.
func mustRun(t *testing.T, env *appEnv, v any, args ...string) {
	t.Helper()
	out, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("%s failed: %v", strings.Join(args, " "), err)
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single tag", "foo", []string{"foo"}},
		{"multiple tags", "foo,bar,baz", []string{"foo", "bar", "baz"}},
		{"tags with spaces", " foo , bar , baz ", []string{"foo", "bar", "baz"}},
		{"empty tags filtered", "foo,,bar,", []string{"foo", "bar"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseTags(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("expected %d tags, got %d", len(tt.expected), len(result))
				return
			}
			for i, tag := range result {
				if tag != tt.expected[i] {
					t.Errorf("expected tag[%d]=%q, got %q", i, tt.expected[i], tag)
				}
			}
		})
	}
}

func TestParseVars(t *testing.T) {
	tests := []struct {
		name        string
		input       []string
		expected    map[string]string
		expectError bool
	}{
		{"none", nil, map[string]string{}, false},
		{"simple", []string{"name=Ada"}, map[string]string{"name": "Ada"}, false},
		{"value with equals", []string{"expr=a=b"}, map[string]string{"expr": "a=b"}, false},
		{"empty value", []string{"x="}, map[string]string{"x": ""}, false},
		{"later wins", []string{"x=1", "x=2"}, map[string]string{"x": "2"}, false},
		{"missing equals", []string{"name"}, nil, true},
		{"missing name", []string{"=value"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseVars(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"neoprompts"}, false},
		{[]string{"neoprompts", "prompt", "list"}, true},
		{[]string{"neoprompts", "watch"}, true},
		{[]string{"neoprompts", "seed"}, true},
		{[]string{"neoprompts", "--version"}, true},
		{[]string{"neoprompts", "serve"}, false},
	}
	for _, tt := range tests {
		if got := isCLIMode(tt.args); got != tt.want {
			t.Errorf("isCLIMode(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestCLIHelpWithoutStores(t *testing.T) {
	out, err := runCLI(t, nil, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, cmd := range []string{"prompt", "collection", "tag", "sync", "watch"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help output missing %q", cmd)
		}
	}
}

func TestCLIPromptLifecycle(t *testing.T) {
	env := setupEnv(t, nil)

	var created ops.PromptDetail
	mustRun(t, env, &created, "prompt", "add", "--title", "Review", "--template", "Review {{file}} for {{issue}}", "--tags", "code, review")
	require.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"file", "issue"}, created.Variables)
	assert.Equal(t, []string{"code", "review"}, created.Tags)

	var list ops.ListPromptsOutput
	mustRun(t, env, &list, "prompt", "list", "--tags", "review")
	require.Len(t, list.Items, 1)
	assert.Equal(t, "createdAt_desc", list.Sort)

	var edited ops.PromptDetail
	mustRun(t, env, &edited, "prompt", "edit", "--title", "Code review", "--tags", "", created.ID)
	assert.Equal(t, "Code review", edited.Title)
	assert.Empty(t, edited.Tags)

	var faved ops.PromptDetail
	mustRun(t, env, &faved, "prompt", "fav", created.ID)
	assert.True(t, faved.IsFavorite)

	var shown ops.PromptDetail
	mustRun(t, env, &shown, "prompt", "show", created.ID)
	assert.Equal(t, "Code review", shown.Title)
	assert.True(t, shown.IsFavorite)

	mustRun(t, env, nil, "prompt", "rm", created.ID)

	_, err := runCLI(t, env, "prompt", "show", created.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[NOT_FOUND]")
}

func TestCLIPromptAdd_Errors(t *testing.T) {
	env := setupEnv(t, nil)

	_, err := runCLI(t, env, "prompt", "add", "--template", "x")
	require.Error(t, err, "missing --title should fail")

	_, err = runCLI(t, env, "prompt", "add", "--title", "x", "--template", "y", "--collection", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[INVALID_REQUEST]")
}

func TestCLIRenderAndCopy(t *testing.T) {
	env := setupEnv(t, nil)

	var created ops.PromptDetail
	mustRun(t, env, &created, "prompt", "add", "--title", "Hi", "--template", "Hi **{{name}}**")

	var rendered ops.RenderOutput
	mustRun(t, env, &rendered, "prompt", "render", "--var", "name=Ada", "--html", created.ID)
	assert.Equal(t, "Hi **Ada**", rendered.Text)
	assert.Equal(t, "<p>Hi <strong>Ada</strong></p>", rendered.HTML)
	assert.Equal(t, 0, rendered.CopyCount)

	_, err := runCLI(t, env, "prompt", "render", "--strict", created.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[INVALID_REQUEST]")

	out, err := runCLI(t, env, "prompt", "copy", "--var", "name=Bo", "--stdout", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hi **Bo**\n", out)

	var copied string
	orig := writeClipboard
	writeClipboard = func(text string) error {
		copied = text
		return nil
	}
	t.Cleanup(func() { writeClipboard = orig })

	var result map[string]any
	mustRun(t, env, &result, "prompt", "copy", "--var", "name=Cy", created.ID)
	assert.Equal(t, "Hi **Cy**", copied)
	assert.Equal(t, true, result["copied"])
	assert.Equal(t, float64(2), result["copy_count"])

	var shown ops.PromptDetail
	mustRun(t, env, &shown, "prompt", "show", created.ID)
	assert.Equal(t, 2, shown.CopyCount)
	assert.NotNil(t, shown.LastCopiedAt)
}

func TestCLICopy_ClipboardFailureKeepsCount(t *testing.T) {
	env := setupEnv(t, nil)

	var created ops.PromptDetail
	mustRun(t, env, &created, "prompt", "add", "--title", "Hi", "--template", "Hi {{name}}")

	orig := writeClipboard
	writeClipboard = func(string) error { return fmt.Errorf("no clipboard utility") }
	t.Cleanup(func() { writeClipboard = orig })

	_, err := runCLI(t, env, "prompt", "copy", "--var", "name=Ada", created.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[INTERNAL]")

	var shown ops.PromptDetail
	mustRun(t, env, &shown, "prompt", "show", created.ID)
	assert.Equal(t, 0, shown.CopyCount)
	assert.Nil(t, shown.LastCopiedAt)
}

func TestCLISeed(t *testing.T) {
	env := setupEnv(t, nil)

	var first ops.SeedOutput
	mustRun(t, env, &first, "seed")
	assert.True(t, first.Seeded)
	assert.Equal(t, 12, first.Prompts)

	var list ops.ListCollectionsOutput
	mustRun(t, env, &list, "collection", "list")
	require.Len(t, list.Items, 4)
	assert.Equal(t, "Code Assistant", list.Items[0].Name)
	assert.Equal(t, 3, list.Items[0].PromptCount)

	var second ops.SeedOutput
	mustRun(t, env, &second, "seed")
	assert.False(t, second.Seeded)
}

func TestCLICollections(t *testing.T) {
	env := setupEnv(t, nil)

	var a, b prompt.Collection
	mustRun(t, env, &a, "collection", "add", "Work", "stuff")
	mustRun(t, env, &b, "collection", "add", "--emoji", "🏠", "Home")
	assert.Equal(t, "Work stuff", a.Name)
	assert.Equal(t, prompt.DefaultCollectionEmoji, a.Emoji)
	assert.Equal(t, 0, a.Order)
	assert.Equal(t, 1, b.Order)

	mustRun(t, env, nil, "prompt", "add", "--title", "filed", "--template", "x", "--collection", a.ID)

	var reordered []prompt.Collection
	mustRun(t, env, &reordered, "collection", "reorder", b.ID, a.ID)
	require.Len(t, reordered, 2)

	var renamed prompt.Collection
	mustRun(t, env, &renamed, "collection", "rename", a.ID, "Office")
	assert.Equal(t, "Office", renamed.Name)

	var list ops.ListCollectionsOutput
	mustRun(t, env, &list, "collection", "list")
	require.Len(t, list.Items, 2)
	assert.Equal(t, "Home", list.Items[0].Name)
	assert.Equal(t, "Office", list.Items[1].Name)
	assert.Equal(t, 1, list.Items[1].PromptCount)

	mustRun(t, env, nil, "collection", "rm", a.ID)
	mustRun(t, env, &list, "collection", "list")
	assert.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Uncategorized)

	_, err := runCLI(t, env, "collection", "reorder", b.ID)
	require.NoError(t, err, "a full permutation of one collection is valid")
}

func TestCLITags(t *testing.T) {
	env := setupEnv(t, nil)

	var tag prompt.Tag
	mustRun(t, env, &tag, "tag", "add", "--color", "#112233", "draft")
	assert.Equal(t, "#112233", tag.Color)

	mustRun(t, env, nil, "prompt", "add", "--title", "p", "--template", "x", "--tags", "Draft,keep")

	_, err := runCLI(t, env, "tag", "add", "DRAFT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[CONFLICT]")

	var renamed prompt.Tag
	mustRun(t, env, &renamed, "tag", "rename", "--color", "#445566", tag.ID, "wip")
	assert.Equal(t, "wip", renamed.Name)
	assert.Equal(t, "#445566", renamed.Color)

	var list ops.ListTagsOutput
	mustRun(t, env, &list, "tag", "list")
	require.Len(t, list.Items, 2)

	var keep prompt.Tag
	for _, item := range list.Items {
		if item.Name == "keep" {
			keep = item.Tag
		}
	}
	require.NotEmpty(t, keep.ID)
	mustRun(t, env, nil, "tag", "rm", keep.ID)

	var prompts ops.ListPromptsOutput
	mustRun(t, env, &prompts, "prompt", "list")
	require.Len(t, prompts.Items, 1)
	assert.Equal(t, []string{"Draft"}, prompts.Items[0].Tags)
}

func TestCLISettings(t *testing.T) {
	env := setupEnv(t, nil)

	var s prompt.Settings
	mustRun(t, env, &s, "settings", "show")
	assert.Equal(t, prompt.ThemeSystem, s.Theme)

	mustRun(t, env, &s, "settings", "set", "--theme", "dark", "--sidebar-collapsed")
	assert.Equal(t, prompt.ThemeDark, s.Theme)
	assert.True(t, s.SidebarCollapsed)

	_, err := runCLI(t, env, "settings", "set")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[INVALID_REQUEST]")
}

func TestCLIModeAndSync(t *testing.T) {
	srv := remotetest.NewServer(testKey)
	t.Cleanup(srv.Close)
	env := setupEnv(t, srv)

	var status modeStatus
	mustRun(t, env, &status, "mode", "show")
	assert.Equal(t, mode.Local, status.Mode)
	assert.True(t, status.RemoteAvailable)

	mustRun(t, env, nil, "prompt", "add", "--title", "travels", "--template", "t")

	var pushed mode.SyncResult
	mustRun(t, env, &pushed, "sync", "push")
	assert.Equal(t, 1, pushed.Prompts)
	assert.Len(t, srv.Rows("prompts"), 1)

	mustRun(t, env, &status, "mode", "set", "remote")
	assert.Equal(t, mode.Remote, status.Mode)

	var list ops.ListPromptsOutput
	mustRun(t, env, &list, "prompt", "list")
	require.Len(t, list.Items, 1)
	assert.Equal(t, "travels", list.Items[0].Title)

	_, err := runCLI(t, env, "mode", "set", "cloud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[INVALID_REQUEST]")
}

func TestCLIModeSet_NotConfigured(t *testing.T) {
	env := setupEnv(t, nil)

	_, err := runCLI(t, env, "mode", "set", "remote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[NOT_CONFIGURED]")

	_, err = runCLI(t, env, "sync", "pull")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[NOT_CONFIGURED]")
}

func TestCLIExportImport(t *testing.T) {
	env := setupEnv(t, nil)
	mustRun(t, env, nil, "prompt", "add", "--title", "saved", "--template", "s")

	path := filepath.Join(t.TempDir(), "library.json")
	var exported ops.ExportOutput
	mustRun(t, env, &exported, "export", "--path", path)
	assert.Equal(t, path, exported.Path)
	assert.Equal(t, 1, exported.Prompts)

	mustRun(t, env, nil, "prompt", "add", "--title", "scratch", "--template", "x")

	var dry ops.ImportOutput
	mustRun(t, env, &dry, "import", "--dry-run", path)
	assert.True(t, dry.DryRun)

	var imported ops.ImportOutput
	mustRun(t, env, &imported, "import", path)
	assert.Equal(t, 1, imported.Prompts)

	var list ops.ListPromptsOutput
	mustRun(t, env, &list, "prompt", "list")
	require.Len(t, list.Items, 1)
	assert.Equal(t, "saved", list.Items[0].Title)
}

func TestCLIExportImport_Latest(t *testing.T) {
	env := setupEnv(t, nil)
	env.cfg.ExportsDir = t.TempDir()
	mustRun(t, env, nil, "prompt", "add", "--title", "saved", "--template", "s")

	var none []ops.ExportFile
	mustRun(t, env, &none, "export", "--list")
	assert.Empty(t, none)

	var exported ops.ExportOutput
	mustRun(t, env, &exported, "export", "--label", "Weekly Backup")
	assert.Equal(t, env.cfg.ExportsDir, filepath.Dir(exported.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(exported.Path), "weekly-backup-"), exported.Path)

	var files []ops.ExportFile
	mustRun(t, env, &files, "export", "--list")
	require.Len(t, files, 1)
	assert.Equal(t, exported.Path, files[0].Path)
	assert.Equal(t, "weekly-backup", files[0].Label)

	mustRun(t, env, nil, "prompt", "add", "--title", "scratch", "--template", "x")

	var imported ops.ImportOutput
	mustRun(t, env, &imported, "import", "--latest")
	assert.Equal(t, exported.Path, imported.Path)
	assert.Equal(t, 1, imported.Prompts)
}

func TestCLIClear(t *testing.T) {
	env := setupEnv(t, nil)
	mustRun(t, env, nil, "prompt", "add", "--title", "gone", "--template", "g")

	_, err := runCLI(t, env, "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	mustRun(t, env, nil, "clear", "--yes")

	var list ops.ListPromptsOutput
	mustRun(t, env, &list, "prompt", "list")
	assert.Empty(t, list.Items)
}

func TestCLIWatch_StopsOnCancel(t *testing.T) {
	env := setupEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	app := newCLIApp(env)
	var buf bytes.Buffer
	app.Writer = &buf
	err := app.RunContext(ctx, []string{"neoprompts", "watch"})
	require.NoError(t, err)
	assert.Empty(t, buf.String(), "local store never reports changes")
}

func TestCLIWatch_ExitsWhenFeedIsLost(t *testing.T) {
	srv := remotetest.NewServer(testKey)
	t.Cleanup(srv.Close)
	env := setupEnv(t, srv)
	mustRun(t, env, nil, "mode", "set", "remote")

	app := newCLIApp(env)
	var buf bytes.Buffer
	app.Writer = &buf
	app.ErrWriter = io.Discard

	done := make(chan error, 1)
	go func() { done <- app.RunContext(context.Background(), []string{"neoprompts", "watch"}) }()

	require.Eventually(t, func() bool { return srv.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	srv.DropSockets()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "[STORE_FAILURE]")
	case <-time.After(5 * time.Second):
		t.Fatal("watch kept running after the feed was lost")
	}

	var ev changeEvent
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	assert.Equal(t, "lost", ev.Event)
	assert.Equal(t, mode.Remote, ev.Mode)
}

func TestOpenStores(t *testing.T) {
	ctx := context.Background()

	t.Run("local only", func(t *testing.T) {
		m, err := openStores(ctx, t.TempDir(), config.DefaultConfig(), newLogger(config.DefaultConfig()))
		require.NoError(t, err)
		defer m.Close()
		assert.Equal(t, mode.Local, m.Mode())
		assert.False(t, m.RemoteAvailable())
	})

	t.Run("with remote", func(t *testing.T) {
		srv := remotetest.NewServer(testKey)
		defer srv.Close()

		cfg := config.DefaultConfig()
		cfg.RemoteURL = srv.URL
		cfg.RemoteKey = testKey
		m, err := openStores(ctx, t.TempDir(), cfg, newLogger(cfg))
		require.NoError(t, err)
		defer m.Close()
		assert.True(t, m.RemoteAvailable())
	})

	t.Run("invalid remote url falls back to local only", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.RemoteURL = "ftp://example.com"
		cfg.RemoteKey = testKey
		m, err := openStores(ctx, t.TempDir(), cfg, newLogger(cfg))
		require.NoError(t, err)
		defer m.Close()
		assert.False(t, m.RemoteAvailable())
	})
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	env := map[string]string{
		config.EnvRemoteURL: "https://example.test",
		config.EnvRemoteKey: "k",
	}
	cfg, err := loadConfig(t.TempDir(), func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.test", cfg.RemoteURL)
	assert.True(t, cfg.HasRemote())
}
