package ops

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/neoprompts/neoprompts/internal/config"
	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/mode"
)

func exportsConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.ExportsDir = dir
	return cfg
}

func TestExportFileName(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC)

	tests := []struct {
		label string
		want  string
	}{
		{"", "neoprompts-2024-03-01T093015.json"},
		{"   ", "neoprompts-2024-03-01T093015.json"},
		{"../My Backup", "my-backup-2024-03-01T093015.json"},
		{"Q3 / Review!!", "q3-review-2024-03-01T093015.json"},
		{"work-prompts", "work-prompts-2024-03-01T093015.json"},
	}
	for _, tc := range tests {
		got := ExportFileName(tc.label, at)
		if got != tc.want {
			t.Errorf("ExportFileName(%q) = %q, want %q", tc.label, got, tc.want)
		}
		label, parsed, ok := ParseExportFileName(got)
		if !ok || !parsed.Equal(at) {
			t.Errorf("ParseExportFileName(%q) = %q, %v, %v", got, label, parsed, ok)
		}
	}
}

func TestParseExportFileName_Foreign(t *testing.T) {
	for _, name := range []string{
		"library.json",
		"neoprompts-2024-03-01.json",
		"neoprompts-2024-03-01T093015.jsonl",
		"Backup-2024-03-01T093015.json",
		"-2024-03-01T093015.json",
		"neoprompts_2024-03-01T093015.json",
	} {
		if label, at, ok := ParseExportFileName(name); ok {
			t.Errorf("ParseExportFileName(%q) = %q, %v, want not ok", name, label, at)
		}
	}
}

func TestExport_DefaultPathUsesExportsDir(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedLibrary(t, store)
	dir := filepath.Join(t.TempDir(), "exports")

	out, err := Export(ctx, store, exportsConfig(dir), ExportInput{Label: "Weekly"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	want := filepath.Join(dir, ExportFileName("Weekly", out.ExportedAt))
	if out.Path != want {
		t.Errorf("Path = %q, want %q", out.Path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestImport_Latest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := exportsConfig(dir)

	src := newStore(t)
	seedLibrary(t, src)
	older := filepath.Join(dir, ExportFileName("nightly", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	if _, err := Export(ctx, src, cfg, ExportInput{Path: older}); err != nil {
		t.Fatalf("Export older failed: %v", err)
	}
	if _, err := CreatePrompt(ctx, src, CreatePromptInput{Title: "added later", Template: "x"}); err != nil {
		t.Fatalf("CreatePrompt failed: %v", err)
	}
	newer := filepath.Join(dir, ExportFileName("manual", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	if _, err := Export(ctx, src, cfg, ExportInput{Path: newer}); err != nil {
		t.Fatalf("Export newer failed: %v", err)
	}
	// Written last but not an export name, so never picked.
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	files, err := ListExports(cfg)
	if err != nil {
		t.Fatalf("ListExports failed: %v", err)
	}
	if len(files) != 2 || files[0].Path != newer || files[1].Path != older {
		t.Fatalf("ListExports = %+v, want [%s %s]", files, newer, older)
	}
	if files[0].Label != "manual" {
		t.Errorf("Label = %q, want manual", files[0].Label)
	}

	dst := newStore(t)
	out, err := Import(ctx, dst, cfg, ImportInput{Latest: true})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Path != newer || out.Prompts != 5 {
		t.Errorf("Import = %+v, want %d prompts from %s", out, 5, newer)
	}
}

func TestImport_LatestWithoutExports(t *testing.T) {
	cfg := exportsConfig(filepath.Join(t.TempDir(), "never-created"))

	files, err := ListExports(cfg)
	if err != nil || len(files) != 0 {
		t.Fatalf("ListExports = %v, %v, want empty", files, err)
	}
	_, err = Import(context.Background(), newStore(t), cfg, ImportInput{Latest: true})
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got: %v", err)
	}
}

func TestLibraryFile_Refused(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	dir := t.TempDir()
	cfg := allowDir(dir)

	if err := os.Mkdir(filepath.Join(dir, "nested"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "folder.json"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	for _, name := range []string{mode.FileName, config.FileName} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		path   string
		access FileAccess
	}{
		{"empty", "", ReadLibraryFile},
		{"export over mode preference", filepath.Join(dir, mode.FileName), WriteLibraryFile},
		{"import config file", filepath.Join(dir, config.FileName), ReadLibraryFile},
		{"export into subdirectory", filepath.Join(dir, "nested", "library.json"), WriteLibraryFile},
		{"dot-dot segment", dir + "/nested/../library.json", WriteLibraryFile},
		{"wrong extension", filepath.Join(dir, "library.jsonl"), WriteLibraryFile},
		{"outside allowed dirs", filepath.Join(t.TempDir(), "library.json"), WriteLibraryFile},
		{"import a directory", filepath.Join(dir, "folder.json"), ReadLibraryFile},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			if tc.access == WriteLibraryFile {
				_, err = Export(ctx, store, cfg, ExportInput{Path: tc.path})
			} else {
				_, err = Import(ctx, store, cfg, ImportInput{Path: tc.path})
			}
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}

	_, err := Import(ctx, store, cfg, ImportInput{Path: filepath.Join(dir, "missing.json")})
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("missing file: expected ErrFileNotFound, got: %v", err)
	}
}

func TestLibraryFile_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	ctx := context.Background()
	store := newStore(t)
	seedLibrary(t, store)

	target, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks failed: %v", err)
	}
	link := filepath.Join(t.TempDir(), "exports-link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	// A symlinked allowed directory is matched by its target.
	cfg := allowDir(link)
	exported := filepath.Join(target, "library.json")
	if _, err := Export(ctx, store, cfg, ExportInput{Path: exported}); err != nil {
		t.Fatalf("Export into resolved allowed dir failed: %v", err)
	}

	alias := filepath.Join(target, "alias.json")
	if err := os.Symlink(exported, alias); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}
	unsafe := allowDir(target)
	unsafe.AllowUnsafePaths = true
	for _, c := range []*config.Config{cfg, unsafe} {
		if _, err := Import(ctx, store, c, ImportInput{Path: alias}); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("import via symlink (unsafe=%v): expected ErrInvalidRequest, got: %v", c.AllowUnsafePaths, err)
		}
		if _, err := Export(ctx, store, c, ExportInput{Path: alias}); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("export onto symlink (unsafe=%v): expected ErrInvalidRequest, got: %v", c.AllowUnsafePaths, err)
		}
	}

	data, err := os.ReadFile(exported)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("symlink target was truncated")
	}
}
