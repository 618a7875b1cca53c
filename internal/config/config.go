package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the name of the global and per-repo configuration directories.
const DirName = ".neoprompts"

// FileName is the configuration file inside a DirName directory.
const FileName = "config.json"

// ExportsDirName is the default export directory inside the global directory.
const ExportsDirName = "exports"

// Environment variables that override remote credentials and logging.
const (
	EnvRemoteURL     = "NEOPROMPTS_REMOTE_URL"
	EnvRemoteKey     = "NEOPROMPTS_REMOTE_KEY"
	EnvSupabaseURL   = "SUPABASE_URL"
	EnvSupabaseKey   = "SUPABASE_ANON_KEY"
	EnvLogLevel      = "NEOPROMPTS_LOG_LEVEL"
	EnvLogFormat     = "NEOPROMPTS_LOG_FORMAT"
	defaultRemoteRPS = 20
)

// Config holds application configuration.
type Config struct {
	// AllowedPaths is an allowlist of directories for import/export files.
	// Paths outside ~/.neoprompts/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// ExportsDir replaces ~/.neoprompts/exports as the default export location.
	// Relative values are ignored.
	ExportsDir string `json:"exports_dir,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits open connections to the local database.
	// 0 means use the sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle connections to the local database.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes disables every MCP tool of the named types
	// ("prompt", "collection", "tag", "library").
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// RemoteURL and RemoteKey locate the remote database service.
	// Both must be set for the remote store to be available.
	RemoteURL string `json:"remote_url,omitempty"`
	RemoteKey string `json:"remote_key,omitempty"`

	// RemoteRPS caps requests per second sent to the remote service.
	RemoteRPS float64 `json:"remote_rps,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "text" or "json".
	LogFormat string `json:"log_format,omitempty"`
}

// HasRemote reports whether remote credentials are configured.
func (c *Config) HasRemote() bool {
	return c != nil && strings.TrimSpace(c.RemoteURL) != "" && strings.TrimSpace(c.RemoteKey) != ""
}

// GlobalDir returns ~/.neoprompts, home of the global config, the local
// database, the mode preference, and the default exports directory.
func GlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DirName), nil
}

// ExportsPath returns the directory default exports are written to.
func (c *Config) ExportsPath() (string, error) {
	if c != nil && filepath.IsAbs(c.ExportsDir) {
		return filepath.Clean(c.ExportsDir), nil
	}
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ExportsDirName), nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RemoteRPS: defaultRemoteRPS,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, FileName))
}

// LoadWithRepo loads configuration from both the global directory and the nearest
// repo-level .neoprompts/config.json found by walking upward from startDir.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, FileName))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .neoprompts/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, FileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overlays environment settings onto cfg.
// NEOPROMPTS_* variables win over the SUPABASE_* fallbacks, which win over the file.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) *Config {
	out := *cfg
	if v, ok := firstEnv(lookup, EnvRemoteURL, EnvSupabaseURL); ok {
		out.RemoteURL = v
	}
	if v, ok := firstEnv(lookup, EnvRemoteKey, EnvSupabaseKey); ok {
		out.RemoteKey = v
	}
	if v, ok := firstEnv(lookup, EnvLogLevel); ok {
		out.LogLevel = v
	}
	if v, ok := firstEnv(lookup, EnvLogFormat); ok {
		out.LogFormat = v
	}
	return &out
}

func firstEnv(lookup func(string) (string, bool), keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	result.RemoteRPS = overlay.RemoteRPS
	if result.RemoteRPS == 0 {
		result.RemoteRPS = base.RemoteRPS
	}

	result.RemoteURL = firstNonEmpty(overlay.RemoteURL, base.RemoteURL)
	result.RemoteKey = firstNonEmpty(overlay.RemoteKey, base.RemoteKey)
	result.LogLevel = firstNonEmpty(overlay.LogLevel, base.LogLevel)
	result.LogFormat = firstNonEmpty(overlay.LogFormat, base.LogFormat)
	result.ExportsDir = firstNonEmpty(overlay.ExportsDir, base.ExportsDir)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
