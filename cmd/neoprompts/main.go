package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/neoprompts/neoprompts/internal/config"
	"github.com/neoprompts/neoprompts/internal/db"
	"github.com/neoprompts/neoprompts/internal/logger"
	"github.com/neoprompts/neoprompts/internal/mcp"
	"github.com/neoprompts/neoprompts/internal/mode"
	"github.com/neoprompts/neoprompts/internal/storage"
	"github.com/neoprompts/neoprompts/internal/storage/local"
	"github.com/neoprompts/neoprompts/internal/storage/remote"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"prompt": true, "collection": true, "tag": true,
	"settings": true, "mode": true, "sync": true,
	"export": true, "import": true, "clear": true, "seed": true, "watch": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _ __   ___  ___  _ __  _ __ ___  _ __ ___  _ __ | |_ ___
  | '_ \ / _ \/ _ \| '_ \| '__/ _ \| '_ ' _ \| '_ \| __/ __|
  | | | |  __/ (_) | |_) | | | (_) | | | | | | |_) | |_\__ \
  |_| |_|\___|\___/| .__/|_|  \___/|_| |_| |_| .__/ \__|___/
                   |_|                       |_|

  Prompt library with {{placeholder}} templates

  Usage: neoprompts <command> [options]
         neoprompts --help

  MCP server mode requires piped input.`)
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(logger.Config{
		Format: cfg.LogFormat,
		Level:  logger.ParseLevel(cfg.LogLevel),
	})
}

// loadConfig reads the global and repo config files and applies environment overrides.
func loadConfig(baseDir string, lookup func(string) (string, bool)) (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return nil, err
	}
	return config.ApplyEnv(cfg, lookup), nil
}

// openStores opens the local store, the remote store when configured, and a
// mode manager over both with the saved preference applied.
func openStores(ctx context.Context, baseDir string, cfg *config.Config, log *slog.Logger) (*mode.Manager, error) {
	l, err := local.Open(baseDir, log)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(l.DB(), cfg)

	var rem storage.Adapter
	if cfg.HasRemote() {
		r, err := remote.New(remote.Config{
			URL:    cfg.RemoteURL,
			Key:    cfg.RemoteKey,
			RPS:    cfg.RemoteRPS,
			Logger: log,
		})
		if err != nil {
			log.Warn("remote store disabled", "error", err)
		} else {
			rem = r
		}
	}

	m := mode.NewManager(baseDir, l, rem, log)
	if err := m.Init(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before opening stores
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseDir, err := config.GlobalDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(baseDir, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		return 1
	}
	log := newLogger(cfg)

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn("ignoring unknown disabled_tools", "tools", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn("ignoring unknown disabled_types", "types", unknown)
	}

	modes, err := openStores(ctx, baseDir, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open stores: %v\n", err)
		return 1
	}
	defer modes.Close()

	env := &appEnv{modes: modes, cfg: cfg}

	// CLI mode: known subcommand
	if isCLIMode(os.Args) {
		app := newCLIApp(env)
		if err := app.RunContext(ctx, os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'neoprompts --help' for usage.\n")
		return 1
	}

	// MCP server mode (default)
	if err := mcp.Run(modes, cfg, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
