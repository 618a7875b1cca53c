package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/urfave/cli/v2"

	"github.com/neoprompts/neoprompts/internal/config"
	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/mode"
	"github.com/neoprompts/neoprompts/internal/ops"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// writeClipboard copies text to the system clipboard.
var writeClipboard = clipboard.WriteAll

// appEnv carries what commands need. It is nil for --help and --version.
type appEnv struct {
	modes *mode.Manager
	cfg   *config.Config
}

func (e *appEnv) store() storage.Adapter {
	return e.modes.Active()
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "neoprompts",
		Usage:   "Prompt library with {{placeholder}} templates",
		Version: Version,
		Commands: []*cli.Command{
			promptCmd(env),
			collectionCmd(env),
			tagCmd(env),
			settingsCmd(env),
			modeCmd(env),
			syncCmd(env),
			exportCmd(env),
			importCmd(env),
			clearCmd(env),
			seedCmd(env),
			watchCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func promptCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "prompt",
		Usage: "Manage prompts",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a prompt (template from --template or stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Required: true, Usage: "Prompt title"},
					&cli.StringFlag{Name: "template", Usage: "Template text with {{placeholders}}"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Short description"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
					&cli.StringFlag{Name: "collection", Aliases: []string{"c"}, Usage: "Collection ID"},
					&cli.BoolFlag{Name: "favorite", Usage: "Mark as favorite"},
				},
				Action: func(c *cli.Context) error {
					template := c.String("template")
					if !c.IsSet("template") && stdinHasData() {
						text, err := readStdin()
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						template = text
					}

					input := ops.CreatePromptInput{
						Title:       c.String("title"),
						Template:    template,
						Description: c.String("description"),
						Tags:        parseTags(c.String("tags")),
						IsFavorite:  c.Bool("favorite"),
					}
					if col := c.String("collection"); col != "" {
						input.CollectionID = &col
					}

					output, err := ops.CreatePrompt(c.Context, env.store(), input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "list",
				Usage: "List prompts",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Text to search for"},
					&cli.StringFlag{Name: "collection", Aliases: []string{"c"}, Usage: "Only this collection"},
					&cli.BoolFlag{Name: "uncategorized", Usage: "Only prompts without a collection"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags (any match)"},
					&cli.BoolFlag{Name: "favorites", Usage: "Only favorites"},
					&cli.StringFlag{Name: "sort", Value: string(ops.SortCreatedAt), Usage: "createdAt|lastCopiedAt|copyCount|title"},
					&cli.StringFlag{Name: "order", Value: string(ops.SortDesc), Usage: "asc|desc"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
				},
				Action: func(c *cli.Context) error {
					filter := ops.PromptFilter{
						Search:        c.String("search"),
						Uncategorized: c.Bool("uncategorized"),
						Tags:          parseTags(c.String("tags")),
						FavoritesOnly: c.Bool("favorites"),
					}
					if col := c.String("collection"); col != "" {
						filter.CollectionID = &col
					}

					output, err := ops.ListPrompts(c.Context, env.store(), ops.ListPromptsInput{
						Filter: filter,
						SortBy: ops.SortField(c.String("sort")),
						Order:  ops.SortOrder(c.String("order")),
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "show",
				Usage:     "Show a prompt",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					output, err := ops.GetPrompt(c.Context, env.store(), c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "edit",
				Usage:     "Change fields of a prompt",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
					&cli.StringFlag{Name: "template", Usage: "New template"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "New description"},
					&cli.StringFlag{Name: "tags", Usage: "Replacement comma-separated tags (empty clears)"},
					&cli.StringFlag{Name: "collection", Aliases: []string{"c"}, Usage: "Move to this collection"},
					&cli.BoolFlag{Name: "no-collection", Usage: "Remove from its collection"},
					&cli.BoolFlag{Name: "favorite", Usage: "Set the favorite flag (--favorite=false clears)"},
				},
				Action: func(c *cli.Context) error {
					input := ops.UpdatePromptInput{ID: c.Args().First()}
					if c.IsSet("title") {
						input.Title = stringPtr(c.String("title"))
					}
					if c.IsSet("template") {
						input.Template = stringPtr(c.String("template"))
					}
					if c.IsSet("description") {
						input.Description = stringPtr(c.String("description"))
					}
					if c.IsSet("tags") {
						tags := parseTags(c.String("tags"))
						if tags == nil {
							tags = []string{}
						}
						input.Tags = &tags
					}
					if c.IsSet("collection") {
						input.CollectionID = stringPtr(c.String("collection"))
					}
					input.ClearCollection = c.Bool("no-collection")
					if c.IsSet("favorite") {
						fav := c.Bool("favorite")
						input.IsFavorite = &fav
					}

					output, err := ops.UpdatePrompt(c.Context, env.store(), input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "rm",
				Usage:     "Delete a prompt",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if err := ops.DeletePrompt(c.Context, env.store(), id); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"deleted": true, "id": id})
				},
			},
			{
				Name:      "fav",
				Usage:     "Toggle the favorite flag",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					output, err := ops.ToggleFavorite(c.Context, env.store(), c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "render",
				Usage:     "Fill in a prompt's placeholders",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "var", Usage: "Placeholder value as name=value (repeatable)"},
					&cli.BoolFlag{Name: "html", Usage: "Include an HTML rendering"},
					&cli.BoolFlag{Name: "strict", Usage: "Fail if a placeholder has no value"},
				},
				Action: func(c *cli.Context) error {
					input, err := renderInput(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.RenderPrompt(c.Context, env.store(), input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "copy",
				Usage:     "Render a prompt, count the use, and copy it to the clipboard",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "var", Usage: "Placeholder value as name=value (repeatable)"},
					&cli.BoolFlag{Name: "strict", Usage: "Fail if a placeholder has no value"},
					&cli.BoolFlag{Name: "stdout", Usage: "Print the text instead of copying it"},
				},
				Action: func(c *cli.Context) error {
					input, err := renderInput(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.RenderPrompt(c.Context, env.store(), input)
					if err != nil {
						return outputError(err)
					}

					// The use is only recorded once the text has left the process.
					if c.Bool("stdout") {
						if _, err := fmt.Fprintln(c.App.Writer, output.Text); err != nil {
							return err
						}
						if _, err := ops.IncrementCopyCount(c.Context, env.store(), output.ID); err != nil {
							return outputError(err)
						}
						return nil
					}
					if err := writeClipboard(output.Text); err != nil {
						return outputError(errors.NewInternal(fmt.Errorf("copy to clipboard: %w", err)))
					}
					p, err := ops.IncrementCopyCount(c.Context, env.store(), output.ID)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{
						"id":         output.ID,
						"copied":     true,
						"chars":      len([]rune(output.Text)),
						"missing":    output.Missing,
						"copy_count": p.CopyCount,
					})
				},
			},
		},
	}
}

func collectionCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "collection",
		Usage: "Manage collections",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a collection",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "emoji", Aliases: []string{"e"}, Usage: "Display emoji"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.AddCollection(c.Context, env.store(), ops.AddCollectionInput{
						Name:  strings.Join(c.Args().Slice(), " "),
						Emoji: c.String("emoji"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "list",
				Usage: "List collections with prompt counts",
				Action: func(c *cli.Context) error {
					output, err := ops.ListCollections(c.Context, env.store())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a collection or change its emoji",
				ArgsUsage: "<id> [name]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "emoji", Aliases: []string{"e"}, Usage: "New emoji"},
				},
				Action: func(c *cli.Context) error {
					input := ops.UpdateCollectionInput{ID: c.Args().First()}
					if c.NArg() > 1 {
						input.Name = stringPtr(strings.Join(c.Args().Tail(), " "))
					}
					if c.IsSet("emoji") {
						input.Emoji = stringPtr(c.String("emoji"))
					}
					output, err := ops.UpdateCollection(c.Context, env.store(), input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "rm",
				Usage:     "Delete a collection; its prompts become uncategorized",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if err := ops.DeleteCollection(c.Context, env.store(), id); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"deleted": true, "id": id})
				},
			},
			{
				Name:      "reorder",
				Usage:     "Set the display order of all collections",
				ArgsUsage: "<id>...",
				Action: func(c *cli.Context) error {
					output, err := ops.ReorderCollections(c.Context, env.store(), c.Args().Slice())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

func tagCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "tag",
		Usage: "Manage tags",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a tag",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "color", Usage: "Hex color, e.g. #34C759"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.AddTag(c.Context, env.store(), ops.AddTagInput{
						Name:  c.Args().First(),
						Color: c.String("color"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "list",
				Usage: "List tags with usage counts",
				Action: func(c *cli.Context) error {
					output, err := ops.ListTags(c.Context, env.store())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a tag or change its color",
				ArgsUsage: "<id> [name]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "color", Usage: "New hex color"},
				},
				Action: func(c *cli.Context) error {
					input := ops.UpdateTagInput{ID: c.Args().First()}
					if c.NArg() > 1 {
						input.Name = stringPtr(c.Args().Get(1))
					}
					if c.IsSet("color") {
						input.Color = stringPtr(c.String("color"))
					}
					output, err := ops.UpdateTag(c.Context, env.store(), input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "rm",
				Usage:     "Delete a tag and strip it from every prompt",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if err := ops.DeleteTag(c.Context, env.store(), id); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"deleted": true, "id": id})
				},
			},
		},
	}
}

func settingsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show settings",
				Action: func(c *cli.Context) error {
					output, err := ops.GetSettings(c.Context, env.store())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "set",
				Usage: "Change settings",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "theme", Usage: "light|dark|system"},
					&cli.BoolFlag{Name: "sidebar-collapsed", Usage: "Collapse the sidebar"},
				},
				Action: func(c *cli.Context) error {
					var input ops.UpdateSettingsInput
					if c.IsSet("theme") {
						input.Theme = stringPtr(c.String("theme"))
					}
					if c.IsSet("sidebar-collapsed") {
						collapsed := c.Bool("sidebar-collapsed")
						input.SidebarCollapsed = &collapsed
					}
					output, err := ops.UpdateSettings(c.Context, env.store(), input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

// modeStatus is the output of mode show and mode set.
type modeStatus struct {
	Mode            mode.Mode `json:"mode"`
	RemoteAvailable bool      `json:"remote_available"`
}

func modeCmd(env *appEnv) *cli.Command {
	status := func(c *cli.Context) error {
		return outputJSON(c, modeStatus{Mode: env.modes.Mode(), RemoteAvailable: env.modes.RemoteAvailable()})
	}
	return &cli.Command{
		Name:  "mode",
		Usage: "Show or switch the active store",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the active store",
				Action: status,
			},
			{
				Name:      "set",
				Usage:     "Switch the active store",
				ArgsUsage: "<local|remote>",
				Action: func(c *cli.Context) error {
					m, err := mode.ParseMode(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					if err := env.modes.SetMode(m); err != nil {
						return outputError(err)
					}
					return status(c)
				},
			},
		},
	}
}

func syncCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Copy the library between the local and remote stores",
		Subcommands: []*cli.Command{
			{
				Name:  "push",
				Usage: "Replace the remote library with the local one",
				Action: func(c *cli.Context) error {
					output, err := env.modes.SyncToRemote(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "pull",
				Usage: "Replace the local library with the remote one",
				Action: func(c *cli.Context) error {
					output, err := env.modes.SyncFromRemote(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the library to a JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: the exports directory)"},
			&cli.StringFlag{Name: "label", Usage: "File name prefix for the default path"},
			&cli.BoolFlag{Name: "list", Usage: "List existing exports, newest first"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("list") {
				files, err := ops.ListExports(env.cfg)
				if err != nil {
					return outputError(err)
				}
				if files == nil {
					files = []ops.ExportFile{}
				}
				return outputJSON(c, files)
			}
			output, err := ops.Export(c.Context, env.store(), env.cfg, ops.ExportInput{
				Path:  c.String("path"),
				Label: c.String("label"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func importCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Replace the library with an export file",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Validate the file without importing"},
			&cli.BoolFlag{Name: "latest", Usage: "Import the newest export instead of <path>"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, env.store(), env.cfg, ops.ImportInput{
				Path:   c.Args().First(),
				Latest: c.Bool("latest"),
				DryRun: c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func clearCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every collection, prompt, and tag in the active store",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "Confirm deletion"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return outputError(errors.NewInvalidRequest("refusing to clear the library without --yes"))
			}
			if err := ops.ClearAll(c.Context, env.store()); err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"cleared": true, "mode": env.modes.Mode()})
		},
	}
}

func seedCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Fill an empty library with sample tags, collections, and prompts",
		Action: func(c *cli.Context) error {
			output, err := ops.SeedSampleData(c.Context, env.store())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// changeEvent is printed by watch for every change notification.
type changeEvent struct {
	Event string    `json:"event"`
	Mode  mode.Mode `json:"mode"`
	At    time.Time `json:"at"`
}

func watchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print a line for every change in the active store until interrupted",
		Action: func(c *cli.Context) error {
			var mu sync.Mutex
			enc := json.NewEncoder(c.App.Writer)
			current := env.modes.Mode()

			lost := make(chan error, 1)
			unsubscribe, err := env.modes.Watch(c.Context, func() {
				mu.Lock()
				defer mu.Unlock()
				_ = enc.Encode(changeEvent{Event: "change", Mode: current, At: time.Now().UTC()})
			}, func(err error) {
				mu.Lock()
				_ = enc.Encode(changeEvent{Event: "lost", Mode: current, At: time.Now().UTC()})
				mu.Unlock()
				lost <- err
			})
			if err != nil {
				return outputError(err)
			}
			defer unsubscribe()

			// A lost feed exits non-zero so a supervisor can restart watch.
			select {
			case <-c.Context.Done():
				return nil
			case err := <-lost:
				return outputError(err)
			}
		},
	}
}

// Helper functions

// outputJSON writes v to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if e, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", e.Code, e.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// renderInput builds render parameters from the id argument and --var flags.
func renderInput(c *cli.Context) (ops.RenderInput, error) {
	values, err := parseVars(c.StringSlice("var"))
	if err != nil {
		return ops.RenderInput{}, err
	}
	return ops.RenderInput{
		ID:     c.Args().First(),
		Values: values,
		HTML:   c.Bool("html"),
		Strict: c.Bool("strict"),
	}, nil
}

// parseVars turns name=value pairs into a value map. Later pairs win.
func parseVars(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid --var %q (want name=value)", pair))
		}
		values[name] = value
	}
	return values, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func stringPtr(s string) *string {
	return &s
}
