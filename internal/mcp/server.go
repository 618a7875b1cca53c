// Package mcp exposes the prompt library as MCP tools over stdio.
package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/neoprompts/neoprompts/internal/config"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"prompt", "collection", "tag", "library"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"prompt_list": {
		def:     promptListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptList },
	},
	"prompt_get": {
		def:     promptGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptGet },
	},
	"prompt_create": {
		def:     promptCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptCreate },
	},
	"prompt_update": {
		def:     promptUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptUpdate },
	},
	"prompt_delete": {
		def:     promptDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptDelete },
	},
	"prompt_render": {
		def:     promptRenderToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptRender },
	},
	"prompt_use": {
		def:     promptUseToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptUse },
	},
	"prompt_compose": {
		def:     promptComposeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptCompose },
	},
	"prompt_bulk_update": {
		def:     promptBulkUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptBulkUpdate },
	},
	"prompt_bulk_delete": {
		def:     promptBulkDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptBulkDelete },
	},
	"collection_list": {
		def:     collectionListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCollectionList },
	},
	"collection_create": {
		def:     collectionCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCollectionCreate },
	},
	"tag_list": {
		def:     tagListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTagList },
	},
	"library_export": {
		def:     libraryExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLibraryExport },
	},
	"library_import": {
		def:     libraryImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLibraryImport },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "prompt_get" → "prompt").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with the library tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(stores StoreSource, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"neoprompts",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(stores, cfg)

	// Expand types first, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(stores StoreSource, cfg *config.Config, version string) error {
	s := NewServer(stores, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
