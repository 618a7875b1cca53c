package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/neoprompts/neoprompts/internal/config"
	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/ops"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// StoreSource yields the adapter a tool call should run against.
// *mode.Manager satisfies it.
type StoreSource interface {
	Active() storage.Adapter
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	stores StoreSource
	cfg    *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(stores StoreSource, cfg *config.Config) *Handlers {
	return &Handlers{stores: stores, cfg: cfg}
}

func (h *Handlers) store() storage.Adapter {
	return h.stores.Active()
}

// Request types for each tool

// FilterArgs are the prompt filter arguments shared by list and bulk tools.
type FilterArgs struct {
	Search        string   `json:"search,omitempty"`
	CollectionID  *string  `json:"collection_id,omitempty"`
	Uncategorized bool     `json:"uncategorized,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	FavoritesOnly bool     `json:"favorites_only,omitempty"`
}

func (f FilterArgs) filter() ops.PromptFilter {
	return ops.PromptFilter{
		Search:        f.Search,
		CollectionID:  f.CollectionID,
		Uncategorized: f.Uncategorized,
		Tags:          f.Tags,
		FavoritesOnly: f.FavoritesOnly,
	}
}

// ListRequest represents the arguments for prompt_list.
type ListRequest struct {
	FilterArgs
	SortBy string `json:"sort_by,omitempty"`
	Order  string `json:"order,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// IDRequest represents the arguments for tools addressing one prompt.
type IDRequest struct {
	ID string `json:"id"`
}

// CreateRequest represents the arguments for prompt_create.
type CreateRequest struct {
	Title        string   `json:"title"`
	Template     string   `json:"template"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	CollectionID *string  `json:"collection_id,omitempty"`
	IsFavorite   bool     `json:"is_favorite,omitempty"`
}

// UpdateRequest represents the arguments for prompt_update.
type UpdateRequest struct {
	ID           string    `json:"id"`
	Title        *string   `json:"title,omitempty"`
	Template     *string   `json:"template,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Tags         *[]string `json:"tags,omitempty"`
	CollectionID *string   `json:"collection_id,omitempty"`
	IsFavorite   *bool     `json:"is_favorite,omitempty"`
}

// RenderRequest represents the arguments for prompt_render and prompt_use.
type RenderRequest struct {
	ID     string            `json:"id"`
	Values map[string]string `json:"values,omitempty"`
	HTML   bool              `json:"html,omitempty"`
	Strict bool              `json:"strict,omitempty"`
}

// ComposeRequest represents the arguments for prompt_compose.
type ComposeRequest struct {
	IDs     []string          `json:"ids"`
	Values  map[string]string `json:"values,omitempty"`
	Format  string            `json:"format,omitempty"`
	StoreAs *StoreAsArgs      `json:"store_as,omitempty"`
}

// StoreAsArgs names the prompt a composed bundle is saved as.
type StoreAsArgs struct {
	Title        string   `json:"title"`
	CollectionID *string  `json:"collection_id,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// BulkUpdateRequest represents the arguments for prompt_bulk_update.
type BulkUpdateRequest struct {
	FilterArgs
	SetCollectionID *string  `json:"set_collection_id,omitempty"`
	SetFavorite     *bool    `json:"set_favorite,omitempty"`
	AddTags         []string `json:"add_tags,omitempty"`
	RemoveTags      []string `json:"remove_tags,omitempty"`
}

// BulkDeleteRequest represents the arguments for prompt_bulk_delete.
type BulkDeleteRequest struct {
	FilterArgs
}

// CollectionCreateRequest represents the arguments for collection_create.
type CollectionCreateRequest struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji,omitempty"`
}

// ExportRequest represents the arguments for library_export.
type ExportRequest struct {
	Path  string `json:"path,omitempty"`
	Label string `json:"label,omitempty"`
}

// ImportRequest represents the arguments for library_import.
type ImportRequest struct {
	Path   string `json:"path,omitempty"`
	Latest bool   `json:"latest,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// HandlePromptList handles the prompt_list tool call.
func (h *Handlers) HandlePromptList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListPrompts(ctx, h.store(), ops.ListPromptsInput{
		Filter: input.filter(),
		SortBy: ops.SortField(input.SortBy),
		Order:  ops.SortOrder(input.Order),
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePromptGet handles the prompt_get tool call.
func (h *Handlers) HandlePromptGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetPrompt(ctx, h.store(), input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePromptCreate handles the prompt_create tool call.
func (h *Handlers) HandlePromptCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.CreatePrompt(ctx, h.store(), ops.CreatePromptInput{
		Title:        input.Title,
		Template:     input.Template,
		Description:  input.Description,
		Tags:         input.Tags,
		CollectionID: input.CollectionID,
		IsFavorite:   input.IsFavorite,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePromptUpdate handles the prompt_update tool call.
func (h *Handlers) HandlePromptUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UpdatePrompt(ctx, h.store(), ops.UpdatePromptInput{
		ID:           input.ID,
		Title:        input.Title,
		Template:     input.Template,
		Description:  input.Description,
		Tags:         input.Tags,
		CollectionID: input.CollectionID,
		IsFavorite:   input.IsFavorite,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePromptDelete handles the prompt_delete tool call.
func (h *Handlers) HandlePromptDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := ops.DeletePrompt(ctx, h.store(), input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"deleted": true, "id": strings.TrimSpace(input.ID)})
}

// HandlePromptRender handles the prompt_render tool call.
func (h *Handlers) HandlePromptRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RenderRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.RenderPrompt(ctx, h.store(), input.renderInput())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePromptUse handles the prompt_use tool call.
func (h *Handlers) HandlePromptUse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RenderRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UsePrompt(ctx, h.store(), input.renderInput())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

func (r RenderRequest) renderInput() ops.RenderInput {
	return ops.RenderInput{ID: r.ID, Values: r.Values, HTML: r.HTML, Strict: r.Strict}
}

// HandlePromptCompose handles the prompt_compose tool call.
func (h *Handlers) HandlePromptCompose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ComposeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var storeAs *ops.ComposeStoreAs
	if input.StoreAs != nil {
		storeAs = &ops.ComposeStoreAs{
			Title:        input.StoreAs.Title,
			CollectionID: input.StoreAs.CollectionID,
			Tags:         input.StoreAs.Tags,
		}
	}

	result, err := ops.Compose(ctx, h.store(), ops.ComposeInput{
		IDs:     input.IDs,
		Values:  input.Values,
		Format:  input.Format,
		StoreAs: storeAs,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePromptBulkUpdate handles the prompt_bulk_update tool call.
func (h *Handlers) HandlePromptBulkUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BulkUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.BulkUpdate(ctx, h.store(), ops.BulkUpdateInput{
		Filter:          input.filter(),
		SetCollectionID: input.SetCollectionID,
		SetFavorite:     input.SetFavorite,
		AddTags:         input.AddTags,
		RemoveTags:      input.RemoveTags,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePromptBulkDelete handles the prompt_bulk_delete tool call.
func (h *Handlers) HandlePromptBulkDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BulkDeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.BulkDelete(ctx, h.store(), ops.BulkDeleteInput{Filter: input.filter()})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCollectionList handles the collection_list tool call.
func (h *Handlers) HandleCollectionList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListCollections(ctx, h.store())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCollectionCreate handles the collection_create tool call.
func (h *Handlers) HandleCollectionCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CollectionCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AddCollection(ctx, h.store(), ops.AddCollectionInput{
		Name:  input.Name,
		Emoji: input.Emoji,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTagList handles the tag_list tool call.
func (h *Handlers) HandleTagList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListTags(ctx, h.store())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLibraryExport handles the library_export tool call.
func (h *Handlers) HandleLibraryExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.store(), h.cfg, ops.ExportInput{
		Path:  input.Path,
		Label: input.Label,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLibraryImport handles the library_import tool call.
func (h *Handlers) HandleLibraryImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.store(), h.cfg, ops.ImportInput{
		Path:   input.Path,
		Latest: input.Latest,
		DryRun: input.DryRun,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult creates an MCP error result from an error.
// Wrapper context added with fmt.Errorf is kept in the message.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if e, ok := errors.As(err); ok {
		message := e.Message
		if prefix, found := strings.CutSuffix(err.Error(), e.Error()); found && prefix != "" {
			message = prefix + message
		}
		errorObj := map[string]any{
			"code":    e.Code,
			"message": message,
			"status":  e.Status,
		}
		// Internal and store failures may carry paths or SQL; keep details out.
		if e.Code != errors.ErrInternal && e.Code != errors.ErrStoreFailure && e.Details != nil {
			errorObj["details"] = e.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
