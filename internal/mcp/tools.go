package mcp

import "github.com/mark3labs/mcp-go/mcp"

var filterArgs = []mcp.ToolOption{
	mcp.WithString("search",
		mcp.Description("Case-insensitive text matched against title, template, description, and tags"),
	),
	mcp.WithString("collection_id",
		mcp.Description("Only prompts in this collection"),
	),
	mcp.WithBoolean("uncategorized",
		mcp.Description("Only prompts without a collection"),
	),
	mcp.WithArray("tags",
		mcp.Description("Only prompts carrying any of these tags"),
		mcp.WithStringItems(),
	),
	mcp.WithBoolean("favorites_only",
		mcp.Description("Only favorite prompts"),
	),
}

func withFilter(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append(append([]mcp.ToolOption{}, opts...), filterArgs...)
}

var promptListToolDef = mcp.NewTool("prompt_list",
	withFilter(
		mcp.WithDescription("List prompts in the library, filtered, sorted, and paginated."),
		mcp.WithTitleAnnotation("List Prompts"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("sort_by",
			mcp.Description("createdAt (default), lastCopiedAt, copyCount, or title"),
			mcp.Enum("createdAt", "lastCopiedAt", "copyCount", "title"),
		),
		mcp.WithString("order",
			mcp.Description("desc (default) or asc"),
			mcp.Enum("asc", "desc"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 50, max: 500)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Results to skip"),
		),
	)...,
)

var promptGetToolDef = mcp.NewTool("prompt_get",
	mcp.WithDescription("Fetch one prompt with the placeholder names used in its template."),
	mcp.WithTitleAnnotation("Get Prompt"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Prompt ID"),
	),
)

var promptCreateToolDef = mcp.NewTool("prompt_create",
	mcp.WithDescription("Create a prompt. Use {{name}} in the template for values filled in at render time."),
	mcp.WithTitleAnnotation("Create Prompt"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithString("title",
		mcp.Required(),
		mcp.Description("Prompt title"),
	),
	mcp.WithString("template",
		mcp.Required(),
		mcp.Description("Prompt text with {{placeholder}} variables"),
	),
	mcp.WithString("description",
		mcp.Description("Short description"),
	),
	mcp.WithArray("tags",
		mcp.Description("Tag names; unknown tags are created"),
		mcp.WithStringItems(),
	),
	mcp.WithString("collection_id",
		mcp.Description("Collection to file the prompt under"),
	),
	mcp.WithBoolean("is_favorite",
		mcp.Description("Mark as favorite"),
	),
)

var promptUpdateToolDef = mcp.NewTool("prompt_update",
	mcp.WithDescription("Update a prompt by ID. Only provided fields are changed."),
	mcp.WithTitleAnnotation("Update Prompt"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Prompt ID"),
	),
	mcp.WithString("title",
		mcp.Description("New title"),
	),
	mcp.WithString("template",
		mcp.Description("New template"),
	),
	mcp.WithString("description",
		mcp.Description("New description"),
	),
	mcp.WithArray("tags",
		mcp.Description("Replacement tag list"),
		mcp.WithStringItems(),
	),
	mcp.WithString("collection_id",
		mcp.Description("Move to this collection; empty string removes the collection"),
	),
	mcp.WithBoolean("is_favorite",
		mcp.Description("Favorite flag"),
	),
)

var promptDeleteToolDef = mcp.NewTool("prompt_delete",
	mcp.WithDescription("Delete a prompt by ID."),
	mcp.WithTitleAnnotation("Delete Prompt"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Prompt ID"),
	),
)

var renderArgs = []mcp.ToolOption{
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Prompt ID"),
	),
	mcp.WithObject("values",
		mcp.Description("Placeholder values, e.g. {\"name\": \"Ada\"}"),
	),
	mcp.WithBoolean("html",
		mcp.Description("Also return the rendered text as HTML"),
	),
	mcp.WithBoolean("strict",
		mcp.Description("Fail when a placeholder has no value"),
	),
}

var promptRenderToolDef = mcp.NewTool("prompt_render",
	append([]mcp.ToolOption{
		mcp.WithDescription("Fill a prompt's placeholders and return the text. Does not count as a use."),
		mcp.WithTitleAnnotation("Render Prompt"),
		mcp.WithReadOnlyHintAnnotation(true),
	}, renderArgs...)...,
)

var promptUseToolDef = mcp.NewTool("prompt_use",
	append([]mcp.ToolOption{
		mcp.WithDescription("Render a prompt and record a use (copy count and last-copied time)."),
		mcp.WithTitleAnnotation("Use Prompt"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
	}, renderArgs...)...,
)

var promptComposeToolDef = mcp.NewTool("prompt_compose",
	mcp.WithDescription("Render several prompts with one set of values and join them into a bundle."),
	mcp.WithTitleAnnotation("Compose Prompts"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithArray("ids",
		mcp.Required(),
		mcp.Description("Prompt IDs in bundle order (max 50)"),
		mcp.WithStringItems(),
	),
	mcp.WithObject("values",
		mcp.Description("Placeholder values shared by every part"),
	),
	mcp.WithString("format",
		mcp.Description("markdown (default) or json"),
		mcp.Enum("markdown", "json"),
	),
	mcp.WithObject("store_as",
		mcp.Description("Save the bundle as a new prompt: {title, collection_id?, tags?}"),
	),
)

var promptBulkUpdateToolDef = mcp.NewTool("prompt_bulk_update",
	withFilter(
		mcp.WithDescription("Update every prompt matching a filter. At least one filter and one update are required."),
		mcp.WithTitleAnnotation("Bulk Update Prompts"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("set_collection_id",
			mcp.Description("Move matches to this collection; empty string removes the collection"),
		),
		mcp.WithBoolean("set_favorite",
			mcp.Description("Set the favorite flag"),
		),
		mcp.WithArray("add_tags",
			mcp.Description("Tags to add"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("remove_tags",
			mcp.Description("Tags to remove"),
			mcp.WithStringItems(),
		),
	)...,
)

var promptBulkDeleteToolDef = mcp.NewTool("prompt_bulk_delete",
	withFilter(
		mcp.WithDescription("Delete every prompt matching a filter. At least one filter is required."),
		mcp.WithTitleAnnotation("Bulk Delete Prompts"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
	)...,
)

var collectionListToolDef = mcp.NewTool("collection_list",
	mcp.WithDescription("List collections in display order with prompt counts."),
	mcp.WithTitleAnnotation("List Collections"),
	mcp.WithReadOnlyHintAnnotation(true),
)

var collectionCreateToolDef = mcp.NewTool("collection_create",
	mcp.WithDescription("Create a collection at the end of the display order."),
	mcp.WithTitleAnnotation("Create Collection"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("Collection name"),
	),
	mcp.WithString("emoji",
		mcp.Description("Display emoji (default: 📁)"),
	),
)

var tagListToolDef = mcp.NewTool("tag_list",
	mcp.WithDescription("List tags with usage counts."),
	mcp.WithTitleAnnotation("List Tags"),
	mcp.WithReadOnlyHintAnnotation(true),
)

var libraryExportToolDef = mcp.NewTool("library_export",
	mcp.WithDescription("Export the whole library to a JSON file."),
	mcp.WithTitleAnnotation("Export Library"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithString("path",
		mcp.Description("Output path ending in .json (default: ~/.neoprompts/exports/neoprompts-<timestamp>.json)"),
	),
	mcp.WithString("label",
		mcp.Description("File name prefix for the default path"),
	),
)

var libraryImportToolDef = mcp.NewTool("library_import",
	mcp.WithDescription("Replace the library with the contents of an export file."),
	mcp.WithTitleAnnotation("Import Library"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("path",
		mcp.Description("Path of a .json export file (required unless latest is set)"),
	),
	mcp.WithBoolean("latest",
		mcp.Description("Import the newest export in the exports directory"),
	),
	mcp.WithBoolean("dry_run",
		mcp.Description("Validate the file without changing the library"),
	),
)
