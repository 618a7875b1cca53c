package ops

import (
	"context"
	"strings"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// GetSettings returns the settings, creating the defaults on first access.
func GetSettings(ctx context.Context, store storage.Adapter) (*prompt.Settings, error) {
	return store.GetSettings(ctx)
}

// UpdateSettingsInput contains parameters for the UpdateSettings operation.
type UpdateSettingsInput struct {
	Theme            *string // light, dark, or system
	SidebarCollapsed *bool
}

// UpdateSettings saves the given fields and returns the stored settings.
func UpdateSettings(ctx context.Context, store storage.Adapter, input UpdateSettingsInput) (*prompt.Settings, error) {
	var patch prompt.SettingsPatch
	if input.Theme != nil {
		theme := prompt.Theme(strings.ToLower(strings.TrimSpace(*input.Theme)))
		patch.Theme = &theme
	}
	patch.SidebarCollapsed = input.SidebarCollapsed
	if patch.Theme == nil && patch.SidebarCollapsed == nil {
		return nil, errors.NewInvalidRequest("at least one setting is required")
	}
	return store.SaveSettings(ctx, patch)
}

// ClearAll deletes every collection, prompt, and tag and resets the settings.
func ClearAll(ctx context.Context, store storage.Adapter) error {
	return store.ClearAll(ctx)
}
