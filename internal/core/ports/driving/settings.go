package driving

import "github.com/custodia-labs/searchsync/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current settings, filling defaults.
	Get() (*domain.Settings, error)

	// Save persists settings.
	Save(settings *domain.Settings) error

	// SetAutosync toggles global propagation.
	SetAutosync(enabled bool) error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings
}
