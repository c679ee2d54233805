package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
	"github.com/custodia-labs/searchsync/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyAutosync          = "autosync"
	keyAutoRefresh       = "auto_refresh"
	keyPagination        = "queryset_pagination"
	keyIndexSettings     = "index_settings."
	keySignalProcessor   = "signal_processor"
	keySerializer        = "serializer"
	keyBackendKind       = "backend.kind"
	keyBackendPath       = "backend.path"
	keyBackendAddresses  = "backend.addresses"
	keyBackendUsername   = "backend.username"
	keyBackendPassword   = "backend.password"
	keyStorePath         = "store.path"
	keyBulkChunkSize     = "bulk.chunk_size"
	keyBulkThreads       = "bulk.threads"
	keyBulkRate          = "bulk.rate"
	keyWorkerInterval    = "worker.interval"
	keyWorkerMaxAttempts = "worker.max_attempts"
	keyLogFile           = "log.file"
	keyLogMaxSize        = "log.max_size_mb"
	keyLogMaxBackups     = "log.max_backups"
)

// SettingsService reads and writes domain.Settings through a config store.
type SettingsService struct {
	configStore driven.ConfigStore
	baseDir     string
}

// NewSettingsService creates a new settings service. Relative default
// paths for the index and data directories are placed under baseDir.
func NewSettingsService(configStore driven.ConfigStore, baseDir string) *SettingsService {
	return &SettingsService{configStore: configStore, baseDir: baseDir}
}

// Get retrieves current settings, filling defaults for absent keys.
func (s *SettingsService) Get() (*domain.Settings, error) {
	defaults := s.GetDefaults()

	settings := &domain.Settings{
		Autosync:        s.getBool(keyAutosync, defaults.Autosync),
		AutoRefresh:     s.getBool(keyAutoRefresh, defaults.AutoRefresh),
		Pagination:      s.getInt(keyPagination, defaults.Pagination),
		IndexSettings:   s.indexSettings(),
		SignalProcessor: defaults.SignalProcessor,
		Serializer:      s.getString(keySerializer, defaults.Serializer),
		Backend: domain.BackendSettings{
			Kind:      defaults.Backend.Kind,
			Path:      s.getString(keyBackendPath, defaults.Backend.Path),
			Addresses: defaults.Backend.Addresses,
			Username:  s.configStore.GetString(keyBackendUsername),
			Password:  s.configStore.GetString(keyBackendPassword),
		},
		Store: domain.StoreSettings{
			Path: s.getString(keyStorePath, defaults.Store.Path),
		},
		Bulk: domain.BulkSettings{
			ChunkSize: s.getInt(keyBulkChunkSize, defaults.Bulk.ChunkSize),
			Threads:   s.getInt(keyBulkThreads, defaults.Bulk.Threads),
			Rate:      s.configStore.GetFloat(keyBulkRate),
		},
		Worker: defaults.Worker,
		Log: domain.LogSettings{
			File:       s.configStore.GetString(keyLogFile),
			MaxSizeMB:  s.getInt(keyLogMaxSize, defaults.Log.MaxSizeMB),
			MaxBackups: s.getInt(keyLogMaxBackups, defaults.Log.MaxBackups),
		},
	}

	if v := s.configStore.GetString(keySignalProcessor); v != "" {
		kind := domain.ProcessorKind(v)
		if !kind.IsValid() {
			return nil, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, keySignalProcessor, v)
		}
		settings.SignalProcessor = kind
	}
	if v := s.configStore.GetString(keyBackendKind); v != "" {
		kind := domain.BackendKind(v)
		if !kind.IsValid() {
			return nil, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, keyBackendKind, v)
		}
		settings.Backend.Kind = kind
	}
	if addrs := s.configStore.GetStringSlice(keyBackendAddresses); len(addrs) > 0 {
		settings.Backend.Addresses = addrs
	}
	if settings.Serializer != "json" && settings.Serializer != "bson" {
		return nil, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, keySerializer, settings.Serializer)
	}

	interval, err := s.getDuration(keyWorkerInterval, defaults.Worker.Interval)
	if err != nil {
		return nil, err
	}
	settings.Worker.Interval = interval
	settings.Worker.MaxAttempts = s.getInt(keyWorkerMaxAttempts, defaults.Worker.MaxAttempts)

	return settings, nil
}

// Save persists settings.
func (s *SettingsService) Save(settings *domain.Settings) error {
	values := []struct {
		key   string
		value any
	}{
		{keyAutosync, settings.Autosync},
		{keyAutoRefresh, settings.AutoRefresh},
		{keyPagination, settings.Pagination},
		{keySignalProcessor, string(settings.SignalProcessor)},
		{keySerializer, settings.Serializer},
		{keyBackendKind, string(settings.Backend.Kind)},
		{keyBackendPath, settings.Backend.Path},
		{keyBackendAddresses, settings.Backend.Addresses},
		{keyStorePath, settings.Store.Path},
		{keyBulkChunkSize, settings.Bulk.ChunkSize},
		{keyBulkThreads, settings.Bulk.Threads},
		{keyBulkRate, settings.Bulk.Rate},
		{keyWorkerInterval, settings.Worker.Interval.String()},
		{keyWorkerMaxAttempts, settings.Worker.MaxAttempts},
		{keyLogMaxSize, settings.Log.MaxSizeMB},
		{keyLogMaxBackups, settings.Log.MaxBackups},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	// Credentials and the log file are only written when set.
	optional := map[string]string{
		keyBackendUsername: settings.Backend.Username,
		keyBackendPassword: settings.Backend.Password,
		keyLogFile:         settings.Log.File,
	}
	for key, value := range optional {
		if value == "" {
			continue
		}
		if err := s.configStore.Set(key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}

	for k, v := range settings.IndexSettings {
		if err := s.configStore.Set(keyIndexSettings+k, v); err != nil {
			return fmt.Errorf("save index setting %s: %w", k, err)
		}
	}
	return nil
}

// SetAutosync toggles global propagation.
func (s *SettingsService) SetAutosync(enabled bool) error {
	if err := s.configStore.Set(keyAutosync, enabled); err != nil {
		return fmt.Errorf("save %s: %w", keyAutosync, err)
	}
	return nil
}

// GetDefaults returns default settings with paths under the base directory.
func (s *SettingsService) GetDefaults() domain.Settings {
	defaults := domain.DefaultSettings()
	if s.baseDir != "" {
		defaults.Backend.Path = filepath.Join(s.baseDir, "indices")
		defaults.Store.Path = filepath.Join(s.baseDir, "data")
	}
	return defaults
}

// indexSettings collects the index_settings table.
func (s *SettingsService) indexSettings() map[string]any {
	out := make(map[string]any)
	for _, key := range s.configStore.Keys(keyIndexSettings) {
		if v, ok := s.configStore.Get(key); ok {
			out[strings.TrimPrefix(key, keyIndexSettings)] = v
		}
	}
	return out
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetString(key)
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

// getDuration accepts a duration string ("250ms") or a number of seconds.
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if str := s.configStore.GetString(key); str != "" {
		d, err := time.ParseDuration(str)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err)
		}
		return d, nil
	}
	if secs := s.configStore.GetFloat(key); secs > 0 {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return defaultVal, nil
}
