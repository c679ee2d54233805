package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Short secret",
			input:    "abc123",
			expected: "****",
		},
		{
			name:     "Exactly 8 chars",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "Long secret",
			input:    "hunter2-password",
			expected: "hu...rd",
		},
		{
			name:     "Nine chars",
			input:    "123456789",
			expected: "12...89",
		},
		{
			name:     "Empty secret",
			input:    "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskSecret(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{
			name:       "Empty input returns default",
			input:      "",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Valid choice within range",
			input:      "3",
			maxVal:     5,
			defaultVal: 1,
			expected:   3,
		},
		{
			name:       "Choice below minimum returns default",
			input:      "0",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Choice above maximum returns default",
			input:      "6",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Invalid input returns default",
			input:      "abc",
			maxVal:     5,
			defaultVal: 2,
			expected:   2,
		},
		{
			name:       "Negative number returns default",
			input:      "-1",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Whitespace returns default",
			input:      "   ",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Maximum value is valid",
			input:      "5",
			maxVal:     5,
			defaultVal: 1,
			expected:   5,
		},
		{
			name:       "Minimum value is valid",
			input:      "1",
			maxVal:     5,
			defaultVal: 3,
			expected:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseChoice(tt.input, tt.maxVal, tt.defaultVal)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSettingsShow(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.settings.Backend = domain.BackendSettings{
		Kind:      domain.BackendOpenSearch,
		Addresses: []string{"https://search-1:9200", "https://search-2:9200"},
		Username:  "admin",
		Password:  "correct-horse",
	}

	out, err := execute(t, "settings")

	require.NoError(t, err)
	assert.Contains(t, out, "Autosync: on")
	assert.Contains(t, out, "Processor: realtime")
	assert.Contains(t, out, "Kind: opensearch")
	assert.Contains(t, out, "Addresses: https://search-1:9200, https://search-2:9200")
	assert.Contains(t, out, "Password: co...se")
	assert.NotContains(t, out, "correct-horse")
	assert.Contains(t, out, "Rate: unlimited")
}

func TestSettingsAutosync(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "settings", "autosync", "off")

	require.NoError(t, err)
	assert.False(t, ts.settings.settings.Autosync)
	assert.Equal(t, []bool{false}, ts.autosync)
	assert.Contains(t, out, "Autosync off.")
}

func TestSettingsAutosync_InvalidValue(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "settings", "autosync", "maybe")

	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, ts.settings.saved)
	assert.Empty(t, ts.autosync)
}

func TestSettingsProcessor(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "settings", "processor", "deferred")

	require.NoError(t, err)
	assert.Equal(t, domain.ProcessorDeferred, ts.settings.settings.SignalProcessor)
	assert.Contains(t, out, "searchsync worker")

	_, err = execute(t, "settings", "processor", "eventual")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsBackend_OpenSearch(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	rootCmd.SetIn(strings.NewReader("2\nhttp://a:9200, http://b:9200\nadmin\ns3cret\n"))
	defer rootCmd.SetIn(nil)

	out, err := execute(t, "settings", "backend")

	require.NoError(t, err)
	backend := ts.settings.settings.Backend
	assert.Equal(t, domain.BackendOpenSearch, backend.Kind)
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, backend.Addresses)
	assert.Equal(t, "admin", backend.Username)
	assert.Equal(t, "s3cret", backend.Password)
	assert.Contains(t, out, "Search backend configured: opensearch")
}

func TestSettingsBackend_BleveDefaults(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	rootCmd.SetIn(strings.NewReader("\n/var/lib/searchsync/index\n"))
	defer rootCmd.SetIn(nil)

	_, err := execute(t, "settings", "backend")

	require.NoError(t, err)
	assert.Equal(t, domain.BackendBleve, ts.settings.settings.Backend.Kind)
	assert.Equal(t, "/var/lib/searchsync/index", ts.settings.settings.Backend.Path)
	assert.Equal(t, 1, ts.settings.saved)
}

func TestSettingsCmd_ServiceNotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	settingsService = nil

	_, err := execute(t, "settings", "show")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings service not configured")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(" , "))
}
