package domain

import "time"

// ProcessorKind selects the signal processor implementation.
type ProcessorKind string

// Signal processors.
const (
	ProcessorRealTime ProcessorKind = "realtime"
	ProcessorDeferred ProcessorKind = "deferred"
)

// IsValid returns true if the processor kind is recognised.
func (k ProcessorKind) IsValid() bool {
	return k == ProcessorRealTime || k == ProcessorDeferred
}

// BackendKind selects the search backend.
type BackendKind string

// Search backends.
const (
	BackendBleve      BackendKind = "bleve"
	BackendOpenSearch BackendKind = "opensearch"
)

// IsValid returns true if the backend kind is recognised.
func (k BackendKind) IsValid() bool {
	return k == BackendBleve || k == BackendOpenSearch
}

// Default values.
const (
	DefaultPagination = 4096
	DefaultChunkSize  = 500
	DefaultThreads    = 4
)

// Settings holds the configuration of the synchronization engine.
type Settings struct {
	// Autosync enables propagation of store signals to the index.
	Autosync bool

	// AutoRefresh refreshes the index after each write by default.
	AutoRefresh bool

	// Pagination is the default chunk size for streaming entities.
	Pagination int

	// IndexSettings are merged under every index's explicit settings.
	IndexSettings map[string]any

	SignalProcessor ProcessorKind

	// Serializer names the delete payload serializer ("json" or "bson").
	Serializer string

	Backend BackendSettings
	Store   StoreSettings
	Bulk    BulkSettings
	Worker  WorkerConfig
	Log     LogSettings
}

// BackendSettings configures the search backend.
type BackendSettings struct {
	Kind      BackendKind
	Path      string
	Addresses []string
	Username  string
	Password  string
}

// StoreSettings configures the relational store.
type StoreSettings struct {
	Path string
}

// BulkSettings configures bulk submission.
type BulkSettings struct {
	ChunkSize int
	Threads   int

	// Rate limits bulk calls per second; zero disables limiting.
	Rate float64
}

// LogSettings configures the log file.
type LogSettings struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// DefaultSettings returns settings with sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		Autosync:        true,
		AutoRefresh:     false,
		Pagination:      DefaultPagination,
		IndexSettings:   map[string]any{},
		SignalProcessor: ProcessorRealTime,
		Serializer:      "json",
		Backend: BackendSettings{
			Kind:      BackendBleve,
			Addresses: []string{"http://localhost:9200"},
		},
		Bulk: BulkSettings{
			ChunkSize: DefaultChunkSize,
			Threads:   DefaultThreads,
		},
		Worker: DefaultWorkerConfig(),
		Log: LogSettings{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// WorkerInterval returns the poll interval, defaulting to one second.
func (s Settings) WorkerInterval() time.Duration {
	if s.Worker.Interval <= 0 {
		return time.Second
	}
	return s.Worker.Interval
}
