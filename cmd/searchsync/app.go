package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/searchsync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/searchsync/internal/adapters/driven/search/bleveindex"
	"github.com/custodia-labs/searchsync/internal/adapters/driven/search/opensearch"
	"github.com/custodia-labs/searchsync/internal/adapters/driven/serializer"
	"github.com/custodia-labs/searchsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/searchsync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/searchsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
	"github.com/custodia-labs/searchsync/internal/core/services"
	"github.com/custodia-labs/searchsync/internal/geo"
	"github.com/custodia-labs/searchsync/internal/logger"
)

// closableBackend is a search backend holding resources.
type closableBackend interface {
	driven.SearchBackend
	Close() error
}

// setup wires the adapters and services for one CLI invocation.
func setup(opts cli.Options) (cli.Services, func() error, error) {
	baseDir := opts.ConfigDir
	if baseDir == "" {
		dir, err := file.DefaultDir()
		if err != nil {
			return cli.Services{}, nil, fmt.Errorf("resolving config directory: %w", err)
		}
		baseDir = dir
	}

	configStore, err := file.NewConfigStore(baseDir)
	if err != nil {
		return cli.Services{}, nil, fmt.Errorf("loading config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, baseDir)
	settings, err := settingsService.Get()
	if err != nil {
		return cli.Services{}, nil, fmt.Errorf("reading settings: %w", err)
	}

	logFile := settings.Log.File
	if logFile == "" {
		logFile = filepath.Join(baseDir, "logs", "searchsync.log")
	}
	if err := logger.Configure(logger.Options{
		Verbose:    opts.Verbose,
		File:       logFile,
		MaxSizeMB:  settings.Log.MaxSizeMB,
		MaxBackups: settings.Log.MaxBackups,
	}); err != nil {
		return cli.Services{}, nil, fmt.Errorf("configuring logger: %w", err)
	}

	bus := memory.NewSignalBus()
	store, err := sqlite.NewStore(settings.Store.Path, bus)
	if err != nil {
		return cli.Services{}, nil, fmt.Errorf("opening store: %w", err)
	}
	if err := store.Register(context.Background(), geo.Models()...); err != nil {
		return cli.Services{}, nil, errors.Join(err, store.Close())
	}

	backend, err := newBackend(settings.Backend)
	if err != nil {
		return cli.Services{}, nil, errors.Join(err, store.Close())
	}
	closeAll := func() error {
		return errors.Join(backend.Close(), store.Close())
	}

	ser, err := serializer.New(settings.Serializer)
	if err != nil {
		return cli.Services{}, nil, errors.Join(err, closeAll())
	}

	registry := services.NewDocumentRegistry(services.RegistryConfig{
		Backend:   backend,
		Databases: services.Databases{services.DefaultDatabase: store},
		Settings:  *settings,
	})
	if _, err := geo.Register(registry, store); err != nil {
		return cli.Services{}, nil, errors.Join(fmt.Errorf("registering documents: %w", err), closeAll())
	}
	registry.Seal()

	queue := store.TaskQueue()
	processor, err := services.NewSignalProcessor(settings.SignalProcessor, registry, bus, store, queue, ser)
	if err != nil {
		return cli.Services{}, nil, errors.Join(err, closeAll())
	}
	logger.Debug("using %s backend with %s signal processor", settings.Backend.Kind, settings.SignalProcessor)

	handlers := services.NewTaskHandlers(registry, ser)
	worker := services.NewTaskWorker(settings.Worker, queue, handlers.Handlers())

	svc := cli.Services{
		Management: services.NewManagementService(registry, services.NewIndexService(registry)),
		Search:     services.NewSearchService(registry),
		Settings:   settingsService,
		Worker:     worker,
		Watch: func(ctx context.Context, onChange func()) error {
			return file.Watch(ctx, configStore, onChange)
		},
		Autosync: registry.SetAutosync,
	}

	release := func() error {
		processor.Teardown()
		return closeAll()
	}
	return svc, release, nil
}

// newBackend opens the configured search backend.
func newBackend(cfg domain.BackendSettings) (closableBackend, error) {
	switch cfg.Kind {
	case domain.BackendOpenSearch:
		return opensearch.New(opensearch.Config{
			Addresses: cfg.Addresses,
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
	case domain.BackendBleve, "":
		return bleveindex.New(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: search backend %q", domain.ErrUnsupportedType, cfg.Kind)
	}
}
