package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// --- Mock implementations for testing ---

type mockManagement struct {
	statuses []domain.IndexStatus

	indexRequests []domain.IndexRequest
	indexErr      error
	failing       map[string]error

	docRequests []domain.DocumentRequest
	planErr     error
	results     []domain.DocumentResult
	executeErr  error
	executed    int

	versions []string
	active   string
	created  []string
	activate [][2]string
	reindex  []string
}

func (m *mockManagement) ListIndices(_ context.Context) ([]domain.IndexStatus, error) {
	return m.statuses, nil
}

func (m *mockManagement) ManageIndex(_ context.Context, req domain.IndexRequest, report func(domain.IndexResult)) error {
	m.indexRequests = append(m.indexRequests, req)
	for _, name := range req.Indices {
		err := m.failing[name]
		report(domain.IndexResult{Index: name, Action: req.Action, Err: err})
		if err != nil && !req.IgnoreError {
			return err
		}
	}
	return m.indexErr
}

func (m *mockManagement) PlanDocuments(_ context.Context, req domain.DocumentRequest) (*domain.DocumentPlan, error) {
	m.docRequests = append(m.docRequests, req)
	if m.planErr != nil {
		return nil, m.planErr
	}
	return &domain.DocumentPlan{
		Request: req,
		Items: []domain.DocumentPlanItem{
			{Model: "Country", Count: 1234},
		},
	}, nil
}

func (m *mockManagement) ExecuteDocuments(
	_ context.Context, _ *domain.DocumentPlan, progress domain.ProgressSink,
) ([]domain.DocumentResult, error) {
	m.executed++
	progress(domain.Progress{Action: domain.CommandIndex, Model: "Country", Done: 1234, Total: 1234})
	return m.results, m.executeErr
}

func (m *mockManagement) Versions(_ context.Context, _ string) ([]string, string, error) {
	return m.versions, m.active, nil
}

func (m *mockManagement) CreateVersion(_ context.Context, index, suffix string) (string, error) {
	name := index + "-" + suffix
	m.created = append(m.created, name)
	return name, nil
}

func (m *mockManagement) ActivateVersion(_ context.Context, index, version string) error {
	m.activate = append(m.activate, [2]string{index, version})
	return nil
}

func (m *mockManagement) Reindex(
	_ context.Context, index string, progress domain.ProgressSink,
) (string, []domain.DocumentResult, error) {
	m.reindex = append(m.reindex, index)
	progress(domain.Progress{Action: domain.CommandIndex, Model: "Country", Done: 1, Total: 1})
	return index + "-v2", m.results, nil
}

type mockSearch struct {
	results []domain.SearchResult
	err     error
	queries []string
	limits  []int
}

func (m *mockSearch) Search(_ context.Context, _, query string, limit int) ([]domain.SearchResult, error) {
	m.queries = append(m.queries, query)
	m.limits = append(m.limits, limit)
	return m.results, m.err
}

type mockSettings struct {
	settings domain.Settings
	saved    int
	err      error
}

func (m *mockSettings) Get() (*domain.Settings, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := m.settings
	return &s, nil
}

func (m *mockSettings) Save(s *domain.Settings) error {
	m.settings = *s
	m.saved++
	return nil
}

func (m *mockSettings) SetAutosync(enabled bool) error {
	m.settings.Autosync = enabled
	m.saved++
	return nil
}

func (m *mockSettings) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

type mockWorker struct {
	ran     int
	err     error
	started bool
	stopped bool
}

func (m *mockWorker) Start(ctx context.Context) error {
	m.started = true
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockWorker) Stop() error {
	m.stopped = true
	return nil
}

func (m *mockWorker) RunOnce(_ context.Context) (int, error) {
	return m.ran, m.err
}

type testServices struct {
	management *mockManagement
	search     *mockSearch
	settings   *mockSettings
	worker     *mockWorker
	autosync   []bool
}

// setupTestServices installs mock services and resets command flags. The
// returned function restores the previous state.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		management: &mockManagement{
			statuses: []domain.IndexStatus{
				{Name: "continent", Models: []string{"Continent"}, Exists: true, Count: 7},
				{Name: "country", Models: []string{"Country"}, Exists: true, Count: 1234},
				{Name: "event", Models: []string{"Event"}},
			},
		},
		search:   &mockSearch{},
		settings: &mockSettings{settings: domain.DefaultSettings()},
		worker:   &mockWorker{},
	}

	oldManagement, oldSearch, oldSettings := managementService, searchService, settingsService
	oldWorker, oldWatch, oldAutosync := taskWorker, configWatch, setAutosync
	oldConfirm := confirm

	SetServices(Services{
		Management: ts.management,
		Search:     ts.search,
		Settings:   ts.settings,
		Worker:     ts.worker,
		Autosync:   func(enabled bool) { ts.autosync = append(ts.autosync, enabled) },
	})
	confirm = func(*cobra.Command, string) error { return nil }
	resetFlags()

	return ts, func() {
		managementService, searchService, settingsService = oldManagement, oldSearch, oldSettings
		taskWorker, configWatch, setAutosync = oldWorker, oldWatch, oldAutosync
		confirm = oldConfirm
		resetFlags()
	}
}

// resetFlags restores every flag variable to its default between runs of
// the shared command tree.
func resetFlags() {
	docFilters, docExcludes, docIndices, docObjects = nil, nil, nil, nil
	docCount, docDatabase, docBatchSize = 0, "", 0
	docBatchType = string(domain.BatchOffset)
	docParallel, docRefresh, docMissing, docForce = false, false, false, false
	indexForce, indexIgnoreError, versionSuffix = false, false, ""
	searchLimit, searchJSON = 10, false
	workerOnce = false

	var visit func(*cobra.Command)
	visit = func(c *cobra.Command) {
		unset := func(f *pflag.Flag) { f.Changed = false }
		c.Flags().VisitAll(unset)
		c.PersistentFlags().VisitAll(unset)
		for _, sub := range c.Commands() {
			visit(sub)
		}
	}
	visit(rootCmd)
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "searchsync", rootCmd.Use)
}

func TestRootCmd_HasCommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"document", "index", "list", "search", "settings", "version", "worker"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, flag)
	assert.Equal(t, "v", flag.Shorthand)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config-dir"))
}

func TestRootCmd_SetupBuildsServices(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	mgmt := &mockManagement{}
	released := false
	var got Options
	oldSetup, oldTeardown := setup, teardown
	SetSetup(func(opts Options) (Services, func() error, error) {
		got = opts
		return Services{Management: mgmt}, func() error { released = true; return nil }, nil
	})
	defer func() {
		setup, teardown = oldSetup, oldTeardown
		configDir = ""
	}()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"--config-dir", "/tmp/searchsync-test", "list"})
	defer rootCmd.SetArgs(nil)

	err := Execute()

	require.NoError(t, err)
	assert.Equal(t, "/tmp/searchsync-test", got.ConfigDir)
	assert.True(t, released)
	assert.Same(t, mgmt, managementService)
}

func TestRootCmd_SetupSkippedForVersion(t *testing.T) {
	oldSetup := setup
	called := false
	SetSetup(func(Options) (Services, func() error, error) {
		called = true
		return Services{}, nil, nil
	})
	defer func() { setup = oldSetup }()

	_, err := execute(t, "version")

	require.NoError(t, err)
	assert.False(t, called)
}

func TestRootCmd_SetupError(t *testing.T) {
	oldSetup := setup
	SetSetup(func(Options) (Services, func() error, error) {
		return Services{}, nil, errors.New("store unavailable")
	})
	defer func() { setup = oldSetup }()

	_, err := execute(t, "list")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
}

func TestRequireForce(t *testing.T) {
	oldConfirm := confirm
	defer func() { confirm = oldConfirm }()

	asked := 0
	confirm = func(*cobra.Command, string) error { asked++; return errAborted }

	assert.NoError(t, requireForce(rootCmd, true, "Continue?"))
	assert.Equal(t, 0, asked)
	assert.ErrorIs(t, requireForce(rootCmd, false, "Continue?"), errAborted)
	assert.Equal(t, 1, asked)
}
