package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/searchsync/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

// DatabaseFile is the name of the database inside the data directory.
const DatabaseFile = "searchsync.db"

// Ensure Store implements the interfaces.
var (
	_ driven.EntityStore = (*Store)(nil)
	_ driven.Committer   = (*Store)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a SQLite-backed relational store. Each registered model gets a
// table and each of its many-to-many relations a join table. Lifecycle
// signals are published to the configured publisher.
type Store struct {
	db   *sql.DB
	path string

	mu     sync.RWMutex
	models map[string]*domain.Model

	signals driven.SignalPublisher
}

// NewStore creates a new SQLite store in the specified data directory.
// If dataDir is empty, defaults to ~/.searchsync/data.
func NewStore(dataDir string, signals driven.SignalPublisher) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".searchsync", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:      db,
		path:    dbPath,
		models:  make(map[string]*domain.Model),
		signals: signals,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// TaskQueue returns the task queue backed by this store.
func (s *Store) TaskQueue() *TaskQueue {
	return newTaskQueue(s)
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_tasks.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// Register creates the tables of models if they do not exist and makes
// the models queryable. Inherited fields are stored in the child table.
func (s *Store) Register(ctx context.Context, models ...*domain.Model) error {
	for _, m := range models {
		if _, err := s.db.ExecContext(ctx, createTableSQL(m)); err != nil {
			return fmt.Errorf("creating table for %s: %w", m.Label(), err)
		}
		for _, r := range m.ManyToMany {
			rel, _ := m.Relation(r.Name)
			if _, err := s.db.ExecContext(ctx, createJoinTableSQL(rel.Table)); err != nil {
				return fmt.Errorf("creating join table %s: %w", rel.Table, err)
			}
		}
		s.mu.Lock()
		s.models[m.Name] = m
		s.mu.Unlock()
	}
	return nil
}

// Model returns a registered model by name.
func (s *Store) Model(name string) (*domain.Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[name]
	return m, ok
}

func (s *Store) model(name string) (*domain.Model, error) {
	m, ok := s.Model(name)
	if !ok {
		return nil, fmt.Errorf("%w: model %s", domain.ErrUnknownModel, name)
	}
	return m, nil
}

// conn returns the transaction carried by ctx, or the database.
func (s *Store) conn(ctx context.Context) querier {
	if t, ok := ctx.Value(txKey{}).(*txState); ok && t.store == s {
		return t.tx
	}
	return s.db
}

func (s *Store) publish(ctx context.Context, sig domain.Signal) error {
	if s.signals == nil {
		return nil
	}
	return s.signals.Publish(ctx, sig)
}

// columns returns the stored fields of m, its own first, then those of
// its ancestors. A redeclared field keeps the nearest declaration.
func columns(m *domain.Model) []domain.Field {
	var out []domain.Field
	seen := make(map[string]bool)
	visited := make(map[*domain.Model]bool)
	for t := m; t != nil && !visited[t]; t = t.Parent {
		visited[t] = true
		for _, f := range t.Fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				out = append(out, f)
			}
		}
	}
	return out
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlType(k domain.ColumnKind) string {
	switch {
	case k.IsInteger(), k == domain.ColumnForeignKey, k.IsBool():
		return "INTEGER"
	case k.IsFloat():
		return "REAL"
	default:
		return "TEXT"
	}
}

func createTableSQL(m *domain.Model) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n\tid INTEGER PRIMARY KEY AUTOINCREMENT", quote(m.TableName()))
	for _, f := range columns(m) {
		fmt.Fprintf(&sb, ",\n\t%s %s", quote(f.Name), sqlType(f.Kind))
	}
	sb.WriteString("\n)")
	return sb.String()
}

func createJoinTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	owner_id INTEGER NOT NULL,
	target_id INTEGER NOT NULL,
	PRIMARY KEY (owner_id, target_id)
)`, quote(table))
}
