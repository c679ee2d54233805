package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

type txKey struct{}

// txState is the transaction carried by a context.
type txState struct {
	store *Store
	tx    *sql.Tx

	mu    sync.Mutex
	hooks []func(context.Context)
}

// WithTx runs fn inside a database transaction. The transaction commits
// when fn succeeds and rolls back otherwise. Commit hooks run after a
// successful commit, in registration order. A nested call joins the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t, ok := ctx.Value(txKey{}).(*txState); ok && t.store == s {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	t := &txState{store: s, tx: tx}

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	t.mu.Lock()
	hooks := t.hooks
	t.hooks = nil
	t.mu.Unlock()
	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

// OnCommit runs fn after the transaction in ctx commits, or immediately
// when ctx carries none.
func (s *Store) OnCommit(ctx context.Context, fn func(context.Context)) {
	t, ok := ctx.Value(txKey{}).(*txState)
	if !ok || t.store != s {
		fn(ctx)
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, fn)
}
