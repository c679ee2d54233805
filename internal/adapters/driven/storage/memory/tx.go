package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
)

type txKey struct{}

// tx collects the commit hooks of one unit of work.
type tx struct {
	mu    sync.Mutex
	hooks []func(context.Context)
}

type state struct {
	tables  map[string]*table
	members map[string]map[int64][]int64
}

// WithTx runs fn as one unit of work. When fn fails the store is restored
// to its state before fn and commit hooks are dropped; otherwise the
// hooks run in registration order. A nested call joins the outer unit.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*tx); ok {
		return fn(ctx)
	}

	saved := s.checkpoint()
	t := &tx{}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		s.restore(saved)
		return err
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

// OnCommit runs fn when the unit of work in ctx commits, or immediately
// outside one.
func (s *Store) OnCommit(ctx context.Context, fn func(context.Context)) {
	t, ok := ctx.Value(txKey{}).(*tx)
	if !ok {
		fn(ctx)
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, fn)
}

func (s *Store) checkpoint() state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := state{
		tables:  make(map[string]*table, len(s.tables)),
		members: make(map[string]map[int64][]int64, len(s.members)),
	}
	for name, t := range s.tables {
		rows := make(map[int64]map[string]any, len(t.rows))
		for id, row := range t.rows {
			rows[id] = maps.Clone(row)
		}
		st.tables[name] = &table{seq: t.seq, rows: rows}
	}
	for key, owners := range s.members {
		cp := make(map[int64][]int64, len(owners))
		for id, targets := range owners {
			cp[id] = slices.Clone(targets)
		}
		st.members[key] = cp
	}
	return st
}

func (s *Store) restore(st state) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = st.tables
	s.members = st.members
}
