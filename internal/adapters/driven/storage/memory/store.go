package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

// Ensure Store implements the interfaces.
var (
	_ driven.EntityStore = (*Store)(nil)
	_ driven.Committer   = (*Store)(nil)
)

type table struct {
	seq  int64
	rows map[int64]map[string]any
}

// Store is an in-memory relational store. It emits the same lifecycle
// signals as the sqlite store.
type Store struct {
	mu      sync.RWMutex
	models  map[string]*domain.Model
	tables  map[string]*table
	members map[string]map[int64][]int64

	signals driven.SignalPublisher
}

// NewStore creates a store for models. Signals are published to signals
// when it is not nil.
func NewStore(signals driven.SignalPublisher, models ...*domain.Model) *Store {
	s := &Store{
		models:  make(map[string]*domain.Model),
		tables:  make(map[string]*table),
		members: make(map[string]map[int64][]int64),
		signals: signals,
	}
	s.Register(models...)
	return s
}

// Register adds models to the store.
func (s *Store) Register(models ...*domain.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range models {
		s.models[m.Name] = m
		if _, ok := s.tables[m.Name]; !ok {
			s.tables[m.Name] = &table{rows: make(map[int64]map[string]any)}
		}
	}
}

// Model returns a registered model by name.
func (s *Store) Model(name string) (*domain.Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[name]
	return m, ok
}

func (s *Store) table(model string) (*table, error) {
	t, ok := s.tables[model]
	if !ok {
		return nil, fmt.Errorf("%w: model %s", domain.ErrUnknownModel, model)
	}
	return t, nil
}

// Save inserts e, assigning an id when it has none, or updates it, then
// publishes post_save.
func (s *Store) Save(ctx context.Context, e *domain.Entity) error {
	s.mu.Lock()
	t, err := s.table(e.Type())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	created := false
	if e.ID == 0 {
		t.seq++
		e.ID = t.seq
		created = true
	} else {
		_, exists := t.rows[e.ID]
		created = !exists
		if e.ID > t.seq {
			t.seq = e.ID
		}
	}
	t.rows[e.ID] = maps.Clone(e.Values)
	s.mu.Unlock()

	return s.publish(ctx, domain.Signal{
		Kind:    domain.SignalPostSave,
		Sender:  e.Model,
		Entity:  s.snapshot(e),
		Created: created,
	})
}

// Delete publishes pre_delete and removes e with its memberships.
func (s *Store) Delete(ctx context.Context, e *domain.Entity) error {
	current, err := s.Get(ctx, e.Type(), e.ID)
	if err != nil {
		return err
	}
	if err := s.publish(ctx, domain.Signal{Kind: domain.SignalPreDelete, Sender: e.Model, Entity: current}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[e.Type()].rows, e.ID)
	for key, owners := range s.members {
		owner, relation, _ := strings.Cut(key, ".")
		if owner == e.Type() {
			delete(owners, e.ID)
			continue
		}
		target := s.relationTarget(owner, relation)
		if target != e.Type() {
			continue
		}
		for id, targets := range owners {
			owners[id] = slices.DeleteFunc(targets, func(t int64) bool { return t == e.ID })
		}
	}
	return nil
}

func (s *Store) relationTarget(owner, relation string) string {
	m, ok := s.models[owner]
	if !ok {
		return ""
	}
	r, ok := m.Relation(relation)
	if !ok {
		return ""
	}
	return r.Target
}

func memberKey(owner *domain.Entity, relation string) string {
	return owner.Type() + "." + relation
}

func (s *Store) relation(owner *domain.Entity, name string) (domain.Relation, error) {
	if owner.Model == nil {
		return domain.Relation{}, fmt.Errorf("%w: entity without model", domain.ErrInvalidInput)
	}
	r, ok := owner.Model.Relation(name)
	if !ok {
		return domain.Relation{}, fmt.Errorf("%w: %s has no relation %q", domain.ErrInvalidInput, owner.Type(), name)
	}
	return r, nil
}

// AddMembers adds targets to a many-to-many relation of owner.
func (s *Store) AddMembers(ctx context.Context, owner *domain.Entity, relation string, targets ...int64) error {
	return s.changeMembers(ctx, owner, relation, domain.M2MPreAdd, domain.M2MPostAdd, targets, func(cur []int64) []int64 {
		for _, id := range targets {
			if !slices.Contains(cur, id) {
				cur = append(cur, id)
			}
		}
		return cur
	})
}

// RemoveMembers removes targets from a many-to-many relation of owner.
func (s *Store) RemoveMembers(ctx context.Context, owner *domain.Entity, relation string, targets ...int64) error {
	return s.changeMembers(ctx, owner, relation, domain.M2MPreRemove, domain.M2MPostRemove, targets, func(cur []int64) []int64 {
		return slices.DeleteFunc(cur, func(id int64) bool { return slices.Contains(targets, id) })
	})
}

// ClearMembers empties a many-to-many relation of owner.
func (s *Store) ClearMembers(ctx context.Context, owner *domain.Entity, relation string) error {
	return s.changeMembers(ctx, owner, relation, domain.M2MPreClear, domain.M2MPostClear, nil, func([]int64) []int64 {
		return nil
	})
}

func (s *Store) changeMembers(
	ctx context.Context,
	owner *domain.Entity,
	relation string,
	pre, post domain.M2MAction,
	targets []int64,
	apply func([]int64) []int64,
) error {
	if _, err := s.relation(owner, relation); err != nil {
		return err
	}
	sig := domain.Signal{
		Kind:     domain.SignalM2MChanged,
		Sender:   owner.Model,
		Entity:   owner,
		Relation: relation,
		Targets:  targets,
	}
	sig.Action = pre
	if err := s.publish(ctx, sig); err != nil {
		return err
	}

	s.mu.Lock()
	key := memberKey(owner, relation)
	if s.members[key] == nil {
		s.members[key] = make(map[int64][]int64)
	}
	s.members[key][owner.ID] = apply(slices.Clone(s.members[key][owner.ID]))
	s.mu.Unlock()

	sig.Action = post
	return s.publish(ctx, sig)
}

// Members returns the targets of a many-to-many relation of owner, by id.
func (s *Store) Members(ctx context.Context, owner *domain.Entity, relation string) ([]*domain.Entity, error) {
	r, err := s.relation(owner, relation)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := slices.Clone(s.members[memberKey(owner, relation)][owner.ID])
	s.mu.RUnlock()
	if len(ids) == 0 {
		return nil, nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return s.Find(ctx, domain.NewQuery(r.Target).Where(domain.In("id", values...)).OrderBy("id"))
}

// Owners returns the ids of the entities whose relation contains target.
func (s *Store) Owners(_ context.Context, owner *domain.Model, relation string, target int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for id, targets := range s.members[owner.Name+"."+relation] {
		if slices.Contains(targets, target) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Get returns one entity.
func (s *Store) Get(_ context.Context, model string, id int64) (*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(model)
	if err != nil {
		return nil, err
	}
	row, ok := t.rows[id]
	if !ok {
		return nil, fmt.Errorf("%s %d: %w", model, id, domain.ErrNotFound)
	}
	return domain.NewEntity(s.models[model], id, maps.Clone(row)), nil
}

// Find executes a query.
func (s *Store) Find(_ context.Context, q domain.Query) ([]*domain.Entity, error) {
	rows, err := s.selectRows(q)
	if err != nil {
		return nil, err
	}
	start := min(q.Offset, len(rows))
	end := len(rows)
	if q.Limit >= 0 {
		end = min(start+q.Limit, len(rows))
	}
	return rows[start:end], nil
}

// Count returns the number of entities a query selects.
func (s *Store) Count(ctx context.Context, q domain.Query) (int, error) {
	rows, err := s.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) selectRows(q domain.Query) ([]*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.models[q.Model]
	if !ok {
		return nil, fmt.Errorf("%w: model %s", domain.ErrUnknownModel, q.Model)
	}
	if err := q.Validate(m); err != nil {
		return nil, err
	}

	var out []*domain.Entity
	for id, row := range s.tables[q.Model].rows {
		e := domain.NewEntity(m, id, maps.Clone(row))
		if q.Matches(e) {
			out = append(out, e)
		}
	}

	order := q.Order
	if len(order) == 0 {
		order = []string{"id"}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range order {
			name := strings.TrimPrefix(o, "-")
			c := compareNullable(out[i].Value(name), out[j].Value(name))
			if c == 0 {
				continue
			}
			if strings.HasPrefix(o, "-") {
				return c > 0
			}
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// compareNullable orders nil before any value.
func compareNullable(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := domain.Compare(a, b)
	return c
}

func (s *Store) snapshot(e *domain.Entity) *domain.Entity {
	return domain.NewEntity(e.Model, e.ID, maps.Clone(e.Values))
}

func (s *Store) publish(ctx context.Context, sig domain.Signal) error {
	if s.signals == nil {
		return nil
	}
	return s.signals.Publish(ctx, sig)
}
