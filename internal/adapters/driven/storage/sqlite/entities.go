package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// Save inserts e, assigning an id when it has none, or replaces its row,
// then publishes post_save.
func (s *Store) Save(ctx context.Context, e *domain.Entity) error {
	m, err := s.model(e.Type())
	if err != nil {
		return err
	}
	cols := columns(m)
	names := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for _, f := range cols {
		v, err := encodeValue(f.Kind, e.Values[f.Name])
		if err != nil {
			return fmt.Errorf("encoding %s.%s: %w", m.Name, f.Name, err)
		}
		names = append(names, quote(f.Name))
		args = append(args, v)
	}

	conn := s.conn(ctx)
	created := true
	if e.ID != 0 {
		var one int
		err := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", quote(m.TableName())), e.ID).Scan(&one)
		switch {
		case err == nil:
			created = false
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking %s %d: %w", m.Name, e.ID, err)
		}
		names = append([]string{"id"}, names...)
		args = append([]any{e.ID}, args...)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	var stmt string
	switch {
	case len(names) == 0:
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quote(m.TableName()))
	default:
		stmt = fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", quote(m.TableName()), strings.Join(names, ", "), placeholders)
	}
	res, err := conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("saving %s: %w", m.Name, err)
	}
	if e.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading id of %s: %w", m.Name, err)
		}
		e.ID = id
	}

	return s.publish(ctx, domain.Signal{
		Kind:    domain.SignalPostSave,
		Sender:  e.Model,
		Entity:  domain.NewEntity(e.Model, e.ID, maps.Clone(e.Values)),
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

	m := current.Model
	conn := s.conn(ctx)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", quote(m.TableName())), e.ID); err != nil {
		return fmt.Errorf("deleting %s %d: %w", m.Name, e.ID, err)
	}

	s.mu.RLock()
	models := make([]*domain.Model, 0, len(s.models))
	for _, other := range s.models {
		models = append(models, other)
	}
	s.mu.RUnlock()

	for _, owner := range models {
		for _, r := range owner.ManyToMany {
			rel, _ := owner.Relation(r.Name)
			if owner.Name == m.Name {
				if _, err := conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE owner_id = ?", quote(rel.Table)), e.ID); err != nil {
					return fmt.Errorf("deleting memberships of %s %d: %w", m.Name, e.ID, err)
				}
			}
			if rel.Target == m.Name {
				if _, err := conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE target_id = ?", quote(rel.Table)), e.ID); err != nil {
					return fmt.Errorf("deleting memberships of %s %d: %w", m.Name, e.ID, err)
				}
			}
		}
	}
	return nil
}

// Get returns one entity.
func (s *Store) Get(ctx context.Context, model string, id int64) (*domain.Entity, error) {
	m, err := s.model(model)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, m, domain.NewQuery(model).Where(domain.Eq("id", id)))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %d: %w", model, id, domain.ErrNotFound)
	}
	return rows[0], nil
}

// Find executes a query.
func (s *Store) Find(ctx context.Context, q domain.Query) ([]*domain.Entity, error) {
	m, err := s.model(q.Model)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(m); err != nil {
		return nil, err
	}
	return s.query(ctx, m, q)
}

// Count returns the number of entities a query selects.
func (s *Store) Count(ctx context.Context, q domain.Query) (int, error) {
	m, err := s.model(q.Model)
	if err != nil {
		return 0, err
	}
	if err := q.Validate(m); err != nil {
		return 0, err
	}
	c, err := compileQuery(m, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.conn(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+c.sql+")", c.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", m.Name, err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, m *domain.Model, q domain.Query) ([]*domain.Entity, error) {
	c, err := compileQuery(m, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn(ctx).QueryContext(ctx, c.sql, c.args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", m.Name, err)
	}
	defer rows.Close()

	cols := columns(m)
	var out []*domain.Entity //nolint:prealloc // row count unknown
	for rows.Next() {
		var id int64
		raw := make([]any, len(cols))
		dest := make([]any, 0, len(cols)+1)
		dest = append(dest, &id)
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", m.Name, err)
		}
		values := make(map[string]any, len(cols))
		for i, f := range cols {
			v, err := decodeValue(f.Kind, raw[i])
			if err != nil {
				return nil, fmt.Errorf("decoding %s.%s: %w", m.Name, f.Name, err)
			}
			values[f.Name] = v
		}
		out = append(out, domain.NewEntity(m, id, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", m.Name, err)
	}
	return out, nil
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
	return s.changeMembers(ctx, owner, relation, domain.M2MPreAdd, domain.M2MPostAdd, targets,
		func(conn querier, table string) error {
			for _, id := range targets {
				stmt := fmt.Sprintf("INSERT OR IGNORE INTO %s (owner_id, target_id) VALUES (?, ?)", quote(table))
				if _, err := conn.ExecContext(ctx, stmt, owner.ID, id); err != nil {
					return err
				}
			}
			return nil
		})
}

// RemoveMembers removes targets from a many-to-many relation of owner.
func (s *Store) RemoveMembers(ctx context.Context, owner *domain.Entity, relation string, targets ...int64) error {
	return s.changeMembers(ctx, owner, relation, domain.M2MPreRemove, domain.M2MPostRemove, targets,
		func(conn querier, table string) error {
			for _, id := range targets {
				stmt := fmt.Sprintf("DELETE FROM %s WHERE owner_id = ? AND target_id = ?", quote(table))
				if _, err := conn.ExecContext(ctx, stmt, owner.ID, id); err != nil {
					return err
				}
			}
			return nil
		})
}

// ClearMembers empties a many-to-many relation of owner.
func (s *Store) ClearMembers(ctx context.Context, owner *domain.Entity, relation string) error {
	return s.changeMembers(ctx, owner, relation, domain.M2MPreClear, domain.M2MPostClear, nil,
		func(conn querier, table string) error {
			_, err := conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE owner_id = ?", quote(table)), owner.ID)
			return err
		})
}

func (s *Store) changeMembers(
	ctx context.Context,
	owner *domain.Entity,
	relation string,
	pre, post domain.M2MAction,
	targets []int64,
	apply func(conn querier, table string) error,
) error {
	r, err := s.relation(owner, relation)
	if err != nil {
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

	if err := apply(s.conn(ctx), r.Table); err != nil {
		return fmt.Errorf("updating %s.%s: %w", owner.Type(), relation, err)
	}

	sig.Action = post
	return s.publish(ctx, sig)
}

// Members returns the targets of a many-to-many relation of owner, by id.
func (s *Store) Members(ctx context.Context, owner *domain.Entity, relation string) ([]*domain.Entity, error) {
	r, err := s.relation(owner, relation)
	if err != nil {
		return nil, err
	}
	ids, err := s.scanIDs(ctx, fmt.Sprintf("SELECT target_id FROM %s WHERE owner_id = ? ORDER BY target_id", quote(r.Table)), owner.ID)
	if err != nil {
		return nil, err
	}
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
func (s *Store) Owners(ctx context.Context, owner *domain.Model, relation string, target int64) ([]int64, error) {
	r, ok := owner.Relation(relation)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no relation %q", domain.ErrInvalidInput, owner.Name, relation)
	}
	return s.scanIDs(ctx, fmt.Sprintf("SELECT owner_id FROM %s WHERE target_id = ? ORDER BY owner_id", quote(r.Table)), target)
}

func (s *Store) scanIDs(ctx context.Context, stmt string, args ...any) ([]int64, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memberships: %w", err)
	}
	defer rows.Close()

	var ids []int64 //nolint:prealloc // row count unknown
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
