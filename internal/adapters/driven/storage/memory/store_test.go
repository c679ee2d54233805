package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

func testModels() (*domain.Model, *domain.Model) {
	continent := &domain.Model{
		Name:      "Continent",
		Namespace: "geo",
		Fields:    []domain.Field{{Name: "name", Kind: domain.ColumnChar}},
	}
	country := &domain.Model{
		Name:      "Country",
		Namespace: "geo",
		Fields: []domain.Field{
			{Name: "name", Kind: domain.ColumnChar},
			{Name: "population", Kind: domain.ColumnBigInteger},
			{Name: "continent_id", Kind: domain.ColumnForeignKey, Related: "Continent"},
		},
		ManyToMany: []domain.Relation{{Name: "neighbours", Target: "Country"}},
	}
	return continent, country
}

type recorder struct {
	signals []domain.Signal
}

func (r *recorder) subscribe(bus *SignalBus) {
	for _, kind := range []domain.SignalKind{domain.SignalPostSave, domain.SignalPreDelete, domain.SignalM2MChanged} {
		bus.Subscribe(kind, func(_ context.Context, sig domain.Signal) error {
			r.signals = append(r.signals, sig)
			return nil
		})
	}
}

func seedCountries(t *testing.T, s *Store, country *domain.Model) []*domain.Entity {
	t.Helper()
	ctx := context.Background()
	var out []*domain.Entity
	for _, v := range []struct {
		name string
		pop  int64
	}{{"France", 67}, {"Germany", 83}, {"Spain", 47}, {"Italy", 59}} {
		e := domain.NewEntity(country, 0, map[string]any{"name": v.name, "population": v.pop, "continent_id": int64(1)})
		require.NoError(t, s.Save(ctx, e))
		out = append(out, e)
	}
	return out
}

func TestStore_SaveAssignsIDsAndPublishes(t *testing.T) {
	ctx := context.Background()
	bus := NewSignalBus()
	rec := &recorder{}
	rec.subscribe(bus)
	_, country := testModels()
	s := NewStore(bus, country)

	e := domain.NewEntity(country, 0, map[string]any{"name": "France"})
	require.NoError(t, s.Save(ctx, e))
	assert.Equal(t, int64(1), e.ID)

	e.Set("name", "République française")
	require.NoError(t, s.Save(ctx, e))

	require.Len(t, rec.signals, 2)
	assert.True(t, rec.signals[0].Created)
	assert.False(t, rec.signals[1].Created)
	assert.Equal(t, "République française", rec.signals[1].Entity.Values["name"])

	got, err := s.Get(ctx, "Country", 1)
	require.NoError(t, err)
	assert.Equal(t, "République française", got.Values["name"])
}

func TestStore_GetMissing(t *testing.T) {
	_, country := testModels()
	s := NewStore(nil, country)

	_, err := s.Get(context.Background(), "Country", 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Get(context.Background(), "Planet", 1)
	assert.ErrorIs(t, err, domain.ErrUnknownModel)
}

func TestStore_FindFiltersOrdersAndSlices(t *testing.T) {
	ctx := context.Background()
	_, country := testModels()
	s := NewStore(nil, country)
	seedCountries(t, s, country)

	q := domain.NewQuery("Country").
		Where(domain.Lookup{Field: "population", Op: domain.OpGte, Value: int64(50)}).
		Without(domain.Eq("name", "Germany")).
		OrderBy("-population")
	rows, err := s.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "France", rows[0].Values["name"])
	assert.Equal(t, "Italy", rows[1].Values["name"])

	n, err := s.Count(ctx, domain.NewQuery("Country").OrderBy("id").Slice(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err = s.Find(ctx, domain.NewQuery("Country").OrderBy("id").Slice(3, 10))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].ID)
}

func TestStore_FindRejectsUnknownField(t *testing.T) {
	_, country := testModels()
	s := NewStore(nil, country)

	_, err := s.Find(context.Background(), domain.NewQuery("Country").Where(domain.Eq("capital", "Paris")))

	var fe *domain.FilterError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Country", fe.Model)
}

func TestStore_DeletePublishesBeforeRemoval(t *testing.T) {
	ctx := context.Background()
	bus := NewSignalBus()
	_, country := testModels()
	s := NewStore(bus, country)
	rows := seedCountries(t, s, country)

	var existed bool
	bus.Subscribe(domain.SignalPreDelete, func(ctx context.Context, sig domain.Signal) error {
		_, err := s.Get(ctx, "Country", sig.Entity.ID)
		existed = err == nil
		return nil
	})

	require.NoError(t, s.Delete(ctx, rows[0]))
	assert.True(t, existed)

	_, err := s.Get(ctx, "Country", rows[0].ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_MembersPublishPreAndPost(t *testing.T) {
	ctx := context.Background()
	bus := NewSignalBus()
	rec := &recorder{}
	_, country := testModels()
	s := NewStore(bus, country)
	rows := seedCountries(t, s, country)
	rec.subscribe(bus)

	require.NoError(t, s.AddMembers(ctx, rows[0], "neighbours", rows[1].ID, rows[2].ID))
	members, err := s.Members(ctx, rows[0], "neighbours")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Germany", members[0].Values["name"])

	owners, err := s.Owners(ctx, country, "neighbours", rows[1].ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{rows[0].ID}, owners)

	require.NoError(t, s.RemoveMembers(ctx, rows[0], "neighbours", rows[1].ID))
	require.NoError(t, s.ClearMembers(ctx, rows[0], "neighbours"))
	members, err = s.Members(ctx, rows[0], "neighbours")
	require.NoError(t, err)
	assert.Empty(t, members)

	var actions []domain.M2MAction
	for _, sig := range rec.signals {
		actions = append(actions, sig.Action)
	}
	assert.Equal(t, []domain.M2MAction{
		domain.M2MPreAdd, domain.M2MPostAdd,
		domain.M2MPreRemove, domain.M2MPostRemove,
		domain.M2MPreClear, domain.M2MPostClear,
	}, actions)

	err = s.AddMembers(ctx, rows[0], "allies", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_WithTxCommitRunsHooks(t *testing.T) {
	ctx := context.Background()
	_, country := testModels()
	s := NewStore(nil, country)

	var ran []string
	err := s.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Save(ctx, domain.NewEntity(country, 0, map[string]any{"name": "France"})))
		s.OnCommit(ctx, func(context.Context) { ran = append(ran, "first") })
		s.OnCommit(ctx, func(context.Context) { ran = append(ran, "second") })
		assert.Empty(t, ran)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestStore_WithTxRollbackDropsHooksAndRows(t *testing.T) {
	ctx := context.Background()
	_, country := testModels()
	s := NewStore(nil, country)
	seedCountries(t, s, country)

	boom := errors.New("boom")
	ran := false
	err := s.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Save(ctx, domain.NewEntity(country, 0, map[string]any{"name": "Portugal"})))
		s.OnCommit(ctx, func(context.Context) { ran = true })
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
	n, err := s.Count(ctx, domain.NewQuery("Country"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStore_OnCommitOutsideTxRunsNow(t *testing.T) {
	s := NewStore(nil)
	ran := false
	s.OnCommit(context.Background(), func(context.Context) { ran = true })
	assert.True(t, ran)
}

func TestSignalBus_CancelIsIdempotent(t *testing.T) {
	bus := NewSignalBus()
	calls := 0
	cancel := bus.Subscribe(domain.SignalPostSave, func(context.Context, domain.Signal) error {
		calls++
		return nil
	})
	other := bus.Subscribe(domain.SignalPostSave, func(context.Context, domain.Signal) error {
		return errors.New("handler failed")
	})

	err := bus.Publish(context.Background(), domain.Signal{Kind: domain.SignalPostSave})
	assert.EqualError(t, err, "handler failed")
	assert.Equal(t, 1, calls)

	cancel()
	cancel()
	other()
	assert.Zero(t, bus.Subscribers(domain.SignalPostSave))
	require.NoError(t, bus.Publish(context.Background(), domain.Signal{Kind: domain.SignalPostSave}))
	assert.Equal(t, 1, calls)
}

func TestTaskQueue_ClaimIsFIFOAndLeased(t *testing.T) {
	ctx := context.Background()
	q := NewTaskQueue()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	first, err := q.Enqueue(ctx, domain.TaskIndexSave, []byte("1"))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, domain.TaskIndexDelete, []byte("2"))
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first, claimed[0].ID)
	assert.Equal(t, second, claimed[1].ID)

	// Leased tasks are invisible until the lease expires.
	claimed, err = q.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	now = now.Add(2 * time.Minute)
	claimed, err = q.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, first, claimed[0].ID)
}

func TestTaskQueue_FailAndComplete(t *testing.T) {
	ctx := context.Background()
	q := NewTaskQueue()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	id, _ := q.Enqueue(ctx, domain.TaskIndexSave, nil)
	_, _ = q.Claim(ctx, 1, time.Minute)

	require.NoError(t, q.Fail(ctx, id, errors.New("backend down"), now.Add(time.Second)))
	task := q.Tasks()[0]
	assert.Equal(t, domain.TaskPending, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, "backend down", task.LastError)

	require.NoError(t, q.Fail(ctx, id, errors.New("still down"), time.Time{}))
	assert.Equal(t, domain.TaskDead, q.Tasks()[0].Status)

	id2, _ := q.Enqueue(ctx, domain.TaskIndexSave, nil)
	require.NoError(t, q.Complete(ctx, id2))
	assert.Equal(t, domain.TaskDone, q.Tasks()[1].Status)

	assert.ErrorIs(t, q.Complete(ctx, "nope"), domain.ErrNotFound)
}
