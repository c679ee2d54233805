package services

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// IndexingOptions selects and windows the entities of a document.
type IndexingOptions struct {
	Filter   []domain.Lookup
	Excludes [][]domain.Lookup

	// Count bounds the number of entities; 0 means all.
	Count    int
	Database string

	// BatchSize defaults to the document pagination.
	BatchSize int
	BatchType domain.BatchType

	// Query replaces the query built from Filter, Excludes and Count.
	Query *domain.Query

	// Action labels progress reports.
	Action   domain.CommandAction
	Progress domain.ProgressSink
}

// IndexingQueryset streams the document's entities in chunks. Each range
// over the returned sequence runs the queries afresh. Stopping the range
// early stops fetching. If rows disappear between chunks the walk ends
// at the first empty chunk and progress is approximate.
func (d *Document) IndexingQueryset(ctx context.Context, opts IndexingOptions) iter.Seq2[*domain.Entity, error] {
	return func(yield func(*domain.Entity, error) bool) {
		store, err := d.store(opts.Database)
		if err != nil {
			yield(nil, err)
			return
		}

		q := d.Queryset(opts.Filter, opts.Excludes, opts.Count)
		if opts.Query != nil {
			q = *opts.Query
		}
		total, err := store.Count(ctx, q)
		if err != nil {
			yield(nil, err)
			return
		}

		chunk := opts.BatchSize
		if chunk <= 0 {
			chunk = d.pagination
		}
		action := opts.Action
		if action == "" {
			action = domain.CommandIndex
		}

		start := time.Now()
		report := func(done int) {
			if opts.Progress != nil {
				opts.Progress(domain.Progress{
					Action:  action,
					Model:   d.model.Name,
					Done:    done,
					Total:   total,
					Elapsed: time.Since(start),
				})
			}
		}

		var w windower = &offsetWindower{query: q, chunk: chunk}
		if opts.BatchType == domain.BatchPKFilters && pkWindowable(q) {
			w = &pkWindower{query: q.Unsliced().OrderBy("id"), chunk: chunk, total: total}
		}

		done := 0
		report(done)
		for done < total {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			rows, err := store.Find(ctx, w.next(done))
			if err != nil {
				yield(nil, err)
				return
			}
			if len(rows) == 0 {
				break
			}
			for _, e := range rows {
				if !yield(e, nil) {
					return
				}
				w.seen(e)
				done++
			}
			report(done)
		}
	}
}

// windower produces the query of the next chunk.
type windower interface {
	next(done int) domain.Query
	seen(e *domain.Entity)
}

// offsetWindower pages with offsets over the ordered query.
type offsetWindower struct {
	query domain.Query
	chunk int
}

func (w *offsetWindower) next(done int) domain.Query {
	return w.query.Slice(done, w.chunk)
}

func (w *offsetWindower) seen(*domain.Entity) {}

// pkWindowable reports whether id ranges select the same rows as offsets.
// An offset or an ordering other than by id falls back to offset windows.
func pkWindowable(q domain.Query) bool {
	if q.Offset > 0 {
		return false
	}
	return len(q.Order) == 0 || slices.Equal(q.Order, []string{"id"})
}

// pkWindower pages with primary key ranges. It requires ordering by id.
type pkWindower struct {
	query domain.Query
	chunk int
	total int
	last  int64
	moved bool
}

func (w *pkWindower) next(done int) domain.Query {
	q := w.query
	if w.moved {
		q = q.Where(domain.Lookup{Field: "id", Op: domain.OpGt, Value: w.last})
	}
	return q.Slice(0, min(w.chunk, w.total-done))
}

func (w *pkWindower) seen(e *domain.Entity) {
	w.last = e.ID
	w.moved = true
}
