package services

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
	"github.com/custodia-labs/searchsync/internal/logger"
)

// SyncOptions controls one synchronization call.
type SyncOptions struct {
	// Parallel submits chunks from a bounded worker pool.
	Parallel bool

	// Refresh overrides the document's auto-refresh default.
	Refresh *bool

	// RaiseOnError aborts on the first rejected document.
	RaiseOnError bool

	// ChunkSize bounds the requests per bulk call. Serial submission
	// defaults to the configured bulk chunk size, parallel submission to
	// the document pagination.
	ChunkSize int

	// Threads bounds parallel submission.
	Threads int
}

// PostIndexEvent is emitted after a serial synchronization completes.
type PostIndexEvent struct {
	Document  *Document
	Actions   []domain.BulkRequest
	Responses []domain.BulkResponse
	Success   int
	Errors    []domain.BulkItemError
}

// PostIndexHook observes completed synchronizations.
type PostIndexHook func(ctx context.Context, ev PostIndexEvent)

// Entities adapts a slice to the sequence form accepted by Update.
func Entities(list ...*domain.Entity) iter.Seq2[*domain.Entity, error] {
	return func(yield func(*domain.Entity, error) bool) {
		for _, e := range list {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// UpdateEntity synchronizes a single entity.
func (d *Document) UpdateEntity(ctx context.Context, e *domain.Entity, action domain.BulkAction, opts SyncOptions) (int, []domain.BulkItemError, error) {
	return d.Update(ctx, Entities(e), action, opts)
}

// UpdateEntities synchronizes a list of entities.
func (d *Document) UpdateEntities(ctx context.Context, list []*domain.Entity, action domain.BulkAction, opts SyncOptions) (int, []domain.BulkItemError, error) {
	return d.Update(ctx, Entities(list...), action, opts)
}

// Update converts entities into bulk requests for the document's index and
// submits them. Rejected documents are returned as errors unless
// opts.RaiseOnError is set, in which case the first rejection aborts with
// *domain.BulkError.
func (d *Document) Update(
	ctx context.Context,
	entities iter.Seq2[*domain.Entity, error],
	action domain.BulkAction,
	opts SyncOptions,
) (int, []domain.BulkItemError, error) {
	if !action.IsValid() {
		return 0, nil, fmt.Errorf("%w: bulk action %q", domain.ErrInvalidInput, action)
	}
	if d.registry == nil {
		return 0, nil, &domain.ConfigurationError{Document: d.name, Reason: "not registered"}
	}

	refresh := d.autoRefresh
	if opts.Refresh != nil {
		refresh = *opts.Refresh
	}

	reqs := d.Actions(ctx, entities, action)
	if opts.Parallel {
		if opts.ChunkSize <= 0 {
			opts.ChunkSize = d.pagination
		}
		return d.registry.submitter.parallel(ctx, reqs, refresh, opts)
	}
	return d.registry.submitter.serial(ctx, d, reqs, refresh, opts)
}

// Actions builds the bulk requests for entities. Entities rejected by
// ShouldIndex are skipped unless the action is a delete.
func (d *Document) Actions(
	ctx context.Context,
	entities iter.Seq2[*domain.Entity, error],
	action domain.BulkAction,
) iter.Seq2[domain.BulkRequest, error] {
	return func(yield func(domain.BulkRequest, error) bool) {
		for e, err := range entities {
			if err != nil {
				yield(domain.BulkRequest{}, err)
				return
			}
			if action != domain.ActionDelete && !d.ShouldIndex(e) {
				continue
			}
			req := domain.BulkRequest{Action: action, Index: d.index.Name, ID: d.ComputeID(e)}
			if action != domain.ActionDelete {
				body, err := d.Prepare(ctx, e)
				if err != nil {
					yield(domain.BulkRequest{}, err)
					return
				}
				if action == domain.ActionUpdate {
					req.Doc = body
				} else {
					req.Source = body
				}
			}
			if !yield(req, nil) {
				return
			}
		}
	}
}

// bulkSubmitter sends chunks of requests to the backend.
type bulkSubmitter struct {
	backend   driven.SearchBackend
	limiter   *rate.Limiter
	chunkSize int
	threads   int

	mu    sync.RWMutex
	hooks []PostIndexHook
}

func newBulkSubmitter(backend driven.SearchBackend, bulk domain.BulkSettings) *bulkSubmitter {
	s := &bulkSubmitter{
		backend:   backend,
		chunkSize: bulk.ChunkSize,
		threads:   bulk.Threads,
	}
	if s.chunkSize <= 0 {
		s.chunkSize = domain.DefaultChunkSize
	}
	if s.threads <= 0 {
		s.threads = domain.DefaultThreads
	}
	if bulk.Rate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(bulk.Rate), 1)
	}
	return s
}

func (s *bulkSubmitter) addHook(h PostIndexHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

func (s *bulkSubmitter) observed() []PostIndexHook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks
}

// submit sends one chunk, waiting on the rate limiter first.
func (s *bulkSubmitter) submit(ctx context.Context, chunk []domain.BulkRequest, refresh bool) (domain.BulkResponse, error) {
	if s.backend == nil {
		return domain.BulkResponse{}, fmt.Errorf("%w: no search backend", domain.ErrInvalidInput)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return domain.BulkResponse{}, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}
	resp, err := s.backend.Bulk(ctx, chunk, refresh)
	if err != nil {
		return domain.BulkResponse{}, fmt.Errorf("submitting bulk request: %w", err)
	}
	return resp, nil
}

func tally(resp domain.BulkResponse) (int, []domain.BulkItemError) {
	ok := 0
	var failed []domain.BulkItemError
	for _, item := range resp.Items {
		if item.OK() {
			ok++
			continue
		}
		failed = append(failed, item.ItemError())
	}
	return ok, failed
}

// serial submits chunks one after the other in request order.
func (s *bulkSubmitter) serial(
	ctx context.Context,
	d *Document,
	reqs iter.Seq2[domain.BulkRequest, error],
	refresh bool,
	opts SyncOptions,
) (int, []domain.BulkItemError, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.chunkSize
	}
	hooks := s.observed()

	ev := PostIndexEvent{Document: d}
	batch := make([]domain.BulkRequest, 0, chunkSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		resp, err := s.submit(ctx, batch, refresh)
		if err != nil {
			return err
		}
		ok, failed := tally(resp)
		ev.Success += ok
		ev.Errors = append(ev.Errors, failed...)
		if len(hooks) > 0 {
			ev.Actions = append(ev.Actions, batch...)
			ev.Responses = append(ev.Responses, resp)
		}
		batch = make([]domain.BulkRequest, 0, chunkSize)
		if opts.RaiseOnError && len(failed) > 0 {
			return &domain.BulkError{Errors: failed}
		}
		return nil
	}

	for req, err := range reqs {
		if err != nil {
			return ev.Success, ev.Errors, err
		}
		batch = append(batch, req)
		if len(batch) >= chunkSize {
			if err := flush(); err != nil {
				return ev.Success, ev.Errors, err
			}
		}
	}
	if err := flush(); err != nil {
		return ev.Success, ev.Errors, err
	}

	for _, h := range hooks {
		h(ctx, ev)
	}
	return ev.Success, ev.Errors, nil
}

// parallel prepares chunks on the calling goroutine and submits them from
// a bounded pool. Every chunk is drained before it returns.
func (s *bulkSubmitter) parallel(
	ctx context.Context,
	reqs iter.Seq2[domain.BulkRequest, error],
	refresh bool,
	opts SyncOptions,
) (int, []domain.BulkItemError, error) {
	threads := opts.Threads
	if threads <= 0 {
		threads = s.threads
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	var (
		mu      sync.Mutex
		success int
		errs    []domain.BulkItemError
	)
	send := func(chunk []domain.BulkRequest) {
		g.Go(func() error {
			resp, err := s.submit(gctx, chunk, refresh)
			if err != nil {
				return err
			}
			ok, failed := tally(resp)
			mu.Lock()
			success += ok
			errs = append(errs, failed...)
			mu.Unlock()
			if opts.RaiseOnError && len(failed) > 0 {
				return &domain.BulkError{Errors: failed}
			}
			return nil
		})
	}

	var buildErr error
	batch := make([]domain.BulkRequest, 0, opts.ChunkSize)
	for req, err := range reqs {
		if err != nil {
			buildErr = err
			break
		}
		if gctx.Err() != nil {
			break
		}
		batch = append(batch, req)
		if len(batch) >= opts.ChunkSize {
			send(batch)
			batch = make([]domain.BulkRequest, 0, opts.ChunkSize)
		}
	}
	if buildErr == nil && len(batch) > 0 && gctx.Err() == nil {
		send(batch)
	}

	err := g.Wait()
	if buildErr != nil {
		err = buildErr
	}
	if err != nil {
		logger.Debug("parallel bulk stopped: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return success, errs, err
}
