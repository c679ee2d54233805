package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
	"github.com/custodia-labs/searchsync/internal/core/ports/driving"
	"github.com/custodia-labs/searchsync/internal/logger"
)

// Ensure processors implement the interface.
var (
	_ driving.SignalProcessor = (*RealTimeProcessor)(nil)
	_ driving.SignalProcessor = (*DeferredProcessor)(nil)
)

// subscriptions attaches a processor to the three lifecycle events.
type subscriptions struct {
	bus     driven.SignalBus
	mu      sync.Mutex
	cancels []func()
}

func (s *subscriptions) setup(p driving.SignalProcessor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus == nil || len(s.cancels) > 0 {
		return
	}
	s.cancels = []func(){
		s.bus.Subscribe(domain.SignalPostSave, p.HandleSave),
		s.bus.Subscribe(domain.SignalPreDelete, p.HandlePreDelete),
		s.bus.Subscribe(domain.SignalM2MChanged, p.HandleM2MChanged),
	}
}

func (s *subscriptions) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
}

// routeM2M maps membership changes onto the save and delete paths. Adds,
// removals and clears are saves of the owner once applied; removals and
// clears go through the delete path before they are applied.
func routeM2M(ctx context.Context, p driving.SignalProcessor, sig domain.Signal) error {
	switch sig.Action {
	case domain.M2MPostAdd, domain.M2MPostRemove, domain.M2MPostClear:
		return p.HandleSave(ctx, sig)
	case domain.M2MPreRemove, domain.M2MPreClear:
		return p.HandlePreDelete(ctx, sig)
	default:
		return nil
	}
}

// RealTimeProcessor applies changes synchronously in the calling context.
type RealTimeProcessor struct {
	registry *DocumentRegistry
	subs     subscriptions
}

// NewRealTimeProcessor creates a processor attached to bus.
func NewRealTimeProcessor(registry *DocumentRegistry, bus driven.SignalBus) *RealTimeProcessor {
	p := &RealTimeProcessor{registry: registry, subs: subscriptions{bus: bus}}
	p.Setup()
	return p
}

// Setup subscribes to the lifecycle events.
func (p *RealTimeProcessor) Setup() { p.subs.setup(p) }

// Teardown unsubscribes from the lifecycle events.
func (p *RealTimeProcessor) Teardown() { p.subs.teardown() }

// HandleSave indexes the entity, then the documents embedding it.
func (p *RealTimeProcessor) HandleSave(ctx context.Context, sig domain.Signal) error {
	return saveEntity(ctx, p.registry, sig.Entity)
}

// HandlePreDelete removes the entity and re-derives the documents
// embedding it. Failures are logged, never returned.
func (p *RealTimeProcessor) HandlePreDelete(ctx context.Context, sig domain.Signal) error {
	if err := deleteEntity(ctx, p.registry, sig.Entity); err != nil {
		logger.Warn("removing %s %d from the index: %v", sig.Entity.Type(), sig.Entity.ID, err)
	}
	return nil
}

// HandleM2MChanged routes membership changes.
func (p *RealTimeProcessor) HandleM2MChanged(ctx context.Context, sig domain.Signal) error {
	return routeM2M(ctx, p, sig)
}

func saveEntity(ctx context.Context, registry *DocumentRegistry, e *domain.Entity) error {
	if e == nil {
		return nil
	}
	direct := registry.Update(ctx, e, domain.ActionIndex, SyncOptions{RaiseOnError: true})
	related := registry.UpdateRelated(ctx, e, domain.ActionIndex, SyncOptions{RaiseOnError: true})
	return errors.Join(direct, related)
}

// deleteEntity removes e and re-derives the documents embedding it.
// Rejected bulk items are tolerated; transport and lookup failures are
// returned once both steps have run.
func deleteEntity(ctx context.Context, registry *DocumentRegistry, e *domain.Entity) error {
	if e == nil {
		return nil
	}
	opts := SyncOptions{RaiseOnError: false}
	direct := registry.Delete(ctx, e, opts)
	related := registry.DeleteRelated(ctx, e, domain.ActionIndex, opts)
	return errors.Join(direct, related)
}

// DeferredProcessor hands changes to a task queue. Saves are enqueued once
// the enclosing transaction commits and carry only the entity's identity.
// Deletes carry the serialized entity since it will be gone by the time
// the task runs.
type DeferredProcessor struct {
	registry   *DocumentRegistry
	queue      driven.TaskQueue
	committer  driven.Committer
	serializer driven.EntitySerializer
	subs       subscriptions
}

// NewDeferredProcessor creates a processor attached to bus.
func NewDeferredProcessor(
	registry *DocumentRegistry,
	bus driven.SignalBus,
	committer driven.Committer,
	queue driven.TaskQueue,
	serializer driven.EntitySerializer,
) *DeferredProcessor {
	p := &DeferredProcessor{
		registry:   registry,
		queue:      queue,
		committer:  committer,
		serializer: serializer,
		subs:       subscriptions{bus: bus},
	}
	p.Setup()
	return p
}

// Setup subscribes to the lifecycle events.
func (p *DeferredProcessor) Setup() { p.subs.setup(p) }

// Teardown unsubscribes from the lifecycle events.
func (p *DeferredProcessor) Teardown() { p.subs.teardown() }

// HandleSave enqueues an index.save task after commit.
func (p *DeferredProcessor) HandleSave(ctx context.Context, sig domain.Signal) error {
	e := sig.Entity
	if !p.registry.IsRelevant(e) {
		return nil
	}
	payload, err := json.Marshal(domain.SaveTaskPayload{
		Model:     e.Model.Name,
		Namespace: e.Model.Namespace,
		ID:        e.ID,
	})
	if err != nil {
		return fmt.Errorf("encoding save task: %w", err)
	}

	p.committer.OnCommit(ctx, func(ctx context.Context) {
		if _, err := p.queue.Enqueue(ctx, domain.TaskIndexSave, payload); err != nil {
			logger.Error("enqueueing save of %s %d: %v", e.Type(), e.ID, err)
		}
	})
	return nil
}

// HandlePreDelete serializes the entity and enqueues an index.delete task.
func (p *DeferredProcessor) HandlePreDelete(ctx context.Context, sig domain.Signal) error {
	e := sig.Entity
	if !p.registry.IsRelevant(e) {
		return nil
	}
	payload, err := p.serializer.Serialize([]*domain.Entity{e})
	if err != nil {
		return fmt.Errorf("serializing %s %d: %w", e.Type(), e.ID, err)
	}
	if _, err := p.queue.Enqueue(ctx, domain.TaskIndexDelete, payload); err != nil {
		return fmt.Errorf("enqueueing delete of %s %d: %w", e.Type(), e.ID, err)
	}
	return nil
}

// HandleM2MChanged routes membership changes.
func (p *DeferredProcessor) HandleM2MChanged(ctx context.Context, sig domain.Signal) error {
	return routeM2M(ctx, p, sig)
}

// TaskHandlers executes the tasks enqueued by DeferredProcessor.
type TaskHandlers struct {
	registry   *DocumentRegistry
	serializer driven.EntitySerializer
}

// NewTaskHandlers creates handlers for index tasks.
func NewTaskHandlers(registry *DocumentRegistry, serializer driven.EntitySerializer) *TaskHandlers {
	return &TaskHandlers{registry: registry, serializer: serializer}
}

// Handlers returns the handlers keyed by task kind.
func (h *TaskHandlers) Handlers() map[string]TaskHandler {
	return map[string]TaskHandler{
		domain.TaskIndexSave:   h.HandleSaveTask,
		domain.TaskIndexDelete: h.HandleDeleteTask,
	}
}

// HandleSaveTask re-reads the saved entity and indexes it. An entity
// deleted in the meantime is skipped.
func (h *TaskHandlers) HandleSaveTask(ctx context.Context, task domain.Task) error {
	var payload domain.SaveTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decoding save task: %w", err)
	}

	store, err := h.registry.databases.Using(DefaultDatabase)
	if err != nil {
		return err
	}
	label := payload.Model
	if payload.Namespace != "" {
		label = payload.Namespace + "." + payload.Model
	}
	if _, ok := resolverFor(store)(label); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownModel, label)
	}
	e, err := store.Get(ctx, payload.Model, payload.ID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Debug("%s %d no longer exists, skipping", payload.Model, payload.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s %d: %w", payload.Model, payload.ID, err)
	}
	return saveEntity(ctx, h.registry, e)
}

// HandleDeleteTask rebuilds the deleted entities and removes them. A
// failure is returned so the worker retries the task; deleting an
// already removed document only yields a rejected item.
func (h *TaskHandlers) HandleDeleteTask(ctx context.Context, task domain.Task) error {
	store, err := h.registry.databases.Using(DefaultDatabase)
	if err != nil {
		return err
	}
	entities, err := h.serializer.Deserialize(task.Payload, resolverFor(store))
	if err != nil {
		return fmt.Errorf("deserializing delete task: %w", err)
	}
	var errs []error
	for _, e := range entities {
		errs = append(errs, deleteEntity(ctx, h.registry, e))
	}
	return errors.Join(errs...)
}

// resolverFor resolves model labels against a store's models.
func resolverFor(store driven.EntityStore) driven.ModelResolver {
	return func(label string) (*domain.Model, bool) {
		name := label
		for i := len(label) - 1; i >= 0; i-- {
			if label[i] == '.' {
				name = label[i+1:]
				break
			}
		}
		m, ok := store.Model(name)
		if !ok || m.Label() != label {
			return nil, false
		}
		return m, true
	}
}

// NewSignalProcessor builds the processor selected by kind.
func NewSignalProcessor(
	kind domain.ProcessorKind,
	registry *DocumentRegistry,
	bus driven.SignalBus,
	committer driven.Committer,
	queue driven.TaskQueue,
	serializer driven.EntitySerializer,
) (driving.SignalProcessor, error) {
	switch kind {
	case domain.ProcessorRealTime, "":
		return NewRealTimeProcessor(registry, bus), nil
	case domain.ProcessorDeferred:
		if queue == nil || committer == nil || serializer == nil {
			return nil, fmt.Errorf("%w: deferred processor needs a queue, committer and serializer", domain.ErrInvalidInput)
		}
		return NewDeferredProcessor(registry, bus, committer, queue, serializer), nil
	default:
		return nil, fmt.Errorf("%w: signal processor %q", domain.ErrUnsupportedType, kind)
	}
}
