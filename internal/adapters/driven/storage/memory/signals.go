package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

// Ensure SignalBus implements the interfaces.
var (
	_ driven.SignalBus       = (*SignalBus)(nil)
	_ driven.SignalPublisher = (*SignalBus)(nil)
)

type subscription struct {
	id      uint64
	handler driven.SignalHandler
}

// SignalBus is an in-process signal bus. Handlers run synchronously on
// the publishing goroutine.
type SignalBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[domain.SignalKind][]subscription
}

// NewSignalBus creates an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[domain.SignalKind][]subscription)}
}

// Subscribe registers h for kind.
func (b *SignalBus) Subscribe(kind domain.SignalKind, h driven.SignalHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[kind]
			for i, s := range subs {
				if s.id == id {
					b.subs[kind] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers sig to the handlers of its kind.
func (b *SignalBus) Publish(ctx context.Context, sig domain.Signal) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[sig.Kind]...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := s.handler(ctx, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribers returns the number of handlers for kind.
func (b *SignalBus) Subscribers(kind domain.SignalKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
