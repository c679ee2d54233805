package driving

import (
	"context"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// SignalProcessor turns relational lifecycle events into index updates.
type SignalProcessor interface {
	// HandleSave reacts to post_save.
	HandleSave(ctx context.Context, sig domain.Signal) error

	// HandlePreDelete reacts to pre_delete.
	HandlePreDelete(ctx context.Context, sig domain.Signal) error

	// HandleM2MChanged reacts to many-to-many membership changes.
	HandleM2MChanged(ctx context.Context, sig domain.Signal) error

	// Setup subscribes to the three lifecycle events.
	Setup()

	// Teardown unsubscribes from them. Calling it twice is harmless.
	Teardown()
}
