package driving

import (
	"context"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// ManagementService exposes index and document management to the CLI.
type ManagementService interface {
	// ListIndices returns every declared index with its backend state.
	ListIndices(ctx context.Context) ([]domain.IndexStatus, error)

	// ManageIndex creates, deletes, updates or rebuilds indices. report is
	// called once per processed index.
	ManageIndex(ctx context.Context, req domain.IndexRequest, report func(domain.IndexResult)) error

	// PlanDocuments validates a document request and counts its entities.
	PlanDocuments(ctx context.Context, req domain.DocumentRequest) (*domain.DocumentPlan, error)

	// ExecuteDocuments runs a plan, streaming entities to the backend.
	ExecuteDocuments(ctx context.Context, plan *domain.DocumentPlan, progress domain.ProgressSink) ([]domain.DocumentResult, error)

	// Versions lists the versions of an index and the active one.
	Versions(ctx context.Context, index string) (versions []string, active string, err error)

	// CreateVersion creates an inactive version of an index.
	CreateVersion(ctx context.Context, index, suffix string) (string, error)

	// ActivateVersion points the index alias at a version.
	ActivateVersion(ctx context.Context, index, version string) error

	// Reindex fills a new version of an index and activates it.
	Reindex(ctx context.Context, index string, progress domain.ProgressSink) (string, []domain.DocumentResult, error)
}
