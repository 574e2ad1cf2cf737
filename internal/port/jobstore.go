package port

import (
	"context"

	"github.com/bnema/videocut/internal/domain"
)

// JobStore persists job records. Finish must refuse to overwrite a terminal
// record and return domain.ErrJobFinished instead.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error)
	ListUnfinished(ctx context.Context) ([]*domain.Job, error)
	MarkRunning(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, ev domain.ResultEvent) (*domain.Job, error)
}
