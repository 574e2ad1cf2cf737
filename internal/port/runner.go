package port

import (
	"context"

	"github.com/bnema/videocut/internal/domain"
)

// JobExecutor runs one job to completion. emit receives informational
// events; the returned event is the single terminal one.
type JobExecutor interface {
	Run(ctx context.Context, job *domain.Job, emit func(domain.ResultEvent)) domain.ResultEvent
}

// JobRunner starts an executor for job behind an isolation boundary. The
// returned channel delivers events in order and is closed after exactly one
// terminal event.
type JobRunner interface {
	Start(ctx context.Context, job *domain.Job) (<-chan domain.ResultEvent, error)
}
