package runner

import (
	"context"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port"
)

// InProcessRunner runs executors as goroutines of the current process. A
// panicking executor is contained, but a crash or a runaway ffmpeg still
// affects the server, so this is meant for development and tests.
type InProcessRunner struct {
	executor port.JobExecutor
}

func NewInProcessRunner(executor port.JobExecutor) *InProcessRunner {
	return &InProcessRunner{executor: executor}
}

func (r *InProcessRunner) Start(ctx context.Context, job *domain.Job) (<-chan domain.ResultEvent, error) {
	own := *job
	events := make(chan domain.ResultEvent, eventBuffer)

	go func() {
		defer close(events)
		final := runGuarded(ctx, r.executor, &own, func(ev domain.ResultEvent) {
			events <- ev
		})
		events <- final
	}()

	return events, nil
}

var _ port.JobRunner = (*InProcessRunner)(nil)
