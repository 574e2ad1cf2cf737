package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/infrastructure/logger"
	"github.com/bnema/videocut/internal/port"
)

// ServeWorker is the child side of the isolation boundary. It reads one job
// from in, runs it and writes events to out: heartbeats every interval,
// step events as they happen, then exactly one terminal event.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, executor port.JobExecutor, interval time.Duration) error {
	var job domain.Job
	if err := json.NewDecoder(in).Decode(&job); err != nil {
		return fmt.Errorf("read job: %w", err)
	}

	enc := NewEncoder(out)
	if err := enc.Encode(domain.HeartbeatEvent(job.ID)); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		heartbeat(hbCtx, enc, job.ID, interval)
	}()

	final := runGuarded(ctx, executor, &job, func(ev domain.ResultEvent) {
		if err := enc.Encode(ev); err != nil {
			logger.Warn.Printf("job %s: failed to write %s event: %v", job.ID, ev.Type, err)
		}
	})

	// No heartbeat may follow the terminal event.
	stopHeartbeat()
	<-hbDone

	if err := enc.Encode(final); err != nil {
		return fmt.Errorf("write terminal event: %w", err)
	}
	return nil
}

func heartbeat(ctx context.Context, enc *Encoder, jobID string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := enc.Encode(domain.HeartbeatEvent(jobID)); err != nil {
				return
			}
		}
	}
}

// runGuarded runs the executor and turns a panic into a terminal error
// event. Anything non-terminal coming back is treated the same way.
func runGuarded(ctx context.Context, executor port.JobExecutor, job *domain.Job, emit func(domain.ResultEvent)) (final domain.ResultEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error.Printf("job %s: executor panicked: %v", job.ID, r)
			final = domain.ErrorEvent(job.ID, domain.NewLostError(fmt.Sprintf("executor panicked: %v", r)))
		}
	}()

	final = executor.Run(ctx, job, func(ev domain.ResultEvent) {
		if !ev.Terminal() {
			emit(ev)
		}
	})
	if !final.Terminal() {
		final = domain.ErrorEvent(job.ID, domain.NewLostError("executor returned without a terminal status"))
	}
	final.JobID = job.ID
	return final
}
