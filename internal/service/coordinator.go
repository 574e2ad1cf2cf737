package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/infrastructure/logger"
	"github.com/bnema/videocut/internal/port"
	"github.com/google/uuid"
)

// SubmitRequest describes a new job. ID is optional; when empty a fresh
// uuid is assigned.
type SubmitRequest struct {
	ID        string
	OwnerID   string
	VideoName string
	InputURL  string
	InputPath string
	Settings  domain.JobSettings
}

// Coordinator owns job lifecycle state. It creates the record, starts an
// isolated executor and folds the single terminal event back into the
// store before notifying the owner.
type Coordinator struct {
	store    port.JobStore
	runner   port.JobRunner
	notifier port.Notifier

	// base outlives the submitting request; Shutdown cancels it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]string // job id -> owner id
}

func NewCoordinator(store port.JobStore, runner port.JobRunner, notifier port.Notifier) *Coordinator {
	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:    store,
		runner:   runner,
		notifier: notifier,
		base:     base,
		cancel:   cancel,
		active:   make(map[string]string),
	}
}

// Submit accepts a job and returns once its executor is started. The job's
// outcome arrives later through the store and the notifier.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	job := domain.NewJob(id, req.OwnerID, req.Settings)
	job.VideoName = req.VideoName
	job.InputURL = req.InputURL
	job.InputPath = req.InputPath

	if err := job.Validate(); err != nil {
		return nil, err
	}
	if err := c.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	c.track(job.ID, job.OwnerID)
	snapshot := *job
	events, err := c.runner.Start(c.base, &snapshot)
	if err != nil {
		logger.Error.Printf("job %s: failed to start executor: %v", job.ID, err)
		_ = c.OnResult(ctx, domain.ErrorEvent(job.ID, domain.NewLostError("executor failed to start: "+err.Error())))
		c.untrack(job.ID)
		return c.latest(ctx, job), nil
	}

	// No terminal event is recorded before watch starts below.
	if err := c.store.MarkRunning(ctx, job.ID); err != nil {
		logger.Error.Printf("job %s: failed to mark running: %v", job.ID, err)
	}
	if err := job.MarkRunning(time.Now().UTC()); err != nil {
		logger.Error.Printf("job %s: %v", job.ID, err)
	}

	logger.Info.Printf("job %s submitted by %s, plan %v", job.ID, logger.SanitizeForLog(job.OwnerID), domain.PlanFor(job).Kinds())

	c.wg.Add(1)
	go c.watch(job, events)

	return job, nil
}

func (c *Coordinator) watch(job *domain.Job, events <-chan domain.ResultEvent) {
	defer c.wg.Done()
	defer c.untrack(job.ID)

	// Terminal events must be recorded even while shutting down.
	ctx := context.WithoutCancel(c.base)
	finished := false
	for ev := range events {
		switch {
		case ev.Terminal():
			if finished {
				logger.Warn.Printf("job %s: ignoring extra terminal event", job.ID)
				continue
			}
			finished = true
			_ = c.OnResult(ctx, ev)
		case ev.Type == domain.EventStep:
			c.notifier.Notify(job.OwnerID, domain.NotificationFromEvent(ev))
		}
	}

	if !finished {
		_ = c.OnResult(ctx, domain.ErrorEvent(job.ID, domain.NewLostError("result channel closed without a terminal event")))
	}
}

// OnResult persists a terminal event and then notifies the owner. It never
// blocks on the notification. A second terminal event for the same job is
// rejected with domain.ErrJobFinished and not forwarded.
func (c *Coordinator) OnResult(ctx context.Context, ev domain.ResultEvent) error {
	if !ev.Terminal() {
		return fmt.Errorf("event for job %s is not terminal: %w", ev.JobID, domain.ErrInvalidTransition)
	}

	job, err := c.store.Finish(ctx, ev.JobID, ev)
	switch {
	case errors.Is(err, domain.ErrJobFinished):
		logger.Warn.Printf("job %s already finished, dropping %s event", ev.JobID, ev.Status)
		return err
	case err != nil:
		// The record stays stale; the owner still learns the outcome if
		// connected.
		logger.Error.Printf("job %s: failed to persist %s: %v", ev.JobID, ev.Status, err)
		if owner, ok := c.owner(ev.JobID); ok {
			c.notify(owner, domain.NotificationFromEvent(ev))
		}
		return err
	}

	logger.Info.Printf("job %s finished: %s", job.ID, job.Status)
	c.notify(job.OwnerID, domain.NotificationFor(job))
	return nil
}

func (c *Coordinator) notify(ownerID string, n domain.Notification) {
	if !c.notifier.Notify(ownerID, n) {
		logger.Debug.Printf("job %s: owner %s has no live connection", n.JobID, logger.SanitizeForLog(ownerID))
	}
}

func (c *Coordinator) Get(ctx context.Context, id string) (*domain.Job, error) {
	return c.store.Get(ctx, id)
}

func (c *Coordinator) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error) {
	return c.store.ListByOwner(ctx, ownerID)
}

// Recover finalizes jobs a previous process left queued or running. Their
// executors are gone, so they end as lost errors. It returns how many jobs
// were finalized.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	jobs, err := c.store.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinished jobs: %w", err)
	}

	recovered := 0
	for _, job := range jobs {
		if c.Active(job.ID) {
			continue
		}
		ev := domain.ErrorEvent(job.ID, domain.NewLostError("executor did not survive a restart"))
		if err := c.OnResult(ctx, ev); err != nil {
			continue
		}
		recovered++
	}
	if recovered > 0 {
		logger.Warn.Printf("finalized %d job(s) orphaned by a previous run", recovered)
	}
	return recovered, nil
}

// Active reports whether an executor is currently running for id.
func (c *Coordinator) Active(id string) bool {
	_, ok := c.owner(id)
	return ok
}

// Shutdown stops all executors and waits for their terminal events to be
// recorded, or for ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) track(id, ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[id] = ownerID
}

func (c *Coordinator) untrack(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
}

func (c *Coordinator) owner(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.active[id]
	return owner, ok
}

func (c *Coordinator) latest(ctx context.Context, job *domain.Job) *domain.Job {
	if stored, err := c.store.Get(ctx, job.ID); err == nil {
		return stored
	}
	return job
}
