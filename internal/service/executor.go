package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/infrastructure/logger"
	"github.com/bnema/videocut/internal/port"
)

// Executor runs a single job's plan, one step at a time. It holds no state
// between jobs and is safe to share.
type Executor struct {
	ops         port.MediaOperations
	stepTimeout time.Duration
	jobTimeout  time.Duration
}

func NewExecutor(ops port.MediaOperations, stepTimeout, jobTimeout time.Duration) *Executor {
	return &Executor{
		ops:         ops,
		stepTimeout: stepTimeout,
		jobTimeout:  jobTimeout,
	}
}

// workset is what flows between steps: the current artifact paths, the
// original source and the intermediate files earlier steps left behind.
// The source and the intermediates are removed once the job succeeds.
type workset struct {
	paths         []string
	source        string
	intermediates []string
}

// advance makes outs the input of the next step and remembers them for
// cleanup.
func (w *workset) advance(outs ...string) {
	w.paths = outs
	w.intermediates = append(w.intermediates, outs...)
}

func (w *workset) single(step domain.StepKind) (string, error) {
	if len(w.paths) != 1 {
		return "", fmt.Errorf("%s needs exactly one input, have %d", step, len(w.paths))
	}
	return w.paths[0], nil
}

// Run executes job and returns its terminal event. Informational step
// events go to emit, which may be nil. Run never panics on step failure and
// never returns a non-terminal event.
func (e *Executor) Run(ctx context.Context, job *domain.Job, emit func(domain.ResultEvent)) domain.ResultEvent {
	if emit == nil {
		emit = func(domain.ResultEvent) {}
	}
	log := logger.WithPrefix(logger.Info, "[job "+job.ID+"]")

	if e.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.jobTimeout)
		defer cancel()
	}

	if err := job.Validate(); err != nil {
		return domain.ErrorEvent(job.ID, domain.NewOperationError("", err))
	}

	ws := &workset{}
	if !job.IsRemote() {
		if _, err := os.Stat(job.InputPath); err != nil {
			return domain.ErrorEvent(job.ID, domain.NewDownloadError(fmt.Errorf("source missing: %w", err)))
		}
		ws.paths = []string{job.InputPath}
		ws.source = job.InputPath
	}

	plan := domain.PlanFor(job)
	log.Printf("running plan %v", plan.Kinds())

	for _, step := range plan.Steps {
		emit(domain.StepEvent(job.ID, step.Kind))
		started := time.Now()

		if err := e.runStep(ctx, job.ID, step, ws); err != nil {
			jobErr := classify(ctx, step.Kind, err)
			logger.Error.Printf("job %s: %v", job.ID, jobErr)
			return domain.ErrorEvent(job.ID, jobErr)
		}
		log.Printf("%s finished in %s -> %d file(s)", step.Kind, time.Since(started).Round(time.Millisecond), len(ws.paths))
	}

	emit(domain.StepEvent(job.ID, domain.StepPublish))
	published, err := e.publish(ctx, job.ID, ws.paths)
	if err != nil {
		jobErr := classify(ctx, domain.StepPublish, err)
		logger.Error.Printf("job %s: %v", job.ID, jobErr)
		return domain.ErrorEvent(job.ID, jobErr)
	}

	for _, p := range ws.intermediates {
		if err := e.ops.Cleanup(p); err != nil {
			logger.Warn.Printf("job %s: failed to remove %s: %v", job.ID, filepath.Base(p), err)
		}
	}
	if err := e.ops.Cleanup(ws.source); err != nil {
		logger.Warn.Printf("job %s: failed to remove source: %v", job.ID, err)
	}

	log.Printf("done, published %d file(s)", len(published))
	return domain.DoneEvent(job.ID, published)
}

func (e *Executor) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.stepTimeout > 0 {
		return context.WithTimeout(ctx, e.stepTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Executor) runStep(ctx context.Context, jobID string, step domain.Step, ws *workset) error {
	ctx, cancel := e.stepContext(ctx)
	defer cancel()

	return deadlineAware(ctx, e.dispatch(ctx, jobID, step, ws))
}

func (e *Executor) dispatch(ctx context.Context, jobID string, step domain.Step, ws *workset) error {
	switch step.Kind {
	case domain.StepDownload:
		path, err := e.ops.Download(ctx, jobID, step.Source)
		if err != nil {
			return domain.NewDownloadError(err)
		}
		if _, err := os.Stat(path); err != nil {
			return domain.NewDownloadError(fmt.Errorf("downloaded file missing: %w", err))
		}
		ws.paths = []string{path}
		ws.source = path

	case domain.StepManipulate:
		in, err := ws.single(step.Kind)
		if err != nil {
			return err
		}
		if step.Manipulations == nil {
			return errors.New("manipulate step without manipulations")
		}
		out, err := e.ops.Manipulate(ctx, jobID, in, *step.Manipulations)
		if err != nil {
			return err
		}
		ws.advance(out)

	case domain.StepTrim:
		in, err := ws.single(step.Kind)
		if err != nil {
			return err
		}
		outs, err := e.ops.Trim(ctx, jobID, in, step.Trims)
		if err != nil {
			return err
		}
		if len(outs) != len(step.Trims) {
			return fmt.Errorf("trim produced %d outputs for %d ranges", len(outs), len(step.Trims))
		}
		ws.advance(outs...)

	case domain.StepConcat:
		out, err := e.ops.Concat(ctx, jobID, ws.paths)
		if err != nil {
			return err
		}
		ws.advance(out)

	case domain.StepConvert:
		outs, err := e.ops.Convert(ctx, jobID, ws.paths)
		if err != nil {
			return err
		}
		if len(outs) != len(ws.paths) {
			return fmt.Errorf("convert produced %d outputs for %d inputs", len(outs), len(ws.paths))
		}
		ws.paths = outs

	default:
		return fmt.Errorf("unknown step %q", step.Kind)
	}
	return nil
}

func (e *Executor) publish(ctx context.Context, jobID string, paths []string) ([]string, error) {
	ctx, cancel := e.stepContext(ctx)
	defer cancel()

	published, err := e.ops.Publish(ctx, jobID, paths)
	if err != nil {
		if err := deadlineAware(ctx, err); errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, domain.NewPublishError(err)
	}
	return published, nil
}

// deadlineAware makes an expired deadline visible to errors.Is even when
// the operation flattened its cause into a message.
func deadlineAware(ctx context.Context, err error) error {
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

// classify maps a step failure onto the job error taxonomy. Deadline
// expiry wins over whatever the operation reported.
func classify(ctx context.Context, step domain.StepKind, err error) *domain.JobError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewTimeoutError(step, err)
	}
	return domain.AsJobError(step, err)
}

var _ port.JobExecutor = (*Executor)(nil)
