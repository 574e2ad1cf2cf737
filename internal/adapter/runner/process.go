package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/infrastructure/logger"
	"github.com/bnema/videocut/internal/port"
)

const eventBuffer = 16

// ProcessConfig describes how to launch the worker child and how long it
// may stay silent.
type ProcessConfig struct {
	// Path and Args start a process that runs ServeWorker, usually the
	// server binary itself with its hidden worker subcommand.
	Path string
	Args []string
	// Env is appended to the parent's environment.
	Env []string
	// HeartbeatTimeout is the longest gap between two events before the
	// child is considered hung and killed.
	HeartbeatTimeout time.Duration
	// Deadline bounds the whole child lifetime. Zero disables it.
	Deadline time.Duration
	// Stderr receives the child's logs. Defaults to os.Stderr.
	Stderr io.Writer
}

// ProcessRunner runs each job in its own OS process. The job goes in as
// JSON on stdin and events come back as JSON lines on stdout. Heartbeats
// are consumed here and never forwarded.
type ProcessRunner struct {
	cfg ProcessConfig
}

func NewProcessRunner(cfg ProcessConfig) *ProcessRunner {
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &ProcessRunner{cfg: cfg}
}

func (r *ProcessRunner) Start(ctx context.Context, job *domain.Job) (<-chan domain.ResultEvent, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}

	cmd := exec.Command(r.cfg.Path, r.cfg.Args...)
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = r.cfg.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	logger.Debug.Printf("job %s: worker pid %d started", job.ID, cmd.Process.Pid)

	s := &supervision{
		jobID:    job.ID,
		cmd:      cmd,
		lastSeen: time.Now(),
	}
	events := make(chan domain.ResultEvent, eventBuffer)
	go s.watch(ctx, r.cfg.HeartbeatTimeout, r.cfg.Deadline)
	go s.read(stdout, events)

	return events, nil
}

// killReason records why the parent killed a worker, which decides the
// error kind reported when no terminal event arrived.
type killReason int

const (
	notKilled killReason = iota
	killedSilent
	killedDeadline
	killedCancelled
	killedMalformed
)

type supervision struct {
	jobID string
	cmd   *exec.Cmd

	mu       sync.Mutex
	lastSeen time.Time
	reason   killReason
	done     bool
}

func (s *supervision) seen() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *supervision) kill(reason killReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.reason != notKilled {
		return
	}
	s.reason = reason
	_ = s.cmd.Process.Kill()
}

// watch kills the worker when it stops heartbeating, exceeds its deadline
// or the context is cancelled.
func (s *supervision) watch(ctx context.Context, silence, deadline time.Duration) {
	var deadlineC <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		deadlineC = timer.C
	}

	check := silence / 4
	if check <= 0 {
		check = time.Second
	}
	ticker := time.NewTicker(check)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.kill(killedCancelled)
			return
		case <-deadlineC:
			s.kill(killedDeadline)
			return
		case <-ticker.C:
			s.mu.Lock()
			finished := s.done
			quiet := time.Since(s.lastSeen)
			s.mu.Unlock()
			if finished {
				return
			}
			if silence > 0 && quiet > silence {
				logger.Warn.Printf("job %s: no heartbeat for %s, killing worker", s.jobID, quiet.Round(time.Millisecond))
				s.kill(killedSilent)
				return
			}
		}
	}
}

func (s *supervision) read(stdout io.Reader, events chan<- domain.ResultEvent) {
	defer close(events)

	var terminal *domain.ResultEvent
	dec := NewDecoder(stdout)
	for {
		ev, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && terminal == nil {
				logger.Error.Printf("job %s: unreadable worker output: %v", s.jobID, err)
				s.kill(killedMalformed)
			}
			// Drain so the child never blocks on a full pipe.
			_, _ = io.Copy(io.Discard, stdout)
			break
		}
		s.seen()

		switch {
		case terminal != nil:
			// Anything after the terminal event is ignored.
		case ev.Terminal():
			ev.JobID = s.jobID
			terminal = &ev
		case ev.Type == domain.EventHeartbeat:
		default:
			events <- ev
		}
	}

	waitErr := s.cmd.Wait()

	s.mu.Lock()
	s.done = true
	reason := s.reason
	s.mu.Unlock()

	if terminal != nil {
		events <- *terminal
		return
	}
	events <- domain.ErrorEvent(s.jobID, lostError(reason, waitErr))
}

func lostError(reason killReason, waitErr error) *domain.JobError {
	switch reason {
	case killedSilent:
		return domain.NewLostError("worker stopped sending heartbeats and was killed")
	case killedDeadline:
		return domain.NewTimeoutError("", errors.New("worker exceeded the job deadline and was killed"))
	case killedCancelled:
		return domain.NewLostError("worker was stopped before finishing")
	case killedMalformed:
		return domain.NewLostError("worker wrote malformed output and was killed")
	}
	if waitErr != nil {
		return domain.NewLostError(fmt.Sprintf("worker exited without a result: %v", waitErr))
	}
	return domain.NewLostError("worker exited without a result")
}

var _ port.JobRunner = (*ProcessRunner)(nil)
