package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executorFunc adapts a function to port.JobExecutor.
type executorFunc func(ctx context.Context, job *domain.Job, emit func(domain.ResultEvent)) domain.ResultEvent

func (f executorFunc) Run(ctx context.Context, job *domain.Job, emit func(domain.ResultEvent)) domain.ResultEvent {
	return f(ctx, job, emit)
}

var succeed = executorFunc(func(_ context.Context, job *domain.Job, emit func(domain.ResultEvent)) domain.ResultEvent {
	emit(domain.StepEvent(job.ID, domain.StepTrim))
	emit(domain.StepEvent(job.ID, domain.StepConvert))
	return domain.DoneEvent(job.ID, []string{"/public/" + job.ID + "_0.webm"})
})

func collect(t *testing.T, events <-chan domain.ResultEvent) []domain.ResultEvent {
	t.Helper()
	var out []domain.ResultEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("result channel was not closed in time")
		}
	}
}

func terminals(events []domain.ResultEvent) []domain.ResultEvent {
	var out []domain.ResultEvent
	for _, ev := range events {
		if ev.Terminal() {
			out = append(out, ev)
		}
	}
	return out
}

func testJob(id string) *domain.Job {
	job := domain.NewJob(id, "alice", domain.JobSettings{})
	job.InputPath = "/data/work/" + id + "_upload.webm"
	return job
}

func TestChannel_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(domain.StepEvent("j1", domain.StepTrim)))
	require.NoError(t, enc.Encode(domain.ErrorEvent("j1", domain.NewOperationError(domain.StepTrim, fmt.Errorf("exit 1")))))

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	dec := NewDecoder(&buf)
	first, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, domain.EventStep, first.Type)
	assert.Equal(t, domain.StepTrim, first.Step)

	second, err := dec.Decode()
	require.NoError(t, err)
	assert.True(t, second.Terminal())
	assert.ErrorIs(t, second.Error, domain.ErrOperation)

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServeWorker(t *testing.T) {
	payload, err := json.Marshal(testJob("j1"))
	require.NoError(t, err)

	var out bytes.Buffer
	err = ServeWorker(context.Background(), bytes.NewReader(payload), &out, succeed, time.Hour)
	require.NoError(t, err)

	dec := NewDecoder(&out)
	var kinds []domain.EventType
	var last domain.ResultEvent
	for {
		ev, err := dec.Decode()
		if err != nil {
			break
		}
		kinds = append(kinds, ev.Type)
		last = ev
	}

	assert.Equal(t, domain.EventHeartbeat, kinds[0], "a heartbeat is written right away")
	assert.Equal(t, domain.EventLifecycle, kinds[len(kinds)-1])
	assert.Equal(t, domain.JobStatusDone, last.Status)
	assert.Equal(t, []string{"/public/j1_0.webm"}, last.Videos)
}

func TestServeWorker_BadInput(t *testing.T) {
	err := ServeWorker(context.Background(), strings.NewReader("not json"), io.Discard, succeed, time.Second)
	assert.Error(t, err)
}

func TestRunGuarded(t *testing.T) {
	t.Run("panic becomes a lost error", func(t *testing.T) {
		panicky := executorFunc(func(context.Context, *domain.Job, func(domain.ResultEvent)) domain.ResultEvent {
			panic("nil map")
		})
		ev := runGuarded(context.Background(), panicky, testJob("j1"), func(domain.ResultEvent) {})
		assert.True(t, ev.Terminal())
		assert.ErrorIs(t, ev.Error, domain.ErrLost)
		assert.Contains(t, ev.Error.Message, "nil map")
	})

	t.Run("non terminal result is replaced", func(t *testing.T) {
		confused := executorFunc(func(_ context.Context, job *domain.Job, _ func(domain.ResultEvent)) domain.ResultEvent {
			return domain.StepEvent(job.ID, domain.StepTrim)
		})
		ev := runGuarded(context.Background(), confused, testJob("j1"), func(domain.ResultEvent) {})
		assert.ErrorIs(t, ev.Error, domain.ErrLost)
	})

	t.Run("terminal events are not emitted early", func(t *testing.T) {
		early := executorFunc(func(_ context.Context, job *domain.Job, emit func(domain.ResultEvent)) domain.ResultEvent {
			emit(domain.DoneEvent(job.ID, nil))
			return domain.DoneEvent(job.ID, []string{"a"})
		})
		var emitted []domain.ResultEvent
		ev := runGuarded(context.Background(), early, testJob("j1"), func(e domain.ResultEvent) { emitted = append(emitted, e) })
		assert.Empty(t, emitted)
		assert.Equal(t, []string{"a"}, ev.Videos)
	})
}

func TestInProcessRunner(t *testing.T) {
	r := NewInProcessRunner(succeed)
	events, err := r.Start(context.Background(), testJob("j1"))
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, domain.StepTrim, got[0].Step)
	assert.Equal(t, domain.StepConvert, got[1].Step)
	require.Len(t, terminals(got), 1)
	assert.Equal(t, domain.JobStatusDone, got[2].Status)
}

func TestInProcessRunner_Panic(t *testing.T) {
	r := NewInProcessRunner(executorFunc(func(context.Context, *domain.Job, func(domain.ResultEvent)) domain.ResultEvent {
		panic("boom")
	}))
	events, err := r.Start(context.Background(), testJob("j1"))
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, domain.JobStatusError, got[0].Status)
}

// TestHelperProcess is not a real test. It is the worker child started by
// the ProcessRunner tests below.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv("VIDEOCUT_HELPER_MODE")
	if mode == "" {
		return
	}
	logger.SetOutput(os.Stderr)
	defer os.Exit(0)

	switch mode {
	case "succeed":
		_ = ServeWorker(context.Background(), os.Stdin, os.Stdout, succeed, 50*time.Millisecond)
	case "fail":
		failing := executorFunc(func(_ context.Context, job *domain.Job, _ func(domain.ResultEvent)) domain.ResultEvent {
			return domain.ErrorEvent(job.ID, domain.NewDownloadError(fmt.Errorf("404 Not Found")))
		})
		_ = ServeWorker(context.Background(), os.Stdin, os.Stdout, failing, 50*time.Millisecond)
	case "crash":
		_, _ = io.Copy(io.Discard, os.Stdin)
		fmt.Fprintln(os.Stdout, `{"type":"heartbeat","jobId":"x"}`)
		os.Exit(3)
	case "hang":
		_, _ = io.Copy(io.Discard, os.Stdin)
		fmt.Fprintln(os.Stdout, `{"type":"heartbeat","jobId":"x"}`)
		time.Sleep(time.Minute)
	case "garbage":
		_, _ = io.Copy(io.Discard, os.Stdin)
		fmt.Fprintln(os.Stdout, "ffmpeg version 6.1 Copyright (c)")
		time.Sleep(time.Minute)
	case "chatty":
		// Heartbeats keep coming but the job never ends.
		_ = ServeWorker(context.Background(), os.Stdin, os.Stdout, executorFunc(
			func(ctx context.Context, job *domain.Job, _ func(domain.ResultEvent)) domain.ResultEvent {
				time.Sleep(time.Minute)
				return domain.DoneEvent(job.ID, nil)
			}), 20*time.Millisecond)
	}
}

func helperRunner(mode string, silence, deadline time.Duration) *ProcessRunner {
	return NewProcessRunner(ProcessConfig{
		Path:             os.Args[0],
		Args:             []string{"-test.run=^TestHelperProcess$"},
		Env:              []string{"VIDEOCUT_HELPER_MODE=" + mode},
		HeartbeatTimeout: silence,
		Deadline:         deadline,
		Stderr:           io.Discard,
	})
}

func TestProcessRunner(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		silence  time.Duration
		deadline time.Duration
		check    func(t *testing.T, final domain.ResultEvent, all []domain.ResultEvent)
	}{
		{
			name:    "success forwards steps and the result",
			mode:    "succeed",
			silence: 5 * time.Second,
			check: func(t *testing.T, final domain.ResultEvent, all []domain.ResultEvent) {
				assert.Equal(t, domain.JobStatusDone, final.Status)
				assert.Equal(t, []string{"/public/job1_0.webm"}, final.Videos)
				for _, ev := range all {
					assert.NotEqual(t, domain.EventHeartbeat, ev.Type, "heartbeats stay inside the runner")
				}
				assert.Len(t, all, 3)
			},
		},
		{
			name:    "structured error crosses the boundary",
			mode:    "fail",
			silence: 5 * time.Second,
			check: func(t *testing.T, final domain.ResultEvent, _ []domain.ResultEvent) {
				assert.Equal(t, domain.JobStatusError, final.Status)
				assert.ErrorIs(t, final.Error, domain.ErrDownload)
				assert.Equal(t, "404 Not Found", final.Error.Message)
			},
		},
		{
			name:    "crash without result is lost",
			mode:    "crash",
			silence: 5 * time.Second,
			check: func(t *testing.T, final domain.ResultEvent, _ []domain.ResultEvent) {
				assert.ErrorIs(t, final.Error, domain.ErrLost)
				assert.Contains(t, final.Error.Message, "exit status 3")
			},
		},
		{
			name:    "silent worker is killed",
			mode:    "hang",
			silence: 300 * time.Millisecond,
			check: func(t *testing.T, final domain.ResultEvent, _ []domain.ResultEvent) {
				assert.ErrorIs(t, final.Error, domain.ErrLost)
				assert.Contains(t, final.Error.Message, "heartbeats")
			},
		},
		{
			name:    "malformed output kills the worker",
			mode:    "garbage",
			silence: 5 * time.Second,
			check: func(t *testing.T, final domain.ResultEvent, _ []domain.ResultEvent) {
				assert.ErrorIs(t, final.Error, domain.ErrLost)
				assert.Contains(t, final.Error.Message, "malformed")
			},
		},
		{
			name:     "deadline beats heartbeats",
			mode:     "chatty",
			silence:  5 * time.Second,
			deadline: 400 * time.Millisecond,
			check: func(t *testing.T, final domain.ResultEvent, _ []domain.ResultEvent) {
				assert.ErrorIs(t, final.Error, domain.ErrTimeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := helperRunner(tt.mode, tt.silence, tt.deadline)
			events, err := r.Start(context.Background(), testJob("job1"))
			require.NoError(t, err)

			all := collect(t, events)
			term := terminals(all)
			require.Len(t, term, 1, "exactly one terminal event")
			assert.Equal(t, term[0], all[len(all)-1], "terminal event comes last")
			assert.Equal(t, "job1", term[0].JobID)
			tt.check(t, term[0], all)
		})
	}
}

func TestProcessRunner_Cancel(t *testing.T) {
	r := helperRunner("chatty", 5*time.Second, 0)
	ctx, cancel := context.WithCancel(context.Background())
	events, err := r.Start(ctx, testJob("job1"))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	cancel()

	all := collect(t, events)
	require.Len(t, terminals(all), 1)
	assert.ErrorIs(t, all[len(all)-1].Error, domain.ErrLost)
}

func TestProcessRunner_StartFailure(t *testing.T) {
	r := NewProcessRunner(ProcessConfig{Path: "/nonexistent/videocut"})
	_, err := r.Start(context.Background(), testJob("job1"))
	assert.Error(t, err)
}
