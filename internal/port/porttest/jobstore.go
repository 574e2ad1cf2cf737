// Package porttest holds behavioral tests every port implementation must
// pass.
package porttest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id, owner string, created time.Time) *domain.Job {
	rotate := 90
	job := domain.NewJob(id, owner, domain.JobSettings{
		Trims:       []domain.TrimRange{{Start: 0, End: 5}, {Start: 10, End: 15.5}},
		TrimMode:    domain.TrimModeSingle,
		Crop:        &domain.CropRect{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.5},
		RotateValue: &rotate,
		Modified:    domain.Modified{Mute: true, Rotate: true, Crop: true, Trim: true},
	})
	job.VideoName = "holiday.webm"
	job.InputPath = "/data/work/" + id + "_upload.webm"
	job.CreatedAt = created.UTC().Truncate(time.Second)
	return job
}

// JobStore runs the shared JobStore contract against stores made by
// newStore. Each call must return an empty store.
func JobStore(t *testing.T, newStore func(t *testing.T) port.JobStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create then get round trips", func(t *testing.T) {
		store := newStore(t)
		job := newJob("j1", "alice", base)
		require.NoError(t, store.Create(ctx, job))

		got, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, "alice", got.OwnerID)
		assert.Equal(t, "holiday.webm", got.VideoName)
		assert.Equal(t, job.InputPath, got.InputPath)
		assert.Equal(t, domain.JobStatusQueued, got.Status)
		assert.Equal(t, job.Settings, got.Settings)
		assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.FinishedAt)
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newJob("j1", "alice", base)))
		err := store.Create(ctx, newJob("j1", "bob", base))
		assert.ErrorIs(t, err, domain.ErrJobExists)
	})

	t.Run("unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, store.MarkRunning(ctx, "missing"), domain.ErrNotFound)
		_, err = store.Finish(ctx, "missing", domain.DoneEvent("missing", nil))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("lifecycle to done", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newJob("j1", "alice", base)))
		require.NoError(t, store.MarkRunning(ctx, "j1"))

		running, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusRunning, running.Status)
		assert.NotNil(t, running.StartedAt)

		done, err := store.Finish(ctx, "j1", domain.DoneEvent("j1", []string{"/public/j1_0.webm", "/public/j1_1.webm"}))
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusDone, done.Status)
		assert.Equal(t, "alice", done.OwnerID)

		got, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusDone, got.Status)
		assert.Equal(t, []string{"/public/j1_0.webm", "/public/j1_1.webm"}, got.ResultPaths)
		assert.Nil(t, got.Error)
		assert.NotNil(t, got.FinishedAt)
	})

	t.Run("lifecycle to error keeps the structured error", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newJob("j1", "alice", base)))
		require.NoError(t, store.MarkRunning(ctx, "j1"))

		jobErr := domain.NewOperationError(domain.StepTrim, errors.New("ffmpeg exited 1"))
		_, err := store.Finish(ctx, "j1", domain.ErrorEvent("j1", jobErr))
		require.NoError(t, err)

		got, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusError, got.Status)
		require.NotNil(t, got.Error)
		assert.Equal(t, *jobErr, *got.Error)
		assert.Empty(t, got.ResultPaths)
	})

	t.Run("queued job may finish directly", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newJob("j1", "alice", base)))
		_, err := store.Finish(ctx, "j1", domain.ErrorEvent("j1", domain.NewLostError("gone")))
		assert.NoError(t, err)
	})

	t.Run("terminal state is never overwritten", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newJob("j1", "alice", base)))
		_, err := store.Finish(ctx, "j1", domain.DoneEvent("j1", []string{"/public/j1_0.webm"}))
		require.NoError(t, err)

		_, err = store.Finish(ctx, "j1", domain.ErrorEvent("j1", domain.NewLostError("late")))
		assert.ErrorIs(t, err, domain.ErrJobFinished)
		assert.ErrorIs(t, store.MarkRunning(ctx, "j1"), domain.ErrJobFinished)

		got, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusDone, got.Status)
		assert.Equal(t, []string{"/public/j1_0.webm"}, got.ResultPaths)
	})

	t.Run("running twice is an invalid transition", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newJob("j1", "alice", base)))
		require.NoError(t, store.MarkRunning(ctx, "j1"))
		assert.ErrorIs(t, store.MarkRunning(ctx, "j1"), domain.ErrInvalidTransition)
	})

	t.Run("list by owner is newest first", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newJob("old", "alice", base)))
		require.NoError(t, store.Create(ctx, newJob("new", "alice", base.Add(time.Hour))))
		require.NoError(t, store.Create(ctx, newJob("other", "bob", base)))

		jobs, err := store.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, "new", jobs[0].ID)
		assert.Equal(t, "old", jobs[1].ID)

		none, err := store.ListByOwner(ctx, "carol")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("list unfinished", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newJob("queued", "alice", base)))
		require.NoError(t, store.Create(ctx, newJob("running", "alice", base)))
		require.NoError(t, store.Create(ctx, newJob("done", "alice", base)))
		require.NoError(t, store.MarkRunning(ctx, "running"))
		_, err := store.Finish(ctx, "done", domain.DoneEvent("done", nil))
		require.NoError(t, err)

		jobs, err := store.ListUnfinished(ctx)
		require.NoError(t, err)
		var ids []string
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}
		assert.ElementsMatch(t, []string{"queued", "running"}, ids)
	})

	t.Run("concurrent finish has exactly one winner", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newJob("j1", "alice", base)))
		require.NoError(t, store.MarkRunning(ctx, "j1"))

		var wg sync.WaitGroup
		results := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Finish(ctx, "j1", domain.DoneEvent("j1", []string{"/public/j1_0.webm"}))
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrJobFinished)
		}
		assert.Equal(t, 1, wins)
	})
}
