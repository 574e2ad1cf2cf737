package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port"
	"github.com/bnema/videocut/internal/port/porttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	porttest.JobStore(t, func(t *testing.T) port.JobStore {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)
		return store
	})
}

func TestNewStore(t *testing.T) {
	t.Run("creates store successfully", func(t *testing.T) {
		tempDir := t.TempDir()
		store, err := NewStore(tempDir)

		assert.NoError(t, err)
		assert.NotNil(t, store)
		assert.NotNil(t, store.jobs)
	})

	t.Run("loads existing data from file", func(t *testing.T) {
		tempDir := t.TempDir()
		jobsPath := filepath.Join(tempDir, "jobs.json")

		jobs := []*domain.Job{
			{ID: "test1", OwnerID: "alice", VideoName: "video1.mp4", Status: domain.JobStatusDone},
			{ID: "test2", OwnerID: "bob", VideoName: "video2.mp4", Status: domain.JobStatusRunning},
		}
		data, _ := json.MarshalIndent(jobs, "", "  ")
		require.NoError(t, os.WriteFile(jobsPath, data, 0600))

		store, err := NewStore(tempDir)

		assert.NoError(t, err)
		assert.Len(t, store.jobs, 2)
		assert.Equal(t, "video1.mp4", store.jobs["test1"].VideoName)
		assert.Equal(t, domain.JobStatusRunning, store.jobs["test2"].Status)
	})

	t.Run("returns error for invalid JSON", func(t *testing.T) {
		tempDir := t.TempDir()
		jobsPath := filepath.Join(tempDir, "jobs.json")

		require.NoError(t, os.WriteFile(jobsPath, []byte("invalid json"), 0600))

		store, err := NewStore(tempDir)

		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("creates empty store if file doesn't exist", func(t *testing.T) {
		tempDir := t.TempDir()

		store, err := NewStore(tempDir)

		assert.NoError(t, err)
		assert.Empty(t, store.jobs)
		_, err = os.Stat(filepath.Join(tempDir, "jobs.json"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("handles empty JSON file", func(t *testing.T) {
		tempDir := t.TempDir()
		jobsPath := filepath.Join(tempDir, "jobs.json")

		require.NoError(t, os.WriteFile(jobsPath, []byte(""), 0600))

		store, err := NewStore(tempDir)

		assert.NoError(t, err)
		assert.Empty(t, store.jobs)
	})
}

func TestStorePersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("survives a reopen", func(t *testing.T) {
		tempDir := t.TempDir()
		store, err := NewStore(tempDir)
		require.NoError(t, err)

		job := domain.NewJob("j1", "alice", domain.JobSettings{})
		job.InputURL = "https://example.com/a.webm"
		require.NoError(t, store.Create(ctx, job))
		_, err = store.Finish(ctx, "j1", domain.DoneEvent("j1", []string{"/public/j1_0.webm"}))
		require.NoError(t, err)

		reopened, err := NewStore(tempDir)
		require.NoError(t, err)
		got, err := reopened.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusDone, got.Status)
		assert.Equal(t, []string{"/public/j1_0.webm"}, got.ResultPaths)
	})

	t.Run("creates temp file then renames for atomic write", func(t *testing.T) {
		tempDir := t.TempDir()
		store, _ := NewStore(tempDir)

		err := store.Create(ctx, domain.NewJob("j1", "alice", domain.JobSettings{}))
		assert.NoError(t, err)

		jobsPath := filepath.Join(tempDir, "jobs.json")
		_, err = os.Stat(jobsPath)
		assert.NoError(t, err)

		_, err = os.Stat(jobsPath + ".tmp")
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("failed write leaves the record unchanged", func(t *testing.T) {
		tempDir := t.TempDir()
		store, _ := NewStore(tempDir)
		require.NoError(t, store.Create(ctx, domain.NewJob("j1", "alice", domain.JobSettings{})))

		// A directory in place of the temp file makes the next save fail.
		require.NoError(t, os.Mkdir(filepath.Join(tempDir, "jobs.json.tmp"), 0755))

		_, err := store.Finish(ctx, "j1", domain.DoneEvent("j1", nil))
		assert.Error(t, err)

		got, err := store.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusQueued, got.Status)
	})
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store, _ := NewStore(t.TempDir())

	job := domain.NewJob("j1", "alice", domain.JobSettings{Trims: []domain.TrimRange{{Start: 0, End: 1}}})
	require.NoError(t, store.Create(ctx, job))
	job.OwnerID = "mallory"

	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)

	got.Settings.Trims[0].End = 99
	again, _ := store.Get(ctx, "j1")
	assert.Equal(t, float64(1), again.Settings.Trims[0].End)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("multiple goroutines can read simultaneously", func(t *testing.T) {
		store, _ := NewStore(t.TempDir())
		require.NoError(t, store.Create(ctx, domain.NewJob("j1", "alice", domain.JobSettings{})))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Get(ctx, "j1")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	})

	t.Run("concurrent creates are all kept", func(t *testing.T) {
		store, _ := NewStore(t.TempDir())

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = store.Create(ctx, domain.NewJob(fmt.Sprintf("j%d", i), "alice", domain.JobSettings{}))
			}(i)
		}
		wg.Wait()

		jobs, err := store.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, jobs, 10)
	})
}
