package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func localSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job1_upload.webm")
	require.NoError(t, os.WriteFile(path, []byte("source"), 0644))
	return path
}

func localJob(t *testing.T, settings domain.JobSettings) *domain.Job {
	job := domain.NewJob("job1", "owner1", settings)
	job.InputPath = localSource(t)
	return job
}

type stepRecorder struct {
	steps []domain.StepKind
}

func (r *stepRecorder) emit(ev domain.ResultEvent) {
	r.steps = append(r.steps, ev.Step)
}

func TestExecutor_MuteTrimSingle(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, time.Minute, time.Hour)
	ranges := []domain.TrimRange{{Start: 0, End: 5}, {Start: 10, End: 15}}
	job := localJob(t, domain.JobSettings{
		Modified: domain.Modified{Mute: true, Trim: true},
		Trims:    ranges,
		TrimMode: domain.TrimModeSingle,
	})

	ops.On("Manipulate", mock.Anything, "job1", job.InputPath, domain.Manipulations{DisableAudio: true}).
		Return("/w/job1_edit_0.mp4", nil).Once()
	ops.On("Trim", mock.Anything, "job1", "/w/job1_edit_0.mp4", ranges).
		Return([]string{"/w/job1_trim_0.mp4", "/w/job1_trim_1.mp4"}, nil).Once()
	ops.On("Concat", mock.Anything, "job1", []string{"/w/job1_trim_0.mp4", "/w/job1_trim_1.mp4"}).
		Return("/w/job1_concat_0.mp4", nil).Once()
	ops.On("Convert", mock.Anything, "job1", []string{"/w/job1_concat_0.mp4"}).
		Return([]string{"/w/job1_final_0.webm"}, nil).Once()
	ops.On("Publish", mock.Anything, "job1", []string{"/w/job1_final_0.webm"}).
		Return([]string{"/public/job1_0.webm"}, nil).Once()
	for _, p := range []string{"/w/job1_edit_0.mp4", "/w/job1_trim_0.mp4", "/w/job1_trim_1.mp4", "/w/job1_concat_0.mp4"} {
		ops.On("Cleanup", p).Return(nil).Once()
	}
	ops.On("Cleanup", job.InputPath).Return(nil).Once()

	rec := &stepRecorder{}
	ev := exec.Run(context.Background(), job, rec.emit)

	assert.True(t, ev.Terminal())
	assert.Equal(t, domain.JobStatusDone, ev.Status)
	assert.Equal(t, "job1", ev.JobID)
	assert.Equal(t, []string{"/public/job1_0.webm"}, ev.Videos)
	assert.Nil(t, ev.Error)
	assert.Equal(t, []domain.StepKind{
		domain.StepManipulate, domain.StepTrim, domain.StepConcat, domain.StepConvert, domain.StepPublish,
	}, rec.steps)
}

func TestExecutor_TrimMulti(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, time.Minute, time.Hour)
	ranges := []domain.TrimRange{{Start: 0, End: 5}, {Start: 10, End: 15}}
	job := localJob(t, domain.JobSettings{
		Modified: domain.Modified{Trim: true},
		Trims:    ranges,
		TrimMode: domain.TrimModeMulti,
	})

	trims := []string{"/w/job1_trim_0.mp4", "/w/job1_trim_1.mp4"}
	finals := []string{"/w/job1_final_0.webm", "/w/job1_final_1.webm"}
	ops.On("Trim", mock.Anything, "job1", job.InputPath, ranges).Return(trims, nil).Once()
	ops.On("Convert", mock.Anything, "job1", trims).Return(finals, nil).Once()
	ops.On("Publish", mock.Anything, "job1", finals).
		Return([]string{"/public/job1_0.webm", "/public/job1_1.webm"}, nil).Once()
	ops.On("Cleanup", trims[0]).Return(nil).Once()
	ops.On("Cleanup", trims[1]).Return(nil).Once()
	ops.On("Cleanup", job.InputPath).Return(nil).Once()

	ev := exec.Run(context.Background(), job, nil)

	assert.Equal(t, domain.JobStatusDone, ev.Status)
	assert.Len(t, ev.Videos, 2)
	ops.AssertNotCalled(t, "Concat", mock.Anything, mock.Anything, mock.Anything)
	ops.AssertNotCalled(t, "Manipulate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutor_RemoteDownload(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, time.Minute, time.Hour)
	job := domain.NewJob("job1", "owner1", domain.JobSettings{})
	job.InputURL = "https://example.com/clip.webm"
	downloaded := localSource(t)

	ops.On("Download", mock.Anything, "job1", job.InputURL).Return(downloaded, nil).Once()
	ops.On("Convert", mock.Anything, "job1", []string{downloaded}).Return([]string{"/w/final.webm"}, nil).Once()
	ops.On("Publish", mock.Anything, "job1", []string{"/w/final.webm"}).Return([]string{"/public/job1_0.webm"}, nil).Once()
	ops.On("Cleanup", downloaded).Return(nil).Once()

	ev := exec.Run(context.Background(), job, nil)
	assert.Equal(t, domain.JobStatusDone, ev.Status)
}

func TestExecutor_RemovesIntermediatesAfterPublish(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, time.Minute, time.Hour)
	job := localJob(t, domain.JobSettings{Modified: domain.Modified{Mute: true}})

	var removed []string
	published := false
	ops.On("Manipulate", mock.Anything, "job1", job.InputPath, mock.Anything).Return("/w/job1_edit_0.mp4", nil).Once()
	ops.On("Convert", mock.Anything, "job1", []string{"/w/job1_edit_0.mp4"}).Return([]string{"/w/job1_final_0.webm"}, nil).Once()
	ops.On("Publish", mock.Anything, "job1", []string{"/w/job1_final_0.webm"}).
		Run(func(mock.Arguments) { published = true }).
		Return([]string{"/public/job1_0.webm"}, nil).Once()
	ops.On("Cleanup", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			assert.True(t, published, "cleanup must wait for publish")
			removed = append(removed, args.String(0))
		}).
		Return(nil)

	ev := exec.Run(context.Background(), job, nil)

	assert.Equal(t, domain.JobStatusDone, ev.Status)
	assert.Equal(t, []string{"/w/job1_edit_0.mp4", job.InputPath}, removed)
}

func TestExecutor_CleanupFailureKeepsResult(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, time.Minute, time.Hour)
	job := localJob(t, domain.JobSettings{Modified: domain.Modified{Mute: true}})

	ops.On("Manipulate", mock.Anything, "job1", job.InputPath, mock.Anything).Return("/w/job1_edit_0.mp4", nil).Once()
	ops.On("Convert", mock.Anything, "job1", mock.Anything).Return([]string{"/w/job1_final_0.webm"}, nil).Once()
	ops.On("Publish", mock.Anything, "job1", mock.Anything).Return([]string{"/public/job1_0.webm"}, nil).Once()
	ops.On("Cleanup", "/w/job1_edit_0.mp4").Return(errors.New("permission denied")).Once()
	ops.On("Cleanup", job.InputPath).Return(nil).Once()

	ev := exec.Run(context.Background(), job, nil)

	assert.Equal(t, domain.JobStatusDone, ev.Status)
	assert.Equal(t, []string{"/public/job1_0.webm"}, ev.Videos)
}

func TestExecutor_DownloadFailureStopsPlan(t *testing.T) {
	tests := []struct {
		name  string
		setup func(ops *mocks.MediaOperationsMock)
	}{
		{
			name: "download error",
			setup: func(ops *mocks.MediaOperationsMock) {
				ops.On("Download", mock.Anything, "job1", mock.Anything).
					Return("", errors.New("404 Not Found")).Once()
			},
		},
		{
			name: "downloaded file missing",
			setup: func(ops *mocks.MediaOperationsMock) {
				ops.On("Download", mock.Anything, "job1", mock.Anything).
					Return("/nonexistent/job1_source.webm", nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := mocks.NewMediaOperationsMock(t)
			tt.setup(ops)
			exec := NewExecutor(ops, time.Minute, time.Hour)

			job := domain.NewJob("job1", "owner1", domain.JobSettings{
				Modified: domain.Modified{Mute: true, Trim: true},
				Trims:    []domain.TrimRange{{Start: 0, End: 1}},
				TrimMode: domain.TrimModeSingle,
			})
			job.InputURL = "https://example.com/clip.webm"

			ev := exec.Run(context.Background(), job, nil)

			assert.Equal(t, domain.JobStatusError, ev.Status)
			require.NotNil(t, ev.Error)
			assert.ErrorIs(t, ev.Error, domain.ErrDownload)
			for _, method := range []string{"Manipulate", "Trim", "Concat", "Convert", "Publish", "Cleanup"} {
				for _, call := range ops.Calls {
					assert.NotEqual(t, method, call.Method, "%s must not run after a failed download", method)
				}
			}
		})
	}
}

func TestExecutor_MissingLocalSource(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, time.Minute, time.Hour)
	job := domain.NewJob("job1", "owner1", domain.JobSettings{})
	job.InputPath = filepath.Join(t.TempDir(), "gone.webm")

	ev := exec.Run(context.Background(), job, nil)

	assert.Equal(t, domain.JobStatusError, ev.Status)
	assert.ErrorIs(t, ev.Error, domain.ErrDownload)
	assert.Empty(t, ops.Calls)
}

func TestExecutor_StepFailureIsTerminal(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, time.Minute, time.Hour)
	ranges := []domain.TrimRange{{Start: 0, End: 5}, {Start: 10, End: 15}}
	job := localJob(t, domain.JobSettings{
		Modified: domain.Modified{Trim: true},
		Trims:    ranges,
		TrimMode: domain.TrimModeSingle,
	})

	ops.On("Trim", mock.Anything, "job1", job.InputPath, ranges).
		Return(nil, errors.New("ffmpeg exited with status 1")).Once()

	ev := exec.Run(context.Background(), job, nil)

	assert.True(t, ev.Terminal())
	assert.Equal(t, domain.JobStatusError, ev.Status)
	require.NotNil(t, ev.Error)
	assert.Equal(t, domain.ErrorKindOperation, ev.Error.Kind)
	assert.Equal(t, domain.StepTrim, ev.Error.Step)
	assert.Contains(t, ev.Error.Message, "status 1")
	assert.FileExists(t, job.InputPath, "source is kept when the job fails")
}

func TestExecutor_TrimOutputMismatch(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, time.Minute, time.Hour)
	ranges := []domain.TrimRange{{Start: 0, End: 5}, {Start: 10, End: 15}}
	job := localJob(t, domain.JobSettings{
		Modified: domain.Modified{Trim: true},
		Trims:    ranges,
		TrimMode: domain.TrimModeMulti,
	})

	ops.On("Trim", mock.Anything, "job1", job.InputPath, ranges).Return([]string{"/w/only_one.mp4"}, nil).Once()

	ev := exec.Run(context.Background(), job, nil)
	assert.ErrorIs(t, ev.Error, domain.ErrOperation)
	assert.Equal(t, domain.StepTrim, ev.Error.Step)
}

func TestExecutor_PublishFailure(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, time.Minute, time.Hour)
	job := localJob(t, domain.JobSettings{})

	ops.On("Convert", mock.Anything, "job1", []string{job.InputPath}).Return([]string{"/w/final.webm"}, nil).Once()
	ops.On("Publish", mock.Anything, "job1", []string{"/w/final.webm"}).Return(nil, errors.New("no space left on device")).Once()

	ev := exec.Run(context.Background(), job, nil)

	assert.Equal(t, domain.JobStatusError, ev.Status)
	assert.ErrorIs(t, ev.Error, domain.ErrPublish)
	ops.AssertNotCalled(t, "Cleanup", mock.Anything)
}

func TestExecutor_StepTimeout(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, 20*time.Millisecond, time.Minute)
	job := localJob(t, domain.JobSettings{Modified: domain.Modified{Mute: true}})

	ops.On("Manipulate", mock.Anything, "job1", job.InputPath, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", errors.New("signal: killed")).Once()

	start := time.Now()
	ev := exec.Run(context.Background(), job, nil)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, domain.JobStatusError, ev.Status)
	assert.ErrorIs(t, ev.Error, domain.ErrTimeout)
	assert.Equal(t, domain.StepManipulate, ev.Error.Step)
}

func TestExecutor_InvalidSettings(t *testing.T) {
	ops := mocks.NewMediaOperationsMock(t)
	exec := NewExecutor(ops, time.Minute, time.Hour)
	job := localJob(t, domain.JobSettings{Modified: domain.Modified{Rotate: true}})

	ev := exec.Run(context.Background(), job, nil)

	assert.Equal(t, domain.JobStatusError, ev.Status)
	assert.ErrorIs(t, ev.Error, domain.ErrOperation)
	assert.Empty(t, ops.Calls)
}
