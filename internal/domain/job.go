package domain

import (
	"net/url"
	"time"
)

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// CanTransition reports whether a job may move from s to next. Terminal
// states are final.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning || next.Terminal()
	case JobStatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// Job is one edit request. ID matches the owning video record.
type Job struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"ownerId"`
	VideoName   string      `json:"videoName,omitempty"`
	InputURL    string      `json:"inputUrl,omitempty"`
	InputPath   string      `json:"inputPath,omitempty"`
	Settings    JobSettings `json:"settings"`
	Status      JobStatus   `json:"status"`
	ResultPaths []string    `json:"resultPaths,omitempty"`
	Error       *JobError   `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	FinishedAt  *time.Time  `json:"finishedAt,omitempty"`
}

func NewJob(id, ownerID string, settings JobSettings) *Job {
	return &Job{
		ID:        id,
		OwnerID:   ownerID,
		Settings:  settings,
		Status:    JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
}

// IsRemote reports whether the input must be downloaded first. A local
// path takes precedence over a URL.
func (j *Job) IsRemote() bool {
	return j.InputPath == "" && j.InputURL != ""
}

const maxJobIDLength = 64

// ValidJobID reports whether id is safe to embed in file names. Working
// files are named "<id>_<stage>_<n>", so ids never contain '_'.
func ValidJobID(id string) bool {
	if id == "" || len(id) > maxJobIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

// Validate checks the job can be planned.
func (j *Job) Validate() error {
	if !ValidJobID(j.ID) {
		return ErrInvalidJobID
	}
	if j.InputPath == "" && j.InputURL == "" {
		return ErrNoInput
	}
	if j.IsRemote() {
		u, err := url.Parse(j.InputURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrNoInput
		}
	}
	return j.Settings.Validate()
}

func (j *Job) MarkRunning(at time.Time) error {
	if !j.Status.CanTransition(JobStatusRunning) {
		return transitionError(j.Status)
	}
	j.Status = JobStatusRunning
	j.StartedAt = &at
	return nil
}

func (j *Job) MarkDone(paths []string, at time.Time) error {
	if !j.Status.CanTransition(JobStatusDone) {
		return transitionError(j.Status)
	}
	j.Status = JobStatusDone
	j.ResultPaths = paths
	j.Error = nil
	j.FinishedAt = &at
	return nil
}

func (j *Job) MarkFailed(jobErr *JobError, at time.Time) error {
	if !j.Status.CanTransition(JobStatusError) {
		return transitionError(j.Status)
	}
	j.Status = JobStatusError
	j.ResultPaths = nil
	j.Error = jobErr
	j.FinishedAt = &at
	return nil
}

// Apply folds a terminal event into the job.
func (j *Job) Apply(ev ResultEvent, at time.Time) error {
	switch ev.Status {
	case JobStatusDone:
		return j.MarkDone(ev.Videos, at)
	case JobStatusError:
		jobErr := ev.Error
		if jobErr == nil {
			jobErr = NewLostError("executor reported an error without details")
		}
		return j.MarkFailed(jobErr, at)
	default:
		return ErrInvalidTransition
	}
}

func transitionError(from JobStatus) error {
	if from.Terminal() {
		return ErrJobFinished
	}
	return ErrInvalidTransition
}
