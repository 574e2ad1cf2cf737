package domain

import "time"

type EventType string

const (
	// EventLifecycle carries a terminal status. Exactly one per job.
	EventLifecycle EventType = "lifecycle-update"
	// EventStep and EventHeartbeat are informational only.
	EventStep      EventType = "step"
	EventHeartbeat EventType = "heartbeat"
)

// ResultEvent is one message on the result channel from an executor.
type ResultEvent struct {
	Type   EventType `json:"type"`
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status,omitempty"`
	Step   StepKind  `json:"step,omitempty"`
	Videos []string  `json:"videos,omitempty"`
	Error  *JobError `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

func (e ResultEvent) Terminal() bool {
	return e.Type == EventLifecycle && e.Status.Terminal()
}

func DoneEvent(jobID string, videos []string) ResultEvent {
	return ResultEvent{
		Type:   EventLifecycle,
		JobID:  jobID,
		Status: JobStatusDone,
		Videos: videos,
		At:     time.Now().UTC(),
	}
}

func ErrorEvent(jobID string, err *JobError) ResultEvent {
	return ResultEvent{
		Type:   EventLifecycle,
		JobID:  jobID,
		Status: JobStatusError,
		Error:  err,
		At:     time.Now().UTC(),
	}
}

func StepEvent(jobID string, step StepKind) ResultEvent {
	return ResultEvent{
		Type:   EventStep,
		JobID:  jobID,
		Status: JobStatusRunning,
		Step:   step,
		At:     time.Now().UTC(),
	}
}

func HeartbeatEvent(jobID string) ResultEvent {
	return ResultEvent{
		Type:  EventHeartbeat,
		JobID: jobID,
		At:    time.Now().UTC(),
	}
}

// Notification is what the gateway pushes to a job owner. Step is only
// set on informational progress notifications.
type Notification struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
	Step   StepKind  `json:"step,omitempty"`
	Videos []string  `json:"videos,omitempty"`
	Error  *JobError `json:"error,omitempty"`
}

func NotificationFor(job *Job) Notification {
	return Notification{
		JobID:  job.ID,
		Status: job.Status,
		Videos: job.ResultPaths,
		Error:  job.Error,
	}
}

// NotificationFromEvent is used when the job record is unavailable, e.g.
// because persisting the terminal state failed.
func NotificationFromEvent(ev ResultEvent) Notification {
	return Notification{
		JobID:  ev.JobID,
		Status: ev.Status,
		Step:   ev.Step,
		Videos: ev.Videos,
		Error:  ev.Error,
	}
}
