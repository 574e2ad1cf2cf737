package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrJobExists         = errors.New("job already exists")
	ErrJobFinished       = errors.New("job already reached a terminal state")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrInvalidSettings   = errors.New("invalid job settings")
	ErrNoInput           = errors.New("job has no input")
	ErrInvalidJobID      = errors.New("invalid job id")
)

// ErrorKind classifies why a job ended in error.
type ErrorKind string

const (
	ErrorKindDownload  ErrorKind = "download"
	ErrorKindOperation ErrorKind = "operation"
	ErrorKindPublish   ErrorKind = "publish"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindLost      ErrorKind = "lost"
)

// Kind sentinels, usable with errors.Is against a *JobError.
var (
	ErrDownload  = &JobError{Kind: ErrorKindDownload}
	ErrOperation = &JobError{Kind: ErrorKindOperation}
	ErrPublish   = &JobError{Kind: ErrorKindPublish}
	ErrTimeout   = &JobError{Kind: ErrorKindTimeout}
	ErrLost      = &JobError{Kind: ErrorKindLost}
)

// JobError is the terminal error of a job. It only carries plain fields so
// it survives the trip across the executor boundary as JSON.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Step    StepKind  `json:"step,omitempty"`
	Message string    `json:"message"`
}

func (e *JobError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s error in %s step: %s", e.Kind, e.Step, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Is matches on Kind so that errors.Is(err, ErrDownload) works for any
// download failure regardless of message.
func (e *JobError) Is(target error) bool {
	t, ok := target.(*JobError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func NewDownloadError(cause error) *JobError {
	return &JobError{Kind: ErrorKindDownload, Step: StepDownload, Message: causeMessage(cause)}
}

func NewOperationError(step StepKind, cause error) *JobError {
	return &JobError{Kind: ErrorKindOperation, Step: step, Message: causeMessage(cause)}
}

func NewPublishError(cause error) *JobError {
	return &JobError{Kind: ErrorKindPublish, Step: StepPublish, Message: causeMessage(cause)}
}

func NewTimeoutError(step StepKind, cause error) *JobError {
	return &JobError{Kind: ErrorKindTimeout, Step: step, Message: causeMessage(cause)}
}

func NewLostError(reason string) *JobError {
	return &JobError{Kind: ErrorKindLost, Message: reason}
}

// AsJobError returns err as a *JobError, wrapping foreign errors as an
// operation failure of the given step.
func AsJobError(step StepKind, err error) *JobError {
	var je *JobError
	if errors.As(err, &je) {
		return je
	}
	return NewOperationError(step, err)
}

func causeMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
