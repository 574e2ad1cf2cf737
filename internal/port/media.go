package port

import (
	"context"

	"github.com/bnema/videocut/internal/domain"
)

// Fetcher retrieves a remote source into the job's working area.
type Fetcher interface {
	Download(ctx context.Context, jobID, url string) (path string, err error)
}

// Editor performs the codec-level operations of a plan.
type Editor interface {
	Manipulate(ctx context.Context, jobID, path string, m domain.Manipulations) (string, error)
	Trim(ctx context.Context, jobID, path string, ranges []domain.TrimRange) ([]string, error)
	Concat(ctx context.Context, jobID string, paths []string) (string, error)
	Convert(ctx context.Context, jobID string, paths []string) ([]string, error)
}

// Publisher moves finished artifacts to durable storage and removes
// working files.
type Publisher interface {
	Publish(ctx context.Context, jobID string, paths []string) ([]string, error)
	Cleanup(path string) error
}

// MediaOperations is everything an executor needs to run a plan.
type MediaOperations interface {
	Fetcher
	Editor
	Publisher
}
