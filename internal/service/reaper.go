package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/videocut/internal/infrastructure/logger"
)

// ActivityChecker reports whether a job still has a live executor.
type ActivityChecker interface {
	Active(jobID string) bool
}

// Reaper removes working files left behind by failed or killed jobs. Only
// files named after a job ("<jobID>_...") are considered.
type Reaper struct {
	dir    string
	maxAge time.Duration
	jobs   ActivityChecker
	now    func() time.Time
}

func NewReaper(dir string, maxAge time.Duration, jobs ActivityChecker) *Reaper {
	return &Reaper{
		dir:    dir,
		maxAge: maxAge,
		jobs:   jobs,
		now:    time.Now,
	}
}

// Sweep deletes job files older than the max age whose job is not active.
// It returns the number of files removed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := r.now().Add(-r.maxAge)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}
		jobID, ok := jobIDFromName(entry.Name())
		if !ok {
			continue
		}
		if r.jobs != nil && r.jobs.Active(jobID) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn.Printf("reaper: failed to remove %s: %v", logger.SanitizeForLog(path), err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info.Printf("reaper: removed %d orphaned file(s) from %s", removed, r.dir)
	}
	return removed, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Error.Printf("reaper sweep failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func jobIDFromName(name string) (string, bool) {
	id, _, ok := strings.Cut(name, "_")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
