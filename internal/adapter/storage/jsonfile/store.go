package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port"
)

// Store keeps job records in a single JSON file, rewritten atomically on
// every change. Callers always get copies.
type Store struct {
	mu   sync.RWMutex
	path string
	jobs map[string]*domain.Job
}

func NewStore(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "jobs.json")

	store := &Store{
		path: path,
		jobs: make(map[string]*domain.Job),
	}

	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return store, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return nil
	}

	var jobList []*domain.Job
	if err := json.Unmarshal(data, &jobList); err != nil {
		return err
	}

	for _, j := range jobList {
		s.jobs[j.ID] = j
	}

	return nil
}

func (s *Store) save() error {
	tmpPath := s.path + ".tmp"

	jobList := make([]*domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobList = append(jobList, j)
	}
	sortNewestFirst(jobList)

	data, err := json.MarshalIndent(jobList, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}

func (s *Store) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return domain.ErrJobExists
	}
	s.jobs[job.ID] = clone(job)
	if err := s.save(); err != nil {
		delete(s.jobs, job.ID)
		return err
	}
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return clone(j), nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := []*domain.Job{}
	for _, j := range s.jobs {
		if j.OwnerID == ownerID {
			jobs = append(jobs, clone(j))
		}
	}
	sortNewestFirst(jobs)
	return jobs, nil
}

func (s *Store) ListUnfinished(_ context.Context) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*domain.Job
	for _, j := range s.jobs {
		if !j.Status.Terminal() {
			jobs = append(jobs, clone(j))
		}
	}
	sortNewestFirst(jobs)
	return jobs, nil
}

func (s *Store) MarkRunning(_ context.Context, id string) error {
	return s.update(id, func(j *domain.Job) error {
		return j.MarkRunning(time.Now().UTC())
	})
}

func (s *Store) Finish(_ context.Context, id string, ev domain.ResultEvent) (*domain.Job, error) {
	var finished *domain.Job
	err := s.update(id, func(j *domain.Job) error {
		if err := j.Apply(ev, time.Now().UTC()); err != nil {
			return err
		}
		finished = clone(j)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finished, nil
}

// update applies fn to a copy of the record and only swaps it in once the
// file has been written.
func (s *Store) update(id string, fn func(*domain.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}

	next := clone(current)
	if err := fn(next); err != nil {
		return err
	}

	s.jobs[id] = next
	if err := s.save(); err != nil {
		s.jobs[id] = current
		return err
	}
	return nil
}

func clone(j *domain.Job) *domain.Job {
	c := *j
	c.ResultPaths = append([]string(nil), j.ResultPaths...)
	c.Settings.Trims = append([]domain.TrimRange(nil), j.Settings.Trims...)
	if j.Settings.Crop != nil {
		crop := *j.Settings.Crop
		c.Settings.Crop = &crop
	}
	if j.Settings.RotateValue != nil {
		rotate := *j.Settings.RotateValue
		c.Settings.RotateValue = &rotate
	}
	if j.Error != nil {
		jobErr := *j.Error
		c.Error = &jobErr
	}
	return &c
}

func sortNewestFirst(jobs []*domain.Job) {
	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].ID < jobs[b].ID
		}
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
}

var _ port.JobStore = (*Store)(nil)
