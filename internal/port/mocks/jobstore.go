package mocks

import (
	"context"
	"testing"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port"
	"github.com/stretchr/testify/mock"
)

type JobStoreMock struct {
	mock.Mock
}

func NewJobStoreMock(t *testing.T) *JobStoreMock {
	m := &JobStoreMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *JobStoreMock) Create(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *JobStoreMock) Get(ctx context.Context, id string) (*domain.Job, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *JobStoreMock) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error) {
	args := m.Called(ctx, ownerID)
	jobs, _ := args.Get(0).([]*domain.Job)
	return jobs, args.Error(1)
}

func (m *JobStoreMock) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	args := m.Called(ctx)
	jobs, _ := args.Get(0).([]*domain.Job)
	return jobs, args.Error(1)
}

func (m *JobStoreMock) MarkRunning(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *JobStoreMock) Finish(ctx context.Context, id string, ev domain.ResultEvent) (*domain.Job, error) {
	args := m.Called(ctx, id, ev)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

var _ port.JobStore = (*JobStoreMock)(nil)
