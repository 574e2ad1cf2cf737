package mocks

import (
	"context"
	"testing"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port"
	"github.com/stretchr/testify/mock"
)

type MediaOperationsMock struct {
	mock.Mock
}

func NewMediaOperationsMock(t *testing.T) *MediaOperationsMock {
	m := &MediaOperationsMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MediaOperationsMock) Download(ctx context.Context, jobID, url string) (string, error) {
	args := m.Called(ctx, jobID, url)
	return args.String(0), args.Error(1)
}

func (m *MediaOperationsMock) Manipulate(ctx context.Context, jobID, path string, manip domain.Manipulations) (string, error) {
	args := m.Called(ctx, jobID, path, manip)
	return args.String(0), args.Error(1)
}

func (m *MediaOperationsMock) Trim(ctx context.Context, jobID, path string, ranges []domain.TrimRange) ([]string, error) {
	args := m.Called(ctx, jobID, path, ranges)
	paths, _ := args.Get(0).([]string)
	return paths, args.Error(1)
}

func (m *MediaOperationsMock) Concat(ctx context.Context, jobID string, paths []string) (string, error) {
	args := m.Called(ctx, jobID, paths)
	return args.String(0), args.Error(1)
}

func (m *MediaOperationsMock) Convert(ctx context.Context, jobID string, paths []string) ([]string, error) {
	args := m.Called(ctx, jobID, paths)
	out, _ := args.Get(0).([]string)
	return out, args.Error(1)
}

func (m *MediaOperationsMock) Publish(ctx context.Context, jobID string, paths []string) ([]string, error) {
	args := m.Called(ctx, jobID, paths)
	out, _ := args.Get(0).([]string)
	return out, args.Error(1)
}

func (m *MediaOperationsMock) Cleanup(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

var _ port.MediaOperations = (*MediaOperationsMock)(nil)
