package mocks

import (
	"testing"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port"
	"github.com/stretchr/testify/mock"
)

type NotifierMock struct {
	mock.Mock
}

func NewNotifierMock(t *testing.T) *NotifierMock {
	m := &NotifierMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *NotifierMock) Notify(ownerID string, n domain.Notification) bool {
	args := m.Called(ownerID, n)
	return args.Bool(0)
}

var _ port.Notifier = (*NotifierMock)(nil)
