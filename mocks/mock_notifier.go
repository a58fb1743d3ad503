package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cbsent/internal/port"
)

// MockNotifier is a mock implementation of port.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyRunCompleted(ctx context.Context, summary port.RunSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockNotifier) NotifyChunkFailed(ctx context.Context, failure port.ChunkFailure) error {
	args := m.Called(ctx, failure)
	return args.Error(0)
}
