package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cbsent/internal/domain"
)

// MockResultSink is a mock implementation of port.ResultSink.
type MockResultSink struct {
	mock.Mock
}

func (m *MockResultSink) UpsertRows(ctx context.Context, runID string, rows []domain.ResultRow) (int, error) {
	args := m.Called(ctx, runID, rows)
	return args.Int(0), args.Error(1)
}
