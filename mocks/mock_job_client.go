package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cbsent/internal/domain"
)

// MockJobClient is a mock implementation of port.JobClient.
type MockJobClient struct {
	mock.Mock
}

func (m *MockJobClient) UploadRequests(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *MockJobClient) CreateJob(ctx context.Context, inputFileID string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, inputFileID, metadata)
	return args.String(0), args.Error(1)
}

func (m *MockJobClient) GetStatus(ctx context.Context, jobID string) (*domain.JobSnapshot, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.JobSnapshot), args.Error(1)
}

func (m *MockJobClient) Download(ctx context.Context, fileID string) ([]byte, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
