package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cbsent/internal/domain"
	"cbsent/internal/service"
	"cbsent/internal/validator"
)

// MockStatusService is a mock implementation of service.StatusService.
type MockStatusService struct {
	mock.Mock
}

func (m *MockStatusService) Status(ctx context.Context) (*service.StatusReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.StatusReport), args.Error(1)
}

func (m *MockStatusService) Ledger(ctx context.Context) (*domain.Ledger, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ledger), args.Error(1)
}

func (m *MockStatusService) Chunk(ctx context.Context, name string) (*service.ChunkView, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChunkView), args.Error(1)
}

func (m *MockStatusService) Report(ctx context.Context) (*validator.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*validator.Report), args.Error(1)
}
