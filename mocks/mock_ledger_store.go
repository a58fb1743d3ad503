package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cbsent/internal/domain"
)

// MockLedgerStore is a mock implementation of port.LedgerStore.
type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) Load(ctx context.Context) (*domain.Ledger, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ledger), args.Error(1)
}

func (m *MockLedgerStore) Save(ctx context.Context, l *domain.Ledger) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}
