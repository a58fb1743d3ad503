package port

import (
	"context"

	"cbsent/internal/domain"
)

// LedgerStore persists the submission ledger.
type LedgerStore interface {
	// Load returns the stored ledger, or an empty one when none exists yet.
	Load(ctx context.Context) (*domain.Ledger, error)
	// Save durably replaces the stored ledger.
	Save(ctx context.Context, l *domain.Ledger) error
}
