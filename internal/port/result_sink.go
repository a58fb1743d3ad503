package port

import (
	"context"

	"cbsent/internal/domain"
)

// ResultSink receives merged rows after a successful merge.
type ResultSink interface {
	UpsertRows(ctx context.Context, runID string, rows []domain.ResultRow) (int, error)
}
