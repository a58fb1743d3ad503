package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"cbsent/internal/csvexport"
	"cbsent/internal/domain"
	"cbsent/internal/port"
)

// upsertBatchSize keeps each statement well under the 65535 bind parameter limit.
const upsertBatchSize = 1000

type resultRecord struct {
	domain.ResultRow
	RunID        string    `db:"run_id"`
	KeySentences string    `db:"key_sentences"`
	MergedAt     time.Time `db:"merged_at"`
}

type resultRepo struct {
	db *sqlx.DB
}

// NewResultRepo creates a new PostgreSQL-backed ResultSink.
func NewResultRepo(db *sqlx.DB) port.ResultSink {
	return &resultRepo{db: db}
}

const upsertResultsQuery = `INSERT INTO sentiment_results (
	run_id, correlation_id, author, institution, speech_date,
	hawkish_dovish_score, topic_inflation, topic_growth, topic_financial_stability,
	topic_labor_market, topic_international, uncertainty, forward_guidance_strength,
	market_stocks, market_bonds, market_currency, market_reasoning,
	key_sentences, summary, chunk_file, merged_at
) VALUES (
	:run_id, :correlation_id, :author, :institution, :speech_date,
	:hawkish_dovish_score, :topic_inflation, :topic_growth, :topic_financial_stability,
	:topic_labor_market, :topic_international, :uncertainty, :forward_guidance_strength,
	:market_stocks, :market_bonds, :market_currency, :market_reasoning,
	:key_sentences, :summary, :chunk_file, :merged_at
)
ON CONFLICT (run_id, correlation_id) DO UPDATE SET
	author = EXCLUDED.author,
	institution = EXCLUDED.institution,
	speech_date = EXCLUDED.speech_date,
	hawkish_dovish_score = EXCLUDED.hawkish_dovish_score,
	topic_inflation = EXCLUDED.topic_inflation,
	topic_growth = EXCLUDED.topic_growth,
	topic_financial_stability = EXCLUDED.topic_financial_stability,
	topic_labor_market = EXCLUDED.topic_labor_market,
	topic_international = EXCLUDED.topic_international,
	uncertainty = EXCLUDED.uncertainty,
	forward_guidance_strength = EXCLUDED.forward_guidance_strength,
	market_stocks = EXCLUDED.market_stocks,
	market_bonds = EXCLUDED.market_bonds,
	market_currency = EXCLUDED.market_currency,
	market_reasoning = EXCLUDED.market_reasoning,
	key_sentences = EXCLUDED.key_sentences,
	summary = EXCLUDED.summary,
	chunk_file = EXCLUDED.chunk_file,
	merged_at = EXCLUDED.merged_at`

// UpsertRows writes the merged rows of a run in one transaction. Re-merging a
// run overwrites its rows in place.
func (r *resultRepo) UpsertRows(ctx context.Context, runID string, rows []domain.ResultRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	records := make([]resultRecord, len(rows))
	for i := range rows {
		records[i] = resultRecord{
			ResultRow:    rows[i],
			RunID:        runID,
			KeySentences: csvexport.JoinKeySentences(rows[i].KeySentences),
			MergedAt:     now,
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("resultRepo.UpsertRows: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for start := 0; start < len(records); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if _, err := tx.NamedExecContext(ctx, upsertResultsQuery, records[start:end]); err != nil {
			return 0, fmt.Errorf("resultRepo.UpsertRows: rows %d-%d: %w", start, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("resultRepo.UpsertRows: commit: %w", err)
	}
	return len(records), nil
}
