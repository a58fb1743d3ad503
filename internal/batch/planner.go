package batch

import (
	"go.uber.org/zap"

	"cbsent/internal/domain"
)

// Planner packs request records into token-bounded chunks.
type Planner struct {
	maxTokens int
	estimator Estimator
	logger    *zap.Logger
}

// NewPlanner creates a Planner with the given per-chunk token ceiling.
func NewPlanner(maxTokens int, estimator Estimator, logger *zap.Logger) *Planner {
	return &Planner{maxTokens: maxTokens, estimator: estimator, logger: logger}
}

// Plan greedily packs records in input order. A chunk is closed when the next
// record would push it past the ceiling; a record larger than the ceiling on
// its own gets a chunk of its own. Records are never split or reordered.
// Returns the chunks and the total estimated tokens.
func (p *Planner) Plan(records []domain.RequestRecord) ([]domain.Chunk, int, error) {
	var (
		chunks  []domain.Chunk
		current []domain.RequestRecord
		curTok  int
		total   int
	)

	closeChunk := func() {
		n := len(chunks) + 1
		chunks = append(chunks, domain.Chunk{
			Number:          n,
			FileName:        ChunkFileName(n),
			Records:         current,
			EstimatedTokens: curTok,
		})
		current = nil
		curTok = 0
	}

	for i := range records {
		line, err := MarshalRecord(&records[i])
		if err != nil {
			return nil, 0, err
		}
		tokens := p.estimator.Tokens(line)
		total += tokens

		if tokens > p.maxTokens {
			p.logger.Warn("request exceeds chunk ceiling, placing it alone",
				zap.String("correlation_id", records[i].CustomID),
				zap.Int("estimated_tokens", tokens),
				zap.Int("max_tokens", p.maxTokens),
			)
		}
		if len(current) > 0 && curTok+tokens > p.maxTokens {
			closeChunk()
		}
		current = append(current, records[i])
		curTok += tokens
	}
	if len(current) > 0 {
		closeChunk()
	}
	return chunks, total, nil
}
