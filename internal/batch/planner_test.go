package batch_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cbsent/internal/batch"
	"cbsent/internal/domain"
)

// sizedRecord returns a record whose serialized line is roughly tokens*4 bytes.
func sizedRecord(id string, tokens int) domain.RequestRecord {
	return domain.RequestRecord{
		CustomID: id,
		Method:   "POST",
		URL:      "/v1/chat/completions",
		Body: domain.RequestBody{
			Model:    "m",
			Messages: []domain.ChatMessage{{Role: "user", Content: strings.Repeat("x", tokens*4)}},
		},
	}
}

func customIDs(chunks []domain.Chunk) [][]string {
	var out [][]string
	for _, c := range chunks {
		var ids []string
		for _, r := range c.Records {
			ids = append(ids, r.CustomID)
		}
		out = append(out, ids)
	}
	return out
}

func TestPlanner_GreedyPacking(t *testing.T) {
	planner := batch.NewPlanner(80000, batch.NewEstimator(4), zap.NewNop())
	var records []domain.RequestRecord
	for i := 1; i <= 5; i++ {
		records = append(records, sizedRecord(fmt.Sprintf("d%d", i), 30000))
	}

	chunks, total, err := planner.Plan(records)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"d1", "d2"}, {"d3", "d4"}, {"d5"}}, customIDs(chunks))
	assert.Equal(t, "chunk01_input.jsonl", chunks[0].FileName)
	assert.Equal(t, 3, chunks[2].Number)
	assert.Greater(t, total, 150000)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.EstimatedTokens, 80000)
	}
}

func TestPlanner_OversizedGetsOwnChunk(t *testing.T) {
	planner := batch.NewPlanner(80000, batch.NewEstimator(4), zap.NewNop())
	records := []domain.RequestRecord{
		sizedRecord("small1", 1000),
		sizedRecord("huge", 100000),
		sizedRecord("small2", 1000),
	}

	chunks, _, err := planner.Plan(records)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"small1"}, {"huge"}, {"small2"}}, customIDs(chunks))
	assert.Greater(t, chunks[1].EstimatedTokens, 80000)
}

func TestPlanner_ZeroDocuments(t *testing.T) {
	planner := batch.NewPlanner(80000, batch.NewEstimator(4), zap.NewNop())

	chunks, total, err := planner.Plan(nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Zero(t, total)
}

func TestPlanner_PreservesOrderAndDeterminism(t *testing.T) {
	planner := batch.NewPlanner(5000, batch.NewEstimator(4), zap.NewNop())
	var records []domain.RequestRecord
	for i := 0; i < 40; i++ {
		records = append(records, sizedRecord(fmt.Sprintf("r%02d", i), 300+i*37))
	}

	first, total1, err := planner.Plan(records)
	require.NoError(t, err)
	second, total2, err := planner.Plan(records)
	require.NoError(t, err)
	assert.Equal(t, customIDs(first), customIDs(second))
	assert.Equal(t, total1, total2)

	var flat []string
	sum := 0
	for _, c := range first {
		if len(c.Records) > 1 {
			assert.LessOrEqual(t, c.EstimatedTokens, 5000)
		}
		sum += c.EstimatedTokens
		for _, r := range c.Records {
			flat = append(flat, r.CustomID)
		}
	}
	require.Len(t, flat, 40)
	for i, id := range flat {
		assert.Equal(t, fmt.Sprintf("r%02d", i), id)
	}
	assert.Equal(t, total1, sum)
}
