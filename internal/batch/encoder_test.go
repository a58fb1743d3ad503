package batch_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cbsent/internal/batch"
	"cbsent/internal/domain"
)

func newTestEncoder(maxDocTokens int) *batch.Encoder {
	return batch.NewEncoder(batch.EncoderConfig{
		Model:             "gpt-4o-2024-08-06",
		Temperature:       0.3,
		MaxDocumentTokens: maxDocTokens,
	}, batch.NewEstimator(4), zap.NewNop())
}

func TestEncoder_Encode(t *testing.T) {
	enc := newTestEncoder(0)
	doc := domain.Document{ID: "speech_1", Text: "Inflation remains elevated.", Author: "Powell", Institution: "United States", Date: "2023-05-15"}

	rec, err := enc.Encode(&doc)
	require.NoError(t, err)

	assert.Equal(t, "speech_1", rec.CustomID)
	assert.Equal(t, "POST", rec.Method)
	assert.Equal(t, "/v1/chat/completions", rec.URL)
	assert.Equal(t, "gpt-4o-2024-08-06", rec.Body.Model)
	assert.Equal(t, "json_object", rec.Body.ResponseFormat.Type)
	require.Len(t, rec.Body.Messages, 2)
	assert.Equal(t, "system", rec.Body.Messages[0].Role)
	assert.Equal(t, batch.SystemPrompt, rec.Body.Messages[0].Content)
	assert.Contains(t, rec.Body.Messages[1].Content, "Inflation remains elevated.")
	assert.Contains(t, rec.Body.Messages[1].Content, "Speaker: Powell")
}

func TestEncoder_Encode_Deterministic(t *testing.T) {
	enc := newTestEncoder(0)
	doc := domain.Document{ID: "a", Text: "text"}

	r1, err := enc.Encode(&doc)
	require.NoError(t, err)
	r2, err := enc.Encode(&doc)
	require.NoError(t, err)

	b1, err := batch.MarshalRecord(&r1)
	require.NoError(t, err)
	b2, err := batch.MarshalRecord(&r2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestEncoder_Encode_MissingFields(t *testing.T) {
	enc := newTestEncoder(0)

	_, err := enc.Encode(&domain.Document{Text: "hello"})
	var encErr *domain.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "id", encErr.Field)

	_, err = enc.Encode(&domain.Document{ID: "x", Text: "   "})
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "text", encErr.Field)
	assert.ErrorIs(t, err, domain.ErrEncoding)
}

func TestEncoder_EncodeAll_DuplicateID(t *testing.T) {
	enc := newTestEncoder(0)
	docs := []domain.Document{
		{ID: "a", Text: "one"},
		{ID: "b", Text: "two"},
		{ID: "a", Text: "three"},
	}

	_, err := enc.EncodeAll(docs)
	var encErr *domain.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "a", encErr.CorrelationID)
	assert.Contains(t, encErr.Reason, "duplicate")
}

func TestEncoder_TruncatesLongText(t *testing.T) {
	enc := newTestEncoder(10)
	doc := domain.Document{ID: "long", Text: strings.Repeat("é", 100)}

	rec, err := enc.Encode(&doc)
	require.NoError(t, err)

	user := rec.Body.Messages[1].Content
	assert.Contains(t, user, batch.TruncationMarker)
	assert.Contains(t, user, strings.Repeat("é", 20))
	assert.NotContains(t, user, strings.Repeat("é", 21))
}

func TestEncoder_EncodeValid_SkipsBadDocuments(t *testing.T) {
	enc := newTestEncoder(0)
	docs := []domain.Document{
		{ID: "a", Text: "first"},
		{ID: "", Text: "no id"},
		{ID: "b", Text: "  "},
		{ID: "a", Text: "duplicate"},
		{ID: "c", Text: "third"},
	}

	records, rejected := enc.EncodeValid(docs)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].CustomID)
	assert.Equal(t, "c", records[1].CustomID)

	require.Len(t, rejected, 3)
	assert.Equal(t, "id", rejected[0].Field)
	assert.Equal(t, "text", rejected[1].Field)
	assert.Equal(t, "b", rejected[1].CorrelationID)
	assert.Equal(t, "duplicate correlation id", rejected[2].Reason)
	assert.ErrorIs(t, rejected[2], domain.ErrEncoding)
}
