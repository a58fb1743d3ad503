package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"cbsent/internal/domain"
)

// EncoderConfig holds the request payload settings.
type EncoderConfig struct {
	Model       string
	Temperature float64
	Endpoint    string
	// MaxDocumentTokens truncates longer texts. 0 disables truncation.
	MaxDocumentTokens int
}

// Encoder turns documents into request records.
type Encoder struct {
	cfg       EncoderConfig
	estimator Estimator
	logger    *zap.Logger
}

// NewEncoder creates an Encoder.
func NewEncoder(cfg EncoderConfig, estimator Estimator, logger *zap.Logger) *Encoder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/v1/chat/completions"
	}
	return &Encoder{cfg: cfg, estimator: estimator, logger: logger}
}

// Encode builds the request record for one document. The document ID becomes
// the record's correlation ID.
func (e *Encoder) Encode(doc *domain.Document) (domain.RequestRecord, error) {
	id := strings.TrimSpace(doc.ID)
	if id == "" {
		return domain.RequestRecord{}, &domain.EncodingError{Field: "id", Reason: "missing correlation id"}
	}
	if strings.TrimSpace(doc.Text) == "" {
		return domain.RequestRecord{}, &domain.EncodingError{CorrelationID: id, Field: "text", Reason: "empty text"}
	}
	if !utf8.ValidString(doc.Text) {
		return domain.RequestRecord{}, &domain.EncodingError{CorrelationID: id, Field: "text", Reason: "invalid utf-8"}
	}

	text := e.truncate(id, doc.Text)
	return domain.RequestRecord{
		CustomID: id,
		Method:   "POST",
		URL:      e.cfg.Endpoint,
		Body: domain.RequestBody{
			Model: e.cfg.Model,
			Messages: []domain.ChatMessage{
				{Role: "system", Content: SystemPrompt},
				{Role: "user", Content: BuildSentimentPrompt(doc, text)},
			},
			ResponseFormat: domain.ResponseFormat{Type: "json_object"},
			Temperature:    e.cfg.Temperature,
		},
	}, nil
}

// EncodeAll encodes documents in order and rejects duplicate correlation IDs.
func (e *Encoder) EncodeAll(docs []domain.Document) ([]domain.RequestRecord, error) {
	seen := make(map[string]struct{}, len(docs))
	records := make([]domain.RequestRecord, 0, len(docs))
	for i := range docs {
		rec, err := e.Encode(&docs[i])
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if _, dup := seen[rec.CustomID]; dup {
			return nil, fmt.Errorf("document %d: %w", i, &domain.EncodingError{
				CorrelationID: rec.CustomID, Field: "id", Reason: "duplicate correlation id",
			})
		}
		seen[rec.CustomID] = struct{}{}
		records = append(records, rec)
	}
	return records, nil
}

// EncodeValid encodes documents in order, skipping the ones that cannot be
// encoded. A repeated correlation ID is rejected on every occurrence after the
// first.
func (e *Encoder) EncodeValid(docs []domain.Document) ([]domain.RequestRecord, []*domain.EncodingError) {
	seen := make(map[string]struct{}, len(docs))
	records := make([]domain.RequestRecord, 0, len(docs))
	var rejected []*domain.EncodingError
	for i := range docs {
		rec, err := e.Encode(&docs[i])
		if err != nil {
			var encErr *domain.EncodingError
			if !errors.As(err, &encErr) {
				encErr = &domain.EncodingError{CorrelationID: docs[i].ID, Field: "document", Reason: err.Error()}
			}
			rejected = append(rejected, encErr)
			continue
		}
		if _, dup := seen[rec.CustomID]; dup {
			rejected = append(rejected, &domain.EncodingError{
				CorrelationID: rec.CustomID, Field: "id", Reason: "duplicate correlation id",
			})
			continue
		}
		seen[rec.CustomID] = struct{}{}
		records = append(records, rec)
	}
	for _, r := range rejected {
		e.logger.Warn("document rejected",
			zap.String("correlation_id", r.CorrelationID),
			zap.String("field", r.Field),
			zap.String("reason", r.Reason),
		)
	}
	return records, rejected
}

// truncate cuts text to the per-document token budget on a rune boundary.
func (e *Encoder) truncate(id, text string) string {
	if e.cfg.MaxDocumentTokens <= 0 {
		return text
	}
	tokens := e.estimator.TokensString(text)
	if tokens <= e.cfg.MaxDocumentTokens {
		return text
	}
	limit := e.cfg.MaxDocumentTokens * e.estimator.BytesPerToken()
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	e.logger.Warn("truncating document text",
		zap.String("correlation_id", id),
		zap.Int("estimated_tokens", tokens),
		zap.Int("max_tokens", e.cfg.MaxDocumentTokens),
	)
	return text[:limit] + TruncationMarker
}

// MarshalRecord serializes a record as one request file line, without the newline.
func MarshalRecord(rec *domain.RequestRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, &domain.EncodingError{CorrelationID: rec.CustomID, Field: "payload", Reason: err.Error()}
	}
	return b, nil
}
