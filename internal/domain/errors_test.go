package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cbsent/internal/domain"
)

func TestTransportError_MatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("uploading chunk: %w", domain.NewTransportError("upload", cause))

	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, domain.ErrQuota)

	var te *domain.TransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, "upload", te.Op)
}

func TestNewQuotaError_DefaultRetryAfter(t *testing.T) {
	err := domain.NewQuotaError("create job", errors.New("insufficient_quota"), 0)
	assert.Equal(t, 60*time.Second, err.RetryAfter)
	assert.ErrorIs(t, err, domain.ErrQuota)

	err = domain.NewQuotaError("create job", errors.New("rate limited"), 5)
	assert.Equal(t, 5*time.Second, err.RetryAfter)
}

func TestEncodingError_Message(t *testing.T) {
	err := &domain.EncodingError{CorrelationID: "speech_1", Field: "text", Reason: "empty"}
	assert.ErrorIs(t, err, domain.ErrEncoding)
	assert.Equal(t, `encoding document "speech_1": text: empty`, err.Error())
}

func TestNotFoundError_MatchesSentinel(t *testing.T) {
	err := &domain.NotFoundError{Kind: "job", ID: "batch_1"}
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "batch_1")
}
