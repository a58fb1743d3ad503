package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cbsent/internal/domain"
)

func TestChunkStatusFromRemote(t *testing.T) {
	tests := []struct {
		remote domain.RemoteStatus
		want   domain.ChunkStatus
		known  bool
	}{
		{domain.RemoteStatusValidating, domain.ChunkStatusSubmitted, true},
		{domain.RemoteStatusInProgress, domain.ChunkStatusInProgress, true},
		{domain.RemoteStatusFinalizing, domain.ChunkStatusInProgress, true},
		{domain.RemoteStatusCancelling, domain.ChunkStatusInProgress, true},
		{domain.RemoteStatusCompleted, domain.ChunkStatusCompleted, true},
		{domain.RemoteStatusFailed, domain.ChunkStatusFailed, true},
		{domain.RemoteStatusExpired, domain.ChunkStatusExpired, true},
		{domain.RemoteStatusCancelled, domain.ChunkStatusCancelled, true},
		{domain.RemoteStatus("paused"), domain.ChunkStatusInProgress, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.remote), func(t *testing.T) {
			got, known := domain.ChunkStatusFromRemote(tt.remote)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, domain.CanTransition(domain.ChunkStatusUnsubmitted, domain.ChunkStatusSubmitted))
	assert.True(t, domain.CanTransition(domain.ChunkStatusSubmitted, domain.ChunkStatusCompleted))
	assert.True(t, domain.CanTransition(domain.ChunkStatusInProgress, domain.ChunkStatusExpired))
	assert.True(t, domain.CanTransition(domain.ChunkStatusFailed, domain.ChunkStatusSubmitted))
	assert.True(t, domain.CanTransition(domain.ChunkStatusInProgress, domain.ChunkStatusInProgress))

	assert.False(t, domain.CanTransition(domain.ChunkStatusCompleted, domain.ChunkStatusInProgress))
	assert.False(t, domain.CanTransition(domain.ChunkStatusCompleted, domain.ChunkStatusSubmitted))
	assert.False(t, domain.CanTransition(domain.ChunkStatusInProgress, domain.ChunkStatusSubmitted))
	assert.False(t, domain.CanTransition(domain.ChunkStatusUnsubmitted, domain.ChunkStatusCompleted))
}

func TestChunkStatus_TerminalAndFailure(t *testing.T) {
	assert.False(t, domain.ChunkStatusSubmitted.IsTerminal())
	assert.False(t, domain.ChunkStatusInProgress.IsTerminal())
	assert.True(t, domain.ChunkStatusCompleted.IsTerminal())
	assert.False(t, domain.ChunkStatusCompleted.IsFailure())
	for _, s := range []domain.ChunkStatus{domain.ChunkStatusFailed, domain.ChunkStatusExpired, domain.ChunkStatusCancelled} {
		assert.True(t, s.IsTerminal(), s)
		assert.True(t, s.IsFailure(), s)
	}
}

func TestChunkStatus_IsValid(t *testing.T) {
	assert.True(t, domain.ChunkStatusCompleted.IsValid())
	assert.True(t, domain.ChunkStatusUnsubmitted.IsValid())
	assert.False(t, domain.ChunkStatus("finalizing").IsValid())
	assert.False(t, domain.ChunkStatus("").IsValid())
}

func TestMarketDirection_IsValid(t *testing.T) {
	assert.True(t, domain.MarketRise.IsValid())
	assert.True(t, domain.MarketNeutral.IsValid())
	assert.False(t, domain.MarketDirection("up").IsValid())
	assert.False(t, domain.MarketDirection("").IsValid())
}
