package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbsent/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func submittedLedger(t *testing.T) *domain.Ledger {
	t.Helper()
	l := domain.NewLedger()
	l.RecordUpload("chunk01_input.jsonl", 1, 100, "file-1", t0)
	require.NoError(t, l.RecordSubmission("chunk01_input.jsonl", "batch-1", t0))
	return l
}

func TestLedger_SubmissionLifecycle(t *testing.T) {
	l := submittedLedger(t)
	e, ok := l.Entry("chunk01_input.jsonl")
	require.True(t, ok)
	assert.Equal(t, domain.ChunkStatusSubmitted, e.Status)
	assert.Equal(t, "batch-1", e.JobID)
	assert.Equal(t, 1, e.Attempts())
	assert.Empty(t, e.PendingUpload())

	changed, err := l.ApplySnapshot("chunk01_input.jsonl", &domain.JobSnapshot{
		JobID: "batch-1", Status: domain.RemoteStatusInProgress,
		RequestCounts: domain.RequestCounts{Total: 100, Completed: 40},
	}, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = l.ApplySnapshot("chunk01_input.jsonl", &domain.JobSnapshot{
		JobID: "batch-1", Status: domain.RemoteStatusInProgress,
		RequestCounts: domain.RequestCounts{Total: 100, Completed: 40},
	}, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed, "identical observation is not a change")

	changed, err = l.ApplySnapshot("chunk01_input.jsonl", &domain.JobSnapshot{
		JobID: "batch-1", Status: domain.RemoteStatusCompleted, OutputFileID: "out-1",
		RequestCounts: domain.RequestCounts{Total: 100, Completed: 100},
	}, t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.ChunkStatusCompleted, e.Status)
	assert.Equal(t, "out-1", e.OutputFileID)
	require.NotNil(t, e.CompletedAt)
	require.NotNil(t, e.History[0].EndedAt)
	assert.Equal(t, domain.ChunkStatusCompleted, e.History[0].Status)

	_, err = l.ApplySnapshot("chunk01_input.jsonl", &domain.JobSnapshot{
		JobID: "batch-1", Status: domain.RemoteStatusInProgress,
	}, t0.Add(4*time.Minute))
	assert.Error(t, err, "completed chunks cannot go back")
}

func TestLedger_ResubmissionKeepsHistory(t *testing.T) {
	l := submittedLedger(t)
	_, err := l.ApplySnapshot("chunk01_input.jsonl", &domain.JobSnapshot{
		JobID: "batch-1", Status: domain.RemoteStatusFailed, Errors: []string{"token_limit_exceeded: too many tokens"},
	}, t0.Add(time.Minute))
	require.NoError(t, err)

	e, _ := l.Entry("chunk01_input.jsonl")
	assert.Equal(t, domain.ChunkStatusFailed, e.Status)
	assert.Equal(t, "token_limit_exceeded: too many tokens", e.Error)

	l.RecordUpload("chunk01_input.jsonl", 1, 100, "file-2", t0.Add(2*time.Minute))
	assert.Equal(t, "file-2", e.PendingUpload())
	require.NoError(t, l.RecordSubmission("chunk01_input.jsonl", "batch-2", t0.Add(2*time.Minute)))

	assert.Equal(t, "batch-2", e.JobID)
	assert.Equal(t, "batch-1", e.PreviousJobID)
	assert.Empty(t, e.Error)
	require.Len(t, e.History, 2)
	assert.Equal(t, domain.ChunkStatusFailed, e.History[0].Status)
	assert.Equal(t, "batch-2", e.History[1].JobID)

	changed, err := l.ApplySnapshot("chunk01_input.jsonl", &domain.JobSnapshot{
		JobID: "batch-1", Status: domain.RemoteStatusFailed,
	}, t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed, "snapshots of superseded jobs are ignored")
}

func TestLedger_RecordDownloads(t *testing.T) {
	l := submittedLedger(t)
	_, err := l.ApplySnapshot("chunk01_input.jsonl", &domain.JobSnapshot{
		JobID: "batch-1", Status: domain.RemoteStatusCompleted, ErrorFileID: "err-1",
		RequestCounts: domain.RequestCounts{Total: 100, Failed: 100},
	}, t0.Add(time.Minute))
	require.NoError(t, err)

	assert.True(t, l.RecordErrorDownload("chunk01_input.jsonl", "results/chunk01_errors.jsonl", t0.Add(2*time.Minute)))
	assert.False(t, l.RecordErrorDownload("chunk01_input.jsonl", "results/chunk01_errors.jsonl", t0.Add(3*time.Minute)))
	assert.False(t, l.RecordErrorDownload("chunk09_input.jsonl", "x", t0))

	e, _ := l.Entry("chunk01_input.jsonl")
	assert.Equal(t, "results/chunk01_errors.jsonl", e.ErrorFile)
	assert.Empty(t, e.OutputFile)
	assert.Equal(t, t0.Add(2*time.Minute), e.UpdatedAt)
}

func TestLedger_SubmitTwiceRejected(t *testing.T) {
	l := submittedLedger(t)
	assert.Error(t, l.RecordSubmission("chunk01_input.jsonl", "batch-x", t0))
	assert.ErrorIs(t, l.RecordSubmission("chunk09_input.jsonl", "batch-y", t0), domain.ErrChunkNotTracked)
}

func TestLedger_JSONRoundTrip(t *testing.T) {
	l := submittedLedger(t)
	l.Metadata = &domain.RunMetadata{RunID: "run-1", TotalChunks: 1, TotalDocuments: 100, StartedAt: t0, Status: domain.RunStatusRunning}

	data, err := json.Marshal(l)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "_metadata")
	assert.Contains(t, raw, "chunk01_input.jsonl")

	var decoded domain.Ledger
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Metadata)
	assert.Equal(t, "run-1", decoded.Metadata.RunID)
	e, ok := decoded.Entry("chunk01_input.jsonl")
	require.True(t, ok)
	assert.Equal(t, "batch-1", e.JobID)
	assert.True(t, e.SubmittedAt.Equal(t0))

	again, err := json.Marshal(&decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestLedger_Classify(t *testing.T) {
	l := domain.NewLedger()
	for i, st := range []domain.ChunkStatus{
		domain.ChunkStatusCompleted, domain.ChunkStatusExpired, domain.ChunkStatusInProgress, domain.ChunkStatusUnsubmitted,
	} {
		name := []string{"c1", "c2", "c3", "c4"}[i]
		l.Entries[name] = &domain.LedgerEntry{ChunkNumber: i + 1, Status: st}
	}

	b := l.Classify([]string{"c1", "c2", "c3", "c4", "c5"})
	assert.Equal(t, []string{"c1"}, b.Completed)
	assert.Equal(t, []string{"c2"}, b.Failed)
	assert.Equal(t, []string{"c3"}, b.InProgress)
	assert.Equal(t, []string{"c4", "c5"}, b.Unsubmitted)
	assert.False(t, b.AllCompleted())

	assert.True(t, l.Classify([]string{"c1"}).AllCompleted())
	assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, l.Names())
}
