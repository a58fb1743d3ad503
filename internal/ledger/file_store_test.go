package ledger_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbsent/internal/domain"
	"cbsent/internal/ledger"
)

func TestFileStore_LoadMissingReturnsEmpty(t *testing.T) {
	store := ledger.NewFileStore(filepath.Join(t.TempDir(), "batch_ledger.json"))

	l, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, l.Entries)
	assert.Nil(t, l.Metadata)
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "run", "batch_ledger.json")
	store := ledger.NewFileStore(path)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	l := domain.NewLedger()
	l.Metadata = &domain.RunMetadata{RunID: "run-1", TotalChunks: 2, StartedAt: now, Status: domain.RunStatusSubmitting}
	l.RecordUpload("chunk02_input.jsonl", 2, 10, "file-2", now)
	l.RecordUpload("chunk01_input.jsonl", 1, 12, "file-1", now)
	require.NoError(t, l.RecordSubmission("chunk01_input.jsonl", "batch-1", now))
	require.NoError(t, store.Save(ctx, l))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk01_input.jsonl", "chunk02_input.jsonl"}, loaded.Names())
	e, _ := loaded.Entry("chunk01_input.jsonl")
	assert.Equal(t, "batch-1", e.JobID)
	assert.Equal(t, domain.ChunkStatusSubmitted, e.Status)
	e2, _ := loaded.Entry("chunk02_input.jsonl")
	assert.Equal(t, domain.ChunkStatusUnsubmitted, e2.Status)
	assert.Equal(t, "file-2", e2.PendingUpload())

	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, loaded))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second, "encoding is stable across load/save")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := ledger.NewFileStore(path).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrLedgerCorrupt)
}

func TestFileStore_SaveHonorsCanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_ledger.json")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ledger.NewFileStore(path).Save(ctx, domain.NewLedger())
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
