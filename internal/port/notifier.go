package port

import "context"

// RunSummary describes a finished merge for notification purposes.
type RunSummary struct {
	RunID          string
	TotalChunks    int
	TotalDocuments int
	ValidRows      int
	InvalidRows    int
	MergedCSV      string
	ReportFile     string
}

// ChunkFailure describes a chunk whose job ended without results.
type ChunkFailure struct {
	ChunkName string
	JobID     string
	Status    string
	Detail    string
	Attempts  int
}

// Notifier delivers run notifications to operators.
type Notifier interface {
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyChunkFailed(ctx context.Context, failure ChunkFailure) error
}
