package noop

import (
	"context"

	"go.uber.org/zap"

	"cbsent/internal/port"
)

type noopNotifier struct {
	logger *zap.Logger
}

// NewNoopNotifier creates a Notifier that only logs.
func NewNoopNotifier(logger *zap.Logger) port.Notifier {
	return &noopNotifier{logger: logger}
}

func (n *noopNotifier) NotifyRunCompleted(_ context.Context, s port.RunSummary) error {
	n.logger.Info("[NOOP NOTIFY] run completed",
		zap.String("run_id", s.RunID),
		zap.Int("chunks", s.TotalChunks),
		zap.Int("valid_rows", s.ValidRows),
		zap.Int("invalid_rows", s.InvalidRows),
		zap.String("merged_csv", s.MergedCSV),
	)
	return nil
}

func (n *noopNotifier) NotifyChunkFailed(_ context.Context, f port.ChunkFailure) error {
	n.logger.Info("[NOOP NOTIFY] chunk failed",
		zap.String("chunk", f.ChunkName),
		zap.String("job_id", f.JobID),
		zap.String("status", f.Status),
		zap.Int("attempts", f.Attempts),
		zap.String("detail", f.Detail),
	)
	return nil
}
