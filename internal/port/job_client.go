package port

import (
	"context"

	"cbsent/internal/domain"
)

// JobClient is the thin adapter over the remote batch service. Implementations
// normalize failures into domain.TransportError, domain.QuotaError and
// domain.NotFoundError.
type JobClient interface {
	// UploadRequests uploads a chunk request file and returns its remote file ID.
	UploadRequests(ctx context.Context, path string) (string, error)
	// CreateJob starts a remote job over an uploaded file and returns the job ID.
	CreateJob(ctx context.Context, inputFileID string, metadata map[string]string) (string, error)
	// GetStatus returns the current remote view of a job.
	GetStatus(ctx context.Context, jobID string) (*domain.JobSnapshot, error)
	// Download returns the raw content of a remote output file.
	Download(ctx context.Context, fileID string) ([]byte, error)
}
