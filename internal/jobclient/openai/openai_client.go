package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"go.uber.org/zap"

	"cbsent/internal/config"
	"cbsent/internal/domain"
	"cbsent/internal/jobclient"
	"cbsent/internal/port"
)

// Client implements port.JobClient on the OpenAI Files and Batches APIs.
type Client struct {
	api      openaisdk.Client
	endpoint openaisdk.BatchNewParamsEndpoint
	window   openaisdk.BatchNewParamsCompletionWindow
	logger   *zap.Logger
	now      func() time.Time
}

// NewClient creates an OpenAI batch job client. SDK retries default to off so
// that retry policy stays with the orchestrator.
func NewClient(cfg *config.OpenAIConfig, logger *zap.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSecs > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.TimeoutSecs)*time.Second))
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = string(openaisdk.BatchNewParamsEndpointV1ChatCompletions)
	}
	window := cfg.CompletionWindow
	if window == "" {
		window = string(openaisdk.BatchNewParamsCompletionWindow24h)
	}

	return &Client{
		api:      openaisdk.NewClient(opts...),
		endpoint: openaisdk.BatchNewParamsEndpoint(endpoint),
		window:   openaisdk.BatchNewParamsCompletionWindow(window),
		logger:   logger,
		now:      time.Now,
	}
}

// NewJobClient adapts NewClient to jobclient.ProviderFactory.
func NewJobClient(cfg *config.OpenAIConfig, logger *zap.Logger) (port.JobClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	return NewClient(cfg, logger), nil
}

func (c *Client) UploadRequests(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", path, domain.ErrChunkFileMissing)
		}
		return "", fmt.Errorf("opening request file: %w", err)
	}
	defer f.Close()

	obj, err := c.api.Files.New(ctx, openaisdk.FileNewParams{
		File:    f,
		Purpose: openaisdk.FilePurposeBatch,
	})
	if err != nil {
		return "", c.normalize("upload request file", "file", path, err)
	}
	c.logger.Debug("uploaded request file", zap.String("path", path), zap.String("file_id", obj.ID))
	return obj.ID, nil
}

func (c *Client) CreateJob(ctx context.Context, inputFileID string, metadata map[string]string) (string, error) {
	params := openaisdk.BatchNewParams{
		InputFileID:      inputFileID,
		Endpoint:         c.endpoint,
		CompletionWindow: c.window,
	}
	if len(metadata) > 0 {
		params.Metadata = shared.Metadata(metadata)
	}

	b, err := c.api.Batches.New(ctx, params)
	if err != nil {
		return "", c.normalize("create job", "file", inputFileID, err)
	}
	return b.ID, nil
}

func (c *Client) GetStatus(ctx context.Context, jobID string) (*domain.JobSnapshot, error) {
	b, err := c.api.Batches.Get(ctx, jobID)
	if err != nil {
		return nil, c.normalize("get job status", "job", jobID, err)
	}

	snap := &domain.JobSnapshot{
		JobID:  b.ID,
		Status: domain.RemoteStatus(b.Status),
		RequestCounts: domain.RequestCounts{
			Total:     b.RequestCounts.Total,
			Completed: b.RequestCounts.Completed,
			Failed:    b.RequestCounts.Failed,
		},
		OutputFileID: b.OutputFileID,
		ErrorFileID:  b.ErrorFileID,
	}
	for _, e := range b.Errors.Data {
		snap.Errors = append(snap.Errors, e.Code+": "+e.Message)
	}
	return snap, nil
}

func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	if fileID == "" {
		return nil, &domain.NotFoundError{Kind: "file", ID: fileID, Err: errors.New("job has no such file")}
	}
	resp, err := c.api.Files.Content(ctx, fileID)
	if err != nil {
		return nil, c.normalize("download file", "file", fileID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransportError("download file", err)
	}
	return data, nil
}

// normalize maps SDK failures onto the domain error taxonomy. Caller
// cancellation is returned unchanged.
func (c *Client) normalize(op, kind, id string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openaisdk.Error
	if !errors.As(err, &apiErr) {
		return domain.NewTransportError(op, err)
	}

	switch {
	case apiErr.StatusCode == http.StatusNotFound:
		return &domain.NotFoundError{Kind: kind, ID: id, Err: err}
	case apiErr.StatusCode == http.StatusTooManyRequests,
		apiErr.StatusCode == http.StatusPaymentRequired,
		apiErr.Code == "insufficient_quota",
		apiErr.Code == "billing_hard_limit_reached":
		retryAfter := 0
		if apiErr.Response != nil {
			retryAfter = jobclient.ParseRetryAfterHeader(apiErr.Response.Header.Get("Retry-After"), c.now())
		}
		c.logger.Warn("remote quota exceeded",
			zap.String("op", op),
			zap.Int("status_code", apiErr.StatusCode),
			zap.String("code", apiErr.Code),
			zap.Int("retry_after_secs", retryAfter),
		)
		return domain.NewQuotaError(op, err, retryAfter)
	default:
		return domain.NewTransportError(op, err)
	}
}
