package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cbsent/internal/batch"
	"cbsent/internal/config"
	"cbsent/internal/jobclient"
	"cbsent/internal/jobclient/fake"
	"cbsent/internal/jobclient/openai"
	"cbsent/internal/ledger"
	"cbsent/internal/notify/noop"
	"cbsent/internal/notify/ses"
	"cbsent/internal/port"
	"cbsent/internal/repository/postgres"
	"cbsent/internal/service"
	s3storage "cbsent/internal/storage/s3"
)

func init() {
	jobclient.RegisterProvider("openai", openai.NewJobClient)
	jobclient.RegisterProvider("fake", fake.NewJobClient)
}

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	orch    service.Orchestrator
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	client, err := jobclient.New(cfg.JobClient.Provider, &cfg.OpenAI, logger)
	if err != nil {
		return nil, err
	}

	var notifier port.Notifier
	switch cfg.Email.Provider {
	case "ses":
		notifier, err = ses.NewSESNotifier(ctx, &cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("initializing SES notifier: %w", err)
		}
	default:
		notifier = noop.NewNoopNotifier(logger)
	}

	var storage port.ObjectStorage
	if cfg.S3.Bucket != "" {
		storage, err = s3storage.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("initializing S3 client: %w", err)
		}
	}

	var sink port.ResultSink
	if cfg.DB.Enabled {
		db, err := postgres.NewDB(&cfg.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		sink = postgres.NewResultRepo(db)
	}

	est := batch.NewEstimator(cfg.Chunking.BytesPerToken)
	encoder := batch.NewEncoder(batch.EncoderConfig{
		Model:             cfg.OpenAI.Model,
		Temperature:       cfg.OpenAI.Temperature,
		Endpoint:          cfg.OpenAI.Endpoint,
		MaxDocumentTokens: cfg.Chunking.MaxDocumentTokens,
	}, est, logger)
	planner := batch.NewPlanner(cfg.Chunking.MaxTokensPerChunk, est, logger)
	poller := service.NewPoller(client, service.PollerConfig{
		Interval:           cfg.Poll.Interval(),
		MaxTransportErrors: cfg.Poll.MaxTransportErrors,
	}, logger)
	merger := service.NewMergeService(service.MergeConfig{
		ManifestFile: cfg.Paths.ManifestFile,
		MergedCSV:    cfg.Paths.MergedCSV,
		MergedXLSX:   cfg.Paths.MergedXLSX,
		ReportFile:   cfg.Paths.ReportFile,
		MirrorBucket: cfg.S3.Bucket,
		MirrorPrefix: cfg.S3.Prefix,
	}, sink, storage, logger)

	a.orch = service.NewOrchestrator(
		client,
		ledger.NewFileStore(cfg.Paths.LedgerFile),
		poller,
		merger,
		notifier,
		encoder,
		planner,
		service.OrchestratorConfig{
			ChunkDir:     cfg.Paths.ChunkDir,
			ManifestFile: cfg.Paths.ManifestFile,
			ResultsDir:   cfg.Paths.ResultsDir,
			MaxAttempts:  cfg.Resume.MaxAttempts,
			PollTimeout:  cfg.Poll.Timeout(),
		},
		logger,
	)
	return a, nil
}

// Close releases the resources opened by newApp.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}
