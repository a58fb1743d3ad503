package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cbsent/internal/batch"
	"cbsent/internal/domain"
	"cbsent/internal/fsutil"
	"cbsent/internal/port"
)

// Outcome summarizes where a resume sweep left the run.
type Outcome string

const (
	// OutcomeEmpty means there are no chunks to work on.
	OutcomeEmpty Outcome = "empty"
	// OutcomeMerged means every chunk completed and the results were merged.
	OutcomeMerged Outcome = "merged"
	// OutcomeWaiting means remote jobs are still running.
	OutcomeWaiting Outcome = "waiting"
	// OutcomePaused means submissions stopped on a quota rejection.
	OutcomePaused Outcome = "paused"
	// OutcomeFailed means failed chunks need operator attention.
	OutcomeFailed Outcome = "failed"
	// OutcomeIncomplete means every chunk completed but some outputs could not be fetched.
	OutcomeIncomplete Outcome = "incomplete"
)

// OrchestratorConfig holds the run layout and resubmission policy.
type OrchestratorConfig struct {
	ChunkDir     string
	ManifestFile string
	ResultsDir   string
	// MaxAttempts caps the remote jobs created per chunk.
	MaxAttempts int
	// PollTimeout bounds how long a waiting resume polls before returning.
	PollTimeout time.Duration
}

// PlanResult describes the chunk files produced by Plan.
type PlanResult struct {
	Chunks      []batch.ChunkFile
	Documents   int
	TotalTokens int
	Written     int
	Rejected    []*domain.EncodingError
}

// ChunkError is a per-chunk failure that did not stop the sweep.
type ChunkError struct {
	Chunk string `json:"chunk"`
	Err   string `json:"error"`
}

// SweepResult reports what a submission sweep did.
type SweepResult struct {
	Submitted []string           `json:"submitted"`
	Paused    *domain.QuotaError `json:"-"`
	Errors    []ChunkError       `json:"errors,omitempty"`
}

// ResumeOptions controls a resume sweep.
type ResumeOptions struct {
	// Wait keeps polling in-progress chunks until they finish or the poll
	// timeout passes.
	Wait bool
	// Resubmit creates new jobs for failed chunks.
	Resubmit bool
}

// ResumeResult reports the outcome of a resume sweep.
type ResumeResult struct {
	SweepResult
	Outcome     Outcome        `json:"outcome"`
	Buckets     domain.Buckets `json:"buckets"`
	Resubmitted []string       `json:"resubmitted,omitempty"`
	Exhausted   []string       `json:"exhausted,omitempty"`
	Merge       *MergeResult   `json:"merge,omitempty"`
}

// Orchestrator drives chunks through their remote lifecycle and merges the
// results once every chunk has completed.
type Orchestrator interface {
	Plan(ctx context.Context, docs []domain.Document) (*PlanResult, error)
	Submit(ctx context.Context) (*SweepResult, error)
	Resume(ctx context.Context, opts ResumeOptions) (*ResumeResult, error)
	Status(ctx context.Context) (*StatusReport, error)
}

type orchestrator struct {
	client   port.JobClient
	store    port.LedgerStore
	poller   *Poller
	merger   MergeService
	notifier port.Notifier
	encoder  *batch.Encoder
	planner  *batch.Planner
	status   StatusService
	cfg      OrchestratorConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator creates an Orchestrator. notifier may be nil.
func NewOrchestrator(
	client port.JobClient,
	store port.LedgerStore,
	poller *Poller,
	merger MergeService,
	notifier port.Notifier,
	encoder *batch.Encoder,
	planner *batch.Planner,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &orchestrator{
		client:   client,
		store:    store,
		poller:   poller,
		merger:   merger,
		notifier: notifier,
		encoder:  encoder,
		planner:  planner,
		status:   NewStatusService(store, cfg.ChunkDir, ""),
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// persistError marks a failed ledger write. It aborts the sweep: no remote
// call may follow a transition that was not persisted.
type persistError struct {
	err error
}

func (e *persistError) Error() string { return "persisting ledger: " + e.err.Error() }
func (e *persistError) Unwrap() error { return e.err }

func (o *orchestrator) persist(ctx context.Context, l *domain.Ledger) error {
	if err := o.store.Save(ctx, l); err != nil {
		return &persistError{err: err}
	}
	return nil
}

func newRunMetadata(now time.Time) *domain.RunMetadata {
	return &domain.RunMetadata{RunID: uuid.New().String(), StartedAt: now, Status: domain.RunStatusPlanned}
}

func isFatal(err error) bool {
	var pe *persistError
	return errors.As(err, &pe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (o *orchestrator) Plan(ctx context.Context, docs []domain.Document) (*PlanResult, error) {
	records, rejected := o.encoder.EncodeValid(docs)
	chunks, total, err := o.planner.Plan(records)
	if err != nil {
		return nil, fmt.Errorf("planning chunks: %w", err)
	}

	if err := os.MkdirAll(o.cfg.ChunkDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating chunk dir: %w", err)
	}
	written, err := batch.WriteChunks(o.cfg.ChunkDir, chunks)
	if err != nil {
		return nil, fmt.Errorf("writing chunk files: %w", err)
	}
	if _, err := batch.WriteManifest(o.cfg.ManifestFile, batch.BuildManifest(docs, chunks)); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	l, err := o.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	created := false
	if l.Metadata == nil {
		l.Metadata = newRunMetadata(o.now())
		created = true
	}
	meta := *l.Metadata
	meta.TotalChunks = len(chunks)
	meta.TotalDocuments = len(records)
	meta.TotalEstimatedTokens = total
	if created || meta != *l.Metadata {
		l.Metadata = &meta
		if err := o.persist(ctx, l); err != nil {
			return nil, err
		}
	}

	files := make([]batch.ChunkFile, 0, len(chunks))
	for _, c := range chunks {
		files = append(files, batch.ChunkFile{Number: c.Number, Name: c.FileName, Path: filepath.Join(o.cfg.ChunkDir, c.FileName)})
		o.logger.Info("chunk planned",
			zap.String("chunk", c.FileName),
			zap.Int("chunk_number", c.Number),
			zap.Int("requests", len(c.Records)),
			zap.Int("estimated_tokens", c.EstimatedTokens),
		)
	}
	o.logger.Info("plan complete",
		zap.String("run_id", meta.RunID),
		zap.Int("chunks", len(chunks)),
		zap.Int("documents", len(records)),
		zap.Int("rejected", len(rejected)),
		zap.Int("estimated_tokens", total),
		zap.Int("files_written", written),
	)
	return &PlanResult{Chunks: files, Documents: len(records), TotalTokens: total, Written: written, Rejected: rejected}, nil
}

func (o *orchestrator) Submit(ctx context.Context) (*SweepResult, error) {
	l, err := o.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	files, err := batch.ListChunkFiles(o.cfg.ChunkDir)
	if err != nil {
		return nil, err
	}
	res := &SweepResult{}
	if err := o.submitPending(ctx, l, files, res); err != nil {
		return res, err
	}
	return res, nil
}

func (o *orchestrator) Status(ctx context.Context) (*StatusReport, error) {
	return o.status.Status(ctx)
}

func (o *orchestrator) Resume(ctx context.Context, opts ResumeOptions) (*ResumeResult, error) {
	l, err := o.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	files, err := batch.ListChunkFiles(o.cfg.ChunkDir)
	if err != nil {
		return nil, err
	}
	res := &ResumeResult{}
	if len(files) == 0 && len(l.Entries) == 0 {
		res.Outcome = OutcomeEmpty
		o.logger.Info("nothing to resume", zap.String("chunk_dir", o.cfg.ChunkDir))
		return res, nil
	}

	if err := o.submitPending(ctx, l, files, &res.SweepResult); err != nil {
		return res, err
	}
	if err := o.refreshAll(ctx, l, res); err != nil {
		return res, err
	}

	names := trackedNames(files, l)
	for {
		res.Buckets = l.Classify(names)
		b := res.Buckets
		o.logger.Info("chunk classification",
			zap.Int("completed", len(b.Completed)),
			zap.Int("in_progress", len(b.InProgress)),
			zap.Int("failed", len(b.Failed)),
			zap.Int("unsubmitted", len(b.Unsubmitted)),
		)

		if b.AllCompleted() {
			return res, o.finish(ctx, l, b.Completed, res)
		}
		if len(b.Failed) > 0 && opts.Resubmit && res.Paused == nil {
			n, err := o.resubmitFailed(ctx, l, b.Failed, res)
			if err != nil {
				return res, err
			}
			if n > 0 {
				continue
			}
		}
		if opts.Wait && len(b.InProgress) > 0 {
			done, err := o.await(ctx, l, b.InProgress, res)
			if err != nil {
				return res, err
			}
			if done {
				continue
			}
		}
		break
	}

	b := res.Buckets
	switch {
	case res.Paused != nil:
		res.Outcome = OutcomePaused
	case len(b.InProgress) > 0 || len(b.Unsubmitted) > 0:
		res.Outcome = OutcomeWaiting
	default:
		res.Outcome = OutcomeFailed
	}
	o.logger.Info("resume finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Strings("in_progress", b.InProgress),
		zap.Strings("failed", b.Failed),
		zap.Strings("unsubmitted", b.Unsubmitted),
	)
	return res, nil
}

// trackedNames merges chunk files on disk with ledger entries, in chunk order.
func trackedNames(files []batch.ChunkFile, l *domain.Ledger) []string {
	numbers := make(map[string]int, len(files)+len(l.Entries))
	for _, f := range files {
		numbers[f.Name] = f.Number
	}
	for name, e := range l.Entries {
		numbers[name] = e.ChunkNumber
	}
	names := make([]string, 0, len(numbers))
	for name := range numbers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if numbers[names[i]] != numbers[names[j]] {
			return numbers[names[i]] < numbers[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// submitPending submits chunk files that have no job yet. A quota rejection
// stops the sweep; other per-chunk errors are collected.
func (o *orchestrator) submitPending(ctx context.Context, l *domain.Ledger, files []batch.ChunkFile, res *SweepResult) error {
	for _, f := range files {
		if e, ok := l.Entry(f.Name); ok && e.Status != domain.ChunkStatusUnsubmitted {
			continue
		}
		if res.Paused != nil {
			return nil
		}
		o.logger.Info("submitting chunk", zap.String("chunk", f.Name), zap.Int("chunk_number", f.Number))
		if err := o.submitChunk(ctx, l, f, res); err != nil {
			if isFatal(err) {
				return err
			}
			continue
		}
		res.Submitted = append(res.Submitted, f.Name)
	}
	return nil
}

// submitChunk uploads a request file and creates its job, persisting the
// upload and the job before any further remote call.
func (o *orchestrator) submitChunk(ctx context.Context, l *domain.Ledger, f batch.ChunkFile, res *SweepResult) error {
	err := o.createJob(ctx, l, f)
	if err == nil || isFatal(err) {
		return err
	}

	var quota *domain.QuotaError
	if errors.As(err, &quota) {
		res.Paused = quota
		o.logger.Warn("quota reached, pausing submissions",
			zap.String("chunk", f.Name),
			zap.Duration("retry_after", quota.RetryAfter),
			zap.Error(err),
		)
		return err
	}
	res.Errors = append(res.Errors, ChunkError{Chunk: f.Name, Err: err.Error()})
	o.logger.Error("chunk submission failed", zap.String("chunk", f.Name), zap.Error(err))
	return err
}

func (o *orchestrator) createJob(ctx context.Context, l *domain.Ledger, f batch.ChunkFile) error {
	records, err := batch.ReadChunkFile(f.Path)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%s: chunk file has no records", f.Name)
	}

	fileID := ""
	if e, ok := l.Entry(f.Name); ok {
		fileID = e.PendingUpload()
	}
	if fileID == "" {
		fileID, err = o.client.UploadRequests(ctx, f.Path)
		if err != nil {
			return fmt.Errorf("uploading %s: %w", f.Name, err)
		}
		if l.Metadata == nil {
			l.Metadata = newRunMetadata(o.now())
		}
		if l.Metadata.Status == domain.RunStatusPlanned {
			l.Metadata.Status = domain.RunStatusSubmitting
		}
		l.RecordUpload(f.Name, f.Number, len(records), fileID, o.now())
		if err := o.persist(ctx, l); err != nil {
			return err
		}
		o.logger.Info("request file uploaded",
			zap.String("chunk", f.Name),
			zap.Int("chunk_number", f.Number),
			zap.String("input_file_id", fileID),
			zap.Int("requests", len(records)),
		)
	}

	jobID, err := o.client.CreateJob(ctx, fileID, map[string]string{
		"run_id":     l.Metadata.RunID,
		"chunk_file": f.Name,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			l.ClearPendingUpload(f.Name, o.now())
			if perr := o.persist(ctx, l); perr != nil {
				return perr
			}
		}
		return fmt.Errorf("creating job for %s: %w", f.Name, err)
	}

	prev := ""
	if e, ok := l.Entry(f.Name); ok {
		prev = e.JobID
	}
	if err := l.RecordSubmission(f.Name, jobID, o.now()); err != nil {
		return err
	}
	l.Metadata.Status = domain.RunStatusRunning
	if err := o.persist(ctx, l); err != nil {
		return err
	}
	o.logger.Info("job created",
		zap.String("chunk", f.Name),
		zap.Int("chunk_number", f.Number),
		zap.String("job_id", jobID),
		zap.String("previous_job_id", prev),
		zap.String("input_file_id", fileID),
	)
	return nil
}

// refreshAll queries every tracked, non-terminal chunk once and persists
// after each query that changed something.
func (o *orchestrator) refreshAll(ctx context.Context, l *domain.Ledger, res *ResumeResult) error {
	for _, name := range l.Names() {
		e, _ := l.Entry(name)
		if e.Status.IsTerminal() || e.JobID == "" {
			continue
		}
		snap, err := o.client.GetStatus(ctx, e.JobID)
		if err != nil {
			if err := o.statusFailed(ctx, l, name, err, res); err != nil {
				return err
			}
			continue
		}
		if err := o.apply(ctx, l, name, snap); err != nil {
			return err
		}
	}
	return nil
}

// statusFailed handles a failed status query. A job unknown to the remote
// service is marked failed so it can be resubmitted; anything else keeps the
// chunk's last known state.
func (o *orchestrator) statusFailed(ctx context.Context, l *domain.Ledger, name string, err error, res *ResumeResult) error {
	if isFatal(err) {
		return err
	}
	e, _ := l.Entry(name)
	if errors.Is(err, domain.ErrNotFound) {
		o.logger.Error("tracked job not found on remote service",
			zap.String("chunk", name),
			zap.Int("chunk_number", e.ChunkNumber),
			zap.String("job_id", e.JobID),
			zap.Error(err),
		)
		if merr := l.MarkFailed(name, "job not found: "+err.Error(), o.now()); merr != nil {
			res.Errors = append(res.Errors, ChunkError{Chunk: name, Err: merr.Error()})
			return nil
		}
		if perr := o.persist(ctx, l); perr != nil {
			return perr
		}
		o.notifyFailure(ctx, name, e)
		return nil
	}
	res.Errors = append(res.Errors, ChunkError{Chunk: name, Err: err.Error()})
	o.logger.Warn("status query failed, keeping last known state",
		zap.String("chunk", name),
		zap.Int("chunk_number", e.ChunkNumber),
		zap.String("job_id", e.JobID),
		zap.String("status", string(e.Status)),
		zap.Error(err),
	)
	return nil
}

// apply folds a snapshot into the ledger and persists it when it changed.
func (o *orchestrator) apply(ctx context.Context, l *domain.Ledger, name string, snap *domain.JobSnapshot) error {
	e, _ := l.Entry(name)
	prev := e.Status
	if _, known := domain.ChunkStatusFromRemote(snap.Status); !known {
		o.logger.Warn("unknown remote job status",
			zap.String("chunk", name),
			zap.String("job_id", snap.JobID),
			zap.String("remote_status", string(snap.Status)),
		)
	}
	changed, err := l.ApplySnapshot(name, snap, o.now())
	if err != nil {
		o.logger.Error("rejected status update",
			zap.String("chunk", name),
			zap.String("job_id", snap.JobID),
			zap.String("remote_status", string(snap.Status)),
			zap.Error(err),
		)
		return nil
	}
	if !changed {
		return nil
	}
	if err := o.persist(ctx, l); err != nil {
		return err
	}
	o.logger.Info("chunk status updated",
		zap.String("chunk", name),
		zap.Int("chunk_number", e.ChunkNumber),
		zap.String("job_id", e.JobID),
		zap.String("from", string(prev)),
		zap.String("to", string(e.Status)),
		zap.Int64("requests_total", e.RequestCounts.Total),
		zap.Int64("requests_completed", e.RequestCounts.Completed),
		zap.Int64("requests_failed", e.RequestCounts.Failed),
	)
	if e.Status != prev && e.Status.IsFailure() {
		o.notifyFailure(ctx, name, e)
	}
	return nil
}

// resubmitFailed creates new jobs for failed chunks that have attempts left
// and returns how many were submitted.
func (o *orchestrator) resubmitFailed(ctx context.Context, l *domain.Ledger, failed []string, res *ResumeResult) (int, error) {
	n := 0
	for _, name := range failed {
		if res.Paused != nil {
			break
		}
		e, _ := l.Entry(name)
		if e.Attempts() >= o.cfg.MaxAttempts {
			if !contains(res.Exhausted, name) {
				res.Exhausted = append(res.Exhausted, name)
				o.logger.Error("chunk exhausted its attempts",
					zap.String("chunk", name),
					zap.Int("chunk_number", e.ChunkNumber),
					zap.String("job_id", e.JobID),
					zap.Int("attempts", e.Attempts()),
				)
			}
			continue
		}

		f := batch.ChunkFile{Number: e.ChunkNumber, Name: name, Path: filepath.Join(o.cfg.ChunkDir, name)}
		if !fsutil.Exists(f.Path) {
			err := fmt.Errorf("%s: %w", name, domain.ErrChunkFileMissing)
			res.Errors = append(res.Errors, ChunkError{Chunk: name, Err: err.Error()})
			o.logger.Error("cannot resubmit chunk, request file missing; re-run plan",
				zap.String("chunk", name),
				zap.String("path", f.Path),
			)
			continue
		}

		o.logger.Info("resubmitting failed chunk",
			zap.String("chunk", name),
			zap.Int("chunk_number", e.ChunkNumber),
			zap.String("previous_job_id", e.JobID),
			zap.String("status", string(e.Status)),
			zap.Int("attempt", e.Attempts()+1),
		)
		if err := o.submitChunk(ctx, l, f, &res.SweepResult); err != nil {
			if isFatal(err) {
				return n, err
			}
			continue
		}
		res.Resubmitted = append(res.Resubmitted, name)
		n++
	}
	return n, nil
}

// await polls in-progress chunks one at a time until each is terminal. It
// reports false when the poll timeout passed or a chunk could not be polled.
func (o *orchestrator) await(ctx context.Context, l *domain.Ledger, names []string, res *ResumeResult) (bool, error) {
	deadline := o.now().Add(o.cfg.PollTimeout)
	done := true
	for _, name := range names {
		e, _ := l.Entry(name)
		for !e.Status.IsTerminal() {
			prev := e.Status
			ev, err := o.poller.Next(ctx, e.JobID, prev, deadline)
			if err != nil {
				if err := o.statusFailed(ctx, l, name, err, res); err != nil {
					return false, err
				}
				if !e.Status.IsTerminal() {
					done = false
				}
				break
			}
			if ev.Snapshot != nil {
				if err := o.apply(ctx, l, name, ev.Snapshot); err != nil {
					return false, err
				}
			}
			if ev.TimedOut {
				o.logger.Info("poll timeout reached",
					zap.String("chunk", name),
					zap.String("job_id", e.JobID),
					zap.String("status", string(e.Status)),
				)
				return false, nil
			}
			if e.Status == prev {
				done = false
				break
			}
		}
	}
	return done, nil
}

// finish downloads every output, merges them and marks the run completed.
func (o *orchestrator) finish(ctx context.Context, l *domain.Ledger, completed []string, res *ResumeResult) error {
	outputs, complete, err := o.download(ctx, l, completed, res)
	if err != nil {
		return err
	}
	if !complete {
		res.Outcome = OutcomeIncomplete
		return nil
	}

	runID := ""
	if l.Metadata != nil {
		runID = l.Metadata.RunID
	}
	merged, err := o.merger.Merge(ctx, MergeInput{RunID: runID, Outputs: outputs})
	if err != nil {
		return fmt.Errorf("merging results: %w", err)
	}
	res.Merge = merged
	res.Outcome = OutcomeMerged

	if l.Metadata == nil || l.Metadata.Status == domain.RunStatusCompleted {
		return nil
	}
	ended := o.now()
	l.Metadata.Status = domain.RunStatusCompleted
	l.Metadata.CompletedAt = &ended
	if err := o.persist(ctx, l); err != nil {
		return err
	}
	if o.notifier != nil {
		summary := port.RunSummary{
			RunID:          runID,
			TotalChunks:    len(completed),
			TotalDocuments: merged.Report.TotalDocuments,
			ValidRows:      merged.Report.Valid,
			InvalidRows:    merged.Report.Invalid,
			MergedCSV:      merged.CSVPath,
			ReportFile:     merged.ReportPath,
		}
		if err := o.notifier.NotifyRunCompleted(ctx, summary); err != nil {
			o.logger.Error("run notification failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return nil
}

// download fetches the output and error files of every completed chunk that
// has no local copy yet. It reports false when a fetch failed; the next resume
// retries it. A chunk with neither file contributes no output, so the merge
// reports its documents as missing.
func (o *orchestrator) download(ctx context.Context, l *domain.Ledger, names []string, res *ResumeResult) ([]ChunkOutput, bool, error) {
	if err := os.MkdirAll(o.cfg.ResultsDir, 0o755); err != nil {
		return nil, false, fmt.Errorf("creating results dir: %w", err)
	}
	outputs := make([]ChunkOutput, 0, len(names))
	complete := true
	for _, name := range names {
		e, _ := l.Entry(name)
		if e.OutputFileID == "" && e.ErrorFileID == "" {
			o.logger.Warn("completed chunk has no output",
				zap.String("chunk", name),
				zap.Int("chunk_number", e.ChunkNumber),
				zap.String("job_id", e.JobID),
			)
			continue
		}

		files := []struct {
			id, path, recorded string
			record             func(string, string, time.Time) bool
		}{
			{e.OutputFileID, filepath.Join(o.cfg.ResultsDir, batch.ResultFileName(e.ChunkNumber)), e.OutputFile, l.RecordDownload},
			{e.ErrorFileID, filepath.Join(o.cfg.ResultsDir, batch.ErrorFileName(e.ChunkNumber)), e.ErrorFile, l.RecordErrorDownload},
		}
		for _, f := range files {
			if f.id == "" {
				continue
			}
			ok, err := o.fetch(ctx, l, name, f.id, f.path, f.recorded, f.record, res)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				complete = false
				continue
			}
			outputs = append(outputs, ChunkOutput{ChunkFile: name, Path: f.path})
		}
	}
	return outputs, complete, nil
}

// fetch downloads one remote file of a chunk to path unless the ledger
// already records that local copy.
func (o *orchestrator) fetch(ctx context.Context, l *domain.Ledger, name, fileID, path, recorded string,
	record func(string, string, time.Time) bool, res *ResumeResult) (bool, error) {
	if recorded == path && fsutil.Exists(path) {
		return true, nil
	}
	e, _ := l.Entry(name)
	data, err := o.client.Download(ctx, fileID)
	if err != nil {
		if isFatal(err) {
			return false, err
		}
		res.Errors = append(res.Errors, ChunkError{Chunk: name, Err: err.Error()})
		o.logger.Error("download failed",
			zap.String("chunk", name),
			zap.String("job_id", e.JobID),
			zap.String("file_id", fileID),
			zap.Error(err),
		)
		return false, nil
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return false, fmt.Errorf("writing %s of %s: %w", filepath.Base(path), name, err)
	}
	if record(name, path, o.now()) {
		if err := o.persist(ctx, l); err != nil {
			return false, err
		}
	}
	o.logger.Info("file downloaded",
		zap.String("chunk", name),
		zap.String("job_id", e.JobID),
		zap.String("file_id", fileID),
		zap.String("path", path),
		zap.Int("bytes", len(data)),
	)
	return true, nil
}

func (o *orchestrator) notifyFailure(ctx context.Context, name string, e *domain.LedgerEntry) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.NotifyChunkFailed(ctx, port.ChunkFailure{
		ChunkName: name,
		JobID:     e.JobID,
		Status:    string(e.Status),
		Detail:    e.Error,
		Attempts:  e.Attempts(),
	})
	if err != nil {
		o.logger.Error("failure notification failed", zap.String("chunk", name), zap.Error(err))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
