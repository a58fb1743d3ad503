package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cbsent/internal/batch"
	"cbsent/internal/domain"
	"cbsent/internal/fsutil"
	"cbsent/internal/port"
	"cbsent/internal/validator"
)

// ChunkView is one chunk as seen by the ledger and the chunk directory.
type ChunkView struct {
	Name   string              `json:"name"`
	OnDisk bool                `json:"on_disk"`
	Entry  *domain.LedgerEntry `json:"entry,omitempty"`
}

// StatusReport is a read-only snapshot of a run.
type StatusReport struct {
	Metadata *domain.RunMetadata `json:"metadata,omitempty"`
	Chunks   []ChunkView         `json:"chunks"`
	Buckets  domain.Buckets      `json:"buckets"`
}

// StatusService reads run state without contacting the remote service.
type StatusService interface {
	Status(ctx context.Context) (*StatusReport, error)
	Ledger(ctx context.Context) (*domain.Ledger, error)
	Chunk(ctx context.Context, name string) (*ChunkView, error)
	Report(ctx context.Context) (*validator.Report, error)
}

type statusService struct {
	store      port.LedgerStore
	chunkDir   string
	reportFile string
}

// NewStatusService creates a StatusService.
func NewStatusService(store port.LedgerStore, chunkDir, reportFile string) StatusService {
	return &statusService{store: store, chunkDir: chunkDir, reportFile: reportFile}
}

func (s *statusService) Ledger(ctx context.Context) (*domain.Ledger, error) {
	return s.store.Load(ctx)
}

func (s *statusService) Status(ctx context.Context) (*StatusReport, error) {
	l, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	files, err := batch.ListChunkFiles(s.chunkDir)
	if err != nil {
		return nil, err
	}
	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		onDisk[f.Name] = true
	}

	names := trackedNames(files, l)
	report := &StatusReport{
		Metadata: l.Metadata,
		Chunks:   make([]ChunkView, 0, len(names)),
		Buckets:  l.Classify(names),
	}
	for _, name := range names {
		e, _ := l.Entry(name)
		report.Chunks = append(report.Chunks, ChunkView{Name: name, OnDisk: onDisk[name], Entry: e})
	}
	return report, nil
}

func (s *statusService) Chunk(ctx context.Context, name string) (*ChunkView, error) {
	l, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	e, ok := l.Entry(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrChunkNotTracked)
	}
	return &ChunkView{Name: name, OnDisk: fsutil.Exists(filepath.Join(s.chunkDir, name)), Entry: e}, nil
}

func (s *statusService) Report(_ context.Context) (*validator.Report, error) {
	data, err := os.ReadFile(s.reportFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrReportNotFound
		}
		return nil, fmt.Errorf("reading validation report: %w", err)
	}
	var r validator.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding validation report: %w", err)
	}
	return &r, nil
}
