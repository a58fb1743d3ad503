package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"cbsent/internal/batch"
	"cbsent/internal/csvexport"
	"cbsent/internal/domain"
	"cbsent/internal/fsutil"
	"cbsent/internal/port"
	"cbsent/internal/validator"
)

// MergeConfig holds the merge inputs and outputs.
type MergeConfig struct {
	ManifestFile string
	MergedCSV    string
	MergedXLSX   string
	ReportFile   string
	// MirrorBucket enables the artifact mirror when set.
	MirrorBucket string
	MirrorPrefix string
}

// ChunkOutput is a downloaded results file of a completed chunk.
type ChunkOutput struct {
	ChunkFile string
	Path      string
}

// MergeInput lists the outputs to merge, in chunk order.
type MergeInput struct {
	RunID   string
	Outputs []ChunkOutput
}

// MergeResult describes what a merge produced.
type MergeResult struct {
	Rows       int               `json:"rows"`
	Report     *validator.Report `json:"report"`
	CSVPath    string            `json:"csv_path"`
	XLSXPath   string            `json:"xlsx_path,omitempty"`
	ReportPath string            `json:"report_path"`
	SinkRows   int               `json:"sink_rows,omitempty"`
	Mirrored   []string          `json:"mirrored,omitempty"`
}

// MergeService joins chunk outputs with the document manifest, validates
// every result and writes the merged table.
type MergeService interface {
	Merge(ctx context.Context, input MergeInput) (*MergeResult, error)
}

type mergeService struct {
	cfg     MergeConfig
	sink    port.ResultSink
	storage port.ObjectStorage
	logger  *zap.Logger
}

// NewMergeService creates a MergeService. sink and storage are optional.
func NewMergeService(cfg MergeConfig, sink port.ResultSink, storage port.ObjectStorage, logger *zap.Logger) MergeService {
	return &mergeService{cfg: cfg, sink: sink, storage: storage, logger: logger}
}

type mergedResult struct {
	row    *domain.ResultRow
	issues []validator.Issue
}

func (s *mergeService) Merge(ctx context.Context, input MergeInput) (*MergeResult, error) {
	manifest, err := batch.ReadManifest(s.cfg.ManifestFile)
	if err != nil {
		return nil, err
	}
	index := make(map[string]domain.ManifestEntry, len(manifest))
	for _, m := range manifest {
		index[m.CorrelationID] = m
	}

	report := validator.NewReportBuilder()
	results := make(map[string]*mergedResult, len(manifest))

	for _, out := range input.Outputs {
		data, err := os.ReadFile(out.Path)
		if err != nil {
			return nil, fmt.Errorf("reading results of %s: %w", out.ChunkFile, err)
		}
		records, issues := validator.ParseOutput(data)
		for _, issue := range issues {
			issue.Message = out.ChunkFile + ": " + issue.Message
			report.AddUnmatched(issue)
			s.logger.Warn("unreadable output line", zap.String("chunk_file", out.ChunkFile), zap.String("issue", issue.String()))
		}

		for i := range records {
			rec := &records[i]
			meta, ok := index[rec.CorrelationID]
			if !ok {
				report.AddUnmatched(validator.Issue{
					Reason:  validator.ReasonUnknownCorrelation,
					Field:   "custom_id",
					Message: fmt.Sprintf("%s: %s is not in the manifest", out.ChunkFile, rec.CorrelationID),
				})
				continue
			}
			if _, dup := results[rec.CorrelationID]; dup {
				report.AddUnmatched(validator.Issue{
					Reason:  validator.ReasonDuplicateResult,
					Field:   "custom_id",
					Message: fmt.Sprintf("%s: second result for %s ignored", out.ChunkFile, rec.CorrelationID),
				})
				continue
			}

			resp, problems := validator.CheckRecord(rec)
			if len(problems) > 0 {
				results[rec.CorrelationID] = &mergedResult{issues: problems}
				s.logger.Debug("result rejected",
					zap.String("correlation_id", rec.CorrelationID),
					zap.String("chunk_file", out.ChunkFile),
					zap.String("reason", problems[0].Reason),
				)
				continue
			}
			row := domain.NewResultRow(meta, resp)
			results[rec.CorrelationID] = &mergedResult{row: &row}
		}
	}

	rows := make([]domain.ResultRow, 0, len(manifest))
	for _, m := range manifest {
		r, ok := results[m.CorrelationID]
		switch {
		case !ok:
			report.AddInvalid(m.CorrelationID, m.ChunkFile, []validator.Issue{{
				Reason:  validator.ReasonMissingResult,
				Message: "no result line for document",
			}})
		case r.row != nil:
			rows = append(rows, *r.row)
			report.AddValid(*r.row)
		default:
			report.AddInvalid(m.CorrelationID, m.ChunkFile, r.issues)
		}
	}
	rep := report.Build()

	result := &MergeResult{
		Rows:       len(rows),
		Report:     rep,
		CSVPath:    s.cfg.MergedCSV,
		ReportPath: s.cfg.ReportFile,
	}
	if err := s.writeOutputs(rows, rep, result); err != nil {
		return nil, err
	}

	s.logger.Info("merge complete",
		zap.String("run_id", input.RunID),
		zap.Int("documents", rep.TotalDocuments),
		zap.Int("valid", rep.Valid),
		zap.Int("invalid", rep.Invalid),
		zap.Float64("validation_rate", rep.ValidationRate),
	)

	s.exportRows(ctx, input.RunID, rows, result)
	s.mirror(ctx, input, result)
	return result, nil
}

func (s *mergeService) writeOutputs(rows []domain.ResultRow, rep *validator.Report, result *MergeResult) error {
	csvData, err := csvexport.Encode(rows)
	if err != nil {
		return fmt.Errorf("encoding merged csv: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.cfg.MergedCSV, csvData, 0o644); err != nil {
		return fmt.Errorf("writing merged csv: %w", err)
	}

	if s.cfg.MergedXLSX != "" {
		xlsxData, err := csvexport.EncodeXLSX(rows)
		if err != nil {
			return fmt.Errorf("encoding merged xlsx: %w", err)
		}
		if err := fsutil.WriteFileAtomic(s.cfg.MergedXLSX, xlsxData, 0o644); err != nil {
			return fmt.Errorf("writing merged xlsx: %w", err)
		}
		result.XLSXPath = s.cfg.MergedXLSX
	}

	reportData, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding validation report: %w", err)
	}
	reportData = append(reportData, '\n')
	if err := fsutil.WriteFileAtomic(s.cfg.ReportFile, reportData, 0o644); err != nil {
		return fmt.Errorf("writing validation report: %w", err)
	}
	return nil
}

// exportRows hands the rows to the result sink. Failures are logged only.
func (s *mergeService) exportRows(ctx context.Context, runID string, rows []domain.ResultRow, result *MergeResult) {
	if s.sink == nil || len(rows) == 0 {
		return
	}
	n, err := s.sink.UpsertRows(ctx, runID, rows)
	if err != nil {
		s.logger.Error("result sink failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	result.SinkRows = n
}

// mirror copies the run artifacts to object storage. Failures are logged only.
func (s *mergeService) mirror(ctx context.Context, input MergeInput, result *MergeResult) {
	if s.storage == nil || s.cfg.MirrorBucket == "" {
		return
	}
	runID := input.RunID
	files := []string{s.cfg.ManifestFile}
	for _, out := range input.Outputs {
		files = append(files, out.Path)
	}
	files = append(files, result.CSVPath, result.ReportPath)
	if result.XLSXPath != "" {
		files = append(files, result.XLSXPath)
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			s.logger.Error("mirror read failed", zap.String("file", f), zap.Error(err))
			continue
		}
		key := path.Join(s.cfg.MirrorPrefix, runID, filepath.Base(f))
		_, err = s.storage.Upload(ctx, port.UploadInput{
			Bucket:      s.cfg.MirrorBucket,
			Key:         key,
			Body:        bytes.NewReader(data),
			ContentType: contentType(f),
			Size:        int64(len(data)),
		})
		if err != nil {
			s.logger.Error("mirror upload failed", zap.String("key", key), zap.Error(err))
			continue
		}
		result.Mirrored = append(result.Mirrored, key)
	}
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
