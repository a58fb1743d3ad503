package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cbsent/internal/batch"
	"cbsent/internal/domain"
	"cbsent/internal/jobclient/fake"
	"cbsent/internal/port"
	"cbsent/internal/service"
	"cbsent/internal/validator"
	"cbsent/mocks"
)

func outputLine(t *testing.T, customID, content string) string {
	t.Helper()
	line := map[string]interface{}{
		"custom_id": customID,
		"response": map[string]interface{}{
			"status_code": 200,
			"body": map[string]interface{}{
				"choices": []interface{}{
					map[string]interface{}{"message": map[string]interface{}{"content": content}},
				},
			},
		},
	}
	b, err := json.Marshal(line)
	require.NoError(t, err)
	return string(b)
}

func withScore(t *testing.T, customID string, score int) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(fake.DefaultResponse(customID)), &resp))
	resp["hawkish_dovish_score"] = score
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(b)
}

type mergeFixture struct {
	dir    string
	cfg    service.MergeConfig
	input  service.MergeInput
	chunk1 string
	chunk2 string
}

// newMergeFixture lays out four documents over two chunks. chunk01 holds a
// valid result, an out-of-range result, a garbage line and a result for an
// unknown document. chunk02 holds a valid result twice and nothing for the
// fourth document.
func newMergeFixture(t *testing.T) *mergeFixture {
	t.Helper()
	dir := t.TempDir()
	manifest := []domain.ManifestEntry{
		{CorrelationID: "speech_a", Author: "Lagarde", Institution: "ECB", Date: "2023-03-16", ChunkFile: chunk1},
		{CorrelationID: "speech_b", Author: "Powell", Institution: "Federal Reserve", Date: "2023-03-22", ChunkFile: chunk1},
		{CorrelationID: "speech_c", Author: "Bailey", Institution: "Bank of England", Date: "2023-03-23", ChunkFile: chunk2},
		{CorrelationID: "speech_d", Author: "Ueda", Institution: "Bank of Japan", Date: "2023-04-28", ChunkFile: chunk2},
	}
	manifestPath := filepath.Join(dir, "chunks", "documents.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(manifestPath), 0o755))
	_, err := batch.WriteManifest(manifestPath, manifest)
	require.NoError(t, err)

	out1 := strings.Join([]string{
		outputLine(t, "speech_b", withScore(t, "speech_b", 150)),
		"{not json",
		outputLine(t, "speech_zz", fake.DefaultResponse("speech_zz")),
		outputLine(t, "speech_a", fake.DefaultResponse("speech_a")),
	}, "\n") + "\n"
	out2 := strings.Join([]string{
		outputLine(t, "speech_c", fake.DefaultResponse("speech_c")),
		outputLine(t, "speech_c", fake.DefaultResponse("speech_c")),
	}, "\n") + "\n"

	results := filepath.Join(dir, "results")
	require.NoError(t, os.MkdirAll(results, 0o755))
	p1 := filepath.Join(results, "chunk01_results.jsonl")
	p2 := filepath.Join(results, "chunk02_results.jsonl")
	require.NoError(t, os.WriteFile(p1, []byte(out1), 0o644))
	require.NoError(t, os.WriteFile(p2, []byte(out2), 0o644))

	return &mergeFixture{
		dir: dir,
		cfg: service.MergeConfig{
			ManifestFile: manifestPath,
			MergedCSV:    filepath.Join(results, "merged_results.csv"),
			MergedXLSX:   filepath.Join(results, "merged_results.xlsx"),
			ReportFile:   filepath.Join(results, "validation_report.json"),
		},
		input: service.MergeInput{
			RunID:   "run-1",
			Outputs: []service.ChunkOutput{{ChunkFile: chunk1, Path: p1}, {ChunkFile: chunk2, Path: p2}},
		},
		chunk1: p1,
		chunk2: p2,
	}
}

func TestMergeService_Merge(t *testing.T) {
	f := newMergeFixture(t)
	svc := service.NewMergeService(f.cfg, nil, nil, zap.NewNop())

	res, err := svc.Merge(context.Background(), f.input)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rows)
	rep := res.Report
	assert.Equal(t, 4, rep.TotalDocuments)
	assert.Equal(t, 2, rep.Valid)
	assert.Equal(t, 2, rep.Invalid)
	assert.Equal(t, 0.5, rep.ValidationRate)
	assert.Equal(t, map[string]int{
		validator.ReasonOutOfRange:         1,
		validator.ReasonMissingResult:      1,
		validator.ReasonMalformedJSON:      1,
		validator.ReasonUnknownCorrelation: 1,
		validator.ReasonDuplicateResult:    1,
	}, rep.ReasonCounts)

	require.Len(t, rep.InvalidRecords, 2)
	assert.Equal(t, "speech_b", rep.InvalidRecords[0].CorrelationID)
	assert.Equal(t, chunk1, rep.InvalidRecords[0].ChunkFile)
	assert.Equal(t, "hawkish_dovish_score", rep.InvalidRecords[0].Issues[0].Field)
	assert.Equal(t, "speech_d", rep.InvalidRecords[1].CorrelationID)
	assert.Len(t, rep.Unmatched, 3)

	csvData, err := os.ReadFile(f.cfg.MergedCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(csvData), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "speech_a,Lagarde,ECB,2023-03-16,"), "rows follow manifest order")
	assert.True(t, strings.HasPrefix(lines[2], "speech_c,Bailey,Bank of England,2023-03-23,"))
	assert.True(t, strings.HasSuffix(lines[2], ","+chunk2))

	assert.Equal(t, f.cfg.MergedXLSX, res.XLSXPath)
	assert.FileExists(t, f.cfg.MergedXLSX)
	assert.Zero(t, res.SinkRows)
	assert.Empty(t, res.Mirrored)
}

func TestMergeService_OutputIsByteStable(t *testing.T) {
	f := newMergeFixture(t)
	svc := service.NewMergeService(f.cfg, nil, nil, zap.NewNop())

	_, err := svc.Merge(context.Background(), f.input)
	require.NoError(t, err)
	csv1, _ := os.ReadFile(f.cfg.MergedCSV)
	report1, _ := os.ReadFile(f.cfg.ReportFile)

	_, err = svc.Merge(context.Background(), f.input)
	require.NoError(t, err)
	csv2, _ := os.ReadFile(f.cfg.MergedCSV)
	report2, _ := os.ReadFile(f.cfg.ReportFile)

	assert.Equal(t, csv1, csv2)
	assert.Equal(t, report1, report2)
}

func TestMergeService_MissingInputs(t *testing.T) {
	f := newMergeFixture(t)

	cfg := f.cfg
	cfg.ManifestFile = filepath.Join(f.dir, "missing.jsonl")
	_, err := service.NewMergeService(cfg, nil, nil, zap.NewNop()).Merge(context.Background(), f.input)
	assert.Error(t, err)

	input := f.input
	input.Outputs = append(input.Outputs, service.ChunkOutput{ChunkFile: "chunk03_input.jsonl", Path: filepath.Join(f.dir, "nope.jsonl")})
	_, err = service.NewMergeService(f.cfg, nil, nil, zap.NewNop()).Merge(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk03_input.jsonl")
}

func TestMergeService_ExportsRowsToSink(t *testing.T) {
	f := newMergeFixture(t)
	sink := new(mocks.MockResultSink)
	sink.On("UpsertRows", mock.Anything, "run-1", mock.MatchedBy(func(rows []domain.ResultRow) bool {
		return len(rows) == 2 && rows[0].CorrelationID == "speech_a" && rows[1].CorrelationID == "speech_c"
	})).Return(2, nil).Once()

	res, err := service.NewMergeService(f.cfg, sink, nil, zap.NewNop()).Merge(context.Background(), f.input)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SinkRows)
	sink.AssertExpectations(t)
}

func TestMergeService_SinkFailureIsNotFatal(t *testing.T) {
	f := newMergeFixture(t)
	sink := new(mocks.MockResultSink)
	sink.On("UpsertRows", mock.Anything, "run-1", mock.Anything).Return(0, errors.New("connection refused"))

	res, err := service.NewMergeService(f.cfg, sink, nil, zap.NewNop()).Merge(context.Background(), f.input)
	require.NoError(t, err)
	assert.Zero(t, res.SinkRows)
	assert.FileExists(t, f.cfg.MergedCSV)
}

func TestMergeService_MirrorsArtifacts(t *testing.T) {
	f := newMergeFixture(t)
	cfg := f.cfg
	cfg.MirrorBucket = "cbsent-artifacts"
	cfg.MirrorPrefix = "runs"

	storage := new(mocks.MockObjectStorage)
	storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Key == "runs/run-1/validation_report.json"
	})).Return(nil, errors.New("access denied")).Once()
	storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Bucket == "cbsent-artifacts" && in.Size > 0
	})).Return(&port.UploadOutput{}, nil)

	res, err := service.NewMergeService(cfg, nil, storage, zap.NewNop()).Merge(context.Background(), f.input)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"runs/run-1/documents.jsonl",
		"runs/run-1/chunk01_results.jsonl",
		"runs/run-1/chunk02_results.jsonl",
		"runs/run-1/merged_results.csv",
		"runs/run-1/merged_results.xlsx",
	}, res.Mirrored)

	var csvUpload port.UploadInput
	for _, call := range storage.Calls {
		in := call.Arguments.Get(1).(port.UploadInput)
		if in.Key == "runs/run-1/merged_results.csv" {
			csvUpload = in
		}
	}
	assert.Equal(t, "text/csv", csvUpload.ContentType)
	body := new(bytes.Buffer)
	_, err = body.ReadFrom(csvUpload.Body)
	require.NoError(t, err)
	onDisk, _ := os.ReadFile(f.cfg.MergedCSV)
	assert.Equal(t, onDisk, body.Bytes())
}
