package handler_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cbsent/internal/domain"
	"cbsent/internal/handler"
	"cbsent/internal/service"
	"cbsent/internal/validator"
	"cbsent/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLedgerHandler() (*handler.LedgerHandler, *mocks.MockStatusService) {
	mockSvc := new(mocks.MockStatusService)
	return handler.NewLedgerHandler(mockSvc), mockSvc
}

func serve(h gin.HandlerFunc, route, target string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET(route, h)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, target, http.NoBody)
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.APIResponse {
	t.Helper()
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func sampleStatus() *service.StatusReport {
	report := &service.StatusReport{
		Metadata: &domain.RunMetadata{RunID: "run-1", Status: domain.RunStatusRunning, TotalChunks: 5},
	}
	statuses := []domain.ChunkStatus{
		domain.ChunkStatusCompleted, domain.ChunkStatusCompleted, domain.ChunkStatusFailed, domain.ChunkStatusInProgress,
	}
	for i, s := range statuses {
		name := fmt.Sprintf("chunk%02d_input.jsonl", i+1)
		report.Chunks = append(report.Chunks, service.ChunkView{
			Name:   name,
			OnDisk: true,
			Entry:  &domain.LedgerEntry{ChunkNumber: i + 1, Status: s, JobID: fmt.Sprintf("batch_%d", i+1)},
		})
	}
	report.Chunks = append(report.Chunks, service.ChunkView{Name: "chunk05_input.jsonl", OnDisk: true})
	return report
}

func TestLedgerHandler_GetStatus(t *testing.T) {
	h, mockSvc := newLedgerHandler()
	mockSvc.On("Status", mock.Anything).Return(sampleStatus(), nil)

	w := serve(h.GetStatus, "/api/v1/status", "/api/v1/status")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "run-1", data["metadata"].(map[string]interface{})["run_id"])
	assert.Len(t, data["chunks"], 5)
	mockSvc.AssertExpectations(t)
}

func TestLedgerHandler_GetStatus_CorruptLedger(t *testing.T) {
	h, mockSvc := newLedgerHandler()
	mockSvc.On("Status", mock.Anything).Return(nil, fmt.Errorf("reading ledger: %w", domain.ErrLedgerCorrupt))

	w := serve(h.GetStatus, "/api/v1/status", "/api/v1/status")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "LEDGER_CORRUPT", resp.Error.Code)
}

func TestLedgerHandler_GetLedger(t *testing.T) {
	h, mockSvc := newLedgerHandler()
	l := domain.NewLedger()
	l.Metadata = &domain.RunMetadata{RunID: "run-1", Status: domain.RunStatusCompleted}
	l.Entries["chunk01_input.jsonl"] = &domain.LedgerEntry{ChunkNumber: 1, Status: domain.ChunkStatusCompleted, JobID: "batch_1"}
	mockSvc.On("Ledger", mock.Anything).Return(l, nil)

	w := serve(h.GetLedger, "/api/v1/ledger", "/api/v1/ledger")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Contains(t, data, "_metadata")
	entry := data["chunk01_input.jsonl"].(map[string]interface{})
	assert.Equal(t, "batch_1", entry["job_id"])
}

func TestLedgerHandler_ListChunks(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantNames []string
		wantTotal float64
	}{
		{
			name:      "all",
			target:    "/api/v1/chunks",
			wantCode:  http.StatusOK,
			wantNames: []string{"chunk01_input.jsonl", "chunk02_input.jsonl", "chunk03_input.jsonl", "chunk04_input.jsonl", "chunk05_input.jsonl"},
			wantTotal: 5,
		},
		{
			name:      "filtered by status",
			target:    "/api/v1/chunks?status=completed",
			wantCode:  http.StatusOK,
			wantNames: []string{"chunk01_input.jsonl", "chunk02_input.jsonl"},
			wantTotal: 2,
		},
		{
			name:      "files without entries are unsubmitted",
			target:    "/api/v1/chunks?status=unsubmitted",
			wantCode:  http.StatusOK,
			wantNames: []string{"chunk05_input.jsonl"},
			wantTotal: 1,
		},
		{
			name:      "paginated",
			target:    "/api/v1/chunks?offset=3&limit=1",
			wantCode:  http.StatusOK,
			wantNames: []string{"chunk04_input.jsonl"},
			wantTotal: 5,
		},
		{
			name:      "offset past the end",
			target:    "/api/v1/chunks?offset=50",
			wantCode:  http.StatusOK,
			wantNames: []string{},
			wantTotal: 5,
		},
		{
			name:     "unknown status",
			target:   "/api/v1/chunks?status=finalizing",
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mockSvc := newLedgerHandler()
			mockSvc.On("Status", mock.Anything).Return(sampleStatus(), nil)

			w := serve(h.ListChunks, "/api/v1/chunks", tt.target)

			require.Equal(t, tt.wantCode, w.Code)
			resp := decode(t, w)
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "INVALID_STATUS", resp.Error.Code)
				mockSvc.AssertNotCalled(t, "Status", mock.Anything)
				return
			}
			names := []string{}
			for _, v := range resp.Data.([]interface{}) {
				names = append(names, v.(map[string]interface{})["name"].(string))
			}
			assert.Equal(t, tt.wantNames, names)
			require.NotNil(t, resp.Meta)
			assert.Equal(t, int(tt.wantTotal), resp.Meta.Total)
		})
	}
}

func TestLedgerHandler_GetChunk(t *testing.T) {
	h, mockSvc := newLedgerHandler()
	view := &service.ChunkView{
		Name:   "chunk03_input.jsonl",
		OnDisk: true,
		Entry:  &domain.LedgerEntry{ChunkNumber: 3, Status: domain.ChunkStatusFailed, Error: "job failed"},
	}
	mockSvc.On("Chunk", mock.Anything, "chunk03_input.jsonl").Return(view, nil)
	mockSvc.On("Chunk", mock.Anything, "chunk09_input.jsonl").
		Return(nil, fmt.Errorf("chunk09_input.jsonl: %w", domain.ErrChunkNotTracked))

	w := serve(h.GetChunk, "/api/v1/chunks/:name", "/api/v1/chunks/chunk03_input.jsonl")
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data.(map[string]interface{})
	assert.Equal(t, "failed", data["entry"].(map[string]interface{})["status"])

	w = serve(h.GetChunk, "/api/v1/chunks/:name", "/api/v1/chunks/chunk09_input.jsonl")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CHUNK_NOT_FOUND", decode(t, w).Error.Code)
	mockSvc.AssertExpectations(t)
}

func TestLedgerHandler_GetReport(t *testing.T) {
	h, mockSvc := newLedgerHandler()
	mockSvc.On("Report", mock.Anything).Return(&validator.Report{TotalDocuments: 10, Valid: 9, Invalid: 1, ValidationRate: 0.9}, nil).Once()
	mockSvc.On("Report", mock.Anything).Return(nil, domain.ErrReportNotFound).Once()

	w := serve(h.GetReport, "/api/v1/report", "/api/v1/report")
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data.(map[string]interface{})
	assert.Equal(t, 0.9, data["validation_rate"])

	w = serve(h.GetReport, "/api/v1/report", "/api/v1/report")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "REPORT_NOT_FOUND", decode(t, w).Error.Code)
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrChunkNotTracked, http.StatusNotFound, "CHUNK_NOT_FOUND"},
		{domain.ErrReportNotFound, http.StatusNotFound, "REPORT_NOT_FOUND"},
		{domain.ErrLedgerCorrupt, http.StatusInternalServerError, "LEDGER_CORRUPT"},
		{domain.NewQuotaError("create job", errors.New("limit"), 0), http.StatusTooManyRequests, "QUOTA_EXCEEDED"},
		{&domain.NotFoundError{Kind: "job", ID: "batch_1", Err: errors.New("gone")}, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			status, code, msg := handler.MapDomainError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
			assert.NotEmpty(t, msg)
		})
	}
}
