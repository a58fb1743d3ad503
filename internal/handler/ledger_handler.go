package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cbsent/internal/domain"
	"cbsent/internal/service"
)

// LedgerHandler serves read-only views of the submission ledger.
type LedgerHandler struct {
	statusService service.StatusService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(statusService service.StatusService) *LedgerHandler {
	return &LedgerHandler{statusService: statusService}
}

// GetStatus handles GET /api/v1/status
func (h *LedgerHandler) GetStatus(c *gin.Context) {
	report, err := h.statusService.Status(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, report)
}

// GetLedger handles GET /api/v1/ledger
// Returns the ledger document exactly as persisted.
func (h *LedgerHandler) GetLedger(c *gin.Context) {
	l, err := h.statusService.Ledger(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, l)
}

// ListChunks handles GET /api/v1/chunks?status=failed&offset=0&limit=20
func (h *LedgerHandler) ListChunks(c *gin.Context) {
	var filter domain.ChunkStatus
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		filter = domain.ChunkStatus(s)
		if !filter.IsValid() {
			RespondError(c, http.StatusBadRequest, "INVALID_STATUS", "unknown chunk status: "+s)
			return
		}
	}
	offset, limit := parsePagination(c)

	report, err := h.statusService.Status(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}

	chunks := make([]service.ChunkView, 0, len(report.Chunks))
	for _, v := range report.Chunks {
		if filter != "" && chunkStatus(v) != filter {
			continue
		}
		chunks = append(chunks, v)
	}
	total := len(chunks)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	RespondPaginated(c, chunks[offset:end], PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetChunk handles GET /api/v1/chunks/:name
func (h *LedgerHandler) GetChunk(c *gin.Context) {
	view, err := h.statusService.Chunk(c.Request.Context(), c.Param("name"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, view)
}

// GetReport handles GET /api/v1/report
func (h *LedgerHandler) GetReport(c *gin.Context) {
	report, err := h.statusService.Report(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, report)
}

func chunkStatus(v service.ChunkView) domain.ChunkStatus {
	if v.Entry == nil {
		return domain.ChunkStatusUnsubmitted
	}
	return v.Entry.Status
}
