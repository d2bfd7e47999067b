package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/noticeserve-backend/internal/http/response"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
	"github.com/yungbote/noticeserve-backend/internal/services"
)

type DiagnosticsHandler struct {
	log  *logger.Logger
	diag services.DiagnosticsService
}

func NewDiagnosticsHandler(log *logger.Logger, diag services.DiagnosticsService) *DiagnosticsHandler {
	return &DiagnosticsHandler{log: log.With("handler", "DiagnosticsHandler"), diag: diag}
}

// POST /api/batch/debug
func (h *DiagnosticsHandler) Debug(c *gin.Context) {
	var req services.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	report, err := h.diag.CheckWrites(c.Request.Context(), req)
	if err != nil {
		h.log.Error("diagnostics check failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "diagnostics_failed", err)
		return
	}
	response.RespondOK(c, report)
}

// GET /api/batch/health
func (h *DiagnosticsHandler) Health(c *gin.Context) {
	report, err := h.diag.Health(c.Request.Context())
	if err != nil {
		h.log.Error("schema health check failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "health_failed", err)
		return
	}
	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
