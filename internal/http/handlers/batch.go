package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/noticeserve-backend/internal/batch"
	types "github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/http/response"
	"github.com/yungbote/noticeserve-backend/internal/platform/apierr"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
	"github.com/yungbote/noticeserve-backend/internal/services"
)

const DefaultMaxUploadBytes int64 = 64 << 20

type BatchHandler struct {
	log            *logger.Logger
	validator      *batch.Validator
	batches        services.BatchService
	maxUploadBytes int64
}

func NewBatchHandler(log *logger.Logger, validator *batch.Validator, batches services.BatchService, maxUploadBytes int64) *BatchHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &BatchHandler{
		log:            log.With("handler", "BatchHandler"),
		validator:      validator,
		batches:        batches,
		maxUploadBytes: maxUploadBytes,
	}
}

type uploadResponse struct {
	Success      bool                  `json:"success"`
	BatchID      string                `json:"batchId"`
	Status       types.BatchStatus     `json:"status"`
	Results      []services.ItemResult `json:"results"`
	FailureCount int                   `json:"failureCount"`
	Warnings     []string              `json:"warnings"`
	Error        *response.APIError    `json:"error,omitempty"`
}

type invalidResponse struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// POST /api/batch/documents
func (h *BatchHandler) UploadDocuments(c *gin.Context) {
	raw, att, cleanup, err := h.readBatch(c)
	defer cleanup()
	if err != nil {
		response.RespondError(c, apierr.StatusOf(err), apierr.CodeOf(err, "invalid_request"), err)
		return
	}

	vr := h.validator.Validate(c.Request.Context(), raw)
	if !vr.Valid {
		c.JSON(http.StatusBadRequest, invalidResponse{Valid: false, Errors: vr.Errors, Warnings: vr.Warnings})
		return
	}

	res, err := h.batches.Ingest(c.Request.Context(), vr.Data, att)
	if err != nil {
		status := apierr.StatusOf(err)
		body := uploadResponse{
			Success:  false,
			Status:   types.BatchStatusFailed,
			Results:  []services.ItemResult{},
			Warnings: vr.Warnings,
			Error:    &response.APIError{Code: apierr.CodeOf(err, "batch_failed")},
		}
		if res != nil {
			body.BatchID = res.BatchID
		}
		if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
			// Database detail stays in the logs.
			body.Error.Message = "batch processing failed"
		} else {
			body.Error.Message = err.Error()
		}
		h.log.Warn("batch upload rejected", "batch_id", body.BatchID, "status", status, "error", err)
		c.JSON(status, body)
		return
	}

	warnings := append(append([]string{}, vr.Warnings...), res.Warnings...)
	c.JSON(http.StatusOK, uploadResponse{
		Success:      true,
		BatchID:      res.BatchID,
		Status:       res.Status,
		Results:      res.Results,
		FailureCount: res.FailureCount,
		Warnings:     warnings,
	})
}

// GET /api/batch/:batchId/status
func (h *BatchHandler) Status(c *gin.Context) {
	batchID := strings.TrimSpace(c.Param("batchId"))
	if batchID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_batch_id", nil)
		return
	}
	view, err := h.batches.Status(c.Request.Context(), batchID)
	if err != nil {
		status := apierr.StatusOf(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("batch status lookup failed", "batch_id", batchID, "error", err)
			response.RespondError(c, status, "batch_status_failed", errors.New("batch status lookup failed"))
			return
		}
		response.RespondError(c, status, apierr.CodeOf(err, "batch_status_failed"), err)
		return
	}
	response.RespondOK(c, view)
}

// POST /api/batch/validate
func (h *BatchHandler) Validate(c *gin.Context) {
	raw, _, cleanup, err := h.readBatch(c)
	defer cleanup()
	if err != nil {
		response.RespondError(c, apierr.StatusOf(err), apierr.CodeOf(err, "invalid_request"), err)
		return
	}
	response.RespondOK(c, h.validator.Preview(c.Request.Context(), raw))
}

// readBatch accepts multipart/form-data (with optional thumbnail and
// document files), urlencoded forms and JSON bodies.
func (h *BatchHandler) readBatch(c *gin.Context) (batch.RawBatch, services.Attachments, func(), error) {
	noop := func() {}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	switch mediaType {
	case "application/json", "":
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return batch.RawBatch{}, services.Attachments{}, noop, bodyError(err)
		}
		raw, err := batch.RawBatchFromJSON(body)
		if err != nil {
			return batch.RawBatch{}, services.Attachments{}, noop, apierr.BadRequest("invalid_json", err)
		}
		return raw, services.Attachments{}, noop, nil
	case "multipart/form-data":
		if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
			return batch.RawBatch{}, services.Attachments{}, noop, bodyError(err)
		}
		form := c.Request.MultipartForm
		cleanup := func() { _ = form.RemoveAll() }
		att := services.Attachments{
			Thumbnail: fileAttachment(form, "thumbnail"),
			Document:  fileAttachment(form, "document"),
		}
		return rawFromValues(form.Value), att, cleanup, nil
	case "application/x-www-form-urlencoded":
		if err := c.Request.ParseForm(); err != nil {
			return batch.RawBatch{}, services.Attachments{}, noop, bodyError(err)
		}
		return rawFromValues(c.Request.PostForm), services.Attachments{}, noop, nil
	default:
		return batch.RawBatch{}, services.Attachments{}, noop,
			apierr.New(http.StatusUnsupportedMediaType, "unsupported_media_type", fmt.Errorf("unsupported content type %q", mediaType))
	}
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.New(http.StatusRequestEntityTooLarge, "payload_too_large", err)
	}
	return apierr.BadRequest("invalid_body", err)
}

func rawFromValues(v map[string][]string) batch.RawBatch {
	first := func(key string) string {
		if vals := v[key]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	return batch.RawBatch{
		BatchID:       first("batchId"),
		Recipients:    v["recipients"],
		CaseNumber:    first("caseNumber"),
		ServerAddress: first("serverAddress"),
		NoticeType:    first("noticeType"),
		IssuingAgency: first("issuingAgency"),
		IPFSHash:      first("ipfsHash"),
		EncryptionKey: first("encryptionKey"),
		AlertIDs:      first("alertIds"),
		DocumentIDs:   first("documentIds"),
		Metadata:      first("metadata"),
	}
}

func fileAttachment(form *multipart.Form, field string) *services.Attachment {
	if form == nil || len(form.File[field]) == 0 {
		return nil
	}
	fh := form.File[field][0]
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniffContentType(fh)
	}
	return &services.Attachment{
		Filename:    fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func sniffContentType(fh *multipart.FileHeader) string {
	f, err := fh.Open()
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n])
}
