// Package batchclient submits notice batches to the ingestion API and
// retries transient failures with a linear backoff.
package batchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"

	"github.com/yungbote/noticeserve-backend/internal/platform/httpx"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoffUnit = 2 * time.Second
	DefaultTimeout     = 2 * time.Minute
)

type Config struct {
	BaseURL string
	// MaxRetries is the total number of attempts.
	MaxRetries  int
	BackoffUnit time.Duration
	Timeout     time.Duration
	// Token, when set, is sent as a bearer token.
	Token string
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type BatchData struct {
	BatchID       string
	Recipients    []string
	CaseNumber    string
	ServerAddress string
	NoticeType    string
	IssuingAgency string
	IPFSHash      string
	EncryptionKey string
	AlertIDs      []int64
	DocumentIDs   []int64
	Metadata      map[string]any
	Thumbnail     *File
	Document      *File
}

type ItemResult struct {
	Recipient  string `json:"recipient"`
	NoticeID   string `json:"noticeId"`
	AlertID    string `json:"alertId"`
	DocumentID string `json:"documentId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

type BatchResult struct {
	Success      bool         `json:"success"`
	BatchID      string       `json:"batchId"`
	Status       string       `json:"status"`
	Results      []ItemResult `json:"results"`
	FailureCount int          `json:"failureCount"`
	Warnings     []string     `json:"warnings"`
}

type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Errors   []string       `json:"errors"`
	Warnings []string       `json:"warnings"`
	Data     map[string]any `json:"data,omitempty"`
}

type BatchStatus struct {
	Batch   map[string]any   `json:"batch"`
	Items   []map[string]any `json:"items"`
	Notices []map[string]any `json:"notices"`
}

// StatusError is a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("batch api returned %d: %s", e.StatusCode, body)
}

func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

type Client struct {
	log         *logger.Logger
	http        *resty.Client
	maxRetries  int
	backoffUnit time.Duration
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("batch api base url required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid batch api base url: %w", err)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = DefaultBackoffUnit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	hc := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		hc.SetAuthToken(cfg.Token)
	}
	return &Client{
		log:         log.With("client", "BatchClient"),
		http:        hc,
		maxRetries:  cfg.MaxRetries,
		backoffUnit: cfg.BackoffUnit,
	}, nil
}

// UploadBatchDocuments posts the batch as multipart/form-data. A reply with
// failureCount > 0 is returned as-is: once the server has accepted a batch
// it is never resubmitted.
func (c *Client) UploadBatchDocuments(ctx context.Context, data BatchData) (*BatchResult, error) {
	fields, err := data.formFields()
	if err != nil {
		return nil, err
	}
	log := c.log.With("batch_id", data.BatchID, "recipients", len(data.Recipients))

	attempt := 0
	res, err := retry(ctx, c, log, func() (*BatchResult, error) {
		attempt++
		req := c.http.R().SetContext(ctx).SetMultipartFormData(fields)
		if f := data.Thumbnail; f != nil {
			req.SetMultipartField("thumbnail", f.Name, f.ContentType, bytes.NewReader(f.Data))
		}
		if f := data.Document; f != nil {
			req.SetMultipartField("document", f.Name, f.ContentType, bytes.NewReader(f.Data))
		}
		var out BatchResult
		if err := c.send(req.SetResult(&out), http.MethodPost, "/api/batch/documents"); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("upload batch after %d attempt(s): %w", attempt, err)
	}
	if res.FailureCount > 0 {
		log.Warn("batch partially served",
			"server_batch_id", res.BatchID,
			"status", res.Status,
			"failure_count", res.FailureCount,
		)
	} else {
		log.Info("batch uploaded", "server_batch_id", res.BatchID, "status", res.Status, "attempts", attempt)
	}
	return res, nil
}

func (c *Client) GetBatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, fmt.Errorf("batch id required")
	}
	return retry(ctx, c, c.log.With("batch_id", batchID), func() (*BatchStatus, error) {
		var out BatchStatus
		req := c.http.R().SetContext(ctx).SetPathParam("batchId", batchID).SetResult(&out)
		if err := c.send(req, http.MethodGet, "/api/batch/{batchId}/status"); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// ValidateBatch runs the server-side validator. An invalid batch is a
// successful call with Valid=false.
func (c *Client) ValidateBatch(ctx context.Context, data BatchData) (*ValidationResult, error) {
	fields, err := data.formFields()
	if err != nil {
		return nil, err
	}
	return retry(ctx, c, c.log, func() (*ValidationResult, error) {
		var out ValidationResult
		req := c.http.R().SetContext(ctx).SetFormData(fields).SetResult(&out)
		if err := c.send(req, http.MethodPost, "/api/batch/validate"); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

func (c *Client) send(req *resty.Request, method, path string) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		if resp != nil && resp.IsSuccess() {
			// The server already accepted the request; sending it again would duplicate it.
			return backoff.Permanent(fmt.Errorf("read %s %s response (status %d): %w", method, path, resp.StatusCode(), err))
		}
		return err
	}
	if resp.IsSuccess() {
		return nil
	}
	return &StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
}

func retry[T any](ctx context.Context, c *Client, log *logger.Logger, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		out, err := op()
		if err == nil {
			return out, nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return out, err
		}
		if !httpx.IsRetryableError(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(&LinearBackOff{Unit: c.backoffUnit}),
		backoff.WithMaxTries(uint(c.maxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("batch api call failed, retrying", "error", err, "retry_in", next.String())
		}),
	)
}

func (f BatchData) formFields() (map[string]string, error) {
	if len(f.Recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient required")
	}
	recipients, err := json.Marshal(f.Recipients)
	if err != nil {
		return nil, fmt.Errorf("encode recipients: %w", err)
	}
	fields := map[string]string{
		"recipients":    string(recipients),
		"serverAddress": f.ServerAddress,
	}
	optional := map[string]string{
		"batchId":       f.BatchID,
		"caseNumber":    f.CaseNumber,
		"noticeType":    f.NoticeType,
		"issuingAgency": f.IssuingAgency,
		"ipfsHash":      f.IPFSHash,
		"encryptionKey": f.EncryptionKey,
		"alertIds":      joinIDs(f.AlertIDs),
		"documentIds":   joinIDs(f.DocumentIDs),
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	if len(f.Metadata) > 0 {
		meta, err := json.Marshal(f.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		fields["metadata"] = string(meta)
	}
	return fields, nil
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
